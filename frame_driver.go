package capture

import (
	"context"
	"sync"
	"time"
)

// frameDriver calls tick at a fixed rate with the host-clock time of each
// tick. It supplies frame timing when no screen source does.
type frameDriver struct {
	interval time.Duration
	tick     func(ts time.Duration)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func newFrameDriver(fps int, tick func(ts time.Duration)) *frameDriver {
	if fps <= 0 {
		fps = 30
	}
	return &frameDriver{interval: time.Second / time.Duration(fps), tick: tick}
}

func (d *frameDriver) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.done = make(chan struct{})
	go d.run(ctx, d.done)
}

func (d *frameDriver) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.tick(MonotonicNow())
		}
	}
}

// Stop ends the driver and waits for an in-flight tick to return.
func (d *frameDriver) Stop() {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.cancel, d.done = nil, nil
	d.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}
