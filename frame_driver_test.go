package capture

import (
	"sync"
	"testing"
	"time"
)

func TestFrameDriver_Ticks(t *testing.T) {
	var (
		mu  sync.Mutex
		tss []time.Duration
	)
	d := newFrameDriver(100, func(ts time.Duration) {
		mu.Lock()
		tss = append(tss, ts)
		mu.Unlock()
	})
	d.Start()
	d.Start() // no second loop
	if !waitFor(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(tss) >= 3
	}) {
		t.Fatal("driver did not tick")
	}
	d.Stop()

	mu.Lock()
	n := len(tss)
	for i := 1; i < n; i++ {
		if tss[i] <= tss[i-1] {
			t.Errorf("tick %d at %v not after %v", i, tss[i], tss[i-1])
		}
	}
	mu.Unlock()

	time.Sleep(30 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if len(tss) != n {
		t.Error("driver ticked after Stop")
	}
	d.Stop() // idempotent
}

func TestNewFrameDriver_DefaultRate(t *testing.T) {
	if d := newFrameDriver(0, func(time.Duration) {}); d.interval != time.Second/30 {
		t.Errorf("interval = %v, want 1/30s", d.interval)
	}
}
