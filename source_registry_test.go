package capture

import (
	"context"
	"errors"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

func readyAfter(d time.Duration) func(context.Context) error {
	return func(ctx context.Context) error {
		select {
		case <-time.After(d):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func TestSourceRegistry_AllReady(t *testing.T) {
	r := NewSourceRegistry(zerolog.Nop(), nil)
	r.Register(RegisteredSource{ID: "screen", Type: SourceTypeScreen, Start: readyAfter(10 * time.Millisecond)})
	r.Register(RegisteredSource{ID: "camera-0", Type: SourceTypeCamera, Start: readyAfter(20 * time.Millisecond)})

	res := r.StartAllAndWaitForReady(context.Background(), time.Second)
	if !res.AllReady() {
		t.Fatalf("failures = %v", res.Failures)
	}
	if !slices.Equal(res.Ready, []string{"camera-0", "screen"}) {
		t.Errorf("Ready = %v", res.Ready)
	}
}

func TestSourceRegistry_Concurrent(t *testing.T) {
	r := NewSourceRegistry(zerolog.Nop(), nil)
	for _, id := range []string{"a", "b", "c", "d"} {
		r.Register(RegisteredSource{ID: id, Start: readyAfter(100 * time.Millisecond)})
	}
	start := time.Now()
	res := r.StartAllAndWaitForReady(context.Background(), time.Second)
	if elapsed := time.Since(start); elapsed > 350*time.Millisecond {
		t.Errorf("took %v, sources were not started concurrently", elapsed)
	}
	if len(res.Ready) != 4 {
		t.Errorf("Ready = %v", res.Ready)
	}
}

func TestSourceRegistry_PartialFailure(t *testing.T) {
	boom := errors.New("no device")
	r := NewSourceRegistry(zerolog.Nop(), nil)
	r.Register(RegisteredSource{ID: "screen", Start: readyAfter(0)})
	r.Register(RegisteredSource{ID: "camera-0", Start: func(context.Context) error { return boom }})
	r.Register(RegisteredSource{ID: "avatar", Start: func(context.Context) error { panic("texture exploded") }})

	res := r.StartAllAndWaitForReady(context.Background(), time.Second)
	if res.AllReady() {
		t.Fatal("AllReady with failing sources")
	}
	if !slices.Equal(res.Ready, []string{"screen"}) {
		t.Errorf("Ready = %v", res.Ready)
	}
	if !errors.Is(res.Failures["camera-0"], boom) {
		t.Errorf("camera failure = %v", res.Failures["camera-0"])
	}
	if res.Failures["avatar"] == nil {
		t.Error("panicking source not reported")
	}
	if !slices.Equal(res.FailedIDs(), []string{"avatar", "camera-0"}) {
		t.Errorf("FailedIDs() = %v", res.FailedIDs())
	}
}

func TestSourceRegistry_TimeoutBound(t *testing.T) {
	r := NewSourceRegistry(zerolog.Nop(), nil)
	block := make(chan struct{})
	defer close(block)
	// Ignores its context entirely.
	r.Register(RegisteredSource{ID: "stuck", Start: func(context.Context) error { <-block; return nil }})
	r.Register(RegisteredSource{ID: "fast", Start: readyAfter(0)})

	timeout := 100 * time.Millisecond
	start := time.Now()
	res := r.StartAllAndWaitForReady(context.Background(), timeout)
	elapsed := time.Since(start)

	if elapsed > timeout+200*time.Millisecond {
		t.Errorf("returned after %v, timeout %v", elapsed, timeout)
	}
	if !errors.Is(res.Failures["stuck"], ErrSourceTimeout) {
		t.Errorf("stuck failure = %v, want ErrSourceTimeout", res.Failures["stuck"])
	}
	if !slices.Equal(res.Ready, []string{"fast"}) {
		t.Errorf("Ready = %v", res.Ready)
	}
}

func TestSourceRegistry_ReapsLateStart(t *testing.T) {
	r := NewSourceRegistry(zerolog.Nop(), nil)
	release := make(chan struct{})
	var stopped atomic.Bool
	r.Register(RegisteredSource{
		ID:    "late",
		Start: func(context.Context) error { <-release; return nil },
		Stop:  func() error { stopped.Store(true); return nil },
	})

	res := r.StartAllAndWaitForReady(context.Background(), 20*time.Millisecond)
	if res.Failures["late"] == nil {
		t.Fatal("late source reported ready")
	}
	close(release)

	deadline := time.Now().Add(time.Second)
	for !stopped.Load() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !stopped.Load() {
		t.Error("source that started after the deadline was not stopped")
	}
}

func TestSourceRegistry_Empty(t *testing.T) {
	res := NewSourceRegistry(zerolog.Nop(), nil).StartAllAndWaitForReady(context.Background(), time.Second)
	if !res.AllReady() || len(res.Ready) != 0 {
		t.Errorf("empty registry result = %+v", res)
	}
}

func TestSourceRegistry_RegisterReplaces(t *testing.T) {
	r := NewSourceRegistry(zerolog.Nop(), nil)
	r.Register(RegisteredSource{ID: "a", Type: SourceTypeScreen})
	r.Register(RegisteredSource{ID: "b", Type: SourceTypeCamera})
	r.Register(RegisteredSource{ID: "a", Type: SourceTypeAvatar})

	srcs := r.Sources()
	if len(srcs) != 2 || srcs[0].ID != "a" || srcs[0].Type != SourceTypeAvatar {
		t.Errorf("Sources() = %+v", srcs)
	}
	r.Clear()
	if len(r.Sources()) != 0 {
		t.Error("Clear left sources")
	}
}

func TestSourceRegistry_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	r := NewSourceRegistry(zerolog.Nop(), m)
	r.Register(RegisteredSource{ID: "ok", Start: readyAfter(0)})
	r.Register(RegisteredSource{ID: "bad", Start: func(context.Context) error { return errors.New("x") }})
	r.StartAllAndWaitForReady(context.Background(), time.Second)

	if got := metricValue(t, reg, "capture_sources_ready", nil); got != 1 {
		t.Errorf("capture_sources_ready = %v, want 1", got)
	}
	if got := metricValue(t, reg, "capture_source_start_failures_total", map[string]string{"source": "bad"}); got != 1 {
		t.Errorf("start failures{bad} = %v, want 1", got)
	}
}
