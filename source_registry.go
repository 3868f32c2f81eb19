package capture

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// DefaultReadyTimeout bounds StartAllAndWaitForReady in a recording start.
const DefaultReadyTimeout = 5 * time.Second

// RegisteredSource is a named start operation. Start should not return until
// the source has produced output or failed. Stop, if set, is called when a
// start succeeds only after the wait was abandoned.
type RegisteredSource struct {
	ID    string
	Type  SourceType
	Start func(ctx context.Context) error
	Stop  func() error
}

// RegisteredSourceFor adapts a CaptureSource.
func RegisteredSourceFor(src CaptureSource) RegisteredSource {
	return RegisteredSource{ID: src.ID(), Type: src.Type(), Start: src.Start, Stop: src.Stop}
}

// ReadyResult reports which sources became ready. It is AllReady when
// Failures is empty and PartialReady otherwise.
type ReadyResult struct {
	Ready    []string
	Failures map[string]error
}

// AllReady reports whether every registered source started.
func (r ReadyResult) AllReady() bool { return len(r.Failures) == 0 }

// FailedIDs returns the failed source ids in sorted order.
func (r ReadyResult) FailedIDs() []string {
	ids := make([]string, 0, len(r.Failures))
	for id := range r.Failures {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SourceRegistry holds the sources of one recording attempt and starts them
// together.
type SourceRegistry struct {
	logger  zerolog.Logger
	metrics *Metrics

	mu      sync.Mutex
	sources []RegisteredSource
}

// NewSourceRegistry creates an empty registry.
func NewSourceRegistry(logger zerolog.Logger, metrics *Metrics) *SourceRegistry {
	return &SourceRegistry{logger: logger, metrics: metrics}
}

// Register adds src, replacing any source with the same ID in place.
func (r *SourceRegistry) Register(src RegisteredSource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.sources {
		if r.sources[i].ID == src.ID {
			r.sources[i] = src
			return
		}
	}
	r.sources = append(r.sources, src)
}

// Clear drops all registrations.
func (r *SourceRegistry) Clear() {
	r.mu.Lock()
	r.sources = nil
	r.mu.Unlock()
}

// Sources returns the registrations in registration order.
func (r *SourceRegistry) Sources() []RegisteredSource {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RegisteredSource(nil), r.sources...)
}

// StartAllAndWaitForReady starts every registered source concurrently and
// waits at most timeout for all of them. A source that errors, panics or is
// still starting at the deadline is reported in Failures. It never blocks
// past the deadline, even for a Start that ignores its context.
func (r *SourceRegistry) StartAllAndWaitForReady(ctx context.Context, timeout time.Duration) ReadyResult {
	sources := r.Sources()
	result := ReadyResult{Failures: make(map[string]error)}
	if len(sources) == 0 {
		return result
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	record := func(src RegisteredSource, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err == nil {
			result.Ready = append(result.Ready, src.ID)
			return
		}
		result.Failures[src.ID] = err
		r.metrics.sourceStartFailed(src.ID)
		r.logger.Warn().Err(err).
			Str("source_id", src.ID).
			Str("source_type", src.Type.String()).
			Msg("source failed to start")
	}

	for _, src := range sources {
		src := src
		g.Go(func() error {
			done := make(chan error, 1)
			go func() {
				defer func() {
					if p := recover(); p != nil {
						done <- fmt.Errorf("source %s panicked: %v", src.ID, p)
					}
				}()
				done <- src.Start(ctx)
			}()

			select {
			case err := <-done:
				if err != nil && ctx.Err() != nil {
					err = fmt.Errorf("%w: %w", ErrSourceTimeout, err)
				}
				record(src, err)
			case <-ctx.Done():
				record(src, fmt.Errorf("%w: %s after %s", ErrSourceTimeout, src.ID, timeout))
				go r.reapAbandoned(src, done)
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(result.Ready)
	r.metrics.setSourcesReady(len(result.Ready))
	return result
}

// reapAbandoned stops a source whose Start succeeded after its wait expired.
func (r *SourceRegistry) reapAbandoned(src RegisteredSource, done <-chan error) {
	if err := <-done; err != nil || src.Stop == nil {
		return
	}
	if err := src.Stop(); err != nil {
		r.logger.Debug().Err(err).Str("source_id", src.ID).Msg("stop abandoned source")
	}
}
