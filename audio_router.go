package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// AudioSink receives converted samples tagged with their source id.
type AudioSink func(sourceID string, samples *AudioSamples)

type routedSource struct {
	src AudioCaptureSource

	mu   sync.Mutex // serializes conv
	conv *AudioConverter
}

// AudioRouter converts each registered source's samples to 48 kHz stereo S16
// and forwards them to a single sink.
type AudioRouter struct {
	logger  zerolog.Logger
	metrics *Metrics
	sink    atomic.Pointer[AudioSink]

	mu      sync.Mutex
	sources map[string]*routedSource
	order   []string
}

// NewAudioRouter creates a router with no sink.
func NewAudioRouter(logger zerolog.Logger, metrics *Metrics) *AudioRouter {
	return &AudioRouter{
		logger:  logger,
		metrics: metrics,
		sources: make(map[string]*routedSource),
	}
}

// SetSink sets the downstream consumer. Samples arriving while no sink is
// set are dropped.
func (r *AudioRouter) SetSink(sink AudioSink) {
	if sink == nil {
		r.sink.Store(nil)
		return
	}
	r.sink.Store(&sink)
}

// AddSource registers src with a dedicated converter, replacing any source
// with the same id.
func (r *AudioRouter) AddSource(src AudioCaptureSource) {
	id := src.ID()
	rs := &routedSource{src: src, conv: NewAudioConverter()}

	r.mu.Lock()
	if old, ok := r.sources[id]; ok {
		old.src.SetSampleHandler(nil)
	} else {
		r.order = append(r.order, id)
	}
	r.sources[id] = rs
	r.mu.Unlock()

	src.SetSampleHandler(func(s *AudioSamples) { r.route(id, rs, s) })
}

// RemoveSource detaches and forgets the source with id.
func (r *AudioRouter) RemoveSource(id string) {
	r.mu.Lock()
	rs, ok := r.sources[id]
	if ok {
		delete(r.sources, id)
		for i, v := range r.order {
			if v == id {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
	r.mu.Unlock()

	if ok {
		rs.src.SetSampleHandler(nil)
	}
}

// Clear removes every source.
func (r *AudioRouter) Clear() {
	for _, id := range r.SourceIDs() {
		r.RemoveSource(id)
	}
}

// SourceIDs returns the registered ids in registration order.
func (r *AudioRouter) SourceIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

// Source returns the registered source with id.
func (r *AudioRouter) Source(id string) (AudioCaptureSource, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rs, ok := r.sources[id]
	if !ok {
		return nil, false
	}
	return rs.src, true
}

func (r *AudioRouter) snapshot() []*routedSource {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*routedSource, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.sources[id])
	}
	return out
}

// StartAll starts every source in registration order and stops at the first
// failure.
func (r *AudioRouter) StartAll(ctx context.Context) error {
	for _, rs := range r.snapshot() {
		if err := rs.src.Start(ctx); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrAudioStartFailed, rs.src.ID(), err)
		}
	}
	return nil
}

// StopAll stops every source, logging each failure. It returns the joined
// failures after attempting all of them.
func (r *AudioRouter) StopAll() error {
	var errs []error
	for _, rs := range r.snapshot() {
		if err := rs.src.Stop(); err != nil {
			r.logger.Warn().Err(err).Str("source_id", rs.src.ID()).Msg("audio source stop failed")
			errs = append(errs, fmt.Errorf("%s: %w", rs.src.ID(), err))
		}
	}
	return errors.Join(errs...)
}

func (r *AudioRouter) route(id string, rs *routedSource, s *AudioSamples) {
	rs.mu.Lock()
	out, err := rs.conv.Convert(s)
	rs.mu.Unlock()
	if err != nil {
		r.metrics.conversionFailed(id)
		r.logger.Debug().Err(err).Str("source_id", id).Msg("dropping audio: conversion failed")
		return
	}
	if sink := r.sink.Load(); sink != nil {
		(*sink)(id, out)
	}
}
