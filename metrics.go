package capture

import "github.com/prometheus/client_golang/prometheus"

// Drop reasons reported on capture_units_dropped_total.
const (
	dropNegativeTimestamp = "negative_timestamp"
	dropNonMonotonic      = "non_monotonic"
	dropNotReady          = "not_ready"
	dropNoTrack           = "no_track"
	dropPaused            = "paused"
	dropQueueFull         = "queue_full"
	dropNoSequenceHeader  = "no_sequence_header"
	dropClockNotOpen      = "clock_not_open"
	dropDecodeFailed      = "decode_failed"
)

// Metrics holds the package's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	videoAppended      prometheus.Counter
	audioAppended      *prometheus.CounterVec
	dropped            *prometheus.CounterVec
	conversionFailures *prometheus.CounterVec
	startFailures      *prometheus.CounterVec
	liveTags           *prometheus.CounterVec
	publishFailures    prometheus.Counter

	recordingActive prometheus.Gauge
	sourcesReady    prometheus.Gauge
	streamingActive prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		videoAppended: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "capture_video_frames_appended_total",
			Help: "Video frames appended to the local container",
		}),
		audioAppended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "capture_audio_samples_appended_total",
			Help: "Audio buffers appended to the local container",
		}, []string{"track"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "capture_units_dropped_total",
			Help: "Frames or sample buffers dropped instead of appended or sent",
		}, []string{"kind", "reason"}),
		conversionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "capture_audio_conversion_failures_total",
			Help: "Audio buffers dropped because format conversion failed",
		}, []string{"source"}),
		startFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "capture_source_start_failures_total",
			Help: "Capture sources that failed or timed out while starting",
		}, []string{"source"}),
		liveTags: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "capture_live_tags_sent_total",
			Help: "FLV tags sent to the live publisher",
		}, []string{"type"}),
		publishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "capture_live_publish_failures_total",
			Help: "Live tags the publisher failed to send",
		}),
		recordingActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "capture_recording_active",
			Help: "1 while a recording session is running",
		}),
		sourcesReady: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "capture_sources_ready",
			Help: "Sources that became ready in the last start",
		}),
		streamingActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "capture_live_streaming_active",
			Help: "1 while the live sink is connected",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.videoAppended, m.audioAppended, m.dropped, m.conversionFailures,
			m.startFailures, m.liveTags, m.publishFailures,
			m.recordingActive, m.sourcesReady, m.streamingActive,
		)
	}
	return m
}

func (m *Metrics) videoFrameAppended() {
	if m != nil {
		m.videoAppended.Inc()
	}
}

func (m *Metrics) audioSampleAppended(track string) {
	if m != nil {
		m.audioAppended.WithLabelValues(track).Inc()
	}
}

func (m *Metrics) unitDropped(kind, reason string) {
	if m != nil {
		m.dropped.WithLabelValues(kind, reason).Inc()
	}
}

func (m *Metrics) conversionFailed(source string) {
	if m != nil {
		m.conversionFailures.WithLabelValues(source).Inc()
	}
}

func (m *Metrics) sourceStartFailed(source string) {
	if m != nil {
		m.startFailures.WithLabelValues(source).Inc()
	}
}

func (m *Metrics) liveTagSent(t TagType) {
	if m != nil {
		m.liveTags.WithLabelValues(t.String()).Inc()
	}
}

func (m *Metrics) livePublishFailed() {
	if m != nil {
		m.publishFailures.Inc()
	}
}

func (m *Metrics) setRecording(active bool) {
	if m != nil {
		m.recordingActive.Set(boolGauge(active))
	}
}

func (m *Metrics) setSourcesReady(n int) {
	if m != nil {
		m.sourcesReady.Set(float64(n))
	}
}

func (m *Metrics) setStreaming(active bool) {
	if m != nil {
		m.streamingActive.Set(boolGauge(active))
	}
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
