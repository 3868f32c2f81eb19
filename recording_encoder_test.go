package capture

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

const ms = time.Millisecond

func newTestEncoder(t *testing.T) (*RecordingEncoder, *fakeContainer, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	c := newFakeContainer(ContainerOptions{})
	e := NewRecordingEncoder(RecordingEncoderConfig{
		Logger:     zerolog.Nop(),
		Metrics:    NewMetrics(reg),
		Containers: c.factory(),
	})
	return e, c, reg
}

func dropped(t *testing.T, reg *prometheus.Registry, kind, reason string) float64 {
	t.Helper()
	return metricValue(t, reg, "capture_units_dropped_total", map[string]string{"kind": kind, "reason": reason})
}

func TestRecordingEncoder_StartErrors(t *testing.T) {
	e, _, _ := newTestEncoder(t)
	if err := e.StartRecording(RecordingOptions{URL: "a.flv"}, nil, false); !errors.Is(err, ErrNoInputEnabled) {
		t.Errorf("no inputs: err = %v, want ErrNoInputEnabled", err)
	}
	if err := e.StartRecording(RecordingOptions{URL: "a.flv"}, nil, true); err != nil {
		t.Fatal(err)
	}
	if err := e.StartRecording(RecordingOptions{URL: "b.flv"}, nil, true); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second start: err = %v, want ErrInvalidState", err)
	}

	boom := errors.New("disk full")
	failing := NewRecordingEncoder(RecordingEncoderConfig{
		Logger:     zerolog.Nop(),
		Containers: func(ContainerOptions) (ContainerWriter, error) { return nil, boom },
	})
	err := failing.StartRecording(RecordingOptions{URL: "c.flv"}, []string{MicrophoneSourceID}, true)
	if !errors.Is(err, ErrWriterFailed) || !errors.Is(err, boom) {
		t.Errorf("factory failure: err = %v, want ErrWriterFailed wrapping cause", err)
	}
	if failing.IsRecording() {
		t.Error("IsRecording after failed start")
	}
}

func TestRecordingEncoder_TrackSet(t *testing.T) {
	e, c, _ := newTestEncoder(t)
	opts := RecordingOptions{URL: "out.flv", Title: "demo", FPS: 60, VideoBitrate: 1_000_000, AudioBitrate: 96_000}
	if err := e.StartRecording(opts, []string{"microphone", "screen-audio"}, true); err != nil {
		t.Fatal(err)
	}
	if c.video == nil {
		t.Error("no video track")
	}
	if !slices.Equal(c.order, []string{"microphone", "screen-audio"}) {
		t.Errorf("audio tracks = %v", c.order)
	}
	want := ContainerOptions{Path: "out.flv", Title: "demo", VideoEnabled: true, FPS: 60, VideoBitrate: 1_000_000, AudioBitrate: 96_000}
	if c.opts != want {
		t.Errorf("container options = %+v, want %+v", c.opts, want)
	}
}

func TestRecordingEncoder_FirstFrameOpensClock(t *testing.T) {
	e, c, reg := newTestEncoder(t)
	if err := e.StartRecording(RecordingOptions{URL: "out.flv"}, []string{"microphone"}, true); err != nil {
		t.Fatal(err)
	}

	e.EncodeAudioSample(testAudio(5*ms, 480), "microphone")
	if started, _, _, _ := c.state(); started {
		t.Fatal("audio opened the clock of a recording with video")
	}
	if got := dropped(t, reg, "audio", dropClockNotOpen); got != 1 {
		t.Errorf("clock_not_open drops = %v, want 1", got)
	}

	e.EncodeVideoFrame(testFrame(10*ms), 10*ms)
	started, at, _, _ := c.state()
	if !started || at != 10*ms {
		t.Fatalf("session started=%v at %v, want 10ms", started, at)
	}
	e.EncodeAudioSample(testAudio(12*ms, 480), "microphone")

	if got := c.video.appended(); !slices.Equal(got, []time.Duration{10 * ms}) {
		t.Errorf("video pts = %v", got)
	}
	if got := c.audio["microphone"].appended(); !slices.Equal(got, []time.Duration{12 * ms}) {
		t.Errorf("audio pts = %v", got)
	}
}

func TestRecordingEncoder_VideoDrops(t *testing.T) {
	e, c, reg := newTestEncoder(t)
	if err := e.StartRecording(RecordingOptions{URL: "out.flv"}, nil, true); err != nil {
		t.Fatal(err)
	}

	e.EncodeVideoFrame(testFrame(-ms), -ms)
	if started, _, _, _ := c.state(); started {
		t.Fatal("negative timestamp opened the clock")
	}
	e.EncodeVideoFrame(testFrame(100*ms), 100*ms)
	e.EncodeVideoFrame(testFrame(100*ms), 100*ms) // equal
	e.EncodeVideoFrame(testFrame(90*ms), 90*ms)   // backwards
	e.EncodeVideoFrame(testFrame(133*ms), 133*ms)

	c.video.mu.Lock()
	c.video.ready = false
	c.video.mu.Unlock()
	e.EncodeVideoFrame(testFrame(166*ms), 166*ms)

	if got := c.video.appended(); !slices.Equal(got, []time.Duration{100 * ms, 133 * ms}) {
		t.Errorf("video pts = %v", got)
	}
	tests := []struct {
		reason string
		want   float64
	}{
		{dropNegativeTimestamp, 1},
		{dropNonMonotonic, 2},
		{dropNotReady, 1},
	}
	for _, tt := range tests {
		if got := dropped(t, reg, "video", tt.reason); got != tt.want {
			t.Errorf("%s drops = %v, want %v", tt.reason, got, tt.want)
		}
	}
	if got := metricValue(t, reg, "capture_video_frames_appended_total", nil); got != 2 {
		t.Errorf("appended = %v, want 2", got)
	}
}

func TestRecordingEncoder_PauseRebases(t *testing.T) {
	e, c, reg := newTestEncoder(t)
	if err := e.StartRecording(RecordingOptions{URL: "out.flv"}, []string{"microphone"}, true); err != nil {
		t.Fatal(err)
	}

	e.EncodeVideoFrame(testFrame(10*ms), 10*ms)
	e.EncodeVideoFrame(testFrame(43*ms), 43*ms)
	if err := e.Pause(); err != nil {
		t.Fatal(err)
	}
	if !e.IsPaused() {
		t.Fatal("IsPaused = false")
	}
	e.EncodeVideoFrame(testFrame(76*ms), 76*ms)
	e.EncodeVideoFrame(testFrame(109*ms), 109*ms)
	e.EncodeAudioSample(testAudio(100*ms, 480), "microphone")
	if err := e.Resume(); err != nil {
		t.Fatal(err)
	}

	// 66ms elapsed between the last frame before the pause and the last
	// frame seen while paused.
	e.EncodeVideoFrame(testFrame(142*ms), 142*ms)
	e.EncodeAudioSample(testAudio(150*ms, 480), "microphone")

	if got := c.video.appended(); !slices.Equal(got, []time.Duration{10 * ms, 43 * ms, 76 * ms}) {
		t.Errorf("video pts = %v", got)
	}
	if got := c.audio["microphone"].appended(); !slices.Equal(got, []time.Duration{84 * ms}) {
		t.Errorf("audio pts = %v", got)
	}
	if got := dropped(t, reg, "video", dropPaused); got != 2 {
		t.Errorf("paused video drops = %v, want 2", got)
	}
	if got := dropped(t, reg, "audio", dropPaused); got != 1 {
		t.Errorf("paused audio drops = %v, want 1", got)
	}
	if d := e.Duration(); d != 66*ms {
		t.Errorf("Duration = %v, want 66ms", d)
	}

	res, err := e.FinishRecording(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Cancelled || res.URL != "out.flv" || res.Duration != 66*ms {
		t.Errorf("result = %+v", res)
	}
	if _, _, finished, _ := c.state(); !finished {
		t.Error("container not finished")
	}
	if !c.video.finished || !c.audio["microphone"].finished {
		t.Error("tracks not marked finished")
	}
}

func TestRecordingEncoder_PauseBeforeFirstFrame(t *testing.T) {
	e, c, _ := newTestEncoder(t)
	if err := e.StartRecording(RecordingOptions{URL: "out.flv"}, nil, true); err != nil {
		t.Fatal(err)
	}
	e.Pause()
	e.EncodeVideoFrame(testFrame(10*ms), 10*ms)
	e.EncodeVideoFrame(testFrame(50*ms), 50*ms)
	e.Resume()
	e.EncodeVideoFrame(testFrame(60*ms), 60*ms)

	if started, at, _, _ := c.state(); !started || at != 10*ms {
		t.Fatalf("session started=%v at %v", started, at)
	}
	if got := c.video.appended(); !slices.Equal(got, []time.Duration{20 * ms}) {
		t.Errorf("video pts = %v, want [20ms]", got)
	}
}

func TestRecordingEncoder_AudioOnly(t *testing.T) {
	e, c, reg := newTestEncoder(t)
	if err := e.StartRecording(RecordingOptions{URL: "voice.flv"}, []string{"microphone"}, false); err != nil {
		t.Fatal(err)
	}

	e.EncodeVideoFrame(testFrame(50*ms), 50*ms)
	if started, _, _, _ := c.state(); started {
		t.Fatal("video opened the clock of an audio-only recording")
	}
	if got := dropped(t, reg, "video", dropNoTrack); got != 1 {
		t.Errorf("video no_track drops = %v, want 1", got)
	}

	e.EncodeAudioSample(testAudio(100*ms, 480), "microphone") // 10ms
	e.EncodeAudioSample(testAudio(110*ms, 480), "microphone")
	e.EncodeAudioSample(testAudio(105*ms, 480), "microphone")
	e.EncodeAudioSample(testAudio(120*ms, 480), "other")

	started, at, _, _ := c.state()
	if !started || at != 100*ms {
		t.Fatalf("session started=%v at %v, want 100ms", started, at)
	}
	if got := c.audio["microphone"].appended(); !slices.Equal(got, []time.Duration{100 * ms, 110 * ms}) {
		t.Errorf("audio pts = %v", got)
	}
	if got := dropped(t, reg, "audio", dropNonMonotonic); got != 1 {
		t.Errorf("non_monotonic audio drops = %v, want 1", got)
	}
	if got := dropped(t, reg, "audio", dropNoTrack); got != 1 {
		t.Errorf("no_track audio drops = %v, want 1", got)
	}
	if got := metricValue(t, reg, "capture_audio_samples_appended_total", map[string]string{"track": "microphone"}); got != 2 {
		t.Errorf("appended = %v, want 2", got)
	}
	if d := e.Duration(); d != 20*ms {
		t.Errorf("Duration = %v, want 20ms", d)
	}
}

func TestRecordingEncoder_FinishWithoutFramesCancels(t *testing.T) {
	e, c, _ := newTestEncoder(t)
	if err := e.StartRecording(RecordingOptions{URL: "empty.flv"}, []string{"microphone"}, true); err != nil {
		t.Fatal(err)
	}
	res, err := e.FinishRecording(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !res.Cancelled || res.Duration != 0 || res.URL != "empty.flv" {
		t.Errorf("result = %+v", res)
	}
	if _, _, finished, cancelled := c.state(); finished || !cancelled {
		t.Errorf("finished=%v cancelled=%v, want cancel only", finished, cancelled)
	}
	if e.IsRecording() {
		t.Error("still recording")
	}
}

func TestRecordingEncoder_FinishError(t *testing.T) {
	e, c, _ := newTestEncoder(t)
	boom := errors.New("flush failed")
	c.finishErr = boom
	if err := e.StartRecording(RecordingOptions{URL: "out.flv"}, nil, true); err != nil {
		t.Fatal(err)
	}
	e.EncodeVideoFrame(testFrame(ms), ms)

	res, err := e.FinishRecording(context.Background())
	if !errors.Is(err, ErrWriterFailed) || !errors.Is(err, boom) {
		t.Errorf("err = %v, want ErrWriterFailed wrapping cause", err)
	}
	if res.URL != "out.flv" {
		t.Errorf("URL = %q", res.URL)
	}
	if e.IsRecording() {
		t.Error("encoder state kept after a failed finish")
	}
}

func TestRecordingEncoder_NotRecording(t *testing.T) {
	e, _, _ := newTestEncoder(t)
	if err := e.Pause(); !errors.Is(err, ErrNotRecording) {
		t.Errorf("Pause: %v", err)
	}
	if err := e.Resume(); !errors.Is(err, ErrNotRecording) {
		t.Errorf("Resume: %v", err)
	}
	if _, err := e.FinishRecording(context.Background()); !errors.Is(err, ErrNotRecording) {
		t.Errorf("FinishRecording: %v", err)
	}
	// Frames without a recording are dropped quietly.
	e.EncodeVideoFrame(testFrame(ms), ms)
	e.EncodeAudioSample(testAudio(ms, 480), "microphone")
	if e.Duration() != 0 {
		t.Error("Duration without a recording")
	}
}

func TestRecordingEncoder_RestartResetsClock(t *testing.T) {
	e, _, _ := newTestEncoder(t)
	if err := e.StartRecording(RecordingOptions{URL: "one.flv"}, nil, true); err != nil {
		t.Fatal(err)
	}
	e.EncodeVideoFrame(testFrame(500*ms), 500*ms)
	e.Pause()
	e.EncodeVideoFrame(testFrame(900*ms), 900*ms)
	if _, err := e.FinishRecording(context.Background()); err != nil {
		t.Fatal(err)
	}

	second := newFakeContainer(ContainerOptions{})
	e.cfg.Containers = second.factory()
	if err := e.StartRecording(RecordingOptions{URL: "two.flv"}, nil, true); err != nil {
		t.Fatal(err)
	}
	if e.IsPaused() {
		t.Error("pause carried into the next recording")
	}
	e.EncodeVideoFrame(testFrame(100*ms), 100*ms)
	if _, at, _, _ := second.state(); at != 100*ms {
		t.Errorf("second session at %v, want 100ms", at)
	}
	if got := second.video.appended(); !slices.Equal(got, []time.Duration{100 * ms}) {
		t.Errorf("video pts = %v", got)
	}
}
