package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// RecordingOptions describes the local output of one recording.
type RecordingOptions struct {
	URL          string // output file path
	Title        string
	FPS          int
	VideoBitrate int
	AudioBitrate int
}

// RecordingResult is returned by FinishRecording.
type RecordingResult struct {
	URL      string
	Duration time.Duration // excludes paused time
	// Cancelled is set when nothing was ever appended and the output was
	// discarded instead of finalized.
	Cancelled bool
}

// RecordingEncoderConfig configures a RecordingEncoder.
type RecordingEncoderConfig struct {
	Logger  zerolog.Logger
	Metrics *Metrics

	Containers ContainerFactory // default: FLV with DefaultFLVContainerConfig

	// Live configures the optional streaming sink.
	Live LiveStreamConfig

	// PrimaryAudioID selects the audio source fed to the live sink
	// (default: MicrophoneSourceID).
	PrimaryAudioID string
}

// RecordingEncoder feeds composited frames and converted audio into a local
// container and, while streaming, into an independent LiveStreamer.
//
// Timestamps are host-clock durations. The first video frame (or the first
// audio buffer of an audio-only recording) opens the session clock. After
// that every timestamp is rebased by the cumulative paused time, and video
// frames that do not advance the last accepted timestamp are dropped.
type RecordingEncoder struct {
	cfg  RecordingEncoderConfig
	log  zerolog.Logger
	live *LiveStreamer

	mu     sync.Mutex
	url    string
	writer ContainerWriter
	video  VideoWriterTrack
	audio  map[string]AudioWriterTrack

	clockOpen   bool
	base        time.Duration
	lastRaw     time.Duration // latest raw timestamp seen, paused or not
	lastVideo   time.Duration // last accepted rebased video timestamp
	videoSeen   bool
	lastAudio   map[string]time.Duration
	lastEmitted time.Duration // latest accepted rebased timestamp of any kind
	pausedTotal time.Duration
	paused      bool
	pauseStart  time.Duration
}

// NewRecordingEncoder creates an idle encoder.
func NewRecordingEncoder(cfg RecordingEncoderConfig) *RecordingEncoder {
	if cfg.Containers == nil {
		fc := DefaultFLVContainerConfig()
		fc.Logger = cfg.Logger
		cfg.Containers = NewFLVContainerFactory(fc)
	}
	if cfg.PrimaryAudioID == "" {
		cfg.PrimaryAudioID = MicrophoneSourceID
	}
	if cfg.Live.Metrics == nil {
		cfg.Live.Metrics = cfg.Metrics
	}
	cfg.Live.Logger = cfg.Logger.With().Str("sink", "live").Logger()
	return &RecordingEncoder{
		cfg:  cfg,
		log:  cfg.Logger,
		live: NewLiveStreamer(cfg.Live),
	}
}

// StartRecording creates the container and its complete track set: one
// video track when videoEnabled and one audio track per id. The track set
// cannot change afterwards.
func (e *RecordingEncoder) StartRecording(opts RecordingOptions, audioSourceIDs []string, videoEnabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.writer != nil {
		return fmt.Errorf("%w: recording already started", ErrInvalidState)
	}
	if !videoEnabled && len(audioSourceIDs) == 0 {
		return ErrNoInputEnabled
	}

	w, err := e.cfg.Containers(ContainerOptions{
		Path:         opts.URL,
		Title:        opts.Title,
		VideoEnabled: videoEnabled,
		FPS:          opts.FPS,
		VideoBitrate: opts.VideoBitrate,
		AudioBitrate: opts.AudioBitrate,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWriterFailed, err)
	}

	var video VideoWriterTrack
	if videoEnabled {
		if video, err = w.AddVideoTrack(); err != nil {
			w.Cancel()
			return fmt.Errorf("add video track: %w", err)
		}
	}
	audio := make(map[string]AudioWriterTrack, len(audioSourceIDs))
	for _, id := range audioSourceIDs {
		t, err := w.AddAudioTrack(id)
		if err != nil {
			w.Cancel()
			return fmt.Errorf("add audio track %s: %w", id, err)
		}
		audio[id] = t
	}

	e.resetLocked()
	e.url, e.writer, e.video, e.audio = opts.URL, w, video, audio
	e.lastAudio = make(map[string]time.Duration, len(audio))
	e.log.Info().
		Str("url", opts.URL).
		Bool("video", videoEnabled).
		Strs("audio_tracks", audioSourceIDs).
		Msg("recording encoder started")
	return nil
}

func (e *RecordingEncoder) resetLocked() {
	e.url = ""
	e.writer, e.video, e.audio, e.lastAudio = nil, nil, nil, nil
	e.clockOpen, e.videoSeen = false, false
	e.base, e.lastRaw, e.lastVideo, e.lastEmitted = 0, 0, 0, 0
	e.pausedTotal, e.paused, e.pauseStart = 0, false, 0
}

// IsRecording reports whether a container session exists.
func (e *RecordingEncoder) IsRecording() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.writer != nil
}

// IsPaused reports whether the recording is paused.
func (e *RecordingEncoder) IsPaused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

// openClockLocked starts the container session at ts.
func (e *RecordingEncoder) openClockLocked(ts time.Duration) bool {
	if err := e.writer.StartSession(ts); err != nil {
		e.log.Error().Err(err).Msg("container session failed to start")
		return false
	}
	e.clockOpen = true
	e.base = ts
	if e.paused {
		e.pauseStart = ts
	}
	return true
}

// EncodeVideoFrame appends a composited frame captured at ts. It never
// blocks and never fails: frames that cannot be appended are dropped.
func (e *RecordingEncoder) EncodeVideoFrame(frame *VideoFrame, ts time.Duration) {
	if frame == nil {
		return
	}
	e.live.PushVideo(frame)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.writer == nil || e.video == nil {
		e.cfg.Metrics.unitDropped("video", dropNoTrack)
		return
	}
	if ts < 0 {
		e.drop("video", dropNegativeTimestamp, ts)
		return
	}
	if !e.clockOpen && !e.openClockLocked(ts) {
		return
	}
	e.lastRaw = ts
	if e.paused {
		e.cfg.Metrics.unitDropped("video", dropPaused)
		return
	}

	rebased := ts - e.pausedTotal
	if e.videoSeen && rebased <= e.lastVideo || rebased < e.base {
		e.drop("video", dropNonMonotonic, rebased)
		return
	}
	if !e.video.ReadyForMoreData() {
		e.drop("video", dropNotReady, rebased)
		return
	}
	if err := e.video.Append(frame, rebased); err != nil {
		e.log.Debug().Err(err).Msg("video append failed, dropping")
		e.cfg.Metrics.unitDropped("video", dropNotReady)
		return
	}
	e.lastVideo, e.videoSeen = rebased, true
	e.lastEmitted = max(e.lastEmitted, rebased)
	e.cfg.Metrics.videoFrameAppended()
}

// EncodeAudioSample appends converted samples from sourceID to that
// source's track. Samples are ignored until the session clock opens, and
// sources without a track are dropped.
func (e *RecordingEncoder) EncodeAudioSample(samples *AudioSamples, sourceID string) {
	if samples == nil {
		return
	}
	if sourceID == e.cfg.PrimaryAudioID {
		e.live.PushAudio(samples)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.writer == nil {
		return
	}
	ts := samples.PTS()
	if !e.clockOpen {
		if e.video != nil {
			e.cfg.Metrics.unitDropped("audio", dropClockNotOpen)
			return
		}
		if ts < 0 || !e.openClockLocked(ts) {
			return
		}
	}
	track, ok := e.audio[sourceID]
	if !ok {
		e.drop("audio", dropNoTrack, ts)
		return
	}
	if ts < 0 {
		e.drop("audio", dropNegativeTimestamp, ts)
		return
	}
	if e.video == nil {
		e.lastRaw = max(e.lastRaw, ts)
	}
	if e.paused {
		e.cfg.Metrics.unitDropped("audio", dropPaused)
		return
	}

	rebased := ts - e.pausedTotal
	if last, seen := e.lastAudio[sourceID]; seen && rebased < last || rebased < e.base {
		e.drop("audio", dropNonMonotonic, rebased)
		return
	}
	if !track.ReadyForMoreData() {
		e.drop("audio", dropNotReady, rebased)
		return
	}
	if err := track.Append(samples, rebased); err != nil {
		e.log.Debug().Err(err).Str("track", sourceID).Msg("audio append failed, dropping")
		e.cfg.Metrics.unitDropped("audio", dropNotReady)
		return
	}
	e.lastAudio[sourceID] = rebased
	if e.video == nil {
		e.lastEmitted = max(e.lastEmitted, rebased+samples.Duration())
	}
	e.cfg.Metrics.audioSampleAppended(sourceID)
}

func (e *RecordingEncoder) drop(kind, reason string, ts time.Duration) {
	e.cfg.Metrics.unitDropped(kind, reason)
	e.log.Debug().Str("kind", kind).Str("reason", reason).Dur("ts", ts).Msg("dropped")
}

// Pause stops appending. Frames keep advancing the raw clock while paused,
// and Resume subtracts the paused span from every later timestamp.
func (e *RecordingEncoder) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.writer == nil {
		return ErrNotRecording
	}
	if !e.paused {
		e.paused = true
		e.pauseStart = e.lastRaw
	}
	return nil
}

// Resume continues a paused recording.
func (e *RecordingEncoder) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.writer == nil {
		return ErrNotRecording
	}
	if e.paused {
		if e.clockOpen {
			e.pausedTotal += e.lastRaw - e.pauseStart
		}
		e.paused = false
	}
	return nil
}

// Duration returns the recorded duration excluding paused time.
func (e *RecordingEncoder) Duration() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.durationLocked()
}

func (e *RecordingEncoder) durationLocked() time.Duration {
	if !e.clockOpen || e.lastEmitted < e.base {
		return 0
	}
	return e.lastEmitted - e.base
}

// FinishRecording finalizes the container. If the clock never opened the
// container is cancelled instead and Cancelled is set. Encoder state is
// released in every case.
func (e *RecordingEncoder) FinishRecording(ctx context.Context) (RecordingResult, error) {
	e.mu.Lock()
	w := e.writer
	if w == nil {
		e.mu.Unlock()
		return RecordingResult{}, ErrNotRecording
	}
	res := RecordingResult{URL: e.url, Duration: e.durationLocked()}
	clockOpen := e.clockOpen
	video, audio := e.video, e.audio
	e.resetLocked()
	e.mu.Unlock()

	if !clockOpen {
		if err := w.Cancel(); err != nil {
			e.log.Warn().Err(err).Str("url", res.URL).Msg("cancel empty recording")
		}
		res.Cancelled = true
		e.log.Info().Str("url", res.URL).Msg("recording cancelled: nothing appended")
		return res, nil
	}

	if video != nil {
		video.MarkFinished()
	}
	for _, t := range audio {
		if t.ReadyForMoreData() {
			t.MarkFinished()
		}
	}
	if err := w.Finish(ctx); err != nil {
		return res, fmt.Errorf("%w: %w", ErrWriterFailed, err)
	}
	e.log.Info().Str("url", res.URL).Dur("duration", res.Duration).Msg("recording finished")
	return res, nil
}

// StartStreaming starts the live sink. It is independent of the local
// recording and may run without one.
func (e *RecordingEncoder) StartStreaming(ctx context.Context, destination, streamKey string) error {
	return e.live.Start(ctx, destination, streamKey)
}

// StopStreaming stops the live sink.
func (e *RecordingEncoder) StopStreaming() error {
	return e.live.Stop()
}

// IsStreaming reports whether the live sink is active.
func (e *RecordingEncoder) IsStreaming() bool {
	return e.live.IsActive()
}

// LiveStats returns the live sink's statistics.
func (e *RecordingEncoder) LiveStats() LiveStats {
	return e.live.Stats()
}
