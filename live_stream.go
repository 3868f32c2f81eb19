package capture

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// LiveStreamConfig configures the live re-encode path.
type LiveStreamConfig struct {
	Logger  zerolog.Logger
	Metrics *Metrics

	// NewPublisher picks the publisher for a destination (default:
	// NewPublisher).
	NewPublisher func(destination string, logger zerolog.Logger) (Publisher, error)

	VideoEncoders VideoEncoderFactory // default: NewVideoEncoder
	AudioEncoders AudioEncoderFactory // default: NewAudioEncoder

	Width        int // advertised in onMetaData; 0 = unknown
	Height       int
	FPS          int
	VideoBitrate int // bps
	AudioBitrate int // bps

	KeyframeInterval int // frames (default: 2s worth)
	VideoQueueDepth  int // default: 4
	AudioQueueDepth  int // default: 32

	// Metadata fields appended to onMetaData.
	Metadata []MetadataField
}

// DefaultLiveStreamConfig returns a 1080p30 stream at 4.5 Mbps / 128 kbps.
func DefaultLiveStreamConfig() LiveStreamConfig {
	return LiveStreamConfig{
		NewPublisher:    NewPublisher,
		VideoEncoders:   NewVideoEncoder,
		AudioEncoders:   NewAudioEncoder,
		Width:           1920,
		Height:          1080,
		FPS:             30,
		VideoBitrate:    4_500_000,
		AudioBitrate:    128_000,
		VideoQueueDepth: 4,
		AudioQueueDepth: 32,
	}
}

// LiveStats is a snapshot of the live sink.
type LiveStats struct {
	Active      bool
	StartedAt   time.Time
	VideoFrames uint64 // video frames sent
	AudioFrames uint64 // audio access units sent
	Dropped     uint64 // units dropped at the input queues or before headers
	SendErrors  uint64
	Publisher   PublisherStats
}

// LiveStreamer re-encodes raw frames and samples and publishes them as FLV
// tags. It keeps its own timestamp base and encoders, so its pauses, clock
// and failures never reach the local recording.
type LiveStreamer struct {
	cfg LiveStreamConfig

	mu   sync.RWMutex
	sess *liveSession
}

// NewLiveStreamer creates an inactive streamer.
func NewLiveStreamer(cfg LiveStreamConfig) *LiveStreamer {
	d := DefaultLiveStreamConfig()
	if cfg.NewPublisher == nil {
		cfg.NewPublisher = d.NewPublisher
	}
	if cfg.VideoEncoders == nil {
		cfg.VideoEncoders = d.VideoEncoders
	}
	if cfg.AudioEncoders == nil {
		cfg.AudioEncoders = d.AudioEncoders
	}
	if cfg.FPS <= 0 {
		cfg.FPS = d.FPS
	}
	if cfg.VideoBitrate <= 0 {
		cfg.VideoBitrate = d.VideoBitrate
	}
	if cfg.AudioBitrate <= 0 {
		cfg.AudioBitrate = d.AudioBitrate
	}
	if cfg.KeyframeInterval <= 0 {
		cfg.KeyframeInterval = 2 * cfg.FPS
	}
	if cfg.VideoQueueDepth <= 0 {
		cfg.VideoQueueDepth = d.VideoQueueDepth
	}
	if cfg.AudioQueueDepth <= 0 {
		cfg.AudioQueueDepth = d.AudioQueueDepth
	}
	return &LiveStreamer{cfg: cfg}
}

// Start connects to destination and starts the live encoders. Sequence
// headers are sent again after every Start.
func (s *LiveStreamer) Start(ctx context.Context, destination, streamKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess != nil {
		return ErrStreamingActive
	}

	pub, err := s.cfg.NewPublisher(destination, s.cfg.Logger)
	if err != nil {
		return err
	}
	if err := pub.Connect(ctx, destination, streamKey); err != nil {
		return fmt.Errorf("live connect: %w", err)
	}

	acfg := DefaultAudioEncoderConfig(AudioCodecAAC)
	acfg.BitrateBps = s.cfg.AudioBitrate
	aenc, err := s.cfg.AudioEncoders(acfg)
	if err != nil {
		pub.Disconnect()
		return fmt.Errorf("live audio encoder: %w", err)
	}

	md := DefaultStreamMetadata(s.cfg.Width, s.cfg.Height, float64(s.cfg.FPS), s.cfg.VideoBitrate, s.cfg.AudioBitrate)
	md.Custom = s.cfg.Metadata
	if err := pub.SendMetadata(CreateMetadata(md)); err != nil {
		s.cfg.Logger.Warn().Err(err).Str("destination", destination).Msg("live metadata not sent")
		s.cfg.Metrics.livePublishFailed()
	}

	wctx, cancel := context.WithCancel(context.Background())
	sess := &liveSession{
		cfg:       &s.cfg,
		log:       s.cfg.Logger.With().Str("destination", destination).Logger(),
		pub:       pub,
		aenc:      aenc,
		cancel:    cancel,
		videoQ:    make(chan *VideoFrame, s.cfg.VideoQueueDepth),
		audioQ:    make(chan *AudioSamples, s.cfg.AudioQueueDepth),
		startedAt: time.Now(),
	}
	sess.wg.Add(2)
	go sess.runVideo(wctx)
	go sess.runAudio(wctx)

	s.sess = sess
	s.cfg.Metrics.setStreaming(true)
	s.cfg.Logger.Info().Str("destination", destination).Msg("live streaming started")
	return nil
}

// IsActive reports whether a stream is running.
func (s *LiveStreamer) IsActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sess != nil
}

// PushVideo queues a copy of frame for the live encoder. It never blocks;
// frames are dropped when the queue is full or no stream is active.
func (s *LiveStreamer) PushVideo(frame *VideoFrame) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.sess == nil || frame == nil {
		return
	}
	s.sess.observe(frame.PTS())
	select {
	case s.sess.videoQ <- frame.Clone():
	default:
		s.sess.dropped.Add(1)
		s.cfg.Metrics.unitDropped("live_video", dropQueueFull)
	}
}

// PushAudio queues a copy of samples (48 kHz stereo S16) for the live
// encoder.
func (s *LiveStreamer) PushAudio(samples *AudioSamples) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.sess == nil || samples == nil {
		return
	}
	s.sess.observe(samples.PTS())
	select {
	case s.sess.audioQ <- samples.Clone():
	default:
		s.sess.dropped.Add(1)
		s.cfg.Metrics.unitDropped("live_audio", dropQueueFull)
	}
}

// Stop disconnects the publisher and tears down the encoders.
func (s *LiveStreamer) Stop() error {
	s.mu.Lock()
	sess := s.sess
	s.sess = nil
	s.mu.Unlock()
	if sess == nil {
		return ErrNotStreaming
	}

	sess.cancel()
	sess.wg.Wait()
	s.cfg.Metrics.setStreaming(false)
	if err := sess.pub.Disconnect(); err != nil {
		return fmt.Errorf("live disconnect: %w", err)
	}
	s.cfg.Logger.Info().Msg("live streaming stopped")
	return nil
}

// Stats returns a snapshot of the active stream, or a zero value.
func (s *LiveStreamer) Stats() LiveStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.sess == nil {
		return LiveStats{}
	}
	return s.sess.stats()
}

type liveSession struct {
	cfg *LiveStreamConfig
	log zerolog.Logger
	pub Publisher

	aenc   AudioEncoder
	cancel context.CancelFunc
	wg     sync.WaitGroup
	videoQ chan *VideoFrame
	audioQ chan *AudioSamples

	baseMu   sync.Mutex
	base     time.Duration
	haveBase bool

	startedAt   time.Time
	videoFrames atomic.Uint64
	audioFrames atomic.Uint64
	dropped     atomic.Uint64
	sendErrors  atomic.Uint64
}

// observe sets the stream's timestamp base from the first pushed unit.
func (l *liveSession) observe(pts time.Duration) {
	l.baseMu.Lock()
	if !l.haveBase {
		l.base, l.haveBase = pts, true
	}
	l.baseMu.Unlock()
}

func (l *liveSession) ms(pts time.Duration) uint32 {
	l.baseMu.Lock()
	d := pts - l.base
	l.baseMu.Unlock()
	if d < 0 {
		return 0
	}
	return uint32(d / time.Millisecond)
}

func (l *liveSession) stats() LiveStats {
	return LiveStats{
		Active:      true,
		StartedAt:   l.startedAt,
		VideoFrames: l.videoFrames.Load(),
		AudioFrames: l.audioFrames.Load(),
		Dropped:     l.dropped.Load(),
		SendErrors:  l.sendErrors.Load(),
		Publisher:   l.pub.Stats(),
	}
}

func (l *liveSession) sendFailed(kind string, err error) {
	l.sendErrors.Add(1)
	l.cfg.Metrics.livePublishFailed()
	l.log.Warn().Err(err).Str("kind", kind).Msg("live send failed, dropping")
}

func (l *liveSession) send(header bool, t TagType, payload []byte, ts uint32) bool {
	var err error
	if header {
		err = l.pub.SendSequenceHeader(t, payload, ts)
	} else {
		err = l.pub.SendFrame(t, payload, ts)
	}
	if err != nil {
		l.sendFailed(t.String(), err)
		return false
	}
	l.cfg.Metrics.liveTagSent(t)
	return true
}

func (l *liveSession) runVideo(ctx context.Context) {
	defer l.wg.Done()

	var (
		enc        VideoEncoder
		headerSent bool
		lastTS     uint32
	)
	defer func() {
		if enc != nil {
			enc.Close()
		}
	}()

	for {
		var frame *VideoFrame
		select {
		case <-ctx.Done():
			return
		case frame = <-l.videoQ:
		}

		i420, err := ToI420(frame)
		if err != nil {
			l.log.Debug().Err(err).Msg("live video: unsupported frame")
			continue
		}
		if enc == nil {
			cfg := DefaultVideoEncoderConfig(VideoCodecH264, i420.Width, i420.Height)
			cfg.FPS = l.cfg.FPS
			cfg.BitrateBps = l.cfg.VideoBitrate
			cfg.KeyframeInterval = l.cfg.KeyframeInterval
			if enc, err = l.cfg.VideoEncoders(cfg); err != nil {
				enc = nil
				l.log.Warn().Err(err).Msg("live video encoder unavailable")
				continue
			}
		}

		out, err := enc.Encode(i420)
		if err != nil {
			l.log.Warn().Err(err).Msg("live video encode failed")
			continue
		}
		if out == nil || len(out.Data) == 0 {
			continue
		}

		ts := l.ms(frame.PTS())
		if ts < lastTS {
			ts = lastTS
		}
		key := out.IsKeyframe() || IsKeyframeAnnexB(out.Data)

		if !headerSent {
			if !key {
				l.dropped.Add(1)
				l.cfg.Metrics.unitDropped("live_video", dropNoSequenceHeader)
				enc.RequestKeyframe()
				continue
			}
			sps, pps := enc.ParameterSets()
			if sps == nil || pps == nil {
				sps, pps = ExtractParameterSets(out.Data)
			}
			rec, err := AVCDecoderConfigurationRecord(sps, pps)
			if err != nil {
				l.log.Warn().Err(err).Msg("live video sequence header unavailable")
				enc.RequestKeyframe()
				continue
			}
			if !l.send(true, TagTypeVideo, VideoTagPayload(true, AVCPacketSequenceHeader, rec), ts) {
				enc.RequestKeyframe()
				continue
			}
			headerSent = true
		}

		if l.send(false, TagTypeVideo, VideoTagPayload(key, AVCPacketNALU, AnnexBToAVCC(out.Data)), ts) {
			l.videoFrames.Add(1)
		}
		lastTS = ts
	}
}

func (l *liveSession) runAudio(ctx context.Context) {
	defer l.wg.Done()
	defer l.aenc.Close()

	var (
		headerSent bool
		origin     time.Duration
		started    bool
		lastTS     uint32
	)

	for {
		var samples *AudioSamples
		select {
		case <-ctx.Done():
			return
		case samples = <-l.audioQ:
		}
		if !started {
			origin, started = samples.PTS(), true
		}

		au, err := l.aenc.Encode(samples)
		for ; err == nil && au != nil; au, err = l.aenc.Encode(nil) {
			ts := l.ms(origin + time.Duration(au.Timestamp)*time.Second/TargetSampleRate)
			if ts < lastTS {
				ts = lastTS
			}
			if !headerSent {
				asc := BuildAudioSpecificConfig(l.aenc.MagicCookie(), l.aenc.StreamDescription())
				if !l.send(true, TagTypeAudio, AudioTagPayload(AACPacketSequenceHeader, asc), ts) {
					continue
				}
				headerSent = true
			}
			if l.send(false, TagTypeAudio, AudioTagPayload(AACPacketRaw, au.Data), ts) {
				l.audioFrames.Add(1)
			}
			lastTS = ts
		}
		if err != nil {
			l.log.Warn().Err(err).Msg("live audio encode failed")
		}
	}
}
