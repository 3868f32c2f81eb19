package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

// RemoteFrameSink receives decoded frames of remote cameras.
// RecordingSession implements it.
type RemoteFrameSink interface {
	RegisterRemoteSource(info RemoteSourceInfo)
	UnregisterRemoteSource(id string)
	DeliverRemoteFrame(id string, frame *VideoFrame)
}

// RemoteFeedConfig configures a RemoteCameraFeed.
type RemoteFeedConfig struct {
	Logger  zerolog.Logger
	Metrics *Metrics

	// Decoders creates the H.264 decoder of each track (default: NewVideoDecoder).
	Decoders VideoDecoderFactory
}

// RemoteCameraFeed turns incoming H.264 RTP tracks into remote camera
// sources of a sink.
type RemoteCameraFeed struct {
	sink RemoteFrameSink
	cfg  RemoteFeedConfig
	log  zerolog.Logger
}

// NewRemoteCameraFeed creates a feed delivering into sink.
func NewRemoteCameraFeed(sink RemoteFrameSink, cfg RemoteFeedConfig) *RemoteCameraFeed {
	if cfg.Decoders == nil {
		cfg.Decoders = NewVideoDecoder
	}
	return &RemoteCameraFeed{sink: sink, cfg: cfg, log: cfg.Logger}
}

// HandleTrack reads track until it ends or ctx is done. pli asks the sender
// for a keyframe and may be nil. Only H.264 video tracks are accepted.
func (f *RemoteCameraFeed) HandleTrack(ctx context.Context, track *webrtc.TrackRemote, pli func()) error {
	if track.Kind() != webrtc.RTPCodecTypeVideo {
		return fmt.Errorf("%w: %s track", ErrNotSupported, track.Kind())
	}
	if mime := track.Codec().MimeType; !strings.EqualFold(mime, webrtc.MimeTypeH264) {
		return fmt.Errorf("%w: remote codec %s", ErrNotSupported, mime)
	}
	id := track.StreamID()
	if id == "" {
		id = track.ID()
	}
	read := func() (*rtp.Packet, error) {
		pkt, _, err := track.ReadRTP()
		return pkt, err
	}
	return f.Run(ctx, RemoteSourceInfo{ID: id, Label: track.RID()}, read, pli)
}

// Run registers info with the sink, feeds it the frames decoded from the
// packets read returns, and unregisters it when read fails or ctx is done.
func (f *RemoteCameraFeed) Run(ctx context.Context, info RemoteSourceInfo, read func() (*rtp.Packet, error), pli func()) error {
	dec, err := f.cfg.Decoders(VideoDecoderConfig{Codec: VideoCodecH264})
	if err != nil {
		return fmt.Errorf("remote %s: %w", info.ID, err)
	}
	defer dec.Close()

	log := f.log.With().Str("source_id", info.ID).Logger()
	f.sink.RegisterRemoteSource(info)
	defer f.sink.UnregisterRemoteSource(info.ID)

	depack := NewH264Depacketizer()
	haveKey := false
	requestKey := func() {
		if pli != nil {
			pli()
		}
	}
	requestKey()

	for ctx.Err() == nil {
		pkt, err := read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				log.Info().Msg("remote track ended")
				return nil
			}
			return fmt.Errorf("remote %s: read rtp: %w", info.ID, err)
		}

		unit, err := depack.Depacketize(pkt)
		if err != nil {
			log.Debug().Err(err).Msg("bad rtp payload")
			haveKey = false
			requestKey()
			continue
		}
		if unit == nil {
			continue
		}
		if !haveKey {
			if !unit.IsKeyframe() {
				f.cfg.Metrics.unitDropped("remote_video", dropNotReady)
				continue
			}
			haveKey = true
		}

		frame, err := dec.Decode(unit)
		if err != nil {
			log.Debug().Err(err).Msg("decode failed, waiting for keyframe")
			f.cfg.Metrics.unitDropped("remote_video", dropDecodeFailed)
			haveKey = false
			requestKey()
			continue
		}
		if frame == nil {
			continue
		}
		frame.Timestamp = int64(MonotonicNow())
		f.sink.DeliverRemoteFrame(info.ID, frame)
	}
	return ctx.Err()
}
