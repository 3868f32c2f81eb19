package capture

import (
	"fmt"
	"io"
	"sync"
)

// VideoDecoderConfig configures a video decoder.
type VideoDecoderConfig struct {
	Codec    VideoCodec
	Provider Provider
	Threads  int // Decoder threads (0 = auto)
}

// DecoderStats provides decoding metrics.
type DecoderStats struct {
	FramesDecoded    uint64
	KeyframesDecoded uint64
	BytesDecoded     uint64
	CorruptedFrames  uint64
}

// VideoDecoder decodes an Annex-B access unit into an I420 frame.
type VideoDecoder interface {
	io.Closer

	// Decode returns nil if the decoder is buffering and no picture is ready.
	// The returned frame is owned by the decoder and valid until the next call.
	Decode(encoded *EncodedFrame) (*VideoFrame, error)

	Provider() Provider
	Stats() DecoderStats
}

// VideoDecoderFactory creates video decoders.
type VideoDecoderFactory func(VideoDecoderConfig) (VideoDecoder, error)

var decoderRegistry = struct {
	mu        sync.RWMutex
	providers map[VideoCodec]map[Provider]VideoDecoderFactory
	defaults  map[VideoCodec]Provider
}{
	providers: make(map[VideoCodec]map[Provider]VideoDecoderFactory),
	defaults:  make(map[VideoCodec]Provider),
}

func registerVideoDecoder(codec VideoCodec, provider Provider, factory VideoDecoderFactory) {
	if !provider.CanDecode() {
		panic("capture: " + provider.String() + " registered as a decoder")
	}
	decoderRegistry.mu.Lock()
	defer decoderRegistry.mu.Unlock()

	if decoderRegistry.providers[codec] == nil {
		decoderRegistry.providers[codec] = make(map[Provider]VideoDecoderFactory)
	}
	decoderRegistry.providers[codec][provider] = factory
	if _, ok := decoderRegistry.defaults[codec]; !ok {
		decoderRegistry.defaults[codec] = provider
	}
}

// NewVideoDecoder creates a video decoder from the registered providers.
func NewVideoDecoder(config VideoDecoderConfig) (VideoDecoder, error) {
	decoderRegistry.mu.RLock()
	defer decoderRegistry.mu.RUnlock()

	providers := decoderRegistry.providers[config.Codec]
	if providers == nil {
		return nil, fmt.Errorf("%w: no decoders for %s", ErrCodecNotSupported, config.Codec)
	}
	p := config.Provider
	if p == ProviderAuto {
		p = decoderRegistry.defaults[config.Codec]
	}
	factory, ok := providers[p]
	if !ok || !p.Available() {
		return nil, fmt.Errorf("%w: %s for %s", ErrProviderNotFound, p, config.Codec)
	}
	return factory(config)
}
