package capture

import (
	"fmt"
	"io"
	"sync"
)

// VideoEncoderConfig configures a video encoder.
type VideoEncoderConfig struct {
	Codec    VideoCodec // Codec type (H264)
	Provider Provider   // Provider to use (ProviderAuto = library chooses)

	Width      int // Frame width
	Height     int // Frame height
	FPS        int // Target framerate
	BitrateBps int // Target bitrate in bits per second

	KeyframeInterval int             // Keyframe interval in frames (0 = encoder default)
	RateControlMode  RateControlMode // Rate control mode
	Threads          int             // Encoder threads (0 = auto)
	H264Profile      H264Profile     // H.264 profile
}

// DefaultVideoEncoderConfig returns a default encoder configuration.
func DefaultVideoEncoderConfig(codec VideoCodec, width, height int) VideoEncoderConfig {
	return VideoEncoderConfig{
		Codec:            codec,
		Provider:         ProviderAuto,
		Width:            width,
		Height:           height,
		FPS:              30,
		BitrateBps:       4_500_000,
		KeyframeInterval: 60, // 2s GOP at 30fps
		RateControlMode:  RateControlCBR,
		H264Profile:      H264ProfileMain,
	}
}

// EncoderStats provides encoding metrics.
type EncoderStats struct {
	FramesEncoded    uint64 // Total frames encoded
	KeyframesEncoded uint64 // Total keyframes encoded
	BytesEncoded     uint64 // Total bytes of encoded data
	DroppedFrames    uint64 // Frames the encoder produced no output for
}

// VideoEncoder encodes raw video frames to an Annex-B bitstream.
type VideoEncoder interface {
	io.Closer

	// Encode encodes a video frame.
	// Returns nil if the encoder is buffering and no output is ready.
	// The returned EncodedFrame data is valid until the next Encode() call.
	Encode(frame *VideoFrame) (*EncodedFrame, error)

	// RequestKeyframe forces the next frame to be a keyframe.
	RequestKeyframe()

	// ParameterSets returns the SPS and PPS (without start codes) once known.
	ParameterSets() (sps, pps []byte)

	Provider() Provider
	Config() VideoEncoderConfig
	Stats() EncoderStats
}

// AudioEncoderConfig configures an audio encoder.
type AudioEncoderConfig struct {
	Codec    AudioCodec // Codec type (AAC)
	Provider Provider   // Provider to use (ProviderAuto = library chooses)

	SampleRate int // Sample rate (e.g., 48000)
	Channels   int // Number of channels (1 or 2)
	BitrateBps int // Target bitrate in bps
}

// DefaultAudioEncoderConfig returns a default audio encoder configuration.
func DefaultAudioEncoderConfig(codec AudioCodec) AudioEncoderConfig {
	return AudioEncoderConfig{
		Codec:      codec,
		Provider:   ProviderAuto,
		SampleRate: TargetSampleRate,
		Channels:   TargetChannels,
		BitrateBps: 128_000,
	}
}

// AudioStreamDescription describes the encoded audio stream as reported by
// the encoder, independent of its magic cookie.
type AudioStreamDescription struct {
	SampleRate float64
	Channels   int
}

// AudioEncoderStats provides audio encoding metrics.
type AudioEncoderStats struct {
	FramesEncoded  uint64
	BytesEncoded   uint64
	SamplesEncoded uint64
}

// AudioEncoder encodes interleaved S16 samples into AAC access units.
type AudioEncoder interface {
	io.Closer

	// Encode buffers samples and returns the next access unit, or nil when
	// fewer than one frame (1024 samples) is buffered. Passing nil samples
	// drains further frames already buffered by a large input.
	Encode(samples *AudioSamples) (*EncodedAudio, error)

	// MagicCookie returns the encoder-supplied AudioSpecificConfig, if any.
	MagicCookie() []byte

	// StreamDescription returns the encoded stream parameters, if known.
	StreamDescription() *AudioStreamDescription

	Provider() Provider
	Config() AudioEncoderConfig
	Stats() AudioEncoderStats
}

// VideoEncoderFactory creates video encoders. Components take one so callers
// can inject implementations other than the registered providers.
type VideoEncoderFactory func(VideoEncoderConfig) (VideoEncoder, error)

// AudioEncoderFactory creates audio encoders.
type AudioEncoderFactory func(AudioEncoderConfig) (AudioEncoder, error)

// --- Registry ---

type encoderRegistry struct {
	mu sync.RWMutex

	// Provider-aware registry: codec -> provider -> factory
	videoProviders map[VideoCodec]map[Provider]VideoEncoderFactory
	audioProviders map[AudioCodec]map[Provider]AudioEncoderFactory

	// Default provider per codec
	videoDefaults map[VideoCodec]Provider
	audioDefaults map[AudioCodec]Provider
}

var globalEncoderRegistry = &encoderRegistry{
	videoProviders: make(map[VideoCodec]map[Provider]VideoEncoderFactory),
	audioProviders: make(map[AudioCodec]map[Provider]AudioEncoderFactory),
	videoDefaults:  make(map[VideoCodec]Provider),
	audioDefaults:  make(map[AudioCodec]Provider),
}

// registerVideoEncoder registers a video encoder factory for a codec+provider.
func registerVideoEncoder(codec VideoCodec, provider Provider, factory VideoEncoderFactory) {
	if !provider.CanEncode() {
		panic("capture: " + provider.String() + " registered as an encoder")
	}
	globalEncoderRegistry.mu.Lock()
	defer globalEncoderRegistry.mu.Unlock()

	if globalEncoderRegistry.videoProviders[codec] == nil {
		globalEncoderRegistry.videoProviders[codec] = make(map[Provider]VideoEncoderFactory)
	}
	globalEncoderRegistry.videoProviders[codec][provider] = factory

	// Prefer BSD (permissive) license providers
	current, exists := globalEncoderRegistry.videoDefaults[codec]
	if !exists || (provider.License().Permissive() && !current.License().Permissive()) {
		globalEncoderRegistry.videoDefaults[codec] = provider
	}
}

// registerAudioEncoder registers an audio encoder factory for a codec+provider.
func registerAudioEncoder(codec AudioCodec, provider Provider, factory AudioEncoderFactory) {
	if !provider.CanEncode() {
		panic("capture: " + provider.String() + " registered as an encoder")
	}
	globalEncoderRegistry.mu.Lock()
	defer globalEncoderRegistry.mu.Unlock()

	if globalEncoderRegistry.audioProviders[codec] == nil {
		globalEncoderRegistry.audioProviders[codec] = make(map[Provider]AudioEncoderFactory)
	}
	globalEncoderRegistry.audioProviders[codec][provider] = factory

	current, exists := globalEncoderRegistry.audioDefaults[codec]
	if !exists || (provider.License().Permissive() && !current.License().Permissive()) {
		globalEncoderRegistry.audioDefaults[codec] = provider
	}
}

// SetDefaultVideoEncoderProvider sets the default provider for a video codec.
func SetDefaultVideoEncoderProvider(codec VideoCodec, provider Provider) {
	globalEncoderRegistry.mu.Lock()
	defer globalEncoderRegistry.mu.Unlock()
	globalEncoderRegistry.videoDefaults[codec] = provider
}

// NewVideoEncoder creates a video encoder from the registered providers.
func NewVideoEncoder(config VideoEncoderConfig) (VideoEncoder, error) {
	globalEncoderRegistry.mu.RLock()
	defer globalEncoderRegistry.mu.RUnlock()

	providers := globalEncoderRegistry.videoProviders[config.Codec]
	if providers == nil {
		return nil, fmt.Errorf("%w: no providers for %s", ErrCodecNotSupported, config.Codec)
	}

	p := config.Provider
	if p == ProviderAuto {
		p = globalEncoderRegistry.videoDefaults[config.Codec]
	}

	factory, ok := providers[p]
	if !ok || !p.Available() {
		return nil, fmt.Errorf("%w: %s for %s", ErrProviderNotFound, p, config.Codec)
	}

	return factory(config)
}

// NewAudioEncoder creates an audio encoder from the registered providers.
func NewAudioEncoder(config AudioEncoderConfig) (AudioEncoder, error) {
	globalEncoderRegistry.mu.RLock()
	defer globalEncoderRegistry.mu.RUnlock()

	providers := globalEncoderRegistry.audioProviders[config.Codec]
	if providers == nil {
		return nil, fmt.Errorf("%w: no providers for %s", ErrCodecNotSupported, config.Codec)
	}

	p := config.Provider
	if p == ProviderAuto {
		p = globalEncoderRegistry.audioDefaults[config.Codec]
	}

	factory, ok := providers[p]
	if !ok || !p.Available() {
		return nil, fmt.Errorf("%w: %s for %s", ErrProviderNotFound, p, config.Codec)
	}

	return factory(config)
}

// VideoEncoderProviders returns available providers for a video codec.
func VideoEncoderProviders(codec VideoCodec) []Provider {
	globalEncoderRegistry.mu.RLock()
	defer globalEncoderRegistry.mu.RUnlock()

	providers := globalEncoderRegistry.videoProviders[codec]
	result := make([]Provider, 0, len(providers))
	for p := range providers {
		if p.Available() {
			result = append(result, p)
		}
	}
	return result
}

// AudioEncoderProviders returns available providers for an audio codec.
func AudioEncoderProviders(codec AudioCodec) []Provider {
	globalEncoderRegistry.mu.RLock()
	defer globalEncoderRegistry.mu.RUnlock()

	providers := globalEncoderRegistry.audioProviders[codec]
	result := make([]Provider, 0, len(providers))
	for p := range providers {
		if p.Available() {
			result = append(result, p)
		}
	}
	return result
}
