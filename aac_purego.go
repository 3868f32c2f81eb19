//go:build (darwin || linux) && !noaac

// AAC-LC encoding via libmedia_aac (fdk-aac) using purego.

package capture

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

var (
	mediaAACOnce    sync.Once
	mediaAACHandle  uintptr
	mediaAACInitErr error
)

// libmedia_aac function pointers
var (
	mediaAACEncoderCreate  func(sampleRate, channels, bitrate int32) uint64
	mediaAACEncoderEncode  func(encoder uint64, pcm uintptr, samplesPerChannel int32, outData uintptr, outCapacity int32) int32
	mediaAACEncoderGetASC  func(encoder uint64, out uintptr, capacity int32, outLen uintptr) int32
	mediaAACEncoderDestroy func(encoder uint64)

	mediaAACGetError         func() uintptr
	mediaAACEncoderAvailable func() int32
)

func loadMediaAAC() error {
	mediaAACOnce.Do(func() {
		mediaAACHandle, mediaAACInitErr = dlopenFirst("libmedia_aac", "MEDIA_AAC_LIB_PATH", func(h uintptr) error {
			purego.RegisterLibFunc(&mediaAACEncoderCreate, h, "media_aac_encoder_create")
			purego.RegisterLibFunc(&mediaAACEncoderEncode, h, "media_aac_encoder_encode")
			purego.RegisterLibFunc(&mediaAACEncoderGetASC, h, "media_aac_encoder_get_asc")
			purego.RegisterLibFunc(&mediaAACEncoderDestroy, h, "media_aac_encoder_destroy")
			purego.RegisterLibFunc(&mediaAACGetError, h, "media_aac_get_error")
			purego.RegisterLibFunc(&mediaAACEncoderAvailable, h, "media_aac_encoder_available")
			return nil
		})
	})
	return mediaAACInitErr
}

// IsAACEncoderAvailable checks if the AAC encoder is available.
func IsAACEncoderAvailable() bool {
	return loadMediaAAC() == nil && mediaAACEncoderAvailable() != 0
}

// AACEncoder implements AudioEncoder for AAC-LC (fdk-aac).
type AACEncoder struct {
	config AudioEncoderConfig

	handle    uint64
	pending   []byte // buffered S16 input, interleaved
	outputBuf []byte
	cookie    []byte
	position  uint32 // samples emitted so far

	stats AudioEncoderStats
	mu    sync.Mutex
}

// NewAACEncoder creates a new AAC encoder. Input must be S16 at the
// configured rate and channel count.
func NewAACEncoder(config AudioEncoderConfig) (*AACEncoder, error) {
	if err := loadMediaAAC(); err != nil {
		return nil, fmt.Errorf("AAC encoder not available: %w", err)
	}
	if mediaAACEncoderAvailable() == 0 {
		return nil, errors.New("AAC encoder not available (fdk-aac not compiled)")
	}
	if config.SampleRate <= 0 {
		config.SampleRate = TargetSampleRate
	}
	if config.Channels <= 0 {
		config.Channels = TargetChannels
	}
	if config.BitrateBps <= 0 {
		config.BitrateBps = 128_000
	}

	handle := mediaAACEncoderCreate(int32(config.SampleRate), int32(config.Channels), int32(config.BitrateBps))
	if handle == 0 {
		return nil, fmt.Errorf("failed to create AAC encoder: %s", nativeError(mediaAACGetError))
	}

	enc := &AACEncoder{
		config:    config,
		handle:    handle,
		outputBuf: make([]byte, 768*config.Channels), // max AAC frame size per channel
	}

	asc := make([]byte, 64)
	var ascLen int32
	if mediaAACEncoderGetASC(handle, uintptr(unsafe.Pointer(&asc[0])), int32(len(asc)), uintptr(unsafe.Pointer(&ascLen))) == 0 && ascLen > 0 {
		enc.cookie = append([]byte(nil), asc[:ascLen]...)
	}
	return enc, nil
}

// Encode implements AudioEncoder.
func (e *AACEncoder) Encode(samples *AudioSamples) (*EncodedAudio, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.handle == 0 {
		return nil, fmt.Errorf("encoder not initialized")
	}
	if samples != nil {
		if samples.Format != AudioFormatS16 || samples.SampleRate != e.config.SampleRate || samples.Channels != e.config.Channels {
			return nil, fmt.Errorf("%w: AAC encoder needs S16 %dHz/%dch", ErrUnsupportedFormat, e.config.SampleRate, e.config.Channels)
		}
		e.pending = append(e.pending, samples.Data...)
	}

	frameBytes := AACFrameSamples * e.config.Channels * 2
	if len(e.pending) < frameBytes {
		return nil, nil
	}

	n := mediaAACEncoderEncode(
		e.handle,
		uintptr(unsafe.Pointer(&e.pending[0])),
		AACFrameSamples,
		uintptr(unsafe.Pointer(&e.outputBuf[0])),
		int32(len(e.outputBuf)),
	)
	runtime.KeepAlive(e.pending)
	e.pending = append(e.pending[:0], e.pending[frameBytes:]...)
	if n < 0 {
		return nil, fmt.Errorf("encode failed: %s", nativeError(mediaAACGetError))
	}

	ts := e.position
	e.position += AACFrameSamples
	e.stats.SamplesEncoded += AACFrameSamples
	if n == 0 {
		return nil, nil
	}
	e.stats.FramesEncoded++
	e.stats.BytesEncoded += uint64(n)

	return &EncodedAudio{Data: e.outputBuf[:n], Timestamp: ts, Duration: AACFrameSamples}, nil
}

// MagicCookie implements AudioEncoder.
func (e *AACEncoder) MagicCookie() []byte { return e.cookie }

// StreamDescription implements AudioEncoder.
func (e *AACEncoder) StreamDescription() *AudioStreamDescription {
	return &AudioStreamDescription{SampleRate: float64(e.config.SampleRate), Channels: e.config.Channels}
}

// Provider implements AudioEncoder.
func (e *AACEncoder) Provider() Provider { return ProviderFDKAAC }

// Config implements AudioEncoder.
func (e *AACEncoder) Config() AudioEncoderConfig { return e.config }

// Stats implements AudioEncoder.
func (e *AACEncoder) Stats() AudioEncoderStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// Close implements AudioEncoder.
func (e *AACEncoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handle != 0 {
		mediaAACEncoderDestroy(e.handle)
		e.handle = 0
	}
	return nil
}

func init() {
	if IsAACEncoderAvailable() {
		setProviderAvailable(ProviderFDKAAC)
		registerAudioEncoder(AudioCodecAAC, ProviderFDKAAC, func(config AudioEncoderConfig) (AudioEncoder, error) {
			return NewAACEncoder(config)
		})
	}
}
