//go:build (darwin || linux) && !noh264

// H.264 codec support via libmedia_h264 using purego.

package capture

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/ebitengine/purego"
)

// h264API is the libmedia_h264 symbol table.
type h264API struct {
	encoderCreate        func(width, height, fps, bitrateKbps, profile, threads, gop int32) uint64
	encoderEncode        func(encoder uint64, yPlane, uPlane, vPlane uintptr, yStride, uvStride, forceKeyframe int32, outData uintptr, outCapacity int32, outFrameType, outPts, outDts uintptr) int32
	encoderMaxOutputSize func(encoder uint64) int32
	encoderRequestKF     func(encoder uint64)
	encoderGetSPSPPS     func(encoder uint64, spsOut uintptr, spsCapacity int32, spsLen uintptr, ppsOut uintptr, ppsCapacity int32, ppsLen uintptr) int32
	encoderDestroy       func(encoder uint64)
	encoderAvailable     func() int32

	decoderCreate    func(threads int32) uint64
	decoderDecode    func(decoder uint64, data uintptr, dataLen int32, outY, outU, outV, outYStride, outUVStride, outWidth, outHeight uintptr) int32
	decoderDestroy   func(decoder uint64)
	decoderAvailable func() int32

	lastError func() uintptr
}

var (
	h264Once    sync.Once
	h264Lib     *h264API
	h264InitErr error
)

// Frame types reported by the encoder.
const (
	h264FrameI   = 0
	h264FrameIDR = 3
)

// maxParameterSetSize bounds the SPS and PPS copied out of the encoder.
const maxParameterSetSize = 256

// h264DecodeResult holds decoder output parameters. It must be heap
// allocated: the GC may move stack variables during the C call on arm64.
type h264DecodeResult struct {
	YPtr     uintptr
	UPtr     uintptr
	VPtr     uintptr
	YStride  int32
	UVStride int32
	Width    int32
	Height   int32
}

func loadH264() (*h264API, error) {
	h264Once.Do(func() {
		_, h264InitErr = dlopenFirst("libmedia_h264", "MEDIA_H264_LIB_PATH", func(h uintptr) error {
			api := &h264API{}
			purego.RegisterLibFunc(&api.encoderCreate, h, "media_h264_encoder_create")
			purego.RegisterLibFunc(&api.encoderEncode, h, "media_h264_encoder_encode")
			purego.RegisterLibFunc(&api.encoderMaxOutputSize, h, "media_h264_encoder_max_output_size")
			purego.RegisterLibFunc(&api.encoderRequestKF, h, "media_h264_encoder_request_keyframe")
			purego.RegisterLibFunc(&api.encoderGetSPSPPS, h, "media_h264_encoder_get_sps_pps")
			purego.RegisterLibFunc(&api.encoderDestroy, h, "media_h264_encoder_destroy")
			purego.RegisterLibFunc(&api.encoderAvailable, h, "media_h264_encoder_available")
			purego.RegisterLibFunc(&api.decoderCreate, h, "media_h264_decoder_create")
			purego.RegisterLibFunc(&api.decoderDecode, h, "media_h264_decoder_decode")
			purego.RegisterLibFunc(&api.decoderDestroy, h, "media_h264_decoder_destroy")
			purego.RegisterLibFunc(&api.decoderAvailable, h, "media_h264_decoder_available")
			purego.RegisterLibFunc(&api.lastError, h, "media_h264_get_error")
			h264Lib = api
			return nil
		})
	})
	return h264Lib, h264InitErr
}

// IsH264EncoderAvailable reports whether libmedia_h264 loaded with x264.
func IsH264EncoderAvailable() bool {
	api, err := loadH264()
	return err == nil && api.encoderAvailable() != 0
}

// IsH264DecoderAvailable reports whether libmedia_h264 loaded with OpenH264.
func IsH264DecoderAvailable() bool {
	api, err := loadH264()
	return err == nil && api.decoderAvailable() != 0
}

// H264Encoder implements VideoEncoder for H.264 (x264). Frames must match
// the configured size; the recorder scales before encoding.
type H264Encoder struct {
	api    *h264API
	config VideoEncoderConfig

	mu          sync.Mutex
	handle      uint64
	out         []byte
	sps, pps    []byte
	keyframeReq atomic.Bool

	statsMu sync.Mutex
	stats   EncoderStats
}

// NewH264Encoder creates an H.264 encoder. Zero config fields take the
// encoder defaults: 4 threads, 1 Mbps, 30 fps.
func NewH264Encoder(config VideoEncoderConfig) (*H264Encoder, error) {
	api, err := loadH264()
	if err != nil {
		return nil, fmt.Errorf("h264 encoder: %w", err)
	}
	if api.encoderAvailable() == 0 {
		return nil, fmt.Errorf("h264 encoder: %w: x264 not compiled in", ErrNotSupported)
	}
	if config.Width <= 0 || config.Height <= 0 || config.Width%2 != 0 || config.Height%2 != 0 {
		return nil, fmt.Errorf("h264 encoder: invalid size %dx%d", config.Width, config.Height)
	}
	if config.Threads <= 0 {
		config.Threads = 4
	}
	if config.BitrateBps <= 0 {
		config.BitrateBps = 1_000_000
	}
	if config.FPS <= 0 {
		config.FPS = 30
	}

	handle := api.encoderCreate(
		int32(config.Width), int32(config.Height), int32(config.FPS),
		int32(config.BitrateBps/1000),
		int32(config.H264Profile.ProfileIDC()),
		int32(config.Threads),
		int32(config.KeyframeInterval),
	)
	if handle == 0 {
		return nil, fmt.Errorf("h264 encoder: create: %s", nativeError(api.lastError))
	}
	size := api.encoderMaxOutputSize(handle)
	if size <= 0 {
		size = int32(config.Width * config.Height * 3 / 2)
	}

	e := &H264Encoder{api: api, config: config, handle: handle, out: make([]byte, size)}
	e.keyframeReq.Store(true)
	e.sps, e.pps = e.queryParameterSets()
	return e, nil
}

// queryParameterSets asks the encoder for its SPS and PPS. x264 may only
// know them after the first IDR; Encode fills them in from the bitstream.
func (e *H264Encoder) queryParameterSets() (sps, pps []byte) {
	spsBuf := make([]byte, maxParameterSetSize)
	ppsBuf := make([]byte, maxParameterSetSize)
	var spsLen, ppsLen int32
	e.api.encoderGetSPSPPS(e.handle,
		uintptr(unsafe.Pointer(&spsBuf[0])), maxParameterSetSize, uintptr(unsafe.Pointer(&spsLen)),
		uintptr(unsafe.Pointer(&ppsBuf[0])), maxParameterSetSize, uintptr(unsafe.Pointer(&ppsLen)),
	)
	if spsLen > 0 && spsLen <= maxParameterSetSize {
		sps = spsBuf[:spsLen:spsLen]
	}
	if ppsLen > 0 && ppsLen <= maxParameterSetSize {
		pps = ppsBuf[:ppsLen:ppsLen]
	}
	return sps, pps
}

// ParameterSets implements VideoEncoder.
func (e *H264Encoder) ParameterSets() (sps, pps []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sps, e.pps
}

// Encode implements VideoEncoder. The returned Data is reused by the next
// call. Timestamp is the frame's capture time on the 90kHz clock.
func (e *H264Encoder) Encode(frame *VideoFrame) (*EncodedFrame, error) {
	if frame.Format != PixelFormatI420 {
		return nil, fmt.Errorf("%w: h264 encoder needs I420, got %s", ErrUnsupportedFormat, frame.Format)
	}
	if frame.Width != e.config.Width || frame.Height != e.config.Height {
		return nil, fmt.Errorf("%w: frame %dx%d, encoder %dx%d",
			ErrUnsupportedFormat, frame.Width, frame.Height, e.config.Width, e.config.Height)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handle == 0 {
		return nil, fmt.Errorf("%w: h264 encoder closed", ErrInvalidState)
	}

	var force int32
	if e.keyframeReq.Swap(false) {
		force = 1
	}
	var frameType int32
	var pts, dts int64
	n := e.api.encoderEncode(e.handle,
		uintptr(unsafe.Pointer(&frame.Data[0][0])),
		uintptr(unsafe.Pointer(&frame.Data[1][0])),
		uintptr(unsafe.Pointer(&frame.Data[2][0])),
		int32(frame.Stride[0]), int32(frame.Stride[1]),
		force,
		uintptr(unsafe.Pointer(&e.out[0])), int32(len(e.out)),
		uintptr(unsafe.Pointer(&frameType)),
		uintptr(unsafe.Pointer(&pts)),
		uintptr(unsafe.Pointer(&dts)),
	)
	runtime.KeepAlive(frame)

	switch {
	case n < 0:
		return nil, fmt.Errorf("h264 encode: %s", nativeError(e.api.lastError))
	case n == 0:
		e.statsMu.Lock()
		e.stats.DroppedFrames++
		e.statsMu.Unlock()
		return nil, nil
	}

	data := e.out[:n]
	ft := FrameTypeDelta
	if frameType == h264FrameIDR || frameType == h264FrameI {
		ft = FrameTypeKey
		if e.sps == nil || e.pps == nil {
			if sps, pps := ExtractParameterSets(data); sps != nil && pps != nil {
				e.sps, e.pps = append([]byte(nil), sps...), append([]byte(nil), pps...)
			}
		}
	}

	e.statsMu.Lock()
	e.stats.FramesEncoded++
	e.stats.BytesEncoded += uint64(n)
	if ft == FrameTypeKey {
		e.stats.KeyframesEncoded++
	}
	e.statsMu.Unlock()

	return &EncodedFrame{
		Data:      data,
		FrameType: ft,
		Timestamp: uint32(time.Duration(frame.Timestamp) * 90 / time.Millisecond),
		Duration:  uint32(90000 / e.config.FPS),
	}, nil
}

// RequestKeyframe implements VideoEncoder.
func (e *H264Encoder) RequestKeyframe() {
	e.keyframeReq.Store(true)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handle != 0 {
		e.api.encoderRequestKF(e.handle)
	}
}

func (e *H264Encoder) Provider() Provider         { return ProviderX264 }
func (e *H264Encoder) Config() VideoEncoderConfig { return e.config }

// Stats implements VideoEncoder.
func (e *H264Encoder) Stats() EncoderStats {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	return e.stats
}

// Close implements VideoEncoder. It is safe to call more than once.
func (e *H264Encoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handle != 0 {
		e.api.encoderDestroy(e.handle)
		e.handle = 0
	}
	return nil
}

// H264Decoder implements VideoDecoder for H.264 (OpenH264). Remote camera
// feeds decode through it.
type H264Decoder struct {
	api *h264API

	mu     sync.Mutex
	handle uint64
	result *h264DecodeResult
	frame  *VideoFrame

	statsMu sync.Mutex
	stats   DecoderStats
}

// NewH264Decoder creates an H.264 decoder.
func NewH264Decoder(config VideoDecoderConfig) (*H264Decoder, error) {
	api, err := loadH264()
	if err != nil {
		return nil, fmt.Errorf("h264 decoder: %w", err)
	}
	if api.decoderAvailable() == 0 {
		return nil, fmt.Errorf("h264 decoder: %w: openh264 not compiled in", ErrNotSupported)
	}
	threads := config.Threads
	if threads <= 0 {
		threads = 4
	}
	handle := api.decoderCreate(int32(threads))
	if handle == 0 {
		return nil, fmt.Errorf("h264 decoder: create: %s", nativeError(api.lastError))
	}
	return &H264Decoder{api: api, handle: handle, result: &h264DecodeResult{}}, nil
}

// Decode implements VideoDecoder. It returns nil, nil while the decoder is
// buffering. The returned frame is reused by the next call and carries no
// timestamp; callers stamp it.
func (d *H264Decoder) Decode(encoded *EncodedFrame) (*VideoFrame, error) {
	if len(encoded.Data) == 0 {
		return nil, errors.New("h264 decode: empty access unit")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handle == 0 {
		return nil, fmt.Errorf("%w: h264 decoder closed", ErrInvalidState)
	}

	out := d.result
	n := d.api.decoderDecode(d.handle,
		uintptr(unsafe.Pointer(&encoded.Data[0])), int32(len(encoded.Data)),
		uintptr(unsafe.Pointer(&out.YPtr)),
		uintptr(unsafe.Pointer(&out.UPtr)),
		uintptr(unsafe.Pointer(&out.VPtr)),
		uintptr(unsafe.Pointer(&out.YStride)),
		uintptr(unsafe.Pointer(&out.UVStride)),
		uintptr(unsafe.Pointer(&out.Width)),
		uintptr(unsafe.Pointer(&out.Height)),
	)
	runtime.KeepAlive(encoded.Data)
	runtime.KeepAlive(out)

	if n == 0 {
		return nil, nil
	}
	if n < 0 || out.YPtr == 0 || out.YStride <= 0 || out.UVStride <= 0 || out.Width <= 0 || out.Height <= 0 {
		d.statsMu.Lock()
		d.stats.CorruptedFrames++
		d.statsMu.Unlock()
		if n < 0 {
			return nil, fmt.Errorf("h264 decode: %s", nativeError(d.api.lastError))
		}
		return nil, fmt.Errorf("h264 decode: bad output %dx%d stride %d/%d",
			out.Width, out.Height, out.YStride, out.UVStride)
	}

	w, h := int(out.Width), int(out.Height)
	if d.frame == nil || d.frame.Width != w || d.frame.Height != h {
		d.frame = NewI420Frame(w, h)
	}
	f := d.frame
	copyNativePlane(f.Data[0], f.Stride[0], out.YPtr, int(out.YStride), f.Width, f.Height)
	copyNativePlane(f.Data[1], f.Stride[1], out.UPtr, int(out.UVStride), f.Width/2, f.Height/2)
	copyNativePlane(f.Data[2], f.Stride[2], out.VPtr, int(out.UVStride), f.Width/2, f.Height/2)

	d.statsMu.Lock()
	d.stats.FramesDecoded++
	d.stats.BytesDecoded += uint64(len(encoded.Data))
	if encoded.IsKeyframe() {
		d.stats.KeyframesDecoded++
	}
	d.statsMu.Unlock()
	return f, nil
}

func copyNativePlane(dst []byte, dstStride int, src uintptr, srcStride, w, h int) {
	for row := 0; row < h; row++ {
		line := unsafe.Slice((*byte)(unsafe.Pointer(src+uintptr(row*srcStride))), w)
		copy(dst[row*dstStride:row*dstStride+w], line)
	}
}

func (d *H264Decoder) Provider() Provider { return ProviderOpenH264 }

// Stats implements VideoDecoder.
func (d *H264Decoder) Stats() DecoderStats {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	return d.stats
}

// Close implements VideoDecoder.
func (d *H264Decoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handle != 0 {
		d.api.decoderDestroy(d.handle)
		d.handle = 0
	}
	return nil
}

func init() {
	if IsH264EncoderAvailable() {
		setProviderAvailable(ProviderX264)
		registerVideoEncoder(VideoCodecH264, ProviderX264, func(config VideoEncoderConfig) (VideoEncoder, error) {
			return NewH264Encoder(config)
		})
	}
	if IsH264DecoderAvailable() {
		setProviderAvailable(ProviderOpenH264)
		registerVideoDecoder(VideoCodecH264, ProviderOpenH264, func(config VideoDecoderConfig) (VideoDecoder, error) {
			return NewH264Decoder(config)
		})
	}
}
