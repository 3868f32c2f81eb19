// Core frame and sample types used across the capture package.
package capture

import "time"

// PixelFormat represents video pixel formats.
type PixelFormat int

const (
	PixelFormatI420   PixelFormat = iota // YUV 4:2:0 planar (Y + U + V)
	PixelFormatNV12                      // YUV 4:2:0 semi-planar (Y + interleaved UV)
	PixelFormatBGRA32                    // Packed BGRA, 4 bytes per pixel (typical screen capture)
	PixelFormatRGBA32                    // Packed RGBA, 4 bytes per pixel
)

func (p PixelFormat) String() string {
	switch p {
	case PixelFormatI420:
		return "I420"
	case PixelFormatNV12:
		return "NV12"
	case PixelFormatBGRA32:
		return "BGRA32"
	case PixelFormatRGBA32:
		return "RGBA32"
	default:
		return "Unknown"
	}
}

// PlaneCount returns the number of planes for this pixel format.
func (p PixelFormat) PlaneCount() int {
	switch p {
	case PixelFormatI420:
		return 3
	case PixelFormatNV12:
		return 2
	case PixelFormatBGRA32, PixelFormatRGBA32:
		return 1
	default:
		return 0
	}
}

// AudioFormat represents audio sample formats.
type AudioFormat int

const (
	AudioFormatS16 AudioFormat = iota // Signed 16-bit little-endian PCM
	AudioFormatF32                    // 32-bit little-endian float
)

func (a AudioFormat) String() string {
	switch a {
	case AudioFormatS16:
		return "S16"
	case AudioFormatF32:
		return "F32"
	default:
		return "Unknown"
	}
}

// BytesPerSample returns the number of bytes per sample for this format.
func (a AudioFormat) BytesPerSample() int {
	switch a {
	case AudioFormatS16:
		return 2
	case AudioFormatF32:
		return 4
	default:
		return 0
	}
}

// VideoFrame is a raw video frame. Frames handed to callbacks are transient:
// the producer may reuse the planes once the callback returns, so anything
// that keeps a frame must Clone it.
type VideoFrame struct {
	Data      [][]byte    // Plane data (1-3 planes depending on format)
	Stride    []int       // Stride for each plane in bytes
	Width     int         // Frame width in pixels
	Height    int         // Frame height in pixels
	Format    PixelFormat // Pixel format
	Timestamp int64       // Presentation timestamp in nanoseconds (host monotonic clock)
	Duration  int64       // Frame duration in nanoseconds (optional)
}

// NewI420Frame allocates a black I420 frame of the given (even) size.
func NewI420Frame(width, height int) *VideoFrame {
	width = (width + 1) &^ 1
	height = (height + 1) &^ 1
	ySize := width * height
	uvSize := (width / 2) * (height / 2)
	buf := make([]byte, ySize+2*uvSize)
	f := &VideoFrame{
		Data:   [][]byte{buf[:ySize], buf[ySize : ySize+uvSize], buf[ySize+uvSize:]},
		Stride: []int{width, width / 2, width / 2},
		Width:  width,
		Height: height,
		Format: PixelFormatI420,
	}
	f.Fill(16, 128, 128)
	return f
}

// Fill paints an I420 frame with a single YUV colour.
func (f *VideoFrame) Fill(y, u, v byte) {
	if f.Format != PixelFormatI420 || len(f.Data) < 3 {
		return
	}
	for i, val := range [3]byte{y, u, v} {
		plane := f.Data[i]
		for j := range plane {
			plane[j] = val
		}
	}
}

// PTS returns the frame timestamp as a duration on the host clock.
func (f *VideoFrame) PTS() time.Duration {
	return time.Duration(f.Timestamp)
}

// Clone creates a deep copy of the video frame.
func (f *VideoFrame) Clone() *VideoFrame {
	clone := &VideoFrame{
		Data:      make([][]byte, len(f.Data)),
		Stride:    make([]int, len(f.Stride)),
		Width:     f.Width,
		Height:    f.Height,
		Format:    f.Format,
		Timestamp: f.Timestamp,
		Duration:  f.Duration,
	}
	copy(clone.Stride, f.Stride)
	for i, plane := range f.Data {
		if plane != nil {
			clone.Data[i] = make([]byte, len(plane))
			copy(clone.Data[i], plane)
		}
	}
	return clone
}

// CopyInto copies f into dst, reusing dst's planes when they are large
// enough. It returns the frame that now holds the copy (dst or a new frame).
func (f *VideoFrame) CopyInto(dst *VideoFrame) *VideoFrame {
	if dst == nil || len(dst.Data) != len(f.Data) {
		return f.Clone()
	}
	for i, plane := range f.Data {
		if cap(dst.Data[i]) < len(plane) {
			return f.Clone()
		}
	}
	for i, plane := range f.Data {
		dst.Data[i] = dst.Data[i][:len(plane)]
		copy(dst.Data[i], plane)
	}
	dst.Stride = append(dst.Stride[:0], f.Stride...)
	dst.Width, dst.Height, dst.Format = f.Width, f.Height, f.Format
	dst.Timestamp, dst.Duration = f.Timestamp, f.Duration
	return dst
}

// I420Size returns the total buffer size needed for an I420 frame.
func I420Size(width, height int) int {
	ySize := width * height
	uvSize := (width / 2) * (height / 2)
	return ySize + uvSize*2
}

// AudioSamples represents raw interleaved audio samples.
type AudioSamples struct {
	Data        []byte      // Interleaved sample data
	SampleRate  int         // Sample rate (e.g., 48000)
	Channels    int         // Number of channels (1 = mono, 2 = stereo)
	SampleCount int         // Number of samples (per channel)
	Format      AudioFormat // Sample format
	Timestamp   int64       // Presentation timestamp in nanoseconds (host monotonic clock)
}

// PTS returns the sample timestamp as a duration on the host clock.
func (s *AudioSamples) PTS() time.Duration {
	return time.Duration(s.Timestamp)
}

// Duration returns the playback duration of the samples.
func (s *AudioSamples) Duration() time.Duration {
	if s.SampleRate <= 0 {
		return 0
	}
	return time.Duration(s.SampleCount) * time.Second / time.Duration(s.SampleRate)
}

// Clone creates a deep copy of the audio samples.
func (s *AudioSamples) Clone() *AudioSamples {
	clone := &AudioSamples{
		SampleRate:  s.SampleRate,
		Channels:    s.Channels,
		SampleCount: s.SampleCount,
		Format:      s.Format,
		Timestamp:   s.Timestamp,
	}
	if s.Data != nil {
		clone.Data = make([]byte, len(s.Data))
		copy(clone.Data, s.Data)
	}
	return clone
}

// FrameType indicates whether a frame is a keyframe or delta frame.
type FrameType int

const (
	FrameTypeUnknown FrameType = iota
	FrameTypeKey               // I-frame, can be decoded independently
	FrameTypeDelta             // P/B-frame, requires previous frames
)

func (f FrameType) String() string {
	switch f {
	case FrameTypeKey:
		return "Key"
	case FrameTypeDelta:
		return "Delta"
	default:
		return "Unknown"
	}
}

// EncodedFrame holds encoded video data in Annex-B format.
// The Data slice is owned by the encoder and valid until the next Encode() call.
type EncodedFrame struct {
	Data      []byte    // Annex-B bitstream
	FrameType FrameType // Key or delta frame
	Timestamp uint32    // 90kHz timestamp
	Duration  uint32    // Duration in 90kHz units
}

// IsKeyframe returns true if this is a keyframe.
func (f *EncodedFrame) IsKeyframe() bool {
	return f.FrameType == FrameTypeKey
}

// Clone creates a deep copy of the encoded frame.
func (f *EncodedFrame) Clone() *EncodedFrame {
	clone := &EncodedFrame{
		FrameType: f.FrameType,
		Timestamp: f.Timestamp,
		Duration:  f.Duration,
	}
	if f.Data != nil {
		clone.Data = make([]byte, len(f.Data))
		copy(clone.Data, f.Data)
	}
	return clone
}

// EncodedAudio holds one encoded audio access unit (raw AAC, no ADTS).
type EncodedAudio struct {
	Data      []byte // Encoded data
	Timestamp uint32 // Position in samples since the encoder started
	Duration  uint32 // Duration in samples
}

// Clone creates a deep copy of the encoded audio.
func (a *EncodedAudio) Clone() *EncodedAudio {
	clone := &EncodedAudio{
		Timestamp: a.Timestamp,
		Duration:  a.Duration,
	}
	if a.Data != nil {
		clone.Data = make([]byte, len(a.Data))
		copy(clone.Data, a.Data)
	}
	return clone
}

var processEpoch = time.Now()

// MonotonicNow returns the current position of the host clock that every
// capture timestamp in this package is expressed on.
func MonotonicNow() time.Duration {
	return time.Since(processEpoch)
}
