package capture

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Fixed target format for all converted audio.
const (
	TargetSampleRate = 48000
	TargetChannels   = 2
	TargetBitDepth   = 16
)

// AudioConverter converts one source's samples to 48 kHz stereo S16.
// It keeps resampling state between calls, so each source needs its own
// converter. Not safe for concurrent use.
type AudioConverter struct {
	inRate int
	pos    float64    // read position in input frames, relative to the current buffer
	prev   [2]float32 // last input frame of the previous buffer
	primed bool
}

// NewAudioConverter creates a converter.
func NewAudioConverter() *AudioConverter {
	return &AudioConverter{}
}

// Convert returns s converted to the target format. The input is not
// modified or retained.
func (c *AudioConverter) Convert(s *AudioSamples) (*AudioSamples, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: nil samples", ErrUnsupportedFormat)
	}
	if s.SampleRate <= 0 || s.Channels <= 0 {
		return nil, fmt.Errorf("%w: %d Hz, %d channels", ErrUnsupportedFormat, s.SampleRate, s.Channels)
	}
	bps := s.Format.BytesPerSample()
	if bps == 0 {
		return nil, fmt.Errorf("%w: sample format %s", ErrUnsupportedFormat, s.Format)
	}
	frames := len(s.Data) / (bps * s.Channels)
	if s.SampleCount > 0 && s.SampleCount < frames {
		frames = s.SampleCount
	}

	if s.SampleRate == TargetSampleRate && s.Channels == TargetChannels && s.Format == AudioFormatS16 {
		out := s.Clone()
		out.Data = out.Data[:frames*4]
		out.SampleCount = frames
		return out, nil
	}

	stereo := toStereoFloat(s, frames)

	if c.inRate != s.SampleRate {
		c.inRate = s.SampleRate
		c.pos = 0
		c.primed = false
	}
	if s.SampleRate != TargetSampleRate {
		stereo = c.resample(stereo, frames)
	}

	n := len(stereo) / 2
	data := make([]byte, n*4)
	for i, v := range stereo {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(floatToS16(v)))
	}
	return &AudioSamples{
		Data:        data,
		SampleRate:  TargetSampleRate,
		Channels:    TargetChannels,
		SampleCount: n,
		Format:      AudioFormatS16,
		Timestamp:   s.Timestamp,
	}, nil
}

// toStereoFloat decodes frames into interleaved stereo float32. Mono is
// duplicated; more than two channels keep the front pair.
func toStereoFloat(s *AudioSamples, frames int) []float32 {
	out := make([]float32, frames*2)
	bps := s.Format.BytesPerSample()
	sample := func(frame, ch int) float32 {
		off := (frame*s.Channels + ch) * bps
		if s.Format == AudioFormatF32 {
			return math.Float32frombits(binary.LittleEndian.Uint32(s.Data[off:]))
		}
		return float32(int16(binary.LittleEndian.Uint16(s.Data[off:]))) / 32768
	}
	for i := 0; i < frames; i++ {
		l := sample(i, 0)
		r := l
		if s.Channels > 1 {
			r = sample(i, 1)
		}
		out[i*2], out[i*2+1] = l, r
	}
	return out
}

// resample converts interleaved stereo at c.inRate to the target rate by
// linear interpolation, carrying the fractional phase across buffers.
func (c *AudioConverter) resample(in []float32, frames int) []float32 {
	if frames == 0 {
		return nil
	}
	step := float64(c.inRate) / TargetSampleRate
	at := func(i int) (float32, float32) {
		if i < 0 {
			return c.prev[0], c.prev[1]
		}
		return in[i*2], in[i*2+1]
	}

	out := make([]float32, 0, int(float64(frames)/step+2)*2)
	for {
		idx := int(math.Floor(c.pos))
		if idx+1 > frames-1 {
			break
		}
		if idx < 0 && !c.primed {
			c.pos = 0
			continue
		}
		frac := float32(c.pos - float64(idx))
		l0, r0 := at(idx)
		l1, r1 := at(idx + 1)
		out = append(out, l0+(l1-l0)*frac, r0+(r1-r0)*frac)
		c.pos += step
	}

	c.pos -= float64(frames)
	c.prev[0], c.prev[1] = in[(frames-1)*2], in[(frames-1)*2+1]
	c.primed = true
	return out
}

func floatToS16(v float32) int16 {
	if v >= 1 {
		return math.MaxInt16
	}
	if v <= -1 {
		return math.MinInt16
	}
	return int16(v * 32767)
}
