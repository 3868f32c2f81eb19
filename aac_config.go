package capture

import "math"

// AAC constants.
const (
	AACObjectTypeLC = 2    // AAC Low Complexity
	AACFrameSamples = 1024 // samples per channel in one AAC-LC access unit
	maxAACChannels  = 7
)

// aacSampleRates is the ISO/IEC 14496-3 sampling frequency index table.
var aacSampleRates = [13]int{
	96000, 88200, 64000, 48000, 44100, 32000, 24000,
	22050, 16000, 12000, 11025, 8000, 7350,
}

// fallbackAudioSpecificConfig is AAC-LC, 48 kHz, stereo.
var fallbackAudioSpecificConfig = [2]byte{0x11, 0x90}

// AudioSpecificConfig is the decoded form of the 2-byte AAC-LC descriptor.
type AudioSpecificConfig struct {
	ObjectType      uint8
	SampleRateIndex uint8
	ChannelConfig   uint8
}

// ParseAudioSpecificConfig decodes the first two bytes of an
// AudioSpecificConfig. ok is false if fewer than two bytes are given.
func ParseAudioSpecificConfig(b []byte) (asc AudioSpecificConfig, ok bool) {
	if len(b) < 2 {
		return AudioSpecificConfig{}, false
	}
	return AudioSpecificConfig{
		ObjectType:      b[0] >> 3,
		SampleRateIndex: (b[0]&0x07)<<1 | b[1]>>7,
		ChannelConfig:   (b[1] >> 3) & 0x0F,
	}, true
}

// Bytes encodes the config as two bytes.
func (c AudioSpecificConfig) Bytes() []byte {
	return []byte{
		c.ObjectType<<3 | c.SampleRateIndex>>1,
		(c.SampleRateIndex&0x01)<<7 | c.ChannelConfig<<3,
	}
}

// SampleRate returns the sample rate for the config's index, or 0 if the
// index is outside the table.
func (c AudioSpecificConfig) SampleRate() int {
	if int(c.SampleRateIndex) >= len(aacSampleRates) {
		return 0
	}
	return aacSampleRates[c.SampleRateIndex]
}

// valid reports whether the config is AAC-LC stereo at 48 or 44.1 kHz.
func (c AudioSpecificConfig) valid() bool {
	return c.ObjectType == AACObjectTypeLC &&
		(c.SampleRateIndex == 3 || c.SampleRateIndex == 4) &&
		c.ChannelConfig == 2
}

// AACSampleRateIndex returns the table index of the rate nearest to rate.
func AACSampleRateIndex(rate float64) uint8 {
	best, bestDiff := 0, math.Inf(1)
	for i, r := range aacSampleRates {
		if d := math.Abs(float64(r) - rate); d < bestDiff {
			best, bestDiff = i, d
		}
	}
	return uint8(best)
}

// BuildAudioSpecificConfig returns the 2-byte AudioSpecificConfig to send as
// the AAC sequence header. A valid 2-byte cookie is used as-is. Anything else
// is rebuilt from desc, and with neither the fixed AAC-LC/48 kHz/stereo
// config is returned. The result is always exactly two bytes.
func BuildAudioSpecificConfig(cookie []byte, desc *AudioStreamDescription) []byte {
	if len(cookie) == 2 {
		if asc, ok := ParseAudioSpecificConfig(cookie); ok && asc.valid() {
			return []byte{cookie[0], cookie[1]}
		}
	}
	if desc == nil || desc.SampleRate <= 0 {
		return []byte{fallbackAudioSpecificConfig[0], fallbackAudioSpecificConfig[1]}
	}

	channels := desc.Channels
	if channels < 1 {
		channels = TargetChannels
	}
	if channels > maxAACChannels {
		channels = maxAACChannels
	}
	return AudioSpecificConfig{
		ObjectType:      AACObjectTypeLC,
		SampleRateIndex: AACSampleRateIndex(desc.SampleRate),
		ChannelConfig:   uint8(channels),
	}.Bytes()
}

// ADTSHeader returns the 7-byte ADTS header (no CRC) for one raw AAC frame
// of frameLen bytes.
func ADTSHeader(asc AudioSpecificConfig, frameLen int) []byte {
	full := frameLen + 7
	profile := asc.ObjectType - 1
	return []byte{
		0xFF,
		0xF1, // MPEG-4, layer 0, no CRC
		profile<<6 | (asc.SampleRateIndex&0x0F)<<2 | (asc.ChannelConfig>>2)&0x01,
		(asc.ChannelConfig&0x03)<<6 | byte(full>>11)&0x03,
		byte(full >> 3),
		byte(full&0x07)<<5 | 0x1F,
		0xFC,
	}
}
