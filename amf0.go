package capture

import (
	"encoding/binary"
	"math"
)

// AMF0 type markers.
const (
	amf0Number     = 0x00
	amf0Boolean    = 0x01
	amf0String     = 0x02
	amf0ECMAArray  = 0x08
	amf0ObjectEnd  = 0x09
	amf0LongString = 0x0C
)

// metadataBaseProperties is the number of properties CreateMetadata always
// writes before any custom fields.
const metadataBaseProperties = 13

// MetadataField is a caller-supplied string property appended to onMetaData.
type MetadataField struct {
	Name  string
	Value string
}

// StreamMetadata describes a stream for the onMetaData script tag.
type StreamMetadata struct {
	Duration        float64 // seconds, 0 for live
	Width           int
	Height          int
	VideoDataRate   float64 // kbps
	FrameRate       float64
	AudioDataRate   float64 // kbps
	AudioSampleRate float64
	AudioSampleSize float64 // bits
	Stereo          bool
	Encoder         string
	FileSize        float64 // bytes, 0 for live

	// Custom fields are appended in order after the base properties.
	Custom []MetadataField
}

// DefaultStreamMetadata returns metadata for the fixed recording format.
func DefaultStreamMetadata(width, height int, fps float64, videoBps, audioBps int) StreamMetadata {
	return StreamMetadata{
		Width:           width,
		Height:          height,
		VideoDataRate:   float64(videoBps) / 1000,
		FrameRate:       fps,
		AudioDataRate:   float64(audioBps) / 1000,
		AudioSampleRate: TargetSampleRate,
		AudioSampleSize: TargetBitDepth,
		Stereo:          TargetChannels == 2,
		Encoder:         "arkavo-capture",
	}
}

// CreateMetadata encodes the @setDataFrame / onMetaData script data body.
func CreateMetadata(m StreamMetadata) []byte {
	buf := make([]byte, 0, 512)
	buf = amf0AppendString(buf, "@setDataFrame")
	buf = amf0AppendString(buf, "onMetaData")

	buf = append(buf, amf0ECMAArray)
	buf = binary.BigEndian.AppendUint32(buf, uint32(metadataBaseProperties+len(m.Custom)))

	buf = amf0AppendNumberProp(buf, "duration", m.Duration)
	buf = amf0AppendNumberProp(buf, "width", float64(m.Width))
	buf = amf0AppendNumberProp(buf, "height", float64(m.Height))
	buf = amf0AppendNumberProp(buf, "videodatarate", m.VideoDataRate)
	buf = amf0AppendNumberProp(buf, "framerate", m.FrameRate)
	buf = amf0AppendNumberProp(buf, "videocodecid", float64(FLVCodecAVC))
	buf = amf0AppendNumberProp(buf, "audiodatarate", m.AudioDataRate)
	buf = amf0AppendNumberProp(buf, "audiosamplerate", m.AudioSampleRate)
	buf = amf0AppendNumberProp(buf, "audiosamplesize", m.AudioSampleSize)
	buf = amf0AppendBoolProp(buf, "stereo", m.Stereo)
	buf = amf0AppendNumberProp(buf, "audiocodecid", float64(FLVSoundFormatAAC))
	buf = amf0AppendStringProp(buf, "encoder", m.Encoder)
	buf = amf0AppendNumberProp(buf, "filesize", m.FileSize)

	for _, f := range m.Custom {
		buf = amf0AppendStringProp(buf, f.Name, f.Value)
	}

	return append(buf, 0x00, 0x00, amf0ObjectEnd)
}

// metadataBody strips the leading @setDataFrame string, leaving the
// onMetaData name and array, which is what RTMP data messages carry after
// their own @setDataFrame name.
func metadataBody(meta []byte) []byte {
	const prefix = 1 + 2 + len("@setDataFrame")
	if len(meta) < prefix {
		return nil
	}
	return meta[prefix:]
}

// amf0AppendKey writes a property name: u16 length and UTF-8 bytes, no marker.
func amf0AppendKey(buf []byte, key string) []byte {
	if len(key) > math.MaxUint16 {
		key = key[:math.MaxUint16]
	}
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(key)))
	return append(buf, key...)
}

func amf0AppendString(buf []byte, s string) []byte {
	if len(s) > math.MaxUint16 {
		buf = append(buf, amf0LongString)
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(s)))
		return append(buf, s...)
	}
	buf = append(buf, amf0String)
	return amf0AppendKey(buf, s)
}

func amf0AppendNumberProp(buf []byte, key string, v float64) []byte {
	buf = amf0AppendKey(buf, key)
	buf = append(buf, amf0Number)
	return binary.BigEndian.AppendUint64(buf, math.Float64bits(v))
}

func amf0AppendBoolProp(buf []byte, key string, v bool) []byte {
	buf = amf0AppendKey(buf, key)
	b := byte(0)
	if v {
		b = 1
	}
	return append(buf, amf0Boolean, b)
}

func amf0AppendStringProp(buf []byte, key, v string) []byte {
	buf = amf0AppendKey(buf, key)
	return amf0AppendString(buf, v)
}
