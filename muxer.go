package capture

import (
	"encoding/binary"
	"fmt"
)

// =============================================================================
// FLV Muxing
// =============================================================================
//
// Everything in this file is pure: identical inputs always produce identical
// bytes, and all multi-byte integers are big-endian.

// TagType is the FLV tag type.
type TagType uint8

const (
	TagTypeAudio      TagType = 8
	TagTypeVideo      TagType = 9
	TagTypeScriptData TagType = 18
)

func (t TagType) String() string {
	switch t {
	case TagTypeAudio:
		return "audio"
	case TagTypeVideo:
		return "video"
	case TagTypeScriptData:
		return "script"
	default:
		return "unknown"
	}
}

// FLV header and tag framing sizes.
const (
	FLVHeaderSize    = 13 // 9-byte header + 4-byte PreviousTagSize0
	FLVTagHeaderSize = 11
)

// Video tag fields.
const (
	FLVFrameKey   uint8 = 1
	FLVFrameInter uint8 = 2

	FLVCodecAVC uint8 = 7

	AVCPacketSequenceHeader uint8 = 0
	AVCPacketNALU           uint8 = 1
	AVCPacketEndOfSequence  uint8 = 2
)

// Audio tag fields.
const (
	FLVSoundFormatAAC uint8 = 10

	// AAC, 44 kHz rate code, 16-bit, stereo. FLV requires these values for
	// AAC regardless of the actual stream parameters.
	FLVAudioFlagsAAC uint8 = FLVSoundFormatAAC<<4 | 3<<2 | 1<<1 | 1

	AACPacketSequenceHeader uint8 = 0
	AACPacketRaw            uint8 = 1
)

// Fallback AVC profile values used when the SPS is unavailable
// (Main profile, level 4.1).
const (
	fallbackAVCProfile       = 0x4D
	fallbackAVCCompatibility = 0x40
	fallbackAVCLevel         = 0x29
)

var flvHeader = [FLVHeaderSize]byte{
	'F', 'L', 'V',
	0x01,       // version
	0x05,       // audio + video
	0, 0, 0, 9, // header size
	0, 0, 0, 0, // PreviousTagSize0
}

// CreateHeader returns the 13-byte FLV file preamble.
func CreateHeader() []byte {
	h := flvHeader
	return h[:]
}

// CreateTag frames payload as an FLV tag followed by its PreviousTagSize.
// Timestamps are milliseconds; bits above 31 are discarded.
func CreateTag(tagType TagType, payload []byte, timestampMs uint32) []byte {
	buf := make([]byte, FLVTagHeaderSize+len(payload)+4)
	putTagHeader(buf, tagType, len(payload), timestampMs)
	copy(buf[FLVTagHeaderSize:], payload)
	binary.BigEndian.PutUint32(buf[FLVTagHeaderSize+len(payload):], uint32(FLVTagHeaderSize+len(payload)))
	return buf
}

func putTagHeader(buf []byte, tagType TagType, size int, ts uint32) {
	buf[0] = byte(tagType)
	put24(buf[1:], uint32(size))
	put24(buf[4:], ts&0xFFFFFF)
	buf[7] = byte(ts>>24) & 0x7F
	buf[8], buf[9], buf[10] = 0, 0, 0 // stream id
}

func put24(b []byte, v uint32) {
	b[0] = byte(v >> 16)
	b[1] = byte(v >> 8)
	b[2] = byte(v)
}

// VideoTagPayload builds an AVC video tag body. For AVCPacketSequenceHeader
// data is an AVCDecoderConfigurationRecord, otherwise length-prefixed NAL
// units.
func VideoTagPayload(keyframe bool, packetType uint8, data []byte) []byte {
	frameType := FLVFrameInter
	if keyframe {
		frameType = FLVFrameKey
	}
	buf := make([]byte, 5+len(data))
	buf[0] = frameType<<4 | FLVCodecAVC
	buf[1] = packetType
	// buf[2:5] composition time, always zero (no B-frames)
	copy(buf[5:], data)
	return buf
}

// AudioTagPayload builds an AAC audio tag body. For AACPacketSequenceHeader
// data is an AudioSpecificConfig, otherwise a raw AAC frame.
func AudioTagPayload(packetType uint8, data []byte) []byte {
	buf := make([]byte, 2+len(data))
	buf[0] = FLVAudioFlagsAAC
	buf[1] = packetType
	copy(buf[2:], data)
	return buf
}

// AVCDecoderConfigurationRecord builds the AVC sequence header body from raw
// SPS and PPS NAL units (no start codes).
func AVCDecoderConfigurationRecord(sps, pps []byte) ([]byte, error) {
	if len(sps) == 0 || len(pps) == 0 {
		return nil, ErrMissingParameterSets
	}
	if len(sps) > 0xFFFF || len(pps) > 0xFFFF {
		return nil, fmt.Errorf("parameter set too large: sps=%d pps=%d", len(sps), len(pps))
	}

	profile, compat, level := byte(fallbackAVCProfile), byte(fallbackAVCCompatibility), byte(fallbackAVCLevel)
	if len(sps) >= 4 {
		profile, compat, level = sps[1], sps[2], sps[3]
	}

	buf := make([]byte, 0, 11+len(sps)+len(pps))
	buf = append(buf,
		0x01, // configurationVersion
		profile,
		compat,
		level,
		0xFF, // reserved(6) + lengthSizeMinusOne(2) = 3
		0xE1, // reserved(3) + numOfSequenceParameterSets(5) = 1
	)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(sps)))
	buf = append(buf, sps...)
	buf = append(buf, 0x01) // numOfPictureParameterSets
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(pps)))
	buf = append(buf, pps...)
	return buf, nil
}

// Tag is a decoded FLV tag.
type Tag struct {
	Type      TagType
	Timestamp uint32
	Payload   []byte
}

// ParseTag decodes one tag (with its trailing PreviousTagSize) from the start
// of b and returns the remaining bytes.
func ParseTag(b []byte) (Tag, []byte, error) {
	if len(b) < FLVTagHeaderSize {
		return Tag{}, b, fmt.Errorf("short tag header: %d bytes", len(b))
	}
	size := int(b[1])<<16 | int(b[2])<<8 | int(b[3])
	end := FLVTagHeaderSize + size + 4
	if len(b) < end {
		return Tag{}, b, fmt.Errorf("short tag: need %d bytes, have %d", end, len(b))
	}
	prev := binary.BigEndian.Uint32(b[FLVTagHeaderSize+size:])
	if int(prev) != FLVTagHeaderSize+size {
		return Tag{}, b, fmt.Errorf("previous tag size %d, want %d", prev, FLVTagHeaderSize+size)
	}
	ts := uint32(b[4])<<16 | uint32(b[5])<<8 | uint32(b[6]) | uint32(b[7])<<24
	return Tag{
		Type:      TagType(b[0]),
		Timestamp: ts,
		Payload:   b[FLVTagHeaderSize : FLVTagHeaderSize+size],
	}, b[end:], nil
}
