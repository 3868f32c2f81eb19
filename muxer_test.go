package capture

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func TestCreateHeader(t *testing.T) {
	want := []byte{'F', 'L', 'V', 0x01, 0x05, 0, 0, 0, 9, 0, 0, 0, 0}
	got := CreateHeader()
	if !bytes.Equal(got, want) {
		t.Fatalf("CreateHeader() = % x, want % x", got, want)
	}

	// Callers may modify the returned slice.
	got[0] = 'X'
	if CreateHeader()[0] != 'F' {
		t.Error("CreateHeader() returned shared storage")
	}
}

func TestCreateTag_Layout(t *testing.T) {
	tests := []struct {
		name    string
		tagType TagType
		payload []byte
		ts      uint32
	}{
		{"empty video", TagTypeVideo, nil, 0},
		{"audio", TagTypeAudio, []byte{0xAF, 0x01, 0x21}, 23},
		{"script", TagTypeScriptData, bytes.Repeat([]byte{0x42}, 300), 1000},
		{"extended timestamp", TagTypeVideo, []byte{1, 2, 3}, 0x12345678},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tag := CreateTag(tt.tagType, tt.payload, tt.ts)

			if len(tag) != FLVTagHeaderSize+len(tt.payload)+4 {
				t.Fatalf("len = %d, want %d", len(tag), FLVTagHeaderSize+len(tt.payload)+4)
			}
			if TagType(tag[0]) != tt.tagType {
				t.Errorf("type = %d, want %d", tag[0], tt.tagType)
			}
			size := int(tag[1])<<16 | int(tag[2])<<8 | int(tag[3])
			if size != len(tt.payload) {
				t.Errorf("data size = %d, want %d", size, len(tt.payload))
			}
			lower := uint32(tag[4])<<16 | uint32(tag[5])<<8 | uint32(tag[6])
			if lower != tt.ts&0xFFFFFF {
				t.Errorf("timestamp low = %#x, want %#x", lower, tt.ts&0xFFFFFF)
			}
			if tag[7] != byte(tt.ts>>24)&0x7F {
				t.Errorf("timestamp ext = %#x, want %#x", tag[7], byte(tt.ts>>24)&0x7F)
			}
			if !bytes.Equal(tag[8:11], []byte{0, 0, 0}) {
				t.Errorf("stream id = % x, want 00 00 00", tag[8:11])
			}
			if !bytes.Equal(tag[FLVTagHeaderSize:FLVTagHeaderSize+len(tt.payload)], tt.payload) {
				t.Error("payload not copied verbatim")
			}
			prev := binary.BigEndian.Uint32(tag[len(tag)-4:])
			if int(prev) != FLVTagHeaderSize+len(tt.payload) {
				t.Errorf("previous tag size = %d, want %d", prev, FLVTagHeaderSize+len(tt.payload))
			}
		})
	}
}

func TestCreateTag_TimestampHighBitDiscarded(t *testing.T) {
	tag := CreateTag(TagTypeAudio, nil, 0xFF000001)
	if tag[7] != 0x7F {
		t.Errorf("timestamp ext = %#x, want 0x7f", tag[7])
	}
	parsed, _, err := ParseTag(tag)
	if err != nil {
		t.Fatal(err)
	}
	if parsed.Timestamp != 0x7F000001 {
		t.Errorf("parsed timestamp = %#x, want 0x7f000001", parsed.Timestamp)
	}
}

func TestCreateTag_Deterministic(t *testing.T) {
	payload := []byte{0x17, 0x01, 0, 0, 0, 0, 0, 0, 1, 0x65}
	a := CreateTag(TagTypeVideo, payload, 40)
	b := CreateTag(TagTypeVideo, payload, 40)
	if !bytes.Equal(a, b) {
		t.Error("identical inputs produced different tags")
	}
}

func TestParseTag_Stream(t *testing.T) {
	var stream []byte
	stream = append(stream, CreateTag(TagTypeScriptData, []byte("meta"), 0)...)
	stream = append(stream, CreateTag(TagTypeVideo, []byte{0x17, 0x00}, 0)...)
	stream = append(stream, CreateTag(TagTypeAudio, []byte{0xAF, 0x01, 0x55}, 21)...)

	wantTypes := []TagType{TagTypeScriptData, TagTypeVideo, TagTypeAudio}
	for i, want := range wantTypes {
		tag, rest, err := ParseTag(stream)
		if err != nil {
			t.Fatalf("tag %d: %v", i, err)
		}
		if tag.Type != want {
			t.Errorf("tag %d type = %v, want %v", i, tag.Type, want)
		}
		stream = rest
	}
	if len(stream) != 0 {
		t.Errorf("%d trailing bytes", len(stream))
	}
}

func TestParseTag_Errors(t *testing.T) {
	good := CreateTag(TagTypeVideo, []byte{1, 2, 3}, 0)
	bad := append([]byte(nil), good...)
	binary.BigEndian.PutUint32(bad[len(bad)-4:], 99)

	tests := []struct {
		name string
		data []byte
	}{
		{"short header", good[:5]},
		{"truncated body", good[:len(good)-2]},
		{"bad previous size", bad},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := ParseTag(tt.data); err == nil {
				t.Error("ParseTag() succeeded")
			}
		})
	}
}

func TestVideoTagPayload(t *testing.T) {
	data := []byte{0, 0, 0, 2, 0x65, 0x88}
	tests := []struct {
		name       string
		keyframe   bool
		packetType uint8
		first      byte
	}{
		{"keyframe nalu", true, AVCPacketNALU, 0x17},
		{"inter nalu", false, AVCPacketNALU, 0x27},
		{"sequence header", true, AVCPacketSequenceHeader, 0x17},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := VideoTagPayload(tt.keyframe, tt.packetType, data)
			if p[0] != tt.first {
				t.Errorf("byte 0 = %#x, want %#x", p[0], tt.first)
			}
			if p[1] != tt.packetType {
				t.Errorf("packet type = %d, want %d", p[1], tt.packetType)
			}
			if !bytes.Equal(p[2:5], []byte{0, 0, 0}) {
				t.Errorf("composition time = % x, want zero", p[2:5])
			}
			if !bytes.Equal(p[5:], data) {
				t.Error("data not appended verbatim")
			}
		})
	}
}

func TestAudioTagPayload(t *testing.T) {
	p := AudioTagPayload(AACPacketSequenceHeader, []byte{0x11, 0x90})
	if !bytes.Equal(p, []byte{0xAF, 0x00, 0x11, 0x90}) {
		t.Errorf("sequence header = % x", p)
	}
	p = AudioTagPayload(AACPacketRaw, []byte{0x21, 0x00})
	if !bytes.Equal(p, []byte{0xAF, 0x01, 0x21, 0x00}) {
		t.Errorf("raw = % x", p)
	}
}

func TestAVCDecoderConfigurationRecord(t *testing.T) {
	sps := []byte{0x67, 0x64, 0x00, 0x1F, 0xAC, 0xD9}
	pps := []byte{0x68, 0xEB, 0xE3}

	rec, err := AVCDecoderConfigurationRecord(sps, pps)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{
		0x01, 0x64, 0x00, 0x1F, 0xFF, 0xE1,
		0x00, 0x06, 0x67, 0x64, 0x00, 0x1F, 0xAC, 0xD9,
		0x01,
		0x00, 0x03, 0x68, 0xEB, 0xE3,
	}
	if !bytes.Equal(rec, want) {
		t.Fatalf("record = % x\nwant     % x", rec, want)
	}

	gotSPS, gotPPS := ParseAVCDecoderConfigurationRecord(rec)
	if !bytes.Equal(gotSPS, sps) || !bytes.Equal(gotPPS, pps) {
		t.Errorf("parse = % x / % x", gotSPS, gotPPS)
	}
}

func TestAVCDecoderConfigurationRecord_ShortSPS(t *testing.T) {
	rec, err := AVCDecoderConfigurationRecord([]byte{0x67, 0x42}, []byte{0x68})
	if err != nil {
		t.Fatal(err)
	}
	if rec[1] != 0x4D || rec[2] != 0x40 || rec[3] != 0x29 {
		t.Errorf("profile/compat/level = % x, want 4d 40 29", rec[1:4])
	}
}

func TestAVCDecoderConfigurationRecord_Missing(t *testing.T) {
	tests := []struct {
		name     string
		sps, pps []byte
	}{
		{"no sps", nil, []byte{0x68}},
		{"no pps", []byte{0x67, 0x64, 0, 0x1F}, nil},
		{"neither", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := AVCDecoderConfigurationRecord(tt.sps, tt.pps)
			if !errors.Is(err, ErrMissingParameterSets) {
				t.Errorf("err = %v, want ErrMissingParameterSets", err)
			}
		})
	}
}
