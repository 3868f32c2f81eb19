package capture

// VideoCodec identifies the video codec type.
type VideoCodec int

const (
	VideoCodecUnknown VideoCodec = iota
	VideoCodecH264
)

func (c VideoCodec) String() string {
	switch c {
	case VideoCodecH264:
		return "H264"
	default:
		return "Unknown"
	}
}

// MimeType returns the MIME type for this codec.
func (c VideoCodec) MimeType() string {
	switch c {
	case VideoCodecH264:
		return "video/H264"
	default:
		return ""
	}
}

// FLVCodecID returns the FLV VideoTagHeader codec id (7 = AVC).
func (c VideoCodec) FLVCodecID() uint8 {
	switch c {
	case VideoCodecH264:
		return FLVCodecAVC
	default:
		return 0
	}
}

// AudioCodec identifies the audio codec type.
type AudioCodec int

const (
	AudioCodecUnknown AudioCodec = iota
	AudioCodecAAC
)

func (c AudioCodec) String() string {
	switch c {
	case AudioCodecAAC:
		return "AAC"
	default:
		return "Unknown"
	}
}

// MimeType returns the MIME type for this codec.
func (c AudioCodec) MimeType() string {
	switch c {
	case AudioCodecAAC:
		return "audio/AAC"
	default:
		return ""
	}
}

// FLVSoundFormat returns the FLV AudioTagHeader sound format (10 = AAC).
func (c AudioCodec) FLVSoundFormat() uint8 {
	switch c {
	case AudioCodecAAC:
		return FLVSoundFormatAAC
	default:
		return 0
	}
}

// RateControlMode defines the encoder rate control mode.
type RateControlMode int

const (
	RateControlVBR RateControlMode = iota // Variable bitrate
	RateControlCBR                        // Constant bitrate
)

func (r RateControlMode) String() string {
	switch r {
	case RateControlVBR:
		return "VBR"
	case RateControlCBR:
		return "CBR"
	default:
		return "Unknown"
	}
}

// H264Profile defines H.264 encoding profiles.
type H264Profile int

const (
	H264ProfileBaseline H264Profile = iota
	H264ProfileMain
	H264ProfileHigh
)

func (p H264Profile) String() string {
	switch p {
	case H264ProfileBaseline:
		return "Baseline"
	case H264ProfileMain:
		return "Main"
	case H264ProfileHigh:
		return "High"
	default:
		return "Unknown"
	}
}

// ProfileIDC returns the profile_idc value carried in the SPS.
func (p H264Profile) ProfileIDC() uint8 {
	switch p {
	case H264ProfileMain:
		return 77
	case H264ProfileHigh:
		return 100
	default:
		return 66
	}
}
