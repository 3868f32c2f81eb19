package capture

import "context"

// SourceType identifies the role of a capture source.
type SourceType int

const (
	SourceTypeUnknown SourceType = iota
	SourceTypeScreen
	SourceTypeCamera
	SourceTypeAvatar
	SourceTypeMicrophone
	SourceTypeScreenAudio
	SourceTypeRemoteCameraAudio
	SourceTypeRemoteCamera
)

func (s SourceType) String() string {
	switch s {
	case SourceTypeScreen:
		return "screen"
	case SourceTypeCamera:
		return "camera"
	case SourceTypeAvatar:
		return "avatar"
	case SourceTypeMicrophone:
		return "microphone"
	case SourceTypeScreenAudio:
		return "screen-audio"
	case SourceTypeRemoteCameraAudio:
		return "remote-camera-audio"
	case SourceTypeRemoteCamera:
		return "remote-camera"
	default:
		return "unknown"
	}
}

// IsVideo reports whether sources of this type produce frames.
func (s SourceType) IsVideo() bool {
	switch s {
	case SourceTypeScreen, SourceTypeCamera, SourceTypeAvatar, SourceTypeRemoteCamera:
		return true
	}
	return false
}

// Well-known source identifiers.
const (
	ScreenSourceID      = "screen"
	AvatarSourceID      = "avatar"
	MicrophoneSourceID  = "microphone"
	ScreenAudioSourceID = "screen-audio"
)

// CaptureSource is a startable producer of frames or samples.
//
// Start blocks until the source has produced verifiable output (for video,
// the first frame) or ctx ends. Stop is best-effort and idempotent.
type CaptureSource interface {
	ID() string
	Type() SourceType
	Start(ctx context.Context) error
	Stop() error
	IsActive() bool
}

// VideoCaptureSource is a CaptureSource delivering frames.
type VideoCaptureSource interface {
	CaptureSource
	SetFrameHandler(cb VideoFrameCallback)
}

// AudioCaptureSource is a CaptureSource delivering samples.
type AudioCaptureSource interface {
	CaptureSource
	SetSampleHandler(cb AudioSamplesCallback)
}
