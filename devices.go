package capture

import "context"

// DeviceKind identifies a class of capture device for permission checks.
type DeviceKind int

const (
	DeviceKindScreen DeviceKind = iota // Display capture (also covers screen audio)
	DeviceKindCamera
	DeviceKindMicrophone
)

func (k DeviceKind) String() string {
	switch k {
	case DeviceKindScreen:
		return "screen"
	case DeviceKindCamera:
		return "camera"
	case DeviceKindMicrophone:
		return "microphone"
	default:
		return "unknown"
	}
}

// DeviceInfo describes a capture device.
type DeviceInfo struct {
	DeviceID string
	Kind     DeviceKind
	Label    string
}

// VideoFrameCallback receives frames. The frame is only valid for the
// duration of the call.
type VideoFrameCallback func(frame *VideoFrame)

// AudioSamplesCallback receives samples. The samples are only valid for the
// duration of the call.
type AudioSamplesCallback func(samples *AudioSamples)

// VideoDevice is an opened OS video capture device. Start begins delivery on
// the device's own goroutine and returns once capture is running; ctx bounds
// only the start itself.
type VideoDevice interface {
	Start(ctx context.Context, cb VideoFrameCallback) error
	Stop() error
}

// AudioDevice is an opened OS audio capture device.
type AudioDevice interface {
	Start(ctx context.Context, cb AudioSamplesCallback) error
	Stop() error
}

// DeviceProvider opens OS capture devices. Platform backends implement it;
// NewSyntheticDeviceProvider provides a test-pattern backend.
type DeviceProvider interface {
	ListCameras(ctx context.Context) ([]DeviceInfo, error)
	OpenScreen(ctx context.Context) (VideoDevice, error)
	OpenCamera(ctx context.Context, deviceID string) (VideoDevice, error)
	OpenMicrophone(ctx context.Context) (AudioDevice, error)
	OpenScreenAudio(ctx context.Context) (AudioDevice, error)
}

// PermissionProvider asks the OS for capture access.
type PermissionProvider interface {
	RequestAccess(ctx context.Context, kind DeviceKind) (granted bool, err error)
}

// AllowAllPermissions grants every request. Useful headless and in tests.
type AllowAllPermissions struct{}

// RequestAccess implements PermissionProvider.
func (AllowAllPermissions) RequestAccess(context.Context, DeviceKind) (bool, error) {
	return true, nil
}

// NativeDeviceConfig configures the OS-backed device provider.
type NativeDeviceConfig struct {
	CameraWidth  int // requested camera width (default: 1280)
	CameraHeight int // requested camera height (default: 720)
	CameraFPS    int // default: 30
	SampleRate   int // requested microphone rate (default: 48000)
	Channels     int // requested microphone channels (default: 1)
}

// DefaultNativeDeviceConfig returns the default native capture settings.
func DefaultNativeDeviceConfig() NativeDeviceConfig {
	return NativeDeviceConfig{
		CameraWidth:  1280,
		CameraHeight: 720,
		CameraFPS:    30,
		SampleRate:   48000,
		Channels:     1,
	}
}

func (c NativeDeviceConfig) withDefaults() NativeDeviceConfig {
	d := DefaultNativeDeviceConfig()
	if c.CameraWidth <= 0 || c.CameraHeight <= 0 {
		c.CameraWidth, c.CameraHeight = d.CameraWidth, d.CameraHeight
	}
	if c.CameraFPS <= 0 {
		c.CameraFPS = d.CameraFPS
	}
	if c.SampleRate <= 0 {
		c.SampleRate = d.SampleRate
	}
	if c.Channels <= 0 {
		c.Channels = d.Channels
	}
	return c
}
