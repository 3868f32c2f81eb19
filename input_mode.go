package capture

import "strings"

// RecordingInputMode is the combination of enabled input categories. It is
// derived from the session's toggles when a recording starts.
type RecordingInputMode struct {
	Desktop    bool
	Camera     bool
	Avatar     bool
	Microphone bool
}

// Any reports whether at least one input is enabled.
func (m RecordingInputMode) Any() bool {
	return m.Desktop || m.Camera || m.Avatar || m.Microphone
}

// HasVideo reports whether the recording has a video canvas at all.
func (m RecordingInputMode) HasVideo() bool {
	return m.Desktop || m.Camera || m.Avatar
}

// NeedsFrameDriver reports whether frame timing must come from the periodic
// driver because no screen source drives it.
func (m RecordingInputMode) NeedsFrameDriver() bool {
	return !m.Desktop && (m.Camera || m.Avatar)
}

// PermissionKinds returns the device permissions the mode requires.
func (m RecordingInputMode) PermissionKinds() []DeviceKind {
	var kinds []DeviceKind
	if m.Desktop {
		kinds = append(kinds, DeviceKindScreen)
	}
	if m.Camera {
		kinds = append(kinds, DeviceKindCamera)
	}
	if m.Microphone {
		kinds = append(kinds, DeviceKindMicrophone)
	}
	return kinds
}

func (m RecordingInputMode) String() string {
	var parts []string
	for _, p := range []struct {
		on   bool
		name string
	}{
		{m.Desktop, "desktop"},
		{m.Camera, "camera"},
		{m.Avatar, "avatar"},
		{m.Microphone, "microphone"},
	} {
		if p.on {
			parts = append(parts, p.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	if !m.HasVideo() {
		return "audio-only"
	}
	return strings.Join(parts, "+")
}
