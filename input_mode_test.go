package capture

import (
	"slices"
	"testing"
)

func TestRecordingInputMode(t *testing.T) {
	tests := []struct {
		mode        RecordingInputMode
		enabled     bool
		video       bool
		driver      bool
		permissions []DeviceKind
		str         string
	}{
		{RecordingInputMode{}, false, false, false, nil, "none"},
		{RecordingInputMode{Microphone: true}, true, false, false, []DeviceKind{DeviceKindMicrophone}, "audio-only"},
		{RecordingInputMode{Desktop: true}, true, true, false, []DeviceKind{DeviceKindScreen}, "desktop"},
		{RecordingInputMode{Camera: true, Microphone: true}, true, true, true, []DeviceKind{DeviceKindCamera, DeviceKindMicrophone}, "camera+microphone"},
		{RecordingInputMode{Avatar: true}, true, true, true, nil, "avatar"},
		{RecordingInputMode{Desktop: true, Camera: true, Avatar: true}, true, true, false, []DeviceKind{DeviceKindScreen, DeviceKindCamera}, "desktop+camera+avatar"},
	}
	for _, tt := range tests {
		t.Run(tt.str, func(t *testing.T) {
			m := tt.mode
			if m.Any() != tt.enabled || m.HasVideo() != tt.video || m.NeedsFrameDriver() != tt.driver {
				t.Errorf("Any=%v HasVideo=%v NeedsFrameDriver=%v", m.Any(), m.HasVideo(), m.NeedsFrameDriver())
			}
			if got := m.PermissionKinds(); !slices.Equal(got, tt.permissions) {
				t.Errorf("PermissionKinds() = %v, want %v", got, tt.permissions)
			}
			if got := m.String(); got != tt.str {
				t.Errorf("String() = %q", got)
			}
		})
	}
}
