//go:build linux && !nodevices

package capture

import (
	"context"
	"testing"
)

func TestLinuxDeviceAvailability(t *testing.T) {
	t.Logf("V4L2 available: %v", IsV4L2Available())
	t.Logf("ALSA available: %v", IsALSAAvailable())
}

func TestLinuxCameraEnumeration(t *testing.T) {
	if !IsV4L2Available() {
		t.Skip("V4L2 library not available")
	}
	p, err := NewNativeDeviceProvider(NativeDeviceConfig{})
	if err != nil {
		t.Fatal(err)
	}
	devices, err := p.ListCameras(context.Background())
	if err != nil {
		t.Fatalf("ListCameras failed: %v", err)
	}
	t.Logf("Found %d cameras", len(devices))
	for i, d := range devices {
		if d.Kind != DeviceKindCamera {
			t.Errorf("device %d kind = %s", i, d.Kind)
		}
		t.Logf("  Device %d: ID=%s, Label=%s", i, d.DeviceID, d.Label)
	}
}
