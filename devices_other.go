//go:build !(darwin || linux) || nodevices

package capture

import (
	"context"
	"fmt"
)

// NativeDeviceProvider is unavailable on this platform or build.
type NativeDeviceProvider struct{}

// NewNativeDeviceProvider always fails here.
func NewNativeDeviceProvider(NativeDeviceConfig) (*NativeDeviceProvider, error) {
	return nil, fmt.Errorf("native devices: %w", ErrNotSupported)
}

func (p *NativeDeviceProvider) ListCameras(context.Context) ([]DeviceInfo, error) {
	return nil, ErrNotSupported
}

func (p *NativeDeviceProvider) OpenScreen(context.Context) (VideoDevice, error) {
	return nil, ErrNotSupported
}

func (p *NativeDeviceProvider) OpenCamera(context.Context, string) (VideoDevice, error) {
	return nil, ErrNotSupported
}

func (p *NativeDeviceProvider) OpenMicrophone(context.Context) (AudioDevice, error) {
	return nil, ErrNotSupported
}

func (p *NativeDeviceProvider) OpenScreenAudio(context.Context) (AudioDevice, error) {
	return nil, ErrNotSupported
}
