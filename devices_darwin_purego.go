//go:build darwin && !nodevices

package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/purego"
)

// AVFoundation authorization status values.
const (
	AVAuthorizationStatusNotDetermined = 0
	AVAuthorizationStatusRestricted    = 1
	AVAuthorizationStatusDenied        = 2
	AVAuthorizationStatusAuthorized    = 3
)

var (
	avfOnce    sync.Once
	avfVideo   *nativeVideoAPI
	avfInitErr error

	streamAVCameraPermissionStatus     func() int32
	streamAVMicrophonePermissionStatus func() int32
	streamAVRequestCameraPermission    func()
	streamAVRequestMicPermission       func()
)

func loadAVFoundation() error {
	avfOnce.Do(func() {
		_, avfInitErr = dlopenFirst("libstream_avfoundation", "STREAM_AV_LIB_PATH", func(h uintptr) error {
			api := &nativeVideoAPI{}
			purego.RegisterLibFunc(&api.deviceCount, h, "stream_av_video_device_count")
			purego.RegisterLibFunc(&api.deviceID, h, "stream_av_video_device_id")
			purego.RegisterLibFunc(&api.deviceLabel, h, "stream_av_video_device_label")
			purego.RegisterLibFunc(&api.freeString, h, "stream_av_free_string")
			purego.RegisterLibFunc(&api.create, h, "stream_av_video_capture_create")
			purego.RegisterLibFunc(&api.start, h, "stream_av_video_capture_start")
			purego.RegisterLibFunc(&api.stop, h, "stream_av_video_capture_stop")
			purego.RegisterLibFunc(&api.destroy, h, "stream_av_video_capture_destroy")
			purego.RegisterLibFunc(&api.lastError, h, "stream_av_get_error")

			purego.RegisterLibFunc(&streamAVCameraPermissionStatus, h, "stream_av_camera_permission_status")
			purego.RegisterLibFunc(&streamAVMicrophonePermissionStatus, h, "stream_av_microphone_permission_status")
			purego.RegisterLibFunc(&streamAVRequestCameraPermission, h, "stream_av_request_camera_permission")
			purego.RegisterLibFunc(&streamAVRequestMicPermission, h, "stream_av_request_microphone_permission")
			avfVideo = api
			return nil
		})
	})
	return avfInitErr
}

// loadNativeDevices binds libstream_avfoundation. It has no microphone
// capture.
func loadNativeDevices() (*nativeVideoAPI, *nativeAudioAPI, error) {
	if err := loadAVFoundation(); err != nil {
		return nil, nil, err
	}
	return avfVideo, nil, nil
}

// IsAVFoundationAvailable reports whether the AVFoundation library loaded.
func IsAVFoundationAvailable() bool {
	return loadAVFoundation() == nil
}

// AVFoundationPermissions implements PermissionProvider with the AVFoundation
// authorization API. An undetermined status triggers the system prompt and
// waits for the answer until ctx is done.
type AVFoundationPermissions struct {
	PollInterval time.Duration // default: 100ms
}

// RequestAccess implements PermissionProvider.
func (p AVFoundationPermissions) RequestAccess(ctx context.Context, kind DeviceKind) (bool, error) {
	if err := loadAVFoundation(); err != nil {
		return false, err
	}
	var status func() int32
	var request func()
	switch kind {
	case DeviceKindCamera:
		status, request = streamAVCameraPermissionStatus, streamAVRequestCameraPermission
	case DeviceKindMicrophone:
		status, request = streamAVMicrophonePermissionStatus, streamAVRequestMicPermission
	default:
		return false, fmt.Errorf("%w: %s permission", ErrNotSupported, kind)
	}

	if s := status(); s != AVAuthorizationStatusNotDetermined {
		return s == AVAuthorizationStatusAuthorized, nil
	}
	request()

	interval := p.PollInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-ticker.C:
			if s := status(); s != AVAuthorizationStatusNotDetermined {
				return s == AVAuthorizationStatusAuthorized, nil
			}
		}
	}
}
