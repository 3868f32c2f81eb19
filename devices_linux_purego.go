//go:build linux && !nodevices

package capture

import (
	"errors"
	"sync"

	"github.com/ebitengine/purego"
)

var (
	linuxDevicesOnce sync.Once
	linuxVideo       *nativeVideoAPI
	linuxAudio       *nativeAudioAPI
	linuxDevicesErr  error
)

func bindV4L2(h uintptr) *nativeVideoAPI {
	api := &nativeVideoAPI{}
	purego.RegisterLibFunc(&api.deviceCount, h, "stream_v4l2_device_count")
	purego.RegisterLibFunc(&api.deviceID, h, "stream_v4l2_device_path")
	purego.RegisterLibFunc(&api.deviceLabel, h, "stream_v4l2_device_name")
	purego.RegisterLibFunc(&api.freeString, h, "stream_v4l2_free_string")
	purego.RegisterLibFunc(&api.create, h, "stream_v4l2_capture_create")
	purego.RegisterLibFunc(&api.start, h, "stream_v4l2_capture_start")
	purego.RegisterLibFunc(&api.stop, h, "stream_v4l2_capture_stop")
	purego.RegisterLibFunc(&api.destroy, h, "stream_v4l2_capture_destroy")
	purego.RegisterLibFunc(&api.lastError, h, "stream_v4l2_get_error")
	return api
}

func bindALSA(h uintptr) *nativeAudioAPI {
	api := &nativeAudioAPI{}
	purego.RegisterLibFunc(&api.create, h, "stream_alsa_capture_create")
	purego.RegisterLibFunc(&api.start, h, "stream_alsa_capture_start")
	purego.RegisterLibFunc(&api.stop, h, "stream_alsa_capture_stop")
	purego.RegisterLibFunc(&api.destroy, h, "stream_alsa_capture_destroy")
	purego.RegisterLibFunc(&api.lastError, h, "stream_alsa_get_error")
	return api
}

// loadNativeDevices binds libstream_v4l2 (cameras, device ids are /dev
// paths) and libstream_alsa (microphone). Either may be missing.
func loadNativeDevices() (*nativeVideoAPI, *nativeAudioAPI, error) {
	linuxDevicesOnce.Do(func() {
		var errs []error
		_, err := dlopenFirst("libstream_v4l2", "STREAM_V4L2_LIB_PATH", func(h uintptr) error {
			linuxVideo = bindV4L2(h)
			return nil
		})
		errs = append(errs, err)
		_, err = dlopenFirst("libstream_alsa", "STREAM_ALSA_LIB_PATH", func(h uintptr) error {
			linuxAudio = bindALSA(h)
			return nil
		})
		errs = append(errs, err)
		linuxDevicesErr = errors.Join(errs...)
	})
	return linuxVideo, linuxAudio, linuxDevicesErr
}

// IsV4L2Available reports whether camera capture is available.
func IsV4L2Available() bool {
	video, _, _ := loadNativeDevices()
	return video != nil
}

// IsALSAAvailable reports whether microphone capture is available.
func IsALSAAvailable() bool {
	_, audio, _ := loadNativeDevices()
	return audio != nil
}
