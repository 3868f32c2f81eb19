//go:build (darwin || linux) && !nodevices

// OS capture devices through the platform libstream_* libraries, loaded
// with purego. The per-OS files bind the symbols; this file bridges the
// native callbacks to DeviceProvider.

package capture

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/ebitengine/purego"
)

// nativeVideoAPI is the camera half of a platform capture library.
type nativeVideoAPI struct {
	deviceCount func() int32
	deviceID    func(index int32) uintptr
	deviceLabel func(index int32) uintptr
	freeString  func(ptr uintptr)
	create      func(deviceID uintptr, width, height, fps int32, callback, userData uintptr) uint64
	start       func(handle uint64) int32
	stop        func(handle uint64) int32
	destroy     func(handle uint64)
	lastError   func() uintptr
}

// nativeAudioAPI is the microphone half of a platform capture library.
type nativeAudioAPI struct {
	create    func(deviceID uintptr, sampleRate, channels int32, callback, userData uintptr) uint64
	start     func(handle uint64) int32
	stop      func(handle uint64) int32
	destroy   func(handle uint64)
	lastError func() uintptr
}

// cString returns a NUL-terminated copy of s. The caller keeps the slice
// alive for the duration of the native call.
func cString(s string) []byte {
	return append([]byte(s), 0)
}

// NativeDeviceProvider implements DeviceProvider on the OS capture
// libraries. Only the devices the platform library supports are available;
// the others return ErrNotSupported.
type NativeDeviceProvider struct {
	cfg   NativeDeviceConfig
	video *nativeVideoAPI
	audio *nativeAudioAPI
}

// NewNativeDeviceProvider loads the platform capture libraries. It fails
// when neither cameras nor microphones are available.
func NewNativeDeviceProvider(cfg NativeDeviceConfig) (*NativeDeviceProvider, error) {
	video, audio, err := loadNativeDevices()
	if video == nil && audio == nil {
		return nil, fmt.Errorf("native devices: %w", err)
	}
	return &NativeDeviceProvider{cfg: cfg.withDefaults(), video: video, audio: audio}, nil
}

// ListCameras implements DeviceProvider.
func (p *NativeDeviceProvider) ListCameras(context.Context) ([]DeviceInfo, error) {
	if p.video == nil {
		return nil, fmt.Errorf("%w: camera capture", ErrNotSupported)
	}
	count := p.video.deviceCount()
	devices := make([]DeviceInfo, 0, count)
	for i := int32(0); i < count; i++ {
		idPtr, labelPtr := p.video.deviceID(i), p.video.deviceLabel(i)
		if idPtr == 0 {
			continue
		}
		devices = append(devices, DeviceInfo{
			DeviceID: goStringFromPtr(idPtr),
			Kind:     DeviceKindCamera,
			Label:    goStringFromPtr(labelPtr),
		})
		p.video.freeString(idPtr)
		if labelPtr != 0 {
			p.video.freeString(labelPtr)
		}
	}
	return devices, nil
}

// OpenScreen implements DeviceProvider.
func (p *NativeDeviceProvider) OpenScreen(context.Context) (VideoDevice, error) {
	return nil, fmt.Errorf("%w: native display capture", ErrNotSupported)
}

// OpenScreenAudio implements DeviceProvider.
func (p *NativeDeviceProvider) OpenScreenAudio(context.Context) (AudioDevice, error) {
	return nil, fmt.Errorf("%w: native display audio capture", ErrNotSupported)
}

// OpenCamera implements DeviceProvider. An empty id opens the default camera.
func (p *NativeDeviceProvider) OpenCamera(ctx context.Context, deviceID string) (VideoDevice, error) {
	if p.video == nil {
		return nil, fmt.Errorf("%w: camera capture", ErrNotSupported)
	}
	if deviceID != "" {
		devs, err := p.ListCameras(ctx)
		if err != nil {
			return nil, err
		}
		found := false
		for _, d := range devs {
			found = found || d.DeviceID == deviceID
		}
		if !found {
			return nil, fmt.Errorf("camera %q not found", deviceID)
		}
	}
	return &nativeVideoDevice{api: p.video, deviceID: deviceID, cfg: p.cfg}, nil
}

// OpenMicrophone implements DeviceProvider.
func (p *NativeDeviceProvider) OpenMicrophone(context.Context) (AudioDevice, error) {
	if p.audio == nil {
		return nil, fmt.Errorf("%w: microphone capture", ErrNotSupported)
	}
	return &nativeAudioDevice{api: p.audio, cfg: p.cfg}, nil
}

// Native callbacks are routed by user data. purego callbacks cannot be
// freed, so each kind is created once per process.
var (
	nativeCapturesMu sync.RWMutex
	nativeVideo      = make(map[uintptr]*nativeVideoDevice)
	nativeAudio      = make(map[uintptr]*nativeAudioDevice)
	nativeCounter    uintptr

	videoCallbackOnce sync.Once
	videoCallback     uintptr
	audioCallbackOnce sync.Once
	audioCallback     uintptr
)

func nextCaptureID() uintptr {
	nativeCapturesMu.Lock()
	defer nativeCapturesMu.Unlock()
	nativeCounter++
	return nativeCounter
}

// nativeVideoFrame is called by the library for every I420 frame. The
// planes are only valid during the call.
func nativeVideoFrame(
	yPlane uintptr, yStride int32,
	uPlane uintptr, uStride int32,
	vPlane uintptr, vStride int32,
	width, height int32,
	_ int64,
	userData uintptr,
) {
	nativeCapturesMu.RLock()
	dev := nativeVideo[userData]
	nativeCapturesMu.RUnlock()
	if dev == nil || !dev.running.Load() || yPlane == 0 || uPlane == 0 || vPlane == 0 {
		return
	}
	chromaH := (int(height) + 1) / 2
	frame := &VideoFrame{
		Data: [][]byte{
			unsafe.Slice((*byte)(unsafe.Pointer(yPlane)), int(yStride)*int(height)),
			unsafe.Slice((*byte)(unsafe.Pointer(uPlane)), int(uStride)*chromaH),
			unsafe.Slice((*byte)(unsafe.Pointer(vPlane)), int(vStride)*chromaH),
		},
		Stride: []int{int(yStride), int(uStride), int(vStride)},
		Width:  int(width),
		Height: int(height),
		Format: PixelFormatI420,
		// Library clocks differ per platform; everything downstream uses
		// the process clock.
		Timestamp: int64(MonotonicNow()),
	}
	dev.cb(frame)
}

// nativeAudioSamples is called by the library with interleaved S16 samples.
func nativeAudioSamples(data uintptr, frames, sampleRate, channels int32, _ int64, userData uintptr) {
	nativeCapturesMu.RLock()
	dev := nativeAudio[userData]
	nativeCapturesMu.RUnlock()
	if dev == nil || !dev.running.Load() || data == 0 || frames <= 0 || channels <= 0 {
		return
	}
	n := int(frames) * int(channels) * 2
	dev.cb(&AudioSamples{
		Data:        unsafe.Slice((*byte)(unsafe.Pointer(data)), n),
		SampleRate:  int(sampleRate),
		Channels:    int(channels),
		SampleCount: int(frames),
		Format:      AudioFormatS16,
		Timestamp:   int64(MonotonicNow()),
	})
}

type nativeVideoDevice struct {
	api      *nativeVideoAPI
	deviceID string
	cfg      NativeDeviceConfig

	mu      sync.Mutex
	handle  uint64
	id      uintptr
	cb      VideoFrameCallback
	running atomic.Bool
}

func (d *nativeVideoDevice) Start(ctx context.Context, cb VideoFrameCallback) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handle != 0 {
		return fmt.Errorf("%w: camera already started", ErrInvalidState)
	}
	videoCallbackOnce.Do(func() { videoCallback = purego.NewCallback(nativeVideoFrame) })

	d.cb = cb
	d.id = nextCaptureID()
	nativeCapturesMu.Lock()
	nativeVideo[d.id] = d
	nativeCapturesMu.Unlock()

	var idPtr uintptr
	var idBuf []byte
	if d.deviceID != "" {
		idBuf = cString(d.deviceID)
		idPtr = uintptr(unsafe.Pointer(&idBuf[0]))
	}
	handle := d.api.create(idPtr, int32(d.cfg.CameraWidth), int32(d.cfg.CameraHeight), int32(d.cfg.CameraFPS), videoCallback, d.id)
	runtime.KeepAlive(idBuf)
	if handle == 0 {
		d.unregister()
		return fmt.Errorf("create camera capture: %s", nativeError(d.api.lastError))
	}
	d.running.Store(true)
	if d.api.start(handle) != 0 {
		d.running.Store(false)
		d.api.destroy(handle)
		d.unregister()
		return fmt.Errorf("start camera capture: %s", nativeError(d.api.lastError))
	}
	d.handle = handle
	return nil
}

func (d *nativeVideoDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handle == 0 {
		return nil
	}
	d.running.Store(false)
	var err error
	if d.api.stop(d.handle) != 0 {
		err = fmt.Errorf("stop camera capture: %s", nativeError(d.api.lastError))
	}
	d.api.destroy(d.handle)
	d.handle = 0
	d.unregister()
	return err
}

func (d *nativeVideoDevice) unregister() {
	nativeCapturesMu.Lock()
	delete(nativeVideo, d.id)
	nativeCapturesMu.Unlock()
}

type nativeAudioDevice struct {
	api *nativeAudioAPI
	cfg NativeDeviceConfig

	mu      sync.Mutex
	handle  uint64
	id      uintptr
	cb      AudioSamplesCallback
	running atomic.Bool
}

func (d *nativeAudioDevice) Start(ctx context.Context, cb AudioSamplesCallback) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handle != 0 {
		return fmt.Errorf("%w: microphone already started", ErrInvalidState)
	}
	audioCallbackOnce.Do(func() { audioCallback = purego.NewCallback(nativeAudioSamples) })

	d.cb = cb
	d.id = nextCaptureID()
	nativeCapturesMu.Lock()
	nativeAudio[d.id] = d
	nativeCapturesMu.Unlock()

	handle := d.api.create(0, int32(d.cfg.SampleRate), int32(d.cfg.Channels), audioCallback, d.id)
	if handle == 0 {
		d.unregister()
		return fmt.Errorf("create microphone capture: %s", nativeError(d.api.lastError))
	}
	d.running.Store(true)
	if d.api.start(handle) != 0 {
		d.running.Store(false)
		d.api.destroy(handle)
		d.unregister()
		return fmt.Errorf("start microphone capture: %s", nativeError(d.api.lastError))
	}
	d.handle = handle
	return nil
}

func (d *nativeAudioDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handle == 0 {
		return nil
	}
	d.running.Store(false)
	var err error
	if d.api.stop(d.handle) != 0 {
		err = fmt.Errorf("stop microphone capture: %s", nativeError(d.api.lastError))
	}
	d.api.destroy(d.handle)
	d.handle = 0
	d.unregister()
	return err
}

func (d *nativeAudioDevice) unregister() {
	nativeCapturesMu.Lock()
	delete(nativeAudio, d.id)
	nativeCapturesMu.Unlock()
}
