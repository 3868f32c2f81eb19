//go:build (darwin || linux) && !nodevices

package capture

import (
	"context"
	"errors"
	"testing"
	"unsafe"
)

// fakeCameraLib stands in for a platform library behind nativeVideoAPI.
type fakeCameraLib struct {
	created  int
	userData uintptr
	width    int32
	started  bool
	stopped  bool
	failOn   string
}

func (l *fakeCameraLib) api() *nativeVideoAPI {
	return &nativeVideoAPI{
		deviceCount: func() int32 { return 0 },
		create: func(_ uintptr, width, _, _ int32, _, userData uintptr) uint64 {
			if l.failOn == "create" {
				return 0
			}
			l.created++
			l.userData, l.width = userData, width
			return 7
		},
		start: func(uint64) int32 {
			if l.failOn == "start" {
				return -1
			}
			l.started = true
			return 0
		},
		stop:      func(uint64) int32 { l.stopped = true; return 0 },
		destroy:   func(uint64) {},
		lastError: func() uintptr { return 0 },
	}
}

func TestNativeVideoDevice_RoutesFrames(t *testing.T) {
	lib := &fakeCameraLib{}
	dev := &nativeVideoDevice{api: lib.api(), cfg: NativeDeviceConfig{}.withDefaults()}

	var got []*VideoFrame
	if err := dev.Start(context.Background(), func(f *VideoFrame) { got = append(got, f.Clone()) }); err != nil {
		t.Fatal(err)
	}
	if !lib.started || lib.width != 1280 {
		t.Fatalf("library not started with the defaults (width %d)", lib.width)
	}
	if err := dev.Start(context.Background(), nil); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second Start = %v", err)
	}

	src := NewI420Frame(4, 2)
	src.Fill(90, 60, 30)
	plane := func(i int) uintptr { return uintptr(unsafe.Pointer(&src.Data[i][0])) }
	nativeVideoFrame(plane(0), 4, plane(1), 2, plane(2), 2, 4, 2, 12345, lib.userData)
	nativeVideoFrame(plane(0), 4, plane(1), 2, plane(2), 2, 4, 2, 0, lib.userData+1000)

	if len(got) != 1 {
		t.Fatalf("delivered %d frames, want 1", len(got))
	}
	f := got[0]
	if f.Width != 4 || f.Height != 2 || f.Format != PixelFormatI420 || f.Data[0][0] != 90 || f.Data[2][0] != 30 {
		t.Errorf("frame = %dx%d %s y=%d v=%d", f.Width, f.Height, f.Format, f.Data[0][0], f.Data[2][0])
	}
	if f.Timestamp == 12345 || f.Timestamp <= 0 {
		t.Errorf("timestamp %d not on the process clock", f.Timestamp)
	}

	if err := dev.Stop(); err != nil {
		t.Fatal(err)
	}
	if !lib.stopped {
		t.Error("library capture not stopped")
	}
	nativeVideoFrame(plane(0), 4, plane(1), 2, plane(2), 2, 4, 2, 0, lib.userData)
	if len(got) != 1 {
		t.Error("frame delivered after Stop")
	}
	if err := dev.Stop(); err != nil {
		t.Errorf("second Stop = %v", err)
	}
}

func TestNativeVideoDevice_StartFailures(t *testing.T) {
	for _, step := range []string{"create", "start"} {
		t.Run(step, func(t *testing.T) {
			lib := &fakeCameraLib{failOn: step}
			dev := &nativeVideoDevice{api: lib.api(), cfg: NativeDeviceConfig{}.withDefaults()}
			if err := dev.Start(context.Background(), func(*VideoFrame) {}); err == nil {
				t.Fatal("Start succeeded")
			}
			nativeCapturesMu.RLock()
			_, registered := nativeVideo[dev.id]
			nativeCapturesMu.RUnlock()
			if registered {
				t.Error("failed device left in the callback table")
			}
		})
	}
}

func TestNativeAudioDevice_RoutesSamples(t *testing.T) {
	var userData uintptr
	api := &nativeAudioAPI{
		create: func(_ uintptr, rate, channels int32, _, ud uintptr) uint64 {
			if rate != 48000 || channels != 1 {
				t.Errorf("create(%d, %d)", rate, channels)
			}
			userData = ud
			return 3
		},
		start:     func(uint64) int32 { return 0 },
		stop:      func(uint64) int32 { return 0 },
		destroy:   func(uint64) {},
		lastError: func() uintptr { return 0 },
	}
	dev := &nativeAudioDevice{api: api, cfg: NativeDeviceConfig{}.withDefaults()}
	var got []*AudioSamples
	if err := dev.Start(context.Background(), func(s *AudioSamples) { got = append(got, s.Clone()) }); err != nil {
		t.Fatal(err)
	}
	defer dev.Stop()

	pcm := make([]byte, 480*2)
	pcm[0] = 0x7F
	nativeAudioSamples(uintptr(unsafe.Pointer(&pcm[0])), 480, 48000, 1, 0, userData)
	nativeAudioSamples(uintptr(unsafe.Pointer(&pcm[0])), 0, 48000, 1, 0, userData)

	if len(got) != 1 {
		t.Fatalf("delivered %d buffers, want 1", len(got))
	}
	s := got[0]
	if s.SampleCount != 480 || len(s.Data) != 960 || s.Format != AudioFormatS16 || s.Data[0] != 0x7F {
		t.Errorf("samples = %d frames, %d bytes", s.SampleCount, len(s.Data))
	}
}

func TestNativeDeviceConfig_Defaults(t *testing.T) {
	cfg := NativeDeviceConfig{CameraWidth: 640}.withDefaults()
	if cfg.CameraWidth != 1280 || cfg.CameraHeight != 720 {
		t.Errorf("half-specified size kept: %dx%d", cfg.CameraWidth, cfg.CameraHeight)
	}
	cfg = NativeDeviceConfig{CameraWidth: 640, CameraHeight: 480, Channels: 2}.withDefaults()
	if cfg.CameraWidth != 640 || cfg.Channels != 2 || cfg.CameraFPS != 30 || cfg.SampleRate != 48000 {
		t.Errorf("cfg = %+v", cfg)
	}
}
