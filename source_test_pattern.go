package capture

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"
)

// SyntheticConfig configures the synthetic device provider.
type SyntheticConfig struct {
	Width  int // Screen width (default: 1280)
	Height int // Screen height (default: 720)
	FPS    int // Frames per second (default: 30)

	CameraWidth  int      // Camera frame width (default: 640)
	CameraHeight int      // Camera frame height (default: 360)
	Cameras      []string // Camera device ids (default: "camera-0")

	SampleRate int     // Microphone rate (default: 44100)
	Channels   int     // Microphone channels (default: 1)
	ToneHz     float64 // Microphone sine frequency (default: 440)
}

// DefaultSyntheticConfig returns a default synthetic configuration.
func DefaultSyntheticConfig() SyntheticConfig {
	return SyntheticConfig{
		Width:        1280,
		Height:       720,
		FPS:          30,
		CameraWidth:  640,
		CameraHeight: 360,
		Cameras:      []string{"camera-0"},
		SampleRate:   44100,
		Channels:     1,
		ToneHz:       440,
	}
}

// SyntheticDeviceProvider is a DeviceProvider generating colour bars and a
// sine tone, stamped on the MonotonicNow clock.
type SyntheticDeviceProvider struct {
	config SyntheticConfig
}

// NewSyntheticDeviceProvider creates a synthetic provider.
func NewSyntheticDeviceProvider(config SyntheticConfig) *SyntheticDeviceProvider {
	d := DefaultSyntheticConfig()
	if config.Width <= 0 {
		config.Width = d.Width
	}
	if config.Height <= 0 {
		config.Height = d.Height
	}
	if config.FPS <= 0 {
		config.FPS = d.FPS
	}
	if config.CameraWidth <= 0 {
		config.CameraWidth = d.CameraWidth
	}
	if config.CameraHeight <= 0 {
		config.CameraHeight = d.CameraHeight
	}
	if config.Cameras == nil {
		config.Cameras = d.Cameras
	}
	if config.SampleRate <= 0 {
		config.SampleRate = d.SampleRate
	}
	if config.Channels <= 0 {
		config.Channels = d.Channels
	}
	if config.ToneHz <= 0 {
		config.ToneHz = d.ToneHz
	}
	return &SyntheticDeviceProvider{config: config}
}

// ListCameras implements DeviceProvider.
func (p *SyntheticDeviceProvider) ListCameras(context.Context) ([]DeviceInfo, error) {
	out := make([]DeviceInfo, 0, len(p.config.Cameras))
	for _, id := range p.config.Cameras {
		out = append(out, DeviceInfo{DeviceID: id, Kind: DeviceKindCamera, Label: "Synthetic " + id})
	}
	return out, nil
}

// OpenScreen implements DeviceProvider. Screen frames are BGRA like a real
// display capture.
func (p *SyntheticDeviceProvider) OpenScreen(context.Context) (VideoDevice, error) {
	return newPatternDevice(p.config.Width, p.config.Height, p.config.FPS, PixelFormatBGRA32, 0), nil
}

// OpenCamera implements DeviceProvider.
func (p *SyntheticDeviceProvider) OpenCamera(_ context.Context, deviceID string) (VideoDevice, error) {
	for i, id := range p.config.Cameras {
		if id == deviceID {
			return newPatternDevice(p.config.CameraWidth, p.config.CameraHeight, p.config.FPS, PixelFormatI420, i+1), nil
		}
	}
	return nil, fmt.Errorf("camera %q not found", deviceID)
}

// OpenMicrophone implements DeviceProvider.
func (p *SyntheticDeviceProvider) OpenMicrophone(context.Context) (AudioDevice, error) {
	return &toneDevice{rate: p.config.SampleRate, channels: p.config.Channels, hz: p.config.ToneHz}, nil
}

// OpenScreenAudio implements DeviceProvider.
func (p *SyntheticDeviceProvider) OpenScreenAudio(context.Context) (AudioDevice, error) {
	return &toneDevice{rate: 48000, channels: 2, hz: p.config.ToneHz * 2}, nil
}

// SMPTE color bars (simplified 8-bar pattern)
var colorBarsRGB = [][3]uint8{
	{192, 192, 192}, // White (75%)
	{192, 192, 0},   // Yellow
	{0, 192, 192},   // Cyan
	{0, 192, 0},     // Green
	{192, 0, 192},   // Magenta
	{192, 0, 0},     // Red
	{0, 0, 192},     // Blue
	{16, 16, 16},    // Black
}

// patternDevice emits colour bars rotated by a per-device offset so cameras
// are distinguishable in a composition.
type patternDevice struct {
	frame    *VideoFrame
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func newPatternDevice(w, h, fps int, format PixelFormat, offset int) *patternDevice {
	d := &patternDevice{interval: time.Second / time.Duration(fps)}
	barWidth := max(w/8, 1)

	switch format {
	case PixelFormatBGRA32:
		buf := make([]byte, w*h*4)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				rgb := colorBarsRGB[(min(x/barWidth, 7)+offset)%8]
				p := buf[(y*w+x)*4:]
				p[0], p[1], p[2], p[3] = rgb[2], rgb[1], rgb[0], 0xFF
			}
		}
		d.frame = &VideoFrame{Data: [][]byte{buf}, Stride: []int{w * 4}, Width: w, Height: h, Format: PixelFormatBGRA32}
	default:
		f := NewI420Frame(w, h)
		for y := 0; y < f.Height; y++ {
			for x := 0; x < f.Width; x++ {
				rgb := colorBarsRGB[(min(x/barWidth, 7)+offset)%8]
				yv, u, v := rgbToYUV(rgb[0], rgb[1], rgb[2])
				f.Data[0][y*f.Stride[0]+x] = yv
				if x%2 == 0 && y%2 == 0 {
					i := (y/2)*f.Stride[1] + x/2
					f.Data[1][i] = u
					f.Data[2][i] = v
				}
			}
		}
		d.frame = f
	}
	d.frame.Duration = d.interval.Nanoseconds()
	return d
}

func (d *patternDevice) Start(ctx context.Context, cb VideoFrameCallback) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return fmt.Errorf("%w: device already running", ErrInvalidState)
	}
	ctx, d.cancel = context.WithCancel(ctx)
	d.done = make(chan struct{})

	go func() {
		defer close(d.done)
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				f := *d.frame
				f.Timestamp = int64(MonotonicNow())
				cb(&f)
			}
		}
	}()
	return nil
}

func (d *patternDevice) Stop() error {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.cancel = nil
	d.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

// toneDevice emits a sine wave in 10ms S16 chunks.
type toneDevice struct {
	rate     int
	channels int
	hz       float64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func (d *toneDevice) Start(ctx context.Context, cb AudioSamplesCallback) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return fmt.Errorf("%w: device already running", ErrInvalidState)
	}
	ctx, d.cancel = context.WithCancel(ctx)
	d.done = make(chan struct{})

	go func() {
		defer close(d.done)
		const chunk = 10 * time.Millisecond
		n := d.rate / 100
		buf := make([]byte, n*d.channels*2)
		phase := 0.0
		step := 2 * math.Pi * d.hz / float64(d.rate)
		amplitude := 0.3 * math.MaxInt16

		ticker := time.NewTicker(chunk)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for i := 0; i < n; i++ {
					v := uint16(int16(amplitude * math.Sin(phase)))
					for ch := 0; ch < d.channels; ch++ {
						binary.LittleEndian.PutUint16(buf[(i*d.channels+ch)*2:], v)
					}
					phase += step
					if phase > 2*math.Pi {
						phase -= 2 * math.Pi
					}
				}
				cb(&AudioSamples{
					Data:        buf,
					SampleRate:  d.rate,
					Channels:    d.channels,
					SampleCount: n,
					Format:      AudioFormatS16,
					Timestamp:   int64(MonotonicNow() - chunk),
				})
			}
		}
	}()
	return nil
}

func (d *toneDevice) Stop() error {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.cancel = nil
	d.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}
