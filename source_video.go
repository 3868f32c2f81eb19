package capture

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// DeviceVideoSource is a screen or camera source backed by a VideoDevice.
type DeviceVideoSource struct {
	id    string
	typ   SourceType
	open  func(ctx context.Context) (VideoDevice, error)
	frame atomic.Pointer[VideoFrameCallback]

	mu     sync.Mutex
	dev    VideoDevice
	active atomic.Bool
}

// NewScreenSource returns the display capture source.
func NewScreenSource(p DeviceProvider) *DeviceVideoSource {
	return &DeviceVideoSource{id: ScreenSourceID, typ: SourceTypeScreen, open: p.OpenScreen}
}

// NewCameraSource returns a camera source identified by its device id.
func NewCameraSource(p DeviceProvider, deviceID string) *DeviceVideoSource {
	return &DeviceVideoSource{
		id:  deviceID,
		typ: SourceTypeCamera,
		open: func(ctx context.Context) (VideoDevice, error) {
			return p.OpenCamera(ctx, deviceID)
		},
	}
}

func (s *DeviceVideoSource) ID() string       { return s.id }
func (s *DeviceVideoSource) Type() SourceType { return s.typ }
func (s *DeviceVideoSource) IsActive() bool   { return s.active.Load() }

// SetFrameHandler sets the callback receiving every captured frame.
func (s *DeviceVideoSource) SetFrameHandler(cb VideoFrameCallback) {
	if cb == nil {
		s.frame.Store(nil)
		return
	}
	s.frame.Store(&cb)
}

// Start opens the device and returns once the first frame has arrived.
// The device keeps running after ctx ends; only Stop ends capture.
func (s *DeviceVideoSource) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.dev != nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s already started", ErrInvalidState, s.id)
	}
	s.mu.Unlock()

	dev, err := s.open(ctx)
	if err != nil {
		return fmt.Errorf("open %s %s: %w", s.typ, s.id, err)
	}

	first := make(chan struct{})
	var once sync.Once
	cb := func(f *VideoFrame) {
		once.Do(func() { close(first) })
		if h := s.frame.Load(); h != nil {
			(*h)(f)
		}
	}
	if err := dev.Start(context.WithoutCancel(ctx), cb); err != nil {
		return fmt.Errorf("start %s %s: %w", s.typ, s.id, err)
	}

	s.mu.Lock()
	s.dev = dev
	s.mu.Unlock()

	select {
	case <-first:
		s.active.Store(true)
		return nil
	case <-ctx.Done():
		_ = s.Stop()
		return fmt.Errorf("%s %s: no frame: %w", s.typ, s.id, ctx.Err())
	}
}

// Stop ends capture.
func (s *DeviceVideoSource) Stop() error {
	s.mu.Lock()
	dev := s.dev
	s.dev = nil
	s.mu.Unlock()

	s.active.Store(false)
	if dev == nil {
		return nil
	}
	return dev.Stop()
}
