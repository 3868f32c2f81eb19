package capture

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// DeviceAudioSource is a microphone or screen-audio source backed by an
// AudioDevice.
type DeviceAudioSource struct {
	id      string
	typ     SourceType
	open    func(ctx context.Context) (AudioDevice, error)
	handler atomic.Pointer[AudioSamplesCallback]

	mu     sync.Mutex
	dev    AudioDevice
	active atomic.Bool
}

// NewMicrophoneSource returns the default microphone source.
func NewMicrophoneSource(p DeviceProvider) *DeviceAudioSource {
	return &DeviceAudioSource{id: MicrophoneSourceID, typ: SourceTypeMicrophone, open: p.OpenMicrophone}
}

// NewScreenAudioSource returns the system audio source.
func NewScreenAudioSource(p DeviceProvider) *DeviceAudioSource {
	return &DeviceAudioSource{id: ScreenAudioSourceID, typ: SourceTypeScreenAudio, open: p.OpenScreenAudio}
}

func (s *DeviceAudioSource) ID() string       { return s.id }
func (s *DeviceAudioSource) Type() SourceType { return s.typ }
func (s *DeviceAudioSource) IsActive() bool   { return s.active.Load() }

// SetSampleHandler sets the raw-sample callback.
func (s *DeviceAudioSource) SetSampleHandler(cb AudioSamplesCallback) {
	if cb == nil {
		s.handler.Store(nil)
		return
	}
	s.handler.Store(&cb)
}

// Start opens and starts the device.
func (s *DeviceAudioSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dev != nil {
		return fmt.Errorf("%w: %s already started", ErrInvalidState, s.id)
	}
	dev, err := s.open(ctx)
	if err != nil {
		return fmt.Errorf("open %s: %w", s.typ, err)
	}
	err = dev.Start(context.WithoutCancel(ctx), func(samples *AudioSamples) {
		if h := s.handler.Load(); h != nil {
			(*h)(samples)
		}
	})
	if err != nil {
		return fmt.Errorf("start %s: %w", s.typ, err)
	}
	s.dev = dev
	s.active.Store(true)
	return nil
}

// Stop stops the device.
func (s *DeviceAudioSource) Stop() error {
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

// RemoteAudioSource is fed by a network listener through Deliver rather than
// by a local device.
type RemoteAudioSource struct {
	id      string
	handler atomic.Pointer[AudioSamplesCallback]
	active  atomic.Bool
}

// NewRemoteAudioSource returns a push-fed source for a remote camera's audio.
func NewRemoteAudioSource(id string) *RemoteAudioSource {
	return &RemoteAudioSource{id: id}
}

func (s *RemoteAudioSource) ID() string       { return s.id }
func (s *RemoteAudioSource) Type() SourceType { return SourceTypeRemoteCameraAudio }
func (s *RemoteAudioSource) IsActive() bool   { return s.active.Load() }

// SetSampleHandler sets the raw-sample callback.
func (s *RemoteAudioSource) SetSampleHandler(cb AudioSamplesCallback) {
	if cb == nil {
		s.handler.Store(nil)
		return
	}
	s.handler.Store(&cb)
}

// Start marks the source active; samples delivered before Start are dropped.
func (s *RemoteAudioSource) Start(context.Context) error {
	s.active.Store(true)
	return nil
}

// Stop marks the source inactive.
func (s *RemoteAudioSource) Stop() error {
	s.active.Store(false)
	return nil
}

// Deliver forwards samples received from the network.
func (s *RemoteAudioSource) Deliver(samples *AudioSamples) {
	if !s.active.Load() {
		return
	}
	if h := s.handler.Load(); h != nil {
		(*h)(samples)
	}
}
