package capture

import (
	"context"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/image/draw"
)

// TextureProvider supplies the current avatar image, or nil if none has been
// rendered yet.
type TextureProvider interface {
	Texture() image.Image
}

// TextureProviderFunc adapts a function to TextureProvider.
type TextureProviderFunc func() image.Image

// Texture implements TextureProvider.
func (f TextureProviderFunc) Texture() image.Image { return f() }

const avatarPollInterval = 10 * time.Millisecond

// AvatarSource renders frames from a TextureProvider on demand.
type AvatarSource struct {
	provider TextureProvider
	active   atomic.Bool

	mu     sync.Mutex
	canvas *image.RGBA
}

// NewAvatarSource wraps provider.
func NewAvatarSource(provider TextureProvider) *AvatarSource {
	return &AvatarSource{provider: provider}
}

func (s *AvatarSource) ID() string       { return AvatarSourceID }
func (s *AvatarSource) Type() SourceType { return SourceTypeAvatar }
func (s *AvatarSource) IsActive() bool   { return s.active.Load() }

// Start waits until the provider has a texture.
func (s *AvatarSource) Start(ctx context.Context) error {
	ticker := time.NewTicker(avatarPollInterval)
	defer ticker.Stop()
	for {
		if s.provider.Texture() != nil {
			s.active.Store(true)
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("avatar: no texture: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// Stop marks the source inactive.
func (s *AvatarSource) Stop() error {
	s.active.Store(false)
	return nil
}

// Frame renders the current texture scaled to width x height as I420.
// It returns nil when the source is inactive or has no texture.
func (s *AvatarSource) Frame(width, height int) *VideoFrame {
	if !s.active.Load() || width <= 0 || height <= 0 {
		return nil
	}
	tex := s.provider.Texture()
	if tex == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.canvas == nil || s.canvas.Bounds().Dx() != width || s.canvas.Bounds().Dy() != height {
		s.canvas = image.NewRGBA(image.Rect(0, 0, width, height))
	}
	draw.BiLinear.Scale(s.canvas, s.canvas.Bounds(), tex, tex.Bounds(), draw.Src, nil)

	f := imageToI420(s.canvas)
	f.Timestamp = int64(MonotonicNow())
	return f
}
