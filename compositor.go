package capture

import (
	"fmt"
	"strings"
)

// Layout selects how overlay layers are distributed over the canvas corners.
type Layout int

const (
	LayoutPiP  Layout = iota // configured corner first, then the others
	LayoutGrid               // top-left, top-right, bottom-left, bottom-right
)

func (l Layout) String() string {
	switch l {
	case LayoutGrid:
		return "grid"
	default:
		return "pip"
	}
}

// ParseLayout parses "pip" or "grid".
func ParseLayout(s string) (Layout, error) {
	switch strings.ToLower(s) {
	case "pip", "":
		return LayoutPiP, nil
	case "grid":
		return LayoutGrid, nil
	}
	return LayoutPiP, fmt.Errorf("unknown layout %q", s)
}

// Corner is a canvas corner.
type Corner int

// Corners in enumeration order.
const (
	CornerTopLeft Corner = iota
	CornerTopRight
	CornerBottomLeft
	CornerBottomRight
)

var cornerOrder = [4]Corner{CornerTopLeft, CornerTopRight, CornerBottomLeft, CornerBottomRight}

func (c Corner) String() string {
	switch c {
	case CornerTopLeft:
		return "top-left"
	case CornerTopRight:
		return "top-right"
	case CornerBottomLeft:
		return "bottom-left"
	case CornerBottomRight:
		return "bottom-right"
	default:
		return fmt.Sprintf("Corner(%d)", int(c))
	}
}

// ParseCorner parses a corner name such as "bottom-right".
func ParseCorner(s string) (Corner, error) {
	for _, c := range cornerOrder {
		if strings.EqualFold(s, c.String()) {
			return c, nil
		}
	}
	return CornerBottomRight, fmt.Errorf("unknown corner %q", s)
}

// OverlayCorner returns the corner for the overlay at index among count
// overlay sources. A single overlay always uses the configured corner.
func OverlayCorner(layout Layout, configured Corner, index, count int) Corner {
	if count <= 1 || index < 0 {
		return configured
	}
	if layout == LayoutGrid {
		return cornerOrder[index%len(cornerOrder)]
	}
	if index%len(cornerOrder) == 0 {
		return configured
	}
	n := 0
	for _, c := range cornerOrder {
		if c == configured {
			continue
		}
		n++
		if n == index%len(cornerOrder) {
			return c
		}
	}
	return configured
}

// PlacementConfig positions overlay layers.
type PlacementConfig struct {
	Layout        Layout
	Corner        Corner  // corner of a single overlay, first corner in PiP
	ScaleFraction float64 // overlay width as a fraction of canvas width
	Margin        int     // distance from the canvas edges in pixels
}

// DefaultPlacementConfig returns a bottom-right picture-in-picture placement.
func DefaultPlacementConfig() PlacementConfig {
	return PlacementConfig{
		Layout:        LayoutPiP,
		Corner:        CornerBottomRight,
		ScaleFraction: 0.25,
		Margin:        16,
	}
}

// OverlayRect returns where an srcW x srcH overlay at index among count is
// drawn on a canvasW x canvasH canvas. The overlay keeps its aspect ratio.
func (p PlacementConfig) OverlayRect(canvasW, canvasH, srcW, srcH, index, count int) Rect {
	frac := p.ScaleFraction
	if frac <= 0 || frac > 1 {
		frac = 0.25
	}
	w := int(float64(canvasW)*frac) &^ 1
	h := w
	if srcW > 0 {
		h = (w * srcH / srcW) &^ 1
	}
	if maxH := (canvasH - 2*p.Margin) &^ 1; h > maxH && maxH > 0 {
		w = (w * maxH / h) &^ 1
		h = maxH
	}

	r := Rect{W: w, H: h}
	switch OverlayCorner(p.Layout, p.Corner, index, count) {
	case CornerTopLeft:
		r.X, r.Y = p.Margin, p.Margin
	case CornerTopRight:
		r.X, r.Y = canvasW-w-p.Margin, p.Margin
	case CornerBottomLeft:
		r.X, r.Y = p.Margin, canvasH-h-p.Margin
	default:
		r.X, r.Y = canvasW-w-p.Margin, canvasH-h-p.Margin
	}
	return r
}

// CompositorConfig configures a Compositor.
type CompositorConfig struct {
	Width      int     // standard canvas width
	Height     int     // standard canvas height
	Background [3]byte // Background color (Y, U, V)
	Placement  PlacementConfig
}

// DefaultCompositorConfig returns a 1080p canvas with PiP placement.
func DefaultCompositorConfig() CompositorConfig {
	return CompositorConfig{
		Width:      1920,
		Height:     1080,
		Background: [3]byte{16, 128, 128}, // Black in YUV
		Placement:  DefaultPlacementConfig(),
	}
}

// Overlay is one secondary layer. Index is the layer's position in the
// ordered list of overlay sources, whether or not every source has a frame.
type Overlay struct {
	ID    string
	Frame *VideoFrame
	Index int
}

// Compositor draws overlay layers onto a base frame. It is stateless apart
// from its configuration and safe for concurrent use.
type Compositor struct {
	config CompositorConfig
}

// NewCompositor creates a compositor.
func NewCompositor(config CompositorConfig) *Compositor {
	d := DefaultCompositorConfig()
	if config.Width <= 0 {
		config.Width = d.Width
	}
	if config.Height <= 0 {
		config.Height = d.Height
	}
	if config.Background == [3]byte{} {
		config.Background = d.Background
	}
	if config.Placement.ScaleFraction <= 0 {
		config.Placement.ScaleFraction = d.Placement.ScaleFraction
	}
	// Ensure even dimensions
	config.Width = (config.Width + 1) &^ 1
	config.Height = (config.Height + 1) &^ 1
	return &Compositor{config: config}
}

// Config returns the compositor configuration.
func (c *Compositor) Config() CompositorConfig { return c.config }

// Compose returns a new I420 frame holding base with every overlay drawn at
// its placement. slots is the number of overlay sources the indices refer
// to. The result carries base's timestamp.
func (c *Compositor) Compose(base *VideoFrame, overlays []Overlay, slots int) (*VideoFrame, error) {
	b, err := ToI420(base)
	if err != nil {
		return nil, fmt.Errorf("compose base: %w", err)
	}
	out := b
	if b == base {
		out = base.Clone()
	}

	if err := c.drawOverlays(out, overlays, slots); err != nil {
		return nil, err
	}
	return out, nil
}

// Canvas fits primary onto the standard canvas, letterboxed on the
// background colour, and draws overlays on top.
func (c *Compositor) Canvas(primary *VideoFrame, overlays []Overlay, slots int) (*VideoFrame, error) {
	out := NewI420Frame(c.config.Width, c.config.Height)
	bg := c.config.Background
	out.Fill(bg[0], bg[1], bg[2])

	if primary != nil {
		p, err := ToI420(primary)
		if err != nil {
			return nil, fmt.Errorf("canvas primary: %w", err)
		}
		w, h := CalculateScaledSize(p.Width, p.Height, out.Width, out.Height, ScaleModeFit)
		ScaleInto(out, p, Rect{X: ((out.Width - w) / 2) &^ 1, Y: ((out.Height - h) / 2) &^ 1, W: w, H: h}, ScaleModeStretch)
		out.Timestamp, out.Duration = primary.Timestamp, primary.Duration
	}

	if err := c.drawOverlays(out, overlays, slots); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Compositor) drawOverlays(out *VideoFrame, overlays []Overlay, slots int) error {
	if slots < len(overlays) {
		slots = len(overlays)
	}
	for _, o := range overlays {
		if o.Frame == nil {
			continue
		}
		f, err := ToI420(o.Frame)
		if err != nil {
			return fmt.Errorf("overlay %s: %w", o.ID, err)
		}
		r := c.config.Placement.OverlayRect(out.Width, out.Height, f.Width, f.Height, o.Index, slots)
		ScaleInto(out, f, r, ScaleModeStretch)
	}
	return nil
}
