package capture

import (
	"testing"
)

func TestScaleFrame_NoScaling(t *testing.T) {
	frame := createGradientFrame(640, 480)
	frame.Timestamp = 12345

	out := ScaleFrame(frame, 640, 480, ScaleModeStretch)

	// Should return same frame when no scaling needed
	if out != frame {
		t.Error("Expected same frame when no scaling needed")
	}
}

func TestScaleFrame_Sizes(t *testing.T) {
	tests := []struct {
		name       string
		srcW, srcH int
		dstW, dstH int
		mode       ScaleMode
	}{
		{"downscale", 1280, 720, 640, 360, ScaleModeStretch},
		{"upscale", 320, 240, 640, 480, ScaleModeStretch},
		{"fill crops sides", 1920, 1080, 640, 480, ScaleModeFill},
		{"fit letterboxes", 1920, 1080, 640, 480, ScaleModeFit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := createGradientFrame(tt.srcW, tt.srcH)
			frame.Timestamp = 42
			out := ScaleFrame(frame, tt.dstW, tt.dstH, tt.mode)

			if out.Width != tt.dstW || out.Height != tt.dstH {
				t.Fatalf("Expected %dx%d, got %dx%d", tt.dstW, tt.dstH, out.Width, out.Height)
			}
			if len(out.Data[0]) != tt.dstW*tt.dstH {
				t.Errorf("Y plane size mismatch: expected %d, got %d", tt.dstW*tt.dstH, len(out.Data[0]))
			}
			if len(out.Data[1]) != (tt.dstW/2)*(tt.dstH/2) {
				t.Errorf("U plane size mismatch")
			}
			if out.Timestamp != 42 {
				t.Errorf("Timestamp = %d, want 42", out.Timestamp)
			}
		})
	}
}

func TestScaleFrame_FitKeepsBarsBlack(t *testing.T) {
	frame := NewI420Frame(320, 180)
	frame.Fill(200, 128, 128)

	out := ScaleFrame(frame, 320, 240, ScaleModeFit)

	// 320x180 inside 320x240 leaves 30-row bars top and bottom.
	if got := out.Data[0][0]; got != 16 {
		t.Errorf("top bar luma = %d, want 16", got)
	}
	if got := out.Data[0][120*320+160]; got != 200 {
		t.Errorf("centre luma = %d, want 200", got)
	}
	if got := out.Data[0][239*320]; got != 16 {
		t.Errorf("bottom bar luma = %d, want 16", got)
	}
}

func TestScaleInto_Region(t *testing.T) {
	dst := NewI420Frame(64, 64)
	src := NewI420Frame(16, 16)
	src.Fill(235, 128, 128)

	ScaleInto(dst, src, Rect{X: 32, Y: 32, W: 32, H: 32}, ScaleModeStretch)

	if got := dst.Data[0][0]; got != 16 {
		t.Errorf("outside region luma = %d, want 16", got)
	}
	if got := dst.Data[0][40*64+40]; got != 235 {
		t.Errorf("inside region luma = %d, want 235", got)
	}
}

func TestScaleInto_ClipsToDestination(t *testing.T) {
	dst := NewI420Frame(32, 32)
	src := NewI420Frame(16, 16)
	src.Fill(100, 128, 128)

	// Must not panic when the region runs off the canvas.
	ScaleInto(dst, src, Rect{X: 24, Y: 24, W: 32, H: 32}, ScaleModeStretch)
	ScaleInto(dst, src, Rect{X: -8, Y: -8, W: 16, H: 16}, ScaleModeStretch)

	if got := dst.Data[0][31*32+31]; got != 100 {
		t.Errorf("clipped corner luma = %d, want 100", got)
	}
	if got := dst.Data[0][0]; got != 100 {
		t.Errorf("negative-offset corner luma = %d, want 100", got)
	}
}

func TestCalculateScaledSize(t *testing.T) {
	tests := []struct {
		name             string
		srcW, srcH       int
		maxW, maxH       int
		mode             ScaleMode
		expectW, expectH int
	}{
		{"16:9 to 4:3 fit", 1920, 1080, 640, 480, ScaleModeFit, 640, 360},
		{"4:3 to 16:9 fit", 640, 480, 1280, 720, ScaleModeFit, 960, 720},
		{"same aspect", 1280, 720, 640, 360, ScaleModeFit, 640, 360},
		{"fill mode", 1920, 1080, 640, 480, ScaleModeFill, 640, 480},
		{"stretch mode", 1920, 1080, 640, 480, ScaleModeStretch, 640, 480},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := CalculateScaledSize(tt.srcW, tt.srcH, tt.maxW, tt.maxH, tt.mode)
			if w != tt.expectW || h != tt.expectH {
				t.Errorf("Expected %dx%d, got %dx%d", tt.expectW, tt.expectH, w, h)
			}
		})
	}
}

func createGradientFrame(width, height int) *VideoFrame {
	frame := NewI420Frame(width, height)

	// Fill Y with horizontal gradient
	y := frame.Data[0]
	for row := 0; row < height; row++ {
		for x := 0; x < width; x++ {
			y[row*width+x] = byte(x * 255 / width)
		}
	}
	return frame
}

func BenchmarkScaleFrame_720pTo480p(b *testing.B) {
	frame := createGradientFrame(1280, 720)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ScaleFrame(frame, 640, 480, ScaleModeFill)
	}
}

func BenchmarkScaleFrame_1080pTo720p(b *testing.B) {
	frame := createGradientFrame(1920, 1080)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ScaleFrame(frame, 1280, 720, ScaleModeFill)
	}
}
