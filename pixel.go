package capture

import (
	"fmt"
	"image"
)

// rgbToYUV converts one pixel with BT.601 studio-swing coefficients.
func rgbToYUV(r, g, b uint8) (y, u, v uint8) {
	ri, gi, bi := int(r), int(g), int(b)
	yi := (66*ri+129*gi+25*bi+128)>>8 + 16
	ui := (-38*ri-74*gi+112*bi+128)>>8 + 128
	vi := (112*ri-94*gi-18*bi+128)>>8 + 128
	return clampByte(yi), clampByte(ui), clampByte(vi)
}

func clampByte(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// ToI420 returns f as an I420 frame. I420 input is returned unchanged;
// NV12, BGRA32 and RGBA32 are converted into a new frame.
func ToI420(f *VideoFrame) (*VideoFrame, error) {
	if f == nil || f.Width <= 0 || f.Height <= 0 {
		return nil, fmt.Errorf("%w: empty frame", ErrUnsupportedFormat)
	}
	if len(f.Data) < f.Format.PlaneCount() || len(f.Stride) < f.Format.PlaneCount() {
		return nil, fmt.Errorf("%w: %s frame with %d planes", ErrUnsupportedFormat, f.Format, len(f.Data))
	}

	switch f.Format {
	case PixelFormatI420:
		return f, nil
	case PixelFormatNV12:
		out := NewI420Frame(f.Width, f.Height)
		out.Timestamp, out.Duration = f.Timestamp, f.Duration
		for row := 0; row < f.Height; row++ {
			copy(out.Data[0][row*out.Stride[0]:row*out.Stride[0]+f.Width], f.Data[0][row*f.Stride[0]:])
		}
		for row := 0; row < f.Height/2; row++ {
			uv := f.Data[1][row*f.Stride[1]:]
			for col := 0; col < f.Width/2; col++ {
				out.Data[1][row*out.Stride[1]+col] = uv[col*2]
				out.Data[2][row*out.Stride[2]+col] = uv[col*2+1]
			}
		}
		return out, nil
	case PixelFormatBGRA32:
		return packedToI420(f, 2, 1, 0), nil
	case PixelFormatRGBA32:
		return packedToI420(f, 0, 1, 2), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, f.Format)
	}
}

// packedToI420 converts a 4-byte-per-pixel frame; ri, gi, bi are the byte
// offsets of each channel within a pixel.
func packedToI420(f *VideoFrame, ri, gi, bi int) *VideoFrame {
	out := NewI420Frame(f.Width, f.Height)
	out.Timestamp, out.Duration = f.Timestamp, f.Duration
	src, stride := f.Data[0], f.Stride[0]

	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			p := src[y*stride+x*4:]
			yv, u, v := rgbToYUV(p[ri], p[gi], p[bi])
			out.Data[0][y*out.Stride[0]+x] = yv
			if x%2 == 0 && y%2 == 0 {
				i := (y/2)*out.Stride[1] + x/2
				out.Data[1][i] = u
				out.Data[2][i] = v
			}
		}
	}
	return out
}

// imageToI420 converts an RGBA image to an I420 frame of the same size.
func imageToI420(img *image.RGBA) *VideoFrame {
	b := img.Bounds()
	f := &VideoFrame{
		Data:   [][]byte{img.Pix[img.PixOffset(b.Min.X, b.Min.Y):]},
		Stride: []int{img.Stride},
		Width:  b.Dx(),
		Height: b.Dy(),
		Format: PixelFormatRGBA32,
	}
	return packedToI420(f, 0, 1, 2)
}
