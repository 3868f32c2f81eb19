package capture

// ScaleMode defines how scaling should handle aspect ratio mismatches.
type ScaleMode int

const (
	// ScaleModeFit scales to fit within target dimensions, preserving aspect ratio (may letterbox).
	ScaleModeFit ScaleMode = iota
	// ScaleModeFill scales to fill target dimensions, preserving aspect ratio (may crop).
	ScaleModeFill
	// ScaleModeStretch scales to exactly match target dimensions (may distort).
	ScaleModeStretch
)

// Rect is a pixel rectangle on a frame.
type Rect struct {
	X, Y, W, H int
}

// ScaleFrame scales an I420 frame to dstWidth x dstHeight. In fit mode the
// image is letterboxed on black.
func ScaleFrame(frame *VideoFrame, dstWidth, dstHeight int, mode ScaleMode) *VideoFrame {
	if frame.Width == dstWidth && frame.Height == dstHeight {
		return frame
	}
	out := NewI420Frame(dstWidth, dstHeight)
	out.Timestamp, out.Duration = frame.Timestamp, frame.Duration

	dst := Rect{W: out.Width, H: out.Height}
	if mode == ScaleModeFit {
		w, h := CalculateScaledSize(frame.Width, frame.Height, out.Width, out.Height, ScaleModeFit)
		dst = Rect{X: ((out.Width - w) / 2) &^ 1, Y: ((out.Height - h) / 2) &^ 1, W: w, H: h}
	}
	ScaleInto(out, frame, dst, mode)
	return out
}

// ScaleInto draws src scaled into region r of dst. Both frames must be
// I420; r is clipped to dst and aligned to even coordinates.
func ScaleInto(dst, src *VideoFrame, r Rect, mode ScaleMode) {
	r.X, r.Y = r.X&^1, r.Y&^1
	r.W, r.H = r.W&^1, r.H&^1
	if r.X < 0 {
		r.W += r.X
		r.X = 0
	}
	if r.Y < 0 {
		r.H += r.Y
		r.Y = 0
	}
	r.W = min(r.W, dst.Width-r.X)
	r.H = min(r.H, dst.Height-r.Y)
	if r.W <= 0 || r.H <= 0 || src.Width <= 0 || src.Height <= 0 {
		return
	}

	srcX, srcY, srcW, srcH := sourceRegion(src.Width, src.Height, r.W, r.H, mode)

	scalePlane(src.Data[0], src.Stride[0], srcX, srcY, srcW, srcH,
		dst.Data[0], dst.Stride[0], r.X, r.Y, r.W, r.H)
	for p := 1; p <= 2; p++ {
		scalePlane(src.Data[p], src.Stride[p], srcX/2, srcY/2, srcW/2, srcH/2,
			dst.Data[p], dst.Stride[p], r.X/2, r.Y/2, r.W/2, r.H/2)
	}
}

// sourceRegion determines what region of the source to use based on scale mode.
func sourceRegion(srcW, srcH, dstW, dstH int, mode ScaleMode) (x, y, w, h int) {
	if mode != ScaleModeFill {
		return 0, 0, srcW, srcH
	}
	// Crop source to match target aspect ratio
	srcAspect := float64(srcW) / float64(srcH)
	dstAspect := float64(dstW) / float64(dstH)
	if srcAspect > dstAspect {
		newW := int(float64(srcH)*dstAspect) &^ 1
		return ((srcW - newW) / 2) &^ 1, 0, newW, srcH
	} else if srcAspect < dstAspect {
		newH := int(float64(srcW)/dstAspect) &^ 1
		return 0, ((srcH - newH) / 2) &^ 1, srcW, newH
	}
	return 0, 0, srcW, srcH
}

// scalePlane scales a source region of one plane into a destination region
// using bilinear interpolation.
func scalePlane(src []byte, srcStride, srcX, srcY, srcW, srcH int,
	dst []byte, dstStride, dstX, dstY, dstW, dstH int) {

	if srcW <= 0 || srcH <= 0 || dstW <= 0 || dstH <= 0 {
		return
	}

	// Fixed-point scaling factors (16.16)
	xRatio := (srcW << 16) / dstW
	yRatio := (srcH << 16) / dstH

	for y := 0; y < dstH; y++ {
		srcYFP := y * yRatio
		yWeight := srcYFP & 0xFFFF

		y0 := srcYFP>>16 + srcY
		y1 := y0 + 1
		if y1 >= srcY+srcH {
			y1 = y0
		}
		row0 := src[y0*srcStride:]
		row1 := src[y1*srcStride:]
		out := dst[(dstY+y)*dstStride+dstX:]

		for x := 0; x < dstW; x++ {
			srcXFP := x * xRatio
			xWeight := srcXFP & 0xFFFF

			x0 := srcXFP>>16 + srcX
			x1 := x0 + 1
			if x1 >= srcX+srcW {
				x1 = x0
			}

			top := (int(row0[x0])*(0x10000-xWeight) + int(row0[x1])*xWeight) >> 16
			bottom := (int(row1[x0])*(0x10000-xWeight) + int(row1[x1])*xWeight) >> 16
			out[x] = byte((top*(0x10000-yWeight) + bottom*yWeight) >> 16)
		}
	}
}

// CalculateScaledSize returns the output dimensions when scaling with a given mode.
// This is useful for determining letterbox dimensions in ScaleModeFit.
func CalculateScaledSize(srcW, srcH, maxW, maxH int, mode ScaleMode) (w, h int) {
	if mode != ScaleModeFit || srcW <= 0 || srcH <= 0 {
		return maxW, maxH
	}
	srcAspect := float64(srcW) / float64(srcH)
	dstAspect := float64(maxW) / float64(maxH)

	if srcAspect > dstAspect {
		// Source is wider, fit to width
		w = maxW
		h = int(float64(maxW) / srcAspect)
	} else {
		// Source is taller, fit to height
		h = maxH
		w = int(float64(maxH) * srcAspect)
	}
	// Even dimensions, never larger than the bounds
	w = min((w+1)&^1, maxW&^1)
	h = min((h+1)&^1, maxH&^1)
	return w, h
}
