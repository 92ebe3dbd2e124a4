package rover

import "image"

// ThreshResult holds the three binary classification masks for one camera
// frame. Nav and Obs partition the non-black pixels; Rock is independent and
// may overlap either.
type ThreshResult struct {
	Nav  Mask
	Obs  Mask
	Rock Mask
}

// Threshold classifies every pixel of the (already ground-plane projected)
// frame into navigable / obstacle / rock masks.
//
// A pixel is navigable iff all three RGB channels strictly exceed the
// threshold triple. A pixel is an obstacle iff it is non-black (all channels
// above zero) and not navigable. Rock pixels are matched by an inclusive HSV
// range test in the calibration's red-blue swapped hue space, which puts the
// gold sample color near hue 94.
func Threshold(img *image.RGBA, navThresh, rockLow, rockHigh [3]uint8) ThreshResult {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	res := ThreshResult{
		Nav:  NewMask(w, h),
		Obs:  NewMask(w, h),
		Rock: NewMask(w, h),
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := img.PixOffset(b.Min.X+x, b.Min.Y+y)
			r, g, bl := img.Pix[i], img.Pix[i+1], img.Pix[i+2]

			aboveThresh := r > navThresh[0] && g > navThresh[1] && bl > navThresh[2]
			nonBlack := r > 0 && g > 0 && bl > 0

			if aboveThresh {
				res.Nav.Set(x, y)
			} else if nonBlack {
				res.Obs.Set(x, y)
			}

			// The rock calibration bounds were measured in a hue space with
			// the red and blue channels swapped; swap here so the shipped
			// constants stay valid.
			hue, sat, val := rgbToHSV(bl, g, r)
			if inRange(hue, rockLow[0], rockHigh[0]) &&
				inRange(sat, rockLow[1], rockHigh[1]) &&
				inRange(val, rockLow[2], rockHigh[2]) {
				res.Rock.Set(x, y)
			}
		}
	}
	return res
}

func inRange(v, lo, hi uint8) bool {
	return v >= lo && v <= hi
}

// rgbToHSV converts an RGB pixel to HSV with OpenCV scaling: H in [0, 180),
// S and V in [0, 255]. The rock color calibration constants were measured in
// this scaling.
func rgbToHSV(r, g, b uint8) (uint8, uint8, uint8) {
	max := r
	if g > max {
		max = g
	}
	if b > max {
		max = b
	}
	min := r
	if g < min {
		min = g
	}
	if b < min {
		min = b
	}

	v := max
	delta := int(max) - int(min)

	var s uint8
	if max > 0 {
		s = uint8((255*delta + int(max)/2) / int(max))
	}

	if delta == 0 {
		return 0, s, v
	}

	var hue int
	switch max {
	case r:
		hue = (60 * (int(g) - int(b))) / delta
	case g:
		hue = 120 + (60*(int(b)-int(r)))/delta
	default:
		hue = 240 + (60*(int(r)-int(g)))/delta
	}
	if hue < 0 {
		hue += 360
	}
	return uint8(hue / 2), s, v
}
