package rover

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Display channel values for the vision inset. Each classification gets one
// RGB channel so overlaps stay visible.
const (
	visionObsVal  = 135
	visionRockVal = 255
	visionNavVal  = 175
)

// VisionImage composes the three classification masks into the left-side
// display inset: obstacles in red, rocks in green, navigable terrain in
// blue.
func VisionImage(t ThreshResult) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, t.Nav.Width, t.Nav.Height))
	for y := 0; y < t.Nav.Height; y++ {
		for x := 0; x < t.Nav.Width; x++ {
			i := img.PixOffset(x, y)
			if t.Obs.At(x, y) {
				img.Pix[i] = visionObsVal
			}
			if t.Rock.At(x, y) {
				img.Pix[i+1] = visionRockVal
			}
			if t.Nav.At(x, y) {
				img.Pix[i+2] = visionNavVal
			}
			img.Pix[i+3] = 255
		}
	}
	return img
}

// RenderWorldMap draws the accumulated world map over the ground truth for
// the right-side display inset: ground truth in green, obstacles red,
// navigable blue, rocks white, plus a rover marker and a progress label.
// World rows (origin bottom-left) are flipped into image rows (origin
// top-left).
func RenderWorldMap(snap WorldMapSnapshot, pos Point, yaw, mappedPercent float64, samples int) *image.RGBA {
	size := snap.Size
	img := image.NewRGBA(image.Rect(0, 0, size, size))

	for wy := 0; wy < size; wy++ {
		iy := size - 1 - wy
		for x := 0; x < size; x++ {
			idx := wy*size + x
			var r, g, b uint8
			if snap.GroundTruth != nil && snap.GroundTruth[idx] {
				g = 107
			}
			if snap.Obstacle[idx] > 0 {
				r = 255
			}
			if snap.Navigable[idx] > 0 {
				b = 255
			}
			if snap.Rock[idx] > 0 {
				r, g, b = 255, 255, 255
			}
			img.SetRGBA(x, iy, color.RGBA{R: r, G: g, B: b, A: 255})
		}
	}

	drawRoverMarker(img, pos, yaw, size)

	label := fmt.Sprintf("mapped %.1f%%  samples %d", mappedPercent, samples)
	drawLabel(img, 4, 14, label)
	return img
}

// drawRoverMarker plots the rover position with a short heading tick.
func drawRoverMarker(img *image.RGBA, pos Point, yaw float64, size int) {
	cx := clampInt(int(pos.X), 0, size-1)
	cy := clampInt(int(pos.Y), 0, size-1)
	marker := color.RGBA{R: 255, G: 165, B: 0, A: 255}

	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			x := clampInt(cx+dx, 0, size-1)
			y := clampInt(cy+dy, 0, size-1)
			img.SetRGBA(x, size-1-y, marker)
		}
	}

	sin, cos := math.Sincos(yaw * deg2rad)
	for i := 2; i <= 6; i++ {
		x := clampInt(cx+int(math.Round(cos*float64(i))), 0, size-1)
		y := clampInt(cy+int(math.Round(sin*float64(i))), 0, size-1)
		img.SetRGBA(x, size-1-y, marker)
	}
}

// drawLabel renders text with the fixed 7x13 basic font.
func drawLabel(img *image.RGBA, x, y int, text string) {
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.RGBA{R: 255, G: 255, B: 255, A: 255}),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

// EncodePNGBase64 encodes an image as a base64 PNG string for the simulator
// display payloads.
func EncodePNGBase64(img image.Image) string {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return ""
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}
