package rover

import (
	"fmt"
	"image"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Homography is a 3x3 projective transform in row-major order with the
// bottom-right element fixed at 1.
type Homography [9]float64

// IdentityHomography returns the no-op projective transform.
func IdentityHomography() Homography {
	return Homography{1, 0, 0, 0, 1, 0, 0, 0, 1}
}

// SolveHomography computes the projective transform mapping the four source
// points onto the four destination points. The four correspondences yield an
// 8x8 linear system which is solved with gonum.
func SolveHomography(src, dst [4]Point) (Homography, error) {
	a := mat.NewDense(8, 8, nil)
	b := mat.NewVecDense(8, nil)

	for i := 0; i < 4; i++ {
		x, y := src[i].X, src[i].Y
		u, v := dst[i].X, dst[i].Y

		a.SetRow(2*i, []float64{x, y, 1, 0, 0, 0, -u * x, -u * y})
		b.SetVec(2*i, u)
		a.SetRow(2*i+1, []float64{0, 0, 0, x, y, 1, -v * x, -v * y})
		b.SetVec(2*i+1, v)
	}

	var sol mat.VecDense
	if err := sol.SolveVec(a, b); err != nil {
		return IdentityHomography(), fmt.Errorf("degenerate calibration points: %w", err)
	}

	var h Homography
	for i := 0; i < 8; i++ {
		h[i] = sol.AtVec(i)
	}
	h[8] = 1
	return h, nil
}

// Apply maps a point through the projective transform.
func (h Homography) Apply(p Point) Point {
	w := h[6]*p.X + h[7]*p.Y + h[8]
	if w == 0 {
		return Point{X: math.Inf(1), Y: math.Inf(1)}
	}
	return Point{
		X: (h[0]*p.X + h[1]*p.Y + h[2]) / w,
		Y: (h[3]*p.X + h[4]*p.Y + h[5]) / w,
	}
}

// Invert returns the inverse projective transform, normalized so the
// bottom-right element is 1.
func (h Homography) Invert() (Homography, error) {
	m := mat.NewDense(3, 3, []float64{
		h[0], h[1], h[2],
		h[3], h[4], h[5],
		h[6], h[7], h[8],
	})
	var inv mat.Dense
	if err := inv.Inverse(m); err != nil {
		return IdentityHomography(), fmt.Errorf("singular homography: %w", err)
	}

	scale := inv.At(2, 2)
	if scale == 0 {
		return IdentityHomography(), fmt.Errorf("singular homography: zero normalizer")
	}
	var out Homography
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			out[r*3+c] = inv.At(r, c) / scale
		}
	}
	return out, nil
}

// GroundPlaneDest returns the four destination points corresponding to the
// calibration source points: a grid-sized square centered horizontally,
// raised off the bottom edge by the camera blind-zone offset. Order matches
// the source point order (bottom-left, bottom-right, top-right, top-left).
func GroundPlaneDest(width, height int, grid, bottomOffset float64) [4]Point {
	w := float64(width)
	h := float64(height)
	return [4]Point{
		{X: w/2 - grid/2, Y: h - bottomOffset},
		{X: w/2 + grid/2, Y: h - bottomOffset},
		{X: w/2 + grid/2, Y: h - grid - bottomOffset},
		{X: w/2 - grid/2, Y: h - grid - bottomOffset},
	}
}

// Projector warps camera frames into an overhead ground-plane view. The
// forward homography is solved once at construction; warping uses the cached
// inverse for destination-to-source sampling.
type Projector struct {
	forward Homography
	inverse Homography
}

// NewProjector builds a projector from the calibrated source points and the
// destination grid geometry for the given frame dimensions.
func NewProjector(cfg PerceptionConfig, width, height int) (*Projector, error) {
	dst := GroundPlaneDest(width, height, cfg.DstGrid, cfg.BottomOffset)
	fwd, err := SolveHomography(cfg.SourcePoints, dst)
	if err != nil {
		return nil, err
	}
	inv, err := fwd.Invert()
	if err != nil {
		return nil, err
	}
	return &Projector{forward: fwd, inverse: inv}, nil
}

// Forward returns the image-plane to ground-plane homography.
func (p *Projector) Forward() Homography {
	return p.forward
}

// Warp produces the overhead projection of the camera frame at identical
// dimensions. Destination pixels with no visible ground-plane source remain
// black.
func (p *Projector) Warp(src *image.RGBA) *image.RGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, w, h))

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sp := p.inverse.Apply(Point{X: float64(x), Y: float64(y)})
			sx := int(math.Round(sp.X))
			sy := int(math.Round(sp.Y))
			if sx < 0 || sy < 0 || sx >= w || sy >= h {
				continue
			}
			si := src.PixOffset(b.Min.X+sx, b.Min.Y+sy)
			di := dst.PixOffset(x, y)
			copy(dst.Pix[di:di+4], src.Pix[si:si+4])
		}
	}
	return dst
}
