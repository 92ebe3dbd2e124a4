package rover

import "math"

// Frame conversions between the perspective (warped image), rover-centered
// cartesian, rover-centered polar, and world-absolute coordinate frames.
// All functions are pure and operate on coordinate slices; composition is
// the pipeline's job.

const (
	deg2rad = math.Pi / 180
	rad2deg = 180 / math.Pi
)

// PerspectiveToRover converts the set pixels of a warped binary mask into
// rover-frame cartesian coordinates. The camera's optical center projects to
// the bottom-center of the warped frame: image-up becomes rover-forward (+x)
// and image-left becomes rover-left (+y).
func PerspectiveToRover(m Mask) []Point {
	pix := m.Nonzero()
	pts := make([]Point, len(pix))
	halfW := float64(m.Width) / 2
	h := float64(m.Height)
	for i, p := range pix {
		pts[i] = Point{
			X: h - p.Y,
			Y: halfW - p.X,
		}
	}
	return pts
}

// ToPolar converts cartesian points to polar features: distance and angle in
// degrees via atan2(y, x).
func ToPolar(pts []Point) PolarSet {
	ps := PolarSet{
		Dists:  make([]float64, len(pts)),
		Angles: make([]float64, len(pts)),
	}
	for i, p := range pts {
		ps.Dists[i] = math.Hypot(p.X, p.Y)
		ps.Angles[i] = math.Atan2(p.Y, p.X) * rad2deg
	}
	return ps
}

// LeftOfHeading returns the subset of a polar set with positive angles,
// i.e. features left of the rover heading.
func LeftOfHeading(ps PolarSet) PolarSet {
	var out PolarSet
	for i, a := range ps.Angles {
		if a > 0 {
			out.Dists = append(out.Dists, ps.Dists[i])
			out.Angles = append(out.Angles, a)
		}
	}
	return out
}

// FilterByRange drops points whose rover-frame distance meets or exceeds
// maxDist. Distant pixels degrade mapping fidelity because perspective
// projection error grows with range.
func FilterByRange(pts []Point, maxDist float64) []Point {
	var out []Point
	for _, p := range pts {
		if math.Hypot(p.X, p.Y) < maxDist {
			out = append(out, p)
		}
	}
	return out
}

// Rotate rotates points counterclockwise by the given angle in degrees.
func Rotate(pts []Point, deg float64) []Point {
	sin, cos := math.Sincos(deg * deg2rad)
	out := make([]Point, len(pts))
	for i, p := range pts {
		out[i] = Point{
			X: p.X*cos - p.Y*sin,
			Y: p.X*sin + p.Y*cos,
		}
	}
	return out
}

// Translate scales points down by the rover-to-world scale factor and
// offsets them by the rover's world position.
func Translate(pts []Point, offset Point, scale float64) []Point {
	out := make([]Point, len(pts))
	for i, p := range pts {
		out[i] = Point{
			X: p.X/scale + offset.X,
			Y: p.Y/scale + offset.Y,
		}
	}
	return out
}

// RoverToWorld maps rover-frame points into world-frame coordinates by
// rotating through the rover's yaw and translating by its position. The
// result is continuous; use ToCells to snap onto the world grid.
func RoverToWorld(pts []Point, pos Point, yaw, scale float64) []Point {
	return Translate(Rotate(pts, yaw), pos, scale)
}

// WorldToRover is the exact algebraic inverse of RoverToWorld: subtract the
// position, scale back up, and rotate through negative yaw.
func WorldToRover(pts []Point, pos Point, yaw, scale float64) []Point {
	unshifted := make([]Point, len(pts))
	for i, p := range pts {
		unshifted[i] = Point{
			X: (p.X - pos.X) * scale,
			Y: (p.Y - pos.Y) * scale,
		}
	}
	return Rotate(unshifted, -yaw)
}

// ToCells truncates world-frame points to integer grid cells, clamping both
// coordinates into [0, worldSize-1]. Clamping rather than rejecting keeps
// every stable cycle's observation usable.
func ToCells(pts []Point, worldSize int) []Cell {
	cells := make([]Cell, len(pts))
	for i, p := range pts {
		cells[i] = Cell{
			X: clampInt(int(p.X), 0, worldSize-1),
			Y: clampInt(int(p.Y), 0, worldSize-1),
		}
	}
	return cells
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
