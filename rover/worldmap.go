package rover

import (
	"fmt"
	"image"
	"image/png"
	"math"
	"os"
	"sync"
)

// Channel identifies one of the world map's confidence layers.
type Channel int

const (
	ChannelObstacle Channel = iota
	ChannelRock
	ChannelNavigable
)

func (c Channel) String() string {
	switch c {
	case ChannelObstacle:
		return "obstacle"
	case ChannelRock:
		return "rock"
	case ChannelNavigable:
		return "navigable"
	default:
		return fmt.Sprintf("Channel(%d)", int(c))
	}
}

// WorldMap fuses per-cycle observations into a persistent confidence grid
// with one additive channel per classification. Values only ever grow;
// repeated observation of a cell raises confidence without bound.
//
// The cycle goroutine writes; HTTP and MQTT observers read through Snapshot,
// so access is mutex-guarded.
type WorldMap struct {
	mu        sync.RWMutex
	size      int
	obstacle  []float64
	rock      []float64
	navigable []float64

	groundTruth []bool
	gtCount     int
}

// NewWorldMap allocates an empty world map of size x size cells.
func NewWorldMap(size int) *WorldMap {
	return &WorldMap{
		size:      size,
		obstacle:  make([]float64, size*size),
		rock:      make([]float64, size*size),
		navigable: make([]float64, size*size),
	}
}

// Size returns the grid edge length in cells.
func (w *WorldMap) Size() int {
	return w.size
}

// LoadGroundTruth reads the reference navigable-terrain mask from a PNG.
// Any pixel with nonzero luminance counts as ground-truth navigable. The
// image y-axis (origin top-left) is flipped into world coordinates (origin
// bottom-left). Loaded once at startup and never mutated.
func (w *WorldMap) LoadGroundTruth(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening ground truth map: %w", err)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return fmt.Errorf("decoding ground truth map: %w", err)
	}
	w.SetGroundTruth(img)
	return nil
}

// SetGroundTruth installs a ground-truth reference image directly.
func (w *WorldMap) SetGroundTruth(img image.Image) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.groundTruth = make([]bool, w.size*w.size)
	w.gtCount = 0
	b := img.Bounds()
	for y := 0; y < w.size && y < b.Dy(); y++ {
		for x := 0; x < w.size && x < b.Dx(); x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			if r|g|bl != 0 {
				// Flip the image row into bottom-origin world coordinates.
				w.groundTruth[(w.size-1-y)*w.size+x] = true
				w.gtCount++
			}
		}
	}
}

// TiltFromLevel returns how far an attitude angle is from a level platform,
// in degrees. Angles wrap at 360, so values just below a full rotation are
// treated as small tilts; normalizing here keeps the stability gate to a
// single canonical check.
func TiltFromLevel(deg float64) float64 {
	a := NormalizeAngle(deg)
	return math.Min(a, 360-a)
}

// NormalizeAngle normalizes an angle in degrees to the range [0, 360).
func NormalizeAngle(degrees float64) float64 {
	degrees = math.Mod(degrees, 360)
	if degrees < 0 {
		degrees += 360
	}
	return degrees
}

// StableAttitude reports whether the platform is level enough for map
// fusion: both pitch and roll within their tilt thresholds.
func StableAttitude(pitch, roll, maxPitch, maxRoll float64) bool {
	return TiltFromLevel(pitch) < maxPitch && TiltFromLevel(roll) < maxRoll
}

// Accumulate fuses one cycle's world-frame observations into the grid,
// adding inc to each observed cell's channel. Cells are assumed pre-clamped
// by ToCells. Returns false when the stability gate rejected the cycle and
// nothing was fused.
func (w *WorldMap) Accumulate(obs, rock, nav []Cell, pitch, roll, maxPitch, maxRoll, inc float64) bool {
	if !StableAttitude(pitch, roll, maxPitch, maxRoll) {
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, c := range obs {
		w.obstacle[c.Y*w.size+c.X] += inc
	}
	for _, c := range rock {
		w.rock[c.Y*w.size+c.X] += inc
	}
	for _, c := range nav {
		w.navigable[c.Y*w.size+c.X] += inc
	}
	return true
}

// ChannelAt returns the accumulated confidence for a channel at a cell.
// Out-of-range coordinates return 0.
func (w *WorldMap) ChannelAt(ch Channel, x, y int) float64 {
	if x < 0 || y < 0 || x >= w.size || y >= w.size {
		return 0
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	switch ch {
	case ChannelObstacle:
		return w.obstacle[y*w.size+x]
	case ChannelRock:
		return w.rock[y*w.size+x]
	default:
		return w.navigable[y*w.size+x]
	}
}

// MappedFraction returns the percentage of ground-truth navigable cells
// covered by any nonzero accumulated channel. Without a ground truth
// reference it returns 0.
func (w *WorldMap) MappedFraction() float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.gtCount == 0 {
		return 0
	}
	covered := 0
	for i, gt := range w.groundTruth {
		if !gt {
			continue
		}
		if w.obstacle[i] != 0 || w.rock[i] != 0 || w.navigable[i] != 0 {
			covered++
		}
	}
	return 100 * float64(covered) / float64(w.gtCount)
}

// WorldMapSnapshot is a consistent read-only copy of the grid for rendering
// and export.
type WorldMapSnapshot struct {
	Size        int
	Obstacle    []float64
	Rock        []float64
	Navigable   []float64
	GroundTruth []bool
}

// Snapshot copies the current grid state under the read lock.
func (w *WorldMap) Snapshot() WorldMapSnapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()

	snap := WorldMapSnapshot{
		Size:      w.size,
		Obstacle:  make([]float64, len(w.obstacle)),
		Rock:      make([]float64, len(w.rock)),
		Navigable: make([]float64, len(w.navigable)),
	}
	copy(snap.Obstacle, w.obstacle)
	copy(snap.Rock, w.rock)
	copy(snap.Navigable, w.navigable)
	if w.groundTruth != nil {
		snap.GroundTruth = make([]bool, len(w.groundTruth))
		copy(snap.GroundTruth, w.groundTruth)
	}
	return snap
}
