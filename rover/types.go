package rover

import (
	"image"
	"time"
)

// Camera frame geometry of the simulator's front camera.
const (
	FrameWidth  = 320
	FrameHeight = 160
)

// Point is a 2D coordinate. Depending on context it holds perspective-frame
// pixels, rover-frame pixels, or world-frame units.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Cell is an integer grid index into the world map.
type Cell struct {
	X int
	Y int
}

// Mask is a single-channel binary image. Pix is row-major, one byte per
// pixel, nonzero meaning set.
type Mask struct {
	Width  int
	Height int
	Pix    []uint8
}

// NewMask allocates an all-zero mask of the given dimensions.
func NewMask(width, height int) Mask {
	return Mask{Width: width, Height: height, Pix: make([]uint8, width*height)}
}

// At reports whether the pixel at (x, y) is set. Out-of-bounds reads
// return false.
func (m Mask) At(x, y int) bool {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return false
	}
	return m.Pix[y*m.Width+x] != 0
}

// Set marks the pixel at (x, y). Out-of-bounds writes are ignored.
func (m Mask) Set(x, y int) {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return
	}
	m.Pix[y*m.Width+x] = 1
}

// Nonzero returns the (x, y) coordinates of all set pixels in row-major
// order.
func (m Mask) Nonzero() []Point {
	var pts []Point
	for y := 0; y < m.Height; y++ {
		row := m.Pix[y*m.Width : (y+1)*m.Width]
		for x, v := range row {
			if v != 0 {
				pts = append(pts, Point{X: float64(x), Y: float64(y)})
			}
		}
	}
	return pts
}

// Count returns the number of set pixels.
func (m Mask) Count() int {
	n := 0
	for _, v := range m.Pix {
		if v != 0 {
			n++
		}
	}
	return n
}

// PolarSet holds per-pixel polar features relative to the rover: distances
// in rover-frame pixels and angles in degrees from the rover heading
// (positive = left).
type PolarSet struct {
	Dists  []float64
	Angles []float64
}

// MeanAngle returns the arithmetic mean of the angles, or 0 for an empty set.
func (p PolarSet) MeanAngle() float64 {
	if len(p.Angles) == 0 {
		return 0
	}
	sum := 0.0
	for _, a := range p.Angles {
		sum += a
	}
	return sum / float64(len(p.Angles))
}

// MeanDist returns the arithmetic mean of the distances, or 0 for an empty set.
func (p PolarSet) MeanDist() float64 {
	if len(p.Dists) == 0 {
		return 0
	}
	sum := 0.0
	for _, d := range p.Dists {
		sum += d
	}
	return sum / float64(len(p.Dists))
}

// MinDist returns the smallest distance, or +Inf semantics via ok=false for
// an empty set.
func (p PolarSet) MinDist() (float64, bool) {
	if len(p.Dists) == 0 {
		return 0, false
	}
	min := p.Dists[0]
	for _, d := range p.Dists[1:] {
		if d < min {
			min = d
		}
	}
	return min, true
}

// Command is the actuation output of one decision cycle.
type Command struct {
	Throttle float64 `json:"throttle"`
	Brake    float64 `json:"brake"`
	Steer    float64 `json:"steer"` // degrees, positive = left
}

// Telemetry is one decoded inbound simulator message.
type Telemetry struct {
	Frame            *image.RGBA
	Pos              Point
	Yaw              float64
	Pitch            float64
	Roll             float64
	Vel              float64
	NearSample       bool
	PickingUp        bool
	SamplesCollected int
}

// RoverState is the single live state object threaded through every pipeline
// stage. It is created once at startup and refreshed on each telemetry
// cycle; only the cycle goroutine mutates it.
type RoverState struct {
	// Pose.
	Pos   Point
	Yaw   float64
	Pitch float64
	Roll  float64
	Vel   float64

	// Actuation from the last decision step.
	Throttle float64
	Brake    float64
	Steer    float64

	// Polar features from the current cycle. NavLeft is the subset of
	// navigable angles left of the rover heading.
	Nav     PolarSet
	NavLeft PolarSet
	Obs     PolarSet
	Rock    PolarSet

	// Mapping.
	World         *WorldMap
	MappedPercent float64

	// Mission.
	SamplesTarget    int
	SamplesCollected int
	NearSample       bool
	PickingUp        bool
	SendPickup       bool

	// Behavior.
	Home         Point
	HomeSet      bool
	HomeDistance float64
	HomeHeading  float64
	GoingHome    bool

	// Stuck detection. TimerOn and StuckHeading are reset together whenever
	// a stuck episode ends.
	TimerOn      bool
	StuckSince   time.Time
	StuckHeading float64

	// Track of world positions visited, for the GeoJSON export.
	Track []Point
}

// NewRoverState constructs the process-lifetime rover state bound to a world
// map.
func NewRoverState(world *WorldMap, samplesTarget int) *RoverState {
	return &RoverState{
		World:         world,
		SamplesTarget: samplesTarget,
	}
}

// ApplyTelemetry refreshes the pose and mission fields from an inbound
// message. Perception and decision fields are recomputed later in the cycle.
func (rs *RoverState) ApplyTelemetry(t Telemetry) {
	rs.Pos = t.Pos
	rs.Yaw = t.Yaw
	rs.Pitch = t.Pitch
	rs.Roll = t.Roll
	rs.Vel = t.Vel
	rs.NearSample = t.NearSample
	rs.PickingUp = t.PickingUp
	rs.SamplesCollected = t.SamplesCollected

	if !rs.HomeSet {
		rs.Home = t.Pos
		rs.HomeSet = true
	}
}
