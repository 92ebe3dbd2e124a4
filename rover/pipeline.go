package rover

import (
	"math"
	"time"
)

// CycleResult is the outcome of one telemetry cycle: either a control
// command with display insets, or a pickup request (mutually exclusive), or
// a skipped cycle with a neutral command.
type CycleResult struct {
	Cmd     Command
	Pickup  bool
	Vision  string // base64 PNG inset of the classified camera view
	MapView string // base64 PNG inset of the world map
	Skipped bool
	Mode    Mode
}

// Pipeline wires the perception stages and the decision supervisor together.
// Each inbound telemetry message drives exactly one cycle, with the stages
// executing strictly in order: classifier, projector, frame converter, map
// accumulator, supervisor.
type Pipeline struct {
	cfg       *Config
	world     *WorldMap
	sup       *Supervisor
	projector *Projector
}

// NewPipeline builds a pipeline for the given frame dimensions. The
// projector's homography is solved once here.
func NewPipeline(cfg *Config, world *WorldMap, frameWidth, frameHeight int) (*Pipeline, error) {
	proj, err := NewProjector(cfg.Perception, frameWidth, frameHeight)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		cfg:       cfg,
		world:     world,
		sup:       NewSupervisor(cfg.Decision, cfg.Perception.ScaleFactor),
		projector: proj,
	}, nil
}

// Supervisor exposes the decision supervisor, mainly for status reporting.
func (p *Pipeline) Supervisor() *Supervisor {
	return p.sup
}

// Cycle executes one full perception-to-decision cycle, mutating rs in
// stage order and returning the outbound result.
//
// A missing camera frame or a non-finite velocity invalidates the whole
// cycle: the pipeline is skipped and a neutral zero command with empty insets
// is returned, leaving the map untouched.
func (p *Pipeline) Cycle(rs *RoverState, tlm Telemetry, now time.Time) CycleResult {
	rs.ApplyTelemetry(tlm)

	if tlm.Frame == nil || math.IsNaN(tlm.Vel) || math.IsInf(tlm.Vel, 0) {
		return CycleResult{Skipped: true, Mode: p.sup.Mode()}
	}

	pc := p.cfg.Perception

	// Classifier operates on the ground-plane projection so thresholding
	// sees undistorted terrain.
	warped := p.projector.Warp(tlm.Frame)
	thresh := Threshold(warped, pc.NavThreshold, pc.RockLow, pc.RockHigh)

	// Frame conversion: perspective to rover-centered cartesian, then polar
	// features for the supervisor.
	navPts := PerspectiveToRover(thresh.Nav)
	obsPts := PerspectiveToRover(thresh.Obs)
	rockPts := PerspectiveToRover(thresh.Rock)

	rs.Nav = ToPolar(navPts)
	rs.NavLeft = LeftOfHeading(rs.Nav)
	rs.Obs = ToPolar(obsPts)

	// Distant pixels are kept for steering but excluded from map fusion.
	navPts = FilterByRange(navPts, pc.MaxNavDist)
	obsPts = FilterByRange(obsPts, pc.MaxObsDist)
	rockPts = FilterByRange(rockPts, pc.MaxRockDist)
	rs.Rock = ToPolar(rockPts)

	navCells := ToCells(RoverToWorld(navPts, rs.Pos, rs.Yaw, pc.ScaleFactor), pc.WorldSize)
	obsCells := ToCells(RoverToWorld(obsPts, rs.Pos, rs.Yaw, pc.ScaleFactor), pc.WorldSize)
	rockCells := ToCells(RoverToWorld(rockPts, rs.Pos, rs.Yaw, pc.ScaleFactor), pc.WorldSize)

	p.world.Accumulate(obsCells, rockCells, navCells,
		rs.Pitch, rs.Roll, pc.MaxPitch, pc.MaxRoll, pc.MapIncrement)
	rs.MappedPercent = p.world.MappedFraction()
	rs.Track = append(rs.Track, rs.Pos)

	cmd := p.sup.Step(rs, now)
	rs.Throttle = cmd.Throttle
	rs.Brake = cmd.Brake
	rs.Steer = cmd.Steer

	// A pending pickup request preempts the control message for this cycle;
	// the flag is consumed here.
	if rs.SendPickup && !rs.PickingUp {
		rs.SendPickup = false
		return CycleResult{Pickup: true, Mode: p.sup.Mode()}
	}

	vision := VisionImage(thresh)
	mapView := RenderWorldMap(p.world.Snapshot(), rs.Pos, rs.Yaw, rs.MappedPercent, rs.SamplesCollected)

	return CycleResult{
		Cmd:     cmd,
		Vision:  EncodePNGBase64(vision),
		MapView: EncodePNGBase64(mapView),
		Mode:    p.sup.Mode(),
	}
}
