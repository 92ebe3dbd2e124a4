package rover

import (
	"fmt"
	"math"
	"time"
)

// Mode identifies the supervisor's behavioral state.
type Mode int

const (
	ModeForward Mode = iota + 1
	ModeStopped
	ModeStuckRecovery
	ModeSampleApproach
	ModeReturnHome
	ModeDone
)

func (m Mode) String() string {
	switch m {
	case ModeForward:
		return "FORWARD"
	case ModeStopped:
		return "STOPPED"
	case ModeStuckRecovery:
		return "STUCK_RECOVERY"
	case ModeSampleApproach:
		return "SAMPLE_APPROACH"
	case ModeReturnHome:
		return "RETURN_HOME"
	case ModeDone:
		return "DONE"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// DecisionConfig holds the supervisor's tuning constants. These are tunable
// values, not contracts; the defaults were chosen against the simulator at
// its nominal 25 Hz telemetry rate.
type DecisionConfig struct {
	ThrottleSet float64 `yaml:"throttleSet" json:"throttleSet"` // base throttle
	MaxVel      float64 `yaml:"maxVel" json:"maxVel"`           // m/s, coast above this
	BrakeSet    float64 `yaml:"brakeSet" json:"brakeSet"`       // full brake value
	SteerLimit  float64 `yaml:"steerLimit" json:"steerLimit"`   // degrees

	// Steering bias toward the left-of-heading navigable subset, for wall
	// following. 0 steers to the overall mean, 1 to the left mean only.
	LeftBias float64 `yaml:"leftBias" json:"leftBias"`

	// Navigable pixel count hysteresis for stopping and resuming.
	StopNavCount int `yaml:"stopNavCount" json:"stopNavCount"`
	GoNavCount   int `yaml:"goNavCount" json:"goNavCount"`

	// Mean navigable distance at which throttle reaches ThrottleSet.
	ClearanceRef float64 `yaml:"clearanceRef" json:"clearanceRef"`

	// Stuck detection: velocity below StuckVel with throttle applied for
	// longer than StuckGraceSec starts recovery; recovery rotates in place
	// until the heading diverges from the recorded stuck heading by
	// StuckHeadingMargin.
	StuckVel           float64 `yaml:"stuckVel" json:"stuckVel"`
	StuckGraceSec      float64 `yaml:"stuckGraceSec" json:"stuckGraceSec"`
	StuckHeadingMargin float64 `yaml:"stuckHeadingMargin" json:"stuckHeadingMargin"`

	// Sample pickup: a rock polar feature within PickupRange (rover-frame
	// pixels) triggers the approach.
	PickupRange      float64 `yaml:"pickupRange" json:"pickupRange"`
	ApproachThrottle float64 `yaml:"approachThrottle" json:"approachThrottle"`

	// Return-home: arrival radius and slow-approach radius in world units,
	// and the mapped-fraction percentage that ends the search phase.
	HomeArriveDist    float64 `yaml:"homeArriveDist" json:"homeArriveDist"`
	HomeSlowDist      float64 `yaml:"homeSlowDist" json:"homeSlowDist"`
	CompletionPercent float64 `yaml:"completionPercent" json:"completionPercent"`
}

// DefaultDecisionConfig returns the simulator-tuned defaults.
func DefaultDecisionConfig() DecisionConfig {
	return DecisionConfig{
		ThrottleSet:        0.8,
		MaxVel:             2.0,
		BrakeSet:           10,
		SteerLimit:         15,
		LeftBias:           0.35,
		StopNavCount:       50,
		GoNavCount:         500,
		ClearanceRef:       30,
		StuckVel:           0.1,
		StuckGraceSec:      2,
		StuckHeadingMargin: 30,
		PickupRange:        70,
		ApproachThrottle:   0.3,
		HomeArriveDist:     3,
		HomeSlowDist:       15,
		CompletionPercent:  95,
	}
}

// Validate checks the supervisor tuning for internal consistency.
func (c *DecisionConfig) Validate() error {
	if c.SteerLimit <= 0 {
		return fmt.Errorf("decision.steerLimit must be positive")
	}
	if c.LeftBias < 0 || c.LeftBias > 1 {
		return fmt.Errorf("decision.leftBias must be in [0, 1]")
	}
	if c.GoNavCount < c.StopNavCount {
		return fmt.Errorf("decision.goNavCount must be >= stopNavCount")
	}
	if c.StuckGraceSec <= 0 {
		return fmt.Errorf("decision.stuckGraceSec must be positive")
	}
	return nil
}

// Supervisor is the finite-state navigation controller. Transitions are
// level-triggered on the rover state each cycle and idempotent under
// repeated identical inputs.
type Supervisor struct {
	cfg   DecisionConfig
	scale float64 // rover-frame px per world unit, for home bearing

	mode Mode

	// pickupLatch prevents re-raising the one-shot pickup request until the
	// simulator acknowledges via the picking-up flag or the rover leaves
	// the sample.
	pickupLatch bool
}

// NewSupervisor constructs a supervisor starting in Forward mode.
func NewSupervisor(cfg DecisionConfig, scale float64) *Supervisor {
	return &Supervisor{cfg: cfg, scale: scale, mode: ModeForward}
}

// Mode returns the current behavioral state.
func (s *Supervisor) Mode() Mode {
	return s.mode
}

// Step consumes the fused telemetry in rs and produces the actuation command
// for this cycle, updating the behavioral fields of rs (home bearing,
// going-home flag, stuck timer, pickup request) along the way.
func (s *Supervisor) Step(rs *RoverState, now time.Time) Command {
	s.updateMission(rs)

	if s.mode == ModeDone {
		return Command{}
	}

	// The simulator halts the rover while lifting a sample; hold still and
	// let the picking-up flag clear before resuming.
	if rs.PickingUp {
		s.mode = ModeSampleApproach
		s.resetStuck(rs)
		return Command{Brake: s.cfg.BrakeSet}
	}

	if rs.GoingHome && rs.HomeDistance < s.cfg.HomeArriveDist && math.Abs(rs.Vel) < 0.2 {
		s.mode = ModeDone
		return Command{}
	}

	if cmd, recovering := s.stepStuck(rs, now); recovering {
		return cmd
	}

	if rs.NearSample {
		return s.stepPickup(rs)
	}
	if min, ok := rs.Rock.MinDist(); ok && min <= s.cfg.PickupRange {
		s.mode = ModeSampleApproach
		return s.stepApproach(rs)
	}
	// Rock out of sight again: release the latch so the next encounter can
	// request a pickup.
	s.pickupLatch = false

	if rs.GoingHome {
		return s.stepHome(rs)
	}
	return s.stepTerrain(rs)
}

// updateMission recomputes the home bearing via the world-to-rover inverse
// transform and flips the going-home flag once the mission target is met.
func (s *Supervisor) updateMission(rs *RoverState) {
	if !rs.HomeSet {
		return
	}
	rel := WorldToRover([]Point{rs.Home}, rs.Pos, rs.Yaw, s.scale)[0]
	rs.HomeHeading = math.Atan2(rel.Y, rel.X) * rad2deg
	rs.HomeDistance = math.Hypot(rs.Home.X-rs.Pos.X, rs.Home.Y-rs.Pos.Y)

	if rs.GoingHome {
		return
	}
	samplesDone := rs.SamplesTarget > 0 && rs.SamplesCollected >= rs.SamplesTarget
	mappedDone := s.cfg.CompletionPercent > 0 && rs.MappedPercent >= s.cfg.CompletionPercent
	if samplesDone || mappedDone {
		rs.GoingHome = true
	}
}

// stepStuck runs the stuck timer and, once tripped, the recovery rotation.
// The second return value is true while recovery owns the actuation.
func (s *Supervisor) stepStuck(rs *RoverState, now time.Time) (Command, bool) {
	if s.mode == ModeStuckRecovery {
		if headingDelta(rs.Yaw, rs.StuckHeading) >= s.cfg.StuckHeadingMargin {
			s.mode = ModeForward
			s.resetStuck(rs)
			return Command{}, false
		}
		return Command{Steer: s.cfg.SteerLimit}, true
	}

	// Detection: commanded throttle with no motion.
	if rs.Throttle > 0 && math.Abs(rs.Vel) < s.cfg.StuckVel {
		if !rs.TimerOn {
			rs.TimerOn = true
			rs.StuckSince = now
			rs.StuckHeading = rs.Yaw
		} else if now.Sub(rs.StuckSince).Seconds() >= s.cfg.StuckGraceSec {
			s.mode = ModeStuckRecovery
			return Command{Steer: s.cfg.SteerLimit}, true
		}
	} else {
		s.resetStuck(rs)
	}
	return Command{}, false
}

func (s *Supervisor) resetStuck(rs *RoverState) {
	rs.TimerOn = false
	rs.StuckHeading = 0
}

// stepPickup halts at the sample and raises the one-shot pickup request once
// the rover is stationary.
func (s *Supervisor) stepPickup(rs *RoverState) Command {
	s.mode = ModeSampleApproach
	s.resetStuck(rs)

	if math.Abs(rs.Vel) > 0.1 {
		return Command{Brake: s.cfg.BrakeSet}
	}
	if !rs.PickingUp && !s.pickupLatch {
		rs.SendPickup = true
		s.pickupLatch = true
	}
	return Command{Brake: s.cfg.BrakeSet}
}

// stepApproach crawls toward the mean rock bearing.
func (s *Supervisor) stepApproach(rs *RoverState) Command {
	steer := clamp(rs.Rock.MeanAngle(), -s.cfg.SteerLimit, s.cfg.SteerLimit)
	if rs.Vel > s.cfg.MaxVel/2 {
		return Command{Brake: s.cfg.BrakeSet / 2, Steer: steer}
	}
	return Command{Throttle: s.cfg.ApproachThrottle, Steer: steer}
}

// stepHome steers toward the recorded home position, overriding terrain
// following but still respecting obstacle stops.
func (s *Supervisor) stepHome(rs *RoverState) Command {
	if len(rs.Nav.Angles) < s.cfg.StopNavCount {
		return s.stepStopped(rs)
	}

	s.mode = ModeReturnHome
	steer := clamp(rs.HomeHeading, -s.cfg.SteerLimit, s.cfg.SteerLimit)

	if rs.HomeDistance < s.cfg.HomeSlowDist {
		if rs.Vel > s.cfg.MaxVel/2 {
			return Command{Brake: s.cfg.BrakeSet / 2, Steer: steer}
		}
		return Command{Throttle: s.cfg.ApproachThrottle, Steer: steer}
	}
	return Command{Throttle: s.throttleFor(rs), Steer: steer}
}

// stepTerrain is the default wall-following drive over navigable terrain.
func (s *Supervisor) stepTerrain(rs *RoverState) Command {
	switch s.mode {
	case ModeStopped:
		if len(rs.Nav.Angles) >= s.cfg.GoNavCount {
			s.mode = ModeForward
			break
		}
		return s.stepStopped(rs)
	default:
		if len(rs.Nav.Angles) < s.cfg.StopNavCount {
			s.mode = ModeStopped
			return s.stepStopped(rs)
		}
		s.mode = ModeForward
	}

	mean := rs.Nav.MeanAngle()
	left := mean
	if len(rs.NavLeft.Angles) > 0 {
		left = rs.NavLeft.MeanAngle()
	}
	steer := clamp((1-s.cfg.LeftBias)*mean+s.cfg.LeftBias*left,
		-s.cfg.SteerLimit, s.cfg.SteerLimit)

	return Command{Throttle: s.throttleFor(rs), Steer: steer}
}

// stepStopped brakes to a stand-still, then rotates in place away from the
// followed wall until clearance reappears.
func (s *Supervisor) stepStopped(rs *RoverState) Command {
	s.mode = ModeStopped
	if math.Abs(rs.Vel) > 0.2 {
		return Command{Brake: s.cfg.BrakeSet}
	}
	return Command{Steer: -s.cfg.SteerLimit}
}

// throttleFor scales the base throttle by the available forward clearance
// and coasts above the velocity cap.
func (s *Supervisor) throttleFor(rs *RoverState) float64 {
	if rs.Vel >= s.cfg.MaxVel {
		return 0
	}
	scale := 1.0
	if s.cfg.ClearanceRef > 0 {
		scale = math.Min(1, rs.Nav.MeanDist()/s.cfg.ClearanceRef)
	}
	return s.cfg.ThrottleSet * scale
}

// headingDelta returns the smallest angular difference between two headings
// in degrees.
func headingDelta(a, b float64) float64 {
	d := math.Abs(NormalizeAngle(a) - NormalizeAngle(b))
	if d > 180 {
		d = 360 - d
	}
	return d
}
