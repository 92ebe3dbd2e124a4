package rover

import (
	"testing"
	"time"
)

// uniformPolar builds a polar set of n identical features.
func uniformPolar(n int, angle, dist float64) PolarSet {
	ps := PolarSet{
		Dists:  make([]float64, n),
		Angles: make([]float64, n),
	}
	for i := 0; i < n; i++ {
		ps.Dists[i] = dist
		ps.Angles[i] = angle
	}
	return ps
}

// driveState returns a rover state on open terrain with plentiful navigable
// pixels dead ahead.
func driveState() *RoverState {
	rs := NewRoverState(NewWorldMap(200), 6)
	rs.Nav = uniformPolar(600, 0, 30)
	rs.NavLeft = PolarSet{}
	rs.Home = Point{X: 100, Y: 100}
	rs.HomeSet = true
	rs.Pos = Point{X: 100, Y: 100}
	return rs
}

func TestModeString(t *testing.T) {
	tests := []struct {
		mode Mode
		want string
	}{
		{ModeForward, "FORWARD"},
		{ModeStopped, "STOPPED"},
		{ModeStuckRecovery, "STUCK_RECOVERY"},
		{ModeSampleApproach, "SAMPLE_APPROACH"},
		{ModeReturnHome, "RETURN_HOME"},
		{ModeDone, "DONE"},
		{Mode(99), "Mode(99)"},
	}
	for _, tt := range tests {
		if got := tt.mode.String(); got != tt.want {
			t.Errorf("Mode(%d).String() = %q, want %q", int(tt.mode), got, tt.want)
		}
	}
}

func TestForwardSteering(t *testing.T) {
	sup := NewSupervisor(DefaultDecisionConfig(), 10)
	rs := driveState()
	rs.Nav = uniformPolar(600, 10, 30)
	rs.NavLeft = uniformPolar(600, 10, 30)

	cmd := sup.Step(rs, time.Now())

	if sup.Mode() != ModeForward {
		t.Fatalf("mode = %v, want FORWARD", sup.Mode())
	}
	if !almostEqual(cmd.Steer, 10) {
		t.Errorf("steer = %g, want 10", cmd.Steer)
	}
	// Mean clearance equals the reference distance, so full base throttle.
	if !almostEqual(cmd.Throttle, 0.8) {
		t.Errorf("throttle = %g, want 0.8", cmd.Throttle)
	}
	if cmd.Brake != 0 {
		t.Errorf("brake = %g, want 0", cmd.Brake)
	}
}

func TestForwardLeftBias(t *testing.T) {
	sup := NewSupervisor(DefaultDecisionConfig(), 10)
	rs := driveState()

	// Overall mean angle 5, left-of-heading mean 20.
	rs.Nav = PolarSet{
		Dists:  append(uniformPolar(300, -10, 30).Dists, uniformPolar(300, 20, 30).Dists...),
		Angles: append(uniformPolar(300, -10, 30).Angles, uniformPolar(300, 20, 30).Angles...),
	}
	rs.NavLeft = uniformPolar(300, 20, 30)

	cmd := sup.Step(rs, time.Now())

	want := 0.65*5 + 0.35*20 // 10.25
	if !almostEqual(cmd.Steer, want) {
		t.Errorf("steer = %g, want %g", cmd.Steer, want)
	}
}

func TestForwardSteerClamped(t *testing.T) {
	sup := NewSupervisor(DefaultDecisionConfig(), 10)
	rs := driveState()
	rs.Nav = uniformPolar(600, 60, 30)
	rs.NavLeft = uniformPolar(600, 60, 30)

	cmd := sup.Step(rs, time.Now())
	if cmd.Steer != 15 {
		t.Errorf("steer = %g, want clamp at 15", cmd.Steer)
	}
}

func TestThrottleCoastAboveMaxVel(t *testing.T) {
	sup := NewSupervisor(DefaultDecisionConfig(), 10)
	rs := driveState()
	rs.Vel = 2.5

	cmd := sup.Step(rs, time.Now())
	if cmd.Throttle != 0 {
		t.Errorf("throttle = %g, want 0 above max velocity", cmd.Throttle)
	}
}

func TestThrottleScalesWithClearance(t *testing.T) {
	sup := NewSupervisor(DefaultDecisionConfig(), 10)
	rs := driveState()
	rs.Nav = uniformPolar(600, 0, 15) // half the clearance reference

	cmd := sup.Step(rs, time.Now())
	if !almostEqual(cmd.Throttle, 0.4) {
		t.Errorf("throttle = %g, want 0.4", cmd.Throttle)
	}
}

func TestStoppedHysteresis(t *testing.T) {
	sup := NewSupervisor(DefaultDecisionConfig(), 10)
	rs := driveState()

	// Too few navigable pixels: brake while still moving.
	rs.Nav = uniformPolar(10, 0, 30)
	rs.Vel = 1.5
	cmd := sup.Step(rs, time.Now())
	if sup.Mode() != ModeStopped {
		t.Fatalf("mode = %v, want STOPPED", sup.Mode())
	}
	if cmd.Brake != 10 || cmd.Throttle != 0 {
		t.Errorf("cmd = %+v, want full brake", cmd)
	}

	// Stand-still: rotate in place, away from the followed wall.
	rs.Vel = 0
	cmd = sup.Step(rs, time.Now())
	if cmd.Steer != -15 || cmd.Brake != 0 {
		t.Errorf("cmd = %+v, want in-place rotation", cmd)
	}

	// A modest count is not enough to resume.
	rs.Nav = uniformPolar(100, 0, 30)
	sup.Step(rs, time.Now())
	if sup.Mode() != ModeStopped {
		t.Errorf("mode = %v, resumed below the go threshold", sup.Mode())
	}

	// Plentiful terrain resumes forward drive.
	rs.Nav = uniformPolar(600, 0, 30)
	cmd = sup.Step(rs, time.Now())
	if sup.Mode() != ModeForward {
		t.Errorf("mode = %v, want FORWARD", sup.Mode())
	}
	if cmd.Throttle <= 0 {
		t.Errorf("throttle = %g, want positive", cmd.Throttle)
	}
}

func TestStuckRecovery(t *testing.T) {
	sup := NewSupervisor(DefaultDecisionConfig(), 10)
	rs := driveState()
	rs.Yaw = 45
	rs.Throttle = 0.8 // commanded on the previous cycle
	rs.Vel = 0

	t0 := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	// First cycle starts the timer but keeps driving.
	cmd := sup.Step(rs, t0)
	if !rs.TimerOn {
		t.Fatal("stuck timer not started")
	}
	if rs.StuckHeading != 45 {
		t.Errorf("stuck heading = %g, want 45", rs.StuckHeading)
	}
	if sup.Mode() != ModeForward {
		t.Fatalf("mode = %v, want FORWARD during grace period", sup.Mode())
	}
	rs.Throttle = cmd.Throttle

	// Grace period expired: recovery rotation owns the actuation.
	cmd = sup.Step(rs, t0.Add(3*time.Second))
	if sup.Mode() != ModeStuckRecovery {
		t.Fatalf("mode = %v, want STUCK_RECOVERY", sup.Mode())
	}
	if cmd.Steer != 15 || cmd.Throttle != 0 {
		t.Errorf("cmd = %+v, want pure rotation", cmd)
	}
	rs.Throttle = cmd.Throttle

	// Heading barely moved: keep rotating.
	rs.Yaw = 55
	cmd = sup.Step(rs, t0.Add(4*time.Second))
	if sup.Mode() != ModeStuckRecovery || cmd.Steer != 15 {
		t.Fatalf("recovery ended early: mode %v cmd %+v", sup.Mode(), cmd)
	}

	// Heading diverged past the margin: resume normal drive.
	rs.Yaw = 85
	cmd = sup.Step(rs, t0.Add(5*time.Second))
	if sup.Mode() != ModeForward {
		t.Errorf("mode = %v, want FORWARD after recovery", sup.Mode())
	}
	if rs.TimerOn {
		t.Error("stuck timer not reset after recovery")
	}
	if cmd.Throttle <= 0 {
		t.Errorf("throttle = %g, want positive after recovery", cmd.Throttle)
	}
}

func TestStuckTimerResetsWhenMoving(t *testing.T) {
	sup := NewSupervisor(DefaultDecisionConfig(), 10)
	rs := driveState()
	rs.Throttle = 0.8
	rs.Vel = 0

	t0 := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	sup.Step(rs, t0)
	if !rs.TimerOn {
		t.Fatal("stuck timer not started")
	}

	// The rover broke free before the grace period expired.
	rs.Vel = 1.0
	sup.Step(rs, t0.Add(time.Second))
	if rs.TimerOn {
		t.Error("stuck timer not reset after motion resumed")
	}

	// Even well past the original grace deadline, no recovery starts.
	rs.Vel = 1.0
	sup.Step(rs, t0.Add(10*time.Second))
	if sup.Mode() == ModeStuckRecovery {
		t.Error("recovery started despite motion")
	}
}

func TestSampleApproach(t *testing.T) {
	sup := NewSupervisor(DefaultDecisionConfig(), 10)
	rs := driveState()
	rs.Rock = PolarSet{Dists: []float64{50}, Angles: []float64{5}}
	rs.Vel = 0.1

	cmd := sup.Step(rs, time.Now())
	if sup.Mode() != ModeSampleApproach {
		t.Fatalf("mode = %v, want SAMPLE_APPROACH", sup.Mode())
	}
	if !almostEqual(cmd.Throttle, 0.3) {
		t.Errorf("throttle = %g, want crawl throttle 0.3", cmd.Throttle)
	}
	if !almostEqual(cmd.Steer, 5) {
		t.Errorf("steer = %g, want 5 toward the rock", cmd.Steer)
	}

	// Too fast for a controlled approach: shed speed.
	rs.Vel = 1.5
	cmd = sup.Step(rs, time.Now())
	if cmd.Brake == 0 || cmd.Throttle != 0 {
		t.Errorf("cmd = %+v, want braking approach", cmd)
	}
}

func TestRockOutOfPickupRange(t *testing.T) {
	sup := NewSupervisor(DefaultDecisionConfig(), 10)
	rs := driveState()
	rs.Rock = PolarSet{Dists: []float64{120}, Angles: []float64{5}}

	sup.Step(rs, time.Now())
	if sup.Mode() != ModeForward {
		t.Errorf("mode = %v, distant rock should not trigger the approach", sup.Mode())
	}
}

func TestPickupRequestOneShot(t *testing.T) {
	sup := NewSupervisor(DefaultDecisionConfig(), 10)
	rs := driveState()
	rs.NearSample = true
	rs.Vel = 0

	cmd := sup.Step(rs, time.Now())
	if !rs.SendPickup {
		t.Fatal("pickup request not raised")
	}
	if cmd.Brake != 10 {
		t.Errorf("brake = %g, want full brake at the sample", cmd.Brake)
	}

	// The orchestrator consumed the request; repeating the same inputs must
	// not raise it again.
	rs.SendPickup = false
	for i := 0; i < 3; i++ {
		sup.Step(rs, time.Now())
		if rs.SendPickup {
			t.Fatalf("pickup request re-raised on cycle %d", i)
		}
	}

	// Leaving the sample releases the latch for the next encounter.
	rs.NearSample = false
	sup.Step(rs, time.Now())

	rs.NearSample = true
	sup.Step(rs, time.Now())
	if !rs.SendPickup {
		t.Error("pickup request not raised on a new encounter")
	}
}

func TestPickupWaitsForStandstill(t *testing.T) {
	sup := NewSupervisor(DefaultDecisionConfig(), 10)
	rs := driveState()
	rs.NearSample = true
	rs.Vel = 1.0

	cmd := sup.Step(rs, time.Now())
	if rs.SendPickup {
		t.Error("pickup requested while still moving")
	}
	if cmd.Brake != 10 {
		t.Errorf("brake = %g, want full brake", cmd.Brake)
	}
}

func TestPickingUpHoldsStill(t *testing.T) {
	sup := NewSupervisor(DefaultDecisionConfig(), 10)
	rs := driveState()
	rs.PickingUp = true

	cmd := sup.Step(rs, time.Now())
	if sup.Mode() != ModeSampleApproach {
		t.Errorf("mode = %v, want SAMPLE_APPROACH while lifting", sup.Mode())
	}
	if cmd.Brake != 10 || cmd.Throttle != 0 || cmd.Steer != 0 {
		t.Errorf("cmd = %+v, want brake-only hold", cmd)
	}
}

func TestGoingHomeOnSamplesCollected(t *testing.T) {
	sup := NewSupervisor(DefaultDecisionConfig(), 10)
	rs := driveState()
	rs.SamplesCollected = 6

	sup.Step(rs, time.Now())
	if !rs.GoingHome {
		t.Error("going-home flag not set after collecting all samples")
	}
}

func TestGoingHomeOnMapCompletion(t *testing.T) {
	sup := NewSupervisor(DefaultDecisionConfig(), 10)
	rs := driveState()
	rs.MappedPercent = 96

	sup.Step(rs, time.Now())
	if !rs.GoingHome {
		t.Error("going-home flag not set after map completion")
	}
}

func TestReturnHomeSteering(t *testing.T) {
	sup := NewSupervisor(DefaultDecisionConfig(), 10)
	rs := driveState()
	rs.GoingHome = true
	rs.Home = Point{X: 10, Y: 10}
	rs.Pos = Point{X: 60, Y: 10}
	rs.Yaw = 0 // home is directly behind

	cmd := sup.Step(rs, time.Now())
	if sup.Mode() != ModeReturnHome {
		t.Fatalf("mode = %v, want RETURN_HOME", sup.Mode())
	}
	if !almostEqual(rs.HomeDistance, 50) {
		t.Errorf("home distance = %g, want 50", rs.HomeDistance)
	}
	if !almostEqual(rs.HomeHeading, 180) {
		t.Errorf("home heading = %g, want 180", rs.HomeHeading)
	}
	// The bearing exceeds the steering limit; clamp and turn.
	if cmd.Steer != 15 {
		t.Errorf("steer = %g, want clamp at 15", cmd.Steer)
	}
	if cmd.Throttle <= 0 {
		t.Errorf("throttle = %g, want positive far from home", cmd.Throttle)
	}
}

func TestReturnHomeSlowApproach(t *testing.T) {
	sup := NewSupervisor(DefaultDecisionConfig(), 10)
	rs := driveState()
	rs.GoingHome = true
	rs.Home = Point{X: 100, Y: 100}
	rs.Pos = Point{X: 108, Y: 100} // inside the slow radius
	rs.Vel = 0.5

	cmd := sup.Step(rs, time.Now())
	if !almostEqual(cmd.Throttle, 0.3) {
		t.Errorf("throttle = %g, want crawl throttle near home", cmd.Throttle)
	}
}

func TestArriveHomeDone(t *testing.T) {
	sup := NewSupervisor(DefaultDecisionConfig(), 10)
	rs := driveState()
	rs.GoingHome = true
	rs.Home = Point{X: 100, Y: 100}
	rs.Pos = Point{X: 100.5, Y: 100}
	rs.Vel = 0.1

	cmd := sup.Step(rs, time.Now())
	if sup.Mode() != ModeDone {
		t.Fatalf("mode = %v, want DONE", sup.Mode())
	}
	if cmd != (Command{}) {
		t.Errorf("cmd = %+v, want zero command when done", cmd)
	}

	// Done is terminal; later cycles keep the rover parked.
	rs.Nav = uniformPolar(600, 0, 30)
	rs.Pos = Point{X: 120, Y: 100}
	cmd = sup.Step(rs, time.Now())
	if sup.Mode() != ModeDone || cmd != (Command{}) {
		t.Errorf("left DONE: mode %v cmd %+v", sup.Mode(), cmd)
	}
}

func TestHeadingDelta(t *testing.T) {
	tests := []struct {
		a, b, want float64
	}{
		{10, 40, 30},
		{350, 20, 30},
		{0, 180, 180},
		{45, 45, 0},
		{-10, 10, 20},
	}
	for _, tt := range tests {
		if got := headingDelta(tt.a, tt.b); !almostEqual(got, tt.want) {
			t.Errorf("headingDelta(%g, %g) = %g, want %g", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestDecisionConfigValidate(t *testing.T) {
	cfg := DefaultDecisionConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	bad := cfg
	bad.LeftBias = 1.5
	if err := bad.Validate(); err == nil {
		t.Error("leftBias 1.5 accepted")
	}

	bad = cfg
	bad.GoNavCount = 10
	bad.StopNavCount = 50
	if err := bad.Validate(); err == nil {
		t.Error("goNavCount below stopNavCount accepted")
	}

	bad = cfg
	bad.StuckGraceSec = 0
	if err := bad.Validate(); err == nil {
		t.Error("zero stuck grace accepted")
	}
}
