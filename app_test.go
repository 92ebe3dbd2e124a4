package main

import (
	"image"
	"image/color"
	"math"
	"testing"
	"time"

	"github.com/redrock/searchrover/rover"
)

// newTestApp builds an app with no ground truth file, no MQTT and no frame
// recording.
func newTestApp(t *testing.T) *App {
	t.Helper()
	t.Setenv("MQTT_BROKER", "")

	cfg := rover.DefaultConfig()
	cfg.GroundTruthMap = ""

	app, err := NewApp(cfg)
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	return app
}

// sandFrame returns a camera frame of uniformly bright navigable terrain.
func sandFrame() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, rover.FrameWidth, rover.FrameHeight))
	for y := 0; y < rover.FrameHeight; y++ {
		for x := 0; x < rover.FrameWidth; x++ {
			img.SetRGBA(x, y, color.RGBA{200, 190, 180, 255})
		}
	}
	return img
}

func driveTelemetry() rover.Telemetry {
	return rover.Telemetry{
		Frame: sandFrame(),
		Pos:   rover.Point{X: 100, Y: 100},
		Vel:   1,
	}
}

func TestNewApp(t *testing.T) {
	app := newTestApp(t)

	if app.World == nil {
		t.Error("World not initialized")
	}
	if app.Pipeline == nil {
		t.Error("Pipeline not initialized")
	}
	if app.Rover == nil {
		t.Error("Rover state not initialized")
	}
	if app.Publisher != nil {
		t.Error("Publisher created without a broker")
	}
}

func TestAppCycleUpdatesStatus(t *testing.T) {
	app := newTestApp(t)

	res := app.Cycle(driveTelemetry())
	if res.Skipped {
		t.Fatal("cycle skipped")
	}

	st := app.GetStatus()
	if st.Cycles != 1 {
		t.Errorf("cycles = %d, want 1", st.Cycles)
	}
	if st.X != 100 || st.Y != 100 {
		t.Errorf("pos = (%g, %g), want (100, 100)", st.X, st.Y)
	}
	if st.Mode == "" {
		t.Error("mode not recorded")
	}
	if st.SamplesTarget != 6 {
		t.Errorf("samples target = %d, want 6", st.SamplesTarget)
	}

	vision, mapView := app.LastInsets()
	if vision == "" || mapView == "" {
		t.Error("display insets not recorded")
	}
}

func TestAppSkippedCycleKeepsInsets(t *testing.T) {
	app := newTestApp(t)
	app.Cycle(driveTelemetry())
	visionBefore, mapBefore := app.LastInsets()

	res := app.Cycle(rover.Telemetry{Vel: math.NaN()})
	if !res.Skipped {
		t.Fatal("NaN velocity cycle not skipped")
	}

	st := app.GetStatus()
	if st.Cycles != 2 {
		t.Errorf("cycles = %d, want 2", st.Cycles)
	}

	vision, mapView := app.LastInsets()
	if vision != visionBefore || mapView != mapBefore {
		t.Error("skipped cycle overwrote the display insets")
	}
}

func TestAppPublishesAfterCycle(t *testing.T) {
	app := newTestApp(t)
	client := rover.NewMockClient()
	app.Publisher = rover.NewPublisher(client, "")

	app.Cycle(driveTelemetry())

	// Publishing runs off the cycle goroutine; wait for both messages.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(client.PublishedMessages()) >= 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	msgs := client.PublishedMessages()
	if len(msgs) != 2 {
		t.Fatalf("published %d messages, want 2", len(msgs))
	}
	if msgs[0].Topic != "searchrover/pose" || msgs[1].Topic != "searchrover/progress" {
		t.Errorf("topics = %q, %q", msgs[0].Topic, msgs[1].Topic)
	}
}

func TestAppSlowBrokerDoesNotStallCycle(t *testing.T) {
	app := newTestApp(t)
	client := rover.NewMockClient()
	client.SetPublishDelay(10 * time.Second)
	app.Publisher = rover.NewPublisher(client, "")

	start := time.Now()
	app.Cycle(driveTelemetry())
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("cycle took %v with a stalled broker, want well under 1s", elapsed)
	}
}

func TestAppTrackCopy(t *testing.T) {
	app := newTestApp(t)
	app.Cycle(driveTelemetry())

	track := app.Track()
	if len(track) != 1 {
		t.Fatalf("track length = %d, want 1", len(track))
	}
	track[0] = rover.Point{X: -1, Y: -1}

	if got := app.Track()[0]; got != (rover.Point{X: 100, Y: 100}) {
		t.Errorf("track mutation leaked: %+v", got)
	}
}
