package main

import (
	"fmt"
	"image/jpeg"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/redrock/searchrover/rover"
)

// Status is a read-only snapshot of the rover for the observer endpoints.
type Status struct {
	X                float64   `json:"x"`
	Y                float64   `json:"y"`
	Yaw              float64   `json:"yaw"`
	Vel              float64   `json:"vel"`
	Mode             string    `json:"mode"`
	MappedPercent    float64   `json:"mappedPercent"`
	SamplesCollected int       `json:"samplesCollected"`
	SamplesTarget    int       `json:"samplesTarget"`
	GoingHome        bool      `json:"goingHome"`
	Cycles           int64     `json:"cycles"`
	LastTelemetry    time.Time `json:"lastTelemetry"`
}

// App wires the pipeline, simulator link, observer HTTP server and optional
// MQTT publisher together.
type App struct {
	Config    *rover.Config
	World     *rover.WorldMap
	Pipeline  *rover.Pipeline
	Rover     *rover.RoverState
	Publisher *rover.Publisher

	mu          sync.RWMutex
	status      Status
	lastVision  string
	lastMapView string
	track       []rover.Point
	lastPublish time.Time
	frameSeq    int
}

// NewApp constructs the application from configuration.
func NewApp(cfg *rover.Config) (*App, error) {
	world := rover.NewWorldMap(cfg.Perception.WorldSize)
	if cfg.GroundTruthMap != "" {
		if err := world.LoadGroundTruth(cfg.GroundTruthMap); err != nil {
			log.Printf("Warning: %v; mapped fraction will read 0", err)
		}
	}

	pipeline, err := rover.NewPipeline(cfg, world, rover.FrameWidth, rover.FrameHeight)
	if err != nil {
		return nil, fmt.Errorf("building pipeline: %w", err)
	}

	app := &App{
		Config:   cfg,
		World:    world,
		Pipeline: pipeline,
		Rover:    rover.NewRoverState(world, cfg.SamplesTarget),
	}

	client, err := rover.InitMQTT(cfg.MQTT)
	if err != nil {
		return nil, err
	}
	if client != nil {
		app.Publisher = rover.NewPublisher(client, cfg.MQTT.PublishPrefix)
	}

	if cfg.RecordDir != "" {
		if err := os.MkdirAll(cfg.RecordDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating record directory: %w", err)
		}
		log.Printf("Recording camera frames to %s", cfg.RecordDir)
	}

	return app, nil
}

// Cycle runs one pipeline cycle for an inbound telemetry message and
// refreshes the observer snapshot. It is invoked sequentially from the
// simulator link's read goroutine.
func (a *App) Cycle(tlm rover.Telemetry) rover.CycleResult {
	res := a.Pipeline.Cycle(a.Rover, tlm, time.Now())

	if a.Config.RecordDir != "" && tlm.Frame != nil {
		a.recordFrame(tlm)
	}

	a.updateStatus(res)
	a.maybePublish()
	return res
}

func (a *App) updateStatus(res rover.CycleResult) {
	rs := a.Rover
	a.mu.Lock()
	defer a.mu.Unlock()

	a.status = Status{
		X:                rs.Pos.X,
		Y:                rs.Pos.Y,
		Yaw:              rs.Yaw,
		Vel:              rs.Vel,
		Mode:             res.Mode.String(),
		MappedPercent:    rs.MappedPercent,
		SamplesCollected: rs.SamplesCollected,
		SamplesTarget:    rs.SamplesTarget,
		GoingHome:        rs.GoingHome,
		Cycles:           a.status.Cycles + 1,
		LastTelemetry:    time.Now(),
	}
	if !res.Skipped {
		a.lastVision = res.Vision
		a.lastMapView = res.MapView
		a.track = rs.Track
	}
}

// maybePublish pushes pose and progress to MQTT at most once per second to
// keep broker traffic well below the 25 Hz telemetry rate. Publishing runs
// off the link's read goroutine so a degraded broker cannot stall telemetry
// cycles.
func (a *App) maybePublish() {
	if a.Publisher == nil {
		return
	}
	a.mu.Lock()
	if time.Since(a.lastPublish) < time.Second {
		a.mu.Unlock()
		return
	}
	a.lastPublish = time.Now()
	st := a.status
	a.mu.Unlock()

	go func() {
		if err := a.Publisher.PublishPose(rover.PoseMessage{
			X: st.X, Y: st.Y, Yaw: st.Yaw, Vel: st.Vel, Mode: st.Mode,
		}); err != nil {
			log.Printf("Error publishing pose: %v", err)
		}
		if err := a.Publisher.PublishProgress(rover.ProgressMessage{
			MappedPercent:    st.MappedPercent,
			SamplesCollected: st.SamplesCollected,
			SamplesTarget:    st.SamplesTarget,
			GoingHome:        st.GoingHome,
		}); err != nil {
			log.Printf("Error publishing progress: %v", err)
		}
	}()
}

// recordFrame saves the raw camera frame as a timestamped JPEG.
func (a *App) recordFrame(tlm rover.Telemetry) {
	a.mu.Lock()
	a.frameSeq++
	seq := a.frameSeq
	a.mu.Unlock()

	name := fmt.Sprintf("%s_%06d.jpg", time.Now().UTC().Format("2006_01_02_15_04_05"), seq)
	f, err := os.Create(filepath.Join(a.Config.RecordDir, name))
	if err != nil {
		log.Printf("Error creating frame file: %v", err)
		return
	}
	defer f.Close()
	if err := jpeg.Encode(f, tlm.Frame, nil); err != nil {
		log.Printf("Error encoding frame: %v", err)
	}
}

// GetStatus returns the latest observer snapshot.
func (a *App) GetStatus() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.status
}

// LastInsets returns the most recent display inset payloads (base64 PNG).
func (a *App) LastInsets() (vision, mapView string) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lastVision, a.lastMapView
}

// Track returns a copy of the rover's traveled world positions.
func (a *App) Track() []rover.Point {
	a.mu.RLock()
	defer a.mu.RUnlock()
	track := make([]rover.Point, len(a.track))
	copy(track, a.track)
	return track
}

// RunLink serves the simulator websocket endpoint. Blocks until the
// listener fails.
func (a *App) RunLink() error {
	link := rover.NewLink(a.Cycle)
	mux := http.NewServeMux()
	mux.Handle("/", link)

	log.Printf("Simulator link listening on %s", a.Config.Link.Addr)
	return http.ListenAndServe(a.Config.Link.Addr, mux)
}

// RunHTTP serves the observer endpoints. Blocks until the listener fails.
func (a *App) RunHTTP() error {
	addr := fmt.Sprintf(":%d", a.Config.HTTP.Port)
	log.Printf("Observer HTTP server listening on %s", addr)
	return http.ListenAndServe(addr, newHTTPServer(a))
}

// Close releases external connections.
func (a *App) Close() {
	if a.Publisher != nil {
		a.Publisher.Disconnect()
	}
}
