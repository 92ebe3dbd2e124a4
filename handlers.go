package main

import (
	"encoding/base64"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/redrock/searchrover/rover"
)

// newHTTPServer creates the observer HTTP mux with all endpoints.
func newHTTPServer(app *App) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		status := struct {
			Status    string    `json:"status"`
			Timestamp time.Time `json:"timestamp"`
			Cycles    int64     `json:"cycles"`
		}{
			Status:    "ok",
			Timestamp: time.Now(),
			Cycles:    app.GetStatus().Cycles,
		}
		if err := json.NewEncoder(w).Encode(status); err != nil {
			log.Printf("Error encoding health status: %v", err)
		}
	})

	// Rover status snapshot
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")
		if err := json.NewEncoder(w).Encode(app.GetStatus()); err != nil {
			log.Printf("Error encoding status: %v", err)
		}
	})

	// Accumulated world map rendered over the ground truth
	mux.HandleFunc("/worldmap.png", func(w http.ResponseWriter, r *http.Request) {
		_, mapView := app.LastInsets()
		if mapView == "" {
			// No cycle has run yet; render the bare map.
			st := app.GetStatus()
			img := rover.RenderWorldMap(app.World.Snapshot(),
				rover.Point{X: st.X, Y: st.Y}, st.Yaw, st.MappedPercent, st.SamplesCollected)
			mapView = rover.EncodePNGBase64(img)
		}
		servePNGBase64(w, mapView)
	})

	// Classified camera view from the last cycle
	mux.HandleFunc("/vision.png", func(w http.ResponseWriter, r *http.Request) {
		vision, _ := app.LastInsets()
		if vision == "" {
			http.Error(w, "No camera frame processed yet", http.StatusServiceUnavailable)
			return
		}
		servePNGBase64(w, vision)
	})

	// World map export for external mapping tools
	mux.HandleFunc("/worldmap.geojson", func(w http.ResponseWriter, r *http.Request) {
		fc := rover.WorldMapGeoJSON(app.World.Snapshot(), app.Track(), 0)
		w.Header().Set("Content-Type", "application/geo+json")
		w.Header().Set("Cache-Control", "no-cache")
		if err := json.NewEncoder(w).Encode(fc); err != nil {
			log.Printf("Error encoding world map GeoJSON: %v", err)
		}
	})

	return mux
}

// servePNGBase64 decodes a base64 PNG payload and writes it as an image
// response.
func servePNGBase64(w http.ResponseWriter, b64 string) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		http.Error(w, "Corrupt image payload", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	if _, err := w.Write(raw); err != nil {
		log.Printf("Error writing PNG response: %v", err)
	}
}
