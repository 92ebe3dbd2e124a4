package rover

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/draw"
	"strconv"
	"strings"

	_ "image/jpeg" // camera frames arrive as base64 JPEG
	_ "image/png"
)

// wireTelemetry is the simulator's JSON payload. All numeric fields arrive
// stringified; speed may be "nan" when the physics engine glitches.
type wireTelemetry struct {
	Image       string `json:"image"`
	PosX        string `json:"x"`
	PosY        string `json:"y"`
	Yaw         string `json:"yaw"`
	Pitch       string `json:"pitch"`
	Roll        string `json:"roll"`
	Speed       string `json:"speed"`
	NearSample  string `json:"near_sample"`
	PickingUp   string `json:"picking_up"`
	SampleCount string `json:"sample_count"`
}

// ParseTelemetry decodes one inbound telemetry payload. Non-finite speed
// values parse successfully and are left for the pipeline's velocity gate to
// handle.
func ParseTelemetry(data []byte) (Telemetry, error) {
	var wire wireTelemetry
	if err := json.Unmarshal(data, &wire); err != nil {
		return Telemetry{}, fmt.Errorf("decoding telemetry JSON: %w", err)
	}

	var tlm Telemetry
	var err error
	if tlm.Pos.X, err = parseFloat(wire.PosX, "x"); err != nil {
		return Telemetry{}, err
	}
	if tlm.Pos.Y, err = parseFloat(wire.PosY, "y"); err != nil {
		return Telemetry{}, err
	}
	if tlm.Yaw, err = parseFloat(wire.Yaw, "yaw"); err != nil {
		return Telemetry{}, err
	}
	if tlm.Pitch, err = parseFloat(wire.Pitch, "pitch"); err != nil {
		return Telemetry{}, err
	}
	if tlm.Roll, err = parseFloat(wire.Roll, "roll"); err != nil {
		return Telemetry{}, err
	}
	if tlm.Vel, err = parseFloat(wire.Speed, "speed"); err != nil {
		return Telemetry{}, err
	}
	tlm.NearSample = parseFlag(wire.NearSample)
	tlm.PickingUp = parseFlag(wire.PickingUp)
	if wire.SampleCount != "" {
		n, err := strconv.Atoi(strings.TrimSpace(wire.SampleCount))
		if err != nil {
			return Telemetry{}, fmt.Errorf("parsing sample_count %q: %w", wire.SampleCount, err)
		}
		tlm.SamplesCollected = n
	}

	if wire.Image != "" {
		frame, err := DecodeFrame(wire.Image)
		if err != nil {
			return Telemetry{}, err
		}
		tlm.Frame = frame
	}
	return tlm, nil
}

// DecodeFrame decodes a base64-encoded camera frame into RGBA.
func DecodeFrame(b64 string) (*image.RGBA, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("decoding frame base64: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decoding frame image: %w", err)
	}
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba, nil
	}
	rgba := image.NewRGBA(img.Bounds())
	draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Src)
	return rgba, nil
}

func parseFloat(s, field string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s %q: %w", field, s, err)
	}
	return v, nil
}

func parseFlag(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}
