package rover

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
)

// envelope is the websocket wire frame: a named event with a JSON payload.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// controlData is the outbound "data" event payload. The simulator expects
// stringified numerics.
type controlData struct {
	Throttle      string `json:"throttle"`
	Brake         string `json:"brake"`
	SteeringAngle string `json:"steering_angle"`
	InsetImage1   string `json:"inset_image1"`
	InsetImage2   string `json:"inset_image2"`
}

// CycleFunc runs one pipeline cycle for an inbound telemetry message.
type CycleFunc func(Telemetry) CycleResult

// Link is the websocket boundary adapter between the simulator and the
// pipeline. One cycle runs per inbound telemetry event on the connection's
// read goroutine, so cycles never overlap and no frames are buffered: a slow
// cycle just delays the next message.
type Link struct {
	upgrader websocket.Upgrader
	cycle    CycleFunc
}

// NewLink creates a simulator link that drives the given cycle function.
func NewLink(cycle CycleFunc) *Link {
	return &Link{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1 << 16, // telemetry carries a whole camera frame
			WriteBufferSize: 1 << 16,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		cycle: cycle,
	}
}

// ServeHTTP upgrades the simulator connection and runs its session.
func (l *Link) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Simulator upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	log.Printf("Simulator connected from %s", conn.RemoteAddr())

	// On connect: neutral command, then request the sample metadata.
	if err := sendControl(conn, Command{}, "", ""); err != nil {
		log.Printf("Error sending initial control: %v", err)
		return
	}
	if err := sendEvent(conn, "get_samples", struct{}{}); err != nil {
		log.Printf("Error requesting samples: %v", err)
		return
	}

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			log.Printf("Simulator disconnected: %v", err)
			return
		}

		var env envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			log.Printf("Error decoding simulator frame: %v", err)
			continue
		}

		if env.Event != "telemetry" {
			continue
		}
		if len(env.Data) == 0 {
			// Simulator is in manual mode; acknowledge without commands.
			if err := sendEvent(conn, "manual", struct{}{}); err != nil {
				return
			}
			continue
		}

		tlm, err := ParseTelemetry(env.Data)
		if err != nil {
			log.Printf("Error parsing telemetry: %v", err)
			continue
		}

		res := l.cycle(tlm)

		// A cycle emits exactly one outbound message: either the pickup
		// request or the control command, never both.
		if res.Pickup {
			log.Printf("Requesting sample pickup")
			if err := sendEvent(conn, "pickup", struct{}{}); err != nil {
				log.Printf("Error sending pickup: %v", err)
				return
			}
			continue
		}
		if err := sendControl(conn, res.Cmd, res.Vision, res.MapView); err != nil {
			log.Printf("Error sending control: %v", err)
			return
		}
	}
}

func sendControl(conn *websocket.Conn, cmd Command, inset1, inset2 string) error {
	return sendEvent(conn, "data", controlData{
		Throttle:      formatNum(cmd.Throttle),
		Brake:         formatNum(cmd.Brake),
		SteeringAngle: formatNum(cmd.Steer),
		InsetImage1:   inset1,
		InsetImage2:   inset2,
	})
}

func sendEvent(conn *websocket.Conn, event string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encoding %s payload: %w", event, err)
	}
	return conn.WriteJSON(envelope{Event: event, Data: payload})
}

func formatNum(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
