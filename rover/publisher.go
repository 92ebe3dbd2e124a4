package rover

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// PoseMessage is the retained MQTT payload describing the rover's pose.
type PoseMessage struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Yaw       float64 `json:"yaw"`
	Vel       float64 `json:"vel"`
	Mode      string  `json:"mode"`
	Timestamp int64   `json:"timestamp"`
}

// ProgressMessage is the retained MQTT payload describing mission progress.
type ProgressMessage struct {
	MappedPercent    float64 `json:"mappedPercent"`
	SamplesCollected int     `json:"samplesCollected"`
	SamplesTarget    int     `json:"samplesTarget"`
	GoingHome        bool    `json:"goingHome"`
	Timestamp        int64   `json:"timestamp"`
}

// InitMQTT connects to the MQTT broker from config. When no broker is
// configured (config and MQTT_BROKER env both empty), publishing is disabled
// and a nil client is returned without error.
func InitMQTT(cfg MQTTConfig) (mqtt.Client, error) {
	broker := os.Getenv("MQTT_BROKER")
	if broker == "" {
		broker = cfg.Broker
	}
	if broker == "" {
		log.Println("MQTT disabled: no broker configured")
		return nil, nil
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "searchrover"
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("MQTT connection timeout to %s", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connecting to MQTT broker: %w", err)
	}
	log.Printf("Connected to MQTT broker %s", broker)
	return client, nil
}

// Publisher publishes rover pose and mission progress to MQTT for external
// dashboards. A nil client disables publishing.
type Publisher struct {
	client mqtt.Client
	prefix string
	qos    byte
	retain bool
}

// NewPublisher creates a publisher with the given topic prefix (default
// "searchrover").
func NewPublisher(client mqtt.Client, prefix string) *Publisher {
	if prefix == "" {
		prefix = "searchrover"
	}
	return &Publisher{
		client: client,
		prefix: prefix,
		qos:    0,    // fire and forget for high-rate pose updates
		retain: true, // latest value for late subscribers
	}
}

// PublishPose publishes the current pose to {prefix}/pose.
func (p *Publisher) PublishPose(msg PoseMessage) error {
	msg.Timestamp = time.Now().Unix()
	return p.publish(p.prefix+"/pose", msg)
}

// PublishProgress publishes mission progress to {prefix}/progress.
func (p *Publisher) PublishProgress(msg ProgressMessage) error {
	msg.Timestamp = time.Now().Unix()
	return p.publish(p.prefix+"/progress", msg)
}

func (p *Publisher) publish(topic string, v interface{}) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s payload: %w", topic, err)
	}
	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	return nil
}

// Disconnect gracefully closes the MQTT connection.
func (p *Publisher) Disconnect() {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}
