package rover

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LinkConfig controls the simulator websocket listener.
type LinkConfig struct {
	Addr string `yaml:"addr" json:"addr"`
}

// HTTPConfig controls the observer HTTP server.
type HTTPConfig struct {
	Port int `yaml:"port" json:"port"`
}

// MQTTConfig holds MQTT connection settings for the progress publisher.
// An empty broker disables publishing.
type MQTTConfig struct {
	Broker        string `yaml:"broker,omitempty" json:"broker,omitempty"`
	ClientID      string `yaml:"clientId,omitempty" json:"clientId,omitempty"`
	PublishPrefix string `yaml:"publishPrefix,omitempty" json:"publishPrefix,omitempty"`
	Username      string `yaml:"username,omitempty" json:"username,omitempty"`
	Password      string `yaml:"password,omitempty" json:"password,omitempty"`
}

// PerceptionConfig bundles classifier thresholds, projector calibration and
// frame-conversion constants.
type PerceptionConfig struct {
	// Navigable terrain: all three RGB channels must strictly exceed these.
	NavThreshold [3]uint8 `yaml:"navThreshold" json:"navThreshold"`
	// Rock samples: inclusive HSV range (OpenCV scaling, H in [0,180)),
	// calibrated with the red and blue channels swapped.
	RockLow  [3]uint8 `yaml:"rockLow" json:"rockLow"`
	RockHigh [3]uint8 `yaml:"rockHigh" json:"rockHigh"`

	// Ground-plane projection calibration.
	SourcePoints [4]Point `yaml:"sourcePoints" json:"sourcePoints"`
	DstGrid      float64  `yaml:"dstGrid" json:"dstGrid"`           // output px per ground unit square
	BottomOffset float64  `yaml:"bottomOffset" json:"bottomOffset"` // camera blind zone below the rover

	// Fidelity ranges in rover-frame pixels; features beyond these are not
	// fused into the world map.
	MaxNavDist  float64 `yaml:"maxNavDist" json:"maxNavDist"`
	MaxObsDist  float64 `yaml:"maxObsDist" json:"maxObsDist"`
	MaxRockDist float64 `yaml:"maxRockDist" json:"maxRockDist"`

	// World map geometry.
	WorldSize   int     `yaml:"worldSize" json:"worldSize"`
	ScaleFactor float64 `yaml:"scaleFactor" json:"scaleFactor"` // rover-frame px per world unit

	// Stability gate thresholds in degrees of tilt from level.
	MaxPitch float64 `yaml:"maxPitch" json:"maxPitch"`
	MaxRoll  float64 `yaml:"maxRoll" json:"maxRoll"`

	// Confidence added per observed cell per stable cycle.
	MapIncrement float64 `yaml:"mapIncrement" json:"mapIncrement"`
}

// Config is the full application configuration.
type Config struct {
	Link           LinkConfig       `yaml:"link" json:"link"`
	HTTP           HTTPConfig       `yaml:"http" json:"http"`
	MQTT           MQTTConfig       `yaml:"mqtt,omitempty" json:"mqtt,omitempty"`
	Perception     PerceptionConfig `yaml:"perception" json:"perception"`
	Decision       DecisionConfig   `yaml:"decision" json:"decision"`
	GroundTruthMap string           `yaml:"groundTruthMap" json:"groundTruthMap"`
	SamplesTarget  int              `yaml:"samplesTarget" json:"samplesTarget"`
	RecordDir      string           `yaml:"recordDir,omitempty" json:"recordDir,omitempty"`
}

// DefaultConfig returns the calibrated defaults for the simulator build the
// perception constants were measured against.
func DefaultConfig() *Config {
	return &Config{
		Link: LinkConfig{Addr: ":4567"},
		HTTP: HTTPConfig{Port: 8080},
		Perception: PerceptionConfig{
			NavThreshold: [3]uint8{160, 160, 160},
			RockLow:      [3]uint8{75, 130, 130},
			RockHigh:     [3]uint8{255, 255, 255},
			SourcePoints: [4]Point{
				{X: 14, Y: 140},
				{X: 301, Y: 140},
				{X: 200, Y: 96},
				{X: 118, Y: 96},
			},
			DstGrid:      10,
			BottomOffset: 6,
			MaxNavDist:   60,
			MaxObsDist:   80,
			MaxRockDist:  70,
			WorldSize:    200,
			ScaleFactor:  10,
			MaxPitch:     0.25,
			MaxRoll:      0.37,
			MapIncrement: 255,
		},
		Decision:       DefaultDecisionConfig(),
		GroundTruthMap: "calibration/map_bw.png",
		SamplesTarget:  6,
	}
}

// LoadConfig reads the YAML configuration from disk, applying defaults for
// unset fields.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// SaveConfig writes the configuration to a YAML file.
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Validate checks required fields and internal consistency.
func (c *Config) Validate() error {
	if c.Link.Addr == "" {
		return fmt.Errorf("link.addr is required")
	}
	p := &c.Perception
	if p.WorldSize <= 0 {
		return fmt.Errorf("perception.worldSize must be positive")
	}
	if p.ScaleFactor <= 0 {
		return fmt.Errorf("perception.scaleFactor must be positive")
	}
	if p.DstGrid <= 0 {
		return fmt.Errorf("perception.dstGrid must be positive")
	}
	if p.MapIncrement <= 0 {
		return fmt.Errorf("perception.mapIncrement must be positive")
	}
	for i := 0; i < 3; i++ {
		if p.RockLow[i] > p.RockHigh[i] {
			return fmt.Errorf("perception.rockLow[%d] exceeds rockHigh[%d]", i, i)
		}
	}
	if err := c.Decision.Validate(); err != nil {
		return err
	}
	return nil
}
