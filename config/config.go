// Package config loads the repcounter YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/DaniruKun/repcounter/landmark"
)

// Config is the complete repcounter configuration.
type Config struct {
	Camera     CameraConfig     `yaml:"camera"`
	Detector   DetectorConfig   `yaml:"detector"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Display    DisplayConfig    `yaml:"display"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Storage    StorageConfig    `yaml:"storage"`
}

// CameraConfig selects the capture device.
type CameraConfig struct {
	Device      int `yaml:"device"`
	Width       int `yaml:"width"`
	Height      int `yaml:"height"`
	JPEGQuality int `yaml:"jpeg_quality"` // 0 keeps the encoder default
}

// DetectorConfig describes the landmark worker process.
type DetectorConfig struct {
	Command string        `yaml:"command"`
	Args    []string      `yaml:"args"`
	Timeout time.Duration `yaml:"timeout"` // per frame, 0 waits forever

	landmark.Options `yaml:",inline"`
}

// ClassifierConfig tunes the motion classifier.
type ClassifierConfig struct {
	MinVisibility      float64 `yaml:"min_visibility"`       // 0 disables the check
	LegsApartThreshold float64 `yaml:"legs_apart_threshold"` // normalized ankle spread
}

// DisplayConfig controls the preview window.
type DisplayConfig struct {
	Window bool   `yaml:"window"`
	Title  string `yaml:"title"`
}

// MQTTConfig contains MQTT broker settings. An empty broker disables MQTT.
type MQTTConfig struct {
	Broker   string     `yaml:"broker"`
	ClientID string     `yaml:"client_id"`
	Topics   MQTTTopics `yaml:"topics"`
	QoS      byte       `yaml:"qos"`
}

// MQTTTopics contains topic names. Events are published under
// "<events>/<kind>".
type MQTTTopics struct {
	Control   string `yaml:"control"`
	Events    string `yaml:"events"`
	Responses string `yaml:"responses"`
}

// StorageConfig selects where session history goes. PostgresDSN wins over
// JSONDir when both are set.
type StorageConfig struct {
	PostgresDSN string `yaml:"postgres_dsn"`
	JSONDir     string `yaml:"json_dir"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Camera: CameraConfig{
			Width:  640,
			Height: 480,
		},
		Detector: DetectorConfig{
			Command: "python3",
			Args:    []string{"-m", "repcounter_worker"},
			Options: landmark.DefaultOptions(),
		},
		Classifier: ClassifierConfig{
			LegsApartThreshold: 0.5,
		},
		Display: DisplayConfig{
			Title: "repcounter",
		},
		MQTT: MQTTConfig{
			ClientID: "repcounter",
			QoS:      1,
		},
	}
}

// Load reads and parses a YAML configuration file. Fields missing from the
// file keep their defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	applyEnv(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
