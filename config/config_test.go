package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "repcounter.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv(EnvPostgresDSN, "")
	t.Setenv(EnvMQTTBroker, "")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Camera.Width != 640 || cfg.Camera.Height != 480 {
		t.Errorf("got camera %dx%d, want 640x480", cfg.Camera.Width, cfg.Camera.Height)
	}
	if cfg.Detector.ModelComplexity != 1 || !cfg.Detector.SmoothLandmarks || cfg.Detector.MinDetectionConfidence != 0.5 {
		t.Errorf("unexpected detector options %+v", cfg.Detector.Options)
	}
	if cfg.MQTT.Broker != "" || cfg.MQTT.Topics.Control != "" {
		t.Errorf("mqtt should be disabled by default, got %+v", cfg.MQTT)
	}
}

func TestLoadFile(t *testing.T) {
	t.Setenv(EnvPostgresDSN, "")
	t.Setenv(EnvMQTTBroker, "")

	path := writeConfig(t, `
camera:
  device: 2
detector:
  command: ./worker
  timeout: 3s
  model_complexity: 2
  min_tracking_confidence: 0.7
classifier:
  min_visibility: 0.3
mqtt:
  broker: localhost:1883
  client_id: gym
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Camera.Device != 2 || cfg.Camera.Width != 640 {
		t.Errorf("unexpected camera %+v", cfg.Camera)
	}
	if cfg.Detector.Command != "./worker" || cfg.Detector.Timeout != 3*time.Second {
		t.Errorf("unexpected detector %+v", cfg.Detector)
	}
	if cfg.Detector.ModelComplexity != 2 || cfg.Detector.MinTrackingConfidence != 0.7 || cfg.Detector.MinDetectionConfidence != 0.5 {
		t.Errorf("unexpected detector options %+v", cfg.Detector.Options)
	}
	if cfg.Classifier.MinVisibility != 0.3 || cfg.Classifier.LegsApartThreshold != 0.5 {
		t.Errorf("unexpected classifier %+v", cfg.Classifier)
	}
	if cfg.MQTT.Topics.Control != "repcounter/gym/control" || cfg.MQTT.Topics.Events != "repcounter/gym/events" {
		t.Errorf("unexpected topics %+v", cfg.MQTT.Topics)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvPostgresDSN, "postgres://localhost/reps")
	t.Setenv(EnvMQTTBroker, "mqtt.local:1883")

	cfg, err := Load(writeConfig(t, "storage:\n  postgres_dsn: postgres://file/reps\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Storage.PostgresDSN != "postgres://localhost/reps" {
		t.Errorf("got dsn %q", cfg.Storage.PostgresDSN)
	}
	if cfg.MQTT.BrokerURL() != "tcp://mqtt.local:1883" {
		t.Errorf("got broker %q", cfg.MQTT.BrokerURL())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative device", func(c *Config) { c.Camera.Device = -1 }},
		{"jpeg quality", func(c *Config) { c.Camera.JPEGQuality = 101 }},
		{"no command", func(c *Config) { c.Detector.Command = " " }},
		{"model complexity", func(c *Config) { c.Detector.ModelComplexity = 3 }},
		{"negative timeout", func(c *Config) { c.Detector.Timeout = -time.Second }},
		{"visibility", func(c *Config) { c.Classifier.MinVisibility = 1.5 }},
		{"qos", func(c *Config) { c.MQTT.Broker = "x:1883"; c.MQTT.QoS = 3 }},
	}

	for _, tt := range tests {
		testname := fmt.Sprintf("%s", tt.name)
		t.Run(testname, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := Validate(cfg); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestBrokerURLKeepsScheme(t *testing.T) {
	m := MQTTConfig{Broker: "ssl://broker:8883"}
	if got := m.BrokerURL(); got != "ssl://broker:8883" {
		t.Errorf("got %q", got)
	}
}
