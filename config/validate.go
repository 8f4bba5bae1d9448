package config

import (
	"fmt"
	"os"
	"strings"
)

// Environment overrides.
const (
	EnvPostgresDSN = "REPCOUNTER_POSTGRES_DSN"
	EnvMQTTBroker  = "REPCOUNTER_MQTT_BROKER"
)

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func applyEnv(cfg *Config) {
	cfg.Storage.PostgresDSN = getEnv(EnvPostgresDSN, cfg.Storage.PostgresDSN)
	cfg.MQTT.Broker = getEnv(EnvMQTTBroker, cfg.MQTT.Broker)
}

// Validate checks the configuration and fills in derived defaults.
func Validate(cfg *Config) error {
	if cfg.Camera.Device < 0 {
		return fmt.Errorf("camera.device must be >= 0")
	}
	if cfg.Camera.Width < 0 || cfg.Camera.Height < 0 {
		return fmt.Errorf("camera.width and camera.height must be >= 0")
	}
	if cfg.Camera.JPEGQuality < 0 || cfg.Camera.JPEGQuality > 100 {
		return fmt.Errorf("camera.jpeg_quality must be between 0 and 100")
	}

	if strings.TrimSpace(cfg.Detector.Command) == "" {
		return fmt.Errorf("detector.command is required")
	}
	if cfg.Detector.Timeout < 0 {
		return fmt.Errorf("detector.timeout must be >= 0")
	}
	if err := cfg.Detector.Options.Validate(); err != nil {
		return fmt.Errorf("detector: %w", err)
	}

	if cfg.Classifier.MinVisibility < 0 || cfg.Classifier.MinVisibility > 1 {
		return fmt.Errorf("classifier.min_visibility must be between 0 and 1")
	}
	if cfg.Classifier.LegsApartThreshold < 0 {
		return fmt.Errorf("classifier.legs_apart_threshold must be >= 0")
	}

	if cfg.MQTT.Broker != "" {
		if cfg.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
		}
		if cfg.MQTT.ClientID == "" {
			cfg.MQTT.ClientID = "repcounter"
		}
		if cfg.MQTT.Topics.Control == "" {
			cfg.MQTT.Topics.Control = fmt.Sprintf("repcounter/%s/control", cfg.MQTT.ClientID)
		}
		if cfg.MQTT.Topics.Events == "" {
			cfg.MQTT.Topics.Events = fmt.Sprintf("repcounter/%s/events", cfg.MQTT.ClientID)
		}
		if cfg.MQTT.Topics.Responses == "" {
			cfg.MQTT.Topics.Responses = fmt.Sprintf("repcounter/%s/responses", cfg.MQTT.ClientID)
		}
	}

	return nil
}

// BrokerURL adds the tcp scheme to a bare host:port.
func (m MQTTConfig) BrokerURL() string {
	if strings.Contains(m.Broker, "://") {
		return m.Broker
	}
	return "tcp://" + m.Broker
}
