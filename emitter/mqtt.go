// Package emitter publishes session events to an MQTT broker.
package emitter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/DaniruKun/repcounter/config"
	"github.com/DaniruKun/repcounter/session"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
)

// Dial connects to the broker with auto-reconnect enabled.
func Dial(cfg config.MQTTConfig, logger *slog.Logger) (mqtt.Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL())
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		logger.Info("mqtt connection established", "broker", cfg.Broker, "client_id", cfg.ClientID)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		logger.Warn("mqtt connection lost, will auto-reconnect", "broker", cfg.Broker, "error", err)
	}

	client := mqtt.NewClient(opts)

	logger.Info("connecting to mqtt broker", "broker", cfg.Broker)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connection failed: %w", err)
	}
	return client, nil
}

// Publisher is the part of mqtt.Client the emitter needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTEmitter publishes session events as JSON. It implements session.Sink.
type MQTTEmitter struct {
	client Publisher
	topic  string
	qos    byte
	logger *slog.Logger

	mu        sync.Mutex
	published map[string]uint64 // count per topic
	errors    uint64
}

func NewMQTTEmitter(client Publisher, cfg config.MQTTConfig, logger *slog.Logger) *MQTTEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &MQTTEmitter{
		client:    client,
		topic:     cfg.Topics.Events,
		qos:       cfg.QoS,
		logger:    logger,
		published: make(map[string]uint64),
	}
}

// Topic returns the topic ev is published on: <events>/<kind>.
func (e *MQTTEmitter) Topic(ev session.Event) string {
	return fmt.Sprintf("%s/%s", e.topic, ev.Kind)
}

// Handle publishes ev and waits for the broker acknowledgement.
func (e *MQTTEmitter) Handle(ctx context.Context, ev session.Event) error {
	topic := e.Topic(ev)

	payload, err := json.Marshal(ev)
	if err != nil {
		e.fail()
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	token := e.client.Publish(topic, e.qos, false, payload)
	select {
	case <-token.Done():
	case <-time.After(publishTimeout):
		e.fail()
		return fmt.Errorf("publish timeout")
	case <-ctx.Done():
		e.fail()
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		e.fail()
		return fmt.Errorf("publish failed: %w", err)
	}

	e.mu.Lock()
	e.published[topic]++
	e.mu.Unlock()

	e.logger.Debug("event published", "topic", topic, "qos", e.qos, "size", len(payload))
	return nil
}

func (e *MQTTEmitter) fail() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}

// Stats contains emitter statistics.
type Stats struct {
	Published map[string]uint64
	Errors    uint64
}

func (e *MQTTEmitter) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	published := make(map[string]uint64, len(e.published))
	for k, v := range e.published {
		published[k] = v
	}
	return Stats{Published: published, Errors: e.errors}
}
