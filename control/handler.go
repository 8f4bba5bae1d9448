// Package control maps MQTT commands onto the session controller.
package control

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
	subscribeTimeout = 5 * time.Second
	responseTimeout  = 2 * time.Second
	commandQueue     = 10
)

// Command names.
const (
	CmdStart     = "start"
	CmdStop      = "stop"
	CmdReset     = "reset"
	CmdLoadVideo = "load_video"
	CmdGetStatus = "get_status"
)

// Command represents a control plane command.
type Command struct {
	Command string            `json:"command"`
	Params  map[string]string `json:"params,omitempty"`
}

// Response is published for every command.
type Response struct {
	CommandAck string         `json:"command_ack"`
	Status     string         `json:"status"`
	Data       *session.State `json:"data,omitempty"`
	Error      string         `json:"error,omitempty"`
	Timestamp  string         `json:"timestamp"`
}

// Controller is the session surface commands act on.
type Controller interface {
	Start(ctx context.Context) error
	Stop() error
	Reset() error
	LoadVideo(ctx context.Context, path string) error
	State() session.State
}

// Client is the part of mqtt.Client the handler needs.
type Client interface {
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Handler handles control plane commands.
type Handler struct {
	cfg        config.MQTTConfig
	client     Client
	controller Controller
	logger     *slog.Logger
	commands   chan Command

	// done is closed by Stop. commands is never closed since the MQTT
	// callback may still deliver after Unsubscribe.
	done     chan struct{}
	stopOnce sync.Once
}

func NewHandler(cfg config.MQTTConfig, client Client, controller Controller, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		cfg:        cfg,
		client:     client,
		controller: controller,
		logger:     logger,
		commands:   make(chan Command, commandQueue),
		done:       make(chan struct{}),
	}
}

// Start subscribes to the control topic and processes commands until ctx is
// done or Stop is called.
func (h *Handler) Start(ctx context.Context) error {
	topic := h.cfg.Topics.Control
	h.logger.Info("subscribing to control plane", "topic", topic, "qos", h.cfg.QoS)

	token := h.client.Subscribe(topic, h.cfg.QoS, h.messageHandler)
	if !token.WaitTimeout(subscribeTimeout) {
		return fmt.Errorf("control plane subscription timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("control plane subscription failed: %w", err)
	}

	go h.processCommands(ctx)
	return nil
}

// Stop unsubscribes and ends command processing.
func (h *Handler) Stop() error {
	token := h.client.Unsubscribe(h.cfg.Topics.Control)
	token.WaitTimeout(subscribeTimeout)
	h.stopOnce.Do(func() { close(h.done) })
	h.logger.Info("control plane handler stopped")
	return token.Error()
}

func (h *Handler) messageHandler(client mqtt.Client, msg mqtt.Message) {
	h.enqueue(msg.Payload())
}

func (h *Handler) enqueue(payload []byte) {
	select {
	case <-h.done:
		h.logger.Debug("control plane stopped, ignoring command")
		return
	default:
	}

	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		h.logger.Error("failed to parse control command", "error", err)
		h.sendResponse(Response{CommandAck: "unknown", Status: "error", Error: "invalid JSON"})
		return
	}

	h.logger.Info("control command received", "command", cmd.Command)

	select {
	case h.commands <- cmd:
	case <-h.done:
	default:
		h.logger.Warn("command queue full, dropping command", "command", cmd.Command)
	}
}

func (h *Handler) processCommands(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case cmd := <-h.commands:
			h.handleCommand(ctx, cmd)
		}
	}
}

func (h *Handler) handleCommand(ctx context.Context, cmd Command) {
	resp := Response{CommandAck: cmd.Command}

	var err error
	switch cmd.Command {
	case CmdStart:
		err = h.controller.Start(ctx)
	case CmdStop:
		err = h.controller.Stop()
	case CmdReset:
		err = h.controller.Reset()
	case CmdLoadVideo:
		path := cmd.Params["path"]
		if path == "" {
			err = fmt.Errorf("load_video requires params.path")
		} else {
			err = h.controller.LoadVideo(ctx, path)
		}
	case CmdGetStatus:
	default:
		err = fmt.Errorf("unknown command %q", cmd.Command)
	}

	if err != nil {
		resp.Status = "error"
		resp.Error = err.Error()
		h.logger.Warn("control command failed", "command", cmd.Command, "error", err)
	} else {
		resp.Status = "success"
	}
	st := h.controller.State()
	resp.Data = &st

	h.sendResponse(resp)
}

func (h *Handler) sendResponse(resp Response) {
	resp.Timestamp = time.Now().UTC().Format(time.RFC3339)

	payload, err := json.Marshal(resp)
	if err != nil {
		h.logger.Error("failed to marshal response", "error", err)
		return
	}

	token := h.client.Publish(h.cfg.Topics.Responses, h.cfg.QoS, false, payload)
	if !token.WaitTimeout(responseTimeout) {
		h.logger.Error("response publish timeout")
		return
	}
	if err := token.Error(); err != nil {
		h.logger.Error("failed to publish response", "error", err)
		return
	}

	h.logger.Debug("response sent", "command_ack", resp.CommandAck, "status", resp.Status)
}
