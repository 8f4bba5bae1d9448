package control

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/DaniruKun/repcounter/config"
	"github.com/DaniruKun/repcounter/session"
)

type fakeToken struct{ err error }

func (t *fakeToken) Wait() bool                       { return true }
func (t *fakeToken) WaitTimeout(d time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

type fakeClient struct {
	mu         sync.Mutex
	subscribed string
	responses  []Response
	sent       chan struct{}
}

func newFakeClient() *fakeClient {
	return &fakeClient{sent: make(chan struct{}, 16)}
}

func (c *fakeClient) Subscribe(topic string, qos byte, cb mqtt.MessageHandler) mqtt.Token {
	c.subscribed = topic
	return &fakeToken{}
}

func (c *fakeClient) Unsubscribe(topics ...string) mqtt.Token {
	return &fakeToken{}
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	var resp Response
	if err := json.Unmarshal(payload.([]byte), &resp); err != nil {
		panic(err)
	}
	c.mu.Lock()
	c.responses = append(c.responses, resp)
	c.mu.Unlock()
	c.sent <- struct{}{}
	return &fakeToken{}
}

func (c *fakeClient) last() Response {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.responses[len(c.responses)-1]
}

type fakeController struct {
	calls []string
	err   error
	state session.State
}

func (c *fakeController) Start(ctx context.Context) error {
	c.calls = append(c.calls, "start")
	return c.err
}

func (c *fakeController) Stop() error {
	c.calls = append(c.calls, "stop")
	return c.err
}

func (c *fakeController) Reset() error {
	c.calls = append(c.calls, "reset")
	return c.err
}

func (c *fakeController) LoadVideo(ctx context.Context, path string) error {
	c.calls = append(c.calls, "load_video "+path)
	return c.err
}

func (c *fakeController) State() session.State { return c.state }

var testMQTT = config.MQTTConfig{
	QoS:    1,
	Topics: config.MQTTTopics{Control: "gym/control", Responses: "gym/responses"},
}

func TestHandleCommand(t *testing.T) {
	tests := []struct {
		cmd    Command
		call   string
		status string
	}{
		{Command{Command: CmdStart}, "start", "success"},
		{Command{Command: CmdStop}, "stop", "success"},
		{Command{Command: CmdReset}, "reset", "success"},
		{Command{Command: CmdLoadVideo, Params: map[string]string{"path": "jacks.mp4"}}, "load_video jacks.mp4", "success"},
		{Command{Command: CmdLoadVideo}, "", "error"},
		{Command{Command: CmdGetStatus}, "", "success"},
		{Command{Command: "dance"}, "", "error"},
	}

	for _, tt := range tests {
		testname := fmt.Sprintf("%s %s", tt.cmd.Command, tt.status)
		t.Run(testname, func(t *testing.T) {
			client := newFakeClient()
			ctrl := &fakeController{state: session.State{RepCount: 5, Status: session.StatusRunning}}
			h := NewHandler(testMQTT, client, ctrl, nil)

			h.handleCommand(context.Background(), tt.cmd)

			if tt.call == "" && len(ctrl.calls) != 0 {
				t.Errorf("unexpected controller calls %v", ctrl.calls)
			}
			if tt.call != "" && (len(ctrl.calls) != 1 || ctrl.calls[0] != tt.call) {
				t.Errorf("got calls %v, want %s", ctrl.calls, tt.call)
			}

			resp := client.last()
			if resp.CommandAck != tt.cmd.Command || resp.Status != tt.status {
				t.Errorf("unexpected response %+v", resp)
			}
			if resp.Data == nil || resp.Data.RepCount != 5 || resp.Data.Status != session.StatusRunning {
				t.Errorf("response carries wrong state %+v", resp.Data)
			}
		})
	}
}

func TestControllerErrorIsReported(t *testing.T) {
	client := newFakeClient()
	ctrl := &fakeController{err: session.ErrCameraUnavailable}
	h := NewHandler(testMQTT, client, ctrl, nil)

	h.handleCommand(context.Background(), Command{Command: CmdStart})

	resp := client.last()
	if resp.Status != "error" || resp.Error != session.ErrCameraUnavailable.Error() {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestInvalidJSON(t *testing.T) {
	client := newFakeClient()
	h := NewHandler(testMQTT, client, &fakeController{}, nil)

	h.enqueue([]byte("{nope"))

	resp := client.last()
	if resp.CommandAck != "unknown" || resp.Status != "error" {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestStartProcessesQueuedCommands(t *testing.T) {
	client := newFakeClient()
	ctrl := &fakeController{}
	h := NewHandler(testMQTT, client, ctrl, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := h.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if client.subscribed != "gym/control" {
		t.Errorf("subscribed to %q", client.subscribed)
	}

	h.enqueue([]byte(`{"command":"reset"}`))
	select {
	case <-client.sent:
	case <-time.After(2 * time.Second):
		t.Fatal("no response published")
	}
	if resp := client.last(); resp.CommandAck != CmdReset || resp.Status != "success" {
		t.Errorf("unexpected response %+v", resp)
	}

	if err := h.Stop(); err != nil {
		t.Fatal(err)
	}
}

func TestCommandAfterStopIsIgnored(t *testing.T) {
	client := newFakeClient()
	ctrl := &fakeController{}
	h := NewHandler(testMQTT, client, ctrl, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := h.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := h.Stop(); err != nil {
		t.Fatal(err)
	}

	h.enqueue([]byte(`{"command":"reset"}`))
	h.enqueue([]byte("{nope"))

	if err := h.Stop(); err != nil {
		t.Errorf("second Stop: %v", err)
	}
	select {
	case <-client.sent:
		t.Error("response published after Stop")
	case <-time.After(50 * time.Millisecond):
	}
	if len(ctrl.calls) != 0 {
		t.Errorf("controller called after Stop: %v", ctrl.calls)
	}
}
