package emitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/DaniruKun/repcounter/config"
	"github.com/DaniruKun/repcounter/session"
)

type fakeToken struct {
	done chan struct{}
	err  error
}

func doneToken(err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                       { <-t.done; return true }
func (t *fakeToken) WaitTimeout(d time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}            { return t.done }
func (t *fakeToken) Error() error                     { return t.err }

type message struct {
	topic   string
	qos     byte
	payload []byte
}

type fakePublisher struct {
	sent  []message
	token *fakeToken
}

func (p *fakePublisher) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	p.sent = append(p.sent, message{topic, qos, payload.([]byte)})
	if p.token != nil {
		return p.token
	}
	return doneToken(nil)
}

var testMQTT = config.MQTTConfig{QoS: 1, Topics: config.MQTTTopics{Events: "repcounter/gym/events"}}

func TestHandlePublishesEvent(t *testing.T) {
	tests := []struct {
		kind  session.EventKind
		topic string
	}{
		{session.EventRep, "repcounter/gym/events/rep"},
		{session.EventReset, "repcounter/gym/events/reset"},
		{session.EventStarted, "repcounter/gym/events/started"},
	}

	for _, tt := range tests {
		testname := fmt.Sprintf("%s", tt.kind)
		t.Run(testname, func(t *testing.T) {
			pub := &fakePublisher{}
			e := NewMQTTEmitter(pub, testMQTT, nil)

			ev := session.Event{Kind: tt.kind, SessionID: "abc", RepCount: 3, Status: session.StatusRunning}
			if err := e.Handle(context.Background(), ev); err != nil {
				t.Fatal(err)
			}

			if len(pub.sent) != 1 {
				t.Fatalf("published %d messages", len(pub.sent))
			}
			msg := pub.sent[0]
			if msg.topic != tt.topic || msg.qos != 1 {
				t.Errorf("got topic %s qos %d", msg.topic, msg.qos)
			}

			var body map[string]interface{}
			if err := json.Unmarshal(msg.payload, &body); err != nil {
				t.Fatal(err)
			}
			if body["kind"] != string(tt.kind) || body["rep_count"] != float64(3) || body["status"] != "running" {
				t.Errorf("unexpected payload %s", msg.payload)
			}
			if e.Stats().Published[tt.topic] != 1 {
				t.Errorf("unexpected stats %+v", e.Stats())
			}
		})
	}
}

func TestHandlePublishError(t *testing.T) {
	pub := &fakePublisher{token: doneToken(errors.New("not connected"))}
	e := NewMQTTEmitter(pub, testMQTT, nil)

	if err := e.Handle(context.Background(), session.Event{Kind: session.EventRep}); err == nil {
		t.Fatal("expected publish error")
	}
	if e.Stats().Errors != 1 {
		t.Errorf("got %d errors", e.Stats().Errors)
	}
}

func TestHandleCancelled(t *testing.T) {
	pub := &fakePublisher{token: &fakeToken{done: make(chan struct{})}}
	e := NewMQTTEmitter(pub, testMQTT, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := e.Handle(ctx, session.Event{Kind: session.EventRep}); !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}
