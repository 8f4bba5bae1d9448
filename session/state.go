package session

import (
	"fmt"
	"time"

	"github.com/DaniruKun/repcounter/pose"
)

// Status is the coarse state shown to the user.
type Status int

const (
	StatusIdle Status = iota
	StatusRunning
	StatusStopped
	StatusEnded
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusRunning:
		return "running"
	case StatusStopped:
		return "stopped"
	case StatusEnded:
		return "ended"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText lets Status appear by name in JSON payloads.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	for st := StatusIdle; st <= StatusError; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", text)
}

// Source kinds.
const (
	SourceCamera = "camera"
	SourceVideo  = "video"
)

// State is a snapshot of the controller.
type State struct {
	Running   bool   `json:"running"`
	RepCount  uint   `json:"rep_count"`
	Raised    bool   `json:"raised"`
	Status    Status `json:"status"`
	Message   string `json:"message"`
	Source    string `json:"source,omitempty"`
	Path      string `json:"path,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// EventKind names what happened.
type EventKind string

const (
	EventStarted EventKind = "started"
	EventRep     EventKind = "rep"
	EventReset   EventKind = "reset"
	EventStopped EventKind = "stopped"
	EventEnded   EventKind = "ended"
	EventError   EventKind = "error"
)

// Event is delivered to every Sink.
type Event struct {
	Kind      EventKind        `json:"kind"`
	SessionID string           `json:"session_id"`
	Source    string           `json:"source"`
	Path      string           `json:"path,omitempty"`
	RepCount  uint             `json:"rep_count"`
	Status    Status           `json:"status"`
	Message   string           `json:"message,omitempty"`
	Pose      pose.LandmarkSet `json:"pose,omitempty"` // only set on rep events
	At        time.Time        `json:"at"`
}
