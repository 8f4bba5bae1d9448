// Package store keeps the history of counting sessions.
package store

import (
	"context"
	"time"

	"github.com/DaniruKun/repcounter/pose"
	"github.com/DaniruKun/repcounter/session"
)

// PoseDims is the length of a pose snapshot vector: x and y of every pose
// landmark.
const PoseDims = 2 * pose.NumPoseLandmarks

// Session is one run of the counter.
type Session struct {
	ID        string         `json:"id"`
	Source    string         `json:"source"`
	Path      string         `json:"path,omitempty"`
	StartedAt time.Time      `json:"started_at"`
	EndedAt   *time.Time     `json:"ended_at,omitempty"`
	Status    session.Status `json:"status"`
	Message   string         `json:"message,omitempty"`
	Reps      uint           `json:"reps"`
	Resets    int            `json:"resets"`
	RepLog    []Rep          `json:"rep_log,omitempty"`
}

// Rep is a single counted repetition.
type Rep struct {
	Number uint      `json:"number"`
	At     time.Time `json:"at"`
}

// Store persists session events and lists past sessions.
type Store interface {
	session.Sink

	// Sessions returns the most recent sessions first.
	Sessions(ctx context.Context, limit int) ([]Session, error)
	Close() error
}

// PoseVector flattens the pose at the moment a rep was counted into
// normalized (x, y) pairs. Missing or non-finite landmarks become zeros.
func PoseVector(set pose.LandmarkSet) []float32 {
	v := make([]float32, PoseDims)
	for i := 0; i < pose.NumPoseLandmarks; i++ {
		p, ok := set.At(i)
		if !ok || !p.Finite() {
			continue
		}
		v[2*i] = float32(p.X)
		v[2*i+1] = float32(p.Y)
	}
	return v
}

func terminal(kind session.EventKind) bool {
	switch kind {
	case session.EventStopped, session.EventEnded, session.EventError:
		return true
	}
	return false
}
