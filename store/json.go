package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/DaniruKun/repcounter/session"
)

const (
	batchSize    = 10 // Number of events to batch before writing
	sessionsFile = "sessions.json"
)

// JSONStore keeps session history in a JSON file. Events are batched and
// written when the batch is full or a session ends.
type JSONStore struct {
	path   string
	logger *slog.Logger

	mu      sync.Mutex
	pending []session.Event
}

func NewJSONStore(dir string, logger *slog.Logger) *JSONStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &JSONStore{path: filepath.Join(dir, sessionsFile), logger: logger}
}

// Handle queues ev and flushes if needed.
func (s *JSONStore) Handle(ctx context.Context, ev session.Event) error {
	if ev.SessionID == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, ev)

	if len(s.pending) >= batchSize || terminal(ev.Kind) {
		return s.flush()
	}
	return nil
}

// Flush writes all pending events to disk.
func (s *JSONStore) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flush()
}

func (s *JSONStore) Sessions(ctx context.Context, limit int) ([]Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.flush(); err != nil {
		return nil, err
	}
	sessions, err := s.read()
	if err != nil {
		return nil, err
	}

	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].StartedAt.After(sessions[j].StartedAt)
	})
	if limit > 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions, nil
}

func (s *JSONStore) Close() error {
	return s.Flush()
}

func (s *JSONStore) flush() error {
	if len(s.pending) == 0 {
		return nil
	}

	sessions, err := s.read()
	if err != nil {
		return err
	}
	for _, ev := range s.pending {
		sessions = apply(sessions, ev)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for sessions: %w", err)
	}

	// Write to a sibling file and rename so a crash never leaves half a file.
	tmp := s.path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create sessions file: %w", err)
	}
	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(sessions); err != nil {
		file.Close()
		return fmt.Errorf("failed to encode sessions: %w", err)
	}
	if err := file.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace sessions file: %w", err)
	}

	s.logger.Debug("session history written", "path", s.path, "events", len(s.pending))
	s.pending = nil
	return nil
}

func (s *JSONStore) read() ([]Session, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sessions file: %w", err)
	}
	var sessions []Session
	if err := json.Unmarshal(data, &sessions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sessions: %w", err)
	}
	return sessions, nil
}

// apply folds one event into the session list.
func apply(sessions []Session, ev session.Event) []Session {
	i := -1
	for j := range sessions {
		if sessions[j].ID == ev.SessionID {
			i = j
			break
		}
	}
	if i < 0 {
		sessions = append(sessions, Session{
			ID:        ev.SessionID,
			Source:    ev.Source,
			Path:      ev.Path,
			StartedAt: ev.At,
		})
		i = len(sessions) - 1
	}

	s := &sessions[i]
	s.Status = ev.Status
	s.Reps = ev.RepCount
	switch ev.Kind {
	case session.EventRep:
		s.RepLog = append(s.RepLog, Rep{Number: ev.RepCount, At: ev.At})
	case session.EventReset:
		s.Resets++
	case session.EventStopped, session.EventEnded, session.EventError:
		at := ev.At
		s.EndedAt = &at
		s.Message = ev.Message
	}
	return sessions
}
