package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/DaniruKun/repcounter/session"
)

// PostgresStore writes sessions and reps to PostgreSQL. Each rep keeps a
// pgvector snapshot of the pose that completed it.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// OpenPostgres connects to dsn and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string, logger *slog.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{pool: pool, logger: logger}, nil
}

// InitSchema creates the vector extension, tables and indexes if missing.
func InitSchema(ctx context.Context, dsn string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	_, err = conn.Exec(ctx, fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS sessions (
            id TEXT PRIMARY KEY,
            source VARCHAR(16) NOT NULL,
            path TEXT NOT NULL DEFAULT '',
            started_at TIMESTAMPTZ NOT NULL,
            ended_at TIMESTAMPTZ,
            status VARCHAR(16) NOT NULL,
            message TEXT NOT NULL DEFAULT '',
            reps INTEGER NOT NULL DEFAULT 0,
            resets INTEGER NOT NULL DEFAULT 0
        );

        CREATE TABLE IF NOT EXISTS reps (
            id SERIAL PRIMARY KEY,
            session_id TEXT REFERENCES sessions(id) ON DELETE CASCADE,
            number INTEGER NOT NULL,
            pose vector(%d),
            created_at TIMESTAMPTZ NOT NULL
        );
    `, PoseDims))
	if err != nil {
		return fmt.Errorf("failed to create database schema: %w", err)
	}

	_, err = conn.Exec(ctx, `
        CREATE INDEX IF NOT EXISTS idx_reps_session_id ON reps(session_id);
        CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at DESC);
    `)
	if err != nil {
		return fmt.Errorf("failed to create database indexes: %w", err)
	}
	return nil
}

// Handle writes ev immediately.
func (s *PostgresStore) Handle(ctx context.Context, ev session.Event) error {
	if ev.SessionID == "" {
		return nil
	}

	var err error
	switch ev.Kind {
	case session.EventStarted:
		_, err = s.pool.Exec(ctx,
			`INSERT INTO sessions (id, source, path, started_at, status, reps)
            VALUES ($1, $2, $3, $4, $5, $6)
            ON CONFLICT (id) DO NOTHING`,
			ev.SessionID, ev.Source, ev.Path, ev.At, ev.Status.String(), int(ev.RepCount))

	case session.EventRep:
		err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx,
				`INSERT INTO reps (session_id, number, pose, created_at) VALUES ($1, $2, $3, $4)`,
				ev.SessionID, int(ev.RepCount), pgvector.NewVector(PoseVector(ev.Pose)), ev.At); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `UPDATE sessions SET reps = $2 WHERE id = $1`, ev.SessionID, int(ev.RepCount))
			return err
		})

	case session.EventReset:
		_, err = s.pool.Exec(ctx,
			`UPDATE sessions SET reps = 0, resets = resets + 1 WHERE id = $1`, ev.SessionID)

	case session.EventStopped, session.EventEnded, session.EventError:
		_, err = s.pool.Exec(ctx,
			`UPDATE sessions SET ended_at = $2, status = $3, message = $4, reps = $5 WHERE id = $1`,
			ev.SessionID, ev.At, ev.Status.String(), ev.Message, int(ev.RepCount))
	}
	if err != nil {
		return fmt.Errorf("failed to store %s event: %w", ev.Kind, err)
	}
	return nil
}

// Sessions returns the latest sessions with their rep logs.
func (s *PostgresStore) Sessions(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, source, path, started_at, ended_at, status, message, reps, resets
        FROM sessions
        ORDER BY started_at DESC
        LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var (
			sess   Session
			reps   int
			status string
		)
		if err := rows.Scan(&sess.ID, &sess.Source, &sess.Path, &sess.StartedAt, &sess.EndedAt,
			&status, &sess.Message, &reps, &sess.Resets); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		if err := sess.Status.UnmarshalText([]byte(status)); err != nil {
			return nil, fmt.Errorf("session %s: %w", sess.ID, err)
		}
		sess.Reps = uint(reps)
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range sessions {
		reps, err := s.repLog(ctx, sessions[i].ID)
		if err != nil {
			return nil, err
		}
		sessions[i].RepLog = reps
	}
	return sessions, nil
}

func (s *PostgresStore) repLog(ctx context.Context, sessionID string) ([]Rep, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT number, created_at FROM reps WHERE session_id = $1 ORDER BY number`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query reps: %w", err)
	}
	defer rows.Close()

	var reps []Rep
	for rows.Next() {
		var (
			r      Rep
			number int
		)
		if err := rows.Scan(&number, &r.At); err != nil {
			return nil, fmt.Errorf("failed to scan rep: %w", err)
		}
		r.Number = uint(number)
		reps = append(reps, r)
	}
	return reps, rows.Err()
}

func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
