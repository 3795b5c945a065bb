package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

var _ Recorder = (*Store)(nil)

// ddlAuthEvents returns the audit DDL with the voiceprint dimension
// substituted. The vector dimension is baked into the column type at schema
// creation time, so changing it later requires a manual schema update.
func ddlAuthEvents(voiceprintDims int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS auth_events (
    id          BIGSERIAL    PRIMARY KEY,
    session_id  TEXT         NOT NULL,
    label       TEXT         NOT NULL DEFAULT '',
    success     BOOLEAN      NOT NULL,
    code        TEXT         NOT NULL DEFAULT '',
    avg_prob    DOUBLE PRECISION NOT NULL DEFAULT 0,
    snr_db      DOUBLE PRECISION NOT NULL DEFAULT 0,
    emotion     TEXT         NOT NULL DEFAULT '',
    voiceprint  vector(%d),
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_auth_events_session
    ON auth_events (session_id, created_at);

CREATE INDEX IF NOT EXISTS idx_auth_events_voiceprint
    ON auth_events USING hnsw (voiceprint vector_cosine_ops);
`, voiceprintDims)
}

// Store is the PostgreSQL-backed audit trail. It holds a single
// [pgxpool.Pool] with pgvector types registered on every connection.
//
// All operations are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore establishes a connection pool to the database at dsn, registers
// pgvector types on every connection, and runs [Migrate] so the auth_events
// table exists.
//
// voiceprintDims must match the embedding dimension of the speaker backend
// (zero is rejected; pick the backend's documented size). Changing it after
// the first migration requires a manual schema change.
func NewStore(ctx context.Context, dsn string, voiceprintDims int) (*Store, error) {
	if voiceprintDims <= 0 {
		return nil, fmt.Errorf("audit: voiceprint dimension %d must be positive", voiceprintDims)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: parse dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("audit: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("audit: ping: %w", err)
	}

	if err := Migrate(ctx, pool, voiceprintDims); err != nil {
		pool.Close()
		return nil, err
	}

	return &Store{pool: pool}, nil
}

// Migrate creates the auth_events table and its indexes. It is idempotent
// and safe to call on every application start.
func Migrate(ctx context.Context, pool *pgxpool.Pool, voiceprintDims int) error {
	if _, err := pool.Exec(ctx, ddlAuthEvents(voiceprintDims)); err != nil {
		return fmt.Errorf("audit: migrate: %w", err)
	}
	return nil
}

// Close releases all connections held by the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Pool exposes the underlying connection pool so the identity directory and
// health checks can share the same connections.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// Record implements [Recorder]. It inserts the event and fills in the
// store-assigned ID and CreatedAt.
func (s *Store) Record(ctx context.Context, ev *Event) error {
	const q = `
		INSERT INTO auth_events
		    (session_id, label, success, code, avg_prob, snr_db, emotion, voiceprint)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`

	// A nil any maps to SQL NULL; pgvector.NewVector(nil) would not.
	var vec any
	if len(ev.Voiceprint) > 0 {
		vec = pgvector.NewVector(ev.Voiceprint)
	}

	err := s.pool.QueryRow(ctx, q,
		ev.SessionID,
		ev.Label,
		ev.Success,
		ev.Code,
		ev.AvgProb,
		ev.SNRdB,
		ev.Emotion,
		vec,
	).Scan(&ev.ID, &ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("audit: record: %w", err)
	}
	return nil
}

// Recent implements [Recorder]. Voiceprints are not loaded; use Nearest for
// similarity queries.
func (s *Store) Recent(ctx context.Context, sessionID string, limit int) ([]Event, error) {
	const q = `
		SELECT id, session_id, label, success, code, avg_prob, snr_db, emotion, created_at
		FROM   auth_events
		WHERE  session_id = $1
		ORDER  BY created_at DESC, id DESC
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: recent: %w", err)
	}

	events, err := pgx.CollectRows(rows, scanEvent)
	if err != nil {
		return nil, fmt.Errorf("audit: scan rows: %w", err)
	}
	if events == nil {
		events = []Event{}
	}
	return events, nil
}

// Nearest implements [Recorder]. It finds the topK events whose voiceprints
// are closest (cosine distance) to the probe, most similar first.
func (s *Store) Nearest(ctx context.Context, voiceprint []float32, topK int) ([]Match, error) {
	const q = `
		SELECT id, session_id, label, success, code, avg_prob, snr_db, emotion, created_at,
		       voiceprint <=> $1 AS distance
		FROM   auth_events
		WHERE  voiceprint IS NOT NULL
		ORDER  BY distance
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, pgvector.NewVector(voiceprint), topK)
	if err != nil {
		return nil, fmt.Errorf("audit: nearest: %w", err)
	}

	matches, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Match, error) {
		var m Match
		if err := row.Scan(
			&m.Event.ID,
			&m.Event.SessionID,
			&m.Event.Label,
			&m.Event.Success,
			&m.Event.Code,
			&m.Event.AvgProb,
			&m.Event.SNRdB,
			&m.Event.Emotion,
			&m.Event.CreatedAt,
			&m.Distance,
		); err != nil {
			return Match{}, err
		}
		return m, nil
	})
	if err != nil {
		return nil, fmt.Errorf("audit: scan rows: %w", err)
	}
	if matches == nil {
		matches = []Match{}
	}
	return matches, nil
}

// scanEvent scans one auth_events row without its voiceprint column.
func scanEvent(row pgx.CollectableRow) (Event, error) {
	var e Event
	if err := row.Scan(
		&e.ID,
		&e.SessionID,
		&e.Label,
		&e.Success,
		&e.Code,
		&e.AvgProb,
		&e.SNRdB,
		&e.Emotion,
		&e.CreatedAt,
	); err != nil {
		return Event{}, err
	}
	return e, nil
}
