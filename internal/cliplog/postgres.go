package cliplog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the clip_log table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS clip_log (
    id              BIGSERIAL PRIMARY KEY,
    session_id      TEXT NOT NULL,
    path            TEXT NOT NULL DEFAULT '',
    destination     TEXT NOT NULL DEFAULT '',
    stop_reason     TEXT NOT NULL,
    duration_ms     BIGINT NOT NULL DEFAULT 0,
    captured_ms     BIGINT NOT NULL DEFAULT 0,
    onset_after_ms  BIGINT NOT NULL DEFAULT -1,
    padded          BOOLEAN NOT NULL DEFAULT false,
    start_threshold DOUBLE PRECISION NOT NULL DEFAULT 0,
    keep_threshold  DOUBLE PRECISION NOT NULL DEFAULT 0,
    baseline        DOUBLE PRECISION NOT NULL DEFAULT 0,
    calibrated      BOOLEAN NOT NULL DEFAULT false,
    stages          JSONB NOT NULL DEFAULT '[]',
    transcript      TEXT NOT NULL DEFAULT '',
    provider        TEXT NOT NULL DEFAULT '',
    error           TEXT NOT NULL DEFAULT '',
    trace_id        TEXT NOT NULL DEFAULT '',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_clip_log_created ON clip_log(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_clip_log_session ON clip_log(session_id);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by a PostgreSQL database. Durations are
// stored as milliseconds and the stage list as JSONB.
type PostgresStore struct {
	db  DB
	now func() time.Time
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a [PostgresStore] on the given connection or
// pool. Call [PostgresStore.Migrate] before the first query.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

// Migrate executes the [Schema] DDL, creating the clip_log table and its
// indexes if they do not already exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("cliplog: migrate: %w", err)
	}
	return nil
}

// Append implements [Store].
func (s *PostgresStore) Append(ctx context.Context, e Entry) error {
	stamp(&e, s.now)
	stagesJSON, err := json.Marshal(emptySlice(e.Stages))
	if err != nil {
		return fmt.Errorf("cliplog: marshal stages: %w", err)
	}

	const query = `
		INSERT INTO clip_log (
			session_id, path, destination, stop_reason,
			duration_ms, captured_ms, onset_after_ms, padded,
			start_threshold, keep_threshold, baseline, calibrated,
			stages, transcript, provider, error, trace_id, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`

	_, err = s.db.Exec(ctx, query,
		e.SessionID, e.Path, e.Destination, e.StopReason,
		e.Duration.Milliseconds(), e.Captured.Milliseconds(), e.OnsetAfter.Milliseconds(), e.Padded,
		e.StartThreshold, e.KeepThreshold, e.Baseline, e.Calibrated,
		stagesJSON, e.Transcript, e.Provider, e.Error, e.TraceID, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("cliplog: append %q: %w", e.SessionID, err)
	}
	return nil
}

// Recent implements [Store].
func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	const query = `
		SELECT session_id, path, destination, stop_reason,
		       duration_ms, captured_ms, onset_after_ms, padded,
		       start_threshold, keep_threshold, baseline, calibrated,
		       stages, transcript, provider, error, trace_id, created_at
		FROM clip_log
		ORDER BY created_at DESC, id DESC
		LIMIT $1`

	rows, err := s.db.Query(ctx, query, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("cliplog: recent: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e                     Entry
			durMS, capMS, onsetMS int64
			stagesJSON            []byte
		)
		if err := rows.Scan(
			&e.SessionID, &e.Path, &e.Destination, &e.StopReason,
			&durMS, &capMS, &onsetMS, &e.Padded,
			&e.StartThreshold, &e.KeepThreshold, &e.Baseline, &e.Calibrated,
			&stagesJSON, &e.Transcript, &e.Provider, &e.Error, &e.TraceID, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("cliplog: scan: %w", err)
		}
		e.Duration = time.Duration(durMS) * time.Millisecond
		e.Captured = time.Duration(capMS) * time.Millisecond
		e.OnsetAfter = time.Duration(onsetMS) * time.Millisecond
		if len(stagesJSON) > 0 {
			if err := json.Unmarshal(stagesJSON, &e.Stages); err != nil {
				return nil, fmt.Errorf("cliplog: unmarshal stages: %w", err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cliplog: recent: %w", err)
	}
	return out, nil
}

func emptySlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
