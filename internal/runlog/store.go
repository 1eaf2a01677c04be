// Package runlog persists watchdog run outcomes to PostgreSQL for
// operational history and the ops API.
package runlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/msapprovals/watchdog/internal/reminder"
)

// Store records run outcomes against PostgreSQL.
type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// Open connects to Postgres and verifies the connection.
func Open(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return db, nil
}

// Record inserts one completed run.
func (s *Store) Record(ctx context.Context, out *reminder.RunOutcome) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO watchdog_runs (
			run_id, started_at, duration_ms, fetched, candidates, deduplicated,
			skipped_digest, sent, actionable_sent, normal_sent, failures,
			invalid_data, cap_reached
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, out.RunID, out.StartedAt, out.Duration.Milliseconds(), out.Fetched,
		out.Candidates, out.Deduplicated, out.SkippedDigest, out.Sent,
		out.ActionableSent, out.NormalSent, out.Failures, out.InvalidData,
		out.CapReached)
	if err != nil {
		return fmt.Errorf("recording run %s: %w", out.RunID, err)
	}
	return nil
}

// RecentRuns returns the most recent runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]reminder.RunOutcome, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, started_at, duration_ms, fetched, candidates, deduplicated,
		       skipped_digest, sent, actionable_sent, normal_sent, failures,
		       invalid_data, cap_reached
		FROM watchdog_runs
		ORDER BY started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var out []reminder.RunOutcome
	for rows.Next() {
		var r reminder.RunOutcome
		var durMS int64
		if err := rows.Scan(&r.RunID, &r.StartedAt, &durMS, &r.Fetched,
			&r.Candidates, &r.Deduplicated, &r.SkippedDigest, &r.Sent,
			&r.ActionableSent, &r.NormalSent, &r.Failures, &r.InvalidData,
			&r.CapReached); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.Duration = time.Duration(durMS) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}
