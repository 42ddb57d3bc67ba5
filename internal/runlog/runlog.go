// Package runlog keeps a persistent record of scheduled job executions so
// operators can see what ran, when, and how it went.
package runlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/narradar/narradar/internal/db"
)

// Run statuses.
const (
	StatusOK      = "ok"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// Run is one recorded job execution.
type Run struct {
	ID         string          `json:"id"`
	JobName    string          `json:"job_name"`
	Status     string          `json:"status"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Summary    json.RawMessage `json:"summary"`
	Error      string          `json:"error,omitempty"`
}

// Store owns the job_runs table.
type Store struct {
	db *db.DB
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Record persists one finished run. summary may be any JSON-encodable value
// and may be nil.
func (s *Store) Record(ctx context.Context, jobName, status string, started, finished time.Time, summary any, runErr error) error {
	raw := []byte("{}")
	if summary != nil {
		encoded, err := json.Marshal(summary)
		if err != nil {
			return fmt.Errorf("encoding run summary: %w", err)
		}
		raw = encoded
	}
	errText := ""
	if runErr != nil {
		errText = runErr.Error()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO job_runs (id, job_name, status, started_at, finished_at, summary, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), jobName, status,
		db.FormatTime(started), db.FormatTime(finished), string(raw), errText,
	)
	if err != nil {
		return fmt.Errorf("recording job run: %w", err)
	}
	return nil
}

// List returns recent runs, newest first, optionally filtered by job name.
func (s *Store) List(ctx context.Context, jobName string, limit int) ([]Run, error) {
	query := `SELECT id, job_name, status, started_at, finished_at, summary, error FROM job_runs`
	var args []any
	if jobName != "" {
		query += " WHERE job_name = ?"
		args = append(args, jobName)
	}
	query += " ORDER BY started_at DESC"
	if limit <= 0 {
		limit = 50
	}
	query += fmt.Sprintf(" LIMIT %d", limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying job runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			run               Run
			summary           string
			started, finished string
		)
		if err := rows.Scan(&run.ID, &run.JobName, &run.Status, &started, &finished, &summary, &run.Error); err != nil {
			return nil, err
		}
		run.StartedAt = db.ParseTime(started)
		run.FinishedAt = db.ParseTime(finished)
		run.Summary = json.RawMessage(summary)
		out = append(out, run)
	}
	return out, rows.Err()
}

// Prune deletes runs older than the cutoff, returning the number removed.
func (s *Store) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM job_runs WHERE started_at < ?", db.FormatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("pruning job runs: %w", err)
	}
	return res.RowsAffected()
}
