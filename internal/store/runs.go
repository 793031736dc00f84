package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Run is one handled agent request.
type Run struct {
	ID         string        `json:"id"`
	Task       string        `json:"task"`
	Success    bool          `json:"success"`
	Summary    string        `json:"summary"`
	Error      string        `json:"error,omitempty"`
	CacheHit   bool          `json:"cache_hit"`
	Steps      int           `json:"steps"`
	Duration   time.Duration `json:"-"`
	DurationMS int64         `json:"duration_ms"`
	CreatedAt  time.Time     `json:"created_at"`
}

// DefaultRunLimit is the page size of ListRuns when none is given.
const DefaultRunLimit = 20

// RecordRun inserts r, assigning an ID when it has none.
func (s *Store) RecordRun(ctx context.Context, r *Run) error {
	if s == nil {
		return ErrDisabled
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.DurationMS == 0 {
		r.DurationMS = r.Duration.Milliseconds()
	}
	err := s.db.QueryRow(ctx, `
		INSERT INTO agent_runs (id, task, success, summary, error, cache_hit, steps, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`,
		r.ID, r.Task, r.Success, r.Summary, r.Error, r.CacheHit, r.Steps, r.DurationMS,
	).Scan(&r.CreatedAt)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if s == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		limit = DefaultRunLimit
	}

	rows, err := s.db.Query(ctx, `
		SELECT id::text, task, success, summary, error, cache_hit, steps, duration_ms, created_at
		FROM agent_runs
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Task, &r.Success, &r.Summary, &r.Error,
			&r.CacheHit, &r.Steps, &r.DurationMS, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Duration = time.Duration(r.DurationMS) * time.Millisecond
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}
