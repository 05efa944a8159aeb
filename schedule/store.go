// Package schedule runs deferred case status transitions. Jobs are persisted
// before they are armed so a restart re-arms anything still pending.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrJobNotFound = errors.New("schedule: job not found")

type State string

const (
	StatePending   State = "pending"
	StateDone      State = "done"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Job is one deferred from -> to transition for a case.
type Job struct {
	ID         string
	CaseID     string
	FromStatus string
	ToStatus   string
	DueAt      time.Time
	State      State
	Attempts   int
	LastError  string
	CreatedAt  time.Time
}

// Store persists jobs.
type Store interface {
	Enqueue(ctx context.Context, j Job) (Job, error)
	// Pending returns every job not yet finished, earliest first.
	Pending(ctx context.Context) ([]Job, error)
	// Due returns pending jobs due at or before t.
	Due(ctx context.Context, t time.Time, limit int) ([]Job, error)
	// Retry records a failed attempt and moves the job to next.
	Retry(ctx context.Context, id string, next time.Time, lastErr string) (Job, error)
	Finish(ctx context.Context, id string, state State, lastErr string) error
	// CancelCase cancels the pending jobs of a case and returns their ids.
	CancelCase(ctx context.Context, caseID string) ([]string, error)
}

// PGStore keeps jobs in the scheduled_transitions table.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const jobColumns = `id::text, case_id::text, from_status, to_status, due_at, state, attempts, coalesce(last_error, ''), created_at`

func (s *PGStore) Enqueue(ctx context.Context, j Job) (Job, error) {
	const q = `
		INSERT INTO scheduled_transitions (id, case_id, from_status, to_status, due_at, state, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, 'pending', 0, $6)
		RETURNING ` + jobColumns

	out, err := scanJob(s.pool.QueryRow(ctx, q, j.ID, j.CaseID, j.FromStatus, j.ToStatus, j.DueAt, j.CreatedAt))
	if err != nil {
		return Job{}, fmt.Errorf("schedule: enqueue: %w", err)
	}
	return out, nil
}

func (s *PGStore) Pending(ctx context.Context) ([]Job, error) {
	const q = `SELECT ` + jobColumns + ` FROM scheduled_transitions WHERE state = 'pending' ORDER BY due_at`
	return s.query(ctx, "pending", q)
}

func (s *PGStore) Due(ctx context.Context, t time.Time, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `
		SELECT ` + jobColumns + `
		FROM scheduled_transitions
		WHERE state = 'pending' AND due_at <= $1
		ORDER BY due_at
		LIMIT $2`
	return s.query(ctx, "due", q, t, limit)
}

func (s *PGStore) Retry(ctx context.Context, id string, next time.Time, lastErr string) (Job, error) {
	const q = `
		UPDATE scheduled_transitions
		SET attempts = attempts + 1, due_at = $2, last_error = $3
		WHERE id = $1::uuid AND state = 'pending'
		RETURNING ` + jobColumns
	if uuid.Validate(id) != nil {
		return Job{}, ErrJobNotFound
	}

	j, err := scanJob(s.pool.QueryRow(ctx, q, id, next, lastErr))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Job{}, ErrJobNotFound
		}
		return Job{}, fmt.Errorf("schedule: retry: %w", err)
	}
	return j, nil
}

func (s *PGStore) Finish(ctx context.Context, id string, state State, lastErr string) error {
	const q = `
		UPDATE scheduled_transitions
		SET state = $2, last_error = NULLIF($3, ''), finished_at = now()
		WHERE id = $1::uuid AND state = 'pending'`
	if uuid.Validate(id) != nil {
		return ErrJobNotFound
	}

	tag, err := s.pool.Exec(ctx, q, id, string(state), lastErr)
	if err != nil {
		return fmt.Errorf("schedule: finish: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (s *PGStore) CancelCase(ctx context.Context, caseID string) ([]string, error) {
	const q = `
		UPDATE scheduled_transitions
		SET state = 'cancelled', finished_at = now()
		WHERE case_id = $1::uuid AND state = 'pending'
		RETURNING id::text`
	if uuid.Validate(caseID) != nil {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, q, caseID)
	if err != nil {
		return nil, fmt.Errorf("schedule: cancel: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("schedule: cancel: %w", err)
	}
	return ids, nil
}

func (s *PGStore) query(ctx context.Context, op, q string, args ...any) ([]Job, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("schedule: %s: %w", op, err)
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("schedule: scan: %w", err)
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("schedule: iterate: %w", err)
	}
	return out, nil
}

func scanJob(row pgx.Row) (Job, error) {
	var (
		j     Job
		state string
	)
	if err := row.Scan(&j.ID, &j.CaseID, &j.FromStatus, &j.ToStatus, &j.DueAt, &state, &j.Attempts, &j.LastError, &j.CreatedAt); err != nil {
		return Job{}, err
	}
	j.State = State(state)
	return j, nil
}
