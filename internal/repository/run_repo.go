// SPDX-License-Identifier: Apache-2.0

// Package repository holds the Postgres-backed stores. Context and
// suspension payloads are stored as jsonb, so step code must tolerate
// JSON-decoded value types when a run is reloaded.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/LavonTMCQ/spear-agents/internal/domain"
)

type RunRepo struct {
	pool *pgxpool.Pool
}

func NewRunRepo(pool *pgxpool.Pool) *RunRepo {
	return &RunRepo{pool: pool}
}

func (r *RunRepo) CreateRun(ctx context.Context, run domain.WorkflowRun) error {
	contextJSON, suspendedJSON, err := marshalRun(run)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO workflow_runs (id, workflow, status, step_index, context, suspended, error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		run.ID, run.Workflow, run.Status, run.StepIndex,
		contextJSON, suspendedJSON, run.Error, run.CreatedAt, run.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (r *RunRepo) GetRun(ctx context.Context, id uuid.UUID) (domain.WorkflowRun, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, workflow, status, step_index, context, suspended, error, created_at, updated_at
		FROM workflow_runs WHERE id = $1`, id)
	return scanRun(row)
}

func (r *RunRepo) SaveRun(ctx context.Context, run domain.WorkflowRun) error {
	contextJSON, suspendedJSON, err := marshalRun(run)
	if err != nil {
		return err
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE workflow_runs
		SET status = $2, step_index = $3, context = $4, suspended = $5, error = $6, updated_at = $7
		WHERE id = $1`,
		run.ID, run.Status, run.StepIndex, contextJSON, suspendedJSON, run.Error, run.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRunNotFound
	}
	return nil
}

// MarkResuming claims a suspended run. The WHERE clause on status makes the
// transition a compare-and-swap, so concurrent resume attempts see exactly
// one winner.
func (r *RunRepo) MarkResuming(ctx context.Context, id uuid.UUID) (domain.WorkflowRun, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE workflow_runs
		SET status = $2, updated_at = now()
		WHERE id = $1 AND status = $3
		RETURNING id, workflow, status, step_index, context, suspended, error, created_at, updated_at`,
		id, domain.RunRunning, domain.RunSuspended)

	run, err := scanRun(row)
	if err == nil {
		return run, nil
	}
	if !errors.Is(err, domain.ErrRunNotFound) {
		return domain.WorkflowRun{}, err
	}

	// The swap missed; distinguish an unknown run from a wrong state.
	if _, getErr := r.GetRun(ctx, id); getErr != nil {
		return domain.WorkflowRun{}, getErr
	}
	return domain.WorkflowRun{}, domain.ErrRunNotSuspended
}

// ListSuspendedBefore returns runs parked since before the cutoff, oldest
// first. The sweeper uses it for the timeout policy.
func (r *RunRepo) ListSuspendedBefore(ctx context.Context, cutoff time.Time) ([]domain.WorkflowRun, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, workflow, status, step_index, context, suspended, error, created_at, updated_at
		FROM workflow_runs
		WHERE status = $1 AND updated_at < $2
		ORDER BY updated_at`,
		domain.RunSuspended, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list suspended runs: %w", err)
	}
	defer rows.Close()

	var out []domain.WorkflowRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func marshalRun(run domain.WorkflowRun) ([]byte, []byte, error) {
	contextJSON, err := json.Marshal(run.Context)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal run context: %w", err)
	}
	var suspendedJSON []byte
	if run.Suspended != nil {
		suspendedJSON, err = json.Marshal(run.Suspended)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal suspension payload: %w", err)
		}
	}
	return contextJSON, suspendedJSON, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (domain.WorkflowRun, error) {
	var (
		run           domain.WorkflowRun
		contextJSON   []byte
		suspendedJSON []byte
	)
	err := row.Scan(&run.ID, &run.Workflow, &run.Status, &run.StepIndex,
		&contextJSON, &suspendedJSON, &run.Error, &run.CreatedAt, &run.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.WorkflowRun{}, domain.ErrRunNotFound
	}
	if err != nil {
		return domain.WorkflowRun{}, fmt.Errorf("scan run: %w", err)
	}

	if len(contextJSON) > 0 {
		if err := json.Unmarshal(contextJSON, &run.Context); err != nil {
			return domain.WorkflowRun{}, fmt.Errorf("unmarshal run context: %w", err)
		}
	}
	if len(suspendedJSON) > 0 {
		run.Suspended = &domain.SuspendRequest{}
		if err := json.Unmarshal(suspendedJSON, run.Suspended); err != nil {
			return domain.WorkflowRun{}, fmt.Errorf("unmarshal suspension payload: %w", err)
		}
	}
	return run, nil
}
