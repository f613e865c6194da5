// SPDX-License-Identifier: Apache-2.0

package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/LavonTMCQ/spear-agents/internal/domain"
)

type ApprovalRepo struct {
	pool *pgxpool.Pool
}

func NewApprovalRepo(pool *pgxpool.Pool) *ApprovalRepo {
	return &ApprovalRepo{pool: pool}
}

func (r *ApprovalRepo) Create(ctx context.Context, req domain.ApprovalRequest) error {
	inputJSON, err := json.Marshal(req.ProposedInput)
	if err != nil {
		return fmt.Errorf("marshal proposed input: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO approval_requests (id, tool_name, proposed_input, status, notes, created_at, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		req.ID, req.ToolName, inputJSON, req.Status, req.Notes, req.CreatedAt, req.ResolvedAt)
	if err != nil {
		return fmt.Errorf("insert approval request: %w", err)
	}
	return nil
}

func (r *ApprovalRepo) Get(ctx context.Context, id uuid.UUID) (domain.ApprovalRequest, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, tool_name, proposed_input, status, notes, created_at, resolved_at
		FROM approval_requests WHERE id = $1`, id)
	return scanApproval(row)
}

func (r *ApprovalRepo) ListPending(ctx context.Context) ([]domain.ApprovalRequest, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, tool_name, proposed_input, status, notes, created_at, resolved_at
		FROM approval_requests
		WHERE status = $1
		ORDER BY created_at`, domain.ApprovalPending)
	if err != nil {
		return nil, fmt.Errorf("list pending approvals: %w", err)
	}
	defer rows.Close()

	var out []domain.ApprovalRequest
	for rows.Next() {
		req, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// Resolve transitions PENDING to the given status exactly once. The status
// guard in the WHERE clause is the compare-and-swap; a losing caller gets
// ErrApprovalResolved.
func (r *ApprovalRepo) Resolve(ctx context.Context, id uuid.UUID, status domain.ApprovalStatus, notes string) (domain.ApprovalRequest, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE approval_requests
		SET status = $2, notes = $3, resolved_at = now()
		WHERE id = $1 AND status = $4
		RETURNING id, tool_name, proposed_input, status, notes, created_at, resolved_at`,
		id, status, notes, domain.ApprovalPending)

	req, err := scanApproval(row)
	if err == nil {
		return req, nil
	}
	if !errors.Is(err, domain.ErrApprovalNotFound) {
		return domain.ApprovalRequest{}, err
	}

	if _, getErr := r.Get(ctx, id); getErr != nil {
		return domain.ApprovalRequest{}, getErr
	}
	return domain.ApprovalRequest{}, domain.ErrApprovalResolved
}

func scanApproval(row rowScanner) (domain.ApprovalRequest, error) {
	var (
		req       domain.ApprovalRequest
		inputJSON []byte
	)
	err := row.Scan(&req.ID, &req.ToolName, &inputJSON, &req.Status,
		&req.Notes, &req.CreatedAt, &req.ResolvedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ApprovalRequest{}, domain.ErrApprovalNotFound
	}
	if err != nil {
		return domain.ApprovalRequest{}, fmt.Errorf("scan approval request: %w", err)
	}

	if len(inputJSON) > 0 {
		if err := json.Unmarshal(inputJSON, &req.ProposedInput); err != nil {
			return domain.ApprovalRequest{}, fmt.Errorf("unmarshal proposed input: %w", err)
		}
	}
	return req, nil
}
