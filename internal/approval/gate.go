// SPDX-License-Identifier: Apache-2.0

// Package approval enforces "no destructive effect without authorization".
// Tools flagged RequiresApproval are invoked through the Gate, which parks
// the proposed call as a pending request and performs the side effect only
// after an approver says yes.
package approval

import (
	"context"
	"log/slog"
	"time"

	"github.com/LavonTMCQ/spear-agents/internal/domain"
	"github.com/LavonTMCQ/spear-agents/internal/metrics"
	"github.com/LavonTMCQ/spear-agents/internal/tool"
	"github.com/google/uuid"
)

type Gate struct {
	tools  map[string]*tool.Tool
	store  Store
	logger *slog.Logger
}

func NewGate(store Store, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		tools:  make(map[string]*tool.Tool),
		store:  store,
		logger: logger,
	}
}

func (g *Gate) Register(tools ...*tool.Tool) {
	for _, t := range tools {
		g.tools[t.Name] = t
	}
}

// Invoke runs an ungated tool directly. For a gated tool it validates the
// input, records a PENDING approval request, and returns it without touching
// the side effect; the zero Result signals the caller to wait for Decide.
func (g *Gate) Invoke(ctx context.Context, name string, input map[string]any) (tool.Result, *domain.ApprovalRequest, error) {
	t, ok := g.tools[name]
	if !ok {
		return tool.Result{}, nil, domain.ErrUnknownTool
	}

	if !t.RequiresApproval {
		res := t.Invoke(ctx, input)
		metrics.IncToolInvocation(name, res)
		return res, nil, nil
	}

	// Garbage input never reaches the review queue.
	if err := t.ValidateInput(input); err != nil {
		res := tool.Failuref(tool.ValidationError, "%s: invalid input: %v", name, err)
		metrics.IncToolInvocation(name, res)
		return res, nil, nil
	}

	req := domain.ApprovalRequest{
		ID:            uuid.New(),
		ToolName:      name,
		ProposedInput: input,
		Status:        domain.ApprovalPending,
		CreatedAt:     time.Now(),
	}
	if err := g.store.Create(ctx, req); err != nil {
		return tool.Result{}, nil, err
	}

	g.logger.Info("approval requested",
		"approval_id", req.ID,
		"tool", name,
	)
	return tool.Result{}, &req, nil
}

// Decide resolves a pending request exactly once. Denial resolves to an
// ApprovalDenied failure with the side effect never issued; approval executes
// the tool with the proposed input recorded at request time.
func (g *Gate) Decide(ctx context.Context, id uuid.UUID, approved bool, notes string) (tool.Result, error) {
	status := domain.ApprovalDenied
	if approved {
		status = domain.ApprovalApproved
	}

	req, err := g.store.Resolve(ctx, id, status, notes)
	if err != nil {
		return tool.Result{}, err
	}

	metrics.IncApprovalDecision(string(status))

	if !approved {
		g.logger.Info("approval denied",
			"approval_id", id,
			"tool", req.ToolName,
		)
		return tool.Failuref(tool.ApprovalDenied, "%s: denied by approver", req.ToolName), nil
	}

	t, ok := g.tools[req.ToolName]
	if !ok {
		// Tool registry changed while the request was parked.
		g.logger.Error("approved tool no longer registered",
			"approval_id", id,
			"tool", req.ToolName,
		)
		return tool.Result{}, domain.ErrUnknownTool
	}

	g.logger.Info("approval granted, executing tool",
		"approval_id", id,
		"tool", req.ToolName,
	)

	res := t.Invoke(ctx, req.ProposedInput)
	metrics.IncToolInvocation(req.ToolName, res)
	return res, nil
}

// Pending lists requests awaiting a decision, oldest first.
func (g *Gate) Pending(ctx context.Context) ([]domain.ApprovalRequest, error) {
	return g.store.ListPending(ctx)
}
