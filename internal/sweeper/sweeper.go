// SPDX-License-Identifier: Apache-2.0

// Package sweeper applies the review timeout policy: pending approvals and
// suspended runs older than the TTL are treated as denied, the same outcome
// an explicit denial would have produced.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/LavonTMCQ/spear-agents/internal/domain"
	"github.com/LavonTMCQ/spear-agents/internal/tool"
)

const autoDenyNote = "auto-denied: review window expired"

// Decider is the approval gate surface the sweeper needs.
type Decider interface {
	Pending(ctx context.Context) ([]domain.ApprovalRequest, error)
	Decide(ctx context.Context, id uuid.UUID, approved bool, notes string) (tool.Result, error)
}

// Resumer is the workflow engine surface the sweeper needs.
type Resumer interface {
	Resume(ctx context.Context, id uuid.UUID, decision domain.ResumeDecision) (domain.WorkflowRun, error)
}

// SuspendedLister reports runs parked since before a cutoff.
type SuspendedLister interface {
	ListSuspendedBefore(ctx context.Context, cutoff time.Time) ([]domain.WorkflowRun, error)
}

type Sweeper struct {
	gate   Decider
	engine Resumer
	runs   SuspendedLister
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

func New(gate Decider, eng Resumer, runs SuspendedLister, ttl time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		gate:   gate,
		engine: eng,
		runs:   runs,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// SweepOnce expires stale approvals and runs. Losing a race against a
// concurrent human decision is fine; the compare-and-swap in the stores
// guarantees only one decision lands.
func (s *Sweeper) SweepOnce(ctx context.Context) error {
	cutoff := s.now().Add(-s.ttl)

	var firstErr error
	if err := s.sweepApprovals(ctx, cutoff); err != nil {
		firstErr = err
	}
	if err := s.sweepRuns(ctx, cutoff); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (s *Sweeper) sweepApprovals(ctx context.Context, cutoff time.Time) error {
	pending, err := s.gate.Pending(ctx)
	if err != nil {
		return fmt.Errorf("list pending approvals: %w", err)
	}

	for _, req := range pending {
		if !req.CreatedAt.Before(cutoff) {
			continue
		}
		if _, err := s.gate.Decide(ctx, req.ID, false, autoDenyNote); err != nil {
			if errors.Is(err, domain.ErrApprovalResolved) {
				continue
			}
			s.logger.Error("auto-deny failed", "approval_id", req.ID, "error", err)
			continue
		}
		s.logger.Info("approval auto-denied",
			"approval_id", req.ID,
			"tool", req.ToolName,
			"age", s.now().Sub(req.CreatedAt).String(),
		)
	}
	return nil
}

func (s *Sweeper) sweepRuns(ctx context.Context, cutoff time.Time) error {
	stale, err := s.runs.ListSuspendedBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("list suspended runs: %w", err)
	}

	for _, run := range stale {
		_, err := s.engine.Resume(ctx, run.ID, domain.ResumeDecision{
			Approved: false,
			Notes:    autoDenyNote,
		})
		if err != nil {
			if errors.Is(err, domain.ErrRunNotSuspended) {
				continue
			}
			s.logger.Error("auto-resume failed", "run_id", run.ID, "error", err)
			continue
		}
		s.logger.Info("run auto-resumed as denied",
			"run_id", run.ID,
			"workflow", run.Workflow,
		)
	}
	return nil
}
