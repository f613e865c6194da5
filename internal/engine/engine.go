// SPDX-License-Identifier: Apache-2.0

// Package engine executes an ordered list of steps as a single logical unit
// of work, threading a context record between them and supporting suspension
// around human decisions.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/LavonTMCQ/spear-agents/internal/domain"
	"github.com/LavonTMCQ/spear-agents/internal/metrics"
	"github.com/google/uuid"
)

// RunStore persists workflow runs. MarkResuming must be a compare-and-swap
// on the SUSPENDED status so a decision is consumed at most once.
type RunStore interface {
	CreateRun(ctx context.Context, run domain.WorkflowRun) error
	GetRun(ctx context.Context, id uuid.UUID) (domain.WorkflowRun, error)
	SaveRun(ctx context.Context, run domain.WorkflowRun) error
	// MarkResuming transitions SUSPENDED -> RUNNING exactly once and returns
	// the claimed run. domain.ErrRunNotSuspended when the run is in any other
	// state, domain.ErrRunNotFound when unknown.
	MarkResuming(ctx context.Context, id uuid.UUID) (domain.WorkflowRun, error)
}

type Engine struct {
	workflow string
	steps    []Step
	store    RunStore
	logger   *slog.Logger
}

func New(workflow string, steps []Step, store RunStore, logger *slog.Logger) (*Engine, error) {
	if workflow == "" {
		return nil, errors.New("workflow name is required")
	}
	if len(steps) == 0 {
		return nil, errors.New("workflow needs at least one step")
	}
	if store == nil {
		return nil, errors.New("run store is required")
	}

	seen := make(map[string]struct{}, len(steps))
	for _, s := range steps {
		if s.ID == "" {
			return nil, errors.New("step id is required")
		}
		if s.Execute == nil {
			return nil, fmt.Errorf("step %q has no execute func", s.ID)
		}
		if _, dup := seen[s.ID]; dup {
			return nil, fmt.Errorf("duplicate step id %q", s.ID)
		}
		seen[s.ID] = struct{}{}
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		workflow: workflow,
		steps:    steps,
		store:    store,
		logger:   logger,
	}, nil
}

// Start validates the input against the first step's shape, creates a run,
// and executes until completion, failure, or suspension. Invalid input never
// creates a run.
func (e *Engine) Start(ctx context.Context, input map[string]any) (domain.WorkflowRun, error) {
	if err := e.steps[0].InputShape.Validate(input); err != nil {
		return domain.WorkflowRun{}, fmt.Errorf("workflow input: %w", err)
	}

	now := time.Now()
	run := domain.WorkflowRun{
		ID:        uuid.New(),
		Workflow:  e.workflow,
		Status:    domain.RunRunning,
		StepIndex: 0,
		Context:   input,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.store.CreateRun(ctx, run); err != nil {
		return domain.WorkflowRun{}, err
	}

	e.logger.Info("run started", "run_id", run.ID, "workflow", e.workflow)
	metrics.IncRunStatus(domain.RunRunning)

	return e.advance(ctx, run, nil)
}

// Resume consumes a decision for a suspended run and re-enters the step that
// suspended. The compare-and-swap in MarkResuming rejects a second resume
// once the first has claimed the run.
func (e *Engine) Resume(ctx context.Context, id uuid.UUID, decision domain.ResumeDecision) (domain.WorkflowRun, error) {
	run, err := e.store.MarkResuming(ctx, id)
	if err != nil {
		return domain.WorkflowRun{}, err
	}

	run.Status = domain.RunRunning
	run.Suspended = nil

	e.logger.Info("run resumed",
		"run_id", run.ID,
		"step", e.steps[run.StepIndex].ID,
		"approved", decision.Approved,
	)

	return e.advance(ctx, run, &decision)
}

// Get returns the stored state of a run.
func (e *Engine) Get(ctx context.Context, id uuid.UUID) (domain.WorkflowRun, error) {
	return e.store.GetRun(ctx, id)
}

// advance drives the step loop from the run's current index. The decision is
// handed only to the first step executed, then cleared. Step failures and
// shape mismatches are recorded on the run, not returned as errors; the error
// return is reserved for storage problems.
func (e *Engine) advance(ctx context.Context, run domain.WorkflowRun, decision *domain.ResumeDecision) (domain.WorkflowRun, error) {
	for run.StepIndex < len(e.steps) {
		step := e.steps[run.StepIndex]

		if err := step.InputShape.Validate(run.Context); err != nil {
			return e.fail(ctx, run, fmt.Errorf("step %q input: %w", step.ID, err))
		}

		started := time.Now()
		output, suspend, err := step.Execute(ctx, StepContext{
			Input:    run.Context,
			Decision: decision,
		})
		metrics.ObserveStepDuration(time.Since(started))
		decision = nil

		if err != nil {
			return e.fail(ctx, run, fmt.Errorf("step %q: %w", step.ID, err))
		}

		if suspend != nil {
			run.Status = domain.RunSuspended
			run.Suspended = suspend
			run.UpdatedAt = time.Now()
			if err := e.store.SaveRun(ctx, run); err != nil {
				return domain.WorkflowRun{}, err
			}

			e.logger.Info("run suspended",
				"run_id", run.ID,
				"step", step.ID,
				"resume_label", suspend.ResumeLabel,
			)
			metrics.IncRunStatus(domain.RunSuspended)
			metrics.IncRunSuspension()
			return run, nil
		}

		if err := step.OutputShape.Validate(output); err != nil {
			return e.fail(ctx, run, fmt.Errorf("step %q output: %w", step.ID, err))
		}

		run.Context = output
		run.StepIndex++
		run.UpdatedAt = time.Now()
		if err := e.store.SaveRun(ctx, run); err != nil {
			return domain.WorkflowRun{}, err
		}
	}

	run.Status = domain.RunCompleted
	run.UpdatedAt = time.Now()
	if err := e.store.SaveRun(ctx, run); err != nil {
		return domain.WorkflowRun{}, err
	}

	e.logger.Info("run completed", "run_id", run.ID)
	metrics.IncRunStatus(domain.RunCompleted)
	return run, nil
}

func (e *Engine) fail(ctx context.Context, run domain.WorkflowRun, cause error) (domain.WorkflowRun, error) {
	run.Status = domain.RunFailed
	run.Error = cause.Error()
	run.UpdatedAt = time.Now()
	if err := e.store.SaveRun(ctx, run); err != nil {
		return domain.WorkflowRun{}, err
	}

	e.logger.Error("run failed",
		"run_id", run.ID,
		"step_index", run.StepIndex,
		"error", cause,
	)
	metrics.IncRunStatus(domain.RunFailed)
	return run, nil
}
