// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/LavonTMCQ/spear-agents/internal/domain"
	"github.com/LavonTMCQ/spear-agents/internal/schema"
	"github.com/google/uuid"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var anyObject = schema.MustShape(`{"type": "object"}`)

func passStep(id string) Step {
	return Step{
		ID:         id,
		InputShape: anyObject,
		Execute: func(ctx context.Context, sc StepContext) (map[string]any, *domain.SuspendRequest, error) {
			out := map[string]any{}
			for k, v := range sc.Input {
				out[k] = v
			}
			out[id] = true
			return out, nil, nil
		},
	}
}

func newEngine(t *testing.T, steps ...Step) (*Engine, *MemoryRunStore) {
	t.Helper()
	store := NewMemoryRunStore()
	e, err := New("test-flow", steps, store, discardLogger())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return e, store
}

func TestNewValidation(t *testing.T) {
	store := NewMemoryRunStore()

	if _, err := New("", []Step{passStep("a")}, store, nil); err == nil {
		t.Fatal("expected error for empty workflow name")
	}
	if _, err := New("wf", nil, store, nil); err == nil {
		t.Fatal("expected error for no steps")
	}
	if _, err := New("wf", []Step{passStep("a")}, nil, nil); err == nil {
		t.Fatal("expected error for nil store")
	}
	if _, err := New("wf", []Step{passStep("a"), passStep("a")}, store, nil); err == nil {
		t.Fatal("expected error for duplicate step ids")
	}
	if _, err := New("wf", []Step{{ID: "x"}}, store, nil); err == nil {
		t.Fatal("expected error for step without execute func")
	}
}

func TestStart_CompletesAndThreadsContext(t *testing.T) {
	e, _ := newEngine(t, passStep("first"), passStep("second"))

	run, err := e.Start(context.Background(), map[string]any{"seed": "x"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	if run.Status != domain.RunCompleted {
		t.Fatalf("expected COMPLETED, got %s", run.Status)
	}
	if run.StepIndex != 2 {
		t.Fatalf("expected step index 2, got %d", run.StepIndex)
	}
	// Step N's output is the input of step N+1; the final context carries
	// both markers and the seed.
	for _, key := range []string{"seed", "first", "second"} {
		if _, ok := run.Context[key]; !ok {
			t.Fatalf("expected context key %q, got %v", key, run.Context)
		}
	}
}

func TestStart_InvalidInputCreatesNoRun(t *testing.T) {
	strict := passStep("strict")
	strict.InputShape = schema.MustShape(`{
		"type": "object",
		"required": ["email"],
		"properties": {"email": {"type": "string"}}
	}`)
	e, store := newEngine(t, strict)

	_, err := e.Start(context.Background(), map[string]any{"wrong": 1})
	if err == nil {
		t.Fatal("expected validation error")
	}

	var verr *schema.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	if n := len(store.runs); n != 0 {
		t.Fatalf("expected no run to be created, got %d", n)
	}
}

func TestStart_StepErrorFailsRun(t *testing.T) {
	boom := Step{
		ID:         "boom",
		InputShape: anyObject,
		Execute: func(ctx context.Context, sc StepContext) (map[string]any, *domain.SuspendRequest, error) {
			return nil, nil, errors.New("exploded")
		},
	}
	never := passStep("never")
	never.Execute = func(ctx context.Context, sc StepContext) (map[string]any, *domain.SuspendRequest, error) {
		t.Fatal("step after failure must not run")
		return nil, nil, nil
	}

	e, _ := newEngine(t, boom, never)

	run, err := e.Start(context.Background(), map[string]any{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if run.Status != domain.RunFailed {
		t.Fatalf("expected FAILED, got %s", run.Status)
	}
	if !strings.Contains(run.Error, "boom") || !strings.Contains(run.Error, "exploded") {
		t.Fatalf("expected error to name step and cause, got %q", run.Error)
	}
}

func TestStart_OutputShapeMismatchFailsRun(t *testing.T) {
	bad := Step{
		ID:          "bad-output",
		InputShape:  anyObject,
		OutputShape: schema.MustShape(`{"type": "object", "required": ["must"]}`),
		Execute: func(ctx context.Context, sc StepContext) (map[string]any, *domain.SuspendRequest, error) {
			return map[string]any{"other": 1}, nil, nil
		},
	}

	e, _ := newEngine(t, bad)

	run, err := e.Start(context.Background(), map[string]any{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if run.Status != domain.RunFailed {
		t.Fatalf("expected FAILED, got %s", run.Status)
	}
	if !strings.Contains(run.Error, "bad-output") {
		t.Fatalf("expected failing step in error, got %q", run.Error)
	}
}

func suspendOnceStep(id string) Step {
	return Step{
		ID:         id,
		InputShape: anyObject,
		Execute: func(ctx context.Context, sc StepContext) (map[string]any, *domain.SuspendRequest, error) {
			if sc.Decision == nil {
				return nil, &domain.SuspendRequest{
					Reason:      "needs a human",
					Actions:     []string{"look at it"},
					ResumeLabel: "admin-approval",
				}, nil
			}
			out := map[string]any{}
			for k, v := range sc.Input {
				out[k] = v
			}
			out["approved"] = sc.Decision.Approved
			out["notes"] = sc.Decision.Notes
			return out, nil, nil
		},
	}
}

func TestSuspendAndResume(t *testing.T) {
	e, _ := newEngine(t, passStep("gather"), suspendOnceStep("gate"), passStep("finish"))

	run, err := e.Start(context.Background(), map[string]any{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	if run.Status != domain.RunSuspended {
		t.Fatalf("expected SUSPENDED, got %s", run.Status)
	}
	if run.StepIndex != 1 {
		t.Fatalf("expected to park at step 1, got %d", run.StepIndex)
	}
	if run.Suspended == nil || run.Suspended.ResumeLabel != "admin-approval" {
		t.Fatalf("expected suspended payload, got %+v", run.Suspended)
	}

	resumed, err := e.Resume(context.Background(), run.ID, domain.ResumeDecision{
		Approved: true,
		Notes:    "go ahead",
	})
	if err != nil {
		t.Fatalf("resume: %v", err)
	}

	if resumed.Status != domain.RunCompleted {
		t.Fatalf("expected COMPLETED after resume, got %s", resumed.Status)
	}
	if resumed.Suspended != nil {
		t.Fatal("expected suspended payload to be cleared")
	}
	if resumed.Context["approved"] != true {
		t.Fatalf("expected decision merged into context, got %v", resumed.Context)
	}
	if resumed.Context["notes"] != "go ahead" {
		t.Fatalf("expected notes carried, got %v", resumed.Context["notes"])
	}
	if _, ok := resumed.Context["finish"]; !ok {
		t.Fatal("expected step after suspension to run")
	}
}

func TestResume_SecondAttemptRejected(t *testing.T) {
	e, _ := newEngine(t, suspendOnceStep("gate"))

	run, err := e.Start(context.Background(), map[string]any{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	if _, err := e.Resume(context.Background(), run.ID, domain.ResumeDecision{Approved: false}); err != nil {
		t.Fatalf("first resume: %v", err)
	}

	_, err = e.Resume(context.Background(), run.ID, domain.ResumeDecision{Approved: true})
	if !errors.Is(err, domain.ErrRunNotSuspended) {
		t.Fatalf("expected ErrRunNotSuspended on second resume, got %v", err)
	}
}

func TestResume_UnknownRun(t *testing.T) {
	e, _ := newEngine(t, suspendOnceStep("gate"))

	_, err := e.Resume(context.Background(), uuid.New(), domain.ResumeDecision{})
	if !errors.Is(err, domain.ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}

func TestResume_RunningRunRejected(t *testing.T) {
	e, _ := newEngine(t, passStep("only"))

	run, err := e.Start(context.Background(), map[string]any{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	_, err = e.Resume(context.Background(), run.ID, domain.ResumeDecision{})
	if !errors.Is(err, domain.ErrRunNotSuspended) {
		t.Fatalf("expected ErrRunNotSuspended for completed run, got %v", err)
	}
}

func TestSuspendTwice(t *testing.T) {
	// A step may suspend again after being resumed; the engine re-parks the
	// run at the same step.
	entries := 0
	stubborn := Step{
		ID:         "stubborn",
		InputShape: anyObject,
		Execute: func(ctx context.Context, sc StepContext) (map[string]any, *domain.SuspendRequest, error) {
			entries++
			if sc.Decision == nil || !sc.Decision.Approved {
				return nil, &domain.SuspendRequest{Reason: "still waiting", ResumeLabel: "retry"}, nil
			}
			return map[string]any{"done": true}, nil, nil
		},
	}

	e, _ := newEngine(t, stubborn)

	run, err := e.Start(context.Background(), map[string]any{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if run.Status != domain.RunSuspended {
		t.Fatalf("expected SUSPENDED, got %s", run.Status)
	}

	run, err = e.Resume(context.Background(), run.ID, domain.ResumeDecision{Approved: false})
	if err != nil {
		t.Fatalf("resume 1: %v", err)
	}
	if run.Status != domain.RunSuspended {
		t.Fatalf("expected second suspension, got %s", run.Status)
	}

	run, err = e.Resume(context.Background(), run.ID, domain.ResumeDecision{Approved: true})
	if err != nil {
		t.Fatalf("resume 2: %v", err)
	}
	if run.Status != domain.RunCompleted {
		t.Fatalf("expected COMPLETED, got %s", run.Status)
	}
	if entries != 3 {
		t.Fatalf("expected the step to run 3 times, got %d", entries)
	}
}

func TestGet(t *testing.T) {
	e, _ := newEngine(t, passStep("only"))

	run, err := e.Start(context.Background(), map[string]any{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	got, err := e.Get(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.RunCompleted {
		t.Fatalf("expected stored COMPLETED, got %s", got.Status)
	}

	if _, err := e.Get(context.Background(), uuid.New()); !errors.Is(err, domain.ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}
