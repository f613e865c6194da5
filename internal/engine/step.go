package engine

import (
	"context"

	"github.com/LavonTMCQ/spear-agents/internal/domain"
	"github.com/LavonTMCQ/spear-agents/internal/schema"
)

// StepContext is what a step sees on entry. Decision is non-nil only when the
// engine re-enters the step after a suspension; the step branches on it.
type StepContext struct {
	Input    map[string]any
	Decision *domain.ResumeDecision
}

// ExecuteFunc returns exactly one of: a normal output, a suspend request, or
// an error. Output replaces the run context wholesale; a suspend request
// parks the run at this step; an error fails the run.
//
// Steps must keep external calls entirely before or entirely after their own
// suspension point — a resumed step is re-entered from the top.
type ExecuteFunc func(ctx context.Context, sc StepContext) (map[string]any, *domain.SuspendRequest, error)

// Step is one named unit of a pipeline with declared input and output shapes.
type Step struct {
	ID          string
	InputShape  *schema.Shape
	OutputShape *schema.Shape
	Execute     ExecuteFunc
}
