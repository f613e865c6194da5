// Package tool defines the uniform calling convention for external
// operations. Every invocation resolves to a tagged Result, never a silent
// partial outcome, so workflows and the approval gate can treat all tools
// polymorphically.
package tool

import (
	"context"
	"fmt"

	"github.com/LavonTMCQ/spear-agents/internal/schema"
)

// Kind classifies a failed invocation.
type Kind string

const (
	NotFound            Kind = "NotFound"
	Unauthorized        Kind = "Unauthorized"
	UpstreamUnavailable Kind = "UpstreamUnavailable"
	ValidationError     Kind = "ValidationError"
	ApprovalDenied      Kind = "ApprovalDenied"
	Unknown             Kind = "Unknown"
)

// Result is the tagged outcome of one invocation: success with an output
// record, or failure with a kind and message.
type Result struct {
	Output  map[string]any `json:"output,omitempty"`
	ErrKind Kind           `json:"error_kind,omitempty"`
	Message string         `json:"message,omitempty"`
}

func (r Result) OK() bool { return r.ErrKind == "" }

func Success(output map[string]any) Result {
	return Result{Output: output}
}

func Failure(kind Kind, message string) Result {
	return Result{ErrKind: kind, Message: message}
}

func Failuref(kind Kind, format string, args ...any) Result {
	return Result{ErrKind: kind, Message: fmt.Sprintf(format, args...)}
}

// RunFunc performs the tool's actual side effect or lookup.
type RunFunc func(ctx context.Context, input map[string]any) Result

// Tool is a named operation with validated input and output shapes.
// Tools are stateless; retry policy belongs to the caller.
type Tool struct {
	Name             string
	Description      string
	InputShape       *schema.Shape
	OutputShape      *schema.Shape
	RequiresApproval bool
	Run              RunFunc
}

// Invoke validates the input, dispatches exactly one call, and validates the
// output. On input mismatch no external call is made. Approval gating is not
// applied here; gated tools must be invoked through the approval gate.
func (t *Tool) Invoke(ctx context.Context, input map[string]any) Result {
	if err := t.ValidateInput(input); err != nil {
		return Failuref(ValidationError, "%s: invalid input: %v", t.Name, err)
	}

	res := t.Run(ctx, input)
	if !res.OK() {
		return res
	}

	if err := t.OutputShape.Validate(res.Output); err != nil {
		return Failuref(ValidationError, "%s: invalid output: %v", t.Name, err)
	}
	return res
}

// ValidateInput checks input against the tool's input shape without
// dispatching. The approval gate uses this before parking a request.
func (t *Tool) ValidateInput(input map[string]any) error {
	return t.InputShape.Validate(input)
}
