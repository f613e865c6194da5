package domain

import (
	"time"

	"github.com/google/uuid"
)

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "PENDING"
	ApprovalApproved ApprovalStatus = "APPROVED"
	ApprovalDenied   ApprovalStatus = "DENIED"
)

// ApprovalRequest defers a gated tool's side effect until a decision arrives.
// It leaves PENDING at most once; a second decision attempt is rejected.
type ApprovalRequest struct {
	ID            uuid.UUID      `json:"id"`
	ToolName      string         `json:"tool_name"`
	ProposedInput map[string]any `json:"proposed_input"`
	Status        ApprovalStatus `json:"status"`
	Notes         string         `json:"notes,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	ResolvedAt    *time.Time     `json:"resolved_at,omitempty"`
}
