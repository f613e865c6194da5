package domain

import (
	"time"

	"github.com/google/uuid"
)

type RunStatus string

const (
	RunRunning   RunStatus = "RUNNING"
	RunSuspended RunStatus = "SUSPENDED"
	RunCompleted RunStatus = "COMPLETED"
	RunFailed    RunStatus = "FAILED"
)

// Terminal reports whether no further steps may execute for this status.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed
}

// SuspendRequest is produced by a step in lieu of a normal output. It carries
// the payload shown to the external approver while the run is parked.
type SuspendRequest struct {
	Reason      string   `json:"reason"`
	Actions     []string `json:"actions"`
	ResumeLabel string   `json:"resume_label"`
}

// ResumeDecision is the externally supplied answer to a suspension.
// It is consumed exactly once per suspension.
type ResumeDecision struct {
	Approved bool   `json:"approved"`
	Notes    string `json:"notes,omitempty"`
}

// WorkflowRun is the durable state of one pipeline execution. The engine is
// the only writer. A suspended run holds everything needed to resume it
// later, including after a process restart.
type WorkflowRun struct {
	ID        uuid.UUID       `json:"id"`
	Workflow  string          `json:"workflow"`
	Status    RunStatus       `json:"status"`
	StepIndex int             `json:"step_index"`
	Context   map[string]any  `json:"context"`
	Suspended *SuspendRequest `json:"suspended,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
