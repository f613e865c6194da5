// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"context"

	"github.com/google/uuid"

	"github.com/LavonTMCQ/spear-agents/internal/domain"
	"github.com/LavonTMCQ/spear-agents/internal/knowledge"
	"github.com/LavonTMCQ/spear-agents/internal/tool"
)

type WorkflowRunner interface {
	Start(ctx context.Context, input map[string]any) (domain.WorkflowRun, error)
	Resume(ctx context.Context, id uuid.UUID, decision domain.ResumeDecision) (domain.WorkflowRun, error)
	Get(ctx context.Context, id uuid.UUID) (domain.WorkflowRun, error)
}

type ToolInvoker interface {
	Invoke(ctx context.Context, name string, input map[string]any) (tool.Result, *domain.ApprovalRequest, error)
	Decide(ctx context.Context, id uuid.UUID, approved bool, notes string) (tool.Result, error)
	Pending(ctx context.Context) ([]domain.ApprovalRequest, error)
}

type KnowledgeSearcher interface {
	Search(ctx context.Context, query string) ([]knowledge.Snippet, error)
}

type HealthChecker interface {
	Check(ctx context.Context) error
}
