package engine

import (
	"context"
	"sync"
	"time"

	"github.com/LavonTMCQ/spear-agents/internal/domain"
	"github.com/google/uuid"
)

// MemoryRunStore keeps runs in process memory. It backs tests and
// deployments without a DATABASE_URL.
type MemoryRunStore struct {
	mu   sync.Mutex
	runs map[uuid.UUID]domain.WorkflowRun
}

func NewMemoryRunStore() *MemoryRunStore {
	return &MemoryRunStore{runs: make(map[uuid.UUID]domain.WorkflowRun)}
}

func (s *MemoryRunStore) CreateRun(ctx context.Context, run domain.WorkflowRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = run
	return nil
}

func (s *MemoryRunStore) GetRun(ctx context.Context, id uuid.UUID) (domain.WorkflowRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[id]
	if !ok {
		return domain.WorkflowRun{}, domain.ErrRunNotFound
	}
	return run, nil
}

func (s *MemoryRunStore) SaveRun(ctx context.Context, run domain.WorkflowRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[run.ID]; !ok {
		return domain.ErrRunNotFound
	}
	s.runs[run.ID] = run
	return nil
}

func (s *MemoryRunStore) MarkResuming(ctx context.Context, id uuid.UUID) (domain.WorkflowRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[id]
	if !ok {
		return domain.WorkflowRun{}, domain.ErrRunNotFound
	}
	if run.Status != domain.RunSuspended {
		return domain.WorkflowRun{}, domain.ErrRunNotSuspended
	}

	run.Status = domain.RunRunning
	run.UpdatedAt = time.Now()
	s.runs[id] = run
	return run, nil
}

// ListSuspendedBefore returns runs that have been suspended since before the
// cutoff. The sweeper uses it to apply the auto-deny timeout policy.
func (s *MemoryRunStore) ListSuspendedBefore(ctx context.Context, cutoff time.Time) ([]domain.WorkflowRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.WorkflowRun
	for _, run := range s.runs {
		if run.Status == domain.RunSuspended && run.UpdatedAt.Before(cutoff) {
			out = append(out, run)
		}
	}
	return out, nil
}
