// SPDX-License-Identifier: Apache-2.0

package approval

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/LavonTMCQ/spear-agents/internal/domain"
	"github.com/google/uuid"
)

// Store persists approval requests. Resolve must be a compare-and-swap on the
// PENDING status so that two concurrent decisions cannot both succeed.
type Store interface {
	Create(ctx context.Context, req domain.ApprovalRequest) error
	Get(ctx context.Context, id uuid.UUID) (domain.ApprovalRequest, error)
	ListPending(ctx context.Context) ([]domain.ApprovalRequest, error)
	// Resolve transitions PENDING -> status exactly once and returns the
	// resolved request. It returns domain.ErrApprovalResolved when the
	// request already left PENDING, and domain.ErrApprovalNotFound when the
	// id is unknown.
	Resolve(ctx context.Context, id uuid.UUID, status domain.ApprovalStatus, notes string) (domain.ApprovalRequest, error)
}

// MemoryStore keeps approval requests in process memory. It backs tests and
// deployments without a DATABASE_URL.
type MemoryStore struct {
	mu       sync.Mutex
	requests map[uuid.UUID]domain.ApprovalRequest
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{requests: make(map[uuid.UUID]domain.ApprovalRequest)}
}

func (s *MemoryStore) Create(ctx context.Context, req domain.ApprovalRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[req.ID] = req
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (domain.ApprovalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[id]
	if !ok {
		return domain.ApprovalRequest{}, domain.ErrApprovalNotFound
	}
	return req, nil
}

func (s *MemoryStore) ListPending(ctx context.Context) ([]domain.ApprovalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.ApprovalRequest, 0, len(s.requests))
	for _, req := range s.requests {
		if req.Status == domain.ApprovalPending {
			out = append(out, req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) Resolve(ctx context.Context, id uuid.UUID, status domain.ApprovalStatus, notes string) (domain.ApprovalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[id]
	if !ok {
		return domain.ApprovalRequest{}, domain.ErrApprovalNotFound
	}
	if req.Status != domain.ApprovalPending {
		return domain.ApprovalRequest{}, domain.ErrApprovalResolved
	}

	now := time.Now()
	req.Status = status
	req.Notes = notes
	req.ResolvedAt = &now
	s.requests[id] = req
	return req, nil
}
