// SPDX-License-Identifier: Apache-2.0

package approval

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/LavonTMCQ/spear-agents/internal/domain"
	"github.com/LavonTMCQ/spear-agents/internal/schema"
	"github.com/LavonTMCQ/spear-agents/internal/tool"
	"github.com/google/uuid"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var refundShape = schema.MustShape(`{
  "type": "object",
  "required": ["order_id"],
  "properties": {
    "order_id": {"type": "string"},
    "amount": {"type": "number"}
  }
}`)

func newRefundTool(calls *atomic.Int64) *tool.Tool {
	return &tool.Tool{
		Name:             "processRefund",
		InputShape:       refundShape,
		RequiresApproval: true,
		Run: func(ctx context.Context, input map[string]any) tool.Result {
			calls.Add(1)
			return tool.Success(map[string]any{"refund_id": "re_1"})
		},
	}
}

func TestInvoke_UngatedRunsDirectly(t *testing.T) {
	g := NewGate(NewMemoryStore(), discardLogger())
	g.Register(&tool.Tool{
		Name: "lookupCustomer",
		Run: func(ctx context.Context, input map[string]any) tool.Result {
			return tool.Success(map[string]any{"id": "cus_1"})
		},
	})

	res, req, err := g.Invoke(context.Background(), "lookupCustomer", map[string]any{})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if req != nil {
		t.Fatal("expected no approval request for ungated tool")
	}
	if !res.OK() {
		t.Fatalf("expected success, got %s", res.ErrKind)
	}
}

func TestInvoke_UnknownTool(t *testing.T) {
	g := NewGate(NewMemoryStore(), discardLogger())

	_, _, err := g.Invoke(context.Background(), "nope", map[string]any{})
	if !errors.Is(err, domain.ErrUnknownTool) {
		t.Fatalf("expected ErrUnknownTool, got %v", err)
	}
}

func TestInvoke_GatedDefersSideEffect(t *testing.T) {
	var calls atomic.Int64
	g := NewGate(NewMemoryStore(), discardLogger())
	g.Register(newRefundTool(&calls))

	res, req, err := g.Invoke(context.Background(), "processRefund", map[string]any{"order_id": "ord_1"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if req == nil {
		t.Fatal("expected pending approval request")
	}
	if req.Status != domain.ApprovalPending {
		t.Fatalf("expected PENDING, got %s", req.Status)
	}
	if res.OK() && res.Output != nil {
		t.Fatalf("expected empty result while pending, got %v", res.Output)
	}
	if calls.Load() != 0 {
		t.Fatal("side effect must not run before approval")
	}

	pending, err := g.Pending(context.Background())
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != req.ID {
		t.Fatalf("expected the request in the pending queue, got %v", pending)
	}
}

func TestInvoke_GatedInvalidInputNeverQueued(t *testing.T) {
	var calls atomic.Int64
	g := NewGate(NewMemoryStore(), discardLogger())
	g.Register(newRefundTool(&calls))

	res, req, err := g.Invoke(context.Background(), "processRefund", map[string]any{"amount": 5})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if req != nil {
		t.Fatal("invalid input must not create an approval request")
	}
	if res.ErrKind != tool.ValidationError {
		t.Fatalf("expected ValidationError, got %s", res.ErrKind)
	}

	pending, _ := g.Pending(context.Background())
	if len(pending) != 0 {
		t.Fatalf("expected empty queue, got %d", len(pending))
	}
}

func TestDecide_ApprovedExecutesOnce(t *testing.T) {
	var calls atomic.Int64
	g := NewGate(NewMemoryStore(), discardLogger())
	g.Register(newRefundTool(&calls))

	_, req, err := g.Invoke(context.Background(), "processRefund", map[string]any{"order_id": "ord_1"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}

	res, err := g.Decide(context.Background(), req.ID, true, "looks fine")
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if !res.OK() {
		t.Fatalf("expected success after approval, got %s: %s", res.ErrKind, res.Message)
	}
	if res.Output["refund_id"] != "re_1" {
		t.Fatalf("expected tool outcome propagated, got %v", res.Output)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected exactly one side effect, got %d", calls.Load())
	}

	// Second decision attempt is rejected and does not run the tool again.
	_, err = g.Decide(context.Background(), req.ID, true, "")
	if !errors.Is(err, domain.ErrApprovalResolved) {
		t.Fatalf("expected ErrApprovalResolved, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected still one side effect, got %d", calls.Load())
	}
}

func TestDecide_DeniedNeverExecutes(t *testing.T) {
	var calls atomic.Int64
	g := NewGate(NewMemoryStore(), discardLogger())
	g.Register(newRefundTool(&calls))

	_, req, err := g.Invoke(context.Background(), "processRefund", map[string]any{"order_id": "ord_1"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}

	res, err := g.Decide(context.Background(), req.ID, false, "not eligible")
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if res.ErrKind != tool.ApprovalDenied {
		t.Fatalf("expected ApprovalDenied, got %s", res.ErrKind)
	}
	if calls.Load() != 0 {
		t.Fatalf("denied side effect must never run, got %d calls", calls.Load())
	}

	stored, err := g.store.Get(context.Background(), req.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != domain.ApprovalDenied {
		t.Fatalf("expected DENIED, got %s", stored.Status)
	}
	if stored.ResolvedAt == nil {
		t.Fatal("expected resolved timestamp")
	}
}

func TestDecide_UnknownRequest(t *testing.T) {
	g := NewGate(NewMemoryStore(), discardLogger())

	_, err := g.Decide(context.Background(), uuid.New(), true, "")
	if !errors.Is(err, domain.ErrApprovalNotFound) {
		t.Fatalf("expected ErrApprovalNotFound, got %v", err)
	}
}

func TestDecide_ConcurrentExactlyOnce(t *testing.T) {
	var calls atomic.Int64
	g := NewGate(NewMemoryStore(), discardLogger())
	g.Register(newRefundTool(&calls))

	_, req, err := g.Invoke(context.Background(), "processRefund", map[string]any{"order_id": "ord_1"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}

	const attempts = 16
	var wg sync.WaitGroup
	var wins atomic.Int64

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := g.Decide(context.Background(), req.ID, true, ""); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Fatalf("expected exactly one winning decision, got %d", wins.Load())
	}
	if calls.Load() != 1 {
		t.Fatalf("expected exactly one side effect, got %d", calls.Load())
	}
}

func TestIndependentRequestsDoNotBlock(t *testing.T) {
	var calls atomic.Int64
	g := NewGate(NewMemoryStore(), discardLogger())
	g.Register(newRefundTool(&calls))

	_, first, err := g.Invoke(context.Background(), "processRefund", map[string]any{"order_id": "ord_1"})
	if err != nil {
		t.Fatalf("invoke 1: %v", err)
	}
	_, second, err := g.Invoke(context.Background(), "processRefund", map[string]any{"order_id": "ord_2"})
	if err != nil {
		t.Fatalf("invoke 2: %v", err)
	}

	if _, err := g.Decide(context.Background(), second.ID, false, ""); err != nil {
		t.Fatalf("decide second: %v", err)
	}

	// The first request is still independently decidable.
	res, err := g.Decide(context.Background(), first.ID, true, "")
	if err != nil {
		t.Fatalf("decide first: %v", err)
	}
	if !res.OK() {
		t.Fatalf("expected success, got %s", res.ErrKind)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected one side effect, got %d", calls.Load())
	}
}
