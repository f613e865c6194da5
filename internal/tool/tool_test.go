package tool

import (
	"context"
	"testing"

	"github.com/LavonTMCQ/spear-agents/internal/schema"
)

var echoInput = schema.MustShape(`{
  "type": "object",
  "required": ["value"],
  "properties": {"value": {"type": "string"}}
}`)

var echoOutput = schema.MustShape(`{
  "type": "object",
  "required": ["echo"],
  "properties": {"echo": {"type": "string"}}
}`)

func TestInvoke_Success(t *testing.T) {
	called := false
	tl := &Tool{
		Name:        "echo",
		InputShape:  echoInput,
		OutputShape: echoOutput,
		Run: func(ctx context.Context, input map[string]any) Result {
			called = true
			return Success(map[string]any{"echo": input["value"]})
		},
	}

	res := tl.Invoke(context.Background(), map[string]any{"value": "hi"})
	if !res.OK() {
		t.Fatalf("expected success, got %s: %s", res.ErrKind, res.Message)
	}
	if !called {
		t.Fatal("expected run func to be called")
	}
	if res.Output["echo"] != "hi" {
		t.Fatalf("expected echo=hi, got %v", res.Output["echo"])
	}
}

func TestInvoke_InvalidInputSkipsCall(t *testing.T) {
	called := false
	tl := &Tool{
		Name:       "echo",
		InputShape: echoInput,
		Run: func(ctx context.Context, input map[string]any) Result {
			called = true
			return Success(nil)
		},
	}

	res := tl.Invoke(context.Background(), map[string]any{"value": 42})
	if res.OK() {
		t.Fatal("expected failure for invalid input")
	}
	if res.ErrKind != ValidationError {
		t.Fatalf("expected ValidationError, got %s", res.ErrKind)
	}
	if called {
		t.Fatal("expected no external call on invalid input")
	}
}

func TestInvoke_InvalidOutput(t *testing.T) {
	tl := &Tool{
		Name:        "echo",
		InputShape:  echoInput,
		OutputShape: echoOutput,
		Run: func(ctx context.Context, input map[string]any) Result {
			return Success(map[string]any{"echo": 7})
		},
	}

	res := tl.Invoke(context.Background(), map[string]any{"value": "hi"})
	if res.ErrKind != ValidationError {
		t.Fatalf("expected ValidationError, got %s", res.ErrKind)
	}
}

func TestInvoke_FailurePassesThrough(t *testing.T) {
	tl := &Tool{
		Name:       "lookup",
		InputShape: echoInput,
		Run: func(ctx context.Context, input map[string]any) Result {
			return Failure(NotFound, "no such record")
		},
	}

	res := tl.Invoke(context.Background(), map[string]any{"value": "x"})
	if res.ErrKind != NotFound {
		t.Fatalf("expected NotFound, got %s", res.ErrKind)
	}
	if res.Message != "no such record" {
		t.Fatalf("unexpected message %q", res.Message)
	}
}

func TestInvoke_NilShapesAcceptAnything(t *testing.T) {
	tl := &Tool{
		Name: "freeform",
		Run: func(ctx context.Context, input map[string]any) Result {
			return Success(map[string]any{"ok": true})
		},
	}

	res := tl.Invoke(context.Background(), map[string]any{"whatever": 1})
	if !res.OK() {
		t.Fatalf("expected success, got %s", res.ErrKind)
	}
}

func TestResultOK(t *testing.T) {
	if !Success(nil).OK() {
		t.Fatal("expected success result to be OK")
	}
	if Failure(Unknown, "boom").OK() {
		t.Fatal("expected failure result to not be OK")
	}
	if got := Failuref(Unauthorized, "key %d", 3); got.Message != "key 3" {
		t.Fatalf("unexpected message %q", got.Message)
	}
}
