package actions

import (
	"context"
	"errors"
	"testing"

	"github.com/kayz/loom/internal/state"
)

func TestRegistryExecute(t *testing.T) {
	r := NewRegistry()
	err := r.Register("greet", func(_ context.Context, _ state.Memory, parameters map[string]any) (string, error) {
		name, _ := parameters["name"].(string)
		return "hello " + name, nil
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	out, err := r.Execute(context.Background(), state.NewTurnState(), "greet", map[string]any{"name": "sam"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out != "hello sam" {
		t.Fatalf("output = %q", out)
	}
}

func TestRegistryDuplicate(t *testing.T) {
	r := NewRegistry()
	handler := func(context.Context, state.Memory, map[string]any) (string, error) { return "", nil }
	if err := r.Register("a", handler); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register("a", handler); err == nil {
		t.Fatal("duplicate registration must fail")
	}
}

func TestRegistryUnknownAction(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Execute(context.Background(), state.NewTurnState(), "nope", nil); err == nil {
		t.Fatal("unknown action must fail")
	}
}

func TestRegistryHandlerErrorWrapped(t *testing.T) {
	r := NewRegistry()
	sentinel := errors.New("boom")
	_ = r.Register("explode", func(context.Context, state.Memory, map[string]any) (string, error) {
		return "", sentinel
	})
	_, err := r.Execute(context.Background(), state.NewTurnState(), "explode", nil)
	if !errors.Is(err, sentinel) {
		t.Fatalf("error = %v", err)
	}
}
