// Package actions maps plan DO commands to application handlers.
package actions

import (
	"context"
	"fmt"
	"sync"

	"github.com/kayz/loom/internal/state"
)

// Handler executes one DO command and returns the output fed back to the
// planner.
type Handler func(ctx context.Context, mem state.Memory, parameters map[string]any) (string, error)

// Registry maps action names to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds a handler. Registering the same action twice is an error.
func (r *Registry) Register(name string, handler Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[name]; ok {
		return fmt.Errorf("action %s is already registered", name)
	}
	r.handlers[name] = handler
	return nil
}

// Has reports whether an action has a handler.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[name]
	return ok
}

// Execute runs the named action.
func (r *Registry) Execute(ctx context.Context, mem state.Memory, name string, parameters map[string]any) (string, error) {
	r.mu.RLock()
	handler, ok := r.handlers[name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("action %s not found", name)
	}
	output, err := handler(ctx, mem, parameters)
	if err != nil {
		return "", fmt.Errorf("failed to execute action %s: %w", name, err)
	}
	return output, nil
}
