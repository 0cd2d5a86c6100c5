package state

import (
	"strings"
	"sync"
)

// Scope prefixes for dotted memory paths. Unscoped names default to temp.
const (
	ScopeConversation = "conversation"
	ScopeUser         = "user"
	ScopeTemp         = "temp"
)

// Memory is a path-addressed key-value store shared by the prompt and
// planning layers. Paths use dotted scope prefixes like "conversation.history"
// or "temp.input".
type Memory interface {
	Get(path string) any
	Set(path string, value any)
	Has(path string) bool
	Delete(path string)
}

// SplitPath splits a dotted path into its scope and name. Names without a
// known scope prefix map to the temp scope.
func SplitPath(path string) (scope, name string) {
	if i := strings.Index(path, "."); i >= 0 {
		switch path[:i] {
		case ScopeConversation, ScopeUser, ScopeTemp:
			return path[:i], path[i+1:]
		}
	}
	return ScopeTemp, path
}

// NormalizePath returns the canonical scoped form of a path.
func NormalizePath(path string) string {
	scope, name := SplitPath(path)
	return scope + "." + name
}

// TurnState is the in-process Memory used for a single conversational turn.
// The conversation and user scopes are typically loaded from a Store before
// the turn and written back after it; temp is discarded.
type TurnState struct {
	mu     sync.RWMutex
	scopes map[string]map[string]any
}

// NewTurnState creates an empty TurnState with all three scopes.
func NewTurnState() *TurnState {
	return &TurnState{
		scopes: map[string]map[string]any{
			ScopeConversation: {},
			ScopeUser:         {},
			ScopeTemp:         {},
		},
	}
}

func (t *TurnState) Get(path string) any {
	scope, name := SplitPath(path)
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.scopes[scope][name]
}

func (t *TurnState) Set(path string, value any) {
	scope, name := SplitPath(path)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.scopes[scope][name] = value
}

func (t *TurnState) Has(path string) bool {
	scope, name := SplitPath(path)
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.scopes[scope][name]
	return ok
}

func (t *TurnState) Delete(path string) {
	scope, name := SplitPath(path)
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.scopes[scope], name)
}

// ScopeValues returns a copy of every entry in the named scope.
func (t *TurnState) ScopeValues(scope string) map[string]any {
	t.mu.RLock()
	defer t.mu.RUnlock()
	values := make(map[string]any, len(t.scopes[scope]))
	for k, v := range t.scopes[scope] {
		values[k] = v
	}
	return values
}

// LoadScope replaces the named scope with the given values.
func (t *TurnState) LoadScope(scope string, values map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fresh := make(map[string]any, len(values))
	for k, v := range values {
		fresh[k] = v
	}
	t.scopes[scope] = fresh
}
