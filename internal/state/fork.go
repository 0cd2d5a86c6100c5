package state

import "sync"

// Fork is a copy-on-write overlay over another Memory. Writes and deletes
// land in the overlay; reads fall through to the base when the overlay has no
// entry. The base is never mutated, which lets the repair loop speculate
// against real conversation state without corrupting it.
type Fork struct {
	mu      sync.RWMutex
	base    Memory
	values  map[string]any
	deleted map[string]struct{}
}

// NewFork creates a copy-on-write overlay over base.
func NewFork(base Memory) *Fork {
	return &Fork{
		base:    base,
		values:  make(map[string]any),
		deleted: make(map[string]struct{}),
	}
}

func (f *Fork) Get(path string) any {
	key := NormalizePath(path)
	f.mu.RLock()
	defer f.mu.RUnlock()
	if _, ok := f.deleted[key]; ok {
		return nil
	}
	if v, ok := f.values[key]; ok {
		return v
	}
	return f.base.Get(key)
}

func (f *Fork) Set(path string, value any) {
	key := NormalizePath(path)
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.deleted, key)
	f.values[key] = value
}

func (f *Fork) Has(path string) bool {
	key := NormalizePath(path)
	f.mu.RLock()
	defer f.mu.RUnlock()
	if _, ok := f.deleted[key]; ok {
		return false
	}
	if _, ok := f.values[key]; ok {
		return true
	}
	return f.base.Has(key)
}

func (f *Fork) Delete(path string) {
	key := NormalizePath(path)
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.values, key)
	f.deleted[key] = struct{}{}
}
