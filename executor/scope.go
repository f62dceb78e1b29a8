package executor

import (
	"maps"
	"slices"
	"sync"
)

// Scope is the global variable namespace shared by the commands of one
// worker session. Values are whatever the executor stores: natives bound by
// set_vars, interpreter values bound by code fragments.
type Scope struct {
	mu   sync.RWMutex
	vars map[string]any
}

// NewScope returns an empty scope.
func NewScope() *Scope {
	return &Scope{vars: make(map[string]any)}
}

// Set binds name to v, replacing any previous binding.
func (s *Scope) Set(name string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vars[name] = v
}

func (s *Scope) Get(name string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vars[name]
	return v, ok
}

func (s *Scope) Delete(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.vars, name)
}

// Names returns the bound names in sorted order.
func (s *Scope) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.vars))
}

func (s *Scope) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vars)
}

// Snapshot returns a shallow copy of the bindings.
func (s *Scope) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.vars)
}
