package hostfunc

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// Func is a host function callable by name from the worker. Arguments and
// the result are native values as produced by the wire codec.
type Func func(ctx context.Context, args []any) (any, error)

type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

func (r *Registry) Register(name string, fn Func) {
	r.mu.Lock()
	r.funcs[name] = fn
	r.mu.Unlock()
}

func (r *Registry) Get(name string) (Func, bool) {
	r.mu.RLock()
	fn, ok := r.funcs[name]
	r.mu.RUnlock()
	return fn, ok
}

// List returns the registered names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Merge copies every function of other into r, replacing same-named entries.
func (r *Registry) Merge(other *Registry) {
	if other == nil {
		return
	}
	for _, name := range other.List() {
		fn, _ := other.Get(name)
		r.Register(name, fn)
	}
}

func stringArg(args []any, i int, name string) (string, error) {
	if i >= len(args) {
		return "", fmt.Errorf("%s required", name)
	}
	s, ok := args[i].(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string, got %T", name, args[i])
	}
	return s, nil
}

func checkArity(args []any, min, max int) error {
	if len(args) < min || len(args) > max {
		if min == max {
			return fmt.Errorf("expected %d arguments, got %d", min, len(args))
		}
		return fmt.Errorf("expected %d to %d arguments, got %d", min, max, len(args))
	}
	return nil
}
