package executor

import (
	"context"
	"errors"
)

// ErrNameNotFound is returned when a symbol or expression refers to a name
// that is bound neither in the scope nor as a builtin.
var ErrNameNotFound = errors.New("name not found")

// Callable is a resolved call target. It is only meaningful to the
// Executor that produced it.
type Callable interface {
	Name() string
}

// Executor runs code fragments and calls on behalf of a worker. Every
// method is invoked from a single goroutine; scope is owned by the caller.
//
// Values crossing this interface are native wire values (nil, int64,
// float64, string, []any, map[string]any, *wire.NDArray) or values
// implementing wire.Encoder.
type Executor interface {
	// Resolve looks symbol up in scope and returns something Invoke can
	// call. Unknown names wrap ErrNameNotFound.
	Resolve(ctx context.Context, scope *Scope, symbol string) (Callable, error)

	// Invoke calls fn with positional arguments.
	Invoke(ctx context.Context, fn Callable, args []any) (any, error)

	// RunFragment executes code for its effect on scope. name identifies
	// the fragment in error messages.
	RunFragment(ctx context.Context, scope *Scope, name, code string) error

	// EvalExpr evaluates a single expression against scope.
	EvalExpr(ctx context.Context, scope *Scope, expr string) (any, error)

	// ReadFragment loads the source of a code file.
	ReadFragment(ctx context.Context, path string) (string, error)
}
