package executor

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"strings"

	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/caffeineduck/goru/hostfunc"
)

// Starlark is an Executor backed by the Starlark interpreter. Host
// functions of its registry are predeclared in every fragment and are valid
// call targets.
type Starlark struct {
	cfg      config
	registry *hostfunc.Registry
	fs       *hostfunc.FS
	builtins starlark.StringDict
	opts     *syntax.FileOptions
}

var _ Executor = (*Starlark)(nil)

// NewStarlark creates a Starlark executor.
func NewStarlark(opts ...Option) *Starlark {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	registry := cfg.registry
	if registry == nil {
		registry = hostfunc.NewRegistry()
	}
	fs := registerHostFunctions(registry, &cfg)

	return &Starlark{
		cfg:      cfg,
		registry: registry,
		fs:       fs,
		builtins: predeclared(registry),
		opts: &syntax.FileOptions{
			Set:             true,
			While:           true,
			TopLevelControl: true,
			GlobalReassign:  true,
			Recursion:       true,
		},
	}
}

// Registry returns the host functions visible to code.
func (s *Starlark) Registry() *hostfunc.Registry {
	return s.registry
}

func (s *Starlark) Resolve(ctx context.Context, scope *Scope, symbol string) (Callable, error) {
	v, err := s.eval(ctx, scope, symbol)
	if err != nil {
		return nil, err
	}
	fn, ok := v.(starlark.Callable)
	if !ok {
		return nil, fmt.Errorf("%s is not callable (got %s)", symbol, v.Type())
	}
	return fn, nil
}

func (s *Starlark) Invoke(ctx context.Context, fn Callable, args []any) (any, error) {
	callable, ok := fn.(starlark.Callable)
	if !ok {
		return nil, fmt.Errorf("cannot invoke %T", fn)
	}

	sargs := make(starlark.Tuple, len(args))
	for i, a := range args {
		v, err := toStarlark(a)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		sargs[i] = v
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	thread, done := s.newThread(ctx, callable.Name())
	defer done()

	v, err := starlark.Call(thread, callable, sargs, nil)
	if err != nil {
		return nil, s.wrap(err)
	}
	return Result{Value: v}, nil
}

// RunFragment executes code at top level. Bindings made by the fragment,
// including those made before a runtime error, are written back to scope.
func (s *Starlark) RunFragment(ctx context.Context, scope *Scope, name, code string) error {
	f, err := s.opts.Parse(name, code, 0)
	if err != nil {
		return err
	}
	globals, err := s.globals(scope)
	if err != nil {
		return err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	thread, done := s.newThread(ctx, name)
	defer done()

	err = starlark.ExecREPLChunk(f, thread, globals)
	s.writeBack(scope, globals)
	if err != nil {
		return s.wrap(err)
	}
	return nil
}

func (s *Starlark) EvalExpr(ctx context.Context, scope *Scope, expr string) (any, error) {
	v, err := s.eval(ctx, scope, expr)
	if err != nil {
		return nil, err
	}
	return Result{Value: v}, nil
}

// ReadFragment reads through the mount table when mounts are configured,
// otherwise from the host filesystem.
func (s *Starlark) ReadFragment(ctx context.Context, path string) (string, error) {
	if s.fs != nil {
		data, err := s.fs.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", path, err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (s *Starlark) eval(ctx context.Context, scope *Scope, expr string) (starlark.Value, error) {
	env, err := s.globals(scope)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	thread, done := s.newThread(ctx, "<expr>")
	defer done()

	v, err := starlark.EvalOptions(s.opts, thread, "<expr>", expr, env)
	if err != nil {
		return nil, s.wrap(err)
	}
	return v, nil
}

// globals merges the builtins with the scope. Scope bindings shadow
// builtins.
func (s *Starlark) globals(scope *Scope) (starlark.StringDict, error) {
	vars := scope.Snapshot()
	g := make(starlark.StringDict, len(s.builtins)+len(vars))
	maps.Copy(g, s.builtins)
	for name, v := range vars {
		sv, err := toStarlark(v)
		if err != nil {
			return nil, fmt.Errorf("variable %s: %w", name, err)
		}
		g[name] = sv
	}
	return g, nil
}

func (s *Starlark) writeBack(scope *Scope, globals starlark.StringDict) {
	for name, v := range globals {
		if b, ok := v.(*starlark.Builtin); ok && s.builtins[name] == starlark.Value(b) {
			continue
		}
		scope.Set(name, v)
	}
}

func (s *Starlark) newThread(ctx context.Context, name string) (*starlark.Thread, func()) {
	thread := &starlark.Thread{
		Name: name,
		Print: func(_ *starlark.Thread, msg string) {
			fmt.Fprintln(s.cfg.print, msg)
		},
	}
	thread.SetLocal(contextKey, ctx)
	if s.cfg.maxSteps > 0 {
		thread.SetMaxExecutionSteps(s.cfg.maxSteps)
	}
	stop := context.AfterFunc(ctx, func() {
		thread.Cancel(context.Cause(ctx).Error())
	})
	return thread, func() { stop() }
}

func (s *Starlark) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.timeout > 0 {
		return context.WithTimeout(ctx, s.cfg.timeout)
	}
	return ctx, func() {}
}

// wrap marks unresolved names with ErrNameNotFound and logs interpreter
// backtraces.
func (s *Starlark) wrap(err error) error {
	var list resolve.ErrorList
	if errors.As(err, &list) {
		for _, e := range list {
			if strings.HasPrefix(e.Msg, "undefined: ") {
				return fmt.Errorf("%w: %w", ErrNameNotFound, err)
			}
		}
		return err
	}

	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		s.cfg.logger.Debug("starlark error", "backtrace", evalErr.Backtrace())
	}
	return err
}
