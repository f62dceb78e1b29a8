package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/caffeineduck/goru/executor"
)

// mockExecutor runs registered Go functions. Fragments are recorded;
// "fail" fails and "panic" panics. Expressions name scope variables, or
// "None".
type mockExecutor struct {
	funcs map[string]func(args []any) (any, error)
	files map[string]string
	runs  []string
}

type mockFunc string

func (f mockFunc) Name() string { return string(f) }

func newMockExecutor() *mockExecutor {
	return &mockExecutor{
		funcs: map[string]func(args []any) (any, error){
			"echo": func(args []any) (any, error) { return args, nil },
			"add": func(args []any) (any, error) {
				var sum int64
				for _, a := range args {
					sum += a.(int64)
				}
				return sum, nil
			},
			"boom": func(args []any) (any, error) { panic("boom") },
			"opaque": func(args []any) (any, error) {
				return struct{}{}, nil
			},
		},
		files: map[string]string{},
	}
}

func (m *mockExecutor) Resolve(ctx context.Context, scope *executor.Scope, symbol string) (executor.Callable, error) {
	if _, ok := m.funcs[symbol]; !ok {
		return nil, fmt.Errorf("%w: %s", executor.ErrNameNotFound, symbol)
	}
	return mockFunc(symbol), nil
}

func (m *mockExecutor) Invoke(ctx context.Context, fn executor.Callable, args []any) (any, error) {
	return m.funcs[fn.Name()](args)
}

func (m *mockExecutor) RunFragment(ctx context.Context, scope *executor.Scope, name, code string) error {
	m.runs = append(m.runs, name+":"+code)
	switch code {
	case "fail":
		return errors.New("fragment failed")
	case "panic":
		panic("fragment panicked")
	}
	return nil
}

func (m *mockExecutor) EvalExpr(ctx context.Context, scope *executor.Scope, expr string) (any, error) {
	if expr == "None" {
		return nil, nil
	}
	v, ok := scope.Get(expr)
	if !ok {
		return nil, fmt.Errorf("%w: %s", executor.ErrNameNotFound, expr)
	}
	return v, nil
}

func (m *mockExecutor) ReadFragment(ctx context.Context, path string) (string, error) {
	code, ok := m.files[path]
	if !ok {
		return "", errors.New("file not found: " + path)
	}
	return code, nil
}

// trackedReader counts Close calls.
type trackedReader struct {
	*strings.Reader
	closes atomic.Int32
}

func newTrackedReader(lines ...string) *trackedReader {
	return &trackedReader{Reader: strings.NewReader(strings.Join(lines, ""))}
}

func (r *trackedReader) Close() error {
	r.closes.Add(1)
	return nil
}

// trackedWriter records output and counts Close calls.
type trackedWriter struct {
	bytes.Buffer
	closes atomic.Int32
}

func (w *trackedWriter) Close() error {
	w.closes.Add(1)
	return nil
}

func (w *trackedWriter) Lines() []string {
	s := strings.TrimSuffix(w.String(), "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
