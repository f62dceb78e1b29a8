package executor

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"go.starlark.net/starlark"

	"github.com/caffeineduck/goru/hostfunc"
	"github.com/caffeineduck/goru/wire"
)

// native lowers an executor result the way the worker's encoder does.
func native(t *testing.T, v any) any {
	t.Helper()
	enc, ok := v.(wire.Encoder)
	if !ok {
		return v
	}
	n, err := enc.EncodeWire()
	if err != nil {
		t.Fatalf("EncodeWire: %v", err)
	}
	return n
}

func eval(t *testing.T, e *Starlark, scope *Scope, expr string) any {
	t.Helper()
	v, err := e.EvalExpr(context.Background(), scope, expr)
	if err != nil {
		t.Fatalf("EvalExpr(%q): %v", expr, err)
	}
	return native(t, v)
}

func run(t *testing.T, e *Starlark, scope *Scope, code string) {
	t.Helper()
	if err := e.RunFragment(context.Background(), scope, "<exec>", code); err != nil {
		t.Fatalf("RunFragment: %v", err)
	}
}

func TestRunFragmentPersistsState(t *testing.T) {
	e := NewStarlark()
	scope := NewScope()

	run(t, e, scope, "x = 1")
	run(t, e, scope, "x = x + 1\ny = [x, x]")

	if got := eval(t, e, scope, "x"); got != int64(2) {
		t.Errorf("x = %v, want 2", got)
	}
	if got := eval(t, e, scope, "y"); !reflect.DeepEqual(got, []any{int64(2), int64(2)}) {
		t.Errorf("y = %v", got)
	}
}

func TestSetVarsThenExec(t *testing.T) {
	e := NewStarlark()
	scope := NewScope()
	scope.Set("a", int64(1))
	scope.Set("b", int64(2))
	scope.Set("c", int64(3))

	run(t, e, scope, "s = a + b + c")
	if got := eval(t, e, scope, "s"); got != int64(6) {
		t.Errorf("s = %v, want 6", got)
	}
}

func TestTopLevelControlFlow(t *testing.T) {
	e := NewStarlark()
	scope := NewScope()

	run(t, e, scope, `
total = 0
for i in range(5):
    if i % 2 == 0:
        total += i
n = 0
while n < 3:
    n += 1
`)
	if got := eval(t, e, scope, "(total, n)"); !reflect.DeepEqual(got, []any{int64(6), int64(3)}) {
		t.Errorf("got %v", got)
	}
}

func TestEvalResults(t *testing.T) {
	e := NewStarlark()
	scope := NewScope()

	tests := []struct {
		expr string
		want any
	}{
		{"None", nil},
		{"1 + 2", int64(3)},
		{"1.5 * 2", 3.0},
		{"'a' + 'b'", "ab"},
		{"True", true},
		{"[1, 2.5, 'x', None]", []any{int64(1), 2.5, "x", nil}},
		{"(1, 2)", []any{int64(1), int64(2)}},
		{`{"a": {"b": [1]}}`, map[string]any{"a": map[string]any{"b": []any{int64(1)}}}},
	}
	for _, tc := range tests {
		t.Run(tc.expr, func(t *testing.T) {
			if got := eval(t, e, scope, tc.expr); !reflect.DeepEqual(got, tc.want) {
				t.Errorf("got %#v, want %#v", got, tc.want)
			}
		})
	}
}

func TestResultsThatCannotBeEncoded(t *testing.T) {
	e := NewStarlark()
	scope := NewScope()
	run(t, e, scope, "def f():\n    pass\n")

	for _, expr := range []string{"{1: 2}", "f", "1 << 70", "set([1])"} {
		t.Run(expr, func(t *testing.T) {
			v, err := e.EvalExpr(context.Background(), scope, expr)
			if err != nil {
				t.Fatalf("EvalExpr: %v", err)
			}
			_, err = wire.Encode(v)
			var encErr *wire.EncodeError
			if !errors.As(err, &encErr) {
				t.Errorf("expected *wire.EncodeError, got %v", err)
			}
		})
	}
}

func TestResolveDefinedFunction(t *testing.T) {
	e := NewStarlark()
	scope := NewScope()
	run(t, e, scope, "def add(a, b):\n    return a + b\n")

	ctx := context.Background()
	fn, err := e.Resolve(ctx, scope, "add")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	res, err := e.Invoke(ctx, fn, []any{int64(2), 3.5})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if got := native(t, res); got != 5.5 {
		t.Errorf("add(2, 3.5) = %v", got)
	}
}

func TestResolveExpression(t *testing.T) {
	e := NewStarlark()
	ctx := context.Background()

	fn, err := e.Resolve(ctx, NewScope(), "lambda x: x * 2")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	res, err := e.Invoke(ctx, fn, []any{int64(21)})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if got := native(t, res); got != int64(42) {
		t.Errorf("got %v, want 42", got)
	}
}

func TestResolveUnknownName(t *testing.T) {
	e := NewStarlark()
	_, err := e.Resolve(context.Background(), NewScope(), "missing")
	if !errors.Is(err, ErrNameNotFound) {
		t.Errorf("expected ErrNameNotFound, got %v", err)
	}
}

func TestResolveNotCallable(t *testing.T) {
	e := NewStarlark()
	scope := NewScope()
	scope.Set("x", int64(1))

	_, err := e.Resolve(context.Background(), scope, "x")
	if err == nil || errors.Is(err, ErrNameNotFound) {
		t.Errorf("expected not callable error, got %v", err)
	}
}

func TestEvalUnknownName(t *testing.T) {
	e := NewStarlark()
	_, err := e.EvalExpr(context.Background(), NewScope(), "y + 1")
	if !errors.Is(err, ErrNameNotFound) {
		t.Errorf("expected ErrNameNotFound, got %v", err)
	}
	err = e.RunFragment(context.Background(), NewScope(), "<exec>", "z = y")
	if !errors.Is(err, ErrNameNotFound) {
		t.Errorf("expected ErrNameNotFound from fragment, got %v", err)
	}
}

func TestRunFragmentSyntaxError(t *testing.T) {
	e := NewStarlark()
	if err := e.RunFragment(context.Background(), NewScope(), "<exec>", "x = = 1"); err == nil {
		t.Error("expected syntax error")
	}
}

func TestRunFragmentErrorKeepsEarlierBindings(t *testing.T) {
	e := NewStarlark()
	scope := NewScope()

	err := e.RunFragment(context.Background(), scope, "<exec>", "a = 1\nb = 1 // 0\n")
	if err == nil || !strings.Contains(err.Error(), "division by zero") {
		t.Fatalf("expected division error, got %v", err)
	}
	v, ok := scope.Get("a")
	if !ok {
		t.Fatal("a should be bound")
	}
	if n, _ := v.(starlark.Int).Int64(); n != 1 {
		t.Errorf("a = %v", v)
	}
}

func TestBuiltinsNotWrittenToScope(t *testing.T) {
	e := NewStarlark(WithKV(hostfunc.DefaultKVConfig()))
	scope := NewScope()
	run(t, e, scope, "x = 1")

	if got := scope.Names(); !reflect.DeepEqual(got, []string{"x"}) {
		t.Errorf("scope names = %v, want [x]", got)
	}

	// Rebinding a builtin name is a scope binding.
	run(t, e, scope, "kv_get = 5")
	if _, ok := scope.Get("kv_get"); !ok {
		t.Error("rebound builtin should be in scope")
	}
}

func TestHostFunctions(t *testing.T) {
	e := NewStarlark(WithKV(hostfunc.DefaultKVConfig()))
	scope := NewScope()
	ctx := context.Background()

	run(t, e, scope, `kv_set("k", [1, 2])`)

	fn, err := e.Resolve(ctx, scope, "kv_get")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	res, err := e.Invoke(ctx, fn, []any{"k"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if got := native(t, res); !reflect.DeepEqual(got, []any{int64(1), int64(2)}) {
		t.Errorf("kv_get(k) = %v", got)
	}

	if got := eval(t, e, scope, "kv_keys()"); !reflect.DeepEqual(got, []any{"k"}) {
		t.Errorf("kv_keys() = %v", got)
	}
}

func TestHostFunctionErrors(t *testing.T) {
	e := NewStarlark(WithKV(hostfunc.DefaultKVConfig()))
	ctx := context.Background()

	if _, err := e.EvalExpr(ctx, NewScope(), `kv_get(key="k")`); err == nil {
		t.Error("expected keyword arguments to be rejected")
	}
	if _, err := e.EvalExpr(ctx, NewScope(), `kv_get(1)`); err == nil {
		t.Error("expected host function error")
	}
}

func TestCustomRegistry(t *testing.T) {
	r := hostfunc.NewRegistry()
	r.Register("double", func(ctx context.Context, args []any) (any, error) {
		return args[0].(int64) * 2, nil
	})
	e := NewStarlark(WithRegistry(r))

	if got := eval(t, e, NewScope(), "double(21)"); got != int64(42) {
		t.Errorf("double(21) = %v", got)
	}
	if _, ok := e.Registry().Get("time_now"); !ok {
		t.Error("time_now should be added to the registry")
	}
}

func TestTimeNow(t *testing.T) {
	e := NewStarlark()
	got, ok := eval(t, e, NewScope(), "time_now()").(float64)
	if !ok || got < float64(time.Now().Add(-time.Minute).Unix()) {
		t.Errorf("time_now() = %v", got)
	}
}

func TestPrintWriter(t *testing.T) {
	var buf bytes.Buffer
	e := NewStarlark(WithPrintWriter(&buf))
	run(t, e, NewScope(), `print("hello", 1)`)

	if buf.String() != "hello 1\n" {
		t.Errorf("printed %q", buf.String())
	}
}

func TestMaxSteps(t *testing.T) {
	e := NewStarlark(WithMaxSteps(1000))
	err := e.RunFragment(context.Background(), NewScope(), "<exec>", "x = 0\nwhile True:\n    x += 1\n")
	if err == nil || !strings.Contains(err.Error(), "too many steps") {
		t.Errorf("expected step limit error, got %v", err)
	}
}

func TestContextCancellation(t *testing.T) {
	e := NewStarlark()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := e.RunFragment(ctx, NewScope(), "<exec>", "while True:\n    pass\n")
	if err == nil || !strings.Contains(err.Error(), "cancel") {
		t.Errorf("expected cancellation, got %v", err)
	}
}

func TestTimeout(t *testing.T) {
	e := NewStarlark(WithTimeout(20 * time.Millisecond))
	err := e.RunFragment(context.Background(), NewScope(), "<exec>", "while True:\n    pass\n")
	if err == nil || !strings.Contains(err.Error(), "deadline") {
		t.Error("expected timeout")
	}
}

func TestReadFragmentHostFS(t *testing.T) {
	path := filepath.Join(t.TempDir(), "init.star")
	os.WriteFile(path, []byte("x = 1\n"), 0644)

	e := NewStarlark()
	code, err := e.ReadFragment(context.Background(), path)
	if err != nil || code != "x = 1\n" {
		t.Errorf("ReadFragment = %q, %v", code, err)
	}
	if _, err := e.ReadFragment(context.Background(), path+".missing"); err == nil {
		t.Error("expected missing file error")
	}
}

func TestReadFragmentThroughMounts(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "init.star"), []byte("y = 2\n"), 0644)

	e := NewStarlark(WithMount("/scripts", dir, hostfunc.MountReadOnly))
	code, err := e.ReadFragment(context.Background(), "/scripts/init.star")
	if err != nil || code != "y = 2\n" {
		t.Errorf("ReadFragment = %q, %v", code, err)
	}
	if _, err := e.ReadFragment(context.Background(), filepath.Join(dir, "init.star")); err == nil {
		t.Error("host paths outside the mounts should be rejected")
	}

	if got := eval(t, e, NewScope(), `fs_read("/scripts/init.star")`); got != "y = 2\n" {
		t.Errorf("fs_read = %v", got)
	}
}

func TestScopeNDArray(t *testing.T) {
	e := NewStarlark()
	scope := NewScope()
	arr := wire.MustNDArray([]float64{1, 2, 3})
	scope.Set("a", arr)

	if got := eval(t, e, scope, "a.shape"); !reflect.DeepEqual(got, []any{int64(3)}) {
		t.Errorf("a.shape = %v", got)
	}
	got, ok := eval(t, e, scope, "a").(*wire.NDArray)
	if !ok || !got.Equal(arr) {
		t.Errorf("a = %v", got)
	}
}
