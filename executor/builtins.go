package executor

import (
	"context"
	"fmt"
	"time"

	"go.starlark.net/starlark"

	"github.com/caffeineduck/goru/hostfunc"
)

const contextKey = "context"

// registerHostFunctions adds the capabilities enabled in cfg to r.
func registerHostFunctions(r *hostfunc.Registry, cfg *config) *hostfunc.FS {
	r.Register("time_now", func(ctx context.Context, args []any) (any, error) {
		return float64(time.Now().UnixNano()) / 1e9, nil
	})

	if cfg.kvEnabled {
		hostfunc.NewKV(cfg.kvConfig).Register(r)
	}

	if len(cfg.httpConfig.AllowedHosts) > 0 {
		hostfunc.NewHTTP(cfg.httpConfig).Register(r)
	}

	if len(cfg.mounts) > 0 {
		fs := hostfunc.NewFS(cfg.mounts, cfg.fsOptions...)
		fs.Register(r)
		return fs
	}
	return nil
}

// hostBuiltin adapts a host function to a Starlark builtin. Arguments are
// converted to native values and the thread's context is passed through.
func hostBuiltin(name string, fn hostfunc.Func) *starlark.Builtin {
	return starlark.NewBuiltin(name, func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if len(kwargs) > 0 {
			return nil, fmt.Errorf("%s: unexpected keyword argument %s", name, kwargs[0][0])
		}
		native := make([]any, len(args))
		for i, a := range args {
			v, err := fromStarlark(a)
			if err != nil {
				return nil, fmt.Errorf("%s: argument %d: %w", name, i, err)
			}
			native[i] = v
		}

		ctx, _ := thread.Local(contextKey).(context.Context)
		if ctx == nil {
			ctx = context.Background()
		}
		res, err := fn(ctx, native)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return toStarlark(res)
	})
}

// predeclared builds the builtin environment from the registry plus the
// array constructors.
func predeclared(r *hostfunc.Registry) starlark.StringDict {
	env := starlark.StringDict{
		"array": starlark.NewBuiltin("array", arrayBuiltin),
		"zeros": starlark.NewBuiltin("zeros", zerosBuiltin),
	}
	for _, name := range r.List() {
		fn, _ := r.Get(name)
		env[name] = hostBuiltin(name, fn)
	}
	return env
}
