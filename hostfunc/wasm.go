package hostfunc

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

var ErrNoSuchExport = errors.New("no such export")

// WasmOption configures LoadWasm.
type WasmOption func(*wasmConfig)

type wasmConfig struct {
	diskCache        bool
	cacheDir         string
	memoryLimitPages uint32 // Max memory pages (each page = 64KB), 0 = default (4GB)
}

// WithWasmDiskCache enables a persistent compilation cache. Without a
// directory it uses ~/.cache/goru or XDG_CACHE_HOME/goru.
func WithWasmDiskCache(dir ...string) WasmOption {
	return func(c *wasmConfig) {
		c.diskCache = true
		if len(dir) > 0 && dir[0] != "" {
			c.cacheDir = dir[0]
		}
	}
}

// WithWasmMemoryLimit caps module memory at pages × 64KB.
func WithWasmMemoryLimit(pages uint32) WasmOption {
	return func(c *wasmConfig) {
		c.memoryLimitPages = pages
	}
}

// WasmModule exposes the numeric function exports of a WebAssembly module
// as host functions. Calls into one instance are serialized.
type WasmModule struct {
	runtime wazero.Runtime
	cache   wazero.CompilationCache
	module  api.Module
	defs    map[string]api.FunctionDefinition

	mu     sync.Mutex
	closed bool
}

// LoadWasmFile reads and instantiates the module at path.
func LoadWasmFile(ctx context.Context, path string, opts ...WasmOption) (*WasmModule, error) {
	bin, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read wasm module: %w", err)
	}
	return LoadWasm(ctx, bin, opts...)
}

// LoadWasm compiles and instantiates a module. WASI is available to the
// module; a reactor's _initialize export runs at instantiation.
func LoadWasm(ctx context.Context, bin []byte, opts ...WasmOption) (*WasmModule, error) {
	var cfg wasmConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	var cache wazero.CompilationCache
	if cfg.diskCache {
		cacheDir := cfg.cacheDir
		if cacheDir == "" {
			cacheDir = DefaultCacheDir()
		}
		var err error
		cache, err = wazero.NewCompilationCacheWithDir(cacheDir)
		if err != nil {
			return nil, fmt.Errorf("create disk cache: %w", err)
		}
	}

	rtConfig := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if cache != nil {
		rtConfig = rtConfig.WithCompilationCache(cache)
	}
	if cfg.memoryLimitPages > 0 {
		rtConfig = rtConfig.WithMemoryLimitPages(cfg.memoryLimitPages)
	}

	m := &WasmModule{
		runtime: wazero.NewRuntimeWithConfig(ctx, rtConfig),
		cache:   cache,
	}

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, m.runtime); err != nil {
		m.Close(ctx)
		return nil, fmt.Errorf("instantiate WASI: %w", err)
	}

	compiled, err := m.runtime.CompileModule(ctx, bin)
	if err != nil {
		m.Close(ctx)
		return nil, fmt.Errorf("compile wasm module: %w", err)
	}

	moduleConfig := wazero.NewModuleConfig().
		WithName("").
		WithStderr(os.Stderr).
		WithStartFunctions("_initialize")

	m.module, err = m.runtime.InstantiateModule(ctx, compiled, moduleConfig)
	if err != nil {
		m.Close(ctx)
		return nil, fmt.Errorf("instantiate wasm module: %w", err)
	}

	m.defs = make(map[string]api.FunctionDefinition)
	for name, def := range compiled.ExportedFunctions() {
		if numericSignature(def) {
			m.defs[name] = def
		}
	}
	return m, nil
}

// Exports returns the callable export names in sorted order.
func (m *WasmModule) Exports() []string {
	names := make([]string, 0, len(m.defs))
	for name := range m.defs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Register adds every callable export to r as prefix+name.
func (m *WasmModule) Register(r *Registry, prefix string) {
	for _, name := range m.Exports() {
		fn, _ := m.Func(name)
		r.Register(prefix+name, fn)
	}
}

// Func returns a host function calling the named export. Integer arguments
// feed i32/i64 parameters, numbers feed f32/f64 parameters. A single result
// is returned as a scalar, several as a list.
func (m *WasmModule) Func(name string) (Func, error) {
	def, ok := m.defs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchExport, name)
	}
	fn := m.module.ExportedFunction(name)
	params := def.ParamTypes()
	results := def.ResultTypes()

	return func(ctx context.Context, args []any) (any, error) {
		if len(args) != len(params) {
			return nil, fmt.Errorf("%s: expected %d arguments, got %d", name, len(params), len(args))
		}
		stack := make([]uint64, len(params))
		for i, t := range params {
			v, err := encodeWasmArg(t, args[i])
			if err != nil {
				return nil, fmt.Errorf("%s: argument %d: %w", name, i, err)
			}
			stack[i] = v
		}

		m.mu.Lock()
		defer m.mu.Unlock()
		if m.closed {
			return nil, fmt.Errorf("%s: module closed", name)
		}
		out, err := fn.Call(ctx, stack...)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}

		switch len(results) {
		case 0:
			return nil, nil
		case 1:
			return decodeWasmResult(results[0], out[0]), nil
		}
		list := make([]any, len(results))
		for i, t := range results {
			list[i] = decodeWasmResult(t, out[i])
		}
		return list, nil
	}, nil
}

// Close releases the runtime and the compilation cache.
func (m *WasmModule) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	var errs []error
	if err := m.runtime.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if m.cache != nil {
		if err := m.cache.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func numericSignature(def api.FunctionDefinition) bool {
	for _, t := range slices.Concat(def.ParamTypes(), def.ResultTypes()) {
		switch t {
		case api.ValueTypeI32, api.ValueTypeI64, api.ValueTypeF32, api.ValueTypeF64:
		default:
			return false
		}
	}
	return true
}

func encodeWasmArg(t api.ValueType, arg any) (uint64, error) {
	switch t {
	case api.ValueTypeI32:
		n, ok := arg.(int64)
		if !ok {
			return 0, fmt.Errorf("i32 parameter needs an int, got %T", arg)
		}
		if n < math.MinInt32 || n > math.MaxUint32 {
			return 0, fmt.Errorf("%d does not fit in i32", n)
		}
		return api.EncodeI32(int32(n)), nil
	case api.ValueTypeI64:
		n, ok := arg.(int64)
		if !ok {
			return 0, fmt.Errorf("i64 parameter needs an int, got %T", arg)
		}
		return api.EncodeI64(n), nil
	case api.ValueTypeF32:
		f, ok := toFloat(arg)
		if !ok {
			return 0, fmt.Errorf("f32 parameter needs a number, got %T", arg)
		}
		return api.EncodeF32(float32(f)), nil
	default:
		f, ok := toFloat(arg)
		if !ok {
			return 0, fmt.Errorf("f64 parameter needs a number, got %T", arg)
		}
		return api.EncodeF64(f), nil
	}
}

func decodeWasmResult(t api.ValueType, v uint64) any {
	switch t {
	case api.ValueTypeI32:
		return int64(api.DecodeI32(v))
	case api.ValueTypeI64:
		return int64(v)
	case api.ValueTypeF32:
		return float64(api.DecodeF32(v))
	default:
		return api.DecodeF64(v)
	}
}

func toFloat(arg any) (float64, bool) {
	switch x := arg.(type) {
	case float64:
		return x, true
	case int64:
		return float64(x), true
	}
	return 0, false
}

// DefaultCacheDir is the compilation cache used by WithWasmDiskCache without
// an explicit directory.
func DefaultCacheDir() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, "goru")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "goru")
	}
	return filepath.Join(os.TempDir(), "goru-cache")
}
