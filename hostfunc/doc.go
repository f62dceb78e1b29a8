// Package hostfunc provides the Go functions a worker can expose to its
// controller and to executed code.
//
// Host functions take and return native wire values (see package wire):
// int64, float64, string, []any, map[string]any and *wire.NDArray. They are
// looked up by name, so the "call" command can reach them directly and code
// fragments can call them as predeclared functions.
//
// # Registry
//
// The [Registry] manages available host functions:
//
//	registry := hostfunc.NewRegistry()
//	registry.Register("add", func(ctx context.Context, args []any) (any, error) {
//	    return args[0].(int64) + args[1].(int64), nil
//	})
//
// # Built-in Capabilities
//
// Key-Value Store: in-memory storage shared by every command via [KV].
//
//	hostfunc.NewKV(hostfunc.DefaultKVConfig()).Register(registry)
//
// Filesystem: mount-based access via [FS], [Mount], and [MountMode].
//
//	fs := hostfunc.NewFS([]hostfunc.Mount{
//	    {VirtualPath: "/data", HostPath: "./input", Mode: hostfunc.MountReadOnly},
//	})
//	fs.Register(registry)
//
// HTTP: controlled network access via [HTTP] and [HTTPConfig].
//
//	hostfunc.NewHTTP(hostfunc.HTTPConfig{
//	    AllowedHosts: []string{"api.example.com"},
//	}).Register(registry)
//
// WebAssembly: numeric exports of a module via [WasmModule].
//
//	mod, _ := hostfunc.LoadWasmFile(ctx, "kernels.wasm")
//	defer mod.Close(ctx)
//	mod.Register(registry, "wasm_")
//
// # Security Model
//
// Nothing is reachable unless registered:
//   - HTTP requests are limited to explicitly allowed hosts
//   - Filesystem access is restricted to mounted paths with specific permissions
//   - KV keys and entry counts are bounded
package hostfunc
