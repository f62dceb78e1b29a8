// Package executor provides the code execution engine behind a worker.
//
// # Overview
//
// An [Executor] resolves call targets, runs code fragments and evaluates
// expressions against a [Scope], the global namespace shared by every
// command of a session. The worker owns the scope; executors only read and
// write it.
//
// The shipped implementation, [Starlark], embeds the Starlark interpreter.
// Fragments run at top level with if/for/while and global reassignment
// enabled, so state builds up across commands:
//
//	exec := executor.NewStarlark(executor.WithKV(hostfunc.DefaultKVConfig()))
//	scope := executor.NewScope()
//
//	exec.RunFragment(ctx, scope, "<exec>", "x = 41")
//	v, _ := exec.EvalExpr(ctx, scope, "x + 1") // Result{42}
//
// Results are returned as [Result] values, which implement wire.Encoder so
// that conversion failures surface when the response is encoded.
//
// # Capabilities
//
// Host functions from a hostfunc.Registry are predeclared in every fragment
// and can be called directly. time_now is always available; the KV store,
// HTTP and mounted filesystem are enabled explicitly:
//
//	exec := executor.NewStarlark(
//	    executor.WithRegistry(registry),
//	    executor.WithAllowedHosts([]string{"api.example.com"}),
//	    executor.WithMount("/data", "./input", hostfunc.MountReadOnly),
//	    executor.WithMaxSteps(1_000_000),
//	)
//
// The array and zeros builtins build ndarray values that travel to the wire
// unchanged.
package executor
