// Package goru is a request/response bridge worker for Starlark code.
//
// # Overview
//
// A controller process drives a worker over two byte streams. Each command
// is one line of JSON; each response is one line holding a class-tagged
// wire value. The first error terminates the worker.
//
//	["set_vars", ["a", "b"], {"class":"list","value":[...]}]
//	["exec", "s = a + b", "s"]
//	["call", "scale", {"class":"list","value":[...]}]
//	["exec_file", "/scripts/lib.star"]
//	EXIT
//
// # Basic Usage
//
//	exec := executor.NewStarlark(executor.WithKV(hostfunc.DefaultKVConfig()))
//	err := worker.New(exec).Serve(ctx, os.Stdin, os.Stdout)
//
// On the controller side:
//
//	c, _ := client.Spawn(ctx, "goru", "serve")
//	defer c.Close()
//	c.SetVars(ctx, []string{"x"}, wire.MustNDArray([]float32{1, 2, 3}, 3))
//	v, _ := c.Eval(ctx, "x.shape")
//
// See the [wire], [worker], [executor], [hostfunc] and [client] packages
// for detailed API documentation.
package goru
