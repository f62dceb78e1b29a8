// Package worker implements the command loop of a bridge worker.
//
// A controller writes one JSON command per line to the worker's input:
//
//	["call", symbol, params]
//	["set_vars", [names...], params]
//	["exec", code, result_expr]
//	["exec_file", path]
//	EXIT
//
// params is a list-tagged wire value. Each command except EXIT is answered
// with exactly one line holding a tagged wire value; set_vars and exec_file
// answer null. EXIT or end of input ends the session quietly.
//
// There is no error envelope. Any failure (a malformed line, a value that
// cannot be decoded or encoded, an executor error) ends the loop, and Serve
// returns it. Both streams are closed exactly once on every path, so the
// controller observes end of stream.
//
//	w := worker.New(executor.NewStarlark(), worker.WithLogger(logger))
//	if err := w.Serve(ctx, os.Stdin, os.Stdout); err != nil {
//	    logger.Error("worker failed", "error", err)
//	    os.Exit(1)
//	}
package worker
