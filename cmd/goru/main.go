// Command goru runs a Starlark bridge worker. "goru serve" answers
// line-delimited JSON commands on stdin with wire values on stdout.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
