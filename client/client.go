// Package client drives a worker from the controller side of the pipe.
//
// A Client encodes commands, writes them one per line and decodes the
// single response line each command produces. It holds at most one request
// in flight.
//
//	c, err := client.Spawn(ctx, "goru", "serve")
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//
//	c.SetVars(ctx, []string{"x"}, 41)
//	v, err := c.Eval(ctx, "x + 1") // int64(42)
package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/caffeineduck/goru/wire"
)

var ErrClosed = errors.New("client closed")

// Client is the controller end of a worker session. Methods are safe for
// concurrent use; requests are serialized.
type Client struct {
	r *bufio.Reader
	w io.WriteCloser

	rc  io.Closer
	cmd *exec.Cmd

	mu     sync.Mutex
	closed bool
	err    error // sticky transport failure
}

// New creates a Client reading responses from r and writing commands to w.
func New(r io.ReadCloser, w io.WriteCloser) *Client {
	return &Client{r: bufio.NewReader(r), w: w, rc: r}
}

// Spawn starts a worker process and connects to its stdin and stdout. The
// worker's stderr is passed through.
func Spawn(ctx context.Context, name string, args ...string) (*Client, error) {
	return Start(exec.CommandContext(ctx, name, args...))
}

// Start runs cmd and connects to its stdin and stdout. cmd.Stdin and
// cmd.Stdout must be unset.
func Start(cmd *exec.Cmd) (*Client, error) {
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker: %w", err)
	}

	c := New(stdout, stdin)
	c.cmd = cmd
	return c, nil
}

// Call invokes symbol with positional arguments and returns the decoded
// result.
func (c *Client) Call(ctx context.Context, symbol string, args ...any) (any, error) {
	params, err := wire.EncodeArgs(args...)
	if err != nil {
		return nil, err
	}
	return c.roundTrip(ctx, "call", symbol, params)
}

// SetVars binds names to values in the worker's scope.
func (c *Client) SetVars(ctx context.Context, names []string, values ...any) error {
	if len(names) != len(values) {
		return fmt.Errorf("set_vars: %d names but %d values", len(names), len(values))
	}
	params, err := wire.EncodeArgs(values...)
	if err != nil {
		return err
	}
	if names == nil {
		names = []string{}
	}
	_, err = c.roundTrip(ctx, "set_vars", names, params)
	return err
}

// Exec runs code and then evaluates resultExpr.
func (c *Client) Exec(ctx context.Context, code, resultExpr string) (any, error) {
	return c.roundTrip(ctx, "exec", code, resultExpr)
}

// Eval evaluates a single expression.
func (c *Client) Eval(ctx context.Context, expr string) (any, error) {
	return c.Exec(ctx, "None", expr)
}

// ExecFile runs the code file at path on the worker side.
func (c *Client) ExecFile(ctx context.Context, path string) error {
	_, err := c.roundTrip(ctx, "exec_file", path)
	return err
}

func (c *Client) roundTrip(ctx context.Context, kind string, args ...any) (any, error) {
	line, err := json.Marshal(append([]any{kind}, args...))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", kind, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if c.err != nil {
		return nil, c.err
	}

	stop := context.AfterFunc(ctx, c.abort)
	defer stop()

	if _, err := c.w.Write(append(line, '\n')); err != nil {
		return nil, c.fail(ctx, fmt.Errorf("send %s: %w", kind, err))
	}
	resp, err := c.r.ReadBytes('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, c.fail(ctx, fmt.Errorf("read %s response: %w", kind, err))
	}

	v, err := wire.ParseValue(resp)
	if err != nil {
		return nil, c.fail(ctx, err)
	}
	return wire.DecodeResult(v)
}

// fail records a transport failure. The session cannot recover from one:
// the worker has exited or the stream is out of step.
func (c *Client) fail(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		err = context.Cause(ctx)
	}
	c.err = err
	return err
}

// abort unblocks a pending request by closing both streams.
func (c *Client) abort() {
	c.w.Close()
	c.rc.Close()
}

// Close ends the session: it sends EXIT, closes the streams and, for a
// spawned worker, waits for the process to exit.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	var errs []error
	if c.err == nil {
		if _, err := io.WriteString(c.w, "EXIT\n"); err != nil {
			errs = append(errs, fmt.Errorf("send EXIT: %w", err))
		}
	}
	if err := c.w.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		errs = append(errs, err)
	}
	if c.cmd != nil {
		// Wait closes stdout.
		if err := c.cmd.Wait(); err != nil && c.err == nil {
			errs = append(errs, fmt.Errorf("worker: %w", err))
		}
	} else if err := c.rc.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
