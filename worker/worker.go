package worker

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/caffeineduck/goru/executor"
	"github.com/caffeineduck/goru/wire"
)

// State is the lifecycle state of a Worker.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateTerminated:
		return "terminated"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

var ErrAlreadyServed = errors.New("worker already served")

// Worker answers commands read from one stream with wire values written to
// another. A Worker serves a single session.
type Worker struct {
	exec  executor.Executor
	cfg   config
	state atomic.Int32
}

// New creates a Worker that runs commands on exec.
func New(exec executor.Executor, opts ...Option) *Worker {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Worker{exec: exec, cfg: cfg}
}

func (w *Worker) State() State {
	return State(w.state.Load())
}

// streams closes the input and output exactly once.
type streams struct {
	in   io.Closer
	out  io.Closer
	once sync.Once
	err  error
}

func (s *streams) close() error {
	s.once.Do(func() {
		s.err = errors.Join(s.in.Close(), s.out.Close())
	})
	return s.err
}

// Serve runs the command loop until the EXIT sentinel, end of input, or the
// first error. Every error is fatal: Serve stops and returns it. in and out
// are closed exactly once before Serve returns. Cancelling ctx closes both
// streams, which unblocks a pending read.
func (w *Worker) Serve(ctx context.Context, in io.ReadCloser, out io.WriteCloser) (err error) {
	if !w.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		in.Close()
		out.Close()
		return ErrAlreadyServed
	}

	s := &streams{in: in, out: out}
	stop := context.AfterFunc(ctx, func() { s.close() })

	log := w.cfg.logger
	reason := "error"
	commands := 0
	defer func() {
		stop()
		if r := recover(); r != nil {
			err = &ExecutorError{Op: "panic", Err: fmt.Errorf("%v", r)}
		}
		if cerr := s.close(); cerr != nil {
			log.Debug("close streams", "error", cerr)
		}
		w.state.Store(int32(StateTerminated))
		if err != nil {
			log.Error("worker failed", "commands", commands, "error", err)
			return
		}
		log.Info("worker terminated", "reason", reason, "commands", commands)
	}()

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, min(64*1024, w.cfg.maxLineSize)), w.cfg.maxLineSize)
	bw := bufio.NewWriter(out)
	scope := executor.NewScope()

	for _, f := range w.cfg.prelude {
		if err := w.exec.RunFragment(ctx, scope, f.name, f.code); err != nil {
			return &ExecutorError{Op: "prelude " + f.name, Err: err}
		}
	}

	for line := 1; ; line++ {
		if !scanner.Scan() {
			if serr := scanner.Err(); serr != nil {
				if ctx.Err() != nil {
					return context.Cause(ctx)
				}
				if errors.Is(serr, bufio.ErrTooLong) {
					return fmt.Errorf("line %d: %w", line, &FramingError{Msg: fmt.Sprintf("line exceeds %d bytes", w.cfg.maxLineSize), Err: serr})
				}
				return fmt.Errorf("line %d: read: %w", line, serr)
			}
			reason = "eof"
			return nil
		}

		text := scanner.Bytes()
		if strings.TrimSpace(string(text)) == Sentinel {
			reason = "exit"
			return nil
		}

		start := time.Now()
		cmd, err := ParseCommand(text)
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}

		result, err := w.dispatch(ctx, scope, cmd)
		if err != nil {
			return fmt.Errorf("line %d (%s): %w", line, cmd.Kind, err)
		}
		if err := writeResult(bw, result); err != nil {
			return fmt.Errorf("line %d (%s): %w", line, cmd.Kind, err)
		}

		commands++
		log.Debug("command", "line", line, "kind", cmd.Kind, "duration", time.Since(start))
	}
}

// dispatch runs one command. A panic raised by the executor becomes an
// ExecutorError so the loop reports it like any other command failure.
func (w *Worker) dispatch(ctx context.Context, scope *executor.Scope, cmd Command) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, &ExecutorError{Op: "panic", Err: fmt.Errorf("%v", r)}
		}
	}()

	switch cmd.Kind {
	case KindCall:
		fn, err := w.exec.Resolve(ctx, scope, cmd.Symbol)
		if err != nil {
			return nil, &ExecutorError{Op: "resolve " + cmd.Symbol, Err: err}
		}
		res, err := w.exec.Invoke(ctx, fn, cmd.Args)
		if err != nil {
			return nil, &ExecutorError{Op: "call " + cmd.Symbol, Err: err}
		}
		return res, nil

	case KindSetVars:
		for i, name := range cmd.Names {
			scope.Set(name, cmd.Args[i])
		}
		return nil, nil

	case KindExec:
		if err := w.exec.RunFragment(ctx, scope, "<exec>", cmd.Code); err != nil {
			return nil, &ExecutorError{Op: "exec", Err: err}
		}
		res, err := w.exec.EvalExpr(ctx, scope, cmd.Expr)
		if err != nil {
			return nil, &ExecutorError{Op: "eval", Err: err}
		}
		return res, nil

	case KindExecFile:
		code, err := w.exec.ReadFragment(ctx, cmd.Path)
		if err != nil {
			return nil, &ExecutorError{Op: "read " + cmd.Path, Err: err}
		}
		if err := w.exec.RunFragment(ctx, scope, cmd.Path, code); err != nil {
			return nil, &ExecutorError{Op: "exec_file " + cmd.Path, Err: err}
		}
		return nil, nil
	}
	return nil, framingErrorf("unknown command: %q", cmd.Kind)
}

// writeResult encodes v as one line and flushes it.
func writeResult(bw *bufio.Writer, v any) error {
	val, err := wire.Encode(v)
	if err != nil {
		return err
	}
	data, err := json.Marshal(val)
	if err != nil {
		var encErr *wire.EncodeError
		if errors.As(err, &encErr) {
			return encErr
		}
		return &wire.EncodeError{Msg: "marshal", Err: err}
	}
	data = append(data, '\n')
	if _, err := bw.Write(data); err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	return nil
}
