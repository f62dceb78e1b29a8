package worker

import "fmt"

// FramingError reports a line that is not a well-formed command record.
type FramingError struct {
	Msg string
	Err error
}

func (e *FramingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("framing: %s: %v", e.Msg, e.Err)
	}
	return "framing: " + e.Msg
}

func (e *FramingError) Unwrap() error { return e.Err }

func framingErrorf(format string, args ...any) *FramingError {
	return &FramingError{Msg: fmt.Sprintf(format, args...)}
}

// ExecutorError reports a failure raised by the executor while resolving,
// calling, running or evaluating code. Op names the failing step.
type ExecutorError struct {
	Op  string
	Err error
}

func (e *ExecutorError) Error() string {
	return fmt.Sprintf("executor %s: %v", e.Op, e.Err)
}

func (e *ExecutorError) Unwrap() error { return e.Err }
