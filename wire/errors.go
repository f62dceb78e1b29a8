package wire

import "fmt"

// DecodeError reports a malformed or unrecognized Wire Value.
type DecodeError struct {
	Path string
	Msg  string
	Err  error
}

func (e *DecodeError) Error() string {
	msg := e.Msg
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Path == "" {
		return "decode: " + msg
	}
	return fmt.Sprintf("decode %s: %s", e.Path, msg)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// EncodeError reports a native value that has no Wire Value representation.
type EncodeError struct {
	Path string
	Msg  string
	Err  error
}

func (e *EncodeError) Error() string {
	msg := e.Msg
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Path == "" {
		return "encode: " + msg
	}
	return fmt.Sprintf("encode %s: %s", e.Path, msg)
}

func (e *EncodeError) Unwrap() error { return e.Err }

func decodeErrorf(path, format string, args ...any) *DecodeError {
	return &DecodeError{Path: path, Msg: fmt.Sprintf(format, args...)}
}

func encodeErrorf(path, format string, args ...any) *EncodeError {
	return &EncodeError{Path: path, Msg: fmt.Sprintf(format, args...)}
}

func childPath(path string, key any) string {
	switch k := key.(type) {
	case int:
		return fmt.Sprintf("%s[%d]", path, k)
	default:
		return fmt.Sprintf("%s[%q]", path, k)
	}
}
