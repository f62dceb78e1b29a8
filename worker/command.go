package worker

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/caffeineduck/goru/wire"
)

// Kind names a command.
type Kind string

const (
	KindCall     Kind = "call"
	KindSetVars  Kind = "set_vars"
	KindExec     Kind = "exec"
	KindExecFile Kind = "exec_file"
)

// Sentinel is the line that ends a session.
const Sentinel = "EXIT"

// Command is one parsed command record:
//
//	["call", symbol, params]
//	["set_vars", [names...], params]
//	["exec", code, result_expr]
//	["exec_file", path]
type Command struct {
	Kind Kind

	Symbol string // call
	Names  []string
	Args   []any // decoded params of call and set_vars

	Code string // exec
	Expr string
	Path string // exec_file
}

// ParseCommand parses and decodes one command line. Structural problems
// are *FramingError; malformed params are *wire.DecodeError.
func ParseCommand(line []byte) (Command, error) {
	var fields []json.RawMessage
	if err := json.Unmarshal(line, &fields); err != nil {
		return Command{}, &FramingError{Msg: "command is not a JSON array", Err: err}
	}
	if len(fields) == 0 {
		return Command{}, framingErrorf("empty command")
	}

	var kind Kind
	if err := json.Unmarshal(fields[0], &kind); err != nil {
		return Command{}, framingErrorf("command kind must be a string, got %s", fields[0])
	}

	cmd := Command{Kind: kind}
	args := fields[1:]
	switch kind {
	case KindCall:
		if err := arity(kind, args, 2); err != nil {
			return Command{}, err
		}
		if err := stringField(kind, "symbol", args[0], &cmd.Symbol); err != nil {
			return Command{}, err
		}
		params, err := decodeParams(args[1])
		if err != nil {
			return Command{}, err
		}
		list, ok := params.([]any)
		if !ok {
			return Command{}, framingErrorf("call params must be a list, got %T", params)
		}
		cmd.Args = list

	case KindSetVars:
		if err := arity(kind, args, 2); err != nil {
			return Command{}, err
		}
		if err := json.Unmarshal(args[0], &cmd.Names); err != nil {
			return Command{}, &FramingError{Msg: "set_vars names must be a list of strings", Err: err}
		}
		for i, name := range cmd.Names {
			if name == "" {
				return Command{}, framingErrorf("set_vars name %d is empty", i)
			}
		}
		params, err := decodeParams(args[1])
		if err != nil {
			return Command{}, err
		}
		values, ok := params.([]any)
		if !ok {
			return Command{}, framingErrorf("set_vars params must be a list, got %T", params)
		}
		if len(values) != len(cmd.Names) {
			return Command{}, framingErrorf("set_vars has %d names but %d values", len(cmd.Names), len(values))
		}
		cmd.Args = values

	case KindExec:
		if err := arity(kind, args, 2); err != nil {
			return Command{}, err
		}
		if err := stringField(kind, "code", args[0], &cmd.Code); err != nil {
			return Command{}, err
		}
		if err := stringField(kind, "result expression", args[1], &cmd.Expr); err != nil {
			return Command{}, err
		}

	case KindExecFile:
		if err := arity(kind, args, 1); err != nil {
			return Command{}, err
		}
		if err := stringField(kind, "path", args[0], &cmd.Path); err != nil {
			return Command{}, err
		}

	default:
		return Command{}, framingErrorf("unknown command: %q", kind)
	}
	return cmd, nil
}

func arity(kind Kind, args []json.RawMessage, n int) error {
	if len(args) != n {
		return framingErrorf("%s takes %d arguments, got %d", kind, n, len(args))
	}
	return nil
}

func stringField(kind Kind, name string, raw json.RawMessage, dst *string) error {
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return framingErrorf("%s %s must be a string, got null", kind, name)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return &FramingError{Msg: fmt.Sprintf("%s %s must be a string", kind, name), Err: err}
	}
	return nil
}

func decodeParams(raw json.RawMessage) (any, error) {
	v, err := wire.ParseValue(raw)
	if err != nil {
		return nil, err
	}
	return wire.Decode(v)
}
