package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
	"go.starlark.net/syntax"

	"github.com/caffeineduck/goru/executor"
)

func newReplCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Interactive Starlark REPL with persistent state",
		Long: `Start an interactive REPL over the same executor the worker uses.

Features:
  - Command history (up/down arrows)
  - Line editing (left/right, backspace, delete)
  - History search (Ctrl+R)
  - Multi-line input (end line with \)
  - :wire expr prints the wire encoding of expr

Errors are reported and the session continues. Type 'exit' or 'quit' to
end the session, or press Ctrl+D.`,
		Args: cobra.NoArgs,
		RunE: runRepl,
	}
	addSessionFlags(cmd)
	cmd.Flags().String("history", "", "History file path (default: ~/.goru_history)")
	return cmd
}

func runRepl(cmd *cobra.Command, args []string) error {
	historyFile, _ := cmd.Flags().GetString("history")
	if historyFile == "" {
		if home, err := os.UserHomeDir(); err == nil {
			historyFile = filepath.Join(home, ".goru_history")
		}
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	rt, err := newRuntime(ctx, cmd, cfg, newLogger(cmd, cfg))
	if err != nil {
		return err
	}
	defer rt.Close(ctx)

	scope := executor.NewScope()
	scripts, err := cfg.ReadScripts()
	if err != nil {
		return err
	}
	for i, script := range scripts {
		if err := rt.exec.RunFragment(ctx, scope, cfg.Scripts[i], script); err != nil {
			return err
		}
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            ">>> ",
		HistoryFile:       historyFile,
		HistoryLimit:      1000,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("initialize readline: %w", err)
	}
	defer rl.Close()

	fmt.Fprintln(cmd.ErrOrStderr(), "goru starlark REPL (type 'exit' to quit, Ctrl+D to exit)")
	return replLoop(ctx, rl, rt.exec, scope, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// lineReader is the part of *readline.Instance used by replLoop.
type lineReader interface {
	Readline() (string, error)
	SetPrompt(string)
}

func replLoop(ctx context.Context, rl lineReader, exec *executor.Starlark, scope *executor.Scope, stdout, stderr io.Writer) error {
	var multiLine strings.Builder
	inMultiLine := false

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				if inMultiLine {
					multiLine.Reset()
					inMultiLine = false
					rl.SetPrompt(">>> ")
				}
				continue
			}
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(stdout)
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		}

		if strings.HasSuffix(line, "\\") {
			multiLine.WriteString(strings.TrimSuffix(line, "\\"))
			multiLine.WriteString("\n")
			inMultiLine = true
			rl.SetPrompt("... ")
			continue
		}
		if inMultiLine {
			multiLine.WriteString(line)
			line = multiLine.String()
			multiLine.Reset()
			inMultiLine = false
			rl.SetPrompt(">>> ")
		}

		if strings.TrimSpace(line) == "" {
			continue
		}
		switch strings.TrimSpace(line) {
		case "exit", "quit":
			return nil
		}

		if expr, ok := strings.CutPrefix(strings.TrimSpace(line), ":wire "); ok {
			result, err := exec.EvalExpr(ctx, scope, expr)
			if err == nil {
				var out string
				out, err = marshalWire(result)
				if err == nil {
					fmt.Fprintln(stdout, out)
				}
			}
			if err != nil {
				fmt.Fprintf(stderr, "Error: %v\n", err)
			}
			continue
		}

		if err := evalLine(ctx, exec, scope, line, stdout); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
	}
}

// evalLine evaluates line as an expression when it parses as one and prints
// the result; otherwise it runs line as statements.
func evalLine(ctx context.Context, exec *executor.Starlark, scope *executor.Scope, line string, stdout io.Writer) error {
	if _, err := (&syntax.FileOptions{}).ParseExpr("<repl>", line, 0); err != nil {
		return exec.RunFragment(ctx, scope, "<repl>", line)
	}
	result, err := exec.EvalExpr(ctx, scope, line)
	if err != nil {
		return err
	}
	if s := fmt.Sprint(result); s != "None" {
		fmt.Fprintln(stdout, s)
	}
	return nil
}
