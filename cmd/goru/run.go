package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/caffeineduck/goru/executor"
	"github.com/caffeineduck/goru/wire"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [file]",
		Short: "Run a Starlark fragment and print a result",
		Long: `Run Starlark code once, then print the value of --expr as a wire value.

Code can be provided via:
  - File argument: goru run script.star
  - Inline flag: goru run -c 'x = 1 + 1' -e x
  - Stdin: echo 'x = 1' | goru run -e x`,
		Args: cobra.MaximumNArgs(1),
		RunE: runRun,
	}
	cmd.Flags().StringP("code", "c", "", "Code to execute")
	cmd.Flags().StringP("expr", "e", "None", "Expression printed after the code runs")
	addSessionFlags(cmd)
	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	code, _ := cmd.Flags().GetString("code")
	expr, _ := cmd.Flags().GetString("expr")

	name := "<code>"
	switch {
	case code != "":
	case len(args) > 0:
		name = args[0]
		data, err := os.ReadFile(name)
		if err != nil {
			return err
		}
		code = string(data)
	default:
		in := cmd.InOrStdin()
		if f, ok := in.(*os.File); ok {
			if stat, err := f.Stat(); err == nil && stat.Mode()&os.ModeCharDevice != 0 {
				return cmd.Help()
			}
		}
		data, err := io.ReadAll(in)
		if err != nil {
			return err
		}
		name = "<stdin>"
		code = string(data)
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

	scripts, err := cfg.ReadScripts()
	if err != nil {
		return err
	}
	scope := executor.NewScope()
	for i, script := range scripts {
		if err := rt.exec.RunFragment(ctx, scope, cfg.Scripts[i], script); err != nil {
			return err
		}
	}

	if err := rt.exec.RunFragment(ctx, scope, name, code); err != nil {
		return err
	}
	result, err := rt.exec.EvalExpr(ctx, scope, expr)
	if err != nil {
		return err
	}
	line, err := marshalWire(result)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), line)
	return nil
}

// marshalWire renders v the way the worker writes a response.
func marshalWire(v any) (string, error) {
	val, err := wire.Encode(v)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(val)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
