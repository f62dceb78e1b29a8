package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/caffeineduck/goru/internal/config"
	"github.com/caffeineduck/goru/worker"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Answer commands on stdin with results on stdout",
		Long: `Run the command loop over stdin and stdout, or over inherited file
descriptors with --in-fd and --out-fd.

Commands, one JSON array per line:
  ["call", symbol, params]       call symbol with a list of arguments
  ["set_vars", [names], params]  bind names to values
  ["exec", code, expr]           run code, then evaluate expr
  ["exec_file", path]            run the file at path
  EXIT                           terminate normally

Every response is a single wire value. Any error terminates the worker
with a non-zero exit status; the error is logged to stderr.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
	addSessionFlags(cmd)
	cmd.Flags().Int("max-line-size", worker.DefaultMaxLineSize, "Longest accepted command line in bytes")
	cmd.Flags().Int("in-fd", 0, "File descriptor to read commands from")
	cmd.Flags().Int("out-fd", 1, "File descriptor to write responses to")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cmd, cfg)

	inFD, _ := cmd.Flags().GetInt("in-fd")
	outFD, _ := cmd.Flags().GetInt("out-fd")
	in, out, err := openStreams(inFD, outFD)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return serve(ctx, cmd, cfg, logger, in, out)
}

// serve owns in and out: they are closed on every path.
func serve(ctx context.Context, cmd *cobra.Command, cfg config.Config, logger *slog.Logger, in io.ReadCloser, out io.WriteCloser) error {
	rt, err := newRuntime(ctx, cmd, cfg, logger)
	if err != nil {
		in.Close()
		out.Close()
		return err
	}
	defer rt.Close(context.Background())

	scripts, err := cfg.ReadScripts()
	if err != nil {
		in.Close()
		out.Close()
		return err
	}

	opts := []worker.Option{
		worker.WithMaxLineSize(cfg.MaxLineSize),
		worker.WithLogger(logger),
	}
	for i, code := range scripts {
		opts = append(opts, worker.WithPrelude(cfg.Scripts[i], code))
	}

	return worker.New(rt.exec, opts...).Serve(ctx, in, out)
}

func openStreams(inFD, outFD int) (*os.File, *os.File, error) {
	in := os.Stdin
	if inFD != 0 {
		in = os.NewFile(uintptr(inFD), "in")
	}
	out := os.Stdout
	if outFD != 1 {
		out = os.NewFile(uintptr(outFD), "out")
	}
	if in == nil || out == nil {
		return nil, nil, fmt.Errorf("invalid file descriptors %d/%d", inFD, outFD)
	}
	return in, out, nil
}
