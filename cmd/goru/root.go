package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/caffeineduck/goru/executor"
	"github.com/caffeineduck/goru/hostfunc"
	"github.com/caffeineduck/goru/internal/config"
	"github.com/caffeineduck/goru/internal/logging"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "goru",
		Short: "Starlark bridge worker",
		Long: `goru - a request/response bridge worker for Starlark code.

A controller process writes one JSON command per line (call, set_vars,
exec, exec_file) and reads one wire value per line back. The first error
terminates the worker. WebAssembly modules can be loaded to expose their
numeric exports as callables.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("config", "", "TOML configuration file")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().Bool("journal", false, "Also log to the systemd journal")
	rootCmd.PersistentFlags().Bool("no-cache", false, "Disable the WebAssembly compilation cache")

	rootCmd.AddCommand(newServeCmd(), newRunCmd(), newReplCmd(), newCacheCmd())
	return rootCmd
}

func addSessionFlags(cmd *cobra.Command) {
	cmd.Flags().Uint64("max-steps", 0, "Interpreter step limit per command (0 = unlimited)")
	cmd.Flags().Duration("timeout", 0, "Execution timeout per command (0 = none)")
	cmd.Flags().Bool("kv", false, "Enable key-value store")
	cmd.Flags().StringSlice("allow-host", nil, "Allow HTTP to host (repeatable)")
	cmd.Flags().StringSlice("mount", nil, "Mount filesystem virtual:host:mode (repeatable)")
	cmd.Flags().StringSlice("wasm", nil, "Load WebAssembly module path[:prefix] (repeatable)")
	cmd.Flags().StringSlice("script", nil, "Run Starlark file before the first command (repeatable)")
	cmd.Flags().String("wasm-memory", "", "WebAssembly memory limit: 1mb, 16mb, 64mb, 256mb, 1gb")

	cmd.Flags().Int("http-max-url", 8192, "Max HTTP URL length")
	cmd.Flags().Int64("http-max-body", 1024*1024, "Max HTTP response body size")
	cmd.Flags().Int64("fs-max-file", hostfunc.DefaultFSMaxFileSize, "Max file read size")
	cmd.Flags().Int64("fs-max-write", hostfunc.DefaultFSMaxWriteSize, "Max file write size")
	cmd.Flags().Int("fs-max-path", hostfunc.DefaultFSMaxPathLength, "Max path length")
}

// loadConfig reads --config and applies the flags set on the command line.
// List flags extend the lists from the file.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	flags := cmd.Flags()
	path, _ := flags.GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}

	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Changed("max-steps") {
		cfg.MaxSteps, _ = flags.GetUint64("max-steps")
	}
	if flags.Changed("max-line-size") {
		cfg.MaxLineSize, _ = flags.GetInt("max-line-size")
	}
	if flags.Changed("kv") {
		cfg.KV, _ = flags.GetBool("kv")
	}
	if hosts, _ := flags.GetStringSlice("allow-host"); len(hosts) > 0 {
		cfg.AllowedHosts = append(cfg.AllowedHosts, hosts...)
	}
	if scripts, _ := flags.GetStringSlice("script"); len(scripts) > 0 {
		cfg.Scripts = append(cfg.Scripts, scripts...)
	}
	mounts, _ := flags.GetStringSlice("mount")
	for _, spec := range mounts {
		m, err := parseMount(spec)
		if err != nil {
			return config.Config{}, err
		}
		cfg.Mounts = append(cfg.Mounts, m)
	}
	modules, _ := flags.GetStringSlice("wasm")
	for _, spec := range modules {
		cfg.Wasm = append(cfg.Wasm, parseWasm(spec))
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command, cfg config.Config) *slog.Logger {
	journal, _ := cmd.Flags().GetBool("journal")
	return logging.New(logging.Options{
		Writer:  cmd.ErrOrStderr(),
		Level:   cfg.Level(),
		Journal: journal,
	})
}

func parseMount(spec string) (config.Mount, error) {
	parts := strings.Split(spec, ":")
	if len(parts) != 3 {
		return config.Mount{}, fmt.Errorf("invalid mount spec %q (expected virtual:host:mode)", spec)
	}
	if _, err := hostfunc.ParseMountMode(parts[2]); err != nil {
		return config.Mount{}, err
	}
	return config.Mount{Virtual: parts[0], Host: parts[1], Mode: parts[2]}, nil
}

// parseWasm splits path[:prefix]. A prefix never contains a path separator.
func parseWasm(spec string) config.Wasm {
	i := strings.LastIndexByte(spec, ':')
	if i < 0 || strings.ContainsAny(spec[i+1:], `/\`) {
		return config.Wasm{Path: spec}
	}
	return config.Wasm{Path: spec[:i], Prefix: spec[i+1:]}
}

// WebAssembly pages are 64KB.
const (
	memoryLimit1MB   = 16
	memoryLimit16MB  = 256
	memoryLimit64MB  = 1024
	memoryLimit256MB = 4096
	memoryLimit1GB   = 16384
)

func parseMemoryLimit(s string) uint32 {
	switch strings.ToLower(s) {
	case "1mb":
		return memoryLimit1MB
	case "16mb":
		return memoryLimit16MB
	case "64mb":
		return memoryLimit64MB
	case "256mb":
		return memoryLimit256MB
	case "1gb":
		return memoryLimit1GB
	default:
		return 0 // use default
	}
}

// runtime is a Starlark executor together with the WebAssembly modules
// backing some of its host functions.
type runtime struct {
	exec    *executor.Starlark
	modules []*hostfunc.WasmModule
}

func newRuntime(ctx context.Context, cmd *cobra.Command, cfg config.Config, logger *slog.Logger) (*runtime, error) {
	flags := cmd.Flags()
	noCache, _ := flags.GetBool("no-cache")
	memory, _ := flags.GetString("wasm-memory")
	timeout, _ := flags.GetDuration("timeout")

	var wasmOpts []hostfunc.WasmOption
	if !noCache {
		wasmOpts = append(wasmOpts, hostfunc.WithWasmDiskCache())
	}
	if pages := parseMemoryLimit(memory); pages > 0 {
		wasmOpts = append(wasmOpts, hostfunc.WithWasmMemoryLimit(pages))
	}

	rt := &runtime{}
	registry := hostfunc.NewRegistry()
	for _, w := range cfg.Wasm {
		m, err := hostfunc.LoadWasmFile(ctx, w.Path, wasmOpts...)
		if err != nil {
			rt.Close(ctx)
			return nil, fmt.Errorf("load %s: %w", w.Path, err)
		}
		m.Register(registry, w.Prefix)
		rt.modules = append(rt.modules, m)
		logger.Debug("wasm module loaded", "path", w.Path, "exports", m.Exports())
	}

	opts := []executor.Option{
		executor.WithRegistry(registry),
		executor.WithLogger(logger),
		executor.WithMaxSteps(cfg.MaxSteps),
		executor.WithPrintWriter(cmd.ErrOrStderr()),
	}
	if timeout > 0 {
		opts = append(opts, executor.WithTimeout(timeout))
	}
	if cfg.KV {
		opts = append(opts, executor.WithKV(hostfunc.DefaultKVConfig()))
	}
	if len(cfg.AllowedHosts) > 0 {
		maxURL, _ := flags.GetInt("http-max-url")
		maxBody, _ := flags.GetInt64("http-max-body")
		opts = append(opts, executor.WithHTTPConfig(hostfunc.HTTPConfig{
			AllowedHosts:   cfg.AllowedHosts,
			MaxURLLength:   maxURL,
			MaxBodySize:    maxBody,
			RequestTimeout: 30 * time.Second,
		}))
	}
	mounts, err := cfg.HostMounts()
	if err != nil {
		rt.Close(ctx)
		return nil, err
	}
	for _, m := range mounts {
		opts = append(opts, executor.WithMount(m.VirtualPath, m.HostPath, m.Mode))
	}
	if len(mounts) > 0 {
		maxFile, _ := flags.GetInt64("fs-max-file")
		maxWrite, _ := flags.GetInt64("fs-max-write")
		maxPath, _ := flags.GetInt("fs-max-path")
		opts = append(opts, executor.WithFSOptions(
			hostfunc.WithMaxFileSize(maxFile),
			hostfunc.WithMaxWriteSize(maxWrite),
			hostfunc.WithMaxPathLength(maxPath),
		))
	}

	rt.exec = executor.NewStarlark(opts...)
	return rt, nil
}

func (rt *runtime) Close(ctx context.Context) error {
	var errs []error
	for _, m := range rt.modules {
		errs = append(errs, m.Close(ctx))
	}
	return errors.Join(errs...)
}
