// Package config loads the optional TOML configuration of the goru worker.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/caffeineduck/goru/hostfunc"
	"github.com/caffeineduck/goru/internal/logging"
	"github.com/caffeineduck/goru/worker"
)

// Wasm names a WebAssembly module whose exports are registered as callables.
// Exports are registered as Prefix + export name.
type Wasm struct {
	Path   string `toml:"path"`
	Prefix string `toml:"prefix"`
}

// Mount maps a virtual path seen by code fragments to a host directory.
type Mount struct {
	Virtual string `toml:"virtual"`
	Host    string `toml:"host"`
	Mode    string `toml:"mode"`
}

type Config struct {
	LogLevel     string   `toml:"log_level"`
	MaxLineSize  int      `toml:"max_line_size"`
	MaxSteps     uint64   `toml:"max_steps"`
	Scripts      []string `toml:"scripts"`
	Wasm         []Wasm   `toml:"wasm"`
	Mounts       []Mount  `toml:"mounts"`
	KV           bool     `toml:"kv"`
	AllowedHosts []string `toml:"allowed_hosts"`
}

func Default() Config {
	return Config{
		LogLevel:    "info",
		MaxLineSize: worker.DefaultMaxLineSize,
	}
}

// Load reads path on top of Default. Keys absent from the file keep their
// default values. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	var raw Config
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("config load failed (%s): unknown keys: %s", path, strings.Join(keys, ", "))
	}

	if meta.IsDefined("log_level") {
		cfg.LogLevel = raw.LogLevel
	}
	if meta.IsDefined("max_line_size") {
		cfg.MaxLineSize = raw.MaxLineSize
	}
	if meta.IsDefined("max_steps") {
		cfg.MaxSteps = raw.MaxSteps
	}
	if meta.IsDefined("scripts") {
		cfg.Scripts = raw.Scripts
	}
	if meta.IsDefined("wasm") {
		cfg.Wasm = raw.Wasm
	}
	if meta.IsDefined("mounts") {
		cfg.Mounts = raw.Mounts
	}
	if meta.IsDefined("kv") {
		cfg.KV = raw.KV
	}
	if meta.IsDefined("allowed_hosts") {
		cfg.AllowedHosts = raw.AllowedHosts
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.MaxLineSize <= 0 {
		errs = append(errs, fmt.Errorf("max_line_size must be positive, got %d", c.MaxLineSize))
	}
	for i, w := range c.Wasm {
		if w.Path == "" {
			errs = append(errs, fmt.Errorf("wasm[%d]: path is required", i))
		}
	}
	for i, m := range c.Mounts {
		if m.Virtual == "" || m.Host == "" {
			errs = append(errs, fmt.Errorf("mounts[%d]: virtual and host are required", i))
		}
		if _, err := hostfunc.ParseMountMode(m.Mode); err != nil {
			errs = append(errs, fmt.Errorf("mounts[%d]: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Level returns the parsed log level. Call Validate first.
func (c Config) Level() slog.Level {
	l, _ := logging.ParseLevel(c.LogLevel)
	return l
}

// HostMounts converts the mount table for the hostfunc package.
func (c Config) HostMounts() ([]hostfunc.Mount, error) {
	mounts := make([]hostfunc.Mount, 0, len(c.Mounts))
	for _, m := range c.Mounts {
		mode, err := hostfunc.ParseMountMode(m.Mode)
		if err != nil {
			return nil, err
		}
		mounts = append(mounts, hostfunc.Mount{VirtualPath: m.Virtual, HostPath: m.Host, Mode: mode})
	}
	return mounts, nil
}

// ReadScripts returns the contents of the startup scripts in order.
func (c Config) ReadScripts() ([]string, error) {
	out := make([]string, 0, len(c.Scripts))
	for _, path := range c.Scripts {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read script: %w", err)
		}
		out = append(out, string(b))
	}
	return out, nil
}
