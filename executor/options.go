package executor

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/caffeineduck/goru/hostfunc"
)

// Option configures a Starlark executor.
type Option func(*config)

type config struct {
	registry *hostfunc.Registry
	maxSteps uint64
	timeout  time.Duration
	print    io.Writer
	logger   *slog.Logger

	kvEnabled  bool
	kvConfig   hostfunc.KVConfig
	httpConfig hostfunc.HTTPConfig
	mounts     []hostfunc.Mount
	fsOptions  []hostfunc.FSOption
}

func defaultConfig() config {
	return config{
		print:  os.Stderr,
		logger: slog.New(slog.DiscardHandler),
	}
}

// WithRegistry exposes the functions of r to code fragments and to the call
// command. The registry is extended with the enabled capabilities.
func WithRegistry(r *hostfunc.Registry) Option {
	return func(c *config) {
		c.registry = r
	}
}

// WithMaxSteps bounds the number of interpreter steps of each command.
// Zero means no limit.
func WithMaxSteps(n uint64) Option {
	return func(c *config) {
		c.maxSteps = n
	}
}

// WithTimeout sets the maximum execution time of each command.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithPrintWriter redirects print() output. It defaults to stderr so that
// printing never corrupts the response stream.
func WithPrintWriter(w io.Writer) Option {
	return func(c *config) {
		c.print = w
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithKV enables the kv_* functions backed by an in-memory store.
func WithKV(cfg hostfunc.KVConfig) Option {
	return func(c *config) {
		c.kvEnabled = true
		c.kvConfig = cfg
	}
}

// WithAllowedHosts enables http_get and http_request for the given hosts.
func WithAllowedHosts(hosts []string) Option {
	return func(c *config) {
		c.httpConfig.AllowedHosts = hosts
	}
}

// WithHTTPConfig sets the full HTTP configuration.
func WithHTTPConfig(cfg hostfunc.HTTPConfig) Option {
	return func(c *config) {
		c.httpConfig = cfg
	}
}

// WithMount adds a filesystem mount point with the specified permissions.
// Mounts enable the fs_* functions and make exec_file read through them.
//
//	executor.WithMount("/data", "./input", hostfunc.MountReadOnly)
//	executor.WithMount("/workspace", "./work", hostfunc.MountReadWriteCreate)
func WithMount(virtualPath, hostPath string, mode hostfunc.MountMode) Option {
	return func(c *config) {
		c.mounts = append(c.mounts, hostfunc.Mount{
			VirtualPath: virtualPath,
			HostPath:    hostPath,
			Mode:        mode,
		})
	}
}

// WithFSOptions sets size limits of the mounted filesystem.
func WithFSOptions(opts ...hostfunc.FSOption) Option {
	return func(c *config) {
		c.fsOptions = append(c.fsOptions, opts...)
	}
}
