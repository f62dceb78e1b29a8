package worker

import "log/slog"

// DefaultMaxLineSize bounds a single command line. ndarray payloads travel
// inline, so the limit is generous.
const DefaultMaxLineSize = 64 << 20

// Option configures a Worker.
type Option func(*config)

type config struct {
	maxLineSize int
	logger      *slog.Logger
	prelude     []fragment
}

type fragment struct {
	name string
	code string
}

func defaultConfig() config {
	return config{
		maxLineSize: DefaultMaxLineSize,
		logger:      slog.New(slog.DiscardHandler),
	}
}

// WithMaxLineSize sets the longest accepted command line in bytes.
func WithMaxLineSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxLineSize = n
		}
	}
}

// WithLogger sets the logger for command and lifecycle events. Logs must not
// go to the output stream.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithPrelude runs code in the session scope before the first command is
// read. A failing prelude terminates the worker like any other command.
func WithPrelude(name, code string) Option {
	return func(c *config) {
		c.prelude = append(c.prelude, fragment{name: name, code: code})
	}
}
