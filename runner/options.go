package runner

import "log/slog"

// Option configures a TileTaskRunner during creation.
//
// Example:
//
//	r := runner.New(loop, strategy,
//	    runner.WithWorkers(4),
//	    runner.WithLogger(slog.Default()))
type Option func(*options)

// options holds optional configuration for TileTaskRunner creation.
type options struct {
	workers int
	logger  *slog.Logger
}

// WithWorkers sets the number of worker goroutines.
// Zero or negative uses GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithLogger sets the logger used by the runner instead of the
// package-wide logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}
