package worker

import (
	"log/slog"
	"time"
)

// Option is a functional option for configuring a worker.
type Option func(*options)

type options struct {
	maxConcurrent   int
	maxRetries      int
	consumeTimeout  time.Duration
	shutdownTimeout time.Duration
	onlyChannels    []string
	excludeChannels []string
	logger          *slog.Logger
}

// WithMaxConcurrent caps the number of consumers running at once.
func WithMaxConcurrent(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxConcurrent = n
		}
	}
}

// WithMaxRetries caps redeliveries of a message triggered by
// consumer.ErrConsumeLater before it is dropped.
func WithMaxRetries(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.maxRetries = n
		}
	}
}

// WithConsumeTimeout bounds a single consumer invocation. Consumers run on a
// detached context so graceful worker shutdown does not interrupt them.
func WithConsumeTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.consumeTimeout = d
		}
	}
}

// WithShutdownTimeout bounds how long Stop waits for in-flight consumers.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.shutdownTimeout = d
		}
	}
}

// WithOnlyChannels restricts the receive set to the named channels.
func WithOnlyChannels(channels ...string) Option {
	return func(o *options) {
		o.onlyChannels = channels
	}
}

// WithExcludeChannels removes the named channels from the receive set.
func WithExcludeChannels(channels ...string) Option {
	return func(o *options) {
		o.excludeChannels = channels
	}
}

// WithLogger sets the logger for worker operations.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}
