package batch

import (
	"log/slog"
	"time"
)

// Option configures a Processor
type Option func(*options)

type options struct {
	name        string
	size        int
	maxBatches  int
	maxDuration time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

// WithName labels log records of the processor
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// WithSize sets the number of keys per transaction
func WithSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.size = n
		}
	}
}

// WithMaxBatches bounds the number of committed batches per run. Zero means unbounded.
func WithMaxBatches(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.maxBatches = n
		}
	}
}

// WithMaxDuration bounds the wall time of a run. Zero means unbounded.
func WithMaxDuration(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.maxDuration = d
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock overrides the time source used for the duration bound
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}
