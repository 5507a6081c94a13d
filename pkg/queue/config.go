package queue

import (
	"log/slog"
	"time"
)

// Config holds the configuration for the job queue
type Config struct {
	PollInterval       time.Duration `env:"QUEUE_POLL_INTERVAL" envDefault:"1s"`
	LockTimeout        time.Duration `env:"QUEUE_LOCK_TIMEOUT" envDefault:"5m"`
	JobTimeout         time.Duration `env:"QUEUE_JOB_TIMEOUT"` // zero means LockTimeout
	StallCheckInterval time.Duration `env:"QUEUE_STALL_CHECK_INTERVAL" envDefault:"30s"`
	SchedulerInterval  time.Duration `env:"QUEUE_SCHEDULER_INTERVAL" envDefault:"15s"`
	DefaultMaxAttempts int           `env:"QUEUE_DEFAULT_MAX_ATTEMPTS" envDefault:"3"`
	BackoffBase        time.Duration `env:"QUEUE_BACKOFF_BASE" envDefault:"5s"`
	BackoffMax         time.Duration `env:"QUEUE_BACKOFF_MAX" envDefault:"1h"`
	KeepCompleted      int           `env:"QUEUE_KEEP_COMPLETED" envDefault:"100"`
	CompletedMaxAge    time.Duration `env:"QUEUE_COMPLETED_MAX_AGE" envDefault:"24h"`
	KeepFailed         int           `env:"QUEUE_KEEP_FAILED" envDefault:"1000"`
	DefaultConcurrency int           `env:"QUEUE_DEFAULT_CONCURRENCY" envDefault:"4"`
}

// RetryPolicy builds the retry policy described by the config
func (c Config) RetryPolicy() RetryPolicy {
	return RetryPolicy{
		Backoff:         ExponentialBackoff(c.BackoffBase, c.BackoffMax),
		KeepCompleted:   c.KeepCompleted,
		CompletedMaxAge: c.CompletedMaxAge,
		KeepFailed:      c.KeepFailed,
	}
}

// WorkerOptions translates the config into worker options
func (c Config) WorkerOptions(log *slog.Logger) []WorkerOption {
	return []WorkerOption{
		WithPollInterval(c.PollInterval),
		WithLockTimeout(c.LockTimeout),
		WithJobTimeout(c.JobTimeout),
		WithStallCheckInterval(c.StallCheckInterval),
		WithDefaultConcurrency(c.DefaultConcurrency),
		WithDefaultRetryPolicy(c.RetryPolicy()),
		WithWorkerLogger(log),
	}
}

// SchedulerOptions translates the config into scheduler options
func (c Config) SchedulerOptions(log *slog.Logger) []SchedulerOption {
	return []SchedulerOption{
		WithCheckInterval(c.SchedulerInterval),
		WithSchedulerDefaultMaxAttempts(c.DefaultMaxAttempts),
		WithSchedulerLogger(log),
	}
}
