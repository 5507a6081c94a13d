package queue

import (
	"log/slog"
	"time"
)

// WorkerOption is a functional option for configuring a worker
type WorkerOption func(*workerOptions)

type workerOptions struct {
	pollInterval       time.Duration
	lockTimeout        time.Duration
	jobTimeout         time.Duration
	stallInterval      time.Duration
	defaultConcurrency int
	defaultPolicy      RetryPolicy
	logger             *slog.Logger
	now                func() time.Time
}

// WithPollInterval sets how long an idle slot waits before claiming again
func WithPollInterval(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithLockTimeout sets the visibility timeout of claimed jobs
func WithLockTimeout(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.lockTimeout = d
		}
	}
}

// WithJobTimeout bounds a single handler execution. Defaults to the lock timeout.
func WithJobTimeout(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.jobTimeout = d
		}
	}
}

// WithStallCheckInterval sets how often expired locks are reclaimed
func WithStallCheckInterval(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.stallInterval = d
		}
	}
}

// WithDefaultConcurrency sets the slot count for topics registered without WithConcurrency
func WithDefaultConcurrency(n int) WorkerOption {
	return func(o *workerOptions) {
		if n > 0 {
			o.defaultConcurrency = n
		}
	}
}

// WithDefaultRetryPolicy sets the policy for topics registered without WithRetryPolicy
func WithDefaultRetryPolicy(p RetryPolicy) WorkerOption {
	return func(o *workerOptions) {
		o.defaultPolicy = p
	}
}

// WithWorkerLogger sets the logger for the worker
func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(o *workerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithWorkerClock overrides the time source used for retry decisions
func WithWorkerClock(now func() time.Time) WorkerOption {
	return func(o *workerOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// RegisterOption configures a single topic registration
type RegisterOption func(*registerOptions)

type registerOptions struct {
	concurrency int
	policy      RetryPolicy
}

// WithConcurrency sets the number of independent execution slots for the topic
func WithConcurrency(n int) RegisterOption {
	return func(o *registerOptions) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithRetryPolicy sets the retry and retention policy for the topic
func WithRetryPolicy(p RetryPolicy) RegisterOption {
	return func(o *registerOptions) {
		o.policy = p
	}
}
