package queue

import "time"

// EnqueuerOption is a functional option for configuring an Enqueuer
type EnqueuerOption func(*enqueuerOptions)

type enqueuerOptions struct {
	defaultMaxAttempts int
	now                func() time.Time
}

// WithDefaultMaxAttempts sets the attempt budget used when Enqueue gets no WithMaxAttempts
func WithDefaultMaxAttempts(n int) EnqueuerOption {
	return func(o *enqueuerOptions) {
		if n >= 1 && n <= MaxAttemptsLimit {
			o.defaultMaxAttempts = n
		}
	}
}

// WithEnqueuerClock overrides the time source, mostly for tests
func WithEnqueuerClock(now func() time.Time) EnqueuerOption {
	return func(o *enqueuerOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// EnqueueOption is a functional option for the Enqueue method
type EnqueueOption func(*enqueueOptions)

type enqueueOptions struct {
	maxAttempts int
	delay       time.Duration
	scheduledAt *time.Time
	dedupeKey   string
}

// WithMaxAttempts sets how many times the job may run before it fails permanently (1-25)
func WithMaxAttempts(n int) EnqueueOption {
	return func(o *enqueueOptions) {
		if n >= 1 && n <= MaxAttemptsLimit {
			o.maxAttempts = n
		}
	}
}

// WithDelay sets a delay before the job can be processed
func WithDelay(delay time.Duration) EnqueueOption {
	return func(o *enqueueOptions) {
		if delay > 0 {
			o.delay = delay
		}
	}
}

// WithScheduledAt sets a specific time for the job to be processed
func WithScheduledAt(scheduledAt time.Time) EnqueueOption {
	return func(o *enqueueOptions) {
		o.scheduledAt = &scheduledAt
	}
}

// WithDedupeKey makes the enqueue idempotent while a job with the same key is pending
func WithDedupeKey(key string) EnqueueOption {
	return func(o *enqueueOptions) {
		o.dedupeKey = key
	}
}
