package queue

import (
	"log/slog"
	"time"
)

// SchedulerOption is a functional option for configuring a scheduler
type SchedulerOption func(*schedulerOptions)

type schedulerOptions struct {
	checkInterval      time.Duration
	defaultMaxAttempts int
	logger             *slog.Logger
	now                func() time.Time
}

// WithCheckInterval sets how often scheduler checks for due definitions
func WithCheckInterval(d time.Duration) SchedulerOption {
	return func(o *schedulerOptions) {
		if d > 0 {
			o.checkInterval = d
		}
	}
}

// WithSchedulerLogger sets the logger for the scheduler
func WithSchedulerLogger(logger *slog.Logger) SchedulerOption {
	return func(o *schedulerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithSchedulerClock overrides the time source
func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(o *schedulerOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// WithSchedulerDefaultMaxAttempts sets the attempt budget of materialized jobs
func WithSchedulerDefaultMaxAttempts(n int) SchedulerOption {
	return func(o *schedulerOptions) {
		if n >= 1 && n <= MaxAttemptsLimit {
			o.defaultMaxAttempts = n
		}
	}
}

// ScheduleOption configures a single repeatable definition
type ScheduleOption func(*scheduleOptions)

type scheduleOptions struct {
	payload     any
	maxAttempts int
}

// WithSchedulePayload sets the payload copied into every materialized job
func WithSchedulePayload(payload any) ScheduleOption {
	return func(o *scheduleOptions) {
		o.payload = payload
	}
}

// WithScheduleMaxAttempts sets the attempt budget of materialized jobs (1-25)
func WithScheduleMaxAttempts(n int) ScheduleOption {
	return func(o *scheduleOptions) {
		if n >= 1 && n <= MaxAttemptsLimit {
			o.maxAttempts = n
		}
	}
}
