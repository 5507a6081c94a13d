package queue

import (
	"math"
	"time"
)

// BackoffFunc returns the delay before retry attempt n (1-indexed).
// Attempt 1 is the retry scheduled after the first failure.
type BackoffFunc func(attempt int) time.Duration

// ExponentialBackoff doubles the delay on every attempt: base * 2^(attempt-1), capped at maxDelay.
// A zero maxDelay leaves the delay uncapped.
func ExponentialBackoff(base, maxDelay time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		d := float64(base) * math.Pow(2, float64(attempt-1))
		if d >= math.MaxInt64 {
			if maxDelay > 0 {
				return maxDelay
			}
			return time.Duration(math.MaxInt64)
		}
		delay := time.Duration(d)
		if maxDelay > 0 && delay > maxDelay {
			return maxDelay
		}
		return delay
	}
}

// ConstantBackoff always waits the same interval
func ConstantBackoff(interval time.Duration) BackoffFunc {
	return func(int) time.Duration { return interval }
}

// RetryPolicy decides what happens to a failed job and how much history is kept.
type RetryPolicy struct {
	Backoff BackoffFunc

	// Retention of terminal jobs. Zero disables the bound.
	KeepCompleted   int
	CompletedMaxAge time.Duration
	KeepFailed      int
}

// DefaultRetryPolicy returns a 1s exponential backoff and keeps the newest 100 completed
// jobs (at most 24h old) and the newest 1000 failed jobs per topic.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Backoff:         ExponentialBackoff(time.Second, time.Hour),
		KeepCompleted:   100,
		CompletedMaxAge: 24 * time.Hour,
		KeepFailed:      1000,
	}
}

// Decide returns the time a failed job should run again, or false if its attempts are
// exhausted and it must move to the failed state.
// AttemptsMade already counts the attempt that just failed.
func (p RetryPolicy) Decide(job *Job, now time.Time) (time.Time, bool) {
	if job.AttemptsMade >= job.MaxAttempts {
		return time.Time{}, false
	}
	backoff := p.Backoff
	if backoff == nil {
		backoff = DefaultRetryPolicy().Backoff
	}
	return now.Add(backoff(job.AttemptsMade)), true
}

// pruneOptions returns the retention rules for a terminal state of a topic
func (p RetryPolicy) pruneOptions(topic string, state State) (PruneOptions, bool) {
	switch state {
	case StateCompleted:
		if p.KeepCompleted <= 0 && p.CompletedMaxAge <= 0 {
			return PruneOptions{}, false
		}
		return PruneOptions{Topic: topic, State: StateCompleted, KeepCount: p.KeepCompleted, MaxAge: p.CompletedMaxAge}, true
	case StateFailed:
		if p.KeepFailed <= 0 {
			return PruneOptions{}, false
		}
		return PruneOptions{Topic: topic, State: StateFailed, KeepCount: p.KeepFailed}, true
	default:
		return PruneOptions{}, false
	}
}
