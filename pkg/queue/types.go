package queue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// State represents the lifecycle state of a job
type State string

const (
	StateWaiting   State = "waiting"
	StateDelayed   State = "delayed"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Pending reports whether the job has not reached a terminal state yet.
// Pending jobs take part in dedupe key matching.
func (s State) Pending() bool {
	return s == StateWaiting || s == StateDelayed || s == StateActive
}

// Terminal reports whether the job is finished and only subject to pruning.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Claimable reports whether a worker may claim a job in this state once it is due.
func (s State) Claimable() bool {
	return s == StateWaiting || s == StateDelayed
}

const (
	// DefaultMaxAttempts is used when no WithMaxAttempts option is given
	DefaultMaxAttempts = 3

	// MaxAttemptsLimit caps the retry budget to keep poison jobs from cycling forever
	MaxAttemptsLimit = 25
)

// Job is a unit of work persisted in the durable queue
type Job struct {
	ID           uuid.UUID       `json:"id"`
	Topic        string          `json:"topic"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	State        State           `json:"state"`
	AttemptsMade int             `json:"attempts_made"`
	MaxAttempts  int             `json:"max_attempts"`
	DedupeKey    string          `json:"dedupe_key,omitempty"`
	LastError    string          `json:"last_error,omitempty"`
	LockedBy     *uuid.UUID      `json:"locked_by,omitempty"`
	LockedUntil  *time.Time      `json:"locked_until,omitempty"`
	NextRunAt    time.Time       `json:"next_run_at"`
	CreatedAt    time.Time       `json:"created_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty"`
}

// RepeatDefinition describes a recurring schedule materialized into jobs.
// Key identifies the logical schedule; at most one definition per key is live.
type RepeatDefinition struct {
	Key         string          `json:"key"`
	Topic       string          `json:"topic"`
	Pattern     string          `json:"pattern"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	MaxAttempts int             `json:"max_attempts"`
	NextFireAt  time.Time       `json:"next_fire_at"`
	LastFiredAt *time.Time      `json:"last_fired_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// ListFilter narrows job listings
type ListFilter struct {
	Topic string
	State State
	Limit int
}

// PruneOptions controls retention of terminal jobs for one topic and state.
// Zero values disable the corresponding bound.
type PruneOptions struct {
	Topic     string
	State     State
	KeepCount int
	MaxAge    time.Duration
}
