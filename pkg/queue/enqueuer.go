package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EnqueuerRepository defines the interface for job creation
type EnqueuerRepository interface {
	// CreateJob stores the job and returns its id. When the job carries a dedupe key
	// and a pending job with that key exists, nothing is written and the existing id
	// is returned.
	CreateJob(ctx context.Context, job *Job) (uuid.UUID, error)
}

// Validator is implemented by payloads that check their own schema before enqueue
type Validator interface {
	Validate() error
}

// Enqueuer handles job enqueueing
type Enqueuer struct {
	repo               EnqueuerRepository
	defaultMaxAttempts int
	now                func() time.Time
}

// NewEnqueuer creates a new Enqueuer
func NewEnqueuer(repo EnqueuerRepository, opts ...EnqueuerOption) (*Enqueuer, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}

	options := &enqueuerOptions{
		defaultMaxAttempts: DefaultMaxAttempts,
		now:                time.Now,
	}
	for _, opt := range opts {
		opt(options)
	}

	return &Enqueuer{
		repo:               repo,
		defaultMaxAttempts: options.defaultMaxAttempts,
		now:                options.now,
	}, nil
}

// Enqueue adds a new job for topic and returns its id.
// With a dedupe key the call is idempotent while the matching job is pending.
func (e *Enqueuer) Enqueue(ctx context.Context, topic string, payload any, opts ...EnqueueOption) (uuid.UUID, error) {
	if topic == "" {
		return uuid.Nil, ErrTopicRequired
	}
	if payload == nil {
		return uuid.Nil, ErrPayloadNil
	}

	if v, ok := payload.(Validator); ok {
		if err := v.Validate(); err != nil {
			return uuid.Nil, errors.Join(ErrInvalidPayload, err)
		}
	}

	options := &enqueueOptions{maxAttempts: e.defaultMaxAttempts}
	for _, opt := range opts {
		opt(options)
	}

	job, err := e.buildJob(topic, payload, options)
	if err != nil {
		return uuid.Nil, err
	}

	id, err := e.repo.CreateJob(ctx, job)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create job for topic %q: %w", topic, err)
	}

	return id, nil
}

// buildJob constructs a Job from payload and options
func (e *Enqueuer) buildJob(topic string, payload any, options *enqueueOptions) (*Job, error) {
	var raw json.RawMessage
	switch p := payload.(type) {
	case json.RawMessage:
		if !json.Valid(p) {
			return nil, errors.Join(ErrInvalidPayload, errors.New("raw payload is not valid JSON"))
		}
		raw = p
	default:
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.Join(ErrPayloadMarshal, fmt.Errorf("payload of type %T: %w", payload, err))
		}
		raw = b
	}

	now := e.now()
	runAt := now
	if options.scheduledAt != nil {
		runAt = *options.scheduledAt
	} else if options.delay > 0 {
		runAt = now.Add(options.delay)
	}

	state := StateWaiting
	if runAt.After(now) {
		state = StateDelayed
	}

	return &Job{
		ID:          uuid.New(),
		Topic:       topic,
		Payload:     raw,
		State:       state,
		MaxAttempts: options.maxAttempts,
		DedupeKey:   options.dedupeKey,
		NextRunAt:   runAt,
		CreatedAt:   now,
	}, nil
}
