package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

type (
	// Handler executes jobs of one topic
	Handler interface {
		Topic() string
		Handle(ctx context.Context, payload json.RawMessage) error
	}

	HandlerFunc[T any] func(ctx context.Context, payload T) error
)

// NewHandler creates a handler that decodes the JSON payload into T
func NewHandler[T any](topic string, fn HandlerFunc[T]) Handler {
	return &typedHandler[T]{topic: topic, fn: fn}
}

type typedHandler[T any] struct {
	topic string
	fn    HandlerFunc[T]
}

func (h *typedHandler[T]) Topic() string {
	return h.topic
}

func (h *typedHandler[T]) Handle(ctx context.Context, payload json.RawMessage) error {
	var t T
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &t); err != nil {
			return errors.Join(ErrInvalidPayload, err)
		}
	}
	if v, ok := any(t).(Validator); ok {
		if err := v.Validate(); err != nil {
			return errors.Join(ErrInvalidPayload, err)
		}
	}
	return h.fn(ctx, t)
}

// Topic binds a topic name to its payload type, so the producer and the consumer of a
// topic share one definition.
type Topic[T any] struct {
	name string
}

// NewTopic declares a typed topic
func NewTopic[T any](name string) Topic[T] {
	return Topic[T]{name: name}
}

// Name returns the topic name
func (t Topic[T]) Name() string {
	return t.name
}

// Enqueue adds a job with a typed payload
func (t Topic[T]) Enqueue(ctx context.Context, e *Enqueuer, payload T, opts ...EnqueueOption) (uuid.UUID, error) {
	if e == nil {
		return uuid.Nil, fmt.Errorf("enqueue %q: %w", t.name, ErrRepositoryNil)
	}
	return e.Enqueue(ctx, t.name, payload, opts...)
}

// Handler wraps fn as the handler for this topic
func (t Topic[T]) Handler(fn HandlerFunc[T]) Handler {
	return NewHandler(t.name, fn)
}
