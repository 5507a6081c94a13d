package fanout

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Event kinds published by background jobs
const (
	KindEntityChanged       = "entity:changed"
	KindNotificationCreated = "notification:created"
	KindNotificationBulk    = "notification:bulk"
	KindSeatUpdated         = "seat:updated"
	KindMetricsUpdated      = "metrics:updated"
)

// AdminRoom is joined by operator dashboards
const AdminRoom = "dashboard:admin"

// UserRoom returns the room scoped to a single user
func UserRoom(userID string) string { return "user:" + userID }

// TripRoom returns the room scoped to a single trip
func TripRoom(tripID string) string { return "trip:" + tripID }

// Event is an ephemeral notification delivered to room members.
// It is never persisted and there is no replay.
type Event struct {
	ID        string          `json:"id"`
	Room      string          `json:"room"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	EmittedAt time.Time       `json:"emitted_at"`
}

// NewEvent builds an event with a fresh id. A json.RawMessage or []byte
// payload is used as is, anything else is JSON encoded.
func NewEvent(room, kind string, payload any, emittedAt time.Time) (Event, error) {
	if room == "" {
		return Event{}, ErrRoomRequired
	}
	if kind == "" {
		return Event{}, ErrKindRequired
	}

	raw, err := encodePayload(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{
		ID:        uuid.NewString(),
		Room:      room,
		Kind:      kind,
		Payload:   raw,
		EmittedAt: emittedAt.UTC(),
	}, nil
}

// Validate reports whether the event can be delivered
func (e Event) Validate() error {
	switch {
	case e.Room == "":
		return errors.Join(ErrInvalidEvent, ErrRoomRequired)
	case e.Kind == "":
		return errors.Join(ErrInvalidEvent, ErrKindRequired)
	}
	return nil
}

func encodePayload(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		if !json.Valid(p) {
			return nil, ErrInvalidPayload
		}
		return p, nil
	case []byte:
		if !json.Valid(p) {
			return nil, ErrInvalidPayload
		}
		return json.RawMessage(p), nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Join(ErrInvalidPayload, err)
	}
	return raw, nil
}
