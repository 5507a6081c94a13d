package fanout

import "context"

// Publisher announces events to a room. Background jobs depend on this
// interface so they work the same with a local Hub or a RedisPublisher.
type Publisher interface {
	Publish(ctx context.Context, room, kind string, payload any) error
}

// EventPublisher delivers prebuilt events
type EventPublisher interface {
	PublishEvent(ctx context.Context, ev Event) error
}

var (
	_ Publisher      = (*Hub)(nil)
	_ EventPublisher = (*Hub)(nil)
	_ Publisher      = (*RedisPublisher)(nil)
)
