package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/ridekit/pkg/logger"
)

// RedisClient is the subset of redis.UniversalClient used for pub/sub
type RedisClient interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// RedisPublisher sends events to a Redis channel instead of local connections.
// Worker processes use it when websocket connections live in another process.
type RedisPublisher struct {
	client  RedisClient
	channel string
	now     func() time.Time
}

// NewRedisPublisher creates a publisher writing to channel
func NewRedisPublisher(client RedisClient, channel string) *RedisPublisher {
	return &RedisPublisher{
		client:  client,
		channel: channel,
		now:     time.Now,
	}
}

// Publish encodes the event and publishes it to the Redis channel.
// Having no listener on the channel is not an error.
func (p *RedisPublisher) Publish(ctx context.Context, room, kind string, payload any) error {
	ev, err := NewEvent(room, kind, payload, p.now())
	if err != nil {
		return err
	}
	return p.PublishEvent(ctx, ev)
}

// PublishEvent publishes a prebuilt event
func (p *RedisPublisher) PublishEvent(ctx context.Context, ev Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return errors.Join(ErrInvalidPayload, err)
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("fanout: redis publish: %w", err)
	}
	return nil
}

// RedisBridge listens on a Redis channel and republishes every event into a
// local hub
type RedisBridge struct {
	client  RedisClient
	channel string
	target  EventPublisher
	logger  *slog.Logger
}

// NewRedisBridge creates a bridge from channel into target
func NewRedisBridge(client RedisClient, channel string, target EventPublisher, log *slog.Logger) *RedisBridge {
	if log == nil {
		log = slog.Default()
	}
	return &RedisBridge{
		client:  client,
		channel: channel,
		target:  target,
		logger:  log.With(logger.Component("fanout.bridge")),
	}
}

// Run returns a function that consumes the channel until ctx is done.
// The signature fits errgroup.Go.
func (b *RedisBridge) Run(ctx context.Context) func() error {
	return func() error {
		ps := b.client.Subscribe(ctx, b.channel)
		defer ps.Close()

		// Wait for the subscription confirmation so no event published after
		// Run starts is missed
		if _, err := ps.Receive(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fanout: subscribe %s: %w", b.channel, err)
		}

		b.logger.InfoContext(ctx, "redis bridge subscribed", slog.String("channel", b.channel))

		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return nil
			case msg, ok := <-msgs:
				if !ok {
					return nil
				}
				if err := b.HandleMessage(ctx, msg.Payload); err != nil {
					b.logger.WarnContext(ctx, "bridge message skipped", logger.Error(err))
				}
			}
		}
	}
}

// HandleMessage decodes one channel payload and delivers it locally
func (b *RedisBridge) HandleMessage(ctx context.Context, payload string) error {
	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return errors.Join(ErrInvalidEvent, err)
	}
	return b.target.PublishEvent(ctx, ev)
}
