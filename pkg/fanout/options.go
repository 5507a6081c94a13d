package fanout

import (
	"log/slog"
	"time"
)

// DefaultBufferSize is the per-connection event buffer
const DefaultBufferSize = 64

// Config holds fan-out settings loaded from the environment
type Config struct {
	BufferSize   int    `env:"FANOUT_BUFFER_SIZE" envDefault:"64"`
	RedisChannel string `env:"FANOUT_REDIS_CHANNEL" envDefault:"ridekit:events"`
	// RedisBridge enables cross-process delivery through Redis pub/sub
	RedisBridge bool `env:"FANOUT_REDIS_BRIDGE" envDefault:"true"`
}

// HubOption configures a Hub
type HubOption func(*Hub)

// WithBufferSize sets the per-connection buffer. A minimum of 1 is enforced.
func WithBufferSize(n int) HubOption {
	return func(h *Hub) {
		h.bufferSize = max(n, 1)
	}
}

// WithLogger sets the hub logger
func WithLogger(l *slog.Logger) HubOption {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithClock overrides the time source used for emitted_at
func WithClock(now func() time.Time) HubOption {
	return func(h *Hub) {
		if now != nil {
			h.now = now
		}
	}
}
