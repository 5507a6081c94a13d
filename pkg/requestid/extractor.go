package requestid

import (
	"context"
	"log/slog"

	"github.com/dmitrymomot/ridekit/pkg/logger"
)

// LogExtractor adds request_id to records logged with a request context
func LogExtractor() func(ctx context.Context) (slog.Attr, bool) {
	return func(ctx context.Context) (slog.Attr, bool) {
		id := FromContext(ctx)
		if id == "" {
			return slog.Attr{}, false
		}
		return logger.RequestID(id), true
	}
}
