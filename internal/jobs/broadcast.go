package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dmitrymomot/ridekit/internal/store"
	"github.com/dmitrymomot/ridekit/pkg/fanout"
	"github.com/dmitrymomot/ridekit/pkg/logger"
	"github.com/dmitrymomot/ridekit/pkg/queue"
)

// NotificationEvent is the payload of notification:created
type NotificationEvent struct {
	ID      string         `json:"id"`
	Title   string         `json:"title"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// BulkNotificationEvent is the payload of notification:bulk
type BulkNotificationEvent struct {
	Title      string `json:"title"`
	Recipients int    `json:"recipients"`
	Created    int    `json:"created"`
}

// NotificationID derives the id of the notification a job creates for a
// recipient. Retries of the same job produce the same ids.
func NotificationID(jobID uuid.UUID, recipient string) uuid.UUID {
	return uuid.NewSHA1(jobID, []byte(recipient))
}

// BroadcastNotifications stores a notification per recipient and announces it
func (h *Handlers) BroadcastNotifications(ctx context.Context, p BroadcastPayload) error {
	info, ok := queue.JobInfoFromContext(ctx)
	if !ok {
		return ErrMissingJobInfo
	}

	users := uniqueStrings(p.Recipients)
	recipients := make([]store.Recipient, len(users))
	for i, u := range users {
		recipients[i] = store.Recipient{
			NotificationID: NotificationID(info.ID, u).String(),
			UserID:         u,
		}
	}

	var data json.RawMessage
	if p.Data != nil {
		raw, err := json.Marshal(p.Data)
		if err != nil {
			return fmt.Errorf("encode notification data: %w", err)
		}
		data = raw
	}

	inserted, err := h.notifications.InsertMany(ctx, store.NewNotification{
		Title:   p.Title,
		Message: p.Message,
		Data:    data,
	}, recipients)
	if err != nil {
		return err
	}

	h.logger.InfoContext(ctx, "notifications stored",
		logger.Count(len(inserted)),
		slog.Int("recipients", len(recipients)))

	if len(recipients) > h.cfg.BulkThreshold {
		h.publish(ctx, fanout.AdminRoom, fanout.KindNotificationBulk, BulkNotificationEvent{
			Title:      p.Title,
			Recipients: len(recipients),
			Created:    len(inserted),
		})
		return nil
	}

	// Every recipient is notified, including rows stored by an earlier
	// attempt that failed before publishing
	for _, r := range recipients {
		h.publish(ctx, fanout.UserRoom(r.UserID), fanout.KindNotificationCreated, NotificationEvent{
			ID:      r.NotificationID,
			Title:   p.Title,
			Message: p.Message,
			Data:    p.Data,
		})
	}
	return nil
}

// publish never fails the job: events are best effort
func (h *Handlers) publish(ctx context.Context, room, kind string, payload any) {
	if err := h.publisher.Publish(ctx, room, kind, payload); err != nil {
		h.logger.WarnContext(ctx, "event not published",
			logger.Room(room),
			logger.EventType(kind),
			logger.Error(err))
	}
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
