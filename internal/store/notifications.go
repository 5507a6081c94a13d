package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const insertNotificationsQuery = `
	INSERT INTO notifications (id, user_id, title, message, data)
	SELECT n.id, n.user_id, $3::text, $4::text, $5::jsonb
	FROM unnest($1::uuid[], $2::text[]) AS n(id, user_id)
	ON CONFLICT (id) DO NOTHING
	RETURNING id::text, user_id`

// NewNotification is the content shared by every recipient
type NewNotification struct {
	Title   string
	Message string
	Data    json.RawMessage
}

// Recipient pairs a notification id with its user
type Recipient struct {
	NotificationID string
	UserID         string
}

// NotificationStore manages user notifications
type NotificationStore struct {
	db Querier
}

// NewNotificationStore creates a notification store
func NewNotificationStore(db Querier) *NotificationStore {
	return &NotificationStore{db: db}
}

// InsertMany stores one notification per recipient. Ids that already exist
// are skipped, so a retried job never creates duplicates. Only newly
// inserted recipients are returned.
func (s *NotificationStore) InsertMany(ctx context.Context, n NewNotification, recipients []Recipient) ([]Recipient, error) {
	if len(recipients) == 0 {
		return nil, nil
	}
	if len(n.Data) == 0 {
		n.Data = json.RawMessage(`{}`)
	}
	if !json.Valid(n.Data) {
		return nil, errors.New("notification data is not valid JSON")
	}

	ids := make([]string, len(recipients))
	users := make([]string, len(recipients))
	for i, r := range recipients {
		ids[i] = r.NotificationID
		users[i] = r.UserID
	}

	rows, err := s.db.Query(ctx, insertNotificationsQuery, ids, users, n.Title, n.Message, n.Data)
	if err != nil {
		return nil, fmt.Errorf("insert notifications: %w", err)
	}
	inserted, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Recipient, error) {
		var r Recipient
		err := row.Scan(&r.NotificationID, &r.UserID)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("insert notifications: %w", err)
	}
	return inserted, nil
}
