package fanout_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/ridekit/pkg/fanout"
)

func TestRoomPolicy(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	access := func(_ context.Context, userID, tripID string) (bool, error) {
		switch tripID {
		case "boom":
			return false, errors.New("db down")
		case "7":
			return userID == "42", nil
		}
		return false, nil
	}
	policy := fanout.RoomPolicy(access)

	tests := []struct {
		name    string
		subject fanout.Subject
		room    string
		wantErr error
	}{
		{"own user room", fanout.Subject{UserID: "42"}, "user:42", nil},
		{"foreign user room", fanout.Subject{UserID: "42"}, "user:43", fanout.ErrForbidden},
		{"admin room as user", fanout.Subject{UserID: "42"}, fanout.AdminRoom, fanout.ErrForbidden},
		{"admin room as admin", fanout.Subject{UserID: "1", Admin: true}, fanout.AdminRoom, nil},
		{"trip with access", fanout.Subject{UserID: "42"}, "trip:7", nil},
		{"trip without access", fanout.Subject{UserID: "43"}, "trip:7", fanout.ErrForbidden},
		{"empty trip id", fanout.Subject{UserID: "42"}, "trip:", fanout.ErrForbidden},
		{"anonymous", fanout.Subject{}, "user:", fanout.ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := policy.Authorize(ctx, tt.subject, tt.room)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	t.Run("lookup error surfaces", func(t *testing.T) {
		t.Parallel()
		err := policy.Authorize(ctx, fanout.Subject{UserID: "42"}, "trip:boom")
		assert.EqualError(t, err, "db down")
	})

	t.Run("nil trip access allows signed in users", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, fanout.RoomPolicy(nil).Authorize(ctx, fanout.Subject{UserID: "5"}, "trip:1"))
	})
}

func TestGateway_Session(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	newSession := func(t *testing.T, subject fanout.Subject) (*fanout.Hub, *fanout.Session) {
		t.Helper()
		hub := newHub()
		gw := fanout.NewGateway(hub, nil, quietLogger())
		s, err := gw.Open(subject)
		require.NoError(t, err)
		t.Cleanup(s.Close)
		return hub, s
	}

	t.Run("join own room and receive events", func(t *testing.T) {
		t.Parallel()
		hub, s := newSession(t, fanout.Subject{UserID: "42"})

		frame := s.Handle(ctx, []byte(`{"action":"join","room":"user:42"}`))
		assert.Equal(t, fanout.Frame{Type: fanout.FrameJoined, Room: "user:42"}, frame)

		require.NoError(t, hub.Publish(ctx, "user:42", fanout.KindNotificationCreated, map[string]string{"id": "n1"}))
		ev := <-s.Events()

		out, err := json.Marshal(fanout.EventFrame(ev))
		require.NoError(t, err)

		var decoded map[string]any
		require.NoError(t, json.Unmarshal(out, &decoded))
		assert.Equal(t, "event", decoded["type"])
		event := decoded["event"].(map[string]any)
		assert.Equal(t, "notification:created", event["kind"])
		assert.Equal(t, "user:42", event["room"])
	})

	t.Run("forbidden join", func(t *testing.T) {
		t.Parallel()
		hub, s := newSession(t, fanout.Subject{UserID: "42"})

		frame := s.Handle(ctx, []byte(`{"action":"join","room":"dashboard:admin"}`))
		assert.Equal(t, fanout.FrameError, frame.Type)
		assert.Equal(t, "not allowed to join room", frame.Error)
		assert.Empty(t, hub.Members(fanout.AdminRoom))
	})

	t.Run("leave", func(t *testing.T) {
		t.Parallel()
		hub, s := newSession(t, fanout.Subject{UserID: "42"})

		s.Handle(ctx, []byte(`{"action":"join","room":"trip:3"}`))
		assert.Equal(t, []string{s.ID()}, hub.Members("trip:3"))

		frame := s.Handle(ctx, []byte(`{"action":"leave","room":"trip:3"}`))
		assert.Equal(t, fanout.Frame{Type: fanout.FrameLeft, Room: "trip:3"}, frame)
		assert.Empty(t, hub.Members("trip:3"))

		// leaving again still succeeds
		frame = s.Handle(ctx, []byte(`{"action":"leave","room":"trip:3"}`))
		assert.Equal(t, fanout.FrameLeft, frame.Type)
	})

	t.Run("bad commands", func(t *testing.T) {
		t.Parallel()
		_, s := newSession(t, fanout.Subject{UserID: "42"})

		assert.Equal(t, "invalid command", s.Handle(ctx, []byte(`not json`)).Error)
		assert.Equal(t, "room is required", s.Handle(ctx, []byte(`{"action":"join"}`)).Error)
		assert.Equal(t, "unknown action", s.Handle(ctx, []byte(`{"action":"shout","room":"user:42"}`)).Error)
	})

	t.Run("close disconnects", func(t *testing.T) {
		t.Parallel()
		hub := newHub()
		gw := fanout.NewGateway(hub, fanout.AuthorizerFunc(func(context.Context, fanout.Subject, string) error {
			return nil
		}), quietLogger())

		s, err := gw.Open(fanout.Subject{})
		require.NoError(t, err)
		s.Handle(ctx, []byte(`{"action":"join","room":"anything"}`))
		assert.Equal(t, 1, hub.ConnCount())

		s.Close()
		assert.Zero(t, hub.ConnCount())
		assert.Empty(t, hub.Rooms())
	})
}
