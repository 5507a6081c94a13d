package fanout

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/dmitrymomot/ridekit/pkg/logger"
)

// Inbound command actions
const (
	ActionJoin  = "join"
	ActionLeave = "leave"
)

// Outbound frame types
const (
	FrameJoined = "joined"
	FrameLeft   = "left"
	FrameError  = "error"
	FrameEvent  = "event"
)

// Command is a client request to change room membership
type Command struct {
	Action string `json:"action"`
	Room   string `json:"room"`
}

// Frame is a message sent to a client
type Frame struct {
	Type  string `json:"type"`
	Room  string `json:"room,omitempty"`
	Error string `json:"error,omitempty"`
	Event *Event `json:"event,omitempty"`
}

// EventFrame wraps a delivered event for the wire
func EventFrame(ev Event) Frame {
	return Frame{Type: FrameEvent, Room: ev.Room, Event: &ev}
}

// Subject identifies who holds a gateway session
type Subject struct {
	UserID string
	Admin  bool
}

// Authorizer decides whether subject may join room
type Authorizer interface {
	Authorize(ctx context.Context, subject Subject, room string) error
}

// AuthorizerFunc adapts a function to Authorizer
type AuthorizerFunc func(ctx context.Context, subject Subject, room string) error

func (f AuthorizerFunc) Authorize(ctx context.Context, subject Subject, room string) error {
	return f(ctx, subject, room)
}

// TripAccessFunc reports whether a user may follow a trip
type TripAccessFunc func(ctx context.Context, userID, tripID string) (bool, error)

// RoomPolicy is the default entitlement check: users join their own user
// room, admins join the admin dashboard, trip rooms are checked with
// tripAccess (any signed in user when nil). Admins may join any room.
func RoomPolicy(tripAccess TripAccessFunc) Authorizer {
	return AuthorizerFunc(func(ctx context.Context, subject Subject, room string) error {
		if subject.Admin {
			return nil
		}
		if subject.UserID == "" {
			return ErrForbidden
		}

		switch {
		case room == UserRoom(subject.UserID):
			return nil
		case strings.HasPrefix(room, "trip:"):
			tripID := strings.TrimPrefix(room, "trip:")
			if tripID == "" {
				return ErrForbidden
			}
			if tripAccess == nil {
				return nil
			}
			ok, err := tripAccess(ctx, subject.UserID, tripID)
			if err != nil {
				return err
			}
			if !ok {
				return ErrForbidden
			}
			return nil
		}
		return ErrForbidden
	})
}

// Gateway exposes a hub to remote clients through join/leave commands
type Gateway struct {
	hub    *Hub
	auth   Authorizer
	logger *slog.Logger
}

// NewGateway creates a gateway. A nil authorizer falls back to RoomPolicy(nil).
func NewGateway(hub *Hub, auth Authorizer, log *slog.Logger) *Gateway {
	if auth == nil {
		auth = RoomPolicy(nil)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Gateway{
		hub:    hub,
		auth:   auth,
		logger: log.With(logger.Component("fanout.gateway")),
	}
}

// Session is one client attached to the gateway
type Session struct {
	gateway *Gateway
	conn    *Conn
	subject Subject
}

// Open registers a new connection for subject
func (g *Gateway) Open(subject Subject) (*Session, error) {
	conn, err := g.hub.Connect(uuid.NewString())
	if err != nil {
		return nil, err
	}
	return &Session{gateway: g, conn: conn, subject: subject}, nil
}

// ID returns the connection id
func (s *Session) ID() string { return s.conn.ID() }

// Events returns delivered events
func (s *Session) Events() <-chan Event { return s.conn.Events() }

// Dropped returns the number of events dropped for this session
func (s *Session) Dropped() uint64 { return s.conn.Dropped() }

// Handle applies one raw client command and returns the reply frame
func (s *Session) Handle(ctx context.Context, raw []byte) Frame {
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return errorFrame("", ErrInvalidCommand)
	}
	return s.Apply(ctx, cmd)
}

// Apply executes a decoded command
func (s *Session) Apply(ctx context.Context, cmd Command) Frame {
	if cmd.Room == "" {
		return errorFrame("", ErrRoomRequired)
	}

	switch cmd.Action {
	case ActionJoin:
		if err := s.gateway.auth.Authorize(ctx, s.subject, cmd.Room); err != nil {
			s.gateway.logger.InfoContext(ctx, "room join denied",
				logger.ConnID(s.ID()),
				logger.UserID(s.subject.UserID),
				logger.Room(cmd.Room),
				logger.Error(err))
			return errorFrame(cmd.Room, ErrForbidden)
		}
		if err := s.gateway.hub.Join(s.ID(), cmd.Room); err != nil {
			return errorFrame(cmd.Room, err)
		}
		return Frame{Type: FrameJoined, Room: cmd.Room}

	case ActionLeave:
		if err := s.gateway.hub.Leave(s.ID(), cmd.Room); err != nil {
			return errorFrame(cmd.Room, err)
		}
		return Frame{Type: FrameLeft, Room: cmd.Room}
	}

	return errorFrame(cmd.Room, ErrUnknownAction)
}

// Close disconnects the session from the hub
func (s *Session) Close() {
	s.gateway.hub.Disconnect(s.ID())
}

func errorFrame(room string, err error) Frame {
	// Clients see the message without the package prefix
	msg := strings.TrimPrefix(err.Error(), "fanout: ")
	return Frame{Type: FrameError, Room: room, Error: msg}
}
