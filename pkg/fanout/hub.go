package fanout

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrymomot/ridekit/pkg/logger"
)

// Hub tracks connections and their room membership
type Hub struct {
	mu     sync.RWMutex
	conns  map[string]*Conn
	rooms  map[string]*room
	closed bool

	bufferSize int
	logger     *slog.Logger
	now        func() time.Time
}

// room is created on first join and removed when its last member leaves
type room struct {
	name string
	// publishMu serializes deliveries so members observe publish order
	publishMu sync.Mutex
	members   map[string]*Conn // guarded by Hub.mu
}

// Conn is a single live connection registered in a Hub
type Conn struct {
	id      string
	events  chan Event
	rooms   map[string]struct{} // guarded by Hub.mu
	dropped atomic.Uint64

	mu     sync.RWMutex
	closed bool
}

// NewHub creates an empty hub
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		conns:      make(map[string]*Conn),
		rooms:      make(map[string]*room),
		bufferSize: DefaultBufferSize,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Connect registers a connection with the given id
func (h *Hub) Connect(id string) (*Conn, error) {
	if id == "" {
		return nil, ErrConnIDRequired
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHubClosed
	}
	if _, exists := h.conns[id]; exists {
		return nil, ErrConnExists
	}

	c := &Conn{
		id:     id,
		events: make(chan Event, h.bufferSize),
		rooms:  make(map[string]struct{}),
	}
	h.conns[id] = c
	return c, nil
}

// Disconnect removes the connection from every room and closes its event
// channel. Unknown ids are ignored.
func (h *Hub) Disconnect(id string) {
	h.mu.Lock()
	c, ok := h.conns[id]
	if !ok {
		h.mu.Unlock()
		return
	}
	for name := range c.rooms {
		h.removeMemberLocked(name, c)
	}
	delete(h.conns, id)
	h.mu.Unlock()

	c.close()
}

// Join adds the connection to a room. Joining twice is a no-op.
func (h *Hub) Join(connID, roomName string) error {
	if roomName == "" {
		return ErrRoomRequired
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrHubClosed
	}
	c, ok := h.conns[connID]
	if !ok {
		return ErrConnNotFound
	}

	r, ok := h.rooms[roomName]
	if !ok {
		r = &room{name: roomName, members: make(map[string]*Conn)}
		h.rooms[roomName] = r
	}
	r.members[connID] = c
	c.rooms[roomName] = struct{}{}
	return nil
}

// Leave removes the connection from a room. Leaving a room the connection is
// not a member of is a no-op.
func (h *Hub) Leave(connID, roomName string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.conns[connID]
	if !ok {
		return ErrConnNotFound
	}
	if _, member := c.rooms[roomName]; !member {
		return nil
	}
	h.removeMemberLocked(roomName, c)
	return nil
}

func (h *Hub) removeMemberLocked(roomName string, c *Conn) {
	delete(c.rooms, roomName)
	r, ok := h.rooms[roomName]
	if !ok {
		return
	}
	delete(r.members, c.id)
	if len(r.members) == 0 {
		delete(h.rooms, roomName)
	}
}

// Publish builds an event and delivers it to the current members of room.
// Delivery never blocks: members with a full buffer miss the event.
func (h *Hub) Publish(ctx context.Context, roomName, kind string, payload any) error {
	ev, err := NewEvent(roomName, kind, payload, h.now())
	if err != nil {
		return err
	}
	return h.PublishEvent(ctx, ev)
}

// PublishEvent delivers a prebuilt event, e.g. one received from another process
func (h *Hub) PublishEvent(ctx context.Context, ev Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return ErrHubClosed
	}
	r, ok := h.rooms[ev.Room]
	h.mu.RUnlock()
	if !ok {
		return nil // no members, not an error
	}

	r.publishMu.Lock()
	defer r.publishMu.Unlock()

	// Snapshot after taking the room lock so concurrent publishes to the
	// same room deliver in the order they acquired it
	h.mu.RLock()
	members := make([]*Conn, 0, len(r.members))
	for _, c := range r.members {
		members = append(members, c)
	}
	h.mu.RUnlock()

	for _, c := range members {
		if !c.deliver(ev) {
			h.logger.DebugContext(ctx, "event dropped for slow connection",
				logger.Room(ev.Room),
				logger.ConnID(c.id),
				logger.EventType(ev.Kind))
		}
	}

	return nil
}

// Rooms returns the names of rooms that currently have members
func (h *Hub) Rooms() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.rooms))
	for name := range h.rooms {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Members returns the connection ids currently in room
func (h *Hub) Members(roomName string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	r, ok := h.rooms[roomName]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(r.members))
	for id := range r.members {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// ConnCount returns the number of connected clients
func (h *Hub) ConnCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Close disconnects every connection. Subsequent calls are no-ops.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	conns := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	clear(h.conns)
	clear(h.rooms)
	h.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
	return nil
}

// ID returns the connection id
func (c *Conn) ID() string { return c.id }

// Events returns the channel of delivered events. It is closed on disconnect.
func (c *Conn) Events() <-chan Event { return c.events }

// Dropped returns how many events were dropped because the buffer was full
func (c *Conn) Dropped() uint64 { return c.dropped.Load() }

func (c *Conn) deliver(ev Event) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return false
	}

	select {
	case c.events <- ev:
		return true
	default:
		c.dropped.Add(1)
		return false
	}
}

func (c *Conn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.events)
	}
}
