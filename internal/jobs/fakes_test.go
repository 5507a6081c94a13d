package jobs_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/dmitrymomot/ridekit/internal/store"
	"github.com/dmitrymomot/ridekit/pkg/batch"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type publishedEvent struct {
	Room    string
	Kind    string
	Payload json.RawMessage
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, room, kind string, payload any) error {
	if p.err != nil {
		return p.err
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{Room: room, Kind: kind, Payload: raw})
	return nil
}

func (p *recordingPublisher) Events() []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.events)
}

// memNotifications keeps notifications keyed by id like the primary key
type memNotifications struct {
	mu   sync.Mutex
	rows map[string]store.Recipient
	err  error
}

func newMemNotifications() *memNotifications {
	return &memNotifications{rows: make(map[string]store.Recipient)}
}

func (m *memNotifications) InsertMany(_ context.Context, _ store.NewNotification, recipients []store.Recipient) ([]store.Recipient, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var inserted []store.Recipient
	for _, r := range recipients {
		if _, ok := m.rows[r.NotificationID]; ok {
			continue
		}
		m.rows[r.NotificationID] = r
		inserted = append(inserted, r)
	}
	return inserted, nil
}

func (m *memNotifications) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

// memTokens simulates refresh_tokens with transactional batch deletes
type memTokens struct {
	mu      sync.Mutex
	expired []string
	cutoffs []time.Time
}

func newMemTokens(n int) *memTokens {
	t := &memTokens{}
	for i := range n {
		t.expired = append(t.expired, fmt.Sprintf("token-%04d", i))
	}
	return t
}

func (m *memTokens) ExpiredSource(cutoff time.Time) batch.Source[string] {
	m.mu.Lock()
	m.cutoffs = append(m.cutoffs, cutoff)
	m.mu.Unlock()
	return m
}

func (m *memTokens) Begin(context.Context) (batch.Tx[string], error) {
	return &memTokenTx{store: m}, nil
}

func (m *memTokens) Remaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.expired)
}

type memTokenTx struct {
	store   *memTokens
	pending []string
}

func (tx *memTokenTx) Select(_ context.Context, limit int) ([]string, error) {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	n := min(limit, len(tx.store.expired))
	return slices.Clone(tx.store.expired[:n]), nil
}

func (tx *memTokenTx) Delete(_ context.Context, keys []string) (int64, error) {
	tx.pending = keys
	return int64(len(keys)), nil
}

func (tx *memTokenTx) Commit(context.Context) error {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	tx.store.expired = slices.DeleteFunc(tx.store.expired, func(k string) bool {
		return slices.Contains(tx.pending, k)
	})
	return nil
}

func (tx *memTokenTx) Rollback(context.Context) error { return nil }

type stubTrips struct {
	trips []store.Trip
	err   error
	from  time.Time
	days  int
}

func (s *stubTrips) Generate(_ context.Context, from time.Time, days int) ([]store.Trip, error) {
	s.from, s.days = from, days
	return s.trips, s.err
}
