package fanout

import (
	"context"
	"sync/atomic"
)

// Callback handles a delivered event
type Callback func(Event)

// Subscription dispatches events from a connection to the most recently set
// callback. Events are handled one at a time in delivery order; a callback
// swap applies to every event dispatched after SetCallback returns.
type Subscription struct {
	events <-chan Event
	cb     atomic.Pointer[Callback]
	done   chan struct{}
}

// NewSubscription creates a subscription over events. A nil callback drops
// events until one is set.
func NewSubscription(events <-chan Event, cb Callback) *Subscription {
	s := &Subscription{
		events: events,
		done:   make(chan struct{}),
	}
	s.SetCallback(cb)
	return s
}

// SetCallback replaces the callback
func (s *Subscription) SetCallback(cb Callback) {
	if cb == nil {
		s.cb.Store(nil)
		return
	}
	s.cb.Store(&cb)
}

// Run dispatches events until the channel closes or ctx is done.
// It must be called once.
func (s *Subscription) Run(ctx context.Context) {
	defer close(s.done)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-s.events:
			if !ok {
				return
			}
			if cb := s.cb.Load(); cb != nil {
				(*cb)(ev)
			}
		}
	}
}

// Done is closed when Run returns
func (s *Subscription) Done() <-chan struct{} { return s.done }
