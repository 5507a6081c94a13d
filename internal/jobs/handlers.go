package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/ridekit/internal/store"
	"github.com/dmitrymomot/ridekit/pkg/batch"
	"github.com/dmitrymomot/ridekit/pkg/fanout"
	"github.com/dmitrymomot/ridekit/pkg/queue"
)

var (
	ErrMissingDependency = errors.New("jobs: missing dependency")
	ErrMissingJobInfo    = errors.New("jobs: handler called outside of a worker")
)

type (
	NotificationWriter interface {
		InsertMany(ctx context.Context, n store.NewNotification, recipients []store.Recipient) ([]store.Recipient, error)
	}

	ExpiredTokens interface {
		ExpiredSource(cutoff time.Time) batch.Source[string]
	}

	TripGenerator interface {
		Generate(ctx context.Context, from time.Time, days int) ([]store.Trip, error)
	}

	Enqueuer interface {
		Enqueue(ctx context.Context, topic string, payload any, opts ...queue.EnqueueOption) (uuid.UUID, error)
	}
)

// Deps are the collaborators of the job handlers
type Deps struct {
	Notifications NotificationWriter
	Tokens        ExpiredTokens
	Trips         TripGenerator
	Publisher     fanout.Publisher
	Enqueuer      Enqueuer
	Logger        *slog.Logger
	// Now defaults to time.Now
	Now func() time.Time
}

// Handlers implements every application topic
type Handlers struct {
	notifications NotificationWriter
	tokens        ExpiredTokens
	trips         TripGenerator
	publisher     fanout.Publisher
	enqueuer      Enqueuer
	logger        *slog.Logger
	now           func() time.Time
	cfg           Config
}

// New validates deps and creates the handlers
func New(deps Deps, cfg Config) (*Handlers, error) {
	var missing []error
	if deps.Notifications == nil {
		missing = append(missing, errors.New("notifications store"))
	}
	if deps.Tokens == nil {
		missing = append(missing, errors.New("token store"))
	}
	if deps.Trips == nil {
		missing = append(missing, errors.New("trip store"))
	}
	if deps.Publisher == nil {
		missing = append(missing, errors.New("event publisher"))
	}
	if deps.Enqueuer == nil {
		missing = append(missing, errors.New("enqueuer"))
	}
	if len(missing) > 0 {
		return nil, errors.Join(append([]error{ErrMissingDependency}, missing...)...)
	}

	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	return &Handlers{
		notifications: deps.Notifications,
		tokens:        deps.Tokens,
		trips:         deps.Trips,
		publisher:     deps.Publisher,
		enqueuer:      deps.Enqueuer,
		logger:        deps.Logger,
		now:           deps.Now,
		cfg:           cfg,
	}, nil
}

// Register binds every topic to its handler on w
func (h *Handlers) Register(w *queue.Worker) error {
	return errors.Join(
		w.Register(NotificationsBroadcast.Handler(h.BroadcastNotifications), queue.WithConcurrency(h.cfg.BroadcastConcurrency)),
		w.Register(TokensCleanup.Handler(h.CleanupTokens), queue.WithConcurrency(h.cfg.CleanupConcurrency)),
		w.Register(TripsGenerate.Handler(h.GenerateTrips), queue.WithConcurrency(h.cfg.TripsConcurrency)),
	)
}
