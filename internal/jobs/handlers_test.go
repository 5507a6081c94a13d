package jobs_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/ridekit/internal/jobs"
	"github.com/dmitrymomot/ridekit/internal/store"
	"github.com/dmitrymomot/ridekit/pkg/fanout"
	"github.com/dmitrymomot/ridekit/pkg/queue"
	"github.com/dmitrymomot/ridekit/pkg/validator"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	handlers      *jobs.Handlers
	storage       *queue.MemoryStorage
	publisher     *recordingPublisher
	notifications *memNotifications
	tokens        *memTokens
	trips         *stubTrips
}

func newFixture(t *testing.T, cfg jobs.Config, tokens int) *fixture {
	t.Helper()

	f := &fixture{
		storage:       queue.NewMemoryStorage(queue.WithMemoryClock(func() time.Time { return testNow })),
		publisher:     &recordingPublisher{},
		notifications: newMemNotifications(),
		tokens:        newMemTokens(tokens),
		trips:         &stubTrips{},
	}
	enq, err := queue.NewEnqueuer(f.storage, queue.WithEnqueuerClock(func() time.Time { return testNow }))
	require.NoError(t, err)

	f.handlers, err = jobs.New(jobs.Deps{
		Notifications: f.notifications,
		Tokens:        f.tokens,
		Trips:         f.trips,
		Publisher:     f.publisher,
		Enqueuer:      enq,
		Logger:        quietLogger(),
		Now:           func() time.Time { return testNow },
	}, cfg)
	require.NoError(t, err)
	return f
}

func jobContext(id uuid.UUID, topic string) context.Context {
	return queue.WithJobInfo(context.Background(), &queue.Job{ID: id, Topic: topic, AttemptsMade: 1, MaxAttempts: 3})
}

func TestNew_MissingDependencies(t *testing.T) {
	t.Parallel()

	h, err := jobs.New(jobs.Deps{Publisher: &recordingPublisher{}}, jobs.DefaultConfig())
	assert.ErrorIs(t, err, jobs.ErrMissingDependency)
	assert.ErrorContains(t, err, "token store")
	assert.Nil(t, h)
}

func TestBroadcastNotifications(t *testing.T) {
	t.Parallel()

	payload := jobs.BroadcastPayload{
		Recipients: []string{"u1", "u2", "u1"},
		Title:      "Trip delayed",
		Message:    "Departure moved by 10 minutes",
		Data:       map[string]any{"trip_id": "t1"},
	}

	t.Run("one notification per recipient and event per user room", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, jobs.DefaultConfig(), 0)
		jobID := uuid.New()

		require.NoError(t, f.handlers.BroadcastNotifications(jobContext(jobID, "notifications.broadcast"), payload))
		assert.Equal(t, 2, f.notifications.Len())

		events := f.publisher.Events()
		require.Len(t, events, 2)
		assert.Equal(t, fanout.UserRoom("u1"), events[0].Room)
		assert.Equal(t, fanout.UserRoom("u2"), events[1].Room)

		var ev jobs.NotificationEvent
		require.NoError(t, json.Unmarshal(events[0].Payload, &ev))
		assert.Equal(t, fanout.KindNotificationCreated, events[0].Kind)
		assert.Equal(t, jobs.NotificationID(jobID, "u1").String(), ev.ID)
		assert.Equal(t, "Trip delayed", ev.Title)
		assert.Equal(t, "t1", ev.Data["trip_id"])
	})

	t.Run("retry of the same job creates no duplicates", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, jobs.DefaultConfig(), 0)
		ctx := jobContext(uuid.New(), "notifications.broadcast")

		require.NoError(t, f.handlers.BroadcastNotifications(ctx, payload))
		require.NoError(t, f.handlers.BroadcastNotifications(ctx, payload))
		assert.Equal(t, 2, f.notifications.Len())

		// a different job is a different broadcast
		require.NoError(t, f.handlers.BroadcastNotifications(jobContext(uuid.New(), "notifications.broadcast"), payload))
		assert.Equal(t, 4, f.notifications.Len())
	})

	t.Run("bulk event above threshold", func(t *testing.T) {
		t.Parallel()
		cfg := jobs.DefaultConfig()
		cfg.BulkThreshold = 1
		f := newFixture(t, cfg, 0)

		require.NoError(t, f.handlers.BroadcastNotifications(jobContext(uuid.New(), "notifications.broadcast"), payload))

		events := f.publisher.Events()
		require.Len(t, events, 1)
		assert.Equal(t, fanout.AdminRoom, events[0].Room)
		assert.Equal(t, fanout.KindNotificationBulk, events[0].Kind)
		assert.JSONEq(t, `{"title":"Trip delayed","recipients":2,"created":2}`, string(events[0].Payload))
	})

	t.Run("publish failure does not fail the job", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, jobs.DefaultConfig(), 0)
		f.publisher.err = errors.New("redis down")

		assert.NoError(t, f.handlers.BroadcastNotifications(jobContext(uuid.New(), "notifications.broadcast"), payload))
		assert.Equal(t, 2, f.notifications.Len())
	})

	t.Run("store failure fails the job", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, jobs.DefaultConfig(), 0)
		f.notifications.err = errors.New("deadlock detected")

		err := f.handlers.BroadcastNotifications(jobContext(uuid.New(), "notifications.broadcast"), payload)
		assert.EqualError(t, err, "deadlock detected")
		assert.Empty(t, f.publisher.Events())
	})

	t.Run("requires job info", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, jobs.DefaultConfig(), 0)

		err := f.handlers.BroadcastNotifications(context.Background(), payload)
		assert.ErrorIs(t, err, jobs.ErrMissingJobInfo)
	})

	t.Run("payload schema is checked", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, jobs.DefaultConfig(), 0)

		handler := jobs.NotificationsBroadcast.Handler(f.handlers.BroadcastNotifications)
		err := handler.Handle(jobContext(uuid.New(), "notifications.broadcast"), json.RawMessage(`{"title":"x"}`))
		assert.ErrorIs(t, err, queue.ErrInvalidPayload)
		assert.Equal(t, []string{"recipients"}, validator.ExtractValidationErrors(err).Fields())
	})
}

func TestCleanupTokens(t *testing.T) {
	t.Parallel()

	t.Run("deletes every expired token", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, jobs.DefaultConfig(), 1200)

		err := f.handlers.CleanupTokens(jobContext(uuid.New(), "tokens.cleanup"), jobs.CleanupPayload{BatchSize: 500})
		require.NoError(t, err)

		assert.Zero(t, f.tokens.Remaining())
		assert.Equal(t, []time.Time{testNow}, f.tokens.cutoffs)

		events := f.publisher.Events()
		require.Len(t, events, 1)
		assert.Equal(t, fanout.AdminRoom, events[0].Room)
		assert.Equal(t, fanout.KindMetricsUpdated, events[0].Kind)
		assert.JSONEq(t, `{"metric":"refresh_tokens.deleted","deleted":1200,"batches":3,"done":true}`, string(events[0].Payload))

		count, err := f.storage.CountJobs(context.Background(), "tokens.cleanup", queue.StateWaiting)
		require.NoError(t, err)
		assert.Zero(t, count, "no continuation when drained")
	})

	t.Run("bounded run enqueues one continuation", func(t *testing.T) {
		t.Parallel()
		cfg := jobs.DefaultConfig()
		cfg.CleanupMaxBatches = 1
		f := newFixture(t, cfg, 1200)

		jobID := uuid.New()
		ctx := jobContext(jobID, "tokens.cleanup")
		require.NoError(t, f.handlers.CleanupTokens(ctx, jobs.CleanupPayload{BatchSize: 500}))
		assert.Equal(t, 700, f.tokens.Remaining())

		// a retry of the same job must not add a second continuation
		require.NoError(t, f.handlers.CleanupTokens(ctx, jobs.CleanupPayload{BatchSize: 500}))
		assert.Equal(t, 200, f.tokens.Remaining())

		waiting, err := f.storage.ListJobs(context.Background(), queue.ListFilter{Topic: "tokens.cleanup", State: queue.StateWaiting})
		require.NoError(t, err)
		require.Len(t, waiting, 1)
		assert.Equal(t, jobs.ContinuationKey(queue.JobInfo{ID: jobID}), waiting[0].DedupeKey)
		assert.JSONEq(t, `{"batch_size":500}`, string(waiting[0].Payload))
	})

	t.Run("uses configured batch size", func(t *testing.T) {
		t.Parallel()
		cfg := jobs.DefaultConfig()
		cfg.CleanupBatchSize = 100
		f := newFixture(t, cfg, 250)

		require.NoError(t, f.handlers.CleanupTokens(jobContext(uuid.New(), "tokens.cleanup"), jobs.CleanupPayload{}))

		events := f.publisher.Events()
		require.Len(t, events, 1)
		assert.JSONEq(t, `{"metric":"refresh_tokens.deleted","deleted":250,"batches":3,"done":true}`, string(events[0].Payload))
	})
}

func TestGenerateTrips(t *testing.T) {
	t.Parallel()

	dep := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	t.Run("announces generated trips", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, jobs.DefaultConfig(), 0)
		f.trips.trips = []store.Trip{
			{ID: "t1", RouteID: "r1", DepartureAt: dep},
			{ID: "t2", RouteID: "r1", DepartureAt: dep.Add(time.Hour)},
		}

		require.NoError(t, f.handlers.GenerateTrips(jobContext(uuid.New(), "trips.generate"), jobs.GeneratePayload{}))
		assert.Equal(t, testNow, f.trips.from)
		assert.Equal(t, 14, f.trips.days)

		events := f.publisher.Events()
		require.Len(t, events, 3)
		assert.Equal(t, fanout.AdminRoom, events[0].Room)
		assert.JSONEq(t, `{"entity":"trip","action":"generated","count":2}`, string(events[0].Payload))
		assert.Equal(t, fanout.TripRoom("t1"), events[1].Room)
		assert.Equal(t, fanout.KindEntityChanged, events[1].Kind)
		assert.JSONEq(t, `{"entity":"trip","action":"created","id":"t1","route_id":"r1","departure_at":"2026-03-02T08:00:00Z"}`, string(events[1].Payload))
		assert.Equal(t, fanout.TripRoom("t2"), events[2].Room)
	})

	t.Run("nothing new, nothing published", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, jobs.DefaultConfig(), 0)

		require.NoError(t, f.handlers.GenerateTrips(jobContext(uuid.New(), "trips.generate"), jobs.GeneratePayload{DaysAhead: 3}))
		assert.Equal(t, 3, f.trips.days)
		assert.Empty(t, f.publisher.Events())
	})

	t.Run("store error", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, jobs.DefaultConfig(), 0)
		f.trips.err = errors.New("serialization failure")

		assert.Error(t, f.handlers.GenerateTrips(jobContext(uuid.New(), "trips.generate"), jobs.GeneratePayload{}))
	})
}

func TestDefaultDefinitions(t *testing.T) {
	t.Parallel()

	defs := jobs.DefaultDefinitions()
	require.Len(t, defs, 2)
	for _, d := range defs {
		_, err := queue.ParseSchedule(d.Pattern)
		assert.NoError(t, err, d.Key)
	}
	assert.Equal(t, jobs.TokenCleanupScheduleKey, defs[0].Key)
	assert.Equal(t, "tokens.cleanup", defs[0].Topic)
	assert.Equal(t, jobs.TripGenerationScheduleKey, defs[1].Key)
}
