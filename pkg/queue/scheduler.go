package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/ridekit/pkg/logger"
)

// SchedulerRepository defines the interface for scheduler operations
type SchedulerRepository interface {
	// CreateJob creates a job, honoring its dedupe key
	CreateJob(ctx context.Context, job *Job) (uuid.UUID, error)

	// ReplaceRepeatable atomically stores def, replacing any definition with the same key.
	// When the stored pattern equals def.Pattern the stored next fire marker is kept.
	ReplaceRepeatable(ctx context.Context, def *RepeatDefinition) error

	// RemoveRepeatable deletes the definition with the given key
	RemoveRepeatable(ctx context.Context, key string) error

	// ListRepeatables returns definitions for topic, or all of them when topic is empty
	ListRepeatables(ctx context.Context, topic string) ([]RepeatDefinition, error)

	// AdvanceRepeatable moves the next fire marker from -> to.
	// It reports false without error when the marker no longer equals from.
	// Moving forward records from as the last fire time, moving back clears it.
	AdvanceRepeatable(ctx context.Context, key string, from, to time.Time) (bool, error)
}

// Definition is a recurring schedule to install
type Definition struct {
	Key         string `yaml:"key"`
	Topic       string `yaml:"topic"`
	Pattern     string `yaml:"pattern"`
	Payload     any    `yaml:"payload,omitempty"`
	MaxAttempts int    `yaml:"max_attempts,omitempty"`
}

// Scheduler materializes repeatable definitions into jobs.
// Any number of replicas may run against the same storage: the fire marker is
// advanced with compare-and-swap and jobs carry a per-fire dedupe key, so each
// fire time produces at most one job.
type Scheduler struct {
	repo               SchedulerRepository
	interval           time.Duration
	defaultMaxAttempts int
	logger             *slog.Logger
	now                func() time.Time

	mu      sync.Mutex
	pending map[string]Definition
}

// NewScheduler creates a new scheduler
func NewScheduler(repo SchedulerRepository, opts ...SchedulerOption) (*Scheduler, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}

	options := &schedulerOptions{
		checkInterval:      15 * time.Second,
		defaultMaxAttempts: DefaultMaxAttempts,
		logger:             slog.Default(),
		now:                time.Now,
	}
	for _, opt := range opts {
		opt(options)
	}

	return &Scheduler{
		repo:               repo,
		interval:           options.checkInterval,
		defaultMaxAttempts: options.defaultMaxAttempts,
		logger:             options.logger,
		now:                options.now,
		pending:            make(map[string]Definition),
	}, nil
}

// Schedule installs or replaces the repeatable definition identified by key.
// Replacement is keyed by key only: a new pattern for an existing key swaps the
// old definition out instead of adding a second one. Re-installing the same
// pattern keeps the pending fire time, so an occurrence that came due while no
// scheduler was running still fires on the next tick.
func (s *Scheduler) Schedule(ctx context.Context, key, topic, pattern string, opts ...ScheduleOption) error {
	if key == "" {
		return ErrScheduleKeyRequired
	}
	if topic == "" {
		return ErrTopicRequired
	}

	sched, err := ParseSchedule(pattern)
	if err != nil {
		return err
	}

	options := &scheduleOptions{maxAttempts: s.defaultMaxAttempts}
	for _, opt := range opts {
		opt(options)
	}

	payload := json.RawMessage(`{}`)
	if options.payload != nil {
		b, err := json.Marshal(options.payload)
		if err != nil {
			return errors.Join(ErrPayloadMarshal, err)
		}
		payload = b
	}

	now := s.now()
	next := sched.Next(now)
	if next.IsZero() {
		return fmt.Errorf("%w: pattern %q never fires", ErrInvalidSchedule, pattern)
	}

	def := &RepeatDefinition{
		Key:         key,
		Topic:       topic,
		Pattern:     pattern,
		Payload:     payload,
		MaxAttempts: options.maxAttempts,
		NextFireAt:  next,
		CreatedAt:   now,
	}

	if err := s.repo.ReplaceRepeatable(ctx, def); err != nil {
		return fmt.Errorf("failed to store repeat definition %q: %w", key, err)
	}

	s.logger.Info("repeatable job scheduled",
		logger.ScheduleKey(key),
		logger.Topic(topic),
		slog.String("pattern", pattern))

	return nil
}

// Unschedule removes the definition identified by key
func (s *Scheduler) Unschedule(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.pending, key)
	s.mu.Unlock()

	if err := s.repo.RemoveRepeatable(ctx, key); err != nil {
		return fmt.Errorf("failed to remove repeat definition %q: %w", key, err)
	}
	return nil
}

// List returns the definitions for topic, or every definition when topic is empty
func (s *Scheduler) List(ctx context.Context, topic string) ([]RepeatDefinition, error) {
	return s.repo.ListRepeatables(ctx, topic)
}

// Install schedules every definition. Definitions that fail on storage errors are
// remembered and retried on each tick; invalid definitions are reported in the
// returned error and dropped.
func (s *Scheduler) Install(ctx context.Context, defs ...Definition) error {
	var invalid []error
	for _, def := range defs {
		err := s.install(ctx, def)
		if err == nil {
			continue
		}
		if isDefinitionError(err) {
			s.logger.Error("invalid repeat definition", logger.ScheduleKey(def.Key), logger.Error(err))
			invalid = append(invalid, err)
			continue
		}

		s.logger.Warn("failed to install repeat definition, will retry",
			logger.ScheduleKey(def.Key),
			logger.Topic(def.Topic),
			logger.Error(err))

		s.mu.Lock()
		s.pending[def.Key] = def
		s.mu.Unlock()
	}
	return errors.Join(invalid...)
}

// Sync installs defs and unschedules every stored definition whose key is not
// among them, so defs becomes the complete set of repeatable jobs. Keys waiting
// for a retried install are kept. Retiring is best effort: storage failures are
// logged and the stale keys are retried by the next Sync. The returned error
// carries invalid definitions only, like Install.
func (s *Scheduler) Sync(ctx context.Context, defs ...Definition) error {
	installErr := s.Install(ctx, defs...)

	keep := make(map[string]struct{}, len(defs))
	for _, def := range defs {
		keep[def.Key] = struct{}{}
	}
	for _, key := range s.Pending() {
		keep[key] = struct{}{}
	}

	stored, err := s.repo.ListRepeatables(ctx, "")
	if err != nil {
		s.logger.Warn("failed to list repeat definitions for retirement", logger.Error(err))
		return installErr
	}

	for _, def := range stored {
		if _, ok := keep[def.Key]; ok {
			continue
		}
		if err := s.Unschedule(ctx, def.Key); err != nil && !errors.Is(err, ErrRepeatableNotFound) {
			s.logger.Warn("failed to retire repeat definition",
				logger.ScheduleKey(def.Key),
				logger.Error(err))
			continue
		}
		s.logger.Info("repeatable job retired",
			logger.ScheduleKey(def.Key),
			logger.Topic(def.Topic))
	}

	return installErr
}

// Pending returns the keys of definitions waiting for a successful install
func (s *Scheduler) Pending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.pending))
	for key := range s.pending {
		keys = append(keys, key)
	}
	return keys
}

func (s *Scheduler) install(ctx context.Context, def Definition) error {
	var opts []ScheduleOption
	if def.Payload != nil {
		opts = append(opts, WithSchedulePayload(def.Payload))
	}
	if def.MaxAttempts > 0 {
		opts = append(opts, WithScheduleMaxAttempts(def.MaxAttempts))
	}
	return s.Schedule(ctx, def.Key, def.Topic, def.Pattern, opts...)
}

func isDefinitionError(err error) bool {
	return errors.Is(err, ErrInvalidSchedule) ||
		errors.Is(err, ErrScheduleKeyRequired) ||
		errors.Is(err, ErrTopicRequired) ||
		errors.Is(err, ErrPayloadMarshal)
}

// Start runs the scheduling loop until ctx is cancelled
func (s *Scheduler) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Check immediately on start
	s.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler shutting down")
			return ctx.Err()
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Run adapts Start to errgroup, treating cancellation as a clean exit
func (s *Scheduler) Run(ctx context.Context) func() error {
	return func() error {
		if err := s.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}
}

// Tick retries pending installs and fires every definition that is due
func (s *Scheduler) Tick(ctx context.Context) {
	s.retryPending(ctx)

	defs, err := s.repo.ListRepeatables(ctx, "")
	if err != nil {
		s.logger.Error("failed to list repeat definitions", logger.Error(err))
		return
	}

	now := s.now()
	for i := range defs {
		def := &defs[i]
		if def.NextFireAt.After(now) {
			continue
		}
		if err := s.fire(ctx, def, now); err != nil {
			s.logger.Error("failed to fire repeatable job",
				logger.ScheduleKey(def.Key),
				logger.Topic(def.Topic),
				logger.Error(err))
		}
	}
}

func (s *Scheduler) retryPending(ctx context.Context) {
	s.mu.Lock()
	pending := make([]Definition, 0, len(s.pending))
	for _, def := range s.pending {
		pending = append(pending, def)
	}
	s.mu.Unlock()

	for _, def := range pending {
		if err := s.install(ctx, def); err != nil {
			s.logger.Warn("repeat definition still not installed",
				logger.ScheduleKey(def.Key),
				logger.Error(err))
			continue
		}

		s.mu.Lock()
		// A newer Install for the same key may have replaced the entry meanwhile
		if current, ok := s.pending[def.Key]; ok && current.Pattern == def.Pattern && current.Topic == def.Topic {
			delete(s.pending, def.Key)
		}
		s.mu.Unlock()
	}
}

// fire advances the durable marker and materializes one job for the fire time.
// Fires missed while no scheduler was running collapse into a single job.
func (s *Scheduler) fire(ctx context.Context, def *RepeatDefinition, now time.Time) error {
	sched, err := ParseSchedule(def.Pattern)
	if err != nil {
		return err
	}

	firedAt := def.NextFireAt
	next := sched.Next(now)
	if next.IsZero() {
		return s.retire(ctx, def, now)
	}

	won, err := s.repo.AdvanceRepeatable(ctx, def.Key, firedAt, next)
	if err != nil {
		return fmt.Errorf("failed to advance fire marker: %w", err)
	}
	if !won {
		s.logger.Debug("repeatable already fired by another scheduler", logger.ScheduleKey(def.Key))
		return nil
	}

	id, err := s.repo.CreateJob(ctx, s.repeatJob(def, firedAt, now))
	if err != nil {
		if _, rbErr := s.repo.AdvanceRepeatable(ctx, def.Key, next, firedAt); rbErr != nil {
			return errors.Join(fmt.Errorf("failed to enqueue repeatable job: %w", err), rbErr)
		}
		return fmt.Errorf("failed to enqueue repeatable job: %w", err)
	}

	s.logger.Info("repeatable job enqueued",
		logger.ScheduleKey(def.Key),
		logger.Topic(def.Topic),
		logger.JobID(id.String()),
		slog.Time("fired_at", firedAt),
		slog.Time("next_fire_at", next))

	return nil
}

// retire handles a definition whose pattern has no future fire time. The pending
// occurrence, if it ever had one, is enqueued before the definition is removed.
func (s *Scheduler) retire(ctx context.Context, def *RepeatDefinition, now time.Time) error {
	if !def.NextFireAt.IsZero() {
		if _, err := s.repo.CreateJob(ctx, s.repeatJob(def, def.NextFireAt, now)); err != nil {
			return fmt.Errorf("failed to enqueue final repeatable job: %w", err)
		}
	}

	if err := s.repo.RemoveRepeatable(ctx, def.Key); err != nil && !errors.Is(err, ErrRepeatableNotFound) {
		return fmt.Errorf("failed to remove exhausted repeat definition: %w", err)
	}

	s.logger.Warn("repeatable job has no future fire times, removed",
		logger.ScheduleKey(def.Key),
		logger.Topic(def.Topic),
		slog.String("pattern", def.Pattern))

	return nil
}

func (s *Scheduler) repeatJob(def *RepeatDefinition, firedAt, now time.Time) *Job {
	maxAttempts := def.MaxAttempts
	if maxAttempts < 1 || maxAttempts > MaxAttemptsLimit {
		maxAttempts = s.defaultMaxAttempts
	}

	job := &Job{
		ID:          uuid.New(),
		Topic:       def.Topic,
		Payload:     def.Payload,
		State:       StateWaiting,
		MaxAttempts: maxAttempts,
		DedupeKey:   RepeatDedupeKey(def.Key, firedAt),
		NextRunAt:   now,
		CreatedAt:   now,
	}
	if len(job.Payload) == 0 {
		job.Payload = json.RawMessage(`{}`)
	}
	return job
}

// RepeatDedupeKey returns the dedupe key of the job materialized for key at firedAt
func RepeatDedupeKey(key string, firedAt time.Time) string {
	return fmt.Sprintf("repeat:%s:%d", key, firedAt.Unix())
}
