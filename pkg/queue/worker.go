package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/ridekit/pkg/logger"
)

// WorkerRepository defines the interface for worker operations
type WorkerRepository interface {
	// ClaimJob atomically takes the earliest due waiting/delayed job of the topic,
	// marks it active and counts the attempt. Returns ErrNoJobToClaim when none is due.
	ClaimJob(ctx context.Context, topic string, workerID uuid.UUID, lockFor time.Duration) (*Job, error)

	// CompleteJob marks an active job owned by workerID as completed
	CompleteJob(ctx context.Context, jobID, workerID uuid.UUID) error

	// RetryJob records the error and puts the job back as delayed until runAt
	RetryJob(ctx context.Context, jobID, workerID uuid.UUID, errMsg string, runAt time.Time) error

	// FailJob moves the job to the terminal failed state
	FailJob(ctx context.Context, jobID, workerID uuid.UUID, errMsg string) error

	// ExtendLock pushes the lock expiry of a running job forward
	ExtendLock(ctx context.Context, jobID, workerID uuid.UUID, duration time.Duration) error

	// ReclaimStalled releases active jobs of the topic whose lock has expired
	ReclaimStalled(ctx context.Context, topic string) (int, error)

	// PruneJobs deletes terminal jobs beyond the retention bounds
	PruneJobs(ctx context.Context, opts PruneOptions) (int, error)
}

// Worker runs registered handlers against the queue with bounded concurrency per topic
type Worker struct {
	repo          WorkerRepository
	registrations map[string]*registration
	workerID      uuid.UUID
	wg            sync.WaitGroup
	mu            sync.RWMutex

	// Configuration
	pollInterval       time.Duration
	lockTimeout        time.Duration
	jobTimeout         time.Duration
	stallInterval      time.Duration
	defaultConcurrency int
	defaultPolicy      RetryPolicy
	logger             *slog.Logger
	now                func() time.Time

	// State management
	ctx    context.Context
	cancel context.CancelFunc
}

type registration struct {
	handler     Handler
	concurrency int
	policy      RetryPolicy
}

// NewWorker creates a new job worker
func NewWorker(repo WorkerRepository, opts ...WorkerOption) (*Worker, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}

	options := &workerOptions{
		pollInterval:       time.Second,
		lockTimeout:        5 * time.Minute,
		stallInterval:      30 * time.Second,
		defaultConcurrency: 1,
		defaultPolicy:      DefaultRetryPolicy(),
		logger:             slog.Default(),
		now:                time.Now,
	}
	for _, opt := range opts {
		opt(options)
	}

	jobTimeout := options.jobTimeout
	if jobTimeout <= 0 {
		jobTimeout = options.lockTimeout
	}

	return &Worker{
		repo:               repo,
		registrations:      make(map[string]*registration),
		workerID:           uuid.New(),
		pollInterval:       options.pollInterval,
		lockTimeout:        options.lockTimeout,
		jobTimeout:         jobTimeout,
		stallInterval:      options.stallInterval,
		defaultConcurrency: options.defaultConcurrency,
		defaultPolicy:      options.defaultPolicy,
		logger:             options.logger,
		now:                options.now,
	}, nil
}

// Register adds the handler for its topic
func (w *Worker) Register(handler Handler, opts ...RegisterOption) error {
	if handler == nil {
		return nil
	}
	if handler.Topic() == "" {
		return ErrTopicRequired
	}

	options := &registerOptions{
		concurrency: w.defaultConcurrency,
		policy:      w.defaultPolicy,
	}
	for _, opt := range opts {
		opt(options)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel != nil {
		return ErrWorkerAlreadyStarted
	}
	if _, exists := w.registrations[handler.Topic()]; exists {
		return fmt.Errorf("%w: %s", ErrTopicAlreadyRegistered, handler.Topic())
	}

	w.registrations[handler.Topic()] = &registration{
		handler:     handler,
		concurrency: options.concurrency,
		policy:      options.policy,
	}
	return nil
}

// Topics returns the registered topic names
func (w *Worker) Topics() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	topics := make([]string, 0, len(w.registrations))
	for topic := range w.registrations {
		topics = append(topics, topic)
	}
	return topics
}

// Start begins processing jobs in the background
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel != nil {
		return ErrWorkerAlreadyStarted
	}
	if len(w.registrations) == 0 {
		return ErrNoHandlers
	}

	w.ctx, w.cancel = context.WithCancel(ctx)

	for _, reg := range w.registrations {
		for range reg.concurrency {
			w.wg.Add(1)
			go w.runSlot(reg)
		}

		w.wg.Add(1)
		go w.runReaper(reg.handler.Topic())

		w.logger.Info("worker topic started",
			slog.String("worker_id", w.workerID.String()),
			logger.Topic(reg.handler.Topic()),
			slog.Int("concurrency", reg.concurrency))
	}

	return nil
}

// Stop gracefully shuts down the worker, waiting for in-flight jobs
func (w *Worker) Stop() error {
	w.mu.Lock()
	if w.cancel == nil {
		w.mu.Unlock()
		return ErrWorkerNotStarted
	}
	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	cancel()

	w.logger.Info("worker stopping, waiting for active jobs to complete",
		slog.String("worker_id", w.workerID.String()))

	w.wg.Wait()

	w.logger.Info("worker stopped",
		slog.String("worker_id", w.workerID.String()))

	return nil
}

// Run starts the worker and returns a function suitable for errgroup
func (w *Worker) Run(ctx context.Context) func() error {
	return func() error {
		if err := w.Start(ctx); err != nil {
			return err
		}

		<-ctx.Done()

		return w.Stop()
	}
}

// runSlot is one execution slot: claim, execute, report, repeat
func (w *Worker) runSlot(reg *registration) {
	defer w.wg.Done()

	for {
		if w.ctx.Err() != nil {
			return
		}

		claimed, err := w.pullAndProcess(reg)
		if err != nil {
			w.logger.Error("failed to process job",
				slog.String("worker_id", w.workerID.String()),
				logger.Topic(reg.handler.Topic()),
				logger.Error(err))
		}
		if claimed {
			continue
		}

		timer := time.NewTimer(w.pollInterval)
		select {
		case <-w.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// runReaper periodically returns stalled jobs of a topic to the queue
func (w *Worker) runReaper(topic string) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.stallInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			n, err := w.repo.ReclaimStalled(w.ctx, topic)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					w.logger.Error("failed to reclaim stalled jobs", logger.Topic(topic), logger.Error(err))
				}
				continue
			}
			if n > 0 {
				w.logger.Warn("reclaimed stalled jobs", logger.Topic(topic), slog.Int("count", n))
			}
		}
	}
}

// pullAndProcess claims one job and processes it
func (w *Worker) pullAndProcess(reg *registration) (bool, error) {
	job, err := w.repo.ClaimJob(w.ctx, reg.handler.Topic(), w.workerID, w.lockTimeout)
	if err != nil {
		if errors.Is(err, ErrNoJobToClaim) || errors.Is(err, context.Canceled) {
			return false, nil
		}
		return false, fmt.Errorf("failed to claim job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	w.logger.Debug("claimed job",
		slog.String("worker_id", w.workerID.String()),
		logger.JobID(job.ID.String()),
		logger.Topic(job.Topic),
		logger.Attempt(job.AttemptsMade, job.MaxAttempts))

	return true, w.processJob(reg, job)
}

// processJob executes a job with its handler and reports the outcome.
// Reporting uses a context detached from worker shutdown so a graceful stop
// still records the result of jobs that were already running.
func (w *Worker) processJob(reg *registration, job *Job) error {
	start := time.Now()
	reportCtx := context.WithoutCancel(w.ctx)

	stopHeartbeat := w.startHeartbeat(reportCtx, job)
	execErr := w.execute(reportCtx, reg.handler, job)
	stopHeartbeat()

	duration := time.Since(start)
	if execErr != nil {
		return w.handleJobFailure(reportCtx, reg, job, execErr, duration)
	}
	return w.handleJobSuccess(reportCtx, reg, job, duration)
}

// execute runs the handler, turning panics into errors
func (w *Worker) execute(ctx context.Context, handler Handler, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in handler: %v", r)
			w.logger.Error("handler panicked",
				slog.String("worker_id", w.workerID.String()),
				logger.JobID(job.ID.String()),
				logger.Topic(job.Topic),
				slog.Any("panic", r))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	return handler.Handle(WithJobInfo(ctx, job), job.Payload)
}

// startHeartbeat extends the job lock every half lock timeout until the returned func is called
func (w *Worker) startHeartbeat(ctx context.Context, job *Job) func() {
	done := make(chan struct{})
	finished := make(chan struct{})

	go func() {
		defer close(finished)

		ticker := time.NewTicker(w.lockTimeout / 2)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := w.repo.ExtendLock(ctx, job.ID, w.workerID, w.lockTimeout); err != nil {
					w.logger.Warn("failed to extend job lock",
						logger.JobID(job.ID.String()),
						logger.Topic(job.Topic),
						logger.Error(err))
					if errors.Is(err, ErrLockLost) || errors.Is(err, ErrJobNotActive) {
						return
					}
				}
			}
		}
	}()

	return func() {
		close(done)
		<-finished
	}
}

// handleJobFailure asks the retry policy whether the job gets another attempt.
// Permanent and transient errors are treated alike: both consume the attempt budget.
func (w *Worker) handleJobFailure(ctx context.Context, reg *registration, job *Job, execErr error, duration time.Duration) error {
	retryAt, retry := reg.policy.Decide(job, w.now())

	if retry {
		if err := w.repo.RetryJob(ctx, job.ID, w.workerID, execErr.Error(), retryAt); err != nil {
			return fmt.Errorf("failed to schedule retry for job %s: %w", job.ID, err)
		}

		w.logger.Warn("job failed, retry scheduled",
			slog.String("worker_id", w.workerID.String()),
			logger.JobID(job.ID.String()),
			logger.Topic(job.Topic),
			logger.Attempt(job.AttemptsMade, job.MaxAttempts),
			slog.Time("retry_at", retryAt),
			logger.Duration(duration),
			logger.Error(execErr))
		return nil
	}

	if err := w.repo.FailJob(ctx, job.ID, w.workerID, execErr.Error()); err != nil {
		return fmt.Errorf("failed to mark job %s as failed: %w", job.ID, err)
	}

	w.logger.Error("job failed permanently",
		slog.String("worker_id", w.workerID.String()),
		logger.JobID(job.ID.String()),
		logger.Topic(job.Topic),
		logger.Attempt(job.AttemptsMade, job.MaxAttempts),
		logger.Duration(duration),
		logger.Error(execErr))

	w.prune(ctx, reg, StateFailed)
	return nil
}

// handleJobSuccess processes successful job completion
func (w *Worker) handleJobSuccess(ctx context.Context, reg *registration, job *Job, duration time.Duration) error {
	if err := w.repo.CompleteJob(ctx, job.ID, w.workerID); err != nil {
		return fmt.Errorf("failed to mark job %s as completed: %w", job.ID, err)
	}

	w.logger.Info("job completed",
		slog.String("worker_id", w.workerID.String()),
		logger.JobID(job.ID.String()),
		logger.Topic(job.Topic),
		logger.Duration(duration))

	w.prune(ctx, reg, StateCompleted)
	return nil
}

// prune applies the retention rules of the topic; failures only get logged
func (w *Worker) prune(ctx context.Context, reg *registration, state State) {
	opts, ok := reg.policy.pruneOptions(reg.handler.Topic(), state)
	if !ok {
		return
	}
	if _, err := w.repo.PruneJobs(ctx, opts); err != nil {
		w.logger.Warn("failed to prune jobs",
			logger.Topic(opts.Topic),
			slog.String("state", string(state)),
			logger.Error(err))
	}
}

// WorkerInfo returns information about the worker
func (w *Worker) WorkerInfo() (id string, hostname string, pid int) {
	hostname, _ = os.Hostname()
	return w.workerID.String(), hostname, os.Getpid()
}
