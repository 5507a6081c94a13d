// Package queue provides a durable, repository-agnostic job queue with retries,
// delayed execution, deduplication and recurring schedules.
//
// The package is organised around three main components:
//
//   - Enqueuer   adds jobs to a topic
//   - Scheduler  materializes cron definitions into jobs at runtime
//   - Worker     claims due jobs and dispatches them to the registered Handler
//
// Components interact only through small repository interfaces, keeping the
// business logic decoupled from persistence. MemoryStorage implements all of them
// for tests and local development; the pgstorage subpackage is the PostgreSQL
// backend used in production.
//
// # Job lifecycle
//
// A job is created waiting (or delayed when it has a future run time). ClaimJob
// atomically moves the earliest due job of a topic to active and counts the
// attempt. The handler outcome then either completes the job, puts it back as
// delayed with an exponential backoff, or fails it for good once AttemptsMade
// reaches MaxAttempts. A worker that stops heartbeating loses its lock and the
// stall reaper returns the job to waiting.
//
// # Usage
//
//	type CleanupPayload struct {
//	    BatchSize int `json:"batch_size"`
//	}
//
//	var cleanup = queue.NewTopic[CleanupPayload]("tokens.cleanup")
//
//	storage := queue.NewMemoryStorage()
//	enqueuer, _ := queue.NewEnqueuer(storage)
//	_, _ = cleanup.Enqueue(ctx, enqueuer, CleanupPayload{BatchSize: 500},
//	    queue.WithDedupeKey("tokens.cleanup:manual"),
//	)
//
//	worker, _ := queue.NewWorker(storage, queue.WithPollInterval(time.Second))
//	_ = worker.Register(cleanup.Handler(func(ctx context.Context, p CleanupPayload) error {
//	    return nil
//	}), queue.WithConcurrency(2))
//
//	g.Go(worker.Run(ctx))
//
// Recurring job:
//
//	s, _ := queue.NewScheduler(storage, queue.WithCheckInterval(15*time.Second))
//	_ = s.Schedule(ctx, "refresh-token-cleanup", "tokens.cleanup", "@hourly")
//	g.Go(s.Run(ctx))
//
// # Error Handling
//
// Package-level sentinel errors (e.g. ErrLockLost, ErrNoHandlers) signal
// violations of queue invariants and can be checked with errors.Is.
package queue
