package pgstorage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrymomot/ridekit/pkg/pg"
	"github.com/dmitrymomot/ridekit/pkg/queue"
)

// DB is the subset of *pgxpool.Pool used by Storage. pgx.Tx satisfies it as well.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Storage is the PostgreSQL queue backend
type Storage struct {
	db DB
}

var _ queue.Storage = (*Storage)(nil)

// New creates a Storage on top of db
func New(db DB) (*Storage, error) {
	if db == nil {
		return nil, queue.ErrRepositoryNil
	}
	return &Storage{db: db}, nil
}

// createAttempts bounds the insert/lookup loop when a deduplicated job finishes
// between our conflicting insert and the lookup of its id.
const createAttempts = 3

// CreateJob implements queue.EnqueuerRepository
func (s *Storage) CreateJob(ctx context.Context, job *queue.Job) (uuid.UUID, error) {
	if job == nil {
		return uuid.Nil, errors.New("job cannot be nil")
	}
	if job.Topic == "" {
		return uuid.Nil, queue.ErrTopicRequired
	}

	payload := job.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}

	for range createAttempts {
		var id uuid.UUID
		err := s.db.QueryRow(ctx, insertJobQuery,
			job.ID, job.Topic, payload, string(job.State), job.MaxAttempts,
			job.DedupeKey, job.NextRunAt, job.CreatedAt,
		).Scan(&id)
		if err == nil {
			return id, nil
		}
		if !pg.IsNotFoundError(err) {
			return uuid.Nil, fmt.Errorf("failed to insert job: %w", err)
		}

		// Conflict on the dedupe key: hand back the pending job's id
		err = s.db.QueryRow(ctx, pendingByDedupeKeyQuery, job.DedupeKey).Scan(&id)
		if err == nil {
			return id, nil
		}
		if !pg.IsNotFoundError(err) {
			return uuid.Nil, fmt.Errorf("failed to look up deduplicated job: %w", err)
		}
	}

	return uuid.Nil, fmt.Errorf("failed to insert job with dedupe key %q: conflicting job kept changing state", job.DedupeKey)
}

// ClaimJob implements queue.WorkerRepository
func (s *Storage) ClaimJob(ctx context.Context, topic string, workerID uuid.UUID, lockFor time.Duration) (*queue.Job, error) {
	job, err := scanJob(s.db.QueryRow(ctx, claimJobQuery, topic, workerID, lockFor.Seconds()))
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, queue.ErrNoJobToClaim
		}
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	return job, nil
}

// CompleteJob implements queue.WorkerRepository
func (s *Storage) CompleteJob(ctx context.Context, jobID, workerID uuid.UUID) error {
	return s.execOwned(ctx, jobID, completeJobQuery, jobID, workerID)
}

// RetryJob implements queue.WorkerRepository
func (s *Storage) RetryJob(ctx context.Context, jobID, workerID uuid.UUID, errMsg string, runAt time.Time) error {
	return s.execOwned(ctx, jobID, retryJobQuery, jobID, workerID, errMsg, runAt)
}

// FailJob implements queue.WorkerRepository
func (s *Storage) FailJob(ctx context.Context, jobID, workerID uuid.UUID, errMsg string) error {
	return s.execOwned(ctx, jobID, failJobQuery, jobID, workerID, errMsg)
}

// ExtendLock implements queue.WorkerRepository
func (s *Storage) ExtendLock(ctx context.Context, jobID, workerID uuid.UUID, duration time.Duration) error {
	return s.execOwned(ctx, jobID, extendLockQuery, jobID, workerID, duration.Seconds())
}

// ReclaimStalled implements queue.WorkerRepository
func (s *Storage) ReclaimStalled(ctx context.Context, topic string) (int, error) {
	tag, err := s.db.Exec(ctx, reclaimStalledQuery, topic)
	if err != nil {
		return 0, fmt.Errorf("failed to reclaim stalled jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// PruneJobs implements queue.WorkerRepository
func (s *Storage) PruneJobs(ctx context.Context, opts queue.PruneOptions) (int, error) {
	if !opts.State.Terminal() {
		return 0, fmt.Errorf("cannot prune jobs in state %q", opts.State)
	}
	tag, err := s.db.Exec(ctx, pruneJobsQuery, opts.Topic, string(opts.State), opts.KeepCount, opts.MaxAge.Seconds())
	if err != nil {
		return 0, fmt.Errorf("failed to prune jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ReplaceRepeatable implements queue.SchedulerRepository
func (s *Storage) ReplaceRepeatable(ctx context.Context, def *queue.RepeatDefinition) error {
	if def == nil || def.Key == "" {
		return queue.ErrScheduleKeyRequired
	}
	payload := def.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	if _, err := s.db.Exec(ctx, replaceRepeatableQuery,
		def.Key, def.Topic, def.Pattern, payload, def.MaxAttempts, def.NextFireAt, def.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to replace repeat definition: %w", err)
	}
	return nil
}

// RemoveRepeatable implements queue.SchedulerRepository
func (s *Storage) RemoveRepeatable(ctx context.Context, key string) error {
	tag, err := s.db.Exec(ctx, removeRepeatableQuery, key)
	if err != nil {
		return fmt.Errorf("failed to remove repeat definition: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return queue.ErrRepeatableNotFound
	}
	return nil
}

// ListRepeatables implements queue.SchedulerRepository
func (s *Storage) ListRepeatables(ctx context.Context, topic string) ([]queue.RepeatDefinition, error) {
	rows, err := s.db.Query(ctx, listRepeatablesQuery, topic)
	if err != nil {
		return nil, fmt.Errorf("failed to list repeat definitions: %w", err)
	}

	defs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (queue.RepeatDefinition, error) {
		var def queue.RepeatDefinition
		err := row.Scan(&def.Key, &def.Topic, &def.Pattern, &def.Payload, &def.MaxAttempts,
			&def.NextFireAt, &def.LastFiredAt, &def.CreatedAt)
		return def, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan repeat definitions: %w", err)
	}
	return defs, nil
}

// AdvanceRepeatable implements queue.SchedulerRepository
func (s *Storage) AdvanceRepeatable(ctx context.Context, key string, from, to time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, advanceRepeatableQuery, key, from, to)
	if err != nil {
		return false, fmt.Errorf("failed to advance repeat definition: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	var exists bool
	if err := s.db.QueryRow(ctx, repeatableExistsQuery, key).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check repeat definition: %w", err)
	}
	if !exists {
		return false, queue.ErrRepeatableNotFound
	}
	return false, nil
}

// GetJob implements queue.InspectorRepository
func (s *Storage) GetJob(ctx context.Context, jobID uuid.UUID) (*queue.Job, error) {
	job, err := scanJob(s.db.QueryRow(ctx, getJobQuery, jobID))
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, queue.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// ListJobs implements queue.InspectorRepository
func (s *Storage) ListJobs(ctx context.Context, filter queue.ListFilter) ([]*queue.Job, error) {
	rows, err := s.db.Query(ctx, listJobsQuery, filter.Topic, string(filter.State), filter.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	jobs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*queue.Job, error) {
		return scanJob(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan jobs: %w", err)
	}
	return jobs, nil
}

// CountJobs implements queue.InspectorRepository
func (s *Storage) CountJobs(ctx context.Context, topic string, state queue.State) (int, error) {
	var n int
	if err := s.db.QueryRow(ctx, countJobsQuery, topic, string(state)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count jobs: %w", err)
	}
	return n, nil
}

// execOwned runs a statement fenced on (job id, state active, locked_by) and
// explains a miss with the matching queue error.
func (s *Storage) execOwned(ctx context.Context, jobID uuid.UUID, query string, args ...any) error {
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update job %s: %w", jobID, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var (
		state    string
		lockedBy *uuid.UUID
	)
	if err := s.db.QueryRow(ctx, jobOwnershipQuery, jobID).Scan(&state, &lockedBy); err != nil {
		if pg.IsNotFoundError(err) {
			return queue.ErrJobNotFound
		}
		return fmt.Errorf("failed to load job %s: %w", jobID, err)
	}
	if queue.State(state) != queue.StateActive {
		return queue.ErrJobNotActive
	}
	return queue.ErrLockLost
}

func scanJob(row pgx.Row) (*queue.Job, error) {
	var (
		job       queue.Job
		state     string
		dedupeKey *string
		lastError *string
	)
	err := row.Scan(
		&job.ID, &job.Topic, &job.Payload, &state, &job.AttemptsMade, &job.MaxAttempts,
		&dedupeKey, &lastError, &job.LockedBy, &job.LockedUntil, &job.NextRunAt,
		&job.CreatedAt, &job.StartedAt, &job.FinishedAt,
	)
	if err != nil {
		return nil, err
	}

	job.State = queue.State(state)
	if dedupeKey != nil {
		job.DedupeKey = *dedupeKey
	}
	if lastError != nil {
		job.LastError = *lastError
	}
	return &job, nil
}
