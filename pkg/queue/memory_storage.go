package queue

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStorage implements all queue repository interfaces for testing and local development.
// Every operation runs under one mutex, so ClaimJob is trivially atomic.
type MemoryStorage struct {
	mu          sync.Mutex
	jobs        map[uuid.UUID]*Job
	byTopic     map[string][]uuid.UUID
	dedupe      map[string]uuid.UUID
	repeatables map[string]*RepeatDefinition
	now         func() time.Time
}

// MemoryStorageOption configures a MemoryStorage
type MemoryStorageOption func(*MemoryStorage)

// WithMemoryClock overrides the time source used for due checks, locks and pruning
func WithMemoryClock(now func() time.Time) MemoryStorageOption {
	return func(ms *MemoryStorage) {
		if now != nil {
			ms.now = now
		}
	}
}

// NewMemoryStorage creates a new in-memory storage implementation
func NewMemoryStorage(opts ...MemoryStorageOption) *MemoryStorage {
	ms := &MemoryStorage{
		jobs:        make(map[uuid.UUID]*Job),
		byTopic:     make(map[string][]uuid.UUID),
		dedupe:      make(map[string]uuid.UUID),
		repeatables: make(map[string]*RepeatDefinition),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(ms)
	}
	return ms
}

// CreateJob implements EnqueuerRepository and SchedulerRepository
func (ms *MemoryStorage) CreateJob(_ context.Context, job *Job) (uuid.UUID, error) {
	if job == nil {
		return uuid.Nil, errors.New("job cannot be nil")
	}
	if job.Topic == "" {
		return uuid.Nil, ErrTopicRequired
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if job.DedupeKey != "" {
		if id, ok := ms.dedupe[job.DedupeKey]; ok {
			return id, nil
		}
	}

	if _, exists := ms.jobs[job.ID]; exists {
		return uuid.Nil, fmt.Errorf("job with ID %s already exists", job.ID)
	}

	jobCopy := cloneJob(job)
	ms.jobs[job.ID] = jobCopy
	ms.byTopic[job.Topic] = append(ms.byTopic[job.Topic], job.ID)
	if job.DedupeKey != "" {
		ms.dedupe[job.DedupeKey] = job.ID
	}

	return job.ID, nil
}

// ClaimJob implements WorkerRepository
func (ms *MemoryStorage) ClaimJob(_ context.Context, topic string, workerID uuid.UUID, lockFor time.Duration) (*Job, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := ms.now()
	var best *Job

	// Earliest due job wins; creation time breaks ties so equal run times stay FIFO
	for _, id := range ms.byTopic[topic] {
		job := ms.jobs[id]
		if !job.State.Claimable() || job.NextRunAt.After(now) {
			continue
		}
		if best == nil ||
			job.NextRunAt.Before(best.NextRunAt) ||
			(job.NextRunAt.Equal(best.NextRunAt) && job.CreatedAt.Before(best.CreatedAt)) {
			best = job
		}
	}

	if best == nil {
		return nil, ErrNoJobToClaim
	}

	lockUntil := now.Add(lockFor)
	owner := workerID
	best.State = StateActive
	best.AttemptsMade++
	best.LockedBy = &owner
	best.LockedUntil = &lockUntil
	best.StartedAt = &now

	return cloneJob(best), nil
}

// CompleteJob implements WorkerRepository
func (ms *MemoryStorage) CompleteJob(_ context.Context, jobID, workerID uuid.UUID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	job, err := ms.ownedJob(jobID, workerID)
	if err != nil {
		return err
	}

	now := ms.now()
	job.State = StateCompleted
	job.FinishedAt = &now
	job.LastError = ""
	ms.release(job)

	return nil
}

// RetryJob implements WorkerRepository
func (ms *MemoryStorage) RetryJob(_ context.Context, jobID, workerID uuid.UUID, errMsg string, runAt time.Time) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	job, err := ms.ownedJob(jobID, workerID)
	if err != nil {
		return err
	}

	job.LastError = errMsg
	job.NextRunAt = runAt
	job.State = StateDelayed
	if !runAt.After(ms.now()) {
		job.State = StateWaiting
	}
	job.LockedBy = nil
	job.LockedUntil = nil

	return nil
}

// FailJob implements WorkerRepository
func (ms *MemoryStorage) FailJob(_ context.Context, jobID, workerID uuid.UUID, errMsg string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	job, err := ms.ownedJob(jobID, workerID)
	if err != nil {
		return err
	}

	now := ms.now()
	job.State = StateFailed
	job.LastError = errMsg
	job.FinishedAt = &now
	ms.release(job)

	return nil
}

// ExtendLock implements WorkerRepository
func (ms *MemoryStorage) ExtendLock(_ context.Context, jobID, workerID uuid.UUID, duration time.Duration) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	job, err := ms.ownedJob(jobID, workerID)
	if err != nil {
		return err
	}

	lockUntil := ms.now().Add(duration)
	job.LockedUntil = &lockUntil

	return nil
}

// ReclaimStalled implements WorkerRepository.
// Active jobs whose lock expired go back to waiting, or to failed when the stalled
// attempt was their last one.
func (ms *MemoryStorage) ReclaimStalled(_ context.Context, topic string) (int, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := ms.now()
	reclaimed := 0
	for _, id := range ms.byTopic[topic] {
		job := ms.jobs[id]
		if job.State != StateActive || job.LockedUntil == nil || job.LockedUntil.After(now) {
			continue
		}

		job.LastError = "job stalled: lock expired"
		if job.AttemptsMade >= job.MaxAttempts {
			job.State = StateFailed
			job.FinishedAt = &now
			ms.release(job)
		} else {
			job.State = StateWaiting
			job.NextRunAt = now
			job.LockedBy = nil
			job.LockedUntil = nil
		}
		reclaimed++
	}

	return reclaimed, nil
}

// PruneJobs implements WorkerRepository
func (ms *MemoryStorage) PruneJobs(_ context.Context, opts PruneOptions) (int, error) {
	if !opts.State.Terminal() {
		return 0, fmt.Errorf("cannot prune jobs in state %q", opts.State)
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	var candidates []*Job
	for _, id := range ms.byTopic[opts.Topic] {
		if job := ms.jobs[id]; job.State == opts.State {
			candidates = append(candidates, job)
		}
	}

	// Newest first
	slices.SortFunc(candidates, func(a, b *Job) int {
		return finishedAt(b).Compare(finishedAt(a))
	})

	cutoff := time.Time{}
	if opts.MaxAge > 0 {
		cutoff = ms.now().Add(-opts.MaxAge)
	}

	removed := 0
	for i, job := range candidates {
		tooMany := opts.KeepCount > 0 && i >= opts.KeepCount
		tooOld := !cutoff.IsZero() && finishedAt(job).Before(cutoff)
		if tooMany || tooOld {
			ms.delete(job)
			removed++
		}
	}

	return removed, nil
}

// ReplaceRepeatable implements SchedulerRepository
func (ms *MemoryStorage) ReplaceRepeatable(_ context.Context, def *RepeatDefinition) error {
	if def == nil || def.Key == "" {
		return ErrScheduleKeyRequired
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	d := *def
	d.Payload = slices.Clone(def.Payload)
	if prev, ok := ms.repeatables[def.Key]; ok {
		d.LastFiredAt = prev.LastFiredAt
		if prev.Pattern == def.Pattern {
			d.NextFireAt = prev.NextFireAt
		}
	}
	ms.repeatables[def.Key] = &d

	return nil
}

// RemoveRepeatable implements SchedulerRepository
func (ms *MemoryStorage) RemoveRepeatable(_ context.Context, key string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, ok := ms.repeatables[key]; !ok {
		return ErrRepeatableNotFound
	}
	delete(ms.repeatables, key)

	return nil
}

// ListRepeatables implements SchedulerRepository. An empty topic lists every definition.
func (ms *MemoryStorage) ListRepeatables(_ context.Context, topic string) ([]RepeatDefinition, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	defs := make([]RepeatDefinition, 0, len(ms.repeatables))
	for _, def := range ms.repeatables {
		if topic != "" && def.Topic != topic {
			continue
		}
		d := *def
		d.Payload = slices.Clone(def.Payload)
		defs = append(defs, d)
	}
	slices.SortFunc(defs, func(a, b RepeatDefinition) int { return cmp.Compare(a.Key, b.Key) })

	return defs, nil
}

// AdvanceRepeatable implements SchedulerRepository
func (ms *MemoryStorage) AdvanceRepeatable(_ context.Context, key string, from, to time.Time) (bool, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	def, ok := ms.repeatables[key]
	if !ok {
		return false, ErrRepeatableNotFound
	}
	if !def.NextFireAt.Equal(from) {
		return false, nil
	}

	def.NextFireAt = to
	switch {
	case to.After(from):
		fired := from
		def.LastFiredAt = &fired
	case to.Before(from):
		// rollback: the occurrence recorded by the forward move was never enqueued
		def.LastFiredAt = nil
	}

	return true, nil
}

// GetJob implements InspectorRepository
func (ms *MemoryStorage) GetJob(_ context.Context, jobID uuid.UUID) (*Job, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	job, ok := ms.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	return cloneJob(job), nil
}

// ListJobs implements InspectorRepository, newest first
func (ms *MemoryStorage) ListJobs(_ context.Context, filter ListFilter) ([]*Job, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	var jobs []*Job
	for _, job := range ms.jobs {
		if filter.Topic != "" && job.Topic != filter.Topic {
			continue
		}
		if filter.State != "" && job.State != filter.State {
			continue
		}
		jobs = append(jobs, cloneJob(job))
	}

	slices.SortFunc(jobs, func(a, b *Job) int { return b.CreatedAt.Compare(a.CreatedAt) })
	if filter.Limit > 0 && len(jobs) > filter.Limit {
		jobs = jobs[:filter.Limit]
	}

	return jobs, nil
}

// CountJobs implements InspectorRepository
func (ms *MemoryStorage) CountJobs(_ context.Context, topic string, state State) (int, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	count := 0
	for _, id := range ms.byTopic[topic] {
		if state == "" || ms.jobs[id].State == state {
			count++
		}
	}
	return count, nil
}

// Helper methods

func (ms *MemoryStorage) ownedJob(jobID, workerID uuid.UUID) (*Job, error) {
	job, ok := ms.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	if job.State != StateActive {
		return nil, ErrJobNotActive
	}
	if job.LockedBy == nil || *job.LockedBy != workerID {
		return nil, ErrLockLost
	}
	return job, nil
}

// release clears the lock and the dedupe reservation of a job that reached a terminal state
func (ms *MemoryStorage) release(job *Job) {
	job.LockedBy = nil
	job.LockedUntil = nil
	if job.DedupeKey != "" && ms.dedupe[job.DedupeKey] == job.ID {
		delete(ms.dedupe, job.DedupeKey)
	}
}

func (ms *MemoryStorage) delete(job *Job) {
	ms.release(job)
	ms.byTopic[job.Topic] = slices.DeleteFunc(ms.byTopic[job.Topic], func(id uuid.UUID) bool {
		return id == job.ID
	})
	delete(ms.jobs, job.ID)
}

func finishedAt(job *Job) time.Time {
	if job.FinishedAt != nil {
		return *job.FinishedAt
	}
	return job.CreatedAt
}

func cloneJob(job *Job) *Job {
	c := *job
	c.Payload = slices.Clone(job.Payload)
	if job.LockedBy != nil {
		id := *job.LockedBy
		c.LockedBy = &id
	}
	if job.LockedUntil != nil {
		t := *job.LockedUntil
		c.LockedUntil = &t
	}
	if job.StartedAt != nil {
		t := *job.StartedAt
		c.StartedAt = &t
	}
	if job.FinishedAt != nil {
		t := *job.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}
