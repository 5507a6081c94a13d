package queue

import (
	"context"

	"github.com/google/uuid"
)

// InspectorRepository exposes read access to jobs for dashboards and tests
type InspectorRepository interface {
	GetJob(ctx context.Context, jobID uuid.UUID) (*Job, error)
	ListJobs(ctx context.Context, filter ListFilter) ([]*Job, error)
	CountJobs(ctx context.Context, topic string, state State) (int, error)
}

// Storage is implemented by complete queue backends
type Storage interface {
	EnqueuerRepository
	WorkerRepository
	SchedulerRepository
	InspectorRepository
}

var (
	_ Storage = (*MemoryStorage)(nil)
)
