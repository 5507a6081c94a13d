package queue

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// JobInfo describes the job a handler is currently executing.
type JobInfo struct {
	ID           uuid.UUID
	Topic        string
	AttemptsMade int
	MaxAttempts  int
}

type jobInfoKey struct{}

// WithJobInfo stores the job metadata in the context passed to handlers.
func WithJobInfo(ctx context.Context, job *Job) context.Context {
	if job == nil {
		return ctx
	}
	return context.WithValue(ctx, jobInfoKey{}, JobInfo{
		ID:           job.ID,
		Topic:        job.Topic,
		AttemptsMade: job.AttemptsMade,
		MaxAttempts:  job.MaxAttempts,
	})
}

// JobInfoFromContext returns the metadata of the running job, if any.
func JobInfoFromContext(ctx context.Context) (JobInfo, bool) {
	if ctx == nil {
		return JobInfo{}, false
	}
	info, ok := ctx.Value(jobInfoKey{}).(JobInfo)
	return info, ok
}

// LogExtractor returns a context extractor adding the running job to log records.
// It matches logger.ContextExtractor.
func LogExtractor() func(ctx context.Context) (slog.Attr, bool) {
	return func(ctx context.Context) (slog.Attr, bool) {
		info, ok := JobInfoFromContext(ctx)
		if !ok {
			return slog.Attr{}, false
		}
		return slog.Group("job",
			slog.String("id", info.ID.String()),
			slog.String("topic", info.Topic),
			slog.Int("attempt", info.AttemptsMade),
		), true
	}
}
