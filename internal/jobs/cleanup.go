package jobs

import (
	"context"
	"fmt"

	"github.com/dmitrymomot/ridekit/pkg/batch"
	"github.com/dmitrymomot/ridekit/pkg/fanout"
	"github.com/dmitrymomot/ridekit/pkg/logger"
	"github.com/dmitrymomot/ridekit/pkg/queue"
)

// CleanupMetrics is the payload of metrics:updated after a cleanup run
type CleanupMetrics struct {
	Metric  string `json:"metric"`
	Deleted int64  `json:"deleted"`
	Batches int    `json:"batches"`
	Done    bool   `json:"done"`
}

// ContinuationKey is the dedupe key of the job that resumes a bounded run
func ContinuationKey(info queue.JobInfo) string {
	return TokensCleanup.Name() + ":continue:" + info.ID.String()
}

// CleanupTokens deletes expired refresh tokens in bounded batches. When the
// run stops on a bound a continuation job picks up the rest.
func (h *Handlers) CleanupTokens(ctx context.Context, p CleanupPayload) error {
	size := h.cfg.CleanupBatchSize
	if p.BatchSize > 0 {
		size = p.BatchSize
	}

	proc, err := batch.NewProcessor(h.tokens.ExpiredSource(h.now()),
		batch.WithName(TokensCleanup.Name()),
		batch.WithSize(size),
		batch.WithMaxBatches(h.cfg.CleanupMaxBatches),
		batch.WithMaxDuration(h.cfg.CleanupMaxDuration),
		batch.WithLogger(h.logger),
		batch.WithClock(h.now),
	)
	if err != nil {
		return err
	}

	res, err := proc.Run(ctx)
	if res.Deleted > 0 || err == nil {
		h.publish(ctx, fanout.AdminRoom, fanout.KindMetricsUpdated, CleanupMetrics{
			Metric:  "refresh_tokens.deleted",
			Deleted: res.Deleted,
			Batches: res.Batches,
			Done:    res.Done && err == nil,
		})
	}
	if err != nil {
		// Committed batches stay deleted; the retry only sees the remainder
		return err
	}

	h.logger.InfoContext(ctx, "refresh tokens cleaned up",
		logger.Count(int(res.Deleted)),
		logger.Component(TokensCleanup.Name()))

	if res.Done {
		return nil
	}

	info, ok := queue.JobInfoFromContext(ctx)
	if !ok {
		return ErrMissingJobInfo
	}
	id, err := h.enqueuer.Enqueue(ctx, TokensCleanup.Name(), p, queue.WithDedupeKey(ContinuationKey(info)))
	if err != nil {
		return fmt.Errorf("enqueue cleanup continuation: %w", err)
	}
	h.logger.InfoContext(ctx, "cleanup continuation enqueued", logger.JobID(id.String()))
	return nil
}
