package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/ridekit/pkg/logger"
)

// DefaultSize is the number of keys selected per transaction
const DefaultSize = 500

// Tx is one batch transaction over keys of type K
type Tx[K any] interface {
	// Select locks and returns up to limit keys eligible for deletion
	Select(ctx context.Context, limit int) ([]K, error)
	// Delete removes the given keys and reports how many rows went away
	Delete(ctx context.Context, keys []K) (int64, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Source opens batch transactions
type Source[K any] interface {
	Begin(ctx context.Context) (Tx[K], error)
}

// Result summarizes a run
type Result struct {
	Deleted int64
	Batches int
	// Done is true when the source had nothing left to delete
	Done bool
}

// Processor deletes everything a Source selects, one bounded transaction at a time
type Processor[K any] struct {
	source      Source[K]
	name        string
	size        int
	maxBatches  int
	maxDuration time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

// NewProcessor creates a processor for source
func NewProcessor[K any](source Source[K], opts ...Option) (*Processor[K], error) {
	if source == nil {
		return nil, ErrSourceNil
	}

	o := &options{
		name:   "batch",
		size:   DefaultSize,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}

	return &Processor[K]{
		source:      source,
		name:        o.name,
		size:        o.size,
		maxBatches:  o.maxBatches,
		maxDuration: o.maxDuration,
		logger:      o.logger,
		now:         o.now,
	}, nil
}

// Run processes batches until the source is drained, a bound is hit, ctx is
// cancelled or a batch fails. The result always reflects the committed batches.
func (p *Processor[K]) Run(ctx context.Context) (Result, error) {
	var res Result
	start := p.now()

	for {
		if p.maxBatches > 0 && res.Batches >= p.maxBatches {
			p.logBound(ctx, res, "max batches reached")
			return res, nil
		}
		if p.maxDuration > 0 && p.now().Sub(start) >= p.maxDuration {
			p.logBound(ctx, res, "max duration reached")
			return res, nil
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}

		selected, deleted, err := p.runBatch(ctx)
		if err != nil {
			p.logger.ErrorContext(ctx, "batch rolled back",
				logger.Component(p.name),
				slog.Int("batch", res.Batches+1),
				slog.Int64("deleted_so_far", res.Deleted),
				logger.Error(err))
			return res, errors.Join(ErrBatchFailed, err)
		}
		if selected == 0 {
			res.Done = true
			break
		}

		res.Deleted += deleted
		res.Batches++

		p.logger.DebugContext(ctx, "batch committed",
			logger.Component(p.name),
			slog.Int("batch", res.Batches),
			slog.Int64("deleted", deleted))

		// A short batch means the source was drained when it was selected
		if selected < p.size {
			res.Done = true
			break
		}
	}

	p.logger.InfoContext(ctx, "batch run finished",
		logger.Component(p.name),
		slog.Int("batches", res.Batches),
		slog.Int64("deleted", res.Deleted),
		logger.Duration(p.now().Sub(start)))

	return res, nil
}

// runBatch executes one select/delete/commit cycle
func (p *Processor[K]) runBatch(ctx context.Context) (selected int, deleted int64, err error) {
	tx, err := p.source.Begin(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("begin: %w", err)
	}

	// Rollback must happen even when ctx is already cancelled
	rollback := func(cause error) error {
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
			return errors.Join(cause, fmt.Errorf("rollback: %w", rbErr))
		}
		return cause
	}

	keys, err := tx.Select(ctx, p.size)
	if err != nil {
		return 0, 0, rollback(fmt.Errorf("select: %w", err))
	}

	if len(keys) > 0 {
		deleted, err = tx.Delete(ctx, keys)
		if err != nil {
			return 0, 0, rollback(fmt.Errorf("delete: %w", err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, rollback(fmt.Errorf("commit: %w", err))
	}

	return len(keys), deleted, nil
}

func (p *Processor[K]) logBound(ctx context.Context, res Result, reason string) {
	p.logger.InfoContext(ctx, "batch run stopped early, continuation needed",
		logger.Component(p.name),
		slog.String("reason", reason),
		slog.Int("batches", res.Batches),
		slog.Int64("deleted", res.Deleted))
}
