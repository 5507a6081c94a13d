package batch

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/ridekit/pkg/pg"
)

// PgSource runs batches as PostgreSQL transactions.
// The select query receives the limit as $1 followed by args and must return a
// single key column; the delete query receives the keys as $1.
type PgSource[K any] struct {
	db          pg.TxBeginner
	selectQuery string
	deleteQuery string
	args        []any
}

// NewPgSource creates a source over db
func NewPgSource[K any](db pg.TxBeginner, selectQuery, deleteQuery string, args ...any) *PgSource[K] {
	return &PgSource[K]{
		db:          db,
		selectQuery: selectQuery,
		deleteQuery: deleteQuery,
		args:        args,
	}
}

// Begin implements Source
func (s *PgSource[K]) Begin(ctx context.Context) (Tx[K], error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &pgTx[K]{tx: tx, source: s}, nil
}

type pgTx[K any] struct {
	tx     pgx.Tx
	source *PgSource[K]
}

func (t *pgTx[K]) Select(ctx context.Context, limit int) ([]K, error) {
	args := append([]any{limit}, t.source.args...)
	rows, err := t.tx.Query(ctx, t.source.selectQuery, args...)
	if err != nil {
		return nil, err
	}
	keys, err := pgx.CollectRows(rows, pgx.RowTo[K])
	if err != nil {
		return nil, fmt.Errorf("scan keys: %w", err)
	}
	return keys, nil
}

func (t *pgTx[K]) Delete(ctx context.Context, keys []K) (int64, error) {
	tag, err := t.tx.Exec(ctx, t.source.deleteQuery, keys)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (t *pgTx[K]) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *pgTx[K]) Rollback(ctx context.Context) error {
	return t.tx.Rollback(ctx)
}
