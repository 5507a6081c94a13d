package store

import (
	"time"

	"github.com/dmitrymomot/ridekit/pkg/batch"
	"github.com/dmitrymomot/ridekit/pkg/pg"
)

const (
	selectExpiredTokensQuery = `
		SELECT id::text FROM refresh_tokens
		WHERE expires_at < $2
		ORDER BY expires_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED`

	deleteTokensQuery = `DELETE FROM refresh_tokens WHERE id = ANY($1::uuid[])`
)

// TokenStore manages refresh tokens
type TokenStore struct {
	db pg.TxBeginner
}

// NewTokenStore creates a token store
func NewTokenStore(db pg.TxBeginner) *TokenStore {
	return &TokenStore{db: db}
}

// ExpiredSource returns a batch source over tokens that expired before cutoff.
// Rows locked by a concurrent cleanup are skipped rather than waited on.
func (s *TokenStore) ExpiredSource(cutoff time.Time) batch.Source[string] {
	return batch.NewPgSource[string](s.db, selectExpiredTokensQuery, deleteTokensQuery, cutoff)
}
