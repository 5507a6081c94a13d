package pg

import (
	"errors"

	"github.com/jackc/pgx/v5"
)

var (
	ErrFailedToOpenDBConnection = errors.New("pg: failed to open connection pool")
	ErrHealthcheckFailed        = errors.New("pg: database is not reachable")
	ErrFailedToParseDBConfig    = errors.New("pg: invalid connection string")
	ErrFailedToApplyMigrations  = errors.New("pg: failed to apply migrations")
	ErrMigrationsDirNotFound    = errors.New("pg: migrations directory not found")
)

// IsNotFoundError reports whether err is pgx.ErrNoRows, the result of a
// QueryRow that matched nothing or an UPDATE ... RETURNING that lost a race
func IsNotFoundError(err error) bool {
	return err != nil && errors.Is(err, pgx.ErrNoRows)
}
