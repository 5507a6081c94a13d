// Package store holds the PostgreSQL access used by background jobs.
package store
