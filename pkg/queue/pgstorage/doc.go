// Package pgstorage implements the queue repository interfaces on PostgreSQL.
//
// Claims use a single UPDATE over a FOR UPDATE SKIP LOCKED subselect, so any number
// of worker processes can poll the same topic without blocking each other or
// handing out a job twice. Dedupe keys are enforced by a partial unique index that
// only covers pending jobs; the schema lives in the top level migrations package.
package pgstorage
