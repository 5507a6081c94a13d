// Package batch deletes large row sets in short transactions.
//
// A Processor repeatedly opens a transaction on its Source, selects up to Size
// keys, deletes them and commits. Every committed batch is durable on its own, so
// a failure only rolls back the batch in flight and a later run resumes where the
// previous one stopped. Runs are bounded by MaxBatches and MaxDuration; a run that
// hits a bound reports Done=false and the caller schedules a continuation.
//
//	source := batch.NewPgSource[uuid.UUID](pool,
//	    `SELECT id FROM refresh_tokens WHERE expires_at < now() ORDER BY expires_at LIMIT $1 FOR UPDATE SKIP LOCKED`,
//	    `DELETE FROM refresh_tokens WHERE id = ANY($1)`,
//	)
//	p, _ := batch.NewProcessor(source, batch.WithSize(500), batch.WithMaxBatches(20))
//	res, err := p.Run(ctx)
package batch
