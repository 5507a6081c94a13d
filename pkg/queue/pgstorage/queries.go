package pgstorage

const jobColumns = `id, topic, payload, state, attempts_made, max_attempts, dedupe_key, last_error,
	locked_by, locked_until, next_run_at, created_at, started_at, finished_at`

const insertJobQuery = `
INSERT INTO queue_jobs (id, topic, payload, state, attempts_made, max_attempts, dedupe_key, next_run_at, created_at)
VALUES ($1, $2, $3, $4, 0, $5, NULLIF($6, ''), $7, $8)
ON CONFLICT (dedupe_key) WHERE dedupe_key IS NOT NULL AND state IN ('waiting', 'delayed', 'active')
DO NOTHING
RETURNING id`

const pendingByDedupeKeyQuery = `
SELECT id FROM queue_jobs
WHERE dedupe_key = $1 AND state IN ('waiting', 'delayed', 'active')`

const claimJobQuery = `
UPDATE queue_jobs
SET state = 'active',
	attempts_made = attempts_made + 1,
	locked_by = $2,
	locked_until = now() + make_interval(secs => $3::float8),
	started_at = now()
WHERE id = (
	SELECT id FROM queue_jobs
	WHERE topic = $1
		AND state IN ('waiting', 'delayed')
		AND next_run_at <= now()
	ORDER BY next_run_at, created_at
	LIMIT 1
	FOR UPDATE SKIP LOCKED
)
RETURNING ` + jobColumns

const completeJobQuery = `
UPDATE queue_jobs
SET state = 'completed', finished_at = now(), last_error = NULL, locked_by = NULL, locked_until = NULL
WHERE id = $1 AND state = 'active' AND locked_by = $2`

const retryJobQuery = `
UPDATE queue_jobs
SET state = CASE WHEN $4::timestamptz > now() THEN 'delayed' ELSE 'waiting' END,
	next_run_at = $4,
	last_error = $3,
	locked_by = NULL,
	locked_until = NULL
WHERE id = $1 AND state = 'active' AND locked_by = $2`

const failJobQuery = `
UPDATE queue_jobs
SET state = 'failed', finished_at = now(), last_error = $3, locked_by = NULL, locked_until = NULL
WHERE id = $1 AND state = 'active' AND locked_by = $2`

const extendLockQuery = `
UPDATE queue_jobs
SET locked_until = now() + make_interval(secs => $3::float8)
WHERE id = $1 AND state = 'active' AND locked_by = $2`

const jobOwnershipQuery = `SELECT state, locked_by FROM queue_jobs WHERE id = $1`

const reclaimStalledQuery = `
UPDATE queue_jobs
SET state = CASE WHEN attempts_made >= max_attempts THEN 'failed' ELSE 'waiting' END,
	finished_at = CASE WHEN attempts_made >= max_attempts THEN now() ELSE finished_at END,
	next_run_at = CASE WHEN attempts_made >= max_attempts THEN next_run_at ELSE now() END,
	last_error = 'job stalled: lock expired',
	locked_by = NULL,
	locked_until = NULL
WHERE topic = $1 AND state = 'active' AND locked_until < now()`

const pruneJobsQuery = `
DELETE FROM queue_jobs
WHERE id IN (
	SELECT id FROM (
		SELECT id, finished_at, row_number() OVER (ORDER BY finished_at DESC) AS rn
		FROM queue_jobs
		WHERE topic = $1 AND state = $2
	) ranked
	WHERE ($3::int > 0 AND rn > $3::int)
		OR ($4::float8 > 0 AND finished_at < now() - make_interval(secs => $4::float8))
)`

const replaceRepeatableQuery = `
INSERT INTO queue_repeatables (key, topic, pattern, payload, max_attempts, next_fire_at, last_fired_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, NULL, $7)
ON CONFLICT (key) DO UPDATE
SET topic = EXCLUDED.topic,
	pattern = EXCLUDED.pattern,
	payload = EXCLUDED.payload,
	max_attempts = EXCLUDED.max_attempts,
	next_fire_at = CASE
		WHEN queue_repeatables.pattern = EXCLUDED.pattern THEN queue_repeatables.next_fire_at
		ELSE EXCLUDED.next_fire_at
	END,
	created_at = EXCLUDED.created_at`

const removeRepeatableQuery = `DELETE FROM queue_repeatables WHERE key = $1`

const listRepeatablesQuery = `
SELECT key, topic, pattern, payload, max_attempts, next_fire_at, last_fired_at, created_at
FROM queue_repeatables
WHERE $1 = '' OR topic = $1
ORDER BY key`

const advanceRepeatableQuery = `
UPDATE queue_repeatables
SET next_fire_at = $3,
	last_fired_at = CASE
		WHEN $3::timestamptz > $2::timestamptz THEN $2::timestamptz
		WHEN $3::timestamptz < $2::timestamptz THEN NULL
		ELSE last_fired_at
	END
WHERE key = $1 AND next_fire_at = $2`

const repeatableExistsQuery = `SELECT EXISTS (SELECT 1 FROM queue_repeatables WHERE key = $1)`

const getJobQuery = `SELECT ` + jobColumns + ` FROM queue_jobs WHERE id = $1`

const listJobsQuery = `
SELECT ` + jobColumns + `
FROM queue_jobs
WHERE ($1 = '' OR topic = $1) AND ($2 = '' OR state = $2)
ORDER BY created_at DESC
LIMIT NULLIF($3::int, 0)`

const countJobsQuery = `
SELECT count(*) FROM queue_jobs
WHERE topic = $1 AND ($2 = '' OR state = $2)`
