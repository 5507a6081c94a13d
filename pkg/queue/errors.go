package queue

import "errors"

// Common errors
var (
	// ErrRepositoryNil is returned when a nil repository is provided
	ErrRepositoryNil = errors.New("repository cannot be nil")

	// ErrPayloadNil is returned when attempting to enqueue a nil payload
	ErrPayloadNil = errors.New("payload cannot be nil")

	// ErrPayloadMarshal is returned when payload marshaling fails
	ErrPayloadMarshal = errors.New("failed to marshal payload to JSON")

	// ErrInvalidPayload is returned when payload validation rejects the value
	ErrInvalidPayload = errors.New("invalid job payload")

	// ErrTopicRequired is returned when a job or handler has no topic
	ErrTopicRequired = errors.New("topic is required")

	// ErrJobNotFound is returned when a job id does not exist in storage
	ErrJobNotFound = errors.New("job not found")

	// ErrJobNotActive is returned when completing or failing a job that is not active
	ErrJobNotActive = errors.New("job is not active")

	// ErrLockLost is returned when a worker reports on a job it no longer owns
	ErrLockLost = errors.New("job lock is held by another worker")

	// ErrNoJobToClaim is returned by ClaimJob when no job is due
	ErrNoJobToClaim = errors.New("no job available to claim")

	// ErrHandlerNotFound is returned when no handler is registered for a topic
	ErrHandlerNotFound = errors.New("no handler registered for topic")

	// ErrNoHandlers is returned when worker has no handlers registered
	ErrNoHandlers = errors.New("no job handlers registered")

	// ErrTopicAlreadyRegistered is returned when registering a second handler for a topic
	ErrTopicAlreadyRegistered = errors.New("topic already has a handler")

	// ErrWorkerAlreadyStarted is returned when Start is called twice
	ErrWorkerAlreadyStarted = errors.New("worker already started")

	// ErrWorkerNotStarted is returned when Stop is called before Start
	ErrWorkerNotStarted = errors.New("worker not started")

	// ErrInvalidSchedule is returned when a cron pattern cannot be parsed
	ErrInvalidSchedule = errors.New("invalid schedule pattern")

	// ErrScheduleKeyRequired is returned when a repeat definition has no key
	ErrScheduleKeyRequired = errors.New("schedule key is required")

	// ErrRepeatableNotFound is returned when a repeat definition key does not exist
	ErrRepeatableNotFound = errors.New("repeat definition not found")
)
