package jobs

import (
	"github.com/dmitrymomot/ridekit/pkg/queue"
	"github.com/dmitrymomot/ridekit/pkg/validator"
)

// Schedule keys of the recurring jobs
const (
	TokenCleanupScheduleKey   = "refresh-token-cleanup"
	TripGenerationScheduleKey = "trip-generation"
)

var (
	NotificationsBroadcast = queue.NewTopic[BroadcastPayload]("notifications.broadcast")
	TokensCleanup          = queue.NewTopic[CleanupPayload]("tokens.cleanup")
	TripsGenerate          = queue.NewTopic[GeneratePayload]("trips.generate")
)

// BroadcastPayload asks to notify a list of users
type BroadcastPayload struct {
	Recipients []string       `json:"recipients"`
	Title      string         `json:"title"`
	Message    string         `json:"message"`
	Data       map[string]any `json:"data,omitempty"`
}

func (p BroadcastPayload) Validate() error {
	return validator.Apply(
		validator.RequiredSlice("recipients", p.Recipients),
		validator.NoBlankItems("recipients", p.Recipients),
		validator.RequiredString("title", p.Title),
	)
}

// CleanupPayload configures one refresh token cleanup run
type CleanupPayload struct {
	// BatchSize overrides the configured batch size when positive
	BatchSize int `json:"batch_size,omitempty"`
}

func (p CleanupPayload) Validate() error {
	return validator.Apply(
		validator.MinNum("batch_size", p.BatchSize, 0),
	)
}

// GeneratePayload configures one trip generation run
type GeneratePayload struct {
	// DaysAhead overrides the configured window when positive
	DaysAhead int `json:"days_ahead,omitempty"`
}

// MaxDaysAhead bounds the trip generation window
const MaxDaysAhead = 366

func (p GeneratePayload) Validate() error {
	return validator.Apply(
		validator.MinNum("days_ahead", p.DaysAhead, 0),
		validator.MaxNum("days_ahead", p.DaysAhead, MaxDaysAhead),
	)
}

// DefaultDefinitions returns the recurring schedules installed when no
// definitions file is configured
func DefaultDefinitions() []queue.Definition {
	return []queue.Definition{
		{
			Key:     TokenCleanupScheduleKey,
			Topic:   TokensCleanup.Name(),
			Pattern: "0 * * * *",
			Payload: CleanupPayload{},
		},
		{
			Key:     TripGenerationScheduleKey,
			Topic:   TripsGenerate.Name(),
			Pattern: "0 2 * * *",
			Payload: GeneratePayload{},
		},
	}
}
