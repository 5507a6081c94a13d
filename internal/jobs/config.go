package jobs

import "time"

// Config holds job tuning loaded from the environment
type Config struct {
	CleanupBatchSize   int           `env:"JOBS_CLEANUP_BATCH_SIZE" envDefault:"500"`
	CleanupMaxBatches  int           `env:"JOBS_CLEANUP_MAX_BATCHES" envDefault:"200"`
	CleanupMaxDuration time.Duration `env:"JOBS_CLEANUP_MAX_DURATION" envDefault:"1m"`
	TripDaysAhead      int           `env:"JOBS_TRIP_DAYS_AHEAD" envDefault:"14"`
	// Broadcasts above this many recipients produce one bulk event for the
	// admin dashboard instead of per user events
	BulkThreshold int `env:"JOBS_NOTIFICATION_BULK_THRESHOLD" envDefault:"100"`

	BroadcastConcurrency int `env:"JOBS_BROADCAST_CONCURRENCY" envDefault:"4"`
	CleanupConcurrency   int `env:"JOBS_CLEANUP_CONCURRENCY" envDefault:"1"`
	TripsConcurrency     int `env:"JOBS_TRIPS_CONCURRENCY" envDefault:"1"`
}

// DefaultConfig mirrors the envDefault values
func DefaultConfig() Config {
	return Config{
		CleanupBatchSize:     500,
		CleanupMaxBatches:    200,
		CleanupMaxDuration:   time.Minute,
		TripDaysAhead:        14,
		BulkThreshold:        100,
		BroadcastConcurrency: 4,
		CleanupConcurrency:   1,
		TripsConcurrency:     1,
	}
}
