package app

import (
	"github.com/dmitrymomot/ridekit/internal/jobs"
	"github.com/dmitrymomot/ridekit/pkg/queue"
)

// Definitions returns the repeatable jobs to install: the schedules file when
// configured, the built-in schedules otherwise.
func Definitions(cfg Config) ([]queue.Definition, error) {
	if cfg.SchedulesFile == "" {
		return jobs.DefaultDefinitions(), nil
	}
	return queue.LoadDefinitionsFile(cfg.SchedulesFile)
}
