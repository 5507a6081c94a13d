package queue

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Standard five-field cron plus descriptors such as @hourly and @every 30m.
// A CRON_TZ=<zone> prefix selects the time zone; patterns default to UTC.
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Schedule determines when a repeatable job fires next
type Schedule interface {
	Next(from time.Time) time.Time
	String() string
}

type cronSchedule struct {
	schedule cron.Schedule
	pattern  string
}

func (s cronSchedule) Next(from time.Time) time.Time {
	return s.schedule.Next(from.UTC())
}

func (s cronSchedule) String() string {
	return s.pattern
}

// ParseSchedule parses a cron pattern
func ParseSchedule(pattern string) (Schedule, error) {
	if pattern == "" {
		return nil, fmt.Errorf("%w: empty pattern", ErrInvalidSchedule)
	}
	sched, err := cronParser.Parse(pattern)
	if err != nil {
		return nil, errors.Join(ErrInvalidSchedule, fmt.Errorf("pattern %q: %w", pattern, err))
	}
	return cronSchedule{schedule: sched, pattern: pattern}, nil
}
