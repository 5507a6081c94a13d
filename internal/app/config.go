package app

import (
	"errors"
	"fmt"
	"slices"

	"github.com/dmitrymomot/ridekit/internal/jobs"
	"github.com/dmitrymomot/ridekit/internal/realtime"
	"github.com/dmitrymomot/ridekit/pkg/fanout"
	"github.com/dmitrymomot/ridekit/pkg/httpserver"
	"github.com/dmitrymomot/ridekit/pkg/logger"
	"github.com/dmitrymomot/ridekit/pkg/pg"
	"github.com/dmitrymomot/ridekit/pkg/queue"
	"github.com/dmitrymomot/ridekit/pkg/redis"
)

// Mode selects which components a process runs
type Mode string

const (
	ModeWorker   Mode = "worker"
	ModeRealtime Mode = "realtime"
	ModeAll      Mode = "all"
)

var ErrInvalidConfig = errors.New("app: invalid configuration")

// Config is the full process configuration
type Config struct {
	Env  string `env:"APP_ENV" envDefault:"development"`
	Name string `env:"APP_NAME" envDefault:"ridekit"`
	Mode Mode   `env:"APP_MODE" envDefault:"all"`
	// SchedulesFile is a YAML list of repeatable jobs; built-in schedules are
	// installed when empty
	SchedulesFile string `env:"SCHEDULES_FILE"`

	Log    logger.Config
	HTTP   httpserver.Config
	WS     realtime.Config
	PG     pg.Config
	Redis  redis.Config
	Queue  queue.Config
	Fanout fanout.Config
	Jobs   jobs.Config
}

// Validate reports configuration errors that env tags cannot express
func (c Config) Validate() error {
	var errs []error
	if !slices.Contains([]Mode{ModeWorker, ModeRealtime, ModeAll}, c.Mode) {
		errs = append(errs, fmt.Errorf("unknown APP_MODE %q", c.Mode))
	}
	if !slices.Contains([]string{logger.EnvDevelopment, logger.EnvStaging, logger.EnvProduction}, c.Env) {
		errs = append(errs, fmt.Errorf("unknown APP_ENV %q", c.Env))
	}
	if err := c.Log.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Jobs.CleanupBatchSize <= 0 {
		errs = append(errs, errors.New("JOBS_CLEANUP_BATCH_SIZE must be positive"))
	}
	if c.Jobs.TripDaysAhead <= 0 {
		errs = append(errs, errors.New("JOBS_TRIP_DAYS_AHEAD must be positive"))
	}
	if len(errs) > 0 {
		return errors.Join(append([]error{ErrInvalidConfig}, errs...)...)
	}
	return nil
}

// RunsWorker reports whether the queue worker and scheduler run in this process
func (c Config) RunsWorker() bool { return c.Mode == ModeWorker || c.Mode == ModeAll }

// RunsRealtime reports whether the websocket gateway runs in this process
func (c Config) RunsRealtime() bool { return c.Mode == ModeRealtime || c.Mode == ModeAll }
