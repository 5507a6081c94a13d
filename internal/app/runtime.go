package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/ridekit/internal/jobs"
	"github.com/dmitrymomot/ridekit/internal/realtime"
	"github.com/dmitrymomot/ridekit/internal/store"
	"github.com/dmitrymomot/ridekit/migrations"
	"github.com/dmitrymomot/ridekit/pkg/fanout"
	"github.com/dmitrymomot/ridekit/pkg/httpserver"
	"github.com/dmitrymomot/ridekit/pkg/logger"
	"github.com/dmitrymomot/ridekit/pkg/pg"
	"github.com/dmitrymomot/ridekit/pkg/queue"
	"github.com/dmitrymomot/ridekit/pkg/queue/pgstorage"
	"github.com/dmitrymomot/ridekit/pkg/redis"
)

// DB is the database handle used by the application stores
type DB interface {
	store.Querier
	pg.TxBeginner
}

// Parts are the externally owned dependencies of a Runtime
type Parts struct {
	Storage queue.Storage
	DB      DB
	// Redis enables the cross-process event bridge; nil keeps events in process
	Redis fanout.RedisClient
	// Checks back the readiness probe
	Checks []httpserver.Check
}

// Runtime owns the long-lived components of one process
type Runtime struct {
	cfg    Config
	logger *slog.Logger

	storage   queue.Storage
	db        DB
	redis     fanout.RedisClient
	checks    []httpserver.Check
	enqueuer  *queue.Enqueuer
	hub       *fanout.Hub
	publisher fanout.Publisher

	closers []func()
}

// Open connects to PostgreSQL and Redis, applies migrations and assembles the
// runtime. Close releases the connections.
func Open(ctx context.Context, cfg Config, log *slog.Logger) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}

	pool, err := pg.Connect(ctx, cfg.PG)
	if err != nil {
		return nil, err
	}
	closers := []func(){pool.Close}
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	if err := pg.Migrate(ctx, pool, cfg.PG, migrations.FS, log); err != nil {
		closeAll()
		return nil, err
	}

	storage, err := pgstorage.New(pool)
	if err != nil {
		closeAll()
		return nil, err
	}

	parts := Parts{
		Storage: storage,
		DB:      pool,
		Checks:  []httpserver.Check{pg.Healthcheck(pool)},
	}

	if cfg.Fanout.RedisBridge {
		client, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			closeAll()
			return nil, err
		}
		closers = append(closers, func() {
			if err := client.Close(); err != nil {
				log.Error("failed to close redis client", logger.Error(err))
			}
		})
		parts.Redis = client
		parts.Checks = append(parts.Checks, redis.Healthcheck(client))
	}

	rt, err := Assemble(cfg, parts, log)
	if err != nil {
		closeAll()
		return nil, err
	}
	rt.closers = closers
	return rt, nil
}

// Assemble builds a runtime on top of already opened dependencies
func Assemble(cfg Config, parts Parts, log *slog.Logger) (*Runtime, error) {
	if parts.Storage == nil {
		return nil, errors.Join(ErrInvalidConfig, queue.ErrRepositoryNil)
	}
	if parts.DB == nil {
		return nil, errors.Join(ErrInvalidConfig, errors.New("database handle is required"))
	}
	if log == nil {
		log = slog.Default()
	}

	enqueuer, err := queue.NewEnqueuer(parts.Storage, queue.WithDefaultMaxAttempts(cfg.Queue.DefaultMaxAttempts))
	if err != nil {
		return nil, err
	}

	hub := fanout.NewHub(
		fanout.WithBufferSize(cfg.Fanout.BufferSize),
		fanout.WithLogger(log.With(logger.Component("fanout.hub"))),
	)

	var publisher fanout.Publisher = hub
	if parts.Redis != nil {
		publisher = fanout.NewRedisPublisher(parts.Redis, cfg.Fanout.RedisChannel)
	} else if cfg.Mode == ModeWorker {
		log.Warn("redis bridge disabled in worker mode, job events reach no subscriber")
	}

	return &Runtime{
		cfg:       cfg,
		logger:    log,
		storage:   parts.Storage,
		db:        parts.DB,
		redis:     parts.Redis,
		checks:    parts.Checks,
		enqueuer:  enqueuer,
		hub:       hub,
		publisher: publisher,
	}, nil
}

// Enqueuer returns the shared enqueuer
func (r *Runtime) Enqueuer() *queue.Enqueuer { return r.enqueuer }

// Hub returns the in-process fan-out hub
func (r *Runtime) Hub() *fanout.Hub { return r.hub }

// Publisher returns where job events are published
func (r *Runtime) Publisher() fanout.Publisher { return r.publisher }

// Worker creates a worker with every application topic registered
func (r *Runtime) Worker() (*queue.Worker, error) {
	worker, err := queue.NewWorker(r.storage, r.cfg.Queue.WorkerOptions(r.logger.With(logger.Component("queue.worker")))...)
	if err != nil {
		return nil, err
	}

	handlers, err := jobs.New(jobs.Deps{
		Notifications: store.NewNotificationStore(r.db),
		Tokens:        store.NewTokenStore(r.db),
		Trips:         store.NewTripStore(r.db),
		Publisher:     r.publisher,
		Enqueuer:      r.enqueuer,
		Logger:        r.logger.With(logger.Component("jobs")),
	}, r.cfg.Jobs)
	if err != nil {
		return nil, err
	}
	if err := handlers.Register(worker); err != nil {
		return nil, err
	}
	return worker, nil
}

// Scheduler creates a scheduler and installs the configured definitions.
// Storage failures leave definitions pending for the next tick; invalid
// definitions fail. A schedules file is authoritative: stored keys missing
// from it are unscheduled.
func (r *Runtime) Scheduler(ctx context.Context) (*queue.Scheduler, error) {
	scheduler, err := queue.NewScheduler(r.storage, r.cfg.Queue.SchedulerOptions(r.logger.With(logger.Component("queue.scheduler")))...)
	if err != nil {
		return nil, err
	}

	defs, err := Definitions(r.cfg)
	if err != nil {
		return nil, err
	}
	install := scheduler.Install
	if r.cfg.SchedulesFile != "" {
		install = scheduler.Sync
	}
	if err := install(ctx, defs...); err != nil {
		return nil, err
	}
	return scheduler, nil
}

// Handler returns the realtime HTTP handler
func (r *Runtime) Handler() http.Handler {
	log := r.logger.With(logger.Component("realtime"))
	gateway := fanout.NewGateway(r.hub, fanout.RoomPolicy(nil), log)
	return realtime.NewRouter(realtime.RouterOptions{
		WebSocket: realtime.NewWSHandler(gateway, realtime.HeaderAuthenticator(), r.cfg.WS, log),
		Checks:    r.checks,
		Logger:    log,
	})
}

// Run starts the components selected by the mode and blocks until ctx is
// cancelled or one of them fails.
func (r *Runtime) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if r.cfg.RunsWorker() {
		worker, err := r.Worker()
		if err != nil {
			return fmt.Errorf("build worker: %w", err)
		}
		scheduler, err := r.Scheduler(ctx)
		if err != nil {
			return fmt.Errorf("build scheduler: %w", err)
		}
		g.Go(worker.Run(ctx))
		g.Go(scheduler.Run(ctx))
	}

	if r.cfg.RunsRealtime() {
		server := httpserver.NewFromConfig(r.cfg.HTTP,
			httpserver.WithLogger(r.logger.With(logger.Component("httpserver"))),
			// hijacked websocket connections are not closed by Shutdown
			httpserver.WithOnShutdown(func() { _ = r.hub.Close() }),
		)
		g.Go(server.RunFunc(ctx, r.Handler()))

		if r.redis != nil {
			bridge := fanout.NewRedisBridge(r.redis, r.cfg.Fanout.RedisChannel, r.hub, r.logger)
			g.Go(bridge.Run(ctx))
		}
	}

	r.logger.InfoContext(ctx, "ridekit started", slog.String("mode", string(r.cfg.Mode)))
	return g.Wait()
}

// Close shuts the hub down and releases connections opened by Open
func (r *Runtime) Close() {
	_ = r.hub.Close()
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

var (
	_ DB                 = (*pgxpool.Pool)(nil)
	_ fanout.RedisClient = (*goredis.Client)(nil)
)
