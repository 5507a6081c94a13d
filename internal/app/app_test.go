package app_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/ridekit/internal/app"
	"github.com/dmitrymomot/ridekit/internal/jobs"
	"github.com/dmitrymomot/ridekit/pkg/config"
	"github.com/dmitrymomot/ridekit/pkg/httpserver"
	"github.com/dmitrymomot/ridekit/pkg/queue"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func parseConfig(t *testing.T, vars map[string]string) app.Config {
	t.Helper()
	env := map[string]string{"PG_CONN_URL": "postgres://ridekit@localhost/ridekit"}
	for k, v := range vars {
		env[k] = v
	}
	cfg, err := config.Parse[app.Config](env)
	require.NoError(t, err)
	return cfg
}

// nopDB never reaches a database; handlers are registered but not executed
type nopDB struct{}

func (nopDB) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, pgx.ErrNoRows }
func (nopDB) Begin(context.Context) (pgx.Tx, error)                   { return nil, pgx.ErrTxClosed }

func TestConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg := parseConfig(t, nil)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, app.ModeAll, cfg.Mode)
	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 5*time.Minute, cfg.Queue.LockTimeout)
	assert.Equal(t, 3, cfg.Queue.DefaultMaxAttempts)
	assert.Equal(t, "ridekit:events", cfg.Fanout.RedisChannel)
	assert.True(t, cfg.Fanout.RedisBridge)
	assert.Equal(t, jobs.DefaultConfig(), cfg.Jobs)
	assert.Equal(t, 60*time.Second, cfg.WS.PongWait)
	assert.True(t, cfg.RunsWorker())
	assert.True(t, cfg.RunsRealtime())
}

func TestConfigMode(t *testing.T) {
	t.Parallel()

	worker := parseConfig(t, map[string]string{"APP_MODE": "worker"})
	assert.True(t, worker.RunsWorker())
	assert.False(t, worker.RunsRealtime())

	rt := parseConfig(t, map[string]string{"APP_MODE": "realtime"})
	assert.False(t, rt.RunsWorker())
	assert.True(t, rt.RunsRealtime())

	bad := parseConfig(t, map[string]string{"APP_MODE": "cron"})
	require.ErrorIs(t, bad.Validate(), app.ErrInvalidConfig)
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	cfg := parseConfig(t, map[string]string{
		"APP_ENV":                 "qa",
		"LOG_LEVEL":               "verbose",
		"JOBS_CLEANUP_BATCH_SIZE": "0",
	})
	err := cfg.Validate()
	require.ErrorIs(t, err, app.ErrInvalidConfig)
	assert.Contains(t, err.Error(), "APP_ENV")
	assert.Contains(t, err.Error(), "LOG_LEVEL")
	assert.Contains(t, err.Error(), "JOBS_CLEANUP_BATCH_SIZE")
}

func TestConfigRequiresDatabase(t *testing.T) {
	t.Parallel()

	_, err := config.Parse[app.Config](map[string]string{})
	require.ErrorIs(t, err, config.ErrParsingConfig)
}

func TestDefinitions(t *testing.T) {
	t.Parallel()

	t.Run("built-in", func(t *testing.T) {
		t.Parallel()
		defs, err := app.Definitions(app.Config{})
		require.NoError(t, err)
		assert.Equal(t, jobs.DefaultDefinitions(), defs)
	})

	t.Run("file", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "schedules.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`schedules:
  - key: nightly-trips
    topic: trips.generate
    pattern: "30 1 * * *"
    payload:
      days_ahead: 7
`), 0o600))

		defs, err := app.Definitions(app.Config{SchedulesFile: path})
		require.NoError(t, err)
		require.Len(t, defs, 1)
		assert.Equal(t, "nightly-trips", defs[0].Key)
		assert.Equal(t, "30 1 * * *", defs[0].Pattern)
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		_, err := app.Definitions(app.Config{SchedulesFile: filepath.Join(t.TempDir(), "nope.yaml")})
		require.Error(t, err)
	})
}

func TestAssemble(t *testing.T) {
	t.Parallel()

	_, err := app.Assemble(parseConfig(t, nil), app.Parts{DB: nopDB{}}, quietLogger())
	require.ErrorIs(t, err, app.ErrInvalidConfig)

	_, err = app.Assemble(parseConfig(t, nil), app.Parts{Storage: queue.NewMemoryStorage()}, quietLogger())
	require.ErrorIs(t, err, app.ErrInvalidConfig)
}

func TestRuntime_WorkerRegistersTopics(t *testing.T) {
	t.Parallel()

	rt, err := app.Assemble(parseConfig(t, nil), app.Parts{
		Storage: queue.NewMemoryStorage(),
		DB:      nopDB{},
	}, quietLogger())
	require.NoError(t, err)
	t.Cleanup(rt.Close)

	worker, err := rt.Worker()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		jobs.NotificationsBroadcast.Name(),
		jobs.TokensCleanup.Name(),
		jobs.TripsGenerate.Name(),
	}, worker.Topics())

	// without Redis, events go straight to the local hub
	assert.Same(t, rt.Hub(), rt.Publisher())
}

func TestRuntime_SchedulerInstallsDefinitions(t *testing.T) {
	t.Parallel()

	storage := queue.NewMemoryStorage()
	rt, err := app.Assemble(parseConfig(t, nil), app.Parts{Storage: storage, DB: nopDB{}}, quietLogger())
	require.NoError(t, err)
	t.Cleanup(rt.Close)

	scheduler, err := rt.Scheduler(context.Background())
	require.NoError(t, err)
	assert.Empty(t, scheduler.Pending())

	defs, err := scheduler.List(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, jobs.TokenCleanupScheduleKey, defs[0].Key)
	assert.Equal(t, jobs.TripGenerationScheduleKey, defs[1].Key)
}

func TestRuntime_SchedulerRetiresKeysDroppedFromFile(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := queue.NewMemoryStorage()
	require.NoError(t, storage.ReplaceRepeatable(ctx, &queue.RepeatDefinition{
		Key:        "legacy-report",
		Topic:      "reports.nightly",
		Pattern:    "0 4 * * *",
		NextFireAt: time.Now().Add(time.Hour),
	}))

	path := filepath.Join(t.TempDir(), "schedules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`schedules:
  - key: nightly-trips
    topic: trips.generate
    pattern: "30 1 * * *"
`), 0o600))

	rt, err := app.Assemble(parseConfig(t, map[string]string{"SCHEDULES_FILE": path}),
		app.Parts{Storage: storage, DB: nopDB{}}, quietLogger())
	require.NoError(t, err)
	t.Cleanup(rt.Close)

	scheduler, err := rt.Scheduler(ctx)
	require.NoError(t, err)

	defs, err := scheduler.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "nightly-trips", defs[0].Key)
}

func TestRuntime_Handler(t *testing.T) {
	t.Parallel()

	rt, err := app.Assemble(parseConfig(t, nil), app.Parts{
		Storage: queue.NewMemoryStorage(),
		DB:      nopDB{},
		Checks:  []httpserver.Check{func(context.Context) error { return nil }},
	}, quietLogger())
	require.NoError(t, err)
	t.Cleanup(rt.Close)

	srv := httptest.NewServer(rt.Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/readyz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/ws")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRuntime_EnqueueReachesStorage(t *testing.T) {
	t.Parallel()

	storage := queue.NewMemoryStorage()
	rt, err := app.Assemble(parseConfig(t, nil), app.Parts{Storage: storage, DB: nopDB{}}, quietLogger())
	require.NoError(t, err)
	t.Cleanup(rt.Close)

	id, err := jobs.TripsGenerate.Enqueue(context.Background(), rt.Enqueuer(), jobs.GeneratePayload{DaysAhead: 3})
	require.NoError(t, err)

	job, err := storage.GetJob(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, queue.StateWaiting, job.State)
	assert.Equal(t, 3, job.MaxAttempts)

}
