package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/ridekit/pkg/logger"
)

type ctxKey struct{}

func traceExtractor(ctx context.Context) (slog.Attr, bool) {
	v, ok := ctx.Value(ctxKey{}).(string)
	if !ok {
		return slog.Attr{}, false
	}
	return slog.String("trace", v), true
}

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	return rec
}

func TestWithEnvironment(t *testing.T) {
	t.Parallel()

	tests := []struct {
		env       string
		wantEnv   string
		debug     bool
		jsonLines bool
	}{
		{env: logger.EnvDevelopment, wantEnv: "development", debug: true},
		{env: logger.EnvStaging, wantEnv: "staging", jsonLines: true},
		{env: logger.EnvProduction, wantEnv: "production", jsonLines: true},
		{env: "qa", wantEnv: "development", debug: true},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			log := logger.New(logger.WithEnvironment(tt.env, "ridekit"), logger.WithOutput(&buf))

			log.Debug("probe")
			if !tt.debug {
				assert.Empty(t, buf.String())
			}

			buf.Reset()
			log.Info("started")
			if tt.jsonLines {
				rec := decode(t, &buf)
				assert.Equal(t, "ridekit", rec["service"])
				assert.Equal(t, tt.wantEnv, rec["env"])
			} else {
				assert.Contains(t, buf.String(), "service=ridekit")
				assert.Contains(t, buf.String(), "env="+tt.wantEnv)
			}
		})
	}
}

func TestWithConfig(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := logger.New(
		logger.WithEnvironment(logger.EnvProduction, "ridekit"),
		logger.WithConfig(logger.Config{Level: "debug", Format: "TEXT"}),
		logger.WithOutput(&buf),
	)
	log.Debug("visible")
	assert.Contains(t, buf.String(), "level=DEBUG")

	buf.Reset()
	log = logger.New(
		logger.WithConfig(logger.Config{Level: "loud", Format: "xml"}),
		logger.WithOutput(&buf),
	)
	log.Debug("hidden")
	log.Info("kept")
	rec := decode(t, &buf)
	assert.Equal(t, "kept", rec["msg"])
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, logger.Config{}.Validate())
	assert.NoError(t, logger.Config{Level: "WARN", Format: "json"}.Validate())
	assert.Error(t, logger.Config{Level: "verbose"}.Validate())
	assert.Error(t, logger.Config{Format: "logfmt"}.Validate())
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	lvl, err := logger.ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, lvl)

	lvl, err = logger.ParseLevel("error")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelError, lvl)

	_, err = logger.ParseLevel("trace")
	require.Error(t, err)
}

func TestContextExtractors(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := logger.New(
		logger.WithOutput(&buf),
		logger.WithContextExtractors(nil, traceExtractor),
	)
	ctx := context.WithValue(context.Background(), ctxKey{}, "t-1")

	log.InfoContext(ctx, "with trace")
	assert.Equal(t, "t-1", decode(t, &buf)["trace"])

	buf.Reset()
	log.InfoContext(context.Background(), "without trace")
	assert.NotContains(t, decode(t, &buf), "trace")
}

func TestContextExtractors_StayOutsideGroups(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := logger.New(
		logger.WithOutput(&buf),
		logger.WithContextExtractors(traceExtractor),
	).With(slog.String("component", "worker")).WithGroup("job").With(slog.String("id", "j1"))

	ctx := context.WithValue(context.Background(), ctxKey{}, "t-2")
	log.InfoContext(ctx, "done", slog.Int("attempt", 1))

	rec := decode(t, &buf)
	assert.Equal(t, "t-2", rec["trace"])
	assert.Equal(t, "worker", rec["component"])
	job, ok := rec["job"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "j1", job["id"])
	assert.EqualValues(t, 1, job["attempt"])
}

func TestWithAttr(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := logger.New(logger.WithOutput(&buf), logger.WithAttr(slog.String("region", "eu")))
	log.Info("x")
	assert.Equal(t, "eu", decode(t, &buf)["region"])
}
