package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/ridekit/pkg/config"
)

type workerSettings struct {
	Concurrency int           `env:"CFGTEST_CONCURRENCY" envDefault:"4"`
	Poll        time.Duration `env:"CFGTEST_POLL" envDefault:"1s"`
	Topics      []string      `env:"CFGTEST_TOPICS" envSeparator:","`
}

type requiredSettings struct {
	URL string `env:"CFGTEST_REQUIRED_URL,required"`
}

type cachedSettings struct {
	Name string `env:"CFGTEST_CACHED_NAME" envDefault:"first"`
}

type fileSettings struct {
	Value string `env:"CFGTEST_FILE_VALUE"`
}

func TestParse(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()
		cfg, err := config.Parse[workerSettings](map[string]string{})
		require.NoError(t, err)
		assert.Equal(t, 4, cfg.Concurrency)
		assert.Equal(t, time.Second, cfg.Poll)
		assert.Empty(t, cfg.Topics)
	})

	t.Run("explicit values", func(t *testing.T) {
		t.Parallel()
		cfg, err := config.Parse[workerSettings](map[string]string{
			"CFGTEST_CONCURRENCY": "8",
			"CFGTEST_POLL":        "250ms",
			"CFGTEST_TOPICS":      "tokens.cleanup,trips.generate",
		})
		require.NoError(t, err)
		assert.Equal(t, 8, cfg.Concurrency)
		assert.Equal(t, 250*time.Millisecond, cfg.Poll)
		assert.Equal(t, []string{"tokens.cleanup", "trips.generate"}, cfg.Topics)
	})

	t.Run("invalid value", func(t *testing.T) {
		t.Parallel()
		_, err := config.Parse[workerSettings](map[string]string{"CFGTEST_POLL": "soon"})
		assert.ErrorIs(t, err, config.ErrParsingConfig)
	})

	t.Run("missing required", func(t *testing.T) {
		t.Parallel()
		_, err := config.Parse[requiredSettings](map[string]string{})
		assert.ErrorIs(t, err, config.ErrParsingConfig)
	})
}

func TestLoad(t *testing.T) {
	t.Run("nil pointer", func(t *testing.T) {
		assert.ErrorIs(t, config.Load[workerSettings](nil), config.ErrNilPointer)
	})

	t.Run("cached per type", func(t *testing.T) {
		config.Reset()
		t.Cleanup(config.Reset)

		t.Setenv("CFGTEST_CACHED_NAME", "first")
		var a cachedSettings
		require.NoError(t, config.Load(&a))
		assert.Equal(t, "first", a.Name)

		t.Setenv("CFGTEST_CACHED_NAME", "second")
		var b cachedSettings
		require.NoError(t, config.Load(&b))
		assert.Equal(t, "first", b.Name, "second load must come from cache")

		config.Reset()
		var c cachedSettings
		require.NoError(t, config.Load(&c))
		assert.Equal(t, "second", c.Name)
	})

	t.Run("errors are not cached", func(t *testing.T) {
		config.Reset()
		t.Cleanup(config.Reset)

		t.Setenv("CFGTEST_REQUIRED_URL", "")
		require.NoError(t, os.Unsetenv("CFGTEST_REQUIRED_URL"))
		var cfg requiredSettings
		require.ErrorIs(t, config.Load(&cfg), config.ErrParsingConfig)

		t.Setenv("CFGTEST_REQUIRED_URL", "postgres://localhost/ridekit")
		require.NoError(t, config.Load(&cfg))
		assert.Equal(t, "postgres://localhost/ridekit", cfg.URL)
	})

	t.Run("must load panics", func(t *testing.T) {
		config.Reset()
		t.Cleanup(config.Reset)

		t.Setenv("CFGTEST_REQUIRED_URL", "")
		require.NoError(t, os.Unsetenv("CFGTEST_REQUIRED_URL"))
		assert.Panics(t, func() {
			var cfg requiredSettings
			config.MustLoad(&cfg)
		})
	})
}

func TestLoadEnvFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("CFGTEST_FILE_VALUE=from-file\n"), 0o600))

	// t.Setenv registers restoration of the original state
	t.Setenv("CFGTEST_FILE_VALUE", "")
	require.NoError(t, os.Unsetenv("CFGTEST_FILE_VALUE"))

	require.NoError(t, config.LoadEnvFiles(filepath.Join(dir, "missing.env"), path))

	cfg, err := config.Parse[fileSettings](map[string]string{"CFGTEST_FILE_VALUE": os.Getenv("CFGTEST_FILE_VALUE")})
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.Value)
}
