package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/channeled/core/config"
)

// No t.Parallel here: tests mutate process environment.

type workerEnv struct {
	MaxConcurrent int           `env:"TEST_WORKER_MAX_CONCURRENT" envDefault:"10"`
	Timeout       time.Duration `env:"TEST_WORKER_TIMEOUT" envDefault:"30s"`
	Channels      []string      `env:"TEST_WORKER_CHANNELS" envSeparator:","`
}

type cachedEnv struct {
	MaxConcurrent int `env:"TEST_CACHED_MAX_CONCURRENT" envDefault:"10"`
}

type requiredEnv struct {
	URL string `env:"TEST_REQUIRED_MISSING_URL,required"`
}

func TestLoad(t *testing.T) {
	t.Setenv("TEST_WORKER_MAX_CONCURRENT", "5")
	t.Setenv("TEST_WORKER_CHANNELS", "a.b,c.d")

	var cfg workerEnv
	require.NoError(t, config.Load(&cfg))
	assert.Equal(t, 5, cfg.MaxConcurrent)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, []string{"a.b", "c.d"}, cfg.Channels)
}

func TestLoad_Cached(t *testing.T) {
	t.Setenv("TEST_CACHED_MAX_CONCURRENT", "5")

	var first cachedEnv
	require.NoError(t, config.Load(&first))

	// Changing the environment after the first load has no effect; the
	// typed cache wins.
	t.Setenv("TEST_CACHED_MAX_CONCURRENT", "99")

	var second cachedEnv
	require.NoError(t, config.Load(&second))
	assert.Equal(t, first, second)
}

func TestLoad_RequiredMissing(t *testing.T) {
	var cfg requiredEnv
	assert.Error(t, config.Load(&cfg))
}

func TestLoad_NilTarget(t *testing.T) {
	assert.Error(t, config.Load[workerEnv](nil))
}

func TestMustLoad_Panics(t *testing.T) {
	assert.Panics(t, func() {
		var cfg requiredEnv
		config.MustLoad(&cfg)
	})
}
