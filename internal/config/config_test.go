package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/tessera/internal/config"
	"github.com/aretw0/tessera/pkg/ranking"
)

// isolate runs the test from an empty directory with an empty home so no
// user configuration leaks in.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Chdir(dir)
	return dir
}

func TestDefaults(t *testing.T) {
	cfg := config.Defaults()

	assert.Equal(t, "info", cfg.LogLevel)
	assert.True(t, cfg.SeedStdlib)
	assert.Equal(t, "default", cfg.Ranking.Profile)
	assert.Equal(t, 365*24*time.Hour, cfg.Ranking.StalenessWindow)
	assert.Equal(t, 10, cfg.Lifecycle.StableGate.MinTestCount)
	assert.InDelta(t, 0.95, cfg.Lifecycle.StableGate.MinPassRate, 1e-9)
	assert.Equal(t, int64(100), cfg.Lifecycle.StableGate.MinUsageCount)
	assert.Equal(t, 100, cfg.Validator.MaxCycles)
	assert.False(t, cfg.Validator.SuggestDownstreamOutput)
	assert.Equal(t, config.BackendMemory, cfg.Storage.Backend)
	assert.False(t, cfg.Tracing.Enabled)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	isolate(t)

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, config.Defaults().Search, cfg.Search)
	assert.Equal(t, config.Defaults().Storage, cfg.Storage)
}

func TestLoad_File(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "tessera.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: debug
ranking:
  profile: high_reliability
  staleness_window: 720h
  profiles:
    offline:
      semantic: 0
      test_pass: 0.5
      usage: 0.5
lifecycle:
  stable_gate:
    min_test_count: 3
search:
  semantic_timeout: 500ms
validator:
  lenient_result_unwrap: true
  suggest_downstream_output: true
storage:
  backend: redis
  redis:
    addr: redis:6379
`), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "high_reliability", cfg.Ranking.Profile)
	assert.Equal(t, 720*time.Hour, cfg.Ranking.StalenessWindow)
	assert.Equal(t, 3, cfg.Lifecycle.StableGate.MinTestCount)
	assert.InDelta(t, 0.95, cfg.Lifecycle.StableGate.MinPassRate, 1e-9, "unset keys keep defaults")
	assert.Equal(t, 500*time.Millisecond, cfg.Search.SemanticTimeout)
	assert.True(t, cfg.Validator.LenientResultUnwrap)
	assert.True(t, cfg.Validator.SuggestDownstreamOutput)
	assert.Equal(t, config.BackendRedis, cfg.Storage.Backend)
	assert.Equal(t, "redis:6379", cfg.Storage.Redis.Addr)
	assert.Equal(t, "tessera:", cfg.Storage.Redis.Prefix)

	rc := cfg.RankerConfig()
	require.Contains(t, rc.Overrides, "offline")
	assert.InDelta(t, 0.5, rc.Overrides["offline"].TestPass, 1e-9)

	_, err = ranking.New(rc)
	assert.NoError(t, err)
}

func TestLoad_ProjectFile(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".tessera"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".tessera", "config.yaml"),
		[]byte("http:\n  port: 9090\n"), 0o644))

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.HTTP.Port)
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("TESSERA_LOG_LEVEL", "warn")
	t.Setenv("TESSERA_SEARCH_DEFAULT_LIMIT", "25")
	t.Setenv("TESSERA_VALIDATOR_MAX_CYCLES", "7")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 25, cfg.Search.DefaultLimit)
	assert.Equal(t, 7, cfg.Validator.MaxCycles)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	dir := isolate(t)

	_, err := config.Load(filepath.Join(dir, "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"unknown profile", func(c *config.Config) { c.Ranking.Profile = "turbo" }, "ranking.profile"},
		{"unknown override", func(c *config.Config) {
			c.Ranking.Profiles = map[string]ranking.Weights{"turbo": {}}
		}, "ranking.profiles"},
		{"pass rate", func(c *config.Config) { c.Lifecycle.StableGate.MinPassRate = 1.5 }, "min_pass_rate"},
		{"backend", func(c *config.Config) { c.Storage.Backend = "postgres" }, "storage.backend"},
		{"port", func(c *config.Config) { c.HTTP.Port = 70000 }, "http.port"},
		{"cycles", func(c *config.Config) { c.Validator.MaxCycles = -1 }, "validator.max_cycles"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	t.Run("reports all", func(t *testing.T) {
		cfg := config.Defaults()
		cfg.Storage.Backend = "x"
		cfg.HTTP.Port = -1
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "storage.backend")
		assert.Contains(t, err.Error(), "http.port")
	})
}
