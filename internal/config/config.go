// Package config provides configuration types, defaults and loading for tessera.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/aretw0/tessera/internal/tracing"
	"github.com/aretw0/tessera/pkg/lifecycle"
	"github.com/aretw0/tessera/pkg/ranking"
)

// EnvPrefix prefixes every environment override, e.g. TESSERA_LOG_LEVEL.
const EnvPrefix = "TESSERA"

// Storage backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config holds all configuration options for tessera.
type Config struct {
	LogLevel   string `mapstructure:"log_level"`
	CatalogDir string `mapstructure:"catalog_dir"`
	SeedStdlib bool   `mapstructure:"seed_stdlib"`

	Ranking   RankingConfig   `mapstructure:"ranking"`
	Lifecycle LifecycleConfig `mapstructure:"lifecycle"`
	Search    SearchConfig    `mapstructure:"search"`
	Validator ValidatorConfig `mapstructure:"validator"`
	Storage   StorageConfig   `mapstructure:"storage"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Tracing   tracing.Config  `mapstructure:"tracing"`
}

// RankingConfig selects the default profile and tunes the score terms.
type RankingConfig struct {
	Profile            string                     `mapstructure:"profile"`
	StalenessWindow    time.Duration              `mapstructure:"staleness_window"`
	LatencyReferenceMs float64                    `mapstructure:"latency_reference_ms"`
	Profiles           map[string]ranking.Weights `mapstructure:"profiles"`
}

// LifecycleConfig holds the promotion gate.
type LifecycleConfig struct {
	StableGate lifecycle.Gate `mapstructure:"stable_gate"`
}

// SearchConfig tunes query execution.
type SearchConfig struct {
	SemanticTimeout time.Duration `mapstructure:"semantic_timeout"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
	DefaultLimit    int           `mapstructure:"default_limit"`
}

// ValidatorConfig tunes graph validation.
type ValidatorConfig struct {
	MaxCycles               int    `mapstructure:"max_cycles"`
	LenientResultUnwrap     bool   `mapstructure:"lenient_result_unwrap"`
	UnwrapBlock             string `mapstructure:"unwrap_block"`
	SuggestDownstreamOutput bool   `mapstructure:"suggest_downstream_output"`
}

// StorageConfig selects where manifests persist.
type StorageConfig struct {
	Backend string        `mapstructure:"backend"` // "memory" (default) or "redis"
	LockTTL time.Duration `mapstructure:"lock_ttl"`
	Redis   RedisConfig   `mapstructure:"redis"`
}

// RedisConfig addresses the Redis backend.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// HTTPConfig configures the HTTP adapter.
type HTTPConfig struct {
	Port int `mapstructure:"port"`
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	gate := lifecycle.DefaultGate()
	rc := ranking.DefaultConfig()
	return Config{
		LogLevel:   "info",
		SeedStdlib: true,
		Ranking: RankingConfig{
			Profile:            string(ranking.ProfileDefault),
			StalenessWindow:    rc.Staleness,
			LatencyReferenceMs: rc.LatencyReference,
		},
		Lifecycle: LifecycleConfig{StableGate: gate},
		Search: SearchConfig{
			SemanticTimeout: 2 * time.Second,
			CacheTTL:        5 * time.Minute,
			DefaultLimit:    10,
		},
		Validator: ValidatorConfig{
			MaxCycles:   100,
			UnwrapBlock: "core/unwrap",
		},
		Storage: StorageConfig{
			Backend: BackendMemory,
			LockTTL: 5 * time.Second,
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "tessera:",
			},
		},
		HTTP:    HTTPConfig{Port: 8080},
		Tracing: tracing.DefaultConfig(),
	}
}

// RankerConfig translates the ranking section into the engine's configuration.
func (c Config) RankerConfig() ranking.Config {
	return ranking.Config{
		Staleness:        c.Ranking.StalenessWindow,
		LatencyReference: c.Ranking.LatencyReferenceMs,
		Overrides:        c.Ranking.Profiles,
	}
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if _, err := ranking.ParseProfile(c.Ranking.Profile); err != nil {
		errs = append(errs, fmt.Errorf("ranking.profile: %w", err))
	}
	for name := range c.Ranking.Profiles {
		if _, err := ranking.ParseProfile(name); err != nil {
			errs = append(errs, fmt.Errorf("ranking.profiles: %w", err))
		}
	}
	if g := c.Lifecycle.StableGate; g.MinPassRate < 0 || g.MinPassRate > 1 {
		errs = append(errs, fmt.Errorf("lifecycle.stable_gate.min_pass_rate must be within [0,1], got %v", g.MinPassRate))
	}
	if c.Search.DefaultLimit < 0 {
		errs = append(errs, fmt.Errorf("search.default_limit must not be negative, got %d", c.Search.DefaultLimit))
	}
	if c.Validator.MaxCycles < 0 {
		errs = append(errs, fmt.Errorf("validator.max_cycles must not be negative, got %d", c.Validator.MaxCycles))
	}
	switch c.Storage.Backend {
	case BackendMemory, BackendRedis:
	default:
		errs = append(errs, fmt.Errorf("storage.backend must be %q or %q, got %q", BackendMemory, BackendRedis, c.Storage.Backend))
	}
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("http.port out of range: %d", c.HTTP.Port))
	}
	return errors.Join(errs...)
}

// Load reads configuration from cfgFile, or from the first of
// .tessera/config.yaml and ~/.config/tessera/config.yaml when cfgFile is
// empty. Missing files fall back to Defaults; TESSERA_* environment
// variables override both.
func Load(cfgFile string) (Config, error) {
	v := viper.New()
	SetDefaults(v)

	switch {
	case cfgFile != "":
		v.SetConfigFile(cfgFile)
	case fileExists(filepath.Join(".tessera", "config.yaml")):
		v.SetConfigFile(filepath.Join(".tessera", "config.yaml"))
	default:
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "tessera"))
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SetDefaults registers every key of Defaults on v so that environment
// overrides resolve even when no file mentions the key.
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("catalog_dir", d.CatalogDir)
	v.SetDefault("seed_stdlib", d.SeedStdlib)

	v.SetDefault("ranking.profile", d.Ranking.Profile)
	v.SetDefault("ranking.staleness_window", d.Ranking.StalenessWindow)
	v.SetDefault("ranking.latency_reference_ms", d.Ranking.LatencyReferenceMs)

	v.SetDefault("lifecycle.stable_gate.min_test_count", d.Lifecycle.StableGate.MinTestCount)
	v.SetDefault("lifecycle.stable_gate.min_pass_rate", d.Lifecycle.StableGate.MinPassRate)
	v.SetDefault("lifecycle.stable_gate.min_usage_count", d.Lifecycle.StableGate.MinUsageCount)

	v.SetDefault("search.semantic_timeout", d.Search.SemanticTimeout)
	v.SetDefault("search.cache_ttl", d.Search.CacheTTL)
	v.SetDefault("search.default_limit", d.Search.DefaultLimit)

	v.SetDefault("validator.max_cycles", d.Validator.MaxCycles)
	v.SetDefault("validator.lenient_result_unwrap", d.Validator.LenientResultUnwrap)
	v.SetDefault("validator.unwrap_block", d.Validator.UnwrapBlock)
	v.SetDefault("validator.suggest_downstream_output", d.Validator.SuggestDownstreamOutput)

	v.SetDefault("storage.backend", d.Storage.Backend)
	v.SetDefault("storage.lock_ttl", d.Storage.LockTTL)
	v.SetDefault("storage.redis.addr", d.Storage.Redis.Addr)
	v.SetDefault("storage.redis.password", d.Storage.Redis.Password)
	v.SetDefault("storage.redis.db", d.Storage.Redis.DB)
	v.SetDefault("storage.redis.prefix", d.Storage.Redis.Prefix)

	v.SetDefault("http.port", d.HTTP.Port)

	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.file_path", d.Tracing.FilePath)
	v.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
