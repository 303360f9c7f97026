// Package config loads allocation engine configuration from defaults, an
// optional YAML file and ALLOC_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/signalsfoundry/allocation-engine/core"
	"github.com/signalsfoundry/allocation-engine/internal/engine"
	"github.com/signalsfoundry/allocation-engine/internal/logging"
	"github.com/signalsfoundry/allocation-engine/internal/observability"
	"github.com/signalsfoundry/allocation-engine/model"
	"github.com/signalsfoundry/allocation-engine/timectrl"
)

// EnvPrefix is prepended to every environment override, e.g.
// ALLOC_THRESHOLDS_CRITICAL.
const EnvPrefix = "ALLOC"

// Latency model names accepted by optimizer.latency_model.
const (
	LatencyPlanar  = "planar"
	LatencyOrbital = "orbital"
)

// Config is the full engine configuration.
type Config struct {
	Thresholds core.Thresholds    `mapstructure:"thresholds"`
	Health     core.HealthWeights `mapstructure:"health"`
	Optimizer  OptimizerConfig    `mapstructure:"optimizer"`
	Engine     EngineConfig       `mapstructure:"engine"`
	Server     ServerConfig       `mapstructure:"server"`
	Logging    LoggingConfig      `mapstructure:"logging"`
	Tracing    TracingConfig      `mapstructure:"tracing"`
	Inventory  InventoryConfig    `mapstructure:"inventory"`
}

// OptimizerConfig selects how site latency is scored.
type OptimizerConfig struct {
	LatencyModel string  `mapstructure:"latency_model"`
	OriginLat    float64 `mapstructure:"origin_lat"`
	OriginLon    float64 `mapstructure:"origin_lon"`
	MsPerDegree  float64 `mapstructure:"ms_per_degree"`
	// SkipContendedSites hides sites held by another opportunity on the
	// same satellite from suggestions.
	SkipContendedSites bool `mapstructure:"skip_contended_sites"`
}

// EngineConfig tunes the report cache and batch fan-out.
type EngineConfig struct {
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
	MaxParallel int           `mapstructure:"max_parallel"`
}

// ServerConfig holds listener addresses for allocation-server.
type ServerConfig struct {
	GRPCAddr        string        `mapstructure:"grpc_addr"`
	MetricsAddr     string        `mapstructure:"metrics_addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// SweepInterval re-evaluates the whole inventory periodically; zero
	// disables the sweep.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// TracingConfig mirrors observability.TracingConfig.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	Exporter    string  `mapstructure:"exporter"`
	Endpoint    string  `mapstructure:"endpoint"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// InventoryConfig points at the inventory document loaded at startup.
type InventoryConfig struct {
	Path string `mapstructure:"path"`
}

// Load reads configuration from cfgFile (optional) and the environment.
//
// Precedence, highest first: ALLOC_ environment variables, the config file,
// defaults. A missing file is not an error; a malformed one is.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil && !isFileNotFoundError(err) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	// Defaults always decode.
	_ = v.Unmarshal(cfg)
	return cfg
}

func setDefaults(v *viper.Viper) {
	th := core.DefaultThresholds()
	v.SetDefault("thresholds.critical", th.Critical)
	v.SetDefault("thresholds.warning", th.Warning)
	v.SetDefault("thresholds.optimal", th.Optimal)

	w := core.DefaultHealthWeights()
	v.SetDefault("health.capacity", w.Capacity)
	v.SetDefault("health.efficiency", w.Efficiency)
	v.SetDefault("health.alignment", w.Alignment)

	v.SetDefault("optimizer.latency_model", LatencyPlanar)
	v.SetDefault("optimizer.origin_lat", 0.0)
	v.SetDefault("optimizer.origin_lon", 0.0)
	v.SetDefault("optimizer.ms_per_degree", 1.0)
	v.SetDefault("optimizer.skip_contended_sites", false)

	v.SetDefault("engine.cache_ttl", "30s")
	v.SetDefault("engine.max_parallel", 8)

	v.SetDefault("server.grpc_addr", ":50051")
	v.SetDefault("server.metrics_addr", ":9090")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.sweep_interval", "1m")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file", "")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "allocation-engine")
	v.SetDefault("tracing.exporter", "stdout")
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.sample_ratio", 1.0)

	v.SetDefault("inventory.path", "")
}

// Validate checks cross-field constraints that decoding cannot express.
func (c *Config) Validate() error {
	if err := c.Thresholds.Validate(); err != nil {
		return err
	}
	if err := c.Health.Validate(); err != nil {
		return err
	}
	switch c.Optimizer.LatencyModel {
	case LatencyPlanar, LatencyOrbital:
	default:
		return fmt.Errorf("unknown optimizer.latency_model %q (want %s or %s)",
			c.Optimizer.LatencyModel, LatencyPlanar, LatencyOrbital)
	}
	if c.Optimizer.MsPerDegree <= 0 {
		return fmt.Errorf("optimizer.ms_per_degree must be positive, got %v", c.Optimizer.MsPerDegree)
	}
	if c.Engine.CacheTTL < 0 {
		return fmt.Errorf("engine.cache_ttl must not be negative, got %v", c.Engine.CacheTTL)
	}
	if c.Engine.MaxParallel < 1 {
		return fmt.Errorf("engine.max_parallel must be at least 1, got %d", c.Engine.MaxParallel)
	}
	if c.Server.SweepInterval < 0 {
		return fmt.Errorf("server.sweep_interval must not be negative, got %v", c.Server.SweepInterval)
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be within [0,1], got %v", c.Tracing.SampleRatio)
	}
	return nil
}

// LatencyModel builds the configured latency model.
func (c *Config) LatencyModel() core.LatencyModel {
	return c.LatencyModelWithClock(nil)
}

// LatencyModelWithClock builds the configured latency model, propagating
// orbits to clock's time when the orbital model is selected.
func (c *Config) LatencyModelWithClock(clock timectrl.Clock) core.LatencyModel {
	planar := core.PlanarLatency{
		Origin:      model.Location{Lat: c.Optimizer.OriginLat, Lon: c.Optimizer.OriginLon},
		MsPerDegree: c.Optimizer.MsPerDegree,
	}
	if c.Optimizer.LatencyModel == LatencyOrbital {
		orbital := core.NewOrbitalLatency()
		orbital.Fallback = planar
		if clock != nil {
			orbital.Now = clock.Now
		}
		return orbital
	}
	return planar
}

// EngineOptions converts the engine, threshold, health and optimizer
// sections. clock may be nil.
func (c *Config) EngineOptions(clock timectrl.Clock) engine.Options {
	if clock == nil {
		clock = timectrl.SystemClock{}
	}
	return engine.Options{
		Thresholds:  c.Thresholds,
		Weights:     c.Health,
		Latency:     c.LatencyModelWithClock(clock),
		CacheTTL:    c.Engine.CacheTTL,
		MaxParallel: c.Engine.MaxParallel,
		Clock:       clock,

		SkipContendedSites: c.Optimizer.SkipContendedSites,
	}
}

// LoggerConfig converts the logging section.
func (c *Config) LoggerConfig() logging.Config {
	return logging.Config{
		Level:  c.Logging.Level,
		Format: c.Logging.Format,
		File:   c.Logging.File,
	}
}

// TracingConfig converts the tracing section.
func (c *Config) TracingConfig() observability.TracingConfig {
	return observability.TracingConfig{
		Enabled:     c.Tracing.Enabled,
		ServiceName: c.Tracing.ServiceName,
		Exporter:    c.Tracing.Exporter,
		Endpoint:    c.Tracing.Endpoint,
		SampleRatio: c.Tracing.SampleRatio,
	}
}

// isFileNotFoundError checks if an error is a file not found error.
func isFileNotFoundError(err error) bool {
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return errors.Is(pathErr, os.ErrNotExist)
	}
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound)
}
