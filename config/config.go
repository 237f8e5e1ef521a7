package config

import (
	"fmt"
	"runtime"
	"time"

	"github.com/kbukum/orderedpipe/logger"
	"github.com/kbukum/orderedpipe/observability"
)

// ServiceName is the name used for file discovery, logs and telemetry.
const ServiceName = "orderedpipe"

// Executor kinds accepted by PipelineConfig.Executor.
const (
	ExecutorOwned   = "owned"
	ExecutorPool    = "pool"
	ExecutorLimited = "limited"
)

// Config is the top-level orderedpipe configuration.
type Config struct {
	Name        string `yaml:"name" mapstructure:"name" validate:"required"`
	Environment string `yaml:"environment" mapstructure:"environment" validate:"oneof=development staging production"`
	Version     string `yaml:"version" mapstructure:"version"`

	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Logging   logger.Config   `yaml:"logging" mapstructure:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry" mapstructure:"telemetry"`
}

// PipelineConfig selects the concurrency of the ordered operators.
type PipelineConfig struct {
	// Factor bounds the number of values computed at once.
	Factor int `yaml:"factor" mapstructure:"factor" validate:"min=1,max=4096"`
	// Workers sizes a shared executor. Zero means Factor.
	Workers int `yaml:"workers" mapstructure:"workers" validate:"min=0,max=4096"`
	// Executor is one of owned, pool or limited.
	Executor string `yaml:"executor" mapstructure:"executor" validate:"oneof=owned pool limited"`
}

// TelemetryConfig configures OTLP export of traces and metrics.
type TelemetryConfig struct {
	Enabled    bool          `yaml:"enabled" mapstructure:"enabled"`
	Endpoint   string        `yaml:"endpoint" mapstructure:"endpoint" validate:"required_if=Enabled true"`
	Insecure   bool          `yaml:"insecure" mapstructure:"insecure"`
	SampleRate float64       `yaml:"sample_rate" mapstructure:"sample_rate" validate:"gte=0,lte=1"`
	Interval   time.Duration `yaml:"interval" mapstructure:"interval" validate:"gte=0"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Name:        ServiceName,
		Environment: "development",
		Pipeline: PipelineConfig{
			Factor:   runtime.NumCPU(),
			Executor: ExecutorOwned,
		},
		Telemetry: TelemetryConfig{
			Endpoint:   "localhost:4318",
			Insecure:   true,
			SampleRate: 1.0,
			Interval:   15 * time.Second,
		},
	}
}

// ApplyDefaults fills values left empty after loading.
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = ServiceName
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.Pipeline.Executor == "" {
		c.Pipeline.Executor = ExecutorOwned
	}
	c.Logging.ApplyDefaults()
}

// Validate checks struct constraints and the logging section.
func (c *Config) Validate() error {
	if err := validateStruct(c); err != nil {
		return err
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("config.logging: %w", err)
	}
	return nil
}

// PoolSize returns the number of workers for a shared executor.
func (c PipelineConfig) PoolSize() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return c.Factor
}

// TracerConfig maps the telemetry section onto observability.TracerConfig.
func (c *Config) TracerConfig() observability.TracerConfig {
	tc := observability.DefaultTracerConfig(c.Name)
	tc.ServiceVersion = c.Version
	tc.Environment = c.Environment
	tc.Endpoint = c.Telemetry.Endpoint
	tc.Insecure = c.Telemetry.Insecure
	tc.SampleRate = c.Telemetry.SampleRate
	return tc
}

// MeterConfig maps the telemetry section onto observability.MeterConfig.
func (c *Config) MeterConfig() observability.MeterConfig {
	mc := observability.DefaultMeterConfig(c.Name)
	mc.ServiceVersion = c.Version
	mc.Environment = c.Environment
	mc.Endpoint = c.Telemetry.Endpoint
	mc.Insecure = c.Telemetry.Insecure
	if c.Telemetry.Interval > 0 {
		mc.Interval = c.Telemetry.Interval
	}
	return mc
}

// Load builds a Config from Default, the resolved files and the environment,
// then validates it.
func Load(opts ...LoaderOption) (*Config, error) {
	cfg := Default()
	if err := LoadConfig(ServiceName, &cfg, opts...); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
