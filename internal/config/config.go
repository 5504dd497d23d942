// Package config reads sequencer settings from SEQUENCER_* environment
// variables. Command-line flags override what is loaded here.
package config

import (
	"fmt"
	"log/slog"

	"github.com/caarlos0/env/v10"
)

// Prefix is prepended to every variable name.
const Prefix = "SEQUENCER_"

// Config holds all configuration for the sequencer CLI.
type Config struct {
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	// DB is the SQLite file runs are recorded into. Empty means in-memory.
	DB string `env:"DB"`

	Engine EngineConfig
}

// EngineConfig holds distributor settings.
type EngineConfig struct {
	PreferLocal   bool `env:"PREFER_LOCAL" envDefault:"true"`
	RemoteWorkers int  `env:"REMOTE_WORKERS" envDefault:"0"`
	MaxVisits     int  `env:"MAX_VISITS" envDefault:"0"`
}

// Load reads configuration from the process environment.
func Load() (*Config, error) {
	return parse(env.Options{Prefix: Prefix})
}

// LoadFrom reads configuration from vars instead of the process
// environment. Keys carry the prefix.
func LoadFrom(vars map[string]string) (*Config, error) {
	return parse(env.Options{Prefix: Prefix, Environment: vars})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if _, ok := logLevels[c.LogLevel]; !ok {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.LogFormat)
	}
	if c.Engine.RemoteWorkers < 0 {
		return fmt.Errorf("remote workers must be non-negative, got %d", c.Engine.RemoteWorkers)
	}
	if c.Engine.MaxVisits < 0 {
		return fmt.Errorf("max visits must be non-negative, got %d", c.Engine.MaxVisits)
	}
	return nil
}

// Level returns the slog level for LogLevel. Call after Validate.
func (c *Config) Level() slog.Level {
	return logLevels[c.LogLevel]
}
