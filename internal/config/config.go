// Package config implements the Config component (K, expansion): an
// env-driven settings layer grounded directly on the teacher's config.go —
// a single struct tagged with env/envDefault, loaded via
// github.com/caarlos0/env/v11 after an optional github.com/joho/godotenv
// load, validated with clamped ranges, and logged as one structured line.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds every tunable named in the external interface: the core's
// own knobs (port, log levels, rotation interval, retained journal count,
// peer address, instance name) plus the teacher-style resource knobs
// (worker count, queue size, connection cap, connection rate limits) that
// are left implementation-defined.
type Config struct {
	// Listener
	Port int `env:"VORTEX_PORT" envDefault:"7070"`

	// Logging (0..8, matching the CLI's -l/-L range)
	AppLogLevel     int    `env:"VORTEX_APP_LOG_LEVEL" envDefault:"5"`
	ConsoleLogLevel int    `env:"VORTEX_CONSOLE_LOG_LEVEL" envDefault:"5"`
	LogFormat       string `env:"VORTEX_LOG_FORMAT" envDefault:"json"`
	LogDir          string `env:"VORTEX_LOG_DIR" envDefault:"./log"`

	// Journal / rotation
	JournalDir              string `env:"VORTEX_JOURNAL_DIR" envDefault:"./journal"`
	RotationIntervalSeconds int    `env:"VORTEX_ROTATION_INTERVAL" envDefault:"3600"`
	RetainedJournals        int    `env:"VORTEX_KEEP" envDefault:"6"`

	// Peer mirror
	PeerAddr string `env:"VORTEX_PEER_ADDR" envDefault:""`

	// Instance identity
	InstanceName string `env:"VORTEX_INSTANCE_NAME" envDefault:"vortex"`

	// Worker pool
	WorkerCount     int `env:"VORTEX_WORKER_COUNT" envDefault:"6"`
	WorkerQueueSize int `env:"VORTEX_WORKER_QUEUE_SIZE" envDefault:"256"`

	// Connection admission
	MaxConnections           int     `env:"VORTEX_MAX_CONNECTIONS" envDefault:"10000"`
	ConnRateLimitIPBurst     int     `env:"VORTEX_CONN_RATE_IP_BURST" envDefault:"10"`
	ConnRateLimitIPRate      float64 `env:"VORTEX_CONN_RATE_IP_RATE" envDefault:"1.0"`
	ConnRateLimitGlobalBurst int     `env:"VORTEX_CONN_RATE_GLOBAL_BURST" envDefault:"300"`
	ConnRateLimitGlobalRate  float64 `env:"VORTEX_CONN_RATE_GLOBAL_RATE" envDefault:"50.0"`

	// Monitoring
	MetricsAddr string `env:"VORTEX_METRICS_ADDR" envDefault:":9090"`
}

// Load reads configuration from an optional .env file and environment
// variables, applies defaults, and validates. Priority: env vars > .env
// file > struct defaults.
func Load(logger *zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if logger != nil {
			logger.Info().Msg("no .env file found; using environment variables only")
		}
	} else if logger != nil {
		logger.Info().Msg("loaded configuration from .env file")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	return cfg, nil
}

// Validate enforces the external interface's clamped ranges and rejects
// nonsensical resource settings.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("VORTEX_PORT must be 1-65535, got %d", c.Port)
	}
	if c.RotationIntervalSeconds < 60 || c.RotationIntervalSeconds > 86400 {
		return fmt.Errorf("VORTEX_ROTATION_INTERVAL must be 60-86400, got %d", c.RotationIntervalSeconds)
	}
	if c.RetainedJournals < 0 || c.RetainedJournals > 364 {
		return fmt.Errorf("VORTEX_KEEP must be 0-364, got %d", c.RetainedJournals)
	}
	if c.AppLogLevel < 0 || c.AppLogLevel > 8 {
		return fmt.Errorf("VORTEX_APP_LOG_LEVEL must be 0-8, got %d", c.AppLogLevel)
	}
	if c.ConsoleLogLevel < 0 || c.ConsoleLogLevel > 8 {
		return fmt.Errorf("VORTEX_CONSOLE_LOG_LEVEL must be 0-8, got %d", c.ConsoleLogLevel)
	}
	if c.WorkerCount < 1 {
		return fmt.Errorf("VORTEX_WORKER_COUNT must be > 0, got %d", c.WorkerCount)
	}
	if c.MaxConnections < 1 {
		return fmt.Errorf("VORTEX_MAX_CONNECTIONS must be > 0, got %d", c.MaxConnections)
	}

	validLogFormats := map[string]bool{"json": true, "pretty": true}
	if !validLogFormats[c.LogFormat] {
		return fmt.Errorf("VORTEX_LOG_FORMAT must be one of: json, pretty (got: %s)", c.LogFormat)
	}

	return nil
}

// RotationInterval returns RotationIntervalSeconds as a time.Duration.
func (c *Config) RotationInterval() time.Duration {
	return time.Duration(c.RotationIntervalSeconds) * time.Second
}

// LogConfig emits the loaded configuration as one structured log line,
// mirroring the teacher's Config.LogConfig.
func (c *Config) LogConfig(logger zerolog.Logger) {
	logger.Info().
		Int("port", c.Port).
		Int("app_log_level", c.AppLogLevel).
		Int("console_log_level", c.ConsoleLogLevel).
		Str("log_format", c.LogFormat).
		Str("journal_dir", c.JournalDir).
		Dur("rotation_interval", c.RotationInterval()).
		Int("retained_journals", c.RetainedJournals).
		Str("peer_addr", c.PeerAddr).
		Str("instance_name", c.InstanceName).
		Int("worker_count", c.WorkerCount).
		Int("worker_queue_size", c.WorkerQueueSize).
		Int("max_connections", c.MaxConnections).
		Msg("configuration loaded")
}
