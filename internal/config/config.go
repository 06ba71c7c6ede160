// Package config loads application configuration from defaults, an optional
// YAML file and RG_-prefixed environment variables, in that order.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "RG_"

// Config is the full application configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Log        LogConfig        `koanf:"log"`
	Database   DatabaseConfig   `koanf:"database"`
	Bus        BusConfig        `koanf:"bus"`
	Redis      RedisConfig      `koanf:"redis"`
	Response   ResponseConfig   `koanf:"response"`
	Quarantine QuarantineConfig `koanf:"quarantine"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port" validate:"required"`
	MetricsPort       string        `koanf:"metrics_port" validate:"required,nefield=Port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
	IngestRPS         float64       `koanf:"ingest_rps" validate:"gt=0"`
	IngestBurst       int           `koanf:"ingest_burst" validate:"min=1"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json text"`
}

// DatabaseConfig holds PostgreSQL settings. Backend "memory" runs the whole
// pipeline on in-process stores, for development and single-node setups.
type DatabaseConfig struct {
	Backend         string        `koanf:"backend" validate:"oneof=postgres memory"`
	URL             string        `koanf:"url" validate:"required_if=Backend postgres"`
	MaxOpenConns    int           `koanf:"max_open_conns" validate:"min=1"`
	MaxIdleConns    int           `koanf:"max_idle_conns" validate:"min=0"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts" validate:"min=1"`
	MigrationsPath  string        `koanf:"migrations_path"`
}

// BusConfig holds event bus settings. Backend "memory" keeps everything
// in-process.
type BusConfig struct {
	Backend        string        `koanf:"backend" validate:"oneof=nats memory"`
	URL            string        `koanf:"url" validate:"required_if=Backend nats"`
	Name           string        `koanf:"name"`
	ConnectTimeout time.Duration `koanf:"connect_timeout"`
	MaxReconnects  int           `koanf:"max_reconnects"`
	Prefetch       int           `koanf:"prefetch" validate:"min=1"`
	BridgeBuffer   int           `koanf:"bridge_buffer" validate:"min=1"`
}

// RedisConfig holds the repeated-source tracker settings. Disabled means
// triage runs without source tracking.
type RedisConfig struct {
	Enabled       bool          `koanf:"enabled"`
	Addr          string        `koanf:"addr" validate:"required_if=Enabled true"`
	Password      string        `koanf:"password"`
	DB            int           `koanf:"db"`
	TrackerWindow time.Duration `koanf:"tracker_window"`
}

// ResponseConfig tunes workflow step execution.
type ResponseConfig struct {
	MaxAttempts int           `koanf:"max_attempts" validate:"min=1"`
	RetryDelay  time.Duration `koanf:"retry_delay"`
	StepTimeout time.Duration `koanf:"step_timeout"`
}

// QuarantineConfig tunes the block expiry sweep.
type QuarantineConfig struct {
	SweepInterval time.Duration `koanf:"sweep_interval" validate:"min=1s"`
}

// Load reads configuration. path may be empty, in which case only defaults
// and environment variables apply.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(defaults(), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// RG_SERVER_PORT=9090 -> server.port
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
		return strings.Replace(s, "_", ".", 1)
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func defaults() koanf.Provider {
	return confmap.Provider(map[string]any{
		"server.host":                "0.0.0.0",
		"server.port":                "8080",
		"server.metrics_port":        "9090",
		"server.read_timeout":        "10s",
		"server.read_header_timeout": "5s",
		"server.write_timeout":       "30s",
		"server.idle_timeout":        "120s",
		"server.ingest_rps":          50.0,
		"server.ingest_burst":        100,

		"log.level":  "info",
		"log.format": "json",

		"database.backend":           "memory",
		"database.max_open_conns":    10,
		"database.max_idle_conns":    5,
		"database.conn_max_lifetime": "30m",
		"database.connect_timeout":   "10s",
		"database.connect_attempts":  5,
		"database.migrations_path":   "migrations",

		"bus.backend":         "memory",
		"bus.name":            "response-garden",
		"bus.connect_timeout": "10s",
		"bus.max_reconnects":  -1,
		"bus.prefetch":        64,
		"bus.bridge_buffer":   256,

		"redis.enabled":        false,
		"redis.tracker_window": "15m",

		"response.max_attempts": 3,
		"response.retry_delay":  "30s",
		"response.step_timeout": "30s",

		"quarantine.sweep_interval": "1m",
	}, ".")
}
