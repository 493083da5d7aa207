// Package config loads application configuration with koanf.
//
// Loading order:
//  1. Built-in defaults
//  2. Optional YAML config file
//  3. Environment variables with the MESS_ prefix
//     (MESS_SERVER__PORT=9090 overrides server.port)
//
// Config is immutable after Load and safe for concurrent reads.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/warp/mess-engine/mess"
)

const envPrefix = "MESS_"

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Ledger    LedgerConfig    `koanf:"ledger"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	Auth      AuthConfig      `koanf:"auth"`
	Logging   LoggingConfig   `koanf:"logging"`
}

type ServerConfig struct {
	Port         int           `koanf:"port"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
	IdleTimeout  time.Duration `koanf:"idle_timeout"`
}

type DatabaseConfig struct {
	// Path is the SQLite database file; ":memory:" for in-memory.
	Path string `koanf:"path"`
}

type LedgerConfig struct {
	// Allotment is the number of tokens granted per slot at each reset.
	Allotment int `koanf:"allotment"`
}

type SchedulerConfig struct {
	// Enabled controls the monthly ledger reset job.
	Enabled bool `koanf:"enabled"`
}

type AuthConfig struct {
	// Secret signs bearer tokens. Must be overridden outside development.
	Secret   string        `koanf:"secret"`
	TokenTTL time.Duration `koanf:"token_ttl"`
}

type LoggingConfig struct {
	Level string `koanf:"level"` // debug, info, warn, error
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database:  DatabaseConfig{Path: "mess.db"},
		Ledger:    LedgerConfig{Allotment: mess.DefaultAllotment},
		Scheduler: SchedulerConfig{Enabled: true},
		Auth:      AuthConfig{Secret: "dev-secret", TokenTTL: 30 * 24 * time.Hour},
		Logging:   LoggingConfig{Level: "info"},
	}
}

// Load builds the configuration. configPath may be empty, in which case
// only defaults and environment variables apply; a missing file at a
// non-empty path is an error.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return nil, fmt.Errorf("config file %s: %w", configPath, err)
		}
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	// Double underscore separates nesting so single underscores survive in
	// key names: MESS_SERVER__PORT -> server.port,
	// MESS_SERVER__READ_TIMEOUT -> server.read_timeout.
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port: %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Ledger.Allotment < 0 {
		return fmt.Errorf("ledger.allotment must be >= 0, got %d", c.Ledger.Allotment)
	}
	if c.Auth.Secret == "" {
		return fmt.Errorf("auth.secret is required")
	}
	return nil
}

// Allotment returns the configured reset allotment as a ledger.
func (c *Config) Allotment() mess.Ledger {
	return mess.UniformLedger(c.Ledger.Allotment)
}
