// Package config loads runtime configuration the way adred-codev-ws_poc's
// ws/config.go does: an optional .env file feeding into env-tagged struct
// fields, environment variables taking priority over their defaults.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds every tunable the server reads at startup.
//
// Tags:
//
//	env: environment variable name
//	envDefault: default value if the variable is unset
type Config struct {
	Addr   string `env:"CHAT_ADDR" envDefault:":8080"`
	DBPath string `env:"CHAT_DB_PATH" envDefault:"chatserver.db"`

	BusCapacity   int `env:"CHAT_BUS_CAPACITY" envDefault:"32"`
	MaxGuests     int `env:"CHAT_MAX_GUESTS" envDefault:"64"`
	MaxUsers      int `env:"CHAT_MAX_USERS" envDefault:"128"`
	QueueCapacity int `env:"CHAT_QUEUE_CAPACITY" envDefault:"32"`

	LogLevel  string `env:"CHAT_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"CHAT_LOG_FORMAT" envDefault:"json"`
}

// Load reads an optional .env file, then parses the process environment
// into a Config, applying envDefault tags for anything unset. Env vars
// always win over .env file contents, since godotenv.Load only sets
// variables that aren't already present in the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		// Absence of a .env file is normal in production; only a malformed
		// one is worth surfacing, and env.Parse will fail loudly enough on
		// bad values regardless.
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Validate rejects configurations that would make the server misbehave
// rather than merely look different.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("CHAT_ADDR must not be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("CHAT_DB_PATH must not be empty")
	}
	if c.BusCapacity < 1 {
		return fmt.Errorf("CHAT_BUS_CAPACITY must be > 0, got %d", c.BusCapacity)
	}
	if c.MaxGuests < 1 || c.MaxUsers < 1 {
		return fmt.Errorf("CHAT_MAX_GUESTS and CHAT_MAX_USERS must be > 0")
	}
	if c.QueueCapacity < 1 {
		return fmt.Errorf("CHAT_QUEUE_CAPACITY must be > 0, got %d", c.QueueCapacity)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("CHAT_LOG_LEVEL must be one of debug/info/warn/error, got %q", c.LogLevel)
	}
	validFormats := map[string]bool{"json": true, "pretty": true}
	if !validFormats[c.LogFormat] {
		return fmt.Errorf("CHAT_LOG_FORMAT must be one of json/pretty, got %q", c.LogFormat)
	}
	return nil
}
