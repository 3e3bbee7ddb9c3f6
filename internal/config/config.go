// Package config holds the service's environment configuration and the
// dynamic rate-limit registry shared by every instance through the store.
package config

import (
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the process configuration, loaded from the environment.
type Config struct {
	// ListenAddr is the HTTP listen address.
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8000"`

	// RedisURL is the address of the backing store.
	RedisURL string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`

	// UseFakeStore forces the in-process store backend.
	UseFakeStore bool `env:"USE_FAKE_STORE" envDefault:"false"`

	// DefaultLimit and DefaultWindow seed the rate-limit registry.
	DefaultLimit  int `env:"RATE_LIMIT" envDefault:"10"`
	DefaultWindow int `env:"RATE_WINDOW" envDefault:"60"`

	// FailClosed rejects requests when the store is unreachable instead of
	// the default fail-open admit.
	FailClosed bool `env:"FAIL_CLOSED" envDefault:"false"`

	// LogJSON switches slog output to JSON.
	LogJSON bool `env:"LOG_JSON" envDefault:"false"`
}

// Load reads the configuration from the environment, picking up a .env file
// when one is present.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
