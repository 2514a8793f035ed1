// Package config loads server configuration from the environment, with a
// .env file honored in development.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Addr           string        `env:"ADDR" envDefault:":8080"`
	GracePeriod    time.Duration `env:"GRACE_PERIOD" envDefault:"30s"`
	StartingHealth int           `env:"STARTING_HEALTH" envDefault:"20"`
	StartingHand   int           `env:"STARTING_HAND" envDefault:"4"`
	DeckSize       int           `env:"DECK_SIZE" envDefault:"20"`
	DatabaseURL    string        `env:"DATABASE_URL"` // empty disables the result archive
	Debug          bool          `env:"DEBUG" envDefault:"false"`
}

// Load reads .env if present, then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.GracePeriod <= 0 {
		return Config{}, fmt.Errorf("GRACE_PERIOD must be positive, got %s", cfg.GracePeriod)
	}
	if cfg.StartingHealth <= 0 {
		return Config{}, fmt.Errorf("STARTING_HEALTH must be positive, got %d", cfg.StartingHealth)
	}
	return cfg, nil
}
