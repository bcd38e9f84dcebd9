// Package config loads personctl settings from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds every environment-driven setting. Command-line flags take
// precedence over these values.
type Config struct {
	File          string        `env:"PERSONCTL_FILE"           envDefault:"./person.dat"`
	LogLevel      string        `env:"PERSONCTL_LOG_LEVEL"      envDefault:"warn"`
	NotifyTimeout time.Duration `env:"PERSONCTL_NOTIFY_TIMEOUT" envDefault:"200ms"`
	NotifyWorkers int           `env:"PERSONCTL_NOTIFY_WORKERS" envDefault:"4"`
	OpenRetry     time.Duration `env:"PERSONCTL_OPEN_RETRY"     envDefault:"1s"`
	MetricsAddr   string        `env:"PERSONCTL_METRICS_ADDR"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports settings that cannot work.
func (c Config) Validate() error {
	var errs []error
	if c.File == "" {
		errs = append(errs, errors.New("record file must not be empty"))
	}
	if c.NotifyTimeout <= 0 {
		errs = append(errs, fmt.Errorf("notify timeout must be positive, got %s", c.NotifyTimeout))
	}
	if c.NotifyWorkers < 1 {
		errs = append(errs, fmt.Errorf("notify workers must be at least 1, got %d", c.NotifyWorkers))
	}
	if c.OpenRetry < 0 {
		errs = append(errs, fmt.Errorf("open retry must not be negative, got %s", c.OpenRetry))
	}
	return errors.Join(errs...)
}
