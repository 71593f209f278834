// Package config reads the server settings from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port int `env:"PORT" envDefault:"8080"`
	// DatabaseURL selects the store: empty keeps services in memory,
	// postgres:// uses PostgreSQL and sqlite://path a SQLite file.
	DatabaseURL string `env:"DATABASE_URL"`
	// ServiceDir is watched for workbook and DMN files when set.
	ServiceDir      string        `env:"SERVICE_DIR"`
	MaxUploadBytes  int64         `env:"MAX_UPLOAD_BYTES" envDefault:"33554432"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
	SlowRequest     time.Duration `env:"SLOW_REQUEST" envDefault:"2s"`
	// OpenAPICacheTTL expires generated documents. Zero keeps them until the
	// service changes.
	OpenAPICacheTTL  time.Duration `env:"OPENAPI_CACHE_TTL" envDefault:"0s"`
	MetricsNamespace string        `env:"METRICS_NAMESPACE" envDefault:"decisioncentral"`
}

// Load parses the environment.
func Load() (Config, error) {
	return parse(env.Options{})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT %d is out of range", c.Port)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}
	if c.OpenAPICacheTTL < 0 {
		return fmt.Errorf("OPENAPI_CACHE_TTL cannot be negative")
	}
	return nil
}

// Addr is the listen address.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
