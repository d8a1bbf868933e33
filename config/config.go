// Package config loads service settings from the environment.
//
// An optional .env file in the working directory is read first; real
// environment variables always win over it.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

type Config struct {
	// Service
	ServerPort  string   `env:"SERVER_PORT" envDefault:"8080"`
	Environment string   `env:"ENVIRONMENT" envDefault:"development"` // development, staging, production
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`

	// Storage
	DBPath   string `env:"DB_PATH" envDefault:"checkmate.db"`
	SeedFile string `env:"SEED_FILE"`

	// Logging
	LoggerLevel  string `env:"LOGGER_LEVEL" envDefault:"INFO"`
	LoggerFormat string `env:"LOGGER_FORMAT" envDefault:"text"` // json, text

	// Engine
	ReportWindowDays  int `env:"REPORT_WINDOW_DAYS" envDefault:"30"`
	ReportConcurrency int `env:"REPORT_CONCURRENCY" envDefault:"4"`
	BufferMinutes     int `env:"BUFFER_MINUTES" envDefault:"60"`

	// Redis admission lock; empty address keeps the lock in-process
	RedisAddr     string        `env:"REDIS_ADDR"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`
	LockTTL       time.Duration `env:"LOCK_TTL" envDefault:"5s"`
}

// Load reads .env (if present) and the environment.
func Load() (Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.ReportWindowDays <= 0 {
		errs = append(errs, errors.New("REPORT_WINDOW_DAYS must be positive"))
	}
	if c.ReportConcurrency <= 0 {
		errs = append(errs, errors.New("REPORT_CONCURRENCY must be positive"))
	}
	if c.BufferMinutes < 0 {
		errs = append(errs, errors.New("BUFFER_MINUTES must not be negative"))
	}
	if c.RedisAddr != "" && c.LockTTL <= 0 {
		errs = append(errs, errors.New("LOCK_TTL must be positive when REDIS_ADDR is set"))
	}
	switch strings.ToLower(c.LoggerFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("LOGGER_FORMAT must be text or json, got %q", c.LoggerFormat))
	}
	return errors.Join(errs...)
}

func (c Config) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, "development")
}
