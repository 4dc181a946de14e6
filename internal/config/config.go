package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	BackendDynamoDB = "dynamodb"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

// Config is read once in cmd/main.go.
type Config struct {
	StateBackend    string        `env:"STATE_BACKEND" envDefault:"dynamodb"`
	StateTable      string        `env:"STATE_TABLE"`
	RedisURL        string        `env:"REDIS_URL"`
	StateNamespace  string        `env:"STATE_NAMESPACE" envDefault:"user"`
	StateTTL        time.Duration `env:"STATE_TTL" envDefault:"720h"`
	LockTTL         time.Duration `env:"LOCK_TTL" envDefault:"10s"`
	MaxSaveAttempts int           `env:"MAX_SAVE_ATTEMPTS" envDefault:"3"`

	ParamPrefix string `env:"PARAM_PREFIX,notEmpty"`

	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	TracingEnabled bool   `env:"TRACING_ENABLED" envDefault:"false"`
	ServiceName    string `env:"SERVICE_NAME" envDefault:"festival-bot"`
}

// Load parses the environment into Config and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse env: %w", err)
	}
	cfg.StateBackend = strings.ToLower(strings.TrimSpace(cfg.StateBackend))
	cfg.StateTable = strings.TrimSpace(cfg.StateTable)
	cfg.RedisURL = strings.TrimSpace(cfg.RedisURL)
	cfg.ParamPrefix = strings.TrimSpace(cfg.ParamPrefix)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.StateBackend {
	case BackendDynamoDB:
		if c.StateTable == "" {
			return errors.New("config: STATE_TABLE is required for the dynamodb backend")
		}
	case BackendRedis:
		if c.RedisURL == "" {
			return errors.New("config: REDIS_URL is required for the redis backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("config: unknown STATE_BACKEND %q", c.StateBackend)
	}
	if c.ParamPrefix == "" {
		return errors.New("config: PARAM_PREFIX must not be empty")
	}
	if c.StateTTL <= 0 {
		return fmt.Errorf("config: STATE_TTL must be positive, got %s", c.StateTTL)
	}
	if c.LockTTL <= 0 {
		return fmt.Errorf("config: LOCK_TTL must be positive, got %s", c.LockTTL)
	}
	if c.MaxSaveAttempts < 1 {
		return fmt.Errorf("config: MAX_SAVE_ATTEMPTS must be at least 1, got %d", c.MaxSaveAttempts)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseLevel maps LOG_LEVEL to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("config: LOG_LEVEL: %w", err)
	}
	return lvl, nil
}
