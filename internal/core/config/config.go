package config

import (
	"time"

	"github.com/vietddude/backstop/internal/core/retry"
	redisclient "github.com/vietddude/backstop/internal/infra/redis"
	"github.com/vietddude/backstop/internal/infra/upstream"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server    ServerConfig       `yaml:"server"`
	Retry     RetryConfig        `yaml:"retry"`
	Redis     redisclient.Config `yaml:"redis"`
	Journal   JournalConfig      `yaml:"journal"`
	Logging   LoggingConfig      `yaml:"logging"`
	Upstreams []upstream.Config  `yaml:"upstreams"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
	// Name is advertised in the server header of error responses.
	Name       string `yaml:"name"`
	InstanceID string `yaml:"instance_id"`
	// PrincipalHeader names the header an authenticating proxy sets; empty disables it.
	PrincipalHeader string `yaml:"principal_header"`
	SupportURL      string `yaml:"support_url"`
}

// RetryConfig holds the backoff policy for upstream calls. The delays are
// pointers so an explicit 0 is kept and only absent keys get defaults.
type RetryConfig struct {
	DelayMultiplier float64 `yaml:"delay_multiplier"`
	InitialDelayMs  *int64  `yaml:"initial_delay_ms"`
	MaxDelayMs      *int64  `yaml:"max_delay_ms"`
	MaxRetries      int     `yaml:"max_retries"`
}

// Policy converts the configuration to a retry policy.
func (c RetryConfig) Policy() retry.Policy {
	return retry.Policy{
		DelayMultiplier: c.DelayMultiplier,
		InitialDelay:    millis(c.InitialDelayMs),
		MaxDelay:        millis(c.MaxDelayMs),
		MaxRetries:      c.MaxRetries,
	}
}

func millis(ms *int64) time.Duration {
	if ms == nil {
		return 0
	}
	return time.Duration(*ms) * time.Millisecond
}

// JournalConfig holds failure journal settings.
type JournalConfig struct {
	TTL      time.Duration `yaml:"ttl"`
	Capacity int           `yaml:"capacity"` // in-memory journal only
	Prefix   string        `yaml:"prefix"`   // redis key prefix
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}
