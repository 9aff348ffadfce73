package config

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v2"

	"github.com/vietddude/backstop/internal/core/identity"
	"github.com/vietddude/backstop/internal/core/retry"
	"github.com/vietddude/backstop/internal/infra/storage/memory"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration, expanding environment variables and
// filling defaults.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Retry.Policy().Validate(); err != nil {
		return nil, fmt.Errorf("invalid retry config: %w", err)
	}
	seen := make(map[string]bool, len(cfg.Upstreams))
	for _, u := range cfg.Upstreams {
		if u.Name == "" || u.URL == "" {
			return nil, fmt.Errorf("upstream requires name and url")
		}
		if seen[u.Name] {
			return nil, fmt.Errorf("duplicate upstream %q", u.Name)
		}
		seen[u.Name] = true
	}

	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *AppConfig {
	var cfg AppConfig
	applyDefaults(&cfg)
	return &cfg
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Name == "" {
		cfg.Server.Name = identity.DefaultName
	}
	if cfg.Server.InstanceID == "" {
		cfg.Server.InstanceID = uuid.NewString()
	}

	def := retry.DefaultPolicy
	if cfg.Retry.DelayMultiplier == 0 {
		cfg.Retry.DelayMultiplier = def.DelayMultiplier
	}
	if cfg.Retry.InitialDelayMs == nil {
		ms := def.InitialDelay.Milliseconds()
		cfg.Retry.InitialDelayMs = &ms
	}
	if cfg.Retry.MaxDelayMs == nil {
		ms := def.MaxDelay.Milliseconds()
		cfg.Retry.MaxDelayMs = &ms
	}
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry.MaxRetries = def.MaxRetries
	}

	if cfg.Journal.TTL == 0 {
		cfg.Journal.TTL = 24 * time.Hour
	}
	if cfg.Journal.Capacity == 0 {
		cfg.Journal.Capacity = memory.DefaultCapacity
	}
	if cfg.Journal.Prefix == "" {
		cfg.Journal.Prefix = "backstop"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}

	for i := range cfg.Upstreams {
		if cfg.Upstreams[i].Timeout == 0 {
			cfg.Upstreams[i].Timeout = 30 * time.Second
		}
	}
}
