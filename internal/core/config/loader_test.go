package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vietddude/backstop/internal/core/retry"
)

func TestLoad_EnvSubstitution(t *testing.T) {
	t.Setenv("TEST_REDIS_URL", "redis://localhost:6380/2")

	configContent := `
redis:
  url: ${TEST_REDIS_URL}
`
	tmpFile, err := os.CreateTemp("", "config_*.yaml")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.Write([]byte(configContent)); err != nil {
		t.Fatalf("Failed to write to temp file: %v", err)
	}
	tmpFile.Close()

	cfg, err := Load(tmpFile.Name())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Redis.URL != "redis://localhost:6380/2" {
		t.Errorf("Expected URL redis://localhost:6380/2, got %s", cfg.Redis.URL)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/backstop.yaml")
	assert.Error(t, err)
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("{}"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "backstop", cfg.Server.Name)
	assert.NotEmpty(t, cfg.Server.InstanceID)
	assert.Equal(t, retry.DefaultPolicy, cfg.Retry.Policy())
	assert.Equal(t, 24*time.Hour, cfg.Journal.TTL)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestParse_Full(t *testing.T) {
	cfg, err := Parse([]byte(`
server:
  port: 9000
  name: edge
  instance_id: i-1
retry:
  delay_multiplier: 2
  initial_delay_ms: 50
  max_delay_ms: 1000
  max_retries: 4
journal:
  ttl: 1h
upstreams:
  - name: orders
    url: http://orders.internal
    timeout: 5s
  - name: users
    url: http://users.internal
`))
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "edge", cfg.Server.Name)
	assert.Equal(t, "i-1", cfg.Server.InstanceID)
	assert.Equal(t, retry.Policy{
		DelayMultiplier: 2,
		InitialDelay:    50 * time.Millisecond,
		MaxDelay:        time.Second,
		MaxRetries:      4,
	}, cfg.Retry.Policy())
	assert.Equal(t, time.Hour, cfg.Journal.TTL)
	require.Len(t, cfg.Upstreams, 2)
	assert.Equal(t, 5*time.Second, cfg.Upstreams[0].Timeout)
	assert.Equal(t, 30*time.Second, cfg.Upstreams[1].Timeout)
}

func TestParse_ExplicitZeroDelaysAreKept(t *testing.T) {
	cfg, err := Parse([]byte("retry:\n  initial_delay_ms: 0\n  max_delay_ms: 0\n  max_retries: 3\n"))
	require.NoError(t, err)

	p := cfg.Retry.Policy()
	assert.Equal(t, time.Duration(0), p.InitialDelay)
	assert.Equal(t, time.Duration(0), p.MaxDelay)
	assert.Equal(t, 3, p.MaxRetries)
}

func TestParse_OnlyAbsentDelaysAreDefaulted(t *testing.T) {
	cfg, err := Parse([]byte("retry:\n  initial_delay_ms: 0\n"))
	require.NoError(t, err)

	p := cfg.Retry.Policy()
	assert.Equal(t, time.Duration(0), p.InitialDelay)
	assert.Equal(t, retry.DefaultPolicy.MaxDelay, p.MaxDelay)
}

func TestParse_Invalid(t *testing.T) {
	tests := map[string]string{
		"bad multiplier":       "retry:\n  delay_multiplier: 0.5\n",
		"negative retries":     "retry:\n  max_retries: -1\n",
		"negative delay":       "retry:\n  initial_delay_ms: -5\n",
		"upstream without url": "upstreams:\n  - name: a\n",
		"duplicate upstream":   "upstreams:\n  - name: a\n    url: http://a\n  - name: a\n    url: http://b\n",
		"malformed":            "server: [",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(content))
			assert.Error(t, err)
		})
	}
}
