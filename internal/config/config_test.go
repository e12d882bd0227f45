package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-engine/internal/ratelimit"
)

func TestLoad(t *testing.T) {
	// Create a temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  port: 9090
  host: "0.0.0.0"

logging:
  level: debug
  redact_pii: false

engine:
  max_concurrent_campaigns: 4
  retry_attempts: 5
  retry_base_delay_ms: 200
  retry_max_delay_ms: 5000
  interaction_capacity_per_hour: 1000

platforms:
  email: {batch_size: 100, rate_limit: "100/minute"}
  push:  {batch_size: 1000, rate_limit: "10/second"}

kinds:
  recovery: {priority: critical, platforms: [email, push]}

webhook:
  url: "https://hooks.example.com/campaigns"
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	// Test server config
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:9090", cfg.Server.Addr())

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Redact())

	// Test engine config
	assert.Equal(t, 4, cfg.Engine.MaxConcurrentCampaigns)
	assert.Equal(t, 5, cfg.Engine.RetryAttempts)
	assert.Equal(t, 200*time.Millisecond, cfg.Engine.RetryBaseDelay())
	assert.Equal(t, 5*time.Second, cfg.Engine.RetryMaxDelay())
	assert.Equal(t, int64(1000), cfg.Engine.InteractionCapacityPerHour)

	// File tables replace the defaults entirely
	assert.Len(t, cfg.Platforms, 2)
	assert.Len(t, cfg.Kinds, 1)
	assert.Equal(t, []string{"email", "push"}, cfg.Kinds["recovery"].Platforms)

	rates, err := cfg.PlatformRates()
	require.NoError(t, err)
	assert.Equal(t, ratelimit.Rate{Count: 10, Period: time.Second}, rates["push"])

	assert.Equal(t, "https://hooks.example.com/campaigns", cfg.Webhook.URL)
	assert.Equal(t, 10*time.Second, cfg.Webhook.Timeout())

	assert.NoError(t, cfg.Validate())
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	// Test defaults
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Redact())
	assert.Equal(t, 10, cfg.Engine.MaxConcurrentCampaigns)
	assert.Equal(t, 0.5, cfg.Engine.UrgentWorkerRatio)
	assert.Equal(t, 10000, cfg.Engine.LaneCapacity)
	assert.Equal(t, int64(100000), cfg.Engine.InteractionCapacityPerHour)
	assert.Equal(t, 0.8, cfg.Engine.CapacityWarningThreshold)
	assert.Equal(t, 5*time.Minute, cfg.Engine.CapacityWarningCooldown())
	assert.Equal(t, time.Minute, cfg.Engine.MetricsInterval())
	assert.Equal(t, 3, cfg.Engine.RetryAttempts)
	assert.Equal(t, 1000, cfg.Engine.HistoryLimit)
	assert.Len(t, cfg.Platforms, 7)
	assert.Len(t, cfg.Kinds, 5)
	assert.Equal(t, "critical", cfg.Kinds["recovery"].Priority)

	assert.NoError(t, cfg.Validate())
}

func TestLoadDefaultsAreCopies(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	k := cfg.Kinds["custom"]
	k.Platforms[0] = "fax"
	assert.Equal(t, "email", DefaultKinds["custom"].Platforms[0])
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("engine: [unclosed"), 0644))

	_, err := Load(configPath)
	assert.Error(t, err)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://cache:6379/0")
	t.Setenv("DATABASE_URL", "postgres://engine@db/campaigns")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("SERVER_PORT", "9191")
	t.Setenv("WEBHOOK_URL", "https://hooks.example.com")
	t.Setenv("INTERACTION_CAPACITY_PER_HOUR", "5000")

	cfg, err := LoadFromEnv("")
	require.NoError(t, err)

	assert.Equal(t, "redis://cache:6379/0", cfg.Redis.URL)
	assert.Equal(t, "postgres://engine@db/campaigns", cfg.Postgres.DatabaseURL)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, "https://hooks.example.com", cfg.Webhook.URL)
	assert.Equal(t, int64(5000), cfg.Engine.InteractionCapacityPerHour)
}

func TestLoadFromEnvBadNumber(t *testing.T) {
	t.Setenv("SERVER_PORT", "eighty")
	_, err := LoadFromEnv("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad rate", func(c *Config) { c.Platforms["email"] = PlatformConfig{BatchSize: 10, RateLimit: "lots"} }, "platforms.email.rate_limit"},
		{"zero batch", func(c *Config) { c.Platforms["push"] = PlatformConfig{BatchSize: 0, RateLimit: "1/second"} }, "platforms.push.batch_size"},
		{"bad priority", func(c *Config) { c.Kinds["custom"] = KindConfig{Priority: "urgent", Platforms: []string{"email"}} }, "kinds.custom.priority"},
		{"unknown kind", func(c *Config) { c.Kinds["newsletter"] = KindConfig{Priority: "low"} }, "kinds.newsletter"},
		{"unknown platform", func(c *Config) { c.Kinds["custom"] = KindConfig{Priority: "low", Platforms: []string{"fax"}} }, `unknown platform "fax"`},
		{"ratio", func(c *Config) { c.Engine.UrgentWorkerRatio = 1 }, "urgent_worker_ratio"},
		{"threshold", func(c *Config) { c.Engine.CapacityWarningThreshold = 1.5 }, "capacity_warning_threshold"},
		{"workers", func(c *Config) { c.Engine.MaxConcurrentCampaigns = -1 }, "max_concurrent_campaigns"},
		{"retry delays", func(c *Config) { c.Engine.RetryMaxDelayMs = 10 }, "retry_max_delay_ms"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)
			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Engine.LaneCapacity = -1
	cfg.Platforms["sms"] = PlatformConfig{BatchSize: -5, RateLimit: "x"}

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lane_capacity")
	assert.Contains(t, err.Error(), "platforms.sms.batch_size")
	assert.Contains(t, err.Error(), "platforms.sms.rate_limit")
}

func TestLoadKeepsZeroRetryAttempts(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("engine:\n  retry_attempts: 0\n"), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Engine.RetryAttempts)
	assert.NoError(t, cfg.Validate())

	// Absent keys still get the default.
	require.NoError(t, os.WriteFile(configPath, []byte("engine:\n  retry_workers: 4\n"), 0644))
	cfg, err = Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, DefaultRetryAttempts, cfg.Engine.RetryAttempts)
}
