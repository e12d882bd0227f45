package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/ratelimit"
)

// Config holds all configuration for the engine
type Config struct {
	Server     ServerConfig              `yaml:"server"`
	Logging    LoggingConfig             `yaml:"logging"`
	Engine     EngineConfig              `yaml:"engine"`
	Platforms  map[string]PlatformConfig `yaml:"platforms"`
	Kinds      map[string]KindConfig     `yaml:"kinds"`
	Redis      RedisConfig               `yaml:"redis"`
	Postgres   PostgresConfig            `yaml:"postgres"`
	Webhook    WebhookConfig             `yaml:"webhook"`
	Simulation SimulationConfig          `yaml:"simulation"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Addr returns host:port for the HTTP listener.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// Redact reports whether PII redaction is on. Defaults to true.
func (c LoggingConfig) Redact() bool {
	return c.RedactPII == nil || *c.RedactPII
}

// EngineConfig holds engine-wide execution settings
type EngineConfig struct {
	MaxConcurrentCampaigns         int     `yaml:"max_concurrent_campaigns"`
	UrgentWorkerRatio              float64 `yaml:"urgent_worker_ratio"`
	LaneCapacity                   int     `yaml:"lane_capacity"`
	InteractionCapacityPerHour     int64   `yaml:"interaction_capacity_per_hour"`
	CapacityWarningThreshold       float64 `yaml:"capacity_warning_threshold"`
	CapacityWarningCooldownSeconds int     `yaml:"capacity_warning_cooldown_seconds"`
	MetricsIntervalSeconds         int     `yaml:"metrics_interval_seconds"`
	RetryAttempts                  int     `yaml:"retry_attempts"`
	RetryWorkers                   int     `yaml:"retry_workers"`
	RetryBaseDelayMs               int     `yaml:"retry_base_delay_ms"`
	RetryMaxDelayMs                int     `yaml:"retry_max_delay_ms"`
	RetryJitter                    bool    `yaml:"retry_jitter"`
	HistoryLimit                   int     `yaml:"history_limit"`
}

// RetryBaseDelay returns the first retry delay
func (c EngineConfig) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelayMs) * time.Millisecond
}

// RetryMaxDelay returns the retry delay cap
func (c EngineConfig) RetryMaxDelay() time.Duration {
	return time.Duration(c.RetryMaxDelayMs) * time.Millisecond
}

// MetricsInterval returns the metrics refresh period
func (c EngineConfig) MetricsInterval() time.Duration {
	return time.Duration(c.MetricsIntervalSeconds) * time.Second
}

// CapacityWarningCooldown returns the minimum spacing between capacity warnings
func (c EngineConfig) CapacityWarningCooldown() time.Duration {
	return time.Duration(c.CapacityWarningCooldownSeconds) * time.Second
}

// PlatformConfig holds per-platform batching and rate limit
type PlatformConfig struct {
	BatchSize int    `yaml:"batch_size"`
	RateLimit string `yaml:"rate_limit"` // "<count>/<period>", e.g. "100/minute"
}

// KindConfig holds per-campaign-kind priority and default platforms
type KindConfig struct {
	Priority  string   `yaml:"priority"`
	Platforms []string `yaml:"platforms"`
}

// RedisConfig enables the shared rate limiter and capacity warning lock
type RedisConfig struct {
	URL string `yaml:"url"`
}

// PostgresConfig enables persisted execution history
type PostgresConfig struct {
	DatabaseURL string `yaml:"database_url"`
}

// WebhookConfig configures the webhook channel adapter
type WebhookConfig struct {
	URL            string `yaml:"url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration
func (c WebhookConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SimulationConfig configures the simulated adapters used for platforms
// without a real channel.
type SimulationConfig struct {
	LatencyMs            int     `yaml:"latency_ms"`
	RecipientFailureRate float64 `yaml:"recipient_failure_rate"`
	BatchErrorRate       float64 `yaml:"batch_error_rate"`
}

// Latency returns the simulated per-batch latency
func (c SimulationConfig) Latency() time.Duration {
	return time.Duration(c.LatencyMs) * time.Millisecond
}

// DefaultPlatforms is the platform table used when the file names none.
var DefaultPlatforms = map[string]PlatformConfig{
	domain.PlatformEmail:   {BatchSize: 100, RateLimit: "100/minute"},
	domain.PlatformPush:    {BatchSize: 1000, RateLimit: "500/minute"},
	domain.PlatformSMS:     {BatchSize: 50, RateLimit: "60/minute"},
	domain.PlatformChat:    {BatchSize: 50, RateLimit: "30/minute"},
	domain.PlatformInApp:   {BatchSize: 500, RateLimit: "1000/minute"},
	domain.PlatformWebhook: {BatchSize: 100, RateLimit: "120/minute"},
	domain.PlatformSocial:  {BatchSize: 25, RateLimit: "15/minute"},
}

// DefaultKinds is the kind table used when the file names none.
var DefaultKinds = map[string]KindConfig{
	string(domain.KindOnboarding): {Priority: string(domain.PriorityHigh), Platforms: []string{"email", "push", "in_app"}},
	string(domain.KindRetention):  {Priority: string(domain.PriorityMedium), Platforms: []string{"email", "push"}},
	string(domain.KindActivation): {Priority: string(domain.PriorityHigh), Platforms: []string{"email", "push", "in_app"}},
	string(domain.KindRecovery):   {Priority: string(domain.PriorityCritical), Platforms: []string{"email", "sms", "push"}},
	string(domain.KindCustom):     {Priority: string(domain.PriorityLow), Platforms: []string{"email"}},
}

// DefaultRetryAttempts is the per-batch retry budget when none is configured.
const DefaultRetryAttempts = 3

// Load reads and parses the configuration file. An empty path yields the
// defaults.
func Load(path string) (*Config, error) {
	// retry_attempts: 0 disables retries; the default goes in before parsing.
	cfg := Config{Engine: EngineConfig{RetryAttempts: DefaultRetryAttempts}}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	e := &cfg.Engine
	if e.MaxConcurrentCampaigns == 0 {
		e.MaxConcurrentCampaigns = 10
	}
	if e.UrgentWorkerRatio == 0 {
		e.UrgentWorkerRatio = 0.5
	}
	if e.LaneCapacity == 0 {
		e.LaneCapacity = 10000
	}
	if e.InteractionCapacityPerHour == 0 {
		e.InteractionCapacityPerHour = 100000
	}
	if e.CapacityWarningThreshold == 0 {
		e.CapacityWarningThreshold = 0.8
	}
	if e.CapacityWarningCooldownSeconds == 0 {
		e.CapacityWarningCooldownSeconds = 300
	}
	if e.MetricsIntervalSeconds == 0 {
		e.MetricsIntervalSeconds = 60
	}
	if e.RetryWorkers == 0 {
		e.RetryWorkers = 2
	}
	if e.RetryBaseDelayMs == 0 {
		e.RetryBaseDelayMs = 1000
	}
	if e.RetryMaxDelayMs == 0 {
		e.RetryMaxDelayMs = 30000
	}
	if e.HistoryLimit == 0 {
		e.HistoryLimit = 1000
	}

	if len(cfg.Platforms) == 0 {
		cfg.Platforms = make(map[string]PlatformConfig, len(DefaultPlatforms))
		for name, p := range DefaultPlatforms {
			cfg.Platforms[name] = p
		}
	}
	if len(cfg.Kinds) == 0 {
		cfg.Kinds = make(map[string]KindConfig, len(DefaultKinds))
		for name, k := range DefaultKinds {
			cfg.Kinds[name] = KindConfig{Priority: k.Priority, Platforms: append([]string(nil), k.Platforms...)}
		}
	}
	if cfg.Webhook.TimeoutSeconds == 0 {
		cfg.Webhook.TimeoutSeconds = 10
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It loads a .env file (if present) before reading env vars.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Postgres.DatabaseURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("WEBHOOK_URL"); v != "" {
		cfg.Webhook.URL = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("SERVER_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("INTERACTION_CAPACITY_PER_HOUR"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("INTERACTION_CAPACITY_PER_HOUR: %w", err)
		}
		cfg.Engine.InteractionCapacityPerHour = n
	}
	return cfg, nil
}

// Validate reports every problem in the configuration at once.
func (cfg *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	e := cfg.Engine
	if e.MaxConcurrentCampaigns < 1 {
		add("engine.max_concurrent_campaigns must be at least 1")
	}
	if e.UrgentWorkerRatio <= 0 || e.UrgentWorkerRatio >= 1 {
		add("engine.urgent_worker_ratio must be between 0 and 1, got %v", e.UrgentWorkerRatio)
	}
	if e.CapacityWarningThreshold <= 0 || e.CapacityWarningThreshold >= 1 {
		add("engine.capacity_warning_threshold must be between 0 and 1, got %v", e.CapacityWarningThreshold)
	}
	if e.LaneCapacity < 1 {
		add("engine.lane_capacity must be at least 1")
	}
	if e.RetryAttempts < 0 {
		add("engine.retry_attempts must not be negative")
	}
	if e.RetryMaxDelayMs < e.RetryBaseDelayMs {
		add("engine.retry_max_delay_ms must not be below retry_base_delay_ms")
	}

	for _, name := range sortedKeys(cfg.Platforms) {
		p := cfg.Platforms[name]
		if p.BatchSize < 1 {
			add("platforms.%s.batch_size must be positive, got %d", name, p.BatchSize)
		}
		if _, err := ratelimit.ParseRate(p.RateLimit); err != nil {
			add("platforms.%s.rate_limit: %w", name, err)
		}
	}
	for _, name := range sortedKeys(cfg.Kinds) {
		k := cfg.Kinds[name]
		if !domain.CampaignKind(name).IsValid() {
			add("kinds.%s: unknown campaign type", name)
		}
		if _, err := domain.ParsePriority(k.Priority); err != nil {
			add("kinds.%s.priority: %w", name, err)
		}
		for _, p := range k.Platforms {
			if _, ok := cfg.Platforms[p]; !ok {
				add("kinds.%s references unknown platform %q", name, p)
			}
		}
	}
	return errors.Join(errs...)
}

// PlatformRates parses every platform's rate limit.
func (cfg *Config) PlatformRates() (map[string]ratelimit.Rate, error) {
	out := make(map[string]ratelimit.Rate, len(cfg.Platforms))
	for name, p := range cfg.Platforms {
		r, err := ratelimit.ParseRate(p.RateLimit)
		if err != nil {
			return nil, fmt.Errorf("platforms.%s.rate_limit: %w", name, err)
		}
		out[name] = r
	}
	return out, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
