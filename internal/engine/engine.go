// Package engine is the composition root. It builds every component from
// configuration, wires them to one event bus, and owns their start and stop
// order.
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/ignite/campaign-engine/internal/channel"
	"github.com/ignite/campaign-engine/internal/config"
	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/events"
	"github.com/ignite/campaign-engine/internal/metrics"
	"github.com/ignite/campaign-engine/internal/pkg/backoff"
	"github.com/ignite/campaign-engine/internal/pkg/distlock"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
	"github.com/ignite/campaign-engine/internal/ratelimit"
	"github.com/ignite/campaign-engine/internal/repository/memory"
	"github.com/ignite/campaign-engine/internal/repository/postgres"
	"github.com/ignite/campaign-engine/internal/service/campaign"
	"github.com/ignite/campaign-engine/internal/worker"
)

const capacityLockKey = "campaign-engine:capacity-warning"

// Options override parts of the wiring. Zero values mean "build from
// config".
type Options struct {
	// Adapters replace the configured adapter for the named platforms.
	Adapters map[string]channel.Adapter
	// Redis is used instead of dialing cfg.Redis.URL. The engine does not
	// close it.
	Redis *redis.Client
	// DB is used instead of opening cfg.Postgres.DatabaseURL. The engine
	// does not close it.
	DB *sql.DB
}

// Engine owns the running components.
type Engine struct {
	Bus       *events.Bus
	Campaigns *campaign.Service
	Metrics   *metrics.Aggregator
	Queue     *worker.DispatchQueue
	Retries   *worker.RetryCoordinator
	Scheduler *worker.Scheduler
	Store     *memory.Store
	Adapters  *channel.Registry

	redis     *redis.Client
	db        *sql.DB
	ownsRedis bool
	ownsDB    bool
	log       *logger.Logger

	mu      sync.Mutex
	running bool
}

// New builds an engine. Redis and Postgres are optional: when they are not
// configured, or unreachable, the engine runs with in-process limiters and
// without persisted history.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	rates, err := cfg.PlatformRates()
	if err != nil {
		return nil, err
	}

	e := &Engine{
		Bus:   events.NewBus(),
		Store: memory.NewStore(cfg.Engine.HistoryLimit),
		log:   logger.With("component", "engine"),
	}
	e.connectRedis(ctx, cfg, opts)
	history := e.connectPostgres(ctx, cfg, opts)

	e.Adapters = buildAdapters(cfg, opts.Adapters)
	limiters := ratelimit.NewRegistryFromRates(rates, e.redis)

	e.Retries = worker.NewRetryCoordinator(worker.RetryConfig{
		MaxAttempts: cfg.Engine.RetryAttempts,
		Workers:     cfg.Engine.RetryWorkers,
		Backoff:     backoff.New(cfg.Engine.RetryBaseDelay(), cfg.Engine.RetryMaxDelay(), cfg.Engine.RetryJitter),
	}, e.Bus)

	execSettings := make(map[string]worker.PlatformSettings, len(cfg.Platforms))
	svcCfg := campaign.Config{
		Kinds:     make(map[domain.CampaignKind]campaign.KindSettings, len(cfg.Kinds)),
		Platforms: make(map[string]campaign.PlatformSettings, len(cfg.Platforms)),
	}
	for name, p := range cfg.Platforms {
		execSettings[name] = worker.PlatformSettings{BatchSize: p.BatchSize}
		svcCfg.Platforms[name] = campaign.PlatformSettings{BatchSize: p.BatchSize, Rate: rates[name]}
	}
	for name, k := range cfg.Kinds {
		svcCfg.Kinds[domain.CampaignKind(name)] = campaign.KindSettings{
			Priority:  domain.Priority(k.Priority),
			Platforms: k.Platforms,
		}
	}
	executor := worker.NewPlatformExecutor(e.Adapters, limiters, execSettings, e.Retries, e.Bus)

	e.Scheduler = worker.NewScheduler()
	e.Queue = worker.NewDispatchQueue(worker.DispatchConfig{
		Workers:      cfg.Engine.MaxConcurrentCampaigns,
		UrgentRatio:  cfg.Engine.UrgentWorkerRatio,
		LaneCapacity: cfg.Engine.LaneCapacity,
	}, e.execute, e.Bus)

	e.Campaigns = campaign.NewService(svcCfg, e.Store, e.Queue, e.Scheduler, executor, e.Bus)
	if history != nil {
		e.Campaigns.SetHistorySink(history)
	}

	e.Metrics = metrics.NewAggregator(metrics.Config{
		CapacityPerHour:  cfg.Engine.InteractionCapacityPerHour,
		WarningThreshold: cfg.Engine.CapacityWarningThreshold,
		Interval:         cfg.Engine.MetricsInterval(),
	}, e.Bus, distlock.NewLock(e.redis, capacityLockKey, cfg.Engine.CapacityWarningCooldown()))

	return e, nil
}

func (e *Engine) connectRedis(ctx context.Context, cfg *config.Config, opts Options) {
	if opts.Redis != nil {
		e.redis = opts.Redis
		return
	}
	if cfg.Redis.URL == "" {
		e.log.Info("redis not configured, using in-process rate limiters")
		return
	}
	var client *redis.Client
	if ropts, err := redis.ParseURL(cfg.Redis.URL); err != nil {
		client = redis.NewClient(&redis.Options{Addr: cfg.Redis.URL})
	} else {
		client = redis.NewClient(ropts)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		e.log.Warn("redis connection failed, using in-process rate limiters", "error", err)
		client.Close()
		return
	}
	e.redis, e.ownsRedis = client, true
	e.log.Info("redis connected, rate limits shared across replicas")
}

func (e *Engine) connectPostgres(ctx context.Context, cfg *config.Config, opts Options) *postgres.HistoryRepo {
	db := opts.DB
	if db == nil {
		if cfg.Postgres.DatabaseURL == "" {
			return nil
		}
		var err error
		db, err = sql.Open("postgres", cfg.Postgres.DatabaseURL)
		if err != nil {
			e.log.Warn("failed to open history database", "error", err)
			return nil
		}
		e.ownsDB = true
	}
	e.db = db

	history := postgres.NewHistoryRepo(db)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := history.EnsureSchema(pingCtx); err != nil {
		e.log.Warn("execution history disabled", "error", err)
		if e.ownsDB {
			db.Close()
			e.ownsDB = false
		}
		e.db = nil
		return nil
	}
	e.log.Info("execution history persisted to postgres")
	return history
}

func buildAdapters(cfg *config.Config, overrides map[string]channel.Adapter) *channel.Registry {
	reg := channel.NewRegistry()
	sim := channel.SimulatedConfig{
		Latency:              cfg.Simulation.Latency(),
		RecipientFailureRate: cfg.Simulation.RecipientFailureRate,
		BatchErrorRate:       cfg.Simulation.BatchErrorRate,
	}
	for name := range cfg.Platforms {
		switch {
		case overrides[name] != nil:
			reg.Register(name, overrides[name])
		case name == domain.PlatformWebhook && cfg.Webhook.URL != "":
			reg.Register(name, channel.NewWebhook(cfg.Webhook.URL, cfg.Webhook.Timeout()))
		default:
			reg.Register(name, channel.NewSimulated(sim))
		}
	}
	return reg
}

// execute is the dispatch handler.
func (e *Engine) execute(ctx context.Context, item worker.Item) {
	if _, err := e.Campaigns.Execute(ctx, item.CampaignID); err != nil {
		e.log.Error("campaign execution error", "campaign_id", item.CampaignID, "error", err)
	}
}

// Start launches the retry coordinator, the dispatch workers and the
// metrics loop.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return worker.ErrAlreadyRunning
	}
	if err := e.Retries.Start(); err != nil {
		return fmt.Errorf("start retries: %w", err)
	}
	if err := e.Queue.Start(); err != nil {
		e.Retries.Stop()
		return fmt.Errorf("start dispatch: %w", err)
	}
	if err := e.Metrics.Start(); err != nil {
		e.Queue.Stop()
		e.Retries.Stop()
		return fmt.Errorf("start metrics: %w", err)
	}
	e.running = true
	e.log.Info("campaign engine started", "platforms", len(e.Adapters.Platforms()))
	return nil
}

// Stop shuts down in dependency order: deferred timers first so nothing new
// is queued, then the dispatch workers (in-flight campaigns finish), then
// retries and metrics. Connections the engine opened are closed.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return
	}
	e.running = false

	if unfired := e.Scheduler.Stop(); len(unfired) > 0 {
		e.log.Warn("deferred campaigns not released before shutdown", "count", len(unfired))
	}
	e.Queue.Stop()
	e.Retries.Stop()
	e.Metrics.Stop()

	if e.ownsRedis {
		if err := e.redis.Close(); err != nil {
			e.log.Warn("redis close failed", "error", err)
		}
	}
	if e.ownsDB {
		if err := e.db.Close(); err != nil {
			e.log.Warn("database close failed", "error", err)
		}
	}
	e.log.Info("campaign engine stopped")
}

// Healthy reports whether the engine is running.
func (e *Engine) Healthy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}
