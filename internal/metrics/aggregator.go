// Package metrics observes the event bus and keeps running totals of
// campaign activity: campaign counts, interactions, per-platform delivery
// and lane depths. It raises capacity warnings when trailing-hour volume
// nears the configured hourly capacity. It never mutates campaigns or queues.
package metrics

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/events"
	"github.com/ignite/campaign-engine/internal/pkg/distlock"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
)

// ErrAlreadyRunning is returned by Start on a running aggregator.
var ErrAlreadyRunning = errors.New("metrics aggregator already running")

// Defaults applied by NewAggregator.
const (
	DefaultWarningThreshold = 0.8
	DefaultInterval         = time.Minute
	DefaultWindow           = time.Hour
)

// Config configures an Aggregator.
type Config struct {
	CapacityPerHour  int64
	WarningThreshold float64
	Interval         time.Duration
	Window           time.Duration
}

type completion struct {
	at           time.Time
	interactions int64
}

// Aggregator is a pure observer of the event bus.
type Aggregator struct {
	cfg      Config
	bus      *events.Bus
	cooldown distlock.DistLock
	now      func() time.Time
	log      *logger.Logger

	totalCampaigns    atomic.Int64
	successful        atomic.Int64
	failed            atomic.Int64
	active            atomic.Int64
	totalInteractions atomic.Int64
	lastHour          atomic.Int64
	execTimeMs        atomic.Int64
	executions        atomic.Int64
	urgentDepth       atomic.Int64
	standardDepth     atomic.Int64
	warnings          atomic.Int64

	mu          sync.Mutex
	platforms   map[string]*domain.PlatformPerformance
	completions []completion
	unsubscribe []func()

	// Control
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	runMu   sync.Mutex
}

// NewAggregator subscribes a new aggregator to bus. cooldown gates capacity
// warnings: a warning is only published when it can be acquired. A nil
// cooldown publishes on every check over the threshold.
func NewAggregator(cfg Config, bus *events.Bus, cooldown distlock.DistLock) *Aggregator {
	if cfg.WarningThreshold <= 0 {
		cfg.WarningThreshold = DefaultWarningThreshold
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	a := &Aggregator{
		cfg:       cfg,
		bus:       bus,
		cooldown:  cooldown,
		now:       time.Now,
		log:       logger.With("component", "metrics"),
		platforms: make(map[string]*domain.PlatformPerformance),
	}
	a.unsubscribe = []func(){
		events.On(bus, a.onCreated),
		events.On(bus, a.onStarted),
		events.On(bus, a.onCompleted),
		events.On(bus, a.onFailed),
		events.On(bus, a.onBatch),
		events.On(bus, a.onDepth),
	}
	return a
}

// Start launches the periodic refresh loop.
func (a *Aggregator) Start() error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.running {
		return ErrAlreadyRunning
	}
	a.running = true
	a.ctx, a.cancel = context.WithCancel(context.Background())

	a.wg.Add(1)
	go a.loop()
	a.log.Info("metrics aggregator started", "interval", a.cfg.Interval.String(), "capacity_per_hour", a.cfg.CapacityPerHour)
	return nil
}

// Stop halts the refresh loop and detaches from the bus.
func (a *Aggregator) Stop() {
	a.runMu.Lock()
	if !a.running {
		a.runMu.Unlock()
		return
	}
	a.running = false
	a.runMu.Unlock()

	a.cancel()
	a.wg.Wait()
	for _, unsub := range a.unsubscribe {
		unsub()
	}
	a.log.Info("metrics aggregator stopped")
}

func (a *Aggregator) loop() {
	defer a.wg.Done()
	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			a.Refresh(a.ctx)
		}
	}
}

// Refresh recomputes the trailing-hour interaction count and checks
// capacity.
func (a *Aggregator) Refresh(ctx context.Context) {
	cutoff := a.now().Add(-a.cfg.Window)

	a.mu.Lock()
	keep := a.completions[:0]
	var total int64
	for _, c := range a.completions {
		if c.at.After(cutoff) {
			keep = append(keep, c)
			total += c.interactions
		}
	}
	clear(a.completions[len(keep):])
	a.completions = keep
	a.lastHour.Store(total)
	a.mu.Unlock()

	a.CheckCapacity(ctx)
}

// Utilization is trailing-hour interactions over hourly capacity. Zero when
// no capacity is configured.
func (a *Aggregator) Utilization() float64 {
	if a.cfg.CapacityPerHour <= 0 {
		return 0
	}
	return float64(a.lastHour.Load()) / float64(a.cfg.CapacityPerHour)
}

// CheckCapacity publishes a capacity warning when utilization is above the
// threshold and the cooldown allows it. Reports whether a warning was sent.
func (a *Aggregator) CheckCapacity(ctx context.Context) bool {
	util := a.Utilization()
	if util <= a.cfg.WarningThreshold {
		return false
	}
	if a.cooldown != nil {
		ok, err := a.cooldown.Acquire(ctx)
		if err != nil {
			a.log.Warn("capacity warning cooldown unavailable", "error", err)
		} else if !ok {
			return false
		}
	}

	ev := events.CapacityWarningEvent{
		Utilization:          util,
		InteractionsLastHour: a.lastHour.Load(),
		Limit:                a.cfg.CapacityPerHour,
		RaisedAt:             a.now(),
	}
	a.warnings.Add(1)
	a.log.Warn("interaction capacity warning",
		"utilization", util,
		"interactions_last_hour", ev.InteractionsLastHour,
		"limit", ev.Limit,
	)
	a.bus.Publish(ctx, ev)
	return true
}

// Warnings returns how many capacity warnings were published.
func (a *Aggregator) Warnings() int64 { return a.warnings.Load() }

// =============================================================================
// EVENT HANDLERS
// =============================================================================

func (a *Aggregator) onCreated(_ context.Context, _ events.CampaignCreatedEvent) {
	a.totalCampaigns.Add(1)
}

func (a *Aggregator) onStarted(_ context.Context, _ events.ExecutionStartedEvent) {
	a.active.Add(1)
}

func (a *Aggregator) onCompleted(_ context.Context, e events.ExecutionCompletedEvent) {
	a.successful.Add(1)
	a.finish(e.Result)
}

func (a *Aggregator) onFailed(_ context.Context, e events.ExecutionFailedEvent) {
	a.failed.Add(1)
	a.finish(e.Result)
}

func (a *Aggregator) finish(res domain.ExecutionResult) {
	// Campaigns rejected before a worker picked them up never started.
	if !res.StartedAt.IsZero() {
		a.active.Add(-1)
		a.executions.Add(1)
		a.execTimeMs.Add(res.ExecutionTimeMs)
	}
	a.totalInteractions.Add(int64(res.InteractionsSent))

	a.mu.Lock()
	defer a.mu.Unlock()
	if res.InteractionsSent > 0 {
		at := res.CompletedAt
		if at.IsZero() {
			at = a.now()
		}
		a.completions = append(a.completions, completion{at: at, interactions: int64(res.InteractionsSent)})
		a.lastHour.Add(int64(res.InteractionsSent))
	}
	for name, pr := range res.PerPlatformResults {
		p := a.platform(name)
		p.Executions++
		if !pr.Success {
			p.Failures++
		}
		p.Batches += int64(pr.Batches)
		p.Sent += int64(pr.Sent)
		p.Successful += int64(pr.Successful)
		p.Failed += int64(pr.Failed)
	}
}

func (a *Aggregator) onBatch(_ context.Context, e events.BatchProcessedEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p := a.platform(e.Platform)
	p.Attempts++
	if e.Error != "" {
		p.FailedAttempts++
	}
}

func (a *Aggregator) onDepth(_ context.Context, e events.QueueDepthChangedEvent) {
	a.urgentDepth.Store(int64(e.Urgent))
	a.standardDepth.Store(int64(e.Standard))
}

// platform must be called with mu held.
func (a *Aggregator) platform(name string) *domain.PlatformPerformance {
	p, ok := a.platforms[name]
	if !ok {
		p = &domain.PlatformPerformance{}
		a.platforms[name] = p
	}
	return p
}

// =============================================================================
// READ SIDE
// =============================================================================

// Snapshot returns a copy of every counter.
func (a *Aggregator) Snapshot() domain.MetricsSnapshot {
	s := domain.MetricsSnapshot{
		TotalCampaigns:       a.totalCampaigns.Load(),
		SuccessfulCampaigns:  a.successful.Load(),
		FailedCampaigns:      a.failed.Load(),
		ActiveCampaigns:      a.active.Load(),
		TotalInteractions:    a.totalInteractions.Load(),
		InteractionsLastHour: a.lastHour.Load(),
		CapacityUtilization:  a.Utilization(),
		QueueDepths: map[domain.Lane]int{
			domain.LaneUrgent:   int(a.urgentDepth.Load()),
			domain.LaneStandard: int(a.standardDepth.Load()),
		},
		TakenAt: a.now(),
	}
	if n := a.executions.Load(); n > 0 {
		s.AverageExecutionTimeMs = float64(a.execTimeMs.Load()) / float64(n)
	}

	a.mu.Lock()
	s.Platforms = make(map[string]domain.PlatformPerformance, len(a.platforms))
	for name, p := range a.platforms {
		cp := *p
		if attempted := cp.Successful + cp.Failed; attempted > 0 {
			cp.SuccessRate = float64(cp.Successful) / float64(attempted)
		}
		s.Platforms[name] = cp
	}
	a.mu.Unlock()
	return s
}
