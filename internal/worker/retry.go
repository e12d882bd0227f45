package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ignite/campaign-engine/internal/channel"
	"github.com/ignite/campaign-engine/internal/events"
	"github.com/ignite/campaign-engine/internal/pkg/backoff"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
	"github.com/ignite/campaign-engine/internal/ratelimit"
)

// =============================================================================
// RETRY COORDINATOR
// =============================================================================
// Failed batches are re-sent here, off the dispatch lanes, by a small pool of
// retry workers. Each batch gets at most MaxAttempts retries spaced by
// exponential backoff. Every task resolves exactly once on the channel
// returned by Submit: with the adapter result on success, or with an error
// wrapping ErrRetryExhausted (or ErrNotRunning after Stop).

// RetryConfig configures a RetryCoordinator.
type RetryConfig struct {
	MaxAttempts int
	Workers     int
	QueueSize   int
	Backoff     backoff.Policy
}

// RetryTask is one failed batch handed off for retry.
type RetryTask struct {
	Batch   channel.Batch
	Adapter channel.Adapter
	Limiter ratelimit.Limiter
	Stats   *ExecutionStats
}

// RetryOutcome is the final state of a RetryTask.
type RetryOutcome struct {
	Result  channel.Result
	Retries int
	Err     error
}

// RetryStats is a point-in-time view of coordinator activity.
type RetryStats struct {
	Scheduled int64 `json:"scheduled"`
	Succeeded int64 `json:"succeeded"`
	Exhausted int64 `json:"exhausted"`
	Pending   int   `json:"pending"`
}

type pendingRetry struct {
	task    RetryTask
	retries int
	lastErr error
	timer   *time.Timer
	once    sync.Once
	done    chan RetryOutcome
}

// RetryCoordinator owns the retry queue and its workers.
type RetryCoordinator struct {
	cfg         RetryConfig
	bus         *events.Bus
	onExhausted func(RetryTask, error)
	queue       chan *pendingRetry
	log         *logger.Logger

	// Stats
	scheduled atomic.Int64
	succeeded atomic.Int64
	exhausted atomic.Int64

	// Control
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	pending map[*pendingRetry]struct{}
	mu      sync.Mutex
}

// NewRetryCoordinator creates a stopped coordinator.
func NewRetryCoordinator(cfg RetryConfig, bus *events.Bus) *RetryCoordinator {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.MaxAttempts < 0 {
		cfg.MaxAttempts = 0
	}
	return &RetryCoordinator{
		cfg:     cfg,
		bus:     bus,
		queue:   make(chan *pendingRetry, cfg.QueueSize),
		pending: make(map[*pendingRetry]struct{}),
		log:     logger.With("component", "retry"),
	}
}

// OnExhausted registers a hook called once per batch that ran out of retries.
// Call before Start.
func (c *RetryCoordinator) OnExhausted(fn func(RetryTask, error)) {
	c.onExhausted = fn
}

// Start launches the retry workers.
func (c *RetryCoordinator) Start() error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	c.running = true
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.mu.Unlock()

	c.log.Info("starting retry coordinator", "workers", c.cfg.Workers, "max_attempts", c.cfg.MaxAttempts)
	for i := 0; i < c.cfg.Workers; i++ {
		c.wg.Add(1)
		go c.workerLoop()
	}
	return nil
}

// Stop halts the workers and resolves every outstanding task with
// ErrNotRunning.
func (c *RetryCoordinator) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	outstanding := make([]*pendingRetry, 0, len(c.pending))
	for p := range c.pending {
		outstanding = append(outstanding, p)
	}
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()

	for _, p := range outstanding {
		if p.timer != nil {
			p.timer.Stop()
		}
		c.abandon(p)
	}
	c.log.Info("retry coordinator stopped", "abandoned", len(outstanding))
}

// Submit hands a failed batch to the coordinator. firstErr is the failure
// of the original attempt.
func (c *RetryCoordinator) Submit(task RetryTask, firstErr error) <-chan RetryOutcome {
	p := &pendingRetry{task: task, lastErr: firstErr, done: make(chan RetryOutcome, 1)}

	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		c.abandon(p)
		return p.done
	}
	c.pending[p] = struct{}{}
	c.mu.Unlock()

	c.scheduleNext(p)
	return p.done
}

// Stats returns coordinator counters.
func (c *RetryCoordinator) Stats() RetryStats {
	c.mu.Lock()
	pending := len(c.pending)
	c.mu.Unlock()
	return RetryStats{
		Scheduled: c.scheduled.Load(),
		Succeeded: c.succeeded.Load(),
		Exhausted: c.exhausted.Load(),
		Pending:   pending,
	}
}

func (c *RetryCoordinator) scheduleNext(p *pendingRetry) {
	if p.retries >= c.cfg.MaxAttempts {
		c.exhaust(p)
		return
	}

	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		c.abandon(p)
		return
	}
	p.retries++
	delay := c.cfg.Backoff.Delay(p.retries)
	p.timer = time.AfterFunc(delay, func() { c.enqueue(p) })
	c.mu.Unlock()

	c.scheduled.Add(1)
	p.task.Stats.RecordRetry()
	c.log.Debug("batch retry scheduled",
		"campaign_id", p.task.Batch.CampaignID,
		"platform", p.task.Batch.Platform,
		"batch", p.task.Batch.Index,
		"retry", p.retries,
		"delay", delay.String(),
	)
}

func (c *RetryCoordinator) enqueue(p *pendingRetry) {
	select {
	case c.queue <- p:
	case <-c.ctx.Done():
		c.abandon(p)
	}
}

func (c *RetryCoordinator) workerLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case p := <-c.queue:
			c.attempt(p)
		}
	}
}

func (c *RetryCoordinator) attempt(p *pendingRetry) {
	b := p.task.Batch
	if p.task.Limiter != nil {
		if err := p.task.Limiter.Admit(c.ctx); err != nil {
			c.abandon(p)
			return
		}
	}

	res, err := sendBatch(c.ctx, p.task.Adapter, b)
	attempt := p.retries + 1

	ev := events.BatchProcessedEvent{
		CampaignID: b.CampaignID,
		Platform:   b.Platform,
		BatchIndex: b.Index,
		BatchSize:  len(b.Recipients),
		Successful: res.Successful,
		Failed:     res.Failed,
		Attempt:    attempt,
	}
	if err != nil {
		ev.Failed = len(b.Recipients)
		ev.Error = err.Error()
	}
	c.bus.Publish(c.ctx, ev)

	if err == nil {
		c.resolve(p, RetryOutcome{Result: res, Retries: p.retries}, func() { c.succeeded.Add(1) })
		return
	}

	p.lastErr = &BatchSendError{Platform: b.Platform, BatchIndex: b.Index, Attempt: attempt, Err: err}
	c.log.Warn("batch retry failed",
		"campaign_id", b.CampaignID,
		"platform", b.Platform,
		"batch", b.Index,
		"attempt", attempt,
		"error", err,
	)
	c.scheduleNext(p)
}

func (c *RetryCoordinator) exhaust(p *pendingRetry) {
	b := p.task.Batch
	err := fmt.Errorf("%w after %d retries: %v", ErrRetryExhausted, p.retries, p.lastErr)

	c.resolve(p, RetryOutcome{Retries: p.retries, Err: err}, func() {
		c.exhausted.Add(1)
		p.task.Stats.RecordError(err)
		c.log.Error("batch retries exhausted",
			"campaign_id", b.CampaignID,
			"platform", b.Platform,
			"batch", b.Index,
			"retries", p.retries,
			"error", p.lastErr,
		)
		c.bus.Publish(context.Background(), events.BatchRetryExhaustedEvent{
			CampaignID: b.CampaignID,
			Platform:   b.Platform,
			BatchIndex: b.Index,
			BatchSize:  len(b.Recipients),
			Attempts:   p.retries,
			Error:      fmt.Sprint(p.lastErr),
		})
		if c.onExhausted != nil {
			c.onExhausted(p.task, err)
		}
	})
}

func (c *RetryCoordinator) abandon(p *pendingRetry) {
	err := fmt.Errorf("%w: retry abandoned: %v", ErrNotRunning, p.lastErr)
	c.resolve(p, RetryOutcome{Retries: p.retries, Err: err}, func() {
		p.task.Stats.RecordError(err)
	})
}

// resolve delivers the outcome of p once; first runs before delivery.
func (c *RetryCoordinator) resolve(p *pendingRetry, out RetryOutcome, first func()) {
	p.once.Do(func() {
		c.mu.Lock()
		delete(c.pending, p)
		c.mu.Unlock()
		if first != nil {
			first()
		}
		p.done <- out
	})
}
