package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/campaign-engine/internal/channel"
	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/events"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
	"github.com/ignite/campaign-engine/internal/ratelimit"
)

// =============================================================================
// PLATFORM EXECUTOR
// =============================================================================
// Runs one platform's delivery for one campaign: split the audience into
// batches, then for each batch in order wait for the platform's rate limiter
// and call the channel adapter. A batch whose send errors is handed to the
// retry coordinator; the executor waits for those outcomes before reporting,
// so the PlatformResult it returns is final.

// PlatformSettings is the per-platform send configuration.
type PlatformSettings struct {
	BatchSize int
}

// AdapterSource resolves the channel adapter for a platform.
type AdapterSource interface {
	Get(platform string) (channel.Adapter, error)
}

// LimiterSource resolves the shared rate limiter for a platform.
type LimiterSource interface {
	Get(platform string) (ratelimit.Limiter, bool)
}

// Retrier accepts failed batches for retry.
type Retrier interface {
	Submit(task RetryTask, firstErr error) <-chan RetryOutcome
}

// Job is the input of one executor run.
type Job struct {
	CampaignID      string
	Platform        string
	Recipients      []domain.Recipient
	Content         domain.Content
	Personalization domain.Personalization
	Stats           *ExecutionStats
}

// PlatformExecutor is safe for concurrent Runs; it holds no per-run state.
type PlatformExecutor struct {
	adapters AdapterSource
	limiters LimiterSource
	settings map[string]PlatformSettings
	retries  Retrier
	bus      *events.Bus
	log      *logger.Logger
}

// NewPlatformExecutor wires an executor. retries may be nil, in which case a
// failed batch is final on its first error.
func NewPlatformExecutor(adapters AdapterSource, limiters LimiterSource, settings map[string]PlatformSettings, retries Retrier, bus *events.Bus) *PlatformExecutor {
	return &PlatformExecutor{
		adapters: adapters,
		limiters: limiters,
		settings: settings,
		retries:  retries,
		bus:      bus,
		log:      logger.With("component", "executor"),
	}
}

type batchOutcome struct {
	index int
	size  int
	ch    <-chan RetryOutcome
}

// Run executes job. The returned error is non-nil when the platform is not
// configured or when no batch was delivered; the PlatformResult is always
// populated with whatever was achieved.
func (e *PlatformExecutor) Run(ctx context.Context, job Job) (domain.PlatformResult, error) {
	start := time.Now()
	result := domain.PlatformResult{Platform: job.Platform}
	finish := func(err error) (domain.PlatformResult, error) {
		result.Duration = time.Since(start)
		if err != nil {
			result.Error = err.Error()
		}
		return result, err
	}

	adapter, limiter, settings, err := e.resolve(job.Platform)
	if err != nil {
		return finish(err)
	}

	batches := Split(job.Recipients, settings.BatchSize)
	result.Batches = len(batches)

	var (
		delivered int
		pending   []batchOutcome
		lastErr   error
	)
	for i, recipients := range batches {
		if err := limiter.Admit(ctx); err != nil {
			return finish(fmt.Errorf("%s: rate limiter: %w", job.Platform, err))
		}

		batch := channel.Batch{
			CampaignID:      job.CampaignID,
			Platform:        job.Platform,
			Index:           i,
			Recipients:      recipients,
			Content:         job.Content,
			Personalization: job.Personalization,
		}
		res, sendErr := sendBatch(ctx, adapter, batch)
		e.publishBatch(ctx, batch, res, 1, sendErr)

		if sendErr == nil {
			delivered++
			result.Successful += res.Successful
			result.Failed += res.Failed
			continue
		}

		failure := &BatchSendError{Platform: job.Platform, BatchIndex: i, Attempt: 1, Err: sendErr}
		lastErr = failure
		e.log.Warn("batch send failed",
			"campaign_id", job.CampaignID,
			"platform", job.Platform,
			"batch", i,
			"size", len(recipients),
			"error", sendErr,
		)

		if e.retries == nil {
			job.Stats.RecordError(failure)
			result.Failed += len(recipients)
			continue
		}
		ch := e.retries.Submit(RetryTask{
			Batch:   batch,
			Adapter: adapter,
			Limiter: limiter,
			Stats:   job.Stats,
		}, failure)
		pending = append(pending, batchOutcome{index: i, size: len(recipients), ch: ch})
	}

	for _, p := range pending {
		var out RetryOutcome
		select {
		case out = <-p.ch:
		case <-ctx.Done():
			return finish(fmt.Errorf("%s: waiting for retries: %w", job.Platform, ctx.Err()))
		}
		result.Retries += out.Retries
		if out.Err != nil {
			lastErr = out.Err
			result.Failed += p.size
			continue
		}
		delivered++
		result.Successful += out.Result.Successful
		result.Failed += out.Result.Failed
	}

	result.Sent = result.Successful + result.Failed
	if len(batches) > 0 && delivered == 0 {
		return finish(fmt.Errorf("%s: all %d batches failed: %w", job.Platform, len(batches), lastErr))
	}
	result.Success = true
	return finish(nil)
}

func (e *PlatformExecutor) resolve(platform string) (channel.Adapter, ratelimit.Limiter, PlatformSettings, error) {
	settings, ok := e.settings[platform]
	if !ok {
		return nil, nil, PlatformSettings{}, fmt.Errorf("%w: %s has no settings", ErrPlatformNotConfigured, platform)
	}
	adapter, err := e.adapters.Get(platform)
	if err != nil {
		return nil, nil, PlatformSettings{}, fmt.Errorf("%w: %v", ErrPlatformNotConfigured, err)
	}
	limiter, ok := e.limiters.Get(platform)
	if !ok {
		return nil, nil, PlatformSettings{}, fmt.Errorf("%w: %s has no rate limit", ErrPlatformNotConfigured, platform)
	}
	return adapter, limiter, settings, nil
}

func (e *PlatformExecutor) publishBatch(ctx context.Context, b channel.Batch, res channel.Result, attempt int, err error) {
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
		ev.Successful = 0
		ev.Failed = len(b.Recipients)
		ev.Error = err.Error()
	}
	e.bus.Publish(ctx, ev)
}

// sendBatch calls the adapter, converting a panic into an error.
func sendBatch(ctx context.Context, a channel.Adapter, b channel.Batch) (res channel.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = channel.Result{}, fmt.Errorf("adapter panic: %v", r)
		}
	}()
	return a.SendBatch(ctx, b)
}
