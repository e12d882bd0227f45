package campaign

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/events"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
	"github.com/ignite/campaign-engine/internal/ratelimit"
	"github.com/ignite/campaign-engine/internal/worker"
)

// KindSettings is the configured priority and default platform set of a
// campaign kind.
type KindSettings struct {
	Priority  domain.Priority
	Platforms []string
}

// PlatformSettings is what the service needs to know about a platform to
// estimate execution time.
type PlatformSettings struct {
	BatchSize int
	Rate      ratelimit.Rate
}

// Config configures a Service.
type Config struct {
	Kinds     map[domain.CampaignKind]KindSettings
	Platforms map[string]PlatformSettings
}

// DefaultPriorities is used for kinds missing from Config.Kinds.
var DefaultPriorities = map[domain.CampaignKind]domain.Priority{
	domain.KindRecovery:   domain.PriorityCritical,
	domain.KindOnboarding: domain.PriorityHigh,
	domain.KindActivation: domain.PriorityHigh,
	domain.KindRetention:  domain.PriorityMedium,
	domain.KindCustom:     domain.PriorityLow,
}

// Receipt statuses returned by Submit.
const (
	ReceiptQueued    = "queued"
	ReceiptScheduled = "scheduled"
)

// SubmitInput is a campaign submission.
type SubmitInput struct {
	Name            string                 `json:"name"`
	TargetAudience  []domain.Recipient     `json:"targetAudience"`
	Content         domain.Content         `json:"content"`
	Type            domain.CampaignKind    `json:"type,omitempty"`
	Platforms       []string               `json:"platforms,omitempty"`
	Scheduling      *domain.Scheduling     `json:"scheduling,omitempty"`
	Personalization domain.Personalization `json:"personalization,omitempty"`
}

// SubmitReceipt is the caller-facing estimate returned by Submit.
type SubmitReceipt struct {
	CampaignID                    string          `json:"campaignId"`
	Status                        string          `json:"status"`
	Priority                      domain.Priority `json:"priority"`
	EstimatedExecutionTimeSeconds int             `json:"estimatedExecutionTimeSeconds"`
	EstimatedInteractionCount     int             `json:"estimatedInteractionCount"`
	QueuePosition                 int             `json:"queuePosition"`
	SendAt                        *time.Time      `json:"sendAt,omitempty"`
}

// Service implements the campaign lifecycle. All public methods are safe
// for concurrent use.
type Service struct {
	cfg       Config
	repo      Repository
	queue     Queue
	scheduler Scheduler
	executor  Executor
	bus       *events.Bus
	history   HistorySink
	now       func() time.Time
	log       *logger.Logger
}

// NewService creates a campaign service.
func NewService(cfg Config, repo Repository, queue Queue, scheduler Scheduler, executor Executor, bus *events.Bus) *Service {
	return &Service{
		cfg:       cfg,
		repo:      repo,
		queue:     queue,
		scheduler: scheduler,
		executor:  executor,
		bus:       bus,
		now:       time.Now,
		log:       logger.With("component", "campaign"),
	}
}

// SetHistorySink installs an external sink for archived campaigns.
func (s *Service) SetHistorySink(h HistorySink) {
	s.history = h
}

// Get returns an active or archived campaign.
func (s *Service) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	return s.repo.Get(ctx, id)
}

// List returns campaigns matching the filter.
func (s *Service) List(ctx context.Context, f ListFilter) ([]*domain.Campaign, error) {
	return s.repo.List(ctx, f)
}

// Result returns the execution summary of a terminal campaign.
func (s *Service) Result(ctx context.Context, id string) (*domain.ExecutionResult, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.IsTerminal() {
		return nil, fmt.Errorf("%w: status %s", ErrNotFinished, c.Status)
	}
	res := domain.NewExecutionResult(c)
	return &res, nil
}

// =============================================================================
// SUBMIT
// =============================================================================

// Submit validates a submission and queues or schedules it.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*SubmitReceipt, error) {
	c, err := s.build(in)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("store campaign: %w", err)
	}

	deferred := c.Scheduling.IsDeferred(c.CreatedAt)
	receipt := &SubmitReceipt{
		CampaignID:                    c.ID,
		Status:                        ReceiptQueued,
		Priority:                      c.Priority,
		EstimatedExecutionTimeSeconds: s.estimateSeconds(c),
		EstimatedInteractionCount:     c.RecipientCount() * len(c.Platforms),
	}

	s.bus.Publish(ctx, events.CampaignCreatedEvent{
		CampaignID:     c.ID,
		Kind:           c.Kind,
		Priority:       c.Priority,
		Platforms:      c.Platforms,
		RecipientCount: c.RecipientCount(),
		Deferred:       deferred,
		CreatedAt:      c.CreatedAt,
	})

	if deferred {
		sendAt := *c.Scheduling.SendAt
		id := c.ID
		if err := s.scheduler.Schedule(id, sendAt, func() { s.enqueueDeferred(id) }); err != nil {
			s.abort(ctx, id, err)
			return nil, fmt.Errorf("schedule campaign: %w", err)
		}
		receipt.Status = ReceiptScheduled
		receipt.SendAt = &sendAt
		s.log.Info("campaign scheduled", "campaign_id", id, "send_at", sendAt.UTC().Format(time.RFC3339))
		return receipt, nil
	}

	pos, err := s.enqueue(c)
	if err != nil {
		s.abort(ctx, c.ID, err)
		return nil, fmt.Errorf("enqueue campaign: %w", err)
	}
	receipt.QueuePosition = pos
	s.log.Info("campaign queued",
		"campaign_id", c.ID,
		"type", string(c.Kind),
		"priority", string(c.Priority),
		"recipients", c.RecipientCount(),
		"platforms", strings.Join(c.Platforms, ","),
		"position", pos,
	)
	return receipt, nil
}

func (s *Service) build(in SubmitInput) (*domain.Campaign, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, &ValidationError{Field: "name", Reason: "required"}
	}
	if len(in.TargetAudience) == 0 {
		return nil, &ValidationError{Field: "targetAudience", Reason: "must contain at least one recipient"}
	}
	if len(in.Content) == 0 {
		return nil, &ValidationError{Field: "content", Reason: "required"}
	}

	kind := in.Type
	if kind == "" {
		kind = domain.DefaultKind
	}
	if !kind.IsValid() {
		return nil, &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown campaign type %q", kind)}
	}
	ks := s.kindSettings(kind)

	platforms := in.Platforms
	if len(platforms) == 0 {
		platforms = ks.Platforms
	}
	platforms, err := dedupePlatforms(platforms)
	if err != nil {
		return nil, err
	}

	var sched domain.Scheduling
	if in.Scheduling != nil {
		sched = *in.Scheduling
	} else {
		sched.Immediate = true
	}

	return &domain.Campaign{
		ID:              uuid.New().String(),
		Name:            name,
		Kind:            kind,
		Priority:        ks.Priority,
		Recipients:      in.TargetAudience,
		Platforms:       platforms,
		Content:         in.Content,
		Personalization: in.Personalization,
		Scheduling:      sched,
		Status:          domain.CampaignPending,
		CreatedAt:       s.now(),
	}, nil
}

func (s *Service) kindSettings(kind domain.CampaignKind) KindSettings {
	ks, ok := s.cfg.Kinds[kind]
	if !ok || ks.Priority == "" {
		ks.Priority = DefaultPriorities[kind]
	}
	return ks
}

func dedupePlatforms(in []string) ([]string, error) {
	if len(in) == 0 {
		return nil, &ValidationError{Field: "platforms", Reason: "no platforms given and none configured for the campaign type"}
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, p := range in {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil, &ValidationError{Field: "platforms", Reason: "empty platform name"}
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out, nil
}

// estimateSeconds is the slowest platform's batch count times its rate
// interval, at least one second. Platforms without settings are skipped;
// they fail at execution.
func (s *Service) estimateSeconds(c *domain.Campaign) int {
	var longest time.Duration
	for _, p := range c.Platforms {
		ps, ok := s.cfg.Platforms[p]
		if !ok {
			continue
		}
		batches := 1
		if ps.BatchSize > 0 {
			batches = int(math.Ceil(float64(c.RecipientCount()) / float64(ps.BatchSize)))
		}
		if d := time.Duration(batches) * ps.Rate.Interval(); d > longest {
			longest = d
		}
	}
	return max(1, int(math.Ceil(longest.Seconds())))
}

func (s *Service) enqueue(c *domain.Campaign) (int, error) {
	return s.queue.Enqueue(worker.Item{
		CampaignID: c.ID,
		Priority:   c.Priority,
		Score:      c.Priority.Score(),
		EnqueuedAt: s.now(),
	})
}

func (s *Service) enqueueDeferred(id string) {
	ctx := context.Background()
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		s.log.Error("deferred campaign vanished", "campaign_id", id, "error", err)
		return
	}
	if c.Status != domain.CampaignPending {
		return
	}
	pos, err := s.enqueue(c)
	if err != nil {
		s.log.Error("deferred campaign could not be queued", "campaign_id", id, "error", err)
		s.abort(ctx, id, err)
		return
	}
	s.log.Info("deferred campaign queued", "campaign_id", id, "position", pos)
}

// abort fails a campaign that never reached a worker and archives it.
func (s *Service) abort(ctx context.Context, id string, cause error) {
	c, err := s.repo.Update(ctx, id, func(c *domain.Campaign) error {
		if err := c.Transition(domain.CampaignFailed); err != nil {
			return err
		}
		now := s.now()
		c.CompletedAt = &now
		c.LastError = cause.Error()
		c.ErrorCount++
		return nil
	})
	if err != nil {
		s.log.Error("failed to mark campaign failed", "campaign_id", id, "error", err)
		return
	}
	res := s.archive(ctx, c)
	s.bus.Publish(ctx, events.ExecutionFailedEvent{CampaignID: id, Error: cause.Error(), Result: res})
}

// =============================================================================
// CANCEL
// =============================================================================

// Cancel withdraws a deferred campaign before its send time.
func (s *Service) Cancel(ctx context.Context, id string) (*domain.Campaign, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status != domain.CampaignPending || !c.Scheduling.IsDeferred(c.CreatedAt) {
		return nil, fmt.Errorf("%w: status %s", ErrNotCancellable, c.Status)
	}
	if !s.scheduler.Cancel(id) {
		return nil, fmt.Errorf("%w: already released to the queue", ErrNotCancellable)
	}

	c, err = s.repo.Update(ctx, id, func(c *domain.Campaign) error {
		if err := c.Transition(domain.CampaignCancelled); err != nil {
			return err
		}
		now := s.now()
		c.CompletedAt = &now
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cancel campaign: %w", err)
	}
	s.archive(ctx, c)
	s.bus.Publish(ctx, events.CampaignCancelledEvent{CampaignID: id, CancelledAt: *c.CompletedAt})
	s.log.Info("campaign cancelled", "campaign_id", id)
	return c, nil
}

// =============================================================================
// EXECUTE
// =============================================================================

// Execute runs a pending campaign to a terminal state. Platform failures are
// reported in the result. An error is returned when the campaign cannot be
// started, or as an *EngineFailure when orchestration breaks after start.
func (s *Service) Execute(ctx context.Context, id string) (res *domain.ExecutionResult, err error) {
	c, err := s.repo.Update(ctx, id, func(c *domain.Campaign) error {
		if err := c.Transition(domain.CampaignExecuting); err != nil {
			return err
		}
		now := s.now()
		c.StartedAt = &now
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("start campaign %s: %w", id, err)
	}

	defer func() {
		if r := recover(); r != nil {
			res, err = s.failExecution(ctx, id, fmt.Errorf("panic: %v", r))
		}
	}()

	s.bus.Publish(ctx, events.ExecutionStartedEvent{CampaignID: id, Platforms: c.Platforms, StartedAt: *c.StartedAt})
	s.log.Info("campaign execution started", "campaign_id", id, "platforms", strings.Join(c.Platforms, ","))

	stats := &worker.ExecutionStats{}
	results := s.fanOut(ctx, c, stats)

	done, err := s.repo.Update(ctx, id, func(c *domain.Campaign) error {
		c.PlatformResults = results
		c.SentCount = 0
		for _, r := range results {
			c.SentCount += r.Successful
		}
		c.ErrorCount += stats.Errors()
		c.RetryCount += stats.Retries()
		if last := stats.LastError(); last != nil {
			c.LastError = last.Error()
		}
		now := s.now()
		c.CompletedAt = &now
		return c.Transition(domain.ResolveStatus(results))
	})
	if err != nil {
		return s.failExecution(ctx, id, fmt.Errorf("record results: %w", err))
	}

	result := s.archive(ctx, done)
	s.log.Info("campaign execution finished",
		"campaign_id", id,
		"status", string(result.Status),
		"interactions", result.InteractionsSent,
		"duration_ms", result.ExecutionTimeMs,
		"errors", result.ErrorCount,
		"retries", result.RetryCount,
	)
	if result.Status == domain.CampaignFailed {
		s.bus.Publish(ctx, events.ExecutionFailedEvent{CampaignID: id, Error: result.Error, Result: result})
	} else {
		s.bus.Publish(ctx, events.ExecutionCompletedEvent{Result: result})
	}
	return &result, nil
}

// fanOut runs one executor per platform concurrently. A platform's error or
// panic becomes its failed result; siblings are unaffected.
func (s *Service) fanOut(ctx context.Context, c *domain.Campaign, stats *worker.ExecutionStats) map[string]domain.PlatformResult {
	out := make([]domain.PlatformResult, len(c.Platforms))
	var g errgroup.Group
	for i, platform := range c.Platforms {
		g.Go(func() error {
			out[i] = s.runPlatform(ctx, c, platform, stats)
			return nil
		})
	}
	_ = g.Wait()

	results := make(map[string]domain.PlatformResult, len(out))
	for _, r := range out {
		results[r.Platform] = r
	}
	return results
}

func (s *Service) runPlatform(ctx context.Context, c *domain.Campaign, platform string, stats *worker.ExecutionStats) (res domain.PlatformResult) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%s executor panic: %v", platform, r)
			stats.RecordError(err)
			res = domain.PlatformResult{Platform: platform, Error: err.Error()}
			s.log.Error("platform executor panicked", "campaign_id", c.ID, "platform", platform, "panic", fmt.Sprint(r))
		}
	}()

	res, err := s.executor.Run(ctx, worker.Job{
		CampaignID:      c.ID,
		Platform:        platform,
		Recipients:      c.Recipients,
		Content:         c.Content,
		Personalization: c.Personalization,
		Stats:           stats,
	})
	res.Platform = platform
	if err != nil {
		res.Success = false
		res.Error = err.Error()
		stats.RecordError(err)
		s.log.Warn("platform failed", "campaign_id", c.ID, "platform", platform, "error", err)
	}
	return res
}

// failExecution records an orchestration fault: the campaign goes to
// failed, is archived, and the fault is returned as an EngineFailure.
func (s *Service) failExecution(ctx context.Context, id string, cause error) (*domain.ExecutionResult, error) {
	failure := &EngineFailure{CampaignID: id, Err: cause}
	s.log.Error("campaign execution failed", "campaign_id", id, "error", cause)

	c, err := s.repo.Update(ctx, id, func(c *domain.Campaign) error {
		if c.IsTerminal() {
			return nil
		}
		now := s.now()
		c.CompletedAt = &now
		c.LastError = failure.Error()
		c.ErrorCount++
		c.Status = domain.CampaignFailed
		return nil
	})
	if err != nil {
		s.log.Error("failed to record engine failure", "campaign_id", id, "error", err)
		return nil, failure
	}
	res := s.archive(ctx, c)
	s.bus.Publish(ctx, events.ExecutionFailedEvent{CampaignID: id, Error: failure.Error(), Result: res})
	return &res, failure
}

// archive moves a terminal campaign into history and hands it to the
// external sink. Sink failures are logged only.
func (s *Service) archive(ctx context.Context, c *domain.Campaign) domain.ExecutionResult {
	if archived, err := s.repo.Archive(ctx, c.ID); err != nil {
		s.log.Error("failed to archive campaign", "campaign_id", c.ID, "error", err)
	} else {
		c = archived
	}
	res := domain.NewExecutionResult(c)
	if s.history != nil {
		if err := s.history.Archive(ctx, c, res); err != nil {
			s.log.Warn("failed to persist campaign history", "campaign_id", c.ID, "error", err)
		}
	}
	return res
}
