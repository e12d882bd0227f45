package domain

import (
	"errors"
	"fmt"
	"time"
)

// CampaignStatus enumerates the lifecycle states of a campaign.
type CampaignStatus string

const (
	CampaignPending            CampaignStatus = "pending"
	CampaignExecuting          CampaignStatus = "executing"
	CampaignCompleted          CampaignStatus = "completed"
	CampaignPartiallyCompleted CampaignStatus = "partially_completed"
	CampaignFailed             CampaignStatus = "failed"
	CampaignCancelled          CampaignStatus = "cancelled"
)

// IsTerminal returns true if the status is a final state.
func (s CampaignStatus) IsTerminal() bool {
	switch s {
	case CampaignCompleted, CampaignPartiallyCompleted, CampaignFailed, CampaignCancelled:
		return true
	}
	return false
}

// ErrInvalidTransition is returned when a status change would regress or skip
// a lifecycle state.
var ErrInvalidTransition = errors.New("invalid status transition")

// allowedTransitions maps each non-terminal state to the states it may move to.
// Terminal states have no outgoing edges.
var allowedTransitions = map[CampaignStatus][]CampaignStatus{
	CampaignPending:   {CampaignExecuting, CampaignCancelled, CampaignFailed},
	CampaignExecuting: {CampaignCompleted, CampaignPartiallyCompleted, CampaignFailed},
}

// CanTransition reports whether from -> to is a legal lifecycle step.
func CanTransition(from, to CampaignStatus) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CampaignKind classifies a campaign; it determines priority and the default
// platform set.
type CampaignKind string

const (
	KindOnboarding CampaignKind = "onboarding"
	KindRetention  CampaignKind = "retention"
	KindActivation CampaignKind = "activation"
	KindRecovery   CampaignKind = "recovery"
	KindCustom     CampaignKind = "custom"
)

// DefaultKind is applied when a submission does not name a kind.
const DefaultKind = KindActivation

// Kinds lists every known campaign kind.
var Kinds = []CampaignKind{KindOnboarding, KindRetention, KindActivation, KindRecovery, KindCustom}

// IsValid returns true for a known campaign kind.
func (k CampaignKind) IsValid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Priority is the scheduling priority derived from the campaign kind.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Score returns the numeric priority score used for telemetry and intra-lane
// bookkeeping. It never causes cross-lane preemption.
func (p Priority) Score() int {
	switch p {
	case PriorityCritical:
		return 100
	case PriorityHigh:
		return 75
	case PriorityMedium:
		return 50
	case PriorityLow:
		return 25
	}
	return 0
}

// IsUrgent returns true for priorities served by the urgent lane.
func (p Priority) IsUrgent() bool {
	return p == PriorityCritical || p == PriorityHigh
}

// ParsePriority validates a priority name.
func ParsePriority(s string) (Priority, error) {
	switch p := Priority(s); p {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow:
		return p, nil
	}
	return "", fmt.Errorf("unknown priority %q", s)
}

// Recipient is one addressable member of a campaign audience. The engine
// treats it as opaque; only channel adapters interpret the fields.
type Recipient struct {
	ID         string            `json:"id"`
	Address    string            `json:"address"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Content is the campaign payload. Opaque to the engine.
type Content map[string]any

// Personalization carries per-campaign personalization parameters. Opaque to
// the engine.
type Personalization map[string]any

// Scheduling is the submission's scheduling directive. A zero SendAt, or one
// that is not in the future, means immediate.
type Scheduling struct {
	Immediate bool       `json:"immediate"`
	SendAt    *time.Time `json:"send_at,omitempty"`
}

// IsDeferred reports whether the directive asks for a future enqueue.
func (s Scheduling) IsDeferred(now time.Time) bool {
	if s.Immediate || s.SendAt == nil {
		return false
	}
	return s.SendAt.After(now)
}

// Campaign is one request to deliver content to an audience across one or
// more platforms, together with its mutable execution state.
type Campaign struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Kind            CampaignKind    `json:"type"`
	Priority        Priority        `json:"priority"`
	Recipients      []Recipient     `json:"-"`
	Platforms       []string        `json:"platforms"`
	Content         Content         `json:"-"`
	Personalization Personalization `json:"-"`
	Scheduling      Scheduling      `json:"scheduling"`

	Status          CampaignStatus            `json:"status"`
	PlatformResults map[string]PlatformResult `json:"platform_results,omitempty"`

	// Aggregate counts. Delivered/Engaged/Converted are populated by
	// downstream tracking.
	SentCount      int `json:"sent_count"`
	DeliveredCount int `json:"delivered_count"`
	EngagedCount   int `json:"engaged_count"`
	ConvertedCount int `json:"converted_count"`

	ErrorCount int    `json:"error_count"`
	RetryCount int    `json:"retry_count"`
	LastError  string `json:"last_error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// RecipientCount returns the audience size.
func (c *Campaign) RecipientCount() int { return len(c.Recipients) }

// IsTerminal returns true if the campaign is in a final state.
func (c *Campaign) IsTerminal() bool { return c.Status.IsTerminal() }

// Transition moves the campaign to the given status, refusing regressions.
func (c *Campaign) Transition(to CampaignStatus) error {
	if !CanTransition(c.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, to)
	}
	c.Status = to
	return nil
}

// Clone returns a copy safe to hand to readers outside the owning worker.
// Audience, content and personalization are shared; they are never mutated
// after submission.
func (c *Campaign) Clone() *Campaign {
	cp := *c
	cp.Platforms = append([]string(nil), c.Platforms...)
	if c.PlatformResults != nil {
		cp.PlatformResults = make(map[string]PlatformResult, len(c.PlatformResults))
		for k, v := range c.PlatformResults {
			cp.PlatformResults[k] = v
		}
	}
	return &cp
}

// ResolveStatus derives the terminal status from per-platform outcomes:
// completed if every platform succeeded, failed if none did, partially
// completed otherwise.
func ResolveStatus(results map[string]PlatformResult) CampaignStatus {
	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
		}
	}
	switch {
	case len(results) > 0 && succeeded == len(results):
		return CampaignCompleted
	case succeeded == 0:
		return CampaignFailed
	default:
		return CampaignPartiallyCompleted
	}
}
