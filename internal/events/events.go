package events

import (
	"time"

	"github.com/ignite/campaign-engine/internal/domain"
)

// Name identifies an event type on the bus.
type Name string

const (
	CampaignCreated            Name = "campaign_created"
	CampaignExecutionStarted   Name = "campaign_execution_started"
	CampaignExecutionCompleted Name = "campaign_execution_completed"
	CampaignExecutionFailed    Name = "campaign_execution_failed"
	CampaignCancelled          Name = "campaign_cancelled"
	BatchProcessed             Name = "batch_processed"
	BatchRetryExhausted        Name = "batch_retry_exhausted"
	QueueDepthChanged          Name = "queue_depth_changed"
	CapacityWarning            Name = "capacity_warning"
)

// Event is implemented by every payload published on the bus.
type Event interface {
	EventName() Name
}

// CampaignCreatedEvent fires once a submission passes validation.
type CampaignCreatedEvent struct {
	CampaignID     string              `json:"campaign_id"`
	Kind           domain.CampaignKind `json:"type"`
	Priority       domain.Priority     `json:"priority"`
	Platforms      []string            `json:"platforms"`
	RecipientCount int                 `json:"recipient_count"`
	Deferred       bool                `json:"deferred"`
	CreatedAt      time.Time           `json:"created_at"`
}

func (CampaignCreatedEvent) EventName() Name { return CampaignCreated }

// ExecutionStartedEvent fires when a worker picks a campaign up.
type ExecutionStartedEvent struct {
	CampaignID string    `json:"campaign_id"`
	Platforms  []string  `json:"platforms"`
	StartedAt  time.Time `json:"started_at"`
}

func (ExecutionStartedEvent) EventName() Name { return CampaignExecutionStarted }

// ExecutionCompletedEvent carries the full result of a campaign that ended
// completed or partially completed.
type ExecutionCompletedEvent struct {
	Result domain.ExecutionResult `json:"result"`
}

func (ExecutionCompletedEvent) EventName() Name { return CampaignExecutionCompleted }

// ExecutionFailedEvent fires when a campaign ends failed, either because no
// platform succeeded or because orchestration itself broke.
type ExecutionFailedEvent struct {
	CampaignID string                 `json:"campaign_id"`
	Error      string                 `json:"error"`
	Result     domain.ExecutionResult `json:"result"`
}

func (ExecutionFailedEvent) EventName() Name { return CampaignExecutionFailed }

// CampaignCancelledEvent fires when a deferred campaign is cancelled before
// its enqueue time.
type CampaignCancelledEvent struct {
	CampaignID  string    `json:"campaign_id"`
	CancelledAt time.Time `json:"cancelled_at"`
}

func (CampaignCancelledEvent) EventName() Name { return CampaignCancelled }

// BatchProcessedEvent fires after every adapter call, first attempt or retry.
type BatchProcessedEvent struct {
	CampaignID string `json:"campaign_id"`
	Platform   string `json:"platform"`
	BatchIndex int    `json:"batch_index"`
	BatchSize  int    `json:"batch_size"`
	Successful int    `json:"successful"`
	Failed     int    `json:"failed"`
	Attempt    int    `json:"attempt"`
	Error      string `json:"error,omitempty"`
}

func (BatchProcessedEvent) EventName() Name { return BatchProcessed }

// BatchRetryExhaustedEvent fires when a batch fails its last retry.
type BatchRetryExhaustedEvent struct {
	CampaignID string `json:"campaign_id"`
	Platform   string `json:"platform"`
	BatchIndex int    `json:"batch_index"`
	BatchSize  int    `json:"batch_size"`
	Attempts   int    `json:"attempts"`
	Error      string `json:"error"`
}

func (BatchRetryExhaustedEvent) EventName() Name { return BatchRetryExhausted }

// QueueDepthChangedEvent reports the dispatch lane depths after an enqueue or
// dequeue.
type QueueDepthChangedEvent struct {
	Urgent   int `json:"urgent"`
	Standard int `json:"standard"`
}

func (QueueDepthChangedEvent) EventName() Name { return QueueDepthChanged }

// CapacityWarningEvent fires when trailing-hour interactions exceed the
// configured share of hourly capacity.
type CapacityWarningEvent struct {
	Utilization          float64   `json:"utilization"`
	InteractionsLastHour int64     `json:"interactions_last_hour"`
	Limit                int64     `json:"limit"`
	RaisedAt             time.Time `json:"raised_at"`
}

func (CapacityWarningEvent) EventName() Name { return CapacityWarning }
