package domain

import "time"

// Platform names for the built-in delivery channels. Platforms are plain
// strings so deployments can register additional channels through config.
const (
	PlatformEmail   = "email"
	PlatformPush    = "push"
	PlatformSMS     = "sms"
	PlatformChat    = "chat"
	PlatformInApp   = "in_app"
	PlatformWebhook = "webhook"
	PlatformSocial  = "social"
)

// PlatformResult is the outcome of one platform executor run for one campaign.
// Success means the executor ran to completion and delivered at least one
// batch; per-recipient failures are reported through the counts.
type PlatformResult struct {
	Platform   string        `json:"platform"`
	Success    bool          `json:"success"`
	Sent       int           `json:"sent"`
	Successful int           `json:"successful"`
	Failed     int           `json:"failed"`
	Batches    int           `json:"batches"`
	Retries    int           `json:"retries"`
	Duration   time.Duration `json:"duration_ns"`
	Error      string        `json:"error,omitempty"`
}

// ExecutionResult is the caller-facing summary of a finished campaign.
type ExecutionResult struct {
	CampaignID          string                    `json:"campaignId"`
	Name                string                    `json:"name"`
	Kind                CampaignKind              `json:"type"`
	Status              CampaignStatus            `json:"status"`
	PlatformsExecuted   int                       `json:"platformsExecuted"`
	TotalPlatforms      int                       `json:"totalPlatforms"`
	InteractionsSent    int                       `json:"interactionsSent"`
	ExecutionTimeMs     int64                     `json:"executionTimeMs"`
	ThroughputPerSecond float64                   `json:"throughputPerSecond"`
	ErrorCount          int                       `json:"errorCount"`
	RetryCount          int                       `json:"retryCount"`
	Error               string                    `json:"error,omitempty"`
	PerPlatformResults  map[string]PlatformResult `json:"perPlatformResults"`
	StartedAt           time.Time                 `json:"startedAt"`
	CompletedAt         time.Time                 `json:"completedAt"`
}

// NewExecutionResult summarizes a terminal campaign.
func NewExecutionResult(c *Campaign) ExecutionResult {
	res := ExecutionResult{
		CampaignID:         c.ID,
		Name:               c.Name,
		Kind:               c.Kind,
		Status:             c.Status,
		TotalPlatforms:     len(c.Platforms),
		ErrorCount:         c.ErrorCount,
		RetryCount:         c.RetryCount,
		Error:              c.LastError,
		PerPlatformResults: make(map[string]PlatformResult, len(c.PlatformResults)),
	}
	for name, r := range c.PlatformResults {
		res.PerPlatformResults[name] = r
		if r.Success {
			res.PlatformsExecuted++
		}
		res.InteractionsSent += r.Successful
	}
	if c.StartedAt != nil {
		res.StartedAt = *c.StartedAt
	}
	if c.CompletedAt != nil {
		res.CompletedAt = *c.CompletedAt
	}
	if c.StartedAt != nil && c.CompletedAt != nil {
		elapsed := c.CompletedAt.Sub(*c.StartedAt)
		res.ExecutionTimeMs = elapsed.Milliseconds()
		if secs := elapsed.Seconds(); secs > 0 {
			res.ThroughputPerSecond = float64(res.InteractionsSent) / secs
		}
	}
	return res
}
