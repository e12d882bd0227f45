package domain

import "time"

// Lane names for the priority dispatch queue.
type Lane string

const (
	LaneUrgent   Lane = "urgent"
	LaneStandard Lane = "standard"
)

// LaneFor returns the dispatch lane serving the given priority.
func LaneFor(p Priority) Lane {
	if p.IsUrgent() {
		return LaneUrgent
	}
	return LaneStandard
}

// PlatformPerformance accumulates delivery outcomes for one platform.
// Sent, Successful, Failed and Batches are final per-batch outcomes taken
// from finished executions. Attempts and FailedAttempts count every adapter
// call, retries included.
type PlatformPerformance struct {
	Executions     int64   `json:"executions"`
	Failures       int64   `json:"failures"`
	Sent           int64   `json:"sent"`
	Successful     int64   `json:"successful"`
	Failed         int64   `json:"failed"`
	Batches        int64   `json:"batches"`
	Attempts       int64   `json:"attempts"`
	FailedAttempts int64   `json:"failed_attempts"`
	SuccessRate    float64 `json:"success_rate"`
}

// MetricsSnapshot is a read-only view of the aggregator's counters.
type MetricsSnapshot struct {
	TotalCampaigns         int64                          `json:"total_campaigns"`
	SuccessfulCampaigns    int64                          `json:"successful_campaigns"`
	FailedCampaigns        int64                          `json:"failed_campaigns"`
	ActiveCampaigns        int64                          `json:"active_campaigns"`
	TotalInteractions      int64                          `json:"total_interactions"`
	InteractionsLastHour   int64                          `json:"interactions_last_hour"`
	CapacityUtilization    float64                        `json:"capacity_utilization"`
	AverageExecutionTimeMs float64                        `json:"average_execution_time_ms"`
	QueueDepths            map[Lane]int                   `json:"queue_depths"`
	Platforms              map[string]PlatformPerformance `json:"platforms"`
	TakenAt                time.Time                      `json:"taken_at"`
}
