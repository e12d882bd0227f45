package metrics

import (
	"math"
	"time"

	"github.com/ignite/campaign-engine/internal/domain"
)

// Report is the on-demand performance report.
type Report struct {
	QueueDepths          map[domain.Lane]int    `json:"queue_depths"`
	PlatformSuccessRates map[string]float64     `json:"platform_success_rates"`
	CampaignSuccessRate  float64                `json:"campaign_success_rate"`
	CapacityUtilization  float64                `json:"capacity_utilization"`
	HealthScore          int                    `json:"health_score"`
	Status               string                 `json:"status"`
	Snapshot             domain.MetricsSnapshot `json:"snapshot"`
	GeneratedAt          time.Time              `json:"generated_at"`
}

// Health statuses derived from the score.
const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
	StatusCritical = "critical"
)

// Report builds a performance report from the current counters.
func (a *Aggregator) Report() Report {
	snap := a.Snapshot()
	r := Report{
		QueueDepths:          snap.QueueDepths,
		PlatformSuccessRates: make(map[string]float64, len(snap.Platforms)),
		CampaignSuccessRate:  1,
		CapacityUtilization:  snap.CapacityUtilization,
		Snapshot:             snap,
		GeneratedAt:          snap.TakenAt,
	}
	for name, p := range snap.Platforms {
		if p.Successful+p.Failed > 0 {
			r.PlatformSuccessRates[name] = p.SuccessRate
		}
	}
	if finished := snap.SuccessfulCampaigns + snap.FailedCampaigns; finished > 0 {
		r.CampaignSuccessRate = float64(snap.SuccessfulCampaigns) / float64(finished)
	}
	r.HealthScore = healthScore(r, a.cfg.WarningThreshold)
	switch {
	case r.HealthScore >= 80:
		r.Status = StatusHealthy
	case r.HealthScore >= 50:
		r.Status = StatusDegraded
	default:
		r.Status = StatusCritical
	}
	return r
}

// healthScore starts at 100 and deducts up to 40 points for failed
// campaigns, 30 for recipient-level delivery failures and 30 for capacity
// pressure beyond the warning threshold.
func healthScore(r Report, threshold float64) int {
	score := 100.0
	score -= 40 * (1 - r.CampaignSuccessRate)

	if len(r.PlatformSuccessRates) > 0 {
		var sum float64
		for _, rate := range r.PlatformSuccessRates {
			sum += rate
		}
		score -= 30 * (1 - sum/float64(len(r.PlatformSuccessRates)))
	}

	if threshold < 1 && r.CapacityUtilization > threshold {
		over := (r.CapacityUtilization - threshold) / (1 - threshold)
		score -= 30 * math.Min(over, 1)
	}
	return int(math.Round(math.Max(0, math.Min(100, score))))
}
