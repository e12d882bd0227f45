package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/metrics"
	"github.com/ignite/campaign-engine/internal/pkg/httputil"
	"github.com/ignite/campaign-engine/internal/service/campaign"
)

// maxSubmitBytes bounds a submission body; audiences travel inline.
const maxSubmitBytes = 32 << 20

// CampaignService is the lifecycle surface the handlers need.
type CampaignService interface {
	Submit(ctx context.Context, in campaign.SubmitInput) (*campaign.SubmitReceipt, error)
	Get(ctx context.Context, id string) (*domain.Campaign, error)
	List(ctx context.Context, f campaign.ListFilter) ([]*domain.Campaign, error)
	Result(ctx context.Context, id string) (*domain.ExecutionResult, error)
	Cancel(ctx context.Context, id string) (*domain.Campaign, error)
}

// MetricsSource exposes the aggregator's read side.
type MetricsSource interface {
	Snapshot() domain.MetricsSnapshot
	Report() metrics.Report
}

// Handlers contains all HTTP handlers
type Handlers struct {
	campaigns CampaignService
	metrics   MetricsSource
	healthy   func() bool
}

// NewHandlers creates a new handlers instance. healthy may be nil.
func NewHandlers(campaigns CampaignService, m MetricsSource, healthy func() bool) *Handlers {
	if healthy == nil {
		healthy = func() bool { return true }
	}
	return &Handlers{campaigns: campaigns, metrics: m, healthy: healthy}
}

// HealthCheck handles GET /healthz
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status, code := "healthy", http.StatusOK
	if !h.healthy() {
		status, code = "stopped", http.StatusServiceUnavailable
	}
	httputil.JSON(w, code, map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC(),
	})
}

// SubmitCampaign handles POST /api/campaigns
func (h *Handlers) SubmitCampaign(w http.ResponseWriter, r *http.Request) {
	var in campaign.SubmitInput
	if !httputil.Decode(w, r, &in, maxSubmitBytes) {
		return
	}
	receipt, err := h.campaigns.Submit(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.JSON(w, http.StatusAccepted, receipt)
}

// ListCampaigns handles GET /api/campaigns?status=&limit=
func (h *Handlers) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	f := campaign.ListFilter{Status: domain.CampaignStatus(r.URL.Query().Get("status")), Limit: 50}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			httputil.BadRequest(w, "limit must be a positive integer")
			return
		}
		f.Limit = n
	}
	list, err := h.campaigns.List(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"campaigns": list, "count": len(list)})
}

// campaignView is a campaign together with its execution summary once it
// has finished.
type campaignView struct {
	Campaign *domain.Campaign       `json:"campaign"`
	Result   *domain.ExecutionResult `json:"result,omitempty"`
}

// GetCampaign handles GET /api/campaigns/{id}
func (h *Handlers) GetCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.campaigns.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	view := campaignView{Campaign: c}
	if c.IsTerminal() {
		res := domain.NewExecutionResult(c)
		view.Result = &res
	}
	httputil.OK(w, view)
}

// GetResult handles GET /api/campaigns/{id}/result
func (h *Handlers) GetResult(w http.ResponseWriter, r *http.Request) {
	res, err := h.campaigns.Result(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, res)
}

// CancelCampaign handles DELETE /api/campaigns/{id}
func (h *Handlers) CancelCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.campaigns.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, c)
}

// GetMetrics handles GET /api/metrics
func (h *Handlers) GetMetrics(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, h.metrics.Snapshot())
}

// GetReport handles GET /api/metrics/report
func (h *Handlers) GetReport(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, h.metrics.Report())
}
