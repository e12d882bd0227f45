package api

import (
	"errors"
	"net/http"

	"github.com/ignite/campaign-engine/internal/pkg/httputil"
	"github.com/ignite/campaign-engine/internal/service/campaign"
	"github.com/ignite/campaign-engine/internal/worker"
)

// writeError maps service errors to status codes. Anything unrecognized is
// a 500 whose details stay in the server log.
func writeError(w http.ResponseWriter, err error) {
	var verr *campaign.ValidationError
	switch {
	case errors.As(err, &verr):
		httputil.ErrorCode(w, http.StatusBadRequest, "validation_error", verr.Error(), map[string]string{
			"field":  verr.Field,
			"reason": verr.Reason,
		})
	case errors.Is(err, campaign.ErrNotFound):
		httputil.ErrorCode(w, http.StatusNotFound, "not_found", "campaign not found", nil)
	case errors.Is(err, campaign.ErrNotCancellable):
		httputil.ErrorCode(w, http.StatusConflict, "not_cancellable", err.Error(), nil)
	case errors.Is(err, campaign.ErrNotFinished):
		httputil.ErrorCode(w, http.StatusConflict, "not_finished", err.Error(), nil)
	case errors.Is(err, worker.ErrQueueFull):
		w.Header().Set("Retry-After", "5")
		httputil.ErrorCode(w, http.StatusServiceUnavailable, "queue_full", "dispatch queue is full, retry later", nil)
	case errors.Is(err, worker.ErrNotRunning):
		httputil.ErrorCode(w, http.StatusServiceUnavailable, "shutting_down", "engine is shutting down", nil)
	default:
		httputil.InternalError(w, err)
	}
}
