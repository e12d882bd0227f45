package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ignite/campaign-engine/internal/domain"
)

// StatusError is returned by the webhook adapter for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook returned HTTP %d: %s", e.StatusCode, e.Body)
}

type webhookPayload struct {
	CampaignID      string                 `json:"campaign_id"`
	Platform        string                 `json:"platform"`
	BatchIndex      int                    `json:"batch_index"`
	Recipients      []domain.Recipient     `json:"recipients"`
	Content         domain.Content         `json:"content"`
	Personalization domain.Personalization `json:"personalization,omitempty"`
}

// Webhook posts each batch as JSON to a fixed URL. A 2xx reply may carry a
// Result body; an empty or unparsable body counts the whole batch as
// accepted.
type Webhook struct {
	url    string
	client *http.Client
}

// NewWebhook creates a webhook adapter. A zero timeout defaults to 10s.
func NewWebhook(url string, timeout time.Duration) *Webhook {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Webhook{url: url, client: &http.Client{Timeout: timeout}}
}

// SendBatch implements Adapter.
func (w *Webhook) SendBatch(ctx context.Context, batch Batch) (Result, error) {
	body, err := json.Marshal(webhookPayload{
		CampaignID:      batch.CampaignID,
		Platform:        batch.Platform,
		BatchIndex:      batch.Index,
		Recipients:      batch.Recipients,
		Content:         batch.Content,
		Personalization: batch.Personalization,
	})
	if err != nil {
		return Result{}, fmt.Errorf("marshal webhook batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("webhook request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, &StatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(respBody))}
	}

	var res Result
	if len(bytes.TrimSpace(respBody)) == 0 || json.Unmarshal(respBody, &res) != nil || res.Successful+res.Failed == 0 {
		return Result{Successful: len(batch.Recipients)}, nil
	}
	return res, nil
}
