package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/service/campaign"
)

// HistoryRepo implements campaign.HistorySink against PostgreSQL. Every
// archived campaign becomes one campaign_executions row; per-platform results
// are stored as JSONB.
type HistoryRepo struct{ db *sql.DB }

// NewHistoryRepo creates a Postgres-backed execution history.
func NewHistoryRepo(db *sql.DB) *HistoryRepo { return &HistoryRepo{db: db} }

const schema = `
CREATE TABLE IF NOT EXISTS campaign_executions (
	campaign_id        TEXT PRIMARY KEY,
	name               TEXT NOT NULL,
	campaign_type      TEXT NOT NULL,
	priority           TEXT NOT NULL,
	status             TEXT NOT NULL,
	platforms          TEXT[] NOT NULL,
	recipient_count    INTEGER NOT NULL,
	interactions_sent  INTEGER NOT NULL,
	error_count        INTEGER NOT NULL,
	retry_count        INTEGER NOT NULL,
	last_error         TEXT,
	platform_results   JSONB NOT NULL,
	execution_time_ms  BIGINT NOT NULL,
	created_at         TIMESTAMPTZ NOT NULL,
	started_at         TIMESTAMPTZ,
	completed_at       TIMESTAMPTZ
)`

// EnsureSchema creates the history table if it is missing.
func (r *HistoryRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create campaign_executions: %w", err)
	}
	return nil
}

// Archive upserts one execution row. Archiving the same campaign twice keeps
// the latest state.
func (r *HistoryRepo) Archive(ctx context.Context, c *domain.Campaign, res domain.ExecutionResult) error {
	results, err := json.Marshal(res.PerPlatformResults)
	if err != nil {
		return fmt.Errorf("encode platform results: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO campaign_executions
			(campaign_id, name, campaign_type, priority, status, platforms,
			 recipient_count, interactions_sent, error_count, retry_count,
			 last_error, platform_results, execution_time_ms,
			 created_at, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (campaign_id) DO UPDATE SET
			status = EXCLUDED.status,
			interactions_sent = EXCLUDED.interactions_sent,
			error_count = EXCLUDED.error_count,
			retry_count = EXCLUDED.retry_count,
			last_error = EXCLUDED.last_error,
			platform_results = EXCLUDED.platform_results,
			execution_time_ms = EXCLUDED.execution_time_ms,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at
	`, c.ID, c.Name, string(c.Kind), string(c.Priority), string(res.Status), pq.Array(c.Platforms),
		c.RecipientCount(), res.InteractionsSent, res.ErrorCount, res.RetryCount,
		nullString(res.Error), results, res.ExecutionTimeMs,
		c.CreatedAt, c.StartedAt, c.CompletedAt)
	if err != nil {
		return fmt.Errorf("archive campaign %s: %w", c.ID, err)
	}
	return nil
}

// Get loads the stored execution result of an archived campaign.
func (r *HistoryRepo) Get(ctx context.Context, id string) (*domain.ExecutionResult, error) {
	var (
		res       domain.ExecutionResult
		platforms []string
		lastErr   sql.NullString
		results   []byte
		started   sql.NullTime
		completed sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT campaign_id, name, campaign_type, status, platforms,
		       interactions_sent, error_count, retry_count, last_error,
		       platform_results, execution_time_ms, started_at, completed_at
		FROM campaign_executions
		WHERE campaign_id = $1
	`, id).Scan(
		&res.CampaignID, &res.Name, &res.Kind, &res.Status, pq.Array(&platforms),
		&res.InteractionsSent, &res.ErrorCount, &res.RetryCount, &lastErr,
		&results, &res.ExecutionTimeMs, &started, &completed,
	)
	if err == sql.ErrNoRows {
		return nil, campaign.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get execution: %w", err)
	}

	if err := json.Unmarshal(results, &res.PerPlatformResults); err != nil {
		return nil, fmt.Errorf("decode platform results: %w", err)
	}
	res.TotalPlatforms = len(platforms)
	for _, pr := range res.PerPlatformResults {
		if pr.Success {
			res.PlatformsExecuted++
		}
	}
	res.Error = lastErr.String
	if started.Valid {
		res.StartedAt = started.Time
	}
	if completed.Valid {
		res.CompletedAt = completed.Time
	}
	if secs := float64(res.ExecutionTimeMs) / 1000; secs > 0 {
		res.ThroughputPerSecond = float64(res.InteractionsSent) / secs
	}
	return &res, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
