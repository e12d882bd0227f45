package campaign

import (
	"context"
	"time"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/worker"
)

// Repository stores campaigns while they are active and keeps a bounded
// history once they are archived. Implementations must be safe for
// concurrent use and must return copies, never their stored values.
type Repository interface {
	// Create stores a new active campaign.
	Create(ctx context.Context, c *domain.Campaign) error

	// Get returns an active or archived campaign. Returns ErrNotFound if it
	// doesn't exist.
	Get(ctx context.Context, id string) (*domain.Campaign, error)

	// Update applies fn to an active campaign atomically and returns the
	// updated copy. If fn returns an error nothing is changed.
	Update(ctx context.Context, id string, fn func(c *domain.Campaign) error) (*domain.Campaign, error)

	// Archive moves an active campaign into history.
	Archive(ctx context.Context, id string) (*domain.Campaign, error)

	// List returns campaigns matching the filter, newest first.
	List(ctx context.Context, f ListFilter) ([]*domain.Campaign, error)
}

// ListFilter controls campaign listing.
type ListFilter struct {
	Status domain.CampaignStatus
	Limit  int
}

// HistorySink receives every archived campaign with its execution result.
type HistorySink interface {
	Archive(ctx context.Context, c *domain.Campaign, res domain.ExecutionResult) error
}

// Queue accepts campaigns for execution.
type Queue interface {
	Enqueue(item worker.Item) (int, error)
}

// Scheduler parks deferred campaigns until their send time.
type Scheduler interface {
	Schedule(id string, at time.Time, fire func()) error
	Cancel(id string) bool
}

// Executor runs one platform for one campaign.
type Executor interface {
	Run(ctx context.Context, job worker.Job) (domain.PlatformResult, error)
}
