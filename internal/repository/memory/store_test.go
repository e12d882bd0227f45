package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/service/campaign"
)

func newCampaign(id string, created time.Time) *domain.Campaign {
	return &domain.Campaign{ID: id, Name: id, Status: domain.CampaignPending, Platforms: []string{"email"}, CreatedAt: created}
}

func TestStore_CreateGetIsolation(t *testing.T) {
	s := NewStore(10)
	ctx := context.Background()
	c := newCampaign("c-1", time.Now())
	require.NoError(t, s.Create(ctx, c))
	assert.Error(t, s.Create(ctx, c), "duplicate id")

	c.Name = "mutated by caller"
	got, err := s.Get(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, "c-1", got.Name)

	got.Platforms[0] = "push"
	again, _ := s.Get(ctx, "c-1")
	assert.Equal(t, "email", again.Platforms[0])

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, campaign.ErrNotFound)
}

func TestStore_UpdateIsAtomic(t *testing.T) {
	s := NewStore(10)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, newCampaign("c-1", time.Now())))

	_, err := s.Update(ctx, "c-1", func(c *domain.Campaign) error {
		c.ErrorCount = 99
		return errors.New("abort")
	})
	require.Error(t, err)
	got, _ := s.Get(ctx, "c-1")
	assert.Equal(t, 0, got.ErrorCount, "failed update leaves no trace")

	updated, err := s.Update(ctx, "c-1", func(c *domain.Campaign) error {
		return c.Transition(domain.CampaignExecuting)
	})
	require.NoError(t, err)
	assert.Equal(t, domain.CampaignExecuting, updated.Status)

	_, err = s.Update(ctx, "nope", func(*domain.Campaign) error { return nil })
	assert.ErrorIs(t, err, campaign.ErrNotFound)
}

func TestStore_ConcurrentUpdates(t *testing.T) {
	s := NewStore(10)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, newCampaign("c-1", time.Now())))

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Update(ctx, "c-1", func(c *domain.Campaign) error {
				c.RetryCount++
				return nil
			})
			_, _ = s.Get(ctx, "c-1")
		}()
	}
	wg.Wait()

	got, _ := s.Get(ctx, "c-1")
	assert.Equal(t, 100, got.RetryCount)
}

func TestStore_ArchiveMovesToBoundedHistory(t *testing.T) {
	s := NewStore(2)
	ctx := context.Background()
	base := time.Now()
	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("c-%d", i)
		require.NoError(t, s.Create(ctx, newCampaign(id, base.Add(time.Duration(i)*time.Second))))
		_, err := s.Archive(ctx, id)
		require.NoError(t, err)
	}

	active, history, evicted := s.Counts()
	assert.Equal(t, 0, active)
	assert.Equal(t, 2, history)
	assert.Equal(t, int64(1), evicted)

	_, err := s.Get(ctx, "c-0")
	assert.ErrorIs(t, err, campaign.ErrNotFound, "oldest archived campaign evicted")
	_, err = s.Get(ctx, "c-2")
	assert.NoError(t, err)

	_, err = s.Update(ctx, "c-2", func(*domain.Campaign) error { return nil })
	assert.ErrorIs(t, err, campaign.ErrNotFound, "archived campaigns are read-only")
}

func TestStore_ListNewestFirst(t *testing.T) {
	s := NewStore(10)
	ctx := context.Background()
	base := time.Now()
	for i := 0; i < 4; i++ {
		require.NoError(t, s.Create(ctx, newCampaign(fmt.Sprintf("c-%d", i), base.Add(time.Duration(i)*time.Minute))))
	}
	_, err := s.Update(ctx, "c-1", func(c *domain.Campaign) error { c.Status = domain.CampaignFailed; return nil })
	require.NoError(t, err)
	_, err = s.Archive(ctx, "c-1")
	require.NoError(t, err)

	all, err := s.List(ctx, campaign.ListFilter{})
	require.NoError(t, err)
	ids := make([]string, len(all))
	for i, c := range all {
		ids[i] = c.ID
	}
	assert.Equal(t, []string{"c-3", "c-2", "c-1", "c-0"}, ids)

	failed, err := s.List(ctx, campaign.ListFilter{Status: domain.CampaignFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "c-1", failed[0].ID)

	limited, _ := s.List(ctx, campaign.ListFilter{Limit: 2})
	assert.Len(t, limited, 2)
}
