// Package memory is the in-process campaign store: a working set of active
// campaigns keyed by id plus a bounded history of archived ones. When the
// history is full the oldest archived campaign is evicted.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/service/campaign"
)

// DefaultHistoryLimit bounds history when no limit is given.
const DefaultHistoryLimit = 1000

// Store implements campaign.Repository.
type Store struct {
	mu           sync.RWMutex
	active       map[string]*domain.Campaign
	history      map[string]*domain.Campaign
	order        []string // archive order, oldest first
	historyLimit int
	evicted      int64
}

// NewStore creates a store keeping at most historyLimit archived campaigns.
func NewStore(historyLimit int) *Store {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Store{
		active:       make(map[string]*domain.Campaign),
		history:      make(map[string]*domain.Campaign),
		historyLimit: historyLimit,
	}
}

func (s *Store) Create(_ context.Context, c *domain.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		return fmt.Errorf("campaign id required")
	}
	if _, ok := s.active[c.ID]; ok {
		return fmt.Errorf("campaign %s already exists", c.ID)
	}
	if _, ok := s.history[c.ID]; ok {
		return fmt.Errorf("campaign %s already exists", c.ID)
	}
	s.active[c.ID] = c.Clone()
	return nil
}

func (s *Store) Get(_ context.Context, id string) (*domain.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.active[id]; ok {
		return c.Clone(), nil
	}
	if c, ok := s.history[id]; ok {
		return c.Clone(), nil
	}
	return nil, campaign.ErrNotFound
}

func (s *Store) Update(_ context.Context, id string, fn func(c *domain.Campaign) error) (*domain.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.active[id]
	if !ok {
		return nil, campaign.ErrNotFound
	}
	next := cur.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	s.active[id] = next
	return next.Clone(), nil
}

func (s *Store) Archive(_ context.Context, id string) (*domain.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.active[id]
	if !ok {
		if h, ok := s.history[id]; ok {
			return h.Clone(), nil
		}
		return nil, campaign.ErrNotFound
	}
	delete(s.active, id)
	s.history[id] = c
	s.order = append(s.order, id)

	for len(s.order) > s.historyLimit {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.history, oldest)
		s.evicted++
	}
	return c.Clone(), nil
}

func (s *Store) List(_ context.Context, f campaign.ListFilter) ([]*domain.Campaign, error) {
	s.mu.RLock()
	out := make([]*domain.Campaign, 0, len(s.active)+len(s.history))
	for _, set := range []map[string]*domain.Campaign{s.active, s.history} {
		for _, c := range set {
			if f.Status != "" && c.Status != f.Status {
				continue
			}
			out = append(out, c.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// Counts returns the sizes of the active set and history, and how many
// archived campaigns have been evicted.
func (s *Store) Counts() (active, history int, evicted int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.active), len(s.history), s.evicted
}
