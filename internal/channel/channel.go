// Package channel defines the boundary between the engine and the systems
// that actually deliver interactions. An Adapter accepts one batch of
// recipients for one platform and reports how many were accepted.
package channel

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ignite/campaign-engine/internal/domain"
)

// ErrUnknownPlatform is returned by Registry.Get for unregistered platforms.
var ErrUnknownPlatform = errors.New("channel: unknown platform")

// Result is the outcome of one batch send. Successful+Failed equals the
// batch size for a well-behaved adapter.
type Result struct {
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// Batch is what an adapter receives for a single send call.
type Batch struct {
	CampaignID      string
	Platform        string
	Index           int
	Recipients      []domain.Recipient
	Content         domain.Content
	Personalization domain.Personalization
}

// Adapter delivers batches for one platform. A returned error means the
// batch as a whole was not accepted and may be retried.
type Adapter interface {
	SendBatch(ctx context.Context, batch Batch) (Result, error)
}

// AdapterFunc lets an ordinary function act as an Adapter.
type AdapterFunc func(ctx context.Context, batch Batch) (Result, error)

func (f AdapterFunc) SendBatch(ctx context.Context, batch Batch) (Result, error) {
	return f(ctx, batch)
}

// Registry maps platform names to adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register installs a for platform, replacing any previous adapter.
func (r *Registry) Register(platform string, a Adapter) {
	r.mu.Lock()
	r.adapters[platform] = a
	r.mu.Unlock()
}

// Get returns the adapter for platform.
func (r *Registry) Get(platform string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[platform]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlatform, platform)
	}
	return a, nil
}

// Platforms lists registered platform names in sorted order.
func (r *Registry) Platforms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.adapters))
	for p := range r.adapters {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
