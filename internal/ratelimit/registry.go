package ratelimit

import (
	"sync"

	"github.com/redis/go-redis/v9"
)

// Registry holds one limiter per platform.
type Registry struct {
	mu       sync.RWMutex
	limiters map[string]Limiter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{limiters: make(map[string]Limiter)}
}

// NewRegistryFromRates builds a limiter for every platform in rates. With a
// Redis client the windows are shared across processes; without one they
// are local.
func NewRegistryFromRates(rates map[string]Rate, client *redis.Client) *Registry {
	reg := NewRegistry()
	for platform, rate := range rates {
		if client != nil {
			reg.Register(platform, NewRedisWindow(client, platform, rate))
		} else {
			reg.Register(platform, NewSlidingWindow(rate))
		}
	}
	return reg
}

// Register installs l for platform, replacing any previous limiter.
func (r *Registry) Register(platform string, l Limiter) {
	r.mu.Lock()
	r.limiters[platform] = l
	r.mu.Unlock()
}

// Get returns the limiter for platform.
func (r *Registry) Get(platform string) (Limiter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.limiters[platform]
	return l, ok
}
