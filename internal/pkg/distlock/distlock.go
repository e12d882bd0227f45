package distlock

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DistLock is an acquire-only TTL lock: once taken it is held until the TTL
// runs out. It serves as a cooldown gate shared by every holder of the key.
type DistLock interface {
	// Acquire tries to take the lock. Returns true if successful.
	Acquire(ctx context.Context) (bool, error)
}

// NewLock returns a Redis lock shared by every process using the same key
// when redisClient is non-nil, and a process-local lock otherwise.
func NewLock(redisClient *redis.Client, key string, ttl time.Duration) DistLock {
	if redisClient != nil {
		return NewRedisLock(redisClient, key, ttl)
	}
	return NewLocalLock(ttl)
}

// LocalLock is the single-process fallback. It honors the TTL like the Redis
// lock does.
type LocalLock struct {
	mu        sync.Mutex
	ttl       time.Duration
	expiresAt time.Time
	held      bool
	now       func() time.Time
}

// NewLocalLock creates an in-process lock.
func NewLocalLock(ttl time.Duration) *LocalLock {
	return &LocalLock{ttl: ttl, now: time.Now}
}

func (l *LocalLock) Acquire(_ context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if l.held && now.Before(l.expiresAt) {
		return false, nil
	}
	l.held = true
	l.expiresAt = now.Add(l.ttl)
	return true, nil
}
