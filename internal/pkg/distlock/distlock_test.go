package distlock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisLock_SharedAcrossInstances(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()

	a := NewRedisLock(client, "capacity-warning", time.Minute)
	b := NewRedisLock(client, "capacity-warning", time.Minute)

	ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "second holder must be refused")

	holder, err := mr.Get("lock:capacity-warning")
	require.NoError(t, err)
	assert.Equal(t, a.value, holder)
	assert.True(t, mr.TTL("lock:capacity-warning") > 0)
}

func TestRedisLock_ExpiresAfterTTL(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()

	a := NewRedisLock(client, "k", 5*time.Second)
	ok, _ := a.Acquire(ctx)
	require.True(t, ok)

	mr.FastForward(6 * time.Second)
	ok, err := NewRedisLock(client, "k", 5*time.Second).Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocalLock_TTL(t *testing.T) {
	now := time.Now()
	l := NewLocalLock(time.Minute)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	ok, _ := l.Acquire(ctx)
	assert.True(t, ok)
	ok, _ = l.Acquire(ctx)
	assert.False(t, ok)

	now = now.Add(61 * time.Second)
	ok, _ = l.Acquire(ctx)
	assert.True(t, ok, "expired lock can be retaken")
	ok, _ = l.Acquire(ctx)
	assert.False(t, ok)
}

func TestNewLock_PicksBackend(t *testing.T) {
	_, client := setupTestRedis(t)
	assert.IsType(t, &RedisLock{}, NewLock(client, "k", time.Second))
	assert.IsType(t, &LocalLock{}, NewLock(nil, "k", time.Second))
}
