package worker

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-engine/internal/channel"
	"github.com/ignite/campaign-engine/internal/pkg/backoff"
)

// =============================================================================
// RETRY COORDINATOR TESTS
// =============================================================================

func waitOutcome(t *testing.T, ch <-chan RetryOutcome) RetryOutcome {
	t.Helper()
	select {
	case out := <-ch:
		return out
	case <-time.After(2 * time.Second):
		t.Fatal("retry outcome not delivered")
		return RetryOutcome{}
	}
}

func TestRetryCoordinator_StartStop(t *testing.T) {
	c := NewRetryCoordinator(RetryConfig{MaxAttempts: 1}, nil)
	require.NoError(t, c.Start())
	assert.ErrorIs(t, c.Start(), ErrAlreadyRunning)
	c.Stop()
	c.Stop()
}

func TestRetryCoordinator_SubmitWhenStopped(t *testing.T) {
	c := NewRetryCoordinator(RetryConfig{MaxAttempts: 3}, nil)
	stats := &ExecutionStats{}

	out := waitOutcome(t, c.Submit(RetryTask{Batch: channel.Batch{Recipients: testRecipients(1)}, Adapter: NewMockAdapter(), Stats: stats}, errProviderDown))
	assert.ErrorIs(t, out.Err, ErrNotRunning)
	assert.Equal(t, 1, stats.Errors())
}

func TestRetryCoordinator_ZeroAttemptsExhaustsImmediately(t *testing.T) {
	c := NewRetryCoordinator(RetryConfig{MaxAttempts: 0}, nil)
	require.NoError(t, c.Start())
	defer c.Stop()

	var hooked atomic.Int32
	c.OnExhausted(func(RetryTask, error) { hooked.Add(1) })

	adapter := NewMockAdapter()
	out := waitOutcome(t, c.Submit(RetryTask{Batch: channel.Batch{Recipients: testRecipients(2)}, Adapter: adapter}, errProviderDown))
	assert.ErrorIs(t, out.Err, ErrRetryExhausted)
	assert.Equal(t, 0, out.Retries)
	assert.Equal(t, 0, adapter.Calls())
	assert.Equal(t, int32(1), hooked.Load())
	assert.Equal(t, int64(1), c.Stats().Exhausted)
}

func TestRetryCoordinator_BackoffBetweenAttempts(t *testing.T) {
	c := NewRetryCoordinator(RetryConfig{
		MaxAttempts: 2,
		Backoff:     backoff.New(20*time.Millisecond, time.Second, false),
	}, nil)
	require.NoError(t, c.Start())
	defer c.Stop()

	adapter := NewMockAdapter()
	adapter.failAlways = true

	start := time.Now()
	out := waitOutcome(t, c.Submit(RetryTask{Batch: channel.Batch{Recipients: testRecipients(1)}, Adapter: adapter}, errProviderDown))
	elapsed := time.Since(start)

	assert.ErrorIs(t, out.Err, ErrRetryExhausted)
	assert.ErrorContains(t, out.Err, "provider down")
	assert.Equal(t, 2, out.Retries)
	assert.Equal(t, 2, adapter.Calls())
	// 20ms before the first retry, 40ms before the second.
	assert.GreaterOrEqual(t, elapsed, 60*time.Millisecond)
	assert.Equal(t, RetryStats{Scheduled: 2, Exhausted: 1}, c.Stats())
}

func TestRetryCoordinator_StopResolvesPending(t *testing.T) {
	c := NewRetryCoordinator(RetryConfig{
		MaxAttempts: 3,
		Backoff:     backoff.New(time.Hour, time.Hour, false),
	}, nil)
	require.NoError(t, c.Start())

	stats := &ExecutionStats{}
	adapter := NewMockAdapter()
	ch := c.Submit(RetryTask{Batch: channel.Batch{Recipients: testRecipients(1)}, Adapter: adapter, Stats: stats}, errProviderDown)
	assert.Equal(t, 1, c.Stats().Pending)

	c.Stop()

	out := waitOutcome(t, ch)
	assert.ErrorIs(t, out.Err, ErrNotRunning)
	assert.Equal(t, 0, adapter.Calls())
	assert.Equal(t, 1, stats.Retries())
	assert.Equal(t, 1, stats.Errors())
	assert.Equal(t, 0, c.Stats().Pending)
}
