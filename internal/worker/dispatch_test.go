package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/events"
)

// =============================================================================
// PRIORITY DISPATCH QUEUE TESTS
// =============================================================================

func TestSplitWorkers(t *testing.T) {
	tests := []struct {
		total            int
		ratio            float64
		urgent, standard int
	}{
		{10, 0.5, 5, 5},
		{3, 0.5, 2, 1},
		{2, 0.9, 1, 1},
		{4, 0.1, 1, 3},
		{1, 0.5, 0, 0},
	}
	for _, tt := range tests {
		u, s := splitWorkers(tt.total, tt.ratio)
		assert.Equal(t, tt.urgent, u, "total=%d ratio=%v", tt.total, tt.ratio)
		assert.Equal(t, tt.standard, s, "total=%d ratio=%v", tt.total, tt.ratio)
	}
}

func TestDispatchQueue_EnqueuePositionsAndLanes(t *testing.T) {
	q := NewDispatchQueue(DispatchConfig{Workers: 2, LaneCapacity: 10}, func(context.Context, Item) {}, nil)

	pos, err := q.Enqueue(Item{CampaignID: "s1", Priority: domain.PriorityMedium})
	require.NoError(t, err)
	assert.Equal(t, 1, pos)
	pos, err = q.Enqueue(Item{CampaignID: "s2", Priority: domain.PriorityLow})
	require.NoError(t, err)
	assert.Equal(t, 2, pos)
	pos, err = q.Enqueue(Item{CampaignID: "u1", Priority: domain.PriorityCritical})
	require.NoError(t, err)
	assert.Equal(t, 1, pos)

	assert.Equal(t, map[domain.Lane]int{domain.LaneUrgent: 1, domain.LaneStandard: 2}, q.Depths())
	q.Stop()
}

func TestDispatchQueue_FullLaneBackpressure(t *testing.T) {
	q := NewDispatchQueue(DispatchConfig{Workers: 2, LaneCapacity: 2}, func(context.Context, Item) {}, nil)
	defer q.Stop()

	for i := 0; i < 2; i++ {
		_, err := q.Enqueue(Item{CampaignID: "s", Priority: domain.PriorityLow})
		require.NoError(t, err)
	}
	_, err := q.Enqueue(Item{CampaignID: "s3", Priority: domain.PriorityLow})
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.True(t, q.backpressure[domain.LaneStandard].IsPaused())

	// Urgent lane is unaffected.
	_, err = q.Enqueue(Item{CampaignID: "u1", Priority: domain.PriorityHigh})
	assert.NoError(t, err)

	// Draining one item is not enough to reopen the lane.
	<-q.lanes[domain.LaneStandard]
	_, err = q.Enqueue(Item{CampaignID: "s4", Priority: domain.PriorityLow})
	assert.ErrorIs(t, err, ErrQueueFull)

	<-q.lanes[domain.LaneStandard]
	_, err = q.Enqueue(Item{CampaignID: "s5", Priority: domain.PriorityLow})
	assert.NoError(t, err)
	assert.Equal(t, int64(2), q.Stats().Rejected)
}

func TestDispatchQueue_UrgentNotStarvedByStandardBacklog(t *testing.T) {
	release := make(chan struct{})
	urgentRan := make(chan string, 1)

	handler := func(_ context.Context, item Item) {
		if item.Priority.IsUrgent() {
			urgentRan <- item.CampaignID
			return
		}
		<-release
	}
	q := NewDispatchQueue(DispatchConfig{Workers: 2, UrgentRatio: 0.5, LaneCapacity: 100}, handler, nil)
	require.NoError(t, q.Start())
	defer q.Stop()
	defer close(release)

	for i := 0; i < 50; i++ {
		_, err := q.Enqueue(Item{CampaignID: "standard", Priority: domain.PriorityLow})
		require.NoError(t, err)
	}
	_, err := q.Enqueue(Item{CampaignID: "urgent", Priority: domain.PriorityCritical})
	require.NoError(t, err)

	select {
	case id := <-urgentRan:
		assert.Equal(t, "urgent", id)
	case <-time.After(time.Second):
		t.Fatal("urgent campaign blocked behind standard backlog")
	}
	assert.Greater(t, q.Depths()[domain.LaneStandard], 40)
}

func TestDispatchQueue_SharedWorkerPrefersUrgent(t *testing.T) {
	var (
		mu    sync.Mutex
		order []string
		done  = make(chan struct{})
	)
	handler := func(_ context.Context, item Item) {
		mu.Lock()
		order = append(order, item.CampaignID)
		n := len(order)
		mu.Unlock()
		if n == 4 {
			close(done)
		}
	}
	q := NewDispatchQueue(DispatchConfig{Workers: 1, LaneCapacity: 10}, handler, nil)

	for _, id := range []string{"s1", "s2", "s3"} {
		_, err := q.Enqueue(Item{CampaignID: id, Priority: domain.PriorityMedium})
		require.NoError(t, err)
	}
	_, err := q.Enqueue(Item{CampaignID: "u1", Priority: domain.PriorityHigh})
	require.NoError(t, err)

	require.NoError(t, q.Start())
	defer q.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("queue not drained")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"u1", "s1", "s2", "s3"}, order)
}

func TestDispatchQueue_StopWaitsForInFlight(t *testing.T) {
	started := make(chan struct{})
	var finished bool
	var ctxErr error
	handler := func(ctx context.Context, _ Item) {
		close(started)
		time.Sleep(50 * time.Millisecond)
		ctxErr = ctx.Err()
		finished = true
	}
	q := NewDispatchQueue(DispatchConfig{Workers: 2, LaneCapacity: 10}, handler, nil)
	require.NoError(t, q.Start())

	_, err := q.Enqueue(Item{CampaignID: "c-1", Priority: domain.PriorityHigh})
	require.NoError(t, err)
	<-started

	q.Stop()
	assert.True(t, finished)
	assert.NoError(t, ctxErr, "in-flight execution is not cancelled")

	_, err = q.Enqueue(Item{CampaignID: "c-2", Priority: domain.PriorityHigh})
	assert.ErrorIs(t, err, ErrNotRunning)
	assert.ErrorIs(t, q.Start(), ErrNotRunning)
}

func TestDispatchQueue_HandlerPanicKeepsWorkerAlive(t *testing.T) {
	ran := make(chan string, 2)
	handler := func(_ context.Context, item Item) {
		ran <- item.CampaignID
		if item.CampaignID == "bad" {
			panic("boom")
		}
	}
	q := NewDispatchQueue(DispatchConfig{Workers: 1, LaneCapacity: 10}, handler, nil)
	require.NoError(t, q.Start())
	defer q.Stop()

	_, _ = q.Enqueue(Item{CampaignID: "bad", Priority: domain.PriorityLow})
	_, _ = q.Enqueue(Item{CampaignID: "good", Priority: domain.PriorityLow})

	for _, want := range []string{"bad", "good"} {
		select {
		case got := <-ran:
			assert.Equal(t, want, got)
		case <-time.After(time.Second):
			t.Fatalf("%s not dispatched", want)
		}
	}
}

func TestDispatchQueue_PublishesDepth(t *testing.T) {
	bus := events.NewBus()
	var last events.QueueDepthChangedEvent
	events.On(bus, func(_ context.Context, e events.QueueDepthChangedEvent) { last = e })

	q := NewDispatchQueue(DispatchConfig{Workers: 2, LaneCapacity: 10}, func(context.Context, Item) {}, bus)
	_, err := q.Enqueue(Item{CampaignID: "u", Priority: domain.PriorityCritical})
	require.NoError(t, err)
	_, err = q.Enqueue(Item{CampaignID: "s", Priority: domain.PriorityLow})
	require.NoError(t, err)

	assert.Equal(t, events.QueueDepthChangedEvent{Urgent: 1, Standard: 1}, last)
	q.Stop()
}
