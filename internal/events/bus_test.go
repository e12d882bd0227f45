package events

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesTypedSubscriber(t *testing.T) {
	bus := NewBus()
	var got []BatchProcessedEvent
	On(bus, func(_ context.Context, e BatchProcessedEvent) {
		got = append(got, e)
	})

	bus.Publish(context.Background(), BatchProcessedEvent{CampaignID: "c-1", Platform: "email", BatchSize: 100, Successful: 99, Failed: 1})
	bus.Publish(context.Background(), QueueDepthChangedEvent{Urgent: 1})

	require.Len(t, got, 1)
	assert.Equal(t, "email", got[0].Platform)
	assert.Equal(t, 99, got[0].Successful)
}

func TestUnsubscribe(t *testing.T) {
	bus := NewBus()
	var calls int
	stop := bus.Subscribe(CapacityWarning, func(context.Context, Event) { calls++ })

	bus.Publish(context.Background(), CapacityWarningEvent{Utilization: 0.9})
	stop()
	bus.Publish(context.Background(), CapacityWarningEvent{Utilization: 0.9})

	assert.Equal(t, 1, calls)
}

func TestPanickingHandlerIsIsolated(t *testing.T) {
	bus := NewBus()
	var reached bool
	bus.Subscribe(CampaignCreated, func(context.Context, Event) { panic("boom") })
	bus.Subscribe(CampaignCreated, func(context.Context, Event) { reached = true })

	assert.NotPanics(t, func() {
		bus.Publish(context.Background(), CampaignCreatedEvent{CampaignID: "c-1"})
	})
	assert.True(t, reached)
}

func TestConcurrentPublish(t *testing.T) {
	bus := NewBus()
	var n atomic.Int64
	On(bus, func(_ context.Context, e BatchProcessedEvent) { n.Add(int64(e.Successful)) })

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Publish(context.Background(), BatchProcessedEvent{Successful: 2})
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(100), n.Load())
}

func TestNilBusPublishIsNoop(t *testing.T) {
	var bus *Bus
	assert.NotPanics(t, func() {
		bus.Publish(context.Background(), QueueDepthChangedEvent{})
	})
}
