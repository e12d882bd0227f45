// Package events is the engine's typed publish/subscribe bus. Lifecycle,
// batch and capacity events are published here; the metrics aggregator and
// external observers subscribe.
package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/ignite/campaign-engine/internal/pkg/logger"
)

// Handler receives an event. Handlers run on the publisher's goroutine and
// must be safe for concurrent use; a slow handler slows its publisher.
type Handler func(ctx context.Context, e Event)

type subscription struct {
	id      uint64
	handler Handler
}

// Bus dispatches events to the handlers subscribed to their name.
type Bus struct {
	mu     sync.RWMutex
	subs   map[Name][]subscription
	nextID uint64
	log    *logger.Logger
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[Name][]subscription),
		log:  logger.With("component", "events"),
	}
}

// Subscribe registers h for events named name. The returned function removes
// the subscription.
func (b *Bus) Subscribe(name Name, h Handler) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[name] = append(b.subs[name], subscription{id: id, handler: h})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[name]
		for i, s := range subs {
			if s.id == id {
				b.subs[name] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers e to every current subscriber of its name. A panicking
// handler is logged and does not affect other handlers or the publisher.
func (b *Bus) Publish(ctx context.Context, e Event) {
	if b == nil {
		return
	}
	name := e.EventName()

	b.mu.RLock()
	subs := append([]subscription(nil), b.subs[name]...)
	b.mu.RUnlock()

	for _, s := range subs {
		b.dispatch(ctx, name, s.handler, e)
	}
}

func (b *Bus) dispatch(ctx context.Context, name Name, h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event handler panicked", "event", string(name), "panic", fmt.Sprint(r))
		}
	}()
	h(ctx, e)
}

// On subscribes a handler typed on a concrete event payload.
//
//	events.On(bus, func(ctx context.Context, e events.BatchProcessedEvent) { ... })
func On[T Event](b *Bus, h func(ctx context.Context, e T)) (unsubscribe func()) {
	var zero T
	return b.Subscribe(zero.EventName(), func(ctx context.Context, e Event) {
		if typed, ok := e.(T); ok {
			h(ctx, typed)
		}
	})
}
