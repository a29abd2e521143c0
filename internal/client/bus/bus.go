// Package bus fans inbound relay events out to the feed pagers subscribed to
// each room. Dispatch is synchronous and single-goroutine, so subscribers
// see events in arrival order; handlers must not block.
package bus

import (
	"context"
	"log/slog"
	"sync"

	"github.com/studydesk/classfeed/internal/model"
)

// Handler receives feed events for one room.
type Handler func(model.FeedEvent)

// Bus is the in-process fan-out from the connection manager to feed pagers.
type Bus struct {
	logger *slog.Logger

	mu     sync.RWMutex
	nextID int
	subs   map[model.RoomKey]map[int]Handler

	wg sync.WaitGroup
}

// New creates an empty Bus.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		logger: logger,
		subs:   make(map[model.RoomKey]map[int]Handler),
	}
}

// Subscribe registers a handler for one room's events and returns its
// unsubscribe function. Unsubscribing on disposal is mandatory: the bus never
// delivers to a removed handler, even if a dispatch is in flight when
// unsubscribe returns.
func (b *Bus) Subscribe(key model.RoomKey, fn Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID

	room, ok := b.subs[key]
	if !ok {
		room = make(map[int]Handler)
		b.subs[key] = room
	}
	room[id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if room, ok := b.subs[key]; ok {
			delete(room, id)
			if len(room) == 0 {
				delete(b.subs, key)
			}
		}
	}
}

// Publish delivers an event to every handler subscribed to its room.
func (b *Bus) Publish(ev model.FeedEvent) {
	// Handlers run under the read lock so an unsubscribe cannot race a
	// delivery; handlers are required to be non-blocking.
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, fn := range b.subs[ev.Room] {
		fn(ev)
	}
}

// Run pumps events from the connection manager until the channel closes or
// the context is canceled.
func (b *Bus) Run(ctx context.Context, events <-chan model.FeedEvent) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				b.Publish(ev)
			}
		}
	}()
}

// Wait blocks until the pump goroutine exits.
func (b *Bus) Wait() {
	b.wg.Wait()
}

// SubscriberCount returns the number of handlers for a room. Used by tests.
func (b *Bus) SubscriberCount(key model.RoomKey) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[key])
}
