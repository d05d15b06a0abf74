// Package bus is the in-process publish/subscribe fan-out of broadcast
// events to live viewers, keyed by room.
package bus

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/alfredjeanlab/agentsmith/internal/model"
)

// Handler receives events published to a room. Handlers run on the
// publisher's goroutine and must not block.
type Handler func(evt *model.Event)

type subscription struct {
	handler Handler
}

// Bus fans out broadcast events to the handlers subscribed to each room.
// Rooms with no handlers are removed from the map.
type Bus struct {
	mu     sync.RWMutex
	rooms  map[string][]*subscription
	logger *slog.Logger

	// OnPanic, when set, is called after a handler panic is recovered.
	OnPanic func(roomID string)
}

// New returns an empty bus that reports handler panics to logger.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		rooms:  make(map[string][]*subscription),
		logger: logger,
	}
}

// Subscribe registers h for events in roomID and returns a function that
// removes it. The returned function is safe to call more than once.
func (b *Bus) Subscribe(roomID string, h Handler) func() {
	sub := &subscription{handler: h}

	b.mu.Lock()
	b.rooms[roomID] = append(b.rooms[roomID], sub)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(roomID, sub) })
	}
}

func (b *Bus) unsubscribe(roomID string, sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.rooms[roomID]
	for i, s := range subs {
		if s == sub {
			subs = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(subs) == 0 {
		delete(b.rooms, roomID)
		return
	}
	b.rooms[roomID] = subs
}

// Publish delivers evt to every handler subscribed to its room, in
// registration order. Targeted events are never published.
func (b *Bus) Publish(evt *model.Event) {
	if evt.IsTargeted() {
		b.logger.Warn("bus: refusing to publish targeted event", "room_id", evt.RoomID, "event_id", evt.ID)
		return
	}

	b.mu.RLock()
	subs := b.rooms[evt.RoomID]
	b.mu.RUnlock()

	// subs is never mutated in place, so iterating the snapshot without the
	// lock is safe and lets handlers unsubscribe themselves.
	for _, sub := range subs {
		b.deliver(evt, sub.handler)
	}
}

func (b *Bus) deliver(evt *model.Event, h Handler) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("bus: handler panicked",
				"room_id", evt.RoomID,
				"event_id", evt.ID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			if b.OnPanic != nil {
				b.OnPanic(evt.RoomID)
			}
		}
	}()
	h(evt)
}

// SubscriberCount returns the number of handlers subscribed to roomID.
func (b *Bus) SubscriberCount(roomID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.rooms[roomID])
}

// RoomCount returns the number of rooms with at least one handler.
func (b *Bus) RoomCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.rooms)
}
