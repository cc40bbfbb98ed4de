package trackstate

import (
	"slices"
	"sync"
)

// EventKind identifies a room event.
type EventKind string

// Room event kinds.
const (
	RoomConnectionChanged      EventKind = "room_connection_changed"
	ParticipantConnected       EventKind = "participant_connected"
	ParticipantDisconnected    EventKind = "participant_disconnected"
	ParticipantMetadataChanged EventKind = "participant_metadata_changed"
	TrackPublished             EventKind = "track_published"
	TrackUnpublished           EventKind = "track_unpublished"
)

// Event notifies that the room changed. It carries identifiers only; the
// state is always re-read from the room.
type Event struct {
	Kind          EventKind
	ParticipantID string
	TrackSID      string
}

// Bus fans room events out to subscribers. Publish calls handlers
// synchronously on the publishing goroutine. It is safe for concurrent use.
type Bus struct {
	mu       sync.RWMutex
	handlers map[int]func(Event)
	nextID   int
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[int]func(Event))}
}

// Subscribe registers fn and returns a function removing it.
func (b *Bus) Subscribe(fn func(Event)) (cancel func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = fn
	return func() {
		b.mu.Lock()
		delete(b.handlers, id)
		b.mu.Unlock()
	}
}

// Publish delivers ev to every subscriber in subscription order.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	ids := make([]int, 0, len(b.handlers))
	for id := range b.handlers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	handlers := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, b.handlers[id])
	}
	b.mu.RUnlock()

	for _, fn := range handlers {
		fn(ev)
	}
}
