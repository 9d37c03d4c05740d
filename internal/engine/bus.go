package engine

import (
	"sync"
	"sync/atomic"

	"github.com/roach88/herdsync/internal/record"
)

// EventKind distinguishes published events.
type EventKind string

const (
	EventSyncStarted    EventKind = "sync_started"
	EventSyncFinished   EventKind = "sync_finished"
	EventPendingChanged EventKind = "pending_changed"
	EventCacheRefreshed EventKind = "cache_refreshed"
	EventRecordMutated  EventKind = "record_mutated"
)

// Event is one notification. Only the fields relevant to Kind are set.
type Event struct {
	Kind EventKind
	Seq  int64

	RunID   string
	Trigger Trigger

	// Result is set on EventSyncFinished.
	Result *Result

	// Count is the pending count for EventPendingChanged and the snapshot
	// size for EventCacheRefreshed.
	Count int

	// Key and Outcome are set on EventRecordMutated.
	Key     record.DedupKey
	LocalID int64
	Outcome Outcome
}

// Bus fans events out to subscribers. Publish never blocks: a subscriber
// whose buffer is full misses the event.
type Bus struct {
	mu      sync.Mutex
	clock   *Clock
	subs    map[int]chan Event
	nextSub int
	dropped atomic.Int64
}

// NewBus creates a bus with no subscribers.
func NewBus() *Bus {
	return &Bus{clock: NewClock(), subs: make(map[int]chan Event)}
}

// Subscribe registers a subscriber with the given channel buffer. cancel
// unregisters it and closes the channel; calling cancel again is a no-op.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.nextSub
	b.nextSub++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish stamps e with the next sequence number and delivers it.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e.Seq = b.clock.Next()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped is the number of deliveries skipped because a buffer was full.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}
