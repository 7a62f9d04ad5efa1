package events

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// DefaultSubscriberBuffer is the channel size given to each subscriber.
const DefaultSubscriberBuffer = 64

type subscriber struct {
	id        uint64
	eventType EventType
	ch        chan Envelope
}

// Bus fans events out to in-process subscribers. Broadcast never blocks: a
// subscriber whose buffer is full misses the event and the drop is counted.
type Bus struct {
	mu      sync.RWMutex
	nextID  uint64
	subs    map[uint64]*subscriber
	buffer  int
	dropped atomic.Uint64
}

// NewBus creates a bus whose subscribers get buffer slots each
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	return &Bus{
		subs:   make(map[uint64]*subscriber),
		buffer: buffer,
	}
}

// Subscribe registers for one event type, or for every type when eventType
// is empty. The returned func unsubscribes and closes the channel.
func (b *Bus) Subscribe(eventType EventType) (<-chan Envelope, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &subscriber{
		id:        b.nextID,
		eventType: eventType,
		ch:        make(chan Envelope, b.buffer),
	}
	b.subs[sub.id] = sub

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, sub.id)
			close(sub.ch)
		})
	}
}

// Broadcast delivers env to every matching subscriber.
func (b *Bus) Broadcast(env Envelope) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		if sub.eventType != "" && sub.eventType != env.Type {
			continue
		}
		select {
		case sub.ch <- env:
		default:
			b.dropped.Add(1)
			log.Debug().
				Str("room_id", env.RoomID).
				Str("event_type", string(env.Type)).
				Msg("subscriber buffer full, dropping event")
		}
	}
}

// Dropped returns how many deliveries were skipped because a subscriber was full.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}
