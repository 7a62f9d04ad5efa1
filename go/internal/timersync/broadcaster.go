package timersync

import "github.com/mcdev12/focusroom/go/internal/events"

// Broadcaster delivers an event to every client of the envelope's room.
// Implementations must not block; delivery is fire-and-forget.
type Broadcaster interface {
	Broadcast(env events.Envelope)
}

// MultiBroadcaster fans one envelope out to several broadcasters in order.
type MultiBroadcaster []Broadcaster

func (m MultiBroadcaster) Broadcast(env events.Envelope) {
	for _, b := range m {
		if b != nil {
			b.Broadcast(env)
		}
	}
}

// BroadcasterFunc adapts a function to Broadcaster.
type BroadcasterFunc func(env events.Envelope)

func (f BroadcasterFunc) Broadcast(env events.Envelope) { f(env) }
