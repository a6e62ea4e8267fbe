package events

import (
	"log"
	"sync"
)

const (
	subscriberBufSize = 64
	tapBufSize        = 256
)

// Bus is the observable event bus. The Run executor and Autobuild controller
// publish to it; the CLI's Display and any other consumer (a GUI shell, a
// test harness) tap or subscribe to it.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[Name][]chan Event
	taps        []chan Event
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{subscribers: make(map[Name][]chan Event)}
}

// Publish fans out ev to every subscriber of ev.Name and to every tap.
// Non-blocking: a full channel drops the event with a logged warning rather
// than stalling the single-worker run loop.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	subs := b.subscribers[ev.Name]
	taps := b.taps
	b.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
			log.Printf("events: subscriber channel full for %s — event dropped", ev.Name)
		}
	}
	for _, tap := range taps {
		select {
		case tap <- ev:
		default:
			log.Printf("events: tap channel full — event dropped (%s)", ev.Name)
		}
	}
}

// Subscribe returns a channel delivering only events named n.
func (b *Bus) Subscribe(n Name) <-chan Event {
	ch := make(chan Event, subscriberBufSize)
	b.mu.Lock()
	b.subscribers[n] = append(b.subscribers[n], ch)
	b.mu.Unlock()
	return ch
}

// Tap returns a channel delivering every published event, regardless of name.
func (b *Bus) Tap() <-chan Event {
	ch := make(chan Event, tapBufSize)
	b.mu.Lock()
	b.taps = append(b.taps, ch)
	b.mu.Unlock()
	return ch
}
