package events

import (
	"sync"

	"github.com/pulsoweb/pulso-gateway/internal/record"
)

// Envelope is the ephemeral live-dashboard message: the logical collection
// the record landed in plus the stored payload. Envelopes are never
// persisted and never replayed to late joiners.
type Envelope struct {
	Type string          `json:"type"`
	Data record.Document `json:"data"`
}

const subscriberBuffer = 64

// Subscription is a live dashboard listener. C delivers envelopes in publish
// order until Unsubscribe closes it.
type Subscription struct {
	id uint64
	C  chan Envelope
}

// Bus fans envelopes out to all current subscribers. Delivery is
// fire-and-forget: a subscriber whose buffer is full misses the envelope,
// and publishing with no subscribers is a no-op.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]*Subscription
}

func NewBus() *Bus {
	return &Bus{subs: make(map[uint64]*Subscription)}
}

func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	sub := &Subscription{id: b.nextID, C: make(chan Envelope, subscriberBuffer)}
	b.subs[sub.id] = sub
	return sub
}

func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub.id]; !ok {
		return
	}
	delete(b.subs, sub.id)
	close(sub.C)
}

func (b *Bus) Publish(ev Envelope) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		select {
		case sub.C <- ev:
		default:
			// Slow subscriber: drop rather than block the writer.
		}
	}
}

// Len reports the number of active subscribers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
