// Package events implements the broadcast bus that carries lifecycle events
// from the command processor to WebSocket subscribers.
//
// Every subscriber owns a fixed-capacity ring buffer. Publish copies the
// event into each buffer without blocking; a full buffer drops its oldest
// entry and the subscriber learns how many it missed from a *LagError on its
// next Recv. A subscription only sees events published after Subscribe
// returned.
package events

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/marmos91/atlasfs/pkg/metrics"
)

// DefaultCapacity is the per-subscriber buffer size used when none is given.
const DefaultCapacity = 10

// ErrClosed is returned by Recv once the bus or the subscription is closed
// and no buffered events remain.
var ErrClosed = errors.New("events: bus closed")

// LagError reports that a subscriber fell behind and lost events.
// Receiving continues normally after it is returned.
type LagError struct {
	Missed uint64
}

func (e *LagError) Error() string {
	return fmt.Sprintf("events: subscriber lagged, %d event(s) missed", e.Missed)
}

// Bus fans events out to every current subscriber.
//
// Thread Safety: Safe for concurrent use. Publish never blocks on a
// subscriber.
type Bus struct {
	mu       sync.RWMutex
	capacity int
	subs     map[uuid.UUID]*Subscription
	closed   bool
	metrics  metrics.EventMetrics
}

// NewBus creates a bus whose subscribers buffer up to capacity events.
// capacity <= 0 selects DefaultCapacity; a nil m disables metrics.
func NewBus(capacity int, m metrics.EventMetrics) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if m == nil {
		m = metrics.NewNoopEventMetrics()
	}
	return &Bus{
		capacity: capacity,
		subs:     make(map[uuid.UUID]*Subscription),
		metrics:  m,
	}
}

// Capacity returns the per-subscriber buffer size.
func (b *Bus) Capacity() int {
	return b.capacity
}

// Publish delivers event to every current subscriber and returns how many
// received it. Zero subscribers is not an error. Publishing on a closed bus
// is a no-op.
func (b *Bus) Publish(event string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return 0
	}

	for _, sub := range b.subs {
		if dropped := sub.push(event); dropped {
			b.metrics.RecordDropped(1)
		}
	}

	n := len(b.subs)
	b.metrics.RecordPublished(n)
	return n
}

// Subscribe registers a new subscriber. On a closed bus the returned
// subscription is already closed.
func (b *Bus) Subscribe() *Subscription {
	sub := &Subscription{
		ID:     uuid.New(),
		bus:    b,
		buf:    make([]string, b.capacity),
		notify: make(chan struct{}, 1),
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		sub.closed = true
		return sub
	}
	b.subs[sub.ID] = sub
	b.metrics.SetSubscribers(len(b.subs))
	return sub
}

// SubscriberCount returns the number of active subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes every subscription. Buffered events can still be drained.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		sub.markClosed()
		delete(b.subs, id)
	}
	b.metrics.SetSubscribers(0)
}

func (b *Bus) remove(id uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[id]; ok {
		delete(b.subs, id)
		b.metrics.SetSubscribers(len(b.subs))
	}
}
