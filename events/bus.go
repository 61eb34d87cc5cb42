package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/eth2030/stakepool/core/types"
)

// Event is a message published on the event bus. Source is the account
// address of the pool or factory that emitted it.
type Event struct {
	Type      EventType
	Source    types.Address
	Data      interface{}
	Timestamp time.Time
}

// Subscription represents a subscription to one or more event types
// on the Bus.
type Subscription struct {
	id     uint64
	types  map[EventType]struct{}
	all    bool
	ch     chan Event
	bus    *Bus
	closed atomic.Bool
}

// Chan returns a read-only channel that receives events matching the
// subscription's event types.
func (s *Subscription) Chan() <-chan Event {
	return s.ch
}

// Unsubscribe removes this subscription from the event bus and closes
// the underlying channel. It is safe to call multiple times.
func (s *Subscription) Unsubscribe() {
	if s.bus != nil {
		s.bus.Unsubscribe(s)
	}
}

// Bus provides a publish/subscribe mechanism for the externally observable
// events of pools and the factory. All methods are safe for concurrent use.
type Bus struct {
	mu         sync.RWMutex
	subs       map[uint64]*Subscription
	nextID     uint64
	bufferSize int
	closed     bool
}

// NewBus creates a new Bus. bufferSize controls the channel buffer for
// each subscription; use 0 for unbuffered channels.
func NewBus(bufferSize int) *Bus {
	if bufferSize < 0 {
		bufferSize = 0
	}
	return &Bus{
		subs:       make(map[uint64]*Subscription),
		bufferSize: bufferSize,
	}
}

// Subscribe creates a subscription that receives events of the given types.
// With no types, the subscription receives every event.
func (b *Bus) Subscribe(eventTypes ...EventType) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		sub := &Subscription{
			ch:    make(chan Event),
			types: make(map[EventType]struct{}),
		}
		sub.closed.Store(true)
		close(sub.ch)
		return sub
	}

	b.nextID++
	id := b.nextID

	typeSet := make(map[EventType]struct{}, len(eventTypes))
	for _, t := range eventTypes {
		typeSet[t] = struct{}{}
	}

	sub := &Subscription{
		id:    id,
		types: typeSet,
		all:   len(eventTypes) == 0,
		ch:    make(chan Event, b.bufferSize),
		bus:   b,
	}
	b.subs[id] = sub
	return sub
}

// Unsubscribe removes the given subscription from the bus and closes
// its channel. Safe to call multiple times or with nil.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	// Atomic bool ensures the channel is closed exactly once, even
	// under concurrent calls.
	if !sub.closed.CompareAndSwap(false, true) {
		return
	}

	b.mu.Lock()
	delete(b.subs, sub.id)
	b.mu.Unlock()

	close(sub.ch)
}

// Publish sends an event to all matching subscribers without blocking.
// If a subscriber's channel is full, the event is dropped for that
// subscriber.
func (b *Bus) Publish(eventType EventType, source types.Address, data interface{}) {
	event := Event{
		Type:      eventType,
		Source:    source,
		Data:      data,
		Timestamp: time.Now(),
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, sub := range b.subs {
		if sub.closed.Load() {
			continue
		}
		if _, ok := sub.types[eventType]; !ok && !sub.all {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			// Drop event for this subscriber (channel full).
		}
	}
}

// SubscriberCount returns the number of active subscriptions for the
// given event type.
func (b *Bus) SubscriberCount(eventType EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for _, sub := range b.subs {
		if sub.closed.Load() {
			continue
		}
		if _, ok := sub.types[eventType]; ok || sub.all {
			n++
		}
	}
	return n
}

// Close shuts down the bus, closing all subscription channels. Subsequent
// publishes are no-ops.
func (b *Bus) Close() {
	b.mu.Lock()
	subs := make([]*Subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		subs = append(subs, sub)
	}
	b.subs = make(map[uint64]*Subscription)
	b.closed = true
	b.mu.Unlock()

	for _, sub := range subs {
		if sub.closed.CompareAndSwap(false, true) {
			close(sub.ch)
		}
	}
}
