package bus

import (
	"sync"
	"sync/atomic"

	"main/internal/schema"
)

// Ring is the lossy drop-oldest channel class used for telemetry. A
// publisher never blocks: when a subscriber's buffer is full, the oldest
// undelivered event is discarded and the subscriber's drop counter is
// incremented.
type Ring struct {
	capacity int

	mu     sync.Mutex
	subs   map[uint64]*RingSub
	nextID uint64
	closed bool
}

// RingSub is one telemetry subscription.
type RingSub struct {
	ch      chan schema.RuntimeEvent
	dropped uint64
	id      uint64
	ring    *Ring
}

// NewRing allocates a lossy ring with the given per-subscriber capacity.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring{
		capacity: capacity,
		subs:     make(map[uint64]*RingSub),
	}
}

// Subscribe registers a new telemetry consumer.
func (r *Ring) Subscribe() *RingSub {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	sub := &RingSub{
		ch:   make(chan schema.RuntimeEvent, r.capacity),
		id:   r.nextID,
		ring: r,
	}
	if r.closed {
		close(sub.ch)
		return sub
	}
	r.subs[sub.id] = sub
	return sub
}

// Publish delivers an event to every subscriber, dropping the oldest
// buffered event of any subscriber that is full. Never blocks.
func (r *Ring) Publish(e schema.RuntimeEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	for _, sub := range r.subs {
		for {
			select {
			case sub.ch <- e:
			default:
				select {
				case <-sub.ch:
					atomic.AddUint64(&sub.dropped, 1)
				default:
				}
				continue
			}
			break
		}
	}
}

// Close closes every subscription channel.
func (r *Ring) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for id, sub := range r.subs {
		close(sub.ch)
		delete(r.subs, id)
	}
}

// C returns the subscriber's receive channel.
func (s *RingSub) C() <-chan schema.RuntimeEvent {
	return s.ch
}

// Seed enqueues an event for this subscriber only, dropping the oldest
// buffered event when full. Used for the hello event on subscribe.
func (s *RingSub) Seed(e schema.RuntimeEvent) {
	s.ring.mu.Lock()
	defer s.ring.mu.Unlock()
	if _, ok := s.ring.subs[s.id]; !ok {
		return
	}
	for {
		select {
		case s.ch <- e:
			return
		default:
			select {
			case <-s.ch:
				atomic.AddUint64(&s.dropped, 1)
			default:
			}
		}
	}
}

// Dropped returns how many events were discarded for this subscriber.
func (s *RingSub) Dropped() uint64 {
	return atomic.LoadUint64(&s.dropped)
}

// Cancel removes the subscription from its ring.
func (s *RingSub) Cancel() {
	r := s.ring
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[s.id]; ok {
		delete(r.subs, s.id)
		close(s.ch)
	}
}
