package bus

import (
	"context"
	"errors"
	"sync/atomic"

	"main/internal/schema"
)

var (
	ErrQueueFull   = errors.New("event queue full")
	ErrQueueClosed = errors.New("event queue closed")
)

// Queue is the lossless channel class. Publish blocks when the queue is
// full, pushing backpressure onto the producer.
type Queue struct {
	ch     chan schema.RuntimeEvent
	closed uint32
}

// NewQueue allocates a lossless queue with the given capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{ch: make(chan schema.RuntimeEvent, capacity)}
}

// Publish enqueues an event, blocking while the queue is full.
func (q *Queue) Publish(ctx context.Context, e schema.RuntimeEvent) error {
	if atomic.LoadUint32(&q.closed) != 0 {
		return ErrQueueClosed
	}
	select {
	case q.ch <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryPublish enqueues an event without blocking.
func (q *Queue) TryPublish(e schema.RuntimeEvent) error {
	if atomic.LoadUint32(&q.closed) != 0 {
		return ErrQueueClosed
	}
	select {
	case q.ch <- e:
		return nil
	default:
		return ErrQueueFull
	}
}

// Len returns the number of buffered events.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close stops the queue from accepting new events. Buffered events remain
// readable until drained.
func (q *Queue) Close() {
	if atomic.CompareAndSwapUint32(&q.closed, 0, 1) {
		close(q.ch)
	}
}

// Run consumes events until the context is done or the queue is closed
// and drained.
func (q *Queue) Run(ctx context.Context, handler func(schema.RuntimeEvent)) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-q.ch:
			if !ok {
				return
			}
			handler(e)
		}
	}
}

// Drain consumes remaining buffered events without waiting for more.
func (q *Queue) Drain(handler func(schema.RuntimeEvent)) {
	for {
		select {
		case e, ok := <-q.ch:
			if !ok {
				return
			}
			handler(e)
		default:
			return
		}
	}
}
