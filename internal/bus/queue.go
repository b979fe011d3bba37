package bus

import (
	"context"
	"sync/atomic"
	"time"

	"execgw/pkg/ring"

	"github.com/yanun0323/errors"
)

var (
	ErrQueueFull   = errors.New("event queue full")
	ErrQueueClosed = errors.New("event queue closed")
)

// Event is one push message handed from the connection reader to the dispatcher.
type Event struct {
	Channel  string
	Data     []byte
	RecvTime time.Time
}

// Queue is a bounded, non-blocking single-producer/single-consumer event queue.
// TryPublish must only be called from one goroutine and Run from one other.
type Queue struct {
	ring   *ring.Ring[Event]
	notify chan struct{}
	done   chan struct{}
	closed atomic.Bool
}

// NewQueue allocates a queue with the given capacity rounded up to a power of two.
func NewQueue(capacity int) *Queue {
	return &Queue{
		ring:   ring.New[Event](capacity),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// TryPublish enqueues an event without blocking.
func (q *Queue) TryPublish(e Event) error {
	if q.closed.Load() {
		return ErrQueueClosed
	}
	if !q.ring.TryPush(e) {
		return ErrQueueFull
	}
	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	return q.ring.Len()
}

// Close stops the queue from accepting new events. Run drains what is left.
func (q *Queue) Close() {
	if q.closed.CompareAndSwap(false, true) {
		close(q.done)
	}
}

// Run consumes events until the context is done or the queue is closed and drained.
func (q *Queue) Run(ctx context.Context, handler func(Event)) {
	for {
		for {
			e, ok := q.ring.TryPop()
			if !ok {
				break
			}
			handler(e)
		}

		select {
		case <-ctx.Done():
			return
		case <-q.notify:
		case <-q.done:
			for {
				e, ok := q.ring.TryPop()
				if !ok {
					return
				}
				handler(e)
			}
		}
	}
}
