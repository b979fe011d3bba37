package ring

import (
	"math/bits"
	"sync/atomic"
)

const cacheLine = 64

// Ring is a bounded single-producer/single-consumer queue.
//
// TryPush may only be called from one goroutine and TryPop from one other
// goroutine. Neither call blocks, locks or allocates.
type Ring[T any] struct {
	// tail is written by the producer only.
	tail uint64
	_    [cacheLine - 8]byte
	// head is written by the consumer only.
	head uint64
	_    [cacheLine - 8]byte

	buf  []T
	mask uint64
}

// New allocates a ring whose capacity is size rounded up to a power of two.
func New[T any](size int) *Ring[T] {
	if size < 2 {
		size = 2
	}
	capacity := uint64(1) << bits.Len64(uint64(size-1))
	return &Ring[T]{
		buf:  make([]T, capacity),
		mask: capacity - 1,
	}
}

// TryPush appends item and reports false when the ring is full.
func (r *Ring[T]) TryPush(item T) bool {
	t := r.tail
	h := atomic.LoadUint64(&r.head)
	if t-h == uint64(len(r.buf)) {
		return false
	}
	r.buf[t&r.mask] = item
	// publish the slot to the consumer
	atomic.StoreUint64(&r.tail, t+1)
	return true
}

// TryPop removes the oldest item. The second result is false when empty.
func (r *Ring[T]) TryPop() (T, bool) {
	var zero T
	h := r.head
	t := atomic.LoadUint64(&r.tail)
	if h == t {
		return zero, false
	}
	idx := h & r.mask
	item := r.buf[idx]
	r.buf[idx] = zero
	atomic.StoreUint64(&r.head, h+1)
	return item, true
}

// Len returns the number of queued items. The value is a snapshot.
func (r *Ring[T]) Len() int {
	t := atomic.LoadUint64(&r.tail)
	h := atomic.LoadUint64(&r.head)
	return int(t - h)
}

// Cap returns the ring capacity.
func (r *Ring[T]) Cap() int {
	return len(r.buf)
}

// IsEmpty reports whether the ring holds no items.
func (r *Ring[T]) IsEmpty() bool {
	return atomic.LoadUint64(&r.tail) == atomic.LoadUint64(&r.head)
}
