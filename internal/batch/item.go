package batch

import (
	"sync/atomic"
	"time"

	"execgw/internal/adapter"
	"execgw/pkg/slotpool"
)

// item is one queued order and its completion handle. The submitter and
// the coordinator each hold a reference, the last one out returns the slot.
type item struct {
	order    Order
	done     chan adapter.Outcome
	refs     atomic.Int32
	state    atomic.Uint32
	queuedAt time.Time
	handle   slotpool.Handle
	pooled   bool
}

func resetItem(it *item) {
	done := it.done
	if done != nil {
		select {
		case <-done:
		default:
		}
	}
	*it = item{done: done}
}

const (
	itemQueued uint32 = iota
	itemSent
	itemAbandoned
)

// claim marks the item as sent. It fails when the submitter already gave up.
func (it *item) claim() bool {
	return it.state.CompareAndSwap(itemQueued, itemSent)
}

// abandon withdraws a queued item and reports whether it was already sent.
func (it *item) abandon() (sent bool) {
	return !it.state.CompareAndSwap(itemQueued, itemAbandoned)
}

type itemPool struct {
	pool *slotpool.Pool[item]
}

func newItemPool(capacity int) *itemPool {
	return &itemPool{pool: slotpool.New[item](capacity, resetItem)}
}

// get allocates from the arena and falls back to the heap when it is exhausted.
func (p *itemPool) get(o Order, now time.Time) *item {
	h, it, ok := p.pool.Allocate()
	if !ok {
		it = &item{}
	} else {
		it.handle = h
		it.pooled = true
	}
	if it.done == nil {
		it.done = make(chan adapter.Outcome, 1)
	}
	it.order = o
	it.queuedAt = now
	it.refs.Store(2)
	return it
}

func (p *itemPool) put(it *item) {
	if it.refs.Add(-1) != 0 {
		return
	}
	if it.pooled {
		p.pool.Release(it.handle)
	}
}

// deliver hands the outcome to the submitter. Only the first call wins.
func deliver(it *item, o adapter.Outcome) {
	select {
	case it.done <- o:
	default:
	}
}
