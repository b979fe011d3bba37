package slotpool

import (
	"sync/atomic"
)

const (
	stateFree uint32 = iota
	stateAllocated
)

// Handle identifies an allocated slot. The zero Handle is never valid.
//
// The upper 32 bits carry the slot generation, the lower 32 bits carry the
// slot index plus one. A handle stops resolving once its slot is released.
type Handle uint64

func newHandle(idx uint32, gen uint32) Handle {
	return Handle(uint64(gen)<<32 | uint64(idx+1))
}

func (h Handle) index() (uint32, bool) {
	low := uint32(h)
	if low == 0 {
		return 0, false
	}
	return low - 1, true
}

func (h Handle) generation() uint32 {
	return uint32(h >> 32)
}

// Valid reports whether h was produced by Allocate.
func (h Handle) Valid() bool {
	return uint32(h) != 0
}

type slot[T any] struct {
	value T
	state atomic.Uint32
	gen   atomic.Uint32
	// next holds the index+1 of the following free slot, 0 terminates.
	next atomic.Uint32
}

// Pool is a fixed-capacity arena of T with a lock-free free list.
//
// The free-list head packs a 32-bit tag next to the top index so a pop that
// raced with a pop+push of the same slot fails its CAS instead of linking a
// stale successor.
type Pool[T any] struct {
	head      atomic.Uint64
	_         [56]byte
	available atomic.Int64
	_         [56]byte

	slots []slot[T]
	reset func(*T)
}

// New allocates capacity slots. reset, when not nil, runs on every release
// before the slot returns to the free list.
func New[T any](capacity int, reset func(*T)) *Pool[T] {
	if capacity <= 0 {
		capacity = 1
	}
	p := &Pool[T]{
		slots: make([]slot[T], capacity),
		reset: reset,
	}
	for i := range p.slots {
		p.slots[i].next.Store(uint32(i + 2))
	}
	p.slots[capacity-1].next.Store(0)
	p.head.Store(1)
	p.available.Store(int64(capacity))
	return p
}

// Allocate takes a free slot. It returns false when the pool is exhausted.
func (p *Pool[T]) Allocate() (Handle, *T, bool) {
	for {
		old := p.head.Load()
		top := uint32(old)
		if top == 0 {
			return 0, nil, false
		}
		s := &p.slots[top-1]
		next := s.next.Load()
		tag := old>>32 + 1
		if !p.head.CompareAndSwap(old, tag<<32|uint64(next)) {
			continue
		}
		s.state.Store(stateAllocated)
		p.available.Add(-1)
		return newHandle(top-1, s.gen.Load()), &s.value, true
	}
}

// Get resolves h to its value while the slot is still allocated to h.
func (p *Pool[T]) Get(h Handle) (*T, bool) {
	s, ok := p.slot(h)
	if !ok || s.state.Load() != stateAllocated {
		return nil, false
	}
	return &s.value, true
}

// Release returns the slot behind h to the pool.
// Releasing a stale or already released handle is a no-op that reports false.
func (p *Pool[T]) Release(h Handle) bool {
	s, ok := p.slot(h)
	if !ok {
		return false
	}
	if !s.state.CompareAndSwap(stateAllocated, stateFree) {
		return false
	}
	if p.reset != nil {
		p.reset(&s.value)
	}
	s.gen.Add(1)

	idx, _ := h.index()
	for {
		old := p.head.Load()
		s.next.Store(uint32(old))
		tag := old>>32 + 1
		if p.head.CompareAndSwap(old, tag<<32|uint64(idx+1)) {
			break
		}
	}
	p.available.Add(1)
	return true
}

// Available returns the number of free slots.
func (p *Pool[T]) Available() int {
	return int(p.available.Load())
}

// Cap returns the pool capacity.
func (p *Pool[T]) Cap() int {
	return len(p.slots)
}

func (p *Pool[T]) slot(h Handle) (*slot[T], bool) {
	idx, ok := h.index()
	if !ok || int(idx) >= len(p.slots) {
		return nil, false
	}
	s := &p.slots[idx]
	if s.gen.Load() != h.generation() {
		return nil, false
	}
	return s, true
}
