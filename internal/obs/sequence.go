package obs

import "sync/atomic"

// Sequence hands out monotonically increasing ids starting after seed.
// Ids are never reused for the lifetime of the instance.
type Sequence struct {
	next atomic.Uint64
}

// NewSequence returns a sequence whose first id is seed+1.
func NewSequence(seed uint64) *Sequence {
	s := &Sequence{}
	s.next.Store(seed)
	return s
}

// Next returns the next id.
func (s *Sequence) Next() uint64 {
	return s.next.Add(1)
}

// Current returns the last id handed out.
func (s *Sequence) Current() uint64 {
	return s.next.Load()
}
