package duplex

import (
	"sync"
)

const tableShards = 16

// Pending is a request waiting for its reply. It resolves exactly once.
type Pending struct {
	id    uint64
	done  chan struct{}
	reply []byte
	err   error
}

// ID returns the correlation id.
func (p *Pending) ID() uint64 {
	return p.id
}

// Done is closed once the request is resolved.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Result returns the reply or the failure. Only valid after Done is closed.
func (p *Pending) Result() ([]byte, error) {
	return p.reply, p.err
}

type shard struct {
	mu      sync.Mutex
	pending map[uint64]*Pending
}

// Table maps correlation ids to pending requests.
//
// An entry leaves the table on the one call that resolves, fails or removes
// it. Whichever call deletes the entry owns the resolution, so a reply that
// arrives after a timeout finds nothing and is dropped.
type Table struct {
	shards [tableShards]shard
}

// NewTable returns an empty table.
func NewTable() *Table {
	t := &Table{}
	for i := range t.shards {
		t.shards[i].pending = make(map[uint64]*Pending)
	}
	return t
}

func (t *Table) shard(id uint64) *shard {
	return &t.shards[id%tableShards]
}

// Insert registers id. Ids must be unique for the table lifetime.
func (t *Table) Insert(id uint64) *Pending {
	p := &Pending{id: id, done: make(chan struct{})}
	s := t.shard(id)
	s.mu.Lock()
	s.pending[id] = p
	s.mu.Unlock()
	return p
}

func (t *Table) take(id uint64) *Pending {
	s := t.shard(id)
	s.mu.Lock()
	p, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
	}
	s.mu.Unlock()
	return p
}

// Resolve hands reply to the waiter of id and reports false for unknown ids.
func (t *Table) Resolve(id uint64, reply []byte) bool {
	p := t.take(id)
	if p == nil {
		return false
	}
	p.reply = reply
	close(p.done)
	return true
}

// Fail resolves id with err.
func (t *Table) Fail(id uint64, err error) bool {
	p := t.take(id)
	if p == nil {
		return false
	}
	p.err = err
	close(p.done)
	return true
}

// Remove drops id without waking anyone. It reports whether the entry was
// still pending, false means another call already resolved it.
func (t *Table) Remove(id uint64) bool {
	return t.take(id) != nil
}

// FailAll resolves every pending entry with err and returns how many there were.
func (t *Table) FailAll(err error) int {
	n := 0
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.Lock()
		batch := s.pending
		s.pending = make(map[uint64]*Pending)
		s.mu.Unlock()
		for _, p := range batch {
			p.err = err
			close(p.done)
			n++
		}
	}
	return n
}

// Len returns the number of pending entries.
func (t *Table) Len() int {
	n := 0
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.Lock()
		n += len(s.pending)
		s.mu.Unlock()
	}
	return n
}
