package hyperliquid

import (
	"sync/atomic"
	"time"
)

// Nonce issues millisecond nonces that strictly increase across goroutines.
type Nonce struct {
	last atomic.Uint64
	now  func() time.Time
}

// NewNonce returns a nonce source driven by the wall clock.
func NewNonce() *Nonce {
	return &Nonce{now: time.Now}
}

// Next returns max(now in ms, last+1).
func (n *Nonce) Next() uint64 {
	for {
		now := uint64(n.now().UnixMilli())
		last := n.last.Load()
		next := max(now, last+1)
		if n.last.CompareAndSwap(last, next) {
			return next
		}
	}
}

// FastForward moves the nonce to at least ms, used after the venue rejects a stale nonce.
func (n *Nonce) FastForward(ms uint64) {
	for {
		last := n.last.Load()
		if last >= ms || n.last.CompareAndSwap(last, ms) {
			return
		}
	}
}
