package obs

import (
	"sync/atomic"
	"time"

	"execgw/internal/adapter"
)

const maxOutcomeCode = int(adapter.OutcomeNotFound)

// Metrics collects lightweight counters and latency stats.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	outcomes           [maxOutcomeCode + 1]uint64
	posts              uint64
	postTimeouts       uint64
	lateReplies        uint64
	pushDropped        uint64
	batchesSent        uint64
	batchItems         uint64
	rateLimited        uint64
	invalidTransitions uint64
	duplicateFills     uint64
	reconnects         uint64
	fallbackSends      uint64

	postLatency  LatencyStats
	flushLatency LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	Outcomes           map[adapter.OutcomeCode]uint64
	Posts              uint64
	PostTimeouts       uint64
	LateReplies        uint64
	PushDropped        uint64
	BatchesSent        uint64
	BatchItems         uint64
	RateLimited        uint64
	InvalidTransitions uint64
	DuplicateFills     uint64
	Reconnects         uint64
	FallbackSends      uint64
	PostLatency        LatencySnapshot
	FlushLatency       LatencySnapshot
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// ObserveOutcome counts a resolved submission by outcome code.
func (m *Metrics) ObserveOutcome(o adapter.Outcome) {
	if m == nil {
		return
	}
	idx := int(o.Code)
	if idx >= 0 && idx < len(m.outcomes) {
		atomic.AddUint64(&m.outcomes[idx], 1)
	}
	if o.Code == adapter.OutcomeRateLimited {
		atomic.AddUint64(&m.rateLimited, 1)
	}
}

// ObservePost records a correlated request round trip.
func (m *Metrics) ObservePost(d time.Duration, timedOut bool) {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.posts, 1)
	if timedOut {
		atomic.AddUint64(&m.postTimeouts, 1)
		return
	}
	m.postLatency.Observe(d)
}

// ObserveBatch records one flushed batch of n items.
func (m *Metrics) ObserveBatch(n int, d time.Duration) {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.batchesSent, 1)
	atomic.AddUint64(&m.batchItems, uint64(n))
	m.flushLatency.Observe(d)
}

// IncLateReply records a reply whose request id was no longer pending.
func (m *Metrics) IncLateReply() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.lateReplies, 1)
}

// IncPushDropped records a push message dropped on a full dispatch queue.
func (m *Metrics) IncPushDropped() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.pushDropped, 1)
}

// IncInvalidTransition records a rejected backward state update.
func (m *Metrics) IncInvalidTransition() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.invalidTransitions, 1)
}

// IncDuplicateFill records a redelivered fill.
func (m *Metrics) IncDuplicateFill() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.duplicateFills, 1)
}

// IncReconnect records a duplex reconnect.
func (m *Metrics) IncReconnect() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.reconnects, 1)
}

// IncFallbackSend records a submission routed over the synchronous channel.
func (m *Metrics) IncFallbackSend() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.fallbackSends, 1)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	outcomes := make(map[adapter.OutcomeCode]uint64)
	for i := range m.outcomes {
		if v := atomic.LoadUint64(&m.outcomes[i]); v > 0 {
			outcomes[adapter.OutcomeCode(i)] = v
		}
	}
	return Snapshot{
		Outcomes:           outcomes,
		Posts:              atomic.LoadUint64(&m.posts),
		PostTimeouts:       atomic.LoadUint64(&m.postTimeouts),
		LateReplies:        atomic.LoadUint64(&m.lateReplies),
		PushDropped:        atomic.LoadUint64(&m.pushDropped),
		BatchesSent:        atomic.LoadUint64(&m.batchesSent),
		BatchItems:         atomic.LoadUint64(&m.batchItems),
		RateLimited:        atomic.LoadUint64(&m.rateLimited),
		InvalidTransitions: atomic.LoadUint64(&m.invalidTransitions),
		DuplicateFills:     atomic.LoadUint64(&m.duplicateFills),
		Reconnects:         atomic.LoadUint64(&m.reconnects),
		FallbackSends:      atomic.LoadUint64(&m.fallbackSends),
		PostLatency:        m.postLatency.Snapshot(),
		FlushLatency:       m.flushLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		cur := atomic.LoadUint64(&l.min)
		if cur != 0 && nanos >= cur {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, cur, nanos) {
			break
		}
	}

	for {
		cur := atomic.LoadUint64(&l.max)
		if nanos <= cur {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, cur, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(atomic.LoadUint64(&l.min)),
		Max:   time.Duration(atomic.LoadUint64(&l.max)),
		Avg:   time.Duration(sum / count),
	}
}
