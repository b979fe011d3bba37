package og

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"execgw/internal/adapter"
	"execgw/internal/adapter/enum"
	"execgw/internal/obs"
	"execgw/pkg/exception"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func limit(id string, qty, px float64) adapter.OrderRecord {
	return adapter.OrderRecord{
		ClientOrderID: adapter.NewStr64(id),
		Symbol:        adapter.NewStr64("BTC"),
		Side:          enum.OrderSideBuy,
		Kind:          enum.OrderKindLimit,
		TimeInForce:   enum.OrderTimeInForceGTC,
		Quantity:      qty,
		Price:         px,
		HasPrice:      true,
	}
}

func fill(id, fillID string, qty, px float64) adapter.TradeUpdate {
	return adapter.TradeUpdate{ClientOrderID: id, FillID: fillID, Quantity: qty, Price: px}
}

func state(id string, s enum.OrderState) adapter.OrderUpdate {
	return adapter.OrderUpdate{ClientOrderID: id, State: s}
}

func newTestTracker(cfg TrackerConfig) (*Tracker, *obs.Metrics) {
	m := obs.NewMetrics()
	cfg.Metrics = m
	return NewTracker(cfg), m
}

func TestTrackerStartTracking(t *testing.T) {
	tr, _ := newTestTracker(TrackerConfig{})

	o, err := tr.StartTracking(limit("a", 1, 100))
	require.NoError(t, err)
	assert.Equal(t, enum.OrderStatePendingCreate, o.State)
	assert.Equal(t, "BTC", o.Symbol)

	_, err = tr.StartTracking(limit("a", 1, 100))
	require.ErrorIs(t, err, exception.ErrTrackerDuplicateOrder)

	_, err = tr.StartTracking(limit("", 1, 100))
	require.ErrorIs(t, err, exception.ErrOrderEmptyClientID)
	assert.Equal(t, 1, tr.Len())
}

func TestTrackerFullFill(t *testing.T) {
	tr, _ := newTestTracker(TrackerConfig{})
	_, err := tr.StartTracking(limit("a", 1.0, 100))
	require.NoError(t, err)

	_, err = tr.ProcessOrderUpdate(state("a", enum.OrderStatePendingSubmit))
	require.NoError(t, err)
	_, err = tr.ProcessOrderUpdate(adapter.OrderUpdate{ClientOrderID: "a", VenueOrderID: "555", State: enum.OrderStateOpen})
	require.NoError(t, err)

	o, err := tr.ProcessTradeUpdate(fill("a", "f1", 0.5, 100))
	require.NoError(t, err)
	assert.Equal(t, enum.OrderStatePartiallyFilled, o.State)

	o, err = tr.ProcessTradeUpdate(fill("a", "f2", 0.5, 101))
	require.NoError(t, err)
	assert.Equal(t, enum.OrderStateFilled, o.State)
	assert.InDelta(t, 100.5, o.AvgPrice, 1e-9)
	assert.Equal(t, 1.0, o.FilledQty)
	assert.Equal(t, "555", o.VenueOrderID)
	assert.Len(t, o.Fills, 2)

	byVenue, ok := tr.OrderByVenueID("555")
	require.True(t, ok)
	assert.Equal(t, "a", byVenue.ClientOrderID)
}

func TestTrackerDuplicateFillIsNoop(t *testing.T) {
	tr, m := newTestTracker(TrackerConfig{})
	_, _ = tr.StartTracking(limit("a", 2, 100))

	first, err := tr.ProcessTradeUpdate(fill("a", "f1", 1, 100))
	require.NoError(t, err)
	again, err := tr.ProcessTradeUpdate(fill("a", "f1", 1, 100))
	require.NoError(t, err)

	assert.Equal(t, first.FilledQty, again.FilledQty)
	assert.Equal(t, first.AvgPrice, again.AvgPrice)
	assert.Len(t, again.Fills, 1)
	assert.Equal(t, uint64(1), m.Snapshot().DuplicateFills)
}

func TestTrackerRejectsRegression(t *testing.T) {
	tr, m := newTestTracker(TrackerConfig{})
	_, _ = tr.StartTracking(limit("a", 1, 100))
	_, err := tr.ProcessTradeUpdate(fill("a", "f1", 1, 100))
	require.NoError(t, err)

	o, err := tr.ProcessOrderUpdate(state("a", enum.OrderStateOpen))
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, enum.OrderStateFilled, o.State)
	assert.Equal(t, uint64(1), m.Snapshot().InvalidTransitions)

	cur, ok := tr.Order("a")
	require.True(t, ok)
	assert.Equal(t, enum.OrderStateFilled, cur.State)
}

func TestTrackerBackfillsVenueIDOnRejectedUpdate(t *testing.T) {
	tr, _ := newTestTracker(TrackerConfig{})
	_, _ = tr.StartTracking(limit("a", 1, 100))
	_, _ = tr.ProcessOrderUpdate(state("a", enum.OrderStateCancelled))

	o, err := tr.ProcessOrderUpdate(adapter.OrderUpdate{ClientOrderID: "a", VenueOrderID: "9", State: enum.OrderStateOpen})
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, "9", o.VenueOrderID)
	assert.Equal(t, enum.OrderStateCancelled, o.State)
}

func TestTrackerLookupByVenueID(t *testing.T) {
	tr, _ := newTestTracker(TrackerConfig{})
	_, _ = tr.StartTracking(limit("a", 1, 100))
	_, _ = tr.ProcessOrderUpdate(adapter.OrderUpdate{ClientOrderID: "a", VenueOrderID: "77", State: enum.OrderStateOpen})

	o, err := tr.ProcessTradeUpdate(adapter.TradeUpdate{VenueOrderID: "77", FillID: "x", Quantity: 0.25, Price: 10})
	require.NoError(t, err)
	assert.Equal(t, "a", o.ClientOrderID)
	assert.Equal(t, 0.25, o.FilledQty)

	_, err = tr.ProcessOrderUpdate(adapter.OrderUpdate{VenueOrderID: "nope", State: enum.OrderStateOpen})
	require.ErrorIs(t, err, exception.ErrTrackerUnknownOrder)
}

func TestTrackerFillValidation(t *testing.T) {
	tr, _ := newTestTracker(TrackerConfig{})
	_, _ = tr.StartTracking(limit("a", 1, 100))

	_, err := tr.ProcessTradeUpdate(fill("a", "", 1, 100))
	require.ErrorIs(t, err, exception.ErrTrackerInvalidFill)
	_, err = tr.ProcessTradeUpdate(fill("a", "f", 0, 100))
	require.ErrorIs(t, err, exception.ErrTrackerInvalidFill)

	_, err = tr.ProcessTradeUpdate(fill("a", "f1", 1.5, 100))
	require.ErrorIs(t, err, exception.ErrTrackerOverfill)

	// rounding noise below the epsilon still completes the order
	_, err = tr.ProcessTradeUpdate(fill("a", "f2", 0.1, 100))
	require.NoError(t, err)
	o, err := tr.ProcessTradeUpdate(fill("a", "f3", 0.9+1e-10, 100))
	require.NoError(t, err)
	assert.Equal(t, enum.OrderStateFilled, o.State)
	assert.Equal(t, 1.0, o.FilledQty)
	assert.Zero(t, o.Remaining())
}

func TestTrackerAutoCleanupReturnsFinalSnapshot(t *testing.T) {
	tr, _ := newTestTracker(TrackerConfig{AutoCleanup: true})
	_, _ = tr.StartTracking(limit("a", 1, 100))
	_, _ = tr.ProcessOrderUpdate(adapter.OrderUpdate{ClientOrderID: "a", VenueOrderID: "1", State: enum.OrderStateOpen})

	o, err := tr.ProcessTradeUpdate(fill("a", "f1", 1, 100))
	require.NoError(t, err)
	assert.Equal(t, enum.OrderStateFilled, o.State)

	_, ok := tr.Order("a")
	assert.False(t, ok)
	_, ok = tr.OrderByVenueID("1")
	assert.False(t, ok)
	assert.Zero(t, tr.Len())
}

func TestTrackerSnapshotsAreCopies(t *testing.T) {
	tr, _ := newTestTracker(TrackerConfig{})
	_, _ = tr.StartTracking(limit("a", 2, 100))
	o, _ := tr.ProcessTradeUpdate(fill("a", "f1", 1, 100))

	o.Fills[0].Quantity = 42
	o.State = enum.OrderStateCancelled

	cur, _ := tr.Order("a")
	assert.Equal(t, 1.0, cur.Fills[0].Quantity)
	assert.Equal(t, enum.OrderStatePartiallyFilled, cur.State)
}

func TestTrackerNotFoundStrikes(t *testing.T) {
	tr, _ := newTestTracker(TrackerConfig{NotFoundLimit: 3})
	_, _ = tr.StartTracking(limit("a", 1, 100))
	_, _ = tr.StartTracking(limit("b", 1, 100))
	_, _ = tr.ProcessOrderUpdate(state("b", enum.OrderStateOpen))
	_, _ = tr.ProcessOrderUpdate(state("b", enum.OrderStatePendingCancel))

	for range 2 {
		o, err := tr.ProcessOrderNotFound("a")
		require.NoError(t, err)
		assert.Equal(t, enum.OrderStatePendingCreate, o.State)
	}
	o, err := tr.ProcessOrderNotFound("a")
	require.NoError(t, err)
	assert.Equal(t, enum.OrderStateFailed, o.State)
	assert.Equal(t, reasonNotFoundAtVenue, o.Reason)

	for range 3 {
		o, err = tr.ProcessOrderNotFound("b")
		require.NoError(t, err)
	}
	assert.Equal(t, enum.OrderStateCancelled, o.State)

	_, err = tr.ProcessOrderNotFound("zzz")
	require.ErrorIs(t, err, exception.ErrTrackerUnknownOrder)
}

func TestTrackerStatusResetsNotFound(t *testing.T) {
	tr, _ := newTestTracker(TrackerConfig{NotFoundLimit: 2})
	_, _ = tr.StartTracking(limit("a", 1, 100))

	_, _ = tr.ProcessOrderNotFound("a")
	_, _ = tr.ProcessOrderUpdate(state("a", enum.OrderStateOpen))
	o, _ := tr.ProcessOrderNotFound("a")
	assert.Equal(t, enum.OrderStateOpen, o.State)
}

func TestTrackerRevertCancel(t *testing.T) {
	tr, _ := newTestTracker(TrackerConfig{})
	_, _ = tr.StartTracking(limit("a", 2, 100))
	_, _ = tr.ProcessOrderUpdate(state("a", enum.OrderStateOpen))
	_, _ = tr.ProcessOrderUpdate(state("a", enum.OrderStatePendingCancel))

	o, err := tr.RevertCancel("a")
	require.NoError(t, err)
	assert.Equal(t, enum.OrderStateOpen, o.State)

	_, _ = tr.ProcessOrderUpdate(state("a", enum.OrderStatePendingCancel))
	o, err = tr.ProcessTradeUpdate(fill("a", "f1", 1, 100))
	require.NoError(t, err)
	assert.Equal(t, enum.OrderStatePendingCancel, o.State)

	o, err = tr.RevertCancel("a")
	require.NoError(t, err)
	assert.Equal(t, enum.OrderStatePartiallyFilled, o.State)

	_, err = tr.RevertCancel("a")
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTrackerCancelFromPendingCreateRejected(t *testing.T) {
	tr, _ := newTestTracker(TrackerConfig{})
	_, _ = tr.StartTracking(limit("a", 1, 100))
	_, err := tr.ProcessOrderUpdate(state("a", enum.OrderStatePendingCancel))
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTrackerExpireOverdue(t *testing.T) {
	tr, _ := newTestTracker(TrackerConfig{})
	base := time.Unix(1_700_000_000, 0)
	tr.now = func() time.Time { return base }

	_, _ = tr.StartTracking(limit("old", 1, 100))
	_, _ = tr.StartTracking(limit("open", 1, 100))
	_, _ = tr.ProcessOrderUpdate(state("open", enum.OrderStateOpen))
	tr.now = func() time.Time { return base.Add(time.Minute) }
	_, _ = tr.StartTracking(limit("young", 1, 100))

	expired := tr.ExpireOverdue(base.Add(90*time.Second), time.Minute)
	require.Len(t, expired, 1)
	assert.Equal(t, "old", expired[0].ClientOrderID)
	assert.Equal(t, enum.OrderStateExpired, expired[0].State)
	assert.Equal(t, adapter.ReasonExpired, expired[0].Reason)

	young, _ := tr.Order("young")
	assert.Equal(t, enum.OrderStatePendingCreate, young.State)
	open, _ := tr.Order("open")
	assert.Equal(t, enum.OrderStateOpen, open.State)
}

func TestTrackerOpenOrders(t *testing.T) {
	tr, _ := newTestTracker(TrackerConfig{})
	base := time.Unix(1_700_000_000, 0)
	for i, id := range []string{"a", "b", "c"} {
		tr.now = func() time.Time { return base.Add(time.Duration(i) * time.Second) }
		_, _ = tr.StartTracking(limit(id, 1, 100))
	}
	eth := limit("d", 1, 100)
	eth.Symbol = adapter.NewStr64("ETH")
	_, _ = tr.StartTracking(eth)
	_, _ = tr.ProcessOrderUpdate(state("b", enum.OrderStateCancelled))

	ids := func(os []InFlightOrder) []string {
		out := make([]string, 0, len(os))
		for _, o := range os {
			out = append(out, o.ClientOrderID)
		}
		return out
	}
	assert.Equal(t, []string{"a", "c", "d"}, ids(tr.OpenOrders(Filter{})))
	assert.Equal(t, []string{"a", "c"}, ids(tr.OpenOrders(Filter{Symbol: "BTC"})))
	assert.Equal(t, []string{"b"}, ids(tr.OpenOrders(Filter{States: []enum.OrderState{enum.OrderStateCancelled}})))
}

func TestTrackerEvents(t *testing.T) {
	tr, _ := newTestTracker(TrackerConfig{})
	var (
		mu    sync.Mutex
		kinds []EventKind
	)
	tr.OnEvent(func(e Event) {
		mu.Lock()
		kinds = append(kinds, e.Kind)
		mu.Unlock()
		// listeners run outside the lock
		_, _ = tr.Order(e.Order.ClientOrderID)
	})

	_, _ = tr.StartTracking(limit("a", 1, 100))
	_, _ = tr.ProcessOrderUpdate(state("a", enum.OrderStateOpen))
	_, _ = tr.ProcessTradeUpdate(fill("a", "f1", 1, 100))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []EventKind{EventCreated, EventUpdated, EventFilled, EventCompleted}, kinds)
}

func TestTrackerConcurrentFills(t *testing.T) {
	tr, _ := newTestTracker(TrackerConfig{})
	const n = 100
	_, _ = tr.StartTracking(limit("a", n, 100))

	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// each fill is delivered twice
			f := fill("a", "f"+string(rune('A'+i%26))+string(rune('a'+i/26)), 1, float64(100+i%2))
			_, _ = tr.ProcessTradeUpdate(f)
			_, _ = tr.ProcessTradeUpdate(f)
		}()
	}
	wg.Wait()

	o, _ := tr.Order("a")
	assert.Equal(t, float64(n), o.FilledQty)
	assert.Equal(t, enum.OrderStateFilled, o.State)
	assert.Len(t, o.Fills, n)
	assert.InDelta(t, 100.5, o.AvgPrice, 1e-9)
}

func TestNextState(t *testing.T) {
	cases := []struct {
		from, to, want enum.OrderState
		err            bool
	}{
		{enum.OrderStatePendingCreate, enum.OrderStatePendingSubmit, enum.OrderStatePendingSubmit, false},
		{enum.OrderStatePendingSubmit, enum.OrderStateOpen, enum.OrderStateOpen, false},
		{enum.OrderStateOpen, enum.OrderStatePendingSubmit, enum.OrderStateOpen, true},
		{enum.OrderStatePartiallyFilled, enum.OrderStateOpen, enum.OrderStatePartiallyFilled, false},
		{enum.OrderStatePendingCancel, enum.OrderStatePartiallyFilled, enum.OrderStatePendingCancel, false},
		{enum.OrderStatePendingSubmit, enum.OrderStatePendingCancel, enum.OrderStatePendingCancel, false},
		{enum.OrderStateFilled, enum.OrderStateOpen, enum.OrderStateFilled, true},
		{enum.OrderStateCancelled, enum.OrderStateFilled, enum.OrderStateCancelled, true},
		{enum.OrderStateOpen, enum.OrderStateExpired, enum.OrderStateExpired, false},
		{enum.OrderStateOpen, enum.OrderStatePendingCreate, enum.OrderStateOpen, true},
	}
	for _, c := range cases {
		got, err := nextState(c.from, c.to)
		assert.Equal(t, c.want, got, "%s -> %s", c.from, c.to)
		assert.Equal(t, c.err, err != nil, "%s -> %s", c.from, c.to)
	}
}

func BenchmarkTrackerProcessTradeUpdate(b *testing.B) {
	tr := NewTracker(TrackerConfig{})
	_, _ = tr.StartTracking(limit("a", 1e12, 100))
	f := fill("a", "dup", 1, 100)
	_, _ = tr.ProcessTradeUpdate(f)
	for b.Loop() {
		_, _ = tr.ProcessTradeUpdate(f)
	}
}

func TestTrackerDeliversEventsInApplyOrder(t *testing.T) {
	tr, _ := newTestTracker(TrackerConfig{})
	const n = 50
	_, _ = tr.StartTracking(limit("a", n, 100))

	var seqs []uint64
	tr.OnEvent(func(e Event) {
		// delivery is serialized, no lock needed
		seqs = append(seqs, e.Order.Seq)
	})

	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = tr.ProcessTradeUpdate(fill("a", fmt.Sprintf("f%d", i), 1, 100))
		}()
	}
	wg.Wait()

	require.NotEmpty(t, seqs)
	for i := 1; i < len(seqs); i++ {
		if seqs[i] <= seqs[i-1] {
			t.Fatalf("event %d delivered with seq %d after seq %d", i, seqs[i], seqs[i-1])
		}
	}
	o, _ := tr.Order("a")
	assert.Equal(t, seqs[len(seqs)-1], o.Seq)
	assert.Equal(t, enum.OrderStateFilled, o.State)
}

func TestTrackerHoldsLaterEventsBehindSlowListener(t *testing.T) {
	tr, _ := newTestTracker(TrackerConfig{})
	_, _ = tr.StartTracking(limit("a", 1, 100))

	parked := make(chan struct{})
	release := make(chan struct{})
	var (
		mu    sync.Mutex
		kinds []EventKind
	)
	tr.OnEvent(func(e Event) {
		if e.Kind == EventUpdated {
			close(parked)
			<-release
		}
		mu.Lock()
		kinds = append(kinds, e.Kind)
		mu.Unlock()
	})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = tr.ProcessOrderUpdate(adapter.OrderUpdate{ClientOrderID: "a", VenueOrderID: "555", State: enum.OrderStateOpen})
	}()
	<-parked
	go func() {
		defer wg.Done()
		_, _ = tr.ProcessTradeUpdate(fill("a", "f1", 1, 100))
	}()

	require.Eventually(t, func() bool {
		o, _ := tr.Order("a")
		return o.State == enum.OrderStateFilled
	}, time.Second, time.Millisecond)
	mu.Lock()
	assert.Empty(t, kinds)
	mu.Unlock()

	close(release)
	wg.Wait()
	assert.Equal(t, []EventKind{EventUpdated, EventFilled, EventCompleted}, kinds)
}
