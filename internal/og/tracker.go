package og

import (
	"math"
	"slices"
	"sync"
	"time"

	"execgw/internal/adapter"
	"execgw/internal/adapter/enum"
	"execgw/internal/obs"
	"execgw/pkg/exception"

	"github.com/yanun0323/logs"
)

const (
	qtyEpsilon            = 1e-8
	defaultNotFoundLimit  = 3
	reasonNotFoundAtVenue = "order not found at venue"
)

// Fill is one applied execution.
type Fill struct {
	ID        string
	Price     float64
	Quantity  float64
	Fee       float64
	FeeAsset  string
	Maker     bool
	Timestamp time.Time
}

// InFlightOrder is a copy of the tracked view of one order.
type InFlightOrder struct {
	ClientOrderID string
	VenueOrderID  string
	Symbol        string
	Side          enum.OrderSide
	Kind          enum.OrderKind
	TimeInForce   enum.OrderTimeInForce
	Price         float64
	Quantity      float64
	FilledQty     float64
	AvgPrice      float64
	Fees          float64
	Fills         []Fill
	State         enum.OrderState
	Reason        string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	// Seq grows with every change the tracker applies, across all orders.
	// Of two views of the same order the one with the larger Seq is newer.
	Seq uint64
}

// Remaining returns the unfilled quantity.
func (o InFlightOrder) Remaining() float64 {
	return math.Max(o.Quantity-o.FilledQty, 0)
}

type order struct {
	view     InFlightOrder
	record   adapter.OrderRecord
	fillIDs  map[string]struct{}
	notFound int
	// beforeCancel is the state to restore when a cancel is rejected.
	beforeCancel enum.OrderState
}

func (o *order) snapshot() InFlightOrder {
	s := o.view
	s.Fills = slices.Clone(o.view.Fills)
	return s
}

// Filter selects orders for OpenOrders. The zero Filter matches every
// non-terminal order.
type Filter struct {
	Symbol string
	Side   enum.OrderSide
	States []enum.OrderState
}

func (f Filter) match(o *InFlightOrder) bool {
	if f.Symbol != "" && f.Symbol != o.Symbol {
		return false
	}
	if f.Side.IsAvailable() && f.Side != o.Side {
		return false
	}
	if len(f.States) == 0 {
		return !o.State.IsTerminal()
	}
	return slices.Contains(f.States, o.State)
}

// TrackerConfig controls cleanup and not-found handling.
type TrackerConfig struct {
	AutoCleanup   bool
	NotFoundLimit int
	Metrics       *obs.Metrics
}

// Tracker is the authoritative order view. Every mutation runs under one
// lock so updates from replies, pushes and polls apply in arrival order.
// Reads return copies.
type Tracker struct {
	mu          sync.Mutex
	orders      map[string]*order
	byVenue     map[string]string
	autoCleanup bool
	notFound    int
	metrics     *obs.Metrics
	now         func() time.Time
	seq         uint64
	// issued counts emit turns handed out under mu.
	issued uint64

	lmu       sync.RWMutex
	listeners []Listener

	// emu and served order listener delivery by turn.
	emu    sync.Mutex
	served uint64
	turn   *sync.Cond
}

func NewTracker(cfg TrackerConfig) *Tracker {
	if cfg.NotFoundLimit <= 0 {
		cfg.NotFoundLimit = defaultNotFoundLimit
	}
	t := &Tracker{
		orders:      make(map[string]*order),
		byVenue:     make(map[string]string),
		autoCleanup: cfg.AutoCleanup,
		notFound:    cfg.NotFoundLimit,
		metrics:     cfg.Metrics,
		now:         time.Now,
	}
	t.turn = sync.NewCond(&t.emu)
	return t
}

// SetAutoCleanup toggles removal of orders once they reach a terminal state.
func (t *Tracker) SetAutoCleanup(enabled bool) {
	t.mu.Lock()
	t.autoCleanup = enabled
	t.mu.Unlock()
}

// OnEvent registers l. Listeners run on the goroutine that applied the
// update, after the tracker lock is released, and see events in the order
// the updates were applied. A listener may read from the tracker but must
// not mutate it.
func (t *Tracker) OnEvent(l Listener) {
	t.lmu.Lock()
	t.listeners = append(t.listeners, l)
	t.lmu.Unlock()
}

// bump stamps o with the next sequence number. Caller holds mu.
func (t *Tracker) bump(o *order) {
	t.seq++
	o.view.Seq = t.seq
}

// unlockEmit releases mu and delivers events once every batch produced
// before them under mu has been delivered. Caller holds mu.
func (t *Tracker) unlockEmit(events []Event) {
	if len(events) == 0 {
		t.mu.Unlock()
		return
	}
	ticket := t.issued
	t.issued++
	t.mu.Unlock()

	t.emu.Lock()
	defer t.emu.Unlock()
	for t.served != ticket {
		t.turn.Wait()
	}
	defer func() {
		t.served++
		t.turn.Broadcast()
	}()

	t.lmu.RLock()
	listeners := t.listeners
	t.lmu.RUnlock()
	for _, e := range events {
		for _, l := range listeners {
			l(e)
		}
	}
}

// StartTracking registers rec in PendingCreate. Call it before any network
// request for the order is issued.
func (t *Tracker) StartTracking(rec adapter.OrderRecord) (InFlightOrder, error) {
	id := rec.ClientOrderID.String()
	if id == "" {
		return InFlightOrder{}, exception.ErrOrderEmptyClientID
	}
	now := t.now()

	t.mu.Lock()
	if _, ok := t.orders[id]; ok {
		t.mu.Unlock()
		return InFlightOrder{}, exception.ErrTrackerDuplicateOrder
	}
	o := &order{
		record:  rec,
		fillIDs: make(map[string]struct{}),
		view: InFlightOrder{
			ClientOrderID: id,
			Symbol:        rec.Symbol.String(),
			Side:          rec.Side,
			Kind:          rec.Kind,
			TimeInForce:   rec.TimeInForce,
			Price:         rec.Price,
			Quantity:      rec.Quantity,
			State:         enum.OrderStatePendingCreate,
			CreatedAt:     now,
			UpdatedAt:     now,
		},
	}
	t.orders[id] = o
	t.bump(o)
	snap := o.snapshot()
	t.unlockEmit([]Event{{Kind: EventCreated, Order: snap}})
	return snap, nil
}

// StopTracking forgets id. It reports whether the order was tracked.
func (t *Tracker) StopTracking(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	o, ok := t.orders[id]
	if !ok {
		return false
	}
	t.remove(o)
	return true
}

func (t *Tracker) remove(o *order) {
	delete(t.orders, o.view.ClientOrderID)
	if o.view.VenueOrderID != "" {
		delete(t.byVenue, o.view.VenueOrderID)
	}
}

func (t *Tracker) lookup(clientID, venueID string) (*order, bool) {
	if clientID != "" {
		if o, ok := t.orders[clientID]; ok {
			return o, true
		}
	}
	if venueID != "" {
		if id, ok := t.byVenue[venueID]; ok {
			o, ok := t.orders[id]
			return o, ok
		}
	}
	return nil, false
}

func (t *Tracker) backfillVenueID(o *order, venueID string) {
	if venueID == "" || o.view.VenueOrderID != "" {
		return
	}
	o.view.VenueOrderID = venueID
	t.byVenue[venueID] = o.view.ClientOrderID
	t.bump(o)
}

// transition moves o to state and returns the events it produced.
func (t *Tracker) transition(o *order, to enum.OrderState, reason string, at time.Time) ([]Event, error) {
	from := o.view.State
	next, err := nextState(from, to)
	if err != nil {
		t.metrics.IncInvalidTransition()
		logs.Warnf("drop order update %s, from: %s, to: %s, err: %+v", o.view.ClientOrderID, from, to, err)
		return nil, err
	}
	if next == from {
		if from == enum.OrderStatePendingCancel && to.IsLive() && to != from {
			o.beforeCancel = to
		}
		return nil, nil
	}
	if next == enum.OrderStatePendingCancel {
		o.beforeCancel = from
	}
	o.view.State = next
	o.view.UpdatedAt = at
	if reason != "" && next.IsTerminal() {
		o.view.Reason = reason
	}
	t.bump(o)
	return []Event{{Kind: eventFor(next), Order: o.snapshot()}}, nil
}

// finish removes a terminal order when auto-cleanup is on. The caller
// already holds the final snapshot.
func (t *Tracker) finish(o *order) {
	if t.autoCleanup && o.view.State.IsTerminal() {
		t.remove(o)
	}
}

// ProcessOrderUpdate merges a state report. The order is found by client
// id, then by venue id. A missing venue id is backfilled even when the
// state change itself is rejected.
func (t *Tracker) ProcessOrderUpdate(u adapter.OrderUpdate) (InFlightOrder, error) {
	at := u.Timestamp
	if at.IsZero() {
		at = t.now()
	}

	t.mu.Lock()
	o, ok := t.lookup(u.ClientOrderID, u.VenueOrderID)
	if !ok {
		t.mu.Unlock()
		return InFlightOrder{}, exception.ErrTrackerUnknownOrder
	}
	t.backfillVenueID(o, u.VenueOrderID)
	o.notFound = 0
	events, err := t.transition(o, u.State, u.Reason, at)
	snap := o.snapshot()
	if err == nil {
		t.finish(o)
	}
	t.unlockEmit(events)
	return snap, err
}

// ProcessTradeUpdate applies a fill once per fill id and recomputes the
// filled quantity and volume weighted average price.
func (t *Tracker) ProcessTradeUpdate(f adapter.TradeUpdate) (InFlightOrder, error) {
	if f.FillID == "" || f.Quantity <= 0 || f.Price <= 0 {
		return InFlightOrder{}, exception.ErrTrackerInvalidFill
	}
	at := f.Timestamp
	if at.IsZero() {
		at = t.now()
	}

	t.mu.Lock()
	o, ok := t.lookup(f.ClientOrderID, f.VenueOrderID)
	if !ok {
		t.mu.Unlock()
		return InFlightOrder{}, exception.ErrTrackerUnknownOrder
	}
	t.backfillVenueID(o, f.VenueOrderID)

	if _, dup := o.fillIDs[f.FillID]; dup {
		snap := o.snapshot()
		t.mu.Unlock()
		t.metrics.IncDuplicateFill()
		return snap, nil
	}

	v := &o.view
	filled := v.FilledQty + f.Quantity
	if filled > v.Quantity+qtyEpsilon {
		snap := o.snapshot()
		t.mu.Unlock()
		logs.Errorf("reject fill %s for %s, filled: %v, fill: %v, quantity: %v", f.FillID, v.ClientOrderID, v.FilledQty, f.Quantity, v.Quantity)
		return snap, exception.ErrTrackerOverfill
	}
	if math.Abs(filled-v.Quantity) <= qtyEpsilon {
		filled = v.Quantity
	}

	fill := Fill{
		ID:        f.FillID,
		Price:     f.Price,
		Quantity:  f.Quantity,
		Fee:       f.Fee,
		FeeAsset:  f.FeeAsset,
		Maker:     f.Maker,
		Timestamp: at,
	}
	o.fillIDs[f.FillID] = struct{}{}
	v.AvgPrice = (v.AvgPrice*v.FilledQty + f.Price*f.Quantity) / (v.FilledQty + f.Quantity)
	v.FilledQty = filled
	v.Fees += f.Fee
	v.Fills = append(v.Fills, fill)
	v.UpdatedAt = at
	o.notFound = 0
	t.bump(o)

	events := []Event{{Kind: EventFilled, Order: o.snapshot(), Fill: &fill}}
	if !v.State.IsTerminal() {
		target := enum.OrderStatePartiallyFilled
		if v.Quantity-v.FilledQty <= qtyEpsilon {
			target = enum.OrderStateFilled
		}
		more, _ := t.transition(o, target, "", at)
		events = append(events, more...)
	}
	snap := o.snapshot()
	t.finish(o)
	t.unlockEmit(events)
	return snap, nil
}

// ProcessOrderNotFound counts an "unknown order" answer from the venue.
// At the configured limit a pending cancel resolves to Cancelled and any
// other live order to Failed.
func (t *Tracker) ProcessOrderNotFound(id string) (InFlightOrder, error) {
	t.mu.Lock()
	o, ok := t.orders[id]
	if !ok {
		t.mu.Unlock()
		return InFlightOrder{}, exception.ErrTrackerUnknownOrder
	}
	if o.view.State.IsTerminal() {
		snap := o.snapshot()
		t.mu.Unlock()
		return snap, nil
	}

	o.notFound++
	var events []Event
	if o.notFound >= t.notFound {
		target := enum.OrderStateFailed
		if o.view.State == enum.OrderStatePendingCancel {
			target = enum.OrderStateCancelled
		}
		events, _ = t.transition(o, target, reasonNotFoundAtVenue, t.now())
	}
	snap := o.snapshot()
	t.finish(o)
	t.unlockEmit(events)
	return snap, nil
}

// RevertCancel restores the state an order had before PendingCancel,
// used when the venue rejects the cancel.
func (t *Tracker) RevertCancel(id string) (InFlightOrder, error) {
	t.mu.Lock()
	o, ok := t.orders[id]
	if !ok {
		t.mu.Unlock()
		return InFlightOrder{}, exception.ErrTrackerUnknownOrder
	}
	if o.view.State != enum.OrderStatePendingCancel {
		snap := o.snapshot()
		t.mu.Unlock()
		return snap, ErrInvalidTransition
	}
	prev := o.beforeCancel
	if o.view.FilledQty > 0 {
		prev = enum.OrderStatePartiallyFilled
	}
	o.view.State = prev
	o.view.UpdatedAt = t.now()
	t.bump(o)
	snap := o.snapshot()
	t.unlockEmit([]Event{{Kind: EventUpdated, Order: snap}})
	return snap, nil
}

// ExpireOverdue moves orders still waiting for their first acknowledgement
// after maxAge to Expired and returns them.
func (t *Tracker) ExpireOverdue(now time.Time, maxAge time.Duration) []InFlightOrder {
	if maxAge <= 0 {
		return nil
	}
	t.mu.Lock()
	var (
		expired []InFlightOrder
		events  []Event
	)
	for _, o := range t.orders {
		if !o.view.State.IsPending() || now.Sub(o.view.CreatedAt) < maxAge {
			continue
		}
		ev, err := t.transition(o, enum.OrderStateExpired, adapter.ReasonExpired, now)
		if err != nil {
			continue
		}
		events = append(events, ev...)
		expired = append(expired, o.snapshot())
		t.finish(o)
	}
	t.unlockEmit(events)
	return expired
}

// Record returns the submitted record for id.
func (t *Tracker) Record(id string) (adapter.OrderRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	o, ok := t.orders[id]
	if !ok {
		return adapter.OrderRecord{}, false
	}
	return o.record, true
}

// Order returns a copy of the order tracked under client id.
func (t *Tracker) Order(id string) (InFlightOrder, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	o, ok := t.orders[id]
	if !ok {
		return InFlightOrder{}, false
	}
	return o.snapshot(), true
}

// OrderByVenueID returns a copy of the order with the venue id.
func (t *Tracker) OrderByVenueID(venueID string) (InFlightOrder, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	o, ok := t.lookup("", venueID)
	if !ok {
		return InFlightOrder{}, false
	}
	return o.snapshot(), true
}

// OpenOrders returns copies of the orders matching f, oldest first.
func (t *Tracker) OpenOrders(f Filter) []InFlightOrder {
	t.mu.Lock()
	out := make([]InFlightOrder, 0, len(t.orders))
	for _, o := range t.orders {
		if f.match(&o.view) {
			out = append(out, o.snapshot())
		}
	}
	t.mu.Unlock()

	slices.SortFunc(out, func(a, b InFlightOrder) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		if a.ClientOrderID < b.ClientOrderID {
			return -1
		}
		if a.ClientOrderID > b.ClientOrderID {
			return 1
		}
		return 0
	})
	return out
}

// CountOpen returns the number of non-terminal orders on symbol.
func (t *Tracker) CountOpen(symbol string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, o := range t.orders {
		if o.view.Symbol == symbol && !o.view.State.IsTerminal() {
			n++
		}
	}
	return n
}

// Len returns the number of tracked orders.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.orders)
}
