package og

import (
	"context"
	"errors"
	"time"

	"execgw/internal/adapter"
	"execgw/internal/adapter/enum"
	"execgw/internal/bus"
	"execgw/internal/risk"
	"execgw/pkg/exception"

	"github.com/yanun0323/logs"
	"go.uber.org/multierr"
)

// Submitter sends orders and cancels to the venue. *batch.Coordinator
// implements it.
type Submitter interface {
	Submit(ctx context.Context, rec adapter.OrderRecord, timeout time.Duration) adapter.Outcome
	Cancel(ctx context.Context, rec adapter.OrderRecord, timeout time.Duration) adapter.Outcome
}

// PushDecoder turns a venue push message into order and trade updates.
type PushDecoder interface {
	DecodePush(channel string, data []byte) (adapter.VenueEvents, error)
}

// Confirmer resolves orders whose request got no answer. Confirm reports
// false when a confirmation for the id is already running.
type Confirmer interface {
	Confirm(clientID string) bool
}

// RiskGate vets an order before it is tracked. *risk.Engine implements it.
type RiskGate interface {
	Evaluate(rec adapter.OrderRecord, view risk.View) risk.Decision
}

// GatewayConfig controls the expiry sweep.
type GatewayConfig struct {
	ExpireAfter   time.Duration
	SweepInterval time.Duration
}

type GatewayDeps struct {
	Tracker   *Tracker
	Submitter Submitter
	Decoder   PushDecoder
	Confirmer Confirmer
	Risk      RiskGate
}

// Gateway is the order entry point. It tracks every order before it is sent
// and folds replies, pushes and confirmations into the tracker.
type Gateway struct {
	cfg       GatewayConfig
	tracker   *Tracker
	submitter Submitter
	decoder   PushDecoder
	confirmer Confirmer
	risk      RiskGate
}

// NewGateway creates a gateway. Decoder, Confirmer and Risk are optional.
func NewGateway(cfg GatewayConfig, deps GatewayDeps) (*Gateway, error) {
	if deps.Tracker == nil || deps.Submitter == nil {
		return nil, exception.ErrInvalidArgument
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Second
	}
	return &Gateway{
		cfg:       cfg,
		tracker:   deps.Tracker,
		submitter: deps.Submitter,
		decoder:   deps.Decoder,
		confirmer: deps.Confirmer,
		risk:      deps.Risk,
	}, nil
}

// Tracker returns the underlying order tracker.
func (g *Gateway) Tracker() *Tracker {
	return g.tracker
}

// Submit tracks rec, sends it and applies the outcome to the tracked order.
func (g *Gateway) Submit(ctx context.Context, rec adapter.OrderRecord, timeout time.Duration) adapter.Outcome {
	if err := rec.Validate(); err != nil {
		return notSent(err)
	}
	if g.risk != nil {
		symbol := rec.Symbol.String()
		d := g.risk.Evaluate(rec, risk.View{OpenOrders: g.tracker.CountOpen(symbol), Now: time.Now()})
		if !d.Allow {
			logs.Warnf("risk blocked order %s on %s, reason: %s", rec.ClientOrderID.String(), symbol, d.Reason)
			return d.Outcome()
		}
	}
	id := rec.ClientOrderID.String()
	if _, err := g.tracker.StartTracking(rec); err != nil {
		return notSent(err)
	}
	g.update(id, "", enum.OrderStatePendingSubmit, "")

	out := g.submitter.Submit(ctx, rec, timeout)
	switch {
	case out.OK && out.Filled:
		g.update(id, out.VenueOrderID, enum.OrderStateFilled, "")
	case out.OK:
		g.update(id, out.VenueOrderID, enum.OrderStateOpen, "")
	case out.Unanswered():
		g.confirm(id)
	default:
		g.update(id, "", enum.OrderStateFailed, out.Reason)
	}
	return out
}

// Cancel moves the order to PendingCancel and sends a cancel for it.
// A rejected or unsent cancel restores the previous state, an unanswered
// one is left pending and confirmed against the venue.
func (g *Gateway) Cancel(ctx context.Context, clientID string, timeout time.Duration) adapter.Outcome {
	rec, ok := g.tracker.Record(clientID)
	if !ok {
		return adapter.Failure(adapter.OutcomeNotFound, exception.ErrTrackerUnknownOrder.Error(), false)
	}
	if _, err := g.tracker.ProcessOrderUpdate(adapter.OrderUpdate{
		ClientOrderID: clientID,
		State:         enum.OrderStatePendingCancel,
	}); err != nil {
		return notSent(exception.ErrOrderCancelNotCancelable)
	}
	if cur, ok := g.tracker.Order(clientID); !ok || cur.State != enum.OrderStatePendingCancel {
		return notSent(exception.ErrOrderCancelNotCancelable)
	}

	out := g.submitter.Cancel(ctx, rec, timeout)
	switch {
	case out.OK:
		g.update(clientID, "", enum.OrderStateCancelled, adapter.StatusCanceled)
	case out.Unanswered():
		g.confirm(clientID)
	default:
		if _, err := g.tracker.RevertCancel(clientID); err != nil && !errors.Is(err, ErrInvalidTransition) {
			logs.Warnf("revert cancel %s, err: %+v", clientID, err)
		}
	}
	return out
}

// HandlePush decodes a push message and applies every update it carries.
// Updates for orders this process does not track are skipped.
func (g *Gateway) HandlePush(channel string, data []byte) error {
	if g.decoder == nil {
		return exception.ErrUnknownChannel
	}
	ev, err := g.decoder.DecodePush(channel, data)
	if err != nil {
		return err
	}

	var errs error
	for _, u := range ev.Orders {
		if _, err := g.tracker.ProcessOrderUpdate(u); err != nil && !ignorable(err) {
			errs = multierr.Append(errs, err)
		}
	}
	for _, f := range ev.Trades {
		if _, err := g.tracker.ProcessTradeUpdate(f); err != nil && !ignorable(err) {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// HandleEvent is the push callback for the duplex client.
func (g *Gateway) HandleEvent(e bus.Event) {
	if err := g.HandlePush(e.Channel, e.Data); err != nil {
		logs.Warnf("handle push %s, err: %+v", e.Channel, err)
	}
}

// Run expires unconfirmed orders until ctx is done.
func (g *Gateway) Run(ctx context.Context) error {
	if g.cfg.ExpireAfter <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(g.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if expired := g.tracker.ExpireOverdue(now, g.cfg.ExpireAfter); len(expired) > 0 {
				logs.Warnf("expired %d unconfirmed orders", len(expired))
			}
		}
	}
}

func (g *Gateway) Order(clientID string) (InFlightOrder, bool) {
	return g.tracker.Order(clientID)
}

func (g *Gateway) OrderByVenueID(venueID string) (InFlightOrder, bool) {
	return g.tracker.OrderByVenueID(venueID)
}

func (g *Gateway) OpenOrders(f Filter) []InFlightOrder {
	return g.tracker.OpenOrders(f)
}

func (g *Gateway) OnEvent(l Listener) {
	g.tracker.OnEvent(l)
}

func (g *Gateway) update(id, venueID string, state enum.OrderState, reason string) {
	_, err := g.tracker.ProcessOrderUpdate(adapter.OrderUpdate{
		ClientOrderID: id,
		VenueOrderID:  venueID,
		State:         state,
		Reason:        reason,
	})
	if err != nil && !ignorable(err) {
		logs.Errorf("apply %s to order %s, err: %+v", state, id, err)
	}
}

func (g *Gateway) confirm(id string) {
	if g.confirmer == nil {
		logs.Warnf("order %s unanswered and no confirmer configured", id)
		return
	}
	if !g.confirmer.Confirm(id) {
		logs.Debugf("confirmation for order %s already running", id)
	}
}

// ignorable covers updates for foreign orders and stale state reports,
// both of which the tracker already accounts for.
func ignorable(err error) bool {
	return errors.Is(err, exception.ErrTrackerUnknownOrder) || errors.Is(err, ErrInvalidTransition)
}

func notSent(err error) adapter.Outcome {
	return adapter.Outcome{
		Code:       adapter.OutcomeRejected,
		Reason:     err.Error(),
		ReasonCode: adapter.ReasonInvalidParams,
	}
}
