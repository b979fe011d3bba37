package batch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"execgw/internal/adapter"
	"execgw/internal/adapter/enum"
	"execgw/internal/obs"
	"execgw/pkg/exception"

	"github.com/yanun0323/logs"
)

const (
	defaultInterval         = 100 * time.Millisecond
	defaultRateLimitBackoff = 2 * time.Second
	defaultQueueSize        = 1024
	defaultPoolSize         = 4096
	defaultSignTimeout      = 2 * time.Second
	defaultPostTimeout      = 5 * time.Second
)

// Config controls cadence, capacity and backoff.
type Config struct {
	Interval         time.Duration
	RateLimitBackoff time.Duration
	QueueSize        int
	PoolSize         int
	SignTimeout      time.Duration
	PostTimeout      time.Duration
}

func (c *Config) normalize() {
	if c.Interval <= 0 {
		c.Interval = defaultInterval
	}
	if c.RateLimitBackoff <= 0 {
		c.RateLimitBackoff = defaultRateLimitBackoff
	}
	if c.QueueSize <= 0 {
		c.QueueSize = defaultQueueSize
	}
	if c.PoolSize <= 0 {
		c.PoolSize = defaultPoolSize
	}
	if c.SignTimeout <= 0 {
		c.SignTimeout = defaultSignTimeout
	}
	if c.PostTimeout <= 0 {
		c.PostTimeout = defaultPostTimeout
	}
}

// Deps are the collaborators of a Coordinator. Fallback and Metrics are optional.
type Deps struct {
	Transport Transport
	Fallback  Fallback
	Codec     Codec
	Signer    Signer
	Router    Router
	Nonce     NonceSource
	Metrics   *obs.Metrics
}

type queueKind uint8

const (
	queueStandard queueKind = iota
	queuePostOnly
	queueCount
)

type pendingQueue struct {
	mu    sync.Mutex
	items []*item
}

// Coordinator coalesces batchable orders into one action per queue and
// cadence tick, and fans the reply back out by position.
type Coordinator struct {
	cfg  Config
	deps Deps

	queues [queueCount]pendingQueue
	queued atomic.Int64
	wake   chan struct{}
	items  *itemPool

	backoffUntil atomic.Int64
	running      atomic.Bool
	stopped      atomic.Bool
}

// NewCoordinator validates deps and builds an idle coordinator. Call Run to start flushing.
func NewCoordinator(cfg Config, deps Deps) (*Coordinator, error) {
	if deps.Codec == nil {
		return nil, exception.ErrBatchNilCodec
	}
	if deps.Signer == nil {
		return nil, exception.ErrBatchNilSigner
	}
	if deps.Transport == nil && deps.Fallback == nil {
		return nil, exception.ErrBatchNilTransport
	}
	if deps.Router == nil || deps.Nonce == nil {
		return nil, exception.ErrInvalidArgument
	}
	cfg.normalize()
	c := &Coordinator{
		cfg:   cfg,
		deps:  deps,
		wake:  make(chan struct{}, 1),
		items: newItemPool(cfg.PoolSize),
	}
	for i := range c.queues {
		c.queues[i].items = make([]*item, 0, cfg.QueueSize)
	}
	return c, nil
}

// BackingOff reports whether the venue-wide rate limit window is open at now.
func (c *Coordinator) BackingOff(now time.Time) bool {
	return now.UnixNano() < c.backoffUntil.Load()
}

// Queued returns the number of orders waiting for the next flush.
func (c *Coordinator) Queued() int {
	return int(c.queued.Load())
}

func (c *Coordinator) startBackoff(now time.Time) {
	until := now.Add(c.cfg.RateLimitBackoff).UnixNano()
	for {
		cur := c.backoffUntil.Load()
		if cur >= until || c.backoffUntil.CompareAndSwap(cur, until) {
			break
		}
	}
	logs.Warnf("venue rate limit, backing off until %s", time.Unix(0, until).Format(time.RFC3339Nano))
}

// Submit admits rec and waits up to timeout for its outcome.
//
// Immediate, market and trigger orders bypass the queues and are sent on
// the caller goroutine. Everything else waits for the next flush.
func (c *Coordinator) Submit(ctx context.Context, rec adapter.OrderRecord, timeout time.Duration) adapter.Outcome {
	out := c.submit(ctx, rec, timeout)
	c.deps.Metrics.ObserveOutcome(out)
	return out
}

func (c *Coordinator) submit(ctx context.Context, rec adapter.OrderRecord, timeout time.Duration) adapter.Outcome {
	if err := rec.Validate(); err != nil {
		return invalid(err)
	}
	now := time.Now()
	if c.BackingOff(now) {
		return adapter.Failure(adapter.OutcomeRateLimited, "rate limit backoff in effect", false)
	}
	if c.stopped.Load() {
		return adapter.Failure(adapter.OutcomeTransportFailure, exception.ErrBatchClosed.Error(), false)
	}

	route, err := c.deps.Router.Route(ctx, rec)
	if err != nil {
		return routeFailure(err)
	}
	order := Order{Record: rec, Route: route}

	if !rec.Batchable() {
		return c.sendSingle(ctx, order, timeout)
	}

	if c.queued.Load() >= int64(c.cfg.QueueSize)*int64(queueCount) {
		return adapter.Failure(adapter.OutcomeTransportFailure, exception.ErrBatchQueueFull.Error(), false)
	}

	it := c.items.get(order, now)
	q := &c.queues[queueFor(rec.TimeInForce)]
	q.mu.Lock()
	q.items = append(q.items, it)
	q.mu.Unlock()
	c.queued.Add(1)
	if c.stopped.Load() {
		c.failQueued(adapter.Failure(adapter.OutcomeTransportFailure, exception.ErrBatchClosed.Error(), false))
	}

	select {
	case c.wake <- struct{}{}:
	default:
	}

	return c.await(ctx, it, timeout)
}

func (c *Coordinator) await(ctx context.Context, it *item, timeout time.Duration) adapter.Outcome {
	defer c.items.put(it)

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case out := <-it.done:
		return out
	case <-timer.C:
		return adapter.Failure(adapter.OutcomeTimeout, "no batch result before deadline", it.abandon())
	case <-ctx.Done():
		return adapter.Failure(adapter.OutcomeTimeout, ctx.Err().Error(), it.abandon())
	}
}

// Cancel sends a cancel action for rec directly. Cancels are never batched.
func (c *Coordinator) Cancel(ctx context.Context, rec adapter.OrderRecord, timeout time.Duration) adapter.Outcome {
	if c.BackingOff(time.Now()) {
		return adapter.Failure(adapter.OutcomeRateLimited, "rate limit backoff in effect", false)
	}
	route, err := c.deps.Router.Route(ctx, rec)
	if err != nil {
		return routeFailure(err)
	}
	action, err := c.deps.Codec.CancelAction(Order{Record: rec, Route: route})
	if err != nil {
		logs.Errorf("encode cancel action, err: %+v", err)
		return adapter.Failure(adapter.OutcomeTransportFailure, "encode cancel: "+err.Error(), false)
	}
	reply, fail, ok := c.exchange(ctx, action, timeout)
	if !ok {
		return fail
	}
	out, err := c.deps.Codec.DecodeCancel(reply)
	if err != nil {
		return c.decodeFailure(err)
	}
	return out
}

func (c *Coordinator) sendSingle(ctx context.Context, order Order, timeout time.Duration) adapter.Outcome {
	outs := c.send(ctx, []Order{order}, timeout)
	return outs[0]
}

// Run flushes the queues until ctx is done. Queued orders left at exit
// fail with TransportFailure.
func (c *Coordinator) Run(ctx context.Context) error {
	if c.running.Swap(true) {
		return exception.ErrBatchClosed
	}
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	var next time.Time
	for {
		select {
		case <-ctx.Done():
			c.stopped.Store(true)
			c.failQueued(adapter.Failure(adapter.OutcomeTransportFailure, exception.ErrBatchClosed.Error(), false))
			return nil
		case <-ticker.C:
		case <-c.wake:
		}

		now := time.Now()
		if c.BackingOff(now) {
			c.failQueued(adapter.Failure(adapter.OutcomeRateLimited, "rate limit backoff in effect", false))
			continue
		}
		if now.Before(next) {
			continue
		}
		if c.queued.Load() == 0 {
			continue
		}
		next = now.Add(c.cfg.Interval)
		c.Flush(ctx)
	}
}

// Flush drains the standard queue then the post-only queue and sends each.
func (c *Coordinator) Flush(ctx context.Context) {
	for k := range queueCount {
		items := c.drain(k)
		if len(items) == 0 {
			continue
		}
		c.flushItems(ctx, items)
	}
}

func (c *Coordinator) drain(k queueKind) []*item {
	q := &c.queues[k]
	q.mu.Lock()
	items := q.items
	q.items = make([]*item, 0, c.cfg.QueueSize)
	q.mu.Unlock()
	c.queued.Add(-int64(len(items)))
	return items
}

func (c *Coordinator) flushItems(ctx context.Context, items []*item) {
	live := items[:0]
	for _, it := range items {
		if it.claim() {
			live = append(live, it)
			continue
		}
		c.items.put(it)
	}

	limit := len(live)
	if l, ok := c.deps.Codec.(BatchLimiter); ok && l.MaxBatch() > 0 {
		limit = l.MaxBatch()
	}

	orders := make([]Order, 0, min(limit, len(live)))
	for start := 0; start < len(live); start += limit {
		chunk := live[start:min(start+limit, len(live))]
		if c.BackingOff(time.Now()) {
			c.fanOutUniform(chunk, adapter.Failure(adapter.OutcomeRateLimited, "rate limit backoff in effect", false))
			continue
		}

		orders = orders[:0]
		for _, it := range chunk {
			orders = append(orders, it.order)
		}
		begin := time.Now()
		outs := c.send(ctx, orders, c.cfg.PostTimeout)
		c.deps.Metrics.ObserveBatch(len(chunk), time.Since(begin))
		for i, it := range chunk {
			deliver(it, outs[i])
			c.items.put(it)
		}
	}
}

func (c *Coordinator) fanOutUniform(items []*item, out adapter.Outcome) {
	for _, it := range items {
		deliver(it, out)
		c.items.put(it)
	}
}

func (c *Coordinator) failQueued(out adapter.Outcome) {
	for k := range queueCount {
		items := c.drain(k)
		if len(items) > 0 {
			logs.Warnf("fail %d queued orders, reason: %s", len(items), out.Reason)
		}
		c.fanOutUniform(items, out)
	}
}

// send encodes, signs and posts orders as one action and returns exactly
// len(orders) outcomes in order.
func (c *Coordinator) send(ctx context.Context, orders []Order, timeout time.Duration) []adapter.Outcome {
	outs := make([]adapter.Outcome, len(orders))
	uniform := func(o adapter.Outcome) []adapter.Outcome {
		for i := range outs {
			outs[i] = o
		}
		return outs
	}

	action, err := c.deps.Codec.OrderAction(orders)
	if err != nil {
		logs.Errorf("encode order action, orders: %d, err: %+v", len(orders), err)
		return uniform(adapter.Failure(adapter.OutcomeTransportFailure, "encode orders: "+err.Error(), false))
	}

	reply, fail, ok := c.exchange(ctx, action, timeout)
	if !ok {
		return uniform(fail)
	}

	decoded, err := c.deps.Codec.DecodeOrders(reply, len(orders))
	if err != nil {
		return uniform(c.decodeFailure(err))
	}
	if len(decoded) != len(orders) {
		logs.Errorf("order reply length mismatch, want: %d, got: %d", len(orders), len(decoded))
		return uniform(adapter.Failure(adapter.OutcomeTransportFailure, exception.ErrOrderResponseLength.Error(), true))
	}
	copy(outs, decoded)
	return outs
}

// exchange signs action and posts it over the duplex transport, or over the
// fallback when the duplex connection is down. On failure it returns the
// outcome every affected request receives.
func (c *Coordinator) exchange(ctx context.Context, action any, timeout time.Duration) ([]byte, adapter.Outcome, bool) {
	nonce := c.deps.Nonce.Next()
	signCtx, cancel := context.WithTimeout(ctx, c.cfg.SignTimeout)
	sig, err := c.deps.Signer.Sign(signCtx, action, nonce)
	cancel()
	if err != nil {
		logs.Errorf("sign action, nonce: %d, err: %+v", nonce, err)
		return nil, adapter.Failure(adapter.OutcomeTransportFailure, "sign: "+err.Error(), false), false
	}

	kind, payload, err := c.deps.Codec.Envelope(action, nonce, sig)
	if err != nil {
		logs.Errorf("encode action envelope, err: %+v", err)
		return nil, adapter.Failure(adapter.OutcomeTransportFailure, "encode envelope: "+err.Error(), false), false
	}

	var reply []byte
	if c.deps.Transport != nil && c.deps.Transport.Connected() {
		reply, err = c.deps.Transport.Post(ctx, kind, payload, timeout)
		if errors.Is(err, exception.ErrNotConnected) && c.deps.Fallback != nil {
			reply, err = c.fallback(ctx, payload, timeout)
		}
	} else if c.deps.Fallback != nil {
		reply, err = c.fallback(ctx, payload, timeout)
	} else {
		err = exception.ErrNotConnected
	}
	if err != nil {
		return nil, c.transportFailure(err), false
	}
	return reply, adapter.Outcome{}, true
}

func (c *Coordinator) fallback(ctx context.Context, payload []byte, timeout time.Duration) ([]byte, error) {
	c.deps.Metrics.IncFallbackSend()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.deps.Fallback.Send(ctx, payload)
}

func (c *Coordinator) transportFailure(err error) adapter.Outcome {
	switch {
	case errors.Is(err, exception.ErrOrderRateLimited):
		c.startBackoff(time.Now())
		return adapter.Failure(adapter.OutcomeRateLimited, err.Error(), true)
	case errors.Is(err, exception.ErrDuplexPostTimeout), errors.Is(err, context.DeadlineExceeded):
		return adapter.Failure(adapter.OutcomeTimeout, err.Error(), true)
	case errors.Is(err, exception.ErrNotConnected), errors.Is(err, exception.ErrDuplexQueueFull):
		return adapter.Failure(adapter.OutcomeTransportFailure, err.Error(), false)
	default:
		logs.Warnf("post action, err: %+v", err)
		return adapter.Failure(adapter.OutcomeTransportFailure, err.Error(), true)
	}
}

func (c *Coordinator) decodeFailure(err error) adapter.Outcome {
	if errors.Is(err, exception.ErrOrderRateLimited) {
		c.startBackoff(time.Now())
		return adapter.Failure(adapter.OutcomeRateLimited, err.Error(), true)
	}
	logs.Errorf("decode order reply, err: %+v", err)
	return adapter.Failure(adapter.OutcomeTransportFailure, "decode reply: "+err.Error(), true)
}

func queueFor(tif enum.OrderTimeInForce) queueKind {
	if tif == enum.OrderTimeInForcePostOnly {
		return queuePostOnly
	}
	return queueStandard
}

func invalid(err error) adapter.Outcome {
	return adapter.Outcome{
		Code:       adapter.OutcomeRejected,
		Reason:     err.Error(),
		ReasonCode: adapter.ReasonInvalidParams,
	}
}

func routeFailure(err error) adapter.Outcome {
	if errors.Is(err, exception.ErrAssetNotFound) {
		return adapter.Failure(adapter.OutcomeNotFound, err.Error(), false)
	}
	if errors.Is(err, exception.ErrOrderInvalidRequest) {
		return invalid(err)
	}
	logs.Errorf("route order, err: %+v", err)
	return adapter.Failure(adapter.OutcomeTransportFailure, "route: "+err.Error(), false)
}
