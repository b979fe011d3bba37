package order

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"execgw/internal/adapter"
	"execgw/internal/adapter/enum"
	"execgw/internal/og"
	"execgw/pkg/exception"

	"github.com/yanun0323/logs"
)

// StatusQuerier asks the venue for the current state of one order.
// It returns exception.ErrOrderStatusUnknown when the venue has no record.
type StatusQuerier interface {
	OrderStatus(ctx context.Context, clientOrderID string) (adapter.OrderUpdate, error)
}

// Sink receives the confirmed state. *og.Tracker implements it.
type Sink interface {
	Order(clientOrderID string) (og.InFlightOrder, bool)
	ProcessOrderUpdate(u adapter.OrderUpdate) (og.InFlightOrder, error)
	ProcessOrderNotFound(clientOrderID string) (og.InFlightOrder, error)
	RevertCancel(clientOrderID string) (og.InFlightOrder, error)
}

type Config struct {
	Workers   int
	QueueSize int
	Attempts  int
	Interval  time.Duration
}

func (c *Config) normalize() {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.Attempts <= 0 {
		c.Attempts = 5
	}
	if c.Interval <= 0 {
		c.Interval = time.Second
	}
}

// Usecase confirms orders whose submit or cancel got no answer by polling
// the venue a bounded number of times. At most one poll runs per order.
type Usecase struct {
	cfg     Config
	querier StatusQuerier
	sink    Sink

	running atomic.Bool
	queue   chan string

	mu     sync.Mutex
	active map[string]struct{}
}

func NewUsecase(cfg Config, querier StatusQuerier, sink Sink) (*Usecase, error) {
	if querier == nil {
		return nil, exception.ErrOrderNilDelegator
	}
	if sink == nil {
		return nil, exception.ErrInvalidArgument
	}
	cfg.normalize()
	return &Usecase{
		cfg:     cfg,
		querier: querier,
		sink:    sink,
		queue:   make(chan string, cfg.QueueSize),
		active:  make(map[string]struct{}),
	}, nil
}

// Confirm schedules a confirmation for clientOrderID. It reports false when
// one is already scheduled or the queue is full.
func (use *Usecase) Confirm(clientOrderID string) bool {
	use.mu.Lock()
	if _, ok := use.active[clientOrderID]; ok {
		use.mu.Unlock()
		return false
	}
	use.active[clientOrderID] = struct{}{}
	use.mu.Unlock()

	select {
	case use.queue <- clientOrderID:
		return true
	default:
		use.release(clientOrderID)
		logs.Warnf("confirm queue full, drop order %s", clientOrderID)
		return false
	}
}

// Active returns the number of scheduled or running confirmations.
func (use *Usecase) Active() int {
	use.mu.Lock()
	defer use.mu.Unlock()
	return len(use.active)
}

func (use *Usecase) release(id string) {
	use.mu.Lock()
	delete(use.active, id)
	use.mu.Unlock()
}

// Run starts the workers and blocks until ctx is done.
func (use *Usecase) Run(ctx context.Context) error {
	if use.running.Swap(true) {
		return nil
	}

	var wg sync.WaitGroup
	for range use.cfg.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			use.worker(ctx)
		}()
	}
	wg.Wait()
	return nil
}

func (use *Usecase) worker(ctx context.Context) {
	for {
		select {
		case id := <-use.queue:
			use.confirm(ctx, id)
			use.release(id)
		case <-ctx.Done():
			return
		}
	}
}

// confirm polls until the order is live or terminal. A cancel that is still
// pending when attempts run out while the venue reports the order live was
// not applied, so the order returns to its previous state.
func (use *Usecase) confirm(ctx context.Context, id string) {
	timer := time.NewTimer(use.cfg.Interval)
	defer timer.Stop()

	venueLive := false
	for attempt := 0; attempt < use.cfg.Attempts; attempt++ {
		if attempt > 0 {
			timer.Reset(use.cfg.Interval)
		}
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		cur, ok := use.sink.Order(id)
		if !ok || resolved(cur) {
			return
		}

		u, err := use.querier.OrderStatus(ctx, id)
		switch {
		case errors.Is(err, exception.ErrOrderStatusUnknown):
			venueLive = false
			cur, err = use.sink.ProcessOrderNotFound(id)
		case err != nil:
			logs.Warnf("query order status %s, attempt: %d, err: %+v", id, attempt+1, err)
			continue
		default:
			venueLive = u.State.IsLive()
			u.ClientOrderID = id
			cur, err = use.sink.ProcessOrderUpdate(u)
		}
		if err != nil && !errors.Is(err, og.ErrInvalidTransition) {
			logs.Warnf("apply order status %s, err: %+v", id, err)
		}
		if resolved(cur) {
			logs.Debugf("order %s confirmed %s after %d attempts", id, cur.State, attempt+1)
			return
		}
	}

	cur, ok := use.sink.Order(id)
	if ok && cur.State == enum.OrderStatePendingCancel && venueLive {
		if _, err := use.sink.RevertCancel(id); err != nil {
			logs.Warnf("revert cancel %s, err: %+v", id, err)
		}
		return
	}
	logs.Warnf("order %s unconfirmed after %d attempts", id, use.cfg.Attempts)
}

func resolved(o og.InFlightOrder) bool {
	return o.State.IsTerminal() || (o.State.IsLive() && o.State != enum.OrderStatePendingCancel)
}
