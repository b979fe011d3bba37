package risk

import (
	"math"
	"sync"
	"time"

	"execgw/internal/adapter"
)

// Reason names the limit that blocked an order.
type Reason uint8

const (
	ReasonNone Reason = iota
	ReasonKillSwitch
	ReasonRateLimit
	ReasonMaxQty
	ReasonMaxNotional
	ReasonMaxOpenOrders
)

func (r Reason) String() string {
	switch r {
	case ReasonKillSwitch:
		return "kill switch engaged"
	case ReasonRateLimit:
		return "order rate limit exceeded"
	case ReasonMaxQty:
		return "order quantity above limit"
	case ReasonMaxNotional:
		return "order notional above limit"
	case ReasonMaxOpenOrders:
		return "too many open orders for symbol"
	default:
		return "none"
	}
}

// Config defines simple pre-trade limits. Zero disables a limit.
type Config struct {
	KillSwitch       bool          `mapstructure:"kill_switch"`
	MaxOrderQty      float64       `mapstructure:"max_order_qty"`
	MaxOrderNotional float64       `mapstructure:"max_order_notional"`
	MaxOpenOrders    int           `mapstructure:"max_open_orders"`
	OrderRateLimit   int           `mapstructure:"order_rate_limit"`
	OrderRateWindow  time.Duration `mapstructure:"order_rate_window"`
}

// View is the account state the decision depends on.
type View struct {
	// OpenOrders counts non-terminal orders on the same symbol.
	OpenOrders int
	Now        time.Time
}

// Decision is the result of Evaluate.
type Decision struct {
	Allow    bool
	Reason   Reason
	Notional float64
}

// Engine evaluates orders against static limits. It is safe for concurrent use.
type Engine struct {
	cfg Config

	mu              sync.Mutex
	rateWindowStart time.Time
	rateCount       int
}

// NewEngine creates a risk engine with static limits.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Evaluate applies the checks in a fixed order and stops at the first breach.
// Only allowed orders count toward the rate window.
func (e *Engine) Evaluate(rec adapter.OrderRecord, view View) Decision {
	decision := Decision{Allow: true}
	if rec.HasPrice {
		decision.Notional = math.Abs(rec.Price * rec.Quantity)
	}

	deny := func(r Reason) Decision {
		decision.Allow = false
		decision.Reason = r
		return decision
	}

	if e.cfg.KillSwitch {
		return deny(ReasonKillSwitch)
	}
	if e.cfg.MaxOrderQty > 0 && rec.Quantity > e.cfg.MaxOrderQty {
		return deny(ReasonMaxQty)
	}
	if e.cfg.MaxOrderNotional > 0 && decision.Notional > e.cfg.MaxOrderNotional {
		return deny(ReasonMaxNotional)
	}
	if e.cfg.MaxOpenOrders > 0 && view.OpenOrders >= e.cfg.MaxOpenOrders {
		return deny(ReasonMaxOpenOrders)
	}

	if e.cfg.OrderRateLimit > 0 && e.cfg.OrderRateWindow > 0 {
		now := view.Now
		if now.IsZero() {
			now = time.Now()
		}
		e.mu.Lock()
		if e.rateWindowStart.IsZero() || now.Sub(e.rateWindowStart) >= e.cfg.OrderRateWindow {
			e.rateWindowStart = now
			e.rateCount = 0
		}
		if e.rateCount >= e.cfg.OrderRateLimit {
			e.mu.Unlock()
			return deny(ReasonRateLimit)
		}
		e.rateCount++
		e.mu.Unlock()
	}

	return decision
}

// Outcome converts a denial into the submit outcome callers receive.
func (d Decision) Outcome() adapter.Outcome {
	return adapter.Outcome{
		Code:       adapter.OutcomeRejected,
		Reason:     d.Reason.String(),
		ReasonCode: adapter.ReasonRiskBlocked,
	}
}
