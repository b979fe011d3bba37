package batch

import (
	"context"
	"time"

	"execgw/internal/adapter"
)

// Order is an admitted order with its venue routing.
type Order struct {
	Record adapter.OrderRecord
	Route  adapter.Route
}

// Transport is the duplex request path.
type Transport interface {
	Connected() bool
	Post(ctx context.Context, kind string, payload []byte, timeout time.Duration) ([]byte, error)
}

// Fallback is a synchronous request path used while the duplex connection is down.
type Fallback interface {
	Send(ctx context.Context, payload []byte) ([]byte, error)
}

// Codec is the venue specific action encoding.
//
// DecodeOrders must return exactly n outcomes in submission order, or
// exception.ErrOrderRateLimited when the venue signalled overload.
type Codec interface {
	OrderAction(orders []Order) (any, error)
	CancelAction(order Order) (any, error)
	Envelope(action any, nonce uint64, sig adapter.Signature) (kind string, payload []byte, err error)
	DecodeOrders(reply []byte, n int) ([]adapter.Outcome, error)
	DecodeCancel(reply []byte) (adapter.Outcome, error)
}

// BatchLimiter is implemented by codecs that cap the number of orders per action.
type BatchLimiter interface {
	MaxBatch() int
}

// Signer signs an action for a nonce. It may be remote and slow.
type Signer interface {
	Sign(ctx context.Context, action any, nonce uint64) (adapter.Signature, error)
}

// Router resolves the venue asset and normalizes price and size.
type Router interface {
	Route(ctx context.Context, rec adapter.OrderRecord) (adapter.Route, error)
}

// NonceSource hands out strictly increasing nonces.
type NonceSource interface {
	Next() uint64
}
