package batch

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"execgw/internal/adapter"
	"execgw/internal/adapter/enum"
	"execgw/pkg/exception"
)

// csvCodec encodes an action as the comma separated client ids and decodes
// replies of the form "ok=<venue id>" or "rej=<reason>" per position.
type csvCodec struct {
	maxBatch int
}

func (c csvCodec) MaxBatch() int { return c.maxBatch }

func (csvCodec) OrderAction(orders []Order) (any, error) {
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.Record.ClientOrderID.String())
	}
	return ids, nil
}

func (csvCodec) CancelAction(o Order) (any, error) {
	return []string{"cancel:" + o.Record.ClientOrderID.String()}, nil
}

func (csvCodec) Envelope(action any, _ uint64, _ adapter.Signature) (string, []byte, error) {
	return "action", []byte(strings.Join(action.([]string), ",")), nil
}

func (csvCodec) DecodeOrders(reply []byte, n int) ([]adapter.Outcome, error) {
	if string(reply) == "ratelimit" {
		return nil, exception.ErrOrderRateLimited
	}
	parts := strings.Split(string(reply), ",")
	outs := make([]adapter.Outcome, 0, len(parts))
	for _, p := range parts {
		k, v, _ := strings.Cut(p, "=")
		if k == "ok" {
			outs = append(outs, adapter.Accepted(v))
		} else {
			outs = append(outs, adapter.Rejected(v))
		}
	}
	return outs, nil
}

func (csvCodec) DecodeCancel(reply []byte) (adapter.Outcome, error) {
	if string(reply) == "success" {
		return adapter.Accepted(""), nil
	}
	return adapter.Rejected(string(reply)), nil
}

type fakeTransport struct {
	connected atomic.Bool
	calls     atomic.Int32
	mu        sync.Mutex
	payloads  []string
	handler   func(payload string) ([]byte, error)
}

func newFakeTransport(handler func(string) ([]byte, error)) *fakeTransport {
	t := &fakeTransport{handler: handler}
	t.connected.Store(true)
	return t
}

func (t *fakeTransport) Connected() bool { return t.connected.Load() }

func (t *fakeTransport) Post(_ context.Context, _ string, payload []byte, _ time.Duration) ([]byte, error) {
	t.calls.Add(1)
	t.mu.Lock()
	t.payloads = append(t.payloads, string(payload))
	t.mu.Unlock()
	return t.handler(string(payload))
}

func (t *fakeTransport) Send(ctx context.Context, payload []byte) ([]byte, error) {
	return t.Post(ctx, "", payload, 0)
}

func (t *fakeTransport) sent() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.payloads...)
}

// acceptAll replies ok with the venue id "v-<client id>" for every order.
func acceptAll(payload string) ([]byte, error) {
	ids := strings.Split(payload, ",")
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = "ok=v-" + id
	}
	return []byte(strings.Join(parts, ",")), nil
}

type fakeSigner struct {
	err error
}

func (s fakeSigner) Sign(context.Context, any, uint64) (adapter.Signature, error) {
	return adapter.Signature{R: "0x1", S: "0x2", V: 27}, s.err
}

type fakeRouter struct{}

func (fakeRouter) Route(_ context.Context, rec adapter.OrderRecord) (adapter.Route, error) {
	if rec.Symbol.String() == "NOPE" {
		return adapter.Route{}, exception.ErrAssetNotFound
	}
	return adapter.Route{AssetID: 1, Price: "100", Size: "1"}, nil
}

type counterNonce struct {
	n atomic.Uint64
}

func (c *counterNonce) Next() uint64 { return c.n.Add(1) }

func gtc(id string) adapter.OrderRecord {
	return adapter.OrderRecord{
		ClientOrderID: adapter.NewStr64(id),
		Symbol:        adapter.NewStr64("BTC"),
		Side:          enum.OrderSideBuy,
		Kind:          enum.OrderKindLimit,
		TimeInForce:   enum.OrderTimeInForceGTC,
		Quantity:      1,
		Price:         100,
		HasPrice:      true,
	}
}

func withTIF(rec adapter.OrderRecord, tif enum.OrderTimeInForce) adapter.OrderRecord {
	rec.TimeInForce = tif
	return rec
}
