package publisher

import (
	"context"
	"sync"
	"testing"
	"time"

	"execgw/internal/adapter/enum"
	"execgw/internal/og"

	"github.com/bytedance/sonic"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	closed bool
}

func (w *memWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *memWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *memWriter) snapshot() ([]kafka.Message, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.msgs...), w.closed
}

func TestEncode(t *testing.T) {
	at := time.Unix(1_700_000_000, 0).UTC()
	msg, err := encode(og.Event{
		Kind: og.EventFilled,
		Order: og.InFlightOrder{
			ClientOrderID: "0xabc",
			Symbol:        "BTC",
			Side:          enum.OrderSideSell,
			State:         enum.OrderStatePartiallyFilled,
			Quantity:      2,
			FilledQty:     1,
			AvgPrice:      100,
			UpdatedAt:     at,
			Seq:           7,
		},
		Fill: &og.Fill{ID: "t1", Price: 100, Quantity: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, "0xabc", string(msg.Key))
	assert.Equal(t, at, msg.Time)
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "filled", string(msg.Headers[0].Value))

	var decoded eventMessage
	require.NoError(t, sonic.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "filled", decoded.Event)
	assert.Equal(t, "partially_filled", decoded.State)
	assert.Equal(t, uint64(7), decoded.Seq)
	require.NotNil(t, decoded.Fill)
	assert.Equal(t, "t1", decoded.Fill.ID)
}

func TestPublisherRun(t *testing.T) {
	w := &memWriter{}
	p := New(w, 16)
	l := p.Listener()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	for i := range 5 {
		l(og.Event{Kind: og.EventUpdated, Order: og.InFlightOrder{ClientOrderID: string(rune('a' + i))}})
	}
	require.Eventually(t, func() bool { return p.Sent() == 5 }, time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	msgs, closed := w.snapshot()
	assert.True(t, closed)
	require.Len(t, msgs, 5)
	for i, m := range msgs {
		assert.Equal(t, string(rune('a'+i)), string(m.Key))
	}
}

func TestPublisherDropsWhenFull(t *testing.T) {
	p := New(&memWriter{}, 2)
	l := p.Listener()
	for range 5 {
		l(og.Event{Kind: og.EventCreated})
	}
	assert.Equal(t, uint64(3), p.Dropped())
}
