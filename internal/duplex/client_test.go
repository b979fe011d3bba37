package duplex

import (
	"context"
	"sync"
	"testing"
	"time"

	"execgw/internal/bus"
	"execgw/internal/obs"
	"execgw/pkg/exception"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, cfg Config) (*Client, *fakeDialer) {
	t.Helper()
	d := &fakeDialer{}
	cfg.Dialer = d
	cfg.Codec = lineCodec{}
	if cfg.PingInterval == 0 {
		cfg.PingInterval = -1
	}
	c, err := NewClient(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, d
}

func nextFrame(t *testing.T, conn *fakeConn) []byte {
	t.Helper()
	select {
	case f := <-conn.outbound:
		return f
	case <-time.After(2 * time.Second):
		t.Fatalf("no outbound frame")
		return nil
	}
}

func TestClientRequiresDialerAndCodec(t *testing.T) {
	_, err := NewClient(Config{Codec: lineCodec{}})
	require.ErrorIs(t, err, exception.ErrWebSocketNilDialer)
	_, err = NewClient(Config{Dialer: &fakeDialer{}})
	require.ErrorIs(t, err, exception.ErrDuplexNilCodec)
}

func TestClientPostNotConnected(t *testing.T) {
	c, _ := newTestClient(t, Config{})
	_, err := c.Post(context.Background(), "action", []byte("{}"), time.Second)
	require.ErrorIs(t, err, exception.ErrNotConnected)
	require.Equal(t, StateDisconnected, c.State())
}

func TestClientPostRoundTrip(t *testing.T) {
	m := obs.NewMetrics()
	c, d := newTestClient(t, Config{Metrics: m})
	require.NoError(t, c.Connect(context.Background()))
	require.ErrorIs(t, c.Connect(context.Background()), exception.ErrDuplexAlreadyStarted)
	conn := d.last()

	go func() {
		id, kind, payload, ok := parsePost(<-conn.outbound)
		if !ok || kind != "action" || payload != `{"x":1}` {
			return
		}
		conn.inbound <- reply(id, "accepted")
	}()

	got, err := c.Post(context.Background(), "action", []byte(`{"x":1}`), time.Second)
	require.NoError(t, err)
	require.Equal(t, "accepted", string(got))
	require.Zero(t, c.Pending())
	require.EqualValues(t, 1, m.Snapshot().Posts)
}

func TestClientConcurrentPostsCorrelate(t *testing.T) {
	c, d := newTestClient(t, Config{})
	require.NoError(t, c.Connect(context.Background()))
	conn := d.last()

	// answer in reverse order of arrival
	go func() {
		frames := make([][]byte, 0, 8)
		for range 8 {
			frames = append(frames, <-conn.outbound)
		}
		for i := len(frames) - 1; i >= 0; i-- {
			id, _, payload, _ := parsePost(frames[i])
			conn.inbound <- reply(id, "re:"+payload)
		}
	}()

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			payload := string(rune('a' + i))
			got, err := c.Post(context.Background(), "action", []byte(payload), 2*time.Second)
			assert.NoError(t, err)
			assert.Equal(t, "re:"+payload, string(got))
		}()
	}
	wg.Wait()
}

func TestClientPostTimeoutDiscardsLateReply(t *testing.T) {
	m := obs.NewMetrics()
	c, d := newTestClient(t, Config{Metrics: m})
	require.NoError(t, c.Connect(context.Background()))
	conn := d.last()

	go func() {
		id, _, _, _ := parsePost(<-conn.outbound)
		time.Sleep(300 * time.Millisecond)
		conn.inbound <- reply(id, "late")
	}()

	start := time.Now()
	_, err := c.Post(context.Background(), "action", nil, 200*time.Millisecond)
	require.ErrorIs(t, err, exception.ErrDuplexPostTimeout)
	require.Less(t, time.Since(start), 290*time.Millisecond)
	require.Zero(t, c.Pending())

	require.Eventually(t, func() bool { return m.Snapshot().LateReplies == 1 }, 2*time.Second, 10*time.Millisecond)
	require.EqualValues(t, 1, m.Snapshot().PostTimeouts)
	require.True(t, c.Connected(), "a late reply does not break the connection")
}

func TestClientDisconnectFailsPending(t *testing.T) {
	c, d := newTestClient(t, Config{})
	require.NoError(t, c.Connect(context.Background()))
	conn := d.last()

	go func() {
		<-conn.outbound
		<-conn.outbound
		conn.drop()
	}()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = c.Post(context.Background(), "action", nil, 5*time.Second)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		require.ErrorIs(t, err, exception.ErrConnectionClosed)
	}
	<-c.SessionDone()
	require.Equal(t, StateDisconnected, c.State())
	require.Zero(t, c.Pending())

	_, err := c.Post(context.Background(), "action", nil, time.Second)
	require.ErrorIs(t, err, exception.ErrNotConnected)

	require.NoError(t, c.Connect(context.Background()), "client reconnects after a drop")
	require.EqualValues(t, 2, d.dials.Load())
}

func TestClientPostContextCancel(t *testing.T) {
	c, _ := newTestClient(t, Config{})
	require.NoError(t, c.Connect(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Post(ctx, "action", nil, 5*time.Second)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Zero(t, c.Pending())
}

func TestClientWritesInSubmissionOrder(t *testing.T) {
	c, d := newTestClient(t, Config{})
	require.NoError(t, c.Connect(context.Background()))
	conn := d.last()

	for _, topic := range []string{"orderUpdates", "userFills", "userEvents"} {
		require.NoError(t, c.Subscribe(topic, nil))
	}
	assert.Equal(t, "sub|0|orderUpdates", string(nextFrame(t, conn)))
	assert.Equal(t, "sub|0|userFills", string(nextFrame(t, conn)))
	assert.Equal(t, "sub|0|userEvents", string(nextFrame(t, conn)))
}

func TestClientDispatchesPushes(t *testing.T) {
	var mu sync.Mutex
	var got []bus.Event
	c, d := newTestClient(t, Config{OnPush: func(e bus.Event) {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
	}})
	require.NoError(t, c.Connect(context.Background()))
	conn := d.last()

	conn.inbound <- []byte("push||orderUpdates|[1]")
	conn.inbound <- []byte("pong|||")
	conn.inbound <- []byte("push||userFills|{}")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "orderUpdates", got[0].Channel)
	assert.Equal(t, "[1]", string(got[0].Data))
	assert.Equal(t, "userFills", got[1].Channel)
	assert.False(t, got[1].RecvTime.IsZero())
}

func TestClientHeartbeat(t *testing.T) {
	c, d := newTestClient(t, Config{PingInterval: 20 * time.Millisecond})
	require.True(t, c.LastPing().IsZero())
	require.NoError(t, c.Connect(context.Background()))
	conn := d.last()

	assert.Equal(t, "ping", string(nextFrame(t, conn)))
	require.False(t, c.LastPing().IsZero())

	before := c.LastMessage()
	time.Sleep(5 * time.Millisecond)
	conn.inbound <- []byte("pong|||")
	require.Eventually(t, func() bool { return c.LastMessage().After(before) }, time.Second, 5*time.Millisecond)
}

func TestClientStale(t *testing.T) {
	c, _ := newTestClient(t, Config{})
	require.False(t, c.Stale(time.Now().Add(time.Hour), time.Second), "disconnected client is never stale")

	require.NoError(t, c.Connect(context.Background()))
	require.False(t, c.Stale(time.Now(), time.Minute))
	require.True(t, c.Stale(time.Now().Add(time.Hour), time.Minute))
	require.False(t, c.Stale(time.Now().Add(time.Hour), 0))
}
