package duplex

import (
	"bytes"
	"context"
	"strconv"
	"sync"
	"sync/atomic"

	"execgw/pkg/exception"
	"execgw/pkg/websocket"
)

// lineCodec frames messages as "kind|id|channel|data".
type lineCodec struct{}

func (lineCodec) EncodePost(dst []byte, id uint64, kind string, payload []byte) ([]byte, error) {
	dst = append(dst, "post|"...)
	dst = strconv.AppendUint(dst, id, 10)
	dst = append(dst, '|')
	dst = append(dst, kind...)
	dst = append(dst, '|')
	return append(dst, payload...), nil
}

func (lineCodec) EncodeSubscribe(dst []byte, topic string, _ map[string]string) ([]byte, error) {
	return append(append(dst, "sub|0|"...), topic...), nil
}

func (lineCodec) EncodePing(dst []byte) ([]byte, error) {
	return append(dst, "ping"...), nil
}

func (lineCodec) Decode(frame []byte) (Inbound, error) {
	parts := bytes.SplitN(frame, []byte("|"), 4)
	switch string(parts[0]) {
	case "reply":
		id, err := strconv.ParseUint(string(parts[1]), 10, 64)
		if err != nil {
			return Inbound{}, err
		}
		return Inbound{Kind: InboundReply, ID: id, Data: parts[3]}, nil
	case "push":
		return Inbound{Kind: InboundPush, Channel: string(parts[2]), Data: parts[3]}, nil
	case "pong":
		return Inbound{Kind: InboundPong}, nil
	}
	return Inbound{Kind: InboundIgnore}, nil
}

type fakeConn struct {
	inbound  chan []byte
	outbound chan []byte
	closed   chan struct{}
	once     sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound:  make(chan []byte, 64),
		outbound: make(chan []byte, 64),
		closed:   make(chan struct{}),
	}
}

func (c *fakeConn) Read(ctx context.Context, dst []byte) (int, websocket.MessageType, error) {
	select {
	case <-ctx.Done():
		return 0, 0, ctx.Err()
	case <-c.closed:
		return 0, 0, exception.ErrWebSocketConnectionClose
	case msg := <-c.inbound:
		return copy(dst, msg), websocket.MessageText, nil
	}
}

func (c *fakeConn) Write(ctx context.Context, _ websocket.MessageType, payload []byte) error {
	select {
	case <-c.closed:
		return exception.ErrWebSocketConnectionClose
	default:
	}
	select {
	case c.outbound <- bytes.Clone(payload):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *fakeConn) Close(websocket.CloseCode, string) error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// drop simulates the venue closing the socket.
func (c *fakeConn) drop() {
	c.Close(websocket.CloseGoingAway, "")
}

type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	dials atomic.Int32
}

func (d *fakeDialer) Dial(context.Context) (websocket.Conn, error) {
	d.dials.Add(1)
	c := newFakeConn()
	d.mu.Lock()
	d.conns = append(d.conns, c)
	d.mu.Unlock()
	return c, nil
}

func (d *fakeDialer) last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[len(d.conns)-1]
}

// parsePost splits an outbound post frame into id and payload.
func parsePost(frame []byte) (uint64, string, string, bool) {
	parts := bytes.SplitN(frame, []byte("|"), 4)
	if len(parts) != 4 || string(parts[0]) != "post" {
		return 0, "", "", false
	}
	id, err := strconv.ParseUint(string(parts[1]), 10, 64)
	if err != nil {
		return 0, "", "", false
	}
	return id, string(parts[2]), string(parts[3]), true
}

func reply(id uint64, data string) []byte {
	return []byte("reply|" + strconv.FormatUint(id, 10) + "||" + data)
}
