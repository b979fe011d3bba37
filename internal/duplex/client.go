package duplex

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"execgw/internal/bus"
	"execgw/internal/obs"
	"execgw/pkg/exception"
	"execgw/pkg/websocket"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

// State is the connection state of a Client.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

const (
	defaultWriteQueueSize = 1024
	defaultPushQueueSize  = 4096
	defaultReadBufferSize = 1 << 20
	defaultPingInterval   = 30 * time.Second
	defaultWriteTimeout   = 5 * time.Second
)

// Config defines the client runtime configuration.
type Config struct {
	Dialer         websocket.Dialer
	Codec          FrameCodec
	WriteQueueSize int
	WriteOverflow  websocket.OverflowPolicy
	WriteTimeout   time.Duration
	PushQueueSize  int
	ReadBufferSize int
	// PingInterval is the keepalive period, negative disables keepalives.
	PingInterval time.Duration
	// OnPush receives push messages on the dispatcher goroutine.
	OnPush  func(bus.Event)
	Metrics *obs.Metrics
}

// Client owns one persistent duplex connection and correlates requests
// with replies over it. Connect may be called again after the connection
// drops; correlation ids keep increasing across reconnects.
type Client struct {
	cfg    Config
	ids    *obs.Sequence
	table  *Table
	writer *websocket.Writer
	push   *bus.Queue

	state    atomic.Int32
	lastMsg  atomic.Int64
	lastPing atomic.Int64

	mu          sync.Mutex
	conn        websocket.Conn
	sessionStop context.CancelFunc
	sessionDone chan struct{}

	life       context.Context
	lifeCancel context.CancelFunc
	dispatched chan struct{}
	closeOnce  sync.Once
}

// NewClient validates config and builds a disconnected client.
// The push dispatcher starts immediately and stops on Close.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Dialer == nil {
		return nil, exception.ErrWebSocketNilDialer
	}
	if cfg.Codec == nil {
		return nil, exception.ErrDuplexNilCodec
	}
	if cfg.WriteQueueSize <= 0 {
		cfg.WriteQueueSize = defaultWriteQueueSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.PushQueueSize <= 0 {
		cfg.PushQueueSize = defaultPushQueueSize
	}
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = defaultReadBufferSize
	}
	if cfg.PingInterval == 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.WriteOverflow == websocket.OverflowBlock {
		cfg.WriteOverflow = websocket.OverflowDropNewest
	}

	life, cancel := context.WithCancel(context.Background())
	c := &Client{
		cfg:        cfg,
		ids:        obs.NewSequence(0),
		table:      NewTable(),
		writer:     websocket.NewWriter(websocket.NewOutboundPool(websocket.DefaultBufferPool()), cfg.WriteQueueSize, cfg.WriteOverflow),
		push:       bus.NewQueue(cfg.PushQueueSize),
		life:       life,
		lifeCancel: cancel,
		dispatched: make(chan struct{}),
	}
	c.writer.OnDrop(func(f *websocket.OutboundFrame) {
		if f.Kind == websocket.FrameRequest {
			c.table.Fail(f.ID, exception.ErrConnectionClosed)
		}
	})

	go func() {
		defer close(c.dispatched)
		handler := cfg.OnPush
		if handler == nil {
			handler = func(bus.Event) {}
		}
		c.push.Run(context.Background(), handler)
	}()
	return c, nil
}

// State returns the current connection state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// Connected reports whether requests can be posted.
func (c *Client) Connected() bool {
	return c.State() == StateConnected
}

// LastMessage returns when the last inbound frame arrived.
func (c *Client) LastMessage() time.Time {
	return unixNano(c.lastMsg.Load())
}

// LastPing returns when the last keepalive was queued.
func (c *Client) LastPing() time.Time {
	return unixNano(c.lastPing.Load())
}

// Stale reports a connection that has been silent for longer than maxIdle.
func (c *Client) Stale(now time.Time, maxIdle time.Duration) bool {
	if maxIdle <= 0 || !c.Connected() {
		return false
	}
	last := c.LastMessage()
	return !last.IsZero() && now.Sub(last) > maxIdle
}

// Pending returns the number of requests awaiting a reply.
func (c *Client) Pending() int {
	return c.table.Len()
}

// Connect dials and starts the reader, writer and heartbeat goroutines.
func (c *Client) Connect(ctx context.Context) error {
	if c.life.Err() != nil {
		return exception.ErrConnectionClosed
	}
	if !c.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
		return exception.ErrDuplexAlreadyStarted
	}

	conn, err := c.cfg.Dialer.Dial(ctx)
	if err != nil {
		c.state.Store(int32(StateDisconnected))
		return errors.Wrap(err, "dial duplex connection")
	}

	sessionCtx, stop := context.WithCancel(c.life)
	done := make(chan struct{})
	c.mu.Lock()
	c.conn = conn
	c.sessionStop = stop
	c.sessionDone = done
	c.mu.Unlock()

	c.lastMsg.Store(time.Now().UnixNano())
	c.writer.SetConnected(true)
	c.state.Store(int32(StateConnected))

	go c.runSession(sessionCtx, stop, conn, done)
	logs.Infof("duplex connected")
	return nil
}

// SessionDone is closed when the current connection ends. It returns a
// closed channel when no connection was ever established.
func (c *Client) SessionDone() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessionDone == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.sessionDone
}

// Disconnect ends the current connection and waits for its goroutines.
// Pending requests fail with exception.ErrConnectionClosed.
func (c *Client) Disconnect() {
	c.mu.Lock()
	stop, done := c.sessionStop, c.sessionDone
	c.mu.Unlock()
	if stop == nil {
		return
	}
	stop()
	<-done
}

// Close disconnects and stops the push dispatcher. The client cannot be reused.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.lifeCancel()
		c.Disconnect()
		c.push.Close()
		<-c.dispatched
	})
	return nil
}

// Post sends a correlated request and waits for its reply.
//
// It returns exception.ErrNotConnected or exception.ErrDuplexQueueFull when
// the frame never left the process, exception.ErrDuplexPostTimeout when no
// reply arrived within timeout and exception.ErrConnectionClosed when the
// connection dropped while waiting.
func (c *Client) Post(ctx context.Context, kind string, payload []byte, timeout time.Duration) ([]byte, error) {
	if !c.Connected() {
		return nil, exception.ErrNotConnected
	}
	id := c.ids.Next()
	frame, err := c.cfg.Codec.EncodePost(nil, id, kind, payload)
	if err != nil {
		return nil, errors.Wrap(err, "encode post frame")
	}

	start := time.Now()
	p := c.table.Insert(id)
	if err := c.writer.Send(websocket.FrameRequest, id, websocket.MessageText, frame); err != nil {
		c.table.Remove(id)
		if err == websocket.ErrQueueFull {
			return nil, exception.ErrDuplexQueueFull
		}
		return nil, exception.ErrNotConnected
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var waitErr error
	select {
	case <-p.Done():
		reply, err := p.Result()
		c.cfg.Metrics.ObservePost(time.Since(start), false)
		return reply, err
	case <-timer.C:
		waitErr = exception.ErrDuplexPostTimeout
	case <-ctx.Done():
		waitErr = ctx.Err()
	}

	if c.table.Remove(id) {
		c.cfg.Metrics.ObservePost(0, true)
		return nil, waitErr
	}
	// the reader resolved it while the timer fired
	<-p.Done()
	c.cfg.Metrics.ObservePost(time.Since(start), false)
	return p.Result()
}

// Subscribe sends a fire-and-forget subscription control frame.
func (c *Client) Subscribe(topic string, fields map[string]string) error {
	frame, err := c.cfg.Codec.EncodeSubscribe(nil, topic, fields)
	if err != nil {
		return errors.Wrap(err, "encode subscribe frame").With("topic", topic)
	}
	switch err := c.writer.Send(websocket.FrameControl, 0, websocket.MessageText, frame); err {
	case nil:
		return nil
	case websocket.ErrQueueFull:
		return exception.ErrDuplexQueueFull
	default:
		return exception.ErrNotConnected
	}
}

func (c *Client) runSession(ctx context.Context, stop context.CancelFunc, conn websocket.Conn, done chan struct{}) {
	errCh := make(chan error, 2)
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		errCh <- c.readLoop(ctx, conn)
	}()
	go func() {
		defer wg.Done()
		errCh <- c.writeLoop(ctx, conn)
	}()
	go func() {
		defer wg.Done()
		c.heartbeat(ctx)
	}()

	var err error
	select {
	case err = <-errCh:
	case <-ctx.Done():
	}
	requested := err == nil

	c.writer.SetConnected(false)
	stop()
	_ = conn.Close(websocket.CloseNormal, "")
	wg.Wait()

	c.writer.Drain()
	failed := c.table.FailAll(exception.ErrConnectionClosed)

	c.mu.Lock()
	c.conn = nil
	c.sessionStop = nil
	c.mu.Unlock()
	c.state.Store(int32(StateDisconnected))
	close(done)

	if !requested {
		logs.Warnf("duplex disconnected, failed pending: %d, err: %+v", failed, err)
	} else {
		logs.Infof("duplex closed, failed pending: %d", failed)
	}
}

func (c *Client) readLoop(ctx context.Context, conn websocket.Conn) error {
	buf := make([]byte, c.cfg.ReadBufferSize)
	for {
		n, msgType, err := conn.Read(ctx, buf)
		if err != nil {
			return errors.Wrap(err, "read frame")
		}
		now := time.Now()
		c.lastMsg.Store(now.UnixNano())
		if n <= 0 || !msgType.IsData() {
			continue
		}

		in, err := c.cfg.Codec.Decode(bytes.Clone(buf[:n]))
		if err != nil {
			logs.Warnf("decode inbound frame, err: %+v", err)
			continue
		}
		switch in.Kind {
		case InboundReply:
			if !c.table.Resolve(in.ID, in.Data) {
				c.cfg.Metrics.IncLateReply()
				logs.Debugf("discard reply for request %d, no longer pending", in.ID)
			}
		case InboundPush:
			if err := c.push.TryPublish(bus.Event{Channel: in.Channel, Data: in.Data, RecvTime: now}); err != nil {
				c.cfg.Metrics.IncPushDropped()
				logs.Warnf("drop push on channel %s, err: %+v", in.Channel, err)
			}
		}
	}
}

func (c *Client) writeLoop(ctx context.Context, conn websocket.Conn) error {
	for {
		frame, ok := c.writer.Next(ctx)
		if !ok {
			return ctx.Err()
		}
		wctx, cancel := context.WithTimeout(ctx, c.cfg.WriteTimeout)
		err := conn.Write(wctx, frame.MsgType, frame.Buf)
		cancel()
		if err != nil {
			if frame.Kind == websocket.FrameRequest {
				c.table.Fail(frame.ID, exception.ErrConnectionClosed)
			}
			frame.Release()
			return errors.Wrap(err, "write frame")
		}
		frame.Release()
	}
}

func (c *Client) heartbeat(ctx context.Context) {
	if c.cfg.PingInterval < 0 {
		return
	}
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			payload, err := c.cfg.Codec.EncodePing(nil)
			if err != nil {
				logs.Errorf("encode ping, err: %+v", err)
				continue
			}
			if err := c.writer.Send(websocket.FramePing, 0, websocket.MessageText, payload); err != nil {
				logs.Warnf("queue ping, err: %+v", err)
				continue
			}
			c.lastPing.Store(time.Now().UnixNano())
		}
	}
}

func unixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
