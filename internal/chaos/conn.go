package chaos

import (
	"bytes"
	"context"
	"sync/atomic"
	"time"

	"execgw/pkg/exception"
	"execgw/pkg/websocket"
)

// Frame is one inbound message held by the engine.
type Frame struct {
	Type  websocket.MessageType
	Data  []byte
	Delay time.Duration
}

// Dialer wraps another dialer and injects faults into inbound frames.
type Dialer struct {
	inner websocket.Dialer
	cfg   Config
	dials atomic.Int64
}

// NewDialer wraps inner. Each connection gets its own engine seeded from
// cfg.Seed and the dial count so runs are reproducible.
func NewDialer(inner websocket.Dialer, cfg Config) (*Dialer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Dialer{inner: inner, cfg: cfg}, nil
}

func (d *Dialer) Dial(ctx context.Context) (websocket.Conn, error) {
	conn, err := d.inner.Dial(ctx)
	if err != nil {
		return nil, err
	}
	cfg := d.cfg
	if cfg.Seed != 0 {
		cfg.Seed += d.dials.Add(1)
	}
	eng, err := NewEngine(cfg)
	if err != nil {
		_ = conn.Close(websocket.CloseNormal, "")
		return nil, err
	}
	return &Conn{inner: conn, eng: eng}, nil
}

// Conn drops, duplicates, reorders and delays frames read from the
// wrapped connection. Writes pass through untouched.
type Conn struct {
	inner   websocket.Conn
	eng     *Engine
	out     []Frame
	readErr error
}

// Read must be called from a single goroutine.
func (c *Conn) Read(ctx context.Context, dst []byte) (int, websocket.MessageType, error) {
	for len(c.out) == 0 {
		if c.readErr != nil {
			return 0, 0, c.readErr
		}
		n, mt, err := c.inner.Read(ctx, dst)
		if err != nil {
			c.readErr = err
			c.out = c.eng.Flush()
			continue
		}
		c.out = append(c.out, c.eng.Process(Frame{Type: mt, Data: bytes.Clone(dst[:n])})...)
	}

	f := c.out[0]
	c.out = c.out[1:]
	if f.Delay > 0 {
		timer := time.NewTimer(f.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return 0, 0, ctx.Err()
		case <-timer.C:
		}
	}
	if len(f.Data) > len(dst) {
		return 0, 0, exception.ErrWebSocketFrameTooLarge
	}
	return copy(dst, f.Data), f.Type, nil
}

func (c *Conn) Write(ctx context.Context, msgType websocket.MessageType, payload []byte) error {
	return c.inner.Write(ctx, msgType, payload)
}

func (c *Conn) Close(code websocket.CloseCode, reason string) error {
	return c.inner.Close(code, reason)
}
