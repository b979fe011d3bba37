package websocket

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"time"

	"execgw/pkg/exception"

	gorilla "github.com/gorilla/websocket"
	"github.com/yanun0323/errors"
)

const (
	DefaultDialerTimeout = 10 * time.Second
	DefaultControlWait   = 5 * time.Second
)

type dialer struct {
	URL              string
	Header           http.Header
	TLSConfig        *tls.Config
	HandshakeTimeout time.Duration
	ReadLimit        int64
}

// NewDialer returns a Dialer for a ws:// or wss:// URL backed by gorilla/websocket.
// readLimit caps inbound message size, 0 keeps the gorilla default.
func NewDialer(url string, header http.Header, readLimit int64) Dialer {
	return &dialer{
		URL:              url,
		Header:           header,
		TLSConfig:        &tls.Config{MinVersion: tls.VersionTLS12},
		HandshakeTimeout: DefaultDialerTimeout,
		ReadLimit:        readLimit,
	}
}

func (d *dialer) Dial(ctx context.Context) (Conn, error) {
	gd := gorilla.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
		TLSClientConfig:  d.TLSConfig,
	}
	ws, resp, err := gd.DialContext(ctx, d.URL, d.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, errors.Wrap(err, "dial websocket").With("url", d.URL)
	}
	if d.ReadLimit > 0 {
		ws.SetReadLimit(d.ReadLimit)
	}
	return &wsConn{ws: ws}, nil
}

// wsConn adapts a gorilla connection to Conn. Writes come from one goroutine,
// Close may race with both sides.
type wsConn struct {
	ws *gorilla.Conn
}

func (c *wsConn) Read(ctx context.Context, dst []byte) (int, MessageType, error) {
	if err := setDeadline(ctx, c.ws.SetReadDeadline); err != nil {
		return 0, 0, err
	}
	opcode, r, err := c.ws.NextReader()
	if err != nil {
		return 0, 0, err
	}

	n := 0
	for {
		if n == len(dst) {
			var probe [1]byte
			m, err := r.Read(probe[:])
			if m > 0 {
				return n, 0, exception.ErrWebSocketFrameTooLarge
			}
			if err == io.EOF {
				return n, MessageType(opcode), nil
			}
			if err != nil {
				return n, 0, err
			}
			continue
		}
		m, err := r.Read(dst[n:])
		n += m
		if err == io.EOF {
			return n, MessageType(opcode), nil
		}
		if err != nil {
			return n, 0, err
		}
	}
}

func (c *wsConn) Write(ctx context.Context, msgType MessageType, payload []byte) error {
	switch msgType {
	case MessagePing, MessagePong, MessageClose:
		return c.ws.WriteControl(int(msgType), payload, controlDeadline(ctx))
	}
	if err := setDeadline(ctx, c.ws.SetWriteDeadline); err != nil {
		return err
	}
	return c.ws.WriteMessage(int(msgType), payload)
}

func (c *wsConn) Close(code CloseCode, reason string) error {
	msg := gorilla.FormatCloseMessage(int(code), reason)
	_ = c.ws.WriteControl(gorilla.CloseMessage, msg, time.Now().Add(time.Second))
	return c.ws.Close()
}

func controlDeadline(ctx context.Context) time.Time {
	if ctx != nil {
		if deadline, ok := ctx.Deadline(); ok {
			return deadline
		}
	}
	return time.Now().Add(DefaultControlWait)
}

func setDeadline(ctx context.Context, set func(time.Time) error) error {
	if ctx == nil {
		return set(time.Time{})
	}
	if deadline, ok := ctx.Deadline(); ok {
		return set(deadline)
	}
	if ctx.Err() != nil {
		return set(time.Now())
	}
	return set(time.Time{})
}
