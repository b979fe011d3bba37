package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"execgw/pkg/exception"

	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := gorilla.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		for {
			mt, msg, err := c.ReadMessage()
			if err != nil {
				return
			}
			if err := c.WriteMessage(mt, msg); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDialerRoundTrip(t *testing.T) {
	srv := echoServer(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	conn, err := NewDialer(url, nil, 0).Dial(ctx)
	require.NoError(t, err)
	defer conn.Close(CloseNormal, "done")

	require.NoError(t, conn.Write(ctx, MessageText, []byte(`{"method":"ping"}`)))
	buf := make([]byte, 64)
	n, mt, err := conn.Read(ctx, buf)
	require.NoError(t, err)
	require.Equal(t, MessageText, mt)
	require.Equal(t, `{"method":"ping"}`, string(buf[:n]))

	require.NoError(t, conn.Write(ctx, MessageText, []byte(strings.Repeat("x", 32))))
	_, _, err = conn.Read(ctx, make([]byte, 8))
	require.ErrorIs(t, err, exception.ErrWebSocketFrameTooLarge)
}

func TestDialerFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()
	_, err := NewDialer("ws://127.0.0.1:1/ws", nil, 0).Dial(ctx)
	require.Error(t, err)
}
