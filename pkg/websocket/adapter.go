package websocket

import "context"

// Conn is a minimal interface for a WebSocket connection.
// Implementations read into the provided dst buffer and must allow Close
// to be called concurrently with Read and Write.
type Conn interface {
	Read(ctx context.Context, dst []byte) (n int, msgType MessageType, err error)
	Write(ctx context.Context, msgType MessageType, payload []byte) error
	Close(code CloseCode, reason string) error
}

// Dialer creates new connections.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}
