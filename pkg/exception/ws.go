package exception

import "github.com/yanun0323/errors"

// WS errors
var (
	ErrWebSocketConnectionClose = errors.New("websocket: connection closed")
	ErrWebSocketProtocol        = errors.New("websocket: protocol error")
	ErrWebSocketFrameTooLarge   = errors.New("websocket: frame exceeds buffer")
	ErrWebSocketNilDialer       = errors.New("websocket: nil dialer")
)

// Duplex errors
var (
	ErrDuplexPostTimeout    = errors.New("duplex: post timed out")
	ErrDuplexQueueFull      = errors.New("duplex: outbound queue full")
	ErrDuplexNilCodec       = errors.New("duplex: nil frame codec")
	ErrDuplexAlreadyStarted = errors.New("duplex: connection already active")
)
