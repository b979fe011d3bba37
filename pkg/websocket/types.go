package websocket

import "time"

// MessageType represents a WebSocket message type.
// Values match RFC 6455 opcodes where applicable.
type MessageType uint8

const (
	// MessageText is a text data frame.
	MessageText MessageType = 1
	// MessageBinary is a binary data frame.
	MessageBinary MessageType = 2
	// MessageClose is a close control frame.
	MessageClose MessageType = 8
	// MessagePing is a ping control frame.
	MessagePing MessageType = 9
	// MessagePong is a pong control frame.
	MessagePong MessageType = 10
)

// IsData reports text and binary frames.
func (t MessageType) IsData() bool {
	return t == MessageText || t == MessageBinary
}

// CloseCode is a WebSocket close code.
type CloseCode uint16

const (
	// CloseNormal indicates a normal closure.
	CloseNormal CloseCode = 1000
	// CloseGoingAway indicates the endpoint is going away, used on stale connections.
	CloseGoingAway CloseCode = 1001
)

// FrameKind tags what a queued outbound frame carries.
type FrameKind uint8

const (
	// FrameRequest is a correlated request awaiting a reply.
	FrameRequest FrameKind = iota + 1
	// FrameControl is a subscribe or unsubscribe message.
	FrameControl
	// FramePing is an application keepalive.
	FramePing
)

// OverflowPolicy defines queue behavior when full.
type OverflowPolicy uint8

const (
	// OverflowBlock blocks until space is available.
	OverflowBlock OverflowPolicy = iota
	// OverflowDropNewest drops the incoming item if the queue is full.
	OverflowDropNewest
	// OverflowDropOldest drops the oldest item to make room.
	OverflowDropOldest
)

// Backoff defines reconnect backoff behavior.
type Backoff struct {
	// Min is the minimum backoff duration.
	Min time.Duration
	// Max is the maximum backoff duration.
	Max time.Duration
	// Factor multiplies the delay for each retry attempt.
	Factor float64
	// Jitter adds randomization as a fraction of the delay (0-1).
	Jitter float64
}

// IsZero reports an unset backoff.
func (b Backoff) IsZero() bool {
	return b.Min == 0 && b.Max == 0 && b.Factor == 0 && b.Jitter == 0
}
