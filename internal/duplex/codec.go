package duplex

// InboundKind classifies a decoded inbound frame.
type InboundKind uint8

const (
	// InboundIgnore is a frame with nothing to route, such as a subscription ack.
	InboundIgnore InboundKind = iota
	// InboundReply answers a correlated request.
	InboundReply
	// InboundPush is an unsolicited venue event.
	InboundPush
	// InboundPong answers a keepalive.
	InboundPong
)

// Inbound is one decoded frame.
type Inbound struct {
	Kind    InboundKind
	ID      uint64
	Channel string
	Data    []byte
}

// FrameCodec is the venue specific framing of the duplex connection.
// Encoders append to dst and return the extended slice.
type FrameCodec interface {
	EncodePost(dst []byte, id uint64, kind string, payload []byte) ([]byte, error)
	EncodeSubscribe(dst []byte, topic string, fields map[string]string) ([]byte, error)
	EncodePing(dst []byte) ([]byte, error)
	Decode(frame []byte) (Inbound, error)
}
