package hyperliquid

import (
	"encoding/json"
	"strconv"

	"execgw/internal/duplex"
	"execgw/pkg/exception"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"
)

// Push channels.
const (
	ChannelOrderUpdates = "orderUpdates"
	ChannelUserFills    = "userFills"

	channelPost         = "post"
	channelPong         = "pong"
	channelSubscription = "subscriptionResponse"
	channelError        = "error"
)

// Post request kinds.
const (
	KindAction = "action"
	KindInfo   = "info"
)

// Codec frames the duplex connection, encodes signed actions and decodes
// their replies and the user push channels.
type Codec struct {
	vault    string
	maxBatch int
}

// NewCodec builds a codec. vault is the optional vault address attached to
// every action, maxBatch caps orders per action when positive.
func NewCodec(vault string, maxBatch int) *Codec {
	return &Codec{vault: vault, maxBatch: maxBatch}
}

// MaxBatch returns the order cap per action, zero means unlimited.
func (c *Codec) MaxBatch() int {
	return c.maxBatch
}

func (c *Codec) EncodePost(dst []byte, id uint64, kind string, payload []byte) ([]byte, error) {
	if !sonic.Valid(payload) {
		return dst, errors.Wrap(exception.ErrInvalidArgument, "post payload is not json").With("kind", kind)
	}
	dst = append(dst, `{"method":"post","id":`...)
	dst = strconv.AppendUint(dst, id, 10)
	dst = append(dst, `,"request":{"type":`...)
	dst = strconv.AppendQuote(dst, kind)
	dst = append(dst, `,"payload":`...)
	dst = append(dst, payload...)
	return append(dst, "}}"...), nil
}

type subscribeFrame struct {
	Method       string            `json:"method"`
	Subscription map[string]string `json:"subscription"`
}

func (c *Codec) EncodeSubscribe(dst []byte, topic string, fields map[string]string) ([]byte, error) {
	sub := make(map[string]string, len(fields)+1)
	for k, v := range fields {
		sub[k] = v
	}
	sub["type"] = topic
	b, err := sonic.Marshal(subscribeFrame{Method: "subscribe", Subscription: sub})
	if err != nil {
		return dst, errors.Wrap(err, "marshal subscribe frame").With("topic", topic)
	}
	return append(dst, b...), nil
}

func (c *Codec) EncodePing(dst []byte) ([]byte, error) {
	return append(dst, `{"method":"ping"}`...), nil
}

type inboundFrame struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

type postData struct {
	ID       uint64          `json:"id"`
	Response json.RawMessage `json:"response"`
}

func (c *Codec) Decode(frame []byte) (duplex.Inbound, error) {
	var in inboundFrame
	if err := sonic.Unmarshal(frame, &in); err != nil {
		return duplex.Inbound{}, errors.Wrap(exception.ErrWebSocketProtocol, err.Error())
	}
	switch in.Channel {
	case channelPost:
		var data postData
		if err := sonic.Unmarshal(in.Data, &data); err != nil {
			return duplex.Inbound{}, errors.Wrap(exception.ErrWebSocketProtocol, err.Error()).With("channel", in.Channel)
		}
		return duplex.Inbound{Kind: duplex.InboundReply, ID: data.ID, Data: data.Response}, nil
	case channelPong:
		return duplex.Inbound{Kind: duplex.InboundPong}, nil
	case channelSubscription, channelError, "":
		return duplex.Inbound{Kind: duplex.InboundIgnore, Channel: in.Channel, Data: in.Data}, nil
	default:
		return duplex.Inbound{Kind: duplex.InboundPush, Channel: in.Channel, Data: in.Data}, nil
	}
}
