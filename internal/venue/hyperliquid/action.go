package hyperliquid

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"execgw/internal/adapter"
	"execgw/internal/adapter/enum"
	"execgw/internal/batch"
	"execgw/pkg/exception"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"
)

// Field order matters, the action is hashed in declaration order.
type orderWire struct {
	Asset      int           `msgpack:"a" json:"a"`
	IsBuy      bool          `msgpack:"b" json:"b"`
	Price      string        `msgpack:"p" json:"p"`
	Size       string        `msgpack:"s" json:"s"`
	ReduceOnly bool          `msgpack:"r" json:"r"`
	Type       orderTypeWire `msgpack:"t" json:"t"`
	Cloid      string        `msgpack:"c,omitempty" json:"c,omitempty"`
}

type orderTypeWire struct {
	Limit   *limitWire   `msgpack:"limit,omitempty" json:"limit,omitempty"`
	Trigger *triggerWire `msgpack:"trigger,omitempty" json:"trigger,omitempty"`
}

type limitWire struct {
	Tif string `msgpack:"tif" json:"tif"`
}

type triggerWire struct {
	IsMarket  bool   `msgpack:"isMarket" json:"isMarket"`
	TriggerPx string `msgpack:"triggerPx" json:"triggerPx"`
	Tpsl      string `msgpack:"tpsl" json:"tpsl"`
}

type orderAction struct {
	Type     string      `msgpack:"type" json:"type"`
	Orders   []orderWire `msgpack:"orders" json:"orders"`
	Grouping string      `msgpack:"grouping" json:"grouping"`
}

type cancelByCloidWire struct {
	Asset int    `msgpack:"asset" json:"asset"`
	Cloid string `msgpack:"cloid" json:"cloid"`
}

type cancelByCloidAction struct {
	Type    string              `msgpack:"type" json:"type"`
	Cancels []cancelByCloidWire `msgpack:"cancels" json:"cancels"`
}

func toOrderWire(o batch.Order) orderWire {
	rec := o.Record
	w := orderWire{
		Asset:      o.Route.AssetID,
		IsBuy:      rec.Side == enum.OrderSideBuy,
		Price:      o.Route.Price,
		Size:       o.Route.Size,
		ReduceOnly: rec.ReduceOnly,
		Cloid:      rec.ClientOrderID.String(),
	}
	switch {
	case rec.Kind.IsTrigger():
		tpsl := "sl"
		if rec.Kind == enum.OrderKindTakeProfitLimit || rec.Kind == enum.OrderKindTakeProfitMarket {
			tpsl = "tp"
		}
		w.Type.Trigger = &triggerWire{IsMarket: rec.Kind.IsMarket(), TriggerPx: o.Route.TriggerPrice, Tpsl: tpsl}
	case rec.Kind == enum.OrderKindMarket:
		w.Type.Limit = &limitWire{Tif: "Ioc"}
	default:
		w.Type.Limit = &limitWire{Tif: tifWire(rec.TimeInForce)}
	}
	return w
}

func (c *Codec) OrderAction(orders []batch.Order) (any, error) {
	if len(orders) == 0 {
		return nil, exception.ErrInvalidArgument
	}
	action := &orderAction{Type: "order", Orders: make([]orderWire, 0, len(orders)), Grouping: "na"}
	for _, o := range orders {
		action.Orders = append(action.Orders, toOrderWire(o))
	}
	return action, nil
}

func (c *Codec) CancelAction(o batch.Order) (any, error) {
	return &cancelByCloidAction{
		Type:    "cancelByCloid",
		Cancels: []cancelByCloidWire{{Asset: o.Route.AssetID, Cloid: o.Record.ClientOrderID.String()}},
	}, nil
}

type envelope struct {
	Action       any               `json:"action"`
	Nonce        uint64            `json:"nonce"`
	Signature    adapter.Signature `json:"signature"`
	VaultAddress string            `json:"vaultAddress,omitempty"`
}

func (c *Codec) Envelope(action any, nonce uint64, sig adapter.Signature) (string, []byte, error) {
	b, err := sonic.Marshal(envelope{Action: action, Nonce: nonce, Signature: sig, VaultAddress: c.vault})
	if err != nil {
		return "", nil, errors.Wrap(err, "marshal action envelope")
	}
	return KindAction, b, nil
}

// postResponse is the duplex reply {type, payload}, exchangeResponse is the
// REST reply {status, response}. Replies are accepted in either shape.
type postResponse struct {
	Type     string          `json:"type"`
	Payload  json.RawMessage `json:"payload"`
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
}

type exchangeData struct {
	Type string `json:"type"`
	Data struct {
		Statuses []json.RawMessage `json:"statuses"`
	} `json:"data"`
}

type orderStatusWire struct {
	Resting *struct {
		Oid uint64 `json:"oid"`
	} `json:"resting"`
	Filled *struct {
		TotalSz string `json:"totalSz"`
		AvgPx   string `json:"avgPx"`
		Oid     uint64 `json:"oid"`
	} `json:"filled"`
	Error *string `json:"error"`
}

// statuses extracts the per-request status array. A request level venue
// error comes back as non-empty text instead.
func statuses(reply []byte) ([]json.RawMessage, string, error) {
	var r postResponse
	if err := sonic.Unmarshal(reply, &r); err != nil {
		return nil, "", fmt.Errorf("%w: %s", exception.ErrOrderDecodeResponseBody, err.Error())
	}
	if r.Type != "" {
		if r.Type == "error" {
			return nil, venueText(r.Payload), nil
		}
		inner := r.Payload
		r = postResponse{}
		if err := sonic.Unmarshal(inner, &r); err != nil {
			return nil, "", fmt.Errorf("%w: %s", exception.ErrOrderDecodeResponseBody, err.Error())
		}
	}
	if r.Status != "ok" {
		return nil, venueText(r.Response), nil
	}

	var data exchangeData
	if err := sonic.Unmarshal(r.Response, &data); err != nil {
		return nil, "", fmt.Errorf("%w: %s", exception.ErrOrderDecodeResponseBody, err.Error())
	}
	return data.Data.Statuses, "", nil
}

func (c *Codec) DecodeOrders(reply []byte, n int) ([]adapter.Outcome, error) {
	sts, venueErr, err := statuses(reply)
	if err != nil {
		return nil, err
	}
	if venueErr != "" {
		if rateLimited(venueErr) {
			return nil, exception.ErrOrderRateLimited
		}
		outs := make([]adapter.Outcome, n)
		for i := range outs {
			outs[i] = adapter.Rejected(venueErr)
		}
		return outs, nil
	}
	if len(sts) != n {
		return nil, exception.ErrOrderResponseLength
	}

	outs := make([]adapter.Outcome, 0, n)
	for _, raw := range sts {
		outs = append(outs, decodeOrderStatus(raw))
	}
	return outs, nil
}

func decodeOrderStatus(raw json.RawMessage) adapter.Outcome {
	if len(raw) > 0 && raw[0] == '"' {
		// waitingForFill, waitingForTrigger
		return adapter.Accepted("")
	}
	var st orderStatusWire
	if err := sonic.Unmarshal(raw, &st); err != nil {
		return adapter.Failure(adapter.OutcomeTransportFailure, "decode order status: "+err.Error(), true)
	}
	switch {
	case st.Error != nil:
		return adapter.Rejected(*st.Error)
	case st.Filled != nil:
		out := adapter.Accepted(strconv.FormatUint(st.Filled.Oid, 10))
		out.Filled = true
		out.FilledQty, _ = strconv.ParseFloat(st.Filled.TotalSz, 64)
		out.AvgPrice, _ = strconv.ParseFloat(st.Filled.AvgPx, 64)
		return out
	case st.Resting != nil:
		return adapter.Accepted(strconv.FormatUint(st.Resting.Oid, 10))
	default:
		return adapter.Rejected("unrecognized order status " + string(raw))
	}
}

func (c *Codec) DecodeCancel(reply []byte) (adapter.Outcome, error) {
	sts, venueErr, err := statuses(reply)
	if err != nil {
		return adapter.Outcome{}, err
	}
	if venueErr != "" {
		if rateLimited(venueErr) {
			return adapter.Outcome{}, exception.ErrOrderRateLimited
		}
		return adapter.Rejected(venueErr), nil
	}
	if len(sts) != 1 {
		return adapter.Outcome{}, exception.ErrOrderResponseLength
	}
	if rawText(sts[0]) == "success" {
		return adapter.Accepted(""), nil
	}
	var st orderStatusWire
	if err := sonic.Unmarshal(sts[0], &st); err != nil || st.Error == nil {
		return adapter.Rejected("unrecognized cancel status " + string(sts[0])), nil
	}
	out := adapter.Rejected(*st.Error)
	out.ReasonCode = adapter.CanonicalReason("cancel_rejected")
	return out, nil
}

func venueText(raw json.RawMessage) string {
	if t := rawText(raw); t != "" {
		return t
	}
	return "venue error"
}

func rawText(raw json.RawMessage) string {
	var s string
	if err := sonic.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func rateLimited(text string) bool {
	t := strings.ToLower(text)
	return strings.Contains(t, "rate limit") || strings.Contains(t, "too many")
}
