package hyperliquid

import (
	"strconv"
	"strings"
	"time"

	"execgw/internal/adapter"
	"execgw/internal/adapter/enum"
	"execgw/pkg/exception"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"
)

type wsBasicOrder struct {
	Coin      string `json:"coin"`
	Side      string `json:"side"`
	LimitPx   string `json:"limitPx"`
	Sz        string `json:"sz"`
	Oid       uint64 `json:"oid"`
	Timestamp int64  `json:"timestamp"`
	OrigSz    string `json:"origSz"`
	Cloid     string `json:"cloid"`
}

type wsOrder struct {
	Order           wsBasicOrder `json:"order"`
	Status          string       `json:"status"`
	StatusTimestamp int64        `json:"statusTimestamp"`
}

type wsFill struct {
	Coin     string `json:"coin"`
	Px       string `json:"px"`
	Sz       string `json:"sz"`
	Side     string `json:"side"`
	Time     int64  `json:"time"`
	Oid      uint64 `json:"oid"`
	Tid      uint64 `json:"tid"`
	Fee      string `json:"fee"`
	FeeToken string `json:"feeToken"`
	Crossed  bool   `json:"crossed"`
	Cloid    string `json:"cloid"`
	Hash     string `json:"hash"`
}

type wsUserFills struct {
	IsSnapshot bool     `json:"isSnapshot"`
	User       string   `json:"user"`
	Fills      []wsFill `json:"fills"`
}

// MapStatus converts a venue order status to a lifecycle state. The second
// result is false for statuses that carry no lifecycle information.
func MapStatus(status string) (enum.OrderState, bool) {
	switch status {
	case "open", "triggered":
		return enum.OrderStateOpen, true
	case "filled":
		return enum.OrderStateFilled, true
	case "canceled", "cancelled", "marginCanceled", "scheduledCancel":
		return enum.OrderStateCancelled, true
	case "rejected":
		return enum.OrderStateFailed, true
	}
	switch {
	case strings.HasSuffix(status, "Canceled"):
		return enum.OrderStateCancelled, true
	case strings.HasSuffix(status, "Rejected"):
		return enum.OrderStateFailed, true
	}
	return 0, false
}

// DecodePush extracts order and trade updates from a user channel message.
func (c *Codec) DecodePush(channel string, data []byte) (adapter.VenueEvents, error) {
	switch channel {
	case ChannelOrderUpdates:
		var orders []wsOrder
		if err := sonic.Unmarshal(data, &orders); err != nil {
			return adapter.VenueEvents{}, errors.Wrap(err, "decode order updates")
		}
		ev := adapter.VenueEvents{Orders: make([]adapter.OrderUpdate, 0, len(orders))}
		for _, o := range orders {
			state, ok := MapStatus(o.Status)
			if !ok {
				continue
			}
			u := adapter.OrderUpdate{
				ClientOrderID: o.Order.Cloid,
				VenueOrderID:  strconv.FormatUint(o.Order.Oid, 10),
				State:         state,
				Timestamp:     time.UnixMilli(o.StatusTimestamp),
			}
			if state == enum.OrderStateFailed || (state == enum.OrderStateCancelled && o.Status != "canceled") {
				u.Reason = o.Status
			}
			ev.Orders = append(ev.Orders, u)
		}
		return ev, nil

	case ChannelUserFills:
		var msg wsUserFills
		if err := sonic.Unmarshal(data, &msg); err != nil {
			return adapter.VenueEvents{}, errors.Wrap(err, "decode user fills")
		}
		ev := adapter.VenueEvents{Trades: make([]adapter.TradeUpdate, 0, len(msg.Fills))}
		for _, f := range msg.Fills {
			px, err := strconv.ParseFloat(f.Px, 64)
			if err != nil {
				return adapter.VenueEvents{}, errors.Wrap(err, "parse fill price").With("tid", f.Tid)
			}
			sz, err := strconv.ParseFloat(f.Sz, 64)
			if err != nil {
				return adapter.VenueEvents{}, errors.Wrap(err, "parse fill size").With("tid", f.Tid)
			}
			fee, _ := strconv.ParseFloat(f.Fee, 64)
			ev.Trades = append(ev.Trades, adapter.TradeUpdate{
				ClientOrderID: f.Cloid,
				VenueOrderID:  strconv.FormatUint(f.Oid, 10),
				FillID:        strconv.FormatUint(f.Tid, 10),
				Price:         px,
				Quantity:      sz,
				Fee:           fee,
				FeeAsset:      f.FeeToken,
				Maker:         !f.Crossed,
				Timestamp:     time.UnixMilli(f.Time),
			})
		}
		return ev, nil
	}
	return adapter.VenueEvents{}, exception.ErrUnknownChannel
}
