package hyperliquid

import (
	"testing"

	"execgw/internal/adapter"
	"execgw/internal/adapter/enum"
	"execgw/internal/batch"
	"execgw/internal/duplex"
	"execgw/pkg/exception"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecFrames(t *testing.T) {
	c := NewCodec("", 0)

	post, err := c.EncodePost(nil, 42, KindAction, []byte(`{"nonce":1}`))
	require.NoError(t, err)
	require.JSONEq(t, `{"method":"post","id":42,"request":{"type":"action","payload":{"nonce":1}}}`, string(post))

	_, err = c.EncodePost(nil, 1, KindAction, []byte(`{broken`))
	require.Error(t, err)

	sub, err := c.EncodeSubscribe(nil, ChannelOrderUpdates, map[string]string{"user": "0xabc"})
	require.NoError(t, err)
	require.JSONEq(t, `{"method":"subscribe","subscription":{"type":"orderUpdates","user":"0xabc"}}`, string(sub))

	ping, err := c.EncodePing(nil)
	require.NoError(t, err)
	require.JSONEq(t, `{"method":"ping"}`, string(ping))
}

func TestCodecDecodeInbound(t *testing.T) {
	c := NewCodec("", 0)

	in, err := c.Decode([]byte(`{"channel":"post","data":{"id":7,"response":{"type":"action","payload":{"status":"ok"}}}}`))
	require.NoError(t, err)
	assert.Equal(t, duplex.InboundReply, in.Kind)
	assert.EqualValues(t, 7, in.ID)
	assert.JSONEq(t, `{"type":"action","payload":{"status":"ok"}}`, string(in.Data))

	in, err = c.Decode([]byte(`{"channel":"pong"}`))
	require.NoError(t, err)
	assert.Equal(t, duplex.InboundPong, in.Kind)

	in, err = c.Decode([]byte(`{"channel":"subscriptionResponse","data":{"method":"subscribe"}}`))
	require.NoError(t, err)
	assert.Equal(t, duplex.InboundIgnore, in.Kind)

	in, err = c.Decode([]byte(`{"channel":"orderUpdates","data":[]}`))
	require.NoError(t, err)
	assert.Equal(t, duplex.InboundPush, in.Kind)
	assert.Equal(t, ChannelOrderUpdates, in.Channel)

	_, err = c.Decode([]byte(`not json`))
	require.Error(t, err)
}

func TestCodecOrderActionWire(t *testing.T) {
	c := NewCodec("0x1111111111111111111111111111111111111111", 0)
	orders := []batch.Order{
		{
			Record: adapter.OrderRecord{ClientOrderID: adapter.NewStr64("0x00000000000000000000000000000001"), Side: enum.OrderSideBuy, Kind: enum.OrderKindLimit, TimeInForce: enum.OrderTimeInForcePostOnly},
			Route:  adapter.Route{AssetID: 3, Price: "100.5", Size: "0.01"},
		},
		{
			Record: adapter.OrderRecord{ClientOrderID: adapter.NewStr64("0x00000000000000000000000000000002"), Side: enum.OrderSideSell, Kind: enum.OrderKindStopMarket, ReduceOnly: true},
			Route:  adapter.Route{AssetID: 3, Price: "90", Size: "0.01", TriggerPrice: "95"},
		},
	}
	action, err := c.OrderAction(orders)
	require.NoError(t, err)

	kind, payload, err := c.Envelope(action, 99, adapter.Signature{R: "0x1", S: "0x2", V: 27})
	require.NoError(t, err)
	require.Equal(t, KindAction, kind)
	require.JSONEq(t, `{
		"action":{"type":"order","orders":[
			{"a":3,"b":true,"p":"100.5","s":"0.01","r":false,"t":{"limit":{"tif":"Alo"}},"c":"0x00000000000000000000000000000001"},
			{"a":3,"b":false,"p":"90","s":"0.01","r":true,"t":{"trigger":{"isMarket":true,"triggerPx":"95","tpsl":"sl"}},"c":"0x00000000000000000000000000000002"}
		],"grouping":"na"},
		"nonce":99,
		"signature":{"r":"0x1","s":"0x2","v":27},
		"vaultAddress":"0x1111111111111111111111111111111111111111"
	}`, string(payload))

	cancel, err := c.CancelAction(orders[0])
	require.NoError(t, err)
	b, err := sonic.Marshal(cancel)
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"cancelByCloid","cancels":[{"asset":3,"cloid":"0x00000000000000000000000000000001"}]}`, string(b))

	_, err = c.OrderAction(nil)
	require.ErrorIs(t, err, exception.ErrInvalidArgument)
}

func TestCodecDecodeOrders(t *testing.T) {
	c := NewCodec("", 0)

	duplexReply := `{"type":"action","payload":{"status":"ok","response":{"type":"order","data":{"statuses":[
		{"resting":{"oid":555}},
		{"error":"Post only order would have immediately matched, bbo was 100.5"},
		{"filled":{"totalSz":"0.02","avgPx":"1891.4","oid":556}},
		"waitingForTrigger"
	]}}}}`
	outs, err := c.DecodeOrders([]byte(duplexReply), 4)
	require.NoError(t, err)
	require.Len(t, outs, 4)
	assert.True(t, outs[0].OK)
	assert.Equal(t, "555", outs[0].VenueOrderID)
	assert.Equal(t, adapter.OutcomeRejected, outs[1].Code)
	assert.Equal(t, adapter.ReasonPostOnlyViolation, outs[1].ReasonCode)
	assert.True(t, outs[2].Filled)
	assert.Equal(t, 0.02, outs[2].FilledQty)
	assert.Equal(t, 1891.4, outs[2].AvgPrice)
	assert.True(t, outs[3].OK)

	restReply := `{"status":"ok","response":{"type":"order","data":{"statuses":[{"resting":{"oid":1}}]}}}`
	outs, err = c.DecodeOrders([]byte(restReply), 1)
	require.NoError(t, err)
	assert.Equal(t, "1", outs[0].VenueOrderID)

	_, err = c.DecodeOrders([]byte(restReply), 2)
	require.ErrorIs(t, err, exception.ErrOrderResponseLength)

	outs, err = c.DecodeOrders([]byte(`{"status":"err","response":"User or API Wallet does not exist."}`), 2)
	require.NoError(t, err)
	require.Len(t, outs, 2)
	for _, out := range outs {
		assert.Equal(t, adapter.OutcomeRejected, out.Code)
		assert.Equal(t, "User or API Wallet does not exist.", out.Reason)
	}

	_, err = c.DecodeOrders([]byte(`{"type":"error","payload":"Too many requests"}`), 1)
	require.ErrorIs(t, err, exception.ErrOrderRateLimited)

	_, err = c.DecodeOrders([]byte(`[`), 1)
	require.ErrorIs(t, err, exception.ErrOrderDecodeResponseBody)
}

func TestCodecDecodeCancel(t *testing.T) {
	c := NewCodec("", 0)

	out, err := c.DecodeCancel([]byte(`{"type":"action","payload":{"status":"ok","response":{"type":"cancel","data":{"statuses":["success"]}}}}`))
	require.NoError(t, err)
	assert.True(t, out.OK)

	out, err = c.DecodeCancel([]byte(`{"status":"ok","response":{"type":"cancel","data":{"statuses":[{"error":"Order was never placed, already canceled, or filled."}]}}}`))
	require.NoError(t, err)
	assert.Equal(t, adapter.OutcomeRejected, out.Code)
	assert.Equal(t, adapter.ReasonVenueReject, out.ReasonCode)
}

func TestCodecDecodePush(t *testing.T) {
	c := NewCodec("", 0)

	ev, err := c.DecodePush(ChannelOrderUpdates, []byte(`[
		{"order":{"coin":"BTC","side":"B","limitPx":"100","sz":"1","oid":555,"timestamp":1,"origSz":"1","cloid":"0x01"},"status":"open","statusTimestamp":1700000000000},
		{"order":{"coin":"BTC","side":"B","limitPx":"100","sz":"0","oid":556,"timestamp":1,"origSz":"1","cloid":"0x02"},"status":"reduceOnlyCanceled","statusTimestamp":1700000000001},
		{"order":{"coin":"BTC","side":"B","limitPx":"100","sz":"0","oid":557,"timestamp":1,"origSz":"1"},"status":"somethingNew","statusTimestamp":1}
	]`))
	require.NoError(t, err)
	require.Len(t, ev.Orders, 2)
	assert.Equal(t, "0x01", ev.Orders[0].ClientOrderID)
	assert.Equal(t, "555", ev.Orders[0].VenueOrderID)
	assert.Equal(t, enum.OrderStateOpen, ev.Orders[0].State)
	assert.Equal(t, enum.OrderStateCancelled, ev.Orders[1].State)
	assert.Equal(t, "reduceOnlyCanceled", ev.Orders[1].Reason)

	ev, err = c.DecodePush(ChannelUserFills, []byte(`{"isSnapshot":false,"user":"0xabc","fills":[
		{"coin":"BTC","px":"100.5","sz":"0.5","side":"B","time":1700000000000,"oid":555,"tid":9001,"fee":"0.01","feeToken":"USDC","crossed":false,"cloid":"0x01","hash":"0x0"}
	]}`))
	require.NoError(t, err)
	require.Len(t, ev.Trades, 1)
	tr := ev.Trades[0]
	assert.Equal(t, "9001", tr.FillID)
	assert.Equal(t, 100.5, tr.Price)
	assert.Equal(t, 0.5, tr.Quantity)
	assert.True(t, tr.Maker)
	assert.Equal(t, "USDC", tr.FeeAsset)

	_, err = c.DecodePush("l2Book", []byte(`{}`))
	require.ErrorIs(t, err, exception.ErrUnknownChannel)
}

func TestMapStatus(t *testing.T) {
	cases := map[string]enum.OrderState{
		"open":                    enum.OrderStateOpen,
		"triggered":               enum.OrderStateOpen,
		"filled":                  enum.OrderStateFilled,
		"canceled":                enum.OrderStateCancelled,
		"marginCanceled":          enum.OrderStateCancelled,
		"selfTradeCanceled":       enum.OrderStateCancelled,
		"rejected":                enum.OrderStateFailed,
		"perpMarginRejected":      enum.OrderStateFailed,
		"minTradeNtlRejected":     enum.OrderStateFailed,
		"scheduledCancel":         enum.OrderStateCancelled,
		"siblingFilledCanceled":   enum.OrderStateCancelled,
		"vaultWithdrawalCanceled": enum.OrderStateCancelled,
	}
	for status, want := range cases {
		got, ok := MapStatus(status)
		require.True(t, ok, status)
		assert.Equal(t, want, got, status)
	}
	_, ok := MapStatus("waitingForFill")
	assert.False(t, ok)
}
