package enum

// OrderSide buy, sell
type OrderSide uint8

const (
	_order_side_beg OrderSide = iota
	OrderSideBuy
	OrderSideSell
	_order_side_end
)

func (s OrderSide) IsAvailable() bool {
	return s > _order_side_beg && s < _order_side_end
}

func (s OrderSide) String() string {
	switch s {
	case OrderSideBuy:
		return "buy"
	case OrderSideSell:
		return "sell"
	default:
		return "unknown"
	}
}

// OrderKind limit, market, stop and take-profit variants
type OrderKind uint8

const (
	_order_kind_beg OrderKind = iota
	OrderKindLimit
	OrderKindMarket
	OrderKindStopLimit
	OrderKindStopMarket
	OrderKindTakeProfitLimit
	OrderKindTakeProfitMarket
	_order_kind_end
)

func (k OrderKind) IsAvailable() bool {
	return k > _order_kind_beg && k < _order_kind_end
}

// IsTrigger reports whether the order rests until a trigger price is hit.
func (k OrderKind) IsTrigger() bool {
	switch k {
	case OrderKindStopLimit, OrderKindStopMarket, OrderKindTakeProfitLimit, OrderKindTakeProfitMarket:
		return true
	default:
		return false
	}
}

// IsMarket reports whether the order executes at market once active.
func (k OrderKind) IsMarket() bool {
	return k == OrderKindMarket || k == OrderKindStopMarket || k == OrderKindTakeProfitMarket
}

func (k OrderKind) String() string {
	switch k {
	case OrderKindLimit:
		return "limit"
	case OrderKindMarket:
		return "market"
	case OrderKindStopLimit:
		return "stop_limit"
	case OrderKindStopMarket:
		return "stop_market"
	case OrderKindTakeProfitLimit:
		return "take_profit_limit"
	case OrderKindTakeProfitMarket:
		return "take_profit_market"
	default:
		return "unknown"
	}
}

// OrderTimeInForce GTC, IOC, FOK, post-only
type OrderTimeInForce uint8

const (
	_order_time_in_force_beg OrderTimeInForce = iota
	OrderTimeInForceGTC
	OrderTimeInForceIOC
	OrderTimeInForceFOK
	OrderTimeInForcePostOnly
	_order_time_in_force_end
)

func (s OrderTimeInForce) IsAvailable() bool {
	return s > _order_time_in_force_beg && s < _order_time_in_force_end
}

// IsImmediate reports IOC and FOK.
func (s OrderTimeInForce) IsImmediate() bool {
	return s == OrderTimeInForceIOC || s == OrderTimeInForceFOK
}

func (s OrderTimeInForce) String() string {
	switch s {
	case OrderTimeInForceGTC:
		return "gtc"
	case OrderTimeInForceIOC:
		return "ioc"
	case OrderTimeInForceFOK:
		return "fok"
	case OrderTimeInForcePostOnly:
		return "post_only"
	default:
		return "unknown"
	}
}
