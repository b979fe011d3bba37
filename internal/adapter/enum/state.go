package enum

// OrderState is the lifecycle state of a tracked order.
type OrderState uint8

const (
	_order_state_beg OrderState = iota
	OrderStatePendingCreate
	OrderStatePendingSubmit
	OrderStateOpen
	OrderStatePartiallyFilled
	OrderStatePendingCancel
	OrderStateFilled
	OrderStateCancelled
	OrderStateFailed
	OrderStateExpired
	_order_state_end
)

func (s OrderState) IsAvailable() bool {
	return s > _order_state_beg && s < _order_state_end
}

// IsTerminal reports Filled, Cancelled, Failed and Expired.
func (s OrderState) IsTerminal() bool {
	switch s {
	case OrderStateFilled, OrderStateCancelled, OrderStateFailed, OrderStateExpired:
		return true
	default:
		return false
	}
}

// IsLive reports states in which the venue holds a resting order.
func (s OrderState) IsLive() bool {
	return s == OrderStateOpen || s == OrderStatePartiallyFilled || s == OrderStatePendingCancel
}

// IsPending reports states awaiting venue acknowledgement.
func (s OrderState) IsPending() bool {
	return s == OrderStatePendingCreate || s == OrderStatePendingSubmit
}

func (s OrderState) String() string {
	switch s {
	case OrderStatePendingCreate:
		return "pending_create"
	case OrderStatePendingSubmit:
		return "pending_submit"
	case OrderStateOpen:
		return "open"
	case OrderStatePartiallyFilled:
		return "partially_filled"
	case OrderStatePendingCancel:
		return "pending_cancel"
	case OrderStateFilled:
		return "filled"
	case OrderStateCancelled:
		return "cancelled"
	case OrderStateFailed:
		return "failed"
	case OrderStateExpired:
		return "expired"
	default:
		return "unknown"
	}
}
