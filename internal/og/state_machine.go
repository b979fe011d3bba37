package og

import (
	"execgw/internal/adapter/enum"

	"github.com/yanun0323/errors"
)

// ErrInvalidTransition marks an update that would move an order backward.
// The update is dropped and the tracked state is kept.
var ErrInvalidTransition = errors.New("invalid order state transition")

// nextState applies the forward-only lifecycle graph
//
//	PendingCreate -> PendingSubmit -> Open <-> PartiallyFilled -> Filled
//	PendingSubmit | Open | PartiallyFilled -> PendingCancel -> Cancelled
//	any pre-terminal -> Failed | Expired
//
// Forward updates may skip states. An Open report for a partially filled
// order and fill progress reported during PendingCancel keep the current
// state without error.
func nextState(from, to enum.OrderState) (enum.OrderState, error) {
	if !to.IsAvailable() {
		return from, ErrInvalidTransition
	}
	if from == to {
		return from, nil
	}
	if from.IsTerminal() {
		return from, ErrInvalidTransition
	}

	switch to {
	case enum.OrderStateFilled, enum.OrderStateCancelled, enum.OrderStateFailed, enum.OrderStateExpired:
		return to, nil
	case enum.OrderStatePendingCreate:
		return from, ErrInvalidTransition
	case enum.OrderStatePendingSubmit:
		if from == enum.OrderStatePendingCreate {
			return to, nil
		}
		return from, ErrInvalidTransition
	case enum.OrderStateOpen:
		switch from {
		case enum.OrderStatePendingCreate, enum.OrderStatePendingSubmit:
			return to, nil
		default:
			return from, nil
		}
	case enum.OrderStatePartiallyFilled:
		switch from {
		case enum.OrderStatePendingCancel:
			return from, nil
		default:
			return to, nil
		}
	case enum.OrderStatePendingCancel:
		if from == enum.OrderStatePendingCreate {
			return from, ErrInvalidTransition
		}
		return to, nil
	}
	return from, ErrInvalidTransition
}
