package og

import "execgw/internal/adapter/enum"

// EventKind classifies a tracker notification.
type EventKind uint8

const (
	_event_kind_beg EventKind = iota
	EventCreated
	EventUpdated
	EventFilled
	EventCompleted
	EventCancelled
	EventFailed
	EventExpired
	_event_kind_end
)

func (k EventKind) IsAvailable() bool {
	return k > _event_kind_beg && k < _event_kind_end
}

func (k EventKind) String() string {
	switch k {
	case EventCreated:
		return "created"
	case EventUpdated:
		return "updated"
	case EventFilled:
		return "filled"
	case EventCompleted:
		return "completed"
	case EventCancelled:
		return "cancelled"
	case EventFailed:
		return "failed"
	case EventExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Event carries the order snapshot taken right after the change.
// Fill is set for EventFilled.
type Event struct {
	Kind  EventKind
	Order InFlightOrder
	Fill  *Fill
}

// Listener receives tracker events. It must not block.
type Listener func(Event)

func eventFor(state enum.OrderState) EventKind {
	switch state {
	case enum.OrderStateFilled:
		return EventCompleted
	case enum.OrderStateCancelled:
		return EventCancelled
	case enum.OrderStateFailed:
		return EventFailed
	case enum.OrderStateExpired:
		return EventExpired
	default:
		return EventUpdated
	}
}
