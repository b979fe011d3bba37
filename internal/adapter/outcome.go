package adapter

// OutcomeCode classifies how a submission or cancel resolved.
type OutcomeCode uint8

const (
	_outcome_beg OutcomeCode = iota
	OutcomeOK
	OutcomeTimeout
	OutcomeRateLimited
	OutcomeRejected
	OutcomeTransportFailure
	OutcomeNotFound
	_outcome_end
)

func (c OutcomeCode) IsAvailable() bool {
	return c > _outcome_beg && c < _outcome_end
}

// Retryable reports whether the same request may succeed when sent again.
func (c OutcomeCode) Retryable() bool {
	return c == OutcomeTimeout || c == OutcomeRateLimited || c == OutcomeTransportFailure
}

func (c OutcomeCode) String() string {
	switch c {
	case OutcomeOK:
		return "ok"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeRejected:
		return "rejected"
	case OutcomeTransportFailure:
		return "transport_failure"
	case OutcomeNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Outcome is the single terminal answer to one submit or cancel.
type Outcome struct {
	OK           bool
	Code         OutcomeCode
	VenueOrderID string
	Reason       string
	// ReasonCode is the canonical code from MapReason.
	ReasonCode string
	// Sent is true once the request may have reached the venue.
	Sent bool
	// Filled is set when the venue reports an immediate full execution.
	Filled    bool
	FilledQty float64
	AvgPrice  float64
}

// Accepted builds a successful outcome.
func Accepted(venueOrderID string) Outcome {
	return Outcome{
		OK:           true,
		Code:         OutcomeOK,
		VenueOrderID: venueOrderID,
		Reason:       "OK",
		ReasonCode:   ReasonOK,
		Sent:         true,
	}
}

// Rejected builds a venue rejection with the canonical reason mapped from raw.
func Rejected(raw string) Outcome {
	m := MapReason(StatusRejected, raw)
	return Outcome{
		Code:       OutcomeRejected,
		Reason:     m.Text,
		ReasonCode: m.Code,
		Sent:       true,
	}
}

// Failure builds an infrastructure outcome. sent tells whether the request
// may have left the process before the failure.
func Failure(code OutcomeCode, reason string, sent bool) Outcome {
	return Outcome{
		Code:       code,
		Reason:     reason,
		ReasonCode: reasonCodeFor(code),
		Sent:       sent,
	}
}

// Unanswered reports a sent request whose venue verdict is unknown.
func (o Outcome) Unanswered() bool {
	return !o.OK && o.Sent && (o.Code == OutcomeTimeout || o.Code == OutcomeTransportFailure)
}

func reasonCodeFor(code OutcomeCode) string {
	switch code {
	case OutcomeOK:
		return ReasonOK
	case OutcomeRateLimited:
		return ReasonRateLimited
	case OutcomeTimeout, OutcomeTransportFailure:
		return ReasonNetworkError
	case OutcomeNotFound:
		return ReasonInvalidParams
	default:
		return ReasonVenueReject
	}
}
