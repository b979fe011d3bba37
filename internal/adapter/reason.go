package adapter

import "strings"

// Canonical reason codes.
const (
	ReasonOK                = "ok"
	ReasonInvalidParams     = "invalid_params"
	ReasonRiskBlocked       = "risk_blocked"
	ReasonInsufficientFunds = "insufficient_balance"
	ReasonPostOnlyViolation = "post_only_violation"
	ReasonMinSize           = "min_size"
	ReasonPriceOutOfBounds  = "price_out_of_bounds"
	ReasonRateLimited       = "rate_limited"
	ReasonNetworkError      = "network_error"
	ReasonExpired           = "expired"
	ReasonVenueReject       = "venue_reject"
)

// Normalized statuses accepted by MapReason.
const (
	StatusRejected = "rejected"
	StatusCanceled = "canceled"
	StatusReplaced = "replaced"
)

// Reason is a canonical code with a human readable text.
type Reason struct {
	Code string
	Text string
}

var canonicalAliases = map[string]string{
	"":                        ReasonOK,
	"ok":                      ReasonOK,
	"accepted":                ReasonOK,
	"invalid_params":          ReasonInvalidParams,
	"invalid_parameters":      ReasonInvalidParams,
	"invalid_parameter":       ReasonInvalidParams,
	"missing_parameters":      ReasonInvalidParams,
	"missing_parameter":       ReasonInvalidParams,
	"missing_price":           ReasonInvalidParams,
	"missing_stop_price":      ReasonInvalidParams,
	"missing_cancel_id":       ReasonInvalidParams,
	"invalid_action":          ReasonInvalidParams,
	"unsupported_type":        ReasonInvalidParams,
	"invalid_size":            ReasonInvalidParams,
	"invalid_reduce_only":     ReasonInvalidParams,
	"parameter_error":         ReasonInvalidParams,
	"risk_blocked":            ReasonRiskBlocked,
	"risk_violation":          ReasonRiskBlocked,
	"perpmaxpositionrejected": ReasonRiskBlocked,
	"insufficient_balance":    ReasonInsufficientFunds,
	"balance_insufficient":    ReasonInsufficientFunds,
	"post_only_violation":     ReasonPostOnlyViolation,
	"post_only_reject":        ReasonPostOnlyViolation,
	"badalopxrejected":        ReasonPostOnlyViolation,
	"min_size":                ReasonMinSize,
	"size_too_small":          ReasonMinSize,
	"mintradentlrejected":     ReasonMinSize,
	"mintradespotntlrejected": ReasonMinSize,
	"price_out_of_bounds":     ReasonPriceOutOfBounds,
	"price_too_far":           ReasonPriceOutOfBounds,
	"tickrejected":            ReasonPriceOutOfBounds,
	"oraclerejected":          ReasonPriceOutOfBounds,
	"rate_limited":            ReasonRateLimited,
	"too_many_requests":       ReasonRateLimited,
	"network_error":           ReasonNetworkError,
	"exchange_error":          ReasonNetworkError,
	"processing_error":        ReasonNetworkError,
	"timeout":                 ReasonNetworkError,
	"transport_error":         ReasonNetworkError,
	"expired":                 ReasonExpired,
	"ttl_expired":             ReasonExpired,
}

// CanonicalReason folds a free-form venue code into a canonical one.
// Unknown codes map to venue_reject.
func CanonicalReason(raw string) string {
	if code, ok := canonicalAliases[strings.ToLower(raw)]; ok {
		return code
	}
	return ReasonVenueReject
}

// MapReason derives the canonical reason for a normalized status.
func MapReason(status, raw string) Reason {
	switch status {
	case StatusRejected:
		return mapRejection(raw)
	case StatusCanceled:
		return Reason{Code: ReasonOK, Text: "Order cancelled"}
	case StatusReplaced:
		return Reason{Code: ReasonOK, Text: "Order replaced"}
	}
	if raw == "" {
		raw = "OK"
	}
	return Reason{Code: ReasonOK, Text: raw}
}

func mapRejection(raw string) Reason {
	lower := strings.ToLower(raw)
	if lower == "" {
		return Reason{Code: ReasonVenueReject, Text: "Order rejected"}
	}

	switch lower {
	case "tickrejected", "oraclerejected":
		return Reason{Code: ReasonPriceOutOfBounds, Text: "Rejected by tick/oracle constraint"}
	case "mintradentlrejected", "mintradespotntlrejected":
		return Reason{Code: ReasonMinSize, Text: "Order notional below minimum"}
	case "badalopxrejected":
		return Reason{Code: ReasonPostOnlyViolation, Text: "Post-only would match immediately"}
	case "perpmaxpositionrejected":
		return Reason{Code: ReasonRiskBlocked, Text: "Position exceeds margin tier limit"}
	case "perpmarginrejected":
		return Reason{Code: ReasonInsufficientFunds, Text: "Insufficient margin"}
	case "reduceonlyrejected":
		return Reason{Code: ReasonInvalidParams, Text: "Reduce-only would increase position"}
	case "ioccancelrejected", "marketordernoliquidityrejected":
		return Reason{Code: ReasonVenueReject, Text: "No liquidity for immediate execution"}
	}

	switch {
	case strings.Contains(lower, "balance"):
		return Reason{Code: ReasonInsufficientFunds, Text: raw}
	case strings.Contains(lower, "post only"), strings.Contains(lower, "would have immediately matched"):
		return Reason{Code: ReasonPostOnlyViolation, Text: raw}
	case strings.Contains(lower, "minimum value"):
		return Reason{Code: ReasonMinSize, Text: raw}
	case strings.Contains(lower, "tick size"), strings.Contains(lower, "too far from oracle"):
		return Reason{Code: ReasonPriceOutOfBounds, Text: raw}
	case strings.Contains(lower, "margin"):
		return Reason{Code: ReasonInsufficientFunds, Text: raw}
	case strings.Contains(lower, "reduce only"):
		return Reason{Code: ReasonInvalidParams, Text: raw}
	case strings.Contains(lower, "rate limit"), strings.Contains(lower, "too many"):
		return Reason{Code: ReasonRateLimited, Text: raw}
	}
	return Reason{Code: ReasonVenueReject, Text: raw}
}
