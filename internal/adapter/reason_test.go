package adapter

import "testing"

func TestMapReason(t *testing.T) {
	cases := []struct {
		status, raw string
		want        string
	}{
		{StatusRejected, "", ReasonVenueReject},
		{StatusRejected, "badAloPxRejected", ReasonPostOnlyViolation},
		{StatusRejected, "tickRejected", ReasonPriceOutOfBounds},
		{StatusRejected, "minTradeNtlRejected", ReasonMinSize},
		{StatusRejected, "perpMarginRejected", ReasonInsufficientFunds},
		{StatusRejected, "insufficientSpotBalanceRejected", ReasonInsufficientFunds},
		{StatusRejected, "reduceOnlyRejected", ReasonInvalidParams},
		{StatusRejected, "Post only order would have immediately matched, bbo was 100.5", ReasonPostOnlyViolation},
		{StatusRejected, "Order must have minimum value of $10.", ReasonMinSize},
		{StatusRejected, "something new", ReasonVenueReject},
		{StatusCanceled, "", ReasonOK},
		{"open", "", ReasonOK},
	}
	for _, c := range cases {
		if got := MapReason(c.status, c.raw).Code; got != c.want {
			t.Fatalf("MapReason(%q, %q) = %q, want %q", c.status, c.raw, got, c.want)
		}
	}
}

func TestCanonicalReason(t *testing.T) {
	cases := map[string]string{
		"":                  ReasonOK,
		"Accepted":          ReasonOK,
		"missing_price":     ReasonInvalidParams,
		"TOO_MANY_REQUESTS": ReasonRateLimited,
		"timeout":           ReasonNetworkError,
		"ttl_expired":       ReasonExpired,
		"cancel_rejected":   ReasonVenueReject,
		"never-seen":        ReasonVenueReject,
	}
	for raw, want := range cases {
		if got := CanonicalReason(raw); got != want {
			t.Fatalf("CanonicalReason(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestOutcomeConstructors(t *testing.T) {
	ok := Accepted("555")
	if !ok.OK || ok.Code != OutcomeOK || ok.VenueOrderID != "555" {
		t.Fatalf("unexpected accepted outcome: %+v", ok)
	}

	rej := Rejected("badAloPxRejected")
	if rej.OK || rej.Code != OutcomeRejected || rej.ReasonCode != ReasonPostOnlyViolation {
		t.Fatalf("unexpected rejected outcome: %+v", rej)
	}
	if rej.Code.Retryable() {
		t.Fatalf("rejections are not retryable")
	}

	to := Failure(OutcomeTimeout, "no reply", true)
	if !to.Unanswered() || !to.Code.Retryable() || to.ReasonCode != ReasonNetworkError {
		t.Fatalf("unexpected timeout outcome: %+v", to)
	}
	if Failure(OutcomeTransportFailure, "sign", false).Unanswered() {
		t.Fatalf("unsent failure has a known verdict")
	}
}
