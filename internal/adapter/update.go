package adapter

import (
	"time"

	"execgw/internal/adapter/enum"
)

// OrderUpdate is a state report for one order from any source.
type OrderUpdate struct {
	ClientOrderID string
	VenueOrderID  string
	State         enum.OrderState
	Reason        string
	Timestamp     time.Time
}

// TradeUpdate is one execution. FillID is unique per venue.
type TradeUpdate struct {
	ClientOrderID string
	VenueOrderID  string
	FillID        string
	Price         float64
	Quantity      float64
	Fee           float64
	FeeAsset      string
	Maker         bool
	Timestamp     time.Time
}

// VenueEvents is what a codec extracts from one push message.
type VenueEvents struct {
	Orders []OrderUpdate
	Trades []TradeUpdate
}

// Empty reports whether the push carried no order information.
func (e VenueEvents) Empty() bool {
	return len(e.Orders) == 0 && len(e.Trades) == 0
}

// Asset is venue metadata for a trading pair.
type Asset struct {
	Name         string
	AssetID      int
	SizeDecimals int
	Spot         bool
}

// Route is the venue-specific form of an order computed at admission.
type Route struct {
	AssetID      int
	Price        string
	Size         string
	TriggerPrice string
}

// Signature is an ECDSA signature split into its wire fields.
type Signature struct {
	R string `json:"r"`
	S string `json:"s"`
	V uint8  `json:"v"`
}
