package journal

import (
	"time"

	"execgw/internal/og"
)

// OrderRow is the latest snapshot of one order.
type OrderRow struct {
	ClientOrderID string `gorm:"primaryKey;size:66"`
	VenueOrderID  string `gorm:"size:64;index"`
	Symbol        string `gorm:"size:64;index"`
	Side          string `gorm:"size:8"`
	Kind          string `gorm:"size:24"`
	TimeInForce   string `gorm:"size:16"`
	Price         float64
	Quantity      float64
	FilledQty     float64
	AvgPrice      float64
	Fees          float64
	State         string `gorm:"size:24;index"`
	Reason        string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	// Seq is the tracker sequence of the snapshot. Older snapshots never
	// overwrite newer ones.
	Seq uint64 `gorm:"not null;default:0"`
}

func (OrderRow) TableName() string {
	return "exec_orders"
}

// FillRow is one execution. FillID is the venue trade id.
type FillRow struct {
	FillID        string `gorm:"primaryKey;size:64"`
	ClientOrderID string `gorm:"size:66;index"`
	Price         float64
	Quantity      float64
	Fee           float64
	FeeAsset      string `gorm:"size:16"`
	Maker         bool
	Timestamp     time.Time
}

func (FillRow) TableName() string {
	return "exec_fills"
}

func orderRow(o og.InFlightOrder) OrderRow {
	return OrderRow{
		ClientOrderID: o.ClientOrderID,
		VenueOrderID:  o.VenueOrderID,
		Symbol:        o.Symbol,
		Side:          o.Side.String(),
		Kind:          o.Kind.String(),
		TimeInForce:   o.TimeInForce.String(),
		Price:         o.Price,
		Quantity:      o.Quantity,
		FilledQty:     o.FilledQty,
		AvgPrice:      o.AvgPrice,
		Fees:          o.Fees,
		State:         o.State.String(),
		Reason:        o.Reason,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
		Seq:           o.Seq,
	}
}

func fillRow(clientOrderID string, f og.Fill) FillRow {
	return FillRow{
		FillID:        f.ID,
		ClientOrderID: clientOrderID,
		Price:         f.Price,
		Quantity:      f.Quantity,
		Fee:           f.Fee,
		FeeAsset:      f.FeeAsset,
		Maker:         f.Maker,
		Timestamp:     f.Timestamp,
	}
}
