package adapter

import (
	"encoding/hex"
	"strings"

	"execgw/internal/adapter/enum"
	"execgw/pkg/exception"

	"github.com/google/uuid"
)

// MaxTags is the fixed tag capacity of an OrderRecord.
const MaxTags = 4

// Tag is a caller supplied key/value annotation.
type Tag struct {
	Key   Str32
	Value Str32
}

// OrderRecord is the venue-agnostic order a caller submits.
// It contains no pointers so it can be copied through rings and pools.
type OrderRecord struct {
	ClientOrderID Str64
	Symbol        Str64
	Side          enum.OrderSide
	Kind          enum.OrderKind
	TimeInForce   enum.OrderTimeInForce
	Quantity      float64
	Price         float64
	HasPrice      bool
	StopPrice     float64
	HasStopPrice  bool
	ReduceOnly    bool
	Tags          [MaxTags]Tag
	TagCount      uint8
}

// AddTag appends a tag and fails once MaxTags is reached.
func (o *OrderRecord) AddTag(key, value string) error {
	if int(o.TagCount) >= MaxTags {
		return exception.ErrOrderTooManyTags
	}
	o.Tags[o.TagCount] = Tag{Key: NewStr32(key), Value: NewStr32(value)}
	o.TagCount++
	return nil
}

// Tag returns the value stored for key.
func (o OrderRecord) Tag(key string) (string, bool) {
	for i := 0; i < int(o.TagCount); i++ {
		if o.Tags[i].Key.String() == key {
			return o.Tags[i].Value.String(), true
		}
	}
	return "", false
}

// Validate checks the fields every venue requires.
func (o OrderRecord) Validate() error {
	if o.ClientOrderID.IsZero() {
		return exception.ErrOrderEmptyClientID
	}
	if o.Symbol.IsZero() || !o.Side.IsAvailable() || !o.TimeInForce.IsAvailable() {
		return exception.ErrOrderInvalidRequest
	}
	if !o.Kind.IsAvailable() {
		return exception.ErrOrderUnsupportedType
	}
	if o.Quantity <= 0 {
		return exception.ErrOrderInvalidQuantity
	}
	if !o.Kind.IsMarket() && (!o.HasPrice || o.Price <= 0) {
		return exception.ErrOrderMissingPrice
	}
	if o.Kind.IsTrigger() && (!o.HasStopPrice || o.StopPrice <= 0) {
		return exception.ErrOrderMissingStopPrice
	}
	return nil
}

// Batchable reports whether the order may wait for the next batch flush.
// Immediate, market and trigger orders are submitted on their own.
func (o OrderRecord) Batchable() bool {
	return !o.TimeInForce.IsImmediate() && o.Kind != enum.OrderKindMarket && !o.Kind.IsTrigger()
}

// NewClientOrderID returns a random 128-bit id in 0x-prefixed hex.
func NewClientOrderID() string {
	id := uuid.New()
	return "0x" + hex.EncodeToString(id[:])
}

// ParseTimeInForce accepts the common spellings including the post-only aliases.
func ParseTimeInForce(s string) (enum.OrderTimeInForce, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "gtc", "":
		return enum.OrderTimeInForceGTC, true
	case "ioc":
		return enum.OrderTimeInForceIOC, true
	case "fok":
		return enum.OrderTimeInForceFOK, true
	case "po", "post_only", "postonly", "alo":
		return enum.OrderTimeInForcePostOnly, true
	default:
		return 0, false
	}
}
