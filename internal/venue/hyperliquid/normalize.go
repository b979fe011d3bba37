package hyperliquid

import (
	"context"
	"fmt"
	"math"
	"regexp"

	"execgw/internal/adapter"
	"execgw/internal/adapter/enum"
	"execgw/pkg/exception"

	"github.com/shopspring/decimal"
)

const (
	priceSigFigs      = 5
	perpPriceDecimals = 6
	spotPriceDecimals = 8
)

var cloidPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{32}$`)

// ValidCloid reports whether id is a 128-bit hex client order id.
func ValidCloid(id string) bool {
	return cloidPattern.MatchString(id)
}

// FormatSize rounds qty to the asset size decimals.
func FormatSize(qty float64, szDecimals int) (string, error) {
	d := decimal.NewFromFloat(qty).Round(int32(max(szDecimals, 0)))
	if !d.IsPositive() {
		return "", exception.ErrOrderInvalidQuantity
	}
	return d.String(), nil
}

// FormatPrice rounds px to five significant figures and at most
// 6-szDecimals decimals for perps or 8-szDecimals for spot.
// Integer prices are always accepted as is.
func FormatPrice(px float64, szDecimals int, spot bool) (string, error) {
	if px <= 0 || math.IsNaN(px) || math.IsInf(px, 0) {
		return "", exception.ErrOrderMissingPrice
	}
	d := decimal.NewFromFloat(px)
	if d.Equal(d.Truncate(0)) {
		return d.String(), nil
	}

	maxDecimals := perpPriceDecimals - szDecimals
	if spot {
		maxDecimals = spotPriceDecimals - szDecimals
	}
	exp := int(math.Floor(math.Log10(px)))
	places := min(priceSigFigs-1-exp, maxDecimals)
	if places < 0 {
		places = 0
	}
	out := d.Round(int32(places))
	if !out.IsPositive() {
		return "", exception.ErrOrderMissingPrice
	}
	return out.String(), nil
}

// Resolver looks up venue metadata for a trading pair.
type Resolver interface {
	Resolve(ctx context.Context, pair string) (adapter.Asset, error)
}

// Router turns an order record into its venue routing.
type Router struct {
	resolver Resolver
}

func NewRouter(resolver Resolver) *Router {
	return &Router{resolver: resolver}
}

// Route resolves the asset and normalizes price, size and trigger price.
// Market orders are sent as immediate limits and need a protection price.
func (r *Router) Route(ctx context.Context, rec adapter.OrderRecord) (adapter.Route, error) {
	if !ValidCloid(rec.ClientOrderID.String()) {
		return adapter.Route{}, fmt.Errorf("%w: client order id must be 0x followed by 32 hex digits", exception.ErrOrderInvalidRequest)
	}
	asset, err := r.resolver.Resolve(ctx, rec.Symbol.String())
	if err != nil {
		return adapter.Route{}, err
	}

	size, err := FormatSize(rec.Quantity, asset.SizeDecimals)
	if err != nil {
		return adapter.Route{}, fmt.Errorf("%w: %w", exception.ErrOrderInvalidRequest, err)
	}
	if !rec.HasPrice {
		return adapter.Route{}, fmt.Errorf("%w: %s order needs a limit or protection price", exception.ErrOrderInvalidRequest, rec.Kind)
	}
	price, err := FormatPrice(rec.Price, asset.SizeDecimals, asset.Spot)
	if err != nil {
		return adapter.Route{}, fmt.Errorf("%w: %w", exception.ErrOrderInvalidRequest, err)
	}

	route := adapter.Route{AssetID: asset.AssetID, Price: price, Size: size}
	if rec.Kind.IsTrigger() {
		trigger, err := FormatPrice(rec.StopPrice, asset.SizeDecimals, asset.Spot)
		if err != nil {
			return adapter.Route{}, fmt.Errorf("%w: %w", exception.ErrOrderInvalidRequest, exception.ErrOrderMissingStopPrice)
		}
		route.TriggerPrice = trigger
	}
	return route, nil
}

func tifWire(tif enum.OrderTimeInForce) string {
	switch tif {
	case enum.OrderTimeInForceIOC, enum.OrderTimeInForceFOK:
		return "Ioc"
	case enum.OrderTimeInForcePostOnly:
		return "Alo"
	default:
		return "Gtc"
	}
}
