package exception

import "github.com/yanun0323/errors"

var (
	ErrOrderInvalidRequest      = errors.New("order: invalid request")
	ErrOrderEmptyClientID       = errors.New("order: empty client order id")
	ErrOrderUnsupportedType     = errors.New("order: unsupported type")
	ErrOrderInvalidQuantity     = errors.New("order: quantity must be positive")
	ErrOrderMissingPrice        = errors.New("order: missing price")
	ErrOrderMissingStopPrice    = errors.New("order: missing stop price")
	ErrOrderTooManyTags         = errors.New("order: too many tags")
	ErrOrderDecodeResponseBody  = errors.New("order: decode response body")
	ErrOrderResponseLength      = errors.New("order: response status count mismatch")
	ErrOrderRateLimited         = errors.New("order: rate limited")
	ErrOrderNilDelegator        = errors.New("order: nil delegator")
	ErrOrderStatusUnknown       = errors.New("order: unknown order at venue")
	ErrOrderCancelNotCancelable = errors.New("order: order is not cancelable")
)
