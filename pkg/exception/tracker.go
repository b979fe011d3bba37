package exception

import "github.com/yanun0323/errors"

var (
	ErrTrackerDuplicateOrder = errors.New("tracker: order already tracked")
	ErrTrackerUnknownOrder   = errors.New("tracker: order not found")
	ErrTrackerInvalidFill    = errors.New("tracker: invalid fill")
	ErrTrackerOverfill       = errors.New("tracker: fill exceeds requested quantity")
)
