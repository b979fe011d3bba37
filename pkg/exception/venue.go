package exception

import "github.com/yanun0323/errors"

var (
	ErrAssetNotFound    = errors.New("venue: asset not found")
	ErrSignerTimeout    = errors.New("venue: signer timed out")
	ErrSignerInvalidKey = errors.New("venue: invalid private key")
	ErrUnknownChannel   = errors.New("venue: unknown push channel")
)
