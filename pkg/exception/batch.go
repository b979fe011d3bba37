package exception

import "github.com/yanun0323/errors"

var (
	ErrBatchClosed       = errors.New("batch: coordinator stopped")
	ErrBatchQueueFull    = errors.New("batch: pending queue full")
	ErrBatchNilCodec     = errors.New("batch: nil codec")
	ErrBatchNilSigner    = errors.New("batch: nil signer")
	ErrBatchNilTransport = errors.New("batch: no transport configured")
)
