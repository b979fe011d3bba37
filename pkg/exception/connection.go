package exception

import "github.com/yanun0323/errors"

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrNotConnected     = errors.New("not connected")
	ErrHTTPStatus       = errors.New("unexpected http status")
	ErrHTTPBodyTooLarge = errors.New("http response body too large")
)
