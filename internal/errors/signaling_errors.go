package errors

import "errors"

var (
	ErrManagerClosed    = errors.New("peer connection manager is closed")
	ErrConnectivityLost = errors.New("connection lost")
	ErrInvalidPayload   = errors.New("generator payload failed validation")
)
