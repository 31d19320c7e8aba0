package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrPositionNotOpen = errors.New("position not open")
	ErrUnknownSymbol   = errors.New("unknown symbol")
	ErrPriceNotFound   = errors.New("price unavailable")
	ErrWSDisconnect    = errors.New("websocket disconnected")
	ErrContextDone     = errors.New("context cancelled")
	ErrLockHeld        = errors.New("lock already held")
)
