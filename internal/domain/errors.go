package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrPositionNotOpen   = errors.New("position not open")
	ErrDuplicatePosition = errors.New("position already open for mint")
	ErrInvalidEntry      = errors.New("invalid entry parameters")
	ErrPriceUnavailable  = errors.New("price unavailable")
	ErrRateLimited       = errors.New("rate limited")
	ErrExecutionFailed   = errors.New("execution failed")
	ErrWSDisconnect      = errors.New("websocket disconnected")
	ErrStateMismatch     = errors.New("open set and position record disagree")
)
