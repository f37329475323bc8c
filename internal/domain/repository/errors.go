package repository

import "errors"

var (
	ErrBotNotFound    = errors.New("bot not found")
	ErrEventNotFound  = errors.New("event not found")
	ErrEventFinalized = errors.New("event already finalized")
	ErrIntentNotFound = errors.New("trade intent not found")
	ErrDuplicate      = errors.New("duplicate record")
	// ErrQueueFull is returned by a dispatcher that rejects the newest event.
	ErrQueueFull = errors.New("backpressure")
)
