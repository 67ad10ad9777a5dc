package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidTransition = errors.New("invalid link status transition")
	ErrLockHeld          = errors.New("lock already held")
	ErrNoMarkets         = errors.New("no eligible markets")
	ErrRateLimited       = errors.New("rate limited")
)
