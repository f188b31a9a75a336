package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrRateLimited      = errors.New("rate limited")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrInvalidThreshold = errors.New("invalid threshold")
	ErrInvalidPayload   = errors.New("invalid payload")
	ErrEmptyLabel       = errors.New("label must not be empty")
	ErrDuplicateLabel   = errors.New("label already exists")
	ErrLabelLimit       = errors.New("label limit reached")
	ErrLabelIndex       = errors.New("label index out of range")
	ErrLockHeld         = errors.New("lock already held")
)
