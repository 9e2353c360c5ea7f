package domain

import "errors"

var (
	ErrNotFound    = errors.New("not found")
	ErrNoOdds      = errors.New("no odds available")
	ErrNoModel     = errors.New("no model available")
	ErrRateLimited = errors.New("rate limited")
	ErrLockHeld    = errors.New("lock already held")
)
