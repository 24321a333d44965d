package rate

import "errors"

var (
	// ErrRateLimited means the caller spent its budget for the current window.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps every Redis failure; callers should fail closed.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
