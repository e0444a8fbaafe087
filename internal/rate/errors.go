package rate

import "errors"

var (
	// ErrUnknownOperation is returned when a check names an operation outside the policy table.
	ErrUnknownOperation = errors.New("unknown rate limit operation")
	// ErrRedisUnavailable is returned when the Redis store cannot be reached.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
