package rate

import "errors"

var (
	// ErrRateLimited reports a rejected attempt. RetryAfter on the
	// returned [Result] says when the window reopens.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps backend failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
