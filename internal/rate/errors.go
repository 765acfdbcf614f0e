package rate

import "errors"

var (
	// ErrRateLimited means the email has used up its attempts for the window.
	ErrRateLimited = errors.New("too many attempts, try again later")
	// ErrRedisUnavailable wraps counter read and write failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
