package domain

import "errors"

var (
	ErrRateLimited        = errors.New("rate limit exceeded")
	ErrBackendUnavailable = errors.New("rate limit backend unavailable")
	ErrInvalidPolicy      = errors.New("invalid rate limit policy")
	ErrNoSlot             = errors.New("concurrency limit reached")
)

func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

func IsBackendUnavailable(err error) bool {
	return errors.Is(err, ErrBackendUnavailable)
}
