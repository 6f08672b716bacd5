package app

import "fmt"

// ValidationError is returned for malformed submissions. The request is
// rejected before the pairing transaction and no row is written.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// RateLimitError is returned when an account exceeds its submission rate limit.
type RateLimitError struct {
	RetryAfterSeconds int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("submission rate limit exceeded, retry after %ds", e.RetryAfterSeconds)
}
