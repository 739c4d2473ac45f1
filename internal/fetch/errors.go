package fetch

import (
	"errors"
	"fmt"
	"time"
)

// AuthError means the token was missing, invalid or expired.
// It is never retried and always raises events.AuthExpired.
type AuthError struct {
	Path   string
	Reason string
}

func (e *AuthError) Error() string {
	if e.Path == "" {
		return "auth: " + e.Reason
	}
	return fmt.Sprintf("auth: %s (%s)", e.Reason, e.Path)
}

// RateLimitError is an HTTP 429 that outlived its retries.
type RateLimitError struct {
	Path       string
	RetryAfter time.Duration
	Attempts   int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited on %s after %d attempt(s)", e.Path, e.Attempts)
}

// TimeoutError means a single attempt exceeded its allotted time.
type TimeoutError struct {
	Path    string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s request timed out after %s", e.Path, e.Timeout)
}

// NetworkError is a connection-level failure (DNS, TLS, refused, reset).
type NetworkError struct {
	Path string
	Err  error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s request failed: %v", e.Path, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// StatusError is a non-2xx answer other than 401 and 429.
type StatusError struct {
	Path string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s request returned status %d", e.Path, e.Code)
	}
	return fmt.Sprintf("%s request returned status %d: %s", e.Path, e.Code, e.Body)
}

// IsAuth reports whether err is an *AuthError.
func IsAuth(err error) bool {
	var target *AuthError
	return errors.As(err, &target)
}

// IsRateLimit reports whether err is a *RateLimitError.
func IsRateLimit(err error) bool {
	var target *RateLimitError
	return errors.As(err, &target)
}

// IsTimeout reports whether err is a *TimeoutError.
func IsTimeout(err error) bool {
	var target *TimeoutError
	return errors.As(err, &target)
}

// IsNetworkClass reports whether err should advance to the next transport.
func IsNetworkClass(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr) || IsTimeout(err)
}
