package crawler

import (
	"errors"
	"fmt"
	"time"
)

// AuthError reports rejected credentials. It is fatal to the whole run.
type AuthError struct {
	Status int
	Detail string
}

func (e *AuthError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("authentication rejected (status %d)", e.Status)
	}
	return fmt.Sprintf("authentication rejected (status %d): %s", e.Status, e.Detail)
}

// RateLimitedError reports remote throttling, either an explicit rate-limit
// response or an exhausted quota.
type RateLimitedError struct {
	Remaining int
	ResetAt   time.Time
	Detail    string
}

func (e *RateLimitedError) Error() string {
	if e.ResetAt.IsZero() {
		return fmt.Sprintf("rate limited: %s", e.Detail)
	}
	return fmt.Sprintf("rate limited until %s: %s", e.ResetAt.Format(time.RFC3339), e.Detail)
}

// TransientError wraps failures worth retrying: timeouts, dropped
// connections, 5xx responses.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *TransientError) Unwrap() error { return e.Err }

// MalformedResponseError reports a response envelope that could not be
// decoded, leaving no usable continuation cursor for the unit.
type MalformedResponseError struct {
	Detail string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed response: %s", e.Detail)
}

// FetchExhaustedError is returned once the transient retry budget for a
// single page is spent. It terminates that work unit only.
type FetchExhaustedError struct {
	Attempts int
	Last     error
}

func (e *FetchExhaustedError) Error() string {
	return fmt.Sprintf("fetch failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *FetchExhaustedError) Unwrap() error { return e.Last }

// IsAuth reports whether err is an AuthError.
func IsAuth(err error) bool {
	var target *AuthError
	return errors.As(err, &target)
}

// IsRateLimited reports whether err is a RateLimitedError.
func IsRateLimited(err error) bool {
	var target *RateLimitedError
	return errors.As(err, &target)
}

// IsTransient reports whether err is a TransientError.
func IsTransient(err error) bool {
	var target *TransientError
	return errors.As(err, &target)
}

// IsMalformed reports whether err is a MalformedResponseError.
func IsMalformed(err error) bool {
	var target *MalformedResponseError
	return errors.As(err, &target)
}

// IsFetchExhausted reports whether err is a FetchExhaustedError.
func IsFetchExhausted(err error) bool {
	var target *FetchExhaustedError
	return errors.As(err, &target)
}
