package resilience

import (
	"errors"
	"fmt"
)

// Sentinel errors for resilience operations.
var (
	// ErrCircuitOpen is returned when the circuit breaker is open.
	ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

	// ErrExhaustedRetries is matched by every ExhaustedError.
	ErrExhaustedRetries = errors.New("resilience: retries exhausted")

	// ErrPermanent marks failures that must not be retried.
	ErrPermanent = errors.New("resilience: permanent failure")

	// ErrRateLimitExceeded is returned when the rate limit is exceeded.
	ErrRateLimitExceeded = errors.New("resilience: rate limit exceeded")

	// ErrBulkheadFull is returned when the bulkhead is at capacity.
	ErrBulkheadFull = errors.New("resilience: bulkhead at capacity")

	// ErrTimeout is returned when an attempt times out.
	ErrTimeout = errors.New("resilience: operation timed out")
)

// ExhaustedError reports that every attempt failed with a retryable error.
// It matches ErrExhaustedRetries and unwraps to the last attempt's error.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("resilience: retries exhausted after %d attempts: %v", e.Attempts, e.Last)
}

// Unwrap returns the last attempt's error.
func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// Is reports whether target is ErrExhaustedRetries.
func (e *ExhaustedError) Is(target error) bool {
	return target == ErrExhaustedRetries
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() []error { return []error{ErrPermanent, e.err} }

// Permanent marks err as not worth retrying. The message is unchanged and
// errors.Is still matches the original error. Permanent(nil) is nil.
func Permanent(err error) error {
	if err == nil || IsPermanent(err) {
		return err
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err, or anything it wraps, was marked permanent.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}

// IsTransient reports whether err is a failure worth retrying: non-nil and
// not marked permanent. It is the default retry classifier.
func IsTransient(err error) bool {
	return err != nil && !IsPermanent(err)
}
