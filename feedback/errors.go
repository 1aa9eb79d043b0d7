package feedback

import (
	"errors"
	"fmt"

	"github.com/jonwraymond/feedbackops/resilience"
)

// Sentinel errors for feedback operations.
var (
	ErrNilProvider   = errors.New("feedback: provider is nil")
	ErrNilCache      = errors.New("feedback: cache is nil")
	ErrEmptyResult   = errors.New("feedback: provider returned empty feedback")
	ErrProviderPanic = errors.New("feedback: provider panicked")
)

// FailureKind classifies a provider failure.
type FailureKind int

const (
	// Transient failures may succeed on retry: timeouts, throttling, 5xx.
	Transient FailureKind = iota
	// Permanent failures will fail again for the same input.
	Permanent
)

// String returns the string representation of the kind.
func (k FailureKind) String() string {
	switch k {
	case Transient:
		return "transient"
	case Permanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// ProviderError is a classified provider failure. A Permanent ProviderError
// matches resilience.ErrPermanent, so the retry executor gives up at once.
type ProviderError struct {
	Kind FailureKind
	// StatusCode is the upstream HTTP status, or 0 when there was none.
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("feedback: %s provider failure (status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("feedback: %s provider failure: %v", e.Kind, e.Err)
}

// Unwrap returns the cause, plus resilience.ErrPermanent for permanent failures.
func (e *ProviderError) Unwrap() []error {
	if e.Kind == Permanent {
		return []error{resilience.ErrPermanent, e.Err}
	}
	return []error{e.Err}
}

// TransientError marks err as a retryable provider failure.
// TransientError(nil) is nil.
func TransientError(err error) error {
	if err == nil {
		return nil
	}
	return &ProviderError{Kind: Transient, Err: err}
}

// PermanentError marks err as a provider failure that must not be retried.
// PermanentError(nil) is nil.
func PermanentError(err error) error {
	if err == nil {
		return nil
	}
	return &ProviderError{Kind: Permanent, Err: err}
}
