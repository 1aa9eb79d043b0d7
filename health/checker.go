package health

import (
	"context"
	"fmt"
	"time"
)

// Status is the health of a component. Larger values are worse, so the
// status of a group is the maximum of its members.
type Status int

const (
	StatusHealthy   Status = iota // serving normally
	StatusDegraded                // serving with reduced capability
	StatusUnhealthy               // requests will fail
)

var statusNames = [...]string{"healthy", "degraded", "unhealthy"}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "unknown"
	}
	return statusNames[s]
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name, so clients can read health responses.
func (s *Status) UnmarshalText(b []byte) error {
	for i, name := range statusNames {
		if string(b) == name {
			*s = Status(i)
			return nil
		}
	}
	return fmt.Errorf("health: unknown status %q", b)
}

// Result is the outcome of one check. The Aggregator fills in Duration, and
// Timestamp when the checker left it unset.
type Result struct {
	Status    Status
	Message   string
	Details   map[string]any
	Duration  time.Duration
	Timestamp time.Time
	Error     error
}

func newResult(s Status, message string, err error) Result {
	return Result{Status: s, Message: message, Error: err, Timestamp: time.Now()}
}

// Healthy reports a component serving normally.
func Healthy(message string) Result { return newResult(StatusHealthy, message, nil) }

// Degraded reports a component that still serves, with err as the cause.
func Degraded(message string, err error) Result { return newResult(StatusDegraded, message, err) }

// Unhealthy reports a component that cannot serve.
func Unhealthy(message string, err error) Result { return newResult(StatusUnhealthy, message, err) }

// WithDetails returns r carrying details.
func (r Result) WithDetails(details map[string]any) Result {
	r.Details = details
	return r
}

// Checker is the interface for health checks.
type Checker interface {
	Name() string
	Check(ctx context.Context) Result
}

type checkerFunc struct {
	name string
	fn   func(context.Context) Result
}

// CheckFunc adapts fn into a Checker called name.
func CheckFunc(name string, fn func(context.Context) Result) Checker {
	return &checkerFunc{name: name, fn: fn}
}

func (f *checkerFunc) Name() string { return f.name }

func (f *checkerFunc) Check(ctx context.Context) Result { return f.fn(ctx) }
