package resilience

import (
	"context"
	"fmt"
	"time"
)

// TimeoutConfig configures the timeout wrapper.
type TimeoutConfig struct {
	// Timeout bounds a single attempt. Default: 30 seconds.
	Timeout time.Duration
}

// Timeout bounds each attempt. An attempt that runs out of time fails with
// ErrTimeout, which is retryable; the caller's own deadline or cancellation
// is reported as ctx.Err() instead.
//
// Operations must honor their context. One that ignores it is abandoned, not
// stopped: Execute returns at the deadline, the late result is discarded, and
// the abandoned attempt may still be running while the retry layer starts the
// next one.
type Timeout struct {
	config TimeoutConfig
	cause  error
}

// NewTimeout creates a timeout wrapper.
func NewTimeout(config TimeoutConfig) *Timeout {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &Timeout{
		config: config,
		cause:  fmt.Errorf("%w after %v", ErrTimeout, config.Timeout),
	}
}

// Execute runs op under the attempt deadline.
func (t *Timeout) Execute(ctx context.Context, op func(context.Context) error) error {
	attemptCtx, cancel := context.WithTimeoutCause(ctx, t.config.Timeout, t.cause)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- op(attemptCtx) }()

	select {
	case err := <-done:
		return t.settle(attemptCtx, err)
	case <-attemptCtx.Done():
		// Prefer the operation's own result when it is already there.
		select {
		case err := <-done:
			return t.settle(attemptCtx, err)
		default:
		}
		if context.Cause(attemptCtx) == t.cause {
			return t.cause
		}
		return ctx.Err()
	}
}

// settle reports err, tagged with the timeout when the attempt's deadline
// passed. Both stay matchable, so a permanent failure is not retried.
func (t *Timeout) settle(attemptCtx context.Context, err error) error {
	if err != nil && context.Cause(attemptCtx) == t.cause {
		return fmt.Errorf("%w: %w", t.cause, err)
	}
	return err
}

// Config returns the timeout configuration.
func (t *Timeout) Config() TimeoutConfig {
	return t.config
}
