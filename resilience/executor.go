package resilience

import (
	"context"
	"time"
)

// Executor composes multiple resilience patterns around a provider call.
type Executor struct {
	circuitBreaker *CircuitBreaker
	retry          *Retry
	rateLimiter    *RateLimiter
	bulkhead       *Bulkhead
	timeout        *Timeout
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// NewExecutor creates a new resilience executor.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WithCircuitBreaker adds a circuit breaker to the executor.
func WithCircuitBreaker(cb *CircuitBreaker) ExecutorOption {
	return func(e *Executor) {
		e.circuitBreaker = cb
	}
}

// WithRetry adds retry logic to the executor.
func WithRetry(r *Retry) ExecutorOption {
	return func(e *Executor) {
		e.retry = r
	}
}

// WithRateLimiter adds rate limiting to the executor.
func WithRateLimiter(rl *RateLimiter) ExecutorOption {
	return func(e *Executor) {
		e.rateLimiter = rl
	}
}

// WithBulkhead adds bulkhead isolation to the executor.
func WithBulkhead(b *Bulkhead) ExecutorOption {
	return func(e *Executor) {
		e.bulkhead = b
	}
}

// WithTimeout adds a per-attempt timeout to the executor.
func WithTimeout(timeout time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.timeout = NewTimeout(TimeoutConfig{Timeout: timeout})
	}
}

// CircuitBreaker returns the configured breaker, or nil.
func (e *Executor) CircuitBreaker() *CircuitBreaker {
	return e.circuitBreaker
}

// Retry returns the configured retry handler, or nil.
func (e *Executor) Retry() *Retry {
	return e.retry
}

// layer wraps op in one resilience pattern.
type layer func(ctx context.Context, op func(context.Context) error) error

// layers returns the configured patterns, outermost first: the rate limiter
// paces calls, the bulkhead caps concurrency, the breaker fails fast while
// the provider is down, retry repeats transient failures and the timeout
// bounds each attempt.
func (e *Executor) layers() []layer {
	var ls []layer
	if e.rateLimiter != nil {
		ls = append(ls, e.rateLimiter.Execute)
	}
	if e.bulkhead != nil {
		ls = append(ls, e.bulkhead.Execute)
	}
	if e.circuitBreaker != nil {
		ls = append(ls, e.circuitBreaker.Execute)
	}
	if e.retry != nil {
		ls = append(ls, e.retry.Execute)
	}
	if e.timeout != nil {
		ls = append(ls, e.timeout.Execute)
	}
	return ls
}

// Execute runs op through every configured pattern. With none configured
// op runs once, directly.
func (e *Executor) Execute(ctx context.Context, op func(context.Context) error) error {
	run := op
	ls := e.layers()
	for i := len(ls) - 1; i >= 0; i-- {
		l, inner := ls[i], run
		run = func(ctx context.Context) error { return l(ctx, inner) }
	}
	return run(ctx)
}
