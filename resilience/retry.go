package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// BackoffStrategy defines how delays increase between retries.
type BackoffStrategy int

const (
	// BackoffLinear waits BaseDelay * attempt.
	BackoffLinear BackoffStrategy = iota
	// BackoffExponential multiplies the delay by Multiplier each attempt.
	BackoffExponential
	// BackoffConstant uses the same delay for all retries.
	BackoffConstant
)

// String returns the string representation of the strategy.
func (s BackoffStrategy) String() string {
	switch s {
	case BackoffLinear:
		return "linear"
	case BackoffExponential:
		return "exponential"
	case BackoffConstant:
		return "constant"
	default:
		return "unknown"
	}
}

// RetryConfig configures the retry behavior.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including initial).
	// Default: 3
	MaxAttempts int

	// BaseDelay is the delay unit the strategy scales.
	// Zero or negative means the default. Default: 1s
	BaseDelay time.Duration

	// MaxDelay caps the maximum delay between retries.
	// Default: 30s
	MaxDelay time.Duration

	// Multiplier is the backoff multiplier for exponential backoff.
	// Default: 2.0
	Multiplier float64

	// Strategy is the backoff strategy.
	// Default: BackoffLinear
	Strategy BackoffStrategy

	// Jitter adds up to 25% random delay on top of the computed backoff.
	// Default: false
	Jitter bool

	// RetryIf determines if an error should trigger a retry.
	// Default: IsTransient, so anything not marked Permanent is retried.
	RetryIf func(err error) bool

	// OnRetry is called before each backoff sleep.
	OnRetry func(attempt int, err error, delay time.Duration)

	// Sleep waits for d or until ctx is done.
	// Default: a timer select on ctx.Done().
	Sleep func(ctx context.Context, d time.Duration) error
}

// Retry implements retry with backoff.
type Retry struct {
	config RetryConfig
}

// NewRetry creates a new retry handler.
func NewRetry(config RetryConfig) *Retry {
	// Apply defaults
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = time.Second
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 30 * time.Second
	}
	if config.Multiplier <= 0 {
		config.Multiplier = 2.0
	}
	if config.RetryIf == nil {
		config.RetryIf = IsTransient
	}
	if config.Sleep == nil {
		config.Sleep = sleepContext
	}

	return &Retry{config: config}
}

// Execute runs the operation with retry logic.
//
// A failure RetryIf rejects is returned as is. When every attempt fails with
// a retryable error the result is an *ExhaustedError wrapping the last one.
// Cancelling ctx during a backoff returns ctx.Err().
func (r *Retry) Execute(ctx context.Context, op func(context.Context) error) error {
	for attempt := 1; ; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}

		// Check if we should retry
		if !r.config.RetryIf(err) {
			return err
		}
		// The caller gave up; the failure is most likely ctx's own.
		if ctx.Err() != nil {
			return err
		}

		if attempt >= r.config.MaxAttempts {
			return &ExhaustedError{Attempts: attempt, Last: err}
		}

		delay := r.jitter(r.Backoff(attempt))

		if r.config.OnRetry != nil {
			r.config.OnRetry(attempt, err, delay)
		}

		if err := r.config.Sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// Backoff returns the delay before retrying after the given failed attempt
// (1-based), without jitter. It is a pure function of the configuration.
func (r *Retry) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}

	var delay time.Duration

	switch r.config.Strategy {
	case BackoffConstant:
		delay = r.config.BaseDelay

	case BackoffExponential:
		multiplier := math.Pow(r.config.Multiplier, float64(attempt-1))
		f := float64(r.config.BaseDelay) * multiplier
		if f > float64(r.config.MaxDelay) {
			return r.config.MaxDelay
		}
		delay = time.Duration(f)

	default:
		delay = r.config.BaseDelay * time.Duration(attempt)
	}

	// Cap at max delay
	if delay > r.config.MaxDelay || delay < 0 {
		delay = r.config.MaxDelay
	}

	return delay
}

func (r *Retry) jitter(delay time.Duration) time.Duration {
	if !r.config.Jitter || delay < 4 {
		return delay
	}
	// Add up to 25% jitter
	// #nosec G404 -- jitter is non-cryptographic timing variance.
	return delay + time.Duration(rand.Int64N(int64(delay/4)))
}

// Config returns the retry configuration.
func (r *Retry) Config() RetryConfig {
	return r.config
}

// Do runs fn under r and returns its value. A nil r runs fn once.
func Do[T any](ctx context.Context, r *Retry, fn func(context.Context) (T, error)) (T, error) {
	var out T
	op := func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	}

	var err error
	if r == nil {
		err = op(ctx)
	} else {
		err = r.Execute(ctx, op)
	}
	return out, err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
