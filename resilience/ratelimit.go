package resilience

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterConfig configures the rate limiter.
type RateLimiterConfig struct {
	// Rate is the number of provider calls allowed per second.
	// Default: 10
	Rate float64

	// Burst is the maximum burst size.
	// Default: 5
	Burst int

	// MaxWait is how long a call may queue for a token before it is
	// rejected with ErrRateLimitExceeded. Zero rejects immediately.
	MaxWait time.Duration
}

// RateLimiter is a token bucket limiter for outbound provider calls.
type RateLimiter struct {
	config  RateLimiterConfig
	limiter *rate.Limiter
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	// Apply defaults
	if config.Rate <= 0 {
		config.Rate = 10
	}
	if config.Burst <= 0 {
		config.Burst = 5
	}
	if config.MaxWait < 0 {
		config.MaxWait = 0
	}

	return &RateLimiter{
		config:  config,
		limiter: rate.NewLimiter(rate.Limit(config.Rate), config.Burst),
	}
}

// Allow reports whether a call may proceed now, consuming a token if so.
func (rl *RateLimiter) Allow() bool {
	return rl.limiter.Allow()
}

// Wait blocks until a token is available, MaxWait elapses or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rl.limiter.Allow() {
		return nil
	}
	if rl.config.MaxWait <= 0 {
		return ErrRateLimitExceeded
	}

	r := rl.limiter.Reserve()
	if !r.OK() {
		return ErrRateLimitExceeded
	}
	delay := r.Delay()
	if delay > rl.config.MaxWait {
		r.Cancel()
		return ErrRateLimitExceeded
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Execute runs the operation once a token is available.
func (rl *RateLimiter) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := rl.Wait(ctx); err != nil {
		return err
	}
	return op(ctx)
}

// Tokens returns the current number of available tokens.
func (rl *RateLimiter) Tokens() float64 {
	return rl.limiter.Tokens()
}

// Config returns the rate limiter configuration.
func (rl *RateLimiter) Config() RateLimiterConfig {
	return rl.config
}
