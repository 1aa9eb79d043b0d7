// Package resilience provides resilience patterns for calls to an unreliable
// feedback provider.
//
// # Patterns
//
//   - Retry: re-runs failed operations with linear (default), exponential
//     or constant backoff. Only transient failures are retried; wrap an
//     error with Permanent to stop immediately. When every attempt fails
//     the result is an *ExhaustedError.
//
//   - Circuit Breaker: stops calling a provider that keeps failing. Permanent
//     failures do not count against it.
//
//   - Rate Limiter: token bucket on golang.org/x/time/rate.
//
//   - Bulkhead: caps concurrent calls with a weighted semaphore.
//
//   - Timeout: bounds each attempt.
//
// # Usage
//
//	retry := resilience.NewRetry(resilience.RetryConfig{
//	    MaxAttempts: 3,
//	    BaseDelay:   time.Second, // waits 1s, then 2s
//	})
//
//	executor := resilience.NewExecutor(
//	    resilience.WithRateLimiter(resilience.NewRateLimiter(resilience.RateLimiterConfig{Rate: 5, Burst: 5})),
//	    resilience.WithCircuitBreaker(resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{})),
//	    resilience.WithRetry(retry),
//	    resilience.WithTimeout(20*time.Second),
//	)
//
//	err := executor.Execute(ctx, func(ctx context.Context) error {
//	    return callProvider(ctx)
//	})
package resilience
