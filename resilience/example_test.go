package resilience_test

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonwraymond/feedbackops/resilience"
)

func ExampleNewRetry() {
	r := resilience.NewRetry(resilience.RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		// Print instead of sleeping so the example runs instantly.
		Sleep: func(ctx context.Context, d time.Duration) error {
			fmt.Println("backoff", d)
			return nil
		},
	})

	attempts := 0
	err := r.Execute(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("503 service unavailable")
		}
		return nil
	})

	fmt.Println("attempts:", attempts, "err:", err)
	// Output:
	// backoff 1s
	// backoff 2s
	// attempts: 3 err: <nil>
}

func ExamplePermanent() {
	r := resilience.NewRetry(resilience.RetryConfig{MaxAttempts: 5})

	attempts := 0
	err := r.Execute(context.Background(), func(ctx context.Context) error {
		attempts++
		return resilience.Permanent(errors.New("400 bad request"))
	})

	fmt.Println("attempts:", attempts)
	fmt.Println("permanent:", resilience.IsPermanent(err))
	// Output:
	// attempts: 1
	// permanent: true
}

func ExampleExhaustedError() {
	r := resilience.NewRetry(resilience.RetryConfig{
		MaxAttempts: 2,
		Sleep:       func(context.Context, time.Duration) error { return nil },
	})

	err := r.Execute(context.Background(), func(ctx context.Context) error {
		return errors.New("connection reset")
	})

	var exhausted *resilience.ExhaustedError
	if errors.As(err, &exhausted) {
		fmt.Println("attempts:", exhausted.Attempts)
		fmt.Println("last:", exhausted.Last)
	}
	fmt.Println(errors.Is(err, resilience.ErrExhaustedRetries))
	// Output:
	// attempts: 2
	// last: connection reset
	// true
}

func ExampleDo() {
	r := resilience.NewRetry(resilience.RetryConfig{
		Sleep: func(context.Context, time.Duration) error { return nil },
	})

	calls := 0
	text, err := resilience.Do(context.Background(), r, func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("timeout")
		}
		return "Consider a stronger thesis.", nil
	})

	fmt.Println(text, err)
	// Output:
	// Consider a stronger thesis. <nil>
}

func ExampleCircuitBreaker_State() {
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		MaxFailures:  2,
		ResetTimeout: time.Minute,
	})

	ctx := context.Background()
	fmt.Println("Initial state:", cb.State())

	for i := 0; i < 2; i++ {
		_ = cb.Execute(ctx, func(ctx context.Context) error {
			return errors.New("provider unavailable")
		})
	}
	fmt.Println("After failures:", cb.State())

	err := cb.Execute(ctx, func(ctx context.Context) error { return nil })
	fmt.Println("Rejected:", errors.Is(err, resilience.ErrCircuitOpen))
	// Output:
	// Initial state: closed
	// After failures: open
	// Rejected: true
}

func ExampleNewExecutor() {
	executor := resilience.NewExecutor(
		resilience.WithBulkhead(resilience.NewBulkhead(resilience.BulkheadConfig{MaxConcurrent: 4})),
		resilience.WithCircuitBreaker(resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{})),
		resilience.WithRetry(resilience.NewRetry(resilience.RetryConfig{
			Sleep: func(context.Context, time.Duration) error { return nil },
		})),
		resilience.WithTimeout(time.Second),
	)

	err := executor.Execute(context.Background(), func(ctx context.Context) error {
		return nil
	})
	fmt.Println("err:", err)
	// Output:
	// err: <nil>
}
