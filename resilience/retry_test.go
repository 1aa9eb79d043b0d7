package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// recordingSleep records requested delays without waiting.
type recordingSleep struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordingSleep) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *recordingSleep) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

func TestNewRetry(t *testing.T) {
	r := NewRetry(RetryConfig{})

	if r.config.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", r.config.MaxAttempts)
	}
	if r.config.BaseDelay != time.Second {
		t.Errorf("BaseDelay = %v, want 1s", r.config.BaseDelay)
	}
	if r.config.MaxDelay != 30*time.Second {
		t.Errorf("MaxDelay = %v, want 30s", r.config.MaxDelay)
	}
	if r.config.Multiplier != 2.0 {
		t.Errorf("Multiplier = %f, want 2.0", r.config.Multiplier)
	}
	if r.config.Strategy != BackoffLinear {
		t.Errorf("Strategy = %v, want linear", r.config.Strategy)
	}
	if r.config.Jitter {
		t.Error("Jitter = true, want false")
	}
}

func TestRetry_SuccessOnFirstAttempt(t *testing.T) {
	sleep := &recordingSleep{}
	r := NewRetry(RetryConfig{MaxAttempts: 3, Sleep: sleep.Sleep})

	attempts := 0
	err := r.Execute(context.Background(), func(ctx context.Context) error {
		attempts++
		return nil
	})

	if err != nil {
		t.Errorf("Execute() error = %v", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
	if len(sleep.Delays()) != 0 {
		t.Errorf("slept %v, want no sleeps", sleep.Delays())
	}
}

func TestRetry_SuccessOnThirdAttempt(t *testing.T) {
	sleep := &recordingSleep{}
	r := NewRetry(RetryConfig{MaxAttempts: 3, BaseDelay: time.Second, Sleep: sleep.Sleep})

	attempts := 0
	testErr := errors.New("503 from provider")

	err := r.Execute(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return testErr
		}
		return nil
	})

	if err != nil {
		t.Errorf("Execute() error = %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}

	want := []time.Duration{time.Second, 2 * time.Second}
	got := sleep.Delays()
	if len(got) != len(want) {
		t.Fatalf("delays = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("delay[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestRetry_ExhaustedAttempts(t *testing.T) {
	sleep := &recordingSleep{}
	r := NewRetry(RetryConfig{MaxAttempts: 3, Sleep: sleep.Sleep})

	attempts := 0
	testErr := errors.New("persistent error")

	err := r.Execute(context.Background(), func(ctx context.Context) error {
		attempts++
		return testErr
	})

	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if !errors.Is(err, ErrExhaustedRetries) {
		t.Errorf("Execute() error = %v, want ErrExhaustedRetries", err)
	}
	if !errors.Is(err, testErr) {
		t.Errorf("Execute() error = %v, want to unwrap to last error", err)
	}

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("Execute() error = %T, want *ExhaustedError", err)
	}
	if exhausted.Attempts != 3 {
		t.Errorf("ExhaustedError.Attempts = %d, want 3", exhausted.Attempts)
	}
	// No sleep after the final attempt.
	if n := len(sleep.Delays()); n != 2 {
		t.Errorf("sleeps = %d, want 2", n)
	}
}

func TestRetry_PermanentNotRetried(t *testing.T) {
	sleep := &recordingSleep{}
	r := NewRetry(RetryConfig{MaxAttempts: 5, Sleep: sleep.Sleep})

	cause := errors.New("400 bad request")
	attempts := 0

	err := r.Execute(context.Background(), func(ctx context.Context) error {
		attempts++
		return Permanent(cause)
	})

	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
	if !IsPermanent(err) {
		t.Errorf("Execute() error = %v, want permanent", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("Execute() error = %v, want to wrap %v", err, cause)
	}
	if errors.Is(err, ErrExhaustedRetries) {
		t.Error("permanent failure should not report exhausted retries")
	}
	if len(sleep.Delays()) != 0 {
		t.Errorf("slept %v before permanent failure", sleep.Delays())
	}
}

func TestRetry_ContextCancellation(t *testing.T) {
	r := NewRetry(RetryConfig{
		MaxAttempts: 10,
		BaseDelay:   time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0

	done := make(chan error, 1)
	go func() {
		done <- r.Execute(ctx, func(ctx context.Context) error {
			attempts++
			return errors.New("test error")
		})
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Execute() error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Execute did not return after cancel")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestRetry_RetryIf(t *testing.T) {
	retryableErr := errors.New("retryable")
	nonRetryableErr := errors.New("non-retryable")

	r := NewRetry(RetryConfig{
		MaxAttempts: 5,
		Sleep:       (&recordingSleep{}).Sleep,
		RetryIf: func(err error) bool {
			return errors.Is(err, retryableErr)
		},
	})

	attempts := 0
	err := r.Execute(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return retryableErr
		}
		return nonRetryableErr
	})

	if err != nonRetryableErr {
		t.Errorf("Execute() error = %v, want %v", err, nonRetryableErr)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetry_OnRetry(t *testing.T) {
	type call struct {
		attempt int
		delay   time.Duration
	}
	var calls []call

	r := NewRetry(RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   10 * time.Millisecond,
		Sleep:       (&recordingSleep{}).Sleep,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			calls = append(calls, call{attempt, delay})
		},
	})

	_ = r.Execute(context.Background(), func(ctx context.Context) error {
		return errors.New("test error")
	})

	if len(calls) != 2 {
		t.Fatalf("OnRetry calls = %d, want 2", len(calls))
	}
	if calls[0].attempt != 1 || calls[0].delay != 10*time.Millisecond {
		t.Errorf("first OnRetry = %+v, want {1 10ms}", calls[0])
	}
	if calls[1].attempt != 2 || calls[1].delay != 20*time.Millisecond {
		t.Errorf("second OnRetry = %+v, want {2 20ms}", calls[1])
	}
}

func TestRetry_Backoff(t *testing.T) {
	tests := []struct {
		name     string
		config   RetryConfig
		attempts []int
		want     []time.Duration
	}{
		{
			name:     "linear default",
			config:   RetryConfig{},
			attempts: []int{1, 2, 3},
			want:     []time.Duration{time.Second, 2 * time.Second, 3 * time.Second},
		},
		{
			name:     "constant",
			config:   RetryConfig{BaseDelay: 100 * time.Millisecond, Strategy: BackoffConstant},
			attempts: []int{1, 2, 5},
			want:     []time.Duration{100 * time.Millisecond, 100 * time.Millisecond, 100 * time.Millisecond},
		},
		{
			name:     "exponential",
			config:   RetryConfig{BaseDelay: 100 * time.Millisecond, Strategy: BackoffExponential, Multiplier: 2},
			attempts: []int{1, 2, 3},
			want:     []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond},
		},
		{
			name:     "capped",
			config:   RetryConfig{BaseDelay: time.Second, MaxDelay: 3 * time.Second},
			attempts: []int{2, 3, 10},
			want:     []time.Duration{2 * time.Second, 3 * time.Second, 3 * time.Second},
		},
		{
			name:     "exponential overflow capped",
			config:   RetryConfig{BaseDelay: time.Second, Strategy: BackoffExponential, MaxDelay: time.Minute},
			attempts: []int{200},
			want:     []time.Duration{time.Minute},
		},
		{
			name:     "attempt zero",
			config:   RetryConfig{},
			attempts: []int{0},
			want:     []time.Duration{0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRetry(tt.config)
			for i, a := range tt.attempts {
				if got := r.Backoff(a); got != tt.want[i] {
					t.Errorf("Backoff(%d) = %v, want %v", a, got, tt.want[i])
				}
			}
		})
	}
}

func TestRetry_Jitter(t *testing.T) {
	sleep := &recordingSleep{}
	r := NewRetry(RetryConfig{
		MaxAttempts: 2,
		BaseDelay:   100 * time.Millisecond,
		Jitter:      true,
		Sleep:       sleep.Sleep,
	})

	_ = r.Execute(context.Background(), func(ctx context.Context) error {
		return errors.New("test error")
	})

	delays := sleep.Delays()
	if len(delays) != 1 {
		t.Fatalf("delays = %v, want 1", delays)
	}
	if delays[0] < 100*time.Millisecond || delays[0] >= 125*time.Millisecond {
		t.Errorf("jittered delay = %v, want within [100ms, 125ms)", delays[0])
	}
}

func TestDo(t *testing.T) {
	r := NewRetry(RetryConfig{MaxAttempts: 3, Sleep: (&recordingSleep{}).Sleep})

	attempts := 0
	got, err := Do(context.Background(), r, func(ctx context.Context) (string, error) {
		attempts++
		if attempts == 1 {
			return "", errors.New("flaky")
		}
		return "feedback", nil
	})

	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if got != "feedback" {
		t.Errorf("Do() = %q, want %q", got, "feedback")
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestDo_NilRetry(t *testing.T) {
	attempts := 0
	_, err := Do(context.Background(), nil, func(ctx context.Context) (int, error) {
		attempts++
		return 0, errors.New("fails")
	})

	if err == nil {
		t.Error("Do() error = nil, want failure")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestRetry_Config(t *testing.T) {
	r := NewRetry(RetryConfig{
		MaxAttempts: 5,
		BaseDelay:   200 * time.Millisecond,
		Strategy:    BackoffExponential,
	})

	cfg := r.Config()
	if cfg.MaxAttempts != 5 {
		t.Errorf("Config().MaxAttempts = %d, want 5", cfg.MaxAttempts)
	}
	if cfg.BaseDelay != 200*time.Millisecond {
		t.Errorf("Config().BaseDelay = %v, want 200ms", cfg.BaseDelay)
	}
	if cfg.Strategy != BackoffExponential {
		t.Errorf("Config().Strategy = %v, want exponential", cfg.Strategy)
	}
}

func TestBackoffStrategy_String(t *testing.T) {
	tests := []struct {
		s    BackoffStrategy
		want string
	}{
		{BackoffLinear, "linear"},
		{BackoffExponential, "exponential"},
		{BackoffConstant, "constant"},
		{BackoffStrategy(9), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
