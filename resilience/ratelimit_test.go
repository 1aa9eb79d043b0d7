package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewRateLimiter_Defaults(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{})

	cfg := rl.Config()
	if cfg.Rate != 10 {
		t.Errorf("Rate = %v, want 10", cfg.Rate)
	}
	if cfg.Burst != 5 {
		t.Errorf("Burst = %d, want 5", cfg.Burst)
	}
	if cfg.MaxWait != 0 {
		t.Errorf("MaxWait = %v, want 0", cfg.MaxWait)
	}
}

func TestRateLimiter_AllowBurst(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: 1, Burst: 3})

	for i := 0; i < 3; i++ {
		if !rl.Allow() {
			t.Errorf("Allow() %d = false within burst", i)
		}
	}
	if rl.Allow() {
		t.Error("Allow() = true after burst exhausted")
	}
}

func TestRateLimiter_WaitRejectsWithoutMaxWait(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: 1, Burst: 1})
	ctx := context.Background()

	if err := rl.Wait(ctx); err != nil {
		t.Fatalf("first Wait() = %v", err)
	}
	if err := rl.Wait(ctx); !errors.Is(err, ErrRateLimitExceeded) {
		t.Errorf("second Wait() = %v, want ErrRateLimitExceeded", err)
	}
}

func TestRateLimiter_WaitQueues(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: 100, Burst: 1, MaxWait: time.Second})
	ctx := context.Background()

	_ = rl.Wait(ctx)

	start := time.Now()
	if err := rl.Wait(ctx); err != nil {
		t.Fatalf("queued Wait() = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("queued Wait() took %v, want about 10ms", elapsed)
	}
}

func TestRateLimiter_WaitBeyondMaxWait(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: 0.1, Burst: 1, MaxWait: 50 * time.Millisecond})
	ctx := context.Background()

	_ = rl.Wait(ctx)

	start := time.Now()
	if err := rl.Wait(ctx); !errors.Is(err, ErrRateLimitExceeded) {
		t.Errorf("Wait() = %v, want ErrRateLimitExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 40*time.Millisecond {
		t.Errorf("rejection took %v, want immediate", elapsed)
	}
}

func TestRateLimiter_WaitContextCancellation(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: 1, Burst: 1, MaxWait: 5 * time.Second})
	_ = rl.Wait(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	if err := rl.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait() = %v, want context.Canceled", err)
	}
}

func TestRateLimiter_Execute(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: 1, Burst: 1})

	calls := 0
	op := func(ctx context.Context) error {
		calls++
		return nil
	}

	if err := rl.Execute(context.Background(), op); err != nil {
		t.Errorf("first Execute() = %v", err)
	}
	if err := rl.Execute(context.Background(), op); !errors.Is(err, ErrRateLimitExceeded) {
		t.Errorf("second Execute() = %v, want ErrRateLimitExceeded", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRateLimiter_Tokens(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: 1, Burst: 4})

	if got := rl.Tokens(); got < 3.9 || got > 4 {
		t.Errorf("Tokens() = %v, want 4", got)
	}
	rl.Allow()
	if got := rl.Tokens(); got < 2.9 || got > 3.1 {
		t.Errorf("Tokens() after Allow = %v, want about 3", got)
	}
}
