package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewTimeout_Defaults(t *testing.T) {
	to := NewTimeout(TimeoutConfig{})
	if to.Config().Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", to.Config().Timeout)
	}
}

func TestTimeout_ExecuteSuccess(t *testing.T) {
	to := NewTimeout(TimeoutConfig{Timeout: time.Second})

	err := to.Execute(context.Background(), func(ctx context.Context) error {
		return nil
	})
	if err != nil {
		t.Errorf("Execute() = %v, want nil", err)
	}
}

func TestTimeout_ExecuteError(t *testing.T) {
	to := NewTimeout(TimeoutConfig{Timeout: time.Second})
	testErr := errors.New("test error")

	err := to.Execute(context.Background(), func(ctx context.Context) error {
		return testErr
	})
	if err != testErr {
		t.Errorf("Execute() = %v, want %v", err, testErr)
	}
}

func TestTimeout_ExecuteTimeout(t *testing.T) {
	to := NewTimeout(TimeoutConfig{Timeout: 20 * time.Millisecond})

	err := to.Execute(context.Background(), func(ctx context.Context) error {
		time.Sleep(time.Second)
		return nil
	})
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("Execute() = %v, want ErrTimeout", err)
	}
	if !IsTransient(err) {
		t.Error("timeout should be retryable")
	}
}

func TestTimeout_OperationRespectsContext(t *testing.T) {
	to := NewTimeout(TimeoutConfig{Timeout: 20 * time.Millisecond})

	err := to.Execute(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("Execute() = %v, want ErrTimeout", err)
	}
}

func TestTimeout_CallerCancelled(t *testing.T) {
	to := NewTimeout(TimeoutConfig{Timeout: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := to.Execute(ctx, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Execute() = %v, want context.Canceled", err)
	}
	if errors.Is(err, ErrTimeout) {
		t.Error("caller cancellation should not be reported as an attempt timeout")
	}
}

// TestTimeout_AbandonsStuckOperation verifies Execute returns at the deadline
// even when the operation ignores its context.
func TestTimeout_AbandonsStuckOperation(t *testing.T) {
	to := NewTimeout(TimeoutConfig{Timeout: 10 * time.Millisecond})
	release := make(chan struct{})
	defer close(release)

	start := time.Now()
	err := to.Execute(context.Background(), func(ctx context.Context) error {
		<-release
		return nil
	})
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("Execute() = %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Execute() took %v, want it to return at the deadline", elapsed)
	}
}

func TestTimeout_LateFailureKeepsItsClassification(t *testing.T) {
	to := NewTimeout(TimeoutConfig{Timeout: time.Millisecond})
	attemptCtx, cancel := context.WithTimeoutCause(context.Background(), to.Config().Timeout, to.cause)
	defer cancel()
	<-attemptCtx.Done()

	rejected := errors.New("rejected")
	err := to.settle(attemptCtx, Permanent(rejected))
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("settle() = %v, want ErrTimeout", err)
	}
	if !errors.Is(err, rejected) {
		t.Errorf("settle() = %v, want it to wrap the operation's error", err)
	}
	if !IsPermanent(err) {
		t.Errorf("settle() = %v, want the permanent marker kept", err)
	}
}

func TestTimeout_InTimeFailureUntagged(t *testing.T) {
	to := NewTimeout(TimeoutConfig{Timeout: time.Second})
	rejected := Permanent(errors.New("rejected"))

	err := to.Execute(context.Background(), func(ctx context.Context) error {
		return rejected
	})
	if err != rejected {
		t.Errorf("Execute() = %v, want %v", err, rejected)
	}
	if errors.Is(err, ErrTimeout) {
		t.Errorf("Execute() = %v, should not report a timeout", err)
	}
}
