package resilience

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// BulkheadConfig configures the bulkhead.
type BulkheadConfig struct {
	// MaxConcurrent caps concurrent provider calls. Default: 10.
	MaxConcurrent int

	// MaxWait is how long a call may queue for a slot. Zero rejects at once.
	MaxWait time.Duration
}

// Bulkhead caps the number of provider calls in progress.
type Bulkhead struct {
	config BulkheadConfig
	sem    *semaphore.Weighted

	active    atomic.Int64
	maxActive atomic.Int64
	rejected  atomic.Int64
}

// NewBulkhead creates a bulkhead.
func NewBulkhead(config BulkheadConfig) *Bulkhead {
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 10
	}
	return &Bulkhead{
		config: config,
		sem:    semaphore.NewWeighted(int64(config.MaxConcurrent)),
	}
}

// Acquire takes a slot, waiting at most MaxWait. It fails with
// ErrBulkheadFull when none frees up, or ctx.Err() when the caller gives up
// first. The returned release frees the slot; calling it again is a no-op.
func (b *Bulkhead) Acquire(ctx context.Context) (release func(), err error) {
	if !b.sem.TryAcquire(1) {
		if err := b.wait(ctx); err != nil {
			return nil, err
		}
	}

	n := b.active.Add(1)
	for {
		peak := b.maxActive.Load()
		if n <= peak || b.maxActive.CompareAndSwap(peak, n) {
			break
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			b.active.Add(-1)
			b.sem.Release(1)
		})
	}, nil
}

func (b *Bulkhead) wait(ctx context.Context) error {
	if b.config.MaxWait <= 0 {
		b.rejected.Add(1)
		return ErrBulkheadFull
	}

	waitCtx, cancel := context.WithTimeout(ctx, b.config.MaxWait)
	defer cancel()
	if err := b.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b.rejected.Add(1)
		return ErrBulkheadFull
	}
	return nil
}

// Execute runs op while holding a slot.
func (b *Bulkhead) Execute(ctx context.Context, op func(context.Context) error) error {
	release, err := b.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return op(ctx)
}

// BulkheadMetrics contains bulkhead statistics.
type BulkheadMetrics struct {
	Active        int
	MaxActive     int
	Available     int
	MaxConcurrent int
	Rejected      int64
}

// Metrics returns current bulkhead statistics.
func (b *Bulkhead) Metrics() BulkheadMetrics {
	active := int(b.active.Load())
	return BulkheadMetrics{
		Active:        active,
		MaxActive:     int(b.maxActive.Load()),
		Available:     b.config.MaxConcurrent - active,
		MaxConcurrent: b.config.MaxConcurrent,
		Rejected:      b.rejected.Load(),
	}
}
