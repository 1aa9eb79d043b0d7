package health

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

var (
	ErrCheckTimeout    = errors.New("health: check timeout")
	ErrCheckPanicked   = errors.New("health: check panicked")
	ErrCheckerNotFound = errors.New("health: checker not found")
)

// AggregatorConfig configures the health aggregator.
type AggregatorConfig struct {
	// Timeout bounds a CheckAll run. Default: 10 seconds.
	Timeout time.Duration

	// MaxConcurrent caps checks running at once. Zero means no cap.
	MaxConcurrent int
}

// Aggregator runs a set of named checks.
type Aggregator struct {
	config AggregatorConfig

	mu       sync.RWMutex
	checkers []Checker // registration order
}

// NewAggregator creates a health aggregator.
func NewAggregator(config ...AggregatorConfig) *Aggregator {
	var cfg AggregatorConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Aggregator{config: cfg}
}

// Register adds checkers. A checker replaces any registered under the same
// name and keeps that one's position.
func (a *Aggregator) Register(checkers ...Checker) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, c := range checkers {
		if i := a.indexLocked(c.Name()); i >= 0 {
			a.checkers[i] = c
			continue
		}
		a.checkers = append(a.checkers, c)
	}
}

// Unregister removes the checker called name.
func (a *Aggregator) Unregister(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.checkers = slices.DeleteFunc(a.checkers, func(c Checker) bool { return c.Name() == name })
}

// CheckerNames returns checker names in registration order.
func (a *Aggregator) CheckerNames() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	names := make([]string, len(a.checkers))
	for i, c := range a.checkers {
		names[i] = c.Name()
	}
	return names
}

func (a *Aggregator) indexLocked(name string) int {
	return slices.IndexFunc(a.checkers, func(c Checker) bool { return c.Name() == name })
}

// Check runs the check called name.
func (a *Aggregator) Check(ctx context.Context, name string) (Result, error) {
	a.mu.RLock()
	i := a.indexLocked(name)
	var checker Checker
	if i >= 0 {
		checker = a.checkers[i]
	}
	a.mu.RUnlock()

	if checker == nil {
		return Result{}, fmt.Errorf("%w: %q", ErrCheckerNotFound, name)
	}

	ctx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()
	return runCheck(ctx, checker), nil
}

// CheckAll runs every registered check concurrently, keyed by name.
func (a *Aggregator) CheckAll(ctx context.Context) map[string]Result {
	a.mu.RLock()
	checkers := slices.Clone(a.checkers)
	a.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	results := make([]Result, len(checkers))
	var g errgroup.Group
	if a.config.MaxConcurrent > 0 {
		g.SetLimit(a.config.MaxConcurrent)
	}
	for i, c := range checkers {
		g.Go(func() error {
			results[i] = runCheck(ctx, c)
			return nil
		})
	}
	_ = g.Wait()

	byName := make(map[string]Result, len(checkers))
	for i, c := range checkers {
		byName[c.Name()] = results[i]
	}
	return byName
}

// OverallStatus returns the worst status in results. No results is healthy.
func OverallStatus(results map[string]Result) Status {
	overall := StatusHealthy
	for _, r := range results {
		overall = max(overall, r.Status)
	}
	return overall
}

// runCheck runs checker until it returns or ctx is done. A check that
// ignores ctx is abandoned and its late result discarded. A panicking check
// is reported unhealthy.
func runCheck(ctx context.Context, checker Checker) Result {
	start := time.Now()
	resultCh := make(chan Result, 1)
	go func() {
		var result Result
		defer func() {
			if r := recover(); r != nil {
				result = Unhealthy("check panicked", fmt.Errorf("%w: %v", ErrCheckPanicked, r))
			}
			result.Duration = time.Since(start)
			if result.Timestamp.IsZero() {
				result.Timestamp = start
			}
			resultCh <- result
		}()
		result = checker.Check(ctx)
	}()

	select {
	case result := <-resultCh:
		return result
	case <-ctx.Done():
		return Result{
			Status:    StatusUnhealthy,
			Message:   "check timed out",
			Error:     ErrCheckTimeout,
			Duration:  time.Since(start),
			Timestamp: start,
		}
	}
}
