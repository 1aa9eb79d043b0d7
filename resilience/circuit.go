package resilience

import (
	"context"
	"sync"
	"time"
)

// State is a circuit breaker state.
type State int

const (
	StateClosed   State = iota // calls pass through
	StateOpen                  // calls fail fast with ErrCircuitOpen
	StateHalfOpen              // a limited number of trial calls test recovery
)

var stateNames = [...]string{"closed", "open", "half-open"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// CircuitBreakerConfig configures the circuit breaker.
type CircuitBreakerConfig struct {
	// MaxFailures is the number of consecutive failures before opening.
	// Default: 5
	MaxFailures int

	// ResetTimeout is how long to wait before attempting recovery.
	// Default: 30 seconds
	ResetTimeout time.Duration

	// HalfOpenMaxRequests is the max requests allowed in half-open state.
	// Default: 1
	HalfOpenMaxRequests int

	// OnStateChange is called when the circuit state changes.
	OnStateChange func(from, to State)

	// IsFailure determines if an error should count as a failure.
	// Default: IsTransient. A permanent failure means the provider answered
	// and rejected the input, which says nothing about its health.
	IsFailure func(err error) bool

	// Now returns the current time.
	// Default: time.Now
	Now func() time.Time
}

// CircuitBreaker stops calling a provider that keeps failing transiently.
//
// After MaxFailures consecutive failures it opens and rejects calls with
// ErrCircuitOpen. Once ResetTimeout has passed since it opened, up to
// HalfOpenMaxRequests trial calls are let through: a successful trial closes it,
// a failed one opens it again for another ResetTimeout.
//
// OnStateChange runs after the breaker's lock is released, in the goroutine
// whose call caused the transition.
type CircuitBreaker struct {
	config CircuitBreakerConfig

	mu          sync.Mutex
	state       State
	openedAt    time.Time
	trials      int
	failures    int
	successes   int
	rejected    int64
	lastFailure time.Time
}

// transition is a state change waiting to be reported.
type transition struct{ from, to State }

// NewCircuitBreaker creates a circuit breaker.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.MaxFailures <= 0 {
		config.MaxFailures = 5
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 30 * time.Second
	}
	if config.HalfOpenMaxRequests <= 0 {
		config.HalfOpenMaxRequests = 1
	}
	if config.IsFailure == nil {
		config.IsFailure = IsTransient
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &CircuitBreaker{config: config}
}

// Execute runs op unless the circuit rejects it.
func (cb *CircuitBreaker) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := op(ctx)
	cb.record(err)
	return err
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	var ts []transition
	s := cb.refreshLocked(&ts)
	cb.mu.Unlock()
	cb.notify(ts)
	return s
}

// Reset closes the circuit and clears the failure count.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	var ts []transition
	cb.moveLocked(StateClosed, &ts)
	cb.failures = 0
	cb.mu.Unlock()
	cb.notify(ts)
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	var ts []transition
	defer func() {
		cb.mu.Unlock()
		cb.notify(ts)
	}()

	switch cb.refreshLocked(&ts) {
	case StateOpen:
		cb.rejected++
		return ErrCircuitOpen
	case StateHalfOpen:
		if cb.trials >= cb.config.HalfOpenMaxRequests {
			cb.rejected++
			return ErrCircuitOpen
		}
		cb.trials++
	}
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	var ts []transition
	defer func() {
		cb.mu.Unlock()
		cb.notify(ts)
	}()

	if !cb.config.IsFailure(err) {
		cb.successes++
		cb.failures = 0
		if cb.state == StateHalfOpen {
			cb.moveLocked(StateClosed, &ts)
		}
		return
	}

	cb.lastFailure = cb.config.Now()
	switch cb.state {
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.config.MaxFailures {
			cb.moveLocked(StateOpen, &ts)
		}
	case StateHalfOpen:
		cb.moveLocked(StateOpen, &ts)
	}
}

// refreshLocked moves an open circuit to half-open once its reset timeout
// has passed.
func (cb *CircuitBreaker) refreshLocked(ts *[]transition) State {
	if cb.state == StateOpen && cb.config.Now().Sub(cb.openedAt) >= cb.config.ResetTimeout {
		cb.moveLocked(StateHalfOpen, ts)
	}
	return cb.state
}

func (cb *CircuitBreaker) moveLocked(to State, ts *[]transition) {
	if cb.state == to {
		return
	}
	*ts = append(*ts, transition{cb.state, to})
	cb.state = to
	cb.trials = 0
	if to == StateOpen {
		cb.openedAt = cb.config.Now()
	}
}

func (cb *CircuitBreaker) notify(ts []transition) {
	if cb.config.OnStateChange == nil {
		return
	}
	for _, t := range ts {
		cb.config.OnStateChange(t.from, t.to)
	}
}

// Metrics returns current circuit breaker metrics.
func (cb *CircuitBreaker) Metrics() CircuitBreakerMetrics {
	cb.mu.Lock()
	var ts []transition
	defer func() {
		cb.mu.Unlock()
		cb.notify(ts)
	}()

	return CircuitBreakerMetrics{
		State:       cb.refreshLocked(&ts),
		Failures:    cb.failures,
		Successes:   cb.successes,
		Rejected:    cb.rejected,
		LastFailure: cb.lastFailure,
	}
}

// CircuitBreakerMetrics contains circuit breaker statistics.
type CircuitBreakerMetrics struct {
	State       State
	Failures    int
	Successes   int
	Rejected    int64
	LastFailure time.Time
}
