package health

import (
	"context"
	"fmt"

	"github.com/jonwraymond/feedbackops/resilience"
)

// Pinger is a dependency that can be pinged, such as *cache.RedisCache.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck reports onFailure when p cannot be reached. Use StatusDegraded
// for dependencies the service can run without.
func PingCheck(name string, p Pinger, onFailure Status) Checker {
	return CheckFunc(name, func(ctx context.Context) Result {
		if err := p.Ping(ctx); err != nil {
			return Result{Status: onFailure, Message: "ping failed", Error: err}
		}
		return Healthy("reachable")
	})
}

// BreakerCheck reports the provider circuit breaker. An open circuit is
// degraded: cached feedback is still served, but misses fail fast.
func BreakerCheck(name string, cb *resilience.CircuitBreaker) Checker {
	return CheckFunc(name, func(context.Context) Result {
		m := cb.Metrics()
		details := map[string]any{
			"state":    m.State.String(),
			"failures": m.Failures,
			"rejected": m.Rejected,
		}
		if !m.LastFailure.IsZero() {
			details["last_failure"] = m.LastFailure.UTC()
		}

		switch m.State {
		case resilience.StateOpen:
			return Degraded("provider circuit open", resilience.ErrCircuitOpen).WithDetails(details)
		case resilience.StateHalfOpen:
			return Degraded("provider circuit probing", nil).WithDetails(details)
		default:
			return Healthy("provider circuit closed").WithDetails(details)
		}
	})
}

// CacheStats reports cache occupancy.
type CacheStats interface {
	Len() int
}

// CacheCheck reports cache occupancy against capacity. It is always healthy:
// a full cache evicts, it does not fail.
func CacheCheck(name string, c CacheStats, capacity int) Checker {
	return CheckFunc(name, func(context.Context) Result {
		n := c.Len()
		return Healthy(fmt.Sprintf("%d/%d entries", n, capacity)).WithDetails(map[string]any{
			"entries":  n,
			"capacity": capacity,
		})
	})
}
