package observe

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Telemetry records usage of the feedback cache and provider.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: must return quickly and never block on I/O.
// - Errors: implementations must not panic and never report errors.
type Telemetry interface {
	// RecordLookup records a cache lookup for tag.
	RecordLookup(ctx context.Context, tag string, hit bool)

	// RecordOutcome records a completed request. shared is true when the
	// caller waited on another caller's provider call.
	RecordOutcome(ctx context.Context, tag string, shared bool, err error)

	// RecordProviderCall records one provider invocation, including retries.
	RecordProviderCall(ctx context.Context, tag string, attempts int, duration time.Duration, err error)

	// RecordRetry records a retry about to happen after attempt failed.
	RecordRetry(ctx context.Context, tag string, attempt int)

	// RecordEviction records an entry leaving the cache.
	RecordEviction(ctx context.Context, reason string)

	// RecordCacheFault records a cache backend failure that was bypassed.
	RecordCacheFault(ctx context.Context, op string, err error)
}

// Counters holds in-process totals, readable without an exporter.
type Counters struct {
	hits             atomic.Int64
	misses           atomic.Int64
	requests         atomic.Int64
	shared           atomic.Int64
	failures         atomic.Int64
	providerCalls    atomic.Int64
	providerAttempts atomic.Int64
	providerFailures atomic.Int64
	retries          atomic.Int64
	evictions        atomic.Int64
	cacheFaults      atomic.Int64
}

// Snapshot is a point-in-time copy of Counters.
type Snapshot struct {
	Hits             int64 `json:"hits"`
	Misses           int64 `json:"misses"`
	Requests         int64 `json:"requests"`
	Shared           int64 `json:"shared"`
	Failures         int64 `json:"failures"`
	ProviderCalls    int64 `json:"provider_calls"`
	ProviderAttempts int64 `json:"provider_attempts"`
	ProviderFailures int64 `json:"provider_failures"`
	Retries          int64 `json:"retries"`
	Evictions        int64 `json:"evictions"`
	CacheFaults      int64 `json:"cache_faults"`
}

// HitRatio returns hits / (hits + misses), or 0 before any lookup.
func (s Snapshot) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Snapshot returns the current totals.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		Hits:             c.hits.Load(),
		Misses:           c.misses.Load(),
		Requests:         c.requests.Load(),
		Shared:           c.shared.Load(),
		Failures:         c.failures.Load(),
		ProviderCalls:    c.providerCalls.Load(),
		ProviderAttempts: c.providerAttempts.Load(),
		ProviderFailures: c.providerFailures.Load(),
		Retries:          c.retries.Load(),
		Evictions:        c.evictions.Load(),
		CacheFaults:      c.cacheFaults.Load(),
	}
}

// Recorder implements Telemetry on OpenTelemetry instruments and Counters.
type Recorder struct {
	counters Counters

	lookups          metric.Int64Counter
	requests         metric.Int64Counter
	providerCalls    metric.Int64Counter
	providerDuration metric.Float64Histogram
	providerAttempts metric.Int64Histogram
	retries          metric.Int64Counter
	evictions        metric.Int64Counter
	cacheFaults      metric.Int64Counter
}

// NewTelemetry creates a Recorder whose instruments come from meter.
// A nil meter records counters only.
func NewTelemetry(meter metric.Meter) (*Recorder, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("noop")
	}

	r := &Recorder{}
	var errs []error
	counter := func(name, desc, unit string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
		errs = append(errs, err)
		return c
	}

	r.lookups = counter("feedback.cache.lookups", "Cache lookups by result", "{lookup}")
	r.requests = counter("feedback.requests", "Completed feedback requests", "{request}")
	r.providerCalls = counter("feedback.provider.calls", "Provider invocations", "{call}")
	r.retries = counter("feedback.provider.retries", "Provider retries", "{retry}")
	r.evictions = counter("feedback.cache.evictions", "Cache entries removed", "{entry}")
	r.cacheFaults = counter("feedback.cache.faults", "Cache backend failures bypassed", "{fault}")

	var err error
	r.providerDuration, err = meter.Float64Histogram(
		"feedback.provider.duration_ms",
		metric.WithDescription("Provider invocation duration in milliseconds, retries included"),
		metric.WithUnit("ms"),
	)
	errs = append(errs, err)

	r.providerAttempts, err = meter.Int64Histogram(
		"feedback.provider.attempts",
		metric.WithDescription("Attempts per provider invocation"),
		metric.WithUnit("{attempt}"),
	)
	errs = append(errs, err)

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return r, nil
}

// Counters returns the in-process totals.
func (r *Recorder) Counters() *Counters {
	return &r.counters
}

// Snapshot is shorthand for r.Counters().Snapshot().
func (r *Recorder) Snapshot() Snapshot {
	return r.counters.Snapshot()
}

func (r *Recorder) RecordLookup(ctx context.Context, tag string, hit bool) {
	defer recoverTelemetry()

	result := "miss"
	if hit {
		result = "hit"
		r.counters.hits.Add(1)
	} else {
		r.counters.misses.Add(1)
	}
	r.lookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("feedback.tag", tag),
		attribute.String("result", result),
	))
}

func (r *Recorder) RecordOutcome(ctx context.Context, tag string, shared bool, err error) {
	defer recoverTelemetry()

	r.counters.requests.Add(1)
	if shared {
		r.counters.shared.Add(1)
	}
	if err != nil {
		r.counters.failures.Add(1)
	}
	r.requests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("feedback.tag", tag),
		attribute.Bool("shared", shared),
		attribute.String("outcome", outcome(err)),
	))
}

func (r *Recorder) RecordProviderCall(ctx context.Context, tag string, attempts int, duration time.Duration, err error) {
	defer recoverTelemetry()

	r.counters.providerCalls.Add(1)
	r.counters.providerAttempts.Add(int64(attempts))
	if err != nil {
		r.counters.providerFailures.Add(1)
	}

	opt := metric.WithAttributes(
		attribute.String("feedback.tag", tag),
		attribute.String("outcome", outcome(err)),
	)
	r.providerCalls.Add(ctx, 1, opt)
	r.providerAttempts.Record(ctx, int64(attempts), opt)
	r.providerDuration.Record(ctx, float64(duration.Microseconds())/1000, opt)
}

func (r *Recorder) RecordRetry(ctx context.Context, tag string, attempt int) {
	defer recoverTelemetry()

	r.counters.retries.Add(1)
	r.retries.Add(ctx, 1, metric.WithAttributes(
		attribute.String("feedback.tag", tag),
		attribute.String("attempt", strconv.Itoa(attempt)),
	))
}

func (r *Recorder) RecordEviction(ctx context.Context, reason string) {
	defer recoverTelemetry()

	r.counters.evictions.Add(1)
	r.evictions.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (r *Recorder) RecordCacheFault(ctx context.Context, op string, err error) {
	defer recoverTelemetry()

	r.counters.cacheFaults.Add(1)
	r.cacheFaults.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// recoverTelemetry keeps a misbehaving exporter from taking down a request.
func recoverTelemetry() {
	_ = recover()
}

// NopTelemetry returns a Telemetry that records nothing.
func NopTelemetry() Telemetry {
	return nopTelemetry{}
}

type nopTelemetry struct{}

func (nopTelemetry) RecordLookup(context.Context, string, bool)                            {}
func (nopTelemetry) RecordOutcome(context.Context, string, bool, error)                    {}
func (nopTelemetry) RecordProviderCall(context.Context, string, int, time.Duration, error) {}
func (nopTelemetry) RecordRetry(context.Context, string, int)                              {}
func (nopTelemetry) RecordEviction(context.Context, string)                                {}
func (nopTelemetry) RecordCacheFault(context.Context, string, error)                       {}

var (
	_ Telemetry = (*Recorder)(nil)
	_ Telemetry = nopTelemetry{}
)
