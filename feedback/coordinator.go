package feedback

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/feedbackops/cache"
	"github.com/jonwraymond/feedbackops/observe"
	"github.com/jonwraymond/feedbackops/resilience"
)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithHasher sets the key derivation. Default: cache.DefaultHasher.
func WithHasher(h cache.Hasher) Option {
	return func(c *Coordinator) {
		if h != nil {
			c.hasher = h
		}
	}
}

// WithExecutor sets the resilience stack provider calls run through.
// Default: an executor with only the default retry policy.
func WithExecutor(e *resilience.Executor) Option {
	return func(c *Coordinator) {
		if e != nil {
			c.executor = e
		}
	}
}

// WithTelemetry sets the usage recorder. Default: observe.NopTelemetry.
func WithTelemetry(t observe.Telemetry) Option {
	return func(c *Coordinator) {
		if t != nil {
			c.telemetry = t
		}
	}
}

// WithLogger sets the logger. Default: observe.NopLogger.
func WithLogger(l observe.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithTracer sets the tracer used for provider call spans.
func WithTracer(t observe.Tracer) Option {
	return func(c *Coordinator) {
		if t != nil {
			c.tracer = t
		}
	}
}

// WithCallTimeout bounds a whole provider call, retries included.
// Zero means no bound beyond the executor's own.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		c.callTimeout = d
	}
}

// call describes one outstanding provider call.
type call struct {
	id  string
	key cache.Key
	tag string
}

// Coordinator serves feedback requests from the cache and collapses
// concurrent misses for the same key into one provider call.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Context: ctx bounds only the caller's wait. The shared provider call is
// detached from it and runs until it resolves or the call timeout passes.
// - Errors: cache faults are logged, counted and treated as misses. Provider
// failures reach every waiter of the call and are never cached.
// - Ownership: returned slices are owned by the caller.
type Coordinator struct {
	provider    Provider
	cache       cache.Cache
	hasher      cache.Hasher
	executor    *resilience.Executor
	telemetry   observe.Telemetry
	logger      observe.Logger
	tracer      observe.Tracer
	callTimeout time.Duration

	group    singleflight.Group
	inFlight atomic.Int64
	waiting  atomic.Int64
}

// New creates a Coordinator over provider and c.
func New(provider Provider, c cache.Cache, opts ...Option) (*Coordinator, error) {
	if provider == nil {
		return nil, ErrNilProvider
	}
	if c == nil {
		return nil, ErrNilCache
	}

	co := &Coordinator{
		provider:  provider,
		cache:     c,
		hasher:    cache.NewDefaultHasher(),
		executor:  resilience.NewExecutor(resilience.WithRetry(resilience.NewRetry(resilience.RetryConfig{}))),
		telemetry: observe.NopTelemetry(),
		logger:    observe.NopLogger(),
		tracer:    observe.NewTracer(nil),
	}
	for _, opt := range opts {
		opt(co)
	}
	return co, nil
}

// Key derives the cache key for a request.
func (c *Coordinator) Key(tag string, content []byte) (cache.Key, error) {
	return c.hasher.Key(tag, content)
}

// Request returns feedback for content under tag.
//
// A cached result is returned without calling the provider. Otherwise the
// caller joins the outstanding call for the same key, or starts one.
func (c *Coordinator) Request(ctx context.Context, tag string, content []byte) ([]byte, error) {
	key, err := c.hasher.Key(tag, content)
	if err != nil {
		return nil, err
	}

	value, shared, err := c.request(ctx, tag, key, content)
	c.telemetry.RecordOutcome(ctx, tag, shared, err)
	return value, err
}

// InFlight returns the number of outstanding provider calls.
func (c *Coordinator) InFlight() int {
	return int(c.inFlight.Load())
}

func (c *Coordinator) request(ctx context.Context, tag string, key cache.Key, content []byte) ([]byte, bool, error) {
	value, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.cacheFault(ctx, "get", key, err)
	}
	c.telemetry.RecordLookup(ctx, tag, ok)
	if ok {
		return value, false, nil
	}

	// Only the closure of the caller that starts the call runs.
	var leader atomic.Bool
	start := time.Now()
	detached := context.WithoutCancel(ctx)
	// Copy content: the call may outlive this request.
	content = bytes.Clone(content)
	ch := c.group.DoChan(key.String(), func() (any, error) {
		leader.Store(true)
		c.inFlight.Add(1)
		defer c.inFlight.Add(-1)

		cl := &call{id: uuid.NewString(), key: key, tag: tag}
		return c.run(detached, cl, content)
	})
	c.waiting.Add(1)
	defer c.waiting.Add(-1)

	select {
	case res := <-ch:
		shared := !leader.Load()
		if !shared && res.Shared {
			c.logger.Debug(ctx, "shared provider call resolved",
				observe.F("key", key.String()),
				observe.F("duration", time.Since(start)),
			)
		}
		if res.Err != nil {
			return nil, shared, res.Err
		}
		return bytes.Clone(res.Val.([]byte)), shared, nil
	case <-ctx.Done():
		return nil, !leader.Load(), ctx.Err()
	}
}

// run performs the provider call for cl and stores a successful result.
// The cache is written before the call is released, so a request that no
// longer finds the call finds the value.
func (c *Coordinator) run(ctx context.Context, cl *call, content []byte) ([]byte, error) {
	if c.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.callTimeout)
		defer cancel()
	}

	// A call that resolved between our lookup and registration has already
	// stored its value.
	if value, ok, err := c.cache.Get(ctx, cl.key); err == nil && ok {
		return value, nil
	}

	value, err := c.invoke(ctx, cl, content)
	if err != nil {
		return nil, err
	}
	if perr := c.cache.Put(ctx, cl.key, value); perr != nil {
		c.cacheFault(ctx, "put", cl.key, perr)
	}
	return value, nil
}

// invoke calls the provider through the executor.
func (c *Coordinator) invoke(ctx context.Context, cl *call, content []byte) ([]byte, error) {
	ctx, span := c.tracer.StartSpan(ctx, observe.RequestMeta{Op: "provider", Tag: cl.tag, Key: cl.key.String()})

	var (
		attempts atomic.Int32
		mu       sync.Mutex
		result   []byte
	)
	start := time.Now()
	err := c.executor.Execute(ctx, func(ctx context.Context) error {
		n := int(attempts.Add(1))
		if n > 1 {
			c.telemetry.RecordRetry(ctx, cl.tag, n-1)
		}

		v, err := c.generate(ctx, cl.tag, content)
		if err != nil {
			c.logger.Debug(ctx, "provider attempt failed",
				observe.F("call_id", cl.id),
				observe.F("attempt", n),
				observe.F("error", err),
			)
			return err
		}

		mu.Lock()
		result = v
		mu.Unlock()
		return nil
	})
	duration := time.Since(start)
	n := int(attempts.Load())

	c.tracer.EndSpan(span, err)
	c.telemetry.RecordProviderCall(ctx, cl.tag, n, duration, err)

	fields := []observe.Field{
		observe.F("call_id", cl.id),
		observe.F("tag", cl.tag),
		observe.F("key", cl.key.String()),
		observe.F("attempts", n),
		observe.F("duration", duration),
	}
	if err != nil {
		c.logger.Warn(ctx, "provider call failed", append(fields, observe.F("error", err))...)
		return nil, err
	}
	c.logger.Debug(ctx, "provider call succeeded", fields...)

	mu.Lock()
	defer mu.Unlock()
	return result, nil
}

// generate runs one provider attempt, turning panics and empty results into
// permanent failures.
func (c *Coordinator) generate(ctx context.Context, tag string, content []byte) (value []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			value = nil
			err = PermanentError(fmt.Errorf("%w: %v", ErrProviderPanic, r))
		}
	}()

	value, err = c.provider.Generate(ctx, tag, content)
	if err != nil {
		return nil, err
	}
	if len(value) == 0 {
		return nil, PermanentError(ErrEmptyResult)
	}
	return value, nil
}

func (c *Coordinator) cacheFault(ctx context.Context, op string, key cache.Key, err error) {
	c.telemetry.RecordCacheFault(ctx, op, err)
	c.logger.Warn(ctx, "cache unavailable, bypassing",
		observe.F("op", op),
		observe.F("key", key.String()),
		observe.F("error", err),
	)
}
