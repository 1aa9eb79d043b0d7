package observe

import (
	"context"
	"time"
)

// RequestFunc is the signature of a feedback request handler. Coordinator
// Request methods have this shape.
type RequestFunc func(ctx context.Context, tag string, content []byte) ([]byte, error)

// Middleware wraps feedback requests with tracing and logging.
//
// Contract:
//   - Concurrency: Wrap() returns a thread-safe RequestFunc.
//   - Context: the span is propagated to the wrapped function.
//   - Errors: errors from the wrapped function are recorded and returned unchanged.
//   - Ownership: content and results are passed through without modification.
type Middleware struct {
	tracer Tracer
	logger Logger
}

// NewMiddleware creates a new Middleware with the given observability components.
func NewMiddleware(tracer Tracer, logger Logger) *Middleware {
	if tracer == nil {
		tracer = NewTracer(nil)
	}
	if logger == nil {
		logger = NopLogger()
	}
	return &Middleware{
		tracer: tracer,
		logger: logger,
	}
}

// Wrap wraps a RequestFunc with tracing and logging.
func (m *Middleware) Wrap(fn RequestFunc) RequestFunc {
	return func(ctx context.Context, tag string, content []byte) ([]byte, error) {
		ctx, span := m.tracer.StartSpan(ctx, RequestMeta{Tag: tag})
		start := time.Now()

		result, err := fn(ctx, tag, content)

		duration := time.Since(start)
		m.tracer.EndSpan(span, err)

		fields := []Field{
			{Key: "tag", Value: tag},
			{Key: "content_bytes", Value: len(content)},
			{Key: "duration", Value: duration},
		}
		if err != nil {
			fields = append(fields, Field{Key: "error", Value: err})
			m.logger.Warn(ctx, "feedback request failed", fields...)
		} else {
			m.logger.Debug(ctx, "feedback request completed", fields...)
		}

		return result, err
	}
}

// MiddlewareFromObserver creates a Middleware from an Observer.
func MiddlewareFromObserver(obs Observer) (*Middleware, error) {
	if obs == nil {
		return nil, ErrNilObserver
	}
	return NewMiddleware(NewTracer(obs.Tracer()), obs.Logger()), nil
}
