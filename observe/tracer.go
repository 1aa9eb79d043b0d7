package observe

import (
	"cmp"
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// RequestMeta names the operation a span covers. Tag is required; Op
// defaults to "request" and Key, the hex cache key, is optional.
type RequestMeta struct {
	Op  string
	Tag string
	Key string
}

// SpanName returns "feedback.<op>.<tag>".
func (m RequestMeta) SpanName() string {
	return "feedback." + cmp.Or(m.Op, "request") + "." + m.Tag
}

func (m RequestMeta) attributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("feedback.op", cmp.Or(m.Op, "request")),
		attribute.String("feedback.tag", m.Tag),
		attribute.Bool("feedback.error", false),
	}
	if m.Key != "" {
		attrs = append(attrs, attribute.String("feedback.key", m.Key))
	}
	return attrs
}

// Tracer starts and ends spans for feedback operations.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Errors: EndSpan is best-effort and never panics.
type Tracer interface {
	StartSpan(ctx context.Context, meta RequestMeta) (context.Context, trace.Span)

	// EndSpan ends span, marking it failed when err is non-nil.
	EndSpan(span trace.Span, err error)
}

type otelTracer struct {
	tracer trace.Tracer
}

// NewTracer wraps t. A nil t yields spans that record nothing.
func NewTracer(t trace.Tracer) Tracer {
	if t == nil {
		t = tracenoop.NewTracerProvider().Tracer("noop")
	}
	return otelTracer{tracer: t}
}

func (t otelTracer) StartSpan(ctx context.Context, meta RequestMeta) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, meta.SpanName(),
		trace.WithAttributes(meta.attributes()...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func (t otelTracer) EndSpan(span trace.Span, err error) {
	defer span.End()
	if err == nil {
		span.SetStatus(codes.Ok, "")
		return
	}
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attribute.Bool("feedback.error", true))
	span.RecordError(err)
}
