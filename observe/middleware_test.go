package observe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

type ctxKey struct{}

// TestMiddleware_SuccessPath verifies a successful request is traced and logged at debug.
func TestMiddleware_SuccessPath(t *testing.T) {
	recorder, _, tracer := newRecordingTracer()
	var buf bytes.Buffer
	mw := NewMiddleware(tracer, NewLoggerWithWriter("debug", &buf))

	inner := func(ctx context.Context, tag string, content []byte) ([]byte, error) {
		return []byte("looks good"), nil
	}

	result, err := mw.Wrap(inner)(context.Background(), "essay", []byte("draft"))
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if string(result) != "looks good" {
		t.Errorf("expected result %q, got %q", "looks good", result)
	}

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name() != "feedback.request.essay" {
		t.Errorf("expected span name 'feedback.request.essay', got %q", spans[0].Name())
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log output: %v", err)
	}
	if entry["level"] != "debug" {
		t.Errorf("expected level='debug', got %v", entry["level"])
	}
	if entry["content_bytes"] != float64(5) {
		t.Errorf("expected content_bytes=5, got %v", entry["content_bytes"])
	}
	if strings.Contains(buf.String(), "draft") {
		t.Error("content must not be logged")
	}
}

// TestMiddleware_ErrorPath verifies a failed request is recorded and returned unchanged.
func TestMiddleware_ErrorPath(t *testing.T) {
	recorder, _, tracer := newRecordingTracer()
	var buf bytes.Buffer
	mw := NewMiddleware(tracer, NewLoggerWithWriter("info", &buf))

	testErr := errors.New("provider failed")
	inner := func(ctx context.Context, tag string, content []byte) ([]byte, error) {
		return nil, testErr
	}

	_, err := mw.Wrap(inner)(context.Background(), "essay", nil)
	if err != testErr {
		t.Errorf("expected error %v, got %v", testErr, err)
	}

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if v := spanAttrs(spans[0])["feedback.error"]; !v.AsBool() {
		t.Error("expected feedback.error=true on failed request")
	}
	if !strings.Contains(buf.String(), `"level":"warn"`) {
		t.Errorf("expected a warn entry, got %s", buf.String())
	}
	if !strings.Contains(buf.String(), "provider failed") {
		t.Errorf("expected the error in the log entry, got %s", buf.String())
	}
}

// TestMiddleware_PropagatesContext verifies context values and the span reach the inner function.
func TestMiddleware_PropagatesContext(t *testing.T) {
	_, _, tracer := newRecordingTracer()
	mw := NewMiddleware(tracer, nil)

	ctx := context.WithValue(context.Background(), ctxKey{}, "v")
	var sawValue, sawSpan bool
	inner := func(ctx context.Context, tag string, content []byte) ([]byte, error) {
		sawValue = ctx.Value(ctxKey{}) == "v"
		sawSpan = trace.SpanContextFromContext(ctx).IsValid()
		return nil, nil
	}

	if _, err := mw.Wrap(inner)(ctx, "essay", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sawValue {
		t.Error("context value was not propagated")
	}
	if !sawSpan {
		t.Error("span was not propagated")
	}
}

// TestMiddleware_NilComponents verifies nil tracer and logger fall back to no-ops.
func TestMiddleware_NilComponents(t *testing.T) {
	mw := NewMiddleware(nil, nil)
	got, err := mw.Wrap(func(ctx context.Context, tag string, content []byte) ([]byte, error) {
		return content, nil
	})(context.Background(), "essay", []byte("x"))
	if err != nil || string(got) != "x" {
		t.Fatalf("expected passthrough, got %q, %v", got, err)
	}
}

func TestMiddlewareFromObserver(t *testing.T) {
	if _, err := MiddlewareFromObserver(nil); !errors.Is(err, ErrNilObserver) {
		t.Fatalf("expected ErrNilObserver, got %v", err)
	}

	obs, err := NewObserver(context.Background(), Config{ServiceName: "feedbackd-test"})
	if err != nil {
		t.Fatalf("NewObserver failed: %v", err)
	}
	mw, err := MiddlewareFromObserver(obs)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if mw == nil {
		t.Fatal("expected non-nil middleware")
	}
}
