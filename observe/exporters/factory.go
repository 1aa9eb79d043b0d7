// Package exporters builds the OpenTelemetry exporters named in
// configuration: stdout, otlp, jaeger (via OTLP) and prometheus. The name
// "none", or the empty string, selects no exporter and yields nil.
package exporters

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

var (
	ErrUnknownExporter = errors.New("exporters: unknown exporter")
	ErrNoEndpoint      = errors.New("exporters: endpoint not configured")
)

// Option configures exporter construction.
type Option func(*options)

type options struct {
	writer     io.Writer
	registerer promclient.Registerer
	lookupEnv  func(string) (string, bool)
}

// WithWriter sets the destination of the stdout exporters. Default: os.Stdout.
func WithWriter(w io.Writer) Option {
	return func(o *options) { o.writer = w }
}

// WithRegisterer makes the prometheus reader register with reg instead of
// the default registry, so a process can serve exactly its own metrics.
func WithRegisterer(reg promclient.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithLookupEnv sets how endpoint variables are read. Default: os.LookupEnv.
func WithLookupEnv(fn func(string) (string, bool)) Option {
	return func(o *options) { o.lookupEnv = fn }
}

func buildOptions(opts []Option) options {
	o := options{writer: os.Stdout, lookupEnv: os.LookupEnv}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// endpoint returns the first non-empty variable among keys.
func (o options) endpoint(keys ...string) (string, error) {
	for _, k := range keys {
		if v, ok := o.lookupEnv(k); ok && v != "" {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: set %v", ErrNoEndpoint, keys)
}

// NewTracingExporter returns the span exporter called name, or nil for none.
func NewTracingExporter(ctx context.Context, name string, opts ...Option) (sdktrace.SpanExporter, error) {
	o := buildOptions(opts)

	switch name {
	case "none", "":
		return nil, nil
	case "stdout":
		return stdouttrace.New(stdouttrace.WithWriter(o.writer))
	case "otlp":
		if _, err := o.endpoint("OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_TRACES_ENDPOINT"); err != nil {
			return nil, err
		}
		// The exporter reads the same variables itself.
		return otlptracegrpc.New(ctx)
	case "jaeger":
		url, err := o.endpoint("OTEL_EXPORTER_JAEGER_ENDPOINT")
		if err != nil {
			return nil, err
		}
		// Jaeger accepts OTLP natively.
		return otlptracegrpc.New(ctx, otlptracegrpc.WithEndpointURL(url))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownExporter, name)
	}
}

// NewMetricsReader returns the metrics reader called name, or nil for none.
func NewMetricsReader(ctx context.Context, name string, opts ...Option) (sdkmetric.Reader, error) {
	o := buildOptions(opts)

	var (
		exp sdkmetric.Exporter
		err error
	)
	switch name {
	case "none", "":
		return nil, nil
	case "prometheus":
		var promOpts []prometheus.Option
		if o.registerer != nil {
			promOpts = append(promOpts, prometheus.WithRegisterer(o.registerer))
		}
		reader, err := prometheus.New(promOpts...)
		if err != nil {
			return nil, fmt.Errorf("prometheus exporter: %w", err)
		}
		return reader, nil
	case "stdout":
		exp, err = stdoutmetric.New(stdoutmetric.WithWriter(o.writer))
	case "otlp":
		if _, err := o.endpoint("OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_METRICS_ENDPOINT"); err != nil {
			return nil, err
		}
		exp, err = otlpmetricgrpc.New(ctx)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownExporter, name)
	}
	if err != nil {
		return nil, fmt.Errorf("%s metrics exporter: %w", name, err)
	}
	return sdkmetric.NewPeriodicReader(exp), nil
}
