package observe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/jonwraymond/feedbackops/observe/exporters"
)

// Sampling bounds for TracingConfig.SamplePct.
const (
	MinSamplePct = 0.0
	MaxSamplePct = 1.0
)

// Accepted names per section. The empty string selects the default.
var (
	ValidTracingExporters = []string{"otlp", "jaeger", "stdout", "none", ""}
	ValidMetricsExporters = []string{"otlp", "prometheus", "stdout", "none", ""}
	ValidLogLevels        = []string{"debug", "info", "warn", "error", ""}
)

// Config holds all configuration for the Observer.
type Config struct {
	ServiceName string
	Version     string
	Tracing     TracingConfig
	Metrics     MetricsConfig
	Logging     LoggingConfig
}

// TracingConfig configures the tracing subsystem.
type TracingConfig struct {
	Enabled   bool
	Exporter  string  // otlp|jaeger|stdout|none
	SamplePct float64 // 0.0-1.0
}

// MetricsConfig configures the metrics subsystem.
type MetricsConfig struct {
	Enabled  bool
	Exporter string // otlp|prometheus|stdout|none

	// Registerer receives the prometheus collector. Nil means the global
	// default registry.
	Registerer promclient.Registerer
}

// LoggingConfig configures the logging subsystem.
type LoggingConfig struct {
	Enabled bool
	Level   string    // debug|info|warn|error
	Writer  io.Writer // defaults to os.Stderr
}

// Validate reports every problem in c at once. Sections that are disabled
// are not checked.
func (c *Config) Validate() error {
	var errs []error
	if c.ServiceName == "" {
		errs = append(errs, ErrMissingServiceName)
	}
	if c.Tracing.Enabled {
		if !slices.Contains(ValidTracingExporters, c.Tracing.Exporter) {
			errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidTracingExporter, c.Tracing.Exporter))
		}
		if c.Tracing.SamplePct < MinSamplePct || c.Tracing.SamplePct > MaxSamplePct {
			errs = append(errs, fmt.Errorf("%w, got: %f", ErrInvalidSamplePct, c.Tracing.SamplePct))
		}
	}
	if c.Metrics.Enabled && !slices.Contains(ValidMetricsExporters, c.Metrics.Exporter) {
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidMetricsExporter, c.Metrics.Exporter))
	}
	if c.Logging.Enabled && !slices.Contains(ValidLogLevels, c.Logging.Level) {
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Logging.Level))
	}
	return errors.Join(errs...)
}

// Observer bundles the telemetry primitives of one service.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Context: Shutdown honors cancellation and deadlines.
// - Errors: Shutdown is idempotent; later calls return the first result.
type Observer interface {
	Tracer() trace.Tracer
	Meter() metric.Meter
	Logger() Logger

	// Telemetry returns the usage recorder bound to Meter.
	Telemetry() *Recorder

	// Shutdown flushes and stops the tracer and meter providers.
	Shutdown(ctx context.Context) error
}

type observer struct {
	tracer    trace.Tracer
	meter     metric.Meter
	logger    Logger
	telemetry *Recorder

	shutdowns    []func(context.Context) error
	shutdownOnce sync.Once
	shutdownErr  error
}

// NewObserver builds an Observer from cfg. Disabled sections get no-op
// implementations. Providers are owned by the Observer and are not
// installed as otel globals.
func NewObserver(ctx context.Context, cfg Config) (Observer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.Version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	obs := &observer{
		tracer: tracenoop.NewTracerProvider().Tracer("noop"),
		meter:  noop.NewMeterProvider().Meter("noop"),
		logger: newConfiguredLogger(cfg),
	}

	if cfg.Tracing.Enabled {
		tp, err := newTracerProvider(ctx, cfg.Tracing, res)
		if err != nil {
			return nil, fmt.Errorf("failed to setup tracing: %w", err)
		}
		obs.tracer = tp.Tracer(cfg.ServiceName)
		obs.shutdowns = append(obs.shutdowns, named("tracer", tp.Shutdown))
	}

	if cfg.Metrics.Enabled {
		mp, err := newMeterProvider(ctx, cfg.Metrics, res)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("failed to setup metrics: %w", err), obs.Shutdown(ctx))
		}
		obs.meter = mp.Meter(cfg.ServiceName)
		obs.shutdowns = append(obs.shutdowns, named("meter", mp.Shutdown))
	}

	obs.telemetry, err = NewTelemetry(obs.meter)
	if err != nil {
		return nil, errors.Join(err, obs.Shutdown(ctx))
	}
	return obs, nil
}

func newConfiguredLogger(cfg Config) Logger {
	if !cfg.Logging.Enabled {
		return NopLogger()
	}
	var l Logger
	if cfg.Logging.Writer != nil {
		l = NewLoggerWithWriter(cfg.Logging.Level, cfg.Logging.Writer)
	} else {
		l = NewLogger(cfg.Logging.Level)
	}
	return l.With(F("service", cfg.ServiceName))
}

// sampler maps a sampling fraction onto a parent-based sampler.
func sampler(pct float64) sdktrace.Sampler {
	switch {
	case pct >= MaxSamplePct:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	case pct <= MinSamplePct:
		return sdktrace.ParentBased(sdktrace.NeverSample())
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(pct))
	}
}

func newTracerProvider(ctx context.Context, cfg TracingConfig, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	exporter, err := exporters.NewTracingExporter(ctx, cfg.Exporter)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.SamplePct)),
	}
	if exporter != nil {
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}
	return sdktrace.NewTracerProvider(opts...), nil
}

func newMeterProvider(ctx context.Context, cfg MetricsConfig, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	var readerOpts []exporters.Option
	if cfg.Registerer != nil {
		readerOpts = append(readerOpts, exporters.WithRegisterer(cfg.Registerer))
	}

	reader, err := exporters.NewMetricsReader(ctx, cfg.Exporter, readerOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics reader: %w", err)
	}

	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	if reader != nil {
		opts = append(opts, sdkmetric.WithReader(reader))
	}
	return sdkmetric.NewMeterProvider(opts...), nil
}

func named(name string, fn func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			return fmt.Errorf("%s shutdown: %w", name, err)
		}
		return nil
	}
}

func (o *observer) Tracer() trace.Tracer { return o.tracer }

func (o *observer) Meter() metric.Meter { return o.meter }

func (o *observer) Logger() Logger { return o.logger }

func (o *observer) Telemetry() *Recorder { return o.telemetry }

func (o *observer) Shutdown(ctx context.Context) error {
	o.shutdownOnce.Do(func() {
		errs := make([]error, 0, len(o.shutdowns))
		for _, fn := range o.shutdowns {
			errs = append(errs, fn(ctx))
		}
		o.shutdownErr = errors.Join(errs...)
	})
	return o.shutdownErr
}
