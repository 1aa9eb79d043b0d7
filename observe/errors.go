package observe

import "errors"

var (
	ErrMissingServiceName     = errors.New("observe: service name is required")
	ErrInvalidSamplePct       = errors.New("observe: sample percentage must be between 0.0 and 1.0")
	ErrInvalidTracingExporter = errors.New("observe: invalid tracing exporter")
	ErrInvalidMetricsExporter = errors.New("observe: invalid metrics exporter")
	ErrInvalidLogLevel        = errors.New("observe: invalid log level")

	// ErrNilObserver is returned by constructors that derive from an Observer.
	ErrNilObserver = errors.New("observe: observer is nil")
)
