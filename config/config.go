// Package config loads feedbackd configuration from FEEDBACK_* environment
// variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/jonwraymond/feedbackops/cache"
	"github.com/jonwraymond/feedbackops/observe"
	"github.com/jonwraymond/feedbackops/resilience"
	"github.com/jonwraymond/feedbackops/secret"
)

// Prefix is prepended to every environment variable name.
const Prefix = "FEEDBACK_"

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config holds all feedbackd configuration.
type Config struct {
	ServiceName string `env:"SERVICE_NAME" envDefault:"feedbackd"`
	Version     string `env:"VERSION" envDefault:"dev"`
	Listen      string `env:"LISTEN" envDefault:":8080"`

	Cache      CacheConfig      `envPrefix:"CACHE_"`
	Retry      RetryConfig      `envPrefix:"RETRY_"`
	Provider   ProviderConfig   `envPrefix:"PROVIDER_"`
	Breaker    BreakerConfig    `envPrefix:"BREAKER_"`
	RateLimit  RateLimitConfig  `envPrefix:"RATE_"`
	Bulkhead   BulkheadConfig   `envPrefix:"BULKHEAD_"`
	Redis      RedisConfig      `envPrefix:"REDIS_"`
	Jobs       JobsConfig       `envPrefix:"JOBS_"`
	Log        LogConfig        `envPrefix:"LOG_"`
	Telemetry  TelemetryConfig  `envPrefix:"OTEL_"`
	SecretRoot string           `env:"SECRET_ROOT"`
}

// CacheConfig bounds the result cache.
type CacheConfig struct {
	// Backend is "memory" or "tiered" (memory in front of Redis).
	Backend       string        `env:"BACKEND" envDefault:"memory"`
	Capacity      int           `env:"CAPACITY" envDefault:"1000"`
	TTL           time.Duration `env:"TTL" envDefault:"1h"`
	AllowRecache  bool          `env:"ALLOW_RECACHE" envDefault:"false"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"5m"`
}

// RetryConfig controls provider retries.
type RetryConfig struct {
	MaxAttempts int           `env:"MAX_ATTEMPTS" envDefault:"3"`
	BaseDelay   time.Duration `env:"BASE_DELAY" envDefault:"1s"`
	MaxDelay    time.Duration `env:"MAX_DELAY" envDefault:"30s"`
	// Strategy is "linear", "exponential" or "constant".
	Strategy string `env:"STRATEGY" envDefault:"linear"`
	Jitter   bool   `env:"JITTER" envDefault:"false"`
}

// ProviderConfig configures the upstream feedback API.
type ProviderConfig struct {
	BaseURL string `env:"BASE_URL" envDefault:"https://api.openai.com/v1"`
	// APIKey may be a secretref, e.g. secretref:file:openai.
	APIKey        string            `env:"API_KEY"`
	Model         string            `env:"MODEL" envDefault:"gpt-4o-mini"`
	DefaultPrompt string            `env:"DEFAULT_PROMPT"`
	Prompts       map[string]string `env:"PROMPTS" envSeparator:";" envKeyValSeparator:"="`
	MaxTokens     int               `env:"MAX_TOKENS" envDefault:"0"`
	// CallTimeout bounds a whole provider call, retries included.
	CallTimeout time.Duration `env:"CALL_TIMEOUT" envDefault:"2m"`
	// AttemptTimeout bounds each attempt.
	AttemptTimeout time.Duration `env:"ATTEMPT_TIMEOUT" envDefault:"30s"`
}

// BreakerConfig configures the provider circuit breaker.
type BreakerConfig struct {
	Enabled      bool          `env:"ENABLED" envDefault:"true"`
	MaxFailures  int           `env:"MAX_FAILURES" envDefault:"5"`
	ResetTimeout time.Duration `env:"RESET_TIMEOUT" envDefault:"30s"`
}

// RateLimitConfig limits outbound provider calls.
type RateLimitConfig struct {
	Enabled bool          `env:"ENABLED" envDefault:"true"`
	Rate    float64       `env:"LIMIT" envDefault:"10"`
	Burst   int           `env:"BURST" envDefault:"5"`
	MaxWait time.Duration `env:"MAX_WAIT" envDefault:"5s"`
}

// BulkheadConfig caps concurrent provider calls.
type BulkheadConfig struct {
	Enabled       bool          `env:"ENABLED" envDefault:"true"`
	MaxConcurrent int           `env:"MAX_CONCURRENT" envDefault:"10"`
	MaxWait       time.Duration `env:"MAX_WAIT" envDefault:"10s"`
}

// RedisConfig locates the shared cache tier and the job queue.
type RedisConfig struct {
	Addr     string `env:"ADDR" envDefault:"localhost:6379"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
	Prefix   string `env:"PREFIX" envDefault:"feedback:"`

	// OpTimeout bounds each shared-tier operation.
	OpTimeout time.Duration `env:"OP_TIMEOUT" envDefault:"250ms"`
}

// JobsConfig configures the cache warming worker.
type JobsConfig struct {
	Concurrency int    `env:"CONCURRENCY" envDefault:"5"`
	Queue       string `env:"QUEUE" envDefault:"default"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `env:"LEVEL" envDefault:"info"`
}

// TelemetryConfig selects the OpenTelemetry exporters.
type TelemetryConfig struct {
	TracesExporter  string  `env:"TRACES_EXPORTER" envDefault:"none"`
	MetricsExporter string  `env:"METRICS_EXPORTER" envDefault:"prometheus"`
	SamplePct       float64 `env:"SAMPLE_PCT" envDefault:"1.0"`
}

// Load reads configuration from the process environment.
func Load() (Config, error) {
	return LoadFrom(nil)
}

// LoadFrom reads configuration from environ, or from the process environment
// when environ is nil, and validates it.
func LoadFrom(environ map[string]string) (Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](env.Options{
		Prefix:      Prefix,
		Environment: environ,
	})
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var (
	validBackends   = []string{"memory", "tiered"}
	validStrategies = []string{"linear", "exponential", "constant"}
)

// Validate checks every section and reports all problems at once.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
		}
	}

	check(c.ServiceName != "", "service name is required")
	check(c.Listen != "", "listen address is required")

	check(slices.Contains(validBackends, c.Cache.Backend), "cache backend %q is not one of %v", c.Cache.Backend, validBackends)
	if err := c.CachePolicy().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("%w: %w", ErrInvalidConfig, err))
	}
	check(c.Cache.Backend != "tiered" || c.Redis.Addr != "", "tiered cache needs a redis address")
	check(c.Redis.OpTimeout > 0, "redis op timeout must be positive, got %v", c.Redis.OpTimeout)

	check(c.Retry.MaxAttempts > 0, "retry max attempts must be positive, got %d", c.Retry.MaxAttempts)
	check(c.Retry.BaseDelay > 0, "retry base delay must be positive, got %v", c.Retry.BaseDelay)
	check(c.Retry.MaxDelay >= c.Retry.BaseDelay, "retry max delay %v is below base delay %v", c.Retry.MaxDelay, c.Retry.BaseDelay)
	check(slices.Contains(validStrategies, c.Retry.Strategy), "retry strategy %q is not one of %v", c.Retry.Strategy, validStrategies)

	check(c.Provider.BaseURL != "", "provider base url is required")
	check(c.Provider.CallTimeout >= 0, "provider call timeout must not be negative")
	check(c.Provider.AttemptTimeout >= 0, "provider attempt timeout must not be negative")

	check(!c.Breaker.Enabled || c.Breaker.MaxFailures > 0, "breaker max failures must be positive")
	check(!c.RateLimit.Enabled || c.RateLimit.Rate > 0, "rate limit must be positive")
	check(!c.Bulkhead.Enabled || c.Bulkhead.MaxConcurrent > 0, "bulkhead max concurrent must be positive")
	check(c.Jobs.Concurrency > 0, "jobs concurrency must be positive")

	oc := c.ObserveConfig()
	if err := oc.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("%w: %w", ErrInvalidConfig, err))
	}

	return errors.Join(errs...)
}

// CachePolicy converts the cache section.
func (c Config) CachePolicy() cache.Policy {
	return cache.Policy{
		Capacity:      c.Cache.Capacity,
		TTL:           c.Cache.TTL,
		AllowRecache:  c.Cache.AllowRecache,
		SweepInterval: c.Cache.SweepInterval,
	}
}

// RetryConfig converts the retry section.
func (c Config) RetryConfig() resilience.RetryConfig {
	strategy := resilience.BackoffLinear
	switch c.Retry.Strategy {
	case "exponential":
		strategy = resilience.BackoffExponential
	case "constant":
		strategy = resilience.BackoffConstant
	}
	return resilience.RetryConfig{
		MaxAttempts: c.Retry.MaxAttempts,
		BaseDelay:   c.Retry.BaseDelay,
		MaxDelay:    c.Retry.MaxDelay,
		Strategy:    strategy,
		Jitter:      c.Retry.Jitter,
	}
}

// RedisOptions converts the redis section.
func (c Config) RedisOptions() cache.RedisOptions {
	return cache.RedisOptions{
		Addr:      c.Redis.Addr,
		Password:  c.Redis.Password,
		DB:        c.Redis.DB,
		Prefix:    c.Redis.Prefix,
		OpTimeout: c.Redis.OpTimeout,
	}
}

// ObserveConfig converts the logging and telemetry sections.
func (c Config) ObserveConfig() observe.Config {
	return observe.Config{
		ServiceName: c.ServiceName,
		Version:     c.Version,
		Tracing: observe.TracingConfig{
			Enabled:   c.Telemetry.TracesExporter != "none",
			Exporter:  c.Telemetry.TracesExporter,
			SamplePct: c.Telemetry.SamplePct,
		},
		Metrics: observe.MetricsConfig{
			Enabled:  c.Telemetry.MetricsExporter != "none",
			Exporter: c.Telemetry.MetricsExporter,
		},
		Logging: observe.LoggingConfig{
			Enabled: true,
			Level:   c.Log.Level,
		},
	}
}

// Executor builds the resilience stack provider calls run through. breaker
// is returned separately so health checks can watch it; it is nil when
// disabled.
func (c Config) Executor() (*resilience.Executor, *resilience.CircuitBreaker) {
	opts := []resilience.ExecutorOption{
		resilience.WithRetry(resilience.NewRetry(c.RetryConfig())),
	}

	var breaker *resilience.CircuitBreaker
	if c.Breaker.Enabled {
		breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			MaxFailures:  c.Breaker.MaxFailures,
			ResetTimeout: c.Breaker.ResetTimeout,
		})
		opts = append(opts, resilience.WithCircuitBreaker(breaker))
	}
	if c.RateLimit.Enabled {
		opts = append(opts, resilience.WithRateLimiter(resilience.NewRateLimiter(resilience.RateLimiterConfig{
			Rate:    c.RateLimit.Rate,
			Burst:   c.RateLimit.Burst,
			MaxWait: c.RateLimit.MaxWait,
		})))
	}
	if c.Bulkhead.Enabled {
		opts = append(opts, resilience.WithBulkhead(resilience.NewBulkhead(resilience.BulkheadConfig{
			MaxConcurrent: c.Bulkhead.MaxConcurrent,
			MaxWait:       c.Bulkhead.MaxWait,
		})))
	}
	if c.Provider.AttemptTimeout > 0 {
		opts = append(opts, resilience.WithTimeout(c.Provider.AttemptTimeout))
	}

	return resilience.NewExecutor(opts...), breaker
}

// ResolveSecrets replaces secret references in credential fields.
func (c *Config) ResolveSecrets(ctx context.Context, r *secret.Resolver) error {
	err := r.ResolveFields(ctx, map[string]*string{
		"provider api key": &c.Provider.APIKey,
		"redis password":   &c.Redis.Password,
	})
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
