package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jonwraymond/feedbackops/cache"
	"github.com/jonwraymond/feedbackops/config"
	"github.com/jonwraymond/feedbackops/feedback"
	"github.com/jonwraymond/feedbackops/health"
	"github.com/jonwraymond/feedbackops/observe"
	"github.com/jonwraymond/feedbackops/provider"
	"github.com/jonwraymond/feedbackops/resilience"
	"github.com/jonwraymond/feedbackops/secret"
)

// services holds the wired components shared by every command.
type services struct {
	cfg         config.Config
	obs         observe.Observer
	logger      observe.Logger
	telemetry   *observe.Recorder
	registry    *prometheus.Registry
	mem         *cache.MemoryCache
	redis       *cache.RedisCache
	breaker     *resilience.CircuitBreaker
	coordinator *feedback.Coordinator
	secrets     *secret.Resolver
}

// newServices wires config, observability, cache, provider and coordinator.
// withProvider is false for commands that only derive keys or enqueue.
func newServices(ctx context.Context, cfg config.Config, withProvider bool) (*services, error) {
	rt := &services{cfg: cfg, registry: prometheus.NewRegistry()}
	rt.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	rt.secrets = secret.NewDefaultResolver(cfg.SecretRoot)
	if err := rt.cfg.ResolveSecrets(ctx, rt.secrets); err != nil {
		return nil, err
	}

	oc := rt.cfg.ObserveConfig()
	oc.Metrics.Registerer = rt.registry
	obs, err := observe.NewObserver(ctx, oc)
	if err != nil {
		return nil, fmt.Errorf("observe: %w", err)
	}
	rt.obs = obs
	rt.logger = obs.Logger()
	rt.telemetry = obs.Telemetry()

	rt.mem, err = cache.NewMemoryCache(rt.cfg.CachePolicy(),
		cache.WithEvictionHook(func(key cache.Key, reason cache.EvictReason) {
			rt.telemetry.RecordEviction(context.Background(), reason.String())
		}),
	)
	if err != nil {
		return nil, errors.Join(err, rt.close(ctx))
	}

	if !withProvider {
		return rt, nil
	}

	var store cache.Cache = rt.mem
	if rt.cfg.Cache.Backend == "tiered" {
		rt.redis = cache.NewRedisCache(rt.cfg.RedisOptions(), rt.cfg.CachePolicy())
		if store, err = cache.NewTiered(rt.mem, rt.redis); err != nil {
			return nil, errors.Join(err, rt.close(ctx))
		}
	}

	client, err := provider.New(rt.cfg.Provider.APIKey,
		provider.WithBaseURL(rt.cfg.Provider.BaseURL),
		provider.WithModel(rt.cfg.Provider.Model),
		provider.WithPrompts(rt.cfg.Provider.Prompts),
		provider.WithDefaultPrompt(rt.cfg.Provider.DefaultPrompt),
		provider.WithMaxTokens(rt.cfg.Provider.MaxTokens),
	)
	if err != nil {
		return nil, errors.Join(err, rt.close(ctx))
	}

	exec, breaker := rt.cfg.Executor()
	rt.breaker = breaker

	rt.coordinator, err = feedback.New(client, store,
		feedback.WithExecutor(exec),
		feedback.WithTelemetry(rt.telemetry),
		feedback.WithLogger(rt.logger),
		feedback.WithTracer(observe.NewTracer(obs.Tracer())),
		feedback.WithCallTimeout(rt.cfg.Provider.CallTimeout),
	)
	if err != nil {
		return nil, errors.Join(err, rt.close(ctx))
	}
	return rt, nil
}

// health builds the readiness checks for the wired components.
func (rt *services) health() *health.Aggregator {
	agg := health.NewAggregator()
	agg.Register(health.CacheCheck("cache", rt.mem, rt.cfg.Cache.Capacity))
	if rt.redis != nil {
		agg.Register(health.PingCheck("redis", rt.redis, health.StatusDegraded))
	}
	if rt.breaker != nil {
		agg.Register(health.BreakerCheck("provider", rt.breaker))
	}
	return agg
}

func (rt *services) metricsHandler() http.Handler {
	return promhttp.HandlerFor(rt.registry, promhttp.HandlerOpts{})
}

func (rt *services) redisClientOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     rt.cfg.Redis.Addr,
		Password: rt.cfg.Redis.Password,
		DB:       rt.cfg.Redis.DB,
	}
}

func (rt *services) close(ctx context.Context) error {
	var errs []error
	if rt.redis != nil {
		errs = append(errs, rt.redis.Close())
	}
	if rt.obs != nil {
		errs = append(errs, rt.obs.Shutdown(ctx))
	}
	errs = append(errs, rt.secrets.Close())
	return errors.Join(errs...)
}
