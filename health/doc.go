// Package health reports whether feedbackd can serve requests.
//
// Checks return a Status. Degraded means requests still succeed with reduced
// capability, for example when the shared cache tier is unreachable and
// misses go straight to the provider. Unhealthy means requests will fail.
//
//	agg := health.NewAggregator()
//	agg.Register(health.PingCheck("redis", redisCache, health.StatusDegraded))
//	agg.Register(health.BreakerCheck("provider", breaker))
//
//	r := chi.NewRouter()
//	health.Mount(r, agg)
//
// Mount serves /healthz (liveness), /readyz (readiness) and /health
// (per-check detail as JSON).
package health
