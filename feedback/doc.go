// Package feedback coordinates requests for generated feedback.
//
// A Coordinator sits between request handlers and a slow, billable Provider.
// Each request is keyed by its tag and normalized content. A cached result is
// returned directly. On a miss, concurrent requests for the same key share a
// single provider call: the first caller registers the call and every later
// caller waits on the same outcome. The provider call runs through a
// resilience.Executor, so transient failures are retried with backoff, and
// successful results are stored before waiters are released. Failures are
// never cached.
//
// The shared call is detached from the cancellation of the caller that
// started it. A caller that gives up stops waiting but the call continues,
// and its result still lands in the cache for the next request.
package feedback
