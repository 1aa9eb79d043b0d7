// Package observe provides observability primitives for feedback requests.
//
// It is a pure instrumentation library: no caching, no transport, no I/O
// beyond exporter setup. An Observer owns the OpenTelemetry tracer and
// meter providers plus a zerolog-backed Logger. Telemetry records cache
// lookups, provider calls, retries and evictions both as OpenTelemetry
// instruments and as in-process Counters, so usage can be read back
// without an exporter.
//
// Submitted content is never logged; fields named in RedactedFields are
// replaced with "[REDACTED]".
package observe
