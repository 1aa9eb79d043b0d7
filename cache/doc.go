// Package cache provides content-addressed storage for generated feedback.
//
// It provides a Cache interface with a bounded in-memory implementation
// (FIFO eviction, sliding TTL), a Redis tier for sharing results between
// processes, and SHA-256 key derivation over canonicalized request content.
package cache
