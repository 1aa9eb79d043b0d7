package cache

import (
	"fmt"
	"time"
)

// Policy configures the bounds of a result cache.
type Policy struct {
	// Capacity is the maximum number of resident entries. Inserting a new
	// key at capacity evicts the oldest insertion first.
	Capacity int

	// TTL is the sliding idle window measured from an entry's last use.
	// Zero or negative means entries expire immediately.
	TTL time.Duration

	// AllowRecache lets Put on an already resident key refresh its last-use
	// time. The stored value is never replaced either way.
	AllowRecache bool

	// SweepInterval is how often MemoryCache.Run purges expired entries.
	// If zero, Run returns immediately and expiry stays lazy.
	SweepInterval time.Duration
}

// DefaultPolicy returns the default cache policy.
// Capacity: 1000, TTL: 1 hour, SweepInterval: 5 minutes, AllowRecache: false
func DefaultPolicy() Policy {
	return Policy{
		Capacity:      1000,
		TTL:           time.Hour,
		AllowRecache:  false,
		SweepInterval: 5 * time.Minute,
	}
}

// Validate checks the policy bounds.
func (p Policy) Validate() error {
	if p.Capacity <= 0 {
		return fmt.Errorf("%w: capacity must be positive, got %d", ErrInvalidPolicy, p.Capacity)
	}
	if p.SweepInterval < 0 {
		return fmt.Errorf("%w: sweep interval must not be negative, got %v", ErrInvalidPolicy, p.SweepInterval)
	}
	return nil
}

// ShouldCache returns true if entries can outlive the instant they are stored.
func (p Policy) ShouldCache() bool {
	return p.TTL > 0
}

// Expired reports whether an entry last used at lastUsed is stale at now.
func (p Policy) Expired(lastUsed, now time.Time) bool {
	if p.TTL <= 0 {
		return true
	}
	return now.Sub(lastUsed) > p.TTL
}
