package cache

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// KeySize is the length of a cache key digest in bytes.
const KeySize = 32

// Sentinel errors for cache operations.
var (
	ErrNilCache         = errors.New("cache: cache is nil")
	ErrInvalidKey       = errors.New("cache: key is invalid")
	ErrInvalidTag       = errors.New("cache: tag is required")
	ErrInvalidPolicy    = errors.New("cache: policy is invalid")
	ErrCacheUnavailable = errors.New("cache: backend unavailable")
)

// Key is a content-addressed cache key: a SHA-256 digest over the operation
// tag and the normalized request content.
type Key [KeySize]byte

// String returns the lowercase hex form of the key.
func (k Key) String() string {
	return hex.EncodeToString(k[:])
}

// IsZero reports whether k is the zero key.
func (k Key) IsZero() bool {
	return k == Key{}
}

// ParseKey parses the hex form produced by Key.String.
func ParseKey(s string) (Key, error) {
	var k Key
	if len(s) != hex.EncodedLen(KeySize) {
		return k, fmt.Errorf("%w: want %d hex characters, got %d", ErrInvalidKey, hex.EncodedLen(KeySize), len(s))
	}
	if _, err := hex.Decode(k[:], []byte(s)); err != nil {
		return k, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return k, nil
}

// Entry is a snapshot of a cached result and its usage metadata.
type Entry struct {
	Key        Key
	Value      []byte
	CreatedAt  time.Time
	LastUsedAt time.Time
	UsageCount int64
}

// Cache stores generated feedback by content key.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: methods should honor cancellation/deadlines where applicable.
// - Errors: a miss is (nil, false, nil). A non-nil error means the backend
// could not answer; callers treat it as a miss and carry on.
// - Ownership: values are immutable once stored; implementations copy them.
type Cache interface {
	// Get returns the value for key, refreshing its recency and usage count.
	Get(ctx context.Context, key Key) ([]byte, bool, error)

	// Put stores value under key. Storing an already present key is a no-op
	// unless the policy allows re-caching.
	Put(ctx context.Context, key Key, value []byte) error

	// Delete removes key. Idempotent - no error on miss.
	Delete(ctx context.Context, key Key) error
}

// EvictReason describes why an entry left the cache.
type EvictReason int

const (
	// EvictCapacity means the entry was the oldest insertion when a new key
	// arrived at capacity.
	EvictCapacity EvictReason = iota
	// EvictExpired means the entry sat idle longer than the TTL.
	EvictExpired
	// EvictDeleted means the entry was removed explicitly.
	EvictDeleted
)

// String returns the string representation of the reason.
func (r EvictReason) String() string {
	switch r {
	case EvictCapacity:
		return "capacity"
	case EvictExpired:
		return "expired"
	case EvictDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// unavailable wraps a backend error so callers can match ErrCacheUnavailable.
func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrCacheUnavailable, op, err)
}
