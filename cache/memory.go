package cache

import (
	"bytes"
	"container/list"
	"context"
	"sync"
	"time"
)

// MemoryCache is a bounded in-memory cache with sliding TTL and
// insertion-order eviction.
//
// Eviction is FIFO, not LRU: when a new key arrives at capacity the entry
// inserted earliest leaves, however recently it was read.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[Key]*list.Element
	order   *list.List // front is the oldest insertion
	policy  Policy
	now     func() time.Time
	onEvict func(Key, EvictReason)
}

type cacheEntry struct {
	key        Key
	value      []byte
	createdAt  time.Time
	lastUsedAt time.Time
	usageCount int64
}

func (e *cacheEntry) snapshot() Entry {
	return Entry{
		Key:        e.key,
		Value:      bytes.Clone(e.value),
		CreatedAt:  e.createdAt,
		LastUsedAt: e.lastUsedAt,
		UsageCount: e.usageCount,
	}
}

type eviction struct {
	key    Key
	reason EvictReason
}

// MemoryOption configures a MemoryCache.
type MemoryOption func(*MemoryCache)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(c *MemoryCache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithEvictionHook registers fn to be called after an entry is evicted,
// expired or deleted. fn runs outside the cache lock.
func WithEvictionHook(fn func(Key, EvictReason)) MemoryOption {
	return func(c *MemoryCache) {
		c.onEvict = fn
	}
}

// NewMemoryCache creates a new in-memory cache with the given policy.
func NewMemoryCache(policy Policy, opts ...MemoryOption) (*MemoryCache, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	c := &MemoryCache{
		entries: make(map[Key]*list.Element, policy.Capacity),
		order:   list.New(),
		policy:  policy,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Get retrieves a value from the cache. Returns (nil, false, nil) on miss or
// expiry. A hit refreshes the entry's last-use time and usage count.
func (c *MemoryCache) Get(_ context.Context, key Key) ([]byte, bool, error) {
	var evicted []eviction

	c.mu.Lock()
	elem, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		return nil, false, nil
	}

	entry := elem.Value.(*cacheEntry)
	now := c.now()
	if c.policy.Expired(entry.lastUsedAt, now) {
		// Expired - clean up lazily
		c.removeLocked(elem)
		evicted = append(evicted, eviction{key: key, reason: EvictExpired})
		c.mu.Unlock()
		c.notify(evicted)
		return nil, false, nil
	}

	entry.lastUsedAt = now
	entry.usageCount++
	value := bytes.Clone(entry.value)
	c.mu.Unlock()

	return value, true, nil
}

// Put stores value under key.
//
// A resident, unexpired key is left untouched unless the policy allows
// re-caching, in which case only its last-use time is refreshed. A new key
// at capacity evicts the oldest insertion in the same critical section.
func (c *MemoryCache) Put(_ context.Context, key Key, value []byte) error {
	// TTL<=0 means don't cache
	if !c.policy.ShouldCache() {
		return nil
	}

	var evicted []eviction

	c.mu.Lock()
	now := c.now()

	if elem, ok := c.entries[key]; ok {
		entry := elem.Value.(*cacheEntry)
		if !c.policy.Expired(entry.lastUsedAt, now) {
			if c.policy.AllowRecache {
				entry.lastUsedAt = now
			}
			c.mu.Unlock()
			return nil
		}
		// Stale resident entry: replace it as a fresh insertion.
		c.removeLocked(elem)
		evicted = append(evicted, eviction{key: key, reason: EvictExpired})
	}

	if c.order.Len() >= c.policy.Capacity {
		if oldest := c.order.Front(); oldest != nil {
			victim := oldest.Value.(*cacheEntry).key
			c.removeLocked(oldest)
			evicted = append(evicted, eviction{key: victim, reason: EvictCapacity})
		}
	}

	c.entries[key] = c.order.PushBack(&cacheEntry{
		key:        key,
		value:      bytes.Clone(value),
		createdAt:  now,
		lastUsedAt: now,
	})
	c.mu.Unlock()

	c.notify(evicted)
	return nil
}

// Delete removes a value from the cache. Idempotent - no error on miss.
func (c *MemoryCache) Delete(_ context.Context, key Key) error {
	c.mu.Lock()
	elem, ok := c.entries[key]
	if ok {
		c.removeLocked(elem)
	}
	c.mu.Unlock()

	if ok {
		c.notify([]eviction{{key: key, reason: EvictDeleted}})
	}
	return nil
}

// Peek returns a snapshot of the entry for key without touching its
// metadata. Expired entries are reported absent but left in place.
func (c *MemoryCache) Peek(key Key) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return Entry{}, false
	}
	entry := elem.Value.(*cacheEntry)
	if c.policy.Expired(entry.lastUsedAt, c.now()) {
		return Entry{}, false
	}
	return entry.snapshot(), true
}

// Len returns the number of resident entries, including expired entries
// that have not been swept yet.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Keys returns the resident keys, oldest insertion first.
func (c *MemoryCache) Keys() []Key {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]Key, 0, c.order.Len())
	for e := c.order.Front(); e != nil; e = e.Next() {
		keys = append(keys, e.Value.(*cacheEntry).key)
	}
	return keys
}

// Policy returns the cache policy.
func (c *MemoryCache) Policy() Policy {
	return c.policy
}

// Sweep removes every expired entry and returns how many were removed.
func (c *MemoryCache) Sweep() int {
	var evicted []eviction

	c.mu.Lock()
	now := c.now()
	for e := c.order.Front(); e != nil; {
		next := e.Next()
		entry := e.Value.(*cacheEntry)
		if c.policy.Expired(entry.lastUsedAt, now) {
			c.removeLocked(e)
			evicted = append(evicted, eviction{key: entry.key, reason: EvictExpired})
		}
		e = next
	}
	c.mu.Unlock()

	c.notify(evicted)
	return len(evicted)
}

// Run sweeps expired entries every Policy.SweepInterval until ctx is done.
// It returns immediately when no interval is configured.
func (c *MemoryCache) Run(ctx context.Context) error {
	if c.policy.SweepInterval <= 0 {
		return nil
	}

	ticker := time.NewTicker(c.policy.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.Sweep()
		}
	}
}

// removeLocked unlinks elem. Caller must hold c.mu.
func (c *MemoryCache) removeLocked(elem *list.Element) {
	entry := c.order.Remove(elem).(*cacheEntry)
	delete(c.entries, entry.key)
}

func (c *MemoryCache) notify(evicted []eviction) {
	if c.onEvict == nil {
		return
	}
	for _, ev := range evicted {
		c.onEvict(ev.key, ev.reason)
	}
}

// Ensure MemoryCache implements Cache
var _ Cache = (*MemoryCache)(nil)
