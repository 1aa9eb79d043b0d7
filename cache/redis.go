package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces feedback keys in a shared Redis.
const DefaultRedisPrefix = "feedback:"

// DefaultRedisOpTimeout bounds a single Redis operation, so a stalled
// server degrades to a cache miss instead of holding the request.
const DefaultRedisOpTimeout = 250 * time.Millisecond

// RedisCache is a Redis-backed cache tier shared between processes.
//
// Expiry is sliding: every hit re-arms the key's TTL with GETEX. Values are
// written with SETNX so a resident value is never replaced. Any Redis
// failure is returned wrapped in ErrCacheUnavailable, including an operation
// that outlives the per-operation timeout.
type RedisCache struct {
	rdb       redis.UniversalClient
	policy    Policy
	prefix    string
	opTimeout time.Duration
}

// RedisOptions configures NewRedisCache.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	// OpTimeout bounds each operation, connection setup included.
	// Zero means DefaultRedisOpTimeout.
	OpTimeout time.Duration
}

// NewRedisCache creates a Redis-backed cache with its own client.
func NewRedisCache(opts RedisOptions, policy Policy) *RedisCache {
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = DefaultRedisOpTimeout
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:                  opts.Addr,
		Password:              opts.Password,
		DB:                    opts.DB,
		DialTimeout:           opts.OpTimeout,
		ReadTimeout:           opts.OpTimeout,
		WriteTimeout:          opts.OpTimeout,
		ContextTimeoutEnabled: true,
	})
	rc := NewRedisCacheFromClient(rdb, opts.Prefix, policy)
	rc.opTimeout = opts.OpTimeout
	return rc
}

// NewRedisCacheFromClient wraps an existing client. Operations are bounded
// by DefaultRedisOpTimeout; the client's own timeouts apply within it.
func NewRedisCacheFromClient(rdb redis.UniversalClient, prefix string, policy Policy) *RedisCache {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisCache{rdb: rdb, policy: policy, prefix: prefix, opTimeout: DefaultRedisOpTimeout}
}

// Get retrieves a value and slides its expiry.
func (r *RedisCache) Get(ctx context.Context, key Key) ([]byte, bool, error) {
	if !r.policy.ShouldCache() {
		return nil, false, nil
	}
	ctx, cancel := r.bound(ctx)
	defer cancel()
	val, err := r.rdb.GetEx(ctx, r.redisKey(key), r.policy.TTL).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, unavailable("get", err)
	}
	return val, true, nil
}

// Put stores a value if the key is absent. With AllowRecache a resident
// key has its expiry refreshed instead.
func (r *RedisCache) Put(ctx context.Context, key Key, value []byte) error {
	if !r.policy.ShouldCache() {
		return nil
	}
	ctx, cancel := r.bound(ctx)
	defer cancel()
	rk := r.redisKey(key)
	stored, err := r.rdb.SetNX(ctx, rk, value, r.policy.TTL).Result()
	if err != nil {
		return unavailable("put", err)
	}
	if !stored && r.policy.AllowRecache {
		if err := r.rdb.Expire(ctx, rk, r.policy.TTL).Err(); err != nil {
			return unavailable("refresh", err)
		}
	}
	return nil
}

// Delete removes a value. Idempotent - no error on miss.
func (r *RedisCache) Delete(ctx context.Context, key Key) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	if err := r.rdb.Del(ctx, r.redisKey(key)).Err(); err != nil {
		return unavailable("delete", err)
	}
	return nil
}

// TTL reports the remaining lifetime of key, mainly for diagnostics.
func (r *RedisCache) TTL(ctx context.Context, key Key) (time.Duration, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	d, err := r.rdb.TTL(ctx, r.redisKey(key)).Result()
	if err != nil {
		return 0, unavailable("ttl", err)
	}
	return d, nil
}

// Ping checks the Redis connection.
func (r *RedisCache) Ping(ctx context.Context) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	if err := r.rdb.Ping(ctx).Err(); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// Close closes the underlying Redis client.
func (r *RedisCache) Close() error {
	return r.rdb.Close()
}

func (r *RedisCache) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.opTimeout)
}

func (r *RedisCache) redisKey(key Key) string {
	return r.prefix + key.String()
}

// Ensure RedisCache implements Cache
var _ Cache = (*RedisCache)(nil)
