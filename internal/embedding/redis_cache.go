package embedding

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces vector keys in Redis.
const DefaultRedisPrefix = "freelancehub:embedding:"

// RedisCache stores CBOR-encoded vectors in Redis with a TTL.
// Redis errors are logged and reported as misses.
type RedisCache struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewRedisCache creates a RedisCache. A ttl of 0 keeps entries until evicted by Redis.
func NewRedisCache(client redis.Cmdable, prefix string, ttl time.Duration) *RedisCache {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

// Get loads and decodes the vector stored under key.
func (c *RedisCache) Get(ctx context.Context, key string) ([]float32, bool) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		slog.WarnContext(ctx, "embedding cache read failed", "error", err)
		return nil, false
	}

	var vec []float32
	if err := cbor.Unmarshal(data, &vec); err != nil {
		slog.WarnContext(ctx, "embedding cache entry corrupt", "key", key, "error", err)
		return nil, false
	}
	return vec, true
}

// Set encodes and stores vec under key.
func (c *RedisCache) Set(ctx context.Context, key string, vec []float32) {
	data, err := cbor.Marshal(vec)
	if err != nil {
		slog.WarnContext(ctx, "embedding cache encode failed", "error", err)
		return
	}
	if err := c.client.Set(ctx, c.prefix+key, data, c.ttl).Err(); err != nil {
		slog.WarnContext(ctx, "embedding cache write failed", "error", err)
	}
}
