package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize bounds an LRUCache created with size <= 0.
const DefaultCacheSize = 4096

// Cache stores document vectors by key. Implementations are safe for concurrent use.
// A cache failure is a miss, never an error for the caller.
type Cache interface {
	Get(ctx context.Context, key string) ([]float32, bool)
	Set(ctx context.Context, key string, vec []float32)
}

// Fingerprint hashes the text a listing contributes to its corpus document.
func Fingerprint(title, description, resume string) string {
	h := sha256.New()
	h.Write([]byte(title))
	h.Write([]byte{0})
	h.Write([]byte(description))
	h.Write([]byte{0})
	h.Write([]byte(resume))
	return hex.EncodeToString(h.Sum(nil))
}

// CacheKey combines the embedder identity, a listing ID and its content fingerprint.
// Switching models or dimensions changes every key.
// Editing a listing or its seller's resume changes the key.
func CacheKey(space string, id int64, fingerprint string) string {
	return space + ":" + strconv.FormatInt(id, 10) + ":" + fingerprint
}

// LRUCache is a bounded in-process Cache.
type LRUCache struct {
	cache *lru.Cache[string, []float32]
}

// NewLRUCache creates an LRUCache holding at most size vectors.
func NewLRUCache(size int) (*LRUCache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, err
	}
	return &LRUCache{cache: c}, nil
}

// Get returns a copy of the cached vector.
func (c *LRUCache) Get(ctx context.Context, key string) ([]float32, bool) {
	v, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	return append([]float32(nil), v...), true
}

// Set stores a copy of vec.
func (c *LRUCache) Set(ctx context.Context, key string, vec []float32) {
	c.cache.Add(key, append([]float32(nil), vec...))
}

// Len returns the number of cached vectors.
func (c *LRUCache) Len() int {
	return c.cache.Len()
}

// TieredCache reads through caches in order and backfills the faster tiers on a hit.
type TieredCache struct {
	tiers []Cache
}

// NewTieredCache layers caches, fastest first.
func NewTieredCache(tiers ...Cache) *TieredCache {
	return &TieredCache{tiers: tiers}
}

// Get returns the first hit and copies it into earlier tiers.
func (c *TieredCache) Get(ctx context.Context, key string) ([]float32, bool) {
	for i, tier := range c.tiers {
		if vec, ok := tier.Get(ctx, key); ok {
			for _, earlier := range c.tiers[:i] {
				earlier.Set(ctx, key, vec)
			}
			return vec, true
		}
	}
	return nil, false
}

// Set writes vec to every tier.
func (c *TieredCache) Set(ctx context.Context, key string, vec []float32) {
	for _, tier := range c.tiers {
		tier.Set(ctx, key, vec)
	}
}
