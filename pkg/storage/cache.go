package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
)

// CacheStore holds object bytes keyed by storage key.
type CacheStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, keys ...string) error
}

// LRUCache keeps a bounded number of objects in process memory.
type LRUCache struct {
	cache *lru.Cache[string, []byte]
}

// NewLRUCache creates an in-memory cache holding at most size entries.
func NewLRUCache(size int) (*LRUCache, error) {
	c, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("create lru cache: %w", err)
	}
	return &LRUCache{cache: c}, nil
}

func (c *LRUCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	data, ok := c.cache.Get(key)
	return data, ok, nil
}

func (c *LRUCache) Set(_ context.Context, key string, data []byte) error {
	c.cache.Add(key, data)
	return nil
}

func (c *LRUCache) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		c.cache.Remove(key)
	}
	return nil
}

// Len returns the number of cached entries.
func (c *LRUCache) Len() int {
	return c.cache.Len()
}

// RedisCache shares cached objects between processes through Redis.
type RedisCache struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisCache wraps rdb. Keys are namespaced with prefix; a zero ttl
// stores entries without expiry.
func NewRedisCache(rdb redis.UniversalClient, prefix string, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := c.rdb.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, data []byte) error {
	return c.rdb.Set(ctx, c.prefix+key, data, c.ttl).Err()
}

func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, len(keys))
	for i, key := range keys {
		prefixed[i] = c.prefix + key
	}
	return c.rdb.Del(ctx, prefixed...).Err()
}

// Ping checks connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// BackendCache uses another Backend, typically a local Filesystem, as the
// cache tier.
type BackendCache struct {
	backend Backend
}

// NewBackendCache wraps backend as a CacheStore.
func NewBackendCache(backend Backend) *BackendCache {
	return &BackendCache{backend: backend}
}

func (c *BackendCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	rc, err := c.backend.Read(ctx, Target{Key: key})
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (c *BackendCache) Set(ctx context.Context, key string, data []byte) error {
	return c.backend.Write(ctx, Target{Key: key}, bytes.NewReader(data))
}

func (c *BackendCache) Delete(ctx context.Context, keys ...string) error {
	targets := make([]Target, len(keys))
	for i, key := range keys {
		targets[i] = Target{Key: key}
	}
	return c.backend.Delete(ctx, targets...)
}
