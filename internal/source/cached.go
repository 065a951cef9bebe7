package source

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	pkgredis "github.com/robso86/jsonschema-mapper/pkg/redis"
	"github.com/zeebo/blake3"
)

const keyPrefix = "schema:doc:"

// ByteStore is the subset of the Redis client the cache needs.
type ByteStore interface {
	GetBytes(ctx context.Context, key string) ([]byte, error)
	SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// CachedReader serves documents from a ByteStore and falls back to next on
// a miss, storing what it read. Store failures are logged and never fail a
// read.
type CachedReader struct {
	next   Reader
	store  ByteStore
	ttl    time.Duration
	logger *slog.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

func NewCachedReader(next Reader, store ByteStore, ttl time.Duration) *CachedReader {
	return &CachedReader{
		next:   next,
		store:  store,
		ttl:    ttl,
		logger: slog.Default().With("component", "document-cache"),
	}
}

func (c *CachedReader) ReadResource(ctx context.Context, uri string) ([]byte, error) {
	key := CacheKey(uri)
	data, err := c.store.GetBytes(ctx, key)
	switch {
	case err == nil:
		c.hits.Add(1)
		c.logger.Debug("cache hit", "uri", uri, "key", key)
		return data, nil
	case !pkgredis.IsNilError(err):
		c.logger.Error("cache get failed", "key", key, "error", err)
	}
	c.misses.Add(1)

	data, err = c.next.ReadResource(ctx, uri)
	if err != nil {
		return nil, err
	}
	if err := c.store.SetBytes(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
	return data, nil
}

// Invalidate drops the cached copy of uri.
func (c *CachedReader) Invalidate(ctx context.Context, uri string) error {
	if err := c.store.Del(ctx, CacheKey(uri)); err != nil {
		return fmt.Errorf("invalidating %s: %w", uri, err)
	}
	return nil
}

// Purge drops every cached document and returns how many were removed.
func (c *CachedReader) Purge(ctx context.Context) (int64, error) {
	n, err := c.store.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return n, fmt.Errorf("purging document cache: %w", err)
	}
	c.logger.Info("document cache purged", "deleted", n)
	return n, nil
}

func (c *CachedReader) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// CacheKey is the store key for uri.
func CacheKey(uri string) string {
	sum := blake3.Sum256([]byte(uri))
	return keyPrefix + hex.EncodeToString(sum[:16])
}
