package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
)

// Cached fronts an inner backend with a CacheStore. Writes go to both,
// reads are served from the cache when possible and populate it on a miss.
// Cache failures are logged and never fail an operation.
type Cached struct {
	inner    Backend
	cache    CacheStore
	maxEntry int64
	logger   *slog.Logger
}

// NewCached wraps inner. Objects larger than maxEntry bytes bypass the
// cache; a non-positive maxEntry caches everything.
func NewCached(inner Backend, cache CacheStore, maxEntry int64, logger *slog.Logger) *Cached {
	return &Cached{
		inner:    inner,
		cache:    cache,
		maxEntry: maxEntry,
		logger:   logger.With("system", "storage", "backend", "cached"),
	}
}

func (c *Cached) Write(ctx context.Context, t Target, r io.Reader) error {
	head, rest, fits, err := c.buffer(r)
	if err != nil {
		return fmt.Errorf("%w: read source: %w", ErrWrite, err)
	}

	if !fits {
		if err := c.inner.Write(ctx, t, io.MultiReader(bytes.NewReader(head), rest)); err != nil {
			return err
		}
		c.evict(ctx, t.Key)
		return nil
	}

	if err := c.inner.Write(ctx, t, bytes.NewReader(head)); err != nil {
		c.evict(ctx, t.Key)
		return err
	}

	if err := c.cache.Set(ctx, t.Key, head); err != nil {
		c.logger.Warn("cache write failed", "key", t.Key, "error", err)
		c.evict(ctx, t.Key)
	}
	return nil
}

func (c *Cached) Read(ctx context.Context, t Target) (io.ReadCloser, error) {
	data, ok, err := c.cache.Get(ctx, t.Key)
	if err != nil {
		c.logger.Warn("cache read failed", "key", t.Key, "error", err)
	} else if ok {
		return io.NopCloser(bytes.NewReader(data)), nil
	}

	rc, err := c.inner.Read(ctx, t)
	if err != nil {
		return nil, err
	}

	head, rest, fits, err := c.buffer(rc)
	if err != nil {
		rc.Close()
		return nil, err
	}

	if !fits {
		return &joinedReader{Reader: io.MultiReader(bytes.NewReader(head), rest), closer: rc}, nil
	}
	rc.Close()

	if err := c.cache.Set(ctx, t.Key, head); err != nil {
		c.logger.Warn("cache fill failed", "key", t.Key, "error", err)
	}
	return io.NopCloser(bytes.NewReader(head)), nil
}

func (c *Cached) Exists(ctx context.Context, t Target) (bool, error) {
	_, ok, err := c.cache.Get(ctx, t.Key)
	if err != nil {
		c.logger.Warn("cache read failed", "key", t.Key, "error", err)
	} else if ok {
		return true, nil
	}
	return c.inner.Exists(ctx, t)
}

func (c *Cached) Delete(ctx context.Context, targets ...Target) error {
	c.evict(ctx, Keys(targets)...)
	return c.inner.Delete(ctx, targets...)
}

func (c *Cached) evict(ctx context.Context, keys ...string) {
	if err := c.cache.Delete(ctx, keys...); err != nil {
		c.logger.Warn("cache eviction failed", "keys", keys, "error", err)
	}
}

// buffer reads up to maxEntry bytes. When the stream is longer, fits is
// false and rest yields the unread remainder.
func (c *Cached) buffer(r io.Reader) (head []byte, rest io.Reader, fits bool, err error) {
	if c.maxEntry <= 0 {
		head, err = io.ReadAll(r)
		return head, nil, err == nil, err
	}

	head, err = io.ReadAll(io.LimitReader(r, c.maxEntry+1))
	if err != nil {
		return nil, nil, false, err
	}
	if int64(len(head)) <= c.maxEntry {
		return head, nil, true, nil
	}
	return head, r, false, nil
}

type joinedReader struct {
	io.Reader
	closer io.Closer
}

func (j *joinedReader) Close() error {
	return j.closer.Close()
}
