// Package cache provides the key/value store used for API rate-limit counters.
//
// Store implementations report errors; Counter wraps a Store and never does,
// degrading to the default value on reads and dropping writes, with a warning.
package cache

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"
)

// ErrMiss is returned by Store.Get when the key does not exist.
var ErrMiss = errors.New("cache: miss")

// Store is a minimal string key/value store with expiry.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// IncrBy atomically adds delta to the integer under key and returns the
	// new value. A missing key starts at 0 and expires after ttl.
	IncrBy(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error)
}

// Counter reads and writes integer values without ever failing the caller.
type Counter struct {
	store  Store
	logger *slog.Logger
}

// NewCounter wraps store.
func NewCounter(store Store) *Counter {
	return &Counter{store: store, logger: slog.Default()}
}

// GetInt returns the stored integer, or def on miss or any cache error.
func (c *Counter) GetInt(ctx context.Context, key string, def int) int {
	raw, err := c.store.Get(ctx, key)
	if errors.Is(err, ErrMiss) {
		return def
	}
	if err != nil {
		c.logger.Warn("cache get failed", "key", key, "error", err)
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		c.logger.Warn("cache value is not an integer", "key", key, "value", raw)
		return def
	}
	return n
}

// Reserve takes one unit under key if fewer than limit are taken and reports
// the new count. When the store fails the reservation is granted so a cache
// outage never stops the caller.
func (c *Counter) Reserve(ctx context.Context, key string, limit int, ttl time.Duration) (int, bool) {
	n, err := c.store.IncrBy(ctx, key, 1, ttl)
	if err != nil {
		c.logger.Warn("cache incr failed", "key", key, "error", err)
		return 0, true
	}
	if n > int64(limit) {
		c.Release(ctx, key)
		return int(n) - 1, false
	}
	return int(n), true
}

// Release hands back a unit taken by Reserve.
func (c *Counter) Release(ctx context.Context, key string) {
	if _, err := c.store.IncrBy(ctx, key, -1, 0); err != nil {
		c.logger.Warn("cache decr failed", "key", key, "error", err)
	}
}

// SetInt stores value under key. Failures are logged and dropped.
func (c *Counter) SetInt(ctx context.Context, key string, value int, ttl time.Duration) {
	if err := c.store.Set(ctx, key, strconv.Itoa(value), ttl); err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}
