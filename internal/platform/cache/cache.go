// Package cache provides the cache-aside store used for read-mostly
// referential lookups. Redis backs it in deployed environments; the
// in-memory store serves development and tests.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Cache is a byte-oriented key/value store with expiry.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Incr(ctx context.Context, key string) (int64, error)
	Ping(ctx context.Context) error
}

// Key joins parts under the service prefix.
func Key(parts ...string) string {
	return "refdata:" + strings.Join(parts, ":")
}

// GetOrLoad returns the cached JSON value for key, or calls load and caches
// its result. The boolean reports a cache hit. Cache failures degrade to a
// direct load.
func GetOrLoad[T any](ctx context.Context, c Cache, key string, ttl time.Duration, load func(ctx context.Context) (T, error)) (T, bool, error) {
	var zero T
	if c == nil {
		v, err := load(ctx)
		return v, false, err
	}

	if raw, ok, err := c.Get(ctx, key); err == nil && ok {
		var v T
		if err := json.Unmarshal(raw, &v); err == nil {
			return v, true, nil
		}
		_ = c.Delete(ctx, key)
	}

	v, err := load(ctx)
	if err != nil {
		return zero, false, err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return v, false, fmt.Errorf("encode cache value %s: %w", key, err)
	}
	_ = c.Set(ctx, key, raw, ttl)
	return v, false, nil
}

// Generation reads the current value of a generation counter, creating it
// lazily. Keys derived from the generation become unreachable once Bump
// increments it.
func Generation(ctx context.Context, c Cache, key string) (int64, error) {
	raw, ok, err := c.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	var gen int64
	if _, err := fmt.Sscan(string(raw), &gen); err != nil {
		return 0, fmt.Errorf("parse generation %s: %w", key, err)
	}
	return gen, nil
}

// Bump increments a generation counter.
func Bump(ctx context.Context, c Cache, key string) (int64, error) {
	return c.Incr(ctx, key)
}
