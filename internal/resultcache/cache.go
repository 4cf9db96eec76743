// Package resultcache is a cache-aside layer for scored results keyed by
// session id.
//
// Concurrent misses for the same key are not coalesced: each reads from
// storage and writes an equivalent value back. Results are immutable once
// created, so the duplicate work is harmless.
package resultcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/abhisek/psytest/internal/kv"
	"github.com/abhisek/psytest/internal/result"
)

// DefaultTTL is how long a result stays cached.
const DefaultTTL = 24 * time.Hour

// ErrNotFound is returned by a Loader when no result exists.
var ErrNotFound = errors.New("result not found")

// Loader reads a result from durable storage.
type Loader interface {
	LoadResult(ctx context.Context, sessionID string) (result.TestResult, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, sessionID string) (result.TestResult, error)

func (f LoaderFunc) LoadResult(ctx context.Context, id string) (result.TestResult, error) {
	return f(ctx, id)
}

// Cache fronts a Loader with a kv.Store.
type Cache struct {
	store  kv.Store
	loader Loader
	ttl    time.Duration
	log    *slog.Logger
}

// New creates a Cache. A zero ttl uses DefaultTTL.
func New(store kv.Store, loader Loader, ttl time.Duration, log *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = slog.Default()
	}
	return &Cache{store: store, loader: loader, ttl: ttl, log: log.With("component", "resultcache")}
}

// Key returns the cache key for a session's result.
func Key(sessionID string) string {
	return "result:" + sessionID
}

// Get returns the result for sessionID, from the cache when present.
// Cache read or write failures fall through to storage and are only
// logged.
func (c *Cache) Get(ctx context.Context, sessionID string) (result.TestResult, error) {
	data, err := c.store.Get(ctx, Key(sessionID))
	switch {
	case err == nil:
		var res result.TestResult
		if uerr := json.Unmarshal(data, &res); uerr == nil {
			return res, nil
		}
		c.log.Warn("discarding undecodable cache entry", "session_id", sessionID)
	case !errors.Is(err, kv.ErrNotFound):
		c.log.Warn("cache read failed", "session_id", sessionID, "error", err)
	}

	res, err := c.loader.LoadResult(ctx, sessionID)
	if err != nil {
		return result.TestResult{}, err
	}
	c.Put(ctx, res)
	return res, nil
}

// Put writes res under its session id. Failures are logged, not returned:
// the durable record remains the source of truth.
func (c *Cache) Put(ctx context.Context, res result.TestResult) {
	if err := c.put(ctx, res); err != nil {
		c.log.Warn("cache write failed", "session_id", res.SessionID, "error", err)
	}
}

func (c *Cache) put(ctx context.Context, res result.TestResult) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return c.store.Set(ctx, Key(res.SessionID), data, c.ttl)
}
