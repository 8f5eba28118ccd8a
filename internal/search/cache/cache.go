// Package cache memoises search result lists in Redis, keyed per document
// so that closing or invalidating a document drops its entries.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/internal/search"
	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/pkg/config"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/pkg/resilience"
	"golang.org/x/sync/singleflight"
)

const (
	keyPrefix = "docsearch:"
	opTimeout = 100 * time.Millisecond
)

// Backend is the key-value store behind the cache. *pkgredis.Client
// satisfies it; a missing key must be reported with an error for which
// pkgredis.IsNilError is true.
type Backend interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) (int64, error)
}

type ResultCache struct {
	backend Backend
	ttl     time.Duration
	group   singleflight.Group
	breaker *resilience.Breaker
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

func New(backend Backend, cfg config.RedisConfig) *ResultCache {
	return &ResultCache{
		backend: backend,
		ttl:     cfg.CacheTTL,
		breaker: resilience.NewBreaker("result-cache", resilience.BreakerConfig{
			FailureThreshold: 3,
			OpenFor:          15 * time.Second,
		}),
		logger: slog.Default().With("component", "result-cache"),
	}
}

// GetOrCompute returns cached results or runs compute and stores what it
// returns. Concurrent misses for the same key run compute once. Backend
// failures are logged and never returned; only compute's error is.
func (c *ResultCache) GetOrCompute(
	ctx context.Context,
	documentKey, query string,
	opts search.Options,
	compute func() ([]search.Result, error),
) ([]search.Result, bool, error) {
	key := buildKey(documentKey, query, opts)
	if results, ok := c.get(ctx, key); ok {
		c.hits.Add(1)
		return results, true, nil
	}
	c.misses.Add(1)
	val, err, _ := c.group.Do(key, func() (any, error) {
		if results, ok := c.get(ctx, key); ok {
			return results, nil
		}
		results, err := compute()
		if err != nil {
			return nil, err
		}
		c.set(ctx, key, results)
		return results, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.([]search.Result), false, nil
}

func (c *ResultCache) get(ctx context.Context, key string) ([]search.Result, bool) {
	var data string
	err := c.breaker.Do(func() error {
		return resilience.WithTimeout(ctx, opTimeout, "cache-get", func(ctx context.Context) error {
			v, err := c.backend.Get(ctx, key)
			if pkgredis.IsNilError(err) {
				return nil
			}
			data = v
			return err
		})
	})
	if err != nil {
		c.logger.Debug("cache get failed", "key", key, "error", err)
	}
	if err != nil || data == "" {
		return nil, false
	}
	var results []search.Result
	if err := json.Unmarshal([]byte(data), &results); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		return nil, false
	}
	return results, true
}

func (c *ResultCache) set(ctx context.Context, key string, results []search.Result) {
	data, err := json.Marshal(results)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Do(func() error {
		return resilience.WithTimeout(ctx, opTimeout, "cache-set", func(ctx context.Context) error {
			return c.backend.Set(ctx, key, data, c.ttl)
		})
	})
	if err != nil {
		c.logger.Debug("cache set failed", "key", key, "error", err)
	}
}

// Invalidate drops every cached result for documentKey.
func (c *ResultCache) Invalidate(ctx context.Context, documentKey string) error {
	deleted, err := c.backend.DeleteByPattern(ctx, keyPrefix+documentKey+":*")
	if err != nil {
		return fmt.Errorf("invalidating cached results for %s: %w", documentKey, err)
	}
	c.logger.Info("cached results invalidated", "doc_key", documentKey, "keys_deleted", deleted)
	return nil
}

func (c *ResultCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func buildKey(documentKey, query string, opts search.Options) string {
	raw := fmt.Sprintf("%s|whole=%t|case=%t|max=%d", query, opts.WholeWords, opts.CaseSensitive, opts.MaxResults)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%s:%x", keyPrefix, documentKey, hash[:16])
}
