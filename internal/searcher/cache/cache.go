// Package cache memoises match results in Redis. Keys include the catalog
// snapshot fingerprint, so neither a reload nor another process with a
// different catalog can serve stale matches.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/reduct56/cookiefest-hackaton/internal/searcher/ranker"
	"github.com/reduct56/cookiefest-hackaton/pkg/metrics"
	pkgredis "github.com/reduct56/cookiefest-hackaton/pkg/redis"
	"github.com/reduct56/cookiefest-hackaton/pkg/resilience"
)

const keyPrefix = "match:"

// Store is the subset of the Redis client the cache needs.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type ResultCache struct {
	store   Store
	ttl     time.Duration
	isMiss  func(error) bool
	breaker *resilience.Breaker
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New creates a cache backed by store. m may be nil. After repeated store
// errors the cache is bypassed for a while and every lookup computes.
func New(store Store, ttl time.Duration, m *metrics.Metrics) *ResultCache {
	return &ResultCache{
		store:   store,
		ttl:     ttl,
		isMiss:  pkgredis.IsNilError,
		breaker: resilience.NewBreaker("result-cache", 5, 30*time.Second),
		metrics: m,
		logger:  slog.Default().With("component", "result-cache"),
	}
}

func (c *ResultCache) Get(ctx context.Context, catalog, query string, topK int) ([]ranker.ResultRecord, bool) {
	key := BuildKey(catalog, query, topK)
	var (
		data  string
		found bool
	)
	err := c.breaker.Do(func() error {
		v, err := c.store.Get(ctx, key)
		if err != nil {
			if c.isMiss(err) {
				return nil
			}
			return err
		}
		data, found = v, true
		return nil
	})
	if err != nil && !errors.Is(err, resilience.ErrBreakerOpen) {
		c.logger.Error("cache get failed", "key", key, "error", err)
	}
	if !found {
		c.recordMiss()
		return nil, false
	}
	var records []ranker.ResultRecord
	if err := json.Unmarshal([]byte(data), &records); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.recordMiss()
		return nil, false
	}
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
	return records, true
}

func (c *ResultCache) Set(ctx context.Context, catalog, query string, topK int, records []ranker.ResultRecord) {
	key := BuildKey(catalog, query, topK)
	data, err := json.Marshal(records)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Do(func() error {
		return c.store.Set(ctx, key, data, c.ttl)
	})
	if err != nil && !errors.Is(err, resilience.ErrBreakerOpen) {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns cached records or runs computeFn once per key, even
// when several callers miss at the same time. Cache failures fall back to
// computing.
func (c *ResultCache) GetOrCompute(
	ctx context.Context,
	catalog string,
	query string,
	topK int,
	computeFn func() ([]ranker.ResultRecord, error),
) ([]ranker.ResultRecord, bool, error) {
	if records, ok := c.Get(ctx, catalog, query, topK); ok {
		return records, true, nil
	}
	key := BuildKey(catalog, query, topK)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		records, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, catalog, query, topK, records)
		return records, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.([]ranker.ResultRecord), false, nil
}

// Invalidate drops every cached result.
func (c *ResultCache) Invalidate(ctx context.Context) error {
	deleted, err := c.store.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

func (c *ResultCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *ResultCache) recordMiss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

// BuildKey derives the Redis key for a request against the catalog with the
// given snapshot fingerprint. The request text is used verbatim because it
// is echoed back in every record.
func BuildKey(catalog, query string, topK int) string {
	raw := fmt.Sprintf("c=%s|k=%d|q=%s", catalog, topK, query)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}
