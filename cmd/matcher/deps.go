package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/reduct56/cookiefest-hackaton/internal/catalog"
	"github.com/reduct56/cookiefest-hackaton/internal/indexer"
	"github.com/reduct56/cookiefest-hackaton/internal/indexer/tokenizer"
	"github.com/reduct56/cookiefest-hackaton/internal/searcher/cache"
	"github.com/reduct56/cookiefest-hackaton/pkg/config"
	apperrors "github.com/reduct56/cookiefest-hackaton/pkg/errors"
	"github.com/reduct56/cookiefest-hackaton/pkg/metrics"
	"github.com/reduct56/cookiefest-hackaton/pkg/postgres"
	pkgredis "github.com/reduct56/cookiefest-hackaton/pkg/redis"
	"github.com/reduct56/cookiefest-hackaton/pkg/resilience"
)

var dbRetry = resilience.RetryConfig{
	MaxAttempts:  5,
	InitialDelay: 500 * time.Millisecond,
	MaxDelay:     10 * time.Second,
	ShouldRetry: func(err error) bool {
		return !apperrors.IsInputError(err)
	},
}

func newEngine(c *config.Config, m *metrics.Metrics) *indexer.Engine {
	return indexer.NewEngine(indexer.Options{
		MaxVocabSize: c.Matcher.MaxVocabSize,
		StopWords:    tokenizer.Language(c.Matcher.StopWords),
	}, m)
}

func openPostgres(ctx context.Context, c config.PostgresConfig) (*postgres.Client, error) {
	var db *postgres.Client
	err := resilience.Retry(ctx, "postgres-connect", dbRetry, func() error {
		var err error
		db, err = postgres.New(ctx, c)
		return err
	})
	return db, err
}

// dbSource reads the catalog table, retrying transient failures.
func dbSource(store *catalog.Store) func(ctx context.Context) ([]catalog.Entry, error) {
	return func(ctx context.Context) ([]catalog.Entry, error) {
		var entries []catalog.Entry
		err := resilience.Retry(ctx, "catalog-load", dbRetry, func() error {
			var err error
			entries, err = store.LoadEntries(ctx)
			return err
		})
		return entries, err
	}
}

// openCache connects the result cache when enabled. A Redis outage at start
// disables caching instead of failing.
func openCache(ctx context.Context, c config.RedisConfig, m *metrics.Metrics) (*cache.ResultCache, *pkgredis.Client) {
	if !c.Enabled {
		return nil, nil
	}
	client, err := pkgredis.NewClient(ctx, c)
	if err != nil {
		slog.Warn("redis unavailable, result caching disabled", "error", err)
		return nil, nil
	}
	slog.Info("result cache enabled", "addr", c.Addr, "ttl", c.CacheTTL)
	return cache.New(client, c.CacheTTL, m), client
}
