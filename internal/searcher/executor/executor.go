// Package executor runs the single-request matching pipeline: normalise the
// request, project it into the catalog's vector space, score every entry and
// rank the results.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/reduct56/cookiefest-hackaton/internal/indexer/index"
	"github.com/reduct56/cookiefest-hackaton/internal/searcher/ranker"
	apperrors "github.com/reduct56/cookiefest-hackaton/pkg/errors"
	"github.com/reduct56/cookiefest-hackaton/pkg/metrics"
)

// SnapshotProvider hands out the active catalog snapshot.
type SnapshotProvider interface {
	Current() (*index.Snapshot, error)
}

// ResultCache memoises results per snapshot fingerprint, request and topK.
type ResultCache interface {
	GetOrCompute(
		ctx context.Context,
		catalog string,
		query string,
		topK int,
		computeFn func() ([]ranker.ResultRecord, error),
	) ([]ranker.ResultRecord, bool, error)
}

type Executor struct {
	snapshots SnapshotProvider
	cache     ResultCache
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// New creates an Executor. cache and m may be nil.
func New(snapshots SnapshotProvider, cache ResultCache, m *metrics.Metrics) *Executor {
	return &Executor{
		snapshots: snapshots,
		cache:     cache,
		metrics:   m,
		logger:    slog.Default().With("component", "match-executor"),
	}
}

// Search matches query against the active snapshot.
func (e *Executor) Search(ctx context.Context, query string, topK int) ([]ranker.ResultRecord, error) {
	snap, err := e.snapshots.Current()
	if err != nil {
		return nil, err
	}
	return e.SearchIn(ctx, snap, query, topK)
}

// SearchIn matches query against a given snapshot. An empty, non-nil slice
// means nothing in the catalog shares a weighted term with the request.
func (e *Executor) SearchIn(ctx context.Context, snap *index.Snapshot, query string, topK int) ([]ranker.ResultRecord, error) {
	start := time.Now()
	var (
		records  []ranker.ResultRecord
		cacheHit bool
		err      error
	)
	if e.cache != nil && topK > 0 {
		records, cacheHit, err = e.cache.GetOrCompute(ctx, snap.Fingerprint(), query, topK, func() ([]ranker.ResultRecord, error) {
			return Match(snap, query, topK)
		})
	} else {
		records, err = Match(snap, query, topK)
	}
	e.observe(records, err, time.Since(start))
	if err != nil {
		return nil, err
	}
	e.logger.Debug("request matched",
		"query", query,
		"results", len(records),
		"cache_hit", cacheHit,
		"snapshot", snap.Version(),
	)
	return records, nil
}

func (e *Executor) observe(records []ranker.ResultRecord, err error, elapsed time.Duration) {
	if e.metrics == nil {
		return
	}
	resultType := "match"
	switch {
	case err != nil:
		resultType = "error"
	case len(records) == 0:
		resultType = "no_match"
	}
	e.metrics.MatchQueriesTotal.WithLabelValues(resultType).Inc()
	if err == nil {
		e.metrics.MatchLatency.Observe(elapsed.Seconds())
		e.metrics.MatchResultsCount.Observe(float64(len(records)))
	}
}

// Match is the uncached pipeline over one snapshot. It only reads snap.
func Match(snap *index.Snapshot, query string, topK int) ([]ranker.ResultRecord, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: got %d", apperrors.ErrInvalidTopK, topK)
	}
	if !utf8.ValidString(query) {
		return nil, apperrors.New(apperrors.ErrInvalidInput, 400, "request text is not valid UTF-8")
	}
	scores := snap.ScoreAll(snap.Project(query))
	if index.AllZero(scores) {
		return []ranker.ResultRecord{}, nil
	}
	matches, err := ranker.Rank(scores, query, topK)
	if err != nil {
		return nil, err
	}
	return ranker.Materialize(matches, snap), nil
}
