// Package batch runs many match requests against one catalog snapshot on a
// fixed-size worker pool.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/reduct56/cookiefest-hackaton/internal/indexer/index"
	"github.com/reduct56/cookiefest-hackaton/internal/searcher/ranker"
	apperrors "github.com/reduct56/cookiefest-hackaton/pkg/errors"
	"github.com/reduct56/cookiefest-hackaton/pkg/metrics"
)

const (
	DefaultChunkSize  = 100
	DefaultMaxWorkers = 4
)

// Searcher matches one request against a snapshot.
type Searcher interface {
	SearchIn(ctx context.Context, snap *index.Snapshot, query string, topK int) ([]ranker.ResultRecord, error)
}

type Options struct {
	ChunkSize  int
	MaxWorkers int
	TopK       int
}

// QueryFailure describes one request that did not produce results. Position
// is the offset inside the chunk, or -1 when the whole chunk failed.
type QueryFailure struct {
	Chunk    int
	Position int
	Query    string
	Err      error
}

func (f QueryFailure) Error() string {
	if f.Position < 0 {
		return fmt.Sprintf("chunk %d: %v", f.Chunk, f.Err)
	}
	return fmt.Sprintf("chunk %d request %d (%q): %v", f.Chunk, f.Position, f.Query, f.Err)
}

func (f QueryFailure) Unwrap() error {
	return f.Err
}

// Result is the aggregate of a run. Records are grouped by chunk in the
// order chunks finished; within a chunk they follow request order.
type Result struct {
	Records  []ranker.ResultRecord
	Failures []QueryFailure
	Chunks   int
	Queries  int
	Matched  int
}

type Scheduler struct {
	searcher Searcher
	opts     Options
	pool     *ants.Pool
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New creates a scheduler with its own pool of opts.MaxWorkers goroutines.
// Call Release when done. m may be nil.
func New(searcher Searcher, opts Options, m *metrics.Metrics) (*Scheduler, error) {
	if opts.ChunkSize == 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.MaxWorkers == 0 {
		opts.MaxWorkers = DefaultMaxWorkers
	}
	if opts.ChunkSize < 0 || opts.MaxWorkers < 0 {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, 400,
			"chunk size and worker count must be positive, got %d and %d", opts.ChunkSize, opts.MaxWorkers)
	}
	if opts.TopK <= 0 {
		return nil, fmt.Errorf("%w: got %d", apperrors.ErrInvalidTopK, opts.TopK)
	}
	pool, err := ants.NewPool(opts.MaxWorkers)
	if err != nil {
		return nil, fmt.Errorf("creating worker pool: %w", err)
	}
	return &Scheduler{
		searcher: searcher,
		opts:     opts,
		pool:     pool,
		metrics:  m,
		logger:   slog.Default().With("component", "batch-scheduler"),
	}, nil
}

func (s *Scheduler) Release() {
	s.pool.Release()
}

func (s *Scheduler) Options() Options {
	return s.opts
}

// Run matches queries with the configured top-K.
func (s *Scheduler) Run(ctx context.Context, snap *index.Snapshot, queries []string) (*Result, error) {
	return s.RunTopK(ctx, snap, queries, s.opts.TopK)
}

type chunkOutcome struct {
	chunk    int
	started  bool
	records  []ranker.ResultRecord
	failures []QueryFailure
	matched  int
}

// RunTopK splits queries into contiguous chunks and matches them on the pool.
// Failed requests are reported in Result.Failures without stopping the run.
// When ctx is cancelled, chunks that have not started are skipped and the
// partial result is returned with ctx's error.
func (s *Scheduler) RunTopK(ctx context.Context, snap *index.Snapshot, queries []string, topK int) (*Result, error) {
	if snap == nil {
		return nil, apperrors.ErrCatalogNotLoaded
	}
	if topK <= 0 {
		return nil, fmt.Errorf("%w: got %d", apperrors.ErrInvalidTopK, topK)
	}
	start := time.Now()
	chunks := split(queries, s.opts.ChunkSize)
	outcomes := make(chan chunkOutcome, len(chunks))

	result := &Result{Records: []ranker.ResultRecord{}, Queries: len(queries)}
	var submitErr error
	for i, chunk := range chunks {
		if ctx.Err() != nil {
			break
		}
		err := s.pool.Submit(func() {
			outcomes <- s.runChunk(ctx, snap, i, chunk, topK)
		})
		if err != nil {
			submitErr = fmt.Errorf("%w: submitting chunk %d: %v", apperrors.ErrWorkerFailure, i, err)
			break
		}
		result.Chunks++
	}

	var skipped int
	for n := 0; n < result.Chunks; n++ {
		out := <-outcomes
		if !out.started {
			skipped++
			continue
		}
		result.Records = append(result.Records, out.records...)
		result.Failures = append(result.Failures, out.failures...)
		result.Matched += out.matched
	}

	err := submitErr
	if err == nil {
		err = chunkFailure(result.Failures)
	}
	if err == nil && ctx.Err() != nil && (skipped > 0 || result.Chunks < len(chunks)) {
		err = ctx.Err()
	}
	s.observe(result, err, time.Since(start))

	s.logger.Info("batch finished",
		"queries", result.Queries,
		"chunks", result.Chunks,
		"skipped_chunks", skipped+len(chunks)-result.Chunks,
		"matched", result.Matched,
		"records", len(result.Records),
		"failures", len(result.Failures),
		"snapshot", snap.Version(),
		"duration", time.Since(start),
	)
	return result, err
}

func (s *Scheduler) runChunk(ctx context.Context, snap *index.Snapshot, chunk int, queries []string, topK int) (out chunkOutcome) {
	out.chunk = chunk
	if ctx.Err() != nil {
		return out
	}
	out.started = true
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("chunk panicked", "chunk", chunk, "panic", r, "stack", string(debug.Stack()))
			out.records = nil
			out.matched = 0
			out.failures = append(out.failures, QueryFailure{
				Chunk:    chunk,
				Position: -1,
				Err:      fmt.Errorf("%w: %v", apperrors.ErrWorkerFailure, r),
			})
		}
	}()

	for pos, query := range queries {
		records, err := s.matchOne(ctx, snap, query, topK)
		if err != nil {
			s.logger.Warn("request failed", "chunk", chunk, "position", pos, "query", query, "error", err)
			out.failures = append(out.failures, QueryFailure{Chunk: chunk, Position: pos, Query: query, Err: err})
			continue
		}
		if len(records) > 0 {
			out.matched++
		}
		out.records = append(out.records, records...)
	}
	return out
}

func (s *Scheduler) matchOne(ctx context.Context, snap *index.Snapshot, query string, topK int) (records []ranker.ResultRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			records = nil
			err = fmt.Errorf("%w: panic: %v", apperrors.ErrWorkerFailure, r)
		}
	}()
	return s.searcher.SearchIn(ctx, snap, query, topK)
}

func (s *Scheduler) observe(result *Result, err error, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}
	status := "success"
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = "cancelled"
	case err != nil:
		status = "error"
	case len(result.Failures) > 0:
		status = "partial"
	}
	s.metrics.BatchRunsTotal.WithLabelValues(status).Inc()
	s.metrics.BatchDuration.Observe(elapsed.Seconds())
	s.metrics.BatchChunksTotal.Add(float64(result.Chunks))
	s.metrics.BatchQueryFailures.Add(float64(len(result.Failures)))
}

func chunkFailure(failures []QueryFailure) error {
	var errs []error
	for _, f := range failures {
		if f.Position < 0 {
			errs = append(errs, f)
		}
	}
	return errors.Join(errs...)
}

func split(queries []string, size int) [][]string {
	chunks := make([][]string, 0, (len(queries)+size-1)/size)
	for start := 0; start < len(queries); start += size {
		end := min(start+size, len(queries))
		chunks = append(chunks, queries[start:end])
	}
	return chunks
}
