package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reduct56/cookiefest-hackaton/internal/catalog"
	"github.com/reduct56/cookiefest-hackaton/internal/indexer/index"
	"github.com/reduct56/cookiefest-hackaton/internal/indexer/vectorspace"
	"github.com/reduct56/cookiefest-hackaton/internal/searcher/executor"
	"github.com/reduct56/cookiefest-hackaton/internal/searcher/ranker"
	apperrors "github.com/reduct56/cookiefest-hackaton/pkg/errors"
	"github.com/reduct56/cookiefest-hackaton/pkg/metrics"
)

// echoSearcher returns one record per request carrying the request text.
type echoSearcher struct {
	calls atomic.Int32
}

func (s *echoSearcher) SearchIn(_ context.Context, _ *index.Snapshot, query string, _ int) ([]ranker.ResultRecord, error) {
	s.calls.Add(1)
	switch {
	case strings.HasPrefix(query, "panic"):
		panic("bad request " + query)
	case strings.HasPrefix(query, "fail"):
		return nil, errors.New("boom")
	case strings.HasPrefix(query, "none"):
		return []ranker.ResultRecord{}, nil
	}
	return []ranker.ResultRecord{{Query: query, Code: query}}, nil
}

func testSnapshot(t *testing.T) *index.Snapshot {
	t.Helper()
	snap, err := index.Build([]catalog.Entry{
		{Name: "red widget", Code: "A1"},
		{Name: "blue widget", Code: "B2"},
		{Name: "red gadget", Code: "C3"},
		{Name: "steel bolt", Code: "D4"},
	}, vectorspace.Options{}, 1)
	require.NoError(t, err)
	return snap
}

func newScheduler(t *testing.T, s Searcher, opts Options, m *metrics.Metrics) *Scheduler {
	t.Helper()
	sched, err := New(s, opts, m)
	require.NoError(t, err)
	t.Cleanup(sched.Release)
	return sched
}

func queries(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("q%03d", i)
	}
	return out
}

func TestRunCoversEveryQueryOnce(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	searcher := &echoSearcher{}
	sched := newScheduler(t, searcher, Options{ChunkSize: 100, MaxWorkers: 4, TopK: 5}, m)

	qs := queries(250)
	res, err := sched.Run(context.Background(), testSnapshot(t), qs)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Chunks)
	assert.Equal(t, 250, res.Queries)
	assert.Equal(t, 250, res.Matched)
	assert.Empty(t, res.Failures)
	require.Len(t, res.Records, 250)

	seen := make(map[string]int)
	for _, r := range res.Records {
		seen[r.Query]++
	}
	for _, q := range qs {
		assert.Equal(t, 1, seen[q], q)
	}
	assert.Equal(t, int32(250), searcher.calls.Load())

	assert.Equal(t, 1.0, testutil.ToFloat64(m.BatchRunsTotal.WithLabelValues("success")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.BatchChunksTotal))
}

func TestRunKeepsOrderWithinChunk(t *testing.T) {
	sched := newScheduler(t, &echoSearcher{}, Options{ChunkSize: 10, MaxWorkers: 3, TopK: 1}, nil)
	res, err := sched.Run(context.Background(), testSnapshot(t), queries(95))
	require.NoError(t, err)
	require.Len(t, res.Records, 95)

	// Each chunk's records form a contiguous, ordered run of the input.
	for start := 0; start < len(res.Records); {
		first := res.Records[start].Query
		var idx int
		_, err := fmt.Sscanf(first, "q%d", &idx)
		require.NoError(t, err)
		require.Zero(t, idx%10, "chunk starts at a chunk boundary")
		size := min(10, 95-idx)
		for j := 0; j < size; j++ {
			assert.Equal(t, fmt.Sprintf("q%03d", idx+j), res.Records[start+j].Query)
		}
		start += size
	}
}

func TestRunIsolatesFailures(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	sched := newScheduler(t, &echoSearcher{}, Options{ChunkSize: 2, MaxWorkers: 2, TopK: 1}, m)

	qs := []string{"a", "fail-1", "panic-1", "b", "none", "c"}
	res, err := sched.Run(context.Background(), testSnapshot(t), qs)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Chunks)
	assert.Equal(t, 3, res.Matched)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, []string{res.Records[0].Query, res.Records[1].Query, res.Records[2].Query})
	require.Len(t, res.Failures, 2)

	byQuery := make(map[string]QueryFailure)
	for _, f := range res.Failures {
		byQuery[f.Query] = f
	}
	assert.Equal(t, 0, byQuery["fail-1"].Chunk)
	assert.Equal(t, 1, byQuery["fail-1"].Position)
	assert.Equal(t, 1, byQuery["panic-1"].Chunk)
	assert.Equal(t, 0, byQuery["panic-1"].Position)
	assert.True(t, errors.Is(byQuery["panic-1"], apperrors.ErrWorkerFailure))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.BatchRunsTotal.WithLabelValues("partial")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BatchQueryFailures))
}

func TestRunEmptyAggregate(t *testing.T) {
	sched := newScheduler(t, &echoSearcher{}, Options{ChunkSize: 2, MaxWorkers: 2, TopK: 1}, nil)

	res, err := sched.Run(context.Background(), testSnapshot(t), []string{"none-1", "none-2", "none-3"})
	require.NoError(t, err)
	assert.NotNil(t, res.Records)
	assert.Empty(t, res.Records)
	assert.Zero(t, res.Matched)

	res, err = sched.Run(context.Background(), testSnapshot(t), nil)
	require.NoError(t, err)
	assert.Zero(t, res.Chunks)
	assert.Empty(t, res.Records)
}

func TestRunMatchesSingleRequests(t *testing.T) {
	snap := testSnapshot(t)
	exec := executor.New(nil, nil, nil)
	sched := newScheduler(t, exec, Options{ChunkSize: 1, MaxWorkers: 4, TopK: 2}, nil)

	qs := []string{"red widget", "blue", "steel", "purple", "gadget red"}
	res, err := sched.Run(context.Background(), snap, qs)
	require.NoError(t, err)

	got := make(map[string][]ranker.ResultRecord)
	for _, r := range res.Records {
		got[r.Query] = append(got[r.Query], r)
	}
	for _, q := range qs {
		want, err := executor.Match(snap, q, 2)
		require.NoError(t, err)
		if len(want) == 0 {
			assert.Empty(t, got[q], q)
			continue
		}
		assert.Equal(t, want, got[q], q)
	}
	assert.Equal(t, 4, res.Matched)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	searcher := &echoSearcher{}
	sched := newScheduler(t, searcher, Options{ChunkSize: 10, MaxWorkers: 2, TopK: 1}, nil)

	res, err := sched.Run(ctx, testSnapshot(t), queries(50))
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Empty(t, res.Records)
	assert.Zero(t, searcher.calls.Load())
}

// blockingSearcher holds every call until released so cancellation can land
// while the first chunks are running.
type blockingSearcher struct {
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func (s *blockingSearcher) SearchIn(_ context.Context, _ *index.Snapshot, query string, _ int) ([]ranker.ResultRecord, error) {
	s.once.Do(func() { close(s.started) })
	<-s.release
	return []ranker.ResultRecord{{Query: query}}, nil
}

func TestRunCancelledMidway(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	searcher := &blockingSearcher{started: make(chan struct{}), release: make(chan struct{})}
	sched := newScheduler(t, searcher, Options{ChunkSize: 1, MaxWorkers: 1, TopK: 1}, nil)

	go func() {
		<-searcher.started
		cancel()
		close(searcher.release)
	}()
	res, err := sched.Run(ctx, testSnapshot(t), queries(20))
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.GreaterOrEqual(t, len(res.Records), 1, "the running chunk completes")
	assert.Less(t, len(res.Records), 20)
}

func TestNewValidates(t *testing.T) {
	_, err := New(&echoSearcher{}, Options{TopK: 0}, nil)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidTopK))

	_, err = New(&echoSearcher{}, Options{ChunkSize: -1, TopK: 1}, nil)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))

	sched := newScheduler(t, &echoSearcher{}, Options{TopK: 3}, nil)
	assert.Equal(t, DefaultChunkSize, sched.Options().ChunkSize)
	assert.Equal(t, DefaultMaxWorkers, sched.Options().MaxWorkers)

	_, err = sched.Run(context.Background(), nil, []string{"x"})
	assert.True(t, errors.Is(err, apperrors.ErrCatalogNotLoaded))
	_, err = sched.RunTopK(context.Background(), testSnapshot(t), []string{"x"}, 0)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidTopK))
}

func TestSplit(t *testing.T) {
	assert.Len(t, split(queries(250), 100), 3)
	assert.Len(t, split(queries(200), 100), 2)
	assert.Empty(t, split(nil, 100))
	last := split(queries(250), 100)[2]
	assert.Len(t, last, 50)
}
