package export

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reduct56/cookiefest-hackaton/internal/searcher/ranker"
	apperrors "github.com/reduct56/cookiefest-hackaton/pkg/errors"
	"github.com/reduct56/cookiefest-hackaton/pkg/kafka"
	"github.com/reduct56/cookiefest-hackaton/pkg/metrics"
)

func records(n int) []ranker.ResultRecord {
	out := make([]ranker.ResultRecord, n)
	for i := range out {
		out[i] = ranker.ResultRecord{
			Query: fmt.Sprintf("q%d", i),
			Label: fmt.Sprintf("item %d (C%d)", i, i),
			Code:  fmt.Sprintf("C%d", i),
			Score: 0.5,
		}
	}
	return out
}

func TestPaginate(t *testing.T) {
	tests := []struct {
		name  string
		n     int
		size  int
		sizes []int
	}{
		{"exact multiple", 20, 10, []int{10, 10}},
		{"remainder", 25, 10, []int{10, 10, 5}},
		{"single page", 3, 10, []int{3}},
		{"empty", 0, 10, []int{0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pages, err := Paginate(records(tt.n), tt.size)
			require.NoError(t, err)
			require.Len(t, pages, len(tt.sizes))
			next := 0
			for i, p := range pages {
				assert.Equal(t, i+1, p.Number)
				assert.Equal(t, len(tt.sizes), p.Total)
				require.Len(t, p.Records, tt.sizes[i])
				for _, r := range p.Records {
					assert.Equal(t, fmt.Sprintf("q%d", next), r.Query)
					next++
				}
			}
			assert.Equal(t, tt.n, next)
		})
	}

	_, err := Paginate(records(1), 0)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
}

func TestPagePath(t *testing.T) {
	assert.Equal(t, "out.csv", PagePath("out.csv", Page{Number: 1, Total: 1}))
	assert.Equal(t, "dir/out_page2.csv", PagePath("dir/out.csv", Page{Number: 2, Total: 3}))
	assert.Equal(t, "out_page1", PagePath("out", Page{Number: 1, Total: 2}))
}

func TestFileSinkCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.csv")
	exp := NewExporter(2, nil, NewFileSink(path))

	pages, err := exp.Export(context.Background(), "run-1", records(3))
	require.NoError(t, err)
	assert.Equal(t, 2, pages)

	f, err := os.Open(filepath.Join(filepath.Dir(path), "result_page2.csv"))
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, ranker.Columns, rows[0])
	assert.Equal(t, "q2", rows[1][0])
	assert.Equal(t, "item 2 (C2)", rows[1][1])
}

func TestFileSinkJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.jsonl")
	exp := NewExporter(10, nil, NewFileSink(path))

	_, err := exp.Export(context.Background(), "run-1", records(3))
	require.NoError(t, err)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	var got []ranker.ResultRecord
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r ranker.ResultRecord
		require.NoError(t, json.Unmarshal(sc.Bytes(), &r))
		got = append(got, r)
	}
	require.NoError(t, sc.Err())
	assert.Equal(t, records(3), got)
}

type fakePublisher struct {
	events []kafka.Event
	fails  int
	closed bool
}

func (p *fakePublisher) PublishBatch(_ context.Context, events []kafka.Event) error {
	if p.fails > 0 {
		p.fails--
		return errors.New("leader not available")
	}
	p.events = append(p.events, events...)
	return nil
}

func (p *fakePublisher) Close() error {
	p.closed = true
	return nil
}

func TestKafkaSinkPublishesPages(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	pub := &fakePublisher{fails: 1}
	sink := NewKafkaSink(pub)
	sink.retry.InitialDelay = 1
	exp := NewExporter(4, m, sink)

	pages, err := exp.Export(context.Background(), "run-7", records(10))
	require.NoError(t, err)
	assert.Equal(t, 3, pages)
	require.Len(t, pub.events, 3)

	for i, ev := range pub.events {
		assert.Equal(t, "run-7", ev.Key)
		msg, ok := ev.Value.(PageMessage)
		require.True(t, ok)
		assert.Equal(t, i+1, msg.Page)
		assert.Equal(t, 3, msg.Pages)
		assert.Equal(t, ranker.Columns, msg.Columns)
	}
	assert.Len(t, pub.events[2].Value.(PageMessage).Records, 2)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ExportPagesTotal.WithLabelValues("kafka", "ok")))

	require.NoError(t, exp.Close())
	assert.True(t, pub.closed)
}

func TestExportSinkFailureDoesNotStopOthers(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	broken := NewKafkaSink(&fakePublisher{fails: 100})
	broken.retry.MaxAttempts = 2
	broken.retry.InitialDelay = 1
	good := &fakePublisher{}
	exp := NewExporter(2, m, broken, NewKafkaSink(good))

	_, err := exp.Export(context.Background(), "run-1", records(5))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "page 1/3")
	assert.Len(t, good.events, 3)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExportPagesTotal.WithLabelValues("kafka", "error")))
}

type cancellingSink struct {
	cancel context.CancelFunc
	pages  int
}

func (s *cancellingSink) Name() string { return "cancelling" }
func (s *cancellingSink) Close() error { return nil }

func (s *cancellingSink) WritePage(context.Context, string, Page) error {
	s.pages++
	s.cancel()
	return nil
}

func TestExportCancelledKeepsEarlierErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	broken := NewKafkaSink(&fakePublisher{fails: 100})
	broken.retry.MaxAttempts = 1
	stopper := &cancellingSink{cancel: cancel}
	exp := NewExporter(2, nil, broken, stopper)

	pages, err := exp.Export(ctx, "run-1", records(5))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "kafka sink, page 1/3")
	assert.Equal(t, 1, stopper.pages)
	assert.Equal(t, 0, pages)
}
