// Package export writes batch results out in fixed-size pages: to files, to
// Kafka, and as a run summary in PostgreSQL.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/reduct56/cookiefest-hackaton/internal/searcher/ranker"
	apperrors "github.com/reduct56/cookiefest-hackaton/pkg/errors"
	"github.com/reduct56/cookiefest-hackaton/pkg/metrics"
)

const DefaultPageSize = 10000

// Page is one block of result rows. Number is 1-based.
type Page struct {
	Number  int
	Total   int
	Records []ranker.ResultRecord
}

// Paginate splits records into consecutive pages of at most pageSize rows.
// An empty result still produces one empty page so that sinks can record a
// run with no matches.
func Paginate(records []ranker.ResultRecord, pageSize int) ([]Page, error) {
	if pageSize <= 0 {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, 400, "page size must be positive, got %d", pageSize)
	}
	total := max(1, (len(records)+pageSize-1)/pageSize)
	pages := make([]Page, 0, total)
	for n := 0; n < total; n++ {
		start := n * pageSize
		end := min(start+pageSize, len(records))
		pages = append(pages, Page{
			Number:  n + 1,
			Total:   total,
			Records: records[start:end],
		})
	}
	return pages, nil
}

// Sink receives the pages of one run in order.
type Sink interface {
	Name() string
	WritePage(ctx context.Context, runID string, page Page) error
	Close() error
}

// Exporter fans pages out to every configured sink.
type Exporter struct {
	sinks    []Sink
	pageSize int
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewExporter creates an exporter. m may be nil.
func NewExporter(pageSize int, m *metrics.Metrics, sinks ...Sink) *Exporter {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Exporter{
		sinks:    sinks,
		pageSize: pageSize,
		metrics:  m,
		logger:   slog.Default().With("component", "exporter"),
	}
}

// Export writes records to all sinks and returns the number of pages every
// sink received. A sink that fails stops receiving pages; the others
// continue. Cancelling ctx stops the export; the error then carries both
// ctx's error and the sink failures seen so far.
func (e *Exporter) Export(ctx context.Context, runID string, records []ranker.ResultRecord) (int, error) {
	pages, err := Paginate(records, e.pageSize)
	if err != nil {
		return 0, err
	}
	start := time.Now()
	received := make([]int, len(e.sinks))
	var errs []error
sinks:
	for i, sink := range e.sinks {
		for _, page := range pages {
			if err := ctx.Err(); err != nil {
				errs = append(errs, fmt.Errorf("%s sink, page %d/%d: %w", sink.Name(), page.Number, page.Total, err))
				break sinks
			}
			err := sink.WritePage(ctx, runID, page)
			e.observe(sink.Name(), err)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s sink, page %d/%d: %w", sink.Name(), page.Number, page.Total, err))
				break
			}
			received[i]++
		}
	}
	written := len(pages)
	for _, n := range received {
		written = min(written, n)
	}
	e.logger.Info("results exported",
		"run_id", runID,
		"records", len(records),
		"pages", len(pages),
		"pages_written", written,
		"sinks", len(e.sinks),
		"duration", time.Since(start),
	)
	return written, errors.Join(errs...)
}

// Close closes every sink.
func (e *Exporter) Close() error {
	var errs []error
	for _, sink := range e.sinks {
		if err := sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s sink: %w", sink.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (e *Exporter) observe(sink string, err error) {
	if e.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	e.metrics.ExportPagesTotal.WithLabelValues(sink, status).Inc()
}
