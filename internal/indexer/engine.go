// Package indexer owns the active catalog snapshot. Loading a catalog
// builds a complete new snapshot and publishes it atomically; readers always
// see either the old or the new snapshot, never a partial one.
package indexer

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/reduct56/cookiefest-hackaton/internal/catalog"
	"github.com/reduct56/cookiefest-hackaton/internal/indexer/index"
	"github.com/reduct56/cookiefest-hackaton/internal/indexer/tokenizer"
	"github.com/reduct56/cookiefest-hackaton/internal/indexer/vectorspace"
	apperrors "github.com/reduct56/cookiefest-hackaton/pkg/errors"
	"github.com/reduct56/cookiefest-hackaton/pkg/metrics"
)

type Options struct {
	MaxVocabSize int
	StopWords    tokenizer.Language
}

type Engine struct {
	current atomic.Pointer[index.Snapshot]
	loadMu  sync.Mutex
	version uint64
	opts    vectorspace.Options
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewEngine(opts Options, m *metrics.Metrics) *Engine {
	return &Engine{
		opts: vectorspace.Options{
			MaxVocabSize: opts.MaxVocabSize,
			Normalizer:   tokenizer.New(opts.StopWords),
		},
		metrics: m,
		logger:  slog.Default().With("component", "indexer"),
	}
}

// Load builds a snapshot over entries and makes it current. On failure the
// previously loaded snapshot stays active.
func (e *Engine) Load(entries []catalog.Entry) (*index.Snapshot, error) {
	e.loadMu.Lock()
	defer e.loadMu.Unlock()

	start := time.Now()
	snap, err := index.Build(entries, e.opts, e.version+1)
	if err != nil {
		e.logger.Error("catalog index build failed", "entries", len(entries), "error", err)
		if e.metrics != nil {
			e.metrics.CatalogLoadsTotal.WithLabelValues("error").Inc()
		}
		return nil, fmt.Errorf("building catalog index: %w", err)
	}
	e.version++
	e.current.Store(snap)

	stats := snap.Stats()
	if e.metrics != nil {
		e.metrics.CatalogLoadsTotal.WithLabelValues("ok").Inc()
		e.metrics.CatalogEntries.Set(float64(stats.Entries))
		e.metrics.VocabularySize.Set(float64(stats.VocabularySize))
		e.metrics.CatalogVersion.Set(float64(stats.Version))
	}
	e.logger.Info("catalog index built",
		"version", stats.Version,
		"fingerprint", stats.Fingerprint,
		"entries", stats.Entries,
		"vocabulary", stats.VocabularySize,
		"empty_entries", stats.EmptyEntries,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return snap, nil
}

// Current returns the active snapshot.
func (e *Engine) Current() (*index.Snapshot, error) {
	snap := e.current.Load()
	if snap == nil {
		return nil, apperrors.ErrCatalogNotLoaded
	}
	return snap, nil
}

func (e *Engine) Loaded() bool {
	return e.current.Load() != nil
}
