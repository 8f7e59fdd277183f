// Package handler exposes matching, batch runs and catalog management over
// HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/reduct56/cookiefest-hackaton/internal/catalog"
	"github.com/reduct56/cookiefest-hackaton/internal/indexer/index"
	"github.com/reduct56/cookiefest-hackaton/internal/searcher/batch"
	"github.com/reduct56/cookiefest-hackaton/internal/searcher/ranker"
	apperrors "github.com/reduct56/cookiefest-hackaton/pkg/errors"
	"github.com/reduct56/cookiefest-hackaton/pkg/logger"
)

const maxBodyBytes = 64 << 20

type Matcher interface {
	SearchIn(ctx context.Context, snap *index.Snapshot, query string, topK int) ([]ranker.ResultRecord, error)
}

type BatchRunner interface {
	RunTopK(ctx context.Context, snap *index.Snapshot, queries []string, topK int) (*batch.Result, error)
}

// Catalog holds the active snapshot and replaces it on load.
type Catalog interface {
	Current() (*index.Snapshot, error)
	Load(entries []catalog.Entry) (*index.Snapshot, error)
}

// Source fetches a fresh catalog, e.g. from the database.
type Source func(ctx context.Context) ([]catalog.Entry, error)

type CacheAdmin interface {
	Stats() (hits, misses int64)
	Invalidate(ctx context.Context) error
}

type Options struct {
	DefaultTopN     int
	MaxBatchQueries int
}

type Handler struct {
	matcher Matcher
	batches BatchRunner
	catalog Catalog
	source  Source
	cache   CacheAdmin
	opts    Options
	logger  *slog.Logger
}

// New creates a Handler. source and cache may be nil.
func New(m Matcher, b BatchRunner, c Catalog, source Source, cache CacheAdmin, opts Options) *Handler {
	if opts.DefaultTopN <= 0 {
		opts.DefaultTopN = 5
	}
	return &Handler{
		matcher: m,
		batches: b,
		catalog: c,
		source:  source,
		cache:   cache,
		opts:    opts,
		logger:  slog.Default().With("component", "match-handler"),
	}
}

// Register mounts every route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/match", h.Match)
	mux.HandleFunc("POST /api/v1/match/batch", h.Batch)
	mux.HandleFunc("GET /api/v1/catalog", h.CatalogStats)
	mux.HandleFunc("PUT /api/v1/catalog", h.CatalogReplace)
	mux.HandleFunc("POST /api/v1/catalog/reload", h.CatalogReload)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

type matchResponse struct {
	Query    string                `json:"query"`
	Results  []ranker.ResultRecord `json:"results"`
	Count    int                   `json:"count"`
	Snapshot uint64                `json:"snapshot_version"`
}

// Match handles GET /api/v1/match?q=...&limit=N.
func (h *Handler) Match(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	params := r.URL.Query()

	if !params.Has("q") {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	query := params.Get("q")
	topN, err := h.parseTopN(params.Get("limit"))
	if err != nil {
		h.writeAppError(ctx, w, err)
		return
	}
	snap, err := h.catalog.Current()
	if err != nil {
		h.writeAppError(ctx, w, err)
		return
	}
	records, err := h.matcher.SearchIn(ctx, snap, query, topN)
	if err != nil {
		h.writeAppError(ctx, w, err)
		return
	}
	logger.FromContext(ctx).Info("match completed",
		"query", query,
		"returned", len(records),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	h.writeJSON(w, http.StatusOK, matchResponse{
		Query:    query,
		Results:  records,
		Count:    len(records),
		Snapshot: snap.Version(),
	})
}

type batchRequest struct {
	Queries []string `json:"queries"`
	TopN    *int     `json:"top_n,omitempty"`
}

type batchFailure struct {
	Chunk    int    `json:"chunk"`
	Position int    `json:"position"`
	Query    string `json:"query"`
	Error    string `json:"error"`
}

type batchResponse struct {
	Results  []ranker.ResultRecord `json:"results"`
	Failures []batchFailure        `json:"failures"`
	Queries  int                   `json:"queries"`
	Matched  int                   `json:"matched"`
	Chunks   int                   `json:"chunks"`
	Snapshot uint64                `json:"snapshot_version"`
	Message  string                `json:"message,omitempty"`
}

// Batch handles POST /api/v1/match/batch.
func (h *Handler) Batch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req batchRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if h.opts.MaxBatchQueries > 0 && len(req.Queries) > h.opts.MaxBatchQueries {
		h.writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("batch has %d requests, limit is %d", len(req.Queries), h.opts.MaxBatchQueries))
		return
	}
	topN := h.opts.DefaultTopN
	if req.TopN != nil {
		if *req.TopN <= 0 {
			h.writeAppError(ctx, w, fmt.Errorf("%w: got %d", apperrors.ErrInvalidTopK, *req.TopN))
			return
		}
		topN = *req.TopN
	}
	snap, err := h.catalog.Current()
	if err != nil {
		h.writeAppError(ctx, w, err)
		return
	}
	res, err := h.batches.RunTopK(ctx, snap, req.Queries, topN)
	if err != nil && !partial(res, err) {
		h.writeAppError(ctx, w, err)
		return
	}
	if err != nil {
		logger.FromContext(ctx).Warn("batch finished with failed chunks", "error", err)
	}

	resp := batchResponse{
		Results:  res.Records,
		Failures: make([]batchFailure, 0, len(res.Failures)),
		Queries:  res.Queries,
		Matched:  res.Matched,
		Chunks:   res.Chunks,
		Snapshot: snap.Version(),
	}
	for _, f := range res.Failures {
		resp.Failures = append(resp.Failures, batchFailure{
			Chunk:    f.Chunk,
			Position: f.Position,
			Query:    f.Query,
			Error:    f.Err.Error(),
		})
	}
	if len(res.Records) == 0 {
		resp.Message = "no matches found"
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// partial reports whether a failed batch still carries results worth
// returning: every error in err is a reported QueryFailure.
func partial(res *batch.Result, err error) bool {
	if res == nil {
		return false
	}
	var qf batch.QueryFailure
	if !errors.As(err, &qf) {
		return false
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			if !errors.As(e, &qf) {
				return false
			}
		}
	}
	return true
}

// CatalogStats handles GET /api/v1/catalog.
func (h *Handler) CatalogStats(w http.ResponseWriter, r *http.Request) {
	snap, err := h.catalog.Current()
	if err != nil {
		h.writeAppError(r.Context(), w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, snap.Stats())
}

// CatalogReplace handles PUT /api/v1/catalog with a JSON array of rows.
func (h *Handler) CatalogReplace(w http.ResponseWriter, r *http.Request) {
	var rows []catalog.Row
	if err := decodeBody(w, r, &rows); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	entries, err := catalog.ParseRows(rows)
	if err != nil {
		h.writeAppError(r.Context(), w, err)
		return
	}
	h.load(w, r, entries)
}

// CatalogReload handles POST /api/v1/catalog/reload by re-reading the
// configured source.
func (h *Handler) CatalogReload(w http.ResponseWriter, r *http.Request) {
	if h.source == nil {
		h.writeError(w, http.StatusNotImplemented, "no catalog source configured")
		return
	}
	entries, err := h.source(r.Context())
	if err != nil {
		h.writeAppError(r.Context(), w, err)
		return
	}
	h.load(w, r, entries)
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request, entries []catalog.Entry) {
	snap, err := h.catalog.Load(entries)
	if err != nil {
		h.writeAppError(r.Context(), w, err)
		return
	}
	logger.FromContext(r.Context()).Info("catalog replaced", "version", snap.Version(), "entries", snap.Len())
	h.writeJSON(w, http.StatusOK, snap.Stats())
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) parseTopN(raw string) (int, error) {
	if raw == "" {
		return h.opts.DefaultTopN, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: got %q", apperrors.ErrInvalidTopK, raw)
	}
	return n, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func (h *Handler) writeAppError(ctx context.Context, w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	message := err.Error()
	if status >= http.StatusInternalServerError && !errors.Is(err, apperrors.ErrCatalogNotLoaded) {
		logger.FromContext(ctx).Error("request failed", "error", err)
		message = "internal error"
	}
	h.writeError(w, status, message)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
