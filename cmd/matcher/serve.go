package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/reduct56/cookiefest-hackaton/internal/catalog"
	"github.com/reduct56/cookiefest-hackaton/internal/indexer"
	"github.com/reduct56/cookiefest-hackaton/internal/searcher/batch"
	"github.com/reduct56/cookiefest-hackaton/internal/searcher/executor"
	"github.com/reduct56/cookiefest-hackaton/internal/searcher/handler"
	"github.com/reduct56/cookiefest-hackaton/pkg/health"
	"github.com/reduct56/cookiefest-hackaton/pkg/metrics"
	"github.com/reduct56/cookiefest-hackaton/pkg/middleware"
)

var (
	serveCatalogPath   string
	serveCatalogFromDB bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the matching HTTP API",
	Long: `Serve single and batch matching over HTTP.

The catalog is loaded at start from --catalog or, with --catalog-from-db,
from PostgreSQL; the database source is also used by
POST /api/v1/catalog/reload. Without either the service starts empty and
waits for PUT /api/v1/catalog.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveCatalogPath, "catalog", "", "catalog file to load at start")
	serveCmd.Flags().BoolVar(&serveCatalogFromDB, "catalog-from-db", false, "load and reload the catalog from PostgreSQL")
	serveCmd.MarkFlagsMutuallyExclusive("catalog", "catalog-from-db")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("starting matcher service",
		"port", cfg.Server.Port,
		"top_n", cfg.Matcher.TopN,
		"workers", cfg.Matcher.MaxWorkers,
	)
	m := metrics.New(nil)
	engine := newEngine(cfg, m)
	checker := health.NewChecker()

	var source handler.Source
	if serveCatalogFromDB {
		db, err := openPostgres(ctx, cfg.Postgres)
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		defer db.Close()
		source = dbSource(catalog.NewStore(db))
		checker.Register("postgres", health.Ping(false, db.Ping))
	} else if serveCatalogPath != "" {
		path := serveCatalogPath
		source = func(context.Context) ([]catalog.Entry, error) {
			return catalog.LoadFile(path)
		}
	}
	if source != nil {
		entries, err := source(ctx)
		if err != nil {
			return fmt.Errorf("loading catalog: %w", err)
		}
		if _, err := engine.Load(entries); err != nil {
			return fmt.Errorf("indexing catalog: %w", err)
		}
	}
	checker.Register("catalog", catalogCheck(engine))

	var (
		resultCache executor.ResultCache
		cacheAdmin  handler.CacheAdmin
	)
	if rc, client := openCache(ctx, cfg.Redis, m); rc != nil {
		defer client.Close()
		resultCache, cacheAdmin = rc, rc
		checker.Register("redis", health.Ping(true, client.Ping))
	}

	exec := executor.New(engine, resultCache, m)
	sched, err := batch.New(exec, batch.Options{
		ChunkSize:  cfg.Matcher.ChunkSize,
		MaxWorkers: cfg.Matcher.MaxWorkers,
		TopK:       cfg.Matcher.TopN,
	}, m)
	if err != nil {
		return err
	}
	defer sched.Release()

	h := handler.New(exec, sched, engine, source, cacheAdmin, handler.Options{
		DefaultTopN:     cfg.Matcher.TopN,
		MaxBatchQueries: cfg.Server.MaxBatchQueries,
	})
	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("matcher service listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	var shutdownMetrics func(context.Context) error
	if cfg.Metrics.Enabled {
		shutdownMetrics = metrics.StartServer(cfg.Metrics.Port, prometheus.DefaultGatherer)
	}
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if shutdownMetrics != nil {
			if err := shutdownMetrics(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}
		return server.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("matcher service stopped")
	return nil
}

func catalogCheck(engine *indexer.Engine) health.Check {
	return func(ctx context.Context) health.ComponentHealth {
		snap, err := engine.Current()
		if err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		stats := snap.Stats()
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("version %d, %d entries, %d terms", stats.Version, stats.Entries, stats.VocabularySize),
		}
	}
}
