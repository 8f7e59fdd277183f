package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/reduct56/cookiefest-hackaton/internal/catalog"
	"github.com/reduct56/cookiefest-hackaton/internal/export"
	"github.com/reduct56/cookiefest-hackaton/internal/searcher/batch"
	"github.com/reduct56/cookiefest-hackaton/internal/searcher/executor"
	"github.com/reduct56/cookiefest-hackaton/pkg/config"
	apperrors "github.com/reduct56/cookiefest-hackaton/pkg/errors"
	"github.com/reduct56/cookiefest-hackaton/pkg/kafka"
	"github.com/reduct56/cookiefest-hackaton/pkg/postgres"
)

type matchOptions struct {
	catalogPath   string
	catalogFromDB bool
	queriesPath   string
	outPath       string
	publish       bool
	record        bool
	topN          int
}

var matchOpts matchOptions

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Match a file of requests against the catalog",
	Long: `Match every request in a file against the catalog and write the best
candidates for each.

Catalog and request files are YAML or JSON arrays of rows; a .txt request
file holds one request per line. Results go to --out (.csv for the tabular
layout, anything else for JSON lines) or to stdout as CSV, split into pages
of export.pageSize rows.

Examples:
  matcher match --catalog catalog.json --queries requests.txt
  matcher match --catalog-from-db --queries requests.yaml --out result.csv --top-n 3
  matcher match --catalog catalog.yaml --queries requests.txt --publish --record`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("top-n") {
			if matchOpts.topN <= 0 {
				return fmt.Errorf("%w: got %d", apperrors.ErrInvalidTopK, matchOpts.topN)
			}
		} else {
			matchOpts.topN = cfg.Matcher.TopN
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		_, err := runMatch(ctx, cfg, matchOpts, cmd.OutOrStdout())
		return err
	},
}

func init() {
	f := matchCmd.Flags()
	f.StringVar(&matchOpts.catalogPath, "catalog", "", "catalog file (YAML or JSON rows)")
	f.BoolVar(&matchOpts.catalogFromDB, "catalog-from-db", false, "read the catalog from PostgreSQL")
	f.StringVarP(&matchOpts.queriesPath, "queries", "q", "", "request file (.txt lines, or YAML/JSON rows)")
	f.StringVarP(&matchOpts.outPath, "out", "o", "", "output file; stdout when empty")
	f.BoolVar(&matchOpts.publish, "publish", false, "publish result pages to Kafka")
	f.BoolVar(&matchOpts.record, "record", false, "record the run summary in PostgreSQL")
	f.IntVarP(&matchOpts.topN, "top-n", "n", 5, "candidates per request")
	matchCmd.MarkFlagsMutuallyExclusive("catalog", "catalog-from-db")
	matchCmd.MarkFlagsOneRequired("catalog", "catalog-from-db")
	_ = matchCmd.MarkFlagRequired("queries")
}

func runMatch(ctx context.Context, c *config.Config, opts matchOptions, stdout io.Writer) (*export.RunSummary, error) {
	if opts.topN <= 0 {
		return nil, fmt.Errorf("%w: got %d", apperrors.ErrInvalidTopK, opts.topN)
	}
	log := slog.Default().With("component", "match-run")
	run := &export.RunSummary{RunID: uuid.New().String(), StartedAt: time.Now().UTC()}

	var db *postgres.Client
	if opts.catalogFromDB || opts.record {
		var err error
		if db, err = openPostgres(ctx, c.Postgres); err != nil {
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		defer db.Close()
	}

	var (
		entries []catalog.Entry
		queries []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if opts.catalogFromDB {
			entries, err = dbSource(catalog.NewStore(db))(gctx)
		} else {
			entries, err = catalog.LoadFile(opts.catalogPath)
		}
		if err != nil {
			return fmt.Errorf("loading catalog: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if queries, err = catalog.LoadQueriesFile(opts.queriesPath); err != nil {
			return fmt.Errorf("loading requests: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	engine := newEngine(c, nil)
	snap, err := engine.Load(entries)
	if err != nil {
		return nil, fmt.Errorf("indexing catalog: %w", err)
	}

	var resultCache executor.ResultCache
	if rc, client := openCache(ctx, c.Redis, nil); rc != nil {
		defer client.Close()
		resultCache = rc
	}
	sched, err := batch.New(executor.New(engine, resultCache, nil), batch.Options{
		ChunkSize:  c.Matcher.ChunkSize,
		MaxWorkers: c.Matcher.MaxWorkers,
		TopK:       opts.topN,
	}, nil)
	if err != nil {
		return nil, err
	}
	defer sched.Release()

	res, runErr := sched.Run(ctx, snap, queries)
	if res == nil {
		return nil, runErr
	}
	if len(res.Records) == 0 {
		log.Warn("no matches found", "queries", res.Queries)
	}

	var sinks []export.Sink
	if opts.outPath != "" {
		sinks = append(sinks, export.NewFileSink(opts.outPath))
	} else {
		sinks = append(sinks, &writerSink{w: stdout})
	}
	if opts.publish {
		sinks = append(sinks, export.NewKafkaSink(kafka.NewProducer(c.Kafka, c.Kafka.Topics.MatchResults)))
	}
	// An interrupted run still writes and records what it matched.
	outCtx := ctx
	if ctx.Err() != nil {
		log.Warn("run interrupted, writing partial results", "records", len(res.Records), "error", runErr)
		var cancel context.CancelFunc
		outCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), c.Server.ShutdownTimeout)
		defer cancel()
	}
	exporter := export.NewExporter(c.Export.PageSize, nil, sinks...)
	pages, exportErr := exporter.Export(outCtx, run.RunID, res.Records)
	if err := exporter.Close(); err != nil {
		log.Warn("closing exporters", "error", err)
	}

	run.SnapshotVersion = snap.Version()
	run.Queries = res.Queries
	run.Matched = res.Matched
	run.Records = len(res.Records)
	run.Chunks = res.Chunks
	run.Pages = pages
	run.FinishedAt = time.Now().UTC()
	for _, f := range res.Failures {
		run.Failures = append(run.Failures, export.RunFailure{
			Chunk: f.Chunk, Position: f.Position, Query: f.Query, Error: f.Err.Error(),
		})
	}
	if opts.record {
		if err := export.NewRunStore(db).SaveRun(outCtx, *run); err != nil {
			exportErr = errors.Join(exportErr, fmt.Errorf("recording run: %w", err))
		}
	}

	log.Info("run complete",
		"run_id", run.RunID,
		"queries", run.Queries,
		"matched", run.Matched,
		"records", run.Records,
		"failures", len(run.Failures),
		"pages", run.Pages,
		"duration", run.FinishedAt.Sub(run.StartedAt),
	)
	return run, errors.Join(runErr, exportErr)
}

// writerSink prints every page as CSV to one stream, with a header per page.
type writerSink struct {
	w io.Writer
}

func (s *writerSink) Name() string { return "stdout" }

func (s *writerSink) Close() error { return nil }

func (s *writerSink) WritePage(_ context.Context, _ string, page export.Page) error {
	return export.WriteCSV(s.w, page.Records)
}
