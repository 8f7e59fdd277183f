package export

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/reduct56/cookiefest-hackaton/pkg/postgres"
)

// RunSummary describes one finished batch run.
type RunSummary struct {
	RunID           string
	SnapshotVersion uint64
	Queries         int
	Matched         int
	Records         int
	Pages           int
	Chunks          int
	Failures        []RunFailure
	StartedAt       time.Time
	FinishedAt      time.Time
}

// RunFailure is one request that produced no results because of an error.
type RunFailure struct {
	Chunk    int
	Position int
	Query    string
	Error    string
}

// RunStore records run summaries in PostgreSQL:
//
//	CREATE TABLE match_runs (
//	    run_id           TEXT PRIMARY KEY,
//	    snapshot_version BIGINT NOT NULL,
//	    queries          INTEGER NOT NULL,
//	    matched          INTEGER NOT NULL,
//	    records          INTEGER NOT NULL,
//	    pages            INTEGER NOT NULL,
//	    chunks           INTEGER NOT NULL,
//	    failures         INTEGER NOT NULL,
//	    started_at       TIMESTAMPTZ NOT NULL,
//	    finished_at      TIMESTAMPTZ NOT NULL
//	);
//	CREATE TABLE match_run_failures (
//	    run_id   TEXT REFERENCES match_runs(run_id) ON DELETE CASCADE,
//	    chunk    INTEGER NOT NULL,
//	    position INTEGER NOT NULL,
//	    query    TEXT NOT NULL,
//	    error    TEXT NOT NULL
//	);
type RunStore struct {
	db     *postgres.Client
	logger *slog.Logger
}

func NewRunStore(db *postgres.Client) *RunStore {
	return &RunStore{
		db:     db,
		logger: slog.Default().With("component", "run-store"),
	}
}

// SaveRun inserts the summary and its failures in one transaction.
func (s *RunStore) SaveRun(ctx context.Context, run RunSummary) error {
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO match_runs
			    (run_id, snapshot_version, queries, matched, records, pages, chunks,
			     failures, started_at, finished_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			run.RunID, int64(run.SnapshotVersion), run.Queries, run.Matched, run.Records,
			run.Pages, run.Chunks, len(run.Failures), run.StartedAt, run.FinishedAt,
		)
		if err != nil {
			return fmt.Errorf("inserting run %s: %w", run.RunID, err)
		}
		if len(run.Failures) == 0 {
			return nil
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO match_run_failures (run_id, chunk, position, query, error)
			VALUES ($1, $2, $3, $4, $5)`)
		if err != nil {
			return fmt.Errorf("preparing failure insert: %w", err)
		}
		defer stmt.Close()
		for _, f := range run.Failures {
			if _, err := stmt.ExecContext(ctx, run.RunID, f.Chunk, f.Position, f.Query, f.Error); err != nil {
				return fmt.Errorf("inserting failure for run %s: %w", run.RunID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("run recorded", "run_id", run.RunID, "failures", len(run.Failures))
	return nil
}

// LoadRun reads a summary back with its failures ordered by chunk and
// position.
func (s *RunStore) LoadRun(ctx context.Context, runID string) (*RunSummary, error) {
	run := RunSummary{RunID: runID}
	var (
		version  int64
		failures int
	)
	err := s.db.DB.QueryRowContext(ctx, `
		SELECT snapshot_version, queries, matched, records, pages, chunks, failures,
		       started_at, finished_at
		FROM match_runs WHERE run_id = $1`, runID).
		Scan(&version, &run.Queries, &run.Matched, &run.Records, &run.Pages, &run.Chunks,
			&failures, &run.StartedAt, &run.FinishedAt)
	if err != nil {
		return nil, fmt.Errorf("loading run %s: %w", runID, err)
	}
	run.SnapshotVersion = uint64(version)

	rows, err := s.db.DB.QueryContext(ctx, `
		SELECT chunk, position, query, error
		FROM match_run_failures WHERE run_id = $1
		ORDER BY chunk, position`, runID)
	if err != nil {
		return nil, fmt.Errorf("loading failures of run %s: %w", runID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var f RunFailure
		if err := rows.Scan(&f.Chunk, &f.Position, &f.Query, &f.Error); err != nil {
			return nil, fmt.Errorf("scanning failure row: %w", err)
		}
		run.Failures = append(run.Failures, f)
	}
	return &run, rows.Err()
}
