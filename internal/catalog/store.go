package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/reduct56/cookiefest-hackaton/pkg/postgres"
)

// Store reads the catalog from PostgreSQL.
//
// It expects a `catalog_entries` table:
//
//	CREATE TABLE catalog_entries (
//	    id                  BIGSERIAL PRIMARY KEY,
//	    code                TEXT NOT NULL,
//	    name                TEXT,
//	    manufacturer_item   TEXT,
//	    processed           BOOLEAN,
//	    partially_processed BOOLEAN,
//	    unprocessed         BOOLEAN,
//	    main_assortment     BOOLEAN,
//	    display_fields      JSONB
//	);
//
// Rows are returned in id order, which becomes the catalog order used to
// break score ties.
type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

// NewStore creates a catalog store on top of an open client.
func NewStore(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "catalog-store"),
	}
}

// LoadEntries reads every catalog row. NULL text columns read as empty
// strings and NULL flags as false.
func (s *Store) LoadEntries(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.DB.QueryContext(ctx, `
		SELECT id, code, name, manufacturer_item,
		       processed, partially_processed, unprocessed, main_assortment,
		       display_fields
		FROM catalog_entries
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying catalog entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			id                                   int64
			code, name, item                     sql.NullString
			processed, partial, unproc, mainAsrt sql.NullBool
			fields                               []byte
		)
		if err := rows.Scan(&id, &code, &name, &item,
			&processed, &partial, &unproc, &mainAsrt, &fields); err != nil {
			return nil, fmt.Errorf("scanning catalog row: %w", err)
		}
		entry := Entry{
			ID:               strconv.FormatInt(id, 10),
			Code:             code.String,
			Name:             name.String,
			ManufacturerItem: item.String,
			Status: Status{
				Processed:          processed.Bool,
				PartiallyProcessed: partial.Bool,
				Unprocessed:        unproc.Bool,
				MainAssortment:     mainAsrt.Bool,
			},
		}
		if len(fields) > 0 {
			if err := json.Unmarshal(fields, &entry.DisplayFields); err != nil {
				return nil, &RowError{Row: len(entries) + 1, Fields: map[string]string{
					"display_fields": err.Error(),
				}}
			}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating catalog rows: %w", err)
	}
	s.logger.Info("catalog loaded from database", "entries", len(entries))
	return entries, nil
}
