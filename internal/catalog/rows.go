package catalog

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/reduct56/cookiefest-hackaton/pkg/errors"
)

// Row is one record of a tabular source, keyed by column name. Values are
// whatever the source produced: strings, numbers, booleans or nil.
type Row map[string]any

// RowError describes the fields of a single row that could not be read.
type RowError struct {
	Row    int
	Fields map[string]string
}

func (e *RowError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s:%s", k, e.Fields[k]))
	}
	return fmt.Sprintf("row %d: %s", e.Row, strings.Join(parts, "; "))
}

func (e *RowError) Unwrap() error {
	return apperrors.ErrInvalidInput
}

var requiredColumns = []string{ColumnName, ColumnManufacturerItem, ColumnCode}

var knownColumns = map[string]struct{}{
	"id":                     {},
	ColumnName:               {},
	ColumnManufacturerItem:   {},
	ColumnCode:               {},
	ColumnProcessed:          {},
	ColumnPartiallyProcessed: {},
	ColumnUnprocessed:        {},
	ColumnMainAssortment:     {},
}

// ParseRows converts catalog rows into entries. Missing required columns or
// values that cannot be read as text abort the whole load with a *RowError;
// nil values are read as empty strings.
func ParseRows(rows []Row) ([]Entry, error) {
	entries := make([]Entry, 0, len(rows))
	for i, row := range rows {
		entry, err := parseRow(i+1, row)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func parseRow(n int, row Row) (Entry, error) {
	errs := make(map[string]string)
	for _, col := range requiredColumns {
		if _, ok := row[col]; !ok {
			errs[col] = "column is required"
		}
	}
	text := func(col string) string {
		s, err := coerceString(row[col])
		if err != nil {
			errs[col] = err.Error()
		}
		return s
	}
	flag := func(col string) bool {
		b, err := coerceBool(row[col])
		if err != nil {
			errs[col] = err.Error()
		}
		return b
	}

	entry := Entry{
		ID:               strconv.Itoa(n),
		Name:             text(ColumnName),
		ManufacturerItem: text(ColumnManufacturerItem),
		Code:             text(ColumnCode),
		Status: Status{
			Processed:          flag(ColumnProcessed),
			PartiallyProcessed: flag(ColumnPartiallyProcessed),
			Unprocessed:        flag(ColumnUnprocessed),
			MainAssortment:     flag(ColumnMainAssortment),
		},
	}
	if v, ok := row["id"]; ok && v != nil {
		entry.ID = text("id")
	}
	for col, v := range row {
		if _, known := knownColumns[col]; known {
			continue
		}
		s, err := coerceString(v)
		if err != nil {
			errs[col] = err.Error()
			continue
		}
		if entry.DisplayFields == nil {
			entry.DisplayFields = make(map[string]string)
		}
		entry.DisplayFields[col] = s
	}
	if len(errs) > 0 {
		return Entry{}, &RowError{Row: n, Fields: errs}
	}
	return entry, nil
}

// ParseQueries extracts the request text column from query rows. Rows with
// an empty request are kept; they simply match nothing.
func ParseQueries(rows []Row) ([]string, error) {
	queries := make([]string, 0, len(rows))
	for i, row := range rows {
		v, ok := row[QueryColumn]
		if !ok {
			return nil, &RowError{Row: i + 1, Fields: map[string]string{QueryColumn: "column is required"}}
		}
		s, err := coerceString(v)
		if err != nil {
			return nil, &RowError{Row: i + 1, Fields: map[string]string{QueryColumn: err.Error()}}
		}
		queries = append(queries, s)
	}
	return queries, nil
}

func coerceString(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case []byte:
		return string(t), nil
	case bool:
		return strconv.FormatBool(t), nil
	case int:
		return strconv.Itoa(t), nil
	case int32:
		return strconv.FormatInt(int64(t), 10), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case uint64:
		return strconv.FormatUint(t, 10), nil
	case float32:
		return formatFloat(float64(t)), nil
	case float64:
		return formatFloat(t), nil
	case time.Time:
		return t.Format(time.DateOnly), nil
	case fmt.Stringer:
		return t.String(), nil
	default:
		return "", fmt.Errorf("cannot read %T as text", v)
	}
}

// formatFloat prints integral floats without a fractional part, so numeric
// item codes read from spreadsheets keep their original form.
func formatFloat(f float64) string {
	if math.IsNaN(f) {
		return ""
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func coerceBool(v any) (bool, error) {
	switch t := v.(type) {
	case nil:
		return false, nil
	case bool:
		return t, nil
	case int:
		return t != 0, nil
	case int64:
		return t != 0, nil
	case float64:
		return t != 0 && !math.IsNaN(t), nil
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "", "0", "false", "no", "нет", "-":
			return false, nil
		case "1", "true", "yes", "да", "+", "x", "х":
			return true, nil
		}
		return false, fmt.Errorf("cannot read %q as a flag", t)
	default:
		return false, fmt.Errorf("cannot read %T as a flag", v)
	}
}
