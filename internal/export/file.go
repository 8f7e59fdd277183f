package export

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/reduct56/cookiefest-hackaton/internal/searcher/ranker"
)

// FileSink writes each page to its own file next to Path. A one-page run is
// written to Path itself; otherwise page n goes to "<base>_page<n><ext>".
// Files ending in .csv get the tabular column layout, anything else one JSON
// record per line.
type FileSink struct {
	Path string
}

func NewFileSink(path string) *FileSink {
	return &FileSink{Path: path}
}

func (s *FileSink) Name() string { return "file" }

func (s *FileSink) Close() error { return nil }

func (s *FileSink) WritePage(_ context.Context, _ string, page Page) error {
	path := PagePath(s.Path, page)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	w := bufio.NewWriter(f)
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		err = WriteCSV(w, page.Records)
	} else {
		err = WriteJSONLines(w, page.Records)
	}
	if err == nil {
		err = w.Flush()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// PagePath returns the file a page is written to.
func PagePath(path string, page Page) string {
	if page.Total <= 1 {
		return path
	}
	ext := filepath.Ext(path)
	return fmt.Sprintf("%s_page%d%s", strings.TrimSuffix(path, ext), page.Number, ext)
}

// WriteCSV writes a header row followed by one row per record.
func WriteCSV(w io.Writer, records []ranker.ResultRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ranker.Columns); err != nil {
		return err
	}
	for _, r := range records {
		if err := cw.Write(r.Row()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSONLines writes one JSON object per record.
func WriteJSONLines(w io.Writer, records []ranker.ResultRecord) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}
