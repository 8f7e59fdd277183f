package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reduct56/cookiefest-hackaton/internal/catalog"
	"github.com/reduct56/cookiefest-hackaton/internal/searcher/ranker"
	"github.com/reduct56/cookiefest-hackaton/pkg/config"
	apperrors "github.com/reduct56/cookiefest-hackaton/pkg/errors"
)

const catalogJSON = `[
	{"Номенклатура": "red widget", "ТоварПроизводителя": "RW-1", "Код": "A1", "Оформлено": "да"},
	{"Номенклатура": "blue widget", "ТоварПроизводителя": "BW-1", "Код": "B2"},
	{"Номенклатура": "red gadget", "ТоварПроизводителя": "RG-1", "Код": "C3"}
]`

func writeFixtures(t *testing.T, queries string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	catalogPath := filepath.Join(dir, "catalog.json")
	queriesPath := filepath.Join(dir, "requests.txt")
	require.NoError(t, os.WriteFile(catalogPath, []byte(catalogJSON), 0o644))
	require.NoError(t, os.WriteFile(queriesPath, []byte(queries), 0o644))
	return catalogPath, queriesPath
}

func TestRunMatchToStdout(t *testing.T) {
	catalogPath, queriesPath := writeFixtures(t, "red widget\npurple\n")
	var out bytes.Buffer

	run, err := runMatch(context.Background(), config.Default(), matchOptions{
		catalogPath: catalogPath,
		queriesPath: queriesPath,
		topN:        1,
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, 2, run.Queries)
	assert.Equal(t, 1, run.Matched)
	assert.Equal(t, 1, run.Records)
	assert.Equal(t, 1, run.Pages)
	assert.NotEmpty(t, run.RunID)

	rows, err := csv.NewReader(&out).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, ranker.Columns, rows[0])
	assert.Equal(t, []string{"red widget", "red widget (A1)", "1.000000", "RW-1", "true", "false", "false", "false"}, rows[1])
}

func TestRunMatchPagedFiles(t *testing.T) {
	catalogPath, queriesPath := writeFixtures(t, "red\nwidget\ngadget\n")
	outPath := filepath.Join(t.TempDir(), "result.csv")
	c := config.Default()
	c.Export.PageSize = 2
	c.Matcher.ChunkSize = 1

	run, err := runMatch(context.Background(), c, matchOptions{
		catalogPath: catalogPath,
		queriesPath: queriesPath,
		outPath:     outPath,
		topN:        5,
	}, &bytes.Buffer{})
	require.NoError(t, err)
	// red: A1, C3; widget: A1, B2; gadget: C3.
	assert.Equal(t, 5, run.Records)
	assert.Equal(t, 3, run.Pages)
	assert.Equal(t, 3, run.Chunks)

	for _, name := range []string{"result_page1.csv", "result_page2.csv", "result_page3.csv"} {
		_, err := os.Stat(filepath.Join(filepath.Dir(outPath), name))
		assert.NoError(t, err, name)
	}
}

func TestRunMatchRejects(t *testing.T) {
	catalogPath, queriesPath := writeFixtures(t, "red\n")

	_, err := runMatch(context.Background(), config.Default(), matchOptions{
		catalogPath: catalogPath, queriesPath: queriesPath, topN: 0,
	}, &bytes.Buffer{})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidTopK))

	_, err = runMatch(context.Background(), config.Default(), matchOptions{
		catalogPath: filepath.Join(t.TempDir(), "missing.json"), queriesPath: queriesPath, topN: 1,
	}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "loading catalog")

	empty := filepath.Join(t.TempDir(), "empty.json")
	require.NoError(t, os.WriteFile(empty, []byte("[]"), 0o644))
	_, err = runMatch(context.Background(), config.Default(), matchOptions{
		catalogPath: empty, queriesPath: queriesPath, topN: 1,
	}, &bytes.Buffer{})
	assert.True(t, errors.Is(err, apperrors.ErrEmptyCorpus))
}

func TestMatchCommandValidatesTopN(t *testing.T) {
	catalogPath, queriesPath := writeFixtures(t, "red\n")
	rootCmd.SetArgs([]string{"match", "--catalog", catalogPath, "--queries", queriesPath, "--top-n", "0"})
	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetErr(&bytes.Buffer{})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	err := rootCmd.Execute()
	assert.True(t, errors.Is(err, apperrors.ErrInvalidTopK))
}

func TestRunMatchInterruptedStillWrites(t *testing.T) {
	catalogPath, queriesPath := writeFixtures(t, "red widget\nblue\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out bytes.Buffer

	run, err := runMatch(ctx, config.Default(), matchOptions{
		catalogPath: catalogPath,
		queriesPath: queriesPath,
		topN:        1,
	}, &out)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, run)
	assert.Equal(t, 2, run.Queries)
	assert.Equal(t, 1, run.Pages, "the partial result is exported after cancellation")

	rows, err := csv.NewReader(&out).ReadAll()
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	assert.Equal(t, ranker.Columns, rows[0])
}

func TestDefaultEngineKeepsEnglishWords(t *testing.T) {
	snap, err := newEngine(config.Default(), nil).Load([]catalog.Entry{
		{Name: "can opener", Code: "K1"},
		{Name: "консервный нож для банок", Code: "K2"},
	})
	require.NoError(t, err)

	vocab := snap.Vocabulary()
	_, ok := vocab.Lookup("can")
	assert.True(t, ok, "only the Russian stop-word set applies by default")
	_, ok = vocab.Lookup("для")
	assert.False(t, ok)
}
