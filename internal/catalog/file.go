package catalog

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ReadRowsFile reads a YAML or JSON document holding a list of row objects.
func ReadRowsFile(path string) ([]Row, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var rows []Row
	if err := yaml.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return rows, nil
}

// LoadFile reads catalog entries from a YAML or JSON row file.
func LoadFile(path string) ([]Entry, error) {
	rows, err := ReadRowsFile(path)
	if err != nil {
		return nil, err
	}
	entries, err := ParseRows(rows)
	if err != nil {
		return nil, fmt.Errorf("loading catalog %s: %w", path, err)
	}
	return entries, nil
}

// LoadQueriesFile reads requests either from a plain text file, one request
// per line, or from a YAML/JSON row file with a request column.
func LoadQueriesFile(path string) ([]string, error) {
	if strings.EqualFold(filepath.Ext(path), ".txt") {
		return readLines(path)
	}
	rows, err := ReadRowsFile(path)
	if err != nil {
		return nil, err
	}
	queries, err := ParseQueries(rows)
	if err != nil {
		return nil, fmt.Errorf("loading queries %s: %w", path, err)
	}
	return queries, nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return lines, nil
}
