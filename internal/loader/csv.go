package loader

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"corrmine/internal/series"
)

// CSVLoader loads comma-separated files. The first record must be a
// header row naming both requested columns.
type CSVLoader struct{}

// Load reads the CSV at path and returns valueColumn indexed by
// dateColumn, sorted ascending.
func (l *CSVLoader) Load(path, dateColumn, valueColumn string) (*series.Series, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, &LoadError{Path: path, Err: fmt.Errorf("read CSV records: %w", err)}
	}
	if len(records) < 2 {
		return nil, &LoadError{Path: path, Err: fmt.Errorf("no data rows")}
	}

	dateIdx, err := columnIndex(records[0], dateColumn)
	if err != nil {
		return nil, &LoadError{Path: path, Column: dateColumn, Err: err}
	}
	valueIdx, err := columnIndex(records[0], valueColumn)
	if err != nil {
		return nil, &LoadError{Path: path, Column: valueColumn, Err: err}
	}

	var dates []time.Time
	var values []float64

	for i, record := range records[1:] {
		line := i + 2
		if dateIdx >= len(record) || valueIdx >= len(record) {
			continue
		}

		date, err := parseDate(record[dateIdx])
		if err != nil {
			return nil, &LoadError{Path: path, Column: dateColumn, Err: fmt.Errorf("line %d: %w", line, err)}
		}

		raw := strings.TrimSpace(record[valueIdx])
		if raw == "" {
			continue
		}
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			// Non-numeric cells (sentinel markers, footnotes) are skipped,
			// not fatal: the mining run cares about the rows that parse.
			slog.Warn("skipping non-numeric CSV cell",
				"file", filepath.Base(path),
				"line", line,
				"value", raw,
			)
			continue
		}

		dates = append(dates, date)
		values = append(values, value)
	}

	s, err := series.New(seriesName(path), dates, values)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	return s, nil
}

// columnIndex finds the index of a named column in a header row,
// case-insensitively and ignoring surrounding whitespace.
func columnIndex(header []string, name string) (int, error) {
	for i, cell := range header {
		if strings.EqualFold(strings.TrimSpace(cell), strings.TrimSpace(name)) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("column not found")
}

// seriesName derives the series name from the file name without its
// extension.
func seriesName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
