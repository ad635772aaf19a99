package loader

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"corrmine/internal/series"
)

// XLSXLoader loads columnar workbook files. The first sheet whose first
// non-empty row names both requested columns is used; the header may be
// preceded by blank rows.
type XLSXLoader struct{}

// Load reads the workbook at path and returns valueColumn indexed by
// dateColumn, sorted ascending.
func (l *XLSXLoader) Load(path, dateColumn, valueColumn string) (*series.Series, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: fmt.Errorf("open workbook: %w", err)}
	}
	defer f.Close()

	rows, headerRow, dateIdx, valueIdx, err := findDataSheet(f, dateColumn, valueColumn)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	var dates []time.Time
	var values []float64

	for i := headerRow + 1; i < len(rows); i++ {
		row := rows[i]
		if dateIdx >= len(row) || valueIdx >= len(row) {
			continue
		}
		if strings.TrimSpace(row[dateIdx]) == "" {
			continue
		}

		date, err := parseDate(row[dateIdx])
		if err != nil {
			return nil, &LoadError{Path: path, Column: dateColumn, Err: fmt.Errorf("row %d: %w", i+1, err)}
		}

		raw := strings.TrimSpace(row[valueIdx])
		if raw == "" {
			continue
		}
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			slog.Warn("skipping non-numeric workbook cell",
				"file", filepath.Base(path),
				"row", i+1,
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

// findDataSheet walks the workbook's sheets looking for one whose first
// non-empty row names both columns. Returns the sheet rows, the header
// row index and the two column indexes.
func findDataSheet(f *excelize.File, dateColumn, valueColumn string) ([][]string, int, int, int, error) {
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			continue
		}

		for i, row := range rows {
			if len(row) == 0 {
				continue
			}
			dateIdx, dErr := columnIndex(row, dateColumn)
			valueIdx, vErr := columnIndex(row, valueColumn)
			if dErr == nil && vErr == nil {
				return rows, i, dateIdx, valueIdx, nil
			}
			// Only the first non-empty row of a sheet is considered a
			// header candidate.
			break
		}
	}
	return nil, 0, 0, 0, fmt.Errorf("no sheet with columns %q and %q", dateColumn, valueColumn)
}
