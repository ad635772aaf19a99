package loader

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"corrmine/internal/series"
)

// JSONLoader loads a JSON array of flat objects, e.g.
// [{"date": "2024-01-01", "score": 3.2}, ...]. Values may be JSON
// numbers or numeric strings.
type JSONLoader struct{}

// Load reads the JSON array at path and returns valueColumn indexed by
// dateColumn, sorted ascending.
func (l *JSONLoader) Load(path, dateColumn, valueColumn string) (*series.Series, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	var rows []map[string]any
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, &LoadError{Path: path, Err: fmt.Errorf("decode JSON: %w", err)}
	}
	if len(rows) == 0 {
		return nil, &LoadError{Path: path, Err: fmt.Errorf("no data rows")}
	}

	var dates []time.Time
	var values []float64

	for i, row := range rows {
		rawDate, ok := row[dateColumn]
		if !ok {
			return nil, &LoadError{Path: path, Column: dateColumn, Err: fmt.Errorf("column not found (row %d)", i)}
		}
		rawValue, ok := row[valueColumn]
		if !ok {
			return nil, &LoadError{Path: path, Column: valueColumn, Err: fmt.Errorf("column not found (row %d)", i)}
		}

		dateStr, ok := rawDate.(string)
		if !ok {
			return nil, &LoadError{Path: path, Column: dateColumn, Err: fmt.Errorf("non-string date (row %d)", i)}
		}
		date, err := parseDate(dateStr)
		if err != nil {
			return nil, &LoadError{Path: path, Column: dateColumn, Err: fmt.Errorf("row %d: %w", i, err)}
		}

		value, err := toFloat(rawValue)
		if err != nil {
			return nil, &LoadError{Path: path, Column: valueColumn, Err: fmt.Errorf("row %d: %w", i, err)}
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

func toFloat(v any) (float64, error) {
	switch value := v.(type) {
	case float64:
		return value, nil
	case string:
		return strconv.ParseFloat(value, 64)
	case json.Number:
		return value.Float64()
	default:
		return 0, fmt.Errorf("value is not numeric: %v", v)
	}
}
