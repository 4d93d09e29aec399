package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
)

// FromColumns builds a table from a column name to values mapping, the shape
// of Open-Meteo's "daily" object. JSON numbers become Number columns (nulls
// are missing); anything else becomes Text.
func FromColumns(key string, cols map[string][]any) (*Table, error) {
	names := make([]string, 0, len(cols))
	for n := range cols {
		names = append(names, n)
	}
	sortKeyFirst(names, key)

	t := New(key)
	for _, n := range names {
		if err := t.addInferred(n, cols[n]); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// FromRecords builds a table from row objects, the shape of Hubeau's "data"
// array. The column set is the union of keys; absent keys are missing.
func FromRecords(key string, records []map[string]any) (*Table, error) {
	seen := map[string]struct{}{}
	var names []string
	for _, r := range records {
		for k := range r {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				names = append(names, k)
			}
		}
	}
	sortKeyFirst(names, key)

	t := New(key)
	for _, n := range names {
		vals := make([]any, len(records))
		for i, r := range records {
			vals[i] = r[n]
		}
		if err := t.addInferred(n, vals); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func sortKeyFirst(names []string, key string) {
	sort.Slice(names, func(a, b int) bool {
		if (names[a] == key) != (names[b] == key) {
			return names[a] == key
		}
		return names[a] < names[b]
	})
}

func (t *Table) addInferred(name string, vals []any) error {
	numeric := true
	for _, v := range vals {
		switch v.(type) {
		case nil, float64, int, int64:
		default:
			numeric = false
		}
	}

	if numeric {
		nums := make([]float64, len(vals))
		for i, v := range vals {
			switch x := v.(type) {
			case float64:
				nums[i] = x
			case int:
				nums[i] = float64(x)
			case int64:
				nums[i] = float64(x)
			default:
				nums[i] = math.NaN()
			}
		}
		return t.AddNumber(name, nums)
	}

	texts := make([]string, len(vals))
	for i, v := range vals {
		switch x := v.(type) {
		case nil:
		case string:
			texts[i] = x
		case float64:
			texts[i] = strconv.FormatFloat(x, 'f', -1, 64)
		default:
			texts[i] = fmt.Sprint(x)
		}
	}
	return t.AddText(name, texts)
}

// ReadCSV reads a headed CSV file. Columns whose non-empty cells all parse as
// numbers become Number columns; the rest are Text.
func ReadCSV(r io.Reader, key string) (*Table, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return New(key), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	cells := make([][]string, len(header))
	line := 1
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("failed to read csv line %d: %w", line, err)
		}
		for i := range header {
			v := ""
			if i < len(rec) {
				v = strings.TrimSpace(rec[i])
			}
			cells[i] = append(cells[i], v)
		}
	}

	t := New(key)
	for i, name := range header {
		col := cells[i]
		if col == nil {
			col = []string{}
		}
		if err := t.AddText(name, col); err != nil {
			return nil, err
		}
		if csvNumeric(col) {
			t.ToNumber(name)
		}
	}
	return t, nil
}

func csvNumeric(vals []string) bool {
	seen := false
	for _, v := range vals {
		if v == "" {
			continue
		}
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			return false
		}
		seen = true
	}
	return seen
}
