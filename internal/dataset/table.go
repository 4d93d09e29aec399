// Package dataset holds the column oriented tables that flow between the
// fetchers, the normalizer, the store and the trainer.
package dataset

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Kind is the storage type of a column.
type Kind int

const (
	Number Kind = iota
	Text
	Date
)

func (k Kind) String() string {
	switch k {
	case Number:
		return "number"
	case Text:
		return "text"
	case Date:
		return "date"
	}
	return "unknown"
}

// Units tags whether a table still carries upstream units or has been
// converted to the canonical ones.
type Units string

const (
	UnitsSource    Units = "source"
	UnitsCanonical Units = "canonical"
)

// Column is a single typed column. Missing values are NaN, "" or the zero time.
type Column struct {
	Name  string
	Kind  Kind
	nums  []float64
	texts []string
	dates []time.Time
}

func (c *Column) Len() int {
	switch c.Kind {
	case Number:
		return len(c.nums)
	case Text:
		return len(c.texts)
	default:
		return len(c.dates)
	}
}

// IsMissing reports whether row i holds no value.
func (c *Column) IsMissing(i int) bool {
	switch c.Kind {
	case Number:
		return math.IsNaN(c.nums[i])
	case Text:
		return c.texts[i] == ""
	default:
		return c.dates[i].IsZero()
	}
}

// Float returns row i as a number. Text is parsed; anything else is NaN.
func (c *Column) Float(i int) float64 {
	switch c.Kind {
	case Number:
		return c.nums[i]
	case Text:
		f, err := strconv.ParseFloat(strings.TrimSpace(c.texts[i]), 64)
		if err != nil {
			return math.NaN()
		}
		return f
	}
	return math.NaN()
}

// Floats returns a copy of a Number column's values.
func (c *Column) Floats() []float64 {
	out := make([]float64, c.Len())
	for i := range out {
		out[i] = c.Float(i)
	}
	return out
}

// Text returns row i formatted as a string.
func (c *Column) Text(i int) string {
	switch c.Kind {
	case Text:
		return c.texts[i]
	case Number:
		if math.IsNaN(c.nums[i]) {
			return ""
		}
		return strconv.FormatFloat(c.nums[i], 'f', -1, 64)
	default:
		if c.dates[i].IsZero() {
			return ""
		}
		return c.dates[i].Format(time.DateOnly)
	}
}

// Time returns row i of a Date column.
func (c *Column) Time(i int) time.Time {
	if c.Kind != Date {
		return time.Time{}
	}
	return c.dates[i]
}

// Value returns row i as float64, string or time.Time, or nil when missing.
func (c *Column) Value(i int) any {
	if c.IsMissing(i) {
		return nil
	}
	switch c.Kind {
	case Number:
		return c.nums[i]
	case Text:
		return c.texts[i]
	default:
		return c.dates[i]
	}
}

// Set overwrites a Number cell.
func (c *Column) Set(i int, v float64) {
	if c.Kind == Number {
		c.nums[i] = v
	}
}

func (c *Column) take(idx []int) *Column {
	out := &Column{Name: c.Name, Kind: c.Kind}
	switch c.Kind {
	case Number:
		out.nums = make([]float64, len(idx))
		for j, i := range idx {
			out.nums[j] = c.nums[i]
		}
	case Text:
		out.texts = make([]string, len(idx))
		for j, i := range idx {
			out.texts[j] = c.texts[i]
		}
	default:
		out.dates = make([]time.Time, len(idx))
		for j, i := range idx {
			out.dates[j] = c.dates[i]
		}
	}
	return out
}

func (c *Column) clone() *Column {
	idx := make([]int, c.Len())
	for i := range idx {
		idx[i] = i
	}
	return c.take(idx)
}

// Table is an ordered set of equally sized columns with a key column and a units tag.
type Table struct {
	Key   string
	Units Units
	cols  []*Column
	rows  int
}

// New returns an empty table keyed on key.
func New(key string) *Table {
	return &Table{Key: key, Units: UnitsSource}
}

func (t *Table) Len() int { return t.rows }

// Empty reports whether the table has no rows.
func (t *Table) Empty() bool { return t == nil || t.rows == 0 }

// Columns returns the column names in order.
func (t *Table) Columns() []string {
	names := make([]string, len(t.cols))
	for i, c := range t.cols {
		names[i] = c.Name
	}
	return names
}

func (t *Table) indexOf(name string) int {
	for i, c := range t.cols {
		if c.Name == name {
			return i
		}
	}
	return -1
}

func (t *Table) Has(name string) bool { return t.indexOf(name) >= 0 }

// Column returns the named column or nil.
func (t *Table) Column(name string) *Column {
	if i := t.indexOf(name); i >= 0 {
		return t.cols[i]
	}
	return nil
}

func (t *Table) add(c *Column) error {
	if len(t.cols) > 0 && c.Len() != t.rows {
		return fmt.Errorf("column %s has %d rows, table has %d", c.Name, c.Len(), t.rows)
	}
	if i := t.indexOf(c.Name); i >= 0 {
		t.cols[i] = c
	} else {
		t.cols = append(t.cols, c)
	}
	t.rows = c.Len()
	return nil
}

// AddNumber adds or replaces a numeric column.
func (t *Table) AddNumber(name string, vals []float64) error {
	return t.add(&Column{Name: name, Kind: Number, nums: vals})
}

// AddText adds or replaces a text column.
func (t *Table) AddText(name string, vals []string) error {
	return t.add(&Column{Name: name, Kind: Text, texts: vals})
}

// AddDate adds or replaces a date column.
func (t *Table) AddDate(name string, vals []time.Time) error {
	return t.add(&Column{Name: name, Kind: Date, dates: vals})
}

// Rename renames a column, replacing any column already named to. It also
// moves the key when the key column is renamed.
func (t *Table) Rename(from, to string) bool {
	i := t.indexOf(from)
	if i < 0 || from == to {
		return i >= 0
	}
	if j := t.indexOf(to); j >= 0 {
		t.cols = append(t.cols[:j], t.cols[j+1:]...)
		if j < i {
			i--
		}
	}
	t.cols[i].Name = to
	if t.Key == from {
		t.Key = to
	}
	return true
}

// Drop removes the named columns; absent names are ignored.
func (t *Table) Drop(names ...string) {
	for _, n := range names {
		if i := t.indexOf(n); i >= 0 {
			t.cols = append(t.cols[:i], t.cols[i+1:]...)
		}
	}
	if len(t.cols) == 0 {
		t.rows = 0
	}
}

// Select keeps only the listed columns, in the listed order, skipping names
// that are absent.
func (t *Table) Select(names ...string) {
	kept := make([]*Column, 0, len(names))
	for _, n := range names {
		if c := t.Column(n); c != nil {
			kept = append(kept, c)
		}
	}
	t.cols = kept
	if len(kept) == 0 {
		t.rows = 0
	}
}

// Take keeps the rows at idx, in that order.
func (t *Table) Take(idx []int) {
	for i, c := range t.cols {
		t.cols[i] = c.take(idx)
	}
	t.rows = len(idx)
}

// Filter keeps rows for which keep returns true and returns the number removed.
func (t *Table) Filter(keep func(i int) bool) int {
	idx := make([]int, 0, t.rows)
	for i := 0; i < t.rows; i++ {
		if keep(i) {
			idx = append(idx, i)
		}
	}
	removed := t.rows - len(idx)
	if removed > 0 {
		t.Take(idx)
	}
	return removed
}

func (t *Table) cellKey(c *Column, i int) string {
	if c.Kind == Date {
		return c.dates[i].Format(time.DateOnly)
	}
	return c.Text(i)
}

// DedupBy keeps the first row of every distinct value of col and returns
// the number of rows removed.
func (t *Table) DedupBy(col string) int {
	c := t.Column(col)
	if c == nil {
		return 0
	}
	seen := make(map[string]struct{}, t.rows)
	return t.Filter(func(i int) bool {
		k := t.cellKey(c, i)
		if _, dup := seen[k]; dup {
			return false
		}
		seen[k] = struct{}{}
		return true
	})
}

// SortByDate orders rows by a Date column ascending; missing dates sort last.
func (t *Table) SortByDate(col string) {
	c := t.Column(col)
	if c == nil || c.Kind != Date {
		return
	}
	idx := make([]int, t.rows)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		da, db := c.dates[idx[a]], c.dates[idx[b]]
		if da.IsZero() != db.IsZero() {
			return db.IsZero()
		}
		return da.Before(db)
	})
	t.Take(idx)
}

// Interpolate fills missing numeric cells. Interior gaps are filled linearly,
// weighted by the distance between dates when dateCol is a complete Date
// column and by row position otherwise. Trailing gaps take the last valid
// value; leading gaps stay missing. It returns the number of cells filled and
// the number still missing.
func (t *Table) Interpolate(dateCol string) (filled, remaining int) {
	x := make([]float64, t.rows)
	for i := range x {
		x[i] = float64(i)
	}
	if c := t.Column(dateCol); c != nil && c.Kind == Date {
		complete := true
		for i := 0; i < t.rows; i++ {
			if c.dates[i].IsZero() {
				complete = false
				break
			}
		}
		if complete {
			for i := range x {
				x[i] = float64(c.dates[i].Unix()) / 86400
			}
		}
	}

	for _, c := range t.cols {
		if c.Kind != Number {
			continue
		}
		prev := -1
		for i := 0; i < t.rows; i++ {
			if !math.IsNaN(c.nums[i]) {
				prev = i
				continue
			}
			next := -1
			for j := i + 1; j < t.rows; j++ {
				if !math.IsNaN(c.nums[j]) {
					next = j
					break
				}
			}
			switch {
			case prev >= 0 && next >= 0:
				span := x[next] - x[prev]
				w := 0.5
				if span != 0 {
					w = (x[i] - x[prev]) / span
				}
				c.nums[i] = c.nums[prev] + w*(c.nums[next]-c.nums[prev])
				filled++
			case prev >= 0:
				c.nums[i] = c.nums[prev]
				filled++
			default:
				remaining++
			}
		}
	}
	return filled, remaining
}

// MissingCount counts missing cells across numeric columns.
func (t *Table) MissingCount() int {
	n := 0
	for _, c := range t.cols {
		if c.Kind != Number {
			continue
		}
		for _, v := range c.nums {
			if math.IsNaN(v) {
				n++
			}
		}
	}
	return n
}

// ToNumber coerces a column to Number; unparseable cells become missing.
// It returns the number of non-empty cells that failed to parse.
func (t *Table) ToNumber(name string) int {
	c := t.Column(name)
	if c == nil || c.Kind == Number {
		return 0
	}
	failed := 0
	vals := make([]float64, c.Len())
	for i := range vals {
		vals[i] = c.Float(i)
		if math.IsNaN(vals[i]) && !c.IsMissing(i) {
			failed++
		}
	}
	c.Kind, c.nums, c.texts, c.dates = Number, vals, nil, nil
	return failed
}

var dateLayouts = []string{
	time.DateOnly,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	time.DateTime,
	"2006/01/02",
	"02/01/2006",
}

// ParseDate parses the date layouts seen upstream and truncates to the day.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

// ToDate coerces a column to Date and returns the number of cells that could
// not be parsed (left missing).
func (t *Table) ToDate(name string) int {
	c := t.Column(name)
	if c == nil || c.Kind == Date {
		return 0
	}
	failed := 0
	vals := make([]time.Time, c.Len())
	for i := range vals {
		if c.IsMissing(i) {
			failed++
			continue
		}
		d, err := ParseDate(c.Text(i))
		if err != nil {
			failed++
			continue
		}
		vals[i] = d
	}
	c.Kind, c.nums, c.texts, c.dates = Date, nil, nil, vals
	return failed
}

// Row returns row i as a map of column name to Column.Value.
func (t *Table) Row(i int) map[string]any {
	row := make(map[string]any, len(t.cols))
	for _, c := range t.cols {
		row[c.Name] = c.Value(i)
	}
	return row
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	out := &Table{Key: t.Key, Units: t.Units, rows: t.rows}
	out.cols = make([]*Column, len(t.cols))
	for i, c := range t.cols {
		out.cols[i] = c.clone()
	}
	return out
}

// InnerJoin joins left and right on key, keeping left's row order. Columns of
// right that clash with left get a "_right" suffix.
func InnerJoin(left, right *Table, key string) (*Table, error) {
	lk, rk := left.Column(key), right.Column(key)
	if lk == nil {
		return nil, &SchemaError{Table: "left", Column: key, Message: "join key missing"}
	}
	if rk == nil {
		return nil, &SchemaError{Table: "right", Column: key, Message: "join key missing"}
	}

	rightRows := make(map[string][]int, right.rows)
	for i := 0; i < right.rows; i++ {
		if rk.IsMissing(i) {
			continue
		}
		k := right.cellKey(rk, i)
		rightRows[k] = append(rightRows[k], i)
	}

	var li, ri []int
	for i := 0; i < left.rows; i++ {
		if lk.IsMissing(i) {
			continue
		}
		for _, j := range rightRows[left.cellKey(lk, i)] {
			li = append(li, i)
			ri = append(ri, j)
		}
	}

	out := New(key)
	if left.Units == UnitsCanonical && right.Units == UnitsCanonical {
		out.Units = UnitsCanonical
	}
	out.rows = len(li)
	for _, c := range left.cols {
		out.cols = append(out.cols, c.take(li))
	}
	for _, c := range right.cols {
		if c.Name == key {
			continue
		}
		nc := c.take(ri)
		if out.Has(nc.Name) {
			nc.Name += "_right"
		}
		out.cols = append(out.cols, nc)
	}
	return out, nil
}
