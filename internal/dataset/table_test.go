package dataset

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestTable_AddRejectsLengthMismatch(t *testing.T) {
	tbl := New("date")
	require.NoError(t, tbl.AddNumber("a", []float64{1, 2, 3}))
	err := tbl.AddNumber("b", []float64{1})
	require.Error(t, err)
	assert.Equal(t, 3, tbl.Len())
}

func TestTable_RenameSelectDrop(t *testing.T) {
	tbl := New("time")
	require.NoError(t, tbl.AddText("time", []string{"2024-01-01"}))
	require.NoError(t, tbl.AddNumber("x", []float64{1}))
	require.NoError(t, tbl.AddNumber("y", []float64{2}))
	require.NoError(t, tbl.AddNumber("z", []float64{3}))

	assert.True(t, tbl.Rename("time", "date"))
	assert.Equal(t, "date", tbl.Key)
	assert.False(t, tbl.Rename("missing", "other"))

	// renaming onto an existing name replaces it
	assert.True(t, tbl.Rename("y", "x"))
	assert.Equal(t, 2.0, tbl.Column("x").Float(0))

	tbl.Select("date", "x", "absent")
	if diff := cmp.Diff([]string{"date", "x"}, tbl.Columns()); diff != "" {
		t.Errorf("columns mismatch (-want +got):\n%s", diff)
	}

	tbl.Drop("x", "absent")
	assert.Equal(t, []string{"date"}, tbl.Columns())
	assert.Equal(t, 1, tbl.Len())
}

func TestTable_DedupKeepsFirst(t *testing.T) {
	tbl := New("date")
	require.NoError(t, tbl.AddDate("date", []time.Time{
		day(2024, 1, 1), day(2024, 1, 2), day(2024, 1, 1), day(2024, 1, 3), day(2024, 1, 2), day(2024, 1, 1),
	}))
	require.NoError(t, tbl.AddNumber("v", []float64{1, 2, 3, 4, 5, 6}))

	// N=6, K=5 rows share a date value, 2 distinct duplicated dates
	removed := tbl.DedupBy("date")
	assert.Equal(t, 3, removed)
	assert.Equal(t, 6-5+2, tbl.Len())
	assert.Equal(t, []float64{1, 2, 4}, tbl.Column("v").Floats())
}

func TestTable_SortByDate(t *testing.T) {
	tbl := New("date")
	require.NoError(t, tbl.AddDate("date", []time.Time{day(2024, 1, 3), {}, day(2024, 1, 1)}))
	require.NoError(t, tbl.AddNumber("v", []float64{3, 0, 1}))

	tbl.SortByDate("date")
	assert.Equal(t, []float64{1, 3, 0}, tbl.Column("v").Floats())
	assert.True(t, tbl.Column("date").IsMissing(2))
}

func TestTable_Interpolate(t *testing.T) {
	nan := math.NaN()

	t.Run("time weighted interior and trailing fill", func(t *testing.T) {
		tbl := New("date")
		require.NoError(t, tbl.AddDate("date", []time.Time{
			day(2024, 1, 1), day(2024, 1, 2), day(2024, 1, 5), day(2024, 1, 6), day(2024, 1, 7),
		}))
		require.NoError(t, tbl.AddNumber("v", []float64{0, nan, 10, nan, nan}))

		filled, remaining := tbl.Interpolate("date")
		assert.Equal(t, 3, filled)
		assert.Equal(t, 0, remaining)

		v := tbl.Column("v").Floats()
		assert.InDelta(t, 2.5, v[1], 1e-9) // 1 day out of a 4 day span
		assert.Equal(t, 10.0, v[3])
		assert.Equal(t, 10.0, v[4])
	})

	t.Run("leading gaps stay missing", func(t *testing.T) {
		tbl := New("date")
		require.NoError(t, tbl.AddNumber("v", []float64{nan, nan, 4, nan, 8}))
		require.NoError(t, tbl.AddText("label", []string{"a", "", "c", "d", "e"}))

		filled, remaining := tbl.Interpolate("date")
		assert.Equal(t, 1, filled)
		assert.Equal(t, 2, remaining)
		assert.Equal(t, 6.0, tbl.Column("v").Float(3))
		assert.Equal(t, 2, tbl.MissingCount())
	})
}

func TestTable_ToNumberAndToDate(t *testing.T) {
	tbl := New("date")
	require.NoError(t, tbl.AddText("date", []string{"2024-01-01", "2024-01-02T00:00:00Z", "garbage", ""}))
	require.NoError(t, tbl.AddText("flow", []string{"1.5", "x", "", "3"}))

	assert.Equal(t, 2, tbl.ToDate("date"))
	assert.Equal(t, 1, tbl.ToNumber("flow"))

	dates := tbl.Column("date")
	assert.Equal(t, Date, dates.Kind)
	assert.Equal(t, day(2024, 1, 2), dates.Time(1))
	assert.True(t, dates.IsMissing(2))
	assert.Equal(t, "2024-01-01", dates.Text(0))

	flow := tbl.Column("flow")
	assert.Equal(t, 1.5, flow.Float(0))
	assert.True(t, flow.IsMissing(1))
	assert.Nil(t, flow.Value(2))
}

func TestInnerJoin(t *testing.T) {
	weather := New("date")
	weather.Units = UnitsCanonical
	require.NoError(t, weather.AddDate("date", []time.Time{day(2024, 1, 1), day(2024, 1, 2), day(2024, 1, 3)}))
	require.NoError(t, weather.AddNumber("debit_l_s", []float64{10, 20, 30}))

	prod := New("date")
	prod.Units = UnitsCanonical
	require.NoError(t, prod.AddDate("date", []time.Time{day(2024, 1, 3), day(2024, 1, 1), day(2024, 1, 9)}))
	require.NoError(t, prod.AddNumber("production_kwh", []float64{300, 100, 900}))

	joined, err := InnerJoin(weather, prod, "date")
	require.NoError(t, err)

	assert.Equal(t, 2, joined.Len())
	assert.Equal(t, UnitsCanonical, joined.Units)
	assert.Equal(t, []string{"date", "debit_l_s", "production_kwh"}, joined.Columns())
	assert.Equal(t, []float64{10, 30}, joined.Column("debit_l_s").Floats())
	assert.Equal(t, []float64{100, 300}, joined.Column("production_kwh").Floats())

	_, err = InnerJoin(weather, New("x"), "date")
	var schemaErr *SchemaError
	require.True(t, errors.As(err, &schemaErr))
	assert.Equal(t, "right", schemaErr.Table)
}

func TestTable_CloneIsDeep(t *testing.T) {
	tbl := New("date")
	require.NoError(t, tbl.AddNumber("v", []float64{1}))
	cp := tbl.Clone()
	cp.Column("v").Set(0, 99)
	assert.Equal(t, 1.0, tbl.Column("v").Float(0))
}

func TestFromColumns(t *testing.T) {
	tbl, err := FromColumns("time", map[string][]any{
		"shortwave_radiation_sum": {10.0, nil},
		"time":                    {"2024-01-01", "2024-01-02"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"time", "shortwave_radiation_sum"}, tbl.Columns())
	assert.Equal(t, Text, tbl.Column("time").Kind)
	sw := tbl.Column("shortwave_radiation_sum")
	assert.Equal(t, Number, sw.Kind)
	assert.True(t, sw.IsMissing(1))
}

func TestFromRecords(t *testing.T) {
	tbl, err := FromRecords("date_obs_elab", []map[string]any{
		{"code_site": "Y3210021", "date_obs_elab": "2024-01-01", "resultat_obs_elab": 1200.0},
		{"date_obs_elab": "2024-01-02", "resultat_obs_elab": nil, "latitude": 43.6},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"date_obs_elab", "code_site", "latitude", "resultat_obs_elab"}, tbl.Columns())
	assert.Equal(t, 2, tbl.Len())
	assert.True(t, tbl.Column("code_site").IsMissing(1))
	assert.True(t, tbl.Column("latitude").IsMissing(0))
	assert.Equal(t, 1200.0, tbl.Column("resultat_obs_elab").Float(0))
}

func TestReadCSV(t *testing.T) {
	in := "\ufeffdate,prod_solaire,comment\n2024-01-01,120.5,ok\n2024-01-02,,\n2024-01-03,-4,bad meter\n"
	tbl, err := ReadCSV(strings.NewReader(in), "date")
	require.NoError(t, err)

	assert.Equal(t, []string{"date", "prod_solaire", "comment"}, tbl.Columns())
	assert.Equal(t, 3, tbl.Len())
	assert.Equal(t, Number, tbl.Column("prod_solaire").Kind)
	assert.Equal(t, Text, tbl.Column("comment").Kind)
	assert.True(t, tbl.Column("prod_solaire").IsMissing(1))
	assert.Equal(t, -4.0, tbl.Column("prod_solaire").Float(2))

	empty, err := ReadCSV(strings.NewReader(""), "date")
	require.NoError(t, err)
	assert.True(t, empty.Empty())
}
