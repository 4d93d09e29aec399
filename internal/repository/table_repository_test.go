package repository

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"energy-forecast/internal/dataset"
	"energy-forecast/pkg/database"
	"energy-forecast/pkg/logging"
	"energy-forecast/pkg/metrics"
)

var testNow = time.Date(2024, 6, 15, 8, 0, 0, 0, time.UTC)

func newTestRepo(t *testing.T, batchSize int) (TableRepository, *database.DB) {
	t.Helper()
	logger := logging.NewNopLogger()
	m := metrics.NewNopCollector()
	db, err := database.Open(&database.Config{Driver: database.DriverSQLite, Path: ":memory:"}, logger, m)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewTableRepository(db, logger, m, clockwork.NewFakeClockAt(testNow), batchSize), db
}

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func flowTable(t *testing.T, days []int, flows []float64) *dataset.Table {
	t.Helper()
	dates := make([]time.Time, len(days))
	for i, d := range days {
		dates[i] = day(d)
	}
	tbl := dataset.New("date")
	tbl.Units = dataset.UnitsCanonical
	require.NoError(t, tbl.AddDate("date", dates))
	require.NoError(t, tbl.AddNumber("debit_l_s", flows))
	return tbl
}

func TestUpsert_CreatesTableAndCatalog(t *testing.T) {
	repo, _ := newTestRepo(t, 2)
	ctx := context.Background()

	res, err := repo.Upsert(ctx, "clean_hubeau", flowTable(t, []int{1, 2, 3}, []float64{10, math.NaN(), 30}), "run-1")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Rows)
	assert.Equal(t, 3, res.Written)
	assert.False(t, res.Fallback)

	exists, err := repo.Exists(ctx, "clean_hubeau")
	require.NoError(t, err)
	assert.True(t, exists)

	entry, err := repo.CatalogEntry(ctx, "clean_hubeau")
	require.NoError(t, err)
	assert.Equal(t, "date", entry.KeyColumn)
	assert.Equal(t, string(dataset.UnitsCanonical), entry.Units)
	assert.Equal(t, 3, entry.RowCount)
	assert.Equal(t, "run-1", entry.RunID)
	assert.True(t, entry.UpdatedAt.Equal(testNow))

	got, err := repo.Read(ctx, "clean_hubeau", ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, dataset.UnitsCanonical, got.Units)
	assert.Equal(t, "date", got.Key)
	assert.Equal(t, dataset.Date, got.Column("date").Kind)
	assert.Equal(t, day(2), got.Column("date").Time(1))
	assert.True(t, got.Column("debit_l_s").IsMissing(1))
	assert.Equal(t, 30.0, got.Column("debit_l_s").Float(2))
}

func TestUpsert_IsIdempotent(t *testing.T) {
	repo, _ := newTestRepo(t, 500)
	ctx := context.Background()

	_, err := repo.Upsert(ctx, "clean_hubeau", flowTable(t, []int{1, 2}, []float64{10, 20}), "run-1")
	require.NoError(t, err)
	_, err = repo.Upsert(ctx, "clean_hubeau", flowTable(t, []int{2, 3}, []float64{25, 30}), "run-2")
	require.NoError(t, err)

	got, err := repo.Read(ctx, "clean_hubeau", ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 25, 30}, got.Column("debit_l_s").Floats())

	entry, err := repo.CatalogEntry(ctx, "clean_hubeau")
	require.NoError(t, err)
	assert.Equal(t, 3, entry.RowCount)
	assert.Equal(t, "run-2", entry.RunID)
}

func TestUpsert_AddsNewColumns(t *testing.T) {
	repo, db := newTestRepo(t, 500)
	ctx := context.Background()

	_, err := repo.Upsert(ctx, "raw_hubeau", flowTable(t, []int{1}, []float64{10}), "run-1")
	require.NoError(t, err)

	wider := flowTable(t, []int{2}, []float64{20})
	require.NoError(t, wider.AddText("code_station", []string{"Y321002101"}))
	_, err = repo.Upsert(ctx, "raw_hubeau", wider, "run-2")
	require.NoError(t, err)

	cols, err := db.Columns(ctx, "raw_hubeau")
	require.NoError(t, err)
	if diff := cmp.Diff([]string{"date", "debit_l_s", "code_station"}, cols); diff != "" {
		t.Errorf("columns mismatch (-want +got):\n%s", diff)
	}
}

func TestUpsert_FallsBackRowByRow(t *testing.T) {
	repo, db := newTestRepo(t, 10)
	ctx := context.Background()

	_, err := db.ExecContext(ctx, "create", `CREATE TABLE clean_prod_hydro (date TEXT PRIMARY KEY, production_kwh REAL CHECK (production_kwh < 1000))`)
	require.NoError(t, err)

	tbl := dataset.New("date")
	require.NoError(t, tbl.AddDate("date", []time.Time{day(1), day(2), day(3)}))
	require.NoError(t, tbl.AddNumber("production_kwh", []float64{100, 5000, 300}))

	res, err := repo.Upsert(ctx, "clean_prod_hydro", tbl, "run-1")
	require.NoError(t, err)
	assert.True(t, res.Fallback)
	assert.Equal(t, 2, res.Written)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, []string{"2024-01-02"}, res.FailedKeys)

	got, err := repo.Read(ctx, "clean_prod_hydro", ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, []float64{100, 300}, got.Column("production_kwh").Floats())
	// the upserted table carried no units tag
	assert.Equal(t, dataset.UnitsSource, got.Units)
}

func TestUpsert_RejectsBadIdentifiers(t *testing.T) {
	repo, _ := newTestRepo(t, 500)
	ctx := context.Background()

	_, err := repo.Upsert(ctx, "clean; DROP TABLE x", flowTable(t, []int{1}, []float64{1}), "run")
	var schemaErr *dataset.SchemaError
	require.True(t, errors.As(err, &schemaErr))

	bad := flowTable(t, []int{1}, []float64{1})
	require.NoError(t, bad.AddNumber("Debit L/s", []float64{1}))
	_, err = repo.Upsert(ctx, "clean_hubeau", bad, "run")
	require.True(t, errors.As(err, &schemaErr))
}

func TestUpsert_EmptyTableIsNoop(t *testing.T) {
	repo, _ := newTestRepo(t, 500)
	ctx := context.Background()

	res, err := repo.Upsert(ctx, "clean_solar_forecast", dataset.New("date"), "run")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Rows)

	exists, err := repo.Exists(ctx, "clean_solar_forecast")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRead_Options(t *testing.T) {
	repo, _ := newTestRepo(t, 500)
	ctx := context.Background()

	tbl := flowTable(t, []int{1, 2, 3, 4, 5}, []float64{1, 2, 3, 4, 5})
	require.NoError(t, tbl.AddNumber("other", []float64{9, 9, 9, 9, 9}))
	_, err := repo.Upsert(ctx, "clean_hubeau", tbl, "run")
	require.NoError(t, err)

	got, err := repo.Read(ctx, "clean_hubeau", ReadOptions{Columns: []string{"debit_l_s", "absent"}, Descending: true, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"date", "debit_l_s"}, got.Columns())
	assert.Equal(t, []float64{5, 4}, got.Column("debit_l_s").Floats())

	start, end := day(2), day(3)
	got, err = repo.Read(ctx, "clean_hubeau", ReadOptions{Start: &start, End: &end})
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 3}, got.Column("debit_l_s").Floats())
}

func TestRead_MissingTable(t *testing.T) {
	repo, _ := newTestRepo(t, 500)

	_, err := repo.Read(context.Background(), "clean_wind_history", ReadOptions{})
	var notFound *NotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "clean_wind_history", notFound.ID)
	assert.False(t, notFound.IsTransient())
}

func TestTruncate(t *testing.T) {
	repo, _ := newTestRepo(t, 500)
	ctx := context.Background()

	require.NoError(t, repo.Truncate(ctx, "clean_solar_forecast"))

	_, err := repo.Upsert(ctx, "clean_solar_forecast", flowTable(t, []int{1, 2}, []float64{1, 2}), "run")
	require.NoError(t, err)
	require.NoError(t, repo.Truncate(ctx, "clean_solar_forecast"))

	got, err := repo.Read(ctx, "clean_solar_forecast", ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, got.Len())

	entry, err := repo.CatalogEntry(ctx, "clean_solar_forecast")
	require.NoError(t, err)
	assert.Equal(t, 0, entry.RowCount)
}

func TestMigrateAndCatalog(t *testing.T) {
	repo, _ := newTestRepo(t, 500)
	ctx := context.Background()

	entries, err := repo.Catalog(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.NoError(t, repo.Migrate(ctx, "up"))
	_, err = repo.Upsert(ctx, "raw_hubeau", flowTable(t, []int{1}, []float64{1}), "run")
	require.NoError(t, err)
	_, err = repo.Upsert(ctx, "clean_hubeau", flowTable(t, []int{1}, []float64{1}), "run")
	require.NoError(t, err)

	entries, err = repo.Catalog(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "clean_hubeau", entries[0].Name)

	require.NoError(t, repo.Migrate(ctx, "down"))
	_, err = repo.CatalogEntry(ctx, "clean_hubeau")
	var notFound *NotFoundError
	require.True(t, errors.As(err, &notFound))

	require.Error(t, repo.Migrate(ctx, "sideways"))
	require.NoError(t, repo.HealthCheck(ctx))
}
