package sources

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"energy-forecast/internal/dataset"
	"energy-forecast/internal/models"
	"energy-forecast/internal/normalizer"
	"energy-forecast/pkg/logging"
	"energy-forecast/pkg/metrics"
)

type stubWeather struct {
	forecastCalls int
	archiveCalls  int
	start, end    time.Time
	table         *dataset.Table
	err           error
}

func (s *stubWeather) Forecast(_ context.Context, _, _ float64, _ []string) (*dataset.Table, error) {
	s.forecastCalls++
	return s.table, s.err
}

func (s *stubWeather) Archive(_ context.Context, _, _ float64, start, end time.Time, _ []string) (*dataset.Table, error) {
	s.archiveCalls++
	s.start, s.end = start, end
	return s.table, s.err
}

type stubFlow struct {
	calls int
	table *dataset.Table
	err   error
}

func (s *stubFlow) Observations(context.Context, string, time.Time, time.Time) (*dataset.Table, error) {
	s.calls++
	return s.table, s.err
}

func testDeps() (*normalizer.Normalizer, logging.Logger, *metrics.Collector) {
	m := metrics.NewCollectorWithRegistry("test", prometheus.NewRegistry())
	logger := logging.NewNopLogger()
	return normalizer.New(logger, m), logger, m
}

func solarRaw(t *testing.T) *dataset.Table {
	t.Helper()
	tbl, err := dataset.FromColumns("time", map[string][]any{
		"time":                    {"2024-06-01", "2024-06-02"},
		"shortwave_radiation_sum": {10.0, 20.0},
	})
	require.NoError(t, err)
	return tbl
}

func TestWeatherSource_SelectsFetcherByWindow(t *testing.T) {
	norm, logger, m := testDeps()
	fetcher := &stubWeather{table: solarRaw(t)}
	src := NewSolarSource(fetcher, 43.6, 3.8, norm, logger, m)

	_, err := src.Load(context.Background(), ForecastWindow())
	require.NoError(t, err)
	assert.Equal(t, 1, fetcher.forecastCalls)
	assert.Equal(t, 0, fetcher.archiveCalls)

	start := time.Date(2016, 9, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC)
	tbl, err := src.Load(context.Background(), HistoryWindow(start, end))
	require.NoError(t, err)
	assert.Equal(t, 1, fetcher.archiveCalls)
	assert.Equal(t, start, fetcher.start)
	assert.Equal(t, end, fetcher.end)
	assert.Equal(t, 2, tbl.Len())

	assert.Equal(t, 2.0, testutil.ToFloat64(m.FetchTotal.WithLabelValues("solar", "success")))
}

func TestWeatherSource_FetchFailureDegradesToEmpty(t *testing.T) {
	norm, logger, m := testDeps()
	src := NewWindSource(&stubWeather{err: errors.New("connection refused")}, 43.6, 3.8, norm, logger, m)

	tbl, err := src.Load(context.Background(), ForecastWindow())
	require.NoError(t, err)
	assert.True(t, tbl.Empty())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchTotal.WithLabelValues("wind", "failure")))
}

func TestWeatherSource_HistoryNeedsBounds(t *testing.T) {
	norm, logger, m := testDeps()
	src := NewSolarSource(&stubWeather{}, 0, 0, norm, logger, m)

	_, err := src.Load(context.Background(), Window{})
	assert.ErrorIs(t, err, ErrWindow)
}

func TestWeatherSource_CleanAndRaw(t *testing.T) {
	norm, logger, m := testDeps()
	src := NewSolarSource(&stubWeather{}, 0, 0, norm, logger, m)
	ctx := context.Background()

	clean, err := src.Clean(ctx, solarRaw(t))
	require.NoError(t, err)
	assert.InDelta(t, 2.7778, clean.Column("shortwave_radiation_sum_kwh_m2").Float(0), 1e-9)
	assert.Equal(t, dataset.UnitsCanonical, clean.Units)

	raw, err := src.Raw(ctx, solarRaw(t))
	require.NoError(t, err)
	assert.Equal(t, 10.0, raw.Column("shortwave_radiation_sum").Float(0))
	assert.True(t, raw.Has(models.DateColumn))
}

func TestHydroSource(t *testing.T) {
	norm, logger, m := testDeps()
	fetcher := &stubFlow{table: dataset.New("date_obs_elab")}
	src := NewHydroSource(fetcher, "Y321002101", norm, logger, m)
	assert.Equal(t, "hubeau", src.Name())
	assert.Equal(t, normalizer.DomainHydro, src.Domain())

	tbl, err := src.Load(context.Background(), ForecastWindow())
	require.NoError(t, err)
	assert.True(t, tbl.Empty())
	assert.Equal(t, 0, fetcher.calls)

	fetcher.err = errors.New("timeout")
	now := time.Now()
	tbl, err = src.Load(context.Background(), HistoryWindow(now.AddDate(0, 0, -7), now))
	require.NoError(t, err)
	assert.True(t, tbl.Empty())
	assert.Equal(t, 1, fetcher.calls)
}

func TestProductionSource(t *testing.T) {
	norm, logger, m := testDeps()
	dir := t.TempDir()
	path := filepath.Join(dir, "prod_solaire.csv")
	require.NoError(t, os.WriteFile(path, []byte("date,prod_solaire\n2024-01-01,120\n2024-01-02,-5\n2024-01-01,999\n"), 0o644))

	src := NewProductionSource(models.Solar, path, norm, logger, m)
	assert.Equal(t, "prod_solaire", src.Name())
	assert.Equal(t, models.Solar, src.Producer())

	tbl, err := src.Load(context.Background(), Window{})
	require.NoError(t, err)
	assert.Equal(t, 3, tbl.Len())

	clean, err := src.Clean(context.Background(), tbl)
	require.NoError(t, err)
	assert.Equal(t, []string{models.DateColumn, models.TargetColumn}, clean.Columns())
	assert.Equal(t, []float64{120}, clean.Column(models.TargetColumn).Floats())
}

func TestProductionSource_MissingFile(t *testing.T) {
	norm, logger, m := testDeps()
	src := NewProductionSource(models.Hydro, filepath.Join(t.TempDir(), "absent.csv"), norm, logger, m)

	tbl, err := src.Load(context.Background(), Window{})
	require.NoError(t, err)
	assert.True(t, tbl.Empty())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchTotal.WithLabelValues("prod_hydro", "failure")))
}
