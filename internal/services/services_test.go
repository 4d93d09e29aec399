package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"energy-forecast/internal/dataset"
	"energy-forecast/internal/models"
	"energy-forecast/internal/normalizer"
	"energy-forecast/internal/repository"
	"energy-forecast/internal/sources"
	"energy-forecast/pkg/database"
	"energy-forecast/pkg/logging"
	"energy-forecast/pkg/metrics"
)

var testNow = time.Date(2024, 6, 15, 10, 30, 0, 0, time.UTC)

type testEnv struct {
	repo   repository.TableRepository
	norm   *normalizer.Normalizer
	logger logging.Logger
	m      *metrics.Collector
	clock  clockwork.Clock
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := logging.NewNopLogger()
	m := metrics.NewNopCollector()
	db, err := database.Open(&database.Config{Driver: database.DriverSQLite, Path: ":memory:"}, logger, m)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	clock := clockwork.NewFakeClockAt(testNow)
	return &testEnv{
		repo:   repository.NewTableRepository(db, logger, m, clock, 100),
		norm:   normalizer.New(logger, m),
		logger: logger,
		m:      m,
		clock:  clock,
	}
}

type stubWeather struct {
	forecast *dataset.Table
	history  *dataset.Table
	err      error
}

func (s *stubWeather) Forecast(context.Context, float64, float64, []string) (*dataset.Table, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.forecast.Clone(), nil
}

func (s *stubWeather) Archive(_ context.Context, _, _ float64, _, _ time.Time, _ []string) (*dataset.Table, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.history.Clone(), nil
}

type stubFlow struct {
	start, end time.Time
	table      *dataset.Table
}

func (s *stubFlow) Observations(_ context.Context, _ string, start, end time.Time) (*dataset.Table, error) {
	s.start, s.end = start, end
	return s.table.Clone(), nil
}

// brokenSource loads rows but cannot normalize them.
type brokenSource struct{ name string }

func (b *brokenSource) Name() string              { return b.name }
func (b *brokenSource) Domain() normalizer.Domain { return normalizer.DomainSolar }
func (b *brokenSource) Load(context.Context, sources.Window) (*dataset.Table, error) {
	t := dataset.New("date")
	_ = t.AddText("date", []string{"2024-01-01"})
	return t, nil
}
func (b *brokenSource) Raw(_ context.Context, t *dataset.Table) (*dataset.Table, error) {
	return t, nil
}
func (b *brokenSource) Clean(context.Context, *dataset.Table) (*dataset.Table, error) {
	return nil, errors.New("normalizer exploded")
}

func solarDays(t *testing.T, dates ...string) *dataset.Table {
	t.Helper()
	radiation := make([]any, len(dates))
	times := make([]any, len(dates))
	for i, d := range dates {
		times[i] = d
		radiation[i] = 10.0 + float64(i)
	}
	tbl, err := dataset.FromColumns("time", map[string][]any{
		"time":                    times,
		"shortwave_radiation_sum": radiation,
	})
	require.NoError(t, err)
	return tbl
}

func hubeauRows(t *testing.T) *dataset.Table {
	t.Helper()
	tbl, err := dataset.FromRecords("date_obs_elab", []map[string]any{
		{"code_station": "Y321002101", "date_obs_elab": "2024-06-01", "resultat_obs_elab": 1200.0, "grandeur_hydro_elab": "QmnJ"},
		{"code_station": "Y321002101", "date_obs_elab": "2024-06-02", "resultat_obs_elab": 1300.0, "grandeur_hydro_elab": "QmnJ"},
		{"code_station": "Y321002101", "date_obs_elab": "2024-06-03", "resultat_obs_elab": -1.0, "grandeur_hydro_elab": "QmnJ"},
	})
	require.NoError(t, err)
	return tbl
}

func writeCSV(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestFetchAll_PersistsEveryDataset(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	flow := &stubFlow{table: hubeauRows(t)}
	solar := &stubWeather{
		forecast: solarDays(t, "2024-06-15", "2024-06-16"),
		history:  solarDays(t, "2024-06-01", "2024-06-02", "2024-06-02"),
	}
	prodPath := writeCSV(t, "prod_solaire.csv", "date,prod_solaire\n2024-06-01,120\n2024-06-02,140\n")

	plan := Plan{
		Hydro: sources.NewHydroSource(flow, "Y321002101", env.norm, env.logger, env.m),
		Solar: sources.NewSolarSource(solar, 43.6, 3.8, env.norm, env.logger, env.m),
		Wind:  sources.NewWindSource(&stubWeather{err: errors.New("upstream down")}, 43.6, 3.8, env.norm, env.logger, env.m),
		Production: []sources.Source{
			sources.NewProductionSource(models.Solar, prodPath, env.norm, env.logger, env.m),
			sources.NewProductionSource(models.Wind, filepath.Join(t.TempDir(), "absent.csv"), env.norm, env.logger, env.m),
		},
		WeatherHistoryStart: time.Date(2016, 9, 1, 0, 0, 0, 0, time.UTC),
		HydroHistoryStart:   time.Date(2022, 7, 1, 0, 0, 0, 0, time.UTC),
	}
	svc := NewIngestionService(env.repo, plan, env.clock, env.logger, env.m)

	result := svc.FetchAll(ctx)
	require.NotNil(t, result)
	assert.NotEmpty(t, result.RunID)
	assert.False(t, result.Failed())
	assert.Equal(t, []string{"hubeau", "solar_forecast", "solar_history", "wind_forecast", "wind_history", "prod_solaire", "prod_eolienne"}, result.Order)

	assert.Equal(t, time.Date(2022, 7, 1, 0, 0, 0, 0, time.UTC), flow.start)
	assert.Equal(t, time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC), flow.end)

	hubeau := result.Datasets["hubeau"]
	assert.Equal(t, 3, hubeau.Rows)
	assert.Equal(t, 3, hubeau.RawUpserted)
	assert.Equal(t, 2, hubeau.CleanUpserted)

	history := result.Datasets["solar_history"]
	assert.Equal(t, 3, history.Rows)
	assert.Equal(t, 2, history.CleanUpserted)

	assert.True(t, result.Datasets["wind_forecast"].Skipped)
	assert.True(t, result.Datasets["prod_eolienne"].Skipped)
	assert.Contains(t, result.Errors, "wind_forecast: no data, skipped")

	clean, err := env.repo.Read(ctx, "clean_solar_history", repository.ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, dataset.UnitsCanonical, clean.Units)
	assert.InDelta(t, 2.7778, clean.Column("shortwave_radiation_sum_kwh_m2").Float(0), 1e-9)

	raw, err := env.repo.Read(ctx, "raw_solar_history", repository.ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, dataset.UnitsSource, raw.Units)
	assert.Equal(t, 10.0, raw.Column("shortwave_radiation_sum").Float(0))

	rawHubeau, err := env.repo.Read(ctx, "raw_hubeau", repository.ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, "date_obs_elab", rawHubeau.Key)

	entry, err := env.repo.CatalogEntry(ctx, "clean_prod_solaire")
	require.NoError(t, err)
	assert.Equal(t, result.RunID, entry.RunID)
	assert.Equal(t, 2, entry.RowCount)
}

func TestFetchAll_ResetsForecastTables(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	stale := dataset.New("date")
	require.NoError(t, stale.AddDate("date", []time.Time{time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)}))
	require.NoError(t, stale.AddNumber("shortwave_radiation_sum_kwh_m2", []float64{1}))
	_, err := env.repo.Upsert(ctx, "clean_solar_forecast", stale, "old-run")
	require.NoError(t, err)

	solar := &stubWeather{forecast: solarDays(t, "2024-06-15"), history: solarDays(t, "2024-06-01")}
	svc := NewIngestionService(env.repo, Plan{
		Solar:               sources.NewSolarSource(solar, 0, 0, env.norm, env.logger, env.m),
		WeatherHistoryStart: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}, env.clock, env.logger, env.m)

	result := svc.FetchAll(ctx)
	require.False(t, result.Failed())

	got, err := env.repo.Read(ctx, "clean_solar_forecast", repository.ReadOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, got.Len())
	assert.Equal(t, time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC), got.Column("date").Time(0))
}

func TestFetchAll_RunIsIdempotent(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	prodPath := writeCSV(t, "prod_hydro.csv", "date,prod_hydro\n2024-06-01,500\n2024-06-02,510\n2024-06-02,999\n")
	svc := NewIngestionService(env.repo, Plan{
		Production: []sources.Source{sources.NewProductionSource(models.Hydro, prodPath, env.norm, env.logger, env.m)},
	}, env.clock, env.logger, env.m)

	first := svc.FetchAll(ctx)
	second := svc.FetchAll(ctx)
	assert.NotEqual(t, first.RunID, second.RunID)

	got, err := env.repo.Read(ctx, "clean_prod_hydro", repository.ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, []float64{500, 510}, got.Column(models.TargetColumn).Floats())
}

func TestFetchAll_FailureDoesNotStopOtherDatasets(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	prodPath := writeCSV(t, "prod_solaire.csv", "date,prod_solaire\n2024-06-01,120\n")
	svc := NewIngestionService(env.repo, Plan{
		Production: []sources.Source{
			&brokenSource{name: "prod_broken"},
			sources.NewProductionSource(models.Solar, prodPath, env.norm, env.logger, env.m),
		},
	}, env.clock, env.logger, env.m)

	result := svc.FetchAll(ctx)
	assert.True(t, result.Failed())

	broken := result.Datasets["prod_broken"]
	assert.True(t, broken.Failed)
	assert.Equal(t, 1, broken.RawUpserted)
	assert.Contains(t, broken.Err, "normalizer exploded")

	ok := result.Datasets["prod_solaire"]
	assert.False(t, ok.Failed)
	assert.Equal(t, 1, ok.CleanUpserted)

	var found bool
	for _, e := range result.Errors {
		if strings.HasPrefix(e, "prod_broken:") {
			found = true
		}
	}
	assert.True(t, found)
}

func TestFetchAll_CancelledContext(t *testing.T) {
	env := newEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	prodPath := writeCSV(t, "prod_solaire.csv", "date,prod_solaire\n2024-06-01,120\n")
	svc := NewIngestionService(env.repo, Plan{
		Production: []sources.Source{sources.NewProductionSource(models.Solar, prodPath, env.norm, env.logger, env.m)},
	}, env.clock, env.logger, env.m)

	result := svc.FetchAll(ctx)
	assert.True(t, result.Failed())
	assert.Equal(t, context.Canceled.Error(), result.Datasets["prod_solaire"].Err)
}
