// Command energy runs the ingestion pipeline, the model training, the
// prediction API and the maintenance tasks of the energy forecast platform.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/jonboulle/clockwork"

	"energy-forecast/internal/config"
	"energy-forecast/internal/models"
	"energy-forecast/internal/normalizer"
	"energy-forecast/internal/repository"
	"energy-forecast/internal/sources"
	"energy-forecast/internal/training"
	"energy-forecast/internal/upstream"
	"energy-forecast/pkg/database"
	"energy-forecast/pkg/logging"
	"energy-forecast/pkg/metrics"
)

const version = "1.0.0"

const usage = `usage: energy <command> [flags]

commands:
  data      fetch, normalize and store every dataset
  train     train the producer models (-producer solar|wind|hydro)
  api       serve the prediction API
  status    check the store, the datasets and the model artifacts
  migrate   create or drop the dataset catalog (-direction up|down)
`

// app holds the components shared by every command.
type app struct {
	cfg     *config.Config
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
	clock   clockwork.Clock
	db      *database.DB
	repo    repository.TableRepository
	models  *models.ModelConfig
	store   *training.ArtifactStore
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	commands := map[string]func(*app, []string) int{
		"data":    runData,
		"train":   runTrain,
		"api":     runAPI,
		"status":  runStatus,
		"migrate": runMigrate,
	}
	run, ok := commands[os.Args[1]]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	a, err := bootstrap("energy-" + os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	code := run(a, os.Args[2:])
	a.db.Close()
	os.Exit(code)
}

func bootstrap(service string) (*app, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	clock := clockwork.NewRealClock()
	if err := cfg.Validate(clock); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger := logging.NewStructuredLogger(service, version, logging.ParseLevel(cfg.Logging.Level))
	metricsCollector := metrics.NewCollector("energy_forecast")

	modelConfig := models.DefaultModelConfig()
	if cfg.Models.ConfigFile != "" {
		modelConfig, err = models.LoadModelConfig(cfg.Models.ConfigFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load model configuration: %w", err)
		}
	}

	if cfg.Database.Driver == database.DriverSQLite {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := database.Open(cfg.DatabaseSettings(), logger, metricsCollector)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:     cfg,
		logger:  logger,
		metrics: metricsCollector,
		clock:   clock,
		db:      db,
		repo:    repository.NewTableRepository(db, logger, metricsCollector, clock, cfg.Database.BatchSize),
		models:  modelConfig,
		store:   training.NewArtifactStore(cfg.Models.Path),
	}, nil
}

// sources builds the ingestion sources on top of the upstream clients.
func (a *app) sources() (hydro, solar, wind sources.Source, production []sources.Source) {
	up := a.cfg.Upstream
	policy := upstream.RetryPolicy{MaxRetries: up.MaxRetries, MinWait: up.MinBackoff, MaxWait: up.MaxBackoff}
	httpClient := &http.Client{Timeout: up.Timeout}

	meteo := upstream.NewOpenMeteo(
		upstream.NewBaseClient(httpClient, "open-meteo", policy, up.UserAgent),
		upstream.OpenMeteoConfig{
			ForecastURL:  up.OpenMeteoForecastURL,
			ArchiveURL:   up.OpenMeteoArchiveURL,
			ForecastDays: up.ForecastDays,
			Timezone:     a.cfg.Site.Timezone,
		},
	)
	hubeau := upstream.NewHubeau(
		upstream.NewBaseClient(httpClient, "hubeau", policy, up.UserAgent),
		up.HubeauURL, up.HubeauPageSize,
	)

	norm := normalizer.New(a.logger, a.metrics)
	site := a.cfg.Site
	hydro = sources.NewHydroSource(hubeau, site.HubeauStation, norm, a.logger, a.metrics)
	solar = sources.NewSolarSource(meteo, site.Latitude, site.Longitude, norm, a.logger, a.metrics)
	wind = sources.NewWindSource(meteo, site.Latitude, site.Longitude, norm, a.logger, a.metrics)

	pipe := a.cfg.Pipeline
	csvs := map[models.ProducerType]string{
		models.Hydro: pipe.HydroProductionCSV,
		models.Solar: pipe.SolarProductionCSV,
		models.Wind:  pipe.WindProductionCSV,
	}
	for _, p := range models.AllProducers {
		path := filepath.Join(pipe.DataRawPath, csvs[p])
		production = append(production, sources.NewProductionSource(p, path, norm, a.logger, a.metrics))
	}
	return hydro, solar, wind, production
}

func (a *app) nominalPowers() map[models.ProducerType]float64 {
	out := make(map[models.ProducerType]float64, len(models.AllProducers))
	for _, p := range models.AllProducers {
		out[p] = a.cfg.Site.NominalPower(p)
	}
	return out
}

func (a *app) fatal(ctx context.Context, tag string, err error) int {
	a.logger.Error(ctx, tag, logging.Fields{}, err)
	fmt.Fprintf(os.Stderr, "%v\n", err)
	return 1
}
