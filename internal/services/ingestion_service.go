package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"energy-forecast/internal/dataset"
	"energy-forecast/internal/models"
	"energy-forecast/internal/repository"
	"energy-forecast/internal/sources"
	"energy-forecast/pkg/logging"
	"energy-forecast/pkg/metrics"
)

// Plan names the sources of one ingestion run and the history bounds.
// Nil sources are skipped.
type Plan struct {
	Hydro      sources.Source
	Solar      sources.Source
	Wind       sources.Source
	Production []sources.Source

	WeatherHistoryStart time.Time
	HydroHistoryStart   time.Time
}

// ForecastTables are reset at the start of every run so stale forecast days
// never survive a newer fetch.
var ForecastTables = []string{
	models.RawTable("solar_forecast"),
	models.CleanTable("solar_forecast"),
	models.RawTable("wind_forecast"),
	models.CleanTable("wind_forecast"),
}

// IngestionService fetches every source, normalizes it and persists the raw
// and clean variants.
type IngestionService struct {
	repo    repository.TableRepository
	plan    Plan
	clock   clockwork.Clock
	logger  logging.Logger
	metrics *metrics.Collector
}

// NewIngestionService creates a new ingestion service
func NewIngestionService(repo repository.TableRepository, plan Plan, clock clockwork.Clock, logger logging.Logger, metricsCollector *metrics.Collector) *IngestionService {
	return &IngestionService{
		repo:    repo,
		plan:    plan,
		clock:   clock,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// DatasetResult reports one dataset of a run.
type DatasetResult struct {
	Name          string `json:"name"`
	Rows          int    `json:"rows"`
	RawUpserted   int    `json:"raw_upserted"`
	CleanUpserted int    `json:"clean_upserted"`
	Skipped       bool   `json:"skipped"`
	Failed        bool   `json:"failed"`
	Err           string `json:"error,omitempty"`
}

// PipelineResult contains the outcome of a FetchAll run
type PipelineResult struct {
	RunID    string                    `json:"run_id"`
	Order    []string                  `json:"order"`
	Datasets map[string]*DatasetResult `json:"datasets"`
	Duration time.Duration             `json:"duration"`
	Errors   []string                  `json:"errors"`
}

// Failed reports whether any dataset failed to load, normalize or persist.
// Empty datasets are skipped, not failed.
func (r *PipelineResult) Failed() bool {
	for _, d := range r.Datasets {
		if d.Failed {
			return true
		}
	}
	return false
}

func (r *PipelineResult) dataset(name string) *DatasetResult {
	if d, ok := r.Datasets[name]; ok {
		return d
	}
	d := &DatasetResult{Name: name}
	r.Datasets[name] = d
	r.Order = append(r.Order, name)
	return d
}

type job struct {
	name   string
	source sources.Source
	window sources.Window
}

// today is the current day at midnight UTC.
func (s *IngestionService) today() time.Time {
	now := s.clock.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func (s *IngestionService) jobs() []job {
	today := s.today()
	var jobs []job
	if s.plan.Hydro != nil {
		jobs = append(jobs, job{"hubeau", s.plan.Hydro, sources.HistoryWindow(s.plan.HydroHistoryStart, today)})
	}
	if s.plan.Solar != nil {
		jobs = append(jobs,
			job{"solar_forecast", s.plan.Solar, sources.ForecastWindow()},
			job{"solar_history", s.plan.Solar, sources.HistoryWindow(s.plan.WeatherHistoryStart, today)},
		)
	}
	if s.plan.Wind != nil {
		jobs = append(jobs,
			job{"wind_forecast", s.plan.Wind, sources.ForecastWindow()},
			job{"wind_history", s.plan.Wind, sources.HistoryWindow(s.plan.WeatherHistoryStart, today)},
		)
	}
	for _, src := range s.plan.Production {
		jobs = append(jobs, job{src.Name(), src, sources.Window{}})
	}
	return jobs
}

// FetchAll runs the whole ingestion sequentially. It never returns early on
// a dataset failure: every dataset is attempted and reported.
func (s *IngestionService) FetchAll(ctx context.Context) *PipelineResult {
	started := s.clock.Now()
	result := &PipelineResult{
		RunID:    uuid.New().String(),
		Datasets: make(map[string]*DatasetResult),
	}

	s.logger.Info(ctx, "[INGEST_START] Starting data ingestion", logging.Fields{
		"run_id": result.RunID,
		"today":  s.today().Format(time.DateOnly),
		"stage":  "INITIALIZATION",
	})

	for _, table := range ForecastTables {
		if err := s.repo.Truncate(ctx, table); err != nil {
			s.logger.Warn(ctx, "[INGEST_RESET_FAILED] Failed to reset forecast table", logging.Fields{
				"table": table,
				"error": err.Error(),
				"stage": "RESET",
			})
			result.Errors = append(result.Errors, fmt.Sprintf("reset %s: %v", table, err))
		}
	}

	for _, j := range s.jobs() {
		d := result.dataset(j.name)
		if err := ctx.Err(); err != nil {
			d.Failed, d.Err = true, err.Error()
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", j.name, err))
			continue
		}
		if err := s.ingest(ctx, j, result.RunID, d); err != nil {
			d.Failed, d.Err = true, err.Error()
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", j.name, err))
			s.logger.Error(ctx, "[INGEST_DATASET_ERROR] Dataset ingestion failed", logging.Fields{
				"dataset": j.name,
				"stage":   "PROCESSING",
			}, err)
			continue
		}
		if d.Skipped {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: no data, skipped", j.name))
		}
	}

	result.Duration = s.clock.Since(started)
	s.metrics.PipelineDuration.Observe(result.Duration.Seconds())

	s.logger.Info(ctx, "[INGEST_COMPLETE] Data ingestion completed", logging.Fields{
		"run_id":           result.RunID,
		"datasets":         len(result.Datasets),
		"failed":           result.Failed(),
		"warnings":         len(result.Errors),
		"duration_seconds": result.Duration.Seconds(),
		"stage":            "COMPLETE",
	})

	return result
}

func (s *IngestionService) ingest(ctx context.Context, j job, runID string, d *DatasetResult) error {
	loaded, err := j.source.Load(ctx, j.window)
	if err != nil {
		return fmt.Errorf("load: %w", err)
	}
	if loaded.Empty() {
		d.Skipped = true
		s.logger.Warn(ctx, "[INGEST_EMPTY] Dataset is empty, skipping", logging.Fields{
			"dataset": j.name,
			"stage":   "PROCESSING",
		})
		return nil
	}
	d.Rows = loaded.Len()

	raw, err := j.source.Raw(ctx, loaded)
	if err != nil {
		return fmt.Errorf("raw: %w", err)
	}
	d.RawUpserted, err = s.upsert(ctx, models.RawTable(j.name), raw, runID)
	if err != nil {
		return err
	}

	clean, err := j.source.Clean(ctx, loaded)
	if err != nil {
		return fmt.Errorf("clean: %w", err)
	}
	d.CleanUpserted, err = s.upsert(ctx, models.CleanTable(j.name), clean, runID)
	if err != nil {
		return err
	}

	s.logger.Info(ctx, "[INGEST_DATASET_COMPLETE] Dataset persisted", logging.Fields{
		"dataset":        j.name,
		"rows":           d.Rows,
		"raw_upserted":   d.RawUpserted,
		"clean_upserted": d.CleanUpserted,
		"stage":          "PROCESSING",
	})
	return nil
}

func (s *IngestionService) upsert(ctx context.Context, table string, t *dataset.Table, runID string) (int, error) {
	res, err := s.repo.Upsert(ctx, table, t, runID)
	if err != nil {
		return 0, fmt.Errorf("upsert %s: %w", table, err)
	}
	return res.Written, nil
}
