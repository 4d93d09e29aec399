package prediction

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"energy-forecast/internal/models"
	"energy-forecast/internal/repository"
	"energy-forecast/pkg/logging"
)

var errUnknownProducer = errors.New("no model registered for producer")

// HydroWindow is the number of most recent flow observations averaged into
// the single hydro forecast row.
const HydroWindow = 7

// FeatureRow is one forecast day ready for prediction.
type FeatureRow struct {
	Date     time.Time
	Features map[string]float64
}

// Availability reports whether a producer has forecast rows.
type Availability struct {
	Available bool   `json:"available"`
	Days      int    `json:"days"`
	Error     string `json:"error,omitempty"`
}

// ForecastService turns the stored clean forecast tables into feature rows.
type ForecastService struct {
	repo     repository.TableRepository
	features func(models.ProducerType) []string
	logger   logging.Logger
}

// NewForecastService creates a forecast reader using the model config's
// feature lists.
func NewForecastService(repo repository.TableRepository, cfg *models.ModelConfig, logger logging.Logger) *ForecastService {
	return &ForecastService{repo: repo, features: cfg.Features, logger: logger}
}

// clamp keeps a forecast value inside the physical range of its feature.
func clamp(feature string, v float64) float64 {
	switch feature {
	case "shortwave_radiation_sum_kwh_m2", "sunshine_duration",
		"wind_speed_10m_max", "wind_gusts_10m_max", "debit_l_s":
		return math.Max(0, v)
	case "cloud_cover_mean", "relative_humidity_2m_mean":
		return math.Min(100, math.Max(0, v))
	case "wind_direction_10m_dominant":
		d := math.Mod(v, 360)
		if d < 0 {
			d += 360
		}
		return d
	}
	return v
}

// Rows returns the forecast days of producer in date order.
func (s *ForecastService) Rows(ctx context.Context, producer models.ProducerType) ([]FeatureRow, error) {
	if producer == models.Hydro {
		return s.hydroRows(ctx)
	}

	table := models.CleanTable(producer.ForecastDataset())
	wanted := s.features(producer)
	t, err := s.repo.Read(ctx, table, repository.ReadOptions{Columns: wanted})
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", table, err)
	}

	dates := t.Column(models.DateColumn)
	rows := make([]FeatureRow, 0, t.Len())
	skipped := 0
	for i := 0; i < t.Len(); i++ {
		if dates == nil || dates.IsMissing(i) {
			skipped++
			continue
		}
		row := FeatureRow{Date: dates.Time(i), Features: make(map[string]float64, len(wanted))}
		complete := true
		for _, name := range wanted {
			c := t.Column(name)
			if c == nil || c.IsMissing(i) {
				complete = false
				break
			}
			row.Features[name] = clamp(name, c.Float(i))
		}
		if !complete {
			skipped++
			continue
		}
		rows = append(rows, row)
	}

	if skipped > 0 {
		s.logger.Warn(ctx, "[FORECAST_ROWS_SKIPPED] Forecast rows missing required features", logging.Fields{
			"producer": producer,
			"table":    table,
			"skipped":  skipped,
			"stage":    "FORECAST",
		})
	}
	s.logger.Debug(ctx, "[FORECAST_ROWS] Forecast rows loaded", logging.Fields{
		"producer": producer,
		"rows":     len(rows),
		"stage":    "FORECAST",
	})
	return rows, nil
}

// hydroRows averages the latest flows into one row dated at the newest day.
func (s *ForecastService) hydroRows(ctx context.Context) ([]FeatureRow, error) {
	table := models.CleanTable(models.Hydro.ForecastDataset())
	t, err := s.repo.Read(ctx, table, repository.ReadOptions{
		Columns:    []string{"debit_l_s"},
		Descending: true,
		Limit:      HydroWindow,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", table, err)
	}

	flows, dates := t.Column("debit_l_s"), t.Column(models.DateColumn)
	if flows == nil || dates == nil || t.Empty() {
		return nil, nil
	}
	sum, n := 0.0, 0
	for i := 0; i < t.Len(); i++ {
		if flows.IsMissing(i) {
			continue
		}
		sum += clamp("debit_l_s", flows.Float(i))
		n++
	}
	if n == 0 {
		return nil, nil
	}

	mean := sum / float64(n)
	s.logger.Debug(ctx, "[FORECAST_HYDRO] Hydro forecast from recent flows", logging.Fields{
		"mean_flow": mean,
		"days":      n,
		"stage":     "FORECAST",
	})
	return []FeatureRow{{Date: dates.Time(0), Features: map[string]float64{"debit_l_s": mean}}}, nil
}

// Availability reports forecast rows per producer. Read errors are reported
// per producer rather than returned.
func (s *ForecastService) Availability(ctx context.Context) map[models.ProducerType]Availability {
	out := make(map[models.ProducerType]Availability, len(models.AllProducers))
	for _, p := range models.AllProducers {
		rows, err := s.Rows(ctx, p)
		if err != nil {
			out[p] = Availability{Error: err.Error()}
			continue
		}
		out[p] = Availability{Available: len(rows) > 0, Days: len(rows)}
	}
	return out
}
