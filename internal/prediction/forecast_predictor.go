package prediction

import (
	"context"
	"math"
	"time"

	"github.com/jonboulle/clockwork"

	"energy-forecast/internal/models"
	"energy-forecast/pkg/logging"
	"energy-forecast/pkg/metrics"
)

// Prediction is the predicted production of one forecast day.
type Prediction struct {
	Date          string              `json:"date"`
	PredictionKWh float64             `json:"prediction_kwh"`
	ProducerType  models.ProducerType `json:"producer_type"`
	Features      map[string]float64  `json:"features"`
	ModelType     string              `json:"model_type"`
	Timestamp     time.Time           `json:"timestamp"`
}

// Summary counts the predicted days of a PredictAll run.
type Summary struct {
	SolarDays        int       `json:"solar_days"`
	WindDays         int       `json:"wind_days"`
	HydroDays        int       `json:"hydro_days"`
	TotalPredictions int       `json:"total_predictions"`
	Timestamp        time.Time `json:"timestamp"`
}

// AllPredictions groups the forecast predictions of every producer.
type AllPredictions struct {
	Solar   []Prediction `json:"solar"`
	Wind    []Prediction `json:"wind"`
	Hydro   []Prediction `json:"hydro"`
	Summary Summary      `json:"summary"`
}

// ForecastStatus reports whether forecasts can be produced.
type ForecastStatus struct {
	ForecastAvailability map[models.ProducerType]Availability `json:"forecast_availability"`
	ModelsStatus         map[models.ProducerType]ModelStatus  `json:"models_status"`
	ReadyForPrediction   bool                                 `json:"ready_for_prediction"`
	Timestamp            time.Time                            `json:"timestamp"`
}

// ForecastPredictor runs the registry's models over the stored forecasts.
type ForecastPredictor struct {
	forecasts *ForecastService
	registry  *Registry
	clock     clockwork.Clock
	logger    logging.Logger
	metrics   *metrics.Collector
}

// NewForecastPredictor creates a new forecast predictor
func NewForecastPredictor(forecasts *ForecastService, registry *Registry, clock clockwork.Clock, logger logging.Logger, metricsCollector *metrics.Collector) *ForecastPredictor {
	return &ForecastPredictor{
		forecasts: forecasts,
		registry:  registry,
		clock:     clock,
		logger:    logger,
		metrics:   metricsCollector,
	}
}

// Predict returns one prediction per forecast day. A missing model or an
// unreadable forecast is logged and yields an empty list; a failing day is
// logged and skipped.
func (f *ForecastPredictor) Predict(ctx context.Context, producer models.ProducerType) []Prediction {
	predictor, err := f.registry.Predictor(producer)
	if err != nil {
		f.logger.Error(ctx, "[FORECAST_MODEL_MISSING] Model not loaded", logging.Fields{
			"producer": producer,
			"stage":    "PREDICT",
		}, err)
		return []Prediction{}
	}

	rows, err := f.forecasts.Rows(ctx, producer)
	if err != nil {
		f.logger.Error(ctx, "[FORECAST_READ_FAILED] Forecast rows could not be read", logging.Fields{
			"producer": producer,
			"stage":    "PREDICT",
		}, err)
		return []Prediction{}
	}

	predictions := make([]Prediction, 0, len(rows))
	for _, row := range rows {
		input := make(map[string]any, len(row.Features))
		for k, v := range row.Features {
			input[k] = v
		}
		y, err := predictor.Predict(input)
		if err != nil {
			f.metrics.RecordPrediction(string(producer), "error")
			f.logger.Error(ctx, "[FORECAST_PREDICT_FAILED] Prediction failed for forecast day", logging.Fields{
				"producer": producer,
				"date":     row.Date.Format(time.DateOnly),
				"stage":    "PREDICT",
			}, err)
			continue
		}
		f.metrics.RecordPrediction(string(producer), "ok")
		predictions = append(predictions, Prediction{
			Date:          row.Date.Format(time.DateOnly),
			PredictionKWh: math.Round(y*100) / 100,
			ProducerType:  producer,
			Features:      row.Features,
			ModelType:     predictor.ModelType(),
			Timestamp:     f.clock.Now(),
		})
	}

	f.logger.Info(ctx, "[FORECAST_COMPLETE] Forecast predictions completed", logging.Fields{
		"producer":   producer,
		"rows":       len(rows),
		"successful": len(predictions),
		"stage":      "PREDICT",
	})
	return predictions
}

// PredictAll predicts every producer sequentially.
func (f *ForecastPredictor) PredictAll(ctx context.Context) *AllPredictions {
	out := &AllPredictions{
		Solar: f.Predict(ctx, models.Solar),
		Wind:  f.Predict(ctx, models.Wind),
		Hydro: f.Predict(ctx, models.Hydro),
	}
	out.Summary = Summary{
		SolarDays:        len(out.Solar),
		WindDays:         len(out.Wind),
		HydroDays:        len(out.Hydro),
		TotalPredictions: len(out.Solar) + len(out.Wind) + len(out.Hydro),
		Timestamp:        f.clock.Now(),
	}
	return out
}

// Status combines forecast availability with the model status.
func (f *ForecastPredictor) Status(ctx context.Context) *ForecastStatus {
	status := &ForecastStatus{
		ForecastAvailability: f.forecasts.Availability(ctx),
		ModelsStatus:         f.registry.Status(),
		ReadyForPrediction:   true,
		Timestamp:            f.clock.Now(),
	}
	for _, p := range models.AllProducers {
		if !status.ModelsStatus[p].Loaded || !status.ForecastAvailability[p].Available {
			status.ReadyForPrediction = false
		}
	}
	return status
}
