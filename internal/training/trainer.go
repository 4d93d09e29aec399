// Package training fits the candidate regressors of each producer on the
// clean tables and persists the one with the lowest test MAE.
package training

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"energy-forecast/internal/models"
	"energy-forecast/internal/repository"
	"energy-forecast/pkg/logging"
	"energy-forecast/pkg/metrics"
)

// CandidateResult is the outcome of one candidate model.
type CandidateResult struct {
	Kind    string  `json:"kind"`
	Scaled  bool    `json:"scaled"`
	Metrics Metrics `json:"metrics"`
	Err     string  `json:"error,omitempty"`
}

// TrainingReport describes one producer's training run.
type TrainingReport struct {
	Producer     models.ProducerType `json:"producer"`
	RunID        string              `json:"run_id"`
	Rows         int                 `json:"rows"`
	TrainRows    int                 `json:"train_rows"`
	TestRows     int                 `json:"test_rows"`
	Features     []string            `json:"features"`
	Warnings     []string            `json:"warnings,omitempty"`
	Candidates   []CandidateResult   `json:"candidates"`
	Best         string              `json:"best"`
	ArtifactPath string              `json:"artifact_path"`
	Duration     time.Duration       `json:"duration"`
}

// BestMetrics returns the test metrics of the persisted model.
func (r *TrainingReport) BestMetrics() Metrics {
	for _, c := range r.Candidates {
		if c.Kind == r.Best {
			return c.Metrics
		}
	}
	return Metrics{}
}

// TrainAllResult groups the reports of a TrainAll run.
type TrainAllResult struct {
	Reports map[models.ProducerType]*TrainingReport `json:"reports"`
	Errors  map[models.ProducerType]string          `json:"errors"`
}

// AllFailed reports whether no producer produced an artifact.
func (r *TrainAllResult) AllFailed() bool {
	return len(r.Reports) == 0
}

// Trainer fits and persists the producer models.
type Trainer struct {
	repo    repository.TableRepository
	store   *ArtifactStore
	cfg     *models.ModelConfig
	clock   clockwork.Clock
	logger  logging.Logger
	metrics *metrics.Collector
}

// NewTrainer creates a new trainer
func NewTrainer(repo repository.TableRepository, store *ArtifactStore, cfg *models.ModelConfig, clock clockwork.Clock, logger logging.Logger, metricsCollector *metrics.Collector) *Trainer {
	return &Trainer{
		repo:    repo,
		store:   store,
		cfg:     cfg,
		clock:   clock,
		logger:  logger,
		metrics: metricsCollector,
	}
}

type candidate struct {
	kind   string
	scaled bool
	fit    func(X [][]float64, y []float64) (Regressor, error)
}

func (t *Trainer) candidates(pc models.ProducerModelConfig) []candidate {
	seed := t.cfg.RandomState
	return []candidate{
		{KindRidge, true, func(X [][]float64, y []float64) (Regressor, error) {
			return fitRidge(X, y, pc.Ridge.Alpha)
		}},
		{KindRandomForest, false, func(X [][]float64, y []float64) (Regressor, error) {
			return fitForest(X, y, pc.RandomForest, seed), nil
		}},
		{KindBoosting, true, func(X [][]float64, y []float64) (Regressor, error) {
			return fitBoosting(X, y, pc.Boosting), nil
		}},
	}
}

// Train fits every candidate for producer, keeps the lowest MAE and saves it.
func (t *Trainer) Train(ctx context.Context, producer models.ProducerType) (*TrainingReport, error) {
	started := t.clock.Now()
	report := &TrainingReport{Producer: producer, RunID: uuid.New().String()}
	pc := t.cfg.For(producer)

	featureTable := models.CleanTable(producer.WeatherDataset())
	productionTable := models.CleanTable(producer.ProductionDataset())

	t.logger.Info(ctx, "[TRAIN_START] Starting model training", logging.Fields{
		"producer":   producer,
		"run_id":     report.RunID,
		"features":   featureTable,
		"production": productionTable,
		"stage":      "INITIALIZATION",
	})

	features, err := t.repo.Read(ctx, featureTable, repository.ReadOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", featureTable, err)
	}
	production, err := t.repo.Read(ctx, productionTable, repository.ReadOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", productionTable, err)
	}

	set, err := buildTrainingSet(features, production, pc.Features)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s training set: %w", producer, err)
	}
	report.Features = set.features
	report.Warnings = set.warnings
	report.Rows = len(set.y)
	for _, w := range set.warnings {
		t.logger.Warn(ctx, "[TRAIN_DATA] "+w, logging.Fields{"producer": producer, "stage": "DATA"})
	}

	trainIdx, testIdx, err := splitIndices(len(set.y), t.cfg.TestSize, t.cfg.RandomState)
	if err != nil {
		return nil, fmt.Errorf("failed to split %s training set: %w", producer, err)
	}
	xTrain, yTrain := pick(set.X, set.y, trainIdx)
	xTest, yTest := pick(set.X, set.y, testIdx)
	report.TrainRows, report.TestRows = len(yTrain), len(yTest)

	scaler := FitScaler(set.features, xTrain)
	xTrainScaled, xTestScaled := scaler.TransformAll(xTrain), scaler.TransformAll(xTest)

	t.logger.Info(ctx, "[TRAIN_DATA] Training set prepared", logging.Fields{
		"producer":   producer,
		"rows":       report.Rows,
		"train_rows": report.TrainRows,
		"test_rows":  report.TestRows,
		"features":   set.features,
		"stage":      "DATA",
	})

	var best Regressor
	var bestCandidate candidate
	bestMAE := math.Inf(1)

	for _, c := range t.candidates(pc) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fitX, evalX := xTrain, xTest
		if c.scaled {
			fitX, evalX = xTrainScaled, xTestScaled
		}

		result := CandidateResult{Kind: c.kind, Scaled: c.scaled}
		model, err := c.fit(fitX, yTrain)
		if err != nil {
			result.Err = err.Error()
			report.Candidates = append(report.Candidates, result)
			t.logger.Warn(ctx, "[TRAIN_MODEL_FAILED] Candidate model could not be fitted", logging.Fields{
				"producer": producer,
				"model":    c.kind,
				"error":    err.Error(),
				"stage":    "FIT",
			})
			continue
		}

		pred := make([]float64, len(evalX))
		for i, x := range evalX {
			pred[i] = model.Predict(x)
		}
		result.Metrics = Evaluate(yTest, pred)
		report.Candidates = append(report.Candidates, result)
		t.metrics.ModelMAE.WithLabelValues(string(producer), c.kind).Set(result.Metrics.MAE)

		t.logger.Info(ctx, "[TRAIN_MODEL] Candidate model evaluated", logging.Fields{
			"producer": producer,
			"model":    c.kind,
			"mae":      result.Metrics.MAE,
			"rmse":     result.Metrics.RMSE,
			"r2":       result.Metrics.R2,
			"stage":    "EVALUATE",
		})

		if result.Metrics.MAE < bestMAE {
			bestMAE, best, bestCandidate = result.Metrics.MAE, model, c
		}
	}
	if best == nil {
		return nil, fmt.Errorf("no candidate model could be fitted for %s", producer)
	}
	report.Best = bestCandidate.kind

	payload, err := json.Marshal(best)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s model: %w", bestCandidate.kind, err)
	}
	artifact := &Artifact{
		Producer:  producer,
		ModelKind: bestCandidate.kind,
		Features:  set.features,
		Metrics:   make(map[string]Metrics, len(report.Candidates)),
		TrainedAt: t.clock.Now().UTC(),
		RunID:     report.RunID,
		Scaled:    bestCandidate.scaled,
		Model:     payload,
	}
	for _, c := range report.Candidates {
		if c.Err == "" {
			artifact.Metrics[c.Kind] = c.Metrics
		}
	}
	if err := t.store.Save(artifact, scaler); err != nil {
		return nil, fmt.Errorf("failed to save %s artifact: %w", producer, err)
	}
	report.ArtifactPath = t.store.ModelPath(producer)

	for _, c := range report.Candidates {
		selected := 0.0
		if c.Kind == report.Best {
			selected = 1
		}
		t.metrics.BestModel.WithLabelValues(string(producer), c.Kind).Set(selected)
	}
	report.Duration = t.clock.Since(started)
	t.metrics.TrainingDuration.WithLabelValues(string(producer)).Observe(report.Duration.Seconds())

	t.logger.Info(ctx, "[TRAIN_BEST_MODEL] Best model saved", logging.Fields{
		"producer": producer,
		"model":    report.Best,
		"mae":      bestMAE,
		"scaled":   bestCandidate.scaled,
		"path":     report.ArtifactPath,
		"stage":    "COMPLETE",
	})
	return report, nil
}

// TrainAll trains every producer in turn. One producer failing does not stop
// the others.
func (t *Trainer) TrainAll(ctx context.Context) *TrainAllResult {
	result := &TrainAllResult{
		Reports: make(map[models.ProducerType]*TrainingReport),
		Errors:  make(map[models.ProducerType]string),
	}
	for _, p := range models.AllProducers {
		report, err := t.Train(ctx, p)
		if err != nil {
			result.Errors[p] = err.Error()
			t.logger.Error(ctx, "[TRAIN_FAILED] Model training failed", logging.Fields{
				"producer": p,
				"stage":    "COMPLETE",
			}, err)
			continue
		}
		result.Reports[p] = report
	}
	return result
}
