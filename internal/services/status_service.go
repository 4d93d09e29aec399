package services

import (
	"context"
	"fmt"

	"energy-forecast/internal/models"
	"energy-forecast/internal/repository"
	"energy-forecast/internal/training"
	"energy-forecast/pkg/logging"
)

// ModelFiles reports which artifacts exist for a producer.
type ModelFiles struct {
	Model     bool   `json:"model"`
	Scaler    bool   `json:"scaler"`
	ModelPath string `json:"model_path"`
}

// SystemStatus summarises the store and the trained models.
type SystemStatus struct {
	StoreHealthy bool                                `json:"store_healthy"`
	StoreError   string                              `json:"store_error,omitempty"`
	Datasets     []repository.CatalogEntry           `json:"datasets"`
	Models       map[models.ProducerType]ModelFiles `json:"models"`
}

// StatusService handles store and model status operations
type StatusService struct {
	repo   repository.TableRepository
	store  *training.ArtifactStore
	logger logging.Logger
}

// NewStatusService creates a new status service
func NewStatusService(repo repository.TableRepository, store *training.ArtifactStore, logger logging.Logger) *StatusService {
	return &StatusService{
		repo:   repo,
		store:  store,
		logger: logger,
	}
}

// Status checks the store, lists the catalog and looks for model artifacts.
// An unhealthy store is reported in the result, a catalog failure is returned.
func (s *StatusService) Status(ctx context.Context) (*SystemStatus, error) {
	status := &SystemStatus{
		StoreHealthy: true,
		Datasets:     []repository.CatalogEntry{},
		Models:       make(map[models.ProducerType]ModelFiles, len(models.AllProducers)),
	}

	for _, p := range models.AllProducers {
		status.Models[p] = ModelFiles{
			Model:     s.store.Exists(p),
			Scaler:    s.store.ScalerExists(p),
			ModelPath: s.store.ModelPath(p),
		}
	}

	if err := s.repo.HealthCheck(ctx); err != nil {
		s.logger.Warn(ctx, "[STATUS_STORE_UNHEALTHY] Store health check failed", logging.Fields{
			"error": err.Error(),
		})
		status.StoreHealthy = false
		status.StoreError = err.Error()
		return status, nil
	}

	entries, err := s.repo.Catalog(ctx)
	if err != nil {
		return status, fmt.Errorf("failed to list datasets: %w", err)
	}
	status.Datasets = entries
	return status, nil
}
