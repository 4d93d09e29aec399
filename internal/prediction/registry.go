package prediction

import (
	"context"
	"sync"

	"energy-forecast/internal/models"
	"energy-forecast/internal/training"
	"energy-forecast/pkg/logging"
)

// Registry holds the predictor of every producer along with its load error.
type Registry struct {
	store  *training.ArtifactStore
	cfg    *models.ModelConfig
	logger logging.Logger

	mu         sync.RWMutex
	predictors map[models.ProducerType]*Predictor
	errs       map[models.ProducerType]error
}

// NewRegistry loads every producer's artifact. cfg supplies the feature list
// each request is checked against. Load failures are kept, not returned.
func NewRegistry(ctx context.Context, store *training.ArtifactStore, cfg *models.ModelConfig, logger logging.Logger) *Registry {
	r := &Registry{store: store, cfg: cfg, logger: logger}
	r.Reload(ctx)
	return r
}

// Reload replaces every predictor with a freshly loaded one.
func (r *Registry) Reload(ctx context.Context) {
	predictors := make(map[models.ProducerType]*Predictor, len(models.AllProducers))
	errs := make(map[models.ProducerType]error)
	for _, p := range models.AllProducers {
		pred, err := NewPredictor(r.store, p, r.cfg.Features(p))
		if err != nil {
			errs[p] = err
			r.logger.Warn(ctx, "[MODEL_LOAD_FAILED] Model could not be loaded", logging.Fields{
				"producer": p,
				"error":    err.Error(),
				"stage":    "LOAD",
			})
			continue
		}
		predictors[p] = pred
		r.logger.Info(ctx, "[MODEL_LOADED] Model loaded", logging.Fields{
			"producer": p,
			"model":    pred.ModelType(),
			"stage":    "LOAD",
		})
	}

	r.mu.Lock()
	r.predictors, r.errs = predictors, errs
	r.mu.Unlock()
}

// Predictor returns the producer's predictor or its load error.
func (r *Registry) Predictor(p models.ProducerType) (*Predictor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if pred, ok := r.predictors[p]; ok {
		return pred, nil
	}
	if err, ok := r.errs[p]; ok {
		return nil, err
	}
	return nil, &ModelNotLoadedError{Producer: p, Err: errUnknownProducer}
}

// Status reports every producer's model.
func (r *Registry) Status() map[models.ProducerType]ModelStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[models.ProducerType]ModelStatus, len(models.AllProducers))
	for _, p := range models.AllProducers {
		if pred, ok := r.predictors[p]; ok {
			out[p] = pred.Status()
			continue
		}
		msg := errUnknownProducer.Error()
		if err, ok := r.errs[p]; ok {
			msg = err.Error()
		}
		out[p] = ModelStatus{Loaded: false, Error: msg}
	}
	return out
}
