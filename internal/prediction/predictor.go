// Package prediction serves the persisted producer models: single predictions
// from caller supplied features and day by day predictions over the stored
// weather forecasts.
package prediction

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"energy-forecast/internal/models"
	"energy-forecast/internal/training"
)

// ModelNotLoadedError is returned when a producer's artifact cannot be loaded.
type ModelNotLoadedError struct {
	Producer models.ProducerType
	Err      error
}

func (e *ModelNotLoadedError) Error() string {
	return fmt.Sprintf("model %s not loaded: %v", e.Producer, e.Err)
}

func (e *ModelNotLoadedError) Unwrap() error {
	return e.Err
}

// IsTransient returns false: a missing artifact needs a training run.
func (e *ModelNotLoadedError) IsTransient() bool {
	return false
}

// ModelStatus describes a loaded (or failed) producer model.
type ModelStatus struct {
	Loaded    bool                        `json:"loaded"`
	ModelType string                      `json:"model_type,omitempty"`
	HasScaler bool                        `json:"has_scaler"`
	TrainedAt *time.Time                  `json:"trained_at,omitempty"`
	Features  []string                    `json:"features,omitempty"`
	Metrics   map[string]training.Metrics `json:"metrics,omitempty"`
	Error     string                      `json:"error,omitempty"`
}

// Predictor runs one producer's model. It is immutable once loaded.
type Predictor struct {
	producer models.ProducerType
	required []string
	artifact *training.Artifact
	scaler   *training.Scaler
	model    training.Regressor
}

// NewPredictor loads the artifact of producer. required is the producer's
// configured feature list: a request must carry all of it even when the
// artifact was trained on fewer columns. Every failure is a
// *ModelNotLoadedError.
func NewPredictor(store *training.ArtifactStore, producer models.ProducerType, required []string) (*Predictor, error) {
	artifact, scaler, err := store.Load(producer)
	if err != nil {
		return nil, &ModelNotLoadedError{Producer: producer, Err: err}
	}
	model, err := artifact.Regressor()
	if err != nil {
		return nil, &ModelNotLoadedError{Producer: producer, Err: err}
	}
	return &Predictor{
		producer: producer,
		required: requiredFeatures(required, artifact.Features),
		artifact: artifact,
		scaler:   scaler,
		model:    model,
	}, nil
}

// requiredFeatures is the configured list followed by any artifact feature
// it does not name.
func requiredFeatures(configured, trained []string) []string {
	out := append([]string(nil), configured...)
	seen := make(map[string]bool, len(out))
	for _, f := range out {
		seen[f] = true
	}
	for _, f := range trained {
		if !seen[f] {
			out = append(out, f)
			seen[f] = true
		}
	}
	return out
}

func (p *Predictor) Producer() models.ProducerType { return p.producer }
func (p *Predictor) ModelType() string              { return p.artifact.ModelKind }

// Features returns the feature order the model expects.
func (p *Predictor) Features() []string {
	return append([]string(nil), p.artifact.Features...)
}

// Required returns the features a request must carry.
func (p *Predictor) Required() []string {
	return append([]string(nil), p.required...)
}

// Predict validates every required feature before running the model and
// returns a non-negative production in kWh. Unknown keys are ignored.
func (p *Predictor) Predict(features map[string]any) (float64, error) {
	values := make(map[string]float64, len(p.required))
	for _, name := range p.required {
		raw, ok := features[name]
		if !ok || raw == nil {
			return 0, &models.ValidationError{Field: name, Message: fmt.Sprintf("missing feature %s", name)}
		}
		v, err := toFloat(raw)
		if err != nil {
			return 0, &models.ValidationError{Field: name, Value: fmt.Sprint(raw), Message: fmt.Sprintf("feature %s: %v", name, err)}
		}
		values[name] = v
	}

	x := make([]float64, len(p.artifact.Features))
	for i, name := range p.artifact.Features {
		x[i] = values[name]
	}

	if p.scaler != nil {
		x = p.scaler.Transform(x)
	}
	y := p.model.Predict(x)
	if math.IsNaN(y) {
		return 0, fmt.Errorf("model %s returned NaN", p.producer)
	}
	return math.Max(0, y), nil
}

// Status reports the loaded artifact.
func (p *Predictor) Status() ModelStatus {
	trained := p.artifact.TrainedAt
	return ModelStatus{
		Loaded:    true,
		ModelType: p.artifact.ModelKind,
		HasScaler: p.scaler != nil,
		TrainedAt: &trained,
		Features:  p.Features(),
		Metrics:   p.artifact.Metrics,
	}
}

func toFloat(v any) (float64, error) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case int32:
		f = float64(n)
	case json.Number:
		parsed, err := strconv.ParseFloat(string(n), 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", n)
		}
		f = parsed
	default:
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("value must be finite")
	}
	return f, nil
}
