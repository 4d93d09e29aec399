package training

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"energy-forecast/internal/models"
)

// Model kinds persisted in artifacts.
const (
	KindRidge        = "ridge"
	KindRandomForest = "random_forest"
	KindBoosting     = "gradient_boosting"
)

// Regressor is a fitted model over a fixed feature order.
type Regressor interface {
	Predict(x []float64) float64
}

// Artifact is the persisted best model of a producer.
type Artifact struct {
	Producer  models.ProducerType `json:"producer"`
	ModelKind string              `json:"model_kind"`
	Features  []string            `json:"features"`
	Metrics   map[string]Metrics  `json:"metrics"`
	TrainedAt time.Time           `json:"trained_at"`
	RunID     string              `json:"run_id"`
	Scaled    bool                `json:"scaled"`
	Model     json.RawMessage     `json:"model"`
}

// Regressor decodes the model payload.
func (a *Artifact) Regressor() (Regressor, error) {
	var r Regressor
	switch a.ModelKind {
	case KindRidge:
		r = &Ridge{}
	case KindRandomForest:
		r = &Forest{}
	case KindBoosting:
		r = &Boosting{}
	default:
		return nil, fmt.Errorf("unknown model kind %q", a.ModelKind)
	}
	if err := json.Unmarshal(a.Model, r); err != nil {
		return nil, fmt.Errorf("failed to decode %s model: %w", a.ModelKind, err)
	}
	return r, nil
}

// ArtifactStore reads and writes zstd compressed JSON artifacts under dir.
type ArtifactStore struct {
	dir string
}

// NewArtifactStore creates a store rooted at dir.
func NewArtifactStore(dir string) *ArtifactStore {
	return &ArtifactStore{dir: dir}
}

func (s *ArtifactStore) Dir() string { return s.dir }

func (s *ArtifactStore) ModelPath(p models.ProducerType) string {
	return filepath.Join(s.dir, string(p)+"_model.json.zst")
}

func (s *ArtifactStore) ScalerPath(p models.ProducerType) string {
	return filepath.Join(s.dir, string(p)+"_scaler.json.zst")
}

// Exists reports whether a model artifact is present for p.
func (s *ArtifactStore) Exists(p models.ProducerType) bool {
	_, err := os.Stat(s.ModelPath(p))
	return err == nil
}

func (s *ArtifactStore) ScalerExists(p models.ProducerType) bool {
	_, err := os.Stat(s.ScalerPath(p))
	return err == nil
}

// Save writes the artifact and, for models fed scaled inputs, the scaler.
// A scaler left by an earlier scaled model is removed otherwise. Both files
// are encoded and staged before either replaces its predecessor, and the
// scaler carries the artifact's run id so Load rejects a mismatched pair.
func (s *ArtifactStore) Save(a *Artifact, scaler *Scaler) error {
	if a.Scaled && scaler == nil {
		return fmt.Errorf("artifact for %s is scaled but no scaler was given", a.Producer)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create artifact dir: %w", err)
	}

	modelPath, scalerPath := s.ModelPath(a.Producer), s.ScalerPath(a.Producer)
	stagedModel, err := s.stage(modelPath, a)
	if err != nil {
		return err
	}
	defer os.Remove(stagedModel)

	var stagedScaler string
	if a.Scaled {
		paired := *scaler
		paired.RunID = a.RunID
		if stagedScaler, err = s.stage(scalerPath, &paired); err != nil {
			return err
		}
		defer os.Remove(stagedScaler)
	}

	if err := os.Rename(stagedModel, modelPath); err != nil {
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(modelPath), err)
	}
	if !a.Scaled {
		if err := os.Remove(scalerPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove stale scaler: %w", err)
		}
		return nil
	}
	if err := os.Rename(stagedScaler, scalerPath); err != nil {
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(scalerPath), err)
	}
	return nil
}

// Load reads the artifact of p and its scaler when the model is scaled.
func (s *ArtifactStore) Load(p models.ProducerType) (*Artifact, *Scaler, error) {
	var a Artifact
	if err := s.read(s.ModelPath(p), &a); err != nil {
		return nil, nil, err
	}
	if a.Producer != p {
		return nil, nil, fmt.Errorf("artifact %s holds a %s model", s.ModelPath(p), a.Producer)
	}
	if !a.Scaled {
		return &a, nil, nil
	}
	var sc Scaler
	if err := s.read(s.ScalerPath(p), &sc); err != nil {
		return nil, nil, err
	}
	if sc.RunID != a.RunID {
		return nil, nil, fmt.Errorf("scaler of %s belongs to run %q, model to run %q", p, sc.RunID, a.RunID)
	}
	if len(sc.Mean) != len(a.Features) {
		return nil, nil, fmt.Errorf("scaler of %s has %d features, model has %d", p, len(sc.Mean), len(a.Features))
	}
	return &a, &sc, nil
}

var (
	encoder, _ = zstd.NewWriter(nil)
	decoder, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
)

// stage encodes v into a temp file next to path and returns its name. The
// caller renames it into place.
func (s *ArtifactStore) stage(path string, v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	tmp, err := os.CreateTemp(s.dir, ".artifact-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(encoder.EncodeAll(data, nil)); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return tmp.Name(), nil
}

func (s *ArtifactStore) read(path string, v any) error {
	compressed, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read artifact: %w", err)
	}
	data, err := decoder.DecodeAll(compressed, nil)
	if err != nil {
		return fmt.Errorf("zstd decompression of %s failed: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", filepath.Base(path), err)
	}
	return nil
}
