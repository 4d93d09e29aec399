package models

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"
)

//go:embed model_config.yaml
var defaultModelConfig []byte

// RidgeParams configures the L2 regularised linear model.
type RidgeParams struct {
	Alpha float64 `yaml:"alpha" validate:"gte=0"`
}

// ForestParams configures the bagged regression tree ensemble. MaxDepth 0
// grows trees until leaves are pure or hit MinSamplesLeaf.
type ForestParams struct {
	NEstimators    int     `yaml:"n_estimators" validate:"min=1"`
	MaxDepth       int     `yaml:"max_depth" validate:"min=0"`
	MinSamplesLeaf int     `yaml:"min_samples_leaf" validate:"min=1"`
	MaxFeatures    float64 `yaml:"max_features" validate:"gt=0,lte=1"`
}

// BoostingParams configures gradient boosted trees with squared loss.
type BoostingParams struct {
	NEstimators    int     `yaml:"n_estimators" validate:"min=1"`
	MaxDepth       int     `yaml:"max_depth" validate:"min=1"`
	LearningRate   float64 `yaml:"learning_rate" validate:"gt=0,lte=1"`
	MinSamplesLeaf int     `yaml:"min_samples_leaf" validate:"min=1"`
}

// ProducerModelConfig is the feature schema and hyperparameters of one producer.
type ProducerModelConfig struct {
	Features     []string       `yaml:"features" validate:"required,min=1,dive,required"`
	Ridge        RidgeParams    `yaml:"ridge"`
	RandomForest ForestParams   `yaml:"random_forest"`
	Boosting     BoostingParams `yaml:"boosting"`
}

// ModelConfig groups the per producer configuration with the split settings.
type ModelConfig struct {
	TestSize    float64                                `yaml:"test_size" validate:"gt=0,lt=1"`
	RandomState uint64                                 `yaml:"random_state"`
	Producers   map[ProducerType]ProducerModelConfig `yaml:"producers" validate:"required,dive"`
}

// DefaultModelConfig returns the embedded configuration.
func DefaultModelConfig() *ModelConfig {
	cfg, err := ParseModelConfig(defaultModelConfig)
	if err != nil {
		panic(fmt.Sprintf("embedded model config is invalid: %v", err))
	}
	return cfg
}

// LoadModelConfig reads a YAML override from path. An empty path returns the defaults.
func LoadModelConfig(path string) (*ModelConfig, error) {
	if path == "" {
		return DefaultModelConfig(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model config: %w", err)
	}
	return ParseModelConfig(data)
}

// ParseModelConfig decodes and validates a YAML document.
func ParseModelConfig(data []byte) (*ModelConfig, error) {
	var cfg ModelConfig
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse model config: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid model config: %w", err)
	}
	for _, p := range AllProducers {
		if _, ok := cfg.Producers[p]; !ok {
			return nil, fmt.Errorf("invalid model config: missing producer %q", p)
		}
	}
	return &cfg, nil
}

// For returns the configuration of a producer type.
func (c *ModelConfig) For(p ProducerType) ProducerModelConfig {
	return c.Producers[p]
}

// Features returns the required feature list of a producer type.
func (c *ModelConfig) Features(p ProducerType) []string {
	return append([]string(nil), c.Producers[p].Features...)
}
