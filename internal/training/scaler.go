package training

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Scaler standardises features to zero mean and unit population variance.
// Constant features keep a scale of 1. RunID ties a persisted scaler to the
// artifact it was saved with.
type Scaler struct {
	Features []string  `json:"features"`
	Mean     []float64 `json:"mean"`
	Scale    []float64 `json:"scale"`
	RunID    string    `json:"run_id,omitempty"`
}

// FitScaler learns the per column mean and standard deviation of X.
func FitScaler(features []string, X [][]float64) *Scaler {
	p := len(features)
	s := &Scaler{
		Features: append([]string(nil), features...),
		Mean:     make([]float64, p),
		Scale:    make([]float64, p),
	}
	col := make([]float64, len(X))
	for j := 0; j < p; j++ {
		for i := range X {
			col[i] = X[i][j]
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		s.Mean[j], s.Scale[j] = mean, std
	}
	return s
}

// Transform returns the scaled copy of one row.
func (s *Scaler) Transform(x []float64) []float64 {
	out := make([]float64, len(x))
	for j, v := range x {
		out[j] = (v - s.Mean[j]) / s.Scale[j]
	}
	return out
}

// TransformAll scales every row of X.
func (s *Scaler) TransformAll(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i, row := range X {
		out[i] = s.Transform(row)
	}
	return out
}
