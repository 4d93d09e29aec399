package training

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat"
)

// Metrics are the test set scores of a fitted model.
type Metrics struct {
	MAE  float64 `json:"mae"`
	MSE  float64 `json:"mse"`
	RMSE float64 `json:"rmse"`
	R2   float64 `json:"r2"`
}

// Evaluate scores predictions against the true values. R² is 0 when the
// true values are constant.
func Evaluate(yTrue, yPred []float64) Metrics {
	n := float64(len(yTrue))
	if n == 0 {
		return Metrics{}
	}
	var absSum, sqSum float64
	for i := range yTrue {
		d := yTrue[i] - yPred[i]
		absSum += math.Abs(d)
		sqSum += d * d
	}
	m := Metrics{MAE: absSum / n, MSE: sqSum / n}
	m.RMSE = math.Sqrt(m.MSE)
	m.R2 = stat.RSquaredFrom(yPred, yTrue, nil)
	if math.IsNaN(m.R2) || math.IsInf(m.R2, 0) {
		m.R2 = 0
	}
	return m
}

// splitIndices shuffles 0..n-1 with seed and holds out ceil(n·testFraction)
// rows for testing.
func splitIndices(n int, testFraction float64, seed uint64) (train, test []int, err error) {
	nTest := int(math.Ceil(float64(n) * testFraction))
	if nTest < 1 {
		nTest = 1
	}
	if n-nTest < 1 {
		return nil, nil, fmt.Errorf("not enough rows to split: %d", n)
	}
	perm := rand.New(rand.NewPCG(seed, seed)).Perm(n)
	return perm[nTest:], perm[:nTest], nil
}

func pick(X [][]float64, y []float64, idx []int) ([][]float64, []float64) {
	xs := make([][]float64, len(idx))
	ys := make([]float64, len(idx))
	for k, i := range idx {
		xs[k], ys[k] = X[i], y[i]
	}
	return xs, ys
}
