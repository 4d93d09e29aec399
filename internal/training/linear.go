package training

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Ridge is an L2 regularised linear model. The intercept is not penalised.
type Ridge struct {
	Intercept float64   `json:"intercept"`
	Coef      []float64 `json:"coef"`
}

func (r *Ridge) Predict(x []float64) float64 {
	return r.Intercept + floats.Dot(r.Coef, x)
}

var errSingular = errors.New("ridge normal equations are not positive definite")

// fitRidge solves (XcᵀXc + αI)β = Xcᵀyc on centred data, then recovers the
// intercept from the means.
func fitRidge(X [][]float64, y []float64, alpha float64) (*Ridge, error) {
	n, p := len(X), len(X[0])

	means := make([]float64, p)
	col := make([]float64, n)
	for j := 0; j < p; j++ {
		for i := range X {
			col[i] = X[i][j]
		}
		means[j] = stat.Mean(col, nil)
	}
	yMean := stat.Mean(y, nil)

	xc := mat.NewDense(n, p, nil)
	yc := mat.NewVecDense(n, nil)
	for i := range X {
		for j := 0; j < p; j++ {
			xc.Set(i, j, X[i][j]-means[j])
		}
		yc.SetVec(i, y[i]-yMean)
	}

	var gram mat.Dense
	gram.Mul(xc.T(), xc)
	sym := mat.NewSymDense(p, nil)
	for i := 0; i < p; i++ {
		for j := 0; j <= i; j++ {
			v := gram.At(i, j)
			if i == j {
				v += alpha
			}
			sym.SetSym(i, j, v)
		}
	}

	var xty mat.VecDense
	xty.MulVec(xc.T(), yc)

	var chol mat.Cholesky
	if ok := chol.Factorize(sym); !ok {
		return nil, errSingular
	}
	var beta mat.VecDense
	if err := chol.SolveVecTo(&beta, &xty); err != nil {
		return nil, err
	}

	coef := make([]float64, p)
	for j := range coef {
		coef[j] = beta.AtVec(j)
		if math.IsNaN(coef[j]) {
			return nil, errSingular
		}
	}
	return &Ridge{Intercept: yMean - floats.Dot(coef, means), Coef: coef}, nil
}
