package training

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat"

	"energy-forecast/internal/models"
)

// Forest averages bootstrap regression trees.
type Forest struct {
	Trees []*Tree `json:"trees"`
}

func (f *Forest) Predict(x []float64) float64 {
	if len(f.Trees) == 0 {
		return 0
	}
	s := 0.0
	for _, t := range f.Trees {
		s += t.Predict(x)
	}
	return s / float64(len(f.Trees))
}

func fitForest(X [][]float64, y []float64, p models.ForestParams, seed uint64) *Forest {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	n := len(y)
	mtry := int(math.Max(1, math.Round(float64(len(X[0]))*p.MaxFeatures)))
	params := treeParams{maxDepth: p.MaxDepth, minSamplesLeaf: p.MinSamplesLeaf, maxFeatures: mtry}

	forest := &Forest{Trees: make([]*Tree, 0, p.NEstimators)}
	sample := make([]int, n)
	for range p.NEstimators {
		for i := range sample {
			sample[i] = rng.IntN(n)
		}
		forest.Trees = append(forest.Trees, fitTree(X, y, sample, params, rng))
	}
	return forest
}

// Boosting is a squared-loss gradient boosted tree ensemble.
type Boosting struct {
	Init         float64 `json:"init"`
	LearningRate float64 `json:"learning_rate"`
	Trees        []*Tree `json:"trees"`
}

func (g *Boosting) Predict(x []float64) float64 {
	out := g.Init
	for _, t := range g.Trees {
		out += g.LearningRate * t.Predict(x)
	}
	return out
}

func fitBoosting(X [][]float64, y []float64, p models.BoostingParams) *Boosting {
	n := len(y)
	g := &Boosting{
		Init:         stat.Mean(y, nil),
		LearningRate: p.LearningRate,
		Trees:        make([]*Tree, 0, p.NEstimators),
	}

	pred := make([]float64, n)
	for i := range pred {
		pred[i] = g.Init
	}
	residual := make([]float64, n)
	all := make([]int, n)
	for i := range all {
		all[i] = i
	}
	params := treeParams{maxDepth: p.MaxDepth, minSamplesLeaf: p.MinSamplesLeaf}

	for range p.NEstimators {
		for i := range residual {
			residual[i] = y[i] - pred[i]
		}
		t := fitTree(X, residual, all, params, nil)
		g.Trees = append(g.Trees, t)
		for i := range pred {
			pred[i] += g.LearningRate * t.Predict(X[i])
		}
	}
	return g
}
