package training

import (
	"math"
	"math/rand/v2"
	"slices"
)

// treeNode is one node of a flattened regression tree. Leaves have Left < 0.
type treeNode struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t"`
	Left      int     `json:"l"`
	Right     int     `json:"r"`
	Value     float64 `json:"v"`
}

// Tree is a CART regression tree split on squared error.
type Tree struct {
	Nodes []treeNode `json:"nodes"`
}

// Predict walks the tree for x.
func (t *Tree) Predict(x []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Left < 0 {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// treeParams bounds tree growth. maxDepth 0 is unlimited; maxFeatures is the
// number of features tried per split, all of them when <= 0.
type treeParams struct {
	maxDepth       int
	minSamplesLeaf int
	maxFeatures    int
}

type treeBuilder struct {
	X      [][]float64
	y      []float64
	params treeParams
	rng    *rand.Rand
	nodes  []treeNode
}

// fitTree grows a tree on the rows of X listed in idx. Rows may repeat, as
// they do in a bootstrap sample.
func fitTree(X [][]float64, y []float64, idx []int, params treeParams, rng *rand.Rand) *Tree {
	if params.minSamplesLeaf < 1 {
		params.minSamplesLeaf = 1
	}
	b := &treeBuilder{X: X, y: y, params: params, rng: rng}
	b.grow(slices.Clone(idx), 0)
	return &Tree{Nodes: b.nodes}
}

func (b *treeBuilder) grow(idx []int, depth int) int {
	sum, sumSq := 0.0, 0.0
	for _, i := range idx {
		sum += b.y[i]
		sumSq += b.y[i] * b.y[i]
	}
	n := float64(len(idx))
	node := len(b.nodes)
	b.nodes = append(b.nodes, treeNode{Left: -1, Right: -1, Value: sum / n})

	sse := sumSq - sum*sum/n
	if sse <= 1e-12 || len(idx) < 2*b.params.minSamplesLeaf {
		return node
	}
	if b.params.maxDepth > 0 && depth >= b.params.maxDepth {
		return node
	}

	feature, threshold, ok := b.bestSplit(idx, sse)
	if !ok {
		return node
	}

	var left, right []int
	for _, i := range idx {
		if b.X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	b.nodes[node].Feature = feature
	b.nodes[node].Threshold = threshold
	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[node].Left = l
	b.nodes[node].Right = r
	return node
}

func (b *treeBuilder) candidates() []int {
	nFeatures := len(b.X[0])
	k := b.params.maxFeatures
	if k <= 0 || k >= nFeatures || b.rng == nil {
		out := make([]int, nFeatures)
		for i := range out {
			out[i] = i
		}
		return out
	}
	return b.rng.Perm(nFeatures)[:k]
}

// bestSplit scans every distinct threshold of every candidate feature and
// returns the split with the lowest summed child squared error.
func (b *treeBuilder) bestSplit(idx []int, parentSSE float64) (int, float64, bool) {
	minLeaf := b.params.minSamplesLeaf
	bestFeature, bestThreshold := -1, 0.0
	bestScore := parentSSE - 1e-12

	order := slices.Clone(idx)
	total, totalSq := 0.0, 0.0
	for _, i := range idx {
		total += b.y[i]
		totalSq += b.y[i] * b.y[i]
	}
	n := len(idx)

	for _, f := range b.candidates() {
		slices.SortFunc(order, func(a, c int) int {
			switch {
			case b.X[a][f] < b.X[c][f]:
				return -1
			case b.X[a][f] > b.X[c][f]:
				return 1
			}
			return 0
		})

		leftSum, leftSq := 0.0, 0.0
		for k := 0; k < n-1; k++ {
			yi := b.y[order[k]]
			leftSum += yi
			leftSq += yi * yi

			cur, next := b.X[order[k]][f], b.X[order[k+1]][f]
			if cur == next {
				continue
			}
			nl, nr := k+1, n-k-1
			if nl < minLeaf || nr < minLeaf {
				continue
			}
			rightSum, rightSq := total-leftSum, totalSq-leftSq
			score := (leftSq - leftSum*leftSum/float64(nl)) + (rightSq - rightSum*rightSum/float64(nr))
			if score < bestScore {
				bestScore = score
				bestFeature = f
				bestThreshold = cur + (next-cur)/2
			}
		}
	}

	if bestFeature < 0 || math.IsNaN(bestThreshold) {
		return 0, 0, false
	}
	return bestFeature, bestThreshold, true
}
