package anomaly

import (
	"math"
	"math/rand"
)

// Forest is a multivariate isolation forest. Each tree isolates sampled rows
// with random axis-aligned splits; points isolated in few splits are scored
// close to 1, points deep in the data mass close to 0.
type Forest struct {
	numTrees   int
	sampleSize int
	trees      []*isoTree
	rng        *rand.Rand
	trained    bool
}

type isoTree struct {
	root *isoNode
}

type isoNode struct {
	splitDim   int
	splitValue float64
	left       *isoNode
	right      *isoNode
	size       int
	leaf       bool
}

// NewForest builds an untrained forest. The seed pins tree construction so a
// given training set always yields the same model.
func NewForest(numTrees, sampleSize int, seed int64) *Forest {
	if numTrees <= 0 {
		numTrees = 100
	}
	if sampleSize <= 0 {
		sampleSize = 256
	}
	return &Forest{
		numTrees:   numTrees,
		sampleSize: sampleSize,
		trees:      make([]*isoTree, 0, numTrees),
		rng:        rand.New(rand.NewSource(seed)),
	}
}

// Train grows the forest over row vectors. All rows must share one width.
func (f *Forest) Train(data [][]float64) {
	if len(data) == 0 {
		return
	}
	if f.sampleSize > len(data) {
		f.sampleSize = len(data)
	}
	sample := f.sampleSize
	maxDepth := int(math.Ceil(math.Log2(float64(sample))))

	f.trees = f.trees[:0]
	for i := 0; i < f.numTrees; i++ {
		rows := f.sampleRows(data, sample)
		f.trees = append(f.trees, &isoTree{root: f.buildTree(rows, 0, maxDepth)})
	}
	f.trained = true
}

// Trained reports whether the forest has been fitted.
func (f *Forest) Trained() bool { return f.trained }

func (f *Forest) sampleRows(data [][]float64, n int) [][]float64 {
	idx := f.rng.Perm(len(data))[:n]
	rows := make([][]float64, n)
	for i, j := range idx {
		rows[i] = data[j]
	}
	return rows
}

func (f *Forest) buildTree(rows [][]float64, depth, maxDepth int) *isoNode {
	if len(rows) <= 1 || depth >= maxDepth {
		return &isoNode{size: len(rows), leaf: true}
	}

	// Pick a random dimension with spread; all-constant rows are a leaf.
	dim, minVal, maxVal := -1, 0.0, 0.0
	for _, d := range f.rng.Perm(len(rows[0])) {
		lo, hi := rows[0][d], rows[0][d]
		for _, r := range rows[1:] {
			lo = math.Min(lo, r[d])
			hi = math.Max(hi, r[d])
		}
		if hi > lo {
			dim, minVal, maxVal = d, lo, hi
			break
		}
	}
	if dim < 0 {
		return &isoNode{size: len(rows), leaf: true}
	}

	splitValue := minVal + f.rng.Float64()*(maxVal-minVal)
	var left, right [][]float64
	for _, r := range rows {
		if r[dim] < splitValue {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}

	return &isoNode{
		splitDim:   dim,
		splitValue: splitValue,
		left:       f.buildTree(left, depth+1, maxDepth),
		right:      f.buildTree(right, depth+1, maxDepth),
		size:       len(rows),
	}
}

// Score rates one row vector in [0,1], higher meaning more anomalous. An
// untrained forest scores everything at the 0.5 midpoint.
func (f *Forest) Score(x []float64) float64 {
	if !f.trained || len(f.trees) == 0 {
		return 0.5
	}

	total := 0.0
	for _, t := range f.trees {
		total += f.pathLength(t.root, x, 0)
	}
	avgPath := total / float64(len(f.trees))

	c := averagePathLength(float64(f.sampleSize))
	if c == 0 {
		return 0.5
	}
	return math.Pow(2, -avgPath/c)
}

func (f *Forest) pathLength(node *isoNode, x []float64, depth int) float64 {
	if node == nil || node.leaf {
		if node != nil && node.size > 1 {
			return float64(depth) + averagePathLength(float64(node.size))
		}
		return float64(depth)
	}
	if x[node.splitDim] < node.splitValue {
		return f.pathLength(node.left, x, depth+1)
	}
	return f.pathLength(node.right, x, depth+1)
}

// averagePathLength is the expected unsuccessful-search depth of a binary
// search tree over n points, the normalisation constant of the score.
func averagePathLength(n float64) float64 {
	if n <= 1 {
		return 0
	}
	return 2*(math.Log(n-1)+0.5772156649) - 2*(n-1)/n
}
