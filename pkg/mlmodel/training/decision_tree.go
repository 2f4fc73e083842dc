package training

import (
	"fmt"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// TreeNode is one node of a fitted decision tree. Leaves carry the normalised
// weighted class distribution of the samples that reached them.
type TreeNode struct {
	IsLeaf       bool      `msgpack:"is_leaf"`
	Feature      int       `msgpack:"feature"`
	Threshold    float64   `msgpack:"threshold"`
	Left         *TreeNode `msgpack:"left,omitempty"`  // <= threshold
	Right        *TreeNode `msgpack:"right,omitempty"` // > threshold
	Distribution []float64 `msgpack:"distribution,omitempty"`
	Samples      int       `msgpack:"samples"`
	Depth        int       `msgpack:"depth"`
}

// DecisionTree is a CART classifier using weighted Gini impurity. Classes are
// referenced by index into the owning forest's class list.
type DecisionTree struct {
	Root            *TreeNode `msgpack:"root"`
	MaxDepth        int       `msgpack:"max_depth"`
	MinSamplesSplit int       `msgpack:"min_samples_split"`
	MinSamplesLeaf  int       `msgpack:"min_samples_leaf"`
	MaxFeatures     int       `msgpack:"max_features"`
	NumFeatures     int       `msgpack:"num_features"`
	NumClasses      int       `msgpack:"num_classes"`
	// Importances is the normalised impurity decrease per feature
	Importances []float64 `msgpack:"importances"`

	rng *rand.Rand
}

// NewDecisionTree creates a tree; maxDepth <= 0 means unlimited
func NewDecisionTree(maxDepth, minSamplesSplit, minSamplesLeaf, maxFeatures int) *DecisionTree {
	if minSamplesSplit < 2 {
		minSamplesSplit = 2
	}
	if minSamplesLeaf < 1 {
		minSamplesLeaf = 1
	}
	return &DecisionTree{
		MaxDepth:        maxDepth,
		MinSamplesSplit: minSamplesSplit,
		MinSamplesLeaf:  minSamplesLeaf,
		MaxFeatures:     maxFeatures,
	}
}

// Fit grows the tree on the rows of X selected by indices. y holds class
// indices in [0, numClasses) and weights the per-class sample weight.
func (dt *DecisionTree) Fit(X [][]float64, y []int, indices []int, weights []float64, numClasses int, rng *rand.Rand) error {
	if len(indices) == 0 {
		return fmt.Errorf("empty training data")
	}
	if len(X) != len(y) {
		return fmt.Errorf("X and y must have same number of samples")
	}
	if len(weights) != numClasses {
		return fmt.Errorf("expected %d class weights, got %d", numClasses, len(weights))
	}

	dt.NumFeatures = len(X[0])
	dt.NumClasses = numClasses
	if dt.MaxFeatures <= 0 || dt.MaxFeatures > dt.NumFeatures {
		dt.MaxFeatures = dt.NumFeatures
	}
	dt.Importances = make([]float64, dt.NumFeatures)
	dt.rng = rng

	b := &treeBuilder{tree: dt, X: X, y: y, weights: weights}
	work := append([]int(nil), indices...)
	dt.Root = b.build(work, 0)

	if total := floats.Sum(dt.Importances); total > 0 {
		floats.Scale(1/total, dt.Importances)
	}
	dt.rng = nil
	return nil
}

// PredictProba walks x down to a leaf and returns its class distribution
func (dt *DecisionTree) PredictProba(x []float64) ([]float64, error) {
	if dt.Root == nil {
		return nil, fmt.Errorf("tree not trained")
	}
	if len(x) != dt.NumFeatures {
		return nil, fmt.Errorf("expected %d features, got %d", dt.NumFeatures, len(x))
	}
	node := dt.Root
	for !node.IsLeaf {
		if x[node.Feature] <= node.Threshold {
			node = node.Left
		} else {
			node = node.Right
		}
	}
	return node.Distribution, nil
}

// Splits returns the number of internal nodes
func (dt *DecisionTree) Splits() int {
	return countSplits(dt.Root)
}

func countSplits(n *TreeNode) int {
	if n == nil || n.IsLeaf {
		return 0
	}
	return 1 + countSplits(n.Left) + countSplits(n.Right)
}

type treeBuilder struct {
	tree    *DecisionTree
	X       [][]float64
	y       []int
	weights []float64
}

type split struct {
	feature   int
	threshold float64
	pos       int // indices[:pos] go left once sorted by feature
	gain      float64
}

func (b *treeBuilder) classWeights(indices []int) ([]float64, float64) {
	counts := make([]float64, b.tree.NumClasses)
	for _, idx := range indices {
		counts[b.y[idx]] += b.weights[b.y[idx]]
	}
	return counts, floats.Sum(counts)
}

func gini(counts []float64, total float64) float64 {
	if total <= 0 {
		return 0
	}
	impurity := 1.0
	for _, c := range counts {
		p := c / total
		impurity -= p * p
	}
	return impurity
}

func (b *treeBuilder) leaf(node *TreeNode, counts []float64, total float64) *TreeNode {
	node.IsLeaf = true
	node.Distribution = make([]float64, len(counts))
	if total > 0 {
		for i, c := range counts {
			node.Distribution[i] = c / total
		}
	}
	return node
}

func (b *treeBuilder) build(indices []int, depth int) *TreeNode {
	dt := b.tree
	node := &TreeNode{Samples: len(indices), Depth: depth}
	counts, total := b.classWeights(indices)
	impurity := gini(counts, total)

	if (dt.MaxDepth > 0 && depth >= dt.MaxDepth) ||
		len(indices) < dt.MinSamplesSplit ||
		len(indices) < 2*dt.MinSamplesLeaf ||
		impurity <= 1e-12 {
		return b.leaf(node, counts, total)
	}

	best, ok := b.findBestSplit(indices, counts, total, impurity)
	if !ok {
		return b.leaf(node, counts, total)
	}

	sortByFeature(b.X, indices, best.feature)
	left := append([]int(nil), indices[:best.pos]...)
	right := append([]int(nil), indices[best.pos:]...)

	dt.Importances[best.feature] += best.gain

	node.Feature = best.feature
	node.Threshold = best.threshold
	node.Left = b.build(left, depth+1)
	node.Right = b.build(right, depth+1)
	return node
}

// findBestSplit samples features without replacement until MaxFeatures
// non-constant ones have been evaluated.
func (b *treeBuilder) findBestSplit(indices []int, counts []float64, total, impurity float64) (split, bool) {
	dt := b.tree
	best := split{gain: -1}
	found := false
	visited := 0

	for _, feature := range dt.rng.Perm(dt.NumFeatures) {
		if visited >= dt.MaxFeatures {
			break
		}
		sortByFeature(b.X, indices, feature)
		lo, hi := b.X[indices[0]][feature], b.X[indices[len(indices)-1]][feature]
		if lo == hi {
			continue
		}
		visited++

		left := make([]float64, len(counts))
		leftTotal := 0.0
		n := len(indices)
		for i := 0; i < n-1; i++ {
			c := b.y[indices[i]]
			w := b.weights[c]
			left[c] += w
			leftTotal += w

			cur, next := b.X[indices[i]][feature], b.X[indices[i+1]][feature]
			if cur == next {
				continue
			}
			nLeft := i + 1
			if nLeft < dt.MinSamplesLeaf || n-nLeft < dt.MinSamplesLeaf {
				continue
			}

			right := make([]float64, len(counts))
			for k := range counts {
				right[k] = counts[k] - left[k]
			}
			rightTotal := total - leftTotal
			gain := total*impurity - leftTotal*gini(left, leftTotal) - rightTotal*gini(right, rightTotal)
			if gain > best.gain {
				threshold := cur + (next-cur)/2
				if threshold == next {
					threshold = cur
				}
				best = split{
					feature:   feature,
					threshold: threshold,
					pos:       nLeft,
					gain:      gain,
				}
				found = true
			}
		}
	}
	return best, found
}

func sortByFeature(X [][]float64, indices []int, feature int) {
	sort.SliceStable(indices, func(i, j int) bool {
		return X[indices[i]][feature] < X[indices[j]][feature]
	})
}
