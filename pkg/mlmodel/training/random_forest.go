package training

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"github.com/atlas-energia/atlas-ml/pkg/models"
)

// RandomForest is a bagged ensemble of decision trees for classification
type RandomForest struct {
	Trees           []*DecisionTree `msgpack:"trees"`
	NEstimators     int             `msgpack:"n_estimators"`
	MaxDepth        int             `msgpack:"max_depth"`
	MinSamplesSplit int             `msgpack:"min_samples_split"`
	MinSamplesLeaf  int             `msgpack:"min_samples_leaf"`
	MaxFeatures     int             `msgpack:"max_features"` // features considered per split
	ClassWeight     string          `msgpack:"class_weight"`
	Bootstrap       bool            `msgpack:"bootstrap"`
	Classes         []string        `msgpack:"classes"`
	NumFeatures     int             `msgpack:"num_features"`
	RandomSeed      int64           `msgpack:"random_seed"`

	// Workers bounds concurrent tree construction; <= 0 uses every CPU
	Workers int `msgpack:"-"`
}

// NewRandomForest creates an unfitted forest from one hyperparameter set
func NewRandomForest(params models.Hyperparameters, seed int64) *RandomForest {
	nEstimators := params.NEstimators
	if nEstimators <= 0 {
		nEstimators = 100
	}
	return &RandomForest{
		NEstimators:     nEstimators,
		MaxDepth:        params.MaxDepth,
		MinSamplesSplit: params.MinSamplesSplit,
		MinSamplesLeaf:  params.MinSamplesLeaf,
		ClassWeight:     params.ClassWeight,
		Bootstrap:       true,
		RandomSeed:      seed,
	}
}

// Params returns the hyperparameters the forest was built with
func (rf *RandomForest) Params() models.Hyperparameters {
	return models.Hyperparameters{
		ClassWeight:     rf.ClassWeight,
		MaxDepth:        rf.MaxDepth,
		MinSamplesLeaf:  rf.MinSamplesLeaf,
		MinSamplesSplit: rf.MinSamplesSplit,
		NEstimators:     rf.NEstimators,
	}
}

// Fit trains the forest. classes fixes the probability vector layout, so a
// fit set that lacks one of them still yields aligned outputs.
func (rf *RandomForest) Fit(ctx context.Context, X [][]float64, y []string, classes []string) error {
	if len(X) == 0 {
		return fmt.Errorf("empty training data")
	}
	if len(X) != len(y) {
		return fmt.Errorf("X and y must have same number of samples")
	}
	if len(classes) == 0 {
		return fmt.Errorf("no classes given")
	}

	classIndex := make(map[string]int, len(classes))
	for i, c := range classes {
		classIndex[c] = i
	}
	encoded := make([]int, len(y))
	for i, label := range y {
		idx, ok := classIndex[label]
		if !ok {
			return fmt.Errorf("label %q not in class list", label)
		}
		encoded[i] = idx
	}

	rf.Classes = append([]string(nil), classes...)
	rf.NumFeatures = len(X[0])
	rf.MaxFeatures = int(math.Sqrt(float64(rf.NumFeatures)))
	if rf.MaxFeatures < 1 {
		rf.MaxFeatures = 1
	}

	weights, err := classWeights(encoded, len(classes), rf.ClassWeight)
	if err != nil {
		return err
	}

	// Seeds are drawn up front so the result does not depend on scheduling
	master := rand.New(rand.NewSource(rf.RandomSeed))
	seeds := make([]int64, rf.NEstimators)
	for i := range seeds {
		seeds[i] = master.Int63()
	}

	workers := rf.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	rf.Trees = make([]*DecisionTree, rf.NEstimators)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < rf.NEstimators; i++ {
		treeIdx := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(seeds[treeIdx]))
			indices := rf.sampleIndices(len(X), rng)

			tree := NewDecisionTree(rf.MaxDepth, rf.MinSamplesSplit, rf.MinSamplesLeaf, rf.MaxFeatures)
			if err := tree.Fit(X, encoded, indices, weights, len(classes), rng); err != nil {
				return fmt.Errorf("tree %d training failed: %w", treeIdx, err)
			}
			rf.Trees[treeIdx] = tree
			return nil
		})
	}
	return g.Wait()
}

func (rf *RandomForest) sampleIndices(n int, rng *rand.Rand) []int {
	indices := make([]int, n)
	if !rf.Bootstrap {
		for i := range indices {
			indices[i] = i
		}
		return indices
	}
	for i := range indices {
		indices[i] = rng.Intn(n)
	}
	return indices
}

// classWeights computes the per-class weight. "balanced" gives
// n / (k * n_c) over the k classes present in the fit set.
func classWeights(y []int, numClasses int, mode string) ([]float64, error) {
	weights := make([]float64, numClasses)
	switch mode {
	case "", "none":
		for i := range weights {
			weights[i] = 1
		}
	case models.ClassWeightBalanced:
		counts := make([]int, numClasses)
		for _, c := range y {
			counts[c]++
		}
		present := 0
		for _, n := range counts {
			if n > 0 {
				present++
			}
		}
		for i, n := range counts {
			if n > 0 {
				weights[i] = float64(len(y)) / (float64(present) * float64(n))
			}
		}
	default:
		return nil, fmt.Errorf("unsupported class_weight %q", mode)
	}
	return weights, nil
}

// PredictProba averages the leaf distributions of every tree
func (rf *RandomForest) PredictProba(x []float64) ([]float64, error) {
	if len(rf.Trees) == 0 {
		return nil, fmt.Errorf("model not trained")
	}
	proba := make([]float64, len(rf.Classes))
	for i, tree := range rf.Trees {
		dist, err := tree.PredictProba(x)
		if err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
		floats.Add(proba, dist)
	}
	floats.Scale(1/float64(len(rf.Trees)), proba)
	return proba, nil
}

// Predict returns the most probable class; ties go to the earliest class
func (rf *RandomForest) Predict(x []float64) (string, float64, error) {
	proba, err := rf.PredictProba(x)
	if err != nil {
		return "", 0, err
	}
	best := 0
	for i, p := range proba {
		if p > proba[best] {
			best = i
		}
	}
	return rf.Classes[best], proba[best], nil
}

// PredictBatch classifies every row of X
func (rf *RandomForest) PredictBatch(X [][]float64) ([]string, error) {
	out := make([]string, len(X))
	for i, row := range X {
		label, _, err := rf.Predict(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = label
	}
	return out, nil
}

// FeatureImportances returns the mean decrease in impurity per feature,
// summing to 1. A forest without a single split reports uniform importance.
func (rf *RandomForest) FeatureImportances() []float64 {
	importances := make([]float64, rf.NumFeatures)
	if rf.NumFeatures == 0 {
		return importances
	}
	for _, tree := range rf.Trees {
		floats.Add(importances, tree.Importances)
	}
	total := floats.Sum(importances)
	if total <= 0 {
		for i := range importances {
			importances[i] = 1 / float64(rf.NumFeatures)
		}
		return importances
	}
	floats.Scale(1/total, importances)
	return importances
}

// SortedClasses returns the distinct labels of y in lexicographic order
func SortedClasses(y []string) []string {
	seen := make(map[string]bool)
	var classes []string
	for _, label := range y {
		if !seen[label] {
			seen[label] = true
			classes = append(classes, label)
		}
	}
	sort.Strings(classes)
	return classes
}
