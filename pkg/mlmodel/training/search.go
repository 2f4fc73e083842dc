package training

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/atlas-energia/atlas-ml/pkg/mlmodel/evaluation"
	"github.com/atlas-energia/atlas-ml/pkg/models"
)

// ParamGrid lists the values tried for each hyperparameter
type ParamGrid struct {
	NEstimators     []int    `yaml:"n_estimators" json:"n_estimators"`
	MaxDepth        []int    `yaml:"max_depth" json:"max_depth"`
	MinSamplesSplit []int    `yaml:"min_samples_split" json:"min_samples_split"`
	MinSamplesLeaf  []int    `yaml:"min_samples_leaf" json:"min_samples_leaf"`
	ClassWeight     []string `yaml:"class_weight" json:"class_weight"`
}

// DefaultParamGrid is the search space used for the published model
func DefaultParamGrid() ParamGrid {
	return ParamGrid{
		NEstimators:     []int{300, 500},
		MaxDepth:        []int{8, 12, 15},
		MinSamplesSplit: []int{5, 10},
		MinSamplesLeaf:  []int{2, 4},
		ClassWeight:     []string{models.ClassWeightBalanced},
	}
}

// Candidates expands the grid in nested order: n_estimators, max_depth,
// min_samples_split, min_samples_leaf, class_weight.
func (g ParamGrid) Candidates() []models.Hyperparameters {
	weights := g.ClassWeight
	if len(weights) == 0 {
		weights = []string{models.ClassWeightBalanced}
	}
	var out []models.Hyperparameters
	for _, n := range g.NEstimators {
		for _, depth := range g.MaxDepth {
			for _, split := range g.MinSamplesSplit {
				for _, leaf := range g.MinSamplesLeaf {
					for _, w := range weights {
						out = append(out, models.Hyperparameters{
							ClassWeight:     w,
							MaxDepth:        depth,
							MinSamplesLeaf:  leaf,
							MinSamplesSplit: split,
							NEstimators:     n,
						})
					}
				}
			}
		}
	}
	return out
}

// CandidateScore is the cross-validated result of one candidate
type CandidateScore struct {
	Params     models.Hyperparameters `json:"params"`
	FoldScores []float64              `json:"fold_scores"`
	Mean       float64                `json:"mean_score"`
	Std        float64                `json:"std_score"`
}

// SearchResult holds every candidate score and the winner
type SearchResult struct {
	Candidates []CandidateScore
	BestIndex  int
	Best       models.Hyperparameters
	BestScore  float64
}

// SearchOptions control the cross-validation
type SearchOptions struct {
	Folds   int
	Seed    int64
	Workers int
}

// GridSearch scores every candidate with stratified k-fold macro-F1. Each
// (candidate, fold) pair runs as one task on a bounded pool and writes its own
// slot; the best mean wins, ties going to the earlier candidate.
func GridSearch(ctx context.Context, X [][]float64, y []string, classes []string, grid ParamGrid, opts SearchOptions, logger *zap.Logger) (*SearchResult, error) {
	candidates := grid.Candidates()
	if len(candidates) == 0 {
		return nil, fmt.Errorf("parameter grid is empty")
	}
	folds, err := StratifiedKFold(y, opts.Folds, opts.Seed)
	if err != nil {
		return nil, fmt.Errorf("failed to build folds: %w", err)
	}
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}

	logger.Info("starting grid search",
		zap.Int("candidates", len(candidates)),
		zap.Int("folds", len(folds)),
		zap.Int("fits", len(candidates)*len(folds)),
		zap.Int("workers", workers),
	)
	start := time.Now()

	scores := make([][]float64, len(candidates))
	for i := range scores {
		scores[i] = make([]float64, len(folds))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for ci := range candidates {
		for fi := range folds {
			ci, fi := ci, fi
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				trainX, trainY := Subset(X, y, folds[fi].Train)
				testX, testY := Subset(X, y, folds[fi].Test)

				forest := NewRandomForest(candidates[ci], opts.Seed)
				forest.Workers = 1
				if err := forest.Fit(gctx, trainX, trainY, classes); err != nil {
					return fmt.Errorf("candidate %d fold %d: %w", ci, fi, err)
				}
				predicted, err := forest.PredictBatch(testX)
				if err != nil {
					return fmt.Errorf("candidate %d fold %d: %w", ci, fi, err)
				}
				scores[ci][fi] = evaluation.MacroF1(testY, predicted, classes)
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &SearchResult{Candidates: make([]CandidateScore, len(candidates))}
	for i, params := range candidates {
		mean, std := stat.PopMeanStdDev(scores[i], nil)
		result.Candidates[i] = CandidateScore{
			Params:     params,
			FoldScores: scores[i],
			Mean:       mean,
			Std:        std,
		}
		if i == 0 || mean > result.BestScore {
			result.BestIndex = i
			result.BestScore = mean
		}
	}
	result.Best = candidates[result.BestIndex]

	logger.Info("grid search finished",
		zap.Duration("elapsed", time.Since(start)),
		zap.Float64("best_macro_f1", result.BestScore),
		zap.Any("best_params", result.Best),
	)
	return result, nil
}
