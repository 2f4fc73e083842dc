// Package training fits the random forest: stratified split, minority
// oversampling, cross-validated grid search and the final fit.
package training

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/atlas-energia/atlas-ml/pkg/models"
)

// Config holds the trainer settings
type Config struct {
	TestSize float64
	Folds    int
	Seed     int64
	Workers  int
	Grid     ParamGrid
}

// DefaultConfig returns the settings of the published model
func DefaultConfig() Config {
	return Config{
		TestSize: 0.3,
		Folds:    3,
		Seed:     42,
		Workers:  1,
		Grid:     DefaultParamGrid(),
	}
}

// Result is everything the later stages need from training
type Result struct {
	Forest       *RandomForest
	Classes      []string
	Columns      []string
	Search       *SearchResult
	TrainSize    int
	BalancedSize int
	TestX        [][]float64
	TestY        []string
	Duration     time.Duration
}

// Trainer runs the training stage
type Trainer struct {
	config Config
	logger *zap.Logger
}

// NewTrainer creates a trainer
func NewTrainer(config Config, logger *zap.Logger) *Trainer {
	return &Trainer{config: config, logger: logger}
}

// CheckLabels rejects label sets that cannot be split and folded
func CheckLabels(y []string, folds int) error {
	counts := ClassCounts(y)
	if len(counts) < 2 {
		return &models.LabelError{Count: len(counts), Required: 2}
	}
	required := folds
	if required < 2 {
		required = 2
	}
	for _, class := range SortedClasses(y) {
		if counts[class] < required {
			return &models.LabelError{Class: class, Count: counts[class], Required: required}
		}
	}
	return nil
}

// Train fits the forest on X/y. The test partition is never oversampled and is
// returned untouched for evaluation.
func (t *Trainer) Train(ctx context.Context, X [][]float64, y []string, columns []string) (*Result, error) {
	start := time.Now()
	if len(X) != len(y) {
		return nil, fmt.Errorf("X and y must have same number of samples")
	}
	if err := CheckLabels(y, t.config.Folds); err != nil {
		return nil, err
	}
	classes := SortedClasses(y)

	trainIdx, testIdx, err := StratifiedSplit(y, t.config.TestSize, t.config.Seed)
	if err != nil {
		return nil, fmt.Errorf("failed to split dataset: %w", err)
	}
	trainX, trainY := Subset(X, y, trainIdx)
	testX, testY := Subset(X, y, testIdx)
	t.logger.Info("dataset split",
		zap.Int("train", len(trainY)),
		zap.Int("test", len(testY)),
	)

	balancedX, balancedY := Oversample(trainX, trainY, t.config.Seed)
	counts := ClassCounts(balancedY)
	fields := []zap.Field{zap.Int("rows", len(balancedY))}
	for _, c := range classes {
		fields = append(fields, zap.Int(c, counts[c]))
	}
	t.logger.Info("training partition balanced", fields...)

	search, err := GridSearch(ctx, balancedX, balancedY, classes, t.config.Grid, SearchOptions{
		Folds:   t.config.Folds,
		Seed:    t.config.Seed,
		Workers: t.config.Workers,
	}, t.logger)
	if err != nil {
		return nil, fmt.Errorf("grid search failed: %w", err)
	}

	forest := NewRandomForest(search.Best, t.config.Seed)
	forest.Workers = t.config.Workers
	if err := forest.Fit(ctx, balancedX, balancedY, classes); err != nil {
		return nil, fmt.Errorf("final fit failed: %w", err)
	}

	result := &Result{
		Forest:       forest,
		Classes:      classes,
		Columns:      append([]string(nil), columns...),
		Search:       search,
		TrainSize:    len(trainY),
		BalancedSize: len(balancedY),
		TestX:        testX,
		TestY:        testY,
		Duration:     time.Since(start),
	}
	t.logger.Info("model trained",
		zap.Duration("elapsed", result.Duration),
		zap.Int("trees", len(forest.Trees)),
	)
	return result, nil
}
