package training

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/atlas-energia/atlas-ml/pkg/models"
)

func smallGrid() ParamGrid {
	return ParamGrid{
		NEstimators:     []int{5, 8},
		MaxDepth:        []int{3, 6},
		MinSamplesSplit: []int{2},
		MinSamplesLeaf:  []int{1},
		ClassWeight:     []string{models.ClassWeightBalanced},
	}
}

func TestDefaultParamGrid_Candidates(t *testing.T) {
	candidates := DefaultParamGrid().Candidates()
	require.Len(t, candidates, 24)

	assert.Equal(t, models.Hyperparameters{
		ClassWeight: "balanced", MaxDepth: 8, MinSamplesLeaf: 2, MinSamplesSplit: 5, NEstimators: 300,
	}, candidates[0])
	assert.Equal(t, models.Hyperparameters{
		ClassWeight: "balanced", MaxDepth: 8, MinSamplesLeaf: 4, MinSamplesSplit: 5, NEstimators: 300,
	}, candidates[1])
	assert.Equal(t, models.Hyperparameters{
		ClassWeight: "balanced", MaxDepth: 15, MinSamplesLeaf: 4, MinSamplesSplit: 10, NEstimators: 500,
	}, candidates[23])
}

func TestGridSearch(t *testing.T) {
	X, y := separable(6, 5)
	result, err := GridSearch(context.Background(), X, y, testClasses, smallGrid(),
		SearchOptions{Folds: 3, Seed: 42, Workers: 4}, zap.NewNop())
	require.NoError(t, err)

	require.Len(t, result.Candidates, 4)
	for i, c := range result.Candidates {
		assert.Len(t, c.FoldScores, 3)
		assert.LessOrEqual(t, c.Mean, result.BestScore)
		if c.Mean == result.BestScore {
			assert.GreaterOrEqual(t, i, result.BestIndex, "ties go to the earliest candidate")
		}
	}
	assert.Equal(t, result.Candidates[result.BestIndex].Params, result.Best)

	again, err := GridSearch(context.Background(), X, y, testClasses, smallGrid(),
		SearchOptions{Folds: 3, Seed: 42, Workers: 1}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, result.Best, again.Best)
	assert.Equal(t, result.BestScore, again.BestScore)
}

func TestGridSearch_EmptyGrid(t *testing.T) {
	X, y := separable(3, 1)
	_, err := GridSearch(context.Background(), X, y, testClasses, ParamGrid{},
		SearchOptions{Folds: 3, Seed: 1, Workers: 1}, zap.NewNop())
	assert.Error(t, err)
}

func TestGridSearch_Cancelled(t *testing.T) {
	X, y := separable(3, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := GridSearch(ctx, X, y, testClasses, smallGrid(),
		SearchOptions{Folds: 3, Seed: 1, Workers: 2}, zap.NewNop())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCheckLabels(t *testing.T) {
	tests := []struct {
		name  string
		y     []string
		class string
		count int
		ok    bool
	}{
		{"enough", []string{"a", "a", "a", "b", "b", "b"}, "", 0, true},
		{"one class", []string{"a", "a", "a"}, "", 1, false},
		{"too few", []string{"a", "a", "a", "b", "b"}, "b", 2, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckLabels(tt.y, 3)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			var labelErr *models.LabelError
			require.True(t, errors.As(err, &labelErr))
			assert.Equal(t, tt.class, labelErr.Class)
			assert.Equal(t, tt.count, labelErr.Count)
		})
	}
}

func TestTrainer_Train(t *testing.T) {
	X, y := separable(10, 9)
	cfg := Config{TestSize: 0.3, Folds: 3, Seed: 42, Workers: 2, Grid: smallGrid()}

	result, err := NewTrainer(cfg, zap.NewNop()).Train(context.Background(), X, y, []string{"a", "b", "c"})
	require.NoError(t, err)

	assert.Equal(t, testClasses, result.Classes)
	assert.Equal(t, 21, result.TrainSize)
	assert.Len(t, result.TestY, 9)
	assert.Equal(t, 21, result.BalancedSize)
	assert.Equal(t, result.Search.Best, result.Forest.Params())

	predicted, err := result.Forest.PredictBatch(result.TestX)
	require.NoError(t, err)
	correct := 0
	for i := range predicted {
		if predicted[i] == result.TestY[i] {
			correct++
		}
	}
	assert.GreaterOrEqual(t, correct, 7)
}

func TestTrainer_MinimalClasses(t *testing.T) {
	// three examples per class: two train, one test each
	X, y := separable(3, 11)
	cfg := Config{TestSize: 0.3, Folds: 3, Seed: 42, Workers: 1, Grid: smallGrid()}

	result, err := NewTrainer(cfg, zap.NewNop()).Train(context.Background(), X, y, nil)
	require.NoError(t, err)
	assert.Equal(t, 6, result.BalancedSize)
	assert.Len(t, result.TestY, 3)
}

func TestTrainer_LabelError(t *testing.T) {
	X := [][]float64{{1}, {2}, {3}, {4}, {5}}
	y := []string{"solar", "solar", "solar", "eolica", "eolica"}
	cfg := DefaultConfig()
	cfg.Grid = smallGrid()

	_, err := NewTrainer(cfg, zap.NewNop()).Train(context.Background(), X, y, nil)
	var labelErr *models.LabelError
	require.True(t, errors.As(err, &labelErr))
	assert.Equal(t, "eolica", labelErr.Class)
}
