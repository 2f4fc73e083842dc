// Package mlmodel holds the fitted model bundle and runs inference with it.
package mlmodel

import (
	"fmt"
	"time"

	"github.com/atlas-energia/atlas-ml/pkg/features"
	"github.com/atlas-energia/atlas-ml/pkg/mlmodel/training"
	"github.com/atlas-energia/atlas-ml/pkg/models"
)

// Predictor produces class probabilities for encoded feature rows
type Predictor interface {
	PredictProba(x []float64) ([]float64, error)
	ClassLabels() []string
	FeatureColumns() features.Columns
}

// TrainedModel bundles the forest with the column ordering and class list it
// was fitted with. It is not modified after creation.
type TrainedModel struct {
	Forest      *training.RandomForest `msgpack:"forest"`
	Columns     features.Columns       `msgpack:"columns"`
	Classes     []string               `msgpack:"classes"`
	Params      models.Hyperparameters `msgpack:"params"`
	TrainedAt   time.Time              `msgpack:"trained_at"`
	DatasetSize int                    `msgpack:"dataset_size"`
}

// NewTrainedModel wraps a training result
func NewTrainedModel(result *training.Result, datasetSize int) (*TrainedModel, error) {
	if result == nil || result.Forest == nil {
		return nil, fmt.Errorf("no fitted forest")
	}
	cols := features.Columns(result.Columns)
	if err := cols.Validate(); err != nil {
		return nil, err
	}
	if result.Forest.NumFeatures != len(cols) {
		return nil, &models.SchemaDriftError{Reason: fmt.Sprintf("forest expects %d features, ordering has %d", result.Forest.NumFeatures, len(cols))}
	}
	return &TrainedModel{
		Forest:      result.Forest,
		Columns:     cols,
		Classes:     append([]string(nil), result.Classes...),
		Params:      result.Forest.Params(),
		TrainedAt:   time.Now().UTC(),
		DatasetSize: datasetSize,
	}, nil
}

// PredictProba returns one probability per class in ClassLabels order
func (m *TrainedModel) PredictProba(x []float64) ([]float64, error) {
	return m.Forest.PredictProba(x)
}

// PredictBatch returns the predicted class of every row
func (m *TrainedModel) PredictBatch(X [][]float64) ([]string, error) {
	return m.Forest.PredictBatch(X)
}

// ClassLabels returns the canonical class order
func (m *TrainedModel) ClassLabels() []string {
	return m.Classes
}

// FeatureColumns returns the column ordering the model was trained with
func (m *TrainedModel) FeatureColumns() features.Columns {
	return m.Columns
}

// FeatureImportance maps each column to its normalised importance
func (m *TrainedModel) FeatureImportance() map[string]float64 {
	imp := m.Forest.FeatureImportances()
	out := make(map[string]float64, len(m.Columns))
	for i, col := range m.Columns {
		if i < len(imp) {
			out[col] = imp[i]
		}
	}
	return out
}

// Predict classifies every row of matrix. The matrix must use the model's
// column ordering.
func Predict(model Predictor, matrix *features.Matrix) ([]models.PredictionResult, error) {
	cols := model.FeatureColumns()
	if len(matrix.Columns) != len(cols) {
		return nil, &models.SchemaDriftError{Reason: fmt.Sprintf("matrix has %d columns, model expects %d", len(matrix.Columns), len(cols))}
	}
	for i := range cols {
		if matrix.Columns[i] != cols[i] {
			return nil, &models.SchemaDriftError{Reason: "column ordering differs from training", Column: matrix.Columns[i]}
		}
	}

	classes := model.ClassLabels()
	results := make([]models.PredictionResult, len(matrix.Rows))
	for i, row := range matrix.Rows {
		if len(row) != len(cols) {
			return nil, &models.SchemaDriftError{Reason: fmt.Sprintf("row %d has width %d, expected %d", i, len(row), len(cols))}
		}
		proba, err := model.PredictProba(row)
		if err != nil {
			return nil, fmt.Errorf("failed to predict row %d: %w", i, err)
		}
		if len(proba) != len(classes) {
			return nil, fmt.Errorf("row %d: got %d probabilities for %d classes", i, len(proba), len(classes))
		}

		result := models.PredictionResult{Probabilities: make(map[string]float64, len(classes))}
		best := 0
		for j, class := range classes {
			result.Probabilities[class] = proba[j]
			if proba[j] > proba[best] {
				best = j
			}
		}
		result.PredictedClass = classes[best]
		results[i] = result
	}
	return results, nil
}
