package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// ModelType labels written into the artifacts
type ModelType string

const (
	ModelTypeRandomForest           ModelType = "RandomForest"
	ModelTypeRandomForestClassifier ModelType = "RandomForestClassifier"
)

// RunStatus represents the lifecycle of one pipeline run
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// ClassWeightBalanced weights each class by n_samples / (n_classes * n_class_samples)
const ClassWeightBalanced = "balanced"

// Hyperparameters is one random forest configuration. Fields are declared in
// alphabetical key order so the JSON matches the best_params layout.
type Hyperparameters struct {
	ClassWeight     string `json:"class_weight" yaml:"class_weight" msgpack:"class_weight"`
	MaxDepth        int    `json:"max_depth" yaml:"max_depth" msgpack:"max_depth"`
	MinSamplesLeaf  int    `json:"min_samples_leaf" yaml:"min_samples_leaf" msgpack:"min_samples_leaf"`
	MinSamplesSplit int    `json:"min_samples_split" yaml:"min_samples_split" msgpack:"min_samples_split"`
	NEstimators     int    `json:"n_estimators" yaml:"n_estimators" msgpack:"n_estimators"`
}

// ClassMetrics holds precision/recall/F1 for one class or one average row
type ClassMetrics struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1Score   float64 `json:"f1-score"`
	Support   int     `json:"support"`
}

// ClassificationReport mirrors a per-class report with macro and weighted averages
type ClassificationReport struct {
	Classes     []string
	PerClass    map[string]ClassMetrics
	Accuracy    float64
	MacroAvg    ClassMetrics
	WeightedAvg ClassMetrics
}

// MarshalJSON writes classes first, then accuracy, macro avg and weighted avg
func (r ClassificationReport) MarshalJSON() ([]byte, error) {
	fields := make([]jsonField, 0, len(r.Classes)+3)
	for _, class := range r.Classes {
		fields = append(fields, jsonField{class, r.PerClass[class]})
	}
	fields = append(fields,
		jsonField{"accuracy", r.Accuracy},
		jsonField{"macro avg", r.MacroAvg},
		jsonField{"weighted avg", r.WeightedAvg},
	)
	return marshalOrdered(fields)
}

// UnmarshalJSON reads a report written by MarshalJSON
func (r *ClassificationReport) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.PerClass = make(map[string]ClassMetrics)
	r.Classes = nil
	for key, value := range raw {
		switch key {
		case "accuracy":
			if err := json.Unmarshal(value, &r.Accuracy); err != nil {
				return err
			}
		case "macro avg":
			if err := json.Unmarshal(value, &r.MacroAvg); err != nil {
				return err
			}
		case "weighted avg":
			if err := json.Unmarshal(value, &r.WeightedAvg); err != nil {
				return err
			}
		default:
			var m ClassMetrics
			if err := json.Unmarshal(value, &m); err != nil {
				return err
			}
			r.PerClass[key] = m
			r.Classes = append(r.Classes, key)
		}
	}
	sort.Strings(r.Classes)
	return nil
}

// FeatureImportance holds one importance per feature column. It is written in
// column order.
type FeatureImportance struct {
	Columns []string
	Values  map[string]float64
}

// MarshalJSON writes one key per column in Columns order
func (f FeatureImportance) MarshalJSON() ([]byte, error) {
	fields := make([]jsonField, 0, len(f.Columns))
	for _, col := range f.Columns {
		fields = append(fields, jsonField{col, f.Values[col]})
	}
	return marshalOrdered(fields)
}

// UnmarshalJSON keeps the key order of the document
func (f *FeatureImportance) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil {
		return err
	}
	f.Columns = nil
	f.Values = make(map[string]float64)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("feature importance: unexpected key %v", tok)
		}
		var v float64
		if err := dec.Decode(&v); err != nil {
			return err
		}
		f.Columns = append(f.Columns, key)
		f.Values[key] = v
	}
	_, err := dec.Token()
	return err
}

// PerformanceMetrics is the headline score summary
type PerformanceMetrics struct {
	Accuracy   float64 `json:"accuracy"`
	MacroF1    float64 `json:"macro_f1"`
	WeightedF1 float64 `json:"weighted_f1"`
}

// MetricsArtifact is written to metrics_random_forest.json
type MetricsArtifact struct {
	Accuracy             float64              `json:"accuracy"`
	MacroF1              float64              `json:"macro_f1"`
	WeightedF1           float64              `json:"weighted_f1"`
	ConfusionMatrix      [][]int              `json:"confusion_matrix"`
	ClassificationReport ClassificationReport `json:"classification_report"`
	BestParams           Hyperparameters      `json:"best_params"`
	FeatureImportance    FeatureImportance    `json:"feature_importance"`
}

// ModelMetadata is written to model_metadata.json
type ModelMetadata struct {
	ModelType         ModelType          `json:"model_type"`
	TrainingDate      time.Time          `json:"training_date"`
	DatasetSize       int                `json:"dataset_size"`
	FeatureColumns    []string           `json:"feature_columns"`
	Classes           []string           `json:"classes"`
	BestParams        Hyperparameters    `json:"best_params"`
	Performance       PerformanceMetrics `json:"performance"`
	FeatureImportance FeatureImportance  `json:"feature_importance"`
}

// PredictionsMetadata heads the predictions artifact
type PredictionsMetadata struct {
	GeneratedAt       time.Time `json:"generated_at"`
	ModelType         ModelType `json:"model_type"`
	NumMunicipalities int       `json:"num_municipios"`
	NumDepartments    int       `json:"num_departamentos"`
	FeatureColumns    []string  `json:"feature_columns"`
}

// PredictionsArtifact is written to municipio_predictions.json
type PredictionsArtifact struct {
	Metadata       PredictionsMetadata      `json:"metadata"`
	Municipalities []MunicipalityPrediction `json:"municipios"`
	Departments    []DepartmentSummary      `json:"departamentos"`
}

// RunRecord is the registry entry for one pipeline run
type RunRecord struct {
	ID          string             `json:"id"`
	Status      RunStatus          `json:"status"`
	StartedAt   time.Time          `json:"started_at"`
	FinishedAt  *time.Time         `json:"finished_at,omitempty"`
	InputPath   string             `json:"input_path"`
	Error       string             `json:"error,omitempty"`
	DatasetSize int                `json:"dataset_size"`
	Performance PerformanceMetrics `json:"performance"`
	BestParams  Hyperparameters    `json:"best_params"`
	ArtifactDir string             `json:"artifact_dir"`
}
