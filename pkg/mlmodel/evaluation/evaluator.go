// Package evaluation scores a fitted classifier against held-out labels.
package evaluation

import (
	"fmt"

	golearn "github.com/sjwhitworth/golearn/evaluation"

	"github.com/atlas-energia/atlas-ml/pkg/models"
)

// Classifier is the view of a fitted model the evaluator needs
type Classifier interface {
	PredictBatch(X [][]float64) ([]string, error)
	ClassLabels() []string
	FeatureImportance() map[string]float64
}

// Report is the evaluation of one model on one labeled set
type Report struct {
	Classes           []string
	Accuracy          float64
	MacroF1           float64
	WeightedF1        float64
	Matrix            [][]int
	Classification    models.ClassificationReport
	FeatureImportance map[string]float64
}

// Performance returns the headline scores
func (r *Report) Performance() models.PerformanceMetrics {
	return models.PerformanceMetrics{
		Accuracy:   r.Accuracy,
		MacroF1:    r.MacroF1,
		WeightedF1: r.WeightedF1,
	}
}

// Evaluate predicts X and compares against y
func Evaluate(model Classifier, X [][]float64, y []string) (*Report, error) {
	if len(X) != len(y) {
		return nil, fmt.Errorf("X and y must have same number of samples")
	}
	if len(y) == 0 {
		return nil, fmt.Errorf("empty evaluation set")
	}
	predicted, err := model.PredictBatch(X)
	if err != nil {
		return nil, fmt.Errorf("failed to predict evaluation set: %w", err)
	}

	report, err := Score(y, predicted, model.ClassLabels())
	if err != nil {
		return nil, err
	}
	report.FeatureImportance = model.FeatureImportance()
	return report, nil
}

// Score builds the report from true and predicted labels
func Score(yTrue, yPred []string, classes []string) (*Report, error) {
	if len(yTrue) != len(yPred) {
		return nil, fmt.Errorf("label slices differ in length: %d vs %d", len(yTrue), len(yPred))
	}

	cm := confusionMatrix(yTrue, yPred, classes)
	report := &Report{
		Classes: append([]string(nil), classes...),
		Matrix:  make([][]int, len(classes)),
	}
	for i, actual := range classes {
		report.Matrix[i] = make([]int, len(classes))
		for j, pred := range classes {
			report.Matrix[i][j] = cm[actual][pred]
		}
	}

	if len(yTrue) > 0 {
		report.Accuracy = golearn.GetAccuracy(cm)
	}

	perClass := make(map[string]models.ClassMetrics, len(classes))
	var macro, weighted models.ClassMetrics
	total := 0
	for _, class := range classes {
		m := classMetrics(cm, class)
		perClass[class] = m
		total += m.Support

		macro.Precision += m.Precision
		macro.Recall += m.Recall
		macro.F1Score += m.F1Score

		weighted.Precision += m.Precision * float64(m.Support)
		weighted.Recall += m.Recall * float64(m.Support)
		weighted.F1Score += m.F1Score * float64(m.Support)
	}

	if k := float64(len(classes)); k > 0 {
		macro.Precision /= k
		macro.Recall /= k
		macro.F1Score /= k
	}
	if total > 0 {
		weighted.Precision /= float64(total)
		weighted.Recall /= float64(total)
		weighted.F1Score /= float64(total)
	}
	macro.Support = total
	weighted.Support = total

	report.MacroF1 = macro.F1Score
	report.WeightedF1 = weighted.F1Score
	report.Classification = models.ClassificationReport{
		Classes:     report.Classes,
		PerClass:    perClass,
		Accuracy:    report.Accuracy,
		MacroAvg:    macro,
		WeightedAvg: weighted,
	}
	return report, nil
}

// MacroF1 is the unweighted mean of per-class F1 scores
func MacroF1(yTrue, yPred []string, classes []string) float64 {
	cm := confusionMatrix(yTrue, yPred, classes)
	if len(classes) == 0 {
		return 0
	}
	sum := 0.0
	for _, class := range classes {
		sum += classMetrics(cm, class).F1Score
	}
	return sum / float64(len(classes))
}

// confusionMatrix maps actual -> predicted -> count with every class present
func confusionMatrix(yTrue, yPred []string, classes []string) golearn.ConfusionMatrix {
	cm := make(golearn.ConfusionMatrix, len(classes))
	for _, actual := range classes {
		cm[actual] = make(map[string]int, len(classes))
		for _, pred := range classes {
			cm[actual][pred] = 0
		}
	}
	for i := range yTrue {
		if cm[yTrue[i]] == nil {
			cm[yTrue[i]] = make(map[string]int)
		}
		cm[yTrue[i]][yPred[i]]++
	}
	return cm
}

// classMetrics treats a zero denominator as a score of zero
func classMetrics(cm golearn.ConfusionMatrix, class string) models.ClassMetrics {
	tp := golearn.GetTruePositives(class, cm)
	fp := golearn.GetFalsePositives(class, cm)
	fn := golearn.GetFalseNegatives(class, cm)

	m := models.ClassMetrics{Support: int(tp + fn)}
	if tp+fp > 0 {
		m.Precision = tp / (tp + fp)
	}
	if tp+fn > 0 {
		m.Recall = tp / (tp + fn)
	}
	if m.Precision+m.Recall > 0 {
		m.F1Score = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}
	return m
}
