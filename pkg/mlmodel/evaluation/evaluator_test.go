package evaluation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var classes = []string{"eolica", "hibrida", "solar"}

type stubClassifier struct {
	predictions []string
	err         error
}

func (s *stubClassifier) PredictBatch(X [][]float64) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.predictions[:len(X)], nil
}

func (s *stubClassifier) ClassLabels() []string { return classes }

func (s *stubClassifier) FeatureImportance() map[string]float64 {
	return map[string]float64{"latitud": 0.75, "viento_ms": 0.25}
}

func TestScore_PerfectPrediction(t *testing.T) {
	y := []string{"solar", "eolica", "hibrida", "solar"}
	report, err := Score(y, y, classes)
	require.NoError(t, err)

	assert.Equal(t, 1.0, report.Accuracy)
	assert.Equal(t, 1.0, report.MacroF1)
	assert.Equal(t, 1.0, report.WeightedF1)
	assert.Equal(t, [][]int{{1, 0, 0}, {0, 1, 0}, {0, 0, 2}}, report.Matrix)
}

func TestScore_ZeroDivision(t *testing.T) {
	// hibrida is never predicted and never present
	yTrue := []string{"solar", "solar", "eolica", "eolica"}
	yPred := []string{"solar", "eolica", "eolica", "eolica"}

	report, err := Score(yTrue, yPred, classes)
	require.NoError(t, err)

	hib := report.Classification.PerClass["hibrida"]
	assert.Equal(t, 0.0, hib.Precision)
	assert.Equal(t, 0.0, hib.Recall)
	assert.Equal(t, 0.0, hib.F1Score)
	assert.Equal(t, 0, hib.Support)

	sol := report.Classification.PerClass["solar"]
	assert.Equal(t, 1.0, sol.Precision)
	assert.Equal(t, 0.5, sol.Recall)
	assert.InDelta(t, 2.0/3.0, sol.F1Score, 1e-12)

	eol := report.Classification.PerClass["eolica"]
	assert.InDelta(t, 2.0/3.0, eol.Precision, 1e-12)
	assert.Equal(t, 1.0, eol.Recall)
	assert.InDelta(t, 0.8, eol.F1Score, 1e-12)

	assert.Equal(t, 0.75, report.Accuracy)
	assert.InDelta(t, (0.8+2.0/3.0)/3, report.MacroF1, 1e-12)
	assert.InDelta(t, (0.8*2+2.0/3.0*2)/4, report.WeightedF1, 1e-12)
	assert.InDelta(t, report.MacroF1, MacroF1(yTrue, yPred, classes), 1e-12)
}

func TestScore_RowSumsMatchSupport(t *testing.T) {
	yTrue := []string{"solar", "solar", "eolica", "hibrida", "hibrida", "hibrida"}
	yPred := []string{"hibrida", "solar", "eolica", "solar", "hibrida", "eolica"}

	report, err := Score(yTrue, yPred, classes)
	require.NoError(t, err)

	for i, class := range classes {
		sum := 0
		for _, v := range report.Matrix[i] {
			sum += v
		}
		assert.Equal(t, report.Classification.PerClass[class].Support, sum, class)
	}
	assert.Equal(t, 6, report.Classification.MacroAvg.Support)
}

func TestEvaluate(t *testing.T) {
	model := &stubClassifier{predictions: []string{"solar", "eolica"}}
	report, err := Evaluate(model, [][]float64{{1}, {2}}, []string{"solar", "hibrida"})
	require.NoError(t, err)

	assert.Equal(t, 0.5, report.Accuracy)
	assert.Equal(t, 0.75, report.FeatureImportance["latitud"])
	assert.Equal(t, 0.5, report.Performance().Accuracy)

	_, err = Evaluate(model, [][]float64{{1}}, []string{"solar", "hibrida"})
	assert.Error(t, err)

	failing := &stubClassifier{err: errors.New("boom")}
	_, err = Evaluate(failing, [][]float64{{1}}, []string{"solar"})
	assert.Error(t, err)
}
