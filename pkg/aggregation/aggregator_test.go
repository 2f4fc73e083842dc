package aggregation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlas-energia/atlas-ml/pkg/models"
)

func prediction(class string, probs ...float64) models.PredictionResult {
	return models.PredictionResult{
		PredictedClass: class,
		Probabilities: map[string]float64{
			"solar":   probs[0],
			"eolica":  probs[1],
			"hibrida": probs[2],
		},
	}
}

func fixture() ([]models.Record, []models.PredictionResult) {
	records := []models.Record{
		{Department: "La Guajira", Municipality: "Uribia", GridType: "ZNI", SourceLabel: "eolica"},
		{Department: "Antioquia", Municipality: "Medellín", GridType: "SIN", SourceLabel: "solar"},
		{Department: "La Guajira", Municipality: "Manaure", GridType: "SIN", SourceLabel: "desconocido"},
		{Department: "La Guajira", Municipality: "Maicao", GridType: "ZNI", SourceLabel: "hibrida"},
		{Department: "Antioquia", Municipality: "Bello", GridType: "SIN", SourceLabel: ""},
	}
	predictions := []models.PredictionResult{
		prediction("eolica", 0.1, 0.8, 0.1),
		prediction("solar", 0.7, 0.1, 0.2),
		prediction("eolica", 0.2, 0.5, 0.3),
		prediction("hibrida", 0.3, 0.3, 0.4),
		prediction("hibrida", 0.45, 0.1, 0.45),
	}
	return records, predictions
}

func TestAggregate(t *testing.T) {
	records, predictions := fixture()
	summaries, err := Aggregate(records, predictions, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	guajira := summaries[0]
	assert.Equal(t, "La Guajira", guajira.Department, "first-seen order")
	assert.Equal(t, 3, guajira.NumMunicipalities)
	assert.Equal(t, 0.667, guajira.ClassShare["eolica"])
	assert.Equal(t, 0.333, guajira.ClassShare["hibrida"])
	assert.Equal(t, 0.0, guajira.ClassShare["solar"])
	assert.Equal(t, "eolica", guajira.DominantClass)
	assert.Equal(t, 0.667, guajira.OffGridShare)
	assert.Equal(t, 0.333, guajira.UnknownShare)
	assert.Equal(t, 0.333, guajira.HighConfidenceShare)
	assert.Equal(t, 0.533, guajira.MeanProbability["eolica"])
	assert.Equal(t, 0.7, guajira.ConfidenceThreshold)

	antioquia := summaries[1]
	assert.Equal(t, 2, antioquia.NumMunicipalities)
	assert.Equal(t, 0.0, antioquia.OffGridShare)
	// one solar, one hibrida: priority puts solar first
	assert.Equal(t, "solar", antioquia.DominantClass)
	assert.Equal(t, 0.575, antioquia.MeanProbability["solar"])
}

func TestAggregate_SharesSumToOne(t *testing.T) {
	records, predictions := fixture()
	summaries, err := Aggregate(records, predictions, DefaultOptions())
	require.NoError(t, err)

	for _, s := range summaries {
		sum := 0.0
		for _, v := range s.ClassShare {
			sum += v
		}
		assert.InDelta(t, 1.0, sum, 0.002, s.Department)
	}
}

func TestAggregate_DefaultThreshold(t *testing.T) {
	records := []models.Record{{Department: "Cesar", GridType: "SIN", SourceLabel: "solar"}}
	predictions := []models.PredictionResult{prediction("solar", 0.65, 0.2, 0.15)}

	summaries, err := Aggregate(records, predictions, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, 0.7, summaries[0].ConfidenceThreshold)
	assert.Equal(t, 0.0, summaries[0].HighConfidenceShare, "0.65 is below the default threshold")
}

func TestAggregate_ThresholdBounds(t *testing.T) {
	records, predictions := fixture()

	opts := DefaultOptions()
	opts.Threshold = 0
	summaries, err := Aggregate(records, predictions, opts)
	require.NoError(t, err)
	for _, s := range summaries {
		assert.Equal(t, 1.0, s.HighConfidenceShare)
	}

	opts.Threshold = 1.01
	summaries, err = Aggregate(records, predictions, opts)
	require.NoError(t, err)
	for _, s := range summaries {
		assert.Equal(t, 0.0, s.HighConfidenceShare)
	}

	opts.Threshold = -0.1
	_, err = Aggregate(records, predictions, opts)
	assert.Error(t, err)
}

func TestAggregate_HighConfidenceMonotone(t *testing.T) {
	records, predictions := fixture()
	thresholds := []float64{0, 0.3, 0.45, 0.5, 0.6, 0.7, 0.8, 0.9, 1}

	previous := map[string]float64{}
	for i, tau := range thresholds {
		opts := DefaultOptions()
		opts.Threshold = tau
		summaries, err := Aggregate(records, predictions, opts)
		require.NoError(t, err)
		for _, s := range summaries {
			if i > 0 {
				assert.LessOrEqual(t, s.HighConfidenceShare, previous[s.Department], "tau=%v", tau)
			}
			previous[s.Department] = s.HighConfidenceShare
		}
	}
}

func TestAggregate_DominantTieBreak(t *testing.T) {
	records := []models.Record{
		{Department: "Meta"}, {Department: "Meta"}, {Department: "Meta"}, {Department: "Meta"},
	}
	predictions := []models.PredictionResult{
		prediction("hibrida", 0.2, 0.2, 0.6),
		prediction("eolica", 0.2, 0.6, 0.2),
		prediction("hibrida", 0.2, 0.2, 0.6),
		prediction("eolica", 0.2, 0.6, 0.2),
	}
	summaries, err := Aggregate(records, predictions, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, "eolica", summaries[0].DominantClass)
}

func TestAggregate_LengthMismatch(t *testing.T) {
	records, predictions := fixture()
	_, err := Aggregate(records, predictions[:2], DefaultOptions())
	assert.Error(t, err)
}

func TestDominant_Empty(t *testing.T) {
	assert.Equal(t, models.LabelUnknown, dominant(map[string]int{}, DefaultOptions()))
}
