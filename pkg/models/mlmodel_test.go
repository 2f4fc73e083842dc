package models

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMunicipalityPrediction_MarshalJSON(t *testing.T) {
	m := MunicipalityPrediction{
		Department:     "La Guajira",
		Municipality:   "Uribia",
		DaneCode:       44847,
		Latitude:       11.71,
		Longitude:      -72.27,
		GridType:       GridTypeOffGrid,
		PredictedClass: LabelEolica,
		SourceLabel:    LabelEolica,
		Probabilities:  map[string]float64{LabelSolar: 0.1, LabelEolica: 0.8, LabelHibrida: 0.1},
	}
	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Equal(t,
		`{"departamento":"La Guajira","municipio":"Uribia","codigo_dane_municipio":44847,`+
			`"latitud":11.71,"longitud":-72.27,"tipo_red":"ZNI","predicted_class":"eolica","source_label":"eolica",`+
			`"prob_solar":0.1,"prob_eolica":0.8,"prob_hibrida":0.1}`,
		string(data))
}

func TestDepartmentSummary_MarshalJSON(t *testing.T) {
	d := DepartmentSummary{
		Department:          "Antioquia",
		NumMunicipalities:   3,
		ClassShare:          map[string]float64{LabelSolar: 0.667, LabelEolica: 0, LabelHibrida: 0.333},
		DominantClass:       LabelSolar,
		OffGridShare:        0.333,
		UnknownShare:        0,
		HighConfidenceShare: 1,
		MeanProbability:     map[string]float64{LabelSolar: 0.6, LabelEolica: 0.1, LabelHibrida: 0.3},
		ConfidenceThreshold: 0.6,
		Classes:             []string{LabelSolar, LabelHibrida},
	}
	data, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t,
		`{"departamento":"Antioquia","num_municipios":3,"solar_pct":0.667,"hibrida_pct":0.333,`+
			`"dominant_class":"solar","zni_pct":0.333,"unknown_pct":0,"high_confidence_pct":1,`+
			`"avg_solar_prob":0.6,"avg_hibrida_prob":0.3,"confidence_threshold":0.6}`,
		string(data))
}

func TestClassificationReport_JSON(t *testing.T) {
	report := ClassificationReport{
		Classes: []string{LabelEolica, LabelHibrida, LabelSolar},
		PerClass: map[string]ClassMetrics{
			LabelEolica:  {Precision: 1, Recall: 0.5, F1Score: 0.667, Support: 2},
			LabelHibrida: {Precision: 0.5, Recall: 1, F1Score: 0.667, Support: 1},
			LabelSolar:   {Precision: 1, Recall: 1, F1Score: 1, Support: 3},
		},
		Accuracy:    0.833,
		MacroAvg:    ClassMetrics{Precision: 0.833, Recall: 0.833, F1Score: 0.778, Support: 6},
		WeightedAvg: ClassMetrics{Precision: 0.917, Recall: 0.833, F1Score: 0.833, Support: 6},
	}
	data, err := json.Marshal(report)
	require.NoError(t, err)

	s := string(data)
	assert.Less(t, strings.Index(s, `"eolica"`), strings.Index(s, `"hibrida"`))
	assert.Less(t, strings.Index(s, `"solar"`), strings.Index(s, `"accuracy"`))
	assert.Less(t, strings.Index(s, `"accuracy"`), strings.Index(s, `"macro avg"`))
	assert.Less(t, strings.Index(s, `"macro avg"`), strings.Index(s, `"weighted avg"`))
	assert.Contains(t, s, `"f1-score":0.778`)

	var decoded ClassificationReport
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, report, decoded)
}

func TestFeatureImportance_JSON(t *testing.T) {
	imp := FeatureImportance{
		Columns: []string{ColumnLatitude, ColumnWindSpeed, "tipo_red_ZNI"},
		Values:  map[string]float64{ColumnLatitude: 0.25, ColumnWindSpeed: 0.7, "tipo_red_ZNI": 0.05},
	}
	data, err := json.Marshal(imp)
	require.NoError(t, err)
	assert.Equal(t, `{"latitud":0.25,"viento_ms":0.7,"tipo_red_ZNI":0.05}`, string(data))

	var decoded FeatureImportance
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, imp, decoded)

	assert.Error(t, json.Unmarshal([]byte(`{"latitud":"high"}`), &decoded))
}

func TestMunicipalityPrediction_ClassOrder(t *testing.T) {
	m := MunicipalityPrediction{
		Probabilities: map[string]float64{LabelSolar: 0.2, LabelEolica: 0.5, LabelHibrida: 0.3},
		Classes:       []string{LabelEolica, LabelHibrida, LabelSolar},
	}
	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(data), `"prob_eolica":0.5,"prob_hibrida":0.3,"prob_solar":0.2}`))
}

func TestLabelError_Error(t *testing.T) {
	assert.Equal(t, `label error: class "hibrida" has 2 examples, at least 3 required`,
		(&LabelError{Class: LabelHibrida, Count: 2, Required: 3}).Error())
	assert.Equal(t, "label error: 1 classes present, at least 2 required",
		(&LabelError{Count: 1, Required: 2}).Error())
}
