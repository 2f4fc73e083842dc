package models

import (
	"bytes"
	"encoding/json"
)

// ProbabilityPrefix names per-class probability fields in the predictions artifact
const ProbabilityPrefix = "prob_"

// PredictionResult is the model output for one record
type PredictionResult struct {
	PredictedClass string             `json:"predicted_class"`
	Probabilities  map[string]float64 `json:"probabilities"`
}

// MaxProbability returns the highest class probability
func (p PredictionResult) MaxProbability() float64 {
	maxProb := 0.0
	for _, prob := range p.Probabilities {
		if prob > maxProb {
			maxProb = prob
		}
	}
	return maxProb
}

// MunicipalityPrediction is one entry of the predictions artifact
type MunicipalityPrediction struct {
	Department     string
	Municipality   string
	DaneCode       int64
	Latitude       float64
	Longitude      float64
	GridType       string
	PredictedClass string
	SourceLabel    string
	Probabilities  map[string]float64
	// Classes fixes the order of the prob_ fields
	Classes []string
}

// MarshalJSON emits the probability columns as flat prob_<class> fields
func (m MunicipalityPrediction) MarshalJSON() ([]byte, error) {
	fields := []jsonField{
		{"departamento", m.Department},
		{"municipio", m.Municipality},
		{"codigo_dane_municipio", m.DaneCode},
		{"latitud", m.Latitude},
		{"longitud", m.Longitude},
		{"tipo_red", m.GridType},
		{"predicted_class", m.PredictedClass},
		{"source_label", m.SourceLabel},
	}
	for _, class := range classOrder(m.Classes) {
		fields = append(fields, jsonField{ProbabilityPrefix + class, m.Probabilities[class]})
	}
	return marshalOrdered(fields)
}

// DepartmentSummary aggregates the predictions of one department
type DepartmentSummary struct {
	Department          string
	NumMunicipalities   int
	ClassShare          map[string]float64
	DominantClass       string
	OffGridShare        float64
	UnknownShare        float64
	HighConfidenceShare float64
	MeanProbability     map[string]float64
	ConfidenceThreshold float64
	Classes             []string
}

// MarshalJSON keeps the field layout consumed by the map front-end
func (d DepartmentSummary) MarshalJSON() ([]byte, error) {
	classes := classOrder(d.Classes)
	fields := []jsonField{
		{"departamento", d.Department},
		{"num_municipios", d.NumMunicipalities},
	}
	for _, class := range classes {
		fields = append(fields, jsonField{class + "_pct", d.ClassShare[class]})
	}
	fields = append(fields,
		jsonField{"dominant_class", d.DominantClass},
		jsonField{"zni_pct", d.OffGridShare},
		jsonField{"unknown_pct", d.UnknownShare},
		jsonField{"high_confidence_pct", d.HighConfidenceShare},
	)
	for _, class := range classes {
		fields = append(fields, jsonField{"avg_" + class + "_prob", d.MeanProbability[class]})
	}
	fields = append(fields, jsonField{"confidence_threshold", d.ConfidenceThreshold})
	return marshalOrdered(fields)
}

func classOrder(classes []string) []string {
	if len(classes) == 0 {
		return TrainingLabels
	}
	return classes
}

type jsonField struct {
	key   string
	value any
}

func marshalOrdered(fields []jsonField) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		value, err := json.Marshal(f.value)
		if err != nil {
			return nil, err
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
