// Package aggregation summarises municipality predictions per department.
package aggregation

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/atlas-energia/atlas-ml/pkg/models"
)

// DefaultThreshold is the probability a prediction needs to count as high confidence
const DefaultThreshold = 0.7

// DefaultPriority breaks dominant-class ties
var DefaultPriority = []string{models.LabelSolar, models.LabelEolica, models.LabelHibrida}

// Options configure the aggregation
type Options struct {
	Threshold       float64
	OffGridCategory string
	UnknownLabel    string
	Classes         []string
	Priority        []string
}

// DefaultOptions returns the options used for the published artifacts
func DefaultOptions() Options {
	return Options{
		Threshold:       DefaultThreshold,
		OffGridCategory: models.GridTypeOffGrid,
		UnknownLabel:    models.LabelUnknown,
		Classes:         models.TrainingLabels,
		Priority:        DefaultPriority,
	}
}

// Validate checks the options
func (o Options) Validate() error {
	if o.Threshold < 0 || math.IsNaN(o.Threshold) {
		return fmt.Errorf("confidence threshold must be >= 0, got %v", o.Threshold)
	}
	if len(o.Classes) == 0 {
		return fmt.Errorf("no classes configured")
	}
	return nil
}

// Aggregate groups records by department in order of first appearance and
// computes the class shares and uncertainty indicators of each group.
// predictions[i] belongs to records[i].
func Aggregate(records []models.Record, predictions []models.PredictionResult, opts Options) ([]models.DepartmentSummary, error) {
	if len(records) != len(predictions) {
		return nil, fmt.Errorf("got %d records but %d predictions", len(records), len(predictions))
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	var order []string
	groups := make(map[string][]int)
	for i, r := range records {
		if _, ok := groups[r.Department]; !ok {
			order = append(order, r.Department)
		}
		groups[r.Department] = append(groups[r.Department], i)
	}

	summaries := make([]models.DepartmentSummary, 0, len(order))
	for _, dept := range order {
		summaries = append(summaries, summarize(dept, groups[dept], records, predictions, opts))
	}
	return summaries, nil
}

func summarize(dept string, members []int, records []models.Record, predictions []models.PredictionResult, opts Options) models.DepartmentSummary {
	summary := models.DepartmentSummary{
		Department:          dept,
		NumMunicipalities:   len(members),
		ClassShare:          make(map[string]float64, len(opts.Classes)),
		MeanProbability:     make(map[string]float64, len(opts.Classes)),
		ConfidenceThreshold: opts.Threshold,
		Classes:             opts.Classes,
		DominantClass:       models.LabelUnknown,
	}
	n := float64(len(members))
	if n == 0 {
		return summary
	}

	counts := make(map[string]int, len(opts.Classes))
	offGrid, unknown, confident := 0, 0, 0
	probs := make(map[string][]float64, len(opts.Classes))
	for _, i := range members {
		p := predictions[i]
		counts[p.PredictedClass]++
		if records[i].GridType == opts.OffGridCategory {
			offGrid++
		}
		if records[i].SourceLabel == opts.UnknownLabel {
			unknown++
		}
		if p.MaxProbability() >= opts.Threshold {
			confident++
		}
		for _, class := range opts.Classes {
			probs[class] = append(probs[class], p.Probabilities[class])
		}
	}

	for _, class := range opts.Classes {
		summary.ClassShare[class] = round3(float64(counts[class]) / n)
		summary.MeanProbability[class] = round3(stat.Mean(probs[class], nil))
	}
	summary.OffGridShare = round3(float64(offGrid) / n)
	summary.UnknownShare = round3(float64(unknown) / n)
	summary.HighConfidenceShare = round3(float64(confident) / n)
	summary.DominantClass = dominant(counts, opts)
	return summary
}

// dominant picks the most frequent predicted class. Equal counts resolve by
// opts.Priority, then by opts.Classes order.
func dominant(counts map[string]int, opts Options) string {
	candidates := append(append([]string{}, opts.Priority...), opts.Classes...)
	best, bestCount := models.LabelUnknown, 0
	for _, class := range candidates {
		if counts[class] > bestCount {
			best, bestCount = class, counts[class]
		}
	}
	return best
}

// round3 rounds half away from zero to three decimals
func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
