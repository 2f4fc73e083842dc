// Package dataset loads the municipality table and drops rows that cannot be
// used for training or inference.
package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/atlas-energia/atlas-ml/pkg/models"
)

// naTokens are read as missing values, matching the default NA set of the
// tooling that produced the source CSV.
var naTokens = map[string]bool{
	"":         true,
	"#N/A":     true,
	"#N/A N/A": true,
	"#NA":      true,
	"-1.#IND":  true,
	"-1.#QNAN": true,
	"-NaN":     true,
	"-nan":     true,
	"1.#IND":   true,
	"1.#QNAN":  true,
	"<NA>":     true,
	"N/A":      true,
	"NA":       true,
	"NULL":     true,
	"NaN":      true,
	"None":     true,
	"n/a":      true,
	"nan":      true,
	"null":     true,
}

// Stats counts rows seen while cleaning
type Stats struct {
	Total    int `json:"total"`
	Retained int `json:"retained"`
	Dropped  int `json:"dropped"`
}

// Dataset is the cleaned municipality table
type Dataset struct {
	Records []models.Record
	Stats   Stats
}

// Load reads and cleans the CSV at path
func Load(ctx context.Context, path string, logger *zap.Logger) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	logger.Info("loading dataset", zap.String("path", path))
	return Parse(ctx, f, logger)
}

// Parse reads and cleans CSV content from r
func Parse(ctx context.Context, r io.Reader, logger *zap.Logger) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, &models.DataError{Reason: "source is empty"}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	index := make(map[string]int, len(header))
	for i, col := range header {
		index[strings.TrimSpace(col)] = i
	}
	for _, col := range models.RequiredColumns {
		if _, ok := index[col]; !ok {
			return nil, &models.DataError{Reason: "required column missing", Column: col}
		}
	}

	ds := &Dataset{}
	line := 1
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				return nil, fmt.Errorf("malformed CSV at line %d: %w", line, err)
			}
			return nil, fmt.Errorf("failed to read dataset: %w", err)
		}

		ds.Stats.Total++
		record, ok := parseRecord(row, index)
		if !ok {
			ds.Stats.Dropped++
			logger.Debug("dropping incomplete row", zap.Int("line", line))
			continue
		}
		ds.Records = append(ds.Records, record)
	}
	ds.Stats.Retained = len(ds.Records)

	logger.Info("dataset cleaned",
		zap.Int("total", ds.Stats.Total),
		zap.Int("retained", ds.Stats.Retained),
		zap.Int("dropped", ds.Stats.Dropped),
	)

	if ds.Stats.Retained == 0 {
		return nil, &models.DataError{Reason: fmt.Sprintf("no rows left after cleaning (%d read)", ds.Stats.Total)}
	}

	return ds, nil
}

// parseRecord converts a CSV row; ok is false when a required field is missing
func parseRecord(row []string, index map[string]int) (models.Record, bool) {
	field := func(col string) string {
		i := index[col]
		if i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	numeric := make([]float64, len(models.NumericColumns))
	for i, col := range models.NumericColumns {
		v, ok := parseFloat(field(col))
		if !ok {
			return models.Record{}, false
		}
		numeric[i] = v
	}

	gridType := field(models.ColumnGridType)
	if isMissing(gridType) {
		return models.Record{}, false
	}

	label := field(models.ColumnPotential)
	if isMissing(label) {
		label = ""
	}

	return models.Record{
		Department:       field(models.ColumnDepartment),
		Municipality:     field(models.ColumnMunicipality),
		DaneCode:         parseCode(field(models.ColumnDaneCode)),
		Latitude:         numeric[0],
		Longitude:        numeric[1],
		AltitudeMASL:     numeric[2],
		SolarRadiation:   numeric[3],
		WindSpeed:        numeric[4],
		TemperatureC:     numeric[5],
		RelativeHumidity: numeric[6],
		CloudCover:       numeric[7],
		GridType:         gridType,
		SourceLabel:      label,
	}, true
}

func isMissing(s string) bool {
	return naTokens[s]
}

func parseFloat(s string) (float64, bool) {
	if isMissing(s) {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// parseCode accepts integer codes and their float renderings ("5001.0"); anything
// else becomes 0.
func parseCode(s string) int64 {
	if isMissing(s) {
		return 0
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(v) && !math.IsInf(v, 0) {
		return int64(v)
	}
	return 0
}

// LabelDistribution counts records per source label
func (d *Dataset) LabelDistribution() map[string]int {
	counts := make(map[string]int)
	for _, r := range d.Records {
		counts[r.SourceLabel]++
	}
	return counts
}

// TrainingSubset returns the records whose label is one of labels
func (d *Dataset) TrainingSubset(labels []string) []models.Record {
	allowed := make(map[string]bool, len(labels))
	for _, l := range labels {
		allowed[l] = true
	}
	var subset []models.Record
	for _, r := range d.Records {
		if allowed[r.SourceLabel] {
			subset = append(subset, r)
		}
	}
	return subset
}

// LogDistribution writes the label counts in a stable order
func LogDistribution(logger *zap.Logger, msg string, counts map[string]int) {
	labels := make([]string, 0, len(counts))
	for l := range counts {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	fields := make([]zap.Field, 0, len(labels))
	for _, l := range labels {
		name := l
		if name == "" {
			name = "(empty)"
		}
		fields = append(fields, zap.Int(name, counts[l]))
	}
	logger.Info(msg, fields...)
}
