// Package features turns cleaned municipality records into the numeric matrix
// consumed by the forest.
package features

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/atlas-energia/atlas-ml/pkg/models"
)

// GridTypePrefix names the indicator columns derived from tipo_red
const GridTypePrefix = models.ColumnGridType + "_"

// Columns is the fixed feature ordering shared by training and inference
type Columns []string

// Matrix is an encoded feature table
type Matrix struct {
	Columns Columns
	Rows    [][]float64
}

// Width returns the number of feature columns
func (m *Matrix) Width() int {
	return len(m.Columns)
}

// FitColumns derives the ordering from the records used for training: the
// continuous fields first, then one indicator per observed grid type sorted
// lexicographically.
func FitColumns(records []models.Record) Columns {
	seen := make(map[string]bool)
	var categories []string
	for _, r := range records {
		if !seen[r.GridType] {
			seen[r.GridType] = true
			categories = append(categories, r.GridType)
		}
	}
	sort.Strings(categories)

	cols := make(Columns, 0, len(models.NumericColumns)+len(categories))
	cols = append(cols, models.NumericColumns...)
	for _, c := range categories {
		cols = append(cols, GridTypePrefix+c)
	}
	return cols
}

// Validate reports orderings that cannot be aligned by zero-filling or dropping
// indicator columns.
func (c Columns) Validate() error {
	if len(c) < len(models.NumericColumns) {
		return &models.SchemaDriftError{Reason: fmt.Sprintf("expected at least %d columns, got %d", len(models.NumericColumns), len(c))}
	}
	for i, col := range models.NumericColumns {
		if c[i] != col {
			return &models.SchemaDriftError{Reason: fmt.Sprintf("continuous column out of place at position %d", i), Column: col}
		}
	}
	seen := make(map[string]bool, len(c))
	for _, col := range c {
		if seen[col] {
			return &models.SchemaDriftError{Reason: "duplicate column", Column: col}
		}
		seen[col] = true
	}
	for _, col := range c[len(models.NumericColumns):] {
		if !strings.HasPrefix(col, GridTypePrefix) || len(col) == len(GridTypePrefix) {
			return &models.SchemaDriftError{Reason: "unknown column", Column: col}
		}
	}
	return nil
}

// Index returns the position of each column name
func (c Columns) Index() map[string]int {
	idx := make(map[string]int, len(c))
	for i, col := range c {
		idx[col] = i
	}
	return idx
}

// Encode builds the matrix for records using cols. Indicator columns with no
// matching records stay zero; grid types that cols does not know are dropped.
func Encode(records []models.Record, cols Columns, logger *zap.Logger) (*Matrix, error) {
	if err := cols.Validate(); err != nil {
		return nil, err
	}

	index := cols.Index()
	numeric := len(models.NumericColumns)
	warned := make(map[string]bool)

	rows := make([][]float64, len(records))
	for i := range records {
		values := records[i].Numeric()
		if len(values) != numeric {
			return nil, &models.SchemaDriftError{Reason: fmt.Sprintf("row %d has %d continuous values, expected %d", i, len(values), numeric)}
		}
		row := make([]float64, len(cols))
		copy(row, values)

		if j, ok := index[GridTypePrefix+records[i].GridType]; ok {
			row[j] = 1
		} else if !warned[records[i].GridType] {
			warned[records[i].GridType] = true
			logger.Warn("ignoring grid type not seen during training",
				zap.String("tipo_red", records[i].GridType),
			)
		}
		rows[i] = row
	}

	return &Matrix{Columns: cols, Rows: rows}, nil
}

// EncodeTraining fits the ordering on records and encodes them with it
func EncodeTraining(records []models.Record, logger *zap.Logger) (*Matrix, Columns, error) {
	cols := FitColumns(records)
	m, err := Encode(records, cols, logger)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("features encoded",
		zap.Int("rows", len(m.Rows)),
		zap.Strings("columns", cols),
	)
	return m, cols, nil
}
