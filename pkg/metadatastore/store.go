package metadatastore

import (
	"encoding/json"

	"github.com/atlas-energia/atlas-ml/pkg/models"
)

// MetadataStore is the interface for the run registry. It records every
// pipeline run and the department summaries it produced; the artifacts
// themselves stay on disk.
type MetadataStore interface {
	// Run operations
	SaveRun(run *models.RunRecord) error
	GetRun(id string) (*models.RunRecord, error)
	ListRuns(limit int) ([]*models.RunRecord, error)

	// Department summary operations
	SaveDepartmentSummaries(runID string, summaries []models.DepartmentSummary) error
	GetDepartmentSummaries(runID string) ([]json.RawMessage, error)

	Close() error
}
