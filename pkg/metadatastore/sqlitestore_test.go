package metadatastore

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlas-energia/atlas-ml/pkg/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "registry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_Runs(t *testing.T) {
	store := newTestStore(t)

	started := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	run := &models.RunRecord{
		ID:        uuid.New().String(),
		Status:    models.RunStatusRunning,
		StartedAt: started,
		InputPath: "dataset.csv",
	}
	require.NoError(t, store.SaveRun(run))

	finished := started.Add(5 * time.Minute)
	run.Status = models.RunStatusCompleted
	run.FinishedAt = &finished
	run.DatasetSize = 1100
	run.Performance = models.PerformanceMetrics{Accuracy: 0.81, MacroF1: 0.78, WeightedF1: 0.8}
	run.BestParams = models.Hyperparameters{ClassWeight: "balanced", MaxDepth: 12, MinSamplesLeaf: 2, MinSamplesSplit: 5, NEstimators: 300}
	run.ArtifactDir = "out"
	require.NoError(t, store.SaveRun(run))

	got, err := store.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, got.Status)
	assert.Equal(t, 1100, got.DatasetSize)
	assert.Equal(t, run.BestParams, got.BestParams)
	require.NotNil(t, got.FinishedAt)
	assert.True(t, finished.Equal(*got.FinishedAt))

	_, err = store.GetRun("missing")
	assert.Error(t, err)
}

func TestSQLiteStore_ListRuns(t *testing.T) {
	store := newTestStore(t)

	base := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, store.SaveRun(&models.RunRecord{
			ID:        uuid.New().String(),
			Status:    models.RunStatusFailed,
			StartedAt: base.Add(time.Duration(i) * time.Hour),
			InputPath: "dataset.csv",
			Error:     "boom",
		}))
	}

	runs, err := store.ListRuns(0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.True(t, runs[0].StartedAt.After(runs[1].StartedAt), "newest first")

	limited, err := store.ListRuns(2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestSQLiteStore_DepartmentSummaries(t *testing.T) {
	store := newTestStore(t)
	runID := uuid.New().String()

	summaries := []models.DepartmentSummary{
		{Department: "La Guajira", NumMunicipalities: 15, DominantClass: "eolica", ClassShare: map[string]float64{"eolica": 0.6}},
		{Department: "Antioquia", NumMunicipalities: 125, DominantClass: "solar"},
	}
	require.NoError(t, store.SaveDepartmentSummaries(runID, summaries))
	// saving again replaces the previous rows
	require.NoError(t, store.SaveDepartmentSummaries(runID, summaries))

	stored, err := store.GetDepartmentSummaries(runID)
	require.NoError(t, err)
	require.Len(t, stored, 2)

	var first map[string]any
	require.NoError(t, json.Unmarshal(stored[0], &first))
	assert.Equal(t, "La Guajira", first["departamento"])
	assert.Equal(t, 0.6, first["eolica_pct"])

	none, err := store.GetDepartmentSummaries("other")
	require.NoError(t, err)
	assert.Empty(t, none)
}
