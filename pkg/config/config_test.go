package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoadConfigDefaults tests default values
func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "../dataset_potencial_renovable_potencial.csv", cfg.InputPath)
	assert.Equal(t, 0.3, cfg.Training.TestSize)
	assert.Equal(t, 3, cfg.Training.CVFolds)
	assert.Equal(t, int64(42), cfg.Training.Seed)
	assert.Equal(t, 0.7, cfg.Aggregation.ConfidenceThreshold)
	assert.Equal(t, "ZNI", cfg.Aggregation.OffGridCategory)
	assert.Equal(t, []string{"solar", "eolica", "hibrida"}, cfg.Aggregation.DominantPriority)
	assert.Len(t, cfg.Training.Grid.Candidates(), 24)
	assert.Empty(t, cfg.RegistryPath)
}

// TestLoadConfig tests file and environment layering
func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "atlas.yaml")
	content := `
input_path: data/municipios.csv
output_dir: out
training:
  seed: 7
  workers: 2
  param_grid:
    n_estimators: [10]
    max_depth: [4, 6]
    min_samples_split: [2]
    min_samples_leaf: [1]
    class_weight: [balanced]
aggregation:
  confidence_threshold: 0.75
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	t.Setenv("ATLAS_SEED", "99")
	t.Setenv("ATLAS_LOG_FORMAT", "json")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "data/municipios.csv", cfg.InputPath)
	assert.Equal(t, "out", cfg.OutputDir)
	assert.Equal(t, int64(99), cfg.Training.Seed, "environment overrides file")
	assert.Equal(t, 2, cfg.Training.Workers)
	assert.Equal(t, 0.75, cfg.Aggregation.ConfidenceThreshold)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 0.3, cfg.Training.TestSize, "unset keys keep defaults")
	assert.Len(t, cfg.Training.Grid.Candidates(), 2)

	trainer := cfg.TrainerConfig()
	assert.Equal(t, int64(99), trainer.Seed)
	assert.Equal(t, 3, trainer.Folds)

	opts := cfg.AggregationOptions([]string{"eolica", "hibrida", "solar"})
	assert.Equal(t, 0.75, opts.Threshold)
	assert.Equal(t, "desconocido", opts.UnknownLabel)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("training: [unclosed"), 0644))
	_, err = LoadConfig(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"test size zero", func(c *Config) { c.Training.TestSize = 0 }},
		{"test size one", func(c *Config) { c.Training.TestSize = 1 }},
		{"one fold", func(c *Config) { c.Training.CVFolds = 1 }},
		{"no workers", func(c *Config) { c.Training.Workers = 0 }},
		{"negative threshold", func(c *Config) { c.Aggregation.ConfidenceThreshold = -0.1 }},
		{"empty grid", func(c *Config) { c.Training.Grid.MaxDepth = nil }},
		{"no input", func(c *Config) { c.InputPath = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := Default()
	cfg.Aggregation.ConfidenceThreshold = 1.01
	assert.NoError(t, cfg.Validate(), "thresholds above 1 are allowed")
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("ATLAS_TEST_INT", "12")
	t.Setenv("ATLAS_TEST_BAD", "twelve")
	t.Setenv("ATLAS_TEST_FLOAT", "0.25")

	assert.Equal(t, 12, getEnvAsInt("ATLAS_TEST_INT", 1))
	assert.Equal(t, 1, getEnvAsInt("ATLAS_TEST_BAD", 1))
	assert.Equal(t, 0.25, getEnvAsFloat("ATLAS_TEST_FLOAT", 0))
	assert.Equal(t, "fallback", getEnv("ATLAS_TEST_UNSET", "fallback"))
}
