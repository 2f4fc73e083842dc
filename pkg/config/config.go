// Package config resolves the pipeline settings from defaults, an optional
// YAML file and ATLAS_* environment variables.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/atlas-energia/atlas-ml/pkg/aggregation"
	"github.com/atlas-energia/atlas-ml/pkg/mlmodel/training"
	"github.com/atlas-energia/atlas-ml/pkg/models"
)

// Config holds the application configuration
type Config struct {
	InputPath    string            `yaml:"input_path"`
	OutputDir    string            `yaml:"output_dir"`
	RegistryPath string            `yaml:"registry_path"`
	Schedule     string            `yaml:"schedule"`
	Training     TrainingConfig    `yaml:"training"`
	Aggregation  AggregationConfig `yaml:"aggregation"`
	Log          LogConfig         `yaml:"log"`
}

// TrainingConfig controls splitting, search and fitting
type TrainingConfig struct {
	TestSize float64            `yaml:"test_size"`
	CVFolds  int                `yaml:"cv_folds"`
	Seed     int64              `yaml:"seed"`
	Workers  int                `yaml:"workers"`
	Grid     training.ParamGrid `yaml:"param_grid"`
}

// AggregationConfig controls the department summaries
type AggregationConfig struct {
	ConfidenceThreshold float64  `yaml:"confidence_threshold"`
	OffGridCategory     string   `yaml:"off_grid_category"`
	UnknownLabel        string   `yaml:"unknown_label"`
	DominantPriority    []string `yaml:"dominant_priority"`
}

// LogConfig controls the logger
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the settings used for the published artifacts
func Default() *Config {
	return &Config{
		InputPath: "../dataset_potencial_renovable_potencial.csv",
		OutputDir: "../frontend/public/data",
		Training: TrainingConfig{
			TestSize: 0.3,
			CVFolds:  3,
			Seed:     42,
			Workers:  runtime.NumCPU(),
			Grid:     training.DefaultParamGrid(),
		},
		Aggregation: AggregationConfig{
			ConfidenceThreshold: aggregation.DefaultThreshold,
			OffGridCategory:     models.GridTypeOffGrid,
			UnknownLabel:        models.LabelUnknown,
			DominantPriority:    append([]string(nil), aggregation.DefaultPriority...),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadConfig builds the configuration: defaults, then the YAML file at path
// (skipped when path is empty), then environment overrides.
func LoadConfig(path string) (*Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	config.applyEnv()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) applyEnv() {
	c.InputPath = getEnv("ATLAS_INPUT_PATH", c.InputPath)
	c.OutputDir = getEnv("ATLAS_OUTPUT_DIR", c.OutputDir)
	c.RegistryPath = getEnv("ATLAS_REGISTRY_PATH", c.RegistryPath)
	c.Schedule = getEnv("ATLAS_SCHEDULE", c.Schedule)
	c.Training.Seed = int64(getEnvAsInt("ATLAS_SEED", int(c.Training.Seed)))
	c.Training.Workers = getEnvAsInt("ATLAS_WORKERS", c.Training.Workers)
	c.Training.CVFolds = getEnvAsInt("ATLAS_CV_FOLDS", c.Training.CVFolds)
	c.Training.TestSize = getEnvAsFloat("ATLAS_TEST_SIZE", c.Training.TestSize)
	c.Aggregation.ConfidenceThreshold = getEnvAsFloat("ATLAS_CONFIDENCE_THRESHOLD", c.Aggregation.ConfidenceThreshold)
	c.Log.Level = getEnv("ATLAS_LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("ATLAS_LOG_FORMAT", c.Log.Format)
}

// Validate checks the configuration for values the pipeline cannot run with
func (c *Config) Validate() error {
	if c.InputPath == "" {
		return fmt.Errorf("input_path is required")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output_dir is required")
	}
	if c.Training.TestSize <= 0 || c.Training.TestSize >= 1 {
		return fmt.Errorf("training.test_size must be in (0, 1), got %v", c.Training.TestSize)
	}
	if c.Training.CVFolds < 2 {
		return fmt.Errorf("training.cv_folds must be at least 2, got %d", c.Training.CVFolds)
	}
	if c.Training.Workers < 1 {
		return fmt.Errorf("training.workers must be at least 1, got %d", c.Training.Workers)
	}
	if len(c.Training.Grid.Candidates()) == 0 {
		return fmt.Errorf("training.param_grid produces no candidates")
	}
	if c.Aggregation.ConfidenceThreshold < 0 {
		return fmt.Errorf("aggregation.confidence_threshold must be >= 0, got %v", c.Aggregation.ConfidenceThreshold)
	}
	return nil
}

// TrainerConfig converts the training section for the trainer
func (c *Config) TrainerConfig() training.Config {
	return training.Config{
		TestSize: c.Training.TestSize,
		Folds:    c.Training.CVFolds,
		Seed:     c.Training.Seed,
		Workers:  c.Training.Workers,
		Grid:     c.Training.Grid,
	}
}

// AggregationOptions converts the aggregation section for the aggregator
func (c *Config) AggregationOptions(classes []string) aggregation.Options {
	return aggregation.Options{
		Threshold:       c.Aggregation.ConfidenceThreshold,
		OffGridCategory: c.Aggregation.OffGridCategory,
		UnknownLabel:    c.Aggregation.UnknownLabel,
		Classes:         classes,
		Priority:        c.Aggregation.DominantPriority,
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat retrieves an environment variable as a float or returns a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}
