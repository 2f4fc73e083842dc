// Package storage writes the run artifacts to disk as one all-or-nothing batch.
package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/atlas-energia/atlas-ml/pkg/mlmodel"
	"github.com/atlas-energia/atlas-ml/pkg/models"
)

// Artifact file names inside the output directory
const (
	PredictionsFile = "municipio_predictions.json"
	MetricsFile     = "metrics_random_forest.json"
	MetadataFile    = "model_metadata.json"
	ModelFile       = "random_forest_model.msgpack"
)

// Artifacts is the full set written at the end of a run
type Artifacts struct {
	Predictions *models.PredictionsArtifact
	Metrics     *models.MetricsArtifact
	Metadata    *models.ModelMetadata
	Model       *mlmodel.TrainedModel
}

// FileStore persists artifacts under one base directory
type FileStore struct {
	basePath string
	mu       sync.Mutex
	logger   *zap.Logger
	rename   func(src, dst string) error
}

// NewFileStore creates the base directory if needed
func NewFileStore(basePath string, logger *zap.Logger) (*FileStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, &models.PersistenceError{Path: basePath, Err: fmt.Errorf("failed to create output directory: %w", err)}
	}
	return &FileStore{basePath: basePath, logger: logger, rename: os.Rename}, nil
}

// BasePath returns the output directory
func (fs *FileStore) BasePath() string {
	return fs.basePath
}

type encodedFile struct {
	name string
	data []byte
}

// Save encodes every artifact, writes them into a staging directory and only
// then moves them into place. On failure the staging directory is removed and
// the previous artifacts are restored.
func (fs *FileStore) Save(a *Artifacts) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	files, err := encodeAll(a)
	if err != nil {
		return err
	}

	staging, err := os.MkdirTemp(fs.basePath, ".staging-")
	if err != nil {
		return &models.PersistenceError{Path: fs.basePath, Err: fmt.Errorf("failed to create staging directory: %w", err)}
	}
	defer os.RemoveAll(staging)

	for _, f := range files {
		path := filepath.Join(staging, f.name)
		if err := os.WriteFile(path, f.data, 0644); err != nil {
			return &models.PersistenceError{Path: path, Err: err}
		}
	}

	if err := fs.publish(staging, files); err != nil {
		return err
	}
	for _, f := range files {
		fs.logger.Info("artifact written",
			zap.String("path", filepath.Join(fs.basePath, f.name)),
			zap.Int("bytes", len(f.data)),
		)
	}
	return nil
}

// publish moves the previous artifacts into staging, then the new ones into
// the base directory. Any failure puts the previous set back.
func (fs *FileStore) publish(staging string, files []encodedFile) error {
	for _, f := range files {
		dst := filepath.Join(fs.basePath, f.name)
		info, err := os.Lstat(dst)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return &models.PersistenceError{Path: dst, Err: err}
		case !info.Mode().IsRegular():
			return &models.PersistenceError{Path: dst, Err: fmt.Errorf("existing artifact is not a regular file")}
		}
	}

	previous := filepath.Join(staging, ".previous")
	if err := os.Mkdir(previous, 0755); err != nil {
		return &models.PersistenceError{Path: previous, Err: err}
	}

	var backedUp, published []string
	rollback := func() {
		restored := make(map[string]bool, len(backedUp))
		for _, name := range backedUp {
			restored[name] = true
			if err := fs.rename(filepath.Join(previous, name), filepath.Join(fs.basePath, name)); err != nil {
				fs.logger.Error("failed to restore artifact", zap.String("name", name), zap.Error(err))
			}
		}
		for _, name := range published {
			if restored[name] {
				continue
			}
			if err := os.Remove(filepath.Join(fs.basePath, name)); err != nil {
				fs.logger.Error("failed to remove partial artifact", zap.String("name", name), zap.Error(err))
			}
		}
	}

	for _, f := range files {
		dst := filepath.Join(fs.basePath, f.name)
		if _, err := os.Lstat(dst); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := fs.rename(dst, filepath.Join(previous, f.name)); err != nil {
			rollback()
			return &models.PersistenceError{Path: dst, Err: fmt.Errorf("failed to move previous artifact aside: %w", err)}
		}
		backedUp = append(backedUp, f.name)
	}

	for _, f := range files {
		dst := filepath.Join(fs.basePath, f.name)
		if err := fs.rename(filepath.Join(staging, f.name), dst); err != nil {
			rollback()
			return &models.PersistenceError{Path: dst, Err: err}
		}
		published = append(published, f.name)
	}
	return nil
}

func encodeAll(a *Artifacts) ([]encodedFile, error) {
	if a == nil || a.Predictions == nil || a.Metrics == nil || a.Metadata == nil || a.Model == nil {
		return nil, &models.PersistenceError{Path: "artifacts", Err: fmt.Errorf("incomplete artifact set")}
	}

	var files []encodedFile
	for _, item := range []struct {
		name  string
		value any
	}{
		{PredictionsFile, a.Predictions},
		{MetricsFile, a.Metrics},
		{MetadataFile, a.Metadata},
	} {
		data, err := marshalJSON(item.value)
		if err != nil {
			return nil, &models.PersistenceError{Path: item.name, Err: fmt.Errorf("failed to marshal: %w", err)}
		}
		files = append(files, encodedFile{item.name, data})
	}

	model, err := msgpack.Marshal(a.Model)
	if err != nil {
		return nil, &models.PersistenceError{Path: ModelFile, Err: fmt.Errorf("failed to marshal model: %w", err)}
	}
	return append(files, encodedFile{ModelFile, model}), nil
}

// marshalJSON indents with two spaces and keeps non-ASCII text as is
func marshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// LoadModel reads a serialized model back
func LoadModel(path string) (*mlmodel.TrainedModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}
	var model mlmodel.TrainedModel
	if err := msgpack.Unmarshal(data, &model); err != nil {
		return nil, fmt.Errorf("failed to decode model: %w", err)
	}
	if model.Forest == nil {
		return nil, fmt.Errorf("model file %s has no forest", path)
	}
	if err := model.Columns.Validate(); err != nil {
		return nil, err
	}
	return &model, nil
}
