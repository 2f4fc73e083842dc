// Package pipeline runs the batch stages end to end: load, encode, train,
// evaluate, infer, aggregate and persist.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atlas-energia/atlas-ml/pkg/config"
	"github.com/atlas-energia/atlas-ml/pkg/dataset"
	"github.com/atlas-energia/atlas-ml/pkg/features"
	"github.com/atlas-energia/atlas-ml/pkg/metadatastore"
	"github.com/atlas-energia/atlas-ml/pkg/mlmodel"
	"github.com/atlas-energia/atlas-ml/pkg/mlmodel/evaluation"
	"github.com/atlas-energia/atlas-ml/pkg/mlmodel/training"
	"github.com/atlas-energia/atlas-ml/pkg/models"
	"github.com/atlas-energia/atlas-ml/pkg/storage"
)

// RunContext carries the settings of one run and the output of every stage
// completed so far.
type RunContext struct {
	ID     string
	Config *config.Config
	Logger *zap.Logger
	Record *models.RunRecord

	Dataset     *dataset.Dataset
	Training    []models.Record
	Matrix      *features.Matrix
	Result      *training.Result
	Model       *mlmodel.TrainedModel
	Report      *evaluation.Report
	Predictions []models.PredictionResult
	Summaries   []models.DepartmentSummary
	Artifacts   *storage.Artifacts
}

// Step is one named stage of a run
type Step struct {
	Name string
	Run  func(ctx context.Context, rc *RunContext) error
}

// Service executes runs against one configuration. The registry is optional.
type Service struct {
	config   *config.Config
	store    *storage.FileStore
	registry metadatastore.MetadataStore
	logger   *zap.Logger
	steps    []Step
	now      func() time.Time
}

// NewService creates a pipeline service writing artifacts to cfg.OutputDir
func NewService(cfg *config.Config, registry metadatastore.MetadataStore, logger *zap.Logger) (*Service, error) {
	store, err := storage.NewFileStore(cfg.OutputDir, logger.Named("storage"))
	if err != nil {
		return nil, err
	}
	s := &Service{
		config:   cfg,
		store:    store,
		registry: registry,
		logger:   logger,
		now:      time.Now,
	}
	s.steps = []Step{
		{"load", s.load},
		{"encode", s.encode},
		{"train", s.train},
		{"evaluate", s.evaluate},
		{"predict", s.predict},
		{"aggregate", s.aggregate},
		{"persist", s.persist},
	}
	return s, nil
}

// Execute runs every step in order. The returned context is non-nil even on
// failure so callers can inspect the partial run.
func (s *Service) Execute(ctx context.Context) (*RunContext, error) {
	rc := &RunContext{
		ID:     uuid.New().String(),
		Config: s.config,
		Record: &models.RunRecord{
			Status:    models.RunStatusRunning,
			StartedAt: s.now().UTC(),
			InputPath: s.config.InputPath,
		},
	}
	rc.Record.ID = rc.ID
	rc.Logger = s.logger.With(zap.String("run_id", rc.ID))
	rc.Logger.Info("executing pipeline", zap.Int("steps", len(s.steps)))
	s.register(rc)

	for i, step := range s.steps {
		if err := ctx.Err(); err != nil {
			return rc, s.fail(rc, step.Name, err)
		}
		rc.Logger.Info("step started", zap.Int("step", i+1), zap.String("name", step.Name))
		start := time.Now()
		if err := step.Run(ctx, rc); err != nil {
			return rc, s.fail(rc, step.Name, err)
		}
		rc.Logger.Debug("step finished", zap.String("name", step.Name), zap.Duration("elapsed", time.Since(start)))
	}

	finished := s.now().UTC()
	rc.Record.Status = models.RunStatusCompleted
	rc.Record.FinishedAt = &finished
	s.register(rc)
	if s.registry != nil {
		if err := s.registry.SaveDepartmentSummaries(rc.ID, rc.Summaries); err != nil {
			rc.Logger.Warn("failed to record department summaries", zap.Error(err))
		}
	}

	rc.Logger.Info("pipeline execution completed",
		zap.Int("municipalities", len(rc.Predictions)),
		zap.Int("departments", len(rc.Summaries)),
		zap.Float64("accuracy", rc.Report.Accuracy),
		zap.Float64("macro_f1", rc.Report.MacroF1),
	)
	return rc, nil
}

// fail marks the run as failed. The step error is returned unwrapped so
// callers can match the typed pipeline errors.
func (s *Service) fail(rc *RunContext, step string, err error) error {
	finished := s.now().UTC()
	rc.Record.Status = models.RunStatusFailed
	rc.Record.Error = fmt.Sprintf("step %s failed: %v", step, err)
	rc.Record.FinishedAt = &finished
	rc.Logger.Error("pipeline step failed", zap.String("step", step), zap.Error(err))
	s.register(rc)
	return err
}

// register records the run. Registry failures never fail the run itself.
func (s *Service) register(rc *RunContext) {
	if s.registry == nil {
		return
	}
	if err := s.registry.SaveRun(rc.Record); err != nil {
		rc.Logger.Warn("failed to record run", zap.Error(err))
	}
}
