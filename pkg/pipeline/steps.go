package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/atlas-energia/atlas-ml/pkg/aggregation"
	"github.com/atlas-energia/atlas-ml/pkg/dataset"
	"github.com/atlas-energia/atlas-ml/pkg/features"
	"github.com/atlas-energia/atlas-ml/pkg/mlmodel"
	"github.com/atlas-energia/atlas-ml/pkg/mlmodel/evaluation"
	"github.com/atlas-energia/atlas-ml/pkg/mlmodel/training"
	"github.com/atlas-energia/atlas-ml/pkg/models"
	"github.com/atlas-energia/atlas-ml/pkg/storage"
)

func (s *Service) load(ctx context.Context, rc *RunContext) error {
	ds, err := dataset.Load(ctx, rc.Config.InputPath, rc.Logger.Named("dataset"))
	if err != nil {
		return err
	}
	rc.Dataset = ds
	rc.Record.DatasetSize = len(ds.Records)
	dataset.LogDistribution(rc.Logger, "source label distribution", ds.LabelDistribution())
	return nil
}

func (s *Service) encode(ctx context.Context, rc *RunContext) error {
	rc.Training = rc.Dataset.TrainingSubset(models.TrainingLabels)
	labels := labelsOf(rc.Training)
	if err := training.CheckLabels(labels, rc.Config.Training.CVFolds); err != nil {
		return err
	}
	matrix, _, err := features.EncodeTraining(rc.Training, rc.Logger.Named("features"))
	if err != nil {
		return err
	}
	rc.Matrix = matrix
	rc.Logger.Info("training matrix encoded",
		zap.Int("rows", len(matrix.Rows)),
		zap.Strings("columns", matrix.Columns),
	)
	return nil
}

func (s *Service) train(ctx context.Context, rc *RunContext) error {
	trainer := training.NewTrainer(rc.Config.TrainerConfig(), rc.Logger.Named("training"))
	result, err := trainer.Train(ctx, rc.Matrix.Rows, labelsOf(rc.Training), rc.Matrix.Columns)
	if err != nil {
		return err
	}
	model, err := mlmodel.NewTrainedModel(result, len(rc.Dataset.Records))
	if err != nil {
		return err
	}
	rc.Result = result
	rc.Model = model
	rc.Record.BestParams = model.Params
	return nil
}

func (s *Service) evaluate(ctx context.Context, rc *RunContext) error {
	report, err := evaluation.Evaluate(rc.Model, rc.Result.TestX, rc.Result.TestY)
	if err != nil {
		return err
	}
	rc.Report = report
	rc.Record.Performance = report.Performance()

	fields := []zap.Field{
		zap.Float64("accuracy", report.Accuracy),
		zap.Float64("macro_f1", report.MacroF1),
		zap.Float64("weighted_f1", report.WeightedF1),
	}
	rc.Logger.Info("test set evaluated", fields...)
	for _, class := range report.Classes {
		m := report.Classification.PerClass[class]
		rc.Logger.Info("class report",
			zap.String("class", class),
			zap.Float64("precision", m.Precision),
			zap.Float64("recall", m.Recall),
			zap.Float64("f1", m.F1Score),
			zap.Int("support", m.Support),
		)
	}
	return nil
}

func (s *Service) predict(ctx context.Context, rc *RunContext) error {
	matrix, err := features.Encode(rc.Dataset.Records, rc.Model.Columns, rc.Logger.Named("features"))
	if err != nil {
		return err
	}
	predictions, err := mlmodel.Predict(rc.Model, matrix)
	if err != nil {
		return err
	}
	rc.Predictions = predictions
	return nil
}

func (s *Service) aggregate(ctx context.Context, rc *RunContext) error {
	opts := rc.Config.AggregationOptions(displayOrder(rc.Model.Classes))
	summaries, err := aggregation.Aggregate(rc.Dataset.Records, rc.Predictions, opts)
	if err != nil {
		return err
	}
	rc.Summaries = summaries
	return nil
}

func (s *Service) persist(ctx context.Context, rc *RunContext) error {
	rc.Artifacts = buildArtifacts(rc, s.now().UTC())
	if err := s.store.Save(rc.Artifacts); err != nil {
		return err
	}
	rc.Record.ArtifactDir = s.store.BasePath()
	return nil
}

func buildArtifacts(rc *RunContext, generatedAt time.Time) *storage.Artifacts {
	classes := displayOrder(rc.Model.Classes)
	columns := []string(rc.Model.Columns)
	importance := models.FeatureImportance{Columns: columns, Values: rc.Model.FeatureImportance()}

	municipalities := make([]models.MunicipalityPrediction, len(rc.Dataset.Records))
	for i, r := range rc.Dataset.Records {
		municipalities[i] = models.MunicipalityPrediction{
			Department:     r.Department,
			Municipality:   r.Municipality,
			DaneCode:       r.DaneCode,
			Latitude:       r.Latitude,
			Longitude:      r.Longitude,
			GridType:       r.GridType,
			PredictedClass: rc.Predictions[i].PredictedClass,
			SourceLabel:    r.SourceLabel,
			Probabilities:  rc.Predictions[i].Probabilities,
			Classes:        rc.Model.Classes,
		}
	}

	return &storage.Artifacts{
		Predictions: &models.PredictionsArtifact{
			Metadata: models.PredictionsMetadata{
				GeneratedAt:       generatedAt,
				ModelType:         models.ModelTypeRandomForest,
				NumMunicipalities: len(municipalities),
				NumDepartments:    len(rc.Summaries),
				FeatureColumns:    columns,
			},
			Municipalities: municipalities,
			Departments:    rc.Summaries,
		},
		Metrics: &models.MetricsArtifact{
			Accuracy:             rc.Report.Accuracy,
			MacroF1:              rc.Report.MacroF1,
			WeightedF1:           rc.Report.WeightedF1,
			ConfusionMatrix:      rc.Report.Matrix,
			ClassificationReport: rc.Report.Classification,
			BestParams:           rc.Model.Params,
			FeatureImportance:    importance,
		},
		Metadata: &models.ModelMetadata{
			ModelType:         models.ModelTypeRandomForestClassifier,
			TrainingDate:      rc.Model.TrainedAt,
			DatasetSize:       len(rc.Dataset.Records),
			FeatureColumns:    columns,
			Classes:           classes,
			BestParams:        rc.Model.Params,
			Performance:       rc.Report.Performance(),
			FeatureImportance: importance,
		},
		Model: rc.Model,
	}
}

func labelsOf(records []models.Record) []string {
	labels := make([]string, len(records))
	for i, r := range records {
		labels[i] = r.SourceLabel
	}
	return labels
}

// displayOrder lists classes in TrainingLabels order, followed by any class
// outside it in the given order.
func displayOrder(classes []string) []string {
	present := make(map[string]bool, len(classes))
	for _, c := range classes {
		present[c] = true
	}
	out := make([]string, 0, len(classes))
	for _, label := range models.TrainingLabels {
		if present[label] {
			out = append(out, label)
			delete(present, label)
		}
	}
	for _, c := range classes {
		if present[c] {
			out = append(out, c)
		}
	}
	return out
}
