package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/atlas-energia/atlas-ml/pkg/config"
	atlaslog "github.com/atlas-energia/atlas-ml/pkg/log"
	"github.com/atlas-energia/atlas-ml/pkg/metadatastore"
	"github.com/atlas-energia/atlas-ml/pkg/models"
	"github.com/atlas-energia/atlas-ml/pkg/pipeline"
	"github.com/atlas-energia/atlas-ml/pkg/scheduler"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, describe(err))
		os.Exit(1)
	}
}

func run() error {
	flags := pflag.NewFlagSet("atlas-train", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "", "YAML configuration file")
	input := flags.StringP("input", "i", "", "source CSV (overrides input_path)")
	output := flags.StringP("output", "o", "", "artifact directory (overrides output_dir)")
	seed := flags.Int64("seed", 0, "random seed (overrides training.seed)")
	threshold := flags.Float64("threshold", 0, "high-confidence threshold (overrides aggregation.confidence_threshold)")
	workers := flags.Int("workers", 0, "parallel fits (overrides training.workers)")
	registry := flags.String("registry", "", "SQLite run registry (overrides registry_path)")
	schedule := flags.String("schedule", "", "cron expression; keeps running and retrains on schedule")
	listRuns := flags.Int("list-runs", 0, "print the latest N registry runs and exit")
	showVersion := flags.Bool("version", false, "print the version and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if *showVersion {
		fmt.Println("atlas-train", version)
		return nil
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if flags.Changed("input") {
		cfg.InputPath = *input
	}
	if flags.Changed("output") {
		cfg.OutputDir = *output
	}
	if flags.Changed("seed") {
		cfg.Training.Seed = *seed
	}
	if flags.Changed("threshold") {
		cfg.Aggregation.ConfidenceThreshold = *threshold
	}
	if flags.Changed("workers") {
		cfg.Training.Workers = *workers
	}
	if flags.Changed("registry") {
		cfg.RegistryPath = *registry
	}
	if flags.Changed("schedule") {
		cfg.Schedule = *schedule
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := atlaslog.New(atlaslog.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return err
	}
	defer logger.Sync()

	var store metadatastore.MetadataStore
	if cfg.RegistryPath != "" {
		sqlite, err := metadatastore.NewSQLiteStore(cfg.RegistryPath)
		if err != nil {
			return fmt.Errorf("failed to open run registry: %w", err)
		}
		defer sqlite.Close()
		store = sqlite
		logger.Info("run registry opened", zap.String("path", cfg.RegistryPath))
	}

	if *listRuns > 0 {
		if store == nil {
			return fmt.Errorf("--list-runs requires a registry")
		}
		return printRuns(store, *listRuns)
	}

	svc, err := pipeline.NewService(cfg, store, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Schedule == "" {
		_, err := svc.Execute(ctx)
		return err
	}

	sched, err := scheduler.NewService(cfg.Schedule, func(ctx context.Context) error {
		_, err := svc.Execute(ctx)
		return err
	}, logger.Named("scheduler"))
	if err != nil {
		return err
	}
	if err := sched.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("shutting down")
	sched.Stop()
	return nil
}

func printRuns(store metadatastore.MetadataStore, limit int) error {
	runs, err := store.ListRuns(limit)
	if err != nil {
		return err
	}
	for _, r := range runs {
		fmt.Printf("%s  %-9s  %s  rows=%d  acc=%.4f  macro_f1=%.4f\n",
			r.ID, r.Status, r.StartedAt.Format("2006-01-02 15:04:05"),
			r.DatasetSize, r.Performance.Accuracy, r.Performance.MacroF1)
	}
	return nil
}

// describe prefixes the pipeline error kinds with an operator hint
func describe(err error) string {
	var (
		dataErr    *models.DataError
		labelErr   *models.LabelError
		driftErr   *models.SchemaDriftError
		persistErr *models.PersistenceError
	)
	switch {
	case errors.As(err, &dataErr):
		return "invalid dataset: " + err.Error()
	case errors.As(err, &labelErr):
		return "not enough labeled municipalities: " + err.Error()
	case errors.As(err, &driftErr):
		return "feature columns do not match the model: " + err.Error()
	case errors.As(err, &persistErr):
		return "artifacts were not written: " + err.Error()
	case errors.Is(err, context.Canceled):
		return "interrupted"
	default:
		return "error: " + err.Error()
	}
}
