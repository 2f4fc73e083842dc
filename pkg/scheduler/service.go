// Package scheduler re-runs the full batch pipeline on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// RunFunc executes one complete pipeline run
type RunFunc func(ctx context.Context) error

// Service triggers RunFunc on a standard 5-field cron expression. A tick that
// fires while the previous run is still going is skipped.
type Service struct {
	run      RunFunc
	schedule string
	cron     *cron.Cron
	entryID  cron.EntryID
	logger   *zap.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	lastRun *time.Time
	lastErr error
	runs    int
}

// NewService validates the schedule and prepares the cron runner
func NewService(schedule string, run RunFunc, logger *zap.Logger) (*Service, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}
	return &Service{
		run:      run,
		schedule: schedule,
		logger:   logger,
		cron: cron.New(cron.WithChain(
			cron.Recover(cronLogger{logger}),
			cron.SkipIfStillRunning(cronLogger{logger}),
		)),
	}, nil
}

// Start schedules the job and starts the cron runner. Runs receive a context
// derived from ctx that is cancelled by Stop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	id, err := s.cron.AddFunc(s.schedule, s.execute)
	if err != nil {
		return fmt.Errorf("failed to schedule pipeline: %w", err)
	}
	s.entryID = id
	s.cron.Start()

	s.logger.Info("scheduler started",
		zap.String("schedule", s.schedule),
		zap.Time("next_run", s.NextRun()),
	)
	return nil
}

// Stop cancels the in-flight run and waits for it to return
func (s *Service) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// NextRun returns the next activation time
func (s *Service) NextRun() time.Time {
	return s.cron.Entry(s.entryID).Next
}

// Status is a snapshot of the scheduler activity
type Status struct {
	LastRun *time.Time
	LastErr error
	Runs    int
}

// Status returns the outcome of the latest run and the number of runs so far
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{LastRun: s.lastRun, LastErr: s.lastErr, Runs: s.runs}
}

func (s *Service) execute() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	start := time.Now()
	s.logger.Info("executing scheduled run")
	err := s.run(ctx)

	s.mu.Lock()
	s.lastRun = &start
	s.lastErr = err
	s.runs++
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("scheduled run failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return
	}
	s.logger.Info("scheduled run completed",
		zap.Duration("elapsed", time.Since(start)),
		zap.Time("next_run", s.NextRun()),
	)
}

// cronLogger adapts zap to the cron.Logger interface
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Infow(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
