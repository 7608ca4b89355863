// Package scheduler runs the full crawl on a cron cadence.
package scheduler

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/foodycrawl/foodycrawl/internal/config"
	"github.com/foodycrawl/foodycrawl/internal/crawl"
)

// Runner is the pipeline entry point the scheduler fires.
type Runner interface {
	FullCrawl(ctx context.Context) (crawl.Summary, error)
}

// Scheduler owns a cron instance with one entry. Runs do not overlap: a tick
// that fires while the previous run is still in flight is skipped.
type Scheduler struct {
	cron   *cron.Cron
	runner Runner
	spec   string
	logger *zap.Logger
	busy   chan struct{}
}

// New builds a Scheduler from config. Call Start to begin ticking.
func New(cfg config.ScheduleConfig, runner Runner, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		runner: runner,
		spec:   cfg.Spec,
		logger: logger,
		busy:   make(chan struct{}, 1),
	}
}

// Start registers the entry and starts the cron loop. Scheduled runs inherit
// ctx so shutdown cancels an in-flight crawl.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() { s.run(ctx) })
	if err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("scheduler started", zap.String("spec", s.spec))
	return nil
}

// Stop stops ticking and waits for a running job to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	select {
	case s.busy <- struct{}{}:
		defer func() { <-s.busy }()
	default:
		s.logger.Warn("previous scheduled crawl still running, skipping tick")
		return
	}

	s.logger.Info("scheduled crawl starting")
	summary, err := s.runner.FullCrawl(ctx)
	if err != nil {
		s.logger.Error("scheduled crawl failed", zap.Error(err))
		return
	}
	s.logger.Info("scheduled crawl finished",
		zap.String("file", summary.Filename),
		zap.Int("cities", summary.TotalCities),
		zap.Int("foods", summary.TotalFoods),
	)
}
