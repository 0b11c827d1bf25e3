package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/pick-research/internal/pipeline"
)

// PipelineRunner is the slice of pipeline.Runner the scheduler drives.
type PipelineRunner interface {
	Run(ctx context.Context, req pipeline.RunRequest) (*pipeline.RunSummary, error)
	Today() string
}

// RunLocker keeps two schedulers from running the same generator and date.
type RunLocker interface {
	AcquireRunLock(ctx context.Context, generator, date, runID string) (bool, error)
	ReleaseRunLock(ctx context.Context, generator, date, runID string) error
}

// SchedulerService runs the configured generators for today on a cron schedule
type SchedulerService struct {
	runner     PipelineRunner
	locker     RunLocker
	generators []string
	schedule   string
	logger     *logrus.Logger
	cron       *cron.Cron
	mu         sync.Mutex
	isRunning  bool
	lastRuns   map[string]*pipeline.RunSummary
}

// NewSchedulerService creates a scheduler. A nil locker runs without
// cross-process locking.
func NewSchedulerService(
	runner PipelineRunner,
	locker RunLocker,
	generators []string,
	schedule string,
	location *time.Location,
	logger *logrus.Logger,
) *SchedulerService {
	if location == nil {
		location = time.UTC
	}
	return &SchedulerService{
		runner:     runner,
		locker:     locker,
		generators: generators,
		schedule:   schedule,
		logger:     logger,
		cron:       cron.New(cron.WithLocation(location)),
		lastRuns:   make(map[string]*pipeline.RunSummary),
	}
}

// Start registers the daily job and starts the cron loop
func (s *SchedulerService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("scheduler is already running")
	}
	if len(s.generators) == 0 {
		s.logger.Info("No scheduled generators configured, scheduler idle")
		return nil
	}

	_, err := s.cron.AddFunc(s.schedule, func() {
		s.RunScheduled(context.Background())
	})
	if err != nil {
		return fmt.Errorf("failed to schedule generator runs: %w", err)
	}

	s.cron.Start()
	s.isRunning = true

	s.logger.WithFields(logrus.Fields{
		"schedule":   s.schedule,
		"generators": s.generators,
	}).Info("Scheduler started")
	return nil
}

// Stop halts the cron loop and waits for a running job to finish
func (s *SchedulerService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}

	ctx := s.cron.Stop()
	<-ctx.Done()

	s.isRunning = false
	s.logger.Info("Scheduler stopped")
}

// RunScheduled runs every scheduled generator for today, one after another.
// A generator whose lock is held elsewhere is skipped.
func (s *SchedulerService) RunScheduled(ctx context.Context) {
	date := s.runner.Today()
	for _, name := range s.generators {
		if ctx.Err() != nil {
			return
		}
		s.runOne(ctx, name, date)
	}
}

func (s *SchedulerService) runOne(ctx context.Context, generator, date string) {
	runID := uuid.New().String()
	log := s.logger.WithFields(logrus.Fields{
		"run_id":    runID,
		"generator": generator,
		"date":      date,
	})

	if s.locker != nil {
		ok, err := s.locker.AcquireRunLock(ctx, generator, date, runID)
		if err != nil {
			log.WithError(err).Warn("Run lock unavailable, running without it")
		} else if !ok {
			log.Info("Generator already running elsewhere, skipping")
			return
		} else {
			defer func() {
				if err := s.locker.ReleaseRunLock(context.WithoutCancel(ctx), generator, date, runID); err != nil {
					log.WithError(err).Warn("Failed to release run lock")
				}
			}()
		}
	}

	summary, err := s.runner.Run(ctx, pipeline.RunRequest{RunID: runID, Date: date, Generator: generator})
	if err != nil {
		log.WithError(err).Error("Scheduled run failed")
	}
	if summary != nil {
		s.mu.Lock()
		s.lastRuns[generator] = summary
		s.mu.Unlock()
	}
}

// GetStatus reports schedule state and the last run per generator
func (s *SchedulerService) GetStatus() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	nextRuns := make([]time.Time, 0, len(entries))
	for _, entry := range entries {
		nextRuns = append(nextRuns, entry.Next)
	}

	last := make(map[string]interface{}, len(s.lastRuns))
	for name, summary := range s.lastRuns {
		last[name] = map[string]interface{}{
			"run_id":   summary.RunID,
			"date":     summary.Date,
			"status":   summary.Status,
			"accepted": summary.Accepted,
		}
	}

	return map[string]interface{}{
		"is_running": s.isRunning,
		"schedule":   s.schedule,
		"generators": s.generators,
		"next_runs":  nextRuns,
		"last_runs":  last,
	}
}
