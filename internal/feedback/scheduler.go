package feedback

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler runs the learning pass on a cron schedule. Start and Stop are
// idempotent.
type Scheduler struct {
	learner  *Learner
	schedule string
	logger   *zap.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewScheduler creates a scheduler. The schedule uses standard cron syntax
// ("@hourly", "0 2 * * *", ...).
func NewScheduler(learner *Learner, schedule string, logger *zap.Logger) (*Scheduler, error) {
	if learner == nil {
		return nil, fmt.Errorf("learner is required")
	}
	if schedule == "" {
		schedule = "@hourly"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{learner: learner, schedule: schedule, logger: logger}, nil
}

// Start begins scheduled learning passes.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(s.schedule, s.run); err != nil {
		return fmt.Errorf("invalid learning schedule %q: %w", s.schedule, err)
	}
	c.Start()

	s.cron = c
	s.running = true
	s.logger.Info("learning scheduler started", zap.String("schedule", s.schedule))
	return nil
}

// Stop halts scheduling and waits for an in-flight pass to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.cron = nil
	s.running = false
	s.logger.Info("learning scheduler stopped")
}

func (s *Scheduler) run() {
	report, err := s.learner.RunLearningPass(context.Background())
	if err != nil {
		s.logger.Error("scheduled learning pass failed", zap.Error(err))
		return
	}
	if report.BatchesProcessed == 0 && report.BatchesFailed == 0 {
		return
	}
	s.logger.Info("scheduled learning pass finished",
		zap.Int("batches_processed", report.BatchesProcessed),
		zap.Int("batches_failed", report.BatchesFailed),
	)
}
