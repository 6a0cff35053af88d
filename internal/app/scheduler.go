/**
 * @description
 * Cron scheduler setup for the recurring transactions job.
 */
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/thatzerroguy/expense-tracker/internal/config"
)

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron    *cron.Cron
	jobs    *Jobs
	logger  *slog.Logger
	config  config.Config
	entryID cron.EntryID
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(jobs *Jobs, logger *slog.Logger, cfg config.Config) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))

	loc, err := cfg.Location()
	if err != nil {
		logger.Warn("invalid business timezone, scheduling in UTC", "timezone", cfg.BusinessTimezone, "error", err)
		loc = time.UTC
	}

	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)

	return &Scheduler{
		cron:   c,
		jobs:   jobs,
		logger: logger,
		config: cfg,
	}
}

// Start registers the recurring job and starts the cron scheduler.
func (s *Scheduler) Start() error {
	id, err := s.cron.AddFunc(s.config.RecurringJobSchedule, s.jobs.ProcessRecurringTransactions)
	if err != nil {
		s.logger.Error("failed to schedule recurring transactions job", "error", err)
		return fmt.Errorf("schedule recurring transactions job: %w", err)
	}
	s.entryID = id
	s.logger.Info("scheduled recurring transactions job", "schedule", s.config.RecurringJobSchedule)

	s.cron.Start()
	return nil
}

// NextRun reports when the recurring job fires next; zero before Start.
func (s *Scheduler) NextRun() time.Time {
	if s.entryID == 0 {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Next
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
