package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/shelfwatch/shelfwatch/internal/logging"
	"github.com/shelfwatch/shelfwatch/internal/repository"
)

// RetentionService prunes operational records older than the retention
// window. Price and stock history are kept indefinitely; only check
// runs and scheduler logs age out.
type RetentionService struct {
	checkRuns     repository.CheckRunRepository
	schedulerLogs repository.SchedulerLogRepository
	maxAge        time.Duration
	logger        *slog.Logger
	now           func() time.Time
}

// NewRetentionService creates a retention service.
func NewRetentionService(checkRuns repository.CheckRunRepository, schedulerLogs repository.SchedulerLogRepository, maxAge time.Duration, logger *slog.Logger) *RetentionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetentionService{
		checkRuns:     checkRuns,
		schedulerLogs: schedulerLogs,
		maxAge:        maxAge,
		logger:        logging.Component(logger, "retention"),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Prune deletes check runs and scheduler logs past the retention window.
func (s *RetentionService) Prune(ctx context.Context) error {
	cutoff := s.now().Add(-s.maxAge)

	runs, err := s.checkRuns.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return err
	}
	logs, err := s.schedulerLogs.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return err
	}

	if runs > 0 || logs > 0 {
		s.logger.Info("retention prune finished",
			"check_runs_deleted", runs, "scheduler_logs_deleted", logs, "cutoff", cutoff)
	}
	return nil
}
