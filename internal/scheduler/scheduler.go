package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// checkInterval is the gate tick: the scheduler wakes this often and decides
// whether enough time has passed since the last run.
const checkInterval = time.Minute

// Runner executes one import run and reports when it last completed.
type Runner interface {
	RunOnce(ctx context.Context) error
	LastRun() time.Time
}

// ImportScheduler drives the connector run loop on a fixed interval.
type ImportScheduler struct {
	runner   Runner
	interval time.Duration
	logger   *slog.Logger
	stopChan chan struct{}
}

// NewImportScheduler creates a scheduler that runs the importer every interval.
func NewImportScheduler(runner Runner, interval time.Duration, logger *slog.Logger) *ImportScheduler {
	return &ImportScheduler{
		runner:   runner,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// ShouldRun reports whether a run is due: never run before, or the interval
// has elapsed since the last completed run.
func ShouldRun(lastRun time.Time, interval time.Duration, now time.Time) bool {
	if lastRun.IsZero() {
		return true
	}
	return now.Sub(lastRun) >= interval
}

// Start begins the scheduler loop. It blocks until Stop is called or the
// context is cancelled.
func (s *ImportScheduler) Start(ctx context.Context) {
	s.logger.Info("starting import scheduler", "interval", s.interval, "check_interval", checkInterval)
	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()

	// Check once immediately on start.
	s.checkAndRun(ctx)

	for {
		select {
		case <-ticker.C:
			s.checkAndRun(ctx)
		case <-s.stopChan:
			s.logger.Info("import scheduler stopped")
			return
		case <-ctx.Done():
			s.logger.Info("import scheduler stopping due to context cancellation")
			return
		}
	}
}

// Stop stops the scheduler loop.
func (s *ImportScheduler) Stop() {
	close(s.stopChan)
}

func (s *ImportScheduler) checkAndRun(ctx context.Context) {
	lastRun := s.runner.LastRun()
	now := time.Now()

	if !ShouldRun(lastRun, s.interval, now) {
		s.logger.Debug("run not due yet",
			"last_run", lastRun.UTC().Format(time.RFC3339),
			"next_run", lastRun.Add(s.interval).UTC().Format(time.RFC3339),
		)
		return
	}

	if err := s.runner.RunOnce(ctx); err != nil {
		s.logger.Error("import run failed", "error", err)
	}
}
