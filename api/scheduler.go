/*
scheduler.go - Periodic expansion, missed and coverage sweeps

PURPOSE:
  Drives the background work of a single-process deployment on one ticker:
  keeps the rolling occurrence horizon materialized, marks overdue
  occurrences missed, and runs the coverage-gap sweep.

DESIGN:
  - Runs a background goroutine with a configurable check interval
  - Runs one pass immediately on start
  - Each step is independent: a failing step is logged and the next runs
  - Feature flags decide which steps do anything (see config.Features)

CONFIGURATION:
  - CheckInterval: How often to run (default: 1 hour)
  - Enabled: Whether the scheduler starts at all
  - RollingExpansion: Whether each pass refreshes every reminder

USAGE:
  scheduler := NewScheduler(handler, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: /api/admin/* endpoints (manual triggers)
  - ../coverage/sweep.go: Gap sweep
  - ../reminders/missed.go: Missed sweep
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Scheduler runs the periodic passes.
type Scheduler struct {
	Handler          *Handler
	Logger           *zap.Logger
	CheckInterval    time.Duration
	Enabled          bool
	RollingExpansion bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// PassReport summarizes one pass.
type PassReport struct {
	Expanded int
	Missed   int
	Gaps     int
	Notified int
	Errors   int
}

// NewScheduler creates an enabled scheduler with a one-hour interval.
func NewScheduler(handler *Handler, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		Handler:          handler,
		Logger:           logger,
		CheckInterval:    time.Hour,
		Enabled:          true,
		RollingExpansion: true,
	}
}

// Start begins the scheduler.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.Logger.Info("scheduler disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.stop = make(chan struct{})
	s.wg.Add(1)

	go s.run()

	s.Logger.Info("scheduler started", zap.Duration("interval", s.CheckInterval))
}

// Stop stops the scheduler and waits for a running pass to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.wg.Wait()
	s.ticker = nil
	s.Logger.Info("scheduler stopped")
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	s.RunNow(context.Background())

	for {
		select {
		case <-s.ticker.C:
			s.RunNow(context.Background())
		case <-s.stop:
			return
		}
	}
}

// RunNow runs one pass synchronously.
func (s *Scheduler) RunNow(ctx context.Context) PassReport {
	var report PassReport
	h := s.Handler
	start := time.Now()

	if s.RollingExpansion {
		refresh, err := h.Expander.Refresh(ctx, 0)
		if err != nil {
			report.Errors++
			s.Logger.Error("reminder refresh failed", zap.Error(err))
		}
		report.Expanded = refresh.Occurrences
		report.Errors += len(refresh.Failed)
	}

	missed, err := h.Missed.Run(ctx)
	if err != nil {
		report.Errors++
		s.Logger.Error("missed sweep failed", zap.Error(err))
	}
	report.Missed = missed

	sweep, err := h.Sweeper.Run(ctx)
	if err != nil {
		report.Errors++
		s.Logger.Error("gap sweep failed", zap.Error(err))
	}
	report.Gaps = sweep.Gaps
	report.Notified = sweep.Notified
	report.Errors += len(sweep.Failed)

	s.Logger.Info("scheduler pass complete",
		zap.Int("expanded", report.Expanded),
		zap.Int("missed", report.Missed),
		zap.Int("gaps", report.Gaps),
		zap.Int("notified", report.Notified),
		zap.Int("errors", report.Errors),
		zap.Duration("took", time.Since(start)),
	)
	return report
}

// NextRunTime returns when the next scheduled pass will occur.
func (s *Scheduler) NextRunTime() time.Time {
	return time.Now().Add(s.CheckInterval)
}
