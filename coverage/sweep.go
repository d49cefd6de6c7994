package coverage

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/carecircle/care-engine/care"
)

// DefaultWindowDays is how far ahead a sweep looks, today included.
const DefaultWindowDays = 7

// SweepReport summarizes one Run.
type SweepReport struct {
	Seniors  int                    // seniors with at least one caregiver
	Gaps     int                    // gap dates found across all seniors
	Notified int                    // notifications created
	Failed   map[care.UserID]string // senior id -> error
}

// Sweeper runs gap detection for every senior. One senior's failure never
// stops the others.
type Sweeper struct {
	Store      care.Store
	Detector   *Detector
	Reconciler *Reconciler
	Logger     *zap.Logger
	WindowDays int

	// Notify gates every notification write. Detection still runs when it
	// is off.
	Notify bool
}

func NewSweeper(store care.Store, detector *Detector, reconciler *Reconciler, logger *zap.Logger, windowDays int, notify bool) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	return &Sweeper{
		Store:      store,
		Detector:   detector,
		Reconciler: reconciler,
		Logger:     logger,
		WindowDays: windowDays,
		Notify:     notify,
	}
}

// Run sweeps [today, today+WindowDays) for every senior.
func (s *Sweeper) Run(ctx context.Context) (SweepReport, error) {
	seniors, err := s.Store.ListSeniors(ctx)
	if err != nil {
		return SweepReport{}, fmt.Errorf("failed to list seniors: %w", err)
	}

	report := SweepReport{Failed: make(map[care.UserID]string)}
	for _, senior := range seniors {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		gaps, notified, err := s.sweepSenior(ctx, senior)
		if err != nil {
			s.Logger.Error("coverage sweep failed for senior",
				zap.String("senior_id", string(senior.ID)),
				zap.Error(err),
			)
			report.Failed[senior.ID] = err.Error()
			continue
		}
		if gaps < 0 {
			continue
		}
		report.Seniors++
		report.Gaps += gaps
		report.Notified += notified
	}

	s.Logger.Info("coverage sweep complete",
		zap.Int("seniors", report.Seniors),
		zap.Int("gaps", report.Gaps),
		zap.Int("notified", report.Notified),
		zap.Int("failed", len(report.Failed)),
	)
	return report, nil
}

// sweepSenior returns gaps = -1 for a senior without caregivers.
func (s *Sweeper) sweepSenior(ctx context.Context, senior care.Senior) (int, int, error) {
	caregivers, err := s.Store.CaregiverIDs(ctx, senior.ID)
	if err != nil {
		return 0, 0, err
	}
	if len(caregivers) == 0 {
		return -1, 0, nil
	}

	today := s.Detector.Today(senior)
	gaps, err := s.Detector.FindGaps(ctx, senior, today, today.AddDays(s.WindowDays-1))
	if err != nil {
		return 0, 0, err
	}
	if len(gaps) == 0 || !s.Notify {
		return len(gaps), 0, nil
	}

	notified, err := s.Reconciler.NotifyGaps(ctx, senior, gaps)
	if err != nil {
		return 0, 0, err
	}
	return len(gaps), notified, nil
}

// ReconcileFilled is called after a caregiver gains availability on date.
// Every linked senior with an open gap alert for that date gets a
// coverage_filled round. A senior that fails is logged and skipped; the
// failures come back joined after the rest have been handled. Returns the
// number of notifications created.
func (s *Sweeper) ReconcileFilled(ctx context.Context, caregiverID care.UserID, date care.Date) (int, error) {
	if !s.Notify {
		return 0, nil
	}
	seniorIDs, err := s.Store.SeniorIDs(ctx, caregiverID)
	if err != nil {
		return 0, fmt.Errorf("failed to list seniors for caregiver %s: %w", caregiverID, err)
	}

	total := 0
	var failed []error
	for _, id := range seniorIDs {
		n, err := s.fillSenior(ctx, id, date)
		if err != nil {
			s.Logger.Error("gap-filled reconciliation failed for senior",
				zap.String("senior_id", string(id)),
				zap.String("caregiver_id", string(caregiverID)),
				zap.Stringer("date", date),
				zap.Error(err),
			)
			failed = append(failed, fmt.Errorf("senior %s: %w", id, err))
			continue
		}
		total += n
	}
	return total, errors.Join(failed...)
}

func (s *Sweeper) fillSenior(ctx context.Context, id care.UserID, date care.Date) (int, error) {
	senior, err := s.Store.GetSenior(ctx, id)
	if err != nil {
		return 0, err
	}
	open, err := s.Reconciler.HasOpenGap(ctx, senior, date)
	if err != nil || !open {
		return 0, err
	}
	return s.Reconciler.NotifyGapFilled(ctx, senior, date)
}
