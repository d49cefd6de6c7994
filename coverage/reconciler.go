/*
reconciler.go - Coverage notifications without duplicates

PURPOSE:
  Turns detected gaps into notifications for each of a senior's caregivers,
  and closes them out when a gapped date gains coverage.

DEDUP POLICY (NotifyGaps):
  Per (caregiver, senior), not per date. While an unread coverage_gap
  notification for the pair is younger than Cooldown, new detections are
  suppressed entirely: no new record, no update to the existing one. A
  notification about Monday and Tuesday therefore hides a later detection
  of Wednesday until the cooldown lapses.

GAP FILLED (NotifyGapFilled):
  Unread coverage_gap notifications whose gap-date set holds the filled
  date are marked read, then exactly one coverage_filled notification is
  created per caregiver.

SEE ALSO:
  - sweep.go: Drives NotifyGaps for every senior
  - ../care/store.go: NotificationFilter.GapDate
*/
package coverage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/carecircle/care-engine/care"
)

// DefaultCooldown is the per-senior suppression window for gap alerts.
const DefaultCooldown = 24 * time.Hour

// Reconciler writes coverage notifications.
type Reconciler struct {
	Store    care.Store
	Clock    care.Clock
	Logger   *zap.Logger
	Cooldown time.Duration
}

func NewReconciler(store care.Store, clock care.Clock, logger *zap.Logger, cooldown time.Duration) *Reconciler {
	if clock == nil {
		clock = care.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Reconciler{Store: store, Clock: clock, Logger: logger, Cooldown: cooldown}
}

// =============================================================================
// GAPS
// =============================================================================

// NotifyGaps alerts every caregiver of the senior about gaps, honoring the
// cooldown. Returns the number of notifications created.
func (r *Reconciler) NotifyGaps(ctx context.Context, senior care.Senior, gaps []care.Date) (int, error) {
	if len(gaps) == 0 {
		return 0, nil
	}
	now := r.Clock.Now().UTC()

	created := 0
	err := r.Store.WithTx(ctx, func(tx care.Store) error {
		created = 0
		caregivers, err := tx.CaregiverIDs(ctx, senior.ID)
		if err != nil {
			return err
		}
		for _, caregiverID := range caregivers {
			recent, err := tx.ListNotifications(ctx, care.NotificationFilter{
				UserID:     caregiverID,
				SeniorID:   senior.ID,
				Type:       care.NotificationCoverageGap,
				UnreadOnly: true,
				Since:      now.Add(-r.Cooldown),
			})
			if err != nil {
				return fmt.Errorf("failed to list notifications: %w", err)
			}
			if len(recent) > 0 {
				r.Logger.Debug("gap notification suppressed",
					zap.String("caregiver_id", string(caregiverID)),
					zap.String("senior_id", string(senior.ID)),
					zap.String("existing_id", string(recent[0].ID)),
				)
				continue
			}

			if err := tx.CreateNotification(ctx, gapNotification(caregiverID, senior, gaps, now)); err != nil {
				return fmt.Errorf("failed to create notification: %w", err)
			}
			created++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if created > 0 {
		r.Logger.Info("gap notifications sent",
			zap.String("senior_id", string(senior.ID)),
			zap.Int("gaps", len(gaps)),
			zap.Int("notified", created),
		)
	}
	return created, nil
}

func gapNotification(caregiverID care.UserID, senior care.Senior, gaps []care.Date, now time.Time) care.Notification {
	labels := make([]string, len(gaps))
	for i, d := range gaps {
		labels[i] = d.Time.Format("Mon Jan 2")
	}
	noun := "days"
	if len(gaps) == 1 {
		noun = "day"
	}

	return care.Notification{
		ID:        care.NotificationID(uuid.NewString()),
		UserID:    caregiverID,
		Type:      care.NotificationCoverageGap,
		Title:     fmt.Sprintf("Coverage needed for %s", senior.Name),
		Message:   fmt.Sprintf("%s has no caregiver available on %d %s: %s.", senior.Name, len(gaps), noun, strings.Join(labels, ", ")),
		CreatedAt: now,
		Metadata: care.NotificationMetadata{
			SeniorID:   senior.ID,
			SeniorName: senior.Name,
			GapDates:   append([]care.Date(nil), gaps...),
			GapCount:   len(gaps),
		},
	}
}

// =============================================================================
// FILLED
// =============================================================================

// NotifyGapFilled closes the open gap alerts covering date and sends one
// coverage_filled notification to each caregiver. Returns the number of
// coverage_filled notifications created.
func (r *Reconciler) NotifyGapFilled(ctx context.Context, senior care.Senior, date care.Date) (int, error) {
	now := r.Clock.Now().UTC()

	created, closed := 0, 0
	err := r.Store.WithTx(ctx, func(tx care.Store) error {
		created, closed = 0, 0
		caregivers, err := tx.CaregiverIDs(ctx, senior.ID)
		if err != nil {
			return err
		}
		for _, caregiverID := range caregivers {
			open, err := tx.ListNotifications(ctx, care.NotificationFilter{
				UserID:     caregiverID,
				SeniorID:   senior.ID,
				UnreadOnly: true,
				GapDate:    &date,
			})
			if err != nil {
				return fmt.Errorf("failed to list notifications: %w", err)
			}
			for _, n := range open {
				if err := tx.MarkNotificationRead(ctx, n.ID); err != nil {
					return err
				}
				closed++
			}

			filled := date
			n := care.Notification{
				ID:        care.NotificationID(uuid.NewString()),
				UserID:    caregiverID,
				Type:      care.NotificationCoverageFilled,
				Title:     fmt.Sprintf("Coverage found for %s", senior.Name),
				Message:   fmt.Sprintf("%s now has caregiver coverage on %s.", senior.Name, date.Time.Format("Mon Jan 2")),
				CreatedAt: now,
				Metadata: care.NotificationMetadata{
					SeniorID:   senior.ID,
					SeniorName: senior.Name,
					Date:       &filled,
				},
			}
			if err := tx.CreateNotification(ctx, n); err != nil {
				return fmt.Errorf("failed to create notification: %w", err)
			}
			created++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	r.Logger.Info("gap filled",
		zap.String("senior_id", string(senior.ID)),
		zap.Stringer("date", date),
		zap.Int("closed", closed),
		zap.Int("notified", created),
	)
	return created, nil
}

// HasOpenGap reports whether any caregiver still holds an unread gap alert
// for the senior that names date.
func (r *Reconciler) HasOpenGap(ctx context.Context, senior care.Senior, date care.Date) (bool, error) {
	open, err := r.Store.ListNotifications(ctx, care.NotificationFilter{
		SeniorID:   senior.ID,
		UnreadOnly: true,
		GapDate:    &date,
	})
	if err != nil {
		return false, fmt.Errorf("failed to list notifications: %w", err)
	}
	return len(open) > 0, nil
}
