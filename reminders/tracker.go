package reminders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/carecircle/care-engine/care"
)

// DefaultSnoozeMinutes is used when a snooze arrives without a duration.
const DefaultSnoozeMinutes = 10

// =============================================================================
// STATE MACHINE
// =============================================================================

// NextStatus is the status an occurrence moves to when kind is recorded
// against it. Every acknowledgement is terminal for the occurrence it names;
// a snooze continues on a new occurrence instead.
func NextStatus(current care.OccurrenceStatus, kind care.AckKind) (care.OccurrenceStatus, error) {
	switch kind {
	case care.AckTaken, care.AckSkip, care.AckSnooze:
		return care.StatusAcknowledged, nil
	default:
		return current, care.NewValidationError("kind", fmt.Sprintf("%q is not one of taken, snooze, skip", kind))
	}
}

// =============================================================================
// TRACKER
// =============================================================================

// Tracker records actions against occurrences. Callers must have already
// checked that the acting user may act on the occurrence.
type Tracker struct {
	Store         care.Store
	Clock         care.Clock
	Logger        *zap.Logger
	SnoozeMinutes int
}

func NewTracker(store care.Store, clock care.Clock, logger *zap.Logger, snoozeMinutes int) *Tracker {
	if clock == nil {
		clock = care.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if snoozeMinutes == 0 {
		snoozeMinutes = DefaultSnoozeMinutes
	}
	return &Tracker{Store: store, Clock: clock, Logger: logger, SnoozeMinutes: snoozeMinutes}
}

// Acknowledge appends an acknowledgement and applies the status transition.
// A zero at means now. A snooze is delegated to Snooze with the default
// duration.
func (t *Tracker) Acknowledge(ctx context.Context, occurrenceID care.OccurrenceID, kind care.AckKind, at time.Time) (care.Acknowledgement, error) {
	if at.IsZero() {
		at = t.Clock.Now()
	}
	if kind == care.AckSnooze {
		result, err := t.snoozeAt(ctx, occurrenceID, t.SnoozeMinutes, at)
		if err != nil {
			return care.Acknowledgement{}, err
		}
		return result.Acknowledgement, nil
	}

	var ack care.Acknowledgement
	err := t.Store.WithTx(ctx, func(tx care.Store) error {
		occ, err := tx.GetOccurrence(ctx, occurrenceID)
		if err != nil {
			return err
		}
		next, err := NextStatus(occ.Status, kind)
		if err != nil {
			return err
		}

		ack = care.Acknowledgement{
			ID:           care.AckID(uuid.NewString()),
			OccurrenceID: occ.ID,
			Kind:         kind,
			At:           at.UTC(),
		}
		if err := tx.AppendAcknowledgement(ctx, ack); err != nil {
			return fmt.Errorf("failed to append acknowledgement: %w", err)
		}
		return tx.SetOccurrenceStatus(ctx, occ.ID, next)
	})
	if err != nil {
		return care.Acknowledgement{}, err
	}

	t.Logger.Info("occurrence acknowledged",
		zap.String("occurrence_id", string(occurrenceID)),
		zap.String("kind", string(kind)),
	)
	return ack, nil
}

// SnoozeResult is what a snooze produced.
type SnoozeResult struct {
	Acknowledgement care.Acknowledgement
	Original        care.Occurrence // now acknowledged
	Occurrence      care.Occurrence // the new pending occurrence
}

// Snooze acknowledges the occurrence with kind snooze and schedules a new
// pending occurrence of the same reminder minutes from now. minutes is not
// bounded here, but the follow-up must land on an instant the reminder has
// no occurrence for yet: a collision is a ValidationError on "minutes" and
// nothing is written.
func (t *Tracker) Snooze(ctx context.Context, occurrenceID care.OccurrenceID, minutes int) (SnoozeResult, error) {
	return t.snoozeAt(ctx, occurrenceID, minutes, t.Clock.Now())
}

func (t *Tracker) snoozeAt(ctx context.Context, occurrenceID care.OccurrenceID, minutes int, at time.Time) (SnoozeResult, error) {
	var result SnoozeResult
	err := t.Store.WithTx(ctx, func(tx care.Store) error {
		occ, err := tx.GetOccurrence(ctx, occurrenceID)
		if err != nil {
			return err
		}
		next, err := NextStatus(occ.Status, care.AckSnooze)
		if err != nil {
			return err
		}

		due := at.Add(time.Duration(minutes) * time.Minute)
		followUp, created, err := tx.UpsertOccurrence(ctx, occ.ReminderID, due)
		if err != nil {
			return fmt.Errorf("failed to schedule snoozed occurrence: %w", err)
		}
		if !created {
			return care.NewValidationError("minutes", fmt.Sprintf(
				"would land on an occurrence already scheduled at %s (%s)", due.UTC().Format(time.RFC3339), followUp.Status))
		}

		result.Acknowledgement = care.Acknowledgement{
			ID:           care.AckID(uuid.NewString()),
			OccurrenceID: occ.ID,
			Kind:         care.AckSnooze,
			At:           at.UTC(),
		}
		if err := tx.AppendAcknowledgement(ctx, result.Acknowledgement); err != nil {
			return fmt.Errorf("failed to append acknowledgement: %w", err)
		}
		if err := tx.SetOccurrenceStatus(ctx, occ.ID, next); err != nil {
			return err
		}

		result.Original, err = tx.GetOccurrence(ctx, occ.ID)
		if err != nil {
			return err
		}
		result.Occurrence, err = tx.GetOccurrence(ctx, followUp.ID)
		return err
	})
	if err != nil {
		return SnoozeResult{}, err
	}

	t.Logger.Info("occurrence snoozed",
		zap.String("occurrence_id", string(occurrenceID)),
		zap.Int("minutes", minutes),
		zap.String("next_occurrence_id", string(result.Occurrence.ID)),
		zap.Time("next_scheduled_at", result.Occurrence.ScheduledAt),
	)
	return result, nil
}
