package reminders

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/carecircle/care-engine/care"
)

// AdherenceReport counts what happened to a reminder's occurrences in a
// window. Every occurrence lands in exactly one bucket.
type AdherenceReport struct {
	ReminderID care.ReminderID
	From       time.Time
	To         time.Time

	Taken   int
	Skipped int
	Snoozed int // acknowledged only by a snooze; the follow-up is counted on its own
	Missed  int
	Pending int

	// Unrecorded counts acknowledged occurrences with no acknowledgement
	// rows, e.g. status written directly by an import. They are left out
	// of Rate.
	Unrecorded int

	// Rate is Taken / (Taken + Skipped + Missed), 4 decimal places.
	// Zero when nothing has been decided yet.
	Rate decimal.Decimal
}

func (r AdherenceReport) Total() int {
	return r.Taken + r.Skipped + r.Snoozed + r.Missed + r.Pending + r.Unrecorded
}

// Adherence summarizes occurrences scheduled in [from, to].
func Adherence(ctx context.Context, store care.Store, reminderID care.ReminderID, from, to time.Time) (AdherenceReport, error) {
	if _, err := store.GetReminder(ctx, reminderID); err != nil {
		return AdherenceReport{}, err
	}
	occurrences, err := store.ListOccurrences(ctx, reminderID, from, to)
	if err != nil {
		return AdherenceReport{}, fmt.Errorf("failed to list occurrences: %w", err)
	}

	report := AdherenceReport{ReminderID: reminderID, From: from, To: to}
	for _, occ := range occurrences {
		switch occ.Status {
		case care.StatusPending:
			report.Pending++
		case care.StatusMissed:
			report.Missed++
		case care.StatusAcknowledged:
			kind, ok, err := finalKind(ctx, store, occ.ID)
			if err != nil {
				return AdherenceReport{}, err
			}
			if !ok {
				report.Unrecorded++
				continue
			}
			switch kind {
			case care.AckTaken:
				report.Taken++
			case care.AckSkip:
				report.Skipped++
			case care.AckSnooze:
				report.Snoozed++
			}
		}
	}

	decided := report.Taken + report.Skipped + report.Missed
	report.Rate = decimal.Zero
	if decided > 0 {
		report.Rate = decimal.NewFromInt(int64(report.Taken)).
			DivRound(decimal.NewFromInt(int64(decided)), 4)
	}
	return report, nil
}

// finalKind is the kind of the latest acknowledgement on an occurrence.
// ok is false when the occurrence has none.
func finalKind(ctx context.Context, store care.Store, id care.OccurrenceID) (kind care.AckKind, ok bool, err error) {
	acks, err := store.ListAcknowledgements(ctx, id)
	if err != nil {
		return "", false, fmt.Errorf("failed to list acknowledgements: %w", err)
	}
	if len(acks) == 0 {
		return "", false, nil
	}
	return acks[len(acks)-1].Kind, true, nil
}
