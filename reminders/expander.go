/*
expander.go - Materializing reminder occurrences within a horizon

PURPOSE:
  Keeps the occurrence table populated for the next few hours of every
  reminder. The scheduler and the request path call Expand opportunistically;
  it is safe to call as often as you like.

IDEMPOTENCY:
  Occurrences are written with UpsertOccurrence, keyed by
  (reminder, scheduled_at). Re-running an expansion over an overlapping
  window never creates a second row for the same instant, including when two
  expansions of the same reminder race.

RULE CHANGES:
  When a reminder's rule, timezone or start time changes, the stale future
  must go. Regenerate purges every pending occurrence and expands again in
  one transaction. Acknowledged and missed occurrences are history and stay.

FAILURE:
  An unparseable rule or unknown timezone is a *care.ValidationError and
  nothing is written.

SEE ALSO:
  - ../recurrence: Rule parsing and instant generation
  - service.go: Calls Regenerate on edit
*/
package reminders

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/carecircle/care-engine/care"
	"github.com/carecircle/care-engine/recurrence"
)

// DefaultHorizon is the rolling window kept materialized.
const DefaultHorizon = 24 * time.Hour

// Expander turns reminder rules into stored occurrences.
type Expander struct {
	Store   care.Store
	Clock   care.Clock
	Logger  *zap.Logger
	Horizon time.Duration // used when a caller passes horizon <= 0
}

func NewExpander(store care.Store, clock care.Clock, logger *zap.Logger, horizon time.Duration) *Expander {
	if clock == nil {
		clock = care.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	return &Expander{Store: store, Clock: clock, Logger: logger, Horizon: horizon}
}

// Schedule parses the reminder's rule and resolves its timezone.
func Schedule(r care.Reminder) (recurrence.Rule, *time.Location, error) {
	rule, err := recurrence.Parse(r.RecurrenceRule)
	if err != nil {
		return recurrence.Rule{}, nil, &care.ValidationError{
			Field:   "recurrence_rule",
			Message: "is invalid",
			Err:     err,
		}
	}
	loc, err := loadLocation(r.Timezone)
	if err != nil {
		return recurrence.Rule{}, nil, err
	}
	return rule, loc, nil
}

func loadLocation(name string) (*time.Location, error) {
	if name == "" {
		return nil, care.NewValidationError("timezone", "can't be blank")
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, &care.ValidationError{Field: "timezone", Message: "is not a known time zone", Err: err}
	}
	return loc, nil
}

// =============================================================================
// EXPAND
// =============================================================================

// Expand ensures an occurrence exists for every instant the reminder fires
// in [now, now+horizon] and returns those occurrences, ascending.
func (e *Expander) Expand(ctx context.Context, r care.Reminder, horizon time.Duration) ([]care.Occurrence, error) {
	var occurrences []care.Occurrence
	err := e.Store.WithTx(ctx, func(tx care.Store) error {
		var err error
		occurrences, err = e.expandIn(ctx, tx, r, horizon)
		return err
	})
	if err != nil {
		return nil, err
	}
	return occurrences, nil
}

func (e *Expander) expandIn(ctx context.Context, store care.Store, r care.Reminder, horizon time.Duration) ([]care.Occurrence, error) {
	rule, loc, err := Schedule(r)
	if err != nil {
		return nil, err
	}
	if horizon <= 0 {
		horizon = e.Horizon
	}

	now := e.Clock.Now()
	instants := rule.Between(r.Anchor(), loc, now, now.Add(horizon))

	occurrences := make([]care.Occurrence, 0, len(instants))
	created := 0
	for _, at := range instants {
		occ, isNew, err := store.UpsertOccurrence(ctx, r.ID, at)
		if err != nil {
			return nil, fmt.Errorf("failed to upsert occurrence for reminder %s at %s: %w", r.ID, at.Format(time.RFC3339), err)
		}
		if isNew {
			created++
		}
		occurrences = append(occurrences, occ)
	}

	e.Logger.Debug("expanded reminder",
		zap.String("reminder_id", string(r.ID)),
		zap.Duration("horizon", horizon),
		zap.Int("instants", len(instants)),
		zap.Int("created", created),
	)
	return occurrences, nil
}

// Regenerate purges pending occurrences and expands again, atomically.
// Returns the number purged and the freshly materialized occurrences.
func (e *Expander) Regenerate(ctx context.Context, r care.Reminder, horizon time.Duration) (int, []care.Occurrence, error) {
	// Validate before touching anything so a bad rule leaves history and
	// pending rows untouched.
	if _, _, err := Schedule(r); err != nil {
		return 0, nil, err
	}

	var purged int
	var occurrences []care.Occurrence
	err := e.Store.WithTx(ctx, func(tx care.Store) error {
		var err error
		purged, err = tx.PurgePending(ctx, r.ID)
		if err != nil {
			return fmt.Errorf("failed to purge pending occurrences: %w", err)
		}
		occurrences, err = e.expandIn(ctx, tx, r, horizon)
		return err
	})
	if err != nil {
		return 0, nil, err
	}

	e.Logger.Info("regenerated reminder occurrences",
		zap.String("reminder_id", string(r.ID)),
		zap.Int("purged", purged),
		zap.Int("materialized", len(occurrences)),
	)
	return purged, occurrences, nil
}

// =============================================================================
// REFRESH - Rolling horizon for every reminder
// =============================================================================

// RefreshReport summarizes one Refresh pass.
type RefreshReport struct {
	Reminders   int
	Occurrences int
	Failed      map[care.ReminderID]string
}

// Refresh expands every reminder. A failing reminder is logged and recorded
// in the report; the others still expand.
func (e *Expander) Refresh(ctx context.Context, horizon time.Duration) (RefreshReport, error) {
	reminders, err := e.Store.ListReminders(ctx)
	if err != nil {
		return RefreshReport{}, fmt.Errorf("failed to list reminders: %w", err)
	}

	report := RefreshReport{Failed: make(map[care.ReminderID]string)}
	for _, r := range reminders {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		occurrences, err := e.Expand(ctx, r, horizon)
		if err != nil {
			e.Logger.Warn("reminder expansion failed",
				zap.String("reminder_id", string(r.ID)),
				zap.Error(err),
			)
			report.Failed[r.ID] = err.Error()
			continue
		}
		report.Reminders++
		report.Occurrences += len(occurrences)
	}
	return report, nil
}
