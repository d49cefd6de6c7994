/*
availability.go - Caregiver availability intervals

PURPOSE:
  Caregivers publish the hours they can cover on a given date. The index
  validates each interval and answers "is anyone covering this date?".

VALIDATION ORDER:
  1. end > start                    -> field "end_time"
  2. date not in the past           -> field "date"
     "today" is the earliest of the default zone's today and the today of
     every senior the caregiver is linked to, so a date the detector still
     treats as upcoming for one of those seniors is accepted.
  3. no overlap on (caregiver, date) -> field "base"

  Intervals are half-open: [09:00, 12:00) and [12:00, 15:00) touch but do
  not overlap. The overlap check runs inside the store's write critical
  section against committed rows, excluding the record being written.

COVERAGE:
  Presence-based. A single interval of any length covers the whole date.

SEE ALSO:
  - detector.go: Uses HasCoverage semantics over a date range
  - sweep.go: ReconcileFilled runs after Add/Update
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

// AvailabilityInput is a caregiver's proposed interval.
type AvailabilityInput struct {
	CaregiverID care.UserID
	Date        care.Date
	Start       care.TimeOfDay
	End         care.TimeOfDay
	Notes       string
}

// Index validates and queries caregiver availability.
type Index struct {
	Store    care.Store
	Clock    care.Clock
	Location *time.Location // default zone for the past-date check
	Logger   *zap.Logger
}

func NewIndex(store care.Store, clock care.Clock, loc *time.Location, logger *zap.Logger) *Index {
	if clock == nil {
		clock = care.SystemClock{}
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Index{Store: store, Clock: clock, Location: loc, Logger: logger}
}

// =============================================================================
// MUTATIONS
// =============================================================================

// Add records a new interval.
func (x *Index) Add(ctx context.Context, in AvailabilityInput) (care.Availability, error) {
	if in.CaregiverID == "" {
		return care.Availability{}, care.NewValidationError("caregiver_id", "can't be blank")
	}
	a := care.Availability{
		ID:          care.AvailabilityID(uuid.NewString()),
		CaregiverID: in.CaregiverID,
		Date:        in.Date,
		Start:       in.Start,
		End:         in.End,
		Notes:       strings.TrimSpace(in.Notes),
		CreatedAt:   x.Clock.Now().UTC(),
	}
	if err := x.validate(ctx, a, true); err != nil {
		return care.Availability{}, err
	}
	if err := x.Store.SaveAvailability(ctx, a, overlapCheck(a)); err != nil {
		return care.Availability{}, err
	}

	x.Logger.Info("availability added",
		zap.String("availability_id", string(a.ID)),
		zap.String("caregiver_id", string(a.CaregiverID)),
		zap.Stringer("date", a.Date),
		zap.Stringer("start", a.Start),
		zap.Stringer("end", a.End),
	)
	return a, nil
}

// Update replaces date, times and notes of an existing interval. The owner
// never changes. A stored date already in the past may be kept; moving an
// interval onto a past date is rejected.
func (x *Index) Update(ctx context.Context, id care.AvailabilityID, in AvailabilityInput) (care.Availability, error) {
	existing, err := x.Store.GetAvailability(ctx, id)
	if err != nil {
		return care.Availability{}, err
	}

	a := existing
	a.Date = in.Date
	a.Start = in.Start
	a.End = in.End
	a.Notes = strings.TrimSpace(in.Notes)

	if err := x.validate(ctx, a, !a.Date.Equal(existing.Date)); err != nil {
		return care.Availability{}, err
	}
	if err := x.Store.SaveAvailability(ctx, a, overlapCheck(a)); err != nil {
		return care.Availability{}, err
	}

	x.Logger.Info("availability updated",
		zap.String("availability_id", string(a.ID)),
		zap.Stringer("date", a.Date),
	)
	return a, nil
}

// Remove deletes an interval and returns what was removed.
func (x *Index) Remove(ctx context.Context, id care.AvailabilityID) (care.Availability, error) {
	var removed care.Availability
	err := x.Store.WithTx(ctx, func(tx care.Store) error {
		var err error
		removed, err = tx.GetAvailability(ctx, id)
		if err != nil {
			return err
		}
		return tx.DeleteAvailability(ctx, id)
	})
	if err != nil {
		return care.Availability{}, err
	}
	x.Logger.Info("availability removed", zap.String("availability_id", string(id)))
	return removed, nil
}

func (x *Index) validate(ctx context.Context, a care.Availability, checkPast bool) error {
	if a.Date.IsZero() {
		return care.NewValidationError("date", "can't be blank")
	}
	if a.Start < 0 || a.End > care.EndOfDay {
		return care.NewValidationError("start_time", "must be within the day")
	}
	if a.End <= a.Start {
		return care.NewValidationError("end_time", care.MsgEndBeforeStart)
	}
	if !checkPast {
		return nil
	}
	today, err := x.earliestToday(ctx, a.CaregiverID)
	if err != nil {
		return err
	}
	if a.Date.Before(today) {
		return care.NewValidationError("date", care.MsgDateInPast)
	}
	return nil
}

// earliestToday is the oldest current date across the default zone and the
// zones of the caregiver's seniors.
func (x *Index) earliestToday(ctx context.Context, caregiverID care.UserID) (care.Date, error) {
	today := care.Today(x.Clock, x.Location)
	ids, err := x.Store.SeniorIDs(ctx, caregiverID)
	if err != nil {
		return care.Date{}, fmt.Errorf("failed to list seniors for caregiver %s: %w", caregiverID, err)
	}
	for _, id := range ids {
		senior, err := x.Store.GetSenior(ctx, id)
		if err != nil {
			return care.Date{}, err
		}
		if d := care.Today(x.Clock, seniorLocation(senior, x.Location)); d.Before(today) {
			today = d
		}
	}
	return today, nil
}

// overlapCheck rejects a when it intersects any sibling on the same date.
func overlapCheck(a care.Availability) care.AvailabilityCheck {
	return func(siblings []care.Availability) error {
		for _, other := range siblings {
			if a.Overlaps(other) {
				return care.NewValidationError("base", care.MsgOverlap)
			}
		}
		return nil
	}
}

// =============================================================================
// QUERIES
// =============================================================================

// List returns one caregiver's intervals with dates in [from, to].
func (x *Index) List(ctx context.Context, caregiverID care.UserID, from, to care.Date) ([]care.Availability, error) {
	return x.Store.ListAvailability(ctx, []care.UserID{caregiverID}, from, to)
}

// HasCoverage reports whether any of the caregivers has an interval on date.
func (x *Index) HasCoverage(ctx context.Context, caregiverIDs []care.UserID, date care.Date) (bool, error) {
	covered, err := x.CoveredDates(ctx, caregiverIDs, date, date)
	if err != nil {
		return false, err
	}
	return covered[date], nil
}

// CoveredDates returns the set of dates in [from, to] on which at least one
// of the caregivers has an interval.
func (x *Index) CoveredDates(ctx context.Context, caregiverIDs []care.UserID, from, to care.Date) (map[care.Date]bool, error) {
	covered := make(map[care.Date]bool)
	if len(caregiverIDs) == 0 || to.Before(from) {
		return covered, nil
	}
	intervals, err := x.Store.ListAvailability(ctx, caregiverIDs, from, to)
	if err != nil {
		return nil, err
	}
	for _, a := range intervals {
		covered[a.Date] = true
	}
	return covered, nil
}
