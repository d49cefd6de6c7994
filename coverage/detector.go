package coverage

import (
	"context"
	"fmt"
	"time"

	"github.com/carecircle/care-engine/care"
)

// Detector finds dates on which nobody is covering a senior.
type Detector struct {
	Store           care.Store
	Index           *Index
	Clock           care.Clock
	DefaultLocation *time.Location
}

func NewDetector(store care.Store, index *Index, clock care.Clock, defaultLoc *time.Location) *Detector {
	if clock == nil {
		clock = care.SystemClock{}
	}
	if defaultLoc == nil {
		defaultLoc = time.UTC
	}
	return &Detector{Store: store, Index: index, Clock: clock, DefaultLocation: defaultLoc}
}

// Location is the zone the senior's calendar is read in. A blank or unknown
// zone falls back to the default.
func (d *Detector) Location(s care.Senior) *time.Location {
	return seniorLocation(s, d.DefaultLocation)
}

func seniorLocation(s care.Senior, fallback *time.Location) *time.Location {
	if s.Timezone != "" {
		if loc, err := time.LoadLocation(s.Timezone); err == nil {
			return loc
		}
	}
	return fallback
}

// Today is the current date in the senior's zone.
func (d *Detector) Today(s care.Senior) care.Date {
	return care.Today(d.Clock, d.Location(s))
}

// FindGaps returns the dates in [from, to], ascending, on which none of the
// senior's caregivers has availability. Dates before today are never
// reported. A senior without caregivers has no gaps.
func (d *Detector) FindGaps(ctx context.Context, senior care.Senior, from, to care.Date) ([]care.Date, error) {
	caregivers, err := d.Store.CaregiverIDs(ctx, senior.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list caregivers for senior %s: %w", senior.ID, err)
	}
	if len(caregivers) == 0 {
		return nil, nil
	}

	if today := d.Today(senior); from.Before(today) {
		from = today
	}
	if to.Before(from) {
		return nil, nil
	}

	covered, err := d.Index.CoveredDates(ctx, caregivers, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to load availability for senior %s: %w", senior.ID, err)
	}

	var gaps []care.Date
	for _, day := range (care.DateRange{Start: from, End: to}).Days() {
		if !covered[day] {
			gaps = append(gaps, day)
		}
	}
	return gaps, nil
}
