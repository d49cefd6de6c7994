package recurrence

import (
	"time"

	"github.com/teambition/rrule-go"
)

// =============================================================================
// EXPANSION - Rule + anchor + window -> instants
// =============================================================================

var rruleFreqs = map[Frequency]rrule.Frequency{
	Hourly: rrule.HOURLY,
	Daily:  rrule.DAILY,
	Weekly: rrule.WEEKLY,
}

var rruleWeekdays = [...]rrule.Weekday{
	time.Sunday:    rrule.SU,
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
}

// RRule builds the iterator for r starting at anchor.
//
// DAILY and WEEKLY iterate in loc, so wall-clock times hold across DST
// changes. When BYHOUR/BYMINUTE are absent the anchor's hour and minute are
// used, except that a BYHOUR without BYMINUTE fires on the hour.
//
// HOURLY iterates in UTC so steps are absolute hours from the anchor; its
// By* parts are applied by Between as local wall-clock filters instead.
func (r Rule) RRule(anchor time.Time, loc *time.Location) (*rrule.RRule, error) {
	if loc == nil {
		loc = time.UTC
	}
	freq, ok := rruleFreqs[r.Freq]
	if !ok {
		return nil, &ParseError{Rule: r.String(), Reason: "unsupported FREQ"}
	}

	opt := rrule.ROption{
		Freq:     freq,
		Interval: r.interval(),
		Wkst:     rrule.MO,
	}

	if r.Freq == Hourly {
		opt.Dtstart = anchor.UTC().Truncate(time.Second)
		return rrule.NewRRule(opt)
	}

	local := anchor.In(loc).Truncate(time.Second)
	opt.Dtstart = local
	opt.Byhour = r.ByHour
	if len(opt.Byhour) == 0 {
		opt.Byhour = []int{local.Hour()}
	}
	opt.Byminute = r.ByMinute
	if len(opt.Byminute) == 0 {
		if len(r.ByHour) > 0 {
			opt.Byminute = []int{0}
		} else {
			opt.Byminute = []int{local.Minute()}
		}
	}
	opt.Bysecond = []int{0}
	for _, wd := range r.ByDay {
		opt.Byweekday = append(opt.Byweekday, rruleWeekdays[wd])
	}
	return rrule.NewRRule(opt)
}

// Between returns every instant the rule fires in [from, to], ascending and
// without duplicates, expressed in loc. Nothing before anchor is produced.
func (r Rule) Between(anchor time.Time, loc *time.Location, from, to time.Time) []time.Time {
	if loc == nil {
		loc = time.UTC
	}
	if to.Before(from) {
		return nil
	}
	set, err := r.RRule(anchor, loc)
	if err != nil {
		return nil
	}

	var out []time.Time
	for _, t := range set.Between(from, to, true) {
		local := t.In(loc)
		if r.Freq == Hourly && !r.matchesWallClock(local) {
			continue
		}
		out = append(out, local)
	}
	return out
}

// matchesWallClock applies By* parts as filters on a local time.
func (r Rule) matchesWallClock(local time.Time) bool {
	if len(r.ByDay) > 0 && !containsWeekday(r.ByDay, local.Weekday()) {
		return false
	}
	if len(r.ByHour) > 0 && !containsInt(r.ByHour, local.Hour()) {
		return false
	}
	if len(r.ByMinute) > 0 && !containsInt(r.ByMinute, local.Minute()) {
		return false
	}
	return true
}

func (r Rule) interval() int {
	if r.Interval < 1 {
		return 1
	}
	return r.Interval
}

func containsWeekday(days []time.Weekday, wd time.Weekday) bool {
	for _, d := range days {
		if d == wd {
			return true
		}
	}
	return false
}

func containsInt(ns []int, n int) bool {
	for _, v := range ns {
		if v == n {
			return true
		}
	}
	return false
}
