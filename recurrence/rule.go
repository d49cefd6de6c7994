/*
rule.go - Compact recurrence rule parsing

PURPOSE:
  Parses the RRULE subset reminders use into a Rule value. Only what the
  product schedules is accepted; anything else (COUNT, UNTIL, MONTHLY, ...)
  is a ParseError rather than a silently ignored part. The canonical form
  is also checked by rrule-go, which does the expansion.

GRAMMAR:
  [RRULE:]FREQ=DAILY|HOURLY|WEEKLY
          [;INTERVAL=n]            n >= 1
          [;BYDAY=MO,TU,...]       two-letter weekday codes
          [;BYHOUR=h[,h...]]       0-23
          [;BYMINUTE=m[,m...]]     0-59

  Parts may appear in any order, keys and values are case-insensitive,
  and a key may appear at most once.

EXAMPLES:
  FREQ=DAILY;BYHOUR=9;BYMINUTE=0        every day at 09:00 local
  FREQ=HOURLY;INTERVAL=4                every 4 hours from the anchor
  FREQ=WEEKLY;BYDAY=MO,WE,FR;BYHOUR=8   Mon/Wed/Fri at 08:00 local

SEE ALSO:
  - expand.go: Turning a Rule into instants with rrule-go
*/
package recurrence

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// ErrInvalidRule is wrapped by every ParseError.
var ErrInvalidRule = errors.New("invalid recurrence rule")

// ParseError reports why a rule string was rejected.
type ParseError struct {
	Rule   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid recurrence rule %q: %s", e.Rule, e.Reason)
}

func (e *ParseError) Unwrap() error {
	return ErrInvalidRule
}

// =============================================================================
// RULE
// =============================================================================

type Frequency string

const (
	Hourly Frequency = "HOURLY"
	Daily  Frequency = "DAILY"
	Weekly Frequency = "WEEKLY"
)

// Rule is a parsed recurrence. By* slices are sorted and deduplicated;
// an empty slice means "not constrained".
type Rule struct {
	Freq     Frequency
	Interval int
	ByDay    []time.Weekday
	ByHour   []int
	ByMinute []int
}

var weekdayCodes = map[string]time.Weekday{
	"SU": time.Sunday,
	"MO": time.Monday,
	"TU": time.Tuesday,
	"WE": time.Wednesday,
	"TH": time.Thursday,
	"FR": time.Friday,
	"SA": time.Saturday,
}

var weekdayNames = [...]string{"SU", "MO", "TU", "WE", "TH", "FR", "SA"}

// Parse parses a rule string. Errors are *ParseError.
func Parse(s string) (Rule, error) {
	fail := func(format string, args ...any) (Rule, error) {
		return Rule{}, &ParseError{Rule: s, Reason: fmt.Sprintf(format, args...)}
	}

	body := strings.TrimSpace(s)
	if len(body) >= 6 && strings.EqualFold(body[:6], "RRULE:") {
		body = body[6:]
	}
	if body == "" {
		return fail("empty rule")
	}

	rule := Rule{Interval: 1}
	seen := make(map[string]bool)

	for _, part := range strings.Split(body, ";") {
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			return fail("part %q is not KEY=VALUE", part)
		}
		key = strings.ToUpper(strings.TrimSpace(key))
		value = strings.ToUpper(strings.TrimSpace(value))
		if seen[key] {
			return fail("%s given more than once", key)
		}
		seen[key] = true

		switch key {
		case "FREQ":
			switch Frequency(value) {
			case Hourly, Daily, Weekly:
				rule.Freq = Frequency(value)
			default:
				return fail("unsupported FREQ %q", value)
			}

		case "INTERVAL":
			n, err := strconv.Atoi(value)
			if err != nil || n < 1 {
				return fail("INTERVAL must be a positive integer")
			}
			rule.Interval = n

		case "BYDAY":
			days, err := parseWeekdays(value)
			if err != nil {
				return fail("%v", err)
			}
			rule.ByDay = days

		case "BYHOUR":
			hours, err := parseInts(value, 0, 23)
			if err != nil {
				return fail("BYHOUR %v", err)
			}
			rule.ByHour = hours

		case "BYMINUTE":
			minutes, err := parseInts(value, 0, 59)
			if err != nil {
				return fail("BYMINUTE %v", err)
			}
			rule.ByMinute = minutes

		default:
			return fail("unsupported part %s", key)
		}
	}

	if rule.Freq == "" {
		return fail("FREQ is required")
	}
	if _, err := rrule.StrToROption(rule.String()); err != nil {
		return fail("%v", err)
	}
	return rule, nil
}

// MustParse is Parse for rules known to be valid. Panics on error.
func MustParse(s string) Rule {
	r, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return r
}

func parseWeekdays(value string) ([]time.Weekday, error) {
	set := make(map[time.Weekday]bool)
	for _, code := range strings.Split(value, ",") {
		wd, ok := weekdayCodes[strings.TrimSpace(code)]
		if !ok {
			return nil, fmt.Errorf("unknown BYDAY value %q", code)
		}
		set[wd] = true
	}
	days := make([]time.Weekday, 0, len(set))
	for wd := range set {
		days = append(days, wd)
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
	return days, nil
}

func parseInts(value string, lo, hi int) ([]int, error) {
	set := make(map[int]bool)
	for _, raw := range strings.Split(value, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || n < lo || n > hi {
			return nil, fmt.Errorf("value %q outside %d-%d", raw, lo, hi)
		}
		set[n] = true
	}
	out := make([]int, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Ints(out)
	return out, nil
}

// String renders the canonical form of the rule.
func (r Rule) String() string {
	parts := []string{"FREQ=" + string(r.Freq)}
	if r.Interval > 1 {
		parts = append(parts, "INTERVAL="+strconv.Itoa(r.Interval))
	}
	if len(r.ByDay) > 0 {
		codes := make([]string, len(r.ByDay))
		for i, wd := range r.ByDay {
			codes[i] = weekdayNames[wd]
		}
		parts = append(parts, "BYDAY="+strings.Join(codes, ","))
	}
	if len(r.ByHour) > 0 {
		parts = append(parts, "BYHOUR="+joinInts(r.ByHour))
	}
	if len(r.ByMinute) > 0 {
		parts = append(parts, "BYMINUTE="+joinInts(r.ByMinute))
	}
	return strings.Join(parts, ";")
}

func joinInts(ns []int) string {
	s := make([]string, len(ns))
	for i, n := range ns {
		s[i] = strconv.Itoa(n)
	}
	return strings.Join(s, ",")
}
