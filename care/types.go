/*
types.go - Core domain types for reminders and caregiver coverage

PURPOSE:
  Defines the entities shared by the recurrence engine and the coverage
  engine. Storage implementations and the HTTP layer both speak these types.

ENTITIES:
  Reminder:        A recurring prompt owned by a user (usually a senior)
  Occurrence:      One materialized firing of a reminder at an instant
  Acknowledgement: Append-only log of actions taken against an occurrence
  Availability:    A caregiver's time interval on a given date
  Senior:          The person being cared for, with their caregiver links
  Notification:    Coverage alerts written for caregivers

ENUMERATIONS:
  Every enumeration is a typed string with a Valid() method. Consumers
  switch over all values explicitly; an unknown value is a programming
  error or bad input, never a silent default.

SEE ALSO:
  - store.go: Persistence contracts for these types
  - errors.go: Validation and lookup failures
*/
package care

import (
	"time"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type (
	UserID         string
	ReminderID     string
	OccurrenceID   string
	AckID          string
	AvailabilityID string
	NotificationID string
)

// =============================================================================
// REMINDER
// =============================================================================

type Category string

const (
	CategoryMedication Category = "medication"
	CategoryHydration  Category = "hydration"
	CategoryRoutine    Category = "routine"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryMedication, CategoryHydration, CategoryRoutine:
		return true
	}
	return false
}

// Reminder is a recurring prompt. RecurrenceRule must parse with
// recurrence.Parse; Timezone is an IANA zone name used to place wall-clock
// rule times on the timeline.
type Reminder struct {
	ID             ReminderID
	UserID         UserID
	Title          string
	Notes          string
	Category       Category
	RecurrenceRule string
	Timezone       string
	StartTime      *time.Time // explicit anchor; falls back to CreatedAt
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Anchor is the instant recurrence generation counts from.
func (r Reminder) Anchor() time.Time {
	if r.StartTime != nil && !r.StartTime.IsZero() {
		return *r.StartTime
	}
	return r.CreatedAt
}

// ScheduleChanged reports whether other differs from r in anything that
// affects which occurrences exist.
func (r Reminder) ScheduleChanged(other Reminder) bool {
	if r.RecurrenceRule != other.RecurrenceRule || r.Timezone != other.Timezone {
		return true
	}
	return !r.Anchor().Equal(other.Anchor())
}

// =============================================================================
// OCCURRENCE
// =============================================================================

type OccurrenceStatus string

const (
	StatusPending      OccurrenceStatus = "pending"
	StatusAcknowledged OccurrenceStatus = "acknowledged"
	StatusMissed       OccurrenceStatus = "missed"
)

func (s OccurrenceStatus) Valid() bool {
	switch s {
	case StatusPending, StatusAcknowledged, StatusMissed:
		return true
	}
	return false
}

// Occurrence is unique per (ReminderID, ScheduledAt). ScheduledAt is stored
// in UTC at second precision.
type Occurrence struct {
	ID          OccurrenceID
	ReminderID  ReminderID
	ScheduledAt time.Time
	Status      OccurrenceStatus
	CreatedAt   time.Time
}

// NormalizeInstant is the canonical form of an occurrence key instant.
func NormalizeInstant(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// =============================================================================
// ACKNOWLEDGEMENT
// =============================================================================

type AckKind string

const (
	AckTaken  AckKind = "taken"
	AckSnooze AckKind = "snooze"
	AckSkip   AckKind = "skip"
)

func (k AckKind) Valid() bool {
	switch k {
	case AckTaken, AckSnooze, AckSkip:
		return true
	}
	return false
}

type Acknowledgement struct {
	ID           AckID
	OccurrenceID OccurrenceID
	Kind         AckKind
	At           time.Time
}

// =============================================================================
// AVAILABILITY
// =============================================================================

// Availability is the half-open interval [Start, End) on Date.
type Availability struct {
	ID          AvailabilityID
	CaregiverID UserID
	Date        Date
	Start       TimeOfDay
	End         TimeOfDay
	Notes       string
	CreatedAt   time.Time
}

// Overlaps reports whether the two half-open intervals intersect.
// Touching intervals ([9,12) and [12,15)) do not overlap.
func (a Availability) Overlaps(other Availability) bool {
	return a.Start < other.End && other.Start < a.End
}

// =============================================================================
// SENIOR
// =============================================================================

// Senior is a cared-for user. Caregiver links live in the store.
type Senior struct {
	ID       UserID
	Name     string
	Timezone string
}

// =============================================================================
// NOTIFICATION
// =============================================================================

type NotificationType string

const (
	NotificationCoverageGap    NotificationType = "coverage_gap"
	NotificationCoverageFilled NotificationType = "coverage_filled"
)

func (t NotificationType) Valid() bool {
	switch t {
	case NotificationCoverageGap, NotificationCoverageFilled:
		return true
	}
	return false
}

// NotificationMetadata carries the senior and date references.
// GapDates is set on coverage_gap, Date on coverage_filled.
type NotificationMetadata struct {
	SeniorID   UserID `json:"senior_id"`
	SeniorName string `json:"senior_name"`
	GapDates   []Date `json:"gap_dates,omitempty"`
	Date       *Date  `json:"date,omitempty"`
	GapCount   int    `json:"gap_count,omitempty"`
}

// Covers reports whether d is among the notified gap dates.
func (m NotificationMetadata) Covers(d Date) bool {
	for _, g := range m.GapDates {
		if g.Equal(d) {
			return true
		}
	}
	return false
}

type Notification struct {
	ID        NotificationID
	UserID    UserID
	Type      NotificationType
	Title     string
	Message   string
	Read      bool
	CreatedAt time.Time
	Metadata  NotificationMetadata
}
