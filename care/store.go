/*
store.go - Persistence contracts for the care engine

PURPOSE:
  Defines the interface between the domain logic and the database.
  Implementations: care/store (in-memory) and store/sqlite.

KEY INTERFACES:
  ReminderStore:      Reminder records, cascade delete
  OccurrenceStore:    Materialized occurrences, idempotent upsert
  AcknowledgementLog: Append-only action log
  AvailabilityStore:  Caregiver intervals with checked writes
  CircleStore:        Seniors and their caregiver links
  NotificationStore:  Coverage notifications
  Store:              All of the above plus WithTx

UNIQUENESS:
  UpsertOccurrence is find-or-create on (reminderID, scheduledAt). The
  uniqueness must be enforced by the storage layer itself (unique index or
  an equivalent critical section) so concurrent expansions converge on one
  row per instant. A duplicate-key collision returns the existing row with
  created=false and a nil error.

CHECKED WRITES:
  SaveAvailability runs the caller's check against the committed siblings
  for (caregiver, date) inside the same critical section as the write, so
  two concurrent inserts cannot both pass an overlap check on stale reads.

NOT FOUND:
  Get, Delete and Set methods return an error wrapping ErrNotFound for
  unknown ids.

SEE ALSO:
  - types.go: Entity definitions
  - store/memory.go: In-memory implementation
  - ../store/sqlite/sqlite.go: SQLite implementation
*/
package care

import (
	"context"
	"time"
)

// =============================================================================
// REMINDERS & OCCURRENCES
// =============================================================================

type ReminderStore interface {
	// SaveReminder inserts or replaces the reminder with r.ID.
	SaveReminder(ctx context.Context, r Reminder) error
	GetReminder(ctx context.Context, id ReminderID) (Reminder, error)
	ListReminders(ctx context.Context) ([]Reminder, error)
	ListRemindersByUser(ctx context.Context, userID UserID) ([]Reminder, error)

	// DeleteReminder removes the reminder, its occurrences and their
	// acknowledgements.
	DeleteReminder(ctx context.Context, id ReminderID) error
}

type OccurrenceStore interface {
	// UpsertOccurrence finds or creates the pending occurrence at scheduledAt.
	UpsertOccurrence(ctx context.Context, reminderID ReminderID, scheduledAt time.Time) (Occurrence, bool, error)
	GetOccurrence(ctx context.Context, id OccurrenceID) (Occurrence, error)

	// ListOccurrences returns occurrences with ScheduledAt in [from, to],
	// ascending.
	ListOccurrences(ctx context.Context, reminderID ReminderID, from, to time.Time) ([]Occurrence, error)
	SetOccurrenceStatus(ctx context.Context, id OccurrenceID, status OccurrenceStatus) error

	// PurgePending deletes the reminder's pending occurrences and returns
	// how many were removed. Acknowledged and missed rows are kept.
	PurgePending(ctx context.Context, reminderID ReminderID) (int, error)

	// MarkMissed flips every pending occurrence scheduled before cutoff to
	// missed and returns the count.
	MarkMissed(ctx context.Context, cutoff time.Time) (int, error)
}

type AcknowledgementLog interface {
	AppendAcknowledgement(ctx context.Context, a Acknowledgement) error

	// ListAcknowledgements returns entries ordered by At ascending.
	ListAcknowledgements(ctx context.Context, occurrenceID OccurrenceID) ([]Acknowledgement, error)
}

// =============================================================================
// AVAILABILITY & CARE CIRCLE
// =============================================================================

// AvailabilityCheck validates a pending write against the existing intervals
// for the same (caregiver, date), excluding the record being written.
type AvailabilityCheck func(siblings []Availability) error

type AvailabilityStore interface {
	// SaveAvailability inserts or replaces a.ID after check passes.
	SaveAvailability(ctx context.Context, a Availability, check AvailabilityCheck) error
	GetAvailability(ctx context.Context, id AvailabilityID) (Availability, error)
	DeleteAvailability(ctx context.Context, id AvailabilityID) error

	// ListAvailability returns intervals for any of caregiverIDs with Date in
	// [from, to], ordered by date, then start time.
	ListAvailability(ctx context.Context, caregiverIDs []UserID, from, to Date) ([]Availability, error)
}

type CircleStore interface {
	SaveSenior(ctx context.Context, s Senior) error
	GetSenior(ctx context.Context, id UserID) (Senior, error)
	ListSeniors(ctx context.Context) ([]Senior, error)

	LinkCaregiver(ctx context.Context, seniorID, caregiverID UserID) error
	UnlinkCaregiver(ctx context.Context, seniorID, caregiverID UserID) error

	// CaregiverIDs returns the caregivers linked to the senior, sorted.
	CaregiverIDs(ctx context.Context, seniorID UserID) ([]UserID, error)

	// SeniorIDs returns the seniors a caregiver is linked to, sorted.
	SeniorIDs(ctx context.Context, caregiverID UserID) ([]UserID, error)
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

// NotificationFilter narrows ListNotifications. Zero values match anything.
type NotificationFilter struct {
	UserID     UserID
	SeniorID   UserID
	Type       NotificationType
	UnreadOnly bool
	Since      time.Time // CreatedAt >= Since
	GapDate    *Date     // coverage_gap notifications whose gap set holds this date
}

type NotificationStore interface {
	CreateNotification(ctx context.Context, n Notification) error
	MarkNotificationRead(ctx context.Context, id NotificationID) error

	// ListNotifications returns matches newest first.
	ListNotifications(ctx context.Context, filter NotificationFilter) ([]Notification, error)
}

// =============================================================================
// STORE - Everything, with transactions
// =============================================================================

type Store interface {
	ReminderStore
	OccurrenceStore
	AcknowledgementLog
	AvailabilityStore
	CircleStore
	NotificationStore

	// WithTx executes fn within a transaction.
	// If fn returns error, every write made through the tx store is rolled back.
	WithTx(ctx context.Context, fn func(tx Store) error) error
}
