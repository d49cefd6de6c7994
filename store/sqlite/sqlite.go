/*
Package sqlite provides a SQLite-backed implementation of care.Store.

PURPOSE:
  Persists reminders, occurrences, acknowledgements, availability, care
  circles and notifications. The same schema ports to PostgreSQL with minor
  dialect changes (ON CONFLICT is shared).

KEY TABLES:
  reminders:              Reminder definitions
  occurrences:            Materialized firings, UNIQUE(reminder_id, scheduled_at)
  acknowledgements:       Append-only action log
  availabilities:         Caregiver intervals, minutes after midnight
  seniors, care_links:    Care circles
  notifications:          Coverage notifications (metadata as JSON)
  notification_gap_dates: One row per (notification, gap date), the
                          relational form of the metadata gap-date set

OCCURRENCE UPSERT:
  INSERT ... ON CONFLICT(reminder_id, scheduled_at) DO NOTHING, then read
  the row back by key. A UNIQUE violation surfacing from the driver is
  handled the same way. Callers never see a duplicate-key error.

CONCURRENCY:
  One open connection and a sync.RWMutex. WithTx holds the write lock for
  the life of the transaction; the tx-bound store it hands out never takes
  the lock again. SaveAvailability runs its check and write in one
  transaction.

TIME ENCODING:
  Instants are stored as UTC text with a fixed-width fractional part so
  lexical order is chronological. Dates are YYYY-MM-DD.

USAGE:
  store, err := sqlite.New("./data/care.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - care/store.go: Interface definitions
  - care/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/carecircle/care-engine/care"
)

const instantLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements care.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
	ops
}

// New opens (creating if needed) the database at dbPath and migrates it.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := NewWithDB(db)
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// NewWithDB wraps an already-open database whose schema is managed by the
// caller.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db, ops: ops{q: db}}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS reminders (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		title TEXT NOT NULL,
		notes TEXT,
		category TEXT NOT NULL,
		recurrence_rule TEXT NOT NULL,
		timezone TEXT NOT NULL,
		start_time TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_reminders_user
		ON reminders(user_id);

	CREATE TABLE IF NOT EXISTS occurrences (
		id TEXT PRIMARY KEY,
		reminder_id TEXT NOT NULL REFERENCES reminders(id) ON DELETE CASCADE,
		scheduled_at TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at TEXT NOT NULL
	);

	-- CRITICAL: one row per firing, however many expansions race
	CREATE UNIQUE INDEX IF NOT EXISTS idx_occurrences_reminder_scheduled
		ON occurrences(reminder_id, scheduled_at);

	-- Missed sweep
	CREATE INDEX IF NOT EXISTS idx_occurrences_status_scheduled
		ON occurrences(status, scheduled_at);

	CREATE TABLE IF NOT EXISTS acknowledgements (
		id TEXT PRIMARY KEY,
		occurrence_id TEXT NOT NULL REFERENCES occurrences(id) ON DELETE CASCADE,
		kind TEXT NOT NULL,
		at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_acknowledgements_occurrence
		ON acknowledgements(occurrence_id, at);

	CREATE TABLE IF NOT EXISTS availabilities (
		id TEXT PRIMARY KEY,
		caregiver_id TEXT NOT NULL,
		date TEXT NOT NULL,
		start_minute INTEGER NOT NULL,
		end_minute INTEGER NOT NULL,
		notes TEXT,
		created_at TEXT NOT NULL,
		CHECK (end_minute > start_minute)
	);

	CREATE INDEX IF NOT EXISTS idx_availabilities_caregiver_date
		ON availabilities(caregiver_id, date, start_minute);

	CREATE TABLE IF NOT EXISTS seniors (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		timezone TEXT
	);

	CREATE TABLE IF NOT EXISTS care_links (
		senior_id TEXT NOT NULL REFERENCES seniors(id) ON DELETE CASCADE,
		caregiver_id TEXT NOT NULL,
		PRIMARY KEY (senior_id, caregiver_id)
	);

	CREATE INDEX IF NOT EXISTS idx_care_links_caregiver
		ON care_links(caregiver_id);

	CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		type TEXT NOT NULL,
		title TEXT NOT NULL,
		message TEXT NOT NULL,
		read INTEGER NOT NULL DEFAULT 0,
		senior_id TEXT,
		metadata_json TEXT,
		created_at TEXT NOT NULL
	);

	-- Dedup lookup: unread gap alerts per (caregiver, senior) since a cutoff
	CREATE INDEX IF NOT EXISTS idx_notifications_user_senior_type
		ON notifications(user_id, senior_id, type, read, created_at);

	CREATE TABLE IF NOT EXISTS notification_gap_dates (
		notification_id TEXT NOT NULL REFERENCES notifications(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL,
		senior_id TEXT NOT NULL,
		gap_date TEXT NOT NULL,
		PRIMARY KEY (notification_id, gap_date)
	);

	CREATE INDEX IF NOT EXISTS idx_notification_gap_dates_senior_date
		ON notification_gap_dates(senior_id, gap_date);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// LOCKED ENTRY POINTS
// =============================================================================

func (s *Store) SaveReminder(ctx context.Context, r care.Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ops.SaveReminder(ctx, r)
}

func (s *Store) GetReminder(ctx context.Context, id care.ReminderID) (care.Reminder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ops.GetReminder(ctx, id)
}

func (s *Store) ListReminders(ctx context.Context) ([]care.Reminder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ops.ListReminders(ctx)
}

func (s *Store) ListRemindersByUser(ctx context.Context, userID care.UserID) ([]care.Reminder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ops.ListRemindersByUser(ctx, userID)
}

func (s *Store) DeleteReminder(ctx context.Context, id care.ReminderID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ops.DeleteReminder(ctx, id)
}

func (s *Store) UpsertOccurrence(ctx context.Context, reminderID care.ReminderID, scheduledAt time.Time) (care.Occurrence, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ops.UpsertOccurrence(ctx, reminderID, scheduledAt)
}

func (s *Store) GetOccurrence(ctx context.Context, id care.OccurrenceID) (care.Occurrence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ops.GetOccurrence(ctx, id)
}

func (s *Store) ListOccurrences(ctx context.Context, reminderID care.ReminderID, from, to time.Time) ([]care.Occurrence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ops.ListOccurrences(ctx, reminderID, from, to)
}

func (s *Store) SetOccurrenceStatus(ctx context.Context, id care.OccurrenceID, status care.OccurrenceStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ops.SetOccurrenceStatus(ctx, id, status)
}

func (s *Store) PurgePending(ctx context.Context, reminderID care.ReminderID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ops.PurgePending(ctx, reminderID)
}

func (s *Store) MarkMissed(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ops.MarkMissed(ctx, cutoff)
}

func (s *Store) AppendAcknowledgement(ctx context.Context, a care.Acknowledgement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ops.AppendAcknowledgement(ctx, a)
}

func (s *Store) ListAcknowledgements(ctx context.Context, occurrenceID care.OccurrenceID) ([]care.Acknowledgement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ops.ListAcknowledgements(ctx, occurrenceID)
}

// SaveAvailability runs check and the write in one SQL transaction.
func (s *Store) SaveAvailability(ctx context.Context, a care.Availability, check care.AvailabilityCheck) error {
	return s.WithTx(ctx, func(tx care.Store) error {
		return tx.SaveAvailability(ctx, a, check)
	})
}

func (s *Store) GetAvailability(ctx context.Context, id care.AvailabilityID) (care.Availability, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ops.GetAvailability(ctx, id)
}

func (s *Store) DeleteAvailability(ctx context.Context, id care.AvailabilityID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ops.DeleteAvailability(ctx, id)
}

func (s *Store) ListAvailability(ctx context.Context, caregiverIDs []care.UserID, from, to care.Date) ([]care.Availability, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ops.ListAvailability(ctx, caregiverIDs, from, to)
}

func (s *Store) SaveSenior(ctx context.Context, senior care.Senior) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ops.SaveSenior(ctx, senior)
}

func (s *Store) GetSenior(ctx context.Context, id care.UserID) (care.Senior, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ops.GetSenior(ctx, id)
}

func (s *Store) ListSeniors(ctx context.Context) ([]care.Senior, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ops.ListSeniors(ctx)
}

func (s *Store) LinkCaregiver(ctx context.Context, seniorID, caregiverID care.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ops.LinkCaregiver(ctx, seniorID, caregiverID)
}

func (s *Store) UnlinkCaregiver(ctx context.Context, seniorID, caregiverID care.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ops.UnlinkCaregiver(ctx, seniorID, caregiverID)
}

func (s *Store) CaregiverIDs(ctx context.Context, seniorID care.UserID) ([]care.UserID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ops.CaregiverIDs(ctx, seniorID)
}

func (s *Store) SeniorIDs(ctx context.Context, caregiverID care.UserID) ([]care.UserID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ops.SeniorIDs(ctx, caregiverID)
}

// CreateNotification writes the notification and its gap-date rows together.
func (s *Store) CreateNotification(ctx context.Context, n care.Notification) error {
	return s.WithTx(ctx, func(tx care.Store) error {
		return tx.CreateNotification(ctx, n)
	})
}

func (s *Store) MarkNotificationRead(ctx context.Context, id care.NotificationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ops.MarkNotificationRead(ctx, id)
}

func (s *Store) ListNotifications(ctx context.Context, filter care.NotificationFilter) ([]care.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ops.ListNotifications(ctx, filter)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(care.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{ops: ops{q: sqlTx}}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// txStore is bound to one *sql.Tx. The parent holds the lock.
type txStore struct {
	ops
}

// WithTx joins the running transaction.
func (ts *txStore) WithTx(ctx context.Context, fn func(care.Store) error) error {
	return fn(ts)
}

// SaveAvailability is already inside a transaction here.
func (ts *txStore) SaveAvailability(ctx context.Context, a care.Availability, check care.AvailabilityCheck) error {
	return ts.ops.saveAvailability(ctx, a, check)
}

func (ts *txStore) CreateNotification(ctx context.Context, n care.Notification) error {
	return ts.ops.createNotification(ctx, n)
}

// =============================================================================
// HELPERS
// =============================================================================

func formatInstant(t time.Time) string {
	return t.UTC().Format(instantLayout)
}

func parseInstant(s string) (time.Time, error) {
	t, err := time.Parse(instantLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored instant %q: %w", s, err)
	}
	return t.UTC(), nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}

func isForeignKeyError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
	}
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func rowsAffected(res sql.Result) (int, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func marshalMetadata(m care.NotificationMetadata) (string, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to encode notification metadata: %w", err)
	}
	return string(b), nil
}
