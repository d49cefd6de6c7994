package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/carecircle/care-engine/care"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// ops holds every statement. It takes no locks; callers do.
type ops struct {
	q querier
}

// =============================================================================
// REMINDERS
// =============================================================================

const reminderColumns = `id, user_id, title, notes, category, recurrence_rule, timezone, start_time, created_at, updated_at`

func (o ops) SaveReminder(ctx context.Context, r care.Reminder) error {
	var start sql.NullString
	if r.StartTime != nil {
		start = nullString(formatInstant(*r.StartTime))
	}

	// DO UPDATE rather than REPLACE: REPLACE deletes the row and would
	// cascade to the reminder's occurrences.
	query := `
		INSERT INTO reminders (` + reminderColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			title = excluded.title,
			notes = excluded.notes,
			category = excluded.category,
			recurrence_rule = excluded.recurrence_rule,
			timezone = excluded.timezone,
			start_time = excluded.start_time,
			updated_at = excluded.updated_at
	`
	_, err := o.q.ExecContext(ctx, query,
		r.ID, r.UserID, r.Title, nullString(r.Notes), r.Category, r.RecurrenceRule, r.Timezone,
		start, formatInstant(r.CreatedAt), formatInstant(r.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save reminder: %w", err)
	}
	return nil
}

func (o ops) GetReminder(ctx context.Context, id care.ReminderID) (care.Reminder, error) {
	row := o.q.QueryRowContext(ctx, `SELECT `+reminderColumns+` FROM reminders WHERE id = ?`, id)
	r, err := scanReminder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return care.Reminder{}, care.NotFound("reminder", id)
	}
	return r, err
}

func (o ops) ListReminders(ctx context.Context) ([]care.Reminder, error) {
	return o.queryReminders(ctx, `SELECT `+reminderColumns+` FROM reminders ORDER BY created_at, id`)
}

func (o ops) ListRemindersByUser(ctx context.Context, userID care.UserID) ([]care.Reminder, error) {
	return o.queryReminders(ctx, `SELECT `+reminderColumns+` FROM reminders WHERE user_id = ? ORDER BY created_at, id`, userID)
}

func (o ops) DeleteReminder(ctx context.Context, id care.ReminderID) error {
	res, err := o.q.ExecContext(ctx, `DELETE FROM reminders WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete reminder: %w", err)
	}
	if n, err := rowsAffected(res); err != nil {
		return err
	} else if n == 0 {
		return care.NotFound("reminder", id)
	}
	return nil
}

func (o ops) queryReminders(ctx context.Context, query string, args ...any) ([]care.Reminder, error) {
	rows, err := o.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reminders: %w", err)
	}
	defer rows.Close()

	var reminders []care.Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		reminders = append(reminders, r)
	}
	return reminders, rows.Err()
}

func scanReminder(row scanner) (care.Reminder, error) {
	var (
		r                    care.Reminder
		notes, start         sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(&r.ID, &r.UserID, &r.Title, &notes, &r.Category, &r.RecurrenceRule, &r.Timezone,
		&start, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r, err
		}
		return r, fmt.Errorf("failed to scan reminder: %w", err)
	}

	r.Notes = notes.String
	if r.CreatedAt, err = parseInstant(createdAt); err != nil {
		return r, err
	}
	if r.UpdatedAt, err = parseInstant(updatedAt); err != nil {
		return r, err
	}
	if start.Valid {
		t, err := parseInstant(start.String)
		if err != nil {
			return r, err
		}
		r.StartTime = &t
	}
	return r, nil
}

// =============================================================================
// OCCURRENCES
// =============================================================================

const occurrenceColumns = `id, reminder_id, scheduled_at, status, created_at`

func (o ops) UpsertOccurrence(ctx context.Context, reminderID care.ReminderID, scheduledAt time.Time) (care.Occurrence, bool, error) {
	at := formatInstant(care.NormalizeInstant(scheduledAt))

	res, err := o.q.ExecContext(ctx, `
		INSERT INTO occurrences (`+occurrenceColumns+`)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(reminder_id, scheduled_at) DO NOTHING
	`, uuid.NewString(), reminderID, at, care.StatusPending, formatInstant(time.Now()))

	created := false
	switch {
	case err == nil:
		n, err := rowsAffected(res)
		if err != nil {
			return care.Occurrence{}, false, err
		}
		created = n == 1
	case isUniqueConstraintError(err):
		// Lost a race on the key: the row exists, fall through and read it.
	case isForeignKeyError(err):
		return care.Occurrence{}, false, care.NotFound("reminder", reminderID)
	default:
		return care.Occurrence{}, false, fmt.Errorf("failed to upsert occurrence: %w", err)
	}

	row := o.q.QueryRowContext(ctx,
		`SELECT `+occurrenceColumns+` FROM occurrences WHERE reminder_id = ? AND scheduled_at = ?`,
		reminderID, at)
	occ, err := scanOccurrence(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return care.Occurrence{}, false, care.NotFound("reminder", reminderID)
		}
		return care.Occurrence{}, false, err
	}
	return occ, created, nil
}

func (o ops) GetOccurrence(ctx context.Context, id care.OccurrenceID) (care.Occurrence, error) {
	row := o.q.QueryRowContext(ctx, `SELECT `+occurrenceColumns+` FROM occurrences WHERE id = ?`, id)
	occ, err := scanOccurrence(row)
	if errors.Is(err, sql.ErrNoRows) {
		return care.Occurrence{}, care.NotFound("occurrence", id)
	}
	return occ, err
}

func (o ops) ListOccurrences(ctx context.Context, reminderID care.ReminderID, from, to time.Time) ([]care.Occurrence, error) {
	rows, err := o.q.QueryContext(ctx, `
		SELECT `+occurrenceColumns+`
		FROM occurrences
		WHERE reminder_id = ? AND scheduled_at >= ? AND scheduled_at <= ?
		ORDER BY scheduled_at ASC
	`, reminderID, formatInstant(from), formatInstant(to))
	if err != nil {
		return nil, fmt.Errorf("failed to query occurrences: %w", err)
	}
	defer rows.Close()

	var occurrences []care.Occurrence
	for rows.Next() {
		occ, err := scanOccurrence(rows)
		if err != nil {
			return nil, err
		}
		occurrences = append(occurrences, occ)
	}
	return occurrences, rows.Err()
}

func (o ops) SetOccurrenceStatus(ctx context.Context, id care.OccurrenceID, status care.OccurrenceStatus) error {
	res, err := o.q.ExecContext(ctx, `UPDATE occurrences SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update occurrence: %w", err)
	}
	if n, err := rowsAffected(res); err != nil {
		return err
	} else if n == 0 {
		return care.NotFound("occurrence", id)
	}
	return nil
}

func (o ops) PurgePending(ctx context.Context, reminderID care.ReminderID) (int, error) {
	res, err := o.q.ExecContext(ctx,
		`DELETE FROM occurrences WHERE reminder_id = ? AND status = ?`,
		reminderID, care.StatusPending)
	if err != nil {
		return 0, fmt.Errorf("failed to purge pending occurrences: %w", err)
	}
	return rowsAffected(res)
}

func (o ops) MarkMissed(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := o.q.ExecContext(ctx,
		`UPDATE occurrences SET status = ? WHERE status = ? AND scheduled_at < ?`,
		care.StatusMissed, care.StatusPending, formatInstant(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to mark missed occurrences: %w", err)
	}
	return rowsAffected(res)
}

func scanOccurrence(row scanner) (care.Occurrence, error) {
	var (
		occ                    care.Occurrence
		scheduledAt, createdAt string
	)
	if err := row.Scan(&occ.ID, &occ.ReminderID, &scheduledAt, &occ.Status, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return occ, err
		}
		return occ, fmt.Errorf("failed to scan occurrence: %w", err)
	}
	var err error
	if occ.ScheduledAt, err = parseInstant(scheduledAt); err != nil {
		return occ, err
	}
	if occ.CreatedAt, err = parseInstant(createdAt); err != nil {
		return occ, err
	}
	return occ, nil
}

// =============================================================================
// ACKNOWLEDGEMENTS
// =============================================================================

func (o ops) AppendAcknowledgement(ctx context.Context, a care.Acknowledgement) error {
	_, err := o.q.ExecContext(ctx,
		`INSERT INTO acknowledgements (id, occurrence_id, kind, at) VALUES (?, ?, ?, ?)`,
		a.ID, a.OccurrenceID, a.Kind, formatInstant(a.At))
	if err != nil {
		if isForeignKeyError(err) {
			return care.NotFound("occurrence", a.OccurrenceID)
		}
		return fmt.Errorf("failed to append acknowledgement: %w", err)
	}
	return nil
}

func (o ops) ListAcknowledgements(ctx context.Context, occurrenceID care.OccurrenceID) ([]care.Acknowledgement, error) {
	rows, err := o.q.QueryContext(ctx, `
		SELECT id, occurrence_id, kind, at
		FROM acknowledgements
		WHERE occurrence_id = ?
		ORDER BY at ASC, rowid ASC
	`, occurrenceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query acknowledgements: %w", err)
	}
	defer rows.Close()

	var acks []care.Acknowledgement
	for rows.Next() {
		var (
			a  care.Acknowledgement
			at string
		)
		if err := rows.Scan(&a.ID, &a.OccurrenceID, &a.Kind, &at); err != nil {
			return nil, fmt.Errorf("failed to scan acknowledgement: %w", err)
		}
		if a.At, err = parseInstant(at); err != nil {
			return nil, err
		}
		acks = append(acks, a)
	}
	return acks, rows.Err()
}

// =============================================================================
// AVAILABILITY
// =============================================================================

const availabilityColumns = `id, caregiver_id, date, start_minute, end_minute, notes, created_at`

func (o ops) saveAvailability(ctx context.Context, a care.Availability, check care.AvailabilityCheck) error {
	if check != nil {
		siblings, err := o.queryAvailability(ctx, `
			SELECT `+availabilityColumns+`
			FROM availabilities
			WHERE caregiver_id = ? AND date = ? AND id != ?
			ORDER BY start_minute, id
		`, a.CaregiverID, a.Date.String(), a.ID)
		if err != nil {
			return err
		}
		if err := check(siblings); err != nil {
			return err
		}
	}

	_, err := o.q.ExecContext(ctx, `
		INSERT INTO availabilities (`+availabilityColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			date = excluded.date,
			start_minute = excluded.start_minute,
			end_minute = excluded.end_minute,
			notes = excluded.notes
	`, a.ID, a.CaregiverID, a.Date.String(), int(a.Start), int(a.End), nullString(a.Notes), formatInstant(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to save availability: %w", err)
	}
	return nil
}

func (o ops) GetAvailability(ctx context.Context, id care.AvailabilityID) (care.Availability, error) {
	list, err := o.queryAvailability(ctx, `SELECT `+availabilityColumns+` FROM availabilities WHERE id = ?`, id)
	if err != nil {
		return care.Availability{}, err
	}
	if len(list) == 0 {
		return care.Availability{}, care.NotFound("availability", id)
	}
	return list[0], nil
}

func (o ops) DeleteAvailability(ctx context.Context, id care.AvailabilityID) error {
	res, err := o.q.ExecContext(ctx, `DELETE FROM availabilities WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete availability: %w", err)
	}
	if n, err := rowsAffected(res); err != nil {
		return err
	} else if n == 0 {
		return care.NotFound("availability", id)
	}
	return nil
}

func (o ops) ListAvailability(ctx context.Context, caregiverIDs []care.UserID, from, to care.Date) ([]care.Availability, error) {
	if len(caregiverIDs) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(caregiverIDs)+2)
	for _, id := range caregiverIDs {
		args = append(args, id)
	}
	args = append(args, from.String(), to.String())

	return o.queryAvailability(ctx, `
		SELECT `+availabilityColumns+`
		FROM availabilities
		WHERE caregiver_id IN (`+placeholders(len(caregiverIDs))+`)
		  AND date >= ? AND date <= ?
		ORDER BY date, start_minute, id
	`, args...)
}

func (o ops) queryAvailability(ctx context.Context, query string, args ...any) ([]care.Availability, error) {
	rows, err := o.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query availability: %w", err)
	}
	defer rows.Close()

	var result []care.Availability
	for rows.Next() {
		var (
			a              care.Availability
			day, createdAt string
			start, end     int
			notes          sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.CaregiverID, &day, &start, &end, &notes, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan availability: %w", err)
		}
		if a.Date, err = care.ParseDate(day); err != nil {
			return nil, err
		}
		if a.CreatedAt, err = parseInstant(createdAt); err != nil {
			return nil, err
		}
		a.Start, a.End = care.TimeOfDay(start), care.TimeOfDay(end)
		a.Notes = notes.String
		result = append(result, a)
	}
	return result, rows.Err()
}

// =============================================================================
// CARE CIRCLES
// =============================================================================

func (o ops) SaveSenior(ctx context.Context, s care.Senior) error {
	_, err := o.q.ExecContext(ctx, `
		INSERT INTO seniors (id, name, timezone) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, timezone = excluded.timezone
	`, s.ID, s.Name, nullString(s.Timezone))
	if err != nil {
		return fmt.Errorf("failed to save senior: %w", err)
	}
	return nil
}

func (o ops) GetSenior(ctx context.Context, id care.UserID) (care.Senior, error) {
	var (
		s  care.Senior
		tz sql.NullString
	)
	err := o.q.QueryRowContext(ctx, `SELECT id, name, timezone FROM seniors WHERE id = ?`, id).
		Scan(&s.ID, &s.Name, &tz)
	if errors.Is(err, sql.ErrNoRows) {
		return care.Senior{}, care.NotFound("senior", id)
	}
	if err != nil {
		return care.Senior{}, fmt.Errorf("failed to get senior: %w", err)
	}
	s.Timezone = tz.String
	return s, nil
}

func (o ops) ListSeniors(ctx context.Context) ([]care.Senior, error) {
	rows, err := o.q.QueryContext(ctx, `SELECT id, name, timezone FROM seniors ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query seniors: %w", err)
	}
	defer rows.Close()

	var seniors []care.Senior
	for rows.Next() {
		var (
			s  care.Senior
			tz sql.NullString
		)
		if err := rows.Scan(&s.ID, &s.Name, &tz); err != nil {
			return nil, fmt.Errorf("failed to scan senior: %w", err)
		}
		s.Timezone = tz.String
		seniors = append(seniors, s)
	}
	return seniors, rows.Err()
}

func (o ops) LinkCaregiver(ctx context.Context, seniorID, caregiverID care.UserID) error {
	_, err := o.q.ExecContext(ctx,
		`INSERT INTO care_links (senior_id, caregiver_id) VALUES (?, ?) ON CONFLICT DO NOTHING`,
		seniorID, caregiverID)
	if err != nil {
		if isForeignKeyError(err) {
			return care.NotFound("senior", seniorID)
		}
		return fmt.Errorf("failed to link caregiver: %w", err)
	}
	return nil
}

func (o ops) UnlinkCaregiver(ctx context.Context, seniorID, caregiverID care.UserID) error {
	_, err := o.q.ExecContext(ctx,
		`DELETE FROM care_links WHERE senior_id = ? AND caregiver_id = ?`, seniorID, caregiverID)
	if err != nil {
		return fmt.Errorf("failed to unlink caregiver: %w", err)
	}
	return nil
}

func (o ops) CaregiverIDs(ctx context.Context, seniorID care.UserID) ([]care.UserID, error) {
	return o.queryUserIDs(ctx,
		`SELECT caregiver_id FROM care_links WHERE senior_id = ? ORDER BY caregiver_id`, seniorID)
}

func (o ops) SeniorIDs(ctx context.Context, caregiverID care.UserID) ([]care.UserID, error) {
	return o.queryUserIDs(ctx,
		`SELECT senior_id FROM care_links WHERE caregiver_id = ? ORDER BY senior_id`, caregiverID)
}

func (o ops) queryUserIDs(ctx context.Context, query string, args ...any) ([]care.UserID, error) {
	rows, err := o.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query care links: %w", err)
	}
	defer rows.Close()

	var ids []care.UserID
	for rows.Next() {
		var id care.UserID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan care link: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

const notificationColumns = `id, user_id, type, title, message, read, metadata_json, created_at`

func (o ops) createNotification(ctx context.Context, n care.Notification) error {
	metadata, err := marshalMetadata(n.Metadata)
	if err != nil {
		return err
	}

	_, err = o.q.ExecContext(ctx, `
		INSERT INTO notifications (`+notificationColumns+`, senior_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, n.ID, n.UserID, n.Type, n.Title, n.Message, n.Read, metadata, formatInstant(n.CreatedAt),
		nullString(string(n.Metadata.SeniorID)))
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	for _, d := range n.Metadata.GapDates {
		_, err := o.q.ExecContext(ctx, `
			INSERT INTO notification_gap_dates (notification_id, user_id, senior_id, gap_date)
			VALUES (?, ?, ?, ?)
			ON CONFLICT DO NOTHING
		`, n.ID, n.UserID, n.Metadata.SeniorID, d.String())
		if err != nil {
			return fmt.Errorf("failed to index notification gap date: %w", err)
		}
	}
	return nil
}

func (o ops) MarkNotificationRead(ctx context.Context, id care.NotificationID) error {
	res, err := o.q.ExecContext(ctx, `UPDATE notifications SET read = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	if n, err := rowsAffected(res); err != nil {
		return err
	} else if n == 0 {
		return care.NotFound("notification", id)
	}
	return nil
}

func (o ops) ListNotifications(ctx context.Context, f care.NotificationFilter) ([]care.Notification, error) {
	var (
		where []string
		args  []any
	)
	if f.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.SeniorID != "" {
		where = append(where, "senior_id = ?")
		args = append(args, f.SeniorID)
	}
	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, f.Type)
	}
	if f.UnreadOnly {
		where = append(where, "read = 0")
	}
	if !f.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, formatInstant(f.Since))
	}
	if f.GapDate != nil {
		where = append(where, "type = ?",
			"id IN (SELECT notification_id FROM notification_gap_dates WHERE gap_date = ?)")
		args = append(args, care.NotificationCoverageGap, f.GapDate.String())
	}

	query := `SELECT ` + notificationColumns + ` FROM notifications`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, rowid DESC`

	rows, err := o.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var result []care.Notification
	for rows.Next() {
		var (
			n         care.Notification
			metadata  sql.NullString
			createdAt string
		)
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.Read, &metadata, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		if n.CreatedAt, err = parseInstant(createdAt); err != nil {
			return nil, err
		}
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &n.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode notification metadata: %w", err)
			}
		}
		result = append(result, n)
	}
	return result, rows.Err()
}
