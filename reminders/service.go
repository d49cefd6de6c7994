package reminders

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/carecircle/care-engine/care"
)

// ReminderInput is the writable part of a reminder.
type ReminderInput struct {
	UserID         care.UserID
	Title          string
	Notes          string
	Category       care.Category
	RecurrenceRule string
	Timezone       string // blank means the service default
	StartTime      *time.Time
}

// Service owns the reminder lifecycle and keeps occurrences in step with
// each reminder's schedule.
type Service struct {
	Store           care.Store
	Expander        *Expander
	Clock           care.Clock
	Logger          *zap.Logger
	DefaultTimezone string
}

func NewService(store care.Store, expander *Expander, logger *zap.Logger, defaultTimezone string) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaultTimezone == "" {
		defaultTimezone = "UTC"
	}
	return &Service{
		Store:           store,
		Expander:        expander,
		Clock:           expander.Clock,
		Logger:          logger,
		DefaultTimezone: defaultTimezone,
	}
}

// Create validates, saves and expands a new reminder. A reminder whose rule
// does not parse is never saved.
func (s *Service) Create(ctx context.Context, in ReminderInput) (care.Reminder, []care.Occurrence, error) {
	now := s.Clock.Now().UTC()
	r := care.Reminder{
		ID:        care.ReminderID(uuid.NewString()),
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.apply(&r, in)
	if err := s.validate(r); err != nil {
		return care.Reminder{}, nil, err
	}

	var occurrences []care.Occurrence
	err := s.Store.WithTx(ctx, func(tx care.Store) error {
		if err := tx.SaveReminder(ctx, r); err != nil {
			return err
		}
		var err error
		occurrences, err = s.Expander.expandIn(ctx, tx, r, 0)
		return err
	})
	if err != nil {
		return care.Reminder{}, nil, err
	}

	s.Logger.Info("reminder created",
		zap.String("reminder_id", string(r.ID)),
		zap.String("user_id", string(r.UserID)),
		zap.String("rule", r.RecurrenceRule),
		zap.Int("occurrences", len(occurrences)),
	)
	return r, occurrences, nil
}

// Update replaces the reminder's fields. When the schedule changed, pending
// occurrences are regenerated in the same transaction.
func (s *Service) Update(ctx context.Context, id care.ReminderID, in ReminderInput) (care.Reminder, error) {
	existing, err := s.Store.GetReminder(ctx, id)
	if err != nil {
		return care.Reminder{}, err
	}

	updated := existing
	s.apply(&updated, in)
	updated.UserID = existing.UserID
	updated.UpdatedAt = s.Clock.Now().UTC()
	if err := s.validate(updated); err != nil {
		return care.Reminder{}, err
	}

	regenerate := existing.ScheduleChanged(updated)
	purged := 0
	err = s.Store.WithTx(ctx, func(tx care.Store) error {
		if err := tx.SaveReminder(ctx, updated); err != nil {
			return err
		}
		if !regenerate {
			return nil
		}
		var err error
		purged, err = tx.PurgePending(ctx, id)
		if err != nil {
			return err
		}
		_, err = s.Expander.expandIn(ctx, tx, updated, 0)
		return err
	})
	if err != nil {
		return care.Reminder{}, err
	}

	s.Logger.Info("reminder updated",
		zap.String("reminder_id", string(id)),
		zap.Bool("regenerated", regenerate),
		zap.Int("purged", purged),
	)
	return updated, nil
}

// Delete removes the reminder with its occurrences and acknowledgements.
func (s *Service) Delete(ctx context.Context, id care.ReminderID) error {
	if err := s.Store.DeleteReminder(ctx, id); err != nil {
		return err
	}
	s.Logger.Info("reminder deleted", zap.String("reminder_id", string(id)))
	return nil
}

func (s *Service) apply(r *care.Reminder, in ReminderInput) {
	r.UserID = in.UserID
	r.Title = strings.TrimSpace(in.Title)
	r.Notes = in.Notes
	r.Category = in.Category
	r.RecurrenceRule = strings.TrimSpace(in.RecurrenceRule)
	r.Timezone = in.Timezone
	if r.Timezone == "" {
		r.Timezone = s.DefaultTimezone
	}
	r.StartTime = nil
	if in.StartTime != nil {
		start := in.StartTime.UTC()
		r.StartTime = &start
	}
}

func (s *Service) validate(r care.Reminder) error {
	if r.UserID == "" {
		return care.NewValidationError("user_id", "can't be blank")
	}
	if r.Title == "" {
		return care.NewValidationError("title", "can't be blank")
	}
	if !r.Category.Valid() {
		return care.NewValidationError("category", "is not one of medication, hydration, routine")
	}
	_, _, err := Schedule(r)
	return err
}
