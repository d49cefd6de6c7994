/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the care domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Reminders:      ReminderRequest, ReminderDTO, OccurrenceDTO, AdherenceDTO
  Occurrences:    AcknowledgeRequest, SnoozeRequest, SnoozeDTO
  Availability:   AvailabilityRequest, AvailabilityDTO
  Care circles:   SeniorRequest, LinkCaregiverRequest, GapsDTO
  Notifications:  NotificationDTO

VALIDATION:
  Request bodies carry go-playground/validator tags for shape checks
  (required fields, enums, ranges). Business rules (rule grammar, overlap,
  past dates) stay in the domain packages and come back as
  *care.ValidationError.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/carecircle/care-engine/care"
	"github.com/carecircle/care-engine/reminders"
)

// =============================================================================
// REMINDERS
// =============================================================================

// ReminderRequest creates or replaces a reminder.
type ReminderRequest struct {
	UserID         string     `json:"user_id" validate:"required"`
	Title          string     `json:"title" validate:"required,max=200"`
	Notes          string     `json:"notes" validate:"max=2000"`
	Category       string     `json:"category" validate:"required,oneof=medication hydration routine"`
	RecurrenceRule string     `json:"recurrence_rule" validate:"required"`
	Timezone       string     `json:"timezone"`
	StartTime      *time.Time `json:"start_time"`
}

func (r ReminderRequest) input() reminders.ReminderInput {
	return reminders.ReminderInput{
		UserID:         care.UserID(r.UserID),
		Title:          r.Title,
		Notes:          r.Notes,
		Category:       care.Category(r.Category),
		RecurrenceRule: r.RecurrenceRule,
		Timezone:       r.Timezone,
		StartTime:      r.StartTime,
	}
}

type ReminderDTO struct {
	ID             string  `json:"id"`
	UserID         string  `json:"user_id"`
	Title          string  `json:"title"`
	Notes          string  `json:"notes,omitempty"`
	Category       string  `json:"category"`
	RecurrenceRule string  `json:"recurrence_rule"`
	Timezone       string  `json:"timezone"`
	StartTime      *string `json:"start_time,omitempty"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at"`

	// Set on create and expand responses.
	Occurrences []OccurrenceDTO `json:"occurrences,omitempty"`
}

func toReminderDTO(r care.Reminder) ReminderDTO {
	dto := ReminderDTO{
		ID:             string(r.ID),
		UserID:         string(r.UserID),
		Title:          r.Title,
		Notes:          r.Notes,
		Category:       string(r.Category),
		RecurrenceRule: r.RecurrenceRule,
		Timezone:       r.Timezone,
		CreatedAt:      r.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      r.UpdatedAt.Format(time.RFC3339),
	}
	if r.StartTime != nil {
		s := r.StartTime.UTC().Format(time.RFC3339)
		dto.StartTime = &s
	}
	return dto
}

type OccurrenceDTO struct {
	ID          string `json:"id"`
	ReminderID  string `json:"reminder_id"`
	ScheduledAt string `json:"scheduled_at"`
	Status      string `json:"status"`
}

func toOccurrenceDTOs(occs []care.Occurrence) []OccurrenceDTO {
	dtos := make([]OccurrenceDTO, len(occs))
	for i, o := range occs {
		dtos[i] = toOccurrenceDTO(o)
	}
	return dtos
}

func toOccurrenceDTO(o care.Occurrence) OccurrenceDTO {
	return OccurrenceDTO{
		ID:          string(o.ID),
		ReminderID:  string(o.ReminderID),
		ScheduledAt: o.ScheduledAt.UTC().Format(time.RFC3339),
		Status:      string(o.Status),
	}
}

// ExpandRequest optionally overrides the configured horizon.
type ExpandRequest struct {
	HorizonHours int `json:"horizon_hours" validate:"gte=0,lte=720"`
}

type AdherenceDTO struct {
	ReminderID string `json:"reminder_id"`
	From       string `json:"from"`
	To         string `json:"to"`
	Taken      int    `json:"taken"`
	Skipped    int    `json:"skipped"`
	Snoozed    int    `json:"snoozed"`
	Missed     int    `json:"missed"`
	Pending    int    `json:"pending"`
	Unrecorded int    `json:"unrecorded"`
	Total      int    `json:"total"`
	Rate       string `json:"rate"`
}

func toAdherenceDTO(r reminders.AdherenceReport) AdherenceDTO {
	return AdherenceDTO{
		ReminderID: string(r.ReminderID),
		From:       r.From.UTC().Format(time.RFC3339),
		To:         r.To.UTC().Format(time.RFC3339),
		Taken:      r.Taken,
		Skipped:    r.Skipped,
		Snoozed:    r.Snoozed,
		Missed:     r.Missed,
		Pending:    r.Pending,
		Unrecorded: r.Unrecorded,
		Total:      r.Total(),
		Rate:       r.Rate.StringFixed(4),
	}
}

// =============================================================================
// OCCURRENCES
// =============================================================================

type AcknowledgeRequest struct {
	Kind string     `json:"kind" validate:"required,oneof=taken skip snooze"`
	At   *time.Time `json:"at"`
}

// SnoozeRequest bounds minutes to one day. Zero means the configured default.
type SnoozeRequest struct {
	Minutes int `json:"minutes" validate:"omitempty,min=1,max=1440"`
}

type AcknowledgementDTO struct {
	ID           string `json:"id"`
	OccurrenceID string `json:"occurrence_id"`
	Kind         string `json:"kind"`
	At           string `json:"at"`
}

func toAcknowledgementDTO(a care.Acknowledgement) AcknowledgementDTO {
	return AcknowledgementDTO{
		ID:           string(a.ID),
		OccurrenceID: string(a.OccurrenceID),
		Kind:         string(a.Kind),
		At:           a.At.UTC().Format(time.RFC3339),
	}
}

type SnoozeDTO struct {
	Acknowledgement AcknowledgementDTO `json:"acknowledgement"`
	Original        OccurrenceDTO      `json:"original"`
	Occurrence      OccurrenceDTO      `json:"occurrence"`
}

// =============================================================================
// AVAILABILITY
// =============================================================================

// AvailabilityRequest uses YYYY-MM-DD and HH:MM strings.
type AvailabilityRequest struct {
	CaregiverID string `json:"caregiver_id" validate:"required"`
	Date        string `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime   string `json:"start_time" validate:"required"`
	EndTime     string `json:"end_time" validate:"required"`
	Notes       string `json:"notes" validate:"max=500"`
}

type AvailabilityDTO struct {
	ID          string `json:"id"`
	CaregiverID string `json:"caregiver_id"`
	Date        string `json:"date"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	Notes       string `json:"notes,omitempty"`
	CreatedAt   string `json:"created_at"`
}

func toAvailabilityDTO(a care.Availability) AvailabilityDTO {
	return AvailabilityDTO{
		ID:          string(a.ID),
		CaregiverID: string(a.CaregiverID),
		Date:        a.Date.String(),
		StartTime:   a.Start.String(),
		EndTime:     a.End.String(),
		Notes:       a.Notes,
		CreatedAt:   a.CreatedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// CARE CIRCLES
// =============================================================================

type SeniorRequest struct {
	ID       string `json:"id" validate:"required"`
	Name     string `json:"name" validate:"required,max=200"`
	Timezone string `json:"timezone"`
}

type SeniorDTO struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Timezone   string   `json:"timezone,omitempty"`
	Caregivers []string `json:"caregivers"`
}

type LinkCaregiverRequest struct {
	CaregiverID string `json:"caregiver_id" validate:"required"`
}

type GapsDTO struct {
	SeniorID string   `json:"senior_id"`
	From     string   `json:"from"`
	To       string   `json:"to"`
	Gaps     []string `json:"gaps"`
}

type SweepDTO struct {
	Seniors  int               `json:"seniors"`
	Gaps     int               `json:"gaps"`
	Notified int               `json:"notified"`
	Failed   map[string]string `json:"failed,omitempty"`
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

type NotificationDTO struct {
	ID        string   `json:"id"`
	UserID    string   `json:"user_id"`
	Type      string   `json:"type"`
	Title     string   `json:"title"`
	Message   string   `json:"message"`
	Read      bool     `json:"read"`
	CreatedAt string   `json:"created_at"`
	SeniorID  string   `json:"senior_id"`
	GapDates  []string `json:"gap_dates,omitempty"`
	Date      string   `json:"date,omitempty"`
}

func toNotificationDTO(n care.Notification) NotificationDTO {
	dto := NotificationDTO{
		ID:        string(n.ID),
		UserID:    string(n.UserID),
		Type:      string(n.Type),
		Title:     n.Title,
		Message:   n.Message,
		Read:      n.Read,
		CreatedAt: n.CreatedAt.Format(time.RFC3339),
		SeniorID:  string(n.Metadata.SeniorID),
	}
	for _, d := range n.Metadata.GapDates {
		dto.GapDates = append(dto.GapDates, d.String())
	}
	if n.Metadata.Date != nil {
		dto.Date = n.Metadata.Date.String()
	}
	return dto
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the error body. Field names the offending input on 422.
type ErrorResponse struct {
	Error   string `json:"error"`
	Field   string `json:"field,omitempty"`
	Details string `json:"details,omitempty"`
}
