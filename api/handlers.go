/*
handlers.go - HTTP API handlers for reminders and caregiver coverage

PURPOSE:
  Exposes the care engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the reminders and coverage packages.

ENDPOINTS:
  Reminders:
    POST   /api/reminders                     Create (and expand)
    GET    /api/reminders/{id}                Get reminder
    PUT    /api/reminders/{id}                Update (regenerates on schedule change)
    DELETE /api/reminders/{id}                Delete with occurrences
    POST   /api/reminders/{id}/expand         Materialize the horizon now
    GET    /api/reminders/{id}/occurrences    Occurrences in [from, to]
    GET    /api/reminders/{id}/adherence      Adherence report for [from, to]

  Occurrences:
    POST   /api/occurrences/{id}/acknowledge  taken | skip | snooze
    POST   /api/occurrences/{id}/snooze       Reschedule minutes from now

  Availability:
    POST   /api/availabilities                Add interval
    PUT    /api/availabilities/{id}           Update interval
    DELETE /api/availabilities/{id}           Remove interval
    GET    /api/caregivers/{id}/availabilities

  Care circles:
    POST   /api/seniors                       Create or update senior
    GET    /api/seniors/{id}                  Senior with caregivers
    POST   /api/seniors/{id}/caregivers       Link caregiver
    DELETE /api/seniors/{id}/caregivers/{caregiverID}
    GET    /api/seniors/{id}/gaps             Uncovered dates

  Users:
    GET    /api/users/{id}/reminders          Reminders owned by the user
    GET    /api/users/{id}/notifications      ?unread=true&type=coverage_gap

  Notifications:
    POST   /api/notifications/{id}/read

  Admin:
    POST   /api/admin/sweep                   Gap sweep over all seniors
    POST   /api/admin/missed                  Missed-occurrence sweep
    POST   /api/admin/refresh                 Expand every reminder

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Malformed body or query parameter
  - 404: Resource not found
  - 422: Validation errors, with the offending field
  - 500: Internal errors

COVERAGE FILLED:
  After an availability add or update the handler asks the sweeper to emit
  gap-filled notifications for the caregiver's seniors. A failure there is
  logged; the availability write already succeeded.

SECURITY NOTE:
  No authentication or authorization. Callers are trusted to pass ids
  they are allowed to act on.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/carecircle/care-engine/care"
	"github.com/carecircle/care-engine/config"
	"github.com/carecircle/care-engine/coverage"
	"github.com/carecircle/care-engine/reminders"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers. The scheduler reuses
// the same components.
type Handler struct {
	Store     care.Store
	Clock     care.Clock
	Logger    *zap.Logger
	Reminders *reminders.Service
	Expander  *reminders.Expander
	Tracker   *reminders.Tracker
	Missed    *reminders.MissedSweeper
	Index     *coverage.Index
	Detector  *coverage.Detector
	Sweeper   *coverage.Sweeper

	validate *validator.Validate
}

// NewHandler builds every component from cfg around one store.
func NewHandler(store care.Store, cfg *config.Config, clock care.Clock, logger *zap.Logger) (*Handler, error) {
	if clock == nil {
		clock = care.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	expander := reminders.NewExpander(store, clock, logger, cfg.ExpansionHorizon)
	index := coverage.NewIndex(store, clock, loc, logger)
	detector := coverage.NewDetector(store, index, clock, loc)
	reconciler := coverage.NewReconciler(store, clock, logger, cfg.GapCooldown)

	return &Handler{
		Store:     store,
		Clock:     clock,
		Logger:    logger,
		Reminders: reminders.NewService(store, expander, logger, cfg.DefaultTimezone),
		Expander:  expander,
		Tracker:   reminders.NewTracker(store, clock, logger, cfg.SnoozeMinutes),
		Missed:    reminders.NewMissedSweeper(store, clock, logger, cfg.MissedGrace, cfg.Features.MissedSweep),
		Index:     index,
		Detector:  detector,
		Sweeper:   coverage.NewSweeper(store, detector, reconciler, logger, cfg.GapWindowDays, cfg.Features.GapNotifications),
		validate:  newValidator(),
	}, nil
}

// newValidator reports struct fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// =============================================================================
// REMINDER HANDLERS
// =============================================================================

// CreateReminder saves a reminder and materializes its first horizon.
// POST /api/reminders
func (h *Handler) CreateReminder(w http.ResponseWriter, r *http.Request) {
	var req ReminderRequest
	if !h.decode(w, r, &req) {
		return
	}

	reminder, occurrences, err := h.Reminders.Create(r.Context(), req.input())
	if err != nil {
		h.handleError(w, err, "Failed to create reminder")
		return
	}

	dto := toReminderDTO(reminder)
	dto.Occurrences = toOccurrenceDTOs(occurrences)
	writeJSON(w, http.StatusCreated, dto)
}

// GetReminder returns a single reminder.
func (h *Handler) GetReminder(w http.ResponseWriter, r *http.Request) {
	reminder, err := h.Store.GetReminder(r.Context(), care.ReminderID(chi.URLParam(r, "id")))
	if err != nil {
		h.handleError(w, err, "Failed to get reminder")
		return
	}
	writeJSON(w, http.StatusOK, toReminderDTO(reminder))
}

// ListUserReminders returns the reminders owned by a user, oldest first.
// GET /api/users/{id}/reminders
func (h *Handler) ListUserReminders(w http.ResponseWriter, r *http.Request) {
	list, err := h.Store.ListRemindersByUser(r.Context(), care.UserID(chi.URLParam(r, "id")))
	if err != nil {
		h.handleError(w, err, "Failed to list reminders")
		return
	}

	dtos := make([]ReminderDTO, len(list))
	for i, rem := range list {
		dtos[i] = toReminderDTO(rem)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// UpdateReminder replaces the writable fields of a reminder.
// PUT /api/reminders/{id}
func (h *Handler) UpdateReminder(w http.ResponseWriter, r *http.Request) {
	var req ReminderRequest
	if !h.decode(w, r, &req) {
		return
	}

	reminder, err := h.Reminders.Update(r.Context(), care.ReminderID(chi.URLParam(r, "id")), req.input())
	if err != nil {
		h.handleError(w, err, "Failed to update reminder")
		return
	}
	writeJSON(w, http.StatusOK, toReminderDTO(reminder))
}

// DeleteReminder removes a reminder with its occurrences and acknowledgements.
func (h *Handler) DeleteReminder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Reminders.Delete(r.Context(), care.ReminderID(id)); err != nil {
		h.handleError(w, err, "Failed to delete reminder")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

// ExpandReminder materializes occurrences for the horizon. The body is optional.
// POST /api/reminders/{id}/expand
func (h *Handler) ExpandReminder(w http.ResponseWriter, r *http.Request) {
	var req ExpandRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}

	reminder, err := h.Store.GetReminder(r.Context(), care.ReminderID(chi.URLParam(r, "id")))
	if err != nil {
		h.handleError(w, err, "Failed to get reminder")
		return
	}

	occurrences, err := h.Expander.Expand(r.Context(), reminder, time.Duration(req.HorizonHours)*time.Hour)
	if err != nil {
		h.handleError(w, err, "Failed to expand reminder")
		return
	}

	dto := toReminderDTO(reminder)
	dto.Occurrences = toOccurrenceDTOs(occurrences)
	writeJSON(w, http.StatusOK, dto)
}

// ListOccurrences returns occurrences between from and to (RFC3339).
// Defaults to the last day through the expansion horizon.
// GET /api/reminders/{id}/occurrences?from=...&to=...
func (h *Handler) ListOccurrences(w http.ResponseWriter, r *http.Request) {
	id := care.ReminderID(chi.URLParam(r, "id"))
	now := h.Clock.Now()

	from, err := queryTime(r, "from", now.Add(-24*time.Hour))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from (use RFC3339)", err)
		return
	}
	to, err := queryTime(r, "to", now.Add(h.Expander.Horizon))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to (use RFC3339)", err)
		return
	}

	if _, err := h.Store.GetReminder(r.Context(), id); err != nil {
		h.handleError(w, err, "Failed to get reminder")
		return
	}
	occurrences, err := h.Store.ListOccurrences(r.Context(), id, from, to)
	if err != nil {
		h.handleError(w, err, "Failed to list occurrences")
		return
	}
	writeJSON(w, http.StatusOK, toOccurrenceDTOs(occurrences))
}

// GetAdherence summarizes the reminder's occurrences between from and to.
// Defaults to the last 7 days.
// GET /api/reminders/{id}/adherence?from=...&to=...
func (h *Handler) GetAdherence(w http.ResponseWriter, r *http.Request) {
	now := h.Clock.Now()

	from, err := queryTime(r, "from", now.AddDate(0, 0, -7))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from (use RFC3339)", err)
		return
	}
	to, err := queryTime(r, "to", now)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to (use RFC3339)", err)
		return
	}

	report, err := reminders.Adherence(r.Context(), h.Store, care.ReminderID(chi.URLParam(r, "id")), from, to)
	if err != nil {
		h.handleError(w, err, "Failed to compute adherence")
		return
	}
	writeJSON(w, http.StatusOK, toAdherenceDTO(report))
}

// =============================================================================
// OCCURRENCE HANDLERS
// =============================================================================

// AcknowledgeOccurrence records an action. Kind snooze uses the default delay.
// POST /api/occurrences/{id}/acknowledge
func (h *Handler) AcknowledgeOccurrence(w http.ResponseWriter, r *http.Request) {
	var req AcknowledgeRequest
	if !h.decode(w, r, &req) {
		return
	}

	var at time.Time
	if req.At != nil {
		at = *req.At
	}

	ack, err := h.Tracker.Acknowledge(r.Context(), care.OccurrenceID(chi.URLParam(r, "id")), care.AckKind(req.Kind), at)
	if err != nil {
		h.handleError(w, err, "Failed to acknowledge occurrence")
		return
	}
	writeJSON(w, http.StatusCreated, toAcknowledgementDTO(ack))
}

// SnoozeOccurrence reschedules the occurrence minutes from now.
// POST /api/occurrences/{id}/snooze
func (h *Handler) SnoozeOccurrence(w http.ResponseWriter, r *http.Request) {
	var req SnoozeRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	minutes := req.Minutes
	if minutes == 0 {
		minutes = h.Tracker.SnoozeMinutes
	}

	result, err := h.Tracker.Snooze(r.Context(), care.OccurrenceID(chi.URLParam(r, "id")), minutes)
	if err != nil {
		h.handleError(w, err, "Failed to snooze occurrence")
		return
	}
	writeJSON(w, http.StatusCreated, SnoozeDTO{
		Acknowledgement: toAcknowledgementDTO(result.Acknowledgement),
		Original:        toOccurrenceDTO(result.Original),
		Occurrence:      toOccurrenceDTO(result.Occurrence),
	})
}

// =============================================================================
// AVAILABILITY HANDLERS
// =============================================================================

// CreateAvailability adds an interval and closes any gap alert it fills.
// POST /api/availabilities
func (h *Handler) CreateAvailability(w http.ResponseWriter, r *http.Request) {
	var req AvailabilityRequest
	if !h.decode(w, r, &req) {
		return
	}
	in, err := req.input()
	if err != nil {
		h.handleError(w, err, "Invalid availability")
		return
	}

	a, err := h.Index.Add(r.Context(), in)
	if err != nil {
		h.handleError(w, err, "Failed to add availability")
		return
	}
	h.reconcileFilled(r, a)
	writeJSON(w, http.StatusCreated, toAvailabilityDTO(a))
}

// UpdateAvailability moves or resizes an interval.
// PUT /api/availabilities/{id}
func (h *Handler) UpdateAvailability(w http.ResponseWriter, r *http.Request) {
	var req AvailabilityRequest
	if !h.decode(w, r, &req) {
		return
	}
	in, err := req.input()
	if err != nil {
		h.handleError(w, err, "Invalid availability")
		return
	}

	a, err := h.Index.Update(r.Context(), care.AvailabilityID(chi.URLParam(r, "id")), in)
	if err != nil {
		h.handleError(w, err, "Failed to update availability")
		return
	}
	h.reconcileFilled(r, a)
	writeJSON(w, http.StatusOK, toAvailabilityDTO(a))
}

// DeleteAvailability removes an interval. Gaps it opens are picked up by
// the next sweep.
func (h *Handler) DeleteAvailability(w http.ResponseWriter, r *http.Request) {
	a, err := h.Index.Remove(r.Context(), care.AvailabilityID(chi.URLParam(r, "id")))
	if err != nil {
		h.handleError(w, err, "Failed to remove availability")
		return
	}
	writeJSON(w, http.StatusOK, toAvailabilityDTO(a))
}

// ListCaregiverAvailability returns a caregiver's intervals between from and
// to (YYYY-MM-DD). Defaults to today through 30 days out.
// GET /api/caregivers/{id}/availabilities
func (h *Handler) ListCaregiverAvailability(w http.ResponseWriter, r *http.Request) {
	today := care.Today(h.Clock, h.Index.Location)

	from, err := queryDate(r, "from", today)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from (use YYYY-MM-DD)", err)
		return
	}
	to, err := queryDate(r, "to", today.AddDays(30))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to (use YYYY-MM-DD)", err)
		return
	}

	list, err := h.Index.List(r.Context(), care.UserID(chi.URLParam(r, "id")), from, to)
	if err != nil {
		h.handleError(w, err, "Failed to list availability")
		return
	}

	dtos := make([]AvailabilityDTO, len(list))
	for i, a := range list {
		dtos[i] = toAvailabilityDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) reconcileFilled(r *http.Request, a care.Availability) {
	if _, err := h.Sweeper.ReconcileFilled(r.Context(), a.CaregiverID, a.Date); err != nil {
		h.Logger.Error("gap-filled reconciliation failed",
			zap.String("caregiver_id", string(a.CaregiverID)),
			zap.String("date", a.Date.String()),
			zap.Error(err),
		)
	}
}

func (req AvailabilityRequest) input() (coverage.AvailabilityInput, error) {
	date, err := care.ParseDate(req.Date)
	if err != nil {
		return coverage.AvailabilityInput{}, &care.ValidationError{Field: "date", Message: "must be YYYY-MM-DD", Err: err}
	}
	start, err := care.ParseTimeOfDay(req.StartTime)
	if err != nil {
		return coverage.AvailabilityInput{}, &care.ValidationError{Field: "start_time", Message: "must be HH:MM", Err: err}
	}
	end, err := care.ParseTimeOfDay(req.EndTime)
	if err != nil {
		return coverage.AvailabilityInput{}, &care.ValidationError{Field: "end_time", Message: "must be HH:MM", Err: err}
	}
	return coverage.AvailabilityInput{
		CaregiverID: care.UserID(req.CaregiverID),
		Date:        date,
		Start:       start,
		End:         end,
		Notes:       req.Notes,
	}, nil
}

// =============================================================================
// CARE CIRCLE HANDLERS
// =============================================================================

// SaveSenior creates or updates a senior.
// POST /api/seniors
func (h *Handler) SaveSenior(w http.ResponseWriter, r *http.Request) {
	var req SeniorRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Timezone != "" {
		if _, err := time.LoadLocation(req.Timezone); err != nil {
			h.handleError(w, &care.ValidationError{Field: "timezone", Message: "is not a known timezone", Err: err}, "Invalid senior")
			return
		}
	}

	senior := care.Senior{ID: care.UserID(req.ID), Name: req.Name, Timezone: req.Timezone}
	if err := h.Store.SaveSenior(r.Context(), senior); err != nil {
		h.handleError(w, err, "Failed to save senior")
		return
	}
	h.writeSenior(w, r, http.StatusCreated, senior)
}

// GetSenior returns a senior with the linked caregivers.
func (h *Handler) GetSenior(w http.ResponseWriter, r *http.Request) {
	senior, err := h.Store.GetSenior(r.Context(), care.UserID(chi.URLParam(r, "id")))
	if err != nil {
		h.handleError(w, err, "Failed to get senior")
		return
	}
	h.writeSenior(w, r, http.StatusOK, senior)
}

// LinkCaregiver adds a caregiver to the senior's circle.
// POST /api/seniors/{id}/caregivers
func (h *Handler) LinkCaregiver(w http.ResponseWriter, r *http.Request) {
	var req LinkCaregiverRequest
	if !h.decode(w, r, &req) {
		return
	}

	seniorID := care.UserID(chi.URLParam(r, "id"))
	senior, err := h.Store.GetSenior(r.Context(), seniorID)
	if err != nil {
		h.handleError(w, err, "Failed to get senior")
		return
	}
	if err := h.Store.LinkCaregiver(r.Context(), seniorID, care.UserID(req.CaregiverID)); err != nil {
		h.handleError(w, err, "Failed to link caregiver")
		return
	}
	h.writeSenior(w, r, http.StatusOK, senior)
}

// UnlinkCaregiver removes a caregiver from the senior's circle.
func (h *Handler) UnlinkCaregiver(w http.ResponseWriter, r *http.Request) {
	seniorID := care.UserID(chi.URLParam(r, "id"))
	senior, err := h.Store.GetSenior(r.Context(), seniorID)
	if err != nil {
		h.handleError(w, err, "Failed to get senior")
		return
	}
	if err := h.Store.UnlinkCaregiver(r.Context(), seniorID, care.UserID(chi.URLParam(r, "caregiverID"))); err != nil {
		h.handleError(w, err, "Failed to unlink caregiver")
		return
	}
	h.writeSenior(w, r, http.StatusOK, senior)
}

// GetGaps lists dates between from and to with no caregiver available.
// Defaults to the sweep window starting today in the senior's timezone.
// GET /api/seniors/{id}/gaps?from=YYYY-MM-DD&to=YYYY-MM-DD
func (h *Handler) GetGaps(w http.ResponseWriter, r *http.Request) {
	senior, err := h.Store.GetSenior(r.Context(), care.UserID(chi.URLParam(r, "id")))
	if err != nil {
		h.handleError(w, err, "Failed to get senior")
		return
	}

	today := h.Detector.Today(senior)
	from, err := queryDate(r, "from", today)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from (use YYYY-MM-DD)", err)
		return
	}
	to, err := queryDate(r, "to", today.AddDays(h.Sweeper.WindowDays-1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to (use YYYY-MM-DD)", err)
		return
	}

	gaps, err := h.Detector.FindGaps(r.Context(), senior, from, to)
	if err != nil {
		h.handleError(w, err, "Failed to detect gaps")
		return
	}

	dto := GapsDTO{SeniorID: string(senior.ID), From: from.String(), To: to.String(), Gaps: []string{}}
	for _, g := range gaps {
		dto.Gaps = append(dto.Gaps, g.String())
	}
	writeJSON(w, http.StatusOK, dto)
}

func (h *Handler) writeSenior(w http.ResponseWriter, r *http.Request, status int, s care.Senior) {
	ids, err := h.Store.CaregiverIDs(r.Context(), s.ID)
	if err != nil {
		h.handleError(w, err, "Failed to list caregivers")
		return
	}
	dto := SeniorDTO{ID: string(s.ID), Name: s.Name, Timezone: s.Timezone, Caregivers: []string{}}
	for _, id := range ids {
		dto.Caregivers = append(dto.Caregivers, string(id))
	}
	writeJSON(w, status, dto)
}

// =============================================================================
// NOTIFICATION HANDLERS
// =============================================================================

// ListNotifications returns a user's notifications, newest first.
// GET /api/users/{id}/notifications?unread=true&type=coverage_gap
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	filter := care.NotificationFilter{UserID: care.UserID(chi.URLParam(r, "id"))}

	if v := r.URL.Query().Get("unread"); v != "" {
		unread, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid unread (use true or false)", err)
			return
		}
		filter.UnreadOnly = unread
	}
	if v := r.URL.Query().Get("type"); v != "" {
		filter.Type = care.NotificationType(v)
		if !filter.Type.Valid() {
			writeError(w, http.StatusBadRequest, "Invalid type", fmt.Errorf("unknown notification type %q", v))
			return
		}
	}

	notifications, err := h.Store.ListNotifications(r.Context(), filter)
	if err != nil {
		h.handleError(w, err, "Failed to list notifications")
		return
	}

	dtos := make([]NotificationDTO, len(notifications))
	for i, n := range notifications {
		dtos[i] = toNotificationDTO(n)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// MarkNotificationRead flags a notification as read.
func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Store.MarkNotificationRead(r.Context(), care.NotificationID(id)); err != nil {
		h.handleError(w, err, "Failed to mark notification read")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "read"})
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// TriggerSweep runs the gap sweep now.
// POST /api/admin/sweep
func (h *Handler) TriggerSweep(w http.ResponseWriter, r *http.Request) {
	report, err := h.Sweeper.Run(r.Context())
	if err != nil {
		h.handleError(w, err, "Failed to run gap sweep")
		return
	}

	dto := SweepDTO{Seniors: report.Seniors, Gaps: report.Gaps, Notified: report.Notified}
	if len(report.Failed) > 0 {
		dto.Failed = make(map[string]string, len(report.Failed))
		for id, msg := range report.Failed {
			dto.Failed[string(id)] = msg
		}
	}
	writeJSON(w, http.StatusOK, dto)
}

// TriggerMissedSweep marks overdue pending occurrences missed.
// POST /api/admin/missed
func (h *Handler) TriggerMissedSweep(w http.ResponseWriter, r *http.Request) {
	n, err := h.Missed.Run(r.Context())
	if err != nil {
		h.handleError(w, err, "Failed to run missed sweep")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"missed": n})
}

// TriggerRefresh expands every reminder over the configured horizon.
// POST /api/admin/refresh
func (h *Handler) TriggerRefresh(w http.ResponseWriter, r *http.Request) {
	report, err := h.Expander.Refresh(r.Context(), 0)
	if err != nil {
		h.handleError(w, err, "Failed to refresh reminders")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"reminders":   report.Reminders,
		"occurrences": report.Occurrences,
		"failed":      len(report.Failed),
	})
}

// =============================================================================
// HELPERS
// =============================================================================

// decode reads a required JSON body and validates it. It writes the error
// response itself and returns false on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return h.check(w, dst)
}

// decodeOptional is decode for endpoints whose body may be empty.
func (h *Handler) decodeOptional(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return h.check(w, dst)
}

func (h *Handler) check(w http.ResponseWriter, dst any) bool {
	err := h.validate.Struct(dst)
	if err == nil {
		return true
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "Validation failed",
			Field:   fe.Field(),
			Details: fmt.Sprintf("%s %s", fe.Field(), tagMessage(fe)),
		})
		return false
	}
	writeError(w, http.StatusBadRequest, "Invalid request body", err)
	return false
}

func tagMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "can't be blank"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "min", "gte":
		return "must be at least " + fe.Param()
	case "max", "lte":
		return "must be at most " + fe.Param()
	case "datetime":
		return "must match " + fe.Param()
	default:
		return "is invalid"
	}
}

// handleError maps domain errors to HTTP statuses.
func (h *Handler) handleError(w http.ResponseWriter, err error, message string) {
	var verr *care.ValidationError
	switch {
	case errors.As(err, &verr):
		field := verr.Field
		if field == "" {
			field = "base"
		}
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: message, Field: field, Details: verr.Error()})
	case care.IsValidation(err):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: message, Field: "base", Details: err.Error()})
	case care.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	default:
		h.Logger.Error(message, zap.Error(err))
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func queryTime(r *http.Request, key string, def time.Time) (time.Time, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return time.Parse(time.RFC3339, v)
}

func queryDate(r *http.Request, key string, def care.Date) (care.Date, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return care.ParseDate(v)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
