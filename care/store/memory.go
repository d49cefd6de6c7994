// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/carecircle/care-engine/care"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory is a care.Store held in maps behind one mutex.
type Memory struct {
	mu sync.Mutex
	st *memState
}

type occurrenceKey struct {
	ReminderID care.ReminderID
	Unix       int64
}

type link struct {
	SeniorID    care.UserID
	CaregiverID care.UserID
}

type memState struct {
	reminders     map[care.ReminderID]care.Reminder
	occurrences   map[care.OccurrenceID]care.Occurrence
	occurrenceKey map[occurrenceKey]care.OccurrenceID
	acks          map[care.OccurrenceID][]care.Acknowledgement
	availability  map[care.AvailabilityID]care.Availability
	seniors       map[care.UserID]care.Senior
	links         map[link]bool
	notifications []care.Notification
}

func NewMemory() *Memory {
	return &Memory{st: newMemState()}
}

func newMemState() *memState {
	return &memState{
		reminders:     make(map[care.ReminderID]care.Reminder),
		occurrences:   make(map[care.OccurrenceID]care.Occurrence),
		occurrenceKey: make(map[occurrenceKey]care.OccurrenceID),
		acks:          make(map[care.OccurrenceID][]care.Acknowledgement),
		availability:  make(map[care.AvailabilityID]care.Availability),
		seniors:       make(map[care.UserID]care.Senior),
		links:         make(map[link]bool),
	}
}

// =============================================================================
// LOCKED ENTRY POINTS
// =============================================================================

func (m *Memory) SaveReminder(ctx context.Context, r care.Reminder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.SaveReminder(ctx, r)
}

func (m *Memory) GetReminder(ctx context.Context, id care.ReminderID) (care.Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.GetReminder(ctx, id)
}

func (m *Memory) ListReminders(ctx context.Context) ([]care.Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.ListReminders(ctx)
}

func (m *Memory) ListRemindersByUser(ctx context.Context, userID care.UserID) ([]care.Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.ListRemindersByUser(ctx, userID)
}

func (m *Memory) DeleteReminder(ctx context.Context, id care.ReminderID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.DeleteReminder(ctx, id)
}

func (m *Memory) UpsertOccurrence(ctx context.Context, reminderID care.ReminderID, scheduledAt time.Time) (care.Occurrence, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.UpsertOccurrence(ctx, reminderID, scheduledAt)
}

func (m *Memory) GetOccurrence(ctx context.Context, id care.OccurrenceID) (care.Occurrence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.GetOccurrence(ctx, id)
}

func (m *Memory) ListOccurrences(ctx context.Context, reminderID care.ReminderID, from, to time.Time) ([]care.Occurrence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.ListOccurrences(ctx, reminderID, from, to)
}

func (m *Memory) SetOccurrenceStatus(ctx context.Context, id care.OccurrenceID, status care.OccurrenceStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.SetOccurrenceStatus(ctx, id, status)
}

func (m *Memory) PurgePending(ctx context.Context, reminderID care.ReminderID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.PurgePending(ctx, reminderID)
}

func (m *Memory) MarkMissed(ctx context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.MarkMissed(ctx, cutoff)
}

func (m *Memory) AppendAcknowledgement(ctx context.Context, a care.Acknowledgement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.AppendAcknowledgement(ctx, a)
}

func (m *Memory) ListAcknowledgements(ctx context.Context, occurrenceID care.OccurrenceID) ([]care.Acknowledgement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.ListAcknowledgements(ctx, occurrenceID)
}

func (m *Memory) SaveAvailability(ctx context.Context, a care.Availability, check care.AvailabilityCheck) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.SaveAvailability(ctx, a, check)
}

func (m *Memory) GetAvailability(ctx context.Context, id care.AvailabilityID) (care.Availability, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.GetAvailability(ctx, id)
}

func (m *Memory) DeleteAvailability(ctx context.Context, id care.AvailabilityID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.DeleteAvailability(ctx, id)
}

func (m *Memory) ListAvailability(ctx context.Context, caregiverIDs []care.UserID, from, to care.Date) ([]care.Availability, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.ListAvailability(ctx, caregiverIDs, from, to)
}

func (m *Memory) SaveSenior(ctx context.Context, s care.Senior) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.SaveSenior(ctx, s)
}

func (m *Memory) GetSenior(ctx context.Context, id care.UserID) (care.Senior, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.GetSenior(ctx, id)
}

func (m *Memory) ListSeniors(ctx context.Context) ([]care.Senior, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.ListSeniors(ctx)
}

func (m *Memory) LinkCaregiver(ctx context.Context, seniorID, caregiverID care.UserID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.LinkCaregiver(ctx, seniorID, caregiverID)
}

func (m *Memory) UnlinkCaregiver(ctx context.Context, seniorID, caregiverID care.UserID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.UnlinkCaregiver(ctx, seniorID, caregiverID)
}

func (m *Memory) CaregiverIDs(ctx context.Context, seniorID care.UserID) ([]care.UserID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.CaregiverIDs(ctx, seniorID)
}

func (m *Memory) SeniorIDs(ctx context.Context, caregiverID care.UserID) ([]care.UserID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.SeniorIDs(ctx, caregiverID)
}

func (m *Memory) CreateNotification(ctx context.Context, n care.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.CreateNotification(ctx, n)
}

func (m *Memory) MarkNotificationRead(ctx context.Context, id care.NotificationID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.MarkNotificationRead(ctx, id)
}

func (m *Memory) ListNotifications(ctx context.Context, filter care.NotificationFilter) ([]care.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.ListNotifications(ctx, filter)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(ctx context.Context, fn func(care.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.st.clone()
	if err := fn(&txView{memState: m.st}); err != nil {
		*m.st = *snapshot
		return err
	}
	return nil
}

// txView runs against the shared state without locking; the parent holds
// the mutex for the lifetime of the transaction.
type txView struct {
	*memState
}

func (tv *txView) WithTx(ctx context.Context, fn func(care.Store) error) error {
	return fn(tv)
}

func (s *memState) clone() *memState {
	c := newMemState()
	for k, v := range s.reminders {
		c.reminders[k] = v
	}
	for k, v := range s.occurrences {
		c.occurrences[k] = v
	}
	for k, v := range s.occurrenceKey {
		c.occurrenceKey[k] = v
	}
	for k, v := range s.acks {
		c.acks[k] = append([]care.Acknowledgement{}, v...)
	}
	for k, v := range s.availability {
		c.availability[k] = v
	}
	for k, v := range s.seniors {
		c.seniors[k] = v
	}
	for k, v := range s.links {
		c.links[k] = v
	}
	for _, n := range s.notifications {
		n.Metadata.GapDates = append([]care.Date{}, n.Metadata.GapDates...)
		c.notifications = append(c.notifications, n)
	}
	return c
}

// =============================================================================
// STATE OPERATIONS - Caller holds the lock
// =============================================================================

func (s *memState) SaveReminder(_ context.Context, r care.Reminder) error {
	s.reminders[r.ID] = r
	return nil
}

func (s *memState) GetReminder(_ context.Context, id care.ReminderID) (care.Reminder, error) {
	r, ok := s.reminders[id]
	if !ok {
		return care.Reminder{}, care.NotFound("reminder", id)
	}
	return r, nil
}

func (s *memState) ListReminders(_ context.Context) ([]care.Reminder, error) {
	result := make([]care.Reminder, 0, len(s.reminders))
	for _, r := range s.reminders {
		result = append(result, r)
	}
	sortReminders(result)
	return result, nil
}

func (s *memState) ListRemindersByUser(_ context.Context, userID care.UserID) ([]care.Reminder, error) {
	var result []care.Reminder
	for _, r := range s.reminders {
		if r.UserID == userID {
			result = append(result, r)
		}
	}
	sortReminders(result)
	return result, nil
}

func sortReminders(rs []care.Reminder) {
	sort.Slice(rs, func(i, j int) bool {
		if !rs[i].CreatedAt.Equal(rs[j].CreatedAt) {
			return rs[i].CreatedAt.Before(rs[j].CreatedAt)
		}
		return rs[i].ID < rs[j].ID
	})
}

func (s *memState) DeleteReminder(_ context.Context, id care.ReminderID) error {
	if _, ok := s.reminders[id]; !ok {
		return care.NotFound("reminder", id)
	}
	delete(s.reminders, id)
	for occID, occ := range s.occurrences {
		if occ.ReminderID == id {
			s.deleteOccurrence(occID)
		}
	}
	return nil
}

func (s *memState) deleteOccurrence(id care.OccurrenceID) {
	occ := s.occurrences[id]
	delete(s.occurrenceKey, occurrenceKey{ReminderID: occ.ReminderID, Unix: occ.ScheduledAt.Unix()})
	delete(s.occurrences, id)
	delete(s.acks, id)
}

func (s *memState) UpsertOccurrence(_ context.Context, reminderID care.ReminderID, scheduledAt time.Time) (care.Occurrence, bool, error) {
	at := care.NormalizeInstant(scheduledAt)
	k := occurrenceKey{ReminderID: reminderID, Unix: at.Unix()}
	if id, ok := s.occurrenceKey[k]; ok {
		return s.occurrences[id], false, nil
	}
	if _, ok := s.reminders[reminderID]; !ok {
		return care.Occurrence{}, false, care.NotFound("reminder", reminderID)
	}

	occ := care.Occurrence{
		ID:          care.OccurrenceID(uuid.NewString()),
		ReminderID:  reminderID,
		ScheduledAt: at,
		Status:      care.StatusPending,
		CreatedAt:   time.Now().UTC(),
	}
	s.occurrences[occ.ID] = occ
	s.occurrenceKey[k] = occ.ID
	return occ, true, nil
}

func (s *memState) GetOccurrence(_ context.Context, id care.OccurrenceID) (care.Occurrence, error) {
	occ, ok := s.occurrences[id]
	if !ok {
		return care.Occurrence{}, care.NotFound("occurrence", id)
	}
	return occ, nil
}

func (s *memState) ListOccurrences(_ context.Context, reminderID care.ReminderID, from, to time.Time) ([]care.Occurrence, error) {
	var result []care.Occurrence
	for _, occ := range s.occurrences {
		if occ.ReminderID != reminderID {
			continue
		}
		if occ.ScheduledAt.Before(from) || occ.ScheduledAt.After(to) {
			continue
		}
		result = append(result, occ)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ScheduledAt.Before(result[j].ScheduledAt)
	})
	return result, nil
}

func (s *memState) SetOccurrenceStatus(_ context.Context, id care.OccurrenceID, status care.OccurrenceStatus) error {
	occ, ok := s.occurrences[id]
	if !ok {
		return care.NotFound("occurrence", id)
	}
	occ.Status = status
	s.occurrences[id] = occ
	return nil
}

func (s *memState) PurgePending(_ context.Context, reminderID care.ReminderID) (int, error) {
	purged := 0
	for id, occ := range s.occurrences {
		if occ.ReminderID == reminderID && occ.Status == care.StatusPending {
			s.deleteOccurrence(id)
			purged++
		}
	}
	return purged, nil
}

func (s *memState) MarkMissed(_ context.Context, cutoff time.Time) (int, error) {
	marked := 0
	for id, occ := range s.occurrences {
		if occ.Status == care.StatusPending && occ.ScheduledAt.Before(cutoff) {
			occ.Status = care.StatusMissed
			s.occurrences[id] = occ
			marked++
		}
	}
	return marked, nil
}

func (s *memState) AppendAcknowledgement(_ context.Context, a care.Acknowledgement) error {
	if _, ok := s.occurrences[a.OccurrenceID]; !ok {
		return care.NotFound("occurrence", a.OccurrenceID)
	}
	acks := append(s.acks[a.OccurrenceID], a)
	sort.SliceStable(acks, func(i, j int) bool { return acks[i].At.Before(acks[j].At) })
	s.acks[a.OccurrenceID] = acks
	return nil
}

func (s *memState) ListAcknowledgements(_ context.Context, occurrenceID care.OccurrenceID) ([]care.Acknowledgement, error) {
	return append([]care.Acknowledgement{}, s.acks[occurrenceID]...), nil
}

func (s *memState) SaveAvailability(_ context.Context, a care.Availability, check care.AvailabilityCheck) error {
	if check != nil {
		var siblings []care.Availability
		for _, existing := range s.availability {
			if existing.ID != a.ID && existing.CaregiverID == a.CaregiverID && existing.Date.Equal(a.Date) {
				siblings = append(siblings, existing)
			}
		}
		sortAvailability(siblings)
		if err := check(siblings); err != nil {
			return err
		}
	}
	s.availability[a.ID] = a
	return nil
}

func (s *memState) GetAvailability(_ context.Context, id care.AvailabilityID) (care.Availability, error) {
	a, ok := s.availability[id]
	if !ok {
		return care.Availability{}, care.NotFound("availability", id)
	}
	return a, nil
}

func (s *memState) DeleteAvailability(_ context.Context, id care.AvailabilityID) error {
	if _, ok := s.availability[id]; !ok {
		return care.NotFound("availability", id)
	}
	delete(s.availability, id)
	return nil
}

func (s *memState) ListAvailability(_ context.Context, caregiverIDs []care.UserID, from, to care.Date) ([]care.Availability, error) {
	wanted := make(map[care.UserID]bool, len(caregiverIDs))
	for _, id := range caregiverIDs {
		wanted[id] = true
	}
	span := care.DateRange{Start: from, End: to}

	var result []care.Availability
	for _, a := range s.availability {
		if wanted[a.CaregiverID] && span.Contains(a.Date) {
			result = append(result, a)
		}
	}
	sortAvailability(result)
	return result, nil
}

func sortAvailability(as []care.Availability) {
	sort.Slice(as, func(i, j int) bool {
		if !as[i].Date.Equal(as[j].Date) {
			return as[i].Date.Before(as[j].Date)
		}
		if as[i].Start != as[j].Start {
			return as[i].Start < as[j].Start
		}
		return as[i].ID < as[j].ID
	})
}

func (s *memState) SaveSenior(_ context.Context, senior care.Senior) error {
	s.seniors[senior.ID] = senior
	return nil
}

func (s *memState) GetSenior(_ context.Context, id care.UserID) (care.Senior, error) {
	senior, ok := s.seniors[id]
	if !ok {
		return care.Senior{}, care.NotFound("senior", id)
	}
	return senior, nil
}

func (s *memState) ListSeniors(_ context.Context) ([]care.Senior, error) {
	result := make([]care.Senior, 0, len(s.seniors))
	for _, senior := range s.seniors {
		result = append(result, senior)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *memState) LinkCaregiver(_ context.Context, seniorID, caregiverID care.UserID) error {
	if _, ok := s.seniors[seniorID]; !ok {
		return care.NotFound("senior", seniorID)
	}
	s.links[link{SeniorID: seniorID, CaregiverID: caregiverID}] = true
	return nil
}

func (s *memState) UnlinkCaregiver(_ context.Context, seniorID, caregiverID care.UserID) error {
	delete(s.links, link{SeniorID: seniorID, CaregiverID: caregiverID})
	return nil
}

func (s *memState) CaregiverIDs(_ context.Context, seniorID care.UserID) ([]care.UserID, error) {
	var ids []care.UserID
	for l := range s.links {
		if l.SeniorID == seniorID {
			ids = append(ids, l.CaregiverID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *memState) SeniorIDs(_ context.Context, caregiverID care.UserID) ([]care.UserID, error) {
	var ids []care.UserID
	for l := range s.links {
		if l.CaregiverID == caregiverID {
			ids = append(ids, l.SeniorID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *memState) CreateNotification(_ context.Context, n care.Notification) error {
	s.notifications = append(s.notifications, n)
	return nil
}

func (s *memState) MarkNotificationRead(_ context.Context, id care.NotificationID) error {
	for i := range s.notifications {
		if s.notifications[i].ID == id {
			s.notifications[i].Read = true
			return nil
		}
	}
	return care.NotFound("notification", id)
}

func (s *memState) ListNotifications(_ context.Context, f care.NotificationFilter) ([]care.Notification, error) {
	var result []care.Notification
	for i := len(s.notifications) - 1; i >= 0; i-- {
		n := s.notifications[i]
		if f.UserID != "" && n.UserID != f.UserID {
			continue
		}
		if f.SeniorID != "" && n.Metadata.SeniorID != f.SeniorID {
			continue
		}
		if f.Type != "" && n.Type != f.Type {
			continue
		}
		if f.UnreadOnly && n.Read {
			continue
		}
		if !f.Since.IsZero() && n.CreatedAt.Before(f.Since) {
			continue
		}
		if f.GapDate != nil && (n.Type != care.NotificationCoverageGap || !n.Metadata.Covers(*f.GapDate)) {
			continue
		}
		result = append(result, n)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}
