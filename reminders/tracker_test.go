package reminders_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carecircle/care-engine/care"
	"github.com/carecircle/care-engine/reminders"
)

func TestNextStatus(t *testing.T) {
	for _, kind := range []care.AckKind{care.AckTaken, care.AckSkip, care.AckSnooze} {
		next, err := reminders.NextStatus(care.StatusPending, kind)
		require.NoError(t, err)
		assert.Equal(t, care.StatusAcknowledged, next, "kind %s", kind)
	}

	next, err := reminders.NextStatus(care.StatusPending, "forgot")
	assert.True(t, care.IsValidation(err))
	assert.Equal(t, care.StatusPending, next)
}

func TestAcknowledge_TakenClosesOccurrence(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, time.June, 1, 9, 0, 0, 0, time.UTC)
	f := newFixture(t, now)
	r := saveReminder(t, f.store, "FREQ=DAILY;BYHOUR=9", "UTC", now)
	occs, err := f.expander.Expand(ctx, r, time.Hour)
	require.NoError(t, err)
	require.Len(t, occs, 1)

	ack, err := f.tracker.Acknowledge(ctx, occs[0].ID, care.AckTaken, time.Time{})
	require.NoError(t, err)

	assert.Equal(t, care.AckTaken, ack.Kind)
	assert.True(t, ack.At.Equal(now))
	got, err := f.store.GetOccurrence(ctx, occs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, care.StatusAcknowledged, got.Status)

	log, err := f.store.ListAcknowledgements(ctx, occs[0].ID)
	require.NoError(t, err)
	assert.Len(t, log, 1)
}

func TestAcknowledge_UnknownOccurrence(t *testing.T) {
	f := newFixture(t, time.Now())

	_, err := f.tracker.Acknowledge(context.Background(), "nope", care.AckSkip, time.Time{})

	assert.True(t, care.IsNotFound(err))
}

func TestAcknowledge_InvalidKindWritesNothing(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, time.June, 1, 9, 0, 0, 0, time.UTC)
	f := newFixture(t, now)
	r := saveReminder(t, f.store, "FREQ=DAILY;BYHOUR=9", "UTC", now)
	occs, err := f.expander.Expand(ctx, r, time.Hour)
	require.NoError(t, err)

	_, err = f.tracker.Acknowledge(ctx, occs[0].ID, "later", now)

	assert.True(t, care.IsValidation(err))
	log, err := f.store.ListAcknowledgements(ctx, occs[0].ID)
	require.NoError(t, err)
	assert.Empty(t, log)
}

// =============================================================================
// SNOOZE
// =============================================================================

func TestSnooze_CreatesFollowUpOccurrence(t *testing.T) {
	// GIVEN: A pending occurrence at 09:00
	// WHEN: Snoozed for 15 minutes at 09:02
	// THEN: The original is acknowledged with a snooze entry, and a new
	//       pending occurrence of the same reminder exists at 09:17

	ctx := context.Background()
	nine := time.Date(2025, time.June, 1, 9, 0, 0, 0, time.UTC)
	f := newFixture(t, nine)
	r := saveReminder(t, f.store, "FREQ=DAILY;BYHOUR=9", "UTC", nine)
	occs, err := f.expander.Expand(ctx, r, time.Hour)
	require.NoError(t, err)
	original := occs[0]

	f.setNow(nine.Add(2 * time.Minute))
	result, err := f.tracker.Snooze(ctx, original.ID, 15)
	require.NoError(t, err)

	assert.Equal(t, r.ID, result.Occurrence.ReminderID)
	assert.Equal(t, care.StatusPending, result.Occurrence.Status)
	assert.True(t, result.Occurrence.ScheduledAt.Equal(nine.Add(17*time.Minute)))

	got, err := f.store.GetOccurrence(ctx, original.ID)
	require.NoError(t, err)
	assert.Equal(t, care.StatusAcknowledged, got.Status)

	log, err := f.store.ListAcknowledgements(ctx, original.ID)
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, care.AckSnooze, log[0].Kind)

	assert.Len(t, allOccurrences(t, f.store, r.ID), 2)
}

func TestAcknowledge_SnoozeUsesDefaultMinutes(t *testing.T) {
	ctx := context.Background()
	nine := time.Date(2025, time.June, 1, 9, 0, 0, 0, time.UTC)
	f := newFixture(t, nine)
	r := saveReminder(t, f.store, "FREQ=DAILY;BYHOUR=9", "UTC", nine)
	occs, err := f.expander.Expand(ctx, r, time.Hour)
	require.NoError(t, err)

	ack, err := f.tracker.Acknowledge(ctx, occs[0].ID, care.AckSnooze, nine)
	require.NoError(t, err)
	assert.Equal(t, care.AckSnooze, ack.Kind)

	all := allOccurrences(t, f.store, r.ID)
	require.Len(t, all, 2)
	assert.True(t, all[1].ScheduledAt.Equal(nine.Add(10*time.Minute)))
}

func TestSnooze_RepeatedSnoozeChains(t *testing.T) {
	ctx := context.Background()
	nine := time.Date(2025, time.June, 1, 9, 0, 0, 0, time.UTC)
	f := newFixture(t, nine)
	r := saveReminder(t, f.store, "FREQ=DAILY;BYHOUR=9", "UTC", nine)
	occs, err := f.expander.Expand(ctx, r, time.Hour)
	require.NoError(t, err)

	first, err := f.tracker.Snooze(ctx, occs[0].ID, 10)
	require.NoError(t, err)
	f.setNow(nine.Add(10 * time.Minute))
	second, err := f.tracker.Snooze(ctx, first.Occurrence.ID, 10)
	require.NoError(t, err)

	assert.True(t, second.Occurrence.ScheduledAt.Equal(nine.Add(20*time.Minute)))
	pending := 0
	for _, occ := range allOccurrences(t, f.store, r.ID) {
		if occ.Status == care.StatusPending {
			pending++
		}
	}
	assert.Equal(t, 1, pending)
}

func TestSnooze_FollowUpCollisions(t *testing.T) {
	// GIVEN: An hourly reminder with occurrences at 09:00 and 10:00
	// WHEN: The 09:00 occurrence is snoozed onto an instant that already has
	//       an occurrence (itself, a pending sibling or an acknowledged one)
	// THEN: The snooze is rejected on "minutes" and nothing is written

	nine := time.Date(2025, time.June, 1, 9, 0, 0, 0, time.UTC)

	cases := []struct {
		name      string
		at        time.Time
		minutes   int
		takeTenAM bool
	}{
		{name: "zero minutes at the scheduled instant", at: nine, minutes: 0},
		{name: "onto a pending sibling", at: nine.Add(50 * time.Minute), minutes: 10},
		{name: "onto an acknowledged sibling", at: nine.Add(50 * time.Minute), minutes: 10, takeTenAM: true},
		{name: "negative minutes back onto itself", at: nine.Add(5 * time.Minute), minutes: -5},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t, nine)
			r := saveReminder(t, f.store, "FREQ=HOURLY", "UTC", nine)
			occs, err := f.expander.Expand(ctx, r, time.Hour)
			require.NoError(t, err)
			require.Len(t, occs, 2)
			if tc.takeTenAM {
				_, err := f.tracker.Acknowledge(ctx, occs[1].ID, care.AckTaken, nine.Add(45*time.Minute))
				require.NoError(t, err)
			}

			f.setNow(tc.at)
			_, err = f.tracker.Snooze(ctx, occs[0].ID, tc.minutes)

			var verr *care.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, "minutes", verr.Field)

			got, err := f.store.GetOccurrence(ctx, occs[0].ID)
			require.NoError(t, err)
			assert.Equal(t, care.StatusPending, got.Status)
			log, err := f.store.ListAcknowledgements(ctx, occs[0].ID)
			require.NoError(t, err)
			assert.Empty(t, log)
			assert.Len(t, allOccurrences(t, f.store, r.ID), 2)
		})
	}
}

func TestSnooze_UnboundedMinutes(t *testing.T) {
	// GIVEN: A pending occurrence at 09:00, snoozed at 09:02
	// THEN: Zero and negative delays are accepted when the follow-up lands
	//       on a free instant

	cases := map[string]struct {
		minutes int
		want    time.Time
	}{
		"zero":     {minutes: 0, want: time.Date(2025, time.June, 1, 9, 2, 0, 0, time.UTC)},
		"negative": {minutes: -1, want: time.Date(2025, time.June, 1, 9, 1, 0, 0, time.UTC)},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			nine := time.Date(2025, time.June, 1, 9, 0, 0, 0, time.UTC)
			f := newFixture(t, nine)
			r := saveReminder(t, f.store, "FREQ=DAILY;BYHOUR=9", "UTC", nine)
			occs, err := f.expander.Expand(ctx, r, time.Hour)
			require.NoError(t, err)

			f.setNow(nine.Add(2 * time.Minute))
			result, err := f.tracker.Snooze(ctx, occs[0].ID, tc.minutes)
			require.NoError(t, err)

			assert.NotEqual(t, occs[0].ID, result.Occurrence.ID)
			assert.Equal(t, care.StatusPending, result.Occurrence.Status)
			assert.True(t, result.Occurrence.ScheduledAt.Equal(tc.want))
			assert.Equal(t, occs[0].ID, result.Original.ID)
			assert.Equal(t, care.StatusAcknowledged, result.Original.Status)
			assert.Len(t, allOccurrences(t, f.store, r.ID), 2)
		})
	}
}
