package coverage_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carecircle/care-engine/care"
	"github.com/carecircle/care-engine/coverage"
)

func gapNotifications(t *testing.T, st care.Store, user care.UserID) []care.Notification {
	t.Helper()
	ns, err := st.ListNotifications(context.Background(), care.NotificationFilter{
		UserID: user,
		Type:   care.NotificationCoverageGap,
	})
	require.NoError(t, err)
	return ns
}

// =============================================================================
// NOTIFY GAPS
// =============================================================================

func TestNotifyGaps_OnePerCaregiverWithMetadata(t *testing.T) {
	ctx := context.Background()
	c := newCircle(t, now, "cg-x", "cg-y")
	gaps := []care.Date{date("2025-11-15"), date("2025-11-17")}

	n, err := c.reconciler.NotifyGaps(ctx, c.senior, gaps)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, cg := range []care.UserID{"cg-x", "cg-y"} {
		ns := gapNotifications(t, c.store, cg)
		require.Len(t, ns, 1)
		assert.False(t, ns[0].Read)
		assert.Equal(t, c.senior.ID, ns[0].Metadata.SeniorID)
		assert.Equal(t, "Rose", ns[0].Metadata.SeniorName)
		assert.Equal(t, gaps, ns[0].Metadata.GapDates)
		assert.Equal(t, 2, ns[0].Metadata.GapCount)
		assert.Contains(t, ns[0].Message, "Sat Nov 15, Mon Nov 17")
	}
}

func TestNotifyGaps_SuppressedWithinCooldown(t *testing.T) {
	// GIVEN: An unread gap notification for (cg-x, senior) created 2h ago
	// WHEN: A new detection reports overlapping and new dates
	// THEN: Nothing new is created; after 24h a second notification is

	ctx := context.Background()
	c := newCircle(t, now.Add(-2*time.Hour), "cg-x")
	_, err := c.reconciler.NotifyGaps(ctx, c.senior, []care.Date{date("2025-11-17"), date("2025-11-18")})
	require.NoError(t, err)

	c.reconciler.Clock = care.FixedClock{At: now}
	n, err := c.reconciler.NotifyGaps(ctx, c.senior, []care.Date{date("2025-11-18"), date("2025-11-19")})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, gapNotifications(t, c.store, "cg-x"), 1)

	c.reconciler.Clock = care.FixedClock{At: now.Add(23 * time.Hour)}
	n, err = c.reconciler.NotifyGaps(ctx, c.senior, []care.Date{date("2025-11-19")})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, gapNotifications(t, c.store, "cg-x"), 2)
}

func TestNotifyGaps_ReadNotificationDoesNotSuppress(t *testing.T) {
	ctx := context.Background()
	c := newCircle(t, now, "cg-x")
	_, err := c.reconciler.NotifyGaps(ctx, c.senior, []care.Date{date("2025-11-17")})
	require.NoError(t, err)
	first := gapNotifications(t, c.store, "cg-x")[0]
	require.NoError(t, c.store.MarkNotificationRead(ctx, first.ID))

	n, err := c.reconciler.NotifyGaps(ctx, c.senior, []care.Date{date("2025-11-17")})

	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNotifyGaps_NoGapsNoWrites(t *testing.T) {
	c := newCircle(t, now, "cg-x")

	n, err := c.reconciler.NotifyGaps(context.Background(), c.senior, nil)

	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, gapNotifications(t, c.store, "cg-x"))
}

// =============================================================================
// GAP FILLED
// =============================================================================

func TestNotifyGapFilled_ClosesMatchingAlertsOnly(t *testing.T) {
	// GIVEN: Two unread gap alerts for cg-x; only one names 2025-11-17
	// WHEN: 2025-11-17 is filled
	// THEN: That alert is read, the other stays unread, and exactly one
	//       coverage_filled notification goes to each caregiver

	ctx := context.Background()
	c := newCircle(t, now.Add(-48*time.Hour), "cg-x", "cg-y")
	_, err := c.reconciler.NotifyGaps(ctx, c.senior, []care.Date{date("2025-11-17"), date("2025-11-18")})
	require.NoError(t, err)
	c.reconciler.Clock = care.FixedClock{At: now.Add(-23 * time.Hour)}
	_, err = c.reconciler.NotifyGaps(ctx, c.senior, []care.Date{date("2025-11-19")})
	require.NoError(t, err)

	open, err := c.reconciler.HasOpenGap(ctx, c.senior, date("2025-11-17"))
	require.NoError(t, err)
	assert.True(t, open)

	c.reconciler.Clock = care.FixedClock{At: now}
	n, err := c.reconciler.NotifyGapFilled(ctx, c.senior, date("2025-11-17"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, cg := range []care.UserID{"cg-x", "cg-y"} {
		alerts := gapNotifications(t, c.store, cg)
		require.Len(t, alerts, 2)
		for _, a := range alerts {
			assert.Equal(t, a.Metadata.Covers(date("2025-11-17")), a.Read, "alert %v", a.Metadata.GapDates)
		}

		filled, err := c.store.ListNotifications(ctx, care.NotificationFilter{UserID: cg, Type: care.NotificationCoverageFilled})
		require.NoError(t, err)
		require.Len(t, filled, 1)
		require.NotNil(t, filled[0].Metadata.Date)
		assert.Equal(t, date("2025-11-17"), *filled[0].Metadata.Date)
	}

	open, err = c.reconciler.HasOpenGap(ctx, c.senior, date("2025-11-17"))
	require.NoError(t, err)
	assert.False(t, open)
}

// =============================================================================
// SWEEP
// =============================================================================

// failingCircle fails caregiver and senior lookups for one senior.
type failingCircle struct {
	care.Store
	bad care.UserID
}

func (f failingCircle) CaregiverIDs(ctx context.Context, seniorID care.UserID) ([]care.UserID, error) {
	if seniorID == f.bad {
		return nil, errors.New("connection reset")
	}
	return f.Store.CaregiverIDs(ctx, seniorID)
}

func (f failingCircle) GetSenior(ctx context.Context, id care.UserID) (care.Senior, error) {
	if id == f.bad {
		return care.Senior{}, errors.New("connection reset")
	}
	return f.Store.GetSenior(ctx, id)
}

func TestSweeper_IsolatesFailingSenior(t *testing.T) {
	ctx := context.Background()
	c := newCircle(t, now, "cg-x")
	require.NoError(t, c.store.SaveSenior(ctx, care.Senior{ID: "senior-0", Name: "Broken"}))
	require.NoError(t, c.store.LinkCaregiver(ctx, "senior-0", "cg-x"))
	require.NoError(t, c.store.SaveSenior(ctx, care.Senior{ID: "senior-2", Name: "Alone"}))

	st := failingCircle{Store: c.store, bad: "senior-0"}
	clock := care.FixedClock{At: now}
	index := coverage.NewIndex(st, clock, time.UTC, nil)
	sweeper := coverage.NewSweeper(st,
		coverage.NewDetector(st, index, clock, time.UTC),
		coverage.NewReconciler(st, clock, nil, 0),
		nil, 7, true)

	report, err := sweeper.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Seniors)
	assert.Equal(t, 7, report.Gaps)
	assert.Equal(t, 1, report.Notified)
	assert.Contains(t, report.Failed, care.UserID("senior-0"))

	ns := gapNotifications(t, c.store, "cg-x")
	require.Len(t, ns, 1)
	assert.Equal(t, care.UserID("senior-1"), ns[0].Metadata.SeniorID)
}

func TestSweeper_NotificationsDisabled(t *testing.T) {
	ctx := context.Background()
	c := newCircle(t, now, "cg-x")
	sweeper := coverage.NewSweeper(c.store, c.detector, c.reconciler, nil, 3, false)

	report, err := sweeper.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, report.Gaps)
	assert.Zero(t, report.Notified)
	assert.Empty(t, gapNotifications(t, c.store, "cg-x"))
}

func TestSweeper_ReconcileFilledAfterAdd(t *testing.T) {
	ctx := context.Background()
	c := newCircle(t, now, "cg-x")
	sweeper := coverage.NewSweeper(c.store, c.detector, c.reconciler, nil, 7, true)
	_, err := sweeper.Run(ctx)
	require.NoError(t, err)

	_, err = c.index.Add(ctx, slot("cg-x", "2025-11-16", "09:00", "12:00"))
	require.NoError(t, err)
	n, err := sweeper.ReconcileFilled(ctx, "cg-x", date("2025-11-16"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = sweeper.ReconcileFilled(ctx, "cg-x", date("2025-11-16"))
	require.NoError(t, err)
	assert.Zero(t, n, "no open alert names the date any more")
}

func TestSweeper_ReconcileFilledSkipsFailingSenior(t *testing.T) {
	// GIVEN: cg-x cares for senior-0 (whose lookups fail) and senior-1,
	//        which holds an open gap alert for 2025-11-16
	// WHEN: cg-x becomes available that day
	// THEN: senior-1 still gets its gap-filled round and the failure is
	//       reported for senior-0

	ctx := context.Background()
	c := newCircle(t, now, "cg-x")
	require.NoError(t, c.store.SaveSenior(ctx, care.Senior{ID: "senior-0", Name: "Broken"}))
	require.NoError(t, c.store.LinkCaregiver(ctx, "senior-0", "cg-x"))

	_, err := coverage.NewSweeper(c.store, c.detector, c.reconciler, nil, 7, true).Run(ctx)
	require.NoError(t, err)

	st := failingCircle{Store: c.store, bad: "senior-0"}
	clock := care.FixedClock{At: now}
	sweeper := coverage.NewSweeper(st,
		coverage.NewDetector(st, c.index, clock, time.UTC),
		coverage.NewReconciler(st, clock, nil, 0),
		nil, 7, true)

	_, err = c.index.Add(ctx, slot("cg-x", "2025-11-16", "09:00", "12:00"))
	require.NoError(t, err)
	n, err := sweeper.ReconcileFilled(ctx, "cg-x", date("2025-11-16"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "senior-0")
	assert.Equal(t, 1, n)

	filled, err := c.store.ListNotifications(ctx, care.NotificationFilter{UserID: "cg-x", Type: care.NotificationCoverageFilled})
	require.NoError(t, err)
	require.Len(t, filled, 1)
	assert.Equal(t, care.UserID("senior-1"), filled[0].Metadata.SeniorID)
}
