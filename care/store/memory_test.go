package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carecircle/care-engine/care"
	"github.com/carecircle/care-engine/care/store"
)

var at = time.Date(2025, time.June, 1, 9, 0, 0, 0, time.UTC)

func seedReminder(t *testing.T, mem *store.Memory) care.Reminder {
	t.Helper()
	r := care.Reminder{
		ID:             "rem-1",
		UserID:         "senior-1",
		Title:          "Evening pill",
		Category:       care.CategoryMedication,
		RecurrenceRule: "FREQ=DAILY;BYHOUR=21",
		Timezone:       "UTC",
		CreatedAt:      at,
		UpdatedAt:      at,
	}
	require.NoError(t, mem.SaveReminder(context.Background(), r))
	return r
}

func TestMemory_WithTxCommits(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	r := seedReminder(t, mem)

	var occ care.Occurrence
	err := mem.WithTx(ctx, func(tx care.Store) error {
		var err error
		occ, _, err = tx.UpsertOccurrence(ctx, r.ID, at)
		if err != nil {
			return err
		}
		// Nested transactions run inline on the same view.
		return tx.WithTx(ctx, func(inner care.Store) error {
			return inner.SetOccurrenceStatus(ctx, occ.ID, care.StatusAcknowledged)
		})
	})
	require.NoError(t, err)

	got, err := mem.GetOccurrence(ctx, occ.ID)
	require.NoError(t, err)
	assert.Equal(t, care.StatusAcknowledged, got.Status)
}

func TestMemory_WithTxRollsBack(t *testing.T) {
	// GIVEN: A transaction that writes an occurrence and an acknowledgement
	// WHEN: fn returns an error
	// THEN: Neither write is visible afterwards

	ctx := context.Background()
	mem := store.NewMemory()
	r := seedReminder(t, mem)

	var occ care.Occurrence
	err := mem.WithTx(ctx, func(tx care.Store) error {
		var err error
		occ, _, err = tx.UpsertOccurrence(ctx, r.ID, at)
		if err != nil {
			return err
		}
		if err := tx.AppendAcknowledgement(ctx, care.Acknowledgement{
			ID: "ack-1", OccurrenceID: occ.ID, Kind: care.AckTaken, At: at,
		}); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.EqualError(t, err, "abort")

	_, err = mem.GetOccurrence(ctx, occ.ID)
	assert.True(t, care.IsNotFound(err))
	log, err := mem.ListAcknowledgements(ctx, occ.ID)
	require.NoError(t, err)
	assert.Empty(t, log)

	// The unique key was rolled back with the row.
	again, created, err := mem.UpsertOccurrence(ctx, r.ID, at)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, care.StatusPending, again.Status)
}

func TestMemory_NotificationsNewestFirst(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()

	for i, id := range []care.NotificationID{"n-1", "n-2", "n-3"} {
		created := at
		if i == 0 {
			created = at.Add(-time.Hour)
		}
		require.NoError(t, mem.CreateNotification(ctx, care.Notification{
			ID:        id,
			UserID:    "cg-1",
			Type:      care.NotificationCoverageFilled,
			CreatedAt: created,
		}))
	}

	ns, err := mem.ListNotifications(ctx, care.NotificationFilter{UserID: "cg-1"})
	require.NoError(t, err)

	require.Len(t, ns, 3)
	assert.Equal(t, []care.NotificationID{"n-3", "n-2", "n-1"},
		[]care.NotificationID{ns[0].ID, ns[1].ID, ns[2].ID})
}
