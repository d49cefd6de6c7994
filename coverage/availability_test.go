package coverage_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carecircle/care-engine/care"
	"github.com/carecircle/care-engine/care/store"
	"github.com/carecircle/care-engine/coverage"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var now = time.Date(2025, time.November, 14, 10, 0, 0, 0, time.UTC)

func date(s string) care.Date {
	d, err := care.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func tod(s string) care.TimeOfDay {
	t, err := care.ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

func slot(caregiver care.UserID, day, start, end string) coverage.AvailabilityInput {
	return coverage.AvailabilityInput{
		CaregiverID: caregiver,
		Date:        date(day),
		Start:       tod(start),
		End:         tod(end),
	}
}

func newTestIndex() (*coverage.Index, *store.Memory) {
	mem := store.NewMemory()
	return coverage.NewIndex(mem, care.FixedClock{At: now}, time.UTC, nil), mem
}

func requireValidation(t *testing.T, err error, field, message string) {
	t.Helper()
	var verr *care.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, field, verr.Field)
	assert.Equal(t, message, verr.Message)
}

// =============================================================================
// OVERLAP
// =============================================================================

func TestIndex_OverlapRejectedInEitherOrder(t *testing.T) {
	// GIVEN: A=[09:00,12:00) and B=[10:00,14:00) for the same caregiver and date
	// THEN: Whichever is created second fails with the generic overlap message

	a := slot("cg-1", "2025-11-20", "09:00", "12:00")
	b := slot("cg-1", "2025-11-20", "10:00", "14:00")

	for name, order := range map[string][2]coverage.AvailabilityInput{
		"A then B": {a, b},
		"B then A": {b, a},
	} {
		t.Run(name, func(t *testing.T) {
			idx, _ := newTestIndex()
			_, err := idx.Add(context.Background(), order[0])
			require.NoError(t, err)

			_, err = idx.Add(context.Background(), order[1])
			requireValidation(t, err, "base", care.MsgOverlap)
			assert.Equal(t, "overlaps with existing availability", err.Error())
		})
	}
}

func TestIndex_TouchingIntervalsAllowed(t *testing.T) {
	idx, _ := newTestIndex()
	ctx := context.Background()

	_, err := idx.Add(ctx, slot("cg-1", "2025-11-20", "09:00", "12:00"))
	require.NoError(t, err)
	_, err = idx.Add(ctx, slot("cg-1", "2025-11-20", "12:00", "15:00"))
	require.NoError(t, err)

	list, err := idx.List(ctx, "cg-1", date("2025-11-20"), date("2025-11-20"))
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, tod("09:00"), list[0].Start)
	assert.Equal(t, tod("12:00"), list[1].Start)
}

func TestIndex_OverlapIsPerCaregiverAndDate(t *testing.T) {
	idx, _ := newTestIndex()
	ctx := context.Background()

	_, err := idx.Add(ctx, slot("cg-1", "2025-11-20", "09:00", "12:00"))
	require.NoError(t, err)
	_, err = idx.Add(ctx, slot("cg-2", "2025-11-20", "09:00", "12:00"))
	assert.NoError(t, err, "different caregiver")
	_, err = idx.Add(ctx, slot("cg-1", "2025-11-21", "09:00", "12:00"))
	assert.NoError(t, err, "different date")
}

// =============================================================================
// VALIDATION ORDER
// =============================================================================

func TestIndex_EndMustFollowStart(t *testing.T) {
	idx, _ := newTestIndex()

	_, err := idx.Add(context.Background(), slot("cg-1", "2025-11-20", "12:00", "12:00"))

	requireValidation(t, err, "end_time", care.MsgEndBeforeStart)
}

func TestIndex_EndCheckedBeforePastDate(t *testing.T) {
	idx, _ := newTestIndex()

	_, err := idx.Add(context.Background(), slot("cg-1", "2025-11-01", "12:00", "09:00"))

	requireValidation(t, err, "end_time", care.MsgEndBeforeStart)
}

func TestIndex_PastDateRejected(t *testing.T) {
	idx, _ := newTestIndex()

	_, err := idx.Add(context.Background(), slot("cg-1", "2025-11-13", "09:00", "12:00"))
	requireValidation(t, err, "date", care.MsgDateInPast)

	_, err = idx.Add(context.Background(), slot("cg-1", "2025-11-14", "09:00", "12:00"))
	assert.NoError(t, err, "today is allowed")
}

func TestIndex_PastCheckedBeforeOverlap(t *testing.T) {
	idx, mem := newTestIndex()
	ctx := context.Background()
	require.NoError(t, mem.SaveAvailability(ctx, care.Availability{
		ID: "old", CaregiverID: "cg-1", Date: date("2025-11-10"), Start: tod("09:00"), End: tod("12:00"),
	}, nil))

	_, err := idx.Add(ctx, slot("cg-1", "2025-11-10", "10:00", "11:00"))

	requireValidation(t, err, "date", care.MsgDateInPast)
}

// =============================================================================
// UPDATE / REMOVE
// =============================================================================

func TestIndex_UpdateExcludesSelfFromOverlap(t *testing.T) {
	idx, _ := newTestIndex()
	ctx := context.Background()
	a, err := idx.Add(ctx, slot("cg-1", "2025-11-20", "09:00", "12:00"))
	require.NoError(t, err)

	updated, err := idx.Update(ctx, a.ID, slot("cg-1", "2025-11-20", "10:00", "13:00"))
	require.NoError(t, err)

	assert.Equal(t, a.ID, updated.ID)
	assert.Equal(t, tod("13:00"), updated.End)
}

func TestIndex_UpdateIntoNeighbourFails(t *testing.T) {
	idx, _ := newTestIndex()
	ctx := context.Background()
	_, err := idx.Add(ctx, slot("cg-1", "2025-11-20", "09:00", "12:00"))
	require.NoError(t, err)
	b, err := idx.Add(ctx, slot("cg-1", "2025-11-20", "13:00", "15:00"))
	require.NoError(t, err)

	_, err = idx.Update(ctx, b.ID, slot("cg-1", "2025-11-20", "11:00", "15:00"))

	requireValidation(t, err, "base", care.MsgOverlap)
	kept, err := idx.List(ctx, "cg-1", date("2025-11-20"), date("2025-11-20"))
	require.NoError(t, err)
	assert.Equal(t, tod("13:00"), kept[1].Start)
}

func TestIndex_UpdateKeepsPastDateWhenUnchanged(t *testing.T) {
	idx, mem := newTestIndex()
	ctx := context.Background()
	require.NoError(t, mem.SaveAvailability(ctx, care.Availability{
		ID: "old", CaregiverID: "cg-1", Date: date("2025-11-10"), Start: tod("09:00"), End: tod("12:00"),
	}, nil))

	_, err := idx.Update(ctx, "old", slot("cg-1", "2025-11-10", "09:00", "11:00"))
	assert.NoError(t, err)

	_, err = idx.Update(ctx, "old", slot("cg-1", "2025-11-09", "09:00", "11:00"))
	requireValidation(t, err, "date", care.MsgDateInPast)
}

func TestIndex_RemoveAndHasCoverage(t *testing.T) {
	idx, _ := newTestIndex()
	ctx := context.Background()
	a, err := idx.Add(ctx, slot("cg-1", "2025-11-20", "09:00", "09:05"))
	require.NoError(t, err)

	covered, err := idx.HasCoverage(ctx, []care.UserID{"cg-2", "cg-1"}, date("2025-11-20"))
	require.NoError(t, err)
	assert.True(t, covered, "a five-minute slot covers the whole date")

	removed, err := idx.Remove(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, removed.ID)

	covered, err = idx.HasCoverage(ctx, []care.UserID{"cg-1"}, date("2025-11-20"))
	require.NoError(t, err)
	assert.False(t, covered)

	_, err = idx.Remove(ctx, a.ID)
	assert.True(t, care.IsNotFound(err))
}

func TestIndex_PastDateFollowsLinkedSeniorZone(t *testing.T) {
	// GIVEN: 2025-11-14 02:00 UTC, still the 13th in Los Angeles, and cg-la
	//        linked to a Los Angeles senior
	// WHEN: cg-la and an unlinked caregiver both offer the 13th
	// THEN: cg-la is accepted, matching what gap detection counts as
	//       upcoming; the unlinked caregiver is judged in the default zone

	ctx := context.Background()
	early := time.Date(2025, time.November, 14, 2, 0, 0, 0, time.UTC)
	mem := store.NewMemory()
	require.NoError(t, mem.SaveSenior(ctx, care.Senior{ID: "senior-la", Name: "Ada", Timezone: "America/Los_Angeles"}))
	require.NoError(t, mem.LinkCaregiver(ctx, "senior-la", "cg-la"))
	clock := care.FixedClock{At: early}
	index := coverage.NewIndex(mem, clock, time.UTC, nil)

	_, err := index.Add(ctx, slot("cg-la", "2025-11-13", "17:00", "20:00"))
	require.NoError(t, err)

	_, err = index.Add(ctx, slot("cg-other", "2025-11-13", "17:00", "20:00"))
	requireValidation(t, err, "date", care.MsgDateInPast)

	senior, err := mem.GetSenior(ctx, "senior-la")
	require.NoError(t, err)
	gaps, err := coverage.NewDetector(mem, index, clock, time.UTC).FindGaps(ctx, senior, date("2025-11-13"), date("2025-11-14"))
	require.NoError(t, err)
	assert.Equal(t, []care.Date{date("2025-11-14")}, gaps)
}
