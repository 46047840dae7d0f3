package reconciler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/center-ops-api/internal/models"
	"github.com/noah-isme/center-ops-api/internal/store"
	"github.com/noah-isme/center-ops-api/pkg/config"
)

func newStudentReconciler(mem *store.Memory, exec *store.Executor) *StudentReconciler {
	return NewStudentReconciler(mem, exec,
		config.StatusConfig{Aliases: map[string]string{"studying": "active"}},
		config.BillingConfig{SessionRate: 150000},
		nil)
}

func TestStudentCreateRecomputesRoster(t *testing.T) {
	mem, exec := newHarness()
	r := newStudentReconciler(mem, exec)
	ctx := context.Background()

	require.NoError(t, mem.Set(ctx, models.CollectionClasses, "c1", models.Class{ID: "c1"}))
	students := []models.Student{
		{ID: "s1", ClassID: "c1", Status: models.StudentStatusActive},
		{ID: "s2", ClassID: "c1", Status: "studying"},
		{ID: "s3", ClassID: "c1", Status: models.StudentStatusTrial},
		{ID: "s4", ClassID: "c1", Status: models.StudentStatusWithdrawn},
	}
	for _, s := range students {
		require.NoError(t, mem.Set(ctx, models.CollectionStudents, s.ID, s))
	}

	err := r.Handle(ctx, store.Event{
		Collection: models.CollectionStudents,
		Kind:       store.ChangeCreate,
		DocID:      "s4",
		After:      mustJSON(t, students[3]),
	})
	require.NoError(t, err)

	counts := mustGet[models.Class](t, mem, models.CollectionClasses, "c1").StudentsCount
	assert.Equal(t, 4, counts.Total)
	assert.Equal(t, 2, counts.Active)
	assert.Equal(t, 1, counts.Trial)
	assert.Equal(t, 0, counts.FeeDebt)
}

func TestStudentClassTransferRecomputesBothRosters(t *testing.T) {
	mem, exec := newHarness()
	r := newStudentReconciler(mem, exec)
	ctx := context.Background()

	require.NoError(t, mem.Set(ctx, models.CollectionClasses, "c1", models.Class{ID: "c1"}))
	require.NoError(t, mem.Set(ctx, models.CollectionClasses, "c2", models.Class{ID: "c2"}))

	prev := models.Student{ID: "s1", ClassID: "c1", Status: models.StudentStatusActive}
	next := prev
	next.ClassID = "c2"
	require.NoError(t, mem.Set(ctx, models.CollectionStudents, "s1", next))

	err := r.Handle(ctx, store.Event{
		Collection: models.CollectionStudents,
		Kind:       store.ChangeUpdate,
		DocID:      "s1",
		Before:     mustJSON(t, prev),
		After:      mustJSON(t, next),
	})
	require.NoError(t, err)

	assert.Equal(t, 0, mustGet[models.Class](t, mem, models.CollectionClasses, "c1").StudentsCount.Total)
	assert.Equal(t, 1, mustGet[models.Class](t, mem, models.CollectionClasses, "c2").StudentsCount.Total)
}

func TestStudentRenameCascadesToAttendanceHistory(t *testing.T) {
	mem, exec := newHarness()
	r := newStudentReconciler(mem, exec)
	ctx := context.Background()

	prev := models.Student{ID: "s1", FullName: "Nguyen Van A", Status: models.StudentStatusActive}
	next := prev
	next.FullName = "Nguyen Van B"
	require.NoError(t, mem.Set(ctx, models.CollectionStudents, "s1", next))
	require.NoError(t, mem.Set(ctx, models.CollectionAttendanceHistory, "ah1",
		models.AttendanceHistory{ID: "ah1", StudentID: "s1", StudentName: "Nguyen Van A"}))

	err := r.Handle(ctx, store.Event{
		Collection: models.CollectionStudents,
		Kind:       store.ChangeUpdate,
		DocID:      "s1",
		Before:     mustJSON(t, prev),
		After:      mustJSON(t, next),
	})
	require.NoError(t, err)

	got := mustGet[models.AttendanceHistory](t, mem, models.CollectionAttendanceHistory, "ah1")
	assert.Equal(t, "Nguyen Van B", got.StudentName)
}

func TestWithdrawalWithOverageDerivesBadDebt(t *testing.T) {
	mem, exec := newHarness()
	r := newStudentReconciler(mem, exec)
	ctx := context.Background()

	prev := models.Student{ID: "s1", Status: models.StudentStatusActive, RegisteredSessions: 10, AttendedSessions: 12}
	next := prev
	next.Status = models.StudentStatusWithdrawn
	require.NoError(t, mem.Set(ctx, models.CollectionStudents, "s1", next))

	err := r.Handle(ctx, store.Event{
		Collection: models.CollectionStudents,
		Kind:       store.ChangeUpdate,
		DocID:      "s1",
		Before:     mustJSON(t, prev),
		After:      mustJSON(t, next),
	})
	require.NoError(t, err)

	student := mustGet[models.Student](t, mem, models.CollectionStudents, "s1")
	assert.True(t, student.BadDebt)
	assert.Equal(t, 2, student.BadDebtSessions)
	assert.Equal(t, int64(300000), student.BadDebtAmount)

	settlement := mustGet[models.Settlement](t, mem, models.CollectionSettlements, "s1:bad-debt")
	assert.Equal(t, models.SettlementTypeBadDebt, settlement.Type)
	assert.Equal(t, 2, settlement.Sessions)
	assert.Equal(t, int64(300000), settlement.Amount)
}

func TestWithdrawalWithoutOverageLeavesStudentAlone(t *testing.T) {
	mem, exec := newHarness()
	r := newStudentReconciler(mem, exec)
	ctx := context.Background()

	prev := models.Student{ID: "s1", Status: models.StudentStatusActive, RegisteredSessions: 10, AttendedSessions: 8}
	next := prev
	next.Status = models.StudentStatusWithdrawn
	require.NoError(t, mem.Set(ctx, models.CollectionStudents, "s1", next))

	err := r.Handle(ctx, store.Event{
		Collection: models.CollectionStudents,
		Kind:       store.ChangeUpdate,
		DocID:      "s1",
		Before:     mustJSON(t, prev),
		After:      mustJSON(t, next),
	})
	require.NoError(t, err)

	student := mustGet[models.Student](t, mem, models.CollectionStudents, "s1")
	assert.False(t, student.BadDebt)
	_, err = mem.Get(ctx, models.CollectionSettlements, "s1:bad-debt")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestWithdrawalWithBadDebtSettlementIsTerminal(t *testing.T) {
	mem, exec := newHarness()
	r := newStudentReconciler(mem, exec)
	ctx := context.Background()

	require.NoError(t, mem.Set(ctx, models.CollectionSettlements, "s1:bad-debt",
		models.Settlement{ID: "s1:bad-debt", StudentID: "s1", Type: models.SettlementTypeBadDebt, Sessions: 3}))

	prev := models.Student{ID: "s1", Status: models.StudentStatusActive, RegisteredSessions: 10, AttendedSessions: 12}
	next := prev
	next.Status = models.StudentStatusWithdrawn
	require.NoError(t, mem.Set(ctx, models.CollectionStudents, "s1", next))

	err := r.Handle(ctx, store.Event{
		Collection: models.CollectionStudents,
		Kind:       store.ChangeUpdate,
		DocID:      "s1",
		Before:     mustJSON(t, prev),
		After:      mustJSON(t, next),
	})
	require.NoError(t, err)

	// The recorded settlement stands; the student is not re-flagged.
	student := mustGet[models.Student](t, mem, models.CollectionStudents, "s1")
	assert.False(t, student.BadDebt)
	settlement := mustGet[models.Settlement](t, mem, models.CollectionSettlements, "s1:bad-debt")
	assert.Equal(t, 3, settlement.Sessions)
}

func TestWithdrawalWithPaidSettlementClearsBadDebt(t *testing.T) {
	mem, exec := newHarness()
	r := newStudentReconciler(mem, exec)
	ctx := context.Background()

	require.NoError(t, mem.Set(ctx, models.CollectionSettlements, "set-1",
		models.Settlement{ID: "set-1", StudentID: "s1", Type: models.SettlementTypePaid}))

	prev := models.Student{ID: "s1", Status: models.StudentStatusActive, RegisteredSessions: 10, AttendedSessions: 12, BadDebt: true, BadDebtSessions: 2, BadDebtAmount: 300000}
	next := prev
	next.Status = models.StudentStatusWithdrawn
	require.NoError(t, mem.Set(ctx, models.CollectionStudents, "s1", next))

	err := r.Handle(ctx, store.Event{
		Collection: models.CollectionStudents,
		Kind:       store.ChangeUpdate,
		DocID:      "s1",
		Before:     mustJSON(t, prev),
		After:      mustJSON(t, next),
	})
	require.NoError(t, err)

	student := mustGet[models.Student](t, mem, models.CollectionStudents, "s1")
	assert.False(t, student.BadDebt)
	assert.Equal(t, 0, student.BadDebtSessions)
	assert.Equal(t, int64(0), student.BadDebtAmount)
	assert.Equal(t, "cleared by settlement set-1", student.BadDebtNote)
}

func TestReturnFromWithdrawalClearsBadDebt(t *testing.T) {
	mem, exec := newHarness()
	r := newStudentReconciler(mem, exec)
	ctx := context.Background()

	prev := models.Student{ID: "s1", Status: models.StudentStatusWithdrawn, BadDebt: true, BadDebtSessions: 2, BadDebtAmount: 300000}
	next := prev
	next.Status = models.StudentStatusActive
	require.NoError(t, mem.Set(ctx, models.CollectionStudents, "s1", next))

	err := r.Handle(ctx, store.Event{
		Collection: models.CollectionStudents,
		Kind:       store.ChangeUpdate,
		DocID:      "s1",
		Before:     mustJSON(t, prev),
		After:      mustJSON(t, next),
	})
	require.NoError(t, err)

	student := mustGet[models.Student](t, mem, models.CollectionStudents, "s1")
	assert.False(t, student.BadDebt)
	assert.Equal(t, "returned", student.BadDebtNote)
}

func TestStudentDeleteOrphansAttendanceHistory(t *testing.T) {
	mem, exec := newHarness()
	r := newStudentReconciler(mem, exec)
	ctx := context.Background()

	prev := models.Student{ID: "s1", Status: models.StudentStatusActive}
	require.NoError(t, mem.Set(ctx, models.CollectionAttendanceHistory, "ah1",
		models.AttendanceHistory{ID: "ah1", StudentID: "s1"}))

	err := r.Handle(ctx, store.Event{
		Collection: models.CollectionStudents,
		Kind:       store.ChangeDelete,
		DocID:      "s1",
		Before:     mustJSON(t, prev),
	})
	require.NoError(t, err)

	assert.True(t, mustGet[models.AttendanceHistory](t, mem, models.CollectionAttendanceHistory, "ah1").Orphaned)
}
