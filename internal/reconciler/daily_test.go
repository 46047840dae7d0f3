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

func TestDailyRecomputeWritesOnlyDriftedStudents(t *testing.T) {
	mem, exec := newHarness()
	job := NewDailyRecompute(mem, exec, config.StatusConfig{}, nil)
	ctx := context.Background()

	require.NoError(t, mem.Set(ctx, models.CollectionClasses, "c1",
		models.Class{ID: "c1", Schedule: "T2, T4 14:00-15:00"}))

	// 6 remaining at 2 sessions a week puts the end 3 weeks out.
	students := []models.Student{
		{ID: "s1", ClassID: "c1", Status: models.StudentStatusActive,
			RegisteredSessions: 10, AttendedSessions: 4, StartDate: "2024-01-01", ExpectedEndDate: "2024-06-01"},
		{ID: "s2", ClassID: "c1", Status: models.StudentStatusActive,
			RegisteredSessions: 10, AttendedSessions: 4, StartDate: "2024-01-01", ExpectedEndDate: "2024-01-22"},
		{ID: "s3", ClassID: "c1", Status: models.StudentStatusWithdrawn,
			RegisteredSessions: 10, AttendedSessions: 4, StartDate: "2024-01-01", ExpectedEndDate: "2024-06-01"},
	}
	for _, s := range students {
		require.NoError(t, mem.Set(ctx, models.CollectionStudents, s.ID, s))
	}

	written, err := job.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, written)

	assert.Equal(t, "2024-01-22", mustGet[models.Student](t, mem, models.CollectionStudents, "s1").ExpectedEndDate)
	// Already correct, untouched.
	assert.Equal(t, "2024-01-22", mustGet[models.Student](t, mem, models.CollectionStudents, "s2").ExpectedEndDate)
	// Withdrawn students are outside the job's coverage.
	assert.Equal(t, "2024-06-01", mustGet[models.Student](t, mem, models.CollectionStudents, "s3").ExpectedEndDate)
}

func TestDailyRecomputeSkipsStudentsWithoutStartDate(t *testing.T) {
	mem, exec := newHarness()
	job := NewDailyRecompute(mem, exec, config.StatusConfig{}, nil)
	ctx := context.Background()

	require.NoError(t, mem.Set(ctx, models.CollectionStudents, "s1",
		models.Student{ID: "s1", Status: models.StudentStatusActive, RegisteredSessions: 10}))

	written, err := job.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, written)
}

func TestDailyRecomputeChunksLargePopulations(t *testing.T) {
	mem := store.NewMemory(4, 10)
	exec := store.NewExecutor(mem, nil)
	job := NewDailyRecompute(mem, exec, config.StatusConfig{}, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		id := string(rune('a' + i))
		require.NoError(t, mem.Set(ctx, models.CollectionStudents, id, models.Student{
			ID: id, Status: models.StudentStatusActive,
			RegisteredSessions: 8, AttendedSessions: 2, StartDate: "2024-01-01", ExpectedEndDate: "stale",
		}))
	}

	// Batch cap 4 means write chunks of 2; all 5 must still land.
	written, err := job.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, written)

	for i := 0; i < 5; i++ {
		id := string(rune('a' + i))
		assert.Equal(t, "2024-02-12", mustGet[models.Student](t, mem, models.CollectionStudents, id).ExpectedEndDate)
	}
}
