package reconciler

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/center-ops-api/internal/models"
	"github.com/noah-isme/center-ops-api/internal/schedule"
	"github.com/noah-isme/center-ops-api/internal/store"
	"github.com/noah-isme/center-ops-api/pkg/config"
)

// recomputeStatuses are the student statuses the daily drift job covers.
var recomputeStatuses = []string{
	models.StudentStatusActive,
	models.StudentStatusTrial,
	models.StudentStatusFeeDebt,
}

// DailyRecompute re-derives every covered student's expected end date from
// the current counters, guarding against drift left by racing reconcilers.
// It writes only when the derived value actually differs and keeps its
// write chunks well under the store's batch cap.
type DailyRecompute struct {
	store   store.Store
	exec    *store.Executor
	aliases map[string]string
	logger  *zap.Logger
}

// NewDailyRecompute builds the job.
func NewDailyRecompute(s store.Store, exec *store.Executor, statuses config.StatusConfig, logger *zap.Logger) *DailyRecompute {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DailyRecompute{store: s, exec: exec, aliases: statuses.Aliases, logger: logger}
}

// Run processes students sequentially and returns the number of documents
// rewritten.
func (j *DailyRecompute) Run(ctx context.Context) (int, error) {
	weeklyByClass := map[string]int{}
	var ops []store.Op

	for _, status := range recomputeStatuses {
		docs, err := j.store.Query(ctx, models.CollectionStudents, "status", status)
		if err != nil {
			return 0, err
		}
		for _, doc := range docs {
			var student models.Student
			if err := store.Decode(doc.Data, &student); err != nil {
				return 0, err
			}
			remaining := student.RegisteredSessions - student.AttendedSessions
			if remaining < 0 {
				remaining = 0
			}
			derived := expectedEndDate(student.StartDate, remaining, j.weeklyCount(ctx, student.ClassID, weeklyByClass))
			if derived == "" || derived == student.ExpectedEndDate {
				continue
			}
			ops = append(ops, store.UpdateOp(models.CollectionStudents, doc.ID,
				map[string]interface{}{"expectedEndDate": derived}))
		}
	}

	written := 0
	chunk := j.store.BatchLimit() / 2
	if chunk < 1 {
		chunk = 1
	}
	for start := 0; start < len(ops); start += chunk {
		end := start + chunk
		if end > len(ops) {
			end = len(ops)
		}
		n, err := j.exec.ExecuteBatch(ctx, ops[start:end])
		written += n
		if err != nil {
			return written, err
		}
	}
	j.logger.Info("expected end dates recomputed", zap.Int("written", written))
	return written, nil
}

func (j *DailyRecompute) weeklyCount(ctx context.Context, classID string, memo map[string]int) int {
	if classID == "" {
		return 1
	}
	if count, ok := memo[classID]; ok {
		return count
	}
	count := 1
	if raw, err := j.store.Get(ctx, models.CollectionClasses, classID); err == nil {
		var class models.Class
		if err := store.Decode(raw, &class); err == nil {
			count = schedule.WeeklyCount(class.Schedule)
		}
	}
	memo[classID] = count
	return count
}
