package reconciler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/center-ops-api/internal/models"
	"github.com/noah-isme/center-ops-api/internal/schedule"
	"github.com/noah-isme/center-ops-api/internal/store"
)

// ClassReconciler derives sessions from a class's schedule, cascades
// denormalized class fields to dependent collections, maintains the
// training history, and cleans up when a class is deleted.
type ClassReconciler struct {
	store  store.Store
	exec   *store.Executor
	logger *zap.Logger
}

// NewClassReconciler builds the reconciler.
func NewClassReconciler(s store.Store, exec *store.Executor, logger *zap.Logger) *ClassReconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassReconciler{store: s, exec: exec, logger: logger}
}

// Handle reacts to one committed class change.
func (r *ClassReconciler) Handle(ctx context.Context, event store.Event) error {
	prev, next, err := decodeBoth[models.Class](event.Before, event.After)
	if err != nil {
		return err
	}
	switch event.Kind {
	case store.ChangeCreate:
		return r.onCreate(ctx, event.DocID, next)
	case store.ChangeUpdate:
		return r.onUpdate(ctx, event.DocID, prev, next)
	case store.ChangeDelete:
		return r.onDelete(ctx, event.DocID, prev)
	}
	return nil
}

func (r *ClassReconciler) onCreate(ctx context.Context, classID string, class *models.Class) error {
	if class == nil {
		return nil
	}
	r.generateSessions(ctx, classID, class)
	return nil
}

// generateSessions plans the class's meetings from its schedule text.
// Generation failure never fails the triggering write: the class stays and
// the skip is logged.
func (r *ClassReconciler) generateSessions(ctx context.Context, classID string, class *models.Class) {
	parsed := schedule.Parse(class.Schedule)
	if len(parsed.Weekdays) == 0 || class.TotalSessions <= 0 {
		r.logger.Warn("skipping session generation",
			zap.String("class_id", classID),
			zap.String("schedule", class.Schedule),
			zap.Int("total_sessions", class.TotalSessions))
		return
	}
	start, err := time.Parse(models.DateLayout, class.StartDate)
	if err != nil {
		r.logger.Warn("skipping session generation: bad start date",
			zap.String("class_id", classID),
			zap.String("start_date", class.StartDate))
		return
	}

	dates := schedule.SessionDates(start, class.TotalSessions, parsed.Weekdays)
	ops := make([]store.Op, 0, len(dates))
	for i, d := range dates {
		session := models.Session{
			ID:            fmt.Sprintf("%s:%d", classID, i+1),
			ClassID:       classID,
			ClassName:     class.Name,
			SessionNumber: i + 1,
			Date:          d.Date.Format(models.DateLayout),
			Weekday:       d.Weekday,
			TimeRange:     parsed.Time,
			Room:          class.Room,
			Teacher:       class.TeacherName,
			Status:        models.SessionStatusUnheld,
		}
		ops = append(ops, store.SetOp(models.CollectionSessions, session.ID, session))
	}
	if _, err := r.exec.ExecuteBatch(ctx, ops); err != nil {
		r.logger.Error("session generation failed",
			zap.String("class_id", classID),
			zap.Int("planned", len(ops)),
			zap.Error(err))
		return
	}
	r.logger.Info("sessions generated",
		zap.String("class_id", classID),
		zap.Int("count", len(ops)))
}

type fieldChange struct {
	field    string
	oldValue string
	newValue string
}

func classChanges(prev, next *models.Class) []fieldChange {
	pairs := []struct {
		field    string
		old, new string
	}{
		{"name", prev.Name, next.Name},
		{"teacher", prev.TeacherName, next.TeacherName},
		{"assistant", prev.AssistantName, next.AssistantName},
		{"foreignTeacher", prev.ForeignTeacherName, next.ForeignTeacherName},
		{"room", prev.Room, next.Room},
		{"schedule", prev.Schedule, next.Schedule},
		{"status", prev.Status, next.Status},
	}
	var changes []fieldChange
	for _, p := range pairs {
		if p.old != p.new {
			changes = append(changes, fieldChange{field: p.field, oldValue: p.old, newValue: p.new})
		}
	}
	return changes
}

func (r *ClassReconciler) onUpdate(ctx context.Context, classID string, prev, next *models.Class) error {
	if prev == nil || next == nil {
		return nil
	}
	changes := classChanges(prev, next)
	if len(changes) == 0 {
		return nil
	}

	var tasks []func() error
	for _, change := range changes {
		switch change.field {
		case "name":
			newName := change.newValue
			tasks = append(tasks,
				func() error {
					_, err := r.exec.CascadeUpdate(ctx, models.CollectionStudents, "classId", classID,
						map[string]interface{}{"className": newName})
					return err
				},
				func() error {
					_, err := r.exec.CascadeUpdate(ctx, models.CollectionSessions, "classId", classID,
						map[string]interface{}{"className": newName})
					return err
				},
				func() error {
					_, err := r.exec.CascadeUpdate(ctx, models.CollectionAttendance, "classId", classID,
						map[string]interface{}{"className": newName})
					return err
				})
		case "teacher":
			newTeacher := change.newValue
			tasks = append(tasks, func() error {
				_, err := r.exec.CascadeUpdate(ctx, models.CollectionSessions, "classId", classID,
					map[string]interface{}{"teacher": newTeacher})
				return err
			})
		case "room":
			newRoom := change.newValue
			tasks = append(tasks, func() error {
				_, err := r.exec.CascadeUpdate(ctx, models.CollectionSessions, "classId", classID,
					map[string]interface{}{"room": newRoom})
				return err
			})
		}
	}

	// When the history array already grew during this same write, a
	// cooperating external writer recorded the change and the reconciler
	// must not append a second entry.
	if len(next.TrainingHistory) == len(prev.TrainingHistory) {
		entries := next.TrainingHistory
		now := time.Now().UTC()
		for _, change := range changes {
			entries = append(entries, models.TrainingHistoryEntry{
				Timestamp:  now,
				ChangeType: change.field,
				OldValue:   change.oldValue,
				NewValue:   change.newValue,
				Actor:      models.HistoryActorSystem,
			})
		}
		tasks = append(tasks, func() error {
			return r.store.Update(ctx, models.CollectionClasses, classID,
				map[string]interface{}{"trainingHistory": entries})
		})
	}

	if scheduleChanged(prev, next) {
		tasks = append(tasks, func() error {
			return r.maybeRegenerate(ctx, classID, next)
		})
	}

	return runAll(tasks...)
}

func scheduleChanged(prev, next *models.Class) bool {
	return prev.Schedule != next.Schedule || prev.TotalSessions != next.TotalSessions
}

// maybeRegenerate replans sessions only for a class that has none yet.
// Regenerating an in-progress class would destroy the attendance trail tied
// to the existing session IDs, so that case stays a logged no-op.
func (r *ClassReconciler) maybeRegenerate(ctx context.Context, classID string, next *models.Class) error {
	existing, err := r.store.Query(ctx, models.CollectionSessions, "classId", classID)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		r.logger.Info("schedule changed but sessions exist, not regenerating",
			zap.String("class_id", classID),
			zap.Int("existing", len(existing)))
		return nil
	}
	r.generateSessions(ctx, classID, next)
	return nil
}

func (r *ClassReconciler) onDelete(ctx context.Context, classID string, prev *models.Class) error {
	if prev == nil {
		return nil
	}
	sessions, err := r.store.Query(ctx, models.CollectionSessions, "classId", classID)
	if err != nil {
		return err
	}
	sessionIDs := make([]interface{}, 0, len(sessions))
	for _, doc := range sessions {
		sessionIDs = append(sessionIDs, doc.ID)
	}

	return runAll(
		func() error {
			_, err := r.exec.CascadeDelete(ctx, models.CollectionSessions, "classId", classID)
			return err
		},
		func() error {
			return r.cleanupHomework(ctx, sessionIDs)
		},
		func() error {
			_, err := r.exec.CascadeUpdate(ctx, models.CollectionStudents, "classId", classID,
				map[string]interface{}{"classId": "", "className": ""})
			return err
		},
		// Attendance history survives class deletion for audit; records are
		// only marked, never removed.
		func() error {
			_, err := r.exec.CascadeUpdate(ctx, models.CollectionAttendance, "classId", classID,
				map[string]interface{}{"classDeleted": true})
			return err
		},
		func() error {
			_, err := r.exec.CascadeUpdate(ctx, models.CollectionStudentAttendance, "classId", classID,
				map[string]interface{}{"classDeleted": true})
			return err
		},
	)
}

func (r *ClassReconciler) cleanupHomework(ctx context.Context, sessionIDs []interface{}) error {
	if len(sessionIDs) == 0 {
		return nil
	}
	docs, err := r.exec.QueryInChunks(ctx, models.CollectionHomework, "sessionId", sessionIDs)
	if err != nil {
		return err
	}
	ops := make([]store.Op, 0, len(docs))
	for _, doc := range docs {
		ops = append(ops, store.DeleteOp(models.CollectionHomework, doc.ID))
	}
	_, err = r.exec.ExecuteBatch(ctx, ops)
	return err
}
