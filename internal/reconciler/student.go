package reconciler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/center-ops-api/internal/models"
	"github.com/noah-isme/center-ops-api/internal/store"
	"github.com/noah-isme/center-ops-api/pkg/config"
)

// StudentReconciler maintains class roster bucket counts, cascades student
// renames, and drives the settlement-gated bad-debt state machine on
// withdrawal transitions.
type StudentReconciler struct {
	store   store.Store
	exec    *store.Executor
	aliases map[string]string
	rate    int64
	logger  *zap.Logger
}

// NewStudentReconciler builds the reconciler. The alias table and the
// per-session rate come from configuration so tests can substitute them.
func NewStudentReconciler(s store.Store, exec *store.Executor, statuses config.StatusConfig, billing config.BillingConfig, logger *zap.Logger) *StudentReconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentReconciler{
		store:   s,
		exec:    exec,
		aliases: statuses.Aliases,
		rate:    billing.SessionRate,
		logger:  logger,
	}
}

// Handle reacts to one committed student change.
func (r *StudentReconciler) Handle(ctx context.Context, event store.Event) error {
	prev, next, err := decodeBoth[models.Student](event.Before, event.After)
	if err != nil {
		return err
	}
	switch event.Kind {
	case store.ChangeCreate:
		return r.recomputeRoster(ctx, next.ClassID)
	case store.ChangeDelete:
		return runAll(
			func() error { return r.recomputeRoster(ctx, prev.ClassID) },
			// Attendance history outlives the student; mark, don't delete.
			func() error {
				_, err := r.exec.CascadeUpdate(ctx, models.CollectionAttendanceHistory, "studentId", event.DocID,
					map[string]interface{}{"orphaned": true})
				return err
			},
		)
	case store.ChangeUpdate:
		return r.onUpdate(ctx, event.DocID, prev, next)
	}
	return nil
}

func (r *StudentReconciler) onUpdate(ctx context.Context, studentID string, prev, next *models.Student) error {
	var tasks []func() error

	if prev.FullName != next.FullName {
		newName := next.FullName
		tasks = append(tasks, func() error {
			_, err := r.exec.CascadeUpdate(ctx, models.CollectionAttendanceHistory, "studentId", studentID,
				map[string]interface{}{"studentName": newName})
			return err
		})
	}

	prevStatus := normalizeStatus(r.aliases, prev.Status)
	nextStatus := normalizeStatus(r.aliases, next.Status)

	if prevStatus != nextStatus || prev.ClassID != next.ClassID {
		oldClass := prev.ClassID
		tasks = append(tasks, func() error { return r.recomputeRoster(ctx, oldClass) })
		if next.ClassID != prev.ClassID {
			newClass := next.ClassID
			tasks = append(tasks, func() error { return r.recomputeRoster(ctx, newClass) })
		}
	}

	if prevStatus != models.StudentStatusWithdrawn && nextStatus == models.StudentStatusWithdrawn {
		tasks = append(tasks, func() error { return r.onWithdrawn(ctx, studentID, next) })
	}
	if prevStatus == models.StudentStatusWithdrawn && nextStatus == models.StudentStatusActive && prev.BadDebt {
		tasks = append(tasks, func() error {
			return r.store.Update(ctx, models.CollectionStudents, studentID, map[string]interface{}{
				"badDebt":         false,
				"badDebtSessions": 0,
				"badDebtAmount":   0,
				"badDebtNote":     "returned",
			})
		})
	}

	return runAll(tasks...)
}

// recomputeRoster re-queries all students of a class and rewrites the
// per-status bucket counts.
func (r *StudentReconciler) recomputeRoster(ctx context.Context, classID string) error {
	if classID == "" {
		return nil
	}
	if _, err := r.store.Get(ctx, models.CollectionClasses, classID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			r.logger.Warn("roster recompute skipped: class missing", zap.String("class_id", classID))
			return nil
		}
		return err
	}

	docs, err := r.store.Query(ctx, models.CollectionStudents, "classId", classID)
	if err != nil {
		return err
	}
	counts := models.StudentCounts{Total: len(docs)}
	for _, doc := range docs {
		var student models.Student
		if err := store.Decode(doc.Data, &student); err != nil {
			return err
		}
		switch normalizeStatus(r.aliases, student.Status) {
		case models.StudentStatusActive:
			counts.Active++
		case models.StudentStatusTrial:
			counts.Trial++
		case models.StudentStatusFeeDebt:
			counts.FeeDebt++
		case models.StudentStatusReserved:
			counts.Reserved++
		}
	}

	return r.store.Update(ctx, models.CollectionClasses, classID,
		map[string]interface{}{"studentsCount": counts})
}

// onWithdrawn resolves the bad-debt state of a student leaving the school.
// An existing bad-debt settlement is terminal; a paid settlement force-
// clears the flag; otherwise a session overage derives a new bad debt.
func (r *StudentReconciler) onWithdrawn(ctx context.Context, studentID string, student *models.Student) error {
	docs, err := r.store.Query(ctx, models.CollectionSettlements, "studentId", studentID)
	if err != nil {
		return err
	}
	var paid *models.Settlement
	for _, doc := range docs {
		var settlement models.Settlement
		if err := store.Decode(doc.Data, &settlement); err != nil {
			return err
		}
		switch settlement.Type {
		case models.SettlementTypeBadDebt:
			return nil
		case models.SettlementTypePaid:
			if paid == nil {
				s := settlement
				paid = &s
			}
		}
	}

	if paid != nil {
		return r.store.Update(ctx, models.CollectionStudents, studentID, map[string]interface{}{
			"badDebt":         false,
			"badDebtSessions": 0,
			"badDebtAmount":   0,
			"badDebtNote":     fmt.Sprintf("cleared by settlement %s", paid.ID),
		})
	}

	overage := student.AttendedSessions - student.RegisteredSessions
	if overage <= 0 {
		return nil
	}
	now := time.Now().UTC()
	amount := int64(overage) * r.rate

	settlement := models.Settlement{
		ID:        studentID + ":bad-debt",
		StudentID: studentID,
		Type:      models.SettlementTypeBadDebt,
		Sessions:  overage,
		Amount:    amount,
		Note:      "derived on withdrawal",
		CreatedAt: now,
	}
	return runAll(
		func() error {
			return r.store.Update(ctx, models.CollectionStudents, studentID, map[string]interface{}{
				"badDebt":         true,
				"badDebtSessions": overage,
				"badDebtAmount":   amount,
				"badDebtNote":     fmt.Sprintf("derived %s", now.Format(models.DateLayout)),
			})
		},
		func() error {
			return r.store.Set(ctx, models.CollectionSettlements, settlement.ID, settlement)
		},
	)
}
