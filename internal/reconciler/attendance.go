package reconciler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/center-ops-api/internal/models"
	"github.com/noah-isme/center-ops-api/internal/schedule"
	"github.com/noah-isme/center-ops-api/internal/store"
	"github.com/noah-isme/center-ops-api/pkg/config"
)

// AttendanceReconciler mirrors presence transitions from both attendance
// record shapes onto student session counters, derives the remaining
// balance and projected completion date, and flips students into and out of
// fee-debt when attended sessions cross the registered balance.
//
// The two shapes carry independently configured presence-equivalent sets:
// the batch shape historically counts made-up sessions as presence, the
// per-student shape does not.
type AttendanceReconciler struct {
	store          store.Store
	exec           *store.Executor
	batchPresent   map[string]bool
	studentPresent map[string]bool
	holidayStatus  string
	logger         *zap.Logger
}

// NewAttendanceReconciler builds the reconciler from the configured sets.
func NewAttendanceReconciler(s store.Store, exec *store.Executor, cfg config.AttendanceConfig, logger *zap.Logger) *AttendanceReconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceReconciler{
		store:          s,
		exec:           exec,
		batchPresent:   stringSet(cfg.PresentStatuses),
		studentPresent: stringSet(cfg.StudentPresentStatuses),
		holidayStatus:  cfg.HolidayStatus,
		logger:         logger,
	}
}

// HandleBatch reacts to changes on the many-students-per-session shape by
// diffing each student's status between the previous and new images.
func (r *AttendanceReconciler) HandleBatch(ctx context.Context, event store.Event) error {
	prev, next, err := decodeBoth[models.AttendanceRecord](event.Before, event.After)
	if err != nil {
		return err
	}
	prevStatuses := map[string]string{}
	date := ""
	if prev != nil {
		date = prev.Date
		for _, entry := range prev.Entries {
			prevStatuses[entry.StudentID] = entry.Status
		}
	}
	nextStatuses := map[string]string{}
	if next != nil {
		date = next.Date
		for _, entry := range next.Entries {
			nextStatuses[entry.StudentID] = entry.Status
		}
	}

	seen := map[string]bool{}
	for studentID, status := range nextStatuses {
		seen[studentID] = true
		if err := r.applyTransition(ctx, studentID, prevStatuses[studentID], status, date, r.batchPresent); err != nil {
			return err
		}
	}
	for studentID, status := range prevStatuses {
		if seen[studentID] {
			continue
		}
		if err := r.applyTransition(ctx, studentID, status, "", date, r.batchPresent); err != nil {
			return err
		}
	}
	return nil
}

// HandleStudent reacts to changes on the per-student record shape.
func (r *AttendanceReconciler) HandleStudent(ctx context.Context, event store.Event) error {
	prev, next, err := decodeBoth[models.StudentAttendance](event.Before, event.After)
	if err != nil {
		return err
	}
	studentID, prevStatus, nextStatus, date := "", "", "", ""
	if prev != nil {
		studentID, prevStatus, date = prev.StudentID, prev.Status, prev.Date
	}
	if next != nil {
		studentID, nextStatus, date = next.StudentID, next.Status, next.Date
	}
	return r.applyTransition(ctx, studentID, prevStatus, nextStatus, date, r.studentPresent)
}

// applyTransition moves the attended counter only across the presence
// boundary. Same-category transitions and the holiday-blanket sentinel are
// explicit no-ops.
func (r *AttendanceReconciler) applyTransition(ctx context.Context, studentID, prevStatus, nextStatus, date string, present map[string]bool) error {
	if studentID == "" {
		return nil
	}
	if prevStatus == r.holidayStatus || nextStatus == r.holidayStatus {
		return nil
	}
	wasPresent := present[prevStatus]
	isPresent := present[nextStatus]
	if wasPresent == isPresent {
		return nil
	}

	raw, err := r.store.Get(ctx, models.CollectionStudents, studentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			r.logger.Warn("attendance for unknown student", zap.String("student_id", studentID))
			return nil
		}
		return err
	}
	var student models.Student
	if err := store.Decode(raw, &student); err != nil {
		return err
	}

	patch := map[string]interface{}{}
	if isPresent {
		student.AttendedSessions++
		if student.AttendedSessions == 1 && student.StartDate == "" {
			startDate := date
			if startDate == "" {
				startDate = time.Now().UTC().Format(models.DateLayout)
			}
			student.StartDate = startDate
			patch["startDate"] = startDate
		}
	} else {
		student.AttendedSessions--
		if student.AttendedSessions < 0 {
			student.AttendedSessions = 0
		}
	}
	patch["attendedSessions"] = student.AttendedSessions

	remaining := student.RegisteredSessions - student.AttendedSessions
	if remaining < 0 {
		remaining = 0
	}
	patch["remainingSessions"] = remaining
	patch["expectedEndDate"] = expectedEndDate(student.StartDate, remaining, r.weeklyCount(ctx, student.ClassID))

	overage := student.AttendedSessions - student.RegisteredSessions
	if overage > 0 && student.Status == models.StudentStatusActive {
		patch["status"] = models.StudentStatusFeeDebt
		patch["feeDebtSessions"] = overage
		patch["feeDebtAt"] = time.Now().UTC()
	} else if overage <= 0 && student.Status == models.StudentStatusFeeDebt {
		patch["status"] = models.StudentStatusActive
		patch["feeDebtSessions"] = 0
		patch["feeDebtAt"] = nil
	}

	return r.store.Update(ctx, models.CollectionStudents, studentID, patch)
}

// weeklyCount derives sessions-per-week from the owning class's schedule
// text, defaulting to one when the class or its schedule is unusable.
func (r *AttendanceReconciler) weeklyCount(ctx context.Context, classID string) int {
	if classID == "" {
		return 1
	}
	raw, err := r.store.Get(ctx, models.CollectionClasses, classID)
	if err != nil {
		return 1
	}
	var class models.Class
	if err := store.Decode(raw, &class); err != nil {
		return 1
	}
	return schedule.WeeklyCount(class.Schedule)
}

// HandleSessionCompletion pushes absent students' projected completion date
// out by one week when their session is held, accounting for the makeup
// session they will need.
func (r *AttendanceReconciler) HandleSessionCompletion(ctx context.Context, event store.Event) error {
	prev, next, err := decodeBoth[models.Session](event.Before, event.After)
	if err != nil {
		return err
	}
	if prev == nil || next == nil {
		return nil
	}
	if prev.Status == next.Status || next.Status != models.SessionStatusHeld {
		return nil
	}

	records, err := r.store.Query(ctx, models.CollectionAttendance, "sessionId", event.DocID)
	if err != nil {
		return err
	}
	for _, doc := range records {
		var record models.AttendanceRecord
		if err := store.Decode(doc.Data, &record); err != nil {
			return err
		}
		for _, entry := range record.Entries {
			if r.batchPresent[entry.Status] || entry.Status == r.holidayStatus {
				continue
			}
			if err := r.bumpExpectedEnd(ctx, entry.StudentID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *AttendanceReconciler) bumpExpectedEnd(ctx context.Context, studentID string) error {
	raw, err := r.store.Get(ctx, models.CollectionStudents, studentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	var student models.Student
	if err := store.Decode(raw, &student); err != nil {
		return err
	}
	if student.ExpectedEndDate == "" {
		return nil
	}
	current, err := time.Parse(models.DateLayout, student.ExpectedEndDate)
	if err != nil {
		return nil
	}
	bumped := current.AddDate(0, 0, 7).Format(models.DateLayout)
	return r.store.Update(ctx, models.CollectionStudents, studentID,
		map[string]interface{}{"expectedEndDate": bumped})
}
