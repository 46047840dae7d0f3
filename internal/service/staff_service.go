package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/center-ops-api/internal/models"
	"github.com/noah-isme/center-ops-api/internal/store"
	appErrors "github.com/noah-isme/center-ops-api/pkg/errors"
)

// MigrationResult reports what a completed staff ID migration touched.
type MigrationResult struct {
	OldID           string `json:"oldId"`
	NewID           string `json:"newId"`
	WorkSessions    int    `json:"workSessions"`
	AttendanceLogs  int    `json:"attendanceLogs"`
	RewardPostings  int    `json:"rewardPostings"`
	SalarySummaries int    `json:"salarySummaries"`
	TotalOps        int    `json:"totalOps"`
}

// StaffService owns staff identity operations.
type StaffService struct {
	store    store.Store
	validate *validator.Validate
	logger   *zap.Logger
}

// NewStaffService constructs a StaffService.
func NewStaffService(s store.Store, validate *validator.Validate, logger *zap.Logger) *StaffService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StaffService{store: s, validate: validate, logger: logger}
}

// MigrateRequest names the replacement ID for a staff migration.
type MigrateRequest struct {
	NewID string `json:"newId" validate:"required"`
}

// Migrate validates the request and runs the ID migration.
func (s *StaffService) Migrate(ctx context.Context, oldID string, req MigrateRequest) (*MigrationResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.CategoryInvalidArgument,
			http.StatusBadRequest, "invalid migration request")
	}
	return s.MigrateStaffID(ctx, oldID, req.NewID)
}

// MigrateStaffID moves a staff member and every document referencing them to
// a new ID in one atomic commit. Salary summaries are keyed by staff ID, so
// they are re-keyed rather than patched. If the full operation set would not
// fit in a single commit nothing is applied and the caller gets the counts
// back in the error.
func (s *StaffService) MigrateStaffID(ctx context.Context, oldID, newID string) (*MigrationResult, error) {
	if oldID == "" || newID == "" || oldID == newID {
		return nil, appErrors.New("INVALID_MIGRATION", appErrors.CategoryInvalidArgument,
			http.StatusBadRequest, "old and new staff IDs must differ and be non-empty")
	}

	raw, err := s.store.Get(ctx, models.CollectionStaff, oldID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, appErrors.New("STAFF_NOT_FOUND", appErrors.CategoryNotFound,
			http.StatusNotFound, fmt.Sprintf("staff %s not found", oldID))
	}
	if err != nil {
		return nil, appErrors.Internal(err, "load staff")
	}
	if _, err := s.store.Get(ctx, models.CollectionStaff, newID); err == nil {
		return nil, appErrors.New("STAFF_EXISTS", appErrors.CategoryAlreadyExists,
			http.StatusConflict, fmt.Sprintf("staff %s already exists", newID))
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, appErrors.Internal(err, "check target staff")
	}

	var staff models.Staff
	if err := store.Decode(raw, &staff); err != nil {
		return nil, appErrors.Internal(err, "decode staff")
	}
	staff.ID = newID

	result := &MigrationResult{OldID: oldID, NewID: newID}
	var ops []store.Op

	patch := map[string]interface{}{"staffId": newID}
	for _, ref := range []struct {
		collection string
		count      *int
	}{
		{models.CollectionWorkSessions, &result.WorkSessions},
		{models.CollectionStaffAttendanceLogs, &result.AttendanceLogs},
		{models.CollectionRewardsPenalties, &result.RewardPostings},
	} {
		docs, err := s.store.Query(ctx, ref.collection, "staffId", oldID)
		if err != nil {
			return nil, appErrors.Internal(err, "query "+ref.collection)
		}
		for _, doc := range docs {
			ops = append(ops, store.UpdateOp(ref.collection, doc.ID, patch))
		}
		*ref.count = len(docs)
	}

	summaryDocs, err := s.store.Query(ctx, models.CollectionSalarySummaries, "staffId", oldID)
	if err != nil {
		return nil, appErrors.Internal(err, "query salary summaries")
	}
	for _, doc := range summaryDocs {
		var summary models.SalarySummary
		if err := store.Decode(doc.Data, &summary); err != nil {
			return nil, appErrors.Internal(err, "decode salary summary")
		}
		oldKey := doc.ID
		summary.StaffID = newID
		summary.ID = models.SalaryKey(newID, summary.Month, summary.Year)
		ops = append(ops,
			store.SetOp(models.CollectionSalarySummaries, summary.ID, summary),
			store.DeleteOp(models.CollectionSalarySummaries, oldKey))
	}
	result.SalarySummaries = len(summaryDocs)

	ops = append(ops,
		store.SetOp(models.CollectionStaff, newID, staff),
		store.DeleteOp(models.CollectionStaff, oldID))
	result.TotalOps = len(ops)

	if limit := s.store.BatchLimit(); result.TotalOps > limit {
		return nil, appErrors.Clone(appErrors.ErrBatchLimit,
			fmt.Sprintf("migration needs %d operations but the commit limit is %d", result.TotalOps, limit))
	}
	if err := s.store.Commit(ctx, ops); err != nil {
		return nil, appErrors.Internal(err, "commit staff migration")
	}
	s.logger.Info("staff ID migrated",
		zap.String("old_id", oldID),
		zap.String("new_id", newID),
		zap.Int("ops", result.TotalOps))
	return result, nil
}
