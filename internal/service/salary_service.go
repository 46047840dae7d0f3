package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/center-ops-api/internal/models"
	"github.com/noah-isme/center-ops-api/internal/store"
	appErrors "github.com/noah-isme/center-ops-api/pkg/errors"
	"github.com/noah-isme/center-ops-api/pkg/export"
)

// SalaryListing caches alongside its period so stale reads are detectable.
type SalaryListing struct {
	Month     int                    `json:"month"`
	Year      int                    `json:"year"`
	Summaries []models.SalarySummary `json:"summaries"`
}

type salaryCache interface {
	Get(ctx context.Context, month, year int, dest interface{}) error
	Set(ctx context.Context, month, year int, value interface{}) error
	Invalidate(ctx context.Context, month, year int) error
}

// SalaryConfig tunes the pay formulas.
type SalaryConfig struct {
	TeachingRate     int64
	WorkDaysPerMonth int
	Positions        map[string]PositionRate
	Default          PositionRate
}

// PositionRate mirrors the configured per-position pay table.
type PositionRate struct {
	Multiplier        float64
	DefaultBaseSalary int64
}

// SalaryService maintains monthly salary summaries. Teaching positions are
// paid per confirmed work session, everyone else is prorated on worked days,
// and both get a multiplier-driven position bonus plus posted rewards and
// penalties.
type SalaryService struct {
	store    store.Store
	exec     *store.Executor
	cache    salaryCache
	cfg      SalaryConfig
	validate *validator.Validate
	logger   *zap.Logger
	now      func() time.Time
}

// NewSalaryService constructs a SalaryService. A nil cache disables
// listing caching.
func NewSalaryService(s store.Store, exec *store.Executor, cache salaryCache, cfg SalaryConfig, validate *validator.Validate, logger *zap.Logger) *SalaryService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.WorkDaysPerMonth <= 0 {
		cfg.WorkDaysPerMonth = 22
	}
	if cfg.Default.Multiplier <= 0 {
		cfg.Default.Multiplier = 1.0
	}
	return &SalaryService{
		store:    s,
		exec:     exec,
		cache:    cache,
		cfg:      cfg,
		validate: validate,
		logger:   logger,
		now:      time.Now,
	}
}

// RecomputeRequest asks for one staff member's period to be rebuilt.
type RecomputeRequest struct {
	StaffID string `json:"staffId" validate:"required"`
	Month   int    `json:"month" validate:"required,min=1,max=12"`
	Year    int    `json:"year" validate:"required,min=2000,max=2100"`
}

// PeriodRequest identifies one salary period.
type PeriodRequest struct {
	Month int `json:"month" validate:"required,min=1,max=12"`
	Year  int `json:"year" validate:"required,min=2000,max=2100"`
}

// RecomputeOne validates and executes a single-staff recompute.
func (s *SalaryService) RecomputeOne(ctx context.Context, req RecomputeRequest) error {
	if err := s.validate.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.CategoryInvalidArgument,
			http.StatusBadRequest, "invalid recompute request")
	}
	return s.Recompute(ctx, req.StaffID, req.Month, req.Year)
}

// RecomputePeriod validates and executes a full-period recompute.
func (s *SalaryService) RecomputePeriod(ctx context.Context, req PeriodRequest) (int, error) {
	if err := s.validate.Struct(req); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.CategoryInvalidArgument,
			http.StatusBadRequest, "invalid period request")
	}
	return s.RecomputeAll(ctx, req.Month, req.Year)
}

func (s *SalaryService) positionRate(position string) PositionRate {
	if rate, ok := s.cfg.Positions[position]; ok {
		if rate.Multiplier <= 0 {
			rate.Multiplier = 1.0
		}
		return rate
	}
	return s.cfg.Default
}

// ComputeStaff builds one staff member's summary for a period from scratch.
func (s *SalaryService) ComputeStaff(ctx context.Context, staff models.Staff, month, year int) (*models.SalarySummary, error) {
	if month < 1 || month > 12 {
		return nil, appErrors.New("INVALID_PERIOD", appErrors.CategoryInvalidArgument,
			http.StatusBadRequest, fmt.Sprintf("month %d out of range", month))
	}
	rate := s.positionRate(staff.Position)
	base := staff.BaseSalary
	if base <= 0 {
		base = rate.DefaultBaseSalary
	}

	summary := models.SalarySummary{
		ID:         models.SalaryKey(staff.ID, month, year),
		StaffID:    staff.ID,
		StaffName:  staff.FullName,
		Position:   staff.Position,
		Month:      month,
		Year:       year,
		BaseSalary: base,
		Status:     models.SalaryStatusDraft,
		ComputedAt: s.now().UTC(),
	}

	prefix := models.Period(month, year)
	if staff.IsTeaching() {
		sessions, err := s.countWorkSessions(ctx, staff.ID, prefix)
		if err != nil {
			return nil, err
		}
		summary.WorkSessions = sessions
		summary.Earned = int64(sessions) * s.cfg.TeachingRate
	} else {
		days, err := s.countWorkDays(ctx, staff.ID, prefix)
		if err != nil {
			return nil, err
		}
		summary.WorkDays = days
		summary.Earned = base / int64(s.cfg.WorkDaysPerMonth) * int64(days)
	}

	summary.PositionBonus = int64(float64(base) * (rate.Multiplier - 1.0))
	rewards, penalties, err := s.sumPostings(ctx, staff.ID, month, year)
	if err != nil {
		return nil, err
	}
	summary.Rewards = rewards
	summary.Penalties = penalties
	summary.TotalGross = summary.Earned + summary.PositionBonus + rewards
	summary.TotalNet = summary.TotalGross - penalties
	return &summary, nil
}

func (s *SalaryService) countWorkSessions(ctx context.Context, staffID, datePrefix string) (int, error) {
	docs, err := s.store.Query(ctx, models.CollectionWorkSessions, "staffId", staffID)
	if err != nil {
		return 0, appErrors.Internal(err, "query work sessions")
	}
	count := 0
	for _, doc := range docs {
		var ws models.WorkSession
		if err := store.Decode(doc.Data, &ws); err != nil {
			return 0, appErrors.Internal(err, "decode work session")
		}
		if ws.Status == models.WorkSessionStatusConfirmed && strings.HasPrefix(ws.Date, datePrefix) {
			count++
		}
	}
	return count, nil
}

func (s *SalaryService) countWorkDays(ctx context.Context, staffID, datePrefix string) (int, error) {
	docs, err := s.store.Query(ctx, models.CollectionStaffAttendanceLogs, "staffId", staffID)
	if err != nil {
		return 0, appErrors.Internal(err, "query staff attendance logs")
	}
	count := 0
	for _, doc := range docs {
		var log models.StaffAttendanceLog
		if err := store.Decode(doc.Data, &log); err != nil {
			return 0, appErrors.Internal(err, "decode staff attendance log")
		}
		if log.Status != models.StaffAttendanceUnexcusedAbsence && strings.HasPrefix(log.Date, datePrefix) {
			count++
		}
	}
	return count, nil
}

func (s *SalaryService) sumPostings(ctx context.Context, staffID string, month, year int) (rewards, penalties int64, err error) {
	docs, err := s.store.Query(ctx, models.CollectionRewardsPenalties, "staffId", staffID)
	if err != nil {
		return 0, 0, appErrors.Internal(err, "query rewards and penalties")
	}
	for _, doc := range docs {
		var posting models.RewardPenalty
		if err := store.Decode(doc.Data, &posting); err != nil {
			return 0, 0, appErrors.Internal(err, "decode reward posting")
		}
		if posting.Month != month || posting.Year != year {
			continue
		}
		if posting.Kind == models.RewardPenaltyKindPenalty {
			penalties += posting.Amount
		} else {
			rewards += posting.Amount
		}
	}
	return rewards, penalties, nil
}

// Recompute rebuilds one staff member's summary and upserts it under its
// deterministic period key.
func (s *SalaryService) Recompute(ctx context.Context, staffID string, month, year int) error {
	raw, err := s.store.Get(ctx, models.CollectionStaff, staffID)
	if errors.Is(err, store.ErrNotFound) {
		return appErrors.New("STAFF_NOT_FOUND", appErrors.CategoryNotFound,
			http.StatusNotFound, fmt.Sprintf("staff %s not found", staffID))
	}
	if err != nil {
		return appErrors.Internal(err, "load staff")
	}
	var staff models.Staff
	if err := store.Decode(raw, &staff); err != nil {
		return appErrors.Internal(err, "decode staff")
	}

	summary, err := s.ComputeStaff(ctx, staff, month, year)
	if err != nil {
		return err
	}
	if err := s.store.Set(ctx, models.CollectionSalarySummaries, summary.ID, summary); err != nil {
		return appErrors.Internal(err, "write salary summary")
	}
	if err := s.cacheInvalidate(ctx, month, year); err != nil {
		s.logger.Warn("salary cache invalidation failed",
			zap.String("period", models.Period(month, year)), zap.Error(err))
	}
	return nil
}

// RecomputeAll drops every summary of the period and regenerates one per
// active staff member, so summaries of since departed staff do not linger.
func (s *SalaryService) RecomputeAll(ctx context.Context, month, year int) (int, error) {
	existing, err := s.periodSummaries(ctx, month, year)
	if err != nil {
		return 0, err
	}
	var ops []store.Op
	for _, summary := range existing {
		ops = append(ops, store.DeleteOp(models.CollectionSalarySummaries, summary.ID))
	}

	staffDocs, err := s.store.Query(ctx, models.CollectionStaff, "status", models.StaffStatusActive)
	if err != nil {
		return 0, appErrors.Internal(err, "query active staff")
	}
	generated := 0
	for _, doc := range staffDocs {
		var staff models.Staff
		if err := store.Decode(doc.Data, &staff); err != nil {
			return 0, appErrors.Internal(err, "decode staff")
		}
		summary, err := s.ComputeStaff(ctx, staff, month, year)
		if err != nil {
			return 0, err
		}
		ops = append(ops, store.SetOp(models.CollectionSalarySummaries, summary.ID, summary))
		generated++
	}
	if _, err := s.exec.ExecuteBatch(ctx, ops); err != nil {
		return 0, err
	}
	if err := s.cacheInvalidate(ctx, month, year); err != nil {
		s.logger.Warn("salary cache invalidation failed",
			zap.String("period", models.Period(month, year)), zap.Error(err))
	}
	return generated, nil
}

// RunMonthly regenerates summaries for the current period. It is the body
// of the scheduled salary task and returns how many summaries were written.
func (s *SalaryService) RunMonthly(ctx context.Context) (int, error) {
	now := s.now().UTC()
	return s.RecomputeAll(ctx, int(now.Month()), now.Year())
}

// List returns the summaries of a period, served from cache when possible.
func (s *SalaryService) List(ctx context.Context, month, year int) ([]models.SalarySummary, error) {
	var cached SalaryListing
	err := s.cacheGet(ctx, month, year, &cached)
	if err == nil && cached.Month == month && cached.Year == year {
		return cached.Summaries, nil
	}

	summaries, err := s.periodSummaries(ctx, month, year)
	if err != nil {
		return nil, err
	}
	if err := s.cacheSet(ctx, month, year, SalaryListing{Month: month, Year: year, Summaries: summaries}); err != nil {
		s.logger.Warn("salary cache write failed",
			zap.String("period", models.Period(month, year)), zap.Error(err))
	}
	return summaries, nil
}

// ExportDataset renders the period listing as a tabular dataset.
func (s *SalaryService) ExportDataset(ctx context.Context, month, year int) (export.Dataset, string, error) {
	summaries, err := s.List(ctx, month, year)
	if err != nil {
		return export.Dataset{}, "", err
	}
	rows := make([]map[string]string, 0, len(summaries))
	for _, summary := range summaries {
		rows = append(rows, map[string]string{
			"Staff":          summary.StaffName,
			"Position":       summary.Position,
			"Base Salary":    fmt.Sprintf("%d", summary.BaseSalary),
			"Work Days":      fmt.Sprintf("%d", summary.WorkDays),
			"Work Sessions":  fmt.Sprintf("%d", summary.WorkSessions),
			"Earned":         fmt.Sprintf("%d", summary.Earned),
			"Position Bonus": fmt.Sprintf("%d", summary.PositionBonus),
			"Rewards":        fmt.Sprintf("%d", summary.Rewards),
			"Penalties":      fmt.Sprintf("%d", summary.Penalties),
			"Net":            fmt.Sprintf("%d", summary.TotalNet),
		})
	}
	dataset := export.Dataset{
		Headers: []string{"Staff", "Position", "Base Salary", "Work Days", "Work Sessions",
			"Earned", "Position Bonus", "Rewards", "Penalties", "Net"},
		Rows: rows,
	}
	title := fmt.Sprintf("Salary Summary %s", models.Period(month, year))
	return dataset, title, nil
}

func (s *SalaryService) periodSummaries(ctx context.Context, month, year int) ([]models.SalarySummary, error) {
	docs, err := s.store.Query(ctx, models.CollectionSalarySummaries, "month", month)
	if err != nil {
		return nil, appErrors.Internal(err, "query salary summaries")
	}
	summaries := make([]models.SalarySummary, 0, len(docs))
	for _, doc := range docs {
		var summary models.SalarySummary
		if err := store.Decode(doc.Data, &summary); err != nil {
			return nil, appErrors.Internal(err, "decode salary summary")
		}
		if summary.Year != year {
			continue
		}
		summaries = append(summaries, summary)
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].StaffName < summaries[j].StaffName })
	return summaries, nil
}

func (s *SalaryService) cacheGet(ctx context.Context, month, year int, dest interface{}) error {
	if s.cache == nil {
		return errors.New("cache disabled")
	}
	return s.cache.Get(ctx, month, year, dest)
}

func (s *SalaryService) cacheSet(ctx context.Context, month, year int, value interface{}) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Set(ctx, month, year, value)
}

func (s *SalaryService) cacheInvalidate(ctx context.Context, month, year int) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Invalidate(ctx, month, year)
}
