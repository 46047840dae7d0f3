package reconciler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/center-ops-api/internal/models"
	"github.com/noah-isme/center-ops-api/internal/store"
)

// HolidayReconciler cancels in-range unheld sessions when a holiday is
// applied, recording every flipped session ID on the holiday document, and
// reverts exactly those sessions when the holiday is unapplied or deleted
// while still applied.
type HolidayReconciler struct {
	store  store.Store
	exec   *store.Executor
	logger *zap.Logger
}

// NewHolidayReconciler builds the reconciler.
func NewHolidayReconciler(s store.Store, exec *store.Executor, logger *zap.Logger) *HolidayReconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HolidayReconciler{store: s, exec: exec, logger: logger}
}

// Handle reacts to one committed holiday change.
func (r *HolidayReconciler) Handle(ctx context.Context, event store.Event) error {
	prev, next, err := decodeBoth[models.Holiday](event.Before, event.After)
	if err != nil {
		return err
	}
	switch {
	case next != nil && next.Status == models.HolidayStatusApplied &&
		(prev == nil || prev.Status != models.HolidayStatusApplied):
		return r.apply(ctx, event.DocID, next)
	case prev != nil && prev.Status == models.HolidayStatusApplied &&
		(next == nil || next.Status != models.HolidayStatusApplied):
		return r.revert(ctx, event.DocID, prev, next == nil)
	}
	return nil
}

func (r *HolidayReconciler) apply(ctx context.Context, holidayID string, holiday *models.Holiday) error {
	classIDs, err := r.resolveClasses(ctx, holiday)
	if err != nil {
		return err
	}
	if len(classIDs) == 0 {
		return nil
	}

	dates, err := rangeDates(holiday.StartDate, holiday.EndDate)
	if err != nil {
		r.logger.Warn("holiday has unusable date range",
			zap.String("holiday_id", holidayID),
			zap.String("start", holiday.StartDate),
			zap.String("end", holiday.EndDate))
		return nil
	}

	// The date list is unbounded while the store's value-in-set query is
	// not, so the lookup goes through the chunking combinator and the
	// class scope is applied on the merged result.
	docs, err := r.exec.QueryInChunks(ctx, models.CollectionSessions, "date", dates)
	if err != nil {
		return err
	}

	var (
		ops      []store.Op
		affected []string
	)
	for _, doc := range docs {
		var session models.Session
		if err := store.Decode(doc.Data, &session); err != nil {
			return err
		}
		if !classIDs[session.ClassID] || session.Status != models.SessionStatusUnheld {
			continue
		}
		ops = append(ops, store.UpdateOp(models.CollectionSessions, doc.ID, map[string]interface{}{
			"status":    models.SessionStatusCancelled,
			"holidayId": holidayID,
		}))
		affected = append(affected, doc.ID)
	}
	if _, err := r.exec.ExecuteBatch(ctx, ops); err != nil {
		return err
	}
	if affected == nil {
		affected = []string{}
	}
	return r.store.Update(ctx, models.CollectionHolidays, holidayID,
		map[string]interface{}{"affectedSessionIds": affected})
}

// revert restores only sessions still cancelled by this same holiday, so a
// double reversion or a session a human has since re-scheduled is left
// alone.
func (r *HolidayReconciler) revert(ctx context.Context, holidayID string, holiday *models.Holiday, deleted bool) error {
	var ops []store.Op
	for _, sessionID := range holiday.AffectedSessionIDs {
		raw, err := r.store.Get(ctx, models.CollectionSessions, sessionID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return err
		}
		var session models.Session
		if err := store.Decode(raw, &session); err != nil {
			return err
		}
		if session.Status != models.SessionStatusCancelled || session.HolidayID != holidayID {
			continue
		}
		ops = append(ops, store.UpdateOp(models.CollectionSessions, sessionID, map[string]interface{}{
			"status":    models.SessionStatusUnheld,
			"holidayId": "",
		}))
	}
	if _, err := r.exec.ExecuteBatch(ctx, ops); err != nil {
		return err
	}
	if deleted {
		return nil
	}
	return r.store.Update(ctx, models.CollectionHolidays, holidayID,
		map[string]interface{}{"affectedSessionIds": []string{}})
}

func (r *HolidayReconciler) resolveClasses(ctx context.Context, holiday *models.Holiday) (map[string]bool, error) {
	out := map[string]bool{}
	switch holiday.ApplyType {
	case models.HolidayApplyClasses:
		for _, id := range holiday.ClassIDs {
			out[id] = true
		}
	case models.HolidayApplyBranch:
		docs, err := r.store.Query(ctx, models.CollectionClasses, "branch", holiday.Branch)
		if err != nil {
			return nil, err
		}
		for _, doc := range docs {
			out[doc.ID] = true
		}
	default:
		for _, status := range []string{models.ClassStatusActive, models.ClassStatusPending} {
			docs, err := r.store.Query(ctx, models.CollectionClasses, "status", status)
			if err != nil {
				return nil, err
			}
			for _, doc := range docs {
				out[doc.ID] = true
			}
		}
	}
	return out, nil
}

func rangeDates(startDate, endDate string) ([]interface{}, error) {
	start, err := time.Parse(models.DateLayout, startDate)
	if err != nil {
		return nil, err
	}
	end, err := time.Parse(models.DateLayout, endDate)
	if err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, errors.New("end date before start date")
	}
	var dates []interface{}
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		dates = append(dates, day.Format(models.DateLayout))
	}
	return dates, nil
}
