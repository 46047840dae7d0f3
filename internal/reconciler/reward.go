package reconciler

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/noah-isme/center-ops-api/internal/models"
	"github.com/noah-isme/center-ops-api/internal/store"
)

// SalaryComputer recomputes one staff member's salary summary for a period
// from scratch.
type SalaryComputer interface {
	Recompute(ctx context.Context, staffID string, month, year int) error
}

// RewardReconciler folds a newly posted reward or penalty into the matching
// salary summary. An existing summary is adjusted incrementally; a missing
// one is built by a full recompute, which already includes the new posting.
type RewardReconciler struct {
	store    store.Store
	salaries SalaryComputer
	logger   *zap.Logger
}

// NewRewardReconciler builds the reconciler.
func NewRewardReconciler(s store.Store, salaries SalaryComputer, logger *zap.Logger) *RewardReconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RewardReconciler{store: s, salaries: salaries, logger: logger}
}

// Handle reacts to one committed rewards_penalties change. Only creates
// adjust summaries; edits and deletes of postings are reconciled by the next
// full recompute.
func (r *RewardReconciler) Handle(ctx context.Context, event store.Event) error {
	if event.Kind != store.ChangeCreate {
		return nil
	}
	var posting models.RewardPenalty
	if err := store.Decode(event.After, &posting); err != nil {
		return err
	}
	if posting.StaffID == "" || posting.Month < 1 || posting.Month > 12 {
		r.logger.Warn("reward posting is malformed, skipping",
			zap.String("posting_id", event.DocID))
		return nil
	}

	key := models.SalaryKey(posting.StaffID, posting.Month, posting.Year)
	raw, err := r.store.Get(ctx, models.CollectionSalarySummaries, key)
	if errors.Is(err, store.ErrNotFound) {
		return r.salaries.Recompute(ctx, posting.StaffID, posting.Month, posting.Year)
	}
	if err != nil {
		return err
	}

	var summary models.SalarySummary
	if err := store.Decode(raw, &summary); err != nil {
		return err
	}
	rewards, penalties := summary.Rewards, summary.Penalties
	if posting.Kind == models.RewardPenaltyKindPenalty {
		penalties += posting.Amount
	} else {
		rewards += posting.Amount
	}
	// Gross includes rewards, so a reward posting moves both totals while a
	// penalty only moves net.
	gross := summary.Earned + summary.PositionBonus + rewards
	return r.store.Update(ctx, models.CollectionSalarySummaries, key, map[string]interface{}{
		"rewards":    rewards,
		"penalties":  penalties,
		"totalGross": gross,
		"totalNet":   gross - penalties,
	})
}
