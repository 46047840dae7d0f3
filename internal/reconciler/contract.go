package reconciler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/center-ops-api/internal/models"
	"github.com/noah-isme/center-ops-api/internal/store"
)

// ContractReconciler applies paid and partially paid student contracts to
// the student's session balance, adjusts contract-driven student status,
// and records exactly one enrollment ledger entry per contract.
type ContractReconciler struct {
	store  store.Store
	logger *zap.Logger
}

// NewContractReconciler builds the reconciler.
func NewContractReconciler(s store.Store, logger *zap.Logger) *ContractReconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContractReconciler{store: s, logger: logger}
}

// Handle reacts to one committed contract change.
func (r *ContractReconciler) Handle(ctx context.Context, event store.Event) error {
	prev, next, err := decodeBoth[models.Contract](event.Before, event.After)
	if err != nil {
		return err
	}
	if next == nil || next.Type != models.ContractTypeStudent {
		return nil
	}
	if next.Status != models.ContractStatusPaid && next.Status != models.ContractStatusPartiallyPaid {
		return nil
	}
	// Only the transition into a paid state fires; a re-save with the same
	// status must not grant sessions twice.
	if event.Kind == store.ChangeUpdate && prev != nil && prev.Status == next.Status {
		return nil
	}

	totalSessions := 0
	for _, item := range next.Items {
		if item.Type == models.ContractItemTypeCourse {
			totalSessions += item.Quantity
		}
	}
	if totalSessions == 0 {
		return nil
	}

	paidSessions := totalSessions
	if next.Status == models.ContractStatusPartiallyPaid {
		if next.TotalAmount <= 0 {
			return nil
		}
		ratio := float64(next.PaidAmount) / float64(next.TotalAmount)
		paidSessions = int(math.Floor(float64(totalSessions) * ratio))
		if paidSessions <= 0 {
			return nil
		}
	}

	// The enrollment ledger entry doubles as the idempotency marker: once
	// it exists, this contract has already been applied and a redelivered
	// trigger must not touch the balance again.
	key := models.EnrollmentKey(next.StudentID, event.DocID)
	if _, err := r.store.Get(ctx, models.CollectionEnrollments, key); err == nil {
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	raw, err := r.store.Get(ctx, models.CollectionStudents, next.StudentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			r.logger.Warn("contract for unknown student",
				zap.String("contract_id", event.DocID),
				zap.String("student_id", next.StudentID))
			return nil
		}
		return err
	}
	var student models.Student
	if err := store.Decode(raw, &student); err != nil {
		return err
	}

	// Renewals and transfers always add; a first-time contract adds once a
	// balance exists and otherwise sets the initial balance.
	registered := student.RegisteredSessions
	switch next.Category {
	case models.ContractCategoryRenewal, models.ContractCategoryTransfer:
		registered += paidSessions
	default:
		if registered > 0 {
			registered += paidSessions
		} else {
			registered = paidSessions
		}
	}

	patch := map[string]interface{}{
		"registeredSessions": registered,
		"remainingSessions":  registered - student.AttendedSessions,
	}
	switch {
	case next.Status == models.ContractStatusPartiallyPaid:
		patch["status"] = models.StudentStatusContractDebt
		patch["remainingAmount"] = next.RemainingAmount
		patch["nextPaymentDate"] = next.NextPaymentDate
	case student.Status == models.StudentStatusTrial:
		patch["status"] = models.StudentStatusActive
	}
	if err := r.store.Update(ctx, models.CollectionStudents, next.StudentID, patch); err != nil {
		return err
	}

	return r.ensureEnrollment(ctx, event.DocID, next, paidSessions, totalSessions)
}

// ensureEnrollment writes the ledger entry under its deterministic
// (studentId, contractId) key.
func (r *ContractReconciler) ensureEnrollment(ctx context.Context, contractID string, contract *models.Contract, paidSessions, totalSessions int) error {
	key := models.EnrollmentKey(contract.StudentID, contractID)
	note := fmt.Sprintf("%d sessions from contract %s", paidSessions, contract.Code)
	if contract.Status == models.ContractStatusPartiallyPaid {
		percent := float64(contract.PaidAmount) / float64(contract.TotalAmount) * 100
		note = fmt.Sprintf("%d of %d sessions from contract %s (%.0f%% paid)",
			paidSessions, totalSessions, contract.Code, percent)
	}

	enrollment := models.Enrollment{
		ID:           key,
		StudentID:    contract.StudentID,
		ClassID:      contract.ClassID,
		Sessions:     paidSessions,
		ContractID:   contractID,
		ContractCode: contract.Code,
		Amount:       contract.PaidAmount,
		Note:         note,
		CreatedBy:    models.HistoryActorSystem,
		CreatedAt:    time.Now().UTC(),
	}
	return r.store.Set(ctx, models.CollectionEnrollments, key, enrollment)
}
