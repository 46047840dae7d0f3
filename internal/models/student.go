package models

import "time"

// Collection names for the student aggregate.
const (
	CollectionStudents          = "students"
	CollectionAttendanceHistory = "attendance_history"
	CollectionSettlements       = "settlements"
)

// Student statuses. Legacy spellings are normalized through the configured
// alias table before any bucketing or comparison.
const (
	StudentStatusActive       = "active"
	StudentStatusTrial        = "trial"
	StudentStatusFeeDebt      = "fee-debt"
	StudentStatusContractDebt = "contract-debt"
	StudentStatusWithdrawn    = "withdrawn"
	StudentStatusReserved     = "reserved"
)

// Student is a denormalized student document. Session counters, debt flags
// and the expected end date are reconciler-owned; remainingSessions is
// always derived, never edited independently.
type Student struct {
	ID                 string     `json:"id"`
	FullName           string     `json:"fullName"`
	ClassID            string     `json:"classId"`
	ClassName          string     `json:"className"`
	Status             string     `json:"status"`
	Branch             string     `json:"branch"`
	RegisteredSessions int        `json:"registeredSessions"`
	AttendedSessions   int        `json:"attendedSessions"`
	RemainingSessions  int        `json:"remainingSessions"`
	StartDate          string     `json:"startDate"`
	ExpectedEndDate    string     `json:"expectedEndDate"`
	BadDebt            bool       `json:"badDebt"`
	BadDebtSessions    int        `json:"badDebtSessions"`
	BadDebtAmount      int64      `json:"badDebtAmount"`
	BadDebtNote        string     `json:"badDebtNote"`
	FeeDebtSessions    int        `json:"feeDebtSessions"`
	FeeDebtAt          *time.Time `json:"feeDebtAt,omitempty"`
	NextPaymentDate    string     `json:"nextPaymentDate,omitempty"`
	RemainingAmount    int64      `json:"remainingAmount,omitempty"`
}

// Settlement types.
const (
	SettlementTypeBadDebt = "bad_debt"
	SettlementTypePaid    = "paid"
)

// Settlement records how a withdrawn student's consumed-but-unpaid sessions
// were resolved. A bad_debt settlement is terminal; a paid settlement
// clears the flag.
type Settlement struct {
	ID        string    `json:"id"`
	StudentID string    `json:"studentId"`
	Type      string    `json:"type"`
	Sessions  int       `json:"sessions"`
	Amount    int64     `json:"amount"`
	Note      string    `json:"note"`
	CreatedAt time.Time `json:"createdAt"`
}

// AttendanceHistory is the per-student audit trail of attendance outcomes.
// It is cascaded on student renames and flagged, never deleted, when the
// student or class goes away.
type AttendanceHistory struct {
	ID           string `json:"id"`
	StudentID    string `json:"studentId"`
	StudentName  string `json:"studentName"`
	ClassID      string `json:"classId"`
	ClassName    string `json:"className"`
	SessionID    string `json:"sessionId"`
	Date         string `json:"date"`
	Status       string `json:"status"`
	Orphaned     bool   `json:"orphaned,omitempty"`
	ClassDeleted bool   `json:"classDeleted,omitempty"`
}
