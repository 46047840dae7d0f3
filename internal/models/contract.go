package models

import "time"

// Collection names for the contract aggregate.
const (
	CollectionContracts   = "contracts"
	CollectionEnrollments = "enrollments"
)

// Contract types.
const (
	ContractTypeStudent = "student"
	ContractTypeGoods   = "goods"
)

// Contract categories.
const (
	ContractCategoryNew      = "new"
	ContractCategoryRenewal  = "renewal"
	ContractCategoryTransfer = "transfer"
)

// Contract statuses.
const (
	ContractStatusDraft         = "draft"
	ContractStatusPaid          = "paid"
	ContractStatusPartiallyPaid = "partially-paid"
	ContractStatusFeeDebt       = "fee-debt"
	ContractStatusCancelled     = "cancelled"
)

// ContractItem is one line item; only "course" items carry sessions.
const ContractItemTypeCourse = "course"

type ContractItem struct {
	Type     string `json:"type"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Price    int64  `json:"price"`
}

// Contract is a payment agreement for a student or for goods.
type Contract struct {
	ID              string         `json:"id"`
	Code            string         `json:"code"`
	Type            string         `json:"type"`
	Category        string         `json:"category"`
	StudentID       string         `json:"studentId"`
	ClassID         string         `json:"classId"`
	Status          string         `json:"status"`
	TotalAmount     int64          `json:"totalAmount"`
	PaidAmount      int64          `json:"paidAmount"`
	RemainingAmount int64          `json:"remainingAmount"`
	NextPaymentDate string         `json:"nextPaymentDate,omitempty"`
	Items           []ContractItem `json:"items"`
	CreatedBy       string         `json:"createdBy"`
}

// Enrollment is an append-only ledger entry granting sessions from a paid
// or partially paid contract. Keyed by EnrollmentKey so a retried trigger
// upserts the same document instead of creating a duplicate.
type Enrollment struct {
	ID           string    `json:"id"`
	StudentID    string    `json:"studentId"`
	ClassID      string    `json:"classId"`
	Sessions     int       `json:"sessions"`
	ContractID   string    `json:"contractId"`
	ContractCode string    `json:"contractCode"`
	Amount       int64     `json:"amount"`
	Note         string    `json:"note"`
	CreatedBy    string    `json:"createdBy"`
	CreatedAt    time.Time `json:"createdAt"`
}

// EnrollmentKey is the deterministic document key for one (student,
// contract) pair.
func EnrollmentKey(studentID, contractID string) string {
	return studentID + ":" + contractID
}
