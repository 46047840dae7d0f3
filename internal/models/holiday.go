package models

// CollectionHolidays stores holiday documents.
const CollectionHolidays = "holidays"

// Holiday statuses.
const (
	HolidayStatusApplied   = "applied"
	HolidayStatusUnapplied = "unapplied"
)

// Holiday apply scopes.
const (
	HolidayApplyAll     = "all"
	HolidayApplyBranch  = "branch"
	HolidayApplyClasses = "classes"
)

// Holiday cancels in-range sessions when applied. AffectedSessionIDs is
// populated on apply and is what makes reversal possible; it is cleared on
// revert.
type Holiday struct {
	ID                 string   `json:"id"`
	Name               string   `json:"name"`
	StartDate          string   `json:"startDate"`
	EndDate            string   `json:"endDate"`
	Status             string   `json:"status"`
	ApplyType          string   `json:"applyType"`
	Branch             string   `json:"branch,omitempty"`
	ClassIDs           []string `json:"classIds,omitempty"`
	AffectedSessionIDs []string `json:"affectedSessionIds"`
}
