package models

import "time"

// Collection names for the staff aggregate.
const (
	CollectionStaff               = "staff"
	CollectionWorkSessions        = "work_sessions"
	CollectionStaffAttendanceLogs = "staff_attendance_logs"
	CollectionRewardsPenalties    = "rewards_penalties"
	CollectionSalarySummaries     = "salary_summaries"
)

// Staff statuses.
const (
	StaffStatusActive   = "active"
	StaffStatusInactive = "inactive"
)

// Teaching positions are paid per confirmed work session; everyone else is
// prorated on attendance-log work days.
const (
	PositionTeacher        = "teacher"
	PositionForeignTeacher = "foreign_teacher"
)

// Staff is one employee document.
type Staff struct {
	ID         string `json:"id"`
	FullName   string `json:"fullName"`
	Position   string `json:"position"`
	Branch     string `json:"branch"`
	Status     string `json:"status"`
	BaseSalary int64  `json:"baseSalary"`
}

// IsTeaching reports whether the staff member is paid per session.
func (s Staff) IsTeaching() bool {
	return s.Position == PositionTeacher || s.Position == PositionForeignTeacher
}

// WorkSession statuses.
const WorkSessionStatusConfirmed = "confirmed"

// WorkSession is one delivered teaching session.
type WorkSession struct {
	ID      string `json:"id"`
	StaffID string `json:"staffId"`
	ClassID string `json:"classId"`
	Date    string `json:"date"`
	Status  string `json:"status"`
}

// StaffAttendanceLog statuses; anything except unexcused-absence counts as
// a worked day.
const StaffAttendanceUnexcusedAbsence = "unexcused-absence"

// StaffAttendanceLog is one day of a non-teaching staff member.
type StaffAttendanceLog struct {
	ID      string `json:"id"`
	StaffID string `json:"staffId"`
	Date    string `json:"date"`
	Status  string `json:"status"`
}

// RewardPenalty kinds.
const (
	RewardPenaltyKindReward  = "reward"
	RewardPenaltyKindPenalty = "penalty"
)

// RewardPenalty is one reward or penalty posted to a staff member's period.
type RewardPenalty struct {
	ID        string    `json:"id"`
	StaffID   string    `json:"staffId"`
	Kind      string    `json:"kind"`
	Amount    int64     `json:"amount"`
	Reason    string    `json:"reason"`
	Month     int       `json:"month"`
	Year      int       `json:"year"`
	CreatedAt time.Time `json:"createdAt"`
}

// SalarySummary statuses.
const (
	SalaryStatusDraft     = "draft"
	SalaryStatusConfirmed = "confirmed"
)

// SalarySummary is the per-staff per-period salary document maintained by
// the monthly job, adjusted incrementally by reward/penalty events, and
// fully recomputable on demand.
type SalarySummary struct {
	ID            string    `json:"id"`
	StaffID       string    `json:"staffId"`
	StaffName     string    `json:"staffName"`
	Position      string    `json:"position"`
	Month         int       `json:"month"`
	Year          int       `json:"year"`
	BaseSalary    int64     `json:"baseSalary"`
	PositionBonus int64     `json:"positionBonus"`
	WorkDays      int       `json:"workDays"`
	WorkSessions  int       `json:"workSessions"`
	Earned        int64     `json:"earned"`
	Rewards       int64     `json:"rewards"`
	Penalties     int64     `json:"penalties"`
	TotalGross    int64     `json:"totalGross"`
	TotalNet      int64     `json:"totalNet"`
	Status        string    `json:"status"`
	ComputedAt    time.Time `json:"computedAt"`
}

// SalaryKey is the deterministic document key for one staff period, making
// the monthly upsert idempotent.
func SalaryKey(staffID string, month, year int) string {
	return staffID + ":" + Period(month, year)
}

// Period renders a month/year pair as "YYYY-MM".
func Period(month, year int) string {
	return time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC).Format("2006-01")
}
