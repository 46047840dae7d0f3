package models

import "time"

// Collection names for the class aggregate.
const (
	CollectionClasses  = "classes"
	CollectionSessions = "sessions"
	CollectionHomework = "homework"
)

// Class statuses.
const (
	ClassStatusActive  = "active"
	ClassStatusPending = "pending"
	ClassStatusClosed  = "closed"
)

// DateLayout is the calendar-date format stored on documents.
const DateLayout = "2006-01-02"

// HistoryActorSystem marks history entries appended by the reconcilers.
const HistoryActorSystem = "system"

// StudentCounts buckets a class roster by normalized student status. The
// buckets always equal the count of students whose classId points here.
type StudentCounts struct {
	Total    int `json:"total"`
	Active   int `json:"active"`
	Trial    int `json:"trial"`
	FeeDebt  int `json:"feeDebt"`
	Reserved int `json:"reserved"`
}

// TrainingHistoryEntry records one field change on a class.
type TrainingHistoryEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	ChangeType string    `json:"changeType"`
	OldValue   string    `json:"oldValue"`
	NewValue   string    `json:"newValue"`
	Actor      string    `json:"actor"`
}

// Class is a denormalized class document. Roster counts, progress and
// training history are reconciler-owned fields.
type Class struct {
	ID                 string                 `json:"id"`
	Name               string                 `json:"name"`
	Status             string                 `json:"status"`
	Schedule           string                 `json:"schedule"`
	TotalSessions      int                    `json:"totalSessions"`
	TeacherID          string                 `json:"teacherId"`
	TeacherName        string                 `json:"teacherName"`
	AssistantID        string                 `json:"assistantId"`
	AssistantName      string                 `json:"assistantName"`
	ForeignTeacherID   string                 `json:"foreignTeacherId"`
	ForeignTeacherName string                 `json:"foreignTeacherName"`
	Room               string                 `json:"room"`
	Branch             string                 `json:"branch"`
	StartDate          string                 `json:"startDate"`
	StudentsCount      StudentCounts          `json:"studentsCount"`
	Progress           string                 `json:"progress"`
	TrainingHistory    []TrainingHistoryEntry `json:"trainingHistory"`
}

// Session statuses.
const (
	SessionStatusUnheld    = "unheld"
	SessionStatusHeld      = "held"
	SessionStatusCancelled = "cancelled"
	SessionStatusMakeup    = "makeup"
)

// Session is one class meeting. Status "cancelled" carries a holidayId only
// when a holiday caused the cancellation.
type Session struct {
	ID            string `json:"id"`
	ClassID       string `json:"classId"`
	ClassName     string `json:"className"`
	SessionNumber int    `json:"sessionNumber"`
	Date          string `json:"date"`
	Weekday       string `json:"weekday"`
	TimeRange     string `json:"timeRange"`
	Room          string `json:"room"`
	Teacher       string `json:"teacher"`
	Status        string `json:"status"`
	HolidayID     string `json:"holidayId,omitempty"`
}

// HomeworkRecord ties homework to a session; removed when the session goes.
type HomeworkRecord struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionId"`
	StudentID string `json:"studentId"`
	Content   string `json:"content"`
	Completed bool   `json:"completed"`
}
