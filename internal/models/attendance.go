package models

// Collection names for the attendance record shapes.
const (
	CollectionAttendance        = "attendance"
	CollectionStudentAttendance = "student_attendance"
)

// AttendanceEntry is one student's outcome inside a batch attendance record.
type AttendanceEntry struct {
	StudentID   string `json:"studentId"`
	StudentName string `json:"studentName"`
	Status      string `json:"status"`
}

// AttendanceRecord is the batch shape: every student of one session in a
// single document.
type AttendanceRecord struct {
	ID           string            `json:"id"`
	SessionID    string            `json:"sessionId"`
	ClassID      string            `json:"classId"`
	ClassName    string            `json:"className"`
	Date         string            `json:"date"`
	Entries      []AttendanceEntry `json:"entries"`
	ClassDeleted bool              `json:"classDeleted,omitempty"`
}

// StudentAttendance is the per-student shape: one document per student per
// session.
type StudentAttendance struct {
	ID           string `json:"id"`
	StudentID    string `json:"studentId"`
	StudentName  string `json:"studentName"`
	SessionID    string `json:"sessionId"`
	ClassID      string `json:"classId"`
	ClassName    string `json:"className"`
	Date         string `json:"date"`
	Status       string `json:"status"`
	ClassDeleted bool   `json:"classDeleted,omitempty"`
}
