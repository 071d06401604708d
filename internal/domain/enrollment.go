package domain

import "time"

// EnrollmentStatus enumerates lifecycle states for enrollments.
type EnrollmentStatus string

const (
	EnrollmentStatusPending            EnrollmentStatus = "PENDING"
	EnrollmentStatusInstructorApproved EnrollmentStatus = "INSTRUCTOR_APPROVED"
	EnrollmentStatusInstructorRejected EnrollmentStatus = "INSTRUCTOR_REJECTED"
	EnrollmentStatusAdvisorApproved    EnrollmentStatus = "ADVISOR_APPROVED"
	EnrollmentStatusAdvisorRejected    EnrollmentStatus = "ADVISOR_REJECTED"
	EnrollmentStatusEnrolled           EnrollmentStatus = "ENROLLED"
	EnrollmentStatusDropped            EnrollmentStatus = "DROPPED"
	EnrollmentStatusCompleted          EnrollmentStatus = "COMPLETED"
)

// ActiveStatuses are the statuses of which a (student, offering) pair may hold at most one.
var ActiveStatuses = []EnrollmentStatus{
	EnrollmentStatusPending,
	EnrollmentStatusInstructorApproved,
	EnrollmentStatusAdvisorApproved,
	EnrollmentStatusEnrolled,
}

// IsTerminal reports whether no further transition can leave s.
func (s EnrollmentStatus) IsTerminal() bool {
	switch s {
	case EnrollmentStatusInstructorRejected, EnrollmentStatusAdvisorRejected,
		EnrollmentStatusDropped, EnrollmentStatusCompleted:
		return true
	}
	return false
}

// IsActive reports whether s is one of ActiveStatuses.
func (s EnrollmentStatus) IsActive() bool {
	for _, active := range ActiveStatuses {
		if s == active {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known status.
func (s EnrollmentStatus) Valid() bool {
	return s.IsActive() || s.IsTerminal()
}

// EnrollmentType distinguishes credit-bearing enrollments from audits.
type EnrollmentType string

const (
	EnrollmentTypeRegular EnrollmentType = "REGULAR"
	EnrollmentTypeAudit   EnrollmentType = "AUDIT"
)

// Valid reports whether t is a known type.
func (t EnrollmentType) Valid() bool {
	return t == EnrollmentTypeRegular || t == EnrollmentTypeAudit
}

// Enrollment is a student's request for, and occupancy of, a seat in an offering.
type Enrollment struct {
	ID                   string
	StudentID            string
	OfferingID           string
	Status               EnrollmentStatus
	Type                 EnrollmentType
	CreatedAt            time.Time
	UpdatedAt            time.Time
	InstructorApprovedAt *time.Time
	AdvisorApprovedAt    *time.Time
	DroppedAt            *time.Time
	CompletedAt          *time.Time
}

// EnrollmentPatch is applied by a conditional update. Nil timestamps leave the
// stored value untouched and stored timestamps are never overwritten.
type EnrollmentPatch struct {
	Status               EnrollmentStatus
	UpdatedAt            time.Time
	InstructorApprovedAt *time.Time
	AdvisorApprovedAt    *time.Time
	DroppedAt            *time.Time
	CompletedAt          *time.Time
}

// Apply returns a copy of e with the patch applied.
func (p EnrollmentPatch) Apply(e Enrollment) Enrollment {
	e.Status = p.Status
	if !p.UpdatedAt.IsZero() {
		e.UpdatedAt = p.UpdatedAt
	}
	e.InstructorApprovedAt = setOnce(e.InstructorApprovedAt, p.InstructorApprovedAt)
	e.AdvisorApprovedAt = setOnce(e.AdvisorApprovedAt, p.AdvisorApprovedAt)
	e.DroppedAt = setOnce(e.DroppedAt, p.DroppedAt)
	e.CompletedAt = setOnce(e.CompletedAt, p.CompletedAt)
	return e
}

func setOnce(current, next *time.Time) *time.Time {
	if current != nil || next == nil {
		return current
	}
	t := *next
	return &t
}

// Snapshot renders the fields recorded in audit before/after payloads.
func (e Enrollment) Snapshot() map[string]any {
	return map[string]any{
		"status":      string(e.Status),
		"student_id":  e.StudentID,
		"offering_id": e.OfferingID,
		"type":        string(e.Type),
	}
}
