package domain

import "time"

// OfferingStatus is owned by the course catalogue; the workflow only reads it.
type OfferingStatus string

const (
	OfferingStatusProposed  OfferingStatus = "PROPOSED"
	OfferingStatusEnrolling OfferingStatus = "ENROLLING"
	OfferingStatusClosed    OfferingStatus = "CLOSED"
)

// CourseOffering is one run of a course in a semester.
type CourseOffering struct {
	ID           string
	CourseID     string
	SemesterID   string
	InstructorID string
	Status       OfferingStatus
	MaxCapacity  int
}

// Semester supplies the enrollment deadline.
type Semester struct {
	ID                 string
	Name               string
	EnrollmentDeadline time.Time
}

// SeatSummary reports seat usage for an offering.
type SeatSummary struct {
	OfferingID  string
	MaxCapacity int
	Occupied    int
	Available   int
}

// DocumentType names a supporting document a student uploads elsewhere.
type DocumentType string

const DocumentTypeFeeReceipt DocumentType = "FEE_RECEIPT"
