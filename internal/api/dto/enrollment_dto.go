package dto

import (
	"time"

	"github.com/spec-kit/enrollment-service/internal/domain"
)

// EnrollRequest payload for POST /enrollments.
type EnrollRequest struct {
	OfferingID string                `json:"offering_id"`
	Type       domain.EnrollmentType `json:"type"`
}

// RejectRequest payload for the reject endpoints.
type RejectRequest struct {
	Reason string `json:"reason"`
}

// EnrollmentResponse renders an enrollment.
type EnrollmentResponse struct {
	ID                   string                  `json:"id"`
	StudentID            string                  `json:"student_id"`
	OfferingID           string                  `json:"offering_id"`
	Status               domain.EnrollmentStatus `json:"status"`
	Type                 domain.EnrollmentType   `json:"type"`
	CreatedAt            time.Time               `json:"created_at"`
	UpdatedAt            time.Time               `json:"updated_at"`
	InstructorApprovedAt *time.Time              `json:"instructor_approved_at,omitempty"`
	AdvisorApprovedAt    *time.Time              `json:"advisor_approved_at,omitempty"`
	DroppedAt            *time.Time              `json:"dropped_at,omitempty"`
	CompletedAt          *time.Time              `json:"completed_at,omitempty"`
}

// EnrollmentPage is one page of a listing.
type EnrollmentPage struct {
	Items      []EnrollmentResponse `json:"items"`
	NextCursor string               `json:"next_cursor,omitempty"`
}

// AuditEventResponse renders an audit trail entry.
type AuditEventResponse struct {
	ID        string             `json:"id"`
	ActorID   string             `json:"actor_id"`
	Action    domain.AuditAction `json:"action"`
	Before    map[string]any     `json:"before,omitempty"`
	After     map[string]any     `json:"after,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
}

// SeatSummaryResponse renders an offering's seat usage.
type SeatSummaryResponse struct {
	OfferingID  string `json:"offering_id"`
	MaxCapacity int    `json:"max_capacity"`
	Occupied    int    `json:"occupied"`
	Available   int    `json:"available"`
}

// NewEnrollmentResponse maps a domain enrollment.
func NewEnrollmentResponse(e *domain.Enrollment) EnrollmentResponse {
	return EnrollmentResponse{
		ID:                   e.ID,
		StudentID:            e.StudentID,
		OfferingID:           e.OfferingID,
		Status:               e.Status,
		Type:                 e.Type,
		CreatedAt:            e.CreatedAt,
		UpdatedAt:            e.UpdatedAt,
		InstructorApprovedAt: e.InstructorApprovedAt,
		AdvisorApprovedAt:    e.AdvisorApprovedAt,
		DroppedAt:            e.DroppedAt,
		CompletedAt:          e.CompletedAt,
	}
}

// NewAuditEventResponse maps an audit entry.
func NewAuditEventResponse(e *domain.AuditEvent) AuditEventResponse {
	return AuditEventResponse{
		ID:        e.ID,
		ActorID:   e.ActorID,
		Action:    e.Action,
		Before:    e.Before,
		After:     e.After,
		CreatedAt: e.CreatedAt,
	}
}

// NewSeatSummaryResponse maps a seat summary.
func NewSeatSummaryResponse(s domain.SeatSummary) SeatSummaryResponse {
	return SeatSummaryResponse{
		OfferingID:  s.OfferingID,
		MaxCapacity: s.MaxCapacity,
		Occupied:    s.Occupied,
		Available:   s.Available,
	}
}
