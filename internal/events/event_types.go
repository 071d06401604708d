package events

import (
	"time"

	"github.com/spec-kit/enrollment-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventEnrollmentCreated      EventType = "enrollment_created"
	EventEnrollmentTransitioned EventType = "enrollment_transitioned"
)

// Actor identifies who caused an event.
type Actor struct {
	UserID string      `json:"user_id"`
	Role   domain.Role `json:"role"`
}

// Event represents a domain event emitted after a committed enrollment change.
type Event struct {
	ID           string    `json:"id"`
	Type         EventType `json:"type"`
	EnrollmentID string    `json:"enrollment_id"`
	Actor        Actor     `json:"actor"`
	Timestamp    time.Time `json:"timestamp"`
	Payload      any       `json:"payload"`
}

// EnrollmentCreatedPayload payload.
type EnrollmentCreatedPayload struct {
	StudentID  string                  `json:"student_id"`
	OfferingID string                  `json:"offering_id"`
	Status     domain.EnrollmentStatus `json:"status"`
	Type       domain.EnrollmentType   `json:"enrollment_type"`
}

// EnrollmentTransitionedPayload payload.
type EnrollmentTransitionedPayload struct {
	Operation  string                  `json:"operation"`
	StudentID  string                  `json:"student_id"`
	OfferingID string                  `json:"offering_id"`
	OldStatus  domain.EnrollmentStatus `json:"old_status"`
	NewStatus  domain.EnrollmentStatus `json:"new_status"`
	Reason     string                  `json:"reason,omitempty"`
}
