package domain

import "time"

// AuditAction tags an audit entry.
type AuditAction string

const (
	AuditActionEnroll   AuditAction = "ENROLL"
	AuditActionUnenroll AuditAction = "UNENROLL"
	AuditActionComplete AuditAction = "COMPLETE"
)

// AuditEntityEnrollment is the entity type of every event this service writes.
const AuditEntityEnrollment = "ENROLLMENT"

// AuditEvent is an immutable audit trail entry.
type AuditEvent struct {
	ID         string
	ActorID    string
	Action     AuditAction
	EntityType string
	EntityID   string
	Before     map[string]any
	After      map[string]any
	CreatedAt  time.Time
}
