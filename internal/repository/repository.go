package repository

import (
	"context"
	"errors"
	"time"

	"github.com/spec-kit/enrollment-service/internal/domain"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrStatusMismatch is returned by ConditionalUpdate when the stored status
	// differs from the expected one.
	ErrStatusMismatch = errors.New("enrollment status changed concurrently")
	// ErrDuplicateActive is returned when an insert would create a second active
	// enrollment for the same student and offering.
	ErrDuplicateActive = errors.New("active enrollment already exists")
)

// EnrollmentTx is the set of record-store operations composable inside one transaction.
type EnrollmentTx interface {
	// LockOffering serializes admissions to one offering until the transaction ends.
	LockOffering(ctx context.Context, offeringID string) error
	Insert(ctx context.Context, enrollment *domain.Enrollment) error
	GetByID(ctx context.Context, id string) (*domain.Enrollment, error)
	FindActive(ctx context.Context, studentID, offeringID string) (*domain.Enrollment, error)
	ConditionalUpdate(ctx context.Context, id string, expected domain.EnrollmentStatus, patch domain.EnrollmentPatch) (*domain.Enrollment, error)
	CountByOfferingAndStatuses(ctx context.Context, offeringID string, statuses []domain.EnrollmentStatus) (int, error)
}

// TxManager runs fn inside a single ACID transaction. The transaction commits
// when fn returns nil and rolls back otherwise.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx EnrollmentTx) error) error
}

// Cursor is a keyset position in the (created_at DESC, id DESC) order.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// EnrollmentFilter captures listing parameters. Empty slices and nil pointers
// leave the dimension unfiltered.
type EnrollmentFilter struct {
	StudentID   *string
	OfferingIDs []string
	BatchIDs    []string
	Statuses    []domain.EnrollmentStatus
	After       *Cursor
	Limit       int
}

// EnrollmentReader is the read side of the record store.
type EnrollmentReader interface {
	GetByID(ctx context.Context, id string) (*domain.Enrollment, error)
	List(ctx context.Context, filter EnrollmentFilter) ([]domain.Enrollment, error)
	CountByOfferingAndStatuses(ctx context.Context, offeringID string, statuses []domain.EnrollmentStatus) (int, error)
}

// OfferingReader reads externally owned offering and semester data.
type OfferingReader interface {
	GetOffering(ctx context.Context, id string) (*domain.CourseOffering, error)
	GetSemester(ctx context.Context, id string) (*domain.Semester, error)
}

// StudentReader resolves a student's batch for advisor scoping.
type StudentReader interface {
	GetBatchID(ctx context.Context, studentID string) (string, error)
}

// DocumentChecker reports whether a user uploaded a document of the given type.
type DocumentChecker interface {
	HasDocument(ctx context.Context, userID string, docType domain.DocumentType) (bool, error)
}

// AuditRepository stores append-only audit entries.
type AuditRepository interface {
	Append(ctx context.Context, event *domain.AuditEvent) error
	ListByEntity(ctx context.Context, entityType, entityID string) ([]domain.AuditEvent, error)
}

// Store bundles every collaborator a backend provides.
type Store interface {
	TxManager
	EnrollmentReader
	OfferingReader
	StudentReader
	DocumentChecker
	AuditRepository
}

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// NormalizeLimit clamps a requested page size.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
