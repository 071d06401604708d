package service

import (
	"context"
	"errors"
	"time"

	"github.com/spec-kit/enrollment-service/internal/domain"
	"github.com/spec-kit/enrollment-service/internal/repository"
	"github.com/spec-kit/enrollment-service/pkg/util/errorutil"
)

// EligibilityGate runs the read-only pre-admission checks.
type EligibilityGate struct {
	offerings        repository.OfferingReader
	documents        repository.DocumentChecker
	requiredDocument domain.DocumentType
}

// NewEligibilityGate builds a gate. An empty requiredDocument disables the document check.
func NewEligibilityGate(offerings repository.OfferingReader, documents repository.DocumentChecker, requiredDocument domain.DocumentType) *EligibilityGate {
	return &EligibilityGate{offerings: offerings, documents: documents, requiredDocument: requiredDocument}
}

// Check verifies, in order, that the offering is open, the semester deadline has
// not passed and the student holds the required document. It returns the
// offering so admission can use its capacity.
func (g *EligibilityGate) Check(ctx context.Context, studentID, offeringID string, now time.Time) (*domain.CourseOffering, error) {
	offering, err := g.offerings.GetOffering(ctx, offeringID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errorutil.NewNotFound("offering", map[string]any{"offering_id": offeringID})
		}
		return nil, errorutil.Persistence(err)
	}
	if offering.Status != domain.OfferingStatusEnrolling {
		return nil, errorutil.NewOfferingNotOpen(offering.ID)
	}

	semester, err := g.offerings.GetSemester(ctx, offering.SemesterID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errorutil.NewNotFound("semester", map[string]any{"semester_id": offering.SemesterID})
		}
		return nil, errorutil.Persistence(err)
	}
	if now.After(semester.EnrollmentDeadline) {
		return nil, errorutil.NewDeadlinePassed(semester.ID)
	}

	if g.requiredDocument != "" {
		ok, err := g.documents.HasDocument(ctx, studentID, g.requiredDocument)
		if err != nil {
			return nil, errorutil.Persistence(err)
		}
		if !ok {
			return nil, errorutil.NewMissingDocument(string(g.requiredDocument))
		}
	}
	return offering, nil
}
