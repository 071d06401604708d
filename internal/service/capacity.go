package service

import (
	"context"

	"github.com/spec-kit/enrollment-service/internal/domain"
	"github.com/spec-kit/enrollment-service/internal/repository"
	"github.com/spec-kit/enrollment-service/pkg/util/errorutil"
)

// SeatOccupyingStatuses are counted against an offering's capacity, for
// admission and for seat summaries alike.
var SeatOccupyingStatuses = domain.ActiveStatuses

// CapacityAccountant authorizes admissions against an offering's ceiling. The
// seat count is derived on every call and never cached.
type CapacityAccountant struct {
	reader repository.EnrollmentReader
}

// NewCapacityAccountant builds the accountant.
func NewCapacityAccountant(reader repository.EnrollmentReader) *CapacityAccountant {
	return &CapacityAccountant{reader: reader}
}

// Admit fails OFFERING_FULL when the offering has no free seat. It must run in
// the transaction that inserts the enrollment, after the offering lock is held.
func (c *CapacityAccountant) Admit(ctx context.Context, tx repository.EnrollmentTx, offering *domain.CourseOffering) error {
	count, err := tx.CountByOfferingAndStatuses(ctx, offering.ID, SeatOccupyingStatuses)
	if err != nil {
		return errorutil.Persistence(err)
	}
	if count >= offering.MaxCapacity {
		return errorutil.NewOfferingFull(offering.ID, offering.MaxCapacity)
	}
	return nil
}

// Summary reports occupied and available seats outside any transaction.
func (c *CapacityAccountant) Summary(ctx context.Context, offering *domain.CourseOffering) (domain.SeatSummary, error) {
	count, err := c.reader.CountByOfferingAndStatuses(ctx, offering.ID, SeatOccupyingStatuses)
	if err != nil {
		return domain.SeatSummary{}, errorutil.Persistence(err)
	}
	available := offering.MaxCapacity - count
	if available < 0 {
		available = 0
	}
	return domain.SeatSummary{
		OfferingID:  offering.ID,
		MaxCapacity: offering.MaxCapacity,
		Occupied:    count,
		Available:   available,
	}, nil
}
