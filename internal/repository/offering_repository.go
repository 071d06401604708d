package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/enrollment-service/internal/domain"
)

// OfferingRepository reads offerings and semesters owned by the course catalogue.
type OfferingRepository struct {
	pool querier
}

// NewOfferingRepository builds the repository.
func NewOfferingRepository(pool querier) *OfferingRepository {
	return &OfferingRepository{pool: pool}
}

func (r *OfferingRepository) GetOffering(ctx context.Context, id string) (*domain.CourseOffering, error) {
	const query = `
        SELECT id, course_id, semester_id, COALESCE(instructor_id, ''), status, max_capacity
        FROM course_offerings WHERE id=$1`
	var offering domain.CourseOffering
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&offering.ID,
		&offering.CourseID,
		&offering.SemesterID,
		&offering.InstructorID,
		&offering.Status,
		&offering.MaxCapacity,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get offering: %w", err)
	}
	return &offering, nil
}

func (r *OfferingRepository) GetSemester(ctx context.Context, id string) (*domain.Semester, error) {
	const query = `SELECT id, name, enrollment_deadline FROM semesters WHERE id=$1`
	var semester domain.Semester
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&semester.ID,
		&semester.Name,
		&semester.EnrollmentDeadline,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get semester: %w", err)
	}
	return &semester, nil
}
