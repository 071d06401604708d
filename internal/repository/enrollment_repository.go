package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spec-kit/enrollment-service/internal/domain"
)

const uniqueViolation = "23505"

// pgxPool abstracts the subset of pgxpool.Pool used by the repositories for easier testing.
type pgxPool interface {
	querier
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// querier is satisfied by both the pool and an open transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const enrollmentColumns = `id, student_id, offering_id, status, enrollment_type, created_at, updated_at,
               instructor_approved_at, advisor_approved_at, dropped_at, completed_at`

// EnrollmentRepository is the Postgres-backed record store.
type EnrollmentRepository struct {
	pool pgxPool
}

// NewEnrollmentRepository instantiates the repository.
func NewEnrollmentRepository(pool pgxPool) *EnrollmentRepository {
	return &EnrollmentRepository{pool: pool}
}

// WithinTx runs fn in a read-committed transaction. Admission races are closed by
// LockOffering and status races by the conditional update, so no stronger isolation
// level is needed.
func (r *EnrollmentRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx EnrollmentTx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin enrollment tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op if committed

	if err := fn(ctx, &pgEnrollmentTx{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit enrollment tx: %w", err)
	}
	return nil
}

func (r *EnrollmentRepository) GetByID(ctx context.Context, id string) (*domain.Enrollment, error) {
	return getEnrollment(ctx, r.pool, id)
}

func (r *EnrollmentRepository) CountByOfferingAndStatuses(ctx context.Context, offeringID string, statuses []domain.EnrollmentStatus) (int, error) {
	return countEnrollments(ctx, r.pool, offeringID, statuses)
}

// List returns enrollments newest first, continuing after filter.After when set.
func (r *EnrollmentRepository) List(ctx context.Context, filter EnrollmentFilter) ([]domain.Enrollment, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.StudentID != nil {
		args = append(args, *filter.StudentID)
		clauses = append(clauses, fmt.Sprintf("student_id=$%d", len(args)))
	}
	if len(filter.OfferingIDs) > 0 {
		args = append(args, filter.OfferingIDs)
		clauses = append(clauses, fmt.Sprintf("offering_id = ANY($%d)", len(args)))
	}
	if len(filter.BatchIDs) > 0 {
		args = append(args, filter.BatchIDs)
		clauses = append(clauses, fmt.Sprintf("student_id IN (SELECT id FROM students WHERE batch_id = ANY($%d))", len(args)))
	}
	if len(filter.Statuses) > 0 {
		args = append(args, statusStrings(filter.Statuses))
		clauses = append(clauses, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if filter.After != nil {
		args = append(args, filter.After.CreatedAt, filter.After.ID)
		created, id := len(args)-1, len(args)
		clauses = append(clauses, fmt.Sprintf("(created_at < $%d OR (created_at = $%d AND id < $%d))", created, created, id))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := fmt.Sprintf(`SELECT %s FROM enrollments WHERE %s ORDER BY created_at DESC, id DESC LIMIT %d`,
		enrollmentColumns, strings.Join(clauses, " AND "), limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	defer rows.Close()
	return scanEnrollments(rows)
}

type pgEnrollmentTx struct {
	q querier
}

func (t *pgEnrollmentTx) LockOffering(ctx context.Context, offeringID string) error {
	if _, err := t.q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, offeringID); err != nil {
		return fmt.Errorf("lock offering %s: %w", offeringID, err)
	}
	return nil
}

func (t *pgEnrollmentTx) Insert(ctx context.Context, enrollment *domain.Enrollment) error {
	const query = `
        INSERT INTO enrollments (id, student_id, offering_id, status, enrollment_type, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$6)`
	_, err := t.q.Exec(ctx, query,
		enrollment.ID,
		enrollment.StudentID,
		enrollment.OfferingID,
		string(enrollment.Status),
		string(enrollment.Type),
		enrollment.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateActive
		}
		return fmt.Errorf("insert enrollment: %w", err)
	}
	enrollment.UpdatedAt = enrollment.CreatedAt
	return nil
}

func (t *pgEnrollmentTx) GetByID(ctx context.Context, id string) (*domain.Enrollment, error) {
	return getEnrollment(ctx, t.q, id)
}

func (t *pgEnrollmentTx) FindActive(ctx context.Context, studentID, offeringID string) (*domain.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + `
        FROM enrollments WHERE student_id=$1 AND offering_id=$2 AND status = ANY($3) LIMIT 1`
	enrollment, err := scanEnrollment(t.q.QueryRow(ctx, query, studentID, offeringID, statusStrings(domain.ActiveStatuses)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find active enrollment: %w", err)
	}
	return enrollment, nil
}

func (t *pgEnrollmentTx) ConditionalUpdate(ctx context.Context, id string, expected domain.EnrollmentStatus, patch domain.EnrollmentPatch) (*domain.Enrollment, error) {
	query := `
        UPDATE enrollments SET status=$3, updated_at=$4,
            instructor_approved_at=COALESCE(instructor_approved_at, $5),
            advisor_approved_at=COALESCE(advisor_approved_at, $6),
            dropped_at=COALESCE(dropped_at, $7),
            completed_at=COALESCE(completed_at, $8)
        WHERE id=$1 AND status=$2
        RETURNING ` + enrollmentColumns
	enrollment, err := scanEnrollment(t.q.QueryRow(ctx, query,
		id,
		string(expected),
		string(patch.Status),
		patch.UpdatedAt,
		patch.InstructorApprovedAt,
		patch.AdvisorApprovedAt,
		patch.DroppedAt,
		patch.CompletedAt,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStatusMismatch
		}
		return nil, fmt.Errorf("conditional update enrollment: %w", err)
	}
	return enrollment, nil
}

func (t *pgEnrollmentTx) CountByOfferingAndStatuses(ctx context.Context, offeringID string, statuses []domain.EnrollmentStatus) (int, error) {
	return countEnrollments(ctx, t.q, offeringID, statuses)
}

func getEnrollment(ctx context.Context, q querier, id string) (*domain.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE id=$1`
	enrollment, err := scanEnrollment(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get enrollment: %w", err)
	}
	return enrollment, nil
}

func countEnrollments(ctx context.Context, q querier, offeringID string, statuses []domain.EnrollmentStatus) (int, error) {
	const query = `SELECT COUNT(*) FROM enrollments WHERE offering_id=$1 AND status = ANY($2)`
	var count int
	if err := q.QueryRow(ctx, query, offeringID, statusStrings(statuses)).Scan(&count); err != nil {
		return 0, fmt.Errorf("count enrollments: %w", err)
	}
	return count, nil
}

func scanEnrollment(row pgx.Row) (*domain.Enrollment, error) {
	var e domain.Enrollment
	if err := row.Scan(
		&e.ID,
		&e.StudentID,
		&e.OfferingID,
		&e.Status,
		&e.Type,
		&e.CreatedAt,
		&e.UpdatedAt,
		&e.InstructorApprovedAt,
		&e.AdvisorApprovedAt,
		&e.DroppedAt,
		&e.CompletedAt,
	); err != nil {
		return nil, err
	}
	return &e, nil
}

func scanEnrollments(rows pgx.Rows) ([]domain.Enrollment, error) {
	result := []domain.Enrollment{}
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan enrollment: %w", err)
		}
		result = append(result, *e)
	}
	return result, rows.Err()
}

func statusStrings(statuses []domain.EnrollmentStatus) []string {
	values := make([]string, 0, len(statuses))
	for _, status := range statuses {
		values = append(values, string(status))
	}
	return values
}
