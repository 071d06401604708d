// Package sqlite provides a SQLite-backed enrollment store for single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/spec-kit/enrollment-service/internal/domain"
	"github.com/spec-kit/enrollment-service/internal/repository"
	"github.com/spec-kit/enrollment-service/internal/repository/sqlite/migrations"
)

// Store persists enrollments, reference data, and audit entries in SQLite.
// Transactions begin IMMEDIATE, which takes the database write lock up front and
// serializes admissions without a per-offering lock.
type Store struct {
	sqlDB *sql.DB
}

var _ repository.Store = (*Store)(nil)

const enrollmentColumns = `id, student_id, offering_id, status, enrollment_type, created_at, updated_at,
       instructor_approved_at, advisor_approved_at, dropped_at, completed_at`

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func toNanos(value time.Time) int64 {
	return value.UTC().UnixNano()
}

func fromNanos(value int64) time.Time {
	return time.Unix(0, value).UTC()
}

func nullableNanos(value *time.Time) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toNanos(*value), Valid: true}
}

func timePtr(value sql.NullInt64) *time.Time {
	if !value.Valid {
		return nil
	}
	t := fromNanos(value.Int64)
	return &t
}

// Open opens a SQLite enrollment store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := "file:" + cleanPath +
		"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_txlock=immediate"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return s.sqlDB.PingContext(ctx)
}

func applyMigrations(sqlDB *sql.DB, migrationFS fs.FS) error {
	if _, err := sqlDB.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
    name TEXT PRIMARY KEY,
    applied_at INTEGER NOT NULL
)`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	entries, err := fs.ReadDir(migrationFS, ".")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	for _, name := range files {
		var applied int
		if err := sqlDB.QueryRow(`SELECT COUNT(*) FROM schema_migrations WHERE name = ?`, name).Scan(&applied); err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if applied > 0 {
			continue
		}
		content, err := fs.ReadFile(migrationFS, name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		tx, err := sqlDB.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", name, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", name, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (name, applied_at) VALUES (?, ?)`, name, time.Now().UTC().UnixMilli()); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", name, err)
		}
	}
	return nil
}

// WithinTx runs fn in one write transaction, committing only when fn succeeds.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.EnrollmentTx) error) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin enrollment tx: %w", err)
	}
	if err := fn(ctx, &enrollmentTx{q: tx}); err != nil {
		return rollbackWith(tx, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit enrollment tx: %w", err)
	}
	return nil
}

func rollbackWith(tx *sql.Tx, err error) error {
	if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
		return errors.Join(err, fmt.Errorf("rollback enrollment tx: %w", rbErr))
	}
	return err
}

func (s *Store) GetByID(ctx context.Context, id string) (*domain.Enrollment, error) {
	return getEnrollment(ctx, s.sqlDB, id)
}

func (s *Store) CountByOfferingAndStatuses(ctx context.Context, offeringID string, statuses []domain.EnrollmentStatus) (int, error) {
	return countEnrollments(ctx, s.sqlDB, offeringID, statuses)
}

// List returns enrollments newest first, continuing after filter.After when set.
func (s *Store) List(ctx context.Context, filter repository.EnrollmentFilter) ([]domain.Enrollment, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.StudentID != nil {
		clauses = append(clauses, "student_id = ?")
		args = append(args, *filter.StudentID)
	}
	if len(filter.OfferingIDs) > 0 {
		clauses = append(clauses, "offering_id IN ("+placeholders(len(filter.OfferingIDs))+")")
		for _, id := range filter.OfferingIDs {
			args = append(args, id)
		}
	}
	if len(filter.BatchIDs) > 0 {
		clauses = append(clauses, "student_id IN (SELECT id FROM students WHERE batch_id IN ("+placeholders(len(filter.BatchIDs))+"))")
		for _, id := range filter.BatchIDs {
			args = append(args, id)
		}
	}
	if len(filter.Statuses) > 0 {
		clauses = append(clauses, "status IN ("+placeholders(len(filter.Statuses))+")")
		for _, status := range filter.Statuses {
			args = append(args, string(status))
		}
	}
	if filter.After != nil {
		created := toNanos(filter.After.CreatedAt)
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, created, created, filter.After.ID)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = repository.NormalizeLimit(0)
	}
	args = append(args, limit)

	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE ` + strings.Join(clauses, " AND ") +
		` ORDER BY created_at DESC, id DESC LIMIT ?`
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	defer rows.Close()

	result := []domain.Enrollment{}
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan enrollment: %w", err)
		}
		result = append(result, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate enrollments: %w", err)
	}
	return result, nil
}

func (s *Store) GetOffering(ctx context.Context, id string) (*domain.CourseOffering, error) {
	var o domain.CourseOffering
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, course_id, semester_id, instructor_id, status, max_capacity FROM course_offerings WHERE id = ?`, id,
	).Scan(&o.ID, &o.CourseID, &o.SemesterID, &o.InstructorID, &o.Status, &o.MaxCapacity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get offering: %w", err)
	}
	return &o, nil
}

func (s *Store) GetSemester(ctx context.Context, id string) (*domain.Semester, error) {
	var (
		sem      domain.Semester
		deadline int64
	)
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, name, enrollment_deadline FROM semesters WHERE id = ?`, id,
	).Scan(&sem.ID, &sem.Name, &deadline)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get semester: %w", err)
	}
	sem.EnrollmentDeadline = fromNanos(deadline)
	return &sem, nil
}

func (s *Store) GetBatchID(ctx context.Context, studentID string) (string, error) {
	var batchID string
	err := s.sqlDB.QueryRowContext(ctx, `SELECT batch_id FROM students WHERE id = ?`, studentID).Scan(&batchID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", repository.ErrNotFound
		}
		return "", fmt.Errorf("get student batch: %w", err)
	}
	return batchID, nil
}

func (s *Store) HasDocument(ctx context.Context, userID string, docType domain.DocumentType) (bool, error) {
	var exists int
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM student_documents WHERE user_id = ? AND doc_type = ?)`, userID, string(docType),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check document: %w", err)
	}
	return exists == 1, nil
}

func (s *Store) Append(ctx context.Context, event *domain.AuditEvent) error {
	before, err := marshalSnapshot(event.Before)
	if err != nil {
		return fmt.Errorf("encode audit before: %w", err)
	}
	after, err := marshalSnapshot(event.After)
	if err != nil {
		return fmt.Errorf("encode audit after: %w", err)
	}
	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO audit_logs (id, actor_id, action, entity_type, entity_id, before_json, after_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		event.ActorID,
		string(event.Action),
		event.EntityType,
		event.EntityID,
		before,
		after,
		toNanos(event.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

func (s *Store) ListByEntity(ctx context.Context, entityType, entityID string) ([]domain.AuditEvent, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, actor_id, action, entity_type, entity_id, before_json, after_json, created_at
		 FROM audit_logs WHERE entity_type = ? AND entity_id = ? ORDER BY created_at ASC, id ASC`,
		entityType, entityID,
	)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	result := []domain.AuditEvent{}
	for rows.Next() {
		var (
			event         domain.AuditEvent
			before, after sql.NullString
			createdAt     int64
		)
		if err := rows.Scan(&event.ID, &event.ActorID, &event.Action, &event.EntityType, &event.EntityID,
			&before, &after, &createdAt); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		if event.Before, err = unmarshalSnapshot(before); err != nil {
			return nil, fmt.Errorf("decode audit before: %w", err)
		}
		if event.After, err = unmarshalSnapshot(after); err != nil {
			return nil, fmt.Errorf("decode audit after: %w", err)
		}
		event.CreatedAt = fromNanos(createdAt)
		result = append(result, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return result, nil
}

// PutOffering inserts or replaces an offering row.
func (s *Store) PutOffering(ctx context.Context, o domain.CourseOffering) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT OR REPLACE INTO course_offerings (id, course_id, semester_id, instructor_id, status, max_capacity)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		o.ID, o.CourseID, o.SemesterID, o.InstructorID, string(o.Status), o.MaxCapacity)
	if err != nil {
		return fmt.Errorf("put offering: %w", err)
	}
	return nil
}

// PutSemester inserts or replaces a semester row.
func (s *Store) PutSemester(ctx context.Context, sem domain.Semester) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT OR REPLACE INTO semesters (id, name, enrollment_deadline) VALUES (?, ?, ?)`,
		sem.ID, sem.Name, toNanos(sem.EnrollmentDeadline))
	if err != nil {
		return fmt.Errorf("put semester: %w", err)
	}
	return nil
}

// PutStudent inserts or replaces a student's batch assignment.
func (s *Store) PutStudent(ctx context.Context, studentID, batchID string) error {
	if _, err := s.sqlDB.ExecContext(ctx,
		`INSERT OR REPLACE INTO students (id, batch_id) VALUES (?, ?)`, studentID, batchID); err != nil {
		return fmt.Errorf("put student: %w", err)
	}
	return nil
}

// PutDocument records an uploaded document.
func (s *Store) PutDocument(ctx context.Context, userID string, docType domain.DocumentType) error {
	if _, err := s.sqlDB.ExecContext(ctx,
		`INSERT OR IGNORE INTO student_documents (user_id, doc_type) VALUES (?, ?)`, userID, string(docType)); err != nil {
		return fmt.Errorf("put document: %w", err)
	}
	return nil
}

type enrollmentTx struct {
	q queryer
}

// LockOffering is a no-op: the IMMEDIATE transaction already holds the write lock.
func (t *enrollmentTx) LockOffering(context.Context, string) error {
	return nil
}

func (t *enrollmentTx) Insert(ctx context.Context, enrollment *domain.Enrollment) error {
	created := toNanos(enrollment.CreatedAt)
	_, err := t.q.ExecContext(ctx,
		`INSERT INTO enrollments (id, student_id, offering_id, status, enrollment_type, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		enrollment.ID,
		enrollment.StudentID,
		enrollment.OfferingID,
		string(enrollment.Status),
		string(enrollment.Type),
		created,
		created,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicateActive
		}
		return fmt.Errorf("insert enrollment: %w", err)
	}
	enrollment.UpdatedAt = enrollment.CreatedAt
	return nil
}

func (t *enrollmentTx) GetByID(ctx context.Context, id string) (*domain.Enrollment, error) {
	return getEnrollment(ctx, t.q, id)
}

func (t *enrollmentTx) FindActive(ctx context.Context, studentID, offeringID string) (*domain.Enrollment, error) {
	args := []any{studentID, offeringID}
	for _, status := range domain.ActiveStatuses {
		args = append(args, string(status))
	}
	row := t.q.QueryRowContext(ctx,
		`SELECT `+enrollmentColumns+` FROM enrollments
		 WHERE student_id = ? AND offering_id = ? AND status IN (`+placeholders(len(domain.ActiveStatuses))+`) LIMIT 1`,
		args...)
	enrollment, err := scanEnrollment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("find active enrollment: %w", err)
	}
	return enrollment, nil
}

func (t *enrollmentTx) ConditionalUpdate(ctx context.Context, id string, expected domain.EnrollmentStatus, patch domain.EnrollmentPatch) (*domain.Enrollment, error) {
	row := t.q.QueryRowContext(ctx,
		`UPDATE enrollments SET status = ?, updated_at = ?,
		   instructor_approved_at = COALESCE(instructor_approved_at, ?),
		   advisor_approved_at = COALESCE(advisor_approved_at, ?),
		   dropped_at = COALESCE(dropped_at, ?),
		   completed_at = COALESCE(completed_at, ?)
		 WHERE id = ? AND status = ?
		 RETURNING `+enrollmentColumns,
		string(patch.Status),
		toNanos(patch.UpdatedAt),
		nullableNanos(patch.InstructorApprovedAt),
		nullableNanos(patch.AdvisorApprovedAt),
		nullableNanos(patch.DroppedAt),
		nullableNanos(patch.CompletedAt),
		id,
		string(expected),
	)
	enrollment, err := scanEnrollment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrStatusMismatch
		}
		return nil, fmt.Errorf("conditional update enrollment: %w", err)
	}
	return enrollment, nil
}

func (t *enrollmentTx) CountByOfferingAndStatuses(ctx context.Context, offeringID string, statuses []domain.EnrollmentStatus) (int, error) {
	return countEnrollments(ctx, t.q, offeringID, statuses)
}

func getEnrollment(ctx context.Context, q queryer, id string) (*domain.Enrollment, error) {
	enrollment, err := scanEnrollment(q.QueryRowContext(ctx,
		`SELECT `+enrollmentColumns+` FROM enrollments WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get enrollment: %w", err)
	}
	return enrollment, nil
}

func countEnrollments(ctx context.Context, q queryer, offeringID string, statuses []domain.EnrollmentStatus) (int, error) {
	if len(statuses) == 0 {
		return 0, nil
	}
	args := []any{offeringID}
	for _, status := range statuses {
		args = append(args, string(status))
	}
	var count int
	if err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM enrollments WHERE offering_id = ? AND status IN (`+placeholders(len(statuses))+`)`,
		args...,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("count enrollments: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEnrollment(row rowScanner) (*domain.Enrollment, error) {
	var (
		e                    domain.Enrollment
		createdAt, updatedAt int64
		instructorAt         sql.NullInt64
		advisorAt            sql.NullInt64
		droppedAt            sql.NullInt64
		doneAt               sql.NullInt64
	)
	if err := row.Scan(
		&e.ID,
		&e.StudentID,
		&e.OfferingID,
		&e.Status,
		&e.Type,
		&createdAt,
		&updatedAt,
		&instructorAt,
		&advisorAt,
		&droppedAt,
		&doneAt,
	); err != nil {
		return nil, err
	}
	e.CreatedAt = fromNanos(createdAt)
	e.UpdatedAt = fromNanos(updatedAt)
	e.InstructorApprovedAt = timePtr(instructorAt)
	e.AdvisorApprovedAt = timePtr(advisorAt)
	e.DroppedAt = timePtr(droppedAt)
	e.CompletedAt = timePtr(doneAt)
	return &e, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func marshalSnapshot(snapshot map[string]any) (sql.NullString, error) {
	if snapshot == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func unmarshalSnapshot(value sql.NullString) (map[string]any, error) {
	if !value.Valid {
		return nil, nil
	}
	var snapshot map[string]any
	if err := json.Unmarshal([]byte(value.String), &snapshot); err != nil {
		return nil, err
	}
	return snapshot, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
