package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/enrollment-service/internal/domain"
	"github.com/spec-kit/enrollment-service/internal/repository"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "enrollment.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedOffering(t *testing.T, store *Store, capacity int) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.PutSemester(ctx, domain.Semester{
		ID:                 "sem-1",
		Name:               "Fall",
		EnrollmentDeadline: time.Date(2030, time.January, 1, 0, 0, 0, 0, time.UTC),
	}))
	require.NoError(t, store.PutOffering(ctx, domain.CourseOffering{
		ID:           "off-1",
		CourseID:     "course-1",
		SemesterID:   "sem-1",
		InstructorID: "inst-1",
		Status:       domain.OfferingStatusEnrolling,
		MaxCapacity:  capacity,
	}))
}

func newEnrollment(id, studentID string, createdAt time.Time) *domain.Enrollment {
	return &domain.Enrollment{
		ID:         id,
		StudentID:  studentID,
		OfferingID: "off-1",
		Status:     domain.EnrollmentStatusPending,
		Type:       domain.EnrollmentTypeRegular,
		CreatedAt:  createdAt,
	}
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := Open("  ")
	require.Error(t, err)
}

func TestOpenIsIdempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "enrollment.db")
	first, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, second.Close())
}

func TestReferenceReads(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	seedOffering(t, store, 3)
	ctx := context.Background()
	require.NoError(t, store.PutStudent(ctx, "stu-1", "batch-a"))
	require.NoError(t, store.PutDocument(ctx, "stu-1", domain.DocumentTypeFeeReceipt))

	offering, err := store.GetOffering(ctx, "off-1")
	require.NoError(t, err)
	assert.Equal(t, 3, offering.MaxCapacity)
	assert.Equal(t, domain.OfferingStatusEnrolling, offering.Status)

	semester, err := store.GetSemester(ctx, "sem-1")
	require.NoError(t, err)
	assert.True(t, semester.EnrollmentDeadline.Equal(time.Date(2030, time.January, 1, 0, 0, 0, 0, time.UTC)))

	batch, err := store.GetBatchID(ctx, "stu-1")
	require.NoError(t, err)
	assert.Equal(t, "batch-a", batch)

	has, err := store.HasDocument(ctx, "stu-1", domain.DocumentTypeFeeReceipt)
	require.NoError(t, err)
	assert.True(t, has)

	has, err = store.HasDocument(ctx, "stu-2", domain.DocumentTypeFeeReceipt)
	require.NoError(t, err)
	assert.False(t, has)

	_, err = store.GetOffering(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = store.GetBatchID(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestInsertRejectsSecondActivePair(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	seedOffering(t, store, 5)
	ctx := context.Background()
	now := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, store.WithinTx(ctx, func(ctx context.Context, tx repository.EnrollmentTx) error {
		return tx.Insert(ctx, newEnrollment("enr-1", "stu-1", now))
	}))

	err := store.WithinTx(ctx, func(ctx context.Context, tx repository.EnrollmentTx) error {
		return tx.Insert(ctx, newEnrollment("enr-2", "stu-1", now.Add(time.Second)))
	})
	assert.ErrorIs(t, err, repository.ErrDuplicateActive)

	var active *domain.Enrollment
	require.NoError(t, store.WithinTx(ctx, func(ctx context.Context, tx repository.EnrollmentTx) error {
		var err error
		active, err = tx.FindActive(ctx, "stu-1", "off-1")
		return err
	}))
	assert.Equal(t, "enr-1", active.ID)
}

func TestConditionalUpdateKeepsFirstTimestamp(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	seedOffering(t, store, 5)
	ctx := context.Background()
	created := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)
	approved := created.Add(time.Hour)

	require.NoError(t, store.WithinTx(ctx, func(ctx context.Context, tx repository.EnrollmentTx) error {
		return tx.Insert(ctx, newEnrollment("enr-1", "stu-1", created))
	}))

	var updated *domain.Enrollment
	require.NoError(t, store.WithinTx(ctx, func(ctx context.Context, tx repository.EnrollmentTx) error {
		var err error
		updated, err = tx.ConditionalUpdate(ctx, "enr-1", domain.EnrollmentStatusPending, domain.EnrollmentPatch{
			Status:               domain.EnrollmentStatusInstructorApproved,
			UpdatedAt:            approved,
			InstructorApprovedAt: &approved,
		})
		return err
	}))
	require.NotNil(t, updated.InstructorApprovedAt)
	assert.True(t, updated.InstructorApprovedAt.Equal(approved))
	assert.Equal(t, domain.EnrollmentStatusInstructorApproved, updated.Status)

	err := store.WithinTx(ctx, func(ctx context.Context, tx repository.EnrollmentTx) error {
		_, err := tx.ConditionalUpdate(ctx, "enr-1", domain.EnrollmentStatusPending, domain.EnrollmentPatch{
			Status:    domain.EnrollmentStatusInstructorRejected,
			UpdatedAt: approved.Add(time.Hour),
		})
		return err
	})
	assert.ErrorIs(t, err, repository.ErrStatusMismatch)

	stored, err := store.GetByID(ctx, "enr-1")
	require.NoError(t, err)
	assert.Equal(t, domain.EnrollmentStatusInstructorApproved, stored.Status)
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	seedOffering(t, store, 5)
	ctx := context.Background()

	boom := fmt.Errorf("boom")
	err := store.WithinTx(ctx, func(ctx context.Context, tx repository.EnrollmentTx) error {
		if err := tx.Insert(ctx, newEnrollment("enr-1", "stu-1", time.Now())); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = store.GetByID(ctx, "enr-1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestListPagesNewestFirst(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	seedOffering(t, store, 10)
	ctx := context.Background()
	base := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, store.WithinTx(ctx, func(ctx context.Context, tx repository.EnrollmentTx) error {
		for i := 0; i < 5; i++ {
			// enr-3 and enr-4 share a timestamp to exercise the id tiebreak.
			at := base.Add(time.Duration(i) * time.Minute)
			if i == 4 {
				at = base.Add(3 * time.Minute)
			}
			if err := tx.Insert(ctx, newEnrollment(fmt.Sprintf("enr-%d", i), fmt.Sprintf("stu-%d", i), at)); err != nil {
				return err
			}
		}
		return nil
	}))

	first, err := store.List(ctx, repository.EnrollmentFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "enr-4", first[0].ID)
	assert.Equal(t, "enr-3", first[1].ID)

	last := first[1]
	rest, err := store.List(ctx, repository.EnrollmentFilter{
		Limit: 10,
		After: &repository.Cursor{CreatedAt: last.CreatedAt, ID: last.ID},
	})
	require.NoError(t, err)
	ids := []string{}
	for _, e := range rest {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{"enr-2", "enr-1", "enr-0"}, ids)
}

func TestListFiltersByBatch(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	seedOffering(t, store, 10)
	ctx := context.Background()
	require.NoError(t, store.PutStudent(ctx, "stu-a", "batch-a"))
	require.NoError(t, store.PutStudent(ctx, "stu-b", "batch-b"))
	now := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, store.WithinTx(ctx, func(ctx context.Context, tx repository.EnrollmentTx) error {
		if err := tx.Insert(ctx, newEnrollment("enr-a", "stu-a", now)); err != nil {
			return err
		}
		return tx.Insert(ctx, newEnrollment("enr-b", "stu-b", now.Add(time.Second)))
	}))

	got, err := store.List(ctx, repository.EnrollmentFilter{BatchIDs: []string{"batch-a"}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "enr-a", got[0].ID)
}

func TestAuditRoundTrip(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	at := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, store.Append(ctx, &domain.AuditEvent{
		ID:         "aud-2",
		ActorID:    "stu-1",
		Action:     domain.AuditActionUnenroll,
		EntityType: domain.AuditEntityEnrollment,
		EntityID:   "enr-1",
		Before:     map[string]any{"status": "PENDING"},
		After:      map[string]any{"status": "DROPPED"},
		CreatedAt:  at.Add(time.Minute),
	}))
	require.NoError(t, store.Append(ctx, &domain.AuditEvent{
		ID:         "aud-1",
		ActorID:    "stu-1",
		Action:     domain.AuditActionEnroll,
		EntityType: domain.AuditEntityEnrollment,
		EntityID:   "enr-1",
		After:      map[string]any{"status": "PENDING"},
		CreatedAt:  at,
	}))

	events, err := store.ListByEntity(ctx, domain.AuditEntityEnrollment, "enr-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, domain.AuditActionEnroll, events[0].Action)
	assert.Nil(t, events[0].Before)
	assert.Equal(t, "DROPPED", events[1].After["status"])
}

func TestConcurrentAdmissionsRespectCapacity(t *testing.T) {
	t.Parallel()

	const capacity = 3
	store := openTempStore(t)
	seedOffering(t, store, capacity)
	ctx := context.Background()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := store.WithinTx(ctx, func(ctx context.Context, tx repository.EnrollmentTx) error {
				count, err := tx.CountByOfferingAndStatuses(ctx, "off-1", domain.ActiveStatuses)
				if err != nil {
					return err
				}
				if count >= capacity {
					return fmt.Errorf("full")
				}
				return tx.Insert(ctx, newEnrollment(fmt.Sprintf("enr-%d", i), fmt.Sprintf("stu-%d", i), time.Now()))
			})
			if err == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, capacity, admitted)
	count, err := store.CountByOfferingAndStatuses(ctx, "off-1", domain.ActiveStatuses)
	require.NoError(t, err)
	assert.Equal(t, capacity, count)
}
