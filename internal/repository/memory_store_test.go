package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/enrollment-service/internal/domain"
)

func insert(t *testing.T, s *MemoryStore, e domain.Enrollment) {
	t.Helper()
	require.NoError(t, s.WithinTx(context.Background(), func(ctx context.Context, tx EnrollmentTx) error {
		return tx.Insert(ctx, &e)
	}))
}

func TestMemoryStoreRollsBackFailedTx(t *testing.T) {
	s := NewMemoryStore()
	boom := errors.New("boom")
	at := time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC)

	err := s.WithinTx(context.Background(), func(ctx context.Context, tx EnrollmentTx) error {
		require.NoError(t, tx.Insert(ctx, &domain.Enrollment{ID: "e1", StudentID: "s1", OfferingID: "o1", Status: domain.EnrollmentStatusPending, CreatedAt: at}))
		_, err := tx.GetByID(ctx, "e1")
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.GetByID(context.Background(), "e1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreRejectsSecondActivePair(t *testing.T) {
	s := NewMemoryStore()
	at := time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC)
	insert(t, s, domain.Enrollment{ID: "e1", StudentID: "s1", OfferingID: "o1", Status: domain.EnrollmentStatusDropped, CreatedAt: at})
	insert(t, s, domain.Enrollment{ID: "e2", StudentID: "s1", OfferingID: "o1", Status: domain.EnrollmentStatusPending, CreatedAt: at})

	err := s.WithinTx(context.Background(), func(ctx context.Context, tx EnrollmentTx) error {
		return tx.Insert(ctx, &domain.Enrollment{ID: "e3", StudentID: "s1", OfferingID: "o1", Status: domain.EnrollmentStatusPending, CreatedAt: at})
	})
	assert.ErrorIs(t, err, ErrDuplicateActive)

	count, err := s.CountByOfferingAndStatuses(context.Background(), "o1", domain.ActiveStatuses)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMemoryStoreConditionalUpdate(t *testing.T) {
	s := NewMemoryStore()
	at := time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC)
	later := at.Add(time.Hour)
	insert(t, s, domain.Enrollment{ID: "e1", StudentID: "s1", OfferingID: "o1", Status: domain.EnrollmentStatusPending, CreatedAt: at})

	err := s.WithinTx(context.Background(), func(ctx context.Context, tx EnrollmentTx) error {
		updated, err := tx.ConditionalUpdate(ctx, "e1", domain.EnrollmentStatusPending, domain.EnrollmentPatch{
			Status:    domain.EnrollmentStatusDropped,
			UpdatedAt: later,
			DroppedAt: &later,
		})
		require.NoError(t, err)
		assert.Equal(t, domain.EnrollmentStatusDropped, updated.Status)

		_, err = tx.ConditionalUpdate(ctx, "e1", domain.EnrollmentStatusPending, domain.EnrollmentPatch{Status: domain.EnrollmentStatusCompleted})
		assert.ErrorIs(t, err, ErrStatusMismatch)
		_, err = tx.ConditionalUpdate(ctx, "missing", domain.EnrollmentStatusPending, domain.EnrollmentPatch{Status: domain.EnrollmentStatusCompleted})
		assert.ErrorIs(t, err, ErrStatusMismatch)
		return nil
	})
	require.NoError(t, err)

	stored, err := s.GetByID(context.Background(), "e1")
	require.NoError(t, err)
	require.NotNil(t, stored.DroppedAt)
	assert.True(t, stored.DroppedAt.Equal(later))
	assert.True(t, stored.CreatedAt.Equal(at))
}

func TestMemoryStoreListOrdersNewestFirst(t *testing.T) {
	s := NewMemoryStore()
	s.PutStudent("s1", "batch-a")
	s.PutStudent("s2", "batch-b")
	at := time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC)
	insert(t, s, domain.Enrollment{ID: "a", StudentID: "s1", OfferingID: "o1", Status: domain.EnrollmentStatusPending, CreatedAt: at})
	insert(t, s, domain.Enrollment{ID: "b", StudentID: "s2", OfferingID: "o1", Status: domain.EnrollmentStatusPending, CreatedAt: at})
	insert(t, s, domain.Enrollment{ID: "c", StudentID: "s1", OfferingID: "o2", Status: domain.EnrollmentStatusPending, CreatedAt: at.Add(time.Minute)})

	items, err := s.List(context.Background(), EnrollmentFilter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{items[0].ID, items[1].ID, items[2].ID})

	items, err = s.List(context.Background(), EnrollmentFilter{After: &Cursor{CreatedAt: at, ID: "b"}, Limit: 10})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "a", items[0].ID)

	items, err = s.List(context.Background(), EnrollmentFilter{BatchIDs: []string{"batch-b"}, Limit: 10})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "b", items[0].ID)
}

func TestMemoryStoreReferenceData(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.GetOffering(ctx, "o1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetBatchID(ctx, "s1")
	assert.ErrorIs(t, err, ErrNotFound)

	s.PutDocument("s1", domain.DocumentTypeFeeReceipt)
	ok, err := s.HasDocument(ctx, "s1", domain.DocumentTypeFeeReceipt)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.HasDocument(ctx, "s2", domain.DocumentTypeFeeReceipt)
	require.NoError(t, err)
	assert.False(t, ok)
}
