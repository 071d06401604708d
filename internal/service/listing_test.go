package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/enrollment-service/internal/domain"
	"github.com/spec-kit/enrollment-service/internal/repository"
	"github.com/spec-kit/enrollment-service/pkg/util/errorutil"
)

func TestCursorRoundTrip(t *testing.T) {
	at := time.Date(2026, time.September, 1, 10, 0, 0, 123456000, time.UTC)
	token := EncodeCursor(repository.Cursor{CreatedAt: at, ID: "enr:42"})

	cursor, err := DecodeCursor(token)
	require.NoError(t, err)
	assert.True(t, cursor.CreatedAt.Equal(at))
	assert.Equal(t, "enr:42", cursor.ID)
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	for _, token := range []string{"!!!", "bm8tc2VwYXJhdG9y", "YWJjOmlk", "MTIzOg"} {
		_, err := DecodeCursor(token)
		assert.ErrorIs(t, err, errorutil.ErrValidation, token)
	}
}

// seedSpread enrolls every student into its own offering so listing can be
// exercised without tripping the capacity check. Students 1-5 are batch-a.
func seedSpread(t *testing.T, f *fixture, clock *time.Time) []*domain.Enrollment {
	t.Helper()
	created := []*domain.Enrollment{}
	for i := 1; i <= 6; i++ {
		offeringID := fmt.Sprintf("off-%d", i)
		f.store.PutOffering(domain.CourseOffering{
			ID:          offeringID,
			SemesterID:  "sem-1",
			Status:      domain.OfferingStatusEnrolling,
			MaxCapacity: 10,
		})
		// stu-3 and stu-4 share a creation instant.
		if i != 4 {
			*clock = clock.Add(time.Minute)
		}
		e, err := f.svc.Enroll(context.Background(), student(fmt.Sprintf("stu-%d", i)), EnrollInput{OfferingID: offeringID})
		require.NoError(t, err)
		created = append(created, e)
	}
	return created
}

func newListingFixture(t *testing.T) (*fixture, []*domain.Enrollment) {
	t.Helper()
	clock := fixedNow
	f := newFixture(t, 10, func(d *EnrollmentDependencies) {
		d.Now = func() time.Time { return clock }
	})
	return f, seedSpread(t, f, &clock)
}

func ids(items []domain.Enrollment) []string {
	out := make([]string, 0, len(items))
	for _, e := range items {
		out = append(out, e.StudentID)
	}
	return out
}

func TestListScopesByRole(t *testing.T) {
	f, _ := newListingFixture(t)
	ctx := context.Background()

	page, err := f.svc.List(ctx, student("stu-2"), ListQuery{})
	require.NoError(t, err)
	assert.Equal(t, []string{"stu-2"}, ids(page.Items))

	page, err = f.svc.List(ctx, instructor("inst-1", "off-1", "off-3"), ListQuery{})
	require.NoError(t, err)
	assert.Equal(t, []string{"stu-3", "stu-1"}, ids(page.Items))

	page, err = f.svc.List(ctx, instructor("inst-1", "off-1", "off-3"), ListQuery{OfferingID: "off-1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"stu-1"}, ids(page.Items))

	page, err = f.svc.List(ctx, instructor("inst-1", "off-1"), ListQuery{OfferingID: "off-2"})
	require.NoError(t, err)
	assert.Empty(t, page.Items)

	page, err = f.svc.List(ctx, advisor("adv-2", "batch-b"), ListQuery{})
	require.NoError(t, err)
	assert.Equal(t, []string{"stu-6"}, ids(page.Items))
}

func TestListWithoutScopesIsEmpty(t *testing.T) {
	f, _ := newListingFixture(t)
	ctx := context.Background()

	page, err := f.svc.List(ctx, instructor("inst-1"), ListQuery{})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Empty(t, page.NextCursor)

	page, err = f.svc.List(ctx, advisor("adv-1"), ListQuery{})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
}

func TestListPaginatesWithStableOrder(t *testing.T) {
	f, created := newListingFixture(t)
	ctx := context.Background()
	caller := advisor("adv-1", "batch-a", "batch-b")

	var (
		seen   []string
		cursor string
		pages  int
	)
	for {
		page, err := f.svc.List(ctx, caller, ListQuery{Limit: 2, Cursor: cursor})
		require.NoError(t, err)
		pages++
		seen = append(seen, ids(page.Items)...)
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
		require.Less(t, pages, 10)
	}

	assert.Equal(t, 3, pages)
	require.Len(t, seen, len(created))
	assert.Equal(t, []string{"stu-6", "stu-5"}, seen[:2])
	assert.ElementsMatch(t, []string{"stu-3", "stu-4"}, seen[2:4])
	assert.Equal(t, []string{"stu-2", "stu-1"}, seen[4:])
}

func TestListFiltersByStatus(t *testing.T) {
	f, created := newListingFixture(t)
	ctx := context.Background()
	_, err := f.svc.Drop(ctx, student("stu-1"), created[0].ID)
	require.NoError(t, err)

	page, err := f.svc.List(ctx, advisor("adv-1", "batch-a"), ListQuery{Statuses: []domain.EnrollmentStatus{domain.EnrollmentStatusDropped}})
	require.NoError(t, err)
	assert.Equal(t, []string{"stu-1"}, ids(page.Items))
}

func TestListValidatesQuery(t *testing.T) {
	f, _ := newListingFixture(t)
	ctx := context.Background()

	_, err := f.svc.List(ctx, student("stu-1"), ListQuery{Cursor: "%%%"})
	assert.ErrorIs(t, err, errorutil.ErrValidation)

	_, err = f.svc.List(ctx, student("stu-1"), ListQuery{Statuses: []domain.EnrollmentStatus{"WAITLISTED"}})
	assert.ErrorIs(t, err, errorutil.ErrValidation)

	_, err = f.svc.List(ctx, domain.Caller{UserID: "x", Role: "REGISTRAR"}, ListQuery{})
	assert.ErrorIs(t, err, errorutil.ErrForbidden)
}
