package service

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/enrollment-service/internal/domain"
	"github.com/spec-kit/enrollment-service/internal/repository/sqlite"
)

func TestAuditRecorderUsesEngineClock(t *testing.T) {
	f := newFixture(t, 5)
	e := f.enroll(t, "stu-1")

	trail := f.auditTrail(t, e.ID)
	require.Len(t, trail, 1)
	assert.True(t, trail[0].CreatedAt.Equal(fixedNow), "audit stamped %s", trail[0].CreatedAt)
}

func TestAuditRecorderKeepsRecordedOrderWithinOneInstant(t *testing.T) {
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	recorder := NewAuditRecorder(store, zap.NewNop(), nil, time.Second, func() time.Time { return fixedNow })
	ctx := context.Background()
	steps := []domain.EnrollmentStatus{
		domain.EnrollmentStatusPending,
		domain.EnrollmentStatusInstructorApproved,
		domain.EnrollmentStatusAdvisorApproved,
		domain.EnrollmentStatusCompleted,
	}
	for i, status := range steps {
		recorder.Record(ctx, fmt.Sprintf("actor-%d", i), domain.AuditActionEnroll, "enr-1", nil,
			map[string]any{"status": string(status)})
	}

	trail, err := recorder.History(ctx, "enr-1")
	require.NoError(t, err)
	require.Len(t, trail, len(steps))
	for i, status := range steps {
		assert.Equal(t, string(status), trail[i].After["status"])
		assert.Equal(t, fmt.Sprintf("actor-%d", i), trail[i].ActorID)
		if i > 0 {
			assert.True(t, trail[i].CreatedAt.After(trail[i-1].CreatedAt))
		}
	}
	assert.True(t, trail[0].CreatedAt.Equal(fixedNow))
}
