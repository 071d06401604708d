package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusPredicates(t *testing.T) {
	cases := []struct {
		status   EnrollmentStatus
		active   bool
		terminal bool
	}{
		{EnrollmentStatusPending, true, false},
		{EnrollmentStatusInstructorApproved, true, false},
		{EnrollmentStatusAdvisorApproved, true, false},
		{EnrollmentStatusEnrolled, true, false},
		{EnrollmentStatusInstructorRejected, false, true},
		{EnrollmentStatusAdvisorRejected, false, true},
		{EnrollmentStatusDropped, false, true},
		{EnrollmentStatusCompleted, false, true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.active, tc.status.IsActive(), tc.status)
		assert.Equal(t, tc.terminal, tc.status.IsTerminal(), tc.status)
		assert.True(t, tc.status.Valid(), tc.status)
	}
	assert.False(t, EnrollmentStatus("WAITLISTED").Valid())
}

func TestPatchApplyKeepsFirstTimestamp(t *testing.T) {
	first := time.Date(2026, time.September, 1, 9, 0, 0, 0, time.UTC)
	second := first.Add(time.Hour)
	e := Enrollment{ID: "e1", Status: EnrollmentStatusPending, CreatedAt: first, UpdatedAt: first}

	e = EnrollmentPatch{Status: EnrollmentStatusInstructorApproved, UpdatedAt: first, InstructorApprovedAt: &first}.Apply(e)
	e = EnrollmentPatch{Status: EnrollmentStatusInstructorApproved, UpdatedAt: second, InstructorApprovedAt: &second}.Apply(e)

	require.NotNil(t, e.InstructorApprovedAt)
	assert.True(t, e.InstructorApprovedAt.Equal(first))
	assert.True(t, e.UpdatedAt.Equal(second))
	assert.Nil(t, e.DroppedAt)
}

func TestPatchApplyCopiesTimestamp(t *testing.T) {
	at := time.Date(2026, time.September, 1, 9, 0, 0, 0, time.UTC)
	patch := EnrollmentPatch{Status: EnrollmentStatusDropped, DroppedAt: &at}
	e := patch.Apply(Enrollment{Status: EnrollmentStatusPending})

	at = at.Add(time.Hour)
	require.NotNil(t, e.DroppedAt)
	assert.Equal(t, 9, e.DroppedAt.Hour())
}

func TestSnapshotIsIndependent(t *testing.T) {
	e := Enrollment{StudentID: "s1", OfferingID: "o1", Status: EnrollmentStatusPending, Type: EnrollmentTypeAudit}
	snap := e.Snapshot()
	snap["status"] = "MUTATED"

	assert.Equal(t, "PENDING", e.Snapshot()["status"])
	assert.Equal(t, "AUDIT", snap["type"])
}

func TestCallerHasScope(t *testing.T) {
	c := Caller{UserID: "i1", Role: RoleInstructor, ScopeIDs: []string{"o1", "o2"}}
	assert.True(t, c.HasScope("o2"))
	assert.False(t, c.HasScope("o3"))
	assert.False(t, Role("REGISTRAR").Valid())
}
