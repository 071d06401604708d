package service

import (
	"time"

	"github.com/spec-kit/enrollment-service/internal/domain"
)

// Operation names a workflow operation. Values double as metric labels.
type Operation string

const (
	OpEnroll            Operation = "enroll"
	OpInstructorApprove Operation = "instructor_approve"
	OpInstructorReject  Operation = "instructor_reject"
	OpAdvisorApprove    Operation = "advisor_approve"
	OpAdvisorReject     Operation = "advisor_reject"
	OpDrop              Operation = "drop"
	OpComplete          Operation = "complete"
)

// scopeKind says which record attribute a caller's scope ids are matched against.
type scopeKind int

const (
	scopeOwner scopeKind = iota
	scopeOffering
	scopeBatch
)

type transitionKey struct {
	op   Operation
	role domain.Role
}

// transitionRule describes one (operation, role) edge. stamp sets the checkpoint
// timestamp the transition owns. awaiting names the approver in conflict
// messages; rules without it use the "cannot be <verb>" form.
type transitionRule struct {
	from        []domain.EnrollmentStatus
	to          domain.EnrollmentStatus
	scope       scopeKind
	action      domain.AuditAction
	stamp       func(p *domain.EnrollmentPatch, at time.Time)
	awaiting    string
	verb        string
	needsReason bool
}

func (r transitionRule) allows(status domain.EnrollmentStatus) bool {
	for _, from := range r.from {
		if from == status {
			return true
		}
	}
	return false
}

var transitionRules = map[transitionKey]transitionRule{
	{OpInstructorApprove, domain.RoleInstructor}: {
		from:     []domain.EnrollmentStatus{domain.EnrollmentStatusPending},
		to:       domain.EnrollmentStatusInstructorApproved,
		scope:    scopeOffering,
		action:   domain.AuditActionEnroll,
		stamp:    func(p *domain.EnrollmentPatch, at time.Time) { p.InstructorApprovedAt = &at },
		awaiting: "instructor",
	},
	{OpInstructorReject, domain.RoleInstructor}: {
		from:        []domain.EnrollmentStatus{domain.EnrollmentStatusPending},
		to:          domain.EnrollmentStatusInstructorRejected,
		scope:       scopeOffering,
		action:      domain.AuditActionUnenroll,
		awaiting:    "instructor",
		needsReason: true,
	},
	{OpAdvisorApprove, domain.RoleAdvisor}: {
		from:     []domain.EnrollmentStatus{domain.EnrollmentStatusInstructorApproved},
		to:       domain.EnrollmentStatusAdvisorApproved,
		scope:    scopeBatch,
		action:   domain.AuditActionEnroll,
		stamp:    func(p *domain.EnrollmentPatch, at time.Time) { p.AdvisorApprovedAt = &at },
		awaiting: "advisor",
	},
	{OpAdvisorReject, domain.RoleAdvisor}: {
		from:        []domain.EnrollmentStatus{domain.EnrollmentStatusInstructorApproved},
		to:          domain.EnrollmentStatusAdvisorRejected,
		scope:       scopeBatch,
		action:      domain.AuditActionUnenroll,
		awaiting:    "advisor",
		needsReason: true,
	},
	{OpDrop, domain.RoleStudent}: {
		from:   domain.ActiveStatuses,
		to:     domain.EnrollmentStatusDropped,
		scope:  scopeOwner,
		action: domain.AuditActionUnenroll,
		stamp:  func(p *domain.EnrollmentPatch, at time.Time) { p.DroppedAt = &at },
		verb:   "dropped",
	},
	{OpComplete, domain.RoleInstructor}: {
		from:   []domain.EnrollmentStatus{domain.EnrollmentStatusAdvisorApproved, domain.EnrollmentStatusEnrolled},
		to:     domain.EnrollmentStatusCompleted,
		scope:  scopeOffering,
		action: domain.AuditActionComplete,
		stamp:  func(p *domain.EnrollmentPatch, at time.Time) { p.CompletedAt = &at },
		verb:   "completed",
	},
}

func lookupRule(op Operation, role domain.Role) (transitionRule, bool) {
	rule, ok := transitionRules[transitionKey{op: op, role: role}]
	return rule, ok
}

func (r transitionRule) patch(at time.Time) domain.EnrollmentPatch {
	p := domain.EnrollmentPatch{Status: r.to, UpdatedAt: at}
	if r.stamp != nil {
		r.stamp(&p, at)
	}
	return p
}
