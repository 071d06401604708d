package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/enrollment-service/internal/domain"
	"github.com/spec-kit/enrollment-service/internal/events"
	"github.com/spec-kit/enrollment-service/internal/observability"
	"github.com/spec-kit/enrollment-service/internal/repository"
	"github.com/spec-kit/enrollment-service/pkg/util/errorutil"
)

// EnrollmentService runs the enrollment workflow: admission, role-gated
// transitions and the role-scoped read side.
type EnrollmentService struct {
	tx          repository.TxManager
	enrollments repository.EnrollmentReader
	offerings   repository.OfferingReader
	students    repository.StudentReader
	gate        *EligibilityGate
	capacity    *CapacityAccountant
	audit       *AuditRecorder
	dispatcher  events.Dispatcher
	metrics     *observability.Metrics
	logger      *zap.Logger

	directAdmission bool
	now             func() time.Time
}

// EnrollmentDependencies bundles collaborators for the enrollment service.
type EnrollmentDependencies struct {
	Tx          repository.TxManager
	Enrollments repository.EnrollmentReader
	Offerings   repository.OfferingReader
	Students    repository.StudentReader
	Documents   repository.DocumentChecker
	Audit       *AuditRecorder
	Dispatcher  events.Dispatcher
	Metrics     *observability.Metrics
	Logger      *zap.Logger

	// RequiredDocument is checked by the eligibility gate; empty disables it.
	RequiredDocument domain.DocumentType
	// DirectAdmission makes Enroll create ENROLLED records.
	DirectAdmission bool
	// Now overrides the clock in tests.
	Now func() time.Time
}

// EnrollInput describes an enrollment request.
type EnrollInput struct {
	OfferingID string
	Type       domain.EnrollmentType
}

// NewEnrollmentService constructs the service.
func NewEnrollmentService(deps EnrollmentDependencies) *EnrollmentService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &EnrollmentService{
		tx:              deps.Tx,
		enrollments:     deps.Enrollments,
		offerings:       deps.Offerings,
		students:        deps.Students,
		gate:            NewEligibilityGate(deps.Offerings, deps.Documents, deps.RequiredDocument),
		capacity:        NewCapacityAccountant(deps.Enrollments),
		audit:           deps.Audit,
		dispatcher:      deps.Dispatcher,
		metrics:         deps.Metrics,
		logger:          logger,
		directAdmission: deps.DirectAdmission,
		now:             now,
	}
}

// StoreFor wires every store-backed dependency from a single Store.
func StoreFor(store repository.Store, deps EnrollmentDependencies) EnrollmentDependencies {
	deps.Tx = store
	deps.Enrollments = store
	deps.Offerings = store
	deps.Students = store
	deps.Documents = store
	return deps
}

// Enroll creates an enrollment for the calling student after the eligibility
// gate and the capacity check pass.
func (s *EnrollmentService) Enroll(ctx context.Context, caller domain.Caller, input EnrollInput) (enrollment *domain.Enrollment, err error) {
	defer func() { s.observe(OpEnroll, err) }()

	if caller.Role != domain.RoleStudent {
		return nil, errorutil.NewForbidden("only students may enroll")
	}
	offeringID := strings.TrimSpace(input.OfferingID)
	if offeringID == "" {
		return nil, errorutil.NewValidationError("offering_id is required", nil)
	}
	enrollmentType := input.Type
	if enrollmentType == "" {
		enrollmentType = domain.EnrollmentTypeRegular
	}
	if !enrollmentType.Valid() {
		return nil, errorutil.NewValidationError("invalid enrollment type", map[string]any{"type": string(enrollmentType)})
	}

	now := s.clock()
	offering, err := s.gate.Check(ctx, caller.UserID, offeringID, now)
	if err != nil {
		return nil, err
	}

	status := domain.EnrollmentStatusPending
	if s.directAdmission {
		status = domain.EnrollmentStatusEnrolled
	}
	enrollment = &domain.Enrollment{
		ID:         uuid.NewString(),
		StudentID:  caller.UserID,
		OfferingID: offering.ID,
		Status:     status,
		Type:       enrollmentType,
		CreatedAt:  now,
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context, tx repository.EnrollmentTx) error {
		if err := tx.LockOffering(ctx, offering.ID); err != nil {
			return err
		}
		existing, err := tx.FindActive(ctx, caller.UserID, offering.ID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		if existing != nil {
			return activeConflict(existing)
		}
		if err := s.capacity.Admit(ctx, tx, offering); err != nil {
			return err
		}
		return tx.Insert(ctx, enrollment)
	})
	if err != nil {
		return nil, s.storeError(err, "")
	}

	s.audit.Record(ctx, caller.UserID, domain.AuditActionEnroll, enrollment.ID, nil, enrollment.Snapshot())
	s.publishEvent(ctx, events.Event{
		Type:         events.EventEnrollmentCreated,
		EnrollmentID: enrollment.ID,
		Actor:        actorOf(caller),
		Payload: events.EnrollmentCreatedPayload{
			StudentID:  enrollment.StudentID,
			OfferingID: enrollment.OfferingID,
			Status:     enrollment.Status,
			Type:       enrollment.Type,
		},
	})
	return enrollment, nil
}

// InstructorApprove moves a PENDING enrollment to INSTRUCTOR_APPROVED.
func (s *EnrollmentService) InstructorApprove(ctx context.Context, caller domain.Caller, enrollmentID string) (*domain.Enrollment, error) {
	return s.transition(ctx, caller, OpInstructorApprove, enrollmentID, "")
}

// InstructorReject moves a PENDING enrollment to INSTRUCTOR_REJECTED.
func (s *EnrollmentService) InstructorReject(ctx context.Context, caller domain.Caller, enrollmentID, reason string) (*domain.Enrollment, error) {
	return s.transition(ctx, caller, OpInstructorReject, enrollmentID, reason)
}

// AdvisorApprove moves an INSTRUCTOR_APPROVED enrollment to ADVISOR_APPROVED,
// which confirms the seat.
func (s *EnrollmentService) AdvisorApprove(ctx context.Context, caller domain.Caller, enrollmentID string) (*domain.Enrollment, error) {
	return s.transition(ctx, caller, OpAdvisorApprove, enrollmentID, "")
}

// AdvisorReject moves an INSTRUCTOR_APPROVED enrollment to ADVISOR_REJECTED.
func (s *EnrollmentService) AdvisorReject(ctx context.Context, caller domain.Caller, enrollmentID, reason string) (*domain.Enrollment, error) {
	return s.transition(ctx, caller, OpAdvisorReject, enrollmentID, reason)
}

// Drop withdraws the caller's own non-terminal enrollment.
func (s *EnrollmentService) Drop(ctx context.Context, caller domain.Caller, enrollmentID string) (*domain.Enrollment, error) {
	return s.transition(ctx, caller, OpDrop, enrollmentID, "")
}

// Complete marks a seat-confirmed enrollment as COMPLETED.
func (s *EnrollmentService) Complete(ctx context.Context, caller domain.Caller, enrollmentID string) (*domain.Enrollment, error) {
	return s.transition(ctx, caller, OpComplete, enrollmentID, "")
}

func (s *EnrollmentService) transition(ctx context.Context, caller domain.Caller, op Operation, enrollmentID, reason string) (updated *domain.Enrollment, err error) {
	defer func() { s.observe(op, err) }()

	rule, ok := lookupRule(op, caller.Role)
	if !ok {
		return nil, errorutil.NewForbidden(fmt.Sprintf("role %s may not %s", caller.Role, strings.ReplaceAll(string(op), "_", " ")))
	}
	reason = strings.TrimSpace(reason)
	if rule.needsReason && reason == "" {
		return nil, errorutil.NewValidationError("reason is required", nil)
	}

	now := s.clock()
	var before domain.Enrollment
	err = s.tx.WithinTx(ctx, func(ctx context.Context, tx repository.EnrollmentTx) error {
		current, err := tx.GetByID(ctx, enrollmentID)
		if err != nil {
			return err
		}
		if err := s.authorize(ctx, caller, rule.scope, current); err != nil {
			return err
		}
		if !rule.allows(current.Status) {
			return ruleConflict(rule, current.Status)
		}
		before = *current
		updated, err = tx.ConditionalUpdate(ctx, current.ID, current.Status, rule.patch(now))
		if err != nil {
			if errors.Is(err, repository.ErrStatusMismatch) {
				return ruleConflict(rule, "")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, s.storeError(err, enrollmentID)
	}

	after := updated.Snapshot()
	if reason != "" {
		after["reason"] = reason
	}
	s.audit.Record(ctx, caller.UserID, rule.action, updated.ID, before.Snapshot(), after)
	s.publishEvent(ctx, events.Event{
		Type:         events.EventEnrollmentTransitioned,
		EnrollmentID: updated.ID,
		Actor:        actorOf(caller),
		Payload: events.EnrollmentTransitionedPayload{
			Operation:  string(op),
			StudentID:  updated.StudentID,
			OfferingID: updated.OfferingID,
			OldStatus:  before.Status,
			NewStatus:  updated.Status,
			Reason:     reason,
		},
	})
	return updated, nil
}

// Get returns one enrollment the caller may see. Records outside the caller's
// scope are reported as not found.
func (s *EnrollmentService) Get(ctx context.Context, caller domain.Caller, enrollmentID string) (*domain.Enrollment, error) {
	enrollment, err := s.enrollments.GetByID(ctx, enrollmentID)
	if err != nil {
		return nil, s.storeError(err, enrollmentID)
	}
	visible, err := s.visible(ctx, caller, enrollment)
	if err != nil {
		return nil, errorutil.Persistence(err)
	}
	if !visible {
		return nil, enrollmentNotFound(enrollmentID)
	}
	return enrollment, nil
}

// History lists the audit trail of an enrollment the caller may see.
func (s *EnrollmentService) History(ctx context.Context, caller domain.Caller, enrollmentID string) ([]domain.AuditEvent, error) {
	if _, err := s.Get(ctx, caller, enrollmentID); err != nil {
		return nil, err
	}
	trail, err := s.audit.History(ctx, enrollmentID)
	if err != nil {
		return nil, errorutil.Persistence(err)
	}
	return trail, nil
}

// List returns a page of enrollments visible to the caller, newest first.
func (s *EnrollmentService) List(ctx context.Context, caller domain.Caller, query ListQuery) (*Page, error) {
	for _, status := range query.Statuses {
		if !status.Valid() {
			return nil, errorutil.NewValidationError("invalid status filter", map[string]any{"status": string(status)})
		}
	}
	limit := repository.NormalizeLimit(query.Limit)
	filter := repository.EnrollmentFilter{
		Statuses: query.Statuses,
		Limit:    limit + 1,
	}
	if query.Cursor != "" {
		cursor, err := DecodeCursor(query.Cursor)
		if err != nil {
			return nil, err
		}
		filter.After = cursor
	}

	offeringID := strings.TrimSpace(query.OfferingID)
	switch caller.Role {
	case domain.RoleStudent:
		filter.StudentID = &caller.UserID
		if offeringID != "" {
			filter.OfferingIDs = []string{offeringID}
		}
	case domain.RoleInstructor:
		if len(caller.ScopeIDs) == 0 || (offeringID != "" && !caller.HasScope(offeringID)) {
			return &Page{Items: []domain.Enrollment{}}, nil
		}
		filter.OfferingIDs = caller.ScopeIDs
		if offeringID != "" {
			filter.OfferingIDs = []string{offeringID}
		}
	case domain.RoleAdvisor:
		if len(caller.ScopeIDs) == 0 {
			return &Page{Items: []domain.Enrollment{}}, nil
		}
		filter.BatchIDs = caller.ScopeIDs
		if offeringID != "" {
			filter.OfferingIDs = []string{offeringID}
		}
	default:
		return nil, errorutil.NewForbidden("unknown role")
	}

	items, err := s.enrollments.List(ctx, filter)
	if err != nil {
		return nil, errorutil.Persistence(err)
	}
	page := &Page{Items: items}
	if len(items) > limit {
		page.Items = items[:limit]
		last := page.Items[limit-1]
		page.NextCursor = EncodeCursor(repository.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return page, nil
}

// SeatSummary reports an offering's occupied and free seats.
func (s *EnrollmentService) SeatSummary(ctx context.Context, offeringID string) (domain.SeatSummary, error) {
	offering, err := s.offerings.GetOffering(ctx, offeringID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.SeatSummary{}, errorutil.NewNotFound("offering", map[string]any{"offering_id": offeringID})
		}
		return domain.SeatSummary{}, errorutil.Persistence(err)
	}
	return s.capacity.Summary(ctx, offering)
}

func (s *EnrollmentService) authorize(ctx context.Context, caller domain.Caller, scope scopeKind, e *domain.Enrollment) error {
	switch scope {
	case scopeOwner:
		if e.StudentID == caller.UserID {
			return nil
		}
		return errorutil.NewForbidden("enrollment belongs to another student")
	case scopeOffering:
		if caller.HasScope(e.OfferingID) {
			return nil
		}
		return errorutil.NewForbidden("instructor does not teach this offering")
	case scopeBatch:
		batchID, err := s.students.GetBatchID(ctx, e.StudentID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		if err == nil && caller.HasScope(batchID) {
			return nil
		}
		return errorutil.NewForbidden("advisor is not assigned to this student's batch")
	}
	return errorutil.NewForbidden("caller may not act on this enrollment")
}

func (s *EnrollmentService) visible(ctx context.Context, caller domain.Caller, e *domain.Enrollment) (bool, error) {
	switch caller.Role {
	case domain.RoleStudent:
		return e.StudentID == caller.UserID, nil
	case domain.RoleInstructor:
		return caller.HasScope(e.OfferingID), nil
	case domain.RoleAdvisor:
		batchID, err := s.students.GetBatchID(ctx, e.StudentID)
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return caller.HasScope(batchID), nil
	}
	return false, nil
}

// storeError maps repository sentinels to domain errors and wraps the rest as
// persistence failures.
func (s *EnrollmentService) storeError(err error, enrollmentID string) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return enrollmentNotFound(enrollmentID)
	case errors.Is(err, repository.ErrDuplicateActive):
		return errorutil.NewConflict("student already has an active enrollment for this offering", nil)
	case errors.Is(err, repository.ErrStatusMismatch):
		return errorutil.NewConflict("enrollment status changed concurrently", nil)
	}
	mapped := errorutil.Persistence(err)
	if errors.Is(mapped, errorutil.ErrPersistenceFailure) {
		s.logger.Error("enrollment store failure", zap.String("enrollment_id", enrollmentID), zap.Error(err))
	}
	return mapped
}

func (s *EnrollmentService) observe(op Operation, err error) {
	outcome := observability.OutcomeSuccess
	if err != nil {
		outcome = observability.OutcomeError
	}
	s.metrics.RecordTransition(string(op), outcome)
}

// clock returns the current time truncated to the precision every store keeps.
func (s *EnrollmentService) clock() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func (s *EnrollmentService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.clock()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func actorOf(caller domain.Caller) events.Actor {
	return events.Actor{UserID: caller.UserID, Role: caller.Role}
}

func enrollmentNotFound(enrollmentID string) error {
	return errorutil.NewNotFound("enrollment", map[string]any{"enrollment_id": enrollmentID})
}

func activeConflict(existing *domain.Enrollment) error {
	return errorutil.NewConflict("student already has an active enrollment for this offering",
		map[string]any{"enrollment_id": existing.ID, "status": string(existing.Status)})
}

func ruleConflict(rule transitionRule, current domain.EnrollmentStatus) error {
	details := map[string]any{}
	if current != "" {
		details["status"] = string(current)
	}
	if rule.awaiting != "" {
		return errorutil.NewConflict(fmt.Sprintf("enrollment is not awaiting %s approval", rule.awaiting), details)
	}
	if current == "" {
		return errorutil.NewConflict(fmt.Sprintf("enrollment cannot be %s in its current status", rule.verb), details)
	}
	return errorutil.NewConflict(fmt.Sprintf("enrollment cannot be %s in status %s", rule.verb, current), details)
}
