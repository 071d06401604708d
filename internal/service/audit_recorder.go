package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/enrollment-service/internal/domain"
	"github.com/spec-kit/enrollment-service/internal/observability"
	"github.com/spec-kit/enrollment-service/internal/repository"
)

const defaultAuditTimeout = 5 * time.Second

// AuditRecorder appends audit entries for committed transitions. Writes are best
// effort: a failed append is logged and counted, never returned, and never
// undoes the business change.
type AuditRecorder struct {
	repo    repository.AuditRepository
	logger  *zap.Logger
	metrics *observability.Metrics
	timeout time.Duration
	now     func() time.Time

	mu   sync.Mutex
	last time.Time
}

// NewAuditRecorder builds a recorder stamping entries with now, which should be
// the engine's clock. A nil now uses time.Now and a non-positive timeout uses
// the default.
func NewAuditRecorder(repo repository.AuditRepository, logger *zap.Logger, metrics *observability.Metrics, timeout time.Duration, now func() time.Time) *AuditRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = defaultAuditTimeout
	}
	if now == nil {
		now = time.Now
	}
	return &AuditRecorder{repo: repo, logger: logger, metrics: metrics, timeout: timeout, now: now}
}

// stamp returns a microsecond timestamp strictly after the previous one, so the
// (created_at, id) order of a trail is the order in which it was recorded.
func (r *AuditRecorder) stamp() time.Time {
	at := r.now().UTC().Truncate(time.Microsecond)
	r.mu.Lock()
	defer r.mu.Unlock()
	if !at.After(r.last) {
		at = r.last.Add(time.Microsecond)
	}
	r.last = at
	return at
}

// Record appends one event for entityID. The write runs on a context detached
// from ctx's cancellation so an abandoned request still leaves its trail.
func (r *AuditRecorder) Record(ctx context.Context, actorID string, action domain.AuditAction, entityID string, before, after map[string]any) {
	if r == nil || r.repo == nil {
		return
	}
	event := &domain.AuditEvent{
		ID:         uuid.NewString(),
		ActorID:    actorID,
		Action:     action,
		EntityType: domain.AuditEntityEnrollment,
		EntityID:   entityID,
		Before:     before,
		After:      after,
		CreatedAt:  r.stamp(),
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	if err := r.repo.Append(writeCtx, event); err != nil {
		r.metrics.RecordAuditFailure()
		r.logger.Warn("audit write failed",
			zap.String("entity_id", entityID),
			zap.String("action", string(action)),
			zap.String("actor_id", actorID),
			zap.Error(err))
	}
}

// History lists the audit trail of one enrollment, oldest first.
func (r *AuditRecorder) History(ctx context.Context, entityID string) ([]domain.AuditEvent, error) {
	return r.repo.ListByEntity(ctx, domain.AuditEntityEnrollment, entityID)
}
