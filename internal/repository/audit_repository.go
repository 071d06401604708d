package repository

import (
	"context"
	"fmt"

	"github.com/spec-kit/enrollment-service/internal/domain"
)

// AuditLogRepository appends audit entries to audit_logs.
type AuditLogRepository struct {
	pool querier
}

// NewAuditLogRepository builds the repository.
func NewAuditLogRepository(pool querier) *AuditLogRepository {
	return &AuditLogRepository{pool: pool}
}

func (r *AuditLogRepository) Append(ctx context.Context, event *domain.AuditEvent) error {
	const query = `
        INSERT INTO audit_logs (id, actor_id, action, entity_type, entity_id, before, after, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	if _, err := r.pool.Exec(ctx, query,
		event.ID,
		event.ActorID,
		string(event.Action),
		event.EntityType,
		event.EntityID,
		event.Before,
		event.After,
		event.CreatedAt,
	); err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

func (r *AuditLogRepository) ListByEntity(ctx context.Context, entityType, entityID string) ([]domain.AuditEvent, error) {
	const query = `
        SELECT id, actor_id, action, entity_type, entity_id, before, after, created_at
        FROM audit_logs WHERE entity_type=$1 AND entity_id=$2 ORDER BY created_at ASC, id ASC`
	rows, err := r.pool.Query(ctx, query, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	result := []domain.AuditEvent{}
	for rows.Next() {
		var event domain.AuditEvent
		if err := rows.Scan(
			&event.ID,
			&event.ActorID,
			&event.Action,
			&event.EntityType,
			&event.EntityID,
			&event.Before,
			&event.After,
			&event.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		result = append(result, event)
	}
	return result, rows.Err()
}
