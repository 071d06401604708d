package repository

import (
	"context"
	"fmt"

	"github.com/spec-kit/enrollment-service/internal/domain"
)

// DocumentRepository checks uploaded document metadata. File contents live in
// object storage and are never read here.
type DocumentRepository struct {
	pool querier
}

// NewDocumentRepository builds the repository.
func NewDocumentRepository(pool querier) *DocumentRepository {
	return &DocumentRepository{pool: pool}
}

func (r *DocumentRepository) HasDocument(ctx context.Context, userID string, docType domain.DocumentType) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM student_documents WHERE user_id=$1 AND doc_type=$2)`
	var exists bool
	if err := r.pool.QueryRow(ctx, query, userID, string(docType)).Scan(&exists); err != nil {
		return false, fmt.Errorf("check document: %w", err)
	}
	return exists, nil
}
