package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// StudentRepository resolves student batches.
type StudentRepository struct {
	pool querier
}

// NewStudentRepository builds the repository.
func NewStudentRepository(pool querier) *StudentRepository {
	return &StudentRepository{pool: pool}
}

func (r *StudentRepository) GetBatchID(ctx context.Context, studentID string) (string, error) {
	var batchID string
	if err := r.pool.QueryRow(ctx, `SELECT batch_id FROM students WHERE id=$1`, studentID).Scan(&batchID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get student batch: %w", err)
	}
	return batchID, nil
}
