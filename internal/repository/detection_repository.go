package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"animaldetect/internal/models"
)

var ErrNotConfigured = errors.New("database not configured")

const insertDetectionQuery = `
	INSERT INTO labeled_images (
		id, image_url, animal_detected, confidence_score, user_id, source, created_at
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7
	)
`

// Execer is the slice of *pgxpool.Pool the repository needs.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

type DetectionRepository struct {
	db Execer
}

// NewDetectionRepository accepts a nil db; every insert then fails with
// ErrNotConfigured.
func NewDetectionRepository(db Execer) *DetectionRepository {
	return &DetectionRepository{db: db}
}

func (r *DetectionRepository) Insert(ctx context.Context, record models.StoredRecord) error {
	if r.db == nil {
		return fmt.Errorf("insert detection %s: %w", record.ID, ErrNotConfigured)
	}

	_, err := r.db.Exec(ctx, insertDetectionQuery,
		record.ID,
		record.ImageURL,
		record.AnimalDetected,
		record.ConfidenceScore,
		record.UserID,
		string(record.Source),
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert detection %s: %w", record.ID, err)
	}
	return nil
}
