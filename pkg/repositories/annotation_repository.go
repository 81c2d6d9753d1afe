// Package repositories provides data access for persisted flatmap state.
package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/celldl/flatmap-engine/pkg/database"
)

// StoredAnnotation is one persisted annotation row. The raw text is the
// source of truth; records are re-parsed when a map is loaded.
type StoredAnnotation struct {
	ID        uuid.UUID
	MapID     string
	FeatureID string
	Layer     string
	Text      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AnnotationRepository provides data access for persisted annotations.
type AnnotationRepository interface {
	Upsert(ctx context.Context, ann *StoredAnnotation) error
	GetByMap(ctx context.Context, mapID string) ([]*StoredAnnotation, error)
	GetByFeature(ctx context.Context, mapID, featureID string) (*StoredAnnotation, error)
	Delete(ctx context.Context, mapID, featureID string) error
}

type annotationRepository struct {
	db *database.DB
}

// NewAnnotationRepository creates a new AnnotationRepository.
func NewAnnotationRepository(db *database.DB) AnnotationRepository {
	return &annotationRepository{db: db}
}

var _ AnnotationRepository = (*annotationRepository)(nil)

func (r *annotationRepository) Upsert(ctx context.Context, ann *StoredAnnotation) error {
	now := time.Now()
	ann.UpdatedAt = now
	if ann.ID == uuid.Nil {
		ann.ID = uuid.New()
		ann.CreatedAt = now
	}

	query := `
		INSERT INTO flatmap_annotations (
			id, map_id, feature_id, layer, annotation_text, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (map_id, feature_id)
		DO UPDATE SET
			layer = EXCLUDED.layer,
			annotation_text = EXCLUDED.annotation_text,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at`

	err := r.db.QueryRow(ctx, query,
		ann.ID, ann.MapID, ann.FeatureID, ann.Layer, ann.Text,
		ann.CreatedAt, ann.UpdatedAt,
	).Scan(&ann.ID, &ann.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert annotation: %w", err)
	}

	return nil
}

func (r *annotationRepository) GetByMap(ctx context.Context, mapID string) ([]*StoredAnnotation, error) {
	query := `
		SELECT id, map_id, feature_id, layer, annotation_text, created_at, updated_at
		FROM flatmap_annotations
		WHERE map_id = $1
		ORDER BY layer, feature_id`

	rows, err := r.db.Query(ctx, query, mapID)
	if err != nil {
		return nil, fmt.Errorf("failed to get annotations: %w", err)
	}
	defer rows.Close()

	annotations := make([]*StoredAnnotation, 0)
	for rows.Next() {
		ann, err := scanAnnotation(rows)
		if err != nil {
			return nil, err
		}
		annotations = append(annotations, ann)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating annotations: %w", err)
	}

	return annotations, nil
}

func (r *annotationRepository) GetByFeature(ctx context.Context, mapID, featureID string) (*StoredAnnotation, error) {
	query := `
		SELECT id, map_id, feature_id, layer, annotation_text, created_at, updated_at
		FROM flatmap_annotations
		WHERE map_id = $1 AND feature_id = $2`

	row := r.db.QueryRow(ctx, query, mapID, featureID)
	ann, err := scanAnnotation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, err
	}
	return ann, nil
}

func (r *annotationRepository) Delete(ctx context.Context, mapID, featureID string) error {
	query := `DELETE FROM flatmap_annotations WHERE map_id = $1 AND feature_id = $2`

	if _, err := r.db.Exec(ctx, query, mapID, featureID); err != nil {
		return fmt.Errorf("failed to delete annotation: %w", err)
	}
	return nil
}

func scanAnnotation(row pgx.Row) (*StoredAnnotation, error) {
	var ann StoredAnnotation
	err := row.Scan(
		&ann.ID, &ann.MapID, &ann.FeatureID, &ann.Layer, &ann.Text,
		&ann.CreatedAt, &ann.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan annotation: %w", err)
	}
	return &ann, nil
}
