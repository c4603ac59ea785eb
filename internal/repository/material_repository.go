package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/vantage-academy/portal-api/internal/models"
)

// MaterialRepository manages persistence for class material metadata.
type MaterialRepository struct {
	db *sqlx.DB
}

// NewMaterialRepository constructs the repository.
func NewMaterialRepository(db *sqlx.DB) *MaterialRepository {
	return &MaterialRepository{db: db}
}

// Create persists a material record.
func (r *MaterialRepository) Create(ctx context.Context, material *models.Material) error {
	if material.ID == "" {
		material.ID = uuid.NewString()
	}
	if material.CreatedAt.IsZero() {
		material.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO materials (id, class_id, uploaded_by, file_name, storage_path, content_type, size_bytes, created_at)
		VALUES (:id, :class_id, :uploaded_by, :file_name, :storage_path, :content_type, :size_bytes, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, material); err != nil {
		return fmt.Errorf("create material: %w", err)
	}
	return nil
}

// FindByID returns a material record by ID.
func (r *MaterialRepository) FindByID(ctx context.Context, id string) (*models.Material, error) {
	const query = `SELECT id, class_id, uploaded_by, file_name, storage_path, content_type, size_bytes, created_at
		FROM materials WHERE id = $1`
	var material models.Material
	if err := r.db.GetContext(ctx, &material, query, id); err != nil {
		return nil, err
	}
	return &material, nil
}

// ListByClass returns all materials uploaded to a class.
func (r *MaterialRepository) ListByClass(ctx context.Context, classID string) ([]models.Material, error) {
	const query = `SELECT id, class_id, uploaded_by, file_name, storage_path, content_type, size_bytes, created_at
		FROM materials WHERE class_id = $1 ORDER BY created_at DESC`
	var materials []models.Material
	if err := r.db.SelectContext(ctx, &materials, query, classID); err != nil {
		return nil, fmt.Errorf("list class materials: %w", err)
	}
	return materials, nil
}

// Delete removes a material record.
func (r *MaterialRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM materials WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete material: %w", err)
	}
	return nil
}
