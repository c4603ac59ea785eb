package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/vantage-academy/portal-api/internal/models"
)

// SessionRepository manages persistence for class sessions.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs the repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// ListByClass returns the sessions scheduled for a class, soonest first.
func (r *SessionRepository) ListByClass(ctx context.Context, classID string) ([]models.ClassSession, error) {
	const query = `SELECT id, class_id, title, starts_at, ends_at, location, notes, created_at, updated_at
		FROM class_sessions WHERE class_id = $1 ORDER BY starts_at ASC`
	var sessions []models.ClassSession
	if err := r.db.SelectContext(ctx, &sessions, query, classID); err != nil {
		return nil, fmt.Errorf("list class sessions: %w", err)
	}
	return sessions, nil
}

// FindByID returns a session by ID.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.ClassSession, error) {
	const query = `SELECT id, class_id, title, starts_at, ends_at, location, notes, created_at, updated_at
		FROM class_sessions WHERE id = $1`
	var session models.ClassSession
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		return nil, err
	}
	return &session, nil
}

// Create persists a session record.
func (r *SessionRepository) Create(ctx context.Context, session *models.ClassSession) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now

	const query = `INSERT INTO class_sessions (id, class_id, title, starts_at, ends_at, location, notes, created_at, updated_at)
		VALUES (:id, :class_id, :title, :starts_at, :ends_at, :location, :notes, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("create class session: %w", err)
	}
	return nil
}

// Update modifies a session record.
func (r *SessionRepository) Update(ctx context.Context, session *models.ClassSession) error {
	session.UpdatedAt = time.Now().UTC()
	const query = `UPDATE class_sessions SET title = :title, starts_at = :starts_at, ends_at = :ends_at, location = :location, notes = :notes, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("update class session: %w", err)
	}
	return nil
}

// Delete removes a session record.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM class_sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete class session: %w", err)
	}
	return nil
}
