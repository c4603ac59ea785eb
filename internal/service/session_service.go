package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/vantage-academy/portal-api/internal/models"
	appErrors "github.com/vantage-academy/portal-api/pkg/errors"
)

type sessionStore interface {
	ListByClass(ctx context.Context, classID string) ([]models.ClassSession, error)
	FindByID(ctx context.Context, id string) (*models.ClassSession, error)
	Create(ctx context.Context, session *models.ClassSession) error
	Update(ctx context.Context, session *models.ClassSession) error
	Delete(ctx context.Context, id string) error
}

type classAccess interface {
	ensureCanView(ctx context.Context, actor *models.SessionClaims, classID string) (*models.Class, error)
	ensureCanManage(ctx context.Context, actor *models.SessionClaims, classID string) (*models.Class, error)
}

// SessionService implements class session scheduling. Access control is
// delegated to the class service so session visibility and ownership always
// match the owning class.
type SessionService struct {
	repo      sessionStore
	classes   classAccess
	validator *validator.Validate
	logger    *zap.Logger
	audit     auditRecorder
}

// NewSessionService constructs a SessionService instance.
func NewSessionService(repo sessionStore, classes classAccess, validate *validator.Validate, logger *zap.Logger, audit auditRecorder) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &SessionService{repo: repo, classes: classes, validator: validate, logger: logger, audit: audit}
}

// ListByClass returns the sessions scheduled for a class.
func (s *SessionService) ListByClass(ctx context.Context, actor *models.SessionClaims, classID string) ([]models.ClassSession, error) {
	if _, err := s.classes.ensureCanView(ctx, actor, classID); err != nil {
		return nil, err
	}
	sessions, err := s.repo.ListByClass(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list class sessions")
	}
	if sessions == nil {
		sessions = []models.ClassSession{}
	}
	return sessions, nil
}

// Create schedules a new session for a class the actor manages.
func (s *SessionService) Create(ctx context.Context, actor *models.SessionClaims, classID string, req models.CreateSessionRequest) (*models.ClassSession, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}
	if !req.EndsAt.After(req.StartsAt) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "session must end after it starts")
	}

	if _, err := s.classes.ensureCanManage(ctx, actor, classID); err != nil {
		return nil, err
	}

	session := &models.ClassSession{
		ClassID:  classID,
		Title:    req.Title,
		StartsAt: req.StartsAt,
		EndsAt:   req.EndsAt,
		Location: req.Location,
		Notes:    req.Notes,
	}
	if err := s.repo.Create(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create class session")
	}

	s.audit.Record(&models.AuditLog{
		ActorID:    &actor.UserID,
		Action:     models.AuditActionSessionCreate,
		EntityType: "class_session",
		EntityID:   &session.ID,
	})

	return session, nil
}

// Update modifies a scheduled session.
func (s *SessionService) Update(ctx context.Context, actor *models.SessionClaims, id string, req models.UpdateSessionRequest) (*models.ClassSession, error) {
	session, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class session")
	}

	if _, err := s.classes.ensureCanManage(ctx, actor, session.ClassID); err != nil {
		return nil, err
	}

	if req.Title != nil {
		session.Title = *req.Title
	}
	if req.StartsAt != nil {
		session.StartsAt = *req.StartsAt
	}
	if req.EndsAt != nil {
		session.EndsAt = *req.EndsAt
	}
	if req.Location != nil {
		session.Location = *req.Location
	}
	if req.Notes != nil {
		session.Notes = *req.Notes
	}
	if !session.EndsAt.After(session.StartsAt) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "session must end after it starts")
	}

	if err := s.repo.Update(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update class session")
	}

	s.audit.Record(&models.AuditLog{
		ActorID:    &actor.UserID,
		Action:     models.AuditActionSessionUpdate,
		EntityType: "class_session",
		EntityID:   &session.ID,
	})

	return session, nil
}

// Delete removes a scheduled session.
func (s *SessionService) Delete(ctx context.Context, actor *models.SessionClaims, id string) error {
	session, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "class session not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class session")
	}

	if _, err := s.classes.ensureCanManage(ctx, actor, session.ClassID); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete class session")
	}

	s.audit.Record(&models.AuditLog{
		ActorID:    &actor.UserID,
		Action:     models.AuditActionSessionDelete,
		EntityType: "class_session",
		EntityID:   &id,
	})

	return nil
}
