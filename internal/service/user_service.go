package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/vantage-academy/portal-api/internal/models"
	appErrors "github.com/vantage-academy/portal-api/pkg/errors"
)

type userStore interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	DeleteCascade(ctx context.Context, id string) error
}

// UserService implements account administration.
type UserService struct {
	repo      userStore
	validator *validator.Validate
	logger    *zap.Logger
	audit     auditRecorder
}

// NewUserService constructs a UserService instance.
func NewUserService(repo userStore, validate *validator.Validate, logger *zap.Logger, audit auditRecorder) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{repo: repo, validator: validate, logger: logger, audit: audit}
}

// List returns accounts matching the filter with pagination metadata.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) (*models.UserListResponse, error) {
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	if users == nil {
		users = []models.User{}
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	return &models.UserListResponse{
		Users:      users,
		Pagination: models.Pagination{Page: page, PageSize: pageSize, TotalCount: total},
	}, nil
}

// Get returns a single account.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

// Create provisions a new account. Teachers may only provision student-only
// accounts; granting teacher or admin flags requires the admin persona.
func (s *UserService) Create(ctx context.Context, actor *models.SessionClaims, req models.CreateUserRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}

	if !req.IsStudent && !req.IsTeacher && !req.IsAdmin {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one role flag must be set")
	}

	if actor.CurrentRole != models.RoleAdmin && (req.IsTeacher || req.IsAdmin) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins may grant teacher or admin roles")
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email is already registered")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		Email:        email,
		PasswordHash: string(hash),
		FullName:     req.FullName,
		Timezone:     req.Timezone,
		IsStudent:    req.IsStudent,
		IsTeacher:    req.IsTeacher,
		IsAdmin:      req.IsAdmin,
		IsActive:     true,
		AccessExpiry: req.AccessExpiry,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	s.audit.Record(&models.AuditLog{
		ActorID:    &actor.UserID,
		Action:     models.AuditActionUserCreate,
		EntityType: "user",
		EntityID:   &user.ID,
	})

	return user, nil
}

// Update applies partial changes to an account.
func (s *UserService) Update(ctx context.Context, actor *models.SessionClaims, id string, req models.UpdateUserRequest) (*models.User, error) {
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.FullName != nil {
		user.FullName = *req.FullName
	}
	if req.Timezone != nil {
		user.Timezone = *req.Timezone
	}
	if req.IsStudent != nil {
		user.IsStudent = *req.IsStudent
	}
	if req.IsTeacher != nil {
		user.IsTeacher = *req.IsTeacher
	}
	if req.IsAdmin != nil {
		user.IsAdmin = *req.IsAdmin
	}
	if req.IsActive != nil {
		user.IsActive = *req.IsActive
	}
	if req.AccessExpiry != nil {
		user.AccessExpiry = req.AccessExpiry
	}

	if !user.HasAnyRole() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one role flag must remain set")
	}

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}

	s.audit.Record(&models.AuditLog{
		ActorID:    &actor.UserID,
		Action:     models.AuditActionUserUpdate,
		EntityType: "user",
		EntityID:   &user.ID,
	})

	return user, nil
}

// Delete removes an account and its dependent rows. An admin cannot delete
// their own account; the check runs after existence so a missing target is
// still reported as not found.
func (s *UserService) Delete(ctx context.Context, actor *models.SessionClaims, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}

	if actor.UserID == id {
		return appErrors.Clone(appErrors.ErrInvalidOperation, "cannot delete your own account")
	}

	if err := s.repo.DeleteCascade(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete user")
	}

	s.audit.Record(&models.AuditLog{
		ActorID:    &actor.UserID,
		Action:     models.AuditActionUserDelete,
		EntityType: "user",
		EntityID:   &id,
	})

	return nil
}

// ResetAccessExpiry extends or clears a student's access window.
func (s *UserService) ResetAccessExpiry(ctx context.Context, actor *models.SessionClaims, id string, expiry *time.Time) (*models.User, error) {
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !user.IsStudent {
		return nil, appErrors.Clone(appErrors.ErrInvalidOperation, "access expiry applies to student accounts only")
	}

	user.AccessExpiry = expiry
	if err := s.repo.Update(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update access expiry")
	}

	s.audit.Record(&models.AuditLog{
		ActorID:    &actor.UserID,
		Action:     models.AuditActionUserUpdate,
		EntityType: "user",
		EntityID:   &id,
		Metadata:   []byte(`{"field":"access_expiry"}`),
	})

	return user, nil
}
