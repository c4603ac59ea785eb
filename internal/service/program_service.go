package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/vantage-academy/portal-api/internal/models"
	appErrors "github.com/vantage-academy/portal-api/pkg/errors"
)

type programStore interface {
	List(ctx context.Context, filter models.ProgramFilter) ([]models.Program, int, error)
	FindByID(ctx context.Context, id string) (*models.Program, error)
	ExistsByName(ctx context.Context, name, excludeID string) (bool, error)
	Create(ctx context.Context, program *models.Program) error
	Update(ctx context.Context, program *models.Program) error
	Delete(ctx context.Context, id string) error
}

// ProgramService implements certification program administration. Programs
// are admin-managed; reads are open to any authenticated session.
type ProgramService struct {
	repo      programStore
	validator *validator.Validate
	logger    *zap.Logger
	audit     auditRecorder
}

// NewProgramService constructs a ProgramService instance.
func NewProgramService(repo programStore, validate *validator.Validate, logger *zap.Logger, audit auditRecorder) *ProgramService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ProgramService{repo: repo, validator: validate, logger: logger, audit: audit}
}

// List returns programs matching the filter.
func (s *ProgramService) List(ctx context.Context, filter models.ProgramFilter) (*models.ProgramListResponse, error) {
	programs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list programs")
	}
	if programs == nil {
		programs = []models.Program{}
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	return &models.ProgramListResponse{
		Programs:   programs,
		Pagination: models.Pagination{Page: page, PageSize: pageSize, TotalCount: total},
	}, nil
}

// Get returns a single program.
func (s *ProgramService) Get(ctx context.Context, id string) (*models.Program, error) {
	program, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "program not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load program")
	}
	return program, nil
}

// Create adds a new program.
func (s *ProgramService) Create(ctx context.Context, actor *models.SessionClaims, req models.CreateProgramRequest) (*models.Program, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid program payload")
	}

	name := strings.TrimSpace(req.Name)
	exists, err := s.repo.ExistsByName(ctx, name, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check program name")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "a program with this name already exists")
	}

	program := &models.Program{
		Name:          name,
		Description:   req.Description,
		DurationWeeks: req.DurationWeeks,
	}
	if err := s.repo.Create(ctx, program); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create program")
	}

	s.audit.Record(&models.AuditLog{
		ActorID:    &actor.UserID,
		Action:     models.AuditActionProgramCreate,
		EntityType: "program",
		EntityID:   &program.ID,
	})

	return program, nil
}

// Update modifies a program.
func (s *ProgramService) Update(ctx context.Context, actor *models.SessionClaims, id string, req models.UpdateProgramRequest) (*models.Program, error) {
	program, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "program name cannot be empty")
		}
		exists, err := s.repo.ExistsByName(ctx, name, id)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check program name")
		}
		if exists {
			return nil, appErrors.Clone(appErrors.ErrConflict, "a program with this name already exists")
		}
		program.Name = name
	}
	if req.Description != nil {
		program.Description = *req.Description
	}
	if req.DurationWeeks != nil {
		if *req.DurationWeeks < 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "duration cannot be negative")
		}
		program.DurationWeeks = *req.DurationWeeks
	}

	if err := s.repo.Update(ctx, program); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update program")
	}

	s.audit.Record(&models.AuditLog{
		ActorID:    &actor.UserID,
		Action:     models.AuditActionProgramUpdate,
		EntityType: "program",
		EntityID:   &program.ID,
	})

	return program, nil
}

// Delete removes a program. Classes linked to it keep running with the
// reference cleared by the database constraint.
func (s *ProgramService) Delete(ctx context.Context, actor *models.SessionClaims, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete program")
	}

	s.audit.Record(&models.AuditLog{
		ActorID:    &actor.UserID,
		Action:     models.AuditActionProgramDelete,
		EntityType: "program",
		EntityID:   &id,
	})

	return nil
}
