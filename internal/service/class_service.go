package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/vantage-academy/portal-api/internal/models"
	appErrors "github.com/vantage-academy/portal-api/pkg/errors"
	"github.com/vantage-academy/portal-api/pkg/export"
)

type classStore interface {
	List(ctx context.Context, filter models.ClassFilter) ([]models.Class, int, error)
	FindByID(ctx context.Context, id string) (*models.Class, error)
	FindDetailByID(ctx context.Context, id string) (*models.ClassDetail, error)
	ExistsByName(ctx context.Context, name, excludeID string) (bool, error)
	Create(ctx context.Context, class *models.Class) error
	Update(ctx context.Context, class *models.Class) error
	Delete(ctx context.Context, id string) error
	IsTeacherAssigned(ctx context.Context, classID, teacherID string) (bool, error)
	ListTeachers(ctx context.Context, classID string) ([]models.ClassTeacherDetail, error)
	AddTeacher(ctx context.Context, assignment *models.ClassTeacher) error
	RemoveTeacher(ctx context.Context, classID, teacherID string) error
	IsMember(ctx context.Context, classID, studentID string) (bool, error)
	ListMembers(ctx context.Context, classID string) ([]models.ClassMemberDetail, error)
	AddMember(ctx context.Context, member *models.ClassMember) error
	RemoveMember(ctx context.Context, classID, studentID string) error
}

type userLookup interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// ExportResult carries a rendered roster document.
type ExportResult struct {
	FileName    string
	ContentType string
	Content     []byte
}

// ClassService implements class administration, teacher assignments, student
// enrollment and roster export.
type ClassService struct {
	repo      classStore
	users     userLookup
	csv       *export.CSVExporter
	pdf       *export.PDFExporter
	validator *validator.Validate
	logger    *zap.Logger
	audit     auditRecorder
}

// NewClassService constructs a ClassService instance.
func NewClassService(repo classStore, users userLookup, validate *validator.Validate, logger *zap.Logger, audit auditRecorder) *ClassService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ClassService{
		repo:      repo,
		users:     users,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
		validator: validate,
		logger:    logger,
		audit:     audit,
	}
}

// ensureClassExists loads the class, translating a miss to not-found. The
// existence check always runs before any ownership check so callers without
// access to a nonexistent class see 404, never 403.
func (s *ClassService) ensureClassExists(ctx context.Context, id string) (*models.Class, error) {
	class, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	return class, nil
}

// ensureCanManage enforces ownership for class mutations: admins acting as
// admin manage any class, teachers only classes they are assigned to.
func (s *ClassService) ensureCanManage(ctx context.Context, actor *models.SessionClaims, classID string) (*models.Class, error) {
	class, err := s.ensureClassExists(ctx, classID)
	if err != nil {
		return nil, err
	}
	if actor.CurrentRole == models.RoleAdmin {
		return class, nil
	}
	assigned, err := s.repo.IsTeacherAssigned(ctx, classID, actor.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check class assignment")
	}
	if !assigned {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not assigned to this class")
	}
	return class, nil
}

// ensureCanView enforces read access: managers plus enrolled students.
func (s *ClassService) ensureCanView(ctx context.Context, actor *models.SessionClaims, classID string) (*models.Class, error) {
	class, err := s.ensureClassExists(ctx, classID)
	if err != nil {
		return nil, err
	}
	switch actor.CurrentRole {
	case models.RoleAdmin:
		return class, nil
	case models.RoleTeacher:
		assigned, err := s.repo.IsTeacherAssigned(ctx, classID, actor.UserID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check class assignment")
		}
		if assigned {
			return class, nil
		}
	case models.RoleStudent:
		member, err := s.repo.IsMember(ctx, classID, actor.UserID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check class membership")
		}
		if member {
			return class, nil
		}
	}
	return nil, appErrors.Clone(appErrors.ErrForbidden, "no access to this class")
}

// List returns classes visible to the actor.
func (s *ClassService) List(ctx context.Context, filter models.ClassFilter) (*models.ClassListResponse, error) {
	classes, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
	}
	if classes == nil {
		classes = []models.Class{}
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	return &models.ClassListResponse{
		Classes:    classes,
		Pagination: models.Pagination{Page: page, PageSize: pageSize, TotalCount: total},
	}, nil
}

// Get returns a class with its program detail.
func (s *ClassService) Get(ctx context.Context, actor *models.SessionClaims, id string) (*models.ClassDetail, error) {
	if _, err := s.ensureCanView(ctx, actor, id); err != nil {
		return nil, err
	}
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	return detail, nil
}

// Create adds a new class.
func (s *ClassService) Create(ctx context.Context, actor *models.SessionClaims, req models.CreateClassRequest) (*models.Class, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}

	name := strings.TrimSpace(req.Name)
	exists, err := s.repo.ExistsByName(ctx, name, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check class name")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "a class with this name already exists")
	}

	class := &models.Class{
		Name:        name,
		Description: req.Description,
		ProgramID:   req.ProgramID,
	}
	if err := s.repo.Create(ctx, class); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create class")
	}

	s.audit.Record(&models.AuditLog{
		ActorID:    &actor.UserID,
		Action:     models.AuditActionClassCreate,
		EntityType: "class",
		EntityID:   &class.ID,
	})

	return class, nil
}

// Update modifies a class the actor manages.
func (s *ClassService) Update(ctx context.Context, actor *models.SessionClaims, id string, req models.UpdateClassRequest) (*models.Class, error) {
	class, err := s.ensureCanManage(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "class name cannot be empty")
		}
		exists, err := s.repo.ExistsByName(ctx, name, id)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check class name")
		}
		if exists {
			return nil, appErrors.Clone(appErrors.ErrConflict, "a class with this name already exists")
		}
		class.Name = name
	}
	if req.Description != nil {
		class.Description = *req.Description
	}
	if req.ProgramID != nil {
		class.ProgramID = req.ProgramID
	}

	if err := s.repo.Update(ctx, class); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update class")
	}

	s.audit.Record(&models.AuditLog{
		ActorID:    &actor.UserID,
		Action:     models.AuditActionClassUpdate,
		EntityType: "class",
		EntityID:   &class.ID,
	})

	return class, nil
}

// Delete removes a class. Admin-only at the route level.
func (s *ClassService) Delete(ctx context.Context, actor *models.SessionClaims, id string) error {
	if _, err := s.ensureClassExists(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete class")
	}

	s.audit.Record(&models.AuditLog{
		ActorID:    &actor.UserID,
		Action:     models.AuditActionClassDelete,
		EntityType: "class",
		EntityID:   &id,
	})

	return nil
}

// ListTeachers returns the teacher assignments for a class.
func (s *ClassService) ListTeachers(ctx context.Context, actor *models.SessionClaims, classID string) ([]models.ClassTeacherDetail, error) {
	if _, err := s.ensureCanView(ctx, actor, classID); err != nil {
		return nil, err
	}
	teachers, err := s.repo.ListTeachers(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list class teachers")
	}
	if teachers == nil {
		teachers = []models.ClassTeacherDetail{}
	}
	return teachers, nil
}

// AssignTeacher links a teacher to a class. The target account must carry the
// teacher flag regardless of its currently active persona.
func (s *ClassService) AssignTeacher(ctx context.Context, actor *models.SessionClaims, classID string, req models.AssignTeacherRequest) (*models.ClassTeacher, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}

	if _, err := s.ensureCanManage(ctx, actor, classID); err != nil {
		return nil, err
	}

	teacher, err := s.users.FindByID(ctx, req.TeacherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	if !teacher.IsTeacher {
		return nil, appErrors.Clone(appErrors.ErrInvalidOperation, "user does not hold the teacher role")
	}

	assigned, err := s.repo.IsTeacherAssigned(ctx, classID, req.TeacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check class assignment")
	}
	if assigned {
		return nil, appErrors.Clone(appErrors.ErrConflict, "teacher is already assigned to this class")
	}

	assignment := &models.ClassTeacher{
		ClassID:   classID,
		TeacherID: req.TeacherID,
		IsPrimary: req.IsPrimary,
	}
	if err := s.repo.AddTeacher(ctx, assignment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign teacher")
	}

	s.audit.Record(&models.AuditLog{
		ActorID:    &actor.UserID,
		Action:     models.AuditActionTeacherAssign,
		EntityType: "class",
		EntityID:   &classID,
		Metadata:   []byte(fmt.Sprintf(`{"teacher_id":%q}`, req.TeacherID)),
	})

	return assignment, nil
}

// RemoveTeacher unlinks a teacher from a class.
func (s *ClassService) RemoveTeacher(ctx context.Context, actor *models.SessionClaims, classID, teacherID string) error {
	if _, err := s.ensureCanManage(ctx, actor, classID); err != nil {
		return err
	}
	if err := s.repo.RemoveTeacher(ctx, classID, teacherID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "teacher assignment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove teacher")
	}

	s.audit.Record(&models.AuditLog{
		ActorID:    &actor.UserID,
		Action:     models.AuditActionTeacherRemove,
		EntityType: "class",
		EntityID:   &classID,
		Metadata:   []byte(fmt.Sprintf(`{"teacher_id":%q}`, teacherID)),
	})

	return nil
}

// ListMembers returns the student roster for a class.
func (s *ClassService) ListMembers(ctx context.Context, actor *models.SessionClaims, classID string) ([]models.ClassMemberDetail, error) {
	if _, err := s.ensureCanView(ctx, actor, classID); err != nil {
		return nil, err
	}
	members, err := s.repo.ListMembers(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list class members")
	}
	if members == nil {
		members = []models.ClassMemberDetail{}
	}
	return members, nil
}

// AddMember enrols a student into a class the actor manages.
func (s *ClassService) AddMember(ctx context.Context, actor *models.SessionClaims, classID string, req models.AddMemberRequest) (*models.ClassMember, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid member payload")
	}

	if _, err := s.ensureCanManage(ctx, actor, classID); err != nil {
		return nil, err
	}

	student, err := s.users.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if !student.IsStudent {
		return nil, appErrors.Clone(appErrors.ErrInvalidOperation, "user does not hold the student role")
	}

	enrolled, err := s.repo.IsMember(ctx, classID, req.StudentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check class membership")
	}
	if enrolled {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student is already enrolled in this class")
	}

	member := &models.ClassMember{
		ClassID:   classID,
		StudentID: req.StudentID,
	}
	if err := s.repo.AddMember(ctx, member); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enrol student")
	}

	s.audit.Record(&models.AuditLog{
		ActorID:    &actor.UserID,
		Action:     models.AuditActionMemberAdd,
		EntityType: "class",
		EntityID:   &classID,
		Metadata:   []byte(fmt.Sprintf(`{"student_id":%q}`, req.StudentID)),
	})

	return member, nil
}

// RemoveMember withdraws a student from a class.
func (s *ClassService) RemoveMember(ctx context.Context, actor *models.SessionClaims, classID, studentID string) error {
	if _, err := s.ensureCanManage(ctx, actor, classID); err != nil {
		return err
	}
	if err := s.repo.RemoveMember(ctx, classID, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "class membership not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove member")
	}

	s.audit.Record(&models.AuditLog{
		ActorID:    &actor.UserID,
		Action:     models.AuditActionMemberRemove,
		EntityType: "class",
		EntityID:   &classID,
		Metadata:   []byte(fmt.Sprintf(`{"student_id":%q}`, studentID)),
	})

	return nil
}

// ExportRoster renders the class roster as CSV or PDF.
func (s *ClassService) ExportRoster(ctx context.Context, actor *models.SessionClaims, classID, format string) (*ExportResult, error) {
	class, err := s.ensureCanManage(ctx, actor, classID)
	if err != nil {
		return nil, err
	}

	members, err := s.repo.ListMembers(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list class members")
	}

	dataset := export.Dataset{
		Headers: []string{"Name", "Email", "Enrolled At"},
	}
	for _, m := range members {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Name":        m.StudentName,
			"Email":       m.StudentEmail,
			"Enrolled At": m.CreatedAt.Format(time.RFC3339),
		})
	}

	stamp := time.Now().UTC().Format("20060102")
	switch strings.ToLower(format) {
	case "", "csv":
		content, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster csv")
		}
		return &ExportResult{
			FileName:    fmt.Sprintf("roster_%s_%s.csv", class.ID, stamp),
			ContentType: "text/csv",
			Content:     content,
		}, nil
	case "pdf":
		content, err := s.pdf.Render(dataset, fmt.Sprintf("Roster - %s", class.Name))
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster pdf")
		}
		return &ExportResult{
			FileName:    fmt.Sprintf("roster_%s_%s.pdf", class.ID, stamp),
			ContentType: "application/pdf",
			Content:     content,
		}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format: "+format)
	}
}
