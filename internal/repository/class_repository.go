package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/vantage-academy/portal-api/internal/models"
)

// ClassRepository manages persistence for classes, their teacher assignments
// and their student memberships.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository constructs a new class repository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

// List returns classes matching filter criteria.
func (r *ClassRepository) List(ctx context.Context, filter models.ClassFilter) ([]models.Class, int, error) {
	base := "FROM classes WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.ProgramID != "" {
		conditions = append(conditions, fmt.Sprintf("program_id = $%d", len(args)+1))
		args = append(args, filter.ProgramID)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(name) LIKE $%d)", len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "created_at"
	}
	allowedSorts := map[string]bool{
		"name":       true,
		"created_at": true,
		"updated_at": true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "created_at"
	}

	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT id, name, description, program_id, created_at, updated_at %s ORDER BY %s %s LIMIT %d OFFSET %d", base, sortBy, order, size, offset)
	var classes []models.Class
	if err := r.db.SelectContext(ctx, &classes, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list classes: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count classes: %w", err)
	}
	return classes, total, nil
}

// FindByID returns a class record by ID.
func (r *ClassRepository) FindByID(ctx context.Context, id string) (*models.Class, error) {
	const query = `SELECT id, name, description, program_id, created_at, updated_at FROM classes WHERE id = $1`
	var class models.Class
	if err := r.db.GetContext(ctx, &class, query, id); err != nil {
		return nil, err
	}
	return &class, nil
}

// FindDetailByID returns a class with joined program name if available.
func (r *ClassRepository) FindDetailByID(ctx context.Context, id string) (*models.ClassDetail, error) {
	const query = `SELECT c.id, c.name, c.description, c.program_id, c.created_at, c.updated_at, p.name AS program_name
		FROM classes c LEFT JOIN programs p ON p.id = c.program_id WHERE c.id = $1`
	var detail models.ClassDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ExistsByName checks if a class with the same name already exists.
func (r *ClassRepository) ExistsByName(ctx context.Context, name string, excludeID string) (bool, error) {
	query := "SELECT 1 FROM classes WHERE LOWER(name) = LOWER($1)"
	args := []interface{}{name}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check class name: %w", err)
	}
	return true, nil
}

// Create persists a class record.
func (r *ClassRepository) Create(ctx context.Context, class *models.Class) error {
	if class.ID == "" {
		class.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if class.CreatedAt.IsZero() {
		class.CreatedAt = now
	}
	class.UpdatedAt = now

	const query = `INSERT INTO classes (id, name, description, program_id, created_at, updated_at)
		VALUES (:id, :name, :description, :program_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, class); err != nil {
		return fmt.Errorf("create class: %w", err)
	}
	return nil
}

// Update modifies a class record.
func (r *ClassRepository) Update(ctx context.Context, class *models.Class) error {
	class.UpdatedAt = time.Now().UTC()
	const query = `UPDATE classes SET name = :name, description = :description, program_id = :program_id, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, class); err != nil {
		return fmt.Errorf("update class: %w", err)
	}
	return nil
}

// Delete removes a class record.
func (r *ClassRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM classes WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete class: %w", err)
	}
	return nil
}

// IsTeacherAssigned reports whether the teacher has an assignment linking
// them to the class. Ownership checks for class mutations hinge on this.
func (r *ClassRepository) IsTeacherAssigned(ctx context.Context, classID, teacherID string) (bool, error) {
	const query = `SELECT 1 FROM class_teachers WHERE class_id = $1 AND teacher_id = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, classID, teacherID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check class teacher: %w", err)
	}
	return true, nil
}

// ListTeachers returns the teacher assignments for a class.
func (r *ClassRepository) ListTeachers(ctx context.Context, classID string) ([]models.ClassTeacherDetail, error) {
	const query = `SELECT ct.id, ct.class_id, ct.teacher_id, ct.is_primary, ct.created_at,
		u.full_name AS teacher_name, u.email AS teacher_email
		FROM class_teachers ct JOIN users u ON u.id = ct.teacher_id
		WHERE ct.class_id = $1 ORDER BY ct.is_primary DESC, u.full_name ASC`
	var teachers []models.ClassTeacherDetail
	if err := r.db.SelectContext(ctx, &teachers, query, classID); err != nil {
		return nil, fmt.Errorf("list class teachers: %w", err)
	}
	return teachers, nil
}

// AddTeacher inserts a teacher assignment.
func (r *ClassRepository) AddTeacher(ctx context.Context, assignment *models.ClassTeacher) error {
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	if assignment.CreatedAt.IsZero() {
		assignment.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO class_teachers (id, class_id, teacher_id, is_primary, created_at)
		VALUES (:id, :class_id, :teacher_id, :is_primary, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, assignment); err != nil {
		return fmt.Errorf("add class teacher: %w", err)
	}
	return nil
}

// RemoveTeacher deletes a teacher assignment.
func (r *ClassRepository) RemoveTeacher(ctx context.Context, classID, teacherID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM class_teachers WHERE class_id = $1 AND teacher_id = $2`, classID, teacherID)
	if err != nil {
		return fmt.Errorf("remove class teacher: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check removed teacher rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// IsMember reports whether the student is enrolled in the class.
func (r *ClassRepository) IsMember(ctx context.Context, classID, studentID string) (bool, error) {
	const query = `SELECT 1 FROM class_members WHERE class_id = $1 AND student_id = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, classID, studentID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check class member: %w", err)
	}
	return true, nil
}

// ListMembers returns the student roster for a class.
func (r *ClassRepository) ListMembers(ctx context.Context, classID string) ([]models.ClassMemberDetail, error) {
	const query = `SELECT cm.id, cm.class_id, cm.student_id, cm.created_at,
		u.full_name AS student_name, u.email AS student_email
		FROM class_members cm JOIN users u ON u.id = cm.student_id
		WHERE cm.class_id = $1 ORDER BY u.full_name ASC`
	var members []models.ClassMemberDetail
	if err := r.db.SelectContext(ctx, &members, query, classID); err != nil {
		return nil, fmt.Errorf("list class members: %w", err)
	}
	return members, nil
}

// AddMember enrols a student.
func (r *ClassRepository) AddMember(ctx context.Context, member *models.ClassMember) error {
	if member.ID == "" {
		member.ID = uuid.NewString()
	}
	if member.CreatedAt.IsZero() {
		member.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO class_members (id, class_id, student_id, created_at)
		VALUES (:id, :class_id, :student_id, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, member); err != nil {
		return fmt.Errorf("add class member: %w", err)
	}
	return nil
}

// RemoveMember deletes a class membership.
func (r *ClassRepository) RemoveMember(ctx context.Context, classID, studentID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM class_members WHERE class_id = $1 AND student_id = $2`, classID, studentID)
	if err != nil {
		return fmt.Errorf("remove class member: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check removed member rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
