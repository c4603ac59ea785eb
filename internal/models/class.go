package models

import "time"

// Class represents a coaching class.
type Class struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description,omitempty"`
	ProgramID   *string   `db:"program_id" json:"program_id,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// ClassDetail joins the owning program name when present.
type ClassDetail struct {
	Class
	ProgramName *string `db:"program_name" json:"program_name,omitempty"`
}

// ClassTeacher links a teacher to a class. A class has one or more teachers;
// at most one assignment should carry the primary flag.
type ClassTeacher struct {
	ID        string    `db:"id" json:"id"`
	ClassID   string    `db:"class_id" json:"class_id"`
	TeacherID string    `db:"teacher_id" json:"teacher_id"`
	IsPrimary bool      `db:"is_primary" json:"is_primary"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ClassTeacherDetail joins the teacher's display fields.
type ClassTeacherDetail struct {
	ClassTeacher
	TeacherName  string `db:"teacher_name" json:"teacher_name"`
	TeacherEmail string `db:"teacher_email" json:"teacher_email"`
}

// ClassMember enrols a student into a class.
type ClassMember struct {
	ID        string    `db:"id" json:"id"`
	ClassID   string    `db:"class_id" json:"class_id"`
	StudentID string    `db:"student_id" json:"student_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ClassMemberDetail joins the student's display fields.
type ClassMemberDetail struct {
	ClassMember
	StudentName  string `db:"student_name" json:"student_name"`
	StudentEmail string `db:"student_email" json:"student_email"`
}

// CreateClassRequest payload for creating a class.
type CreateClassRequest struct {
	Name        string  `json:"name" validate:"required"`
	Description string  `json:"description"`
	ProgramID   *string `json:"program_id"`
}

// UpdateClassRequest payload for modifying a class. Nil fields are unchanged.
type UpdateClassRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	ProgramID   *string `json:"program_id"`
}

// AssignTeacherRequest payload for linking a teacher to a class.
type AssignTeacherRequest struct {
	TeacherID string `json:"teacher_id" validate:"required"`
	IsPrimary bool   `json:"is_primary"`
}

// AddMemberRequest payload for enrolling a student into a class.
type AddMemberRequest struct {
	StudentID string `json:"student_id" validate:"required"`
}

// ClassListResponse pairs a page of classes with pagination metadata.
type ClassListResponse struct {
	Classes    []Class    `json:"classes"`
	Pagination Pagination `json:"pagination"`
}

// ClassFilter captures filtering criteria for listing classes.
type ClassFilter struct {
	ProgramID string
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
