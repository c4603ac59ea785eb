package models

import "time"

// Role names a persona an account can act as. Role flags on the user record
// are independent and non-exclusive; a single account may hold all three.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// ParseRole validates a literal role name.
func ParseRole(raw string) (Role, bool) {
	switch Role(raw) {
	case RoleStudent, RoleTeacher, RoleAdmin:
		return Role(raw), true
	}
	return "", false
}

// User represents an account stored in the users table.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Timezone     string     `db:"timezone" json:"timezone"`
	IsStudent    bool       `db:"is_student" json:"is_student"`
	IsTeacher    bool       `db:"is_teacher" json:"is_teacher"`
	IsAdmin      bool       `db:"is_admin" json:"is_admin"`
	IsActive     bool       `db:"is_active" json:"is_active"`
	AccessExpiry *time.Time `db:"access_expiry" json:"access_expiry,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// HasRole reports whether the corresponding role flag is set.
func (u *User) HasRole(role Role) bool {
	switch role {
	case RoleStudent:
		return u.IsStudent
	case RoleTeacher:
		return u.IsTeacher
	case RoleAdmin:
		return u.IsAdmin
	}
	return false
}

// HasAnyRole reports whether at least one role flag is set. Accounts with no
// flags cannot authenticate.
func (u *User) HasAnyRole() bool {
	return u.IsStudent || u.IsTeacher || u.IsAdmin
}

// DefaultRole returns the highest-privilege role among the set flags,
// in fixed priority order admin > teacher > student.
func (u *User) DefaultRole() Role {
	switch {
	case u.IsAdmin:
		return RoleAdmin
	case u.IsTeacher:
		return RoleTeacher
	default:
		return RoleStudent
	}
}

// CreateUserRequest payload for provisioning an account.
type CreateUserRequest struct {
	Email        string     `json:"email" validate:"required,email"`
	Password     string     `json:"password" validate:"required,min=8"`
	FullName     string     `json:"full_name" validate:"required"`
	Timezone     string     `json:"timezone"`
	IsStudent    bool       `json:"is_student"`
	IsTeacher    bool       `json:"is_teacher"`
	IsAdmin      bool       `json:"is_admin"`
	AccessExpiry *time.Time `json:"access_expiry"`
}

// UpdateUserRequest payload for modifying an account. Nil fields are left
// unchanged; access_expiry set to an explicit value replaces the stored one.
type UpdateUserRequest struct {
	FullName     *string    `json:"full_name"`
	Timezone     *string    `json:"timezone"`
	IsStudent    *bool      `json:"is_student"`
	IsTeacher    *bool      `json:"is_teacher"`
	IsAdmin      *bool      `json:"is_admin"`
	IsActive     *bool      `json:"is_active"`
	AccessExpiry *time.Time `json:"access_expiry"`
}

// UserListResponse pairs a page of users with pagination metadata.
type UserListResponse struct {
	Users      []User     `json:"users"`
	Pagination Pagination `json:"pagination"`
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role      *Role
	Active    *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
