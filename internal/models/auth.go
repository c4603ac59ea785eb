package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// LoginResponse returns the issued session token and user info.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      UserInfo  `json:"user"`
	IssuedAt  time.Time `json:"issued_at"`
}

// SwitchRoleRequest asks to change the session's active persona.
type SwitchRoleRequest struct {
	Role string `json:"role" validate:"required"`
}

// SwitchRoleResponse acknowledges a staged role switch. The new role takes
// effect in the token returned by the follow-up session refresh call.
type SwitchRoleResponse struct {
	Success bool   `json:"success"`
	Role    Role   `json:"role"`
	Message string `json:"message"`
}

// SessionResponse carries a re-issued session token.
type SessionResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      UserInfo  `json:"user"`
}

// ChangePasswordRequest payload for updating password.
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8"`
}

// UserInfo describes the authenticated user in responses.
type UserInfo struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	FullName    string `json:"full_name"`
	Timezone    string `json:"timezone,omitempty"`
	IsStudent   bool   `json:"is_student"`
	IsTeacher   bool   `json:"is_teacher"`
	IsAdmin     bool   `json:"is_admin"`
	CurrentRole Role   `json:"current_role"`
}

// SessionClaims is the logical session token payload: identity, the three
// role flags, student access expiry, and the active persona.
type SessionClaims struct {
	UserID       string     `json:"user_id"`
	Email        string     `json:"email"`
	FullName     string     `json:"full_name"`
	Timezone     string     `json:"timezone,omitempty"`
	IsStudent    bool       `json:"is_student"`
	IsTeacher    bool       `json:"is_teacher"`
	IsAdmin      bool       `json:"is_admin"`
	AccessExpiry *time.Time `json:"access_expiry,omitempty"`
	CurrentRole  Role       `json:"current_role"`
	jwt.RegisteredClaims
}

// HasRole reports whether the claims carry the given role flag.
func (c *SessionClaims) HasRole(role Role) bool {
	switch role {
	case RoleStudent:
		return c.IsStudent
	case RoleTeacher:
		return c.IsTeacher
	case RoleAdmin:
		return c.IsAdmin
	}
	return false
}

// UserInfo projects the claims into the response shape.
func (c *SessionClaims) UserInfo() UserInfo {
	return UserInfo{
		ID:          c.UserID,
		Email:       c.Email,
		FullName:    c.FullName,
		Timezone:    c.Timezone,
		IsStudent:   c.IsStudent,
		IsTeacher:   c.IsTeacher,
		IsAdmin:     c.IsAdmin,
		CurrentRole: c.CurrentRole,
	}
}

// NewSessionClaims builds claims for a user acting as the given role.
// The registered claim set (exp, iat, iss) is filled in by the token codec.
func NewSessionClaims(user *User, currentRole Role) *SessionClaims {
	return &SessionClaims{
		UserID:       user.ID,
		Email:        user.Email,
		FullName:     user.FullName,
		Timezone:     user.Timezone,
		IsStudent:    user.IsStudent,
		IsTeacher:    user.IsTeacher,
		IsAdmin:      user.IsAdmin,
		AccessExpiry: user.AccessExpiry,
		CurrentRole:  currentRole,
	}
}
