package models

import "time"

// ClassSession is a scheduled meeting of a class.
type ClassSession struct {
	ID        string    `db:"id" json:"id"`
	ClassID   string    `db:"class_id" json:"class_id"`
	Title     string    `db:"title" json:"title"`
	StartsAt  time.Time `db:"starts_at" json:"starts_at"`
	EndsAt    time.Time `db:"ends_at" json:"ends_at"`
	Location  string    `db:"location" json:"location,omitempty"`
	Notes     string    `db:"notes" json:"notes,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// CreateSessionRequest payload for scheduling a class session.
type CreateSessionRequest struct {
	Title    string    `json:"title" validate:"required"`
	StartsAt time.Time `json:"starts_at" validate:"required"`
	EndsAt   time.Time `json:"ends_at" validate:"required"`
	Location string    `json:"location"`
	Notes    string    `json:"notes"`
}

// UpdateSessionRequest payload for modifying a class session. Nil fields are
// unchanged.
type UpdateSessionRequest struct {
	Title    *string    `json:"title"`
	StartsAt *time.Time `json:"starts_at"`
	EndsAt   *time.Time `json:"ends_at"`
	Location *string    `json:"location"`
	Notes    *string    `json:"notes"`
}
