package models

import "time"

// Program represents a certification program offered by the academy.
type Program struct {
	ID            string    `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	Description   string    `db:"description" json:"description,omitempty"`
	DurationWeeks int       `db:"duration_weeks" json:"duration_weeks"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// CreateProgramRequest payload for creating a program.
type CreateProgramRequest struct {
	Name          string `json:"name" validate:"required"`
	Description   string `json:"description"`
	DurationWeeks int    `json:"duration_weeks" validate:"gte=0"`
}

// UpdateProgramRequest payload for modifying a program. Nil fields are
// unchanged.
type UpdateProgramRequest struct {
	Name          *string `json:"name"`
	Description   *string `json:"description"`
	DurationWeeks *int    `json:"duration_weeks"`
}

// ProgramListResponse pairs a page of programs with pagination metadata.
type ProgramListResponse struct {
	Programs   []Program  `json:"programs"`
	Pagination Pagination `json:"pagination"`
}

// ProgramFilter captures filtering criteria for listing programs.
type ProgramFilter struct {
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
