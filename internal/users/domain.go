package users

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/roster/internal/platform/httpx"
)

// Role classifies a roster entry.
type Role string

const (
	// RoleStudent is the default role of a new draft.
	RoleStudent Role = "student"
	// RoleInstructor marks teaching staff.
	RoleInstructor Role = "instructor"
)

// Roles lists the selectable roles in display order.
var Roles = []Role{RoleStudent, RoleInstructor}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleInstructor
}

// DefaultPageSize is the number of records shown per page.
const DefaultPageSize = 10

var (
	// ErrRecordNotFound is returned when no record carries the requested id.
	ErrRecordNotFound = fmt.Errorf("users: record %w", httpx.ErrNotFound)
	// ErrIndexOutOfRange is returned for a positional delete outside the record list.
	ErrIndexOutOfRange = fmt.Errorf("users: index out of range: %w", httpx.ErrValidation)
)

// Record is a single roster entry. Records are never edited after they are added.
type Record struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Email    string    `json:"email"`
	Contact  string    `json:"contact"`
	Password string    `json:"-"`
	Role     Role      `json:"role"`
	AddedAt  time.Time `json:"added_at"`
}

// Row is a record positioned within the full roster.
type Row struct {
	Record
	// Index is the absolute position of the record in the roster.
	Index int `json:"index"`
	// Number is the 1-based row number shown to the user.
	Number int `json:"number"`
}

// View is a read-only snapshot of a roster used for rendering.
type View struct {
	Rows       []Row `json:"rows"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalPages int   `json:"total_pages"`
	Total      int   `json:"total"`
	HasPrev    bool  `json:"has_prev"`
	HasNext    bool  `json:"has_next"`
	// Visible is false when the roster is empty and the list region stays hidden.
	Visible bool `json:"visible"`
}
