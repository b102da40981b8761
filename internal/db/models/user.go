// Package models - user.go defines the User model for actors in the system.
package models

import (
	"time"

	"github.com/caseflow/caseflow/internal/auth"
)

// User is an authenticated actor. Role holds the stored role name; use
// ParsedRole for escalation checks.
type User struct {
	ID           string
	Email        string
	Name         string
	Role         string
	PasswordHash string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ParsedRole returns the user's role as the closed enum; unrecognised stored
// values degrade to RoleUnknown.
func (u *User) ParsedRole() auth.Role {
	return auth.ParseRole(u.Role)
}
