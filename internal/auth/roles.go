// Package auth - roles.go defines the closed, ordered set of actor roles and
// the escalation helpers used by the authorization decider. Roles are an
// ordered enum rather than free strings so elevation checks are exhaustive:
// adding a role forces every switch over Role to be revisited.
package auth

import "fmt"

// Role is an actor's position in the escalation order. Higher values carry
// every permission of lower ones.
type Role int

const (
	// RoleUnknown is the zero value; it never grants anything.
	RoleUnknown Role = iota
	// RoleStaff is a regular case worker bound by tenant grants.
	RoleStaff
	// RoleManager may write to any object within tenants it is granted on,
	// and bypasses object-level scope checks globally.
	RoleManager
	// RoleAdmin administers tenants, users, and grants.
	RoleAdmin
	// RoleSuperuser is the operational break-glass role.
	RoleSuperuser
)

var roleNames = map[Role]string{
	RoleUnknown:   "unknown",
	RoleStaff:     "staff",
	RoleManager:   "manager",
	RoleAdmin:     "admin",
	RoleSuperuser: "superuser",
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return "unknown"
}

// ParseRole maps a stored role name to its enum value. Unrecognised names map
// to RoleUnknown rather than erroring so a corrupted row degrades to
// no-permissions instead of breaking reads.
func ParseRole(s string) Role {
	for r, name := range roleNames {
		if name == s {
			return r
		}
	}
	return RoleUnknown
}

// ValidateRole rejects role names outside the closed set. Used at the write
// path (user creation, grant creation) so RoleUnknown never enters the store.
func ValidateRole(s string) error {
	if r := ParseRole(s); r == RoleUnknown {
		return fmt.Errorf("invalid role: %q", s)
	}
	return nil
}

// AtLeast reports whether r sits at or above min in the escalation order.
func (r Role) AtLeast(min Role) bool {
	return r >= min
}

// Elevated reports whether the role bypasses tenant-scope checks entirely.
// Manager and above are elevated.
func (r Role) Elevated() bool {
	return r >= RoleManager
}

// AllRoles returns every assignable role, in escalation order.
func AllRoles() []Role {
	return []Role{RoleStaff, RoleManager, RoleAdmin, RoleSuperuser}
}
