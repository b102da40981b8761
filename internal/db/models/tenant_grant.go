// Package models - tenant_grant.go defines the TenantGrant model associating
// an actor with a client (tenant) scope. Grants are revoked by soft delete and
// never hard-deleted; uniqueness holds only among unrevoked grants so an actor
// can be re-granted after a revocation.
package models

import "time"

// TenantGrant links an actor to a client scope with an optional role level.
type TenantGrant struct {
	ID        string `db:"id"`
	ActorID   string `db:"actor_id"`
	ClientID  string `db:"client_id"`
	// Role is the grant's level within the tenant ("staff" or "manager");
	// manager-level grants satisfy write checks for that tenant.
	Role      string     `db:"role"`
	GrantedBy *string    `db:"granted_by"`
	Notes     *string    `db:"notes"`
	CreatedAt time.Time  `db:"created_at"`
	RevokedAt *time.Time `db:"revoked_at"`
}

// Active reports whether the grant is currently in force.
func (g *TenantGrant) Active() bool {
	return g.RevokedAt == nil
}
