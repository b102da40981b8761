// grant_repository.go implements persistence for tenant authorization
// grants. It uses sqlx struct scanning since grant rows map 1:1 onto the
// model with no JSONB columns.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/caseflow/caseflow/internal/auth"
	"github.com/caseflow/caseflow/internal/db/models"
)

// ErrGrantExists is returned when the actor already holds an active grant for
// the client. The existing grant must be revoked before a new one (e.g. at a
// different level) can be created.
var ErrGrantExists = errors.New("an active grant for this actor and client already exists")

// GrantRepository handles tenant grant database operations
type GrantRepository struct {
	db *sqlx.DB
}

// NewGrantRepository creates a new GrantRepository
func NewGrantRepository(db *sqlx.DB) *GrantRepository {
	return &GrantRepository{db: db}
}

// Create records a new active grant. Returns ErrGrantExists when the actor
// already holds an unrevoked grant for the client (enforced by a partial
// unique index).
func (r *GrantRepository) Create(ctx context.Context, grant *models.TenantGrant) error {
	if grant.ID == "" {
		grant.ID = uuid.New().String()
	}
	grant.CreatedAt = time.Now()
	grant.RevokedAt = nil

	query := `
		INSERT INTO tenant_grants (id, actor_id, client_id, role, granted_by, notes, created_at)
		VALUES (:id, :actor_id, :client_id, :role, :granted_by, :notes, :created_at)
	`

	_, err := r.db.NamedExecContext(ctx, query, grant)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrGrantExists
		}
		return err
	}
	return nil
}

// Revoke marks a grant revoked. Revocation is a tombstone, not a delete: the
// row stays for grant history.
func (r *GrantRepository) Revoke(ctx context.Context, id string) error {
	query := `
		UPDATE tenant_grants
		SET revoked_at = $2
		WHERE id = $1 AND revoked_at IS NULL
	`
	result, err := r.db.ExecContext(ctx, query, id, time.Now())
	if err != nil {
		return err
	}
	return requireRowAffected(result, "grant")
}

// Get retrieves a grant by ID
func (r *GrantRepository) Get(ctx context.Context, id string) (*models.TenantGrant, error) {
	grant := &models.TenantGrant{}
	err := r.db.GetContext(ctx, grant, `SELECT * FROM tenant_grants WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return grant, nil
}

// GetActiveGrant retrieves the actor's unrevoked grant for a client, if any
func (r *GrantRepository) GetActiveGrant(ctx context.Context, actorID, clientID string) (*models.TenantGrant, error) {
	grant := &models.TenantGrant{}
	query := `
		SELECT * FROM tenant_grants
		WHERE actor_id = $1 AND client_id = $2 AND revoked_at IS NULL
	`
	err := r.db.GetContext(ctx, grant, query, actorID, clientID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return grant, nil
}

// HasActiveGrant reports whether the actor holds any unrevoked grant for the
// client. Implements authz.GrantSource.
func (r *GrantRepository) HasActiveGrant(ctx context.Context, actorID, clientID string) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS (
			SELECT 1 FROM tenant_grants
			WHERE actor_id = $1 AND client_id = $2 AND revoked_at IS NULL
		)
	`
	err := r.db.GetContext(ctx, &exists, query, actorID, clientID)
	return exists, err
}

// HasManagerGrant reports whether the actor holds an unrevoked manager-level
// grant for the client. Implements authz.GrantSource.
func (r *GrantRepository) HasManagerGrant(ctx context.Context, actorID, clientID string) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS (
			SELECT 1 FROM tenant_grants
			WHERE actor_id = $1 AND client_id = $2 AND revoked_at IS NULL AND role = $3
		)
	`
	err := r.db.GetContext(ctx, &exists, query, actorID, clientID, auth.RoleManager.String())
	return exists, err
}

// ListByActor retrieves all grants held by an actor, newest first.
// Revoked grants are included unless activeOnly is set.
func (r *GrantRepository) ListByActor(ctx context.Context, actorID string, activeOnly bool) ([]*models.TenantGrant, error) {
	query := `SELECT * FROM tenant_grants WHERE actor_id = $1`
	if activeOnly {
		query += ` AND revoked_at IS NULL`
	}
	query += ` ORDER BY created_at DESC`

	grants := make([]*models.TenantGrant, 0)
	if err := r.db.SelectContext(ctx, &grants, query, actorID); err != nil {
		return nil, err
	}
	return grants, nil
}

// ListByClient retrieves all active grants for a client, newest first
func (r *GrantRepository) ListByClient(ctx context.Context, clientID string) ([]*models.TenantGrant, error) {
	query := `
		SELECT * FROM tenant_grants
		WHERE client_id = $1 AND revoked_at IS NULL
		ORDER BY created_at DESC
	`

	grants := make([]*models.TenantGrant, 0)
	if err := r.db.SelectContext(ctx, &grants, query, clientID); err != nil {
		return nil, err
	}
	return grants, nil
}
