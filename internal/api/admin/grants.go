// grants.go implements handlers for tenant authorization grants: issuing,
// listing, and revoking the actor-to-client links that scope checks consult.
package admin

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/caseflow/caseflow/internal/auth"
	"github.com/caseflow/caseflow/internal/db/models"
	"github.com/caseflow/caseflow/internal/db/repositories"
	"github.com/caseflow/caseflow/internal/middleware"
)

// GrantHandlers handles tenant grant endpoints
type GrantHandlers struct {
	grants *repositories.GrantRepository
}

// NewGrantHandlers creates a new GrantHandlers instance
func NewGrantHandlers(grants *repositories.GrantRepository) *GrantHandlers {
	return &GrantHandlers{grants: grants}
}

// CreateGrantRequest is the payload for issuing a grant
type CreateGrantRequest struct {
	ActorID  string  `json:"actor_id" binding:"required"`
	ClientID string  `json:"client_id" binding:"required"`
	Role     string  `json:"role" binding:"required"`
	Notes    *string `json:"notes"`
}

// CreateGrantHandler issues a new grant. An actor can hold at most one active
// grant per client; to change its level, revoke and re-issue.
// POST /api/v1/admin/grants
func (h *GrantHandlers) CreateGrantHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateGrantRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		if req.Role != auth.RoleStaff.String() && req.Role != auth.RoleManager.String() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Grant role must be staff or manager"})
			return
		}

		grant := &models.TenantGrant{
			ActorID:  req.ActorID,
			ClientID: req.ClientID,
			Role:     req.Role,
			Notes:    req.Notes,
		}
		if actor, ok := middleware.ActorFromContext(c); ok {
			grant.GrantedBy = &actor.ID
		}

		if err := h.grants.Create(c.Request.Context(), grant); err != nil {
			if errors.Is(err, repositories.ErrGrantExists) {
				// Return the blocking grant so the caller knows what to revoke.
				resp := gin.H{"error": "An active grant for this actor and client already exists"}
				if existing, lookupErr := h.grants.GetActiveGrant(c.Request.Context(), req.ActorID, req.ClientID); lookupErr == nil && existing != nil {
					resp["grant"] = existing
				}
				c.JSON(http.StatusConflict, resp)
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create grant"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{"grant": grant})
	}
}

// GetGrantHandler retrieves a grant by ID
// GET /api/v1/admin/grants/:id
func (h *GrantHandlers) GetGrantHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		grant, err := h.grants.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve grant"})
			return
		}
		if grant == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Grant not found"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"grant": grant})
	}
}

// RevokeGrantHandler revokes a grant. The grant row is tombstoned, not
// deleted, so grant history survives.
// DELETE /api/v1/admin/grants/:id
func (h *GrantHandlers) RevokeGrantHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h.grants.Revoke(c.Request.Context(), c.Param("id")); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Grant not found or already revoked"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"revoked": true})
	}
}

// ListGrantsHandler lists grants for an actor or a client
// GET /api/v1/admin/grants?actor_id=...&active=true
// GET /api/v1/admin/grants?client_id=...
func (h *GrantHandlers) ListGrantsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actorID := c.Query("actor_id")
		clientID := c.Query("client_id")

		switch {
		case actorID != "":
			grants, err := h.grants.ListByActor(c.Request.Context(), actorID, c.Query("active") == "true")
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list grants"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"grants": grants})
		case clientID != "":
			grants, err := h.grants.ListByClient(c.Request.Context(), clientID)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list grants"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"grants": grants})
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "actor_id or client_id is required"})
		}
	}
}
