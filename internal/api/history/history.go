// Package history implements change-history query endpoints: the chronological
// record of what changed on an entity, per-field histories, and soft
// delete/restore of individual change rows.
package history

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/caseflow/caseflow/internal/authz"
	"github.com/caseflow/caseflow/internal/changes"
	"github.com/caseflow/caseflow/internal/db/models"
	"github.com/caseflow/caseflow/internal/db/repositories"
	"github.com/caseflow/caseflow/internal/middleware"
)

// Handlers handles change-history endpoints
type Handlers struct {
	history *changes.Service
	decider *authz.Decider
}

// NewHandlers creates a new history Handlers instance
func NewHandlers(history *changes.Service, decider *authz.Decider) *Handlers {
	return &Handlers{history: history, decider: decider}
}

// authorize checks read access against the entity the history belongs to,
// using a scope probe built from the history rows themselves: the caller may
// see the history iff they may see the entity.
func (h *Handlers) authorize(c *gin.Context, actor authz.Actor, snapshots ...map[string]any) bool {
	for _, snapshot := range snapshots {
		if snapshot == nil {
			continue
		}
		allowed, err := h.decider.CanRead(c.Request.Context(), actor, snapshot)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Authorization check failed"})
			return false
		}
		if !allowed {
			c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
			return false
		}
		return true
	}
	// No snapshot carried a scope; fall through to the decider's unscoped
	// policy with an empty probe
	allowed, err := h.decider.CanRead(c.Request.Context(), actor, map[string]any{})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Authorization check failed"})
		return false
	}
	if !allowed {
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
		return false
	}
	return true
}

// GetHistoryHandler retrieves an entity's change history in chronological
// order
// GET /api/v1/history/:type/:id?actor_id=&kind=&start=&end=&include_deleted=true
func (h *Handlers) GetHistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := middleware.ActorFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		filters, ok := parseChangeFilters(c)
		if !ok {
			return
		}
		// Soft-deleted changes are visible to elevated roles only
		filters.IncludeDeleted = c.Query("include_deleted") == "true" && actor.Role.Elevated()

		records, err := h.history.History(c.Request.Context(), c.Param("type"), c.Param("id"), filters)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve history"})
			return
		}

		if !actor.Role.Elevated() {
			var snapshots []map[string]any
			for _, rec := range records {
				snapshots = append(snapshots, rec.After, rec.Before)
			}
			if !h.authorize(c, actor, snapshots...) {
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{"history": records})
	}
}

var validKinds = map[models.ChangeKind]bool{
	models.ChangeCreate: true,
	models.ChangeUpdate: true,
	models.ChangeDelete: true,
}

// parseChangeFilters reads the actor/kind/time-range query parameters. On a
// malformed parameter it writes the 400 response and returns ok=false.
func parseChangeFilters(c *gin.Context) (repositories.ChangeFilters, bool) {
	var filters repositories.ChangeFilters

	if v := c.Query("actor_id"); v != "" {
		filters.ActorID = &v
	}
	if v := c.Query("kind"); v != "" {
		kind := models.ChangeKind(v)
		if !validKinds[kind] {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Kind must be create, update, or delete"})
			return filters, false
		}
		filters.Kind = &kind
	}
	if v := c.Query("start"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "start must be an RFC3339 timestamp"})
			return filters, false
		}
		filters.Start = &t
	}
	if v := c.Query("end"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "end must be an RFC3339 timestamp"})
			return filters, false
		}
		filters.End = &t
	}

	return filters, true
}

// GetFieldHistoryHandler retrieves the history of one field of an entity
// GET /api/v1/history/:type/:id/fields/:field
func (h *Handlers) GetFieldHistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := middleware.ActorFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		if !actor.Role.Elevated() {
			// Resolve scope from the entity's change history before exposing
			// field values
			records, err := h.history.History(c.Request.Context(), c.Param("type"), c.Param("id"), repositories.ChangeFilters{})
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve history"})
				return
			}
			var snapshots []map[string]any
			for _, rec := range records {
				snapshots = append(snapshots, rec.After, rec.Before)
			}
			if !h.authorize(c, actor, snapshots...) {
				return
			}
		}

		fields, err := h.history.FieldHistory(c.Request.Context(), c.Param("type"), c.Param("id"), c.Param("field"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve field history"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"history": fields})
	}
}

// GetChangeHandler retrieves one change with its field rows
// GET /api/v1/changes/:id
func (h *Handlers) GetChangeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := middleware.ActorFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		change, err := h.history.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve change"})
			return
		}
		if change == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Change not found"})
			return
		}

		if !actor.Role.Elevated() {
			if !h.authorize(c, actor, change.After, change.Before) {
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{"change": change})
	}
}

// SoftDeleteChangeHandler marks a change inactive (admin only, enforced by
// routing)
// DELETE /api/v1/admin/changes/:id
func (h *Handlers) SoftDeleteChangeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h.history.SoftDelete(c.Request.Context(), c.Param("id")); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Change not found or already deleted"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": true})
	}
}

// RestoreChangeHandler reactivates a soft-deleted change (admin only,
// enforced by routing)
// POST /api/v1/admin/changes/:id/restore
func (h *Handlers) RestoreChangeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h.history.Restore(c.Request.Context(), c.Param("id")); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Change not found or not deleted"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"restored": true})
	}
}
