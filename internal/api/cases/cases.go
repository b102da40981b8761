// Package cases implements case file endpoints. Every read goes through the
// scope decider; every successful write is recorded in the change history.
package cases

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/caseflow/caseflow/internal/authz"
	"github.com/caseflow/caseflow/internal/changes"
	"github.com/caseflow/caseflow/internal/db/models"
	"github.com/caseflow/caseflow/internal/db/repositories"
	"github.com/caseflow/caseflow/internal/middleware"
	"github.com/caseflow/caseflow/internal/telemetry"
)

const entityTypeCase = "case"

// CaseHandlers handles case file endpoints
type CaseHandlers struct {
	cases   *repositories.CaseRepository
	decider *authz.Decider
	history *changes.Service
}

// NewCaseHandlers creates a new CaseHandlers instance
func NewCaseHandlers(cases *repositories.CaseRepository, decider *authz.Decider, history *changes.Service) *CaseHandlers {
	return &CaseHandlers{cases: cases, decider: decider, history: history}
}

// authorizeRead runs the read decision and writes the error response on
// denial. Returns true when the request may proceed.
func (h *CaseHandlers) authorizeRead(c *gin.Context, actor authz.Actor, obj any) bool {
	allowed, err := h.decider.CanRead(c.Request.Context(), actor, obj)
	return h.recordDecision(c, "read", allowed, err)
}

func (h *CaseHandlers) authorizeWrite(c *gin.Context, actor authz.Actor, action string, obj any) bool {
	allowed, err := h.decider.CanWrite(c.Request.Context(), actor, action, obj)
	return h.recordDecision(c, action, allowed, err)
}

func (h *CaseHandlers) recordDecision(c *gin.Context, action string, allowed bool, err error) bool {
	if err != nil {
		telemetry.AuthzDecisionsTotal.WithLabelValues("error", action).Inc()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Authorization check failed"})
		return false
	}
	if !allowed {
		telemetry.AuthzDecisionsTotal.WithLabelValues("deny", action).Inc()
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
		return false
	}
	telemetry.AuthzDecisionsTotal.WithLabelValues("allow", action).Inc()
	return true
}

// CreateCaseRequest is the payload for opening a case
type CreateCaseRequest struct {
	ClientID    string  `json:"client_id" binding:"required"`
	Title       string  `json:"title" binding:"required"`
	Description *string `json:"description"`
	AssignedTo  *string `json:"assigned_to"`
}

// CreateCaseHandler opens a new case file
// POST /api/v1/cases
func (h *CaseHandlers) CreateCaseHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := middleware.ActorFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		var req CreateCaseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}

		cf := &models.CaseFile{
			ClientID:    req.ClientID,
			Title:       req.Title,
			Description: req.Description,
			AssignedTo:  req.AssignedTo,
			CreatedBy:   actor.ID,
		}

		if !h.authorizeWrite(c, actor, "create", cf) {
			return
		}

		if err := h.cases.CreateCase(c.Request.Context(), cf); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create case"})
			return
		}

		if _, err := h.history.RecordCreate(c.Request.Context(), actor.ID, entityTypeCase, cf.ID, cf.Snapshot()); err != nil {
			if changes.IsConflict(err) {
				c.JSON(http.StatusConflict, gin.H{"error": "A change for this case at this timestamp already exists"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record change"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{"case": cf})
	}
}

// GetCaseHandler retrieves a case file
// GET /api/v1/cases/:id
func (h *CaseHandlers) GetCaseHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := middleware.ActorFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		cf, err := h.cases.GetCaseByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve case"})
			return
		}
		if cf == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Case not found"})
			return
		}

		if !h.authorizeRead(c, actor, cf) {
			return
		}

		c.JSON(http.StatusOK, gin.H{"case": cf})
	}
}

// UpdateCaseRequest is the payload for updating a case
type UpdateCaseRequest struct {
	Title       *string `json:"title"`
	Status      *string `json:"status"`
	Description *string `json:"description"`
	AssignedTo  *string `json:"assigned_to"`
	Reason      *string `json:"reason"`
}

var validStatuses = map[string]bool{"open": true, "in_progress": true, "closed": true}

// UpdateCaseHandler updates a case file and records the field-level diff
// PUT /api/v1/cases/:id
func (h *CaseHandlers) UpdateCaseHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := middleware.ActorFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		var req UpdateCaseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		if req.Status != nil && !validStatuses[*req.Status] {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Status must be open, in_progress, or closed"})
			return
		}

		cf, err := h.cases.GetCaseByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve case"})
			return
		}
		if cf == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Case not found"})
			return
		}

		if !h.authorizeWrite(c, actor, "update", cf) {
			return
		}

		before := cf.Snapshot()

		if req.Title != nil {
			cf.Title = *req.Title
		}
		if req.Status != nil {
			cf.Status = *req.Status
		}
		if req.Description != nil {
			cf.Description = req.Description
		}
		if req.AssignedTo != nil {
			cf.AssignedTo = req.AssignedTo
		}

		if err := h.cases.UpdateCase(c.Request.Context(), cf); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update case"})
			return
		}

		var opts []changes.Option
		if req.Reason != nil {
			opts = append(opts, changes.WithReason(*req.Reason))
		}
		if _, err := h.history.RecordUpdate(c.Request.Context(), actor.ID, entityTypeCase, cf.ID, before, cf.Snapshot(), opts...); err != nil {
			if changes.IsConflict(err) {
				c.JSON(http.StatusConflict, gin.H{"error": "A change for this case at this timestamp already exists"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record change"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"case": cf})
	}
}

// DeleteCaseHandler removes a case file and records the deletion
// DELETE /api/v1/cases/:id
func (h *CaseHandlers) DeleteCaseHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := middleware.ActorFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		cf, err := h.cases.GetCaseByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve case"})
			return
		}
		if cf == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Case not found"})
			return
		}

		if !h.authorizeWrite(c, actor, "delete", cf) {
			return
		}

		before := cf.Snapshot()

		if err := h.cases.DeleteCase(c.Request.Context(), cf.ID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete case"})
			return
		}

		if _, err := h.history.RecordDelete(c.Request.Context(), actor.ID, entityTypeCase, cf.ID, before); err != nil {
			if changes.IsConflict(err) {
				c.JSON(http.StatusConflict, gin.H{"error": "A change for this case at this timestamp already exists"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record change"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"deleted": true})
	}
}

// ListCasesHandler lists case files the actor may see. Non-elevated actors
// must scope the listing to one client they hold a grant for.
// GET /api/v1/cases?client_id=&status=&assigned_to=&page=1&per_page=20
func (h *CaseHandlers) ListCasesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := middleware.ActorFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		var filters repositories.CaseFilters
		if v := c.Query("client_id"); v != "" {
			filters.ClientID = &v
		}
		if v := c.Query("status"); v != "" {
			filters.Status = &v
		}
		if v := c.Query("assigned_to"); v != "" {
			filters.AssignedTo = &v
		}

		if !actor.Role.Elevated() {
			if filters.ClientID == nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "client_id is required"})
				return
			}
			// Probe the decider with the requested scope before listing
			probe := map[string]any{"client_id": *filters.ClientID}
			if !h.authorizeRead(c, actor, probe) {
				return
			}
		}

		page, perPage := pagination(c)
		cases, total, err := h.cases.ListCases(c.Request.Context(), filters, perPage, (page-1)*perPage)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list cases"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"cases": cases,
			"pagination": gin.H{
				"page":     page,
				"per_page": perPage,
				"total":    total,
			},
		})
	}
}

func pagination(c *gin.Context) (page, perPage int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ = strconv.Atoi(c.DefaultQuery("per_page", "20"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	return page, perPage
}
