// Package admin implements management endpoints: client (tenant) CRUD, user
// accounts, tenant grants, and the action record viewer. All routes in this
// package sit behind elevated-role middleware.
package admin

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/caseflow/caseflow/internal/db/models"
	"github.com/caseflow/caseflow/internal/db/repositories"
)

// ClientHandlers handles client management endpoints
type ClientHandlers struct {
	clients *repositories.ClientRepository
}

// NewClientHandlers creates a new ClientHandlers instance
func NewClientHandlers(clients *repositories.ClientRepository) *ClientHandlers {
	return &ClientHandlers{clients: clients}
}

// CreateClientRequest is the payload for creating a client
type CreateClientRequest struct {
	Name  string  `json:"name" binding:"required"`
	Code  string  `json:"code" binding:"required"`
	Notes *string `json:"notes"`
}

// CreateClientHandler creates a new client
// POST /api/v1/admin/clients
func (h *ClientHandlers) CreateClientHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateClientRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}

		client := &models.Client{
			Name:   req.Name,
			Code:   req.Code,
			Notes:  req.Notes,
			Active: true,
		}

		if err := h.clients.CreateClient(c.Request.Context(), client); err != nil {
			if errors.Is(err, repositories.ErrClientCodeExists) {
				c.JSON(http.StatusConflict, gin.H{"error": "A client with this code already exists"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create client"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{"client": client})
	}
}

// GetClientHandler retrieves a client by ID
// GET /api/v1/admin/clients/:id
func (h *ClientHandlers) GetClientHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		client, err := h.clients.GetClientByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve client"})
			return
		}
		if client == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Client not found"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"client": client})
	}
}

// UpdateClientRequest is the payload for updating a client
type UpdateClientRequest struct {
	Name   *string `json:"name"`
	Notes  *string `json:"notes"`
	Active *bool   `json:"active"`
}

// UpdateClientHandler updates a client's mutable attributes
// PUT /api/v1/admin/clients/:id
func (h *ClientHandlers) UpdateClientHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdateClientRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}

		client, err := h.clients.GetClientByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve client"})
			return
		}
		if client == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Client not found"})
			return
		}

		if req.Name != nil {
			client.Name = *req.Name
		}
		if req.Notes != nil {
			client.Notes = req.Notes
		}
		if req.Active != nil {
			client.Active = *req.Active
		}

		if err := h.clients.UpdateClient(c.Request.Context(), client); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update client"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"client": client})
	}
}

// ListClientsHandler lists clients with pagination
// GET /api/v1/admin/clients?page=1&per_page=20&active=true
func (h *ClientHandlers) ListClientsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, perPage := pagination(c)
		activeOnly := c.Query("active") == "true"

		clients, total, err := h.clients.ListClients(c.Request.Context(), activeOnly, perPage, (page-1)*perPage)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list clients"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"clients": clients,
			"pagination": gin.H{
				"page":     page,
				"per_page": perPage,
				"total":    total,
			},
		})
	}
}

// pagination parses page/per_page query parameters with sane bounds.
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
