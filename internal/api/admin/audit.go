// audit.go implements the action record viewer: read-only access to the
// append-only audit trail. There are deliberately no write endpoints.
package admin

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/caseflow/caseflow/internal/db/models"
	"github.com/caseflow/caseflow/internal/db/repositories"
)

// AuditHandlers handles action record query endpoints
type AuditHandlers struct {
	records *repositories.ActionRecordRepository
}

// NewAuditHandlers creates a new AuditHandlers instance
func NewAuditHandlers(records *repositories.ActionRecordRepository) *AuditHandlers {
	return &AuditHandlers{records: records}
}

// ListActionRecordsHandler lists action records with optional filters
// GET /api/v1/admin/audit?actor_id=&kind=&entity_type=&entity_id=&start=&end=
func (h *AuditHandlers) ListActionRecordsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, perPage := pagination(c)

		var filters repositories.ActionRecordFilters
		if v := c.Query("actor_id"); v != "" {
			filters.ActorID = &v
		}
		if v := c.Query("kind"); v != "" {
			kind := models.ActionKind(v)
			filters.Kind = &kind
		}
		if v := c.Query("entity_type"); v != "" {
			filters.EntityType = &v
		}
		if v := c.Query("entity_id"); v != "" {
			filters.EntityID = &v
		}
		if v := c.Query("start"); v != "" {
			start, err := time.Parse(time.RFC3339, v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "start must be RFC3339"})
				return
			}
			filters.StartDate = &start
		}
		if v := c.Query("end"); v != "" {
			end, err := time.Parse(time.RFC3339, v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "end must be RFC3339"})
				return
			}
			filters.EndDate = &end
		}

		records, total, err := h.records.List(c.Request.Context(), filters, perPage, (page-1)*perPage)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list action records"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"records": records,
			"pagination": gin.H{
				"page":     page,
				"per_page": perPage,
				"total":    total,
			},
		})
	}
}

// GetActionRecordHandler retrieves a single action record
// GET /api/v1/admin/audit/:id
func (h *AuditHandlers) GetActionRecordHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		rec, err := h.records.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve action record"})
			return
		}
		if rec == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Action record not found"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"record": rec})
	}
}
