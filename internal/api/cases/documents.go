// documents.go implements document endpoints: uploads attached to a case,
// downloads, and deletion. Document bytes live in the storage backend; only
// metadata is stored in the database.
package cases

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/caseflow/caseflow/internal/authz"
	"github.com/caseflow/caseflow/internal/changes"
	"github.com/caseflow/caseflow/internal/db/models"
	"github.com/caseflow/caseflow/internal/db/repositories"
	"github.com/caseflow/caseflow/internal/middleware"
	"github.com/caseflow/caseflow/internal/storage"
)

const entityTypeDocument = "document"

// maxUploadSize caps document uploads at 100MB.
const maxUploadSize = 100 << 20

// DocumentHandlers handles document endpoints
type DocumentHandlers struct {
	docs    *repositories.DocumentRepository
	cases   *repositories.CaseRepository
	store   storage.Storage
	decider *authz.Decider
	history *changes.Service
}

// NewDocumentHandlers creates a new DocumentHandlers instance
func NewDocumentHandlers(
	docs *repositories.DocumentRepository,
	caseRepo *repositories.CaseRepository,
	store storage.Storage,
	decider *authz.Decider,
	history *changes.Service,
) *DocumentHandlers {
	return &DocumentHandlers{docs: docs, cases: caseRepo, store: store, decider: decider, history: history}
}

// UploadDocumentHandler attaches an uploaded file to a case
// POST /api/v1/cases/:id/documents (multipart, field "file")
func (h *DocumentHandlers) UploadDocumentHandler() gin.HandlerFunc {
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

		allowed, err := h.decider.CanWrite(c.Request.Context(), actor, "update", cf)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Authorization check failed"})
			return
		}
		if !allowed {
			c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
			return
		}

		fileHeader, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "A file is required"})
			return
		}
		if fileHeader.Size > maxUploadSize {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File exceeds maximum size"})
			return
		}

		file, err := fileHeader.Open()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read upload"})
			return
		}
		defer file.Close()

		docID := uuid.New().String()
		storagePath := fmt.Sprintf("%s/%s/%s", cf.ClientID, cf.ID, docID)

		result, err := h.store.Upload(c.Request.Context(), storagePath, file, fileHeader.Size)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store document"})
			return
		}

		contentType := fileHeader.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "application/octet-stream"
		}

		doc := &models.Document{
			ID:          docID,
			CaseID:      cf.ID,
			ClientID:    cf.ClientID,
			FileName:    fileHeader.Filename,
			ContentType: contentType,
			StoragePath: result.Path,
			SizeBytes:   result.Size,
			Checksum:    result.Checksum,
			UploadedBy:  actor.ID,
		}

		if err := h.docs.CreateDocument(c.Request.Context(), doc); err != nil {
			// The blob is orphaned if we fail here; remove it
			_ = h.store.Delete(c.Request.Context(), result.Path)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create document"})
			return
		}

		if _, err := h.history.RecordCreate(c.Request.Context(), actor.ID, entityTypeDocument, doc.ID, documentSnapshot(doc)); err != nil {
			if changes.IsConflict(err) {
				c.JSON(http.StatusConflict, gin.H{"error": "A change for this document at this timestamp already exists"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record change"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{"document": doc})
	}
}

// GetDocumentHandler streams a document's content
// GET /api/v1/documents/:id
func (h *DocumentHandlers) GetDocumentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := middleware.ActorFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		doc, err := h.docs.GetDocumentByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve document"})
			return
		}
		if doc == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Document not found"})
			return
		}

		allowed, err := h.decider.CanRead(c.Request.Context(), actor, doc)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Authorization check failed"})
			return
		}
		if !allowed {
			c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
			return
		}

		reader, err := h.store.Download(c.Request.Context(), doc.StoragePath)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to download document"})
			return
		}
		defer reader.Close()

		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.FileName))
		c.Header("Content-Type", doc.ContentType)
		c.Status(http.StatusOK)
		_, _ = io.Copy(c.Writer, reader)
	}
}

// ListDocumentsHandler lists the documents attached to a case
// GET /api/v1/cases/:id/documents
func (h *DocumentHandlers) ListDocumentsHandler() gin.HandlerFunc {
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

		allowed, err := h.decider.CanRead(c.Request.Context(), actor, cf)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Authorization check failed"})
			return
		}
		if !allowed {
			c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
			return
		}

		docs, err := h.docs.ListDocumentsByCase(c.Request.Context(), cf.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list documents"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"documents": docs})
	}
}

// DeleteDocumentHandler removes a document and its stored bytes
// DELETE /api/v1/documents/:id
func (h *DocumentHandlers) DeleteDocumentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := middleware.ActorFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		doc, err := h.docs.GetDocumentByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve document"})
			return
		}
		if doc == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Document not found"})
			return
		}

		allowed, err := h.decider.CanWrite(c.Request.Context(), actor, "delete", doc)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Authorization check failed"})
			return
		}
		if !allowed {
			c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
			return
		}

		before := documentSnapshot(doc)

		if err := h.docs.DeleteDocument(c.Request.Context(), doc.ID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete document"})
			return
		}
		// Blob removal is best effort: the metadata row is the source of truth
		_ = h.store.Delete(c.Request.Context(), doc.StoragePath)

		if _, err := h.history.RecordDelete(c.Request.Context(), actor.ID, entityTypeDocument, doc.ID, before); err != nil {
			if changes.IsConflict(err) {
				c.JSON(http.StatusConflict, gin.H{"error": "A change for this document at this timestamp already exists"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record change"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"deleted": true})
	}
}

func documentSnapshot(doc *models.Document) map[string]any {
	return map[string]any{
		"client_id":    doc.ClientID,
		"case_id":      doc.CaseID,
		"file_name":    doc.FileName,
		"content_type": doc.ContentType,
		"size_bytes":   doc.SizeBytes,
		"checksum":     doc.Checksum,
	}
}
