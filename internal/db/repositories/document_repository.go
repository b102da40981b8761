// document_repository.go implements DocumentRepository for case attachments.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/caseflow/caseflow/internal/db/models"
)

// DocumentRepository handles document metadata database operations. The
// document bytes themselves live in the storage backend.
type DocumentRepository struct {
	db *sql.DB
}

// NewDocumentRepository creates a new DocumentRepository
func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// CreateDocument records a newly uploaded document
func (r *DocumentRepository) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	doc.CreatedAt = time.Now()

	query := `
		INSERT INTO documents (id, case_id, client_id, file_name, content_type, storage_path, size_bytes, checksum, uploaded_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.ExecContext(ctx, query,
		doc.ID,
		doc.CaseID,
		doc.ClientID,
		doc.FileName,
		doc.ContentType,
		doc.StoragePath,
		doc.SizeBytes,
		doc.Checksum,
		doc.UploadedBy,
		doc.CreatedAt,
	)

	return err
}

// GetDocumentByID retrieves a document by ID
func (r *DocumentRepository) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	query := documentColumns + ` FROM documents WHERE id = $1`

	doc := &models.Document{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&doc.ID,
		&doc.CaseID,
		&doc.ClientID,
		&doc.FileName,
		&doc.ContentType,
		&doc.StoragePath,
		&doc.SizeBytes,
		&doc.Checksum,
		&doc.UploadedBy,
		&doc.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return doc, nil
}

// ListDocumentsByCase retrieves all documents attached to a case, newest first
func (r *DocumentRepository) ListDocumentsByCase(ctx context.Context, caseID string) ([]*models.Document, error) {
	query := documentColumns + ` FROM documents WHERE case_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := make([]*models.Document, 0)
	for rows.Next() {
		doc := &models.Document{}
		err := rows.Scan(
			&doc.ID,
			&doc.CaseID,
			&doc.ClientID,
			&doc.FileName,
			&doc.ContentType,
			&doc.StoragePath,
			&doc.SizeBytes,
			&doc.Checksum,
			&doc.UploadedBy,
			&doc.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}

	return docs, rows.Err()
}

// DeleteDocument removes a document's metadata row
func (r *DocumentRepository) DeleteDocument(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireRowAffected(result, "document")
}

const documentColumns = `
	SELECT id, case_id, client_id, file_name, content_type, storage_path, size_bytes, checksum, uploaded_by, created_at`
