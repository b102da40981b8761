package cases

import (
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"

	"github.com/caseflow/caseflow/internal/authz"
	"github.com/caseflow/caseflow/internal/changes"
	"github.com/caseflow/caseflow/internal/db/repositories"
	"github.com/caseflow/caseflow/internal/middleware"
	"github.com/caseflow/caseflow/internal/storage"
)

// ---------------------------------------------------------------------------
// Test setup helpers
// ---------------------------------------------------------------------------

// documentSQLCols are the columns returned by document SELECT queries.
var documentSQLCols = []string{
	"id", "case_id", "client_id", "file_name", "content_type", "storage_path",
	"size_bytes", "checksum", "uploaded_by", "created_at",
}

func sampleDocumentRow(uploadedBy string) *sqlmock.Rows {
	return sqlmock.NewRows(documentSQLCols).
		AddRow("doc-1", "case-1", "client-1", "intake.pdf", "application/pdf",
			"client-1/case-1/doc-1", int64(42), "abc123", uploadedBy, time.Now())
}

// fakeDocStorage satisfies storage.Storage without touching disk.
type fakeDocStorage struct {
	deleted []string
}

func (f *fakeDocStorage) Upload(_ context.Context, path string, reader io.Reader, size int64) (*storage.UploadResult, error) {
	n, _ := io.Copy(io.Discard, reader)
	return &storage.UploadResult{Path: path, Size: n, Checksum: "fake-checksum"}, nil
}

func (f *fakeDocStorage) Download(context.Context, string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("content")), nil
}

func (f *fakeDocStorage) Delete(_ context.Context, path string) error {
	f.deleted = append(f.deleted, path)
	return nil
}

func (f *fakeDocStorage) GetURL(context.Context, string, time.Duration) (string, error) {
	return "", nil
}

func (f *fakeDocStorage) Exists(context.Context, string) (bool, error) { return true, nil }

func (f *fakeDocStorage) GetMetadata(context.Context, string) (*storage.FileMetadata, error) {
	return nil, nil
}

func newDocumentRouter(t *testing.T, actor authz.Actor, grants *fakeGrants, changeRepo *fakeChangeRepo) (sqlmock.Sqlmock, *gin.Engine) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	h := NewDocumentHandlers(
		repositories.NewDocumentRepository(db),
		repositories.NewCaseRepository(db),
		&fakeDocStorage{},
		authz.NewDecider(grants, ""),
		changes.NewService(changeRepo),
	)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.ActorKey, actor)
		c.Next()
	})
	r.POST("/cases/:id/documents", h.UploadDocumentHandler())
	r.GET("/cases/:id/documents", h.ListDocumentsHandler())
	r.GET("/documents/:id", h.GetDocumentHandler())
	r.DELETE("/documents/:id", h.DeleteDocumentHandler())

	return mock, r
}

func multipartUpload(t *testing.T, filename, content string) (io.Reader, string) {
	t.Helper()
	var buf strings.Builder
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("writing form file: %v", err)
	}
	mw.Close()
	return strings.NewReader(buf.String()), mw.FormDataContentType()
}

// ---------------------------------------------------------------------------
// UploadDocumentHandler
// ---------------------------------------------------------------------------

func TestUploadDocumentHandler_Success(t *testing.T) {
	changeRepo := &fakeChangeRepo{}
	mock, r := newDocumentRouter(t, staffActor(), &fakeGrants{active: true}, changeRepo)

	mock.ExpectQuery("SELECT.*FROM cases.*WHERE id").
		WillReturnRows(sampleCaseRow("user-1"))
	mock.ExpectExec("INSERT INTO documents").
		WillReturnResult(sqlmock.NewResult(0, 1))

	body, contentType := multipartUpload(t, "intake.pdf", "pdf bytes")
	req := httptest.NewRequest("POST", "/cases/case-1/documents", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body: %s", w.Code, w.Body.String())
	}
	if len(changeRepo.created) != 1 {
		t.Fatalf("recorded changes = %d, want 1", len(changeRepo.created))
	}
	if changeRepo.created[0].EntityType != "document" {
		t.Errorf("entity type = %q, want document", changeRepo.created[0].EntityType)
	}
}

func TestUploadDocumentHandler_Conflict(t *testing.T) {
	// A colliding change timestamp must surface as 409, not a silent 201 with
	// no history row.
	changeRepo := &fakeChangeRepo{err: repositories.ErrChangeConflict}
	mock, r := newDocumentRouter(t, staffActor(), &fakeGrants{active: true}, changeRepo)

	mock.ExpectQuery("SELECT.*FROM cases.*WHERE id").
		WillReturnRows(sampleCaseRow("user-1"))
	mock.ExpectExec("INSERT INTO documents").
		WillReturnResult(sqlmock.NewResult(0, 1))

	body, contentType := multipartUpload(t, "intake.pdf", "pdf bytes")
	req := httptest.NewRequest("POST", "/cases/case-1/documents", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409; body: %s", w.Code, w.Body.String())
	}
}

// ---------------------------------------------------------------------------
// DeleteDocumentHandler
// ---------------------------------------------------------------------------

func TestDeleteDocumentHandler_RecordsDeletion(t *testing.T) {
	changeRepo := &fakeChangeRepo{}
	mock, r := newDocumentRouter(t, staffActor(), &fakeGrants{active: true, manager: true}, changeRepo)

	mock.ExpectQuery("SELECT.*FROM documents.*WHERE id").
		WillReturnRows(sampleDocumentRow("someone-else"))
	mock.ExpectExec("DELETE FROM documents").
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("DELETE", "/documents/doc-1", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", w.Code, w.Body.String())
	}
	if len(changeRepo.created) != 1 {
		t.Fatalf("recorded changes = %d, want 1", len(changeRepo.created))
	}
}

func TestDeleteDocumentHandler_Conflict(t *testing.T) {
	changeRepo := &fakeChangeRepo{err: repositories.ErrChangeConflict}
	mock, r := newDocumentRouter(t, staffActor(), &fakeGrants{active: true, manager: true}, changeRepo)

	mock.ExpectQuery("SELECT.*FROM documents.*WHERE id").
		WillReturnRows(sampleDocumentRow("someone-else"))
	mock.ExpectExec("DELETE FROM documents").
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("DELETE", "/documents/doc-1", nil))

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409; body: %s", w.Code, w.Body.String())
	}
}
