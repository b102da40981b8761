package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/caseflow/caseflow/internal/db/models"
)

// ---------------------------------------------------------------------------
// Column definitions
// ---------------------------------------------------------------------------

var actionRecordCols = []string{
	"id", "actor_id", "kind", "entity_type", "entity_id", "request",
	"ip_address", "user_agent", "status_code", "elapsed_ms", "created_at",
}

// ---------------------------------------------------------------------------
// Row builders
// ---------------------------------------------------------------------------

func sampleActionRecordRow(t *testing.T) *sqlmock.Rows {
	t.Helper()
	req, err := json.Marshal(&models.RequestContext{
		Method: "POST",
		Path:   "/api/v1/cases",
		Body:   map[string]any{"title": "intake"},
	})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	return sqlmock.NewRows(actionRecordCols).
		AddRow("rec-1", "user-1", "create", "case", "case-1", req,
			"192.0.2.10", "curl/8.0", 201, int64(12), time.Now())
}

func emptyActionRecordRow() *sqlmock.Rows {
	return sqlmock.NewRows(actionRecordCols)
}

func newActionRecordRepo(t *testing.T) (*ActionRecordRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewActionRecordRepository(db), mock
}

func strPtr(s string) *string { return &s }

// ---------------------------------------------------------------------------
// Create
// ---------------------------------------------------------------------------

func TestActionRecordCreate(t *testing.T) {
	repo, mock := newActionRecordRepo(t)

	mock.ExpectExec("INSERT INTO action_records").
		WithArgs(sqlmock.AnyArg(), "user-1", models.ActionCreate, "case", "case-1",
			sqlmock.AnyArg(), "192.0.2.10", "curl/8.0", 201, int64(12), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := &models.ActionRecord{
		ActorID:    strPtr("user-1"),
		Kind:       models.ActionCreate,
		EntityType: strPtr("case"),
		EntityID:   strPtr("case-1"),
		Request: &models.RequestContext{
			Method: "POST",
			Path:   "/api/v1/cases",
		},
		IPAddress:  strPtr("192.0.2.10"),
		UserAgent:  strPtr("curl/8.0"),
		StatusCode: 201,
		ElapsedMS:  12,
	}

	if err := repo.Create(context.Background(), rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.ID == "" {
		t.Error("expected generated ID")
	}
	if rec.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be filled")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestActionRecordCreate_NilRequest(t *testing.T) {
	repo, mock := newActionRecordRepo(t)

	mock.ExpectExec("INSERT INTO action_records").
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := &models.ActionRecord{Kind: models.ActionOther, StatusCode: 404}
	if err := repo.Create(context.Background(), rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Get
// ---------------------------------------------------------------------------

func TestActionRecordGet_Found(t *testing.T) {
	repo, mock := newActionRecordRepo(t)
	mock.ExpectQuery("SELECT.*FROM action_records.*WHERE id").
		WithArgs("rec-1").
		WillReturnRows(sampleActionRecordRow(t))

	rec, err := repo.Get(context.Background(), "rec-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec == nil {
		t.Fatal("expected record, got nil")
	}
	if rec.ID != "rec-1" {
		t.Errorf("ID = %s, want rec-1", rec.ID)
	}
	if rec.Request == nil || rec.Request.Path != "/api/v1/cases" {
		t.Errorf("Request not unmarshalled: %+v", rec.Request)
	}
}

func TestActionRecordGet_NotFound(t *testing.T) {
	repo, mock := newActionRecordRepo(t)
	mock.ExpectQuery("SELECT.*FROM action_records.*WHERE id").
		WithArgs("missing").
		WillReturnRows(emptyActionRecordRow())

	rec, err := repo.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec != nil {
		t.Error("expected nil record, got non-nil")
	}
}

func TestActionRecordGet_DBError(t *testing.T) {
	repo, mock := newActionRecordRepo(t)
	mock.ExpectQuery("SELECT.*FROM action_records.*WHERE id").
		WillReturnError(errors.New("connection lost"))

	if _, err := repo.Get(context.Background(), "rec-1"); err == nil {
		t.Fatal("expected error, got nil")
	}
}

// ---------------------------------------------------------------------------
// List
// ---------------------------------------------------------------------------

func TestActionRecordList_NoFilters(t *testing.T) {
	repo, mock := newActionRecordRepo(t)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM action_records`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT.*FROM action_records.*ORDER BY created_at DESC").
		WithArgs(20, 0).
		WillReturnRows(sampleActionRecordRow(t))

	records, total, err := repo.List(context.Background(), ActionRecordFilters{}, 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 {
		t.Errorf("total = %d, want 1", total)
	}
	if len(records) != 1 {
		t.Fatalf("len(records) = %d, want 1", len(records))
	}
}

func TestActionRecordList_Filters(t *testing.T) {
	repo, mock := newActionRecordRepo(t)
	kind := models.ActionCreate
	start := time.Now().Add(-time.Hour)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM action_records.*actor_id.*kind.*entity_type.*created_at`).
		WithArgs("user-1", kind, "case", start).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("SELECT.*FROM action_records.*actor_id.*kind.*entity_type.*created_at").
		WithArgs("user-1", kind, "case", start, 10, 0).
		WillReturnRows(emptyActionRecordRow())

	filters := ActionRecordFilters{
		ActorID:    strPtr("user-1"),
		Kind:       &kind,
		EntityType: strPtr("case"),
		StartDate:  &start,
	}
	records, total, err := repo.List(context.Background(), filters, 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 0 || len(records) != 0 {
		t.Errorf("expected empty result, got total=%d len=%d", total, len(records))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
