package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/caseflow/caseflow/internal/db/models"
)

// ---------------------------------------------------------------------------
// Column definitions
// ---------------------------------------------------------------------------

var caseCols = []string{
	"id", "client_id", "title", "status", "description", "assigned_to",
	"created_by", "created_at", "updated_at",
}

// ---------------------------------------------------------------------------
// Row builders
// ---------------------------------------------------------------------------

func sampleCaseRow() *sqlmock.Rows {
	return sqlmock.NewRows(caseCols).
		AddRow("case-1", "client-1", "Intake review", "open", nil, nil,
			"user-1", time.Now(), time.Now())
}

func newCaseRepo(t *testing.T) (*CaseRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewCaseRepository(db), mock
}

// ---------------------------------------------------------------------------
// CreateCase
// ---------------------------------------------------------------------------

func TestCreateCase(t *testing.T) {
	repo, mock := newCaseRepo(t)
	mock.ExpectExec("INSERT INTO cases").
		WillReturnResult(sqlmock.NewResult(0, 1))

	cf := &models.CaseFile{
		ClientID:  "client-1",
		Title:     "Intake review",
		CreatedBy: "user-1",
	}
	if err := repo.CreateCase(context.Background(), cf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cf.ID == "" {
		t.Error("expected generated ID")
	}
	if cf.Status != "open" {
		t.Errorf("Status = %s, want default open", cf.Status)
	}
}

// ---------------------------------------------------------------------------
// GetCaseByID
// ---------------------------------------------------------------------------

func TestGetCaseByID_Found(t *testing.T) {
	repo, mock := newCaseRepo(t)
	mock.ExpectQuery("SELECT.*FROM cases.*WHERE id").
		WithArgs("case-1").
		WillReturnRows(sampleCaseRow())

	cf, err := repo.GetCaseByID(context.Background(), "case-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cf == nil {
		t.Fatal("expected case, got nil")
	}
	if cf.ClientID != "client-1" {
		t.Errorf("ClientID = %s, want client-1", cf.ClientID)
	}
}

func TestGetCaseByID_NotFound(t *testing.T) {
	repo, mock := newCaseRepo(t)
	mock.ExpectQuery("SELECT.*FROM cases.*WHERE id").
		WillReturnRows(sqlmock.NewRows(caseCols))

	cf, err := repo.GetCaseByID(context.Background(), "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cf != nil {
		t.Error("expected nil case, got non-nil")
	}
}

// ---------------------------------------------------------------------------
// UpdateCase / DeleteCase
// ---------------------------------------------------------------------------

func TestUpdateCase(t *testing.T) {
	repo, mock := newCaseRepo(t)
	mock.ExpectExec("UPDATE cases").
		WillReturnResult(sqlmock.NewResult(0, 1))

	cf := &models.CaseFile{ID: "case-1", Title: "Renamed", Status: "in_progress"}
	if err := repo.UpdateCase(context.Background(), cf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestUpdateCase_NotFound(t *testing.T) {
	repo, mock := newCaseRepo(t)
	mock.ExpectExec("UPDATE cases").
		WillReturnResult(sqlmock.NewResult(0, 0))

	cf := &models.CaseFile{ID: "missing", Title: "x", Status: "open"}
	if err := repo.UpdateCase(context.Background(), cf); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestDeleteCase(t *testing.T) {
	repo, mock := newCaseRepo(t)
	mock.ExpectExec("DELETE FROM cases").
		WithArgs("case-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.DeleteCase(context.Background(), "case-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// ---------------------------------------------------------------------------
// ListCases
// ---------------------------------------------------------------------------

func TestListCases_ClientFilter(t *testing.T) {
	repo, mock := newCaseRepo(t)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM cases.*client_id`).
		WithArgs("client-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT.*FROM cases.*client_id.*ORDER BY created_at DESC").
		WithArgs("client-1", 20, 0).
		WillReturnRows(sampleCaseRow())

	cases, total, err := repo.ListCases(context.Background(), CaseFilters{ClientID: strPtr("client-1")}, 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || len(cases) != 1 {
		t.Errorf("total=%d len=%d, want 1/1", total, len(cases))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestListCases_DBError(t *testing.T) {
	repo, mock := newCaseRepo(t)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM cases`).
		WillReturnError(errors.New("connection lost"))

	if _, _, err := repo.ListCases(context.Background(), CaseFilters{}, 20, 0); err == nil {
		t.Fatal("expected error, got nil")
	}
}
