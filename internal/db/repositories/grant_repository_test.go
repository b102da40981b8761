package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/caseflow/caseflow/internal/db/models"
)

// ---------------------------------------------------------------------------
// Column definitions
// ---------------------------------------------------------------------------

var grantCols = []string{
	"id", "actor_id", "client_id", "role", "granted_by", "notes", "created_at", "revoked_at",
}

// ---------------------------------------------------------------------------
// Row builders
// ---------------------------------------------------------------------------

func sampleGrantRow() *sqlmock.Rows {
	return sqlmock.NewRows(grantCols).
		AddRow("grant-1", "user-1", "client-1", "staff", "admin-1", nil, time.Now(), nil)
}

func newGrantRepo(t *testing.T) (*GrantRepository, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { mockDB.Close() })
	return NewGrantRepository(sqlx.NewDb(mockDB, "postgres")), mock
}

// ---------------------------------------------------------------------------
// Create
// ---------------------------------------------------------------------------

func TestGrantCreate(t *testing.T) {
	repo, mock := newGrantRepo(t)
	mock.ExpectExec("INSERT INTO tenant_grants").
		WillReturnResult(sqlmock.NewResult(0, 1))

	grant := &models.TenantGrant{
		ActorID:   "user-1",
		ClientID:  "client-1",
		Role:      "staff",
		GrantedBy: strPtr("admin-1"),
	}

	if err := repo.Create(context.Background(), grant); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if grant.ID == "" {
		t.Error("expected generated ID")
	}
	if grant.RevokedAt != nil {
		t.Error("new grant must not be revoked")
	}
}

func TestGrantCreate_AlreadyExists(t *testing.T) {
	repo, mock := newGrantRepo(t)
	mock.ExpectExec("INSERT INTO tenant_grants").
		WillReturnError(&pq.Error{Code: "23505"})

	grant := &models.TenantGrant{ActorID: "user-1", ClientID: "client-1", Role: "staff"}
	err := repo.Create(context.Background(), grant)
	if !errors.Is(err, ErrGrantExists) {
		t.Fatalf("expected ErrGrantExists, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Revoke
// ---------------------------------------------------------------------------

func TestGrantRevoke(t *testing.T) {
	repo, mock := newGrantRepo(t)
	mock.ExpectExec("UPDATE tenant_grants.*SET revoked_at").
		WithArgs("grant-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Revoke(context.Background(), "grant-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestGrantRevoke_AlreadyRevoked(t *testing.T) {
	repo, mock := newGrantRepo(t)
	mock.ExpectExec("UPDATE tenant_grants.*SET revoked_at").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.Revoke(context.Background(), "grant-1"); err == nil {
		t.Fatal("expected error, got nil")
	}
}

// ---------------------------------------------------------------------------
// Lookups
// ---------------------------------------------------------------------------

func TestGetActiveGrant_Found(t *testing.T) {
	repo, mock := newGrantRepo(t)
	mock.ExpectQuery("SELECT.*FROM tenant_grants.*revoked_at IS NULL").
		WithArgs("user-1", "client-1").
		WillReturnRows(sampleGrantRow())

	grant, err := repo.GetActiveGrant(context.Background(), "user-1", "client-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if grant == nil {
		t.Fatal("expected grant, got nil")
	}
	if grant.ClientID != "client-1" {
		t.Errorf("ClientID = %s, want client-1", grant.ClientID)
	}
}

func TestGetActiveGrant_NotFound(t *testing.T) {
	repo, mock := newGrantRepo(t)
	mock.ExpectQuery("SELECT.*FROM tenant_grants.*revoked_at IS NULL").
		WillReturnRows(sqlmock.NewRows(grantCols))

	grant, err := repo.GetActiveGrant(context.Background(), "user-1", "client-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if grant != nil {
		t.Error("expected nil grant, got non-nil")
	}
}

func TestHasActiveGrant(t *testing.T) {
	repo, mock := newGrantRepo(t)
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("user-1", "client-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := repo.HasActiveGrant(context.Background(), "user-1", "client-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected active grant")
	}
}

func TestHasManagerGrant_QueriesRole(t *testing.T) {
	repo, mock := newGrantRepo(t)
	mock.ExpectQuery("SELECT EXISTS.*role").
		WithArgs("user-1", "client-1", "manager").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	ok, err := repo.HasManagerGrant(context.Background(), "user-1", "client-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected no manager grant")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestHasActiveGrant_DBError(t *testing.T) {
	repo, mock := newGrantRepo(t)
	mock.ExpectQuery("SELECT EXISTS").
		WillReturnError(errors.New("connection lost"))

	if _, err := repo.HasActiveGrant(context.Background(), "user-1", "client-1"); err == nil {
		t.Fatal("expected error, got nil")
	}
}

// ---------------------------------------------------------------------------
// Listing
// ---------------------------------------------------------------------------

func TestListByActor_ActiveOnly(t *testing.T) {
	repo, mock := newGrantRepo(t)
	mock.ExpectQuery("SELECT.*FROM tenant_grants.*actor_id.*revoked_at IS NULL.*ORDER BY created_at DESC").
		WithArgs("user-1").
		WillReturnRows(sampleGrantRow())

	grants, err := repo.ListByActor(context.Background(), "user-1", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(grants) != 1 {
		t.Fatalf("len(grants) = %d, want 1", len(grants))
	}
}

func TestListByClient(t *testing.T) {
	repo, mock := newGrantRepo(t)
	mock.ExpectQuery("SELECT.*FROM tenant_grants.*client_id.*revoked_at IS NULL").
		WithArgs("client-1").
		WillReturnRows(sampleGrantRow())

	grants, err := repo.ListByClient(context.Background(), "client-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(grants) != 1 {
		t.Fatalf("len(grants) = %d, want 1", len(grants))
	}
}
