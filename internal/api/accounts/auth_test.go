package accounts

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/caseflow/caseflow/internal/auth"
	"github.com/caseflow/caseflow/internal/authz"
	"github.com/caseflow/caseflow/internal/config"
	"github.com/caseflow/caseflow/internal/db/repositories"
	"github.com/caseflow/caseflow/internal/middleware"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	// Token generation in the login/refresh success paths needs a secret
	os.Setenv("CFW_JWT_SECRET", "test-accounts-jwt-secret-that-is-32chars!!")
	os.Exit(m.Run())
}

// ---------------------------------------------------------------------------
// Test setup helpers
// ---------------------------------------------------------------------------

// userSQLCols are the columns returned by user SELECT queries.
var userSQLCols = []string{
	"id", "email", "password_hash", "name", "role", "active", "created_at", "updated_at",
}

const testPassword = "correct-horse-battery"

func userRowWithPassword(t *testing.T, active bool) *sqlmock.Rows {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return sqlmock.NewRows(userSQLCols).
		AddRow("user-1", "alice@example.com", string(hash), "Alice", "staff", active, time.Now(), time.Now())
}

// newAuthRouter creates a gin router with all AuthHandlers routes registered.
func newAuthRouter(t *testing.T) (sqlmock.Sqlmock, *gin.Engine) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{
		Auth: config.AuthConfig{
			TokenExpiry:        time.Hour,
			RefreshTokenExpiry: 24 * time.Hour,
		},
	}
	h := NewAuthHandlers(cfg, repositories.NewUserRepository(db))

	r := gin.New()
	r.POST("/auth/login", h.LoginHandler())
	r.POST("/auth/refresh", h.RefreshHandler())
	r.GET("/auth/me", func(c *gin.Context) {
		c.Set(middleware.ActorKey, authz.Actor{ID: "user-1", Role: auth.RoleStaff, Authenticated: true})
		h.MeHandler()(c)
	})

	return mock, r
}

func jsonBody(v interface{}) *bytes.Buffer {
	b, _ := json.Marshal(v)
	return bytes.NewBuffer(b)
}

func getJSON(resp *httptest.ResponseRecorder) map[string]interface{} {
	var m map[string]interface{}
	json.Unmarshal(resp.Body.Bytes(), &m)
	return m
}

func postLogin(r *gin.Engine, email, password string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/auth/login", jsonBody(map[string]string{
		"email":    email,
		"password": password,
	}))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

// ---------------------------------------------------------------------------
// LoginHandler
// ---------------------------------------------------------------------------

func TestLoginHandler_Success(t *testing.T) {
	mock, r := newAuthRouter(t)

	mock.ExpectQuery("SELECT.*FROM users.*WHERE email").
		WithArgs("alice@example.com").
		WillReturnRows(userRowWithPassword(t, true))

	w := postLogin(r, "alice@example.com", testPassword)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", w.Code, w.Body.String())
	}
	resp := getJSON(w)
	if resp["access_token"] == nil || resp["refresh_token"] == nil {
		t.Error("response missing token pair")
	}
	if resp["user"] == nil {
		t.Error("response missing 'user' key")
	}
}

func TestLoginHandler_WrongPassword(t *testing.T) {
	mock, r := newAuthRouter(t)

	mock.ExpectQuery("SELECT.*FROM users.*WHERE email").
		WillReturnRows(userRowWithPassword(t, true))

	w := postLogin(r, "alice@example.com", "not-the-password")

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestLoginHandler_UnknownEmail(t *testing.T) {
	// Unknown email and wrong password produce the same response
	mock, r := newAuthRouter(t)

	mock.ExpectQuery("SELECT.*FROM users.*WHERE email").
		WillReturnRows(sqlmock.NewRows(userSQLCols))

	w := postLogin(r, "nobody@example.com", testPassword)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
	if getJSON(w)["error"] != "Invalid credentials" {
		t.Errorf("error = %v, want generic 'Invalid credentials'", getJSON(w)["error"])
	}
}

func TestLoginHandler_InactiveUser(t *testing.T) {
	mock, r := newAuthRouter(t)

	mock.ExpectQuery("SELECT.*FROM users.*WHERE email").
		WillReturnRows(userRowWithPassword(t, false))

	w := postLogin(r, "alice@example.com", testPassword)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestLoginHandler_MalformedEmail(t *testing.T) {
	_, r := newAuthRouter(t)

	w := postLogin(r, "not-an-email", testPassword)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

// ---------------------------------------------------------------------------
// RefreshHandler
// ---------------------------------------------------------------------------

func TestRefreshHandler_Success(t *testing.T) {
	mock, r := newAuthRouter(t)

	token, err := auth.GenerateJWT("user-1", "alice@example.com", auth.RoleStaff, time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}

	mock.ExpectQuery("SELECT.*FROM users.*WHERE id").
		WithArgs("user-1").
		WillReturnRows(userRowWithPassword(t, true))

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/auth/refresh", jsonBody(map[string]string{"refresh_token": token}))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", w.Code, w.Body.String())
	}
	if getJSON(w)["access_token"] == nil {
		t.Error("response missing 'access_token' key")
	}
}

func TestRefreshHandler_InvalidToken(t *testing.T) {
	_, r := newAuthRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/auth/refresh", jsonBody(map[string]string{"refresh_token": "garbage"}))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestRefreshHandler_DeactivatedUser(t *testing.T) {
	mock, r := newAuthRouter(t)

	token, err := auth.GenerateJWT("user-1", "alice@example.com", auth.RoleStaff, time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}

	mock.ExpectQuery("SELECT.*FROM users.*WHERE id").
		WillReturnRows(userRowWithPassword(t, false))

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/auth/refresh", jsonBody(map[string]string{"refresh_token": token}))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

// ---------------------------------------------------------------------------
// MeHandler
// ---------------------------------------------------------------------------

func TestMeHandler_Success(t *testing.T) {
	mock, r := newAuthRouter(t)

	mock.ExpectQuery("SELECT.*FROM users.*WHERE id").
		WithArgs("user-1").
		WillReturnRows(userRowWithPassword(t, true))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/auth/me", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	resp := getJSON(w)
	if resp["email"] != "alice@example.com" {
		t.Errorf("email = %v, want alice@example.com", resp["email"])
	}
	if resp["password_hash"] != nil {
		t.Error("profile must not expose the password hash")
	}
}
