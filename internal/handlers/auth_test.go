package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mypov/backend/internal/auth"
	"github.com/mypov/backend/internal/models"
)

func newTestSessions() *auth.Manager {
	return auth.NewManager("secret", time.Minute, time.Hour, auth.NewInMemorySessionStore())
}

func registeredUser(t *testing.T, id, email, password string) models.User {
	t.Helper()
	hashed, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return models.User{ID: id, Username: id, Email: email, Password: hashed}
}

func TestAuthHandlerRegister(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	users := newInMemoryUserStore()
	handler := AuthHandler{Users: users, NowFunc: func() time.Time { return now }}

	rec := httptest.NewRecorder()
	handler.Register(rec, newRequest(http.MethodPost, "/api/auth/register", `{"username":"alice","email":" Alice@Example.com ","password":"password123"}`))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201 got %d: %s", rec.Code, rec.Body.String())
	}

	var resp userResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Email != "alice@example.com" {
		t.Fatalf("expected normalized email got %q", resp.Email)
	}
	if !resp.CreatedAt.Equal(now) {
		t.Fatalf("expected created_at %v got %v", now, resp.CreatedAt)
	}
	if resp.CanUpload {
		t.Fatal("new accounts must not be allowed to upload")
	}

	stored, err := users.FindByID(context.Background(), resp.ID)
	if err != nil {
		t.Fatalf("find stored user: %v", err)
	}
	if stored.Password == "password123" {
		t.Fatal("expected password to be hashed")
	}
	if err := auth.CheckPassword(stored.Password, "password123"); err != nil {
		t.Fatalf("stored hash does not match password: %v", err)
	}
}

func TestAuthHandlerRegisterRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "malformed", body: `{"username":`},
		{name: "short username", body: `{"username":"al","email":"a@example.com","password":"password123"}`},
		{name: "bad email", body: `{"username":"alice","email":"nope","password":"password123"}`},
		{name: "short password", body: `{"username":"alice","email":"a@example.com","password":"short"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := AuthHandler{Users: newInMemoryUserStore()}
			rec := httptest.NewRecorder()
			handler.Register(rec, newRequest(http.MethodPost, "/api/auth/register", tt.body))
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400 got %d", rec.Code)
			}
		})
	}
}

func TestAuthHandlerRegisterConflict(t *testing.T) {
	users := newInMemoryUserStore(models.User{ID: "u1", Username: "alice", Email: "alice@example.com"})
	handler := AuthHandler{Users: users}

	rec := httptest.NewRecorder()
	handler.Register(rec, newRequest(http.MethodPost, "/api/auth/register", `{"username":"alice2","email":"alice@example.com","password":"password123"}`))

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status 409 got %d", rec.Code)
	}
}

func TestAuthHandlerLogin(t *testing.T) {
	users := newInMemoryUserStore(registeredUser(t, "u1", "alice@example.com", "password123"))
	handler := AuthHandler{Users: users, Sessions: newTestSessions()}

	rec := httptest.NewRecorder()
	handler.Login(rec, newRequest(http.MethodPost, "/api/auth/login", `{"email":"ALICE@example.com","password":"password123"}`))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d: %s", rec.Code, rec.Body.String())
	}

	var resp tokenResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.AccessToken == "" || resp.RefreshToken == "" {
		t.Fatalf("expected both tokens got %+v", resp)
	}
	if resp.TokenType != "bearer" {
		t.Fatalf("expected bearer token type got %q", resp.TokenType)
	}
}

func TestAuthHandlerLoginRejectsBadCredentials(t *testing.T) {
	users := newInMemoryUserStore(registeredUser(t, "u1", "alice@example.com", "password123"))
	handler := AuthHandler{Users: users, Sessions: newTestSessions()}

	for _, body := range []string{
		`{"email":"alice@example.com","password":"wrong-password"}`,
		`{"email":"bob@example.com","password":"password123"}`,
	} {
		rec := httptest.NewRecorder()
		handler.Login(rec, newRequest(http.MethodPost, "/api/auth/login", body))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected status 401 for %s got %d", body, rec.Code)
		}
	}
}

func TestAuthHandlerRefresh(t *testing.T) {
	sessions := newTestSessions()
	tokens, err := sessions.Issue(context.Background(), "u1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	handler := AuthHandler{Sessions: sessions}

	rec := httptest.NewRecorder()
	handler.Refresh(rec, newRequest(http.MethodPost, "/api/auth/refresh", `{"refresh_token":"`+tokens.RefreshToken+`"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	handler.Refresh(rec, newRequest(http.MethodPost, "/api/auth/refresh", `{"refresh_token":"`+tokens.RefreshToken+`"}`))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected reused refresh token to be rejected got %d", rec.Code)
	}
}

type failingSessions struct{}

func (failingSessions) Issue(context.Context, string) (models.SessionTokens, error) {
	return models.SessionTokens{}, errors.New("boom")
}

func (failingSessions) Refresh(context.Context, string) (models.SessionTokens, error) {
	return models.SessionTokens{}, errors.New("boom")
}

func (failingSessions) RevokeAll(context.Context, string) error { return errors.New("boom") }

func TestAuthHandlerRefreshStoreFailure(t *testing.T) {
	handler := AuthHandler{Sessions: failingSessions{}}

	rec := httptest.NewRecorder()
	handler.Refresh(rec, newRequest(http.MethodPost, "/api/auth/refresh", `{"refresh_token":"abc"}`))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500 got %d", rec.Code)
	}
}

func TestAuthHandlerDirectResetPassword(t *testing.T) {
	users := newInMemoryUserStore(registeredUser(t, "u1", "alice@example.com", "password123"))
	sessions := newTestSessions()
	tokens, err := sessions.Issue(context.Background(), "u1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	handler := AuthHandler{Users: users, Sessions: sessions}

	rec := httptest.NewRecorder()
	handler.DirectResetPassword(rec, newRequest(http.MethodPost, "/api/auth/direct-reset-password", `{"email":"alice@example.com","new_password":"new-password"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d: %s", rec.Code, rec.Body.String())
	}

	stored, _ := users.FindByID(context.Background(), "u1")
	if err := auth.CheckPassword(stored.Password, "new-password"); err != nil {
		t.Fatalf("expected new password to be stored: %v", err)
	}
	if _, err := sessions.Refresh(context.Background(), tokens.RefreshToken); err == nil {
		t.Fatal("expected existing refresh tokens to be revoked")
	}

	rec = httptest.NewRecorder()
	handler.DirectResetPassword(rec, newRequest(http.MethodPost, "/api/auth/direct-reset-password", `{"email":"nobody@example.com","new_password":"new-password"}`))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 got %d", rec.Code)
	}
}
