package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWaitingListHandlerJoin(t *testing.T) {
	handler := WaitingListHandler{Entries: &inMemoryWaitingList{}}

	rec := httptest.NewRecorder()
	handler.Join(rec, newRequest(http.MethodPost, "/api/waiting-list", `{"email":"early@example.com"}`))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201 got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.Join(rec, newRequest(http.MethodPost, "/api/waiting-list", `{"email":"early@example.com"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected duplicate join to return 200 got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.Join(rec, newRequest(http.MethodPost, "/api/waiting-list", `{"email":"not-an-email"}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 got %d", rec.Code)
	}
}

func TestWaitingListHandlerListRequiresAdmin(t *testing.T) {
	entries := &inMemoryWaitingList{}
	handler := WaitingListHandler{Entries: entries, AdminToken: "admin-secret"}
	handler.Join(httptest.NewRecorder(), newRequest(http.MethodPost, "/api/waiting-list", `{"email":"a@example.com"}`))
	handler.Join(httptest.NewRecorder(), newRequest(http.MethodPost, "/api/waiting-list", `{"email":"b@example.com"}`))

	rec := httptest.NewRecorder()
	handler.List(rec, httptest.NewRequest(http.MethodGet, "/api/waiting-list", nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected status 403 got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/waiting-list?skip=1", nil)
	req.Header.Set(AdminTokenHeader, "admin-secret")
	rec = httptest.NewRecorder()
	handler.List(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	var resp []map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp) != 1 || resp[0]["email"] != "b@example.com" {
		t.Fatalf("unexpected entries %v", resp)
	}
}
