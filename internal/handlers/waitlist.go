package handlers

import (
	"net/http"
	"strings"

	"github.com/mypov/backend/internal/logging"
)

// WaitingListHandler collects early-access signups.
type WaitingListHandler struct {
	Entries    WaitingListStore
	AdminToken string
}

type joinWaitingListRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

// Join handles POST /api/waiting-list. Joining twice returns the existing entry.
func (h WaitingListHandler) Join(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req joinWaitingListRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	entry, created, err := h.Entries.Add(ctx, strings.TrimSpace(req.Email))
	if err != nil {
		logging.FromContext(ctx).Error("join waiting list", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to join waiting list")
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respondJSON(ctx, w, status, map[string]any{
		"id":         entry.ID,
		"email":      entry.Email,
		"created_at": entry.CreatedAt,
	})
}

// List handles GET /api/waiting-list. It requires the admin token.
func (h WaitingListHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if !adminAuthorized(r, h.AdminToken) {
		respondError(ctx, w, http.StatusForbidden, "admin token required")
		return
	}

	skip, limit, err := pagination(r)
	if err != nil {
		respondError(ctx, w, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := h.Entries.List(ctx, skip, limit)
	if err != nil {
		logging.FromContext(ctx).Error("list waiting list", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to list waiting list")
		return
	}

	out := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		out = append(out, map[string]any{"id": e.ID, "email": e.Email, "created_at": e.CreatedAt})
	}
	respondJSON(ctx, w, http.StatusOK, out)
}
