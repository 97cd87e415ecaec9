package handlers

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mypov/backend/internal/auth"
	"github.com/mypov/backend/internal/logging"
	"github.com/mypov/backend/internal/repositories"
)

// AdminTokenHeader carries the shared secret for administrative endpoints.
const AdminTokenHeader = "X-Admin-Token"

const maxProfilePictureBytes = 5 << 20

var imageExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".webp": true}

// UserHandler implements profile endpoints.
type UserHandler struct {
	Users      UserStore
	Follows    FollowStore
	Videos     VideoStore
	Hydrator   VideoHydrator
	Sessions   SessionManager
	Assets     AssetStore
	AdminToken string
	NowFunc    func() time.Time
}

type updateUserRequest struct {
	Username       *string           `json:"username" validate:"omitempty,min=3,max=50"`
	Email          *string           `json:"email" validate:"omitempty,email"`
	Password       *string           `json:"password" validate:"omitempty,min=8,max=72"`
	Bio            *string           `json:"bio" validate:"omitempty,max=500"`
	ProfilePicture *string           `json:"profile_picture" validate:"omitempty,url"`
	CoverImage     *string           `json:"cover_image" validate:"omitempty,url"`
	Social         map[string]string `json:"social" validate:"omitempty,max=10,dive,keys,min=1,max=32,endkeys,max=255"`
}

type feedbackRequest struct {
	Feedback string `json:"feedback" validate:"required,max=5000"`
}

type uploadPermissionRequest struct {
	CanUpload *bool `json:"can_upload" validate:"required"`
}

// Me handles GET /api/users/me.
func (h UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	h.respondUser(w, r, userID)
}

// Get handles GET /api/users/{id}.
func (h UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.respondUser(w, r, r.PathValue("id"))
}

func (h UserHandler) respondUser(w http.ResponseWriter, r *http.Request, userID string) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	user, err := h.Users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, "user not found")
			return
		}
		logger.Error("load user", "error", err, "userId", userID)
		respondError(ctx, w, http.StatusInternalServerError, "unable to load user")
		return
	}

	resp := toUserResponse(user)
	if h.Follows != nil {
		stats, err := h.Follows.Stats(ctx, userID)
		if err != nil {
			logger.Error("load follow stats", "error", err, "userId", userID)
			respondError(ctx, w, http.StatusInternalServerError, "unable to load user")
			return
		}
		resp.FollowersCount = stats.FollowersCount
		resp.FollowingCount = stats.FollowingCount
	}

	respondJSON(ctx, w, http.StatusOK, resp)
}

// List handles GET /api/users.
func (h UserHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	skip, limit, err := pagination(r)
	if err != nil {
		respondError(ctx, w, http.StatusBadRequest, err.Error())
		return
	}

	summaries, err := h.Users.List(ctx, skip, limit)
	if err != nil {
		logging.FromContext(ctx).Error("list users", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to list users")
		return
	}

	out := make([]userResponse, 0, len(summaries))
	for _, s := range summaries {
		resp := toUserResponse(s.User)
		resp.FollowersCount = s.FollowersCount
		resp.FollowingCount = s.FollowingCount
		out = append(out, resp)
	}
	respondJSON(ctx, w, http.StatusOK, out)
}

// Update handles PUT /api/users/{id}. Only the account owner may edit it.
func (h UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	userID, ok := h.requireSelf(w, r)
	if !ok {
		return
	}

	var req updateUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.Users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, "user not found")
			return
		}
		logger.Error("load user for update", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to update user")
		return
	}

	if req.Username != nil {
		user.Username = strings.TrimSpace(*req.Username)
	}
	if req.Email != nil {
		user.Email = strings.TrimSpace(strings.ToLower(*req.Email))
	}
	if req.Bio != nil {
		user.Bio = *req.Bio
	}
	if req.ProfilePicture != nil {
		user.ProfilePicture = *req.ProfilePicture
	}
	if req.CoverImage != nil {
		user.CoverImage = *req.CoverImage
	}
	if req.Social != nil {
		user.Social = req.Social
	}
	user.UpdatedAt = h.now()

	if err := h.Users.Update(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			respondError(ctx, w, http.StatusConflict, "email or username already registered")
			return
		}
		logger.Error("update user", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to update user")
		return
	}

	if req.Password != nil {
		hashed, err := auth.HashPassword(*req.Password)
		if err != nil {
			logger.Error("hash password", "error", err)
			respondError(ctx, w, http.StatusInternalServerError, "failed to secure password")
			return
		}
		if err := h.Users.UpdatePassword(ctx, userID, hashed, user.UpdatedAt); err != nil {
			logger.Error("update password", "error", err)
			respondError(ctx, w, http.StatusInternalServerError, "unable to update user")
			return
		}
	}

	respondJSON(ctx, w, http.StatusOK, toUserResponse(user))
}

// Delete handles DELETE /api/users/{id}. Only the account owner may delete it.
func (h UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	userID, ok := h.requireSelf(w, r)
	if !ok {
		return
	}

	if err := h.Users.Delete(ctx, userID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, "user not found")
			return
		}
		logger.Error("delete user", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to delete user")
		return
	}

	if h.Sessions != nil {
		if err := h.Sessions.RevokeAll(ctx, userID); err != nil {
			logger.Warn("revoke sessions for deleted user", "error", err)
		}
	}

	logger.Info("user deleted", "userId", userID)
	w.WriteHeader(http.StatusNoContent)
}

// UploadProfilePicture handles POST /api/users/{id}/profile-picture.
func (h UserHandler) UploadProfilePicture(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	userID, ok := h.requireSelf(w, r)
	if !ok {
		return
	}
	if h.Assets == nil {
		respondError(ctx, w, http.StatusServiceUnavailable, "object storage is not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxProfilePictureBytes+1<<20)
	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(ctx, w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !imageExtensions[ext] {
		respondError(ctx, w, http.StatusBadRequest, "profile picture must be a jpg, png or webp image")
		return
	}
	if header.Size > maxProfilePictureBytes {
		respondError(ctx, w, http.StatusRequestEntityTooLarge, "profile picture is too large")
		return
	}

	user, err := h.Users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, "user not found")
			return
		}
		logger.Error("load user for profile picture", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to update profile picture")
		return
	}

	location, err := h.Assets.Save(ctx, path.Join("users", userID, "profile-"+uuid.NewString()+ext), file)
	if err != nil {
		logger.Error("store profile picture", "error", err)
		respondError(ctx, w, http.StatusBadGateway, "unable to store profile picture")
		return
	}

	previous := user.ProfilePicture
	user.ProfilePicture = location
	user.UpdatedAt = h.now()
	if err := h.Users.Update(ctx, user); err != nil {
		logger.Error("update profile picture", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to update profile picture")
		return
	}

	if key, ok := h.Assets.KeyFromURL(previous); ok {
		if err := h.Assets.Delete(ctx, key); err != nil {
			logger.Warn("delete previous profile picture", "error", err, "key", key)
		}
	}

	respondJSON(ctx, w, http.StatusOK, toUserResponse(user))
}

// Feedback handles PUT /api/users/me/feedback.
func (h UserHandler) Feedback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req feedbackRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.Users.UpdateFeedback(ctx, userID, strings.TrimSpace(req.Feedback), h.now()); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, "user not found")
			return
		}
		logging.FromContext(ctx).Error("store feedback", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to store feedback")
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{"message": "feedback received"})
}

// SetUploadPermission handles PUT /api/users/{id}/upload-permission. It requires
// the configured admin token.
func (h UserHandler) SetUploadPermission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if !adminAuthorized(r, h.AdminToken) {
		respondError(ctx, w, http.StatusForbidden, "admin token required")
		return
	}

	var req uploadPermissionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	userID := r.PathValue("id")
	if err := h.Users.SetUploadPermission(ctx, userID, *req.CanUpload); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, "user not found")
			return
		}
		logging.FromContext(ctx).Error("set upload permission", "error", err, "userId", userID)
		respondError(ctx, w, http.StatusInternalServerError, "unable to update upload permission")
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]any{"user_id": userID, "can_upload": *req.CanUpload})
}

// ListVideos handles GET /api/users/{id}/videos.
func (h UserHandler) ListVideos(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	skip, limit, err := pagination(r)
	if err != nil {
		respondError(ctx, w, http.StatusBadRequest, err.Error())
		return
	}

	ownerID := r.PathValue("id")
	list, err := h.Videos.ListByOwner(ctx, ownerID, skip, limit)
	if err != nil {
		logger.Error("list owner videos", "error", err, "ownerId", ownerID)
		respondError(ctx, w, http.StatusInternalServerError, "unable to list videos")
		return
	}

	list, err = hydrate(ctx, h.Hydrator, list)
	if err != nil {
		logger.Error("hydrate owner videos", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to list videos")
		return
	}

	respondJSON(ctx, w, http.StatusOK, toVideoResponses(list))
}

// requireSelf ensures the authenticated user matches the {id} path segment.
func (h UserHandler) requireSelf(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := requireUser(w, r)
	if !ok {
		return "", false
	}
	if r.PathValue("id") != userID {
		respondError(r.Context(), w, http.StatusForbidden, "you can only modify your own account")
		return "", false
	}
	return userID, true
}

func (h UserHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}

func adminAuthorized(r *http.Request, token string) bool {
	if token == "" {
		return false
	}
	supplied := r.Header.Get(AdminTokenHeader)
	return subtle.ConstantTimeCompare([]byte(supplied), []byte(token)) == 1
}
