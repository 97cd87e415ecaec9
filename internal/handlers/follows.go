package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/mypov/backend/internal/logging"
	"github.com/mypov/backend/internal/models"
	"github.com/mypov/backend/internal/repositories"
)

// FollowHandler implements the follow graph endpoints under /api/users/{id}.
type FollowHandler struct {
	Follows FollowStore
}

type followResponse struct {
	ID         string    `json:"id"`
	FollowerID string    `json:"follower_id"`
	FollowedID string    `json:"followed_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// Follow handles POST /api/users/{id}/follow. Following twice is a no-op that
// returns the existing edge.
func (h FollowHandler) Follow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	followerID, ok := requireUser(w, r)
	if !ok {
		return
	}
	followedID := r.PathValue("id")

	edge, err := h.Follows.Follow(ctx, followerID, followedID)
	if err != nil {
		switch {
		case errors.Is(err, repositories.ErrSelfFollow):
			respondError(ctx, w, http.StatusBadRequest, "you cannot follow yourself")
		case errors.Is(err, repositories.ErrNotFound):
			respondError(ctx, w, http.StatusNotFound, "user not found")
		default:
			logging.FromContext(ctx).Error("follow user", "error", err, "followedId", followedID)
			respondError(ctx, w, http.StatusInternalServerError, "unable to follow user")
		}
		return
	}

	respondJSON(ctx, w, http.StatusOK, followResponse{
		ID:         edge.ID,
		FollowerID: edge.FollowerID,
		FollowedID: edge.FollowedID,
		CreatedAt:  edge.CreatedAt,
	})
}

// Unfollow handles DELETE /api/users/{id}/follow.
func (h FollowHandler) Unfollow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	followerID, ok := requireUser(w, r)
	if !ok {
		return
	}
	followedID := r.PathValue("id")

	if err := h.Follows.Unfollow(ctx, followerID, followedID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, "you are not following this user")
			return
		}
		logging.FromContext(ctx).Error("unfollow user", "error", err, "followedId", followedID)
		respondError(ctx, w, http.StatusInternalServerError, "unable to unfollow user")
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{"message": "unfollowed"})
}

// Followers handles GET /api/users/{id}/followers.
func (h FollowHandler) Followers(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, "followers", h.Follows.ListFollowers)
}

// Following handles GET /api/users/{id}/following.
func (h FollowHandler) Following(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, "following", h.Follows.ListFollowing)
}

func (h FollowHandler) list(w http.ResponseWriter, r *http.Request, what string, fetch func(ctx context.Context, userID string, skip, limit int) ([]models.User, error)) {
	ctx := r.Context()

	skip, limit, err := pagination(r)
	if err != nil {
		respondError(ctx, w, http.StatusBadRequest, err.Error())
		return
	}

	userID := r.PathValue("id")
	users, err := fetch(ctx, userID, skip, limit)
	if err != nil {
		logging.FromContext(ctx).Error("list "+what, "error", err, "userId", userID)
		respondError(ctx, w, http.StatusInternalServerError, "unable to list "+what)
		return
	}

	respondJSON(ctx, w, http.StatusOK, toFollowerResponses(users))
}

// IsFollowing handles GET /api/users/{id}/is-following.
func (h FollowHandler) IsFollowing(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	followerID, ok := requireUser(w, r)
	if !ok {
		return
	}

	following, err := h.Follows.IsFollowing(ctx, followerID, r.PathValue("id"))
	if err != nil {
		logging.FromContext(ctx).Error("check follow", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to check follow status")
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]bool{"is_following": following})
}

// Stats handles GET /api/users/{id}/follow-stats.
func (h FollowHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := h.Follows.Stats(ctx, r.PathValue("id"))
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, "user not found")
			return
		}
		logging.FromContext(ctx).Error("follow stats", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to load follow stats")
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]int64{
		"followers_count": stats.FollowersCount,
		"following_count": stats.FollowingCount,
	})
}
