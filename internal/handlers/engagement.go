package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/mypov/backend/internal/auth"
	"github.com/mypov/backend/internal/logging"
	"github.com/mypov/backend/internal/models"
	"github.com/mypov/backend/internal/repositories"
)

// EngagementHandler implements views, likes, bookmarks and watch history.
type EngagementHandler struct {
	Videos     VideoStore
	Engagement EngagementStore
	Hydrator   VideoHydrator
}

type watchRequest struct {
	WatchTime int  `json:"watch_time" validate:"min=0"`
	Position  int  `json:"position" validate:"min=0"`
	Completed bool `json:"completed"`
}

type watchResponse struct {
	VideoID        string    `json:"video_id"`
	WatchTime      int       `json:"watch_time"`
	LastPosition   int       `json:"last_position"`
	Completed      bool      `json:"completed"`
	Liked          bool      `json:"liked"`
	Disliked       bool      `json:"disliked"`
	Saved          bool      `json:"saved"`
	WatchCount     int       `json:"watch_count"`
	FirstWatchedAt time.Time `json:"first_watched_at"`
	LastWatchedAt  time.Time `json:"last_watched_at"`
}

// View handles POST /api/videos/{id}/view.
func (h EngagementHandler) View(w http.ResponseWriter, r *http.Request) {
	h.increment(w, r, "views", h.Videos.IncrementViews)
}

// Like handles POST /api/videos/{id}/like. Authenticated likes are recorded
// once per user; anonymous likes only bump the counter.
func (h EngagementHandler) Like(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok || h.Engagement == nil {
		h.increment(w, r, "likes", h.Videos.IncrementLikes)
		return
	}

	h.increment(w, r, "likes", func(ctx context.Context, videoID string) (int64, error) {
		_, likes, err := h.Engagement.Like(ctx, userID, videoID)
		return likes, err
	})
}

// Dislike handles POST /api/videos/{id}/dislike. Authenticated dislikes are
// recorded once per user.
func (h EngagementHandler) Dislike(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok || h.Engagement == nil {
		h.increment(w, r, "dislikes", h.Videos.IncrementDislikes)
		return
	}

	h.increment(w, r, "dislikes", func(ctx context.Context, videoID string) (int64, error) {
		return h.Engagement.Dislike(ctx, userID, videoID)
	})
}

func (h EngagementHandler) increment(w http.ResponseWriter, r *http.Request, counter string, inc func(ctx context.Context, id string) (int64, error)) {
	ctx := r.Context()
	id := r.PathValue("id")

	value, err := inc(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, "video not found")
			return
		}
		logging.FromContext(ctx).Error("increment "+counter, "error", err, "videoId", id)
		respondError(ctx, w, http.StatusInternalServerError, "unable to update "+counter)
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]any{"video_id": id, counter: value})
}

// Save handles POST /api/videos/{id}/save. Saving twice is a no-op.
func (h EngagementHandler) Save(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")

	saved, err := h.Engagement.Save(ctx, userID, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, "video not found")
			return
		}
		logging.FromContext(ctx).Error("save video", "error", err, "videoId", id)
		respondError(ctx, w, http.StatusInternalServerError, "unable to save video")
		return
	}

	respondJSON(ctx, w, http.StatusCreated, map[string]any{
		"message":  "video saved",
		"video_id": saved.VideoID,
		"saved_at": saved.SavedAt,
	})
}

// Unsave handles DELETE /api/videos/{id}/save.
func (h EngagementHandler) Unsave(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")

	if err := h.Engagement.Unsave(ctx, userID, id); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, "video was not saved")
			return
		}
		logging.FromContext(ctx).Error("unsave video", "error", err, "videoId", id)
		respondError(ctx, w, http.StatusInternalServerError, "unable to remove saved video")
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{"message": "video removed from saved videos"})
}

// IsSaved handles GET /api/videos/{id}/saved.
func (h EngagementHandler) IsSaved(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	saved, err := h.Engagement.IsSaved(ctx, userID, r.PathValue("id"))
	if err != nil {
		logging.FromContext(ctx).Error("check saved video", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to check saved video")
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]bool{"is_saved": saved})
}

// ListSaved handles GET /api/videos/saved.
func (h EngagementHandler) ListSaved(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	h.respondVideos(w, r, "saved videos", func(ctx context.Context) ([]models.Video, error) {
		return h.Engagement.ListSaved(ctx, userID)
	})
}

// Watch handles POST /api/videos/{id}/watch, folding a playback report into
// the viewer's watch record.
func (h EngagementHandler) Watch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req watchRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	id := r.PathValue("id")
	record, err := h.Engagement.RecordWatch(ctx, userID, id, models.WatchProgress{
		WatchTime:    req.WatchTime,
		LastPosition: req.Position,
		Completed:    req.Completed,
	})
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, "video not found")
			return
		}
		logging.FromContext(ctx).Error("record watch", "error", err, "videoId", id)
		respondError(ctx, w, http.StatusInternalServerError, "unable to record watch progress")
		return
	}

	respondJSON(ctx, w, http.StatusOK, watchResponse{
		VideoID:        record.VideoID,
		WatchTime:      record.WatchTime,
		LastPosition:   record.LastPosition,
		Completed:      record.Completed,
		Liked:          record.Liked,
		Disliked:       record.Disliked,
		Saved:          record.Saved,
		WatchCount:     record.WatchCount,
		FirstWatchedAt: record.FirstWatchedAt,
		LastWatchedAt:  record.LastWatchedAt,
	})
}

// History handles GET /api/videos/history.
func (h EngagementHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	skip, limit, err := pagination(r)
	if err != nil {
		respondError(r.Context(), w, http.StatusBadRequest, err.Error())
		return
	}

	h.respondVideos(w, r, "watch history", func(ctx context.Context) ([]models.Video, error) {
		return h.Engagement.ListHistory(ctx, userID, skip, limit)
	})
}

func (h EngagementHandler) respondVideos(w http.ResponseWriter, r *http.Request, what string, fetch func(ctx context.Context) ([]models.Video, error)) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	list, err := fetch(ctx)
	if err != nil {
		logger.Error("list "+what, "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to list "+what)
		return
	}

	list, err = hydrate(ctx, h.Hydrator, list)
	if err != nil {
		logger.Error("hydrate "+what, "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to list "+what)
		return
	}

	respondJSON(ctx, w, http.StatusOK, toVideoResponses(list))
}
