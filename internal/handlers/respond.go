package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/mypov/backend/internal/auth"
	"github.com/mypov/backend/internal/feed"
	"github.com/mypov/backend/internal/logging"
	"github.com/mypov/backend/internal/models"
)

const defaultPageSize = 10

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// decodeJSON reads a JSON body into dst and validates its struct tags. On
// failure it writes a 400 response and returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	ctx := r.Context()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		logging.FromContext(ctx).Warn("invalid request payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		respondError(ctx, w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return "invalid request"
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s must satisfy %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

// pagination parses skip and limit query parameters. limit defaults to
// defaultPageSize and must not exceed feed.MaxLimit.
func pagination(r *http.Request) (int, int, error) {
	skip, limit := 0, defaultPageSize
	q := r.URL.Query()
	if raw := q.Get("skip"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return 0, 0, errors.New("skip must be a non-negative integer")
		}
		skip = v
	}
	if raw := q.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > feed.MaxLimit {
			return 0, 0, fmt.Errorf("limit must be between 1 and %d", feed.MaxLimit)
		}
		limit = v
	}
	return skip, limit, nil
}

// requireUser returns the authenticated user id or writes a 401.
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		respondError(r.Context(), w, http.StatusUnauthorized, "authentication required")
		return "", false
	}
	return userID, true
}

func respondError(ctx context.Context, w http.ResponseWriter, status int, message string) {
	respondJSON(ctx, w, status, map[string]string{"error": message})
}

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", "status", status, "error", err)
		return
	}

	logger := logging.FromContext(ctx)
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", "status", status, "response", payload)
	case status >= http.StatusBadRequest:
		logger.Warn("request returned client error", "status", status, "response", payload)
	}
}

type userResponse struct {
	ID                string            `json:"user_id"`
	Username          string            `json:"username"`
	Email             string            `json:"email"`
	Bio               string            `json:"bio"`
	ProfilePicture    string            `json:"profile_picture"`
	CoverImage        string            `json:"cover_image"`
	Social            map[string]string `json:"social"`
	CanUpload         bool              `json:"can_upload"`
	CreatedAt         time.Time         `json:"created_at"`
	FollowersCount    int64             `json:"followers_count"`
	FollowingCount    int64             `json:"following_count"`
	Feedback          string            `json:"feedback,omitempty"`
	FeedbackUpdatedAt *time.Time        `json:"feedback_updated_at,omitempty"`
}

func toUserResponse(u models.User) userResponse {
	social := u.Social
	if social == nil {
		social = map[string]string{}
	}
	return userResponse{
		ID:                u.ID,
		Username:          u.Username,
		Email:             u.Email,
		Bio:               u.Bio,
		ProfilePicture:    u.ProfilePicture,
		CoverImage:        u.CoverImage,
		Social:            social,
		CanUpload:         u.CanUpload,
		CreatedAt:         u.CreatedAt,
		Feedback:          u.Feedback,
		FeedbackUpdatedAt: u.FeedbackUpdatedAt,
	}
}

func toUserResponses(users []models.User) []userResponse {
	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toUserResponse(u))
	}
	return out
}

type followerResponse struct {
	ID             string `json:"user_id"`
	Username       string `json:"username"`
	ProfilePicture string `json:"profile_picture"`
}

func toFollowerResponses(users []models.User) []followerResponse {
	out := make([]followerResponse, 0, len(users))
	for _, u := range users {
		out = append(out, followerResponse{ID: u.ID, Username: u.Username, ProfilePicture: u.ProfilePicture})
	}
	return out
}

type videoResponse struct {
	ID             string    `json:"video_id"`
	OwnerID        *string   `json:"user_id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	VideoURL       string    `json:"video_url"`
	ThumbnailURL   string    `json:"thumbnail_url"`
	Duration       int       `json:"duration"`
	Views          int64     `json:"views"`
	Likes          int64     `json:"likes"`
	Dislikes       int64     `json:"dislikes"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	Username       string    `json:"username"`
	ProfilePicture string    `json:"profile_picture"`
}

func toVideoResponse(v models.Video) videoResponse {
	resp := videoResponse{
		ID:             v.ID,
		Title:          v.Title,
		Description:    v.Description,
		VideoURL:       v.VideoURL,
		ThumbnailURL:   v.ThumbnailURL,
		Duration:       v.Duration,
		Views:          v.Views,
		Likes:          v.Likes,
		Dislikes:       v.Dislikes,
		Status:         string(v.Status),
		CreatedAt:      v.CreatedAt,
		Username:       v.Username,
		ProfilePicture: v.ProfilePicture,
	}
	if v.OwnerID != "" {
		owner := v.OwnerID
		resp.OwnerID = &owner
	}
	if resp.Username == "" {
		resp.Username = models.UnknownUploader
	}
	return resp
}

func toVideoResponses(videos []models.Video) []videoResponse {
	out := make([]videoResponse, 0, len(videos))
	for _, v := range videos {
		out = append(out, toVideoResponse(v))
	}
	return out
}
