package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mypov/backend/internal/auth"
	"github.com/mypov/backend/internal/feed"
	"github.com/mypov/backend/internal/logging"
	"github.com/mypov/backend/internal/models"
	"github.com/mypov/backend/internal/repositories"
	"github.com/mypov/backend/internal/videos"
)

const (
	defaultMaxUploadBytes = 512 << 20
	defaultSearchLimit    = 20
)

var videoExtensions = map[string]bool{".mp4": true, ".mov": true, ".m4v": true, ".webm": true, ".mkv": true}

// VideoHandler provides endpoints for publishing, fetching and searching videos.
type VideoHandler struct {
	Videos         VideoStore
	Users          UserStore
	Feed           FeedAssembler
	Hydrator       VideoHydrator
	Processor      VideoProcessor
	Media          MediaValidator
	Metadata       VideoMetadataProvider
	Assets         AssetStore
	Search         SearchIndex
	AdminToken     string
	MaxUploadBytes int64
	NowFunc        func() time.Time
}

type uploadForm struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=5000"`
}

type importRequest struct {
	URL         string   `json:"url" validate:"required,http_url"`
	Title       string   `json:"title" validate:"max=200"`
	Description string   `json:"description" validate:"max=5000"`
	StartTime   *float64 `json:"start_time" validate:"omitempty,min=0"`
	EndTime     *float64 `json:"end_time" validate:"omitempty,gt=0"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=draft published ready private processing failed"`
}

type statusResponse struct {
	ID           string `json:"video_id"`
	Status       string `json:"status"`
	VideoURL     string `json:"video_url"`
	ThumbnailURL string `json:"thumbnail_url"`
}

// ListFeed handles GET /api/videos. Authentication is optional.
func (h VideoHandler) ListFeed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.Feed == nil {
		logging.FromContext(ctx).Error("feed assembler unavailable")
		respondError(ctx, w, http.StatusInternalServerError, "feed unavailable")
		return
	}

	skip, limit, err := pagination(r)
	if err != nil {
		respondError(ctx, w, http.StatusBadRequest, err.Error())
		return
	}

	viewerID, _ := auth.UserIDFromContext(ctx)
	list, err := h.Feed.Assemble(ctx, viewerID, skip, limit)
	if err != nil {
		if errors.Is(err, feed.ErrInvalidArgument) {
			respondError(ctx, w, http.StatusBadRequest, err.Error())
			return
		}
		logging.FromContext(ctx).Error("assemble feed", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to load feed")
		return
	}

	respondJSON(ctx, w, http.StatusOK, toVideoResponses(list))
}

// Upload handles POST /api/videos. The multipart form carries title,
// description, the video as vfile and an optional thumbnail as tfile. The
// video is validated synchronously and transcoded in the background.
func (h VideoHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	user, ok := h.requireUploader(w, r)
	if !ok {
		return
	}
	if h.Processor == nil || h.Media == nil {
		respondError(ctx, w, http.StatusServiceUnavailable, "video processing is not available")
		return
	}

	maxBytes := h.MaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxUploadBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(ctx, w, http.StatusRequestEntityTooLarge, "upload is too large")
			return
		}
		respondError(ctx, w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	form := uploadForm{
		Title:       strings.TrimSpace(r.FormValue("title")),
		Description: strings.TrimSpace(r.FormValue("description")),
	}
	if err := validate.Struct(form); err != nil {
		respondError(ctx, w, http.StatusBadRequest, validationMessage(err))
		return
	}

	vfile, vheader, err := r.FormFile("vfile")
	if err != nil {
		respondError(ctx, w, http.StatusBadRequest, "vfile is required")
		return
	}
	defer vfile.Close()

	videoExt := strings.ToLower(filepath.Ext(vheader.Filename))
	if !videoExtensions[videoExt] {
		respondError(ctx, w, http.StatusBadRequest, "unsupported video format")
		return
	}

	videoID := uuid.NewString()
	workDir, err := h.Processor.NewWorkDir(videoID)
	if err != nil {
		logger.Error("create work dir", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to accept upload")
		return
	}
	keep := false
	defer func() {
		if !keep {
			_ = os.RemoveAll(workDir)
		}
	}()

	sourcePath := filepath.Join(workDir, "source"+videoExt)
	if err := writeUpload(vfile, sourcePath); err != nil {
		logger.Error("buffer video upload", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to accept upload")
		return
	}

	var thumbnailPath string
	if tfile, theader, err := r.FormFile("tfile"); err == nil {
		defer tfile.Close()
		thumbExt := strings.ToLower(filepath.Ext(theader.Filename))
		if !imageExtensions[thumbExt] {
			respondError(ctx, w, http.StatusBadRequest, "thumbnail must be a jpg, png or webp image")
			return
		}
		thumbnailPath = filepath.Join(workDir, "thumbnail"+thumbExt)
		if err := writeUpload(tfile, thumbnailPath); err != nil {
			logger.Error("buffer thumbnail upload", "error", err)
			respondError(ctx, w, http.StatusInternalServerError, "unable to accept upload")
			return
		}
	} else if !errors.Is(err, http.ErrMissingFile) {
		respondError(ctx, w, http.StatusBadRequest, "invalid thumbnail")
		return
	}

	probe, err := h.Media.Validate(ctx, sourcePath)
	if err != nil {
		if errors.Is(err, videos.ErrInvalidVideo) {
			respondError(ctx, w, http.StatusBadRequest, err.Error())
			return
		}
		logger.Error("validate upload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "error validating video file")
		return
	}

	video := models.Video{
		ID:          videoID,
		OwnerID:     user.ID,
		Title:       form.Title,
		Description: form.Description,
		Duration:    int(probe.Duration + 0.5),
		Status:      models.VideoStatusProcessing,
		CreatedAt:   h.now(),
	}
	job := videos.Job{VideoID: videoID, WorkDir: workDir, SourcePath: sourcePath, ThumbnailPath: thumbnailPath}

	if !h.createAndEnqueue(ctx, w, video, job) {
		return
	}
	keep = true

	video.Username = user.Username
	video.ProfilePicture = user.ProfilePicture
	respondJSON(ctx, w, http.StatusAccepted, toVideoResponse(video))
}

// ImportYouTube handles POST /api/videos/youtube. The clip between start_time
// and end_time (seconds) must not exceed a minute.
func (h VideoHandler) ImportYouTube(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	user, ok := h.requireUploader(w, r)
	if !ok {
		return
	}
	if h.Processor == nil || h.Metadata == nil {
		respondError(ctx, w, http.StatusServiceUnavailable, "video import is not available")
		return
	}

	var req importRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	meta, err := h.Metadata.Lookup(ctx, req.URL)
	if err != nil {
		logger.Warn("lookup remote video", "error", err, "url", req.URL)
		respondError(ctx, w, http.StatusBadGateway, "unable to fetch video details")
		return
	}

	var start, end float64
	if req.StartTime != nil {
		start = *req.StartTime
	}
	if req.EndTime != nil {
		end = *req.EndTime
	}
	start, end, err = videos.ClipWindow(meta.Duration, start, end)
	if err != nil {
		respondError(ctx, w, http.StatusBadRequest, err.Error())
		return
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = meta.Title
	}
	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = meta.Description
	}

	videoID := uuid.NewString()
	workDir, err := h.Processor.NewWorkDir(videoID)
	if err != nil {
		logger.Error("create work dir", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to accept import")
		return
	}

	duration := meta.Duration
	if end > 0 {
		duration = end - start
	}
	video := models.Video{
		ID:          videoID,
		OwnerID:     user.ID,
		Title:       title,
		Description: description,
		Duration:    int(duration + 0.5),
		Status:      models.VideoStatusProcessing,
		CreatedAt:   h.now(),
	}
	job := videos.Job{VideoID: videoID, WorkDir: workDir, SourceURL: req.URL, Start: start, End: end}

	if !h.createAndEnqueue(ctx, w, video, job) {
		_ = os.RemoveAll(workDir)
		return
	}

	video.Username = user.Username
	video.ProfilePicture = user.ProfilePicture
	respondJSON(ctx, w, http.StatusAccepted, toVideoResponse(video))
}

func (h VideoHandler) createAndEnqueue(ctx context.Context, w http.ResponseWriter, video models.Video, job videos.Job) bool {
	logger := logging.FromContext(ctx)

	if err := h.Videos.Create(ctx, video); err != nil {
		logger.Error("create video", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to create video")
		return false
	}

	if h.Search != nil {
		if err := h.Search.IndexVideo(ctx, video); err != nil {
			logger.Warn("index video", "error", err, "videoId", video.ID)
		}
	}

	if err := h.Processor.Enqueue(ctx, job); err != nil {
		logger.Error("enqueue video processing", "error", err, "videoId", video.ID)
		if markErr := h.Videos.MarkFailed(context.WithoutCancel(ctx), video.ID); markErr != nil {
			logger.Error("mark video failed", "error", markErr, "videoId", video.ID)
		}
		respondError(ctx, w, http.StatusServiceUnavailable, "video processing queue unavailable")
		return false
	}

	logger.Info("video queued for processing", "videoId", video.ID)
	return true
}

// Get handles GET /api/videos/{id}.
func (h VideoHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	video, ok := h.loadVideo(w, r)
	if !ok {
		return
	}

	hydrated, err := hydrate(ctx, h.Hydrator, []models.Video{video})
	if err != nil {
		logging.FromContext(ctx).Error("hydrate video", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to load video")
		return
	}

	respondJSON(ctx, w, http.StatusOK, toVideoResponse(hydrated[0]))
}

// Status handles GET /api/videos/{id}/status so clients can poll processing.
func (h VideoHandler) Status(w http.ResponseWriter, r *http.Request) {
	video, ok := h.loadVideo(w, r)
	if !ok {
		return
	}

	respondJSON(r.Context(), w, http.StatusOK, statusResponse{
		ID:           video.ID,
		Status:       string(video.Status),
		VideoURL:     video.VideoURL,
		ThumbnailURL: video.ThumbnailURL,
	})
}

// SetStatus handles PUT /api/videos/{id}/status. It requires the admin token.
func (h VideoHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if !adminAuthorized(r, h.AdminToken) {
		respondError(ctx, w, http.StatusForbidden, "admin token required")
		return
	}

	var req statusRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	id := r.PathValue("id")
	if err := h.Videos.SetStatus(ctx, id, models.VideoStatus(req.Status)); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, "video not found")
			return
		}
		logging.FromContext(ctx).Error("set video status", "error", err, "videoId", id)
		respondError(ctx, w, http.StatusInternalServerError, "unable to update status")
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{"video_id": id, "status": req.Status})
}

// Delete handles DELETE /api/videos/{id}. Only the owner may delete a video.
func (h VideoHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	video, ok := h.loadVideo(w, r)
	if !ok {
		return
	}
	if video.OwnerID != userID {
		respondError(ctx, w, http.StatusForbidden, "you can only delete your own videos")
		return
	}

	if err := h.Videos.Delete(ctx, video.ID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, "video not found")
			return
		}
		logger.Error("delete video", "error", err, "videoId", video.ID)
		respondError(ctx, w, http.StatusInternalServerError, "unable to delete video")
		return
	}

	if h.Assets != nil {
		if err := h.Assets.DeletePrefix(ctx, path.Join("videos", video.ID)); err != nil {
			logger.Warn("delete video assets", "error", err, "videoId", video.ID)
		}
	}
	if h.Search != nil {
		if err := h.Search.DeleteVideo(ctx, video.ID); err != nil {
			logger.Warn("remove video from index", "error", err, "videoId", video.ID)
		}
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{"message": "video deleted"})
}

// SearchVideos handles GET /api/videos/search?q=. A query starting with '#'
// matches hashtags in descriptions.
func (h VideoHandler) SearchVideos(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		respondError(ctx, w, http.StatusBadRequest, "q is required")
		return
	}

	limit := defaultSearchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > feed.MaxLimit {
			respondError(ctx, w, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", feed.MaxLimit))
			return
		}
		limit = v
	}

	results, err := h.search(ctx, query, limit)
	if err != nil {
		logger.Error("search videos", "error", err, "query", query)
		respondError(ctx, w, http.StatusInternalServerError, "unable to search videos")
		return
	}

	results, err = hydrate(ctx, h.Hydrator, results)
	if err != nil {
		logger.Error("hydrate search results", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to search videos")
		return
	}

	respondJSON(ctx, w, http.StatusOK, toVideoResponses(results))
}

// search prefers the full-text index and falls back to the database when the
// index is missing or failing.
func (h VideoHandler) search(ctx context.Context, query string, limit int) ([]models.Video, error) {
	if h.Search != nil {
		ids, err := h.Search.SearchVideoIDs(ctx, query, limit)
		if err == nil {
			found, err := h.Videos.FindByIDs(ctx, ids)
			if err != nil {
				return nil, err
			}
			listable := make([]models.Video, 0, len(found))
			for _, v := range found {
				if v.Status.Listable() {
					listable = append(listable, v)
				}
			}
			return listable, nil
		}
		logging.FromContext(ctx).Warn("search index unavailable, using database", "error", err)
	}
	return h.Videos.Search(ctx, query, limit)
}

func (h VideoHandler) loadVideo(w http.ResponseWriter, r *http.Request) (models.Video, bool) {
	ctx := r.Context()
	id := r.PathValue("id")

	video, err := h.Videos.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, "video not found")
			return models.Video{}, false
		}
		logging.FromContext(ctx).Error("load video", "error", err, "videoId", id)
		respondError(ctx, w, http.StatusInternalServerError, "unable to load video")
		return models.Video{}, false
	}
	return video, true
}

// requireUploader loads the authenticated user and checks their upload permission.
func (h VideoHandler) requireUploader(w http.ResponseWriter, r *http.Request) (models.User, bool) {
	ctx := r.Context()

	userID, ok := requireUser(w, r)
	if !ok {
		return models.User{}, false
	}

	user, err := h.Users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusUnauthorized, "account no longer exists")
			return models.User{}, false
		}
		logging.FromContext(ctx).Error("load uploader", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to verify upload permission")
		return models.User{}, false
	}
	if !user.CanUpload {
		respondError(ctx, w, http.StatusForbidden, "you do not have permission to upload videos")
		return models.User{}, false
	}
	return user, true
}

func (h VideoHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}

func writeUpload(src multipart.File, dst string) error {
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func hydrate(ctx context.Context, hydrator VideoHydrator, list []models.Video) ([]models.Video, error) {
	if hydrator == nil {
		return list, nil
	}
	return hydrator.Hydrate(ctx, list)
}
