package handlers

import (
	"context"
	"io"
	"time"

	"github.com/mypov/backend/internal/models"
	"github.com/mypov/backend/internal/videos"
)

// UserStore captures the persistence operations required by the auth and user handlers.
type UserStore interface {
	Create(ctx context.Context, user models.User) error
	FindByID(ctx context.Context, id string) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	List(ctx context.Context, skip, limit int) ([]models.UserSummary, error)
	Update(ctx context.Context, user models.User) error
	UpdatePassword(ctx context.Context, userID, passwordHash string, at time.Time) error
	UpdateFeedback(ctx context.Context, userID, feedback string, at time.Time) error
	SetUploadPermission(ctx context.Context, userID string, canUpload bool) error
	Delete(ctx context.Context, id string) error
}

// SessionManager issues and refreshes authentication tokens for users.
type SessionManager interface {
	Issue(ctx context.Context, userID string) (models.SessionTokens, error)
	Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, error)
	RevokeAll(ctx context.Context, userID string) error
}

// FollowStore captures the follow graph operations.
type FollowStore interface {
	Follow(ctx context.Context, followerID, followedID string) (models.FollowEdge, error)
	Unfollow(ctx context.Context, followerID, followedID string) error
	IsFollowing(ctx context.Context, followerID, followedID string) (bool, error)
	ListFollowers(ctx context.Context, userID string, skip, limit int) ([]models.User, error)
	ListFollowing(ctx context.Context, userID string, skip, limit int) ([]models.User, error)
	Stats(ctx context.Context, userID string) (models.FollowStats, error)
}

// VideoStore captures persistence for videos.
type VideoStore interface {
	Create(ctx context.Context, video models.Video) error
	FindByID(ctx context.Context, id string) (models.Video, error)
	FindByIDs(ctx context.Context, ids []string) ([]models.Video, error)
	ListByOwner(ctx context.Context, ownerID string, skip, limit int) ([]models.Video, error)
	Search(ctx context.Context, query string, limit int) ([]models.Video, error)
	IncrementViews(ctx context.Context, id string) (int64, error)
	IncrementLikes(ctx context.Context, id string) (int64, error)
	IncrementDislikes(ctx context.Context, id string) (int64, error)
	SetStatus(ctx context.Context, id string, status models.VideoStatus) error
	MarkFailed(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// EngagementStore captures likes, bookmarks and watch history.
type EngagementStore interface {
	Like(ctx context.Context, userID, videoID string) (models.Like, int64, error)
	Dislike(ctx context.Context, userID, videoID string) (int64, error)
	Save(ctx context.Context, userID, videoID string) (models.SavedVideo, error)
	Unsave(ctx context.Context, userID, videoID string) error
	IsSaved(ctx context.Context, userID, videoID string) (bool, error)
	ListSaved(ctx context.Context, userID string) ([]models.Video, error)
	RecordWatch(ctx context.Context, userID, videoID string, progress models.WatchProgress) (models.WatchRecord, error)
	ListHistory(ctx context.Context, userID string, skip, limit int) ([]models.Video, error)
}

// WaitingListStore stores early-access signups.
type WaitingListStore interface {
	Add(ctx context.Context, email string) (models.WaitingListEntry, bool, error)
	List(ctx context.Context, skip, limit int) ([]models.WaitingListEntry, error)
}

// FeedAssembler builds a viewer's page of the home feed.
type FeedAssembler interface {
	Assemble(ctx context.Context, viewerID string, skip, limit int) ([]models.Video, error)
}

// VideoHydrator fills in uploader display fields.
type VideoHydrator interface {
	Hydrate(ctx context.Context, videos []models.Video) ([]models.Video, error)
}

// VideoProcessor runs transcoding jobs in the background.
type VideoProcessor interface {
	NewWorkDir(videoID string) (string, error)
	Enqueue(ctx context.Context, job videos.Job) error
}

// MediaValidator checks an uploaded file against the upload rules.
type MediaValidator interface {
	Validate(ctx context.Context, path string) (videos.ProbeResult, error)
}

// VideoMetadataProvider resolves details for remote video URLs.
type VideoMetadataProvider interface {
	Lookup(ctx context.Context, url string) (videos.Metadata, error)
}

// AssetStore persists and removes media objects.
type AssetStore interface {
	Save(ctx context.Context, name string, r io.Reader) (string, error)
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) error
	KeyFromURL(location string) (string, bool)
}

// SearchIndex is the optional full-text index over videos.
type SearchIndex interface {
	IndexVideo(ctx context.Context, video models.Video) error
	DeleteVideo(ctx context.Context, id string) error
	SearchVideoIDs(ctx context.Context, query string, limit int) ([]string, error)
}

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}
