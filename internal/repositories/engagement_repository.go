package repositories

import (
	"context"

	"github.com/mypov/backend/internal/models"
)

// EngagementRepository covers likes, bookmarks and watch history.
type EngagementRepository interface {
	Like(ctx context.Context, userID, videoID string) (models.Like, int64, error)
	Dislike(ctx context.Context, userID, videoID string) (int64, error)
	Save(ctx context.Context, userID, videoID string) (models.SavedVideo, error)
	Unsave(ctx context.Context, userID, videoID string) error
	IsSaved(ctx context.Context, userID, videoID string) (bool, error)
	ListSaved(ctx context.Context, userID string) ([]models.Video, error)
	RecordWatch(ctx context.Context, userID, videoID string, progress models.WatchProgress) (models.WatchRecord, error)
	ListHistory(ctx context.Context, userID string, skip, limit int) ([]models.Video, error)
}
