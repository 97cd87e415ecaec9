package repositories

import (
	"context"

	"github.com/mypov/backend/internal/models"
)

// VideoRepository exposes data access for videos.
type VideoRepository interface {
	Create(ctx context.Context, video models.Video) error
	FindByID(ctx context.Context, id string) (models.Video, error)
	FindByIDs(ctx context.Context, ids []string) ([]models.Video, error)
	FindTopByEngagement(ctx context.Context, skip, limit int) ([]models.Video, error)
	FindByOwnerIn(ctx context.Context, ownerIDs []string, limit int) ([]models.Video, error)
	FindByIDNotIn(ctx context.Context, excludedIDs []string, limit int) ([]models.Video, error)
	ListByOwner(ctx context.Context, ownerID string, skip, limit int) ([]models.Video, error)
	Search(ctx context.Context, query string, limit int) ([]models.Video, error)
	IncrementViews(ctx context.Context, id string) (int64, error)
	IncrementLikes(ctx context.Context, id string) (int64, error)
	IncrementDislikes(ctx context.Context, id string) (int64, error)
	SetStatus(ctx context.Context, id string, status models.VideoStatus) error
	MarkReady(ctx context.Context, id, videoURL, thumbnailURL string, duration int) error
	MarkFailed(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}
