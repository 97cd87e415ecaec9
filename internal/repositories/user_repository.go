package repositories

import (
	"context"
	"time"

	"github.com/mypov/backend/internal/models"
)

// UserRepository defines the data access contract for users.
type UserRepository interface {
	Create(ctx context.Context, user models.User) error
	FindByID(ctx context.Context, id string) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	FindByUsername(ctx context.Context, username string) (models.User, error)
	List(ctx context.Context, skip, limit int) ([]models.UserSummary, error)
	Update(ctx context.Context, user models.User) error
	UpdatePassword(ctx context.Context, userID, passwordHash string, at time.Time) error
	UpdateFeedback(ctx context.Context, userID, feedback string, at time.Time) error
	SetUploadPermission(ctx context.Context, userID string, canUpload bool) error
	Delete(ctx context.Context, id string) error

	FindWatchedVideoIDs(ctx context.Context, userID string) ([]string, error)
	FindLikedVideoIDs(ctx context.Context, userID string) ([]string, error)
	FindFollowedOwnerIDs(ctx context.Context, userID string) ([]string, error)
	FindDisplayInfoByIDs(ctx context.Context, ids []string) (map[string]models.DisplayInfo, error)
}
