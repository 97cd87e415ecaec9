package repositories

import (
	"context"

	"github.com/mypov/backend/internal/models"
)

// FollowRepository defines data access for the follow graph.
type FollowRepository interface {
	Follow(ctx context.Context, followerID, followedID string) (models.FollowEdge, error)
	Unfollow(ctx context.Context, followerID, followedID string) error
	IsFollowing(ctx context.Context, followerID, followedID string) (bool, error)
	ListFollowers(ctx context.Context, userID string, skip, limit int) ([]models.User, error)
	ListFollowing(ctx context.Context, userID string, skip, limit int) ([]models.User, error)
	Stats(ctx context.Context, userID string) (models.FollowStats, error)
}
