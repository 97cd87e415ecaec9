package feed

import (
	"context"
	"fmt"

	"github.com/mypov/backend/internal/models"
)

// DisplayInfoSource resolves uploader display data for a batch of user ids.
type DisplayInfoSource interface {
	FindDisplayInfoByIDs(ctx context.Context, ids []string) (map[string]models.DisplayInfo, error)
}

// Hydrator attaches uploader usernames and avatars to videos with a single lookup.
type Hydrator struct {
	users DisplayInfoSource
}

// NewHydrator constructs a Hydrator backed by users.
func NewHydrator(users DisplayInfoSource) *Hydrator {
	return &Hydrator{users: users}
}

// Hydrate returns a copy of videos with Username and ProfilePicture filled in.
// Videos without an owner, or whose owner no longer exists, get models.UnknownUploader.
func (h *Hydrator) Hydrate(ctx context.Context, videos []models.Video) ([]models.Video, error) {
	out := make([]models.Video, len(videos))
	copy(out, videos)
	if len(out) == 0 {
		return out, nil
	}

	ids := make([]string, 0, len(out))
	seen := make(map[string]struct{}, len(out))
	for _, v := range out {
		if v.OwnerID == "" {
			continue
		}
		if _, ok := seen[v.OwnerID]; ok {
			continue
		}
		seen[v.OwnerID] = struct{}{}
		ids = append(ids, v.OwnerID)
	}

	var info map[string]models.DisplayInfo
	if len(ids) > 0 {
		var err error
		info, err = h.users.FindDisplayInfoByIDs(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("find uploader display info: %w", err)
		}
	}

	for i := range out {
		display, ok := info[out[i].OwnerID]
		if out[i].OwnerID == "" || !ok {
			out[i].Username = models.UnknownUploader
			out[i].ProfilePicture = ""
			continue
		}
		out[i].Username = display.Username
		out[i].ProfilePicture = display.ProfilePicture
	}

	return out, nil
}
