package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/mypov/backend/internal/logging"
	"github.com/mypov/backend/internal/models"
)

// MaxLimit caps the number of videos a single feed page may contain.
const MaxLimit = 100

// ErrInvalidArgument is returned for a negative skip or a limit outside (0, MaxLimit].
var ErrInvalidArgument = errors.New("feed: invalid pagination arguments")

// VideoSource is the subset of the video repository the feed reads from.
type VideoSource interface {
	FindTopByEngagement(ctx context.Context, skip, limit int) ([]models.Video, error)
	FindByOwnerIn(ctx context.Context, ownerIDs []string, limit int) ([]models.Video, error)
	FindByIDNotIn(ctx context.Context, excludedIDs []string, limit int) ([]models.Video, error)
}

// ViewerHistory exposes a viewer's watch, like and follow sets.
type ViewerHistory interface {
	FindWatchedVideoIDs(ctx context.Context, userID string) ([]string, error)
	FindLikedVideoIDs(ctx context.Context, userID string) ([]string, error)
	FindFollowedOwnerIDs(ctx context.Context, userID string) ([]string, error)
}

// Shuffler reorders videos in place.
type Shuffler func([]models.Video)

// RandomShuffle is a uniform Fisher-Yates shuffle reseeded on every call.
func RandomShuffle(videos []models.Video) {
	rand.Shuffle(len(videos), func(i, j int) {
		videos[i], videos[j] = videos[j], videos[i]
	})
}

// Assembler builds home feed pages. Anonymous viewers get a deterministic
// engagement ranking; signed-in viewers get a shuffled mix of trending videos,
// videos from people they follow and videos they have not watched yet.
type Assembler struct {
	videos   VideoSource
	history  ViewerHistory
	hydrator *Hydrator

	// Shuffle defaults to RandomShuffle.
	Shuffle Shuffler
}

// NewAssembler wires an Assembler from its data sources.
func NewAssembler(videos VideoSource, history ViewerHistory, hydrator *Hydrator) *Assembler {
	return &Assembler{
		videos:   videos,
		history:  history,
		hydrator: hydrator,
		Shuffle:  RandomShuffle,
	}
}

// Assemble returns one hydrated feed page for viewerID. An empty viewerID means anonymous.
func (a *Assembler) Assemble(ctx context.Context, viewerID string, skip, limit int) ([]models.Video, error) {
	if skip < 0 || limit <= 0 || limit > MaxLimit {
		return nil, ErrInvalidArgument
	}

	ctx, span := logging.StartSpan(ctx, "feed.assemble")
	defer span.End()

	videos, err := a.assemble(ctx, viewerID, skip, limit)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return videos, nil
}

func (a *Assembler) assemble(ctx context.Context, viewerID string, skip, limit int) ([]models.Video, error) {
	var page []models.Video
	if viewerID == "" {
		top, err := a.videos.FindTopByEngagement(ctx, skip, limit)
		if err != nil {
			return nil, fmt.Errorf("trending videos: %w", err)
		}
		page = top
	} else {
		candidates, err := a.Candidates(ctx, viewerID, limit)
		if err != nil {
			return nil, err
		}
		shuffle := a.Shuffle
		if shuffle == nil {
			shuffle = RandomShuffle
		}
		shuffle(candidates)
		page = Page(candidates, skip, limit)
	}

	hydrated, err := a.hydrator.Hydrate(ctx, page)
	if err != nil {
		return nil, fmt.Errorf("hydrate feed: %w", err)
	}
	return hydrated, nil
}

// Candidates returns the merged, de-duplicated candidate list for a signed-in
// viewer before shuffling: trending first, then followed, then unwatched.
func (a *Assembler) Candidates(ctx context.Context, viewerID string, limit int) ([]models.Video, error) {
	if viewerID == "" || limit <= 0 || limit > MaxLimit {
		return nil, ErrInvalidArgument
	}

	watched, err := a.history.FindWatchedVideoIDs(ctx, viewerID)
	if err != nil {
		return nil, fmt.Errorf("watched videos: %w", err)
	}
	// TODO: bound the watched and liked lookups once history grows beyond a few thousand rows per user.
	liked, err := a.history.FindLikedVideoIDs(ctx, viewerID)
	if err != nil {
		return nil, fmt.Errorf("liked videos: %w", err)
	}
	followed, err := a.history.FindFollowedOwnerIDs(ctx, viewerID)
	if err != nil {
		return nil, fmt.Errorf("followed users: %w", err)
	}

	trending, err := a.videos.FindTopByEngagement(ctx, 0, 2*limit)
	if err != nil {
		return nil, fmt.Errorf("trending videos: %w", err)
	}

	var fromFollowed []models.Video
	if len(followed) > 0 {
		fromFollowed, err = a.videos.FindByOwnerIn(ctx, followed, limit)
		if err != nil {
			return nil, fmt.Errorf("followed videos: %w", err)
		}
	}

	// Nothing watched means nothing to exclude, so the unwatched pool stays empty.
	var unwatched []models.Video
	if len(watched) > 0 {
		unwatched, err = a.videos.FindByIDNotIn(ctx, watched, limit)
		if err != nil {
			return nil, fmt.Errorf("unwatched videos: %w", err)
		}
	}

	logging.FromContext(ctx).Debug("feed candidate pools",
		slog.Int("watched", len(watched)),
		slog.Int("liked", len(liked)),
		slog.Int("followed", len(followed)),
		slog.Int("trending_pool", len(trending)),
		slog.Int("followed_pool", len(fromFollowed)),
		slog.Int("unwatched_pool", len(unwatched)),
	)

	return MergeUnique(trending, fromFollowed, unwatched), nil
}
