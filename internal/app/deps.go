package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mypov/backend/internal/auth"
	"github.com/mypov/backend/internal/config"
	"github.com/mypov/backend/internal/db"
	"github.com/mypov/backend/internal/feed"
	"github.com/mypov/backend/internal/handlers"
	"github.com/mypov/backend/internal/middleware"
	"github.com/mypov/backend/internal/repositories"
	"github.com/mypov/backend/internal/search"
	"github.com/mypov/backend/internal/storage"
	"github.com/mypov/backend/internal/videos"
)

const rateLimiterIdleTTL = 10 * time.Minute

// components holds everything serve needs beyond the route dependencies.
type components struct {
	deps     handlers.Dependencies
	sessions *auth.Manager
	cleanup  func(ctx context.Context) error
}

// buildDependencies wires together concrete implementations used by the HTTP
// handlers. Object storage, Redis and Elasticsearch are optional; endpoints
// that need a missing backend degrade instead of failing startup.
func buildDependencies(ctx context.Context, pool db.Pool, cfg config.Config, logger *slog.Logger) (components, error) {
	if logger == nil {
		logger = slog.Default()
	}

	users := repositories.NewPostgresUserRepository(pool)
	videoRepo := repositories.NewPostgresVideoRepository(pool)
	sessions := auth.NewManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL, repositories.NewPostgresSessionStore(pool))
	hydrator := feed.NewHydrator(users)

	deps := handlers.Dependencies{
		Users:          users,
		Sessions:       sessions,
		Follows:        repositories.NewPostgresFollowRepository(pool),
		Videos:         videoRepo,
		Engagement:     repositories.NewPostgresEngagementRepository(pool),
		WaitingList:    repositories.NewPostgresWaitingListRepository(pool),
		Feed:           feed.NewAssembler(videoRepo, users, hydrator),
		Hydrator:       hydrator,
		AuthLimiter:    middleware.NewIPRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window, cfg.RateLimit.Burst, rateLimiterIdleTTL),
		AdminToken:     cfg.AdminToken,
		MaxUploadBytes: cfg.Processing.MaxUploadBytes,
	}
	if pinger, ok := pool.(handlers.Pinger); ok {
		deps.Database = pinger
	}

	var closers []func(context.Context) error

	ytdlp := videos.NewYTDLPProvider(cfg.YTDLPPath, cfg.YTDLPTimeout)
	if cfg.RedisAddr != "" {
		client := videos.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword)
		deps.VideoMetadata = videos.NewRedisCachingProvider(ytdlp, client, cfg.MetadataCacheTTL, logger)
		closers = append(closers, func(context.Context) error { return client.Close() })
		logger.Info("metadata cache using redis", "addr", cfg.RedisAddr)
	} else {
		deps.VideoMetadata = videos.NewCachingProvider(ytdlp, cfg.MetadataCacheTTL)
	}

	ffmpeg := videos.NewFFmpeg(cfg.FFmpegPath, cfg.FFprobePath)
	deps.Media = ffmpeg

	assets, err := storage.NewS3Storage(ctx, cfg.ObjectStore)
	switch {
	case errors.Is(err, storage.ErrBucketRequired):
		logger.Warn("object storage not configured; uploads and imports are disabled")
	case err != nil:
		return components{}, fmt.Errorf("configure object storage: %w", err)
	default:
		deps.Assets = assets
		processor := videos.NewProcessor(ytdlp, ffmpeg, assets, videoRepo, videos.ProcessorConfig{
			QueueSize:  cfg.Processing.QueueSize,
			Workers:    cfg.Processing.Workers,
			TempDir:    cfg.Processing.TempDir,
			JobTimeout: cfg.Processing.JobTimeout,
		}, logger)
		deps.Processor = processor
		closers = append(closers, processor.Shutdown)
	}

	index, err := search.NewIndex(cfg.Search)
	switch {
	case errors.Is(err, search.ErrDisabled):
		logger.Info("elasticsearch not configured; search uses the database")
	case err != nil:
		return components{}, fmt.Errorf("configure search: %w", err)
	default:
		ensureCtx, cancel := context.WithTimeout(ctx, cfg.Search.Timeout)
		if err := index.EnsureIndex(ensureCtx); err != nil {
			logger.Warn("ensure search index", "error", err, "index", cfg.Search.VideosIndex)
		}
		cancel()
		deps.Search = index
	}

	cleanup := func(ctx context.Context) error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](ctx); err != nil && !errors.Is(err, redis.ErrClosed) {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	return components{deps: deps, sessions: sessions, cleanup: cleanup}, nil
}
