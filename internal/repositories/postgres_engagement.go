package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mypov/backend/internal/db"
	"github.com/mypov/backend/internal/models"
)

// PostgresEngagementRepository persists likes, bookmarks and watch history.
type PostgresEngagementRepository struct {
	pool db.Pool
	now  func() time.Time
}

// NewPostgresEngagementRepository constructs an engagement repository backed by PostgreSQL.
func NewPostgresEngagementRepository(pool db.Pool) *PostgresEngagementRepository {
	return &PostgresEngagementRepository{pool: pool, now: time.Now}
}

func edgeError(err error, action string) error {
	switch pgErrorCode(err) {
	case pgForeignKeyViolation, pgInvalidTextRepr:
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", action, err)
}

// Like records userID's like of videoID and bumps the video's like counter the
// first time only. It returns the like edge and the video's current like count.
func (r *PostgresEngagementRepository) Like(ctx context.Context, userID, videoID string) (models.Like, int64, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Like{}, 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return models.Like{}, 0, fmt.Errorf("begin like transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx, `
        INSERT INTO likes (id, user_id, video_id, created_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (user_id, video_id) DO NOTHING
    `, uuid.NewString(), userID, videoID, r.now().UTC())
	if err != nil {
		return models.Like{}, 0, edgeError(err, "insert like")
	}

	var likes int64
	if tag.RowsAffected() == 1 {
		err = tx.QueryRow(ctx, `
            UPDATE videos SET likes = likes + 1 WHERE video_id = $1 RETURNING likes
        `, videoID).Scan(&likes)
		if err == nil {
			_, err = tx.Exec(ctx, `
                UPDATE watched_videos SET liked = TRUE WHERE user_id = $1 AND video_id = $2
            `, userID, videoID)
		}
	} else {
		err = tx.QueryRow(ctx, `SELECT likes FROM videos WHERE video_id = $1`, videoID).Scan(&likes)
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Like{}, 0, ErrNotFound
		}
		return models.Like{}, 0, fmt.Errorf("update like counter: %w", err)
	}

	var like models.Like
	err = tx.QueryRow(ctx, `
        SELECT id, user_id, video_id, created_at FROM likes WHERE user_id = $1 AND video_id = $2
    `, userID, videoID).Scan(&like.ID, &like.UserID, &like.VideoID, &like.CreatedAt)
	if err != nil {
		return models.Like{}, 0, fmt.Errorf("select like: %w", err)
	}
	like.CreatedAt = like.CreatedAt.UTC()

	if err := tx.Commit(ctx); err != nil {
		return models.Like{}, 0, fmt.Errorf("commit like: %w", err)
	}

	return like, likes, nil
}

// Dislike records userID's dislike of videoID and bumps the video's dislike
// counter the first time only. It returns the current dislike count.
func (r *PostgresEngagementRepository) Dislike(ctx context.Context, userID, videoID string) (int64, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin dislike transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx, `
        INSERT INTO dislikes (id, user_id, video_id, created_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (user_id, video_id) DO NOTHING
    `, uuid.NewString(), userID, videoID, r.now().UTC())
	if err != nil {
		return 0, edgeError(err, "insert dislike")
	}

	var dislikes int64
	if tag.RowsAffected() == 1 {
		err = tx.QueryRow(ctx, `
            UPDATE videos SET dislikes = dislikes + 1 WHERE video_id = $1 RETURNING dislikes
        `, videoID).Scan(&dislikes)
		if err == nil {
			_, err = tx.Exec(ctx, `
                UPDATE watched_videos SET disliked = TRUE WHERE user_id = $1 AND video_id = $2
            `, userID, videoID)
		}
	} else {
		err = tx.QueryRow(ctx, `SELECT dislikes FROM videos WHERE video_id = $1`, videoID).Scan(&dislikes)
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("update dislike counter: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit dislike: %w", err)
	}

	return dislikes, nil
}

// Save bookmarks videoID for userID. Saving twice returns the existing bookmark.
func (r *PostgresEngagementRepository) Save(ctx context.Context, userID, videoID string) (models.SavedVideo, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.SavedVideo{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        INSERT INTO saved_videos (id, user_id, video_id, saved_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (user_id, video_id) DO NOTHING
    `, uuid.NewString(), userID, videoID, r.now().UTC())
	if err != nil {
		return models.SavedVideo{}, edgeError(err, "insert saved video")
	}

	if tag.RowsAffected() == 1 {
		if _, err := conn.Exec(ctx, `
            UPDATE watched_videos SET saved = TRUE WHERE user_id = $1 AND video_id = $2
        `, userID, videoID); err != nil {
			return models.SavedVideo{}, fmt.Errorf("flag watch record saved: %w", err)
		}
	}

	var saved models.SavedVideo
	err = conn.QueryRow(ctx, `
        SELECT id, user_id, video_id, saved_at FROM saved_videos WHERE user_id = $1 AND video_id = $2
    `, userID, videoID).Scan(&saved.ID, &saved.UserID, &saved.VideoID, &saved.SavedAt)
	if err != nil {
		return models.SavedVideo{}, fmt.Errorf("select saved video: %w", err)
	}
	saved.SavedAt = saved.SavedAt.UTC()

	return saved, nil
}

// Unsave removes a bookmark.
func (r *PostgresEngagementRepository) Unsave(ctx context.Context, userID, videoID string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        DELETE FROM saved_videos WHERE user_id = $1 AND video_id = $2
    `, userID, videoID)
	if err != nil {
		return edgeError(err, "delete saved video")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	if _, err := conn.Exec(ctx, `
        UPDATE watched_videos SET saved = FALSE WHERE user_id = $1 AND video_id = $2
    `, userID, videoID); err != nil {
		return fmt.Errorf("clear watch record saved: %w", err)
	}

	return nil
}

// IsSaved reports whether userID has bookmarked videoID.
func (r *PostgresEngagementRepository) IsSaved(ctx context.Context, userID, videoID string) (bool, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var exists bool
	err = conn.QueryRow(ctx, `
        SELECT EXISTS (SELECT 1 FROM saved_videos WHERE user_id = $1 AND video_id = $2)
    `, userID, videoID).Scan(&exists)
	if err != nil {
		if pgErrorCode(err) == pgInvalidTextRepr {
			return false, nil
		}
		return false, fmt.Errorf("select saved exists: %w", err)
	}
	return exists, nil
}

func (r *PostgresEngagementRepository) listVideos(ctx context.Context, action, query string, args ...any) ([]models.Video, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", action, err)
	}
	return collectVideos(rows, action)
}

// ListSaved returns the videos userID bookmarked, most recently saved first.
func (r *PostgresEngagementRepository) ListSaved(ctx context.Context, userID string) ([]models.Video, error) {
	return r.listVideos(ctx, "saved videos", `
        SELECT `+prefixed("v", videoColumns)+`
        FROM saved_videos s
        JOIN videos v ON v.video_id = s.video_id
        WHERE s.user_id = $1
        ORDER BY s.saved_at DESC, s.id
    `, userID)
}

// RecordWatch upserts the watch record for (userID, videoID). The longest watch
// time is kept, completion is sticky and the watch count grows by one per call.
// The liked, disliked and saved flags follow the user's existing edges.
func (r *PostgresEngagementRepository) RecordWatch(ctx context.Context, userID, videoID string, progress models.WatchProgress) (models.WatchRecord, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.WatchRecord{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	now := r.now().UTC()
	var rec models.WatchRecord
	err = conn.QueryRow(ctx, `
        INSERT INTO watched_videos (id, user_id, video_id, watch_time, completed, last_position, liked, disliked, saved, watch_count, first_watched_at, last_watched_at)
        VALUES ($1, $2, $3, $4, $5, $6,
            EXISTS (SELECT 1 FROM likes WHERE user_id = $2 AND video_id = $3),
            EXISTS (SELECT 1 FROM dislikes WHERE user_id = $2 AND video_id = $3),
            EXISTS (SELECT 1 FROM saved_videos WHERE user_id = $2 AND video_id = $3),
            1, $7, $7)
        ON CONFLICT (user_id, video_id) DO UPDATE SET
            watch_time = GREATEST(watched_videos.watch_time, EXCLUDED.watch_time),
            completed = watched_videos.completed OR EXCLUDED.completed,
            last_position = EXCLUDED.last_position,
            liked = watched_videos.liked OR EXCLUDED.liked,
            disliked = watched_videos.disliked OR EXCLUDED.disliked,
            saved = EXCLUDED.saved,
            watch_count = watched_videos.watch_count + 1,
            last_watched_at = EXCLUDED.last_watched_at
        RETURNING id, user_id, video_id, watch_time, completed, last_position, liked, disliked, saved, shared, watch_count, first_watched_at, last_watched_at
    `, uuid.NewString(), userID, videoID, progress.WatchTime, progress.Completed, progress.LastPosition, now).Scan(
		&rec.ID, &rec.UserID, &rec.VideoID, &rec.WatchTime, &rec.Completed, &rec.LastPosition,
		&rec.Liked, &rec.Disliked, &rec.Saved, &rec.Shared, &rec.WatchCount, &rec.FirstWatchedAt, &rec.LastWatchedAt)
	if err != nil {
		return models.WatchRecord{}, edgeError(err, "upsert watch record")
	}
	rec.FirstWatchedAt = rec.FirstWatchedAt.UTC()
	rec.LastWatchedAt = rec.LastWatchedAt.UTC()

	return rec, nil
}

// ListHistory returns the videos userID watched, most recently watched first.
func (r *PostgresEngagementRepository) ListHistory(ctx context.Context, userID string, skip, limit int) ([]models.Video, error) {
	return r.listVideos(ctx, "watch history", `
        SELECT `+prefixed("v", videoColumns)+`
        FROM watched_videos w
        JOIN videos v ON v.video_id = w.video_id
        WHERE w.user_id = $1
        ORDER BY w.last_watched_at DESC, w.id
        OFFSET $2 LIMIT $3
    `, userID, skip, limit)
}

var _ EngagementRepository = (*PostgresEngagementRepository)(nil)
