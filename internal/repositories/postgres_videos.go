package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/mypov/backend/internal/db"
	"github.com/mypov/backend/internal/models"
)

const videoColumns = `video_id, user_id, title, description, video_url, thumbnail_url, duration, views, likes, dislikes, status, created_at`

// Videos in these states are never listed publicly.
const listableVideos = `status NOT IN ('private', 'processing', 'failed')`

// PostgresVideoRepository provides PostgreSQL-backed persistence for videos.
type PostgresVideoRepository struct {
	pool db.Pool
}

// NewPostgresVideoRepository constructs a video repository backed by PostgreSQL.
func NewPostgresVideoRepository(pool db.Pool) *PostgresVideoRepository {
	return &PostgresVideoRepository{pool: pool}
}

func scanVideo(row pgx.Row) (models.Video, error) {
	var (
		video   models.Video
		ownerID *string
		status  string
	)
	if err := row.Scan(&video.ID, &ownerID, &video.Title, &video.Description, &video.VideoURL, &video.ThumbnailURL,
		&video.Duration, &video.Views, &video.Likes, &video.Dislikes, &status, &video.CreatedAt); err != nil {
		return models.Video{}, err
	}
	if ownerID != nil {
		video.OwnerID = *ownerID
	}
	video.Status = models.VideoStatus(status)
	video.CreatedAt = video.CreatedAt.UTC()
	return video, nil
}

func collectVideos(rows pgx.Rows, action string) ([]models.Video, error) {
	defer rows.Close()

	var videos []models.Video
	for rows.Next() {
		video, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", action, err)
		}
		videos = append(videos, video)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", action, err)
	}

	return videos, nil
}

func (r *PostgresVideoRepository) list(ctx context.Context, action, query string, args ...any) ([]models.Video, error) {
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

// Create stores a new video record.
func (r *PostgresVideoRepository) Create(ctx context.Context, video models.Video) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	status := video.Status
	if status == "" {
		status = models.VideoStatusDraft
	}

	var ownerID *string
	if video.OwnerID != "" {
		ownerID = &video.OwnerID
	}

	_, err = conn.Exec(ctx, `
        INSERT INTO videos (video_id, user_id, title, description, video_url, thumbnail_url, duration, status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `, video.ID, ownerID, video.Title, video.Description, video.VideoURL, video.ThumbnailURL, video.Duration, string(status), video.CreatedAt)
	if err != nil {
		switch pgErrorCode(err) {
		case pgUniqueViolation:
			return ErrConflict
		case pgForeignKeyViolation:
			return ErrNotFound
		}
		return fmt.Errorf("insert video: %w", err)
	}

	return nil
}

// FindByID fetches a single video.
func (r *PostgresVideoRepository) FindByID(ctx context.Context, id string) (models.Video, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Video{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	video, err := scanVideo(conn.QueryRow(ctx, `SELECT `+videoColumns+` FROM videos WHERE video_id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || pgErrorCode(err) == pgInvalidTextRepr {
			return models.Video{}, ErrNotFound
		}
		return models.Video{}, fmt.Errorf("select video: %w", err)
	}
	return video, nil
}

// FindByIDs fetches the given videos, returned in the order of ids. Missing ids are skipped.
func (r *PostgresVideoRepository) FindByIDs(ctx context.Context, ids []string) ([]models.Video, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	found, err := r.list(ctx, "videos by id", `SELECT `+videoColumns+` FROM videos WHERE video_id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]models.Video, len(found))
	for _, v := range found {
		byID[v.ID] = v
	}

	ordered := make([]models.Video, 0, len(found))
	for _, id := range ids {
		if v, ok := byID[id]; ok {
			ordered = append(ordered, v)
			delete(byID, id)
		}
	}
	return ordered, nil
}

// FindTopByEngagement pages through videos ordered by views, then likes, then recency.
func (r *PostgresVideoRepository) FindTopByEngagement(ctx context.Context, skip, limit int) ([]models.Video, error) {
	return r.list(ctx, "top videos", `
        SELECT `+videoColumns+`
        FROM videos
        WHERE `+listableVideos+`
        ORDER BY views DESC, likes DESC, created_at DESC, video_id
        OFFSET $1 LIMIT $2
    `, skip, limit)
}

// FindByOwnerIn returns the most recent videos uploaded by any of ownerIDs.
func (r *PostgresVideoRepository) FindByOwnerIn(ctx context.Context, ownerIDs []string, limit int) ([]models.Video, error) {
	if len(ownerIDs) == 0 {
		return nil, nil
	}
	return r.list(ctx, "followed videos", `
        SELECT `+videoColumns+`
        FROM videos
        WHERE user_id = ANY($1) AND `+listableVideos+`
        ORDER BY created_at DESC, video_id
        LIMIT $2
    `, ownerIDs, limit)
}

// FindByIDNotIn returns the most recent videos whose ids are not in excludedIDs.
func (r *PostgresVideoRepository) FindByIDNotIn(ctx context.Context, excludedIDs []string, limit int) ([]models.Video, error) {
	if excludedIDs == nil {
		excludedIDs = []string{}
	}
	return r.list(ctx, "unwatched videos", `
        SELECT `+videoColumns+`
        FROM videos
        WHERE NOT (video_id = ANY($1)) AND `+listableVideos+`
        ORDER BY created_at DESC, video_id
        LIMIT $2
    `, excludedIDs, limit)
}

// ListByOwner pages through a single user's public videos, newest first.
func (r *PostgresVideoRepository) ListByOwner(ctx context.Context, ownerID string, skip, limit int) ([]models.Video, error) {
	return r.list(ctx, "owner videos", `
        SELECT `+videoColumns+`
        FROM videos
        WHERE user_id = $1 AND `+listableVideos+`
        ORDER BY created_at DESC, video_id
        OFFSET $2 LIMIT $3
    `, ownerID, skip, limit)
}

// Search matches titles and descriptions case-insensitively. A query starting
// with '#' only matches descriptions containing that hashtag.
func (r *PostgresVideoRepository) Search(ctx context.Context, query string, limit int) ([]models.Video, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	pattern := "%" + escapeLike(query) + "%"
	if strings.HasPrefix(query, "#") {
		return r.list(ctx, "hashtag search", `
            SELECT `+videoColumns+`
            FROM videos
            WHERE description ILIKE $1 AND `+listableVideos+`
            ORDER BY views DESC, created_at DESC
            LIMIT $2
        `, pattern, limit)
	}

	return r.list(ctx, "video search", `
        SELECT `+videoColumns+`
        FROM videos
        WHERE (title ILIKE $1 OR description ILIKE $1) AND `+listableVideos+`
        ORDER BY views DESC, created_at DESC
        LIMIT $2
    `, pattern, limit)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (r *PostgresVideoRepository) increment(ctx context.Context, id, column string) (int64, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var count int64
	err = conn.QueryRow(ctx, `
        UPDATE videos SET `+column+` = `+column+` + 1
        WHERE video_id = $1
        RETURNING `+column, id).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || pgErrorCode(err) == pgInvalidTextRepr {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("increment %s: %w", column, err)
	}
	return count, nil
}

// IncrementViews atomically bumps the view counter and returns the new value.
func (r *PostgresVideoRepository) IncrementViews(ctx context.Context, id string) (int64, error) {
	return r.increment(ctx, id, "views")
}

// IncrementLikes atomically bumps the like counter and returns the new value.
func (r *PostgresVideoRepository) IncrementLikes(ctx context.Context, id string) (int64, error) {
	return r.increment(ctx, id, "likes")
}

// IncrementDislikes atomically bumps the dislike counter and returns the new value.
func (r *PostgresVideoRepository) IncrementDislikes(ctx context.Context, id string) (int64, error) {
	return r.increment(ctx, id, "dislikes")
}

func (r *PostgresVideoRepository) update(ctx context.Context, action, query string, args ...any) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, query, args...)
	if err != nil {
		if pgErrorCode(err) == pgInvalidTextRepr {
			return ErrNotFound
		}
		return fmt.Errorf("%s: %w", action, err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// SetStatus overrides a video's status.
func (r *PostgresVideoRepository) SetStatus(ctx context.Context, id string, status models.VideoStatus) error {
	return r.update(ctx, "update video status", `
        UPDATE videos SET status = $2 WHERE video_id = $1
    `, id, string(status))
}

// MarkReady records the processed asset locations for a video that is still processing.
func (r *PostgresVideoRepository) MarkReady(ctx context.Context, id, videoURL, thumbnailURL string, duration int) error {
	return r.update(ctx, "update video status ready", `
        UPDATE videos
        SET status = $2, video_url = $3, thumbnail_url = $4, duration = $5
        WHERE video_id = $1 AND status = $6
    `, id, string(models.VideoStatusReady), videoURL, thumbnailURL, duration, string(models.VideoStatusProcessing))
}

// MarkFailed records a failed processing attempt for a video that is still processing.
func (r *PostgresVideoRepository) MarkFailed(ctx context.Context, id string) error {
	return r.update(ctx, "update video status failed", `
        UPDATE videos SET status = $2
        WHERE video_id = $1 AND status = $3
    `, id, string(models.VideoStatusFailed), string(models.VideoStatusProcessing))
}

// Delete removes a video. Likes, bookmarks and watch records cascade.
func (r *PostgresVideoRepository) Delete(ctx context.Context, id string) error {
	return r.update(ctx, "delete video", `DELETE FROM videos WHERE video_id = $1`, id)
}

var _ VideoRepository = (*PostgresVideoRepository)(nil)
